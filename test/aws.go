package test

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"go.uber.org/atomic"

	lib "saffron/lib/sagemaker"
)

// FakeAWS is an in-process stand-in for the three AWS services the tier
// talks to: the SageMaker control plane (json protocol), the SageMaker
// runtime's async invocation API (rest-json), S3 (rest-xml, path style) and
// SNS topic management (query protocol). It holds just enough state to
// exercise the deployment and invocation flows; the actual model never runs,
// tests play its part by completing or failing invocations explicitly.
type FakeAWS struct {
	sync.Mutex
	srv *httptest.Server

	models    map[string]json.RawMessage
	configs   map[string]fakeEndpointConfig
	endpoints map[string]*fakeEndpoint
	objects   map[string][]byte
	topics    map[string]string

	invocations map[string]*FakeInvocation

	// Submissions rejected with a capacity error before accepting again.
	rejectSubmits atomic.Int64
	// Total async submissions accepted.
	Submitted atomic.Int64
}

type fakeEndpointConfig struct {
	Name        string
	OutputPath  string
	FailurePath string
}

type fakeEndpoint struct {
	Name          string
	ConfigName    string
	Status        lib.EndpointStatus
	FailureReason string
}

// FakeInvocation is one accepted async submission.
type FakeInvocation struct {
	InferenceId     string
	EndpointName    string
	InputLocation   string
	ContentType     string
	OutputLocation  string
	FailureLocation string
}

func NewFakeAWS() *FakeAWS {
	f := &FakeAWS{
		models:      map[string]json.RawMessage{},
		configs:     map[string]fakeEndpointConfig{},
		endpoints:   map[string]*fakeEndpoint{},
		objects:     map[string][]byte{},
		topics:      map[string]string{},
		invocations: map[string]*FakeInvocation{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *FakeAWS) Close() {
	f.srv.Close()
}

func (f *FakeAWS) URL() string {
	return f.srv.URL
}

// Session returns an SDK session pointed at the fake instead of AWS.
func (f *FakeAWS) Session() *session.Session {
	return session.Must(session.NewSession(&aws.Config{
		Region:           aws.String("us-west-2"),
		Credentials:      credentials.NewStaticCredentials("test", "test", ""),
		Endpoint:         aws.String(f.srv.URL),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
	}))
}

//=================================
// Test control surface
//=================================

func (f *FakeAWS) SetEndpointStatus(name string, status lib.EndpointStatus) {
	f.Lock()
	defer f.Unlock()
	if ep, ok := f.endpoints[name]; ok {
		ep.Status = status
		if status == lib.EndpointFailed {
			ep.FailureReason = "insufficient capacity (fake)"
		}
	}
}

// RejectSubmits makes the next n async submissions fail with a throttling
// error.
func (f *FakeAWS) RejectSubmits(n int64) {
	f.rejectSubmits.Store(n)
}

// CompleteInvocation plays the model server: it writes the result payload to
// the invocation's output location.
func (f *FakeAWS) CompleteInvocation(inferenceId string, payload []byte) error {
	f.Lock()
	defer f.Unlock()
	inv, ok := f.invocations[inferenceId]
	if !ok {
		return fmt.Errorf("no invocation '%s'", inferenceId)
	}
	f.putURI(inv.OutputLocation, payload)
	return nil
}

// FailInvocation writes an error payload to the invocation's failure
// location instead.
func (f *FakeAWS) FailInvocation(inferenceId string, payload []byte) error {
	f.Lock()
	defer f.Unlock()
	inv, ok := f.invocations[inferenceId]
	if !ok {
		return fmt.Errorf("no invocation '%s'", inferenceId)
	}
	if inv.FailureLocation == "" {
		return fmt.Errorf("invocation '%s' has no failure location", inferenceId)
	}
	f.putURI(inv.FailureLocation, payload)
	return nil
}

func (f *FakeAWS) Invocation(inferenceId string) (FakeInvocation, bool) {
	f.Lock()
	defer f.Unlock()
	inv, ok := f.invocations[inferenceId]
	if !ok {
		return FakeInvocation{}, false
	}
	return *inv, true
}

// Topic returns the ARN of a notification topic, if it was provisioned and
// not yet deleted. Names are the full prefixed topic names.
func (f *FakeAWS) Topic(name string) (string, bool) {
	f.Lock()
	defer f.Unlock()
	arn, ok := f.topics[name]
	return arn, ok
}

// Object returns the stored payload behind an s3:// uri, if present.
func (f *FakeAWS) Object(uri string) ([]byte, bool) {
	f.Lock()
	defer f.Unlock()
	data, ok := f.objects[objectKey(uri)]
	return data, ok
}

func (f *FakeAWS) putURI(uri string, data []byte) {
	f.objects[objectKey(uri)] = data
}

func objectKey(uri string) string {
	return strings.TrimPrefix(uri, "s3://")
}

//=================================
// HTTP dispatch
//=================================

func (f *FakeAWS) handler(w http.ResponseWriter, r *http.Request) {
	if target := r.Header.Get("X-Amz-Target"); target != "" {
		f.handleControlPlane(w, r, target)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/endpoints/") && strings.HasSuffix(r.URL.Path, "/async-invocations") {
		f.handleAsyncInvoke(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/" {
		f.handleSns(w, r)
		return
	}
	f.handleS3(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func validationError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"__type":  "ValidationException",
		"message": msg,
	})
}

//=================================
// SageMaker control plane (json protocol)
//=================================

func (f *FakeAWS) handleControlPlane(w http.ResponseWriter, r *http.Request, target string) {
	f.Lock()
	defer f.Unlock()

	var req struct {
		ModelName            string
		EndpointName         string
		EndpointConfigName   string
		AsyncInferenceConfig *struct {
			OutputConfig *struct {
				S3OutputPath  string
				S3FailurePath string
			}
		}
	}
	raw, _ := io.ReadAll(r.Body)
	r.Body.Close()
	_ = json.Unmarshal(raw, &req)

	switch strings.TrimPrefix(target, "SageMaker.") {
	case "CreateModel":
		f.models[req.ModelName] = raw
		writeJSON(w, http.StatusOK, map[string]string{"ModelArn": "arn:aws:sagemaker:us-west-2:123456789012:model/" + req.ModelName})
	case "DescribeModel":
		if _, ok := f.models[req.ModelName]; !ok {
			validationError(w, fmt.Sprintf("Could not find model \"%s\"", req.ModelName))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ModelName": req.ModelName})
	case "DeleteModel":
		delete(f.models, req.ModelName)
		writeJSON(w, http.StatusOK, map[string]string{})
	case "CreateEndpointConfig":
		cfg := fakeEndpointConfig{Name: req.EndpointConfigName}
		if req.AsyncInferenceConfig != nil && req.AsyncInferenceConfig.OutputConfig != nil {
			cfg.OutputPath = req.AsyncInferenceConfig.OutputConfig.S3OutputPath
			cfg.FailurePath = req.AsyncInferenceConfig.OutputConfig.S3FailurePath
		}
		f.configs[req.EndpointConfigName] = cfg
		writeJSON(w, http.StatusOK, map[string]string{"EndpointConfigArn": "arn:aws:sagemaker:us-west-2:123456789012:endpoint-config/" + req.EndpointConfigName})
	case "DescribeEndpointConfig":
		if _, ok := f.configs[req.EndpointConfigName]; !ok {
			validationError(w, fmt.Sprintf("Could not find endpoint config \"%s\"", req.EndpointConfigName))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"EndpointConfigName": req.EndpointConfigName})
	case "DeleteEndpointConfig":
		delete(f.configs, req.EndpointConfigName)
		writeJSON(w, http.StatusOK, map[string]string{})
	case "CreateEndpoint":
		if _, ok := f.configs[req.EndpointConfigName]; !ok {
			validationError(w, fmt.Sprintf("Could not find endpoint config \"%s\"", req.EndpointConfigName))
			return
		}
		f.endpoints[req.EndpointName] = &fakeEndpoint{
			Name:       req.EndpointName,
			ConfigName: req.EndpointConfigName,
			Status:     lib.EndpointCreating,
		}
		writeJSON(w, http.StatusOK, map[string]string{"EndpointArn": "arn:aws:sagemaker:us-west-2:123456789012:endpoint/" + req.EndpointName})
	case "DescribeEndpoint":
		ep, ok := f.endpoints[req.EndpointName]
		if !ok {
			validationError(w, fmt.Sprintf("Could not find endpoint \"%s\"", req.EndpointName))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"EndpointName":       ep.Name,
			"EndpointConfigName": ep.ConfigName,
			"EndpointStatus":     string(ep.Status),
			"FailureReason":      ep.FailureReason,
		})
	case "UpdateEndpoint":
		ep, ok := f.endpoints[req.EndpointName]
		if !ok {
			validationError(w, fmt.Sprintf("Could not find endpoint \"%s\"", req.EndpointName))
			return
		}
		ep.ConfigName = req.EndpointConfigName
		ep.Status = lib.EndpointUpdating
		writeJSON(w, http.StatusOK, map[string]string{})
	case "DeleteEndpoint":
		delete(f.endpoints, req.EndpointName)
		writeJSON(w, http.StatusOK, map[string]string{})
	default:
		validationError(w, fmt.Sprintf("unsupported operation %s", target))
	}
}

//=================================
// SageMaker runtime: async invocations (rest-json)
//=================================

func (f *FakeAWS) handleAsyncInvoke(w http.ResponseWriter, r *http.Request) {
	f.Lock()
	defer f.Unlock()

	if f.rejectSubmits.Load() > 0 {
		f.rejectSubmits.Dec()
		w.Header().Set("X-Amzn-Errortype", "ThrottlingException")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "Too many pending requests (fake)"})
		return
	}

	endpointName := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/endpoints/"), "/async-invocations")
	ep, ok := f.endpoints[endpointName]
	if !ok {
		w.Header().Set("X-Amzn-Errortype", "ValidationError")
		writeJSON(w, http.StatusBadRequest, map[string]string{"Message": fmt.Sprintf("Endpoint %s not found", endpointName)})
		return
	}
	if ep.Status != lib.EndpointInService {
		w.Header().Set("X-Amzn-Errortype", "ValidationError")
		writeJSON(w, http.StatusBadRequest, map[string]string{"Message": fmt.Sprintf("Endpoint %s is not in service", endpointName)})
		return
	}
	cfg := f.configs[ep.ConfigName]

	inferenceId := r.Header.Get("X-Amzn-SageMaker-Inference-Id")
	if inferenceId == "" {
		inferenceId = fmt.Sprintf("%08x-%08x", rand.Uint32(), rand.Uint32())
	}
	inv := &FakeInvocation{
		InferenceId:    inferenceId,
		EndpointName:   endpointName,
		InputLocation:  r.Header.Get("X-Amzn-SageMaker-InputLocation"),
		ContentType:    r.Header.Get("X-Amzn-SageMaker-Content-Type"),
		OutputLocation: fmt.Sprintf("%s/%s.out", cfg.OutputPath, inferenceId),
	}
	if cfg.FailurePath != "" {
		inv.FailureLocation = fmt.Sprintf("%s/%s-error.out", cfg.FailurePath, inferenceId)
	}
	f.invocations[inferenceId] = inv
	f.Submitted.Inc()

	w.Header().Set("X-Amzn-SageMaker-OutputLocation", inv.OutputLocation)
	if inv.FailureLocation != "" {
		w.Header().Set("X-Amzn-SageMaker-FailureLocation", inv.FailureLocation)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"InferenceId": inferenceId})
}

//=================================
// S3 (rest-xml, path style)
//=================================

func (f *FakeAWS) handleS3(w http.ResponseWriter, r *http.Request) {
	f.Lock()
	defer f.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

//=================================
// SNS (query protocol)
//=================================

func (f *FakeAWS) handleSns(w http.ResponseWriter, r *http.Request) {
	f.Lock()
	defer f.Unlock()

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch r.Form.Get("Action") {
	case "CreateTopic":
		name := r.Form.Get("Name")
		arn := "arn:aws:sns:us-west-2:123456789012:" + name
		f.topics[name] = arn
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprintf(w, `<CreateTopicResponse xmlns="https://sns.amazonaws.com/doc/2010-03-31/"><CreateTopicResult><TopicArn>%s</TopicArn></CreateTopicResult><ResponseMetadata><RequestId>fake</RequestId></ResponseMetadata></CreateTopicResponse>`, arn)
	case "DeleteTopic":
		arn := r.Form.Get("TopicArn")
		for name, a := range f.topics {
			if a == arn {
				delete(f.topics, name)
			}
		}
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, `<DeleteTopicResponse xmlns="https://sns.amazonaws.com/doc/2010-03-31/"><ResponseMetadata><RequestId>fake</RequestId></ResponseMetadata></DeleteTopicResponse>`)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}
