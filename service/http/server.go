package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"saffron/controller/deployment"
	"saffron/controller/inference"
	lib "saffron/lib/sagemaker"
	"saffron/lib/sentiment"
	"saffron/tier"
)

type server struct {
	tier tier.Tier
}

func (s server) setHandlers(router *mux.Router) {
	router.HandleFunc("/deploy", s.Deploy).Methods("POST")
	router.HandleFunc("/endpoint/{name}/status", s.EndpointStatus).Methods("GET")
	router.HandleFunc("/endpoint/{name}/await", s.AwaitEndpoint).Methods("POST")
	router.HandleFunc("/endpoint/{name}/teardown", s.Teardown).Methods("POST")
	router.HandleFunc("/invoke", s.Invoke).Methods("POST")
	router.HandleFunc("/invoke_ref", s.InvokeRef).Methods("POST")
	router.HandleFunc("/invocations/{id}", s.Invocation).Methods("GET")
	router.HandleFunc("/notifications", s.Notification).Methods("POST")

	// for any requests starting with /debug, hand the control to default
	// servemux; needed to enable pprof
	router.PathPrefix("/debug/").Handler(http.DefaultServeMux)
}

type deployRequest struct {
	Model struct {
		Name             string `json:"name"`
		Version          string `json:"version"`
		Task             string `json:"task"`
		Framework        string `json:"framework"`
		FrameworkVersion string `json:"framework_version"`
		ArtifactPath     string `json:"artifact_path"`
		HubModelId       string `json:"hub_model_id"`
	} `json:"model"`
	EndpointName             string `json:"endpoint_name"`
	EndpointConfigName       string `json:"endpoint_config_name"`
	MaxConcurrentInvocations uint   `json:"max_concurrent_invocations"`
	EnableNotifications      bool   `json:"enable_notifications"`
	AwaitTimeoutSeconds      uint   `json:"await_timeout_seconds"`
}

func (s server) Deploy(w http.ResponseWriter, req *http.Request) {
	data, err := readRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var r deployRequest
	if err := json.Unmarshal(data, &r); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	sagemakerModelName, err := deployment.Deploy(req.Context(), s.tier, deployment.DeployRequest{
		Model: lib.Model{
			Name:             r.Model.Name,
			Version:          r.Model.Version,
			Task:             r.Model.Task,
			Framework:        r.Model.Framework,
			FrameworkVersion: r.Model.FrameworkVersion,
			ArtifactPath:     r.Model.ArtifactPath,
			HubModelId:       r.Model.HubModelId,
		},
		EndpointName:             r.EndpointName,
		EndpointConfigName:       r.EndpointConfigName,
		MaxConcurrentInvocations: r.MaxConcurrentInvocations,
		EnableNotifications:      r.EnableNotifications,
		AwaitTimeout:             time.Duration(r.AwaitTimeoutSeconds) * time.Second,
	})
	if err != nil {
		s.tier.Logger.Error("deploy failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"sagemaker_model_name": sagemakerModelName})
}

func (s server) EndpointStatus(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	status, err := deployment.EndpointStatus(req.Context(), s.tier, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"endpoint": name, "status": string(status)})
}

func (s server) AwaitEndpoint(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	timeoutSecs := uint(300)
	if v := req.URL.Query().Get("timeout_seconds"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &timeoutSecs); err != nil {
			http.Error(w, fmt.Sprintf("invalid timeout: %v", err), http.StatusBadRequest)
			return
		}
	}
	status, err := s.tier.SagemakerClient.AwaitInService(req.Context(), name, time.Duration(timeoutSecs)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"endpoint": name, "status": string(status)})
}

func (s server) Teardown(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	if err := deployment.Teardown(req.Context(), s.tier, name); err != nil {
		s.tier.Logger.Error("teardown failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"endpoint": name, "status": "deleted"})
}

type invokeRequest struct {
	EndpointName string   `json:"endpoint_name"`
	Inputs       []string `json:"inputs"`
}

func (s server) Invoke(w http.ResponseWriter, req *http.Request) {
	data, err := readRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var r invokeRequest
	if err := json.Unmarshal(data, &r); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	endpointName := r.EndpointName
	if endpointName == "" {
		endpointName = s.tier.ModelStore.EndpointName()
	}
	token, err := inference.SubmitInputs(req.Context(), s.tier, endpointName, sentiment.Request{Inputs: r.Inputs})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, token)
}

type invokeRefRequest struct {
	EndpointName  string `json:"endpoint_name"`
	InputLocation string `json:"input_location"`
	ContentType   string `json:"content_type"`
}

func (s server) InvokeRef(w http.ResponseWriter, req *http.Request) {
	data, err := readRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var r invokeRefRequest
	if err := json.Unmarshal(data, &r); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	endpointName := r.EndpointName
	if endpointName == "" {
		endpointName = s.tier.ModelStore.EndpointName()
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	token, err := inference.Submit(req.Context(), s.tier, endpointName, r.InputLocation, r.ContentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, token)
}

type invocationResponse struct {
	InferenceId    string                 `json:"inference_id"`
	EndpointName   string                 `json:"endpoint_name"`
	Status         string                 `json:"status"`
	OutputLocation string                 `json:"output_location"`
	Predictions    []sentiment.Prediction `json:"predictions,omitempty"`
	Failure        string                 `json:"failure,omitempty"`
}

func (s server) Invocation(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	inv, state, err := inference.Result(req.Context(), s.tier, id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := invocationResponse{
		InferenceId:    inv.InferenceId,
		EndpointName:   inv.EndpointName,
		Status:         inv.Status,
		OutputLocation: inv.OutputLocation,
	}
	switch state.Status {
	case lib.ResultSucceeded:
		// Sentiment payloads decode into label/score pairs; anything else is
		// surfaced verbatim by location only.
		if preds, err := sentiment.Decode(state.Payload, 0); err == nil {
			resp.Predictions = preds
		}
	case lib.ResultFailed:
		resp.Failure = string(state.FailurePayload)
	}
	writeJSON(w, resp)
}

func (s server) Notification(w http.ResponseWriter, req *http.Request) {
	data, err := readRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	inferenceId, err := inference.ProcessNotification(s.tier, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"inference_id": inferenceId})
}
