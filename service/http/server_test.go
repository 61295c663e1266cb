package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lib "saffron/lib/sagemaker"
	"saffron/test"
)

func testServer(t *testing.T) (*httptest.Server, *test.FakeAWS, string) {
	tr, fake := test.Tier(t)
	router := mux.NewRouter()
	server{tier: tr}.setHandlers(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, fake, tr.ModelStore.EndpointName()
}

func post(t *testing.T, srv *httptest.Server, path string, body interface{}) (int, []byte) {
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func get(t *testing.T, srv *httptest.Server, path string) (int, []byte) {
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func deployOverHTTP(t *testing.T, srv *httptest.Server) {
	code, body := post(t, srv, "/deploy", map[string]interface{}{
		"model": map[string]string{
			"name":              "beto-sentiment-analysis",
			"version":           "v1",
			"task":              "text-classification",
			"framework":         "huggingface",
			"framework_version": "4.12.3",
			"hub_model_id":      "finiteautomata/beto-sentiment-analysis",
		},
	})
	require.Equal(t, http.StatusOK, code, string(body))
}

func TestServerDeployAndInvoke(t *testing.T) {
	srv, fake, endpointName := testServer(t)

	deployOverHTTP(t, srv)

	code, body := get(t, srv, "/endpoint/"+endpointName+"/status")
	require.Equal(t, http.StatusOK, code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, string(lib.EndpointCreating), status["status"])

	// a submission before the endpoint is up is a conflict, not a 500
	code, _ = post(t, srv, "/invoke", map[string]interface{}{
		"inputs": []string{"I love this product, it works perfectly!"},
	})
	assert.Equal(t, http.StatusConflict, code)

	fake.SetEndpointStatus(endpointName, lib.EndpointInService)
	code, body = post(t, srv, "/invoke", map[string]interface{}{
		"inputs": []string{
			"I love this product, it works perfectly!",
			"This is the worst experience I have ever had.",
		},
	})
	require.Equal(t, http.StatusOK, code, string(body))
	var token lib.InvocationToken
	require.NoError(t, json.Unmarshal(body, &token))
	require.NotEmpty(t, token.InferenceId)

	// still pending
	code, body = get(t, srv, "/invocations/"+token.InferenceId)
	require.Equal(t, http.StatusOK, code)
	var inv invocationResponse
	require.NoError(t, json.Unmarshal(body, &inv))
	assert.Equal(t, "submitted", inv.Status)
	assert.Empty(t, inv.Predictions)

	require.NoError(t, fake.CompleteInvocation(token.InferenceId,
		[]byte(`[{"label":"POS","score":0.9984341},{"label":"NEG","score":0.9337271}]`)))
	code, body = get(t, srv, "/invocations/"+token.InferenceId)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &inv))
	assert.Equal(t, "completed", inv.Status)
	require.Len(t, inv.Predictions, 2)
	assert.Equal(t, "POS", inv.Predictions[0].Label)
	assert.Equal(t, "NEG", inv.Predictions[1].Label)
}

func TestServerInvokeRef(t *testing.T) {
	srv, fake, endpointName := testServer(t)
	deployOverHTTP(t, srv)
	fake.SetEndpointStatus(endpointName, lib.EndpointInService)

	code, body := post(t, srv, "/invoke_ref", map[string]string{
		"input_location": "s3://saffron-test/input/a.json",
	})
	require.Equal(t, http.StatusOK, code, string(body))
	var token lib.InvocationToken
	require.NoError(t, json.Unmarshal(body, &token))

	require.NoError(t, fake.FailInvocation(token.InferenceId, []byte("worker OOM")))
	code, body = get(t, srv, "/invocations/"+token.InferenceId)
	require.Equal(t, http.StatusOK, code)
	var inv invocationResponse
	require.NoError(t, json.Unmarshal(body, &inv))
	assert.Equal(t, "failed", inv.Status)
	assert.Equal(t, "worker OOM", inv.Failure)

	// a malformed reference is the caller's fault
	code, _ = post(t, srv, "/invoke_ref", map[string]string{
		"input_location": "ftp://nope",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServerNotification(t *testing.T) {
	srv, fake, endpointName := testServer(t)
	deployOverHTTP(t, srv)
	fake.SetEndpointStatus(endpointName, lib.EndpointInService)

	code, body := post(t, srv, "/invoke_ref", map[string]string{
		"input_location": "s3://saffron-test/input/a.json",
	})
	require.Equal(t, http.StatusOK, code, string(body))
	var token lib.InvocationToken
	require.NoError(t, json.Unmarshal(body, &token))

	event := fmt.Sprintf(`{"inferenceId":"%s","invocationStatus":"Completed"}`, token.InferenceId)
	resp, err := http.Post(srv.URL+"/notifications", "application/json", bytes.NewReader([]byte(event)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, body = get(t, srv, "/invocations/"+token.InferenceId)
	require.Equal(t, http.StatusOK, code)
	var inv invocationResponse
	require.NoError(t, json.Unmarshal(body, &inv))
	assert.Equal(t, "completed", inv.Status)
}

func TestServerErrors(t *testing.T) {
	srv, _, _ := testServer(t)

	code, _ := get(t, srv, "/invocations/no-such-inference")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, srv, "/endpoint/no-such-endpoint/status")
	assert.Equal(t, http.StatusNotFound, code)

	// deploying a model with no weights is a 400
	code, _ = post(t, srv, "/deploy", map[string]interface{}{
		"model": map[string]string{"name": "no-weights", "version": "v1"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
}
