package main

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"

	lib "saffron/lib/sagemaker"
)

func readRequest(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	return ioutil.ReadAll(req.Body)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// statusFromError maps the error taxonomy onto http status codes so that
// callers can branch without parsing messages.
func statusFromError(err error) int {
	var provisioning *lib.ProvisioningFailure
	var processing *lib.ProcessingFailure
	switch {
	case errors.Is(err, lib.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lib.ErrConfiguration), errors.Is(err, lib.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, lib.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, lib.ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, lib.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &provisioning), errors.As(err, &processing):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFromError(err))
}
