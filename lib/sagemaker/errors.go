package sagemaker

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes callers are expected to branch on.
// Everything else propagates wrapped with context.
var (
	// ErrNotReady - the endpoint exists but is not InService yet. Retry
	// after a delay; the raw client never retries on its own.
	ErrNotReady = errors.New("endpoint not in service")
	// ErrCapacity - the service rejected the submission due to queue or
	// concurrency limits. Retried with backoff at the controller layer.
	ErrCapacity = errors.New("service at capacity")
	// ErrInvalidReference - the input location is malformed or points at
	// nothing the service can read.
	ErrInvalidReference = errors.New("invalid input reference")
	// ErrConfiguration - malformed request parameters. Not retried.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrTimeout - a polling loop exhausted its budget.
	ErrTimeout = errors.New("timed out")
	// ErrNotFound - the named remote resource does not exist.
	ErrNotFound = errors.New("not found")
)

// ProvisioningFailure means the endpoint reached the Failed state while being
// created or updated. The reason comes from the control plane verbatim.
type ProvisioningFailure struct {
	EndpointName string
	Reason       string
}

func (e *ProvisioningFailure) Error() string {
	return fmt.Sprintf("endpoint '%s' failed to provision: %s", e.EndpointName, e.Reason)
}

// ProcessingFailure means the service recorded a failure result for one
// specific invocation. The cause is request-specific, so it is never retried
// automatically.
type ProcessingFailure struct {
	InferenceId string
	Payload     []byte
}

func (e *ProcessingFailure) Error() string {
	return fmt.Sprintf("inference '%s' failed: %s", e.InferenceId, string(e.Payload))
}
