package sagemaker

import (
	"context"
	"time"
)

type SagemakerRegistry interface {
	CreateModel(ctx context.Context, hostedModels []Model, sagemakerModelName string) error
	CreateEndpointConfig(ctx context.Context, cfg SagemakerEndpointConfig) error
	CreateEndpoint(ctx context.Context, endpoint SagemakerEndpoint) error

	ModelExists(ctx context.Context, sagemakerModelName string) (bool, error)
	EndpointConfigExists(ctx context.Context, sagemakerEndpointConfigName string) (bool, error)
	EndpointExists(ctx context.Context, sagemakerEndpointName string) (bool, error)

	DeleteModel(ctx context.Context, sagemakerModelName string) error
	DeleteEndpointConfig(ctx context.Context, sagemakerEndpointConfigName string) error
	DeleteEndpoint(ctx context.Context, sagemakerEndpointName string) error

	GetEndpointStatus(ctx context.Context, sagemakerEndpointName string) (EndpointStatus, error)
	GetEndpointConfigName(ctx context.Context, sagemakerEndpointName string) (string, error)
	UpdateEndpoint(ctx context.Context, endpoint SagemakerEndpoint) error

	// AwaitInService polls the endpoint at the client's configured interval
	// until it leaves Creating/Updating or the timeout elapses. A zero
	// timeout performs exactly one check.
	AwaitInService(ctx context.Context, sagemakerEndpointName string, timeout time.Duration) (EndpointStatus, error)
}

// AsyncInferenceServer submits inference work by reference and resolves the
// eventual result. Submissions are fire-and-forget: Submit returns as soon as
// the service accepts the request; the result is observed via PollResult (or
// a completion notification, which is handled a layer above).
type AsyncInferenceServer interface {
	Submit(ctx context.Context, req InvocationRequest) (InvocationToken, error)
	PollResult(ctx context.Context, token InvocationToken) (ResultState, error)
	AwaitResult(ctx context.Context, token InvocationToken, timeout time.Duration) (ResultState, error)
}

// InvocationRequest carries one async submission. InputLocation must point at
// an already staged payload - the inference client never uploads payloads
// itself.
type InvocationRequest struct {
	EndpointName  string
	InputLocation string
	ContentType   string
	// Optional caller-chosen id; the service generates one when empty.
	InferenceId string
}
