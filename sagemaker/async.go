package sagemaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
	"go.uber.org/zap"

	lib "saffron/lib/sagemaker"
	"saffron/lib/timer"
)

// Submit enqueues one async invocation by reference. The endpoint must be
// InService; the service itself reports a plain validation error for a
// still-creating endpoint, so the status is checked first to surface
// ErrNotReady distinctly. The call returns as soon as the service accepts
// the request.
func (smc SMClient) Submit(ctx context.Context, req lib.InvocationRequest) (lib.InvocationToken, error) {
	defer timer.Start("sagemaker.submit").Stop()
	if !strings.HasPrefix(req.InputLocation, "s3://") {
		return lib.InvocationToken{}, fmt.Errorf("%w: input location '%s' is not an s3:// uri", lib.ErrInvalidReference, req.InputLocation)
	}
	status, err := smc.GetEndpointStatus(ctx, req.EndpointName)
	if err != nil {
		return lib.InvocationToken{}, err
	}
	if status != lib.EndpointInService {
		return lib.InvocationToken{}, fmt.Errorf("%w: endpoint '%s' is %s", lib.ErrNotReady, req.EndpointName, status)
	}
	input := sagemakerruntime.InvokeEndpointAsyncInput{
		EndpointName:  aws.String(req.EndpointName),
		InputLocation: aws.String(req.InputLocation),
		ContentType:   aws.String(req.ContentType),
	}
	if req.InferenceId != "" {
		input.InferenceId = aws.String(req.InferenceId)
	}
	out, err := smc.runtimeClient.InvokeEndpointAsyncWithContext(ctx, &input)
	if err != nil {
		return lib.InvocationToken{}, fmt.Errorf("failed to submit async invocation: %w", classify(err))
	}
	token := lib.InvocationToken{
		InferenceId:     aws.StringValue(out.InferenceId),
		EndpointName:    req.EndpointName,
		OutputLocation:  aws.StringValue(out.OutputLocation),
		FailureLocation: aws.StringValue(out.FailureLocation),
	}
	if token.OutputLocation == "" {
		return token, fmt.Errorf("service accepted invocation '%s' but returned no output location", token.InferenceId)
	}
	smc.logger.Debug("submitted async invocation",
		zap.String("endpoint", req.EndpointName),
		zap.String("inference_id", token.InferenceId),
		zap.String("output_location", token.OutputLocation),
	)
	return token, nil
}

// PollResult observes the state of a submitted invocation. It only reads
// from the result locations, so it is idempotent and safe to call any number
// of times. An absent output object means "not yet done", never "failed" -
// failure is signalled exclusively by the failure object.
func (smc SMClient) PollResult(ctx context.Context, token lib.InvocationToken) (lib.ResultState, error) {
	defer timer.Start("sagemaker.poll_result").Stop()
	payload, err := smc.downloadURI(ctx, token.OutputLocation)
	if err == nil {
		return lib.ResultState{Status: lib.ResultSucceeded, Payload: payload}, nil
	}
	if !errors.Is(err, lib.ErrNotFound) {
		return lib.ResultState{}, fmt.Errorf("failed to read output location: %v", err)
	}
	if token.FailureLocation != "" {
		failure, ferr := smc.downloadURI(ctx, token.FailureLocation)
		if ferr == nil {
			return lib.ResultState{Status: lib.ResultFailed, FailurePayload: failure}, nil
		}
		if !errors.Is(ferr, lib.ErrNotFound) {
			return lib.ResultState{}, fmt.Errorf("failed to read failure location: %v", ferr)
		}
	}
	return lib.ResultState{Status: lib.ResultPending}, nil
}

// AwaitResult polls at the configured interval until the invocation reaches
// a terminal state or the timeout elapses. A Failed result is returned along
// with a ProcessingFailure carrying the failure payload.
func (smc SMClient) AwaitResult(ctx context.Context, token lib.InvocationToken, timeout time.Duration) (lib.ResultState, error) {
	deadline := smc.clock.Now().Add(timeout)
	for {
		state, err := smc.PollResult(ctx, token)
		if err != nil {
			return state, err
		}
		switch state.Status {
		case lib.ResultSucceeded:
			return state, nil
		case lib.ResultFailed:
			return state, &lib.ProcessingFailure{InferenceId: token.InferenceId, Payload: state.FailurePayload}
		}
		if !smc.clock.Now().Before(deadline) {
			return state, fmt.Errorf("%w: invocation '%s' still pending after %v", lib.ErrTimeout, token.InferenceId, timeout)
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-smc.clock.After(smc.args.ResultPollInterval):
		}
	}
}

func (smc SMClient) downloadURI(ctx context.Context, uri string) ([]byte, error) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	if trimmed == uri {
		return nil, fmt.Errorf("%w: '%s' is not an s3:// uri", lib.ErrInvalidReference, uri)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: '%s' has no bucket or key", lib.ErrInvalidReference, uri)
	}
	buf := aws.WriteAtBuffer{}
	_, err := smc.s3Downloader.DownloadWithContext(ctx, &buf, &s3.GetObjectInput{
		Bucket: aws.String(parts[0]),
		Key:    aws.String(parts[1]),
	})
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == s3.ErrCodeNoSuchKey || e.Code() == "NotFound" {
				return nil, lib.ErrNotFound
			}
		}
		return nil, err
	}
	return buf.Bytes(), nil
}
