package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	lib "saffron/lib/sagemaker"
	"saffron/lib/sentiment"
	"saffron/lib/timer"
	"saffron/model/invocation"
	"saffron/tier"
)

const (
	// Capacity rejections are retried this many times with exponential
	// backoff before giving up.
	maxCapacityRetries = 5
	// Bound on concurrent in-flight submissions in SubmitMany. The remote
	// concurrency limit is the endpoint config's business; this only keeps
	// the local goroutine count sane.
	maxInFlightSubmits = 8
)

// Submit sends one async invocation by reference and records it in the
// invocation log. Capacity rejections are retried with backoff; every other
// error propagates immediately.
func Submit(ctx context.Context, t tier.Tier, endpointName, inputLocation, contentType string) (lib.InvocationToken, error) {
	defer timer.Start("inference.submit").Stop()
	req := lib.InvocationRequest{
		EndpointName:  endpointName,
		InputLocation: inputLocation,
		ContentType:   contentType,
	}
	var token lib.InvocationToken
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	err := backoff.Retry(func() error {
		var err error
		token, err = t.SagemakerClient.Submit(ctx, req)
		if err != nil && !errors.Is(err, lib.ErrCapacity) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxCapacityRetries), ctx))
	if err != nil {
		// backoff.Permanent unwrapping keeps the original error intact.
		return lib.InvocationToken{}, err
	}
	if err := invocation.Insert(t, token, inputLocation, contentType); err != nil {
		return token, err
	}
	t.Logger.Info("submitted invocation",
		zap.String("endpoint", endpointName),
		zap.String("inference_id", token.InferenceId),
	)
	return token, nil
}

// SubmitInputs stages a sentiment request to the tier's input prefix and
// submits it by reference. This is the only place payload bytes touch this
// codebase; the raw Submit path stays reference-only.
func SubmitInputs(ctx context.Context, t tier.Tier, endpointName string, req sentiment.Request) (lib.InvocationToken, error) {
	payload, err := req.Marshal()
	if err != nil {
		return lib.InvocationToken{}, fmt.Errorf("%w: %v", lib.ErrConfiguration, err)
	}
	location := t.ModelStore.InputPath(fmt.Sprintf("%08x%08x.json", rand.Uint32(), rand.Uint32()))
	if err := t.S3Client.UploadURI(bytes.NewReader(payload), location); err != nil {
		return lib.InvocationToken{}, fmt.Errorf("failed to stage input payload: %v", err)
	}
	return Submit(ctx, t, endpointName, location, "application/json")
}

// SubmitMany submits a batch of already staged payloads concurrently,
// bounded by maxInFlightSubmits. Tokens come back indexed by input; no
// cross-invocation ordering is implied - results may land in any order.
func SubmitMany(ctx context.Context, t tier.Tier, endpointName string, inputLocations []string, contentType string) ([]lib.InvocationToken, error) {
	defer timer.Start("inference.submit_many").Stop()
	tokens := make([]lib.InvocationToken, len(inputLocations))
	sem := semaphore.NewWeighted(maxInFlightSubmits)
	g, ctx := errgroup.WithContext(ctx)
	for i, location := range inputLocations {
		i, location := i, location
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			token, err := Submit(ctx, t, endpointName, location, contentType)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			tokens[i] = token
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// PollResult checks the result locations once and resolves the invocation
// log when a terminal state is observed. Safe to call repeatedly.
func PollResult(ctx context.Context, t tier.Tier, token lib.InvocationToken) (lib.ResultState, error) {
	state, err := t.SagemakerClient.PollResult(ctx, token)
	if err != nil {
		return state, err
	}
	return state, resolve(t, token.InferenceId, state)
}

// AwaitResult blocks until the invocation settles or the timeout elapses,
// then resolves the invocation log.
func AwaitResult(ctx context.Context, t tier.Tier, token lib.InvocationToken, timeout time.Duration) (lib.ResultState, error) {
	state, err := t.SagemakerClient.AwaitResult(ctx, token, timeout)
	if rerr := resolve(t, token.InferenceId, state); rerr != nil {
		return state, rerr
	}
	return state, err
}

// Result looks up a tracked invocation by id and polls its current state.
func Result(ctx context.Context, t tier.Tier, inferenceId string) (invocation.Invocation, lib.ResultState, error) {
	inv, err := invocation.Get(t, inferenceId)
	if err != nil {
		return invocation.Invocation{}, lib.ResultState{}, err
	}
	state, err := PollResult(ctx, t, inv.Token())
	if err != nil {
		return inv, state, err
	}
	// Re-read so the caller sees the resolved status.
	inv, err = invocation.Get(t, inferenceId)
	return inv, state, err
}

func resolve(t tier.Tier, inferenceId string, state lib.ResultState) error {
	switch state.Status {
	case lib.ResultSucceeded:
		return invocation.Resolve(t, inferenceId, invocation.StatusCompleted)
	case lib.ResultFailed:
		return invocation.Resolve(t, inferenceId, invocation.StatusFailed)
	}
	return nil
}
