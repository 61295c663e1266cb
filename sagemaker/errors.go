package sagemaker

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"

	lib "saffron/lib/sagemaker"
)

// classify maps AWS failures onto the error taxonomy callers branch on.
// Anything unrecognized passes through untouched, still wrapped with context
// by the caller.
func classify(err error) error {
	e, ok := err.(awserr.Error)
	if !ok {
		return err
	}
	switch e.Code() {
	case "ThrottlingException", "Throttling", "TooManyRequests",
		sagemakerruntime.ErrCodeServiceUnavailable, "ResourceLimitExceeded":
		// Queue or concurrency limits; the submission itself was fine.
		return lib.ErrCapacity
	case sagemakerruntime.ErrCodeModelNotReadyException:
		return lib.ErrNotReady
	case "ValidationException", sagemakerruntime.ErrCodeValidationError:
		msg := strings.ToLower(e.Message())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "could not find") {
			return lib.ErrNotFound
		}
		return lib.ErrConfiguration
	case sagemakerruntime.ErrCodeInternalDependencyException,
		sagemakerruntime.ErrCodeInternalFailure,
		sagemakerruntime.ErrCodeModelError:
		return err
	}
	return err
}
