package modelstore

import (
	"fmt"

	"saffron/lib/ftypes"
)

type ModelStoreArgs struct {
	ModelStoreS3Bucket     string `arg:"--model-store-s3-bucket,env:MODEL_STORE_S3_BUCKET,help:S3 bucket for model artifacts and async payloads"`
	ModelStoreEndpointName string `arg:"--model-store-endpoint,env:MODEL_STORE_ENDPOINT,help:Name of the tier's async inference endpoint"`
}

// ModelStore owns the S3 layout of everything the tier's endpoint touches:
// model artifacts, staged async inputs, and the prefixes the service writes
// results and failures to. All locations are derived here so that nothing
// else in the codebase concatenates S3 paths by hand.
type ModelStore struct {
	s3Bucket     string
	endpointName string
	tierID       ftypes.RealmID
}

func NewModelStore(args ModelStoreArgs, tierID ftypes.RealmID) *ModelStore {
	return &ModelStore{
		s3Bucket:     args.ModelStoreS3Bucket,
		endpointName: args.ModelStoreEndpointName,
		tierID:       tierID,
	}
}

func (ms *ModelStore) EndpointName() string {
	return ms.endpointName
}

func (ms *ModelStore) S3Bucket() string {
	return ms.s3Bucket
}

func (ms *ModelStore) GetArtifactPath(fileName string) string {
	return fmt.Sprintf("s3://%s/t-%d/artifacts/%s", ms.s3Bucket, ms.tierID, fileName)
}

// InputPath is where async payloads get staged before submission by
// reference.
func (ms *ModelStore) InputPath(fileName string) string {
	return fmt.Sprintf("s3://%s/t-%d/async-inference/input/%s", ms.s3Bucket, ms.tierID, fileName)
}

// OutputPath is the prefix handed to the endpoint config; the service
// appends an opaque object name per invocation.
func (ms *ModelStore) OutputPath() string {
	return fmt.Sprintf("s3://%s/t-%d/async-inference/output", ms.s3Bucket, ms.tierID)
}

func (ms *ModelStore) FailurePath() string {
	return fmt.Sprintf("s3://%s/t-%d/async-inference/failure", ms.s3Bucket, ms.tierID)
}
