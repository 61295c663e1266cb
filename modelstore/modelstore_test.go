package modelstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	ms := NewModelStore(ModelStoreArgs{
		ModelStoreS3Bucket:     "saffron-models",
		ModelStoreEndpointName: "t-107-sentiment",
	}, 107)

	assert.Equal(t, "t-107-sentiment", ms.EndpointName())
	assert.Equal(t, "saffron-models", ms.S3Bucket())
	assert.Equal(t, "s3://saffron-models/t-107/artifacts/model.tar.gz", ms.GetArtifactPath("model.tar.gz"))
	assert.Equal(t, "s3://saffron-models/t-107/async-inference/input/req.json", ms.InputPath("req.json"))
	assert.Equal(t, "s3://saffron-models/t-107/async-inference/output", ms.OutputPath())
	assert.Equal(t, "s3://saffron-models/t-107/async-inference/failure", ms.FailurePath())
}
