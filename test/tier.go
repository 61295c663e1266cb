package test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/samber/mo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"saffron/lib/ftypes"
	"saffron/modelstore"
	"saffron/s3"
	"saffron/sagemaker"
	"saffron/sns"
	"saffron/tier"
)

const TestBucket = "saffron-test"

// Tier returns a tier to be used in tests: SQLite instead of MySQL, and
// every AWS client pointed at an in-process fake. Poll intervals are cut to
// milliseconds so await loops finish quickly.
func Tier(t *testing.T) (tier.Tier, *FakeAWS) {
	rand.Seed(time.Now().UnixNano())
	tierID := ftypes.RealmID(rand.Uint32())

	conn, err := defaultDB(tierID)
	require.NoError(t, err)

	fake := NewFakeAWS()
	sess := fake.Session()
	logger := zap.NewNop()

	smArgs := sagemaker.SagemakerArgs{
		Region:                 "us-west-2",
		SagemakerExecutionRole: "arn:aws:iam::123456789012:role/test-execution-role",
		SagemakerInstanceType:  "ml.m5.xlarge",
		SagemakerInstanceCount: 1,
		EndpointPollInterval:   10 * time.Millisecond,
		ResultPollInterval:     5 * time.Millisecond,
	}
	snsArgs := sns.SnsArgs{Region: "us-west-2", SnsTopicPrefix: "saffron-test"}
	msArgs := modelstore.ModelStoreArgs{
		ModelStoreS3Bucket:     TestBucket,
		ModelStoreEndpointName: "test-sentiment-endpoint",
	}

	tr := tier.Tier{
		ID:              tierID,
		DB:              conn,
		Clock:           clock.New(),
		Logger:          logger,
		S3Client:        s3.NewClientFromSession(s3.S3Args{Region: "us-west-2"}, sess),
		SagemakerClient: sagemaker.NewClientFromSession(smArgs, logger, clock.New(), sess),
		SnsClient:       mo.Some(sns.NewClientFromSession(snsArgs, sess)),
		ModelStore:      modelstore.NewModelStore(msArgs, tierID),
		Args: tier.TierArgs{
			SagemakerArgs:  smArgs,
			SnsArgs:        snsArgs,
			ModelStoreArgs: msArgs,
			TierID:         tierID,
			Dev:            true,
		},
	}
	t.Cleanup(func() {
		Teardown(tr)
		fake.Close()
	})
	return tr, fake
}

func Teardown(tr tier.Tier) {
	_ = tr.DB.Teardown()
}
