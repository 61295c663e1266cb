package inference_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saffron/controller/inference"
	"saffron/model/invocation"
)

func completionEvent(inferenceId, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"awsRegion":"us-west-2","eventTime":"2022-06-15T12:00:00.000Z","inferenceId":"%s","invocationStatus":"%s","requestParameters":{"endpointName":"test-sentiment-endpoint"}}`,
		inferenceId, status))
}

func TestProcessNotification(t *testing.T) {
	tr, _, endpointName := liveEndpoint(t)

	token, err := inference.Submit(context.Background(), tr, endpointName, "s3://saffron-test/input/a.json", "application/json")
	require.NoError(t, err)

	id, err := inference.ProcessNotification(tr, completionEvent(token.InferenceId, "Completed"))
	assert.NoError(t, err)
	assert.Equal(t, token.InferenceId, id)

	inv, err := invocation.Get(tr, token.InferenceId)
	assert.NoError(t, err)
	assert.Equal(t, invocation.StatusCompleted, inv.Status)

	// a late duplicate (say, poll and notification racing) is a no-op
	_, err = inference.ProcessNotification(tr, completionEvent(token.InferenceId, "Failed"))
	assert.NoError(t, err)
	inv, err = invocation.Get(tr, token.InferenceId)
	assert.NoError(t, err)
	assert.Equal(t, invocation.StatusCompleted, inv.Status)
}

func TestProcessNotificationEnvelope(t *testing.T) {
	tr, _, endpointName := liveEndpoint(t)

	token, err := inference.Submit(context.Background(), tr, endpointName, "s3://saffron-test/input/a.json", "application/json")
	require.NoError(t, err)

	// the event arrives as a JSON string inside the SNS HTTPS envelope
	envelope, err := json.Marshal(map[string]string{
		"Type":     "Notification",
		"TopicArn": "arn:aws:sns:us-west-2:123456789012:test-sentiment-endpoint-error",
		"Message":  string(completionEvent(token.InferenceId, "Failed")),
	})
	require.NoError(t, err)

	id, err := inference.ProcessNotification(tr, envelope)
	assert.NoError(t, err)
	assert.Equal(t, token.InferenceId, id)

	inv, err := invocation.Get(tr, token.InferenceId)
	assert.NoError(t, err)
	assert.Equal(t, invocation.StatusFailed, inv.Status)
}

func TestProcessNotificationUnknownInvocation(t *testing.T) {
	tr, _, _ := liveEndpoint(t)

	// events for invocations submitted elsewhere are dropped, not errors
	id, err := inference.ProcessNotification(tr, completionEvent("someone-elses-inference", "Completed"))
	assert.NoError(t, err)
	assert.Equal(t, "someone-elses-inference", id)
}

func TestProcessNotificationMalformed(t *testing.T) {
	tr, _, _ := liveEndpoint(t)

	_, err := inference.ProcessNotification(tr, []byte(`{"no":"ids here"}`))
	assert.Error(t, err)
	_, err = inference.ProcessNotification(tr, completionEvent("inf-1", "Sideways"))
	assert.Error(t, err)
}
