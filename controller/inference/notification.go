package inference

import (
	"fmt"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"

	"saffron/model/invocation"
	"saffron/tier"
)

// ProcessNotification ingests an async inference completion event delivered
// over the endpoint's SNS topics and resolves the invocation log, short-
// cutting polling. Both the raw event and the SNS HTTPS envelope (event
// nested as a JSON string under "Message") are accepted. Events for
// invocations this tier never submitted are logged and dropped - the topic
// is shared per endpoint, not per client.
func ProcessNotification(t tier.Tier, body []byte) (string, error) {
	event := body
	if envelopeType, err := jsonparser.GetString(body, "Type"); err == nil && envelopeType == "Notification" {
		message, err := jsonparser.GetString(body, "Message")
		if err != nil {
			return "", fmt.Errorf("sns envelope has no message: %v", err)
		}
		event = []byte(message)
	}

	inferenceId, err := jsonparser.GetString(event, "inferenceId")
	if err != nil {
		return "", fmt.Errorf("notification has no inferenceId: %v", err)
	}
	invocationStatus, err := jsonparser.GetString(event, "invocationStatus")
	if err != nil {
		return "", fmt.Errorf("notification has no invocationStatus: %v", err)
	}

	var status string
	switch invocationStatus {
	case "Completed":
		status = invocation.StatusCompleted
	case "Failed":
		status = invocation.StatusFailed
	default:
		return "", fmt.Errorf("unknown invocation status '%s'", invocationStatus)
	}

	if _, err := invocation.Get(t, inferenceId); err != nil {
		t.Logger.Info("dropping notification for unknown invocation",
			zap.String("inference_id", inferenceId), zap.Error(err))
		return inferenceId, nil
	}
	if err := invocation.Resolve(t, inferenceId, status); err != nil {
		return inferenceId, err
	}
	t.Logger.Info("resolved invocation from notification",
		zap.String("inference_id", inferenceId), zap.String("status", status))
	return inferenceId, nil
}
