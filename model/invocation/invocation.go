package invocation

import (
	"fmt"
	"time"

	lib "saffron/lib/sagemaker"
	"saffron/tier"
)

// Status values for one tracked invocation. Transitions are strictly
// submitted -> completed | failed; terminal rows never change again.
const (
	StatusSubmitted = "submitted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Invocation struct {
	InferenceId     string `db:"inference_id"`
	EndpointName    string `db:"endpoint_name"`
	InputLocation   string `db:"input_location"`
	OutputLocation  string `db:"output_location"`
	FailureLocation string `db:"failure_location"`
	ContentType     string `db:"content_type"`
	Status          string `db:"status"`
	SubmittedAt     int64  `db:"submitted_at"`
	ResolvedAt      int64  `db:"resolved_at"`
}

func (inv Invocation) Token() lib.InvocationToken {
	return lib.InvocationToken{
		InferenceId:     inv.InferenceId,
		EndpointName:    inv.EndpointName,
		OutputLocation:  inv.OutputLocation,
		FailureLocation: inv.FailureLocation,
	}
}

func Insert(tier tier.Tier, token lib.InvocationToken, inputLocation, contentType string) error {
	stmt := `
		INSERT INTO invocation_log (
			inference_id,
			endpoint_name,
			input_location,
			output_location,
			failure_location,
			content_type,
			status,
			submitted_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?
		)
	`
	_, err := tier.DB.Exec(stmt,
		token.InferenceId,
		token.EndpointName,
		inputLocation,
		token.OutputLocation,
		token.FailureLocation,
		contentType,
		StatusSubmitted,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create invocation entry in db: %v", err)
	}
	return nil
}

func Get(tier tier.Tier, inferenceId string) (Invocation, error) {
	var invs []Invocation
	err := tier.DB.Select(&invs, `
		SELECT *
		FROM invocation_log
		WHERE inference_id=?
	`, inferenceId)
	if err != nil {
		return Invocation{}, fmt.Errorf("failed to get invocation: %v", err)
	}
	if len(invs) == 0 {
		return Invocation{}, fmt.Errorf("%w: invocation '%s'", lib.ErrNotFound, inferenceId)
	}
	return invs[0], nil
}

// Resolve marks an invocation terminal. Resolving an already terminal row is
// a no-op so that a poll and a notification racing each other both succeed.
func Resolve(tier tier.Tier, inferenceId, status string) error {
	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("'%s' is not a terminal invocation status", status)
	}
	stmt := `
		UPDATE invocation_log
		SET status=?, resolved_at=?
		WHERE inference_id=? AND status=?
	`
	_, err := tier.DB.Exec(stmt, status, time.Now().Unix(), inferenceId, StatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to resolve invocation: %v", err)
	}
	return nil
}

func ListByEndpoint(tier tier.Tier, endpointName string, limit uint) ([]Invocation, error) {
	var invs []Invocation
	err := tier.DB.Select(&invs, `
		SELECT *
		FROM invocation_log
		WHERE endpoint_name=?
		ORDER BY submitted_at DESC
		LIMIT ?
	`, endpointName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %v", err)
	}
	return invs, nil
}
