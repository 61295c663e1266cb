package sentiment

import (
	"encoding/json"
	"fmt"
)

// Request is the payload shape the Hugging Face inference container accepts
// for text-classification: one entry per line of text to classify.
type Request struct {
	Inputs []string `json:"inputs"`
}

// Prediction is one classified line: a label (e.g. POS/NEG/NEU for sentiment
// models) with the model's confidence.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (r Request) Marshal() ([]byte, error) {
	if len(r.Inputs) == 0 {
		return nil, fmt.Errorf("request has no inputs")
	}
	return json.Marshal(r)
}

// Decode parses the container's response: a JSON array with exactly one
// prediction per input line, order preserved. A count mismatch means the
// payload does not belong to the request being resolved - surfaced as an
// error rather than silently truncated.
func Decode(payload []byte, numInputs int) ([]Prediction, error) {
	var preds []Prediction
	if err := json.Unmarshal(payload, &preds); err != nil {
		return nil, fmt.Errorf("failed to parse predictions: %v", err)
	}
	if numInputs > 0 && len(preds) != numInputs {
		return nil, fmt.Errorf("got %d predictions for %d inputs", len(preds), numInputs)
	}
	for i, p := range preds {
		if p.Label == "" {
			return nil, fmt.Errorf("prediction %d has no label", i)
		}
		if p.Score < 0 || p.Score > 1 {
			return nil, fmt.Errorf("prediction %d has score %f outside [0, 1]", i, p.Score)
		}
	}
	return preds, nil
}
