package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"health-triage/internal/consultation"
)

// DecodeError means the service answered but the body was not a triage result.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decoding triage response: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

type triageClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewTriageClient returns a client for the triage endpoint. A zero timeout
// leaves the call unbounded.
func NewTriageClient(endpoint string, timeout time.Duration) consultation.TriageClient {
	return &triageClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type triageRequest struct {
	Symptoms string `json:"symptoms"`
}

// Submit makes exactly one attempt; symptoms are sent as given.
func (c *triageClient) Submit(ctx context.Context, symptoms string) (*consultation.TriageResult, error) {
	jsonBody, err := json.Marshal(triageRequest{Symptoms: symptoms})
	if err != nil {
		return nil, errors.Wrap(err, "encoding triage request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &TransportError{Service: "triage", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := do(c.httpClient, req, "triage")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var result consultation.TriageResult
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if result.MedicalFlags == nil {
		result.MedicalFlags = []string{}
	}
	if result.FirstAid == nil {
		result.FirstAid = []string{}
	}
	return &result, nil
}
