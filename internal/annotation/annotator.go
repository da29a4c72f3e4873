// Package annotation attaches the narrative assessment (severity, root
// cause, explanation, recommendation) to breaks by calling an external
// text-generation service once per break. The collaborator only explains
// pre-computed values; it is never asked to compute or alter a numeric
// field, and a failed call leaves the break intact without narrative
// fields.
package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/recondesk/recon-api/internal/types"
)

// Annotator is the capability object handed to the annotation step. The
// caller constructs one and passes it down; there is no package-level
// client.
type Annotator interface {
	Annotate(ctx context.Context, brk types.Break) (*types.Annotation, error)
}

// Client calls the narrative service over HTTP, one JSON request per
// break.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a narrative service client with the given request
// timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// annotationRequest carries only the deterministic fields of a break.
type annotationRequest struct {
	EventID        string `json:"event_id"`
	ISIN           string `json:"isin"`
	InstrumentName string `json:"instrument_name"`
	BreakType      string `json:"break_type"`
	Source         string `json:"source,omitempty"`
	BookingValue   string `json:"booking_value,omitempty"`
	CustodyValue   string `json:"custody_value,omitempty"`
	BookingDetail  string `json:"booking_detail,omitempty"`
	CustodyDetail  string `json:"custody_detail,omitempty"`
	Difference     string `json:"difference"`
	DifferencePct  string `json:"difference_pct,omitempty"`
}

// Annotate requests a narrative assessment for one break.
func (c *Client) Annotate(ctx context.Context, brk types.Break) (*types.Annotation, error) {
	payload := annotationRequest{
		EventID:        brk.EventID,
		ISIN:           brk.ISIN,
		InstrumentName: brk.InstrumentName,
		BreakType:      string(brk.Kind),
		Source:         brk.Source,
		BookingDetail:  brk.BookingDetail,
		CustodyDetail:  brk.CustodyDetail,
		Difference:     brk.Difference.String(),
	}
	if brk.BookingValue.Valid {
		payload.BookingValue = brk.BookingValue.Decimal.String()
	}
	if brk.CustodyValue.Valid {
		payload.CustodyValue = brk.CustodyValue.Decimal.String()
	}
	if brk.DifferencePct.Valid {
		payload.DifferencePct = brk.DifferencePct.Decimal.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal annotation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/annotations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build annotation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("annotation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("annotation service returned status %d", resp.StatusCode)
	}

	var annotation types.Annotation
	if err := json.NewDecoder(resp.Body).Decode(&annotation); err != nil {
		return nil, fmt.Errorf("failed to decode annotation response: %w", err)
	}
	if annotation.Confidence < 0 || annotation.Confidence > 1 {
		return nil, fmt.Errorf("annotation confidence %f out of range", annotation.Confidence)
	}

	return &annotation, nil
}
