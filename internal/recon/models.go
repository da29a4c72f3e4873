package recon

import (
	"time"

	"gorm.io/gorm"

	"github.com/recondesk/recon-api/internal/types"
)

// Run statuses.
const (
	StatusCompleted         = "COMPLETED"
	StatusFailed            = "FAILED"
	StatusPendingAnnotation = "PENDING_ANNOTATION"
	StatusAnnotating        = "ANNOTATING"
	StatusAnnotated         = "ANNOTATED"
)

// ReconciliationRun records one reconciliation of a booking feed against
// a custody feed. The deterministic engine output is final once the run
// is COMPLETED; the annotation statuses only track the additive narrative
// pass.
type ReconciliationRun struct {
	gorm.Model         `json:"-"`
	RunID              string    `gorm:"uniqueIndex" json:"run_id"`
	ClientID           string    `json:"client_id"`
	Status             string    `json:"status"` // COMPLETED, FAILED, PENDING_ANNOTATION, ANNOTATING, ANNOTATED
	BookingRecordCount int       `json:"booking_record_count"`
	CustodyRecordCount int       `json:"custody_record_count"`
	MatchedPairCount   int       `json:"matched_pair_count"`
	BreakCount         int       `json:"break_count"`
	TotalEvents        int       `json:"total_events"`
	EventsWithBreaks   int       `json:"events_with_breaks"`
	AnnotatedCount     int       `json:"annotated_count"`
	AnnotationFailures int       `json:"annotation_failures"`
	AnnotationCostUSD  float64   `json:"annotation_cost_usd"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RunResponse is returned when a reconciliation run is created.
type RunResponse struct {
	RunID              string                      `json:"run_id"`
	Status             string                      `json:"status"`
	BookingRecordCount int                         `json:"booking_record_count"`
	CustodyRecordCount int                         `json:"custody_record_count"`
	MatchedPairCount   int                         `json:"matched_pair_count"`
	BreakCount         int                         `json:"break_count"`
	Summary            types.ReconciliationSummary `json:"summary"`
	Timestamp          time.Time                   `json:"timestamp"`
}
