package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BreakKind tags the category of a detected discrepancy.
type BreakKind string

const (
	BreakQuantity           BreakKind = "QUANTITY"
	BreakAmount             BreakKind = "AMOUNT"
	BreakTaxRate            BreakKind = "TAX_RATE"
	BreakTaxAmount          BreakKind = "TAX_AMOUNT"
	BreakGrossAmount        BreakKind = "GROSS_AMOUNT"
	BreakDividendRate       BreakKind = "DIVIDEND_RATE"
	BreakFieldInconsistency BreakKind = "FIELD_INCONSISTENCY"
	BreakCalculationError   BreakKind = "CALCULATION_ERROR"
	BreakFXDifference       BreakKind = "FX_DIFFERENCE"
	BreakDateMismatch       BreakKind = "DATE_MISMATCH"
	BreakRestitution        BreakKind = "RESTITUTION_MISMATCH"
	BreakMissingRecord      BreakKind = "MISSING_RECORD"
)

// Source values for single-sided breaks (field inconsistency, calculation
// errors). Cross-side breaks leave Source empty.
const (
	SourceBooking = "booking"
	SourceCustody = "custody"
)

// Break is one detected discrepancy between the booking and custody view
// of an event. BookingValue and CustodyValue hold the two compared values;
// for single-sided checks they hold the reported and recomputed value of
// the side named in Source. Non-numeric comparisons (dates) carry their
// values in BookingDetail/CustodyDetail and leave the decimals null.
//
// The narrative fields stay empty until the annotation step runs; that
// step never touches the deterministic fields.
type Break struct {
	gorm.Model     `json:"-"`
	BreakID        string              `gorm:"uniqueIndex" json:"break_id"`
	RunID          string              `gorm:"index" json:"run_id"`
	EventID        string              `json:"event_id"`
	ISIN           string              `json:"isin"`
	InstrumentName string              `json:"instrument_name"`
	Kind           BreakKind           `json:"break_type"`
	Source         string              `json:"source,omitempty"`
	BookingValue   decimal.NullDecimal `json:"booking_value"`
	CustodyValue   decimal.NullDecimal `json:"custody_value"`
	BookingDetail  string              `json:"booking_detail,omitempty"`
	CustodyDetail  string              `json:"custody_detail,omitempty"`
	Difference     decimal.Decimal     `json:"difference"`
	DifferencePct  decimal.NullDecimal `json:"difference_pct"`

	// Narrative annotation, populated by the external collaborator.
	Severity         string     `json:"severity,omitempty"`
	RootCause        string     `json:"root_cause,omitempty"`
	Explanation      string     `json:"explanation,omitempty"`
	Recommendation   string     `json:"recommendation,omitempty"`
	Confidence       *float64   `json:"confidence,omitempty"`
	RemediationClass string     `json:"remediation_class,omitempty"`
	AnnotatedAt      *time.Time `json:"annotated_at,omitempty"`
}

// Annotated reports whether the narrative step has run for this break.
func (b *Break) Annotated() bool {
	return b.AnnotatedAt != nil
}

// Annotation is the narrative collaborator's assessment of one break.
type Annotation struct {
	Severity         string  `json:"severity"`
	RootCause        string  `json:"root_cause"`
	Explanation      string  `json:"explanation"`
	Recommendation   string  `json:"recommendation"`
	Confidence       float64 `json:"confidence"`
	RemediationClass string  `json:"remediation_class"`
	CostUSD          float64 `json:"cost_usd"`
}

// ReconciliationSummary aggregates one run's breaks by kind and severity
// together with event coverage. Severity counts only cover breaks the
// annotation step has reached.
type ReconciliationSummary struct {
	TotalEvents      int               `json:"total_events"`
	EventsWithBreaks int               `json:"events_with_breaks"`
	TotalBreaks      int               `json:"total_breaks"`
	BreaksByKind     map[BreakKind]int `json:"breaks_by_type"`
	BreaksBySeverity map[string]int    `json:"breaks_by_severity,omitempty"`
}
