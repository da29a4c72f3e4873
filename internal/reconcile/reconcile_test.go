package reconcile_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recondesk/recon-api/internal/reconcile"
	"github.com/recondesk/recon-api/internal/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// cleanBooking and cleanCustody build an internally consistent matched
// pair: quantity 20,000 at 1.50 gross 30,000, 20% tax, identical FX and
// payment dates.
func cleanBooking(event string) types.BookingRecord {
	return types.BookingRecord{
		EventID:           event,
		ISIN:              "US0378331005",
		InstrumentName:    "Apple Inc",
		AccountID:         "ACC-1001",
		NominalQuantity:   dec("20000"),
		RatePerUnit:       dec("1.5"),
		GrossAmountQC:     dec("30000"),
		NetAmountQC:       dec("24000"),
		WithholdingTax:    dec("6000"),
		LocalTax:          dec("0"),
		TotalTaxRate:      dec("20"),
		QuotationCurrency: "EUR",
		FXRate:            dec("1.0845"),
		ExDate:            "2026-09-01",
		PaymentDate:       "2026-09-15",
	}
}

func cleanCustody(event string) types.CustodyRecord {
	return types.CustodyRecord{
		EventID:         event,
		ISIN:            "US0378331005",
		InstrumentName:  "Apple Inc",
		AccountID:       "ACC-1001",
		NominalBasis:    dec("20000"),
		HoldingQuantity: dec("20000"),
		LoanQuantity:    dec("0"),
		RatePerUnit:     dec("1.5"),
		GrossAmount:     dec("30000"),
		NetAmountQC:     dec("24000"),
		TaxAmount:       dec("6000"),
		TaxRate:         dec("20"),
		FXRate:          dec("1.0845"),
		Currency:        "EUR",
		ExDate:          "2026-09-01",
		PaymentDate:     "2026-09-15",
	}
}

func kinds(breaks []types.Break) []types.BreakKind {
	out := make([]types.BreakKind, len(breaks))
	for i := range breaks {
		out[i] = breaks[i].Kind
	}
	return out
}

func TestReconcile_CleanMatch(t *testing.T) {
	breaks := reconcile.Reconcile(
		[]types.BookingRecord{cleanBooking("EVT-1")},
		[]types.CustodyRecord{cleanCustody("EVT-1")},
	)
	assert.Empty(t, breaks, "a clean pair must produce zero breaks, got %v", kinds(breaks))
}

func TestReconcile_SecuritiesLending(t *testing.T) {
	// Booking expects income on the full nominal of 25,000; the custodian
	// paid on 23,000 because 2,000 units were out on loan.
	booking := cleanBooking("EVT-1")
	booking.NominalQuantity = dec("25000")
	booking.GrossAmountQC = dec("37500")
	booking.NetAmountQC = dec("30000")
	booking.WithholdingTax = dec("7500")

	custody := cleanCustody("EVT-1")
	custody.NominalBasis = dec("25000")
	custody.HoldingQuantity = dec("23000")
	custody.LoanQuantity = dec("2000")
	custody.GrossAmount = dec("34500")
	custody.NetAmountQC = dec("27600")
	custody.TaxAmount = dec("6900")

	breaks := reconcile.Reconcile(
		[]types.BookingRecord{booking},
		[]types.CustodyRecord{custody},
	)

	require.Len(t, breaks, 1, "expected exactly one QUANTITY break, got %v", kinds(breaks))
	brk := breaks[0]
	assert.Equal(t, types.BreakQuantity, brk.Kind)
	assert.True(t, brk.Difference.Equal(dec("2000")), "difference = %s", brk.Difference)
	require.True(t, brk.DifferencePct.Valid)
	assert.True(t, brk.DifferencePct.Decimal.Equal(dec("8")), "difference_pct = %s", brk.DifferencePct.Decimal)
}

func TestReconcile_TaxTreatyMismatch(t *testing.T) {
	// Booking withheld at 22%, the custodian applied the 20% treaty rate.
	// Net amounts differ as a consequence but precedence suppresses the
	// downstream AMOUNT and TAX_AMOUNT breaks.
	booking := cleanBooking("EVT-1")
	booking.TotalTaxRate = dec("22")
	booking.WithholdingTax = dec("6600")
	booking.NetAmountQC = dec("23400")

	custody := cleanCustody("EVT-1")

	breaks := reconcile.Reconcile(
		[]types.BookingRecord{booking},
		[]types.CustodyRecord{custody},
	)

	require.Len(t, breaks, 1, "expected exactly one TAX_RATE break, got %v", kinds(breaks))
	brk := breaks[0]
	assert.Equal(t, types.BreakTaxRate, brk.Kind)
	assert.True(t, brk.Difference.Equal(dec("2")), "difference = %s", brk.Difference)
}

func TestReconcile_MissingCustodyRecord(t *testing.T) {
	booking := cleanBooking("EVT-9")

	breaks := reconcile.Reconcile(
		[]types.BookingRecord{booking},
		nil,
	)

	require.Len(t, breaks, 1)
	brk := breaks[0]
	assert.Equal(t, types.BreakMissingRecord, brk.Kind)
	assert.False(t, brk.CustodyValue.Valid)
	require.True(t, brk.BookingValue.Valid)
	assert.True(t, brk.Difference.Equal(booking.GrossAmountQC))
}

func TestReconcile_QuantityToleranceBoundary(t *testing.T) {
	atBoundary := cleanBooking("EVT-1")
	atBoundary.NominalQuantity = dec("20001")
	atBoundary.GrossAmountQC = atBoundary.NominalQuantity.Mul(atBoundary.RatePerUnit)
	atBoundary.WithholdingTax = atBoundary.GrossAmountQC.Mul(dec("0.2"))

	breaks := reconcile.Reconcile(
		[]types.BookingRecord{atBoundary},
		[]types.CustodyRecord{cleanCustody("EVT-1")},
	)
	for _, brk := range breaks {
		assert.NotEqual(t, types.BreakQuantity, brk.Kind,
			"a difference of exactly one unit must not fire QUANTITY")
	}

	overBoundary := cleanBooking("EVT-1")
	overBoundary.NominalQuantity = dec("20001.000001")
	overBoundary.GrossAmountQC = overBoundary.NominalQuantity.Mul(overBoundary.RatePerUnit)
	overBoundary.WithholdingTax = overBoundary.GrossAmountQC.Mul(dec("0.2"))

	breaks = reconcile.Reconcile(
		[]types.BookingRecord{overBoundary},
		[]types.CustodyRecord{cleanCustody("EVT-1")},
	)
	assert.Contains(t, kinds(breaks), types.BreakQuantity)
}

func TestReconcile_PrecedenceGating(t *testing.T) {
	// A quantity discrepancy mechanically shifts gross, tax and net; only
	// the root QUANTITY break may surface.
	booking := cleanBooking("EVT-1")
	booking.NominalQuantity = dec("30000")
	booking.GrossAmountQC = dec("45000")
	booking.WithholdingTax = dec("9000")
	booking.NetAmountQC = dec("36000")

	breaks := reconcile.Reconcile(
		[]types.BookingRecord{booking},
		[]types.CustodyRecord{cleanCustody("EVT-1")},
	)

	got := kinds(breaks)
	assert.Contains(t, got, types.BreakQuantity)
	assert.NotContains(t, got, types.BreakGrossAmount)
	assert.NotContains(t, got, types.BreakAmount)
	assert.NotContains(t, got, types.BreakTaxAmount)
}

func TestReconcile_CalculationError(t *testing.T) {
	// The booking system reports a gross that its own quantity and rate
	// do not support.
	booking := cleanBooking("EVT-1")
	booking.GrossAmountQC = dec("31000")

	breaks := reconcile.Reconcile(
		[]types.BookingRecord{booking},
		[]types.CustodyRecord{cleanCustody("EVT-1")},
	)

	require.Len(t, breaks, 1, "got %v", kinds(breaks))
	brk := breaks[0]
	assert.Equal(t, types.BreakCalculationError, brk.Kind)
	assert.Equal(t, types.SourceBooking, brk.Source)
	assert.True(t, brk.Difference.Equal(dec("1000")))
}

func TestReconcile_FXDifference(t *testing.T) {
	custody := cleanCustody("EVT-1")
	custody.FXRate = dec("1.0851") // 6 bps apart

	breaks := reconcile.Reconcile(
		[]types.BookingRecord{cleanBooking("EVT-1")},
		[]types.CustodyRecord{custody},
	)

	require.Len(t, breaks, 1, "got %v", kinds(breaks))
	assert.Equal(t, types.BreakFXDifference, breaks[0].Kind)

	// 5 bps exactly stays inside tolerance.
	custody.FXRate = dec("1.0850")
	breaks = reconcile.Reconcile(
		[]types.BookingRecord{cleanBooking("EVT-1")},
		[]types.CustodyRecord{custody},
	)
	assert.Empty(t, breaks)
}

func TestReconcile_DateMismatch(t *testing.T) {
	custody := cleanCustody("EVT-1")
	custody.PaymentDate = "2026-09-16"

	breaks := reconcile.Reconcile(
		[]types.BookingRecord{cleanBooking("EVT-1")},
		[]types.CustodyRecord{custody},
	)

	require.Len(t, breaks, 1, "got %v", kinds(breaks))
	brk := breaks[0]
	assert.Equal(t, types.BreakDateMismatch, brk.Kind)
	assert.Equal(t, "2026-09-15", brk.BookingDetail)
	assert.Equal(t, "2026-09-16", brk.CustodyDetail)
	assert.False(t, brk.DifferencePct.Valid)

	// A date missing on one side is not a break.
	custody.PaymentDate = ""
	breaks = reconcile.Reconcile(
		[]types.BookingRecord{cleanBooking("EVT-1")},
		[]types.CustodyRecord{custody},
	)
	assert.Empty(t, breaks)
}

func TestReconcile_RestitutionMismatch(t *testing.T) {
	custody := cleanCustody("EVT-1")
	custody.RestitutionAmount = dec("150")

	breaks := reconcile.Reconcile(
		[]types.BookingRecord{cleanBooking("EVT-1")},
		[]types.CustodyRecord{custody},
	)

	require.Len(t, breaks, 1, "got %v", kinds(breaks))
	assert.Equal(t, types.BreakRestitution, breaks[0].Kind)

	// Expected restitution on the booking side silences the check.
	booking := cleanBooking("EVT-1")
	booking.RestitutionRate = dec("15")
	breaks = reconcile.Reconcile(
		[]types.BookingRecord{booking},
		[]types.CustodyRecord{custody},
	)
	assert.Empty(t, breaks)
}

func TestReconcile_Deterministic(t *testing.T) {
	bookings := []types.BookingRecord{
		cleanBooking("EVT-1"),
		cleanBooking("EVT-2"),
		cleanBooking("EVT-3"),
	}
	bookings[1].NominalQuantity = dec("25000")
	bookings[1].GrossAmountQC = dec("37500")
	bookings[1].WithholdingTax = dec("7500")
	bookings[2].EventID = "EVT-3"

	custodies := []types.CustodyRecord{
		cleanCustody("EVT-1"),
		cleanCustody("EVT-2"),
		cleanCustody("EVT-4"),
	}
	custodies[2].EventID = "EVT-4"

	first := reconcile.Reconcile(bookings, custodies)
	second := reconcile.Reconcile(bookings, custodies)

	require.Equal(t, len(first), len(second))
	assert.Equal(t, first, second, "repeated runs must produce identical break lists")
}

func TestSummarize(t *testing.T) {
	bookings := []types.BookingRecord{
		cleanBooking("EVT-1"),
		cleanBooking("EVT-2"),
		cleanBooking("EVT-2"), // second account, same event
		cleanBooking("EVT-3"),
	}
	breaks := []types.Break{
		{EventID: "EVT-1", Kind: types.BreakQuantity},
		{EventID: "EVT-1", Kind: types.BreakDateMismatch},
		{EventID: "EVT-3", Kind: types.BreakMissingRecord, Severity: "HIGH"},
	}

	summary := reconcile.Summarize(breaks, bookings)

	assert.Equal(t, 3, summary.TotalEvents)
	assert.Equal(t, 2, summary.EventsWithBreaks)
	assert.Equal(t, 3, summary.TotalBreaks)
	assert.Equal(t, 1, summary.BreaksByKind[types.BreakQuantity])
	assert.Equal(t, 1, summary.BreaksByKind[types.BreakDateMismatch])
	assert.Equal(t, 1, summary.BreaksByKind[types.BreakMissingRecord])
	assert.Equal(t, map[string]int{"HIGH": 1}, summary.BreaksBySeverity)
}

func TestSummarize_Empty(t *testing.T) {
	summary := reconcile.Summarize(nil, nil)
	assert.Equal(t, 0, summary.TotalEvents)
	assert.Equal(t, 0, summary.TotalBreaks)
	assert.Empty(t, summary.BreaksByKind)
	assert.Nil(t, summary.BreaksBySeverity)
}
