package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/recondesk/recon-api/internal/types"
)

// classifyPair runs the full break classification for one matched pair.
//
// Order matters: the custody side's internal field consistency is checked
// first, then each side's reported gross against its recomputed gross,
// then the primary cross-side comparisons (quantity, dividend rate, tax
// rate). The secondary amount comparisons are gated on the primary
// results so that one root discrepancy does not cascade into a break for
// every mechanically downstream figure.
func classifyPair(b types.BookingRecord, c types.CustodyRecord) []types.Break {
	var breaks []types.Break

	rb := recomputeBooking(b)
	rc := recomputeCustody(c)
	amountTol := amountTolerance(b.QuotationCurrency)

	if brk := checkFieldConsistency(b, c, amountTol); brk != nil {
		breaks = append(breaks, *brk)
	}
	breaks = append(breaks, checkCalculationIntegrity(b, c, rb, rc, amountTol)...)

	// Primary cross-side comparisons, each independent.
	var qtyFired, rateFired, taxRateFired bool

	custodyQty := effectiveQuantity(c)
	if exceeds(b.NominalQuantity, custodyQty, quantityTolerance) {
		qtyFired = true
		breaks = append(breaks, crossBreak(b, types.BreakQuantity, b.NominalQuantity, custodyQty))
	}
	if exceeds(b.RatePerUnit, c.RatePerUnit, rateTolerance) {
		rateFired = true
		breaks = append(breaks, crossBreak(b, types.BreakDividendRate, b.RatePerUnit, c.RatePerUnit))
	}
	if exceeds(b.TotalTaxRate, c.TaxRate, taxRateTolerance) {
		taxRateFired = true
		breaks = append(breaks, crossBreak(b, types.BreakTaxRate, b.TotalTaxRate, c.TaxRate))
	}

	// Secondary comparisons on the recomputed amounts, suppressed when a
	// primary break already explains the delta.
	if !qtyFired && !rateFired && exceeds(rb.Gross, rc.Gross, amountTol) {
		breaks = append(breaks, crossBreak(b, types.BreakGrossAmount, rb.Gross, rc.Gross))
	}
	if !qtyFired && !taxRateFired && exceeds(rb.Tax, rc.Tax, amountTol) {
		breaks = append(breaks, crossBreak(b, types.BreakTaxAmount, rb.Tax, rc.Tax))
	}
	if !qtyFired && !rateFired && !taxRateFired && exceeds(rb.Net, rc.Net, amountTol) {
		breaks = append(breaks, crossBreak(b, types.BreakAmount, rb.Net, rc.Net))
	}

	// Payment date, only when both sides report one.
	if b.PaymentDate != "" && c.PaymentDate != "" && b.PaymentDate != c.PaymentDate {
		breaks = append(breaks, types.Break{
			EventID:        b.EventID,
			ISIN:           b.ISIN,
			InstrumentName: b.InstrumentName,
			Kind:           types.BreakDateMismatch,
			BookingDetail:  b.PaymentDate,
			CustodyDetail:  c.PaymentDate,
		})
	}

	// FX rate, only when both sides report one. 5 basis points.
	if !b.FXRate.IsZero() && !c.FXRate.IsZero() && exceeds(b.FXRate, c.FXRate, fxTolerance) {
		breaks = append(breaks, crossBreak(b, types.BreakFXDifference, b.FXRate, c.FXRate))
	}

	// Restitution: the custodian reports reclaimed money the booking side
	// never expected. The reverse direction is deliberately not checked.
	if b.RestitutionRate.IsZero() && c.RestitutionAmount.IsPositive() {
		breaks = append(breaks, types.Break{
			EventID:        b.EventID,
			ISIN:           b.ISIN,
			InstrumentName: b.InstrumentName,
			Kind:           types.BreakRestitution,
			BookingValue:   decimal.NewNullDecimal(decimal.Zero),
			CustodyValue:   decimal.NewNullDecimal(c.RestitutionAmount),
			Difference:     c.RestitutionAmount.Neg(),
			DifferencePct:  decimal.NewNullDecimal(hundred),
		})
	}

	return breaks
}

// checkFieldConsistency flags a custody record whose nominal basis and
// holding+loan quantities disagree while its reported gross amount does
// not back the nominal basis either. A data-quality signal about one
// feed, not a cross-side break.
func checkFieldConsistency(b types.BookingRecord, c types.CustodyRecord, amountTol decimal.Decimal) *types.Break {
	if c.NominalBasis.IsZero() || c.HoldingQuantity.IsZero() {
		return nil
	}
	implied := c.HoldingQuantity.Add(c.LoanQuantity)
	if !exceeds(c.NominalBasis, implied, quantityTolerance) {
		return nil
	}
	if !exceeds(c.GrossAmount, c.NominalBasis.Mul(c.RatePerUnit), amountTol) {
		// The reported gross backs the nominal basis, so the quantity
		// columns merely disagree with each other; the cross-side checks
		// will surface any real impact.
		return nil
	}
	return &types.Break{
		EventID:        b.EventID,
		ISIN:           b.ISIN,
		InstrumentName: b.InstrumentName,
		Kind:           types.BreakFieldInconsistency,
		Source:         types.SourceCustody,
		BookingValue:   decimal.NewNullDecimal(c.NominalBasis),
		CustodyValue:   decimal.NewNullDecimal(implied),
		Difference:     c.NominalBasis.Sub(implied),
		DifferencePct:  decimal.NewNullDecimal(pctDiff(c.NominalBasis, implied)),
	}
}

// checkCalculationIntegrity compares each side's reported gross amount
// against that side's recomputed gross. A mismatch means the source
// system's own arithmetic is off, independent of the other side.
func checkCalculationIntegrity(b types.BookingRecord, c types.CustodyRecord, rb, rc recomputed, amountTol decimal.Decimal) []types.Break {
	var breaks []types.Break
	if exceeds(b.GrossAmountQC, rb.Gross, amountTol) {
		breaks = append(breaks, calculationBreak(b, types.SourceBooking, b.GrossAmountQC, rb.Gross))
	}
	if exceeds(c.GrossAmount, rc.Gross, amountTol) {
		breaks = append(breaks, calculationBreak(b, types.SourceCustody, c.GrossAmount, rc.Gross))
	}
	return breaks
}

// crossBreak builds a break for a booking-versus-custody comparison.
// Difference is booking minus custody; the percentage is relative to the
// booking value.
func crossBreak(b types.BookingRecord, kind types.BreakKind, bookingVal, custodyVal decimal.Decimal) types.Break {
	return types.Break{
		EventID:        b.EventID,
		ISIN:           b.ISIN,
		InstrumentName: b.InstrumentName,
		Kind:           kind,
		BookingValue:   decimal.NewNullDecimal(bookingVal),
		CustodyValue:   decimal.NewNullDecimal(custodyVal),
		Difference:     bookingVal.Sub(custodyVal),
		DifferencePct:  decimal.NewNullDecimal(pctDiff(bookingVal, custodyVal)),
	}
}

// calculationBreak compares one side's reported gross against its
// recomputed gross; the two value slots hold reported and recomputed.
func calculationBreak(b types.BookingRecord, source string, reported, recomputed decimal.Decimal) types.Break {
	return types.Break{
		EventID:        b.EventID,
		ISIN:           b.ISIN,
		InstrumentName: b.InstrumentName,
		Kind:           types.BreakCalculationError,
		Source:         source,
		BookingValue:   decimal.NewNullDecimal(reported),
		CustodyValue:   decimal.NewNullDecimal(recomputed),
		Difference:     reported.Sub(recomputed),
		DifferencePct:  decimal.NewNullDecimal(pctDiff(reported, recomputed)),
	}
}
