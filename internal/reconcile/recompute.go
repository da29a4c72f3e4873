package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/recondesk/recon-api/internal/types"
)

// recomputed holds the gross/tax/net figures derived from one side's own
// base fields. These, not the reported amounts, are the authoritative
// values for cross-side comparison; the reported amounts are only checked
// against them to catch internal calculation errors in the source system.
type recomputed struct {
	Gross decimal.Decimal
	Tax   decimal.Decimal
	Net   decimal.Decimal
}

func recomputeBooking(b types.BookingRecord) recomputed {
	gross := b.NominalQuantity.Mul(b.RatePerUnit)
	tax := b.WithholdingTax.Add(b.LocalTax)
	return recomputed{Gross: gross, Tax: tax, Net: gross.Sub(tax)}
}

func recomputeCustody(c types.CustodyRecord) recomputed {
	gross := effectiveQuantity(c).Mul(c.RatePerUnit)
	tax := c.TaxAmount // already an aggregate on the custody side
	return recomputed{Gross: gross, Tax: tax, Net: gross.Sub(tax)}
}

// effectiveQuantity is the quantity the custodian actually paid on: the
// holding quantity when reported, falling back to the nominal basis when
// the holding column is absent (which normalization records as zero).
func effectiveQuantity(c types.CustodyRecord) decimal.Decimal {
	if !c.HoldingQuantity.IsZero() {
		return c.HoldingQuantity
	}
	return c.NominalBasis
}
