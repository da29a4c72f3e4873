package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/recondesk/recon-api/internal/types"
)

// matchedPair is one booking record paired with its custody counterpart.
type matchedPair struct {
	Booking types.BookingRecord
	Custody types.CustodyRecord
}

// matchRecords pairs the two record sets on their match keys. Booking
// records without a custody counterpart and custody records never
// consumed by a booking record each produce a MISSING_RECORD break.
//
// Duplicate match keys on the custody side collapse last-write-wins in
// the lookup map, so only one custody record per key is retained. Known
// limitation for split bookings; see DESIGN.md.
func matchRecords(bookings []types.BookingRecord, custodies []types.CustodyRecord) ([]matchedPair, []types.Break) {
	custodyByKey := make(map[types.MatchKey]types.CustodyRecord, len(custodies))
	for _, c := range custodies {
		custodyByKey[types.CustodyKey(c)] = c
	}

	consumed := make(map[types.MatchKey]struct{}, len(custodies))
	pairs := make([]matchedPair, 0, len(bookings))
	var breaks []types.Break

	for _, b := range bookings {
		key := types.BookingKey(b)
		c, ok := custodyByKey[key]
		if !ok {
			breaks = append(breaks, missingCustodyBreak(b))
			continue
		}
		consumed[key] = struct{}{}
		pairs = append(pairs, matchedPair{Booking: b, Custody: c})
	}

	// Custody residuals, in feed order for determinism.
	for _, c := range custodies {
		if _, ok := consumed[types.CustodyKey(c)]; ok {
			continue
		}
		breaks = append(breaks, missingBookingBreak(c))
	}

	return pairs, breaks
}

func missingCustodyBreak(b types.BookingRecord) types.Break {
	return types.Break{
		EventID:        b.EventID,
		ISIN:           b.ISIN,
		InstrumentName: b.InstrumentName,
		Kind:           types.BreakMissingRecord,
		BookingValue:   decimal.NewNullDecimal(b.GrossAmountQC),
		Difference:     b.GrossAmountQC,
		DifferencePct:  decimal.NewNullDecimal(hundred),
	}
}

func missingBookingBreak(c types.CustodyRecord) types.Break {
	return types.Break{
		EventID:        c.EventID,
		ISIN:           c.ISIN,
		InstrumentName: c.InstrumentName,
		Kind:           types.BreakMissingRecord,
		CustodyValue:   decimal.NewNullDecimal(c.GrossAmount),
		Difference:     c.GrossAmount.Neg(),
		DifferencePct:  decimal.NewNullDecimal(hundred),
	}
}
