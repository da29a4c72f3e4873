// Package reconcile implements the deterministic matching and
// break-detection engine: it pairs records from the booking and custody
// feeds, recomputes gross/tax/net from each side's base fields, and
// classifies discrepancies into typed, tolerance-aware breaks.
//
// The engine is pure: no I/O, no shared state, identical output for
// identical input. Matched pairs are classified independently of each
// other; the only ordering dependency is the precedence gating inside a
// single pair.
package reconcile

import (
	"github.com/recondesk/recon-api/internal/types"
)

// Reconcile pairs the two feeds and returns every detected break:
// MISSING_RECORD residuals from matching plus the classification output
// for each matched pair, in feed order.
func Reconcile(bookings []types.BookingRecord, custodies []types.CustodyRecord) []types.Break {
	pairs, breaks := matchRecords(bookings, custodies)
	for _, p := range pairs {
		breaks = append(breaks, classifyPair(p.Booking, p.Custody)...)
	}
	return breaks
}

// Summarize tallies a run's breaks against the booking feed it came from.
func Summarize(breaks []types.Break, bookings []types.BookingRecord) types.ReconciliationSummary {
	return TallyBreaks(breaks, CountDistinctEvents(bookings))
}

// CountDistinctEvents returns the number of distinct event identifiers
// in the booking feed.
func CountDistinctEvents(bookings []types.BookingRecord) int {
	seen := make(map[string]struct{}, len(bookings))
	for _, b := range bookings {
		seen[b.EventID] = struct{}{}
	}
	return len(seen)
}

// TallyBreaks aggregates break counts by kind and severity. Severity
// buckets only count breaks the annotation step has reached, so the map
// stays empty for a run that was never annotated.
func TallyBreaks(breaks []types.Break, totalEvents int) types.ReconciliationSummary {
	summary := types.ReconciliationSummary{
		TotalEvents:  totalEvents,
		TotalBreaks:  len(breaks),
		BreaksByKind: make(map[types.BreakKind]int),
	}

	eventsWithBreaks := make(map[string]struct{})
	for i := range breaks {
		brk := &breaks[i]
		eventsWithBreaks[brk.EventID] = struct{}{}
		summary.BreaksByKind[brk.Kind]++
		if brk.Severity != "" {
			if summary.BreaksBySeverity == nil {
				summary.BreaksBySeverity = make(map[string]int)
			}
			summary.BreaksBySeverity[brk.Severity]++
		}
	}
	summary.EventsWithBreaks = len(eventsWithBreaks)

	return summary
}
