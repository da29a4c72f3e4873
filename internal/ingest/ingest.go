// Package ingest parses the two tabular feeds into canonical records.
// Field lookup is header-name-driven, so column order is irrelevant and
// missing columns degrade to defaults: numeric fields to zero, strings
// to empty. A garbled number is deliberately treated as zero rather than
// an error; the engine surfaces the fallout as FIELD_INCONSISTENCY or
// CALCULATION_ERROR breaks instead of aborting the run.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/recondesk/recon-api/internal/types"
)

// ErrEmptyInput signals a feed with fewer than two lines (header plus at
// least one data row). The only fatal parse condition.
var ErrEmptyInput = errors.New("input file has no data rows")

// row gives header-name access to one CSV record. Header names are
// matched case-insensitively.
type row map[string]string

// ParseBookingFile reads the internal booking feed.
func ParseBookingFile(r io.Reader) ([]types.BookingRecord, error) {
	rows, err := readTable(r)
	if err != nil {
		return nil, err
	}

	records := make([]types.BookingRecord, 0, len(rows))
	for _, rw := range rows {
		records = append(records, types.BookingRecord{
			EventID:            rw.str("event_id"),
			ISIN:               rw.str("isin"),
			InstrumentName:     rw.str("instrument_name"),
			AccountID:          firstAccount(rw.str("accounts")),
			NominalQuantity:    rw.num("nominal_quantity"),
			RatePerUnit:        rw.num("rate_per_unit"),
			GrossAmountQC:      rw.num("gross_amount_quotation"),
			NetAmountQC:        rw.num("net_amount_quotation"),
			GrossAmountRC:      rw.num("gross_amount_reporting"),
			NetAmountRC:        rw.num("net_amount_reporting"),
			WithholdingTax:     rw.num("withholding_tax"),
			LocalTax:           rw.num("local_tax"),
			TotalTaxRate:       rw.num("total_tax_rate"),
			QuotationCurrency:  rw.str("quotation_currency"),
			SettlementCurrency: rw.str("settlement_currency"),
			FXRate:             rw.num("fx_rate"),
			ExDate:             rw.str("ex_date"),
			PaymentDate:        rw.str("payment_date"),
			RestitutionRate:    rw.num("restitution_rate"),
		})
	}
	return records, nil
}

// ParseCustodyFile reads the custodian feed.
func ParseCustodyFile(r io.Reader) ([]types.CustodyRecord, error) {
	rows, err := readTable(r)
	if err != nil {
		return nil, err
	}

	records := make([]types.CustodyRecord, 0, len(rows))
	for _, rw := range rows {
		records = append(records, types.CustodyRecord{
			EventID:           rw.str("event_id"),
			ISIN:              rw.str("isin"),
			InstrumentName:    rw.str("instrument_name"),
			AccountID:         firstAccount(rw.str("accounts")),
			NominalBasis:      rw.num("nominal_basis"),
			HoldingQuantity:   rw.num("holding_quantity"),
			LoanQuantity:      rw.num("loan_quantity"),
			RatePerUnit:       rw.num("rate_per_unit"),
			GrossAmount:       rw.num("gross_amount"),
			NetAmountQC:       rw.num("net_amount_quotation"),
			NetAmountSC:       rw.num("net_amount_settlement"),
			TaxAmount:         rw.num("tax_amount"),
			TaxRate:           rw.num("tax_rate"),
			FXRate:            rw.num("fx_rate"),
			CrossCurrency:     parseBool(rw.str("cross_currency")),
			Currency:          rw.str("currency"),
			ExDate:            rw.str("ex_date"),
			PaymentDate:       rw.str("payment_date"),
			RestitutionAmount: rw.num("restitution_amount"),
		})
	}
	return records, nil
}

// readTable reads the whole CSV and maps each data row by header name.
func readTable(r io.Reader) ([]row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	lines, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(lines) < 2 {
		return nil, ErrEmptyInput
	}

	header := make([]string, len(lines[0]))
	for i, name := range lines[0] {
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	rows := make([]row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rw := make(row, len(header))
		for i, name := range header {
			if i < len(line) {
				rw[name] = strings.TrimSpace(line[i])
			}
		}
		rows = append(rows, rw)
	}
	return rows, nil
}

func (r row) str(name string) string {
	return r[name]
}

// num coerces a field to a decimal, defaulting to zero for absent or
// unparseable values. Thousands separators are stripped first.
func (r row) num(name string) decimal.Decimal {
	raw := strings.ReplaceAll(r[name], ",", "")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// firstAccount takes the first entry of a possibly comma-separated
// accounts field.
func firstAccount(accounts string) string {
	first, _, _ := strings.Cut(accounts, ",")
	return strings.TrimSpace(first)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}
