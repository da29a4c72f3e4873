package types

import (
	"github.com/shopspring/decimal"
)

// BookingRecord is the internal booking system's view of one income event
// on one account. Amounts are reported in the quotation currency of the
// instrument and in the firm's reporting currency.
type BookingRecord struct {
	EventID            string          `json:"event_id"`
	ISIN               string          `json:"isin"`
	InstrumentName     string          `json:"instrument_name"`
	AccountID          string          `json:"account_id"`
	NominalQuantity    decimal.Decimal `json:"nominal_quantity"`
	RatePerUnit        decimal.Decimal `json:"rate_per_unit"`
	GrossAmountQC      decimal.Decimal `json:"gross_amount_quotation"`
	NetAmountQC        decimal.Decimal `json:"net_amount_quotation"`
	GrossAmountRC      decimal.Decimal `json:"gross_amount_reporting"`
	NetAmountRC        decimal.Decimal `json:"net_amount_reporting"`
	WithholdingTax     decimal.Decimal `json:"withholding_tax"`
	LocalTax           decimal.Decimal `json:"local_tax"`
	TotalTaxRate       decimal.Decimal `json:"total_tax_rate"` // percentage
	QuotationCurrency  string          `json:"quotation_currency"`
	SettlementCurrency string          `json:"settlement_currency"`
	FXRate             decimal.Decimal `json:"fx_rate"` // quotation -> reporting
	ExDate             string          `json:"ex_date"`
	PaymentDate        string          `json:"payment_date"`
	RestitutionRate    decimal.Decimal `json:"restitution_rate"` // expected reclaim percentage
}

// CustodyRecord is the custodian's view of the same event. The holding
// quantity is the nominal basis minus any quantity out on loan.
type CustodyRecord struct {
	EventID           string          `json:"event_id"`
	ISIN              string          `json:"isin"`
	InstrumentName    string          `json:"instrument_name"`
	AccountID         string          `json:"account_id"`
	NominalBasis      decimal.Decimal `json:"nominal_basis"`
	HoldingQuantity   decimal.Decimal `json:"holding_quantity"`
	LoanQuantity      decimal.Decimal `json:"loan_quantity"`
	RatePerUnit       decimal.Decimal `json:"rate_per_unit"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	NetAmountQC       decimal.Decimal `json:"net_amount_quotation"`
	NetAmountSC       decimal.Decimal `json:"net_amount_settlement"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	TaxRate           decimal.Decimal `json:"tax_rate"` // percentage
	FXRate            decimal.Decimal `json:"fx_rate"`
	CrossCurrency     bool            `json:"cross_currency"`
	Currency          string          `json:"currency"`
	ExDate            string          `json:"ex_date"`
	PaymentDate       string          `json:"payment_date"`
	RestitutionAmount decimal.Decimal `json:"restitution_amount"`
}

// MatchKey pairs records across the two feeds. Two records with the same
// key on opposite sides are a matched pair.
type MatchKey struct {
	EventID   string
	ISIN      string
	AccountID string
}

// BookingKey derives the match key from a booking record.
func BookingKey(r BookingRecord) MatchKey {
	return MatchKey{EventID: r.EventID, ISIN: r.ISIN, AccountID: r.AccountID}
}

// CustodyKey derives the match key from a custody record.
func CustodyKey(r CustodyRecord) MatchKey {
	return MatchKey{EventID: r.EventID, ISIN: r.ISIN, AccountID: r.AccountID}
}
