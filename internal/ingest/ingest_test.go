package ingest

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bookingHeader = "event_id,isin,instrument_name,accounts,nominal_quantity,rate_per_unit," +
	"gross_amount_quotation,net_amount_quotation,withholding_tax,local_tax,total_tax_rate," +
	"quotation_currency,fx_rate,ex_date,payment_date,restitution_rate"

func TestParseBookingFile(t *testing.T) {
	feed := bookingHeader + "\n" +
		`EVT-1,US0378331005,Apple Inc,"ACC-1001,ACC-1002","25,000",1.5,"37,500.00","30,000.00",7500,0,20,EUR,1.0845,2026-09-01,2026-09-15,0`

	records, err := ParseBookingFile(strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "EVT-1", r.EventID)
	assert.Equal(t, "US0378331005", r.ISIN)
	assert.Equal(t, "ACC-1001", r.AccountID, "only the first account is kept")
	assert.True(t, r.NominalQuantity.Equal(decimal.NewFromInt(25000)),
		"thousands separators are stripped, got %s", r.NominalQuantity)
	assert.True(t, r.GrossAmountQC.Equal(decimal.RequireFromString("37500")))
	assert.True(t, r.TotalTaxRate.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "EUR", r.QuotationCurrency)
	assert.Equal(t, "2026-09-15", r.PaymentDate)
}

func TestParseBookingFile_HeaderDriven(t *testing.T) {
	// Column order does not matter and header names are matched
	// case-insensitively.
	feed := "ISIN,Event_ID,Nominal_Quantity\nUS0378331005,EVT-1,500\n"

	records, err := ParseBookingFile(strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "EVT-1", records[0].EventID)
	assert.Equal(t, "US0378331005", records[0].ISIN)
	assert.True(t, records[0].NominalQuantity.Equal(decimal.NewFromInt(500)))
	assert.True(t, records[0].RatePerUnit.IsZero(), "missing columns default to zero")
}

func TestParseBookingFile_GarbledNumberDefaultsToZero(t *testing.T) {
	feed := "event_id,nominal_quantity,rate_per_unit\nEVT-1,not-a-number,1.5\n"

	records, err := ParseBookingFile(strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].NominalQuantity.IsZero())
	assert.True(t, records[0].RatePerUnit.Equal(decimal.RequireFromString("1.5")))
}

func TestParseCustodyFile(t *testing.T) {
	feed := "event_id,isin,accounts,nominal_basis,holding_quantity,loan_quantity,rate_per_unit," +
		"gross_amount,tax_amount,tax_rate,fx_rate,cross_currency,currency,payment_date,restitution_amount\n" +
		"EVT-1,US0378331005,ACC-1001,25000,23000,2000,1.5,34500,6900,20,1.0845,yes,EUR,2026-09-15,0\n"

	records, err := ParseCustodyFile(strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "EVT-1", r.EventID)
	assert.True(t, r.NominalBasis.Equal(decimal.NewFromInt(25000)))
	assert.True(t, r.HoldingQuantity.Equal(decimal.NewFromInt(23000)))
	assert.True(t, r.LoanQuantity.Equal(decimal.NewFromInt(2000)))
	assert.True(t, r.CrossCurrency)
	assert.Equal(t, "EUR", r.Currency)
}

func TestParse_EmptyInput(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"header only": bookingHeader + "\n",
	}
	for name, feed := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBookingFile(strings.NewReader(feed))
			assert.ErrorIs(t, err, ErrEmptyInput)

			_, err = ParseCustodyFile(strings.NewReader(feed))
			assert.ErrorIs(t, err, ErrEmptyInput)
		})
	}
}

func TestParse_RaggedRows(t *testing.T) {
	// Short rows leave trailing columns at their defaults instead of
	// failing the run.
	feed := "event_id,isin,nominal_quantity\nEVT-1,US0378331005\n"

	records, err := ParseBookingFile(strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "EVT-1", records[0].EventID)
	assert.True(t, records[0].NominalQuantity.IsZero())
}

func TestFirstAccount(t *testing.T) {
	assert.Equal(t, "ACC-1", firstAccount("ACC-1,ACC-2,ACC-3"))
	assert.Equal(t, "ACC-1", firstAccount(" ACC-1 "))
	assert.Equal(t, "", firstAccount(""))
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "Yes", "y", "1"} {
		assert.True(t, parseBool(s), s)
	}
	for _, s := range []string{"", "false", "no", "0", "maybe"} {
		assert.False(t, parseBool(s), s)
	}
}
