package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPctDiff(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		other string
		want  string
	}{
		{name: "both zero", base: "0", other: "0", want: "0"},
		{name: "zero base nonzero other", base: "0", other: "42.5", want: "100"},
		{name: "equal nonzero values", base: "123.45", other: "123.45", want: "0"},
		{name: "booking above custody", base: "25000", other: "23000", want: "8"},
		{name: "booking below custody", base: "20000", other: "22000", want: "-10"},
		{name: "negative base", base: "-100", other: "-50", want: "-50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pctDiff(decimal.RequireFromString(tt.base), decimal.RequireFromString(tt.other))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"pctDiff(%s, %s) = %s, want %s", tt.base, tt.other, got, tt.want)
		})
	}
}

func TestAmountTolerance(t *testing.T) {
	assert.True(t, amountTolerance("EUR").Equal(decimal.RequireFromString("0.01")))
	assert.True(t, amountTolerance("usd").Equal(decimal.RequireFromString("0.01")))
	assert.True(t, amountTolerance("JPY").Equal(decimal.NewFromInt(1)))
	assert.True(t, amountTolerance(" krw ").Equal(decimal.NewFromInt(1)))
	assert.True(t, amountTolerance("").Equal(decimal.RequireFromString("0.01")))
}

func TestExceeds(t *testing.T) {
	one := decimal.NewFromInt(1)

	// The boundary is inclusive: a difference of exactly the tolerance
	// does not fire.
	assert.False(t, exceeds(decimal.NewFromInt(25001), decimal.NewFromInt(25000), one))
	assert.True(t, exceeds(decimal.RequireFromString("25001.000001"), decimal.NewFromInt(25000), one))
	assert.True(t, exceeds(decimal.NewFromInt(25000), decimal.RequireFromString("25001.000001"), one))
}
