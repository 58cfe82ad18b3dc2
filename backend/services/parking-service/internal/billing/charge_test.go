package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCharge(t *testing.T) {
	cases := []struct {
		name     string
		minutes  int
		rate     string
		expected string
	}{
		{name: "zero minutes", minutes: 0, rate: "10", expected: "0"},
		{name: "one minute bills an hour", minutes: 1, rate: "10", expected: "10"},
		{name: "exactly one hour", minutes: 60, rate: "10", expected: "10"},
		{name: "just over an hour", minutes: 61, rate: "10", expected: "20"},
		{name: "two hours five minutes", minutes: 125, rate: "10", expected: "30"},
		{name: "fractional rate", minutes: 90, rate: "2.75", expected: "5.5"},
		{name: "free rate", minutes: 500, rate: "0", expected: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeCharge(tc.minutes, decimal.RequireFromString(tc.rate))
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tc.expected).Equal(got), "got %s", got)
		})
	}
}

func TestComputeChargeRejectsNegatives(t *testing.T) {
	_, err := ComputeCharge(-1, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = ComputeCharge(10, decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBillableHours(t *testing.T) {
	assert.Equal(t, 0, BillableHours(0))
	assert.Equal(t, 1, BillableHours(59))
	assert.Equal(t, 3, BillableHours(121))
}
