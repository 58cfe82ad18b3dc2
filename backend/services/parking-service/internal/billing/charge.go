// Package billing prices parking time.
package billing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidArgument is returned for negative durations or rates.
var ErrInvalidArgument = errors.New("billing: invalid argument")

// BillableHours rounds a duration up to whole hours. Zero minutes bill zero hours.
func BillableHours(durationMinutes int) int {
	return (durationMinutes + 59) / 60
}

// ComputeCharge returns ceil(durationMinutes/60) * hourlyRate.
func ComputeCharge(durationMinutes int, hourlyRate decimal.Decimal) (decimal.Decimal, error) {
	if durationMinutes < 0 {
		return decimal.Zero, errors.Join(ErrInvalidArgument, errors.New("duration must not be negative"))
	}
	if hourlyRate.IsNegative() {
		return decimal.Zero, errors.Join(ErrInvalidArgument, errors.New("hourly rate must not be negative"))
	}
	hours := decimal.NewFromInt(int64(BillableHours(durationMinutes)))
	return hours.Mul(hourlyRate), nil
}
