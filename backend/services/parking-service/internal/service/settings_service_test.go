package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/repository"
)

func newSettingsService() *SettingsService {
	return NewSettingsService(repository.NewMemoryStore().Settings(), SettingsDefaults{
		HourlyRate:    decimal.RequireFromString("5.00"),
		Currency:      "usd",
		AutoCalculate: true,
	}, zap.NewNop())
}

func TestSettingsDefaultsForUnknownOwner(t *testing.T) {
	got, err := newSettingsService().Settings(context.Background(), "new-owner")
	require.NoError(t, err)
	assert.Equal(t, "new-owner", got.OwnerID)
	assert.True(t, decimal.NewFromInt(5).Equal(got.HourlyRate))
	assert.Equal(t, "USD", got.Currency)
	assert.True(t, got.AutoCalculate)
	assert.False(t, got.WhatsAppEnabled)
}

func TestSettingsPartialUpdate(t *testing.T) {
	svc := newSettingsService()
	ctx := context.Background()

	rate := decimal.RequireFromString("12.345")
	currency := " inr "
	updated, err := svc.Update(ctx, owner, SettingsUpdate{HourlyRate: &rate, Currency: &currency})
	require.NoError(t, err)
	assert.Equal(t, "12.35", updated.HourlyRate.StringFixed(2))
	assert.Equal(t, "INR", updated.Currency)
	assert.True(t, updated.AutoCalculate)

	off := false
	updated, err = svc.Update(ctx, owner, SettingsUpdate{AutoCalculate: &off})
	require.NoError(t, err)
	assert.False(t, updated.AutoCalculate)
	assert.Equal(t, "INR", updated.Currency)

	stored, err := svc.Settings(ctx, owner)
	require.NoError(t, err)
	assert.False(t, stored.AutoCalculate)
	assert.False(t, stored.AutoChargeEnabled())
}

func TestSettingsUpdateValidation(t *testing.T) {
	svc := newSettingsService()
	ctx := context.Background()

	negative := decimal.NewFromInt(-1)
	_, err := svc.Update(ctx, owner, SettingsUpdate{HourlyRate: &negative})
	assert.ErrorIs(t, err, ErrValidation)

	bad := "RUPEE"
	_, err = svc.Update(ctx, owner, SettingsUpdate{Currency: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	on := true
	_, err = svc.Update(ctx, owner, SettingsUpdate{WhatsAppEnabled: &on})
	assert.ErrorIs(t, err, ErrValidation)

	number := "+919876543210"
	got, err := svc.Update(ctx, owner, SettingsUpdate{WhatsAppEnabled: &on, WhatsAppNumber: &number})
	require.NoError(t, err)
	require.NotNil(t, got.WhatsAppNumber)
	assert.Equal(t, number, *got.WhatsAppNumber)
}
