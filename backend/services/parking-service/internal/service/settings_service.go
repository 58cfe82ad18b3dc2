package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/models"
	"parkinglot/backend/services/parking-service/internal/repository"
)

// SettingsDefaults apply to owners without a stored settings row.
type SettingsDefaults struct {
	HourlyRate    decimal.Decimal
	Currency      string
	AutoCalculate bool
}

// SettingsUpdate is a partial update; nil fields keep their current value.
type SettingsUpdate struct {
	HourlyRate      *decimal.Decimal
	Currency        *string
	AutoCalculate   *bool
	WhatsAppEnabled *bool
	WhatsAppNumber  *string
}

// SettingsService reads and updates owner settings.
type SettingsService struct {
	repo     SettingsStore
	defaults SettingsDefaults
	logger   *zap.Logger
}

// NewSettingsService builds service.
func NewSettingsService(repo SettingsStore, defaults SettingsDefaults, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults.Currency = strings.ToUpper(strings.TrimSpace(defaults.Currency))
	return &SettingsService{repo: repo, defaults: defaults, logger: logger}
}

// Settings returns the stored settings or the defaults.
func (s *SettingsService) Settings(ctx context.Context, ownerID string) (models.OwnerSettings, error) {
	stored, err := s.repo.Get(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.OwnerSettings{
			OwnerID:       ownerID,
			HourlyRate:    s.defaults.HourlyRate,
			Currency:      s.defaults.Currency,
			AutoCalculate: s.defaults.AutoCalculate,
		}, nil
	}
	if err != nil {
		return models.OwnerSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return *stored, nil
}

// Update applies a partial update and stores the result.
func (s *SettingsService) Update(ctx context.Context, ownerID string, update SettingsUpdate) (models.OwnerSettings, error) {
	current, err := s.Settings(ctx, ownerID)
	if err != nil {
		return models.OwnerSettings{}, err
	}

	if update.HourlyRate != nil {
		if update.HourlyRate.IsNegative() {
			return models.OwnerSettings{}, newError(KindValidation, "hourly rate must not be negative")
		}
		current.HourlyRate = update.HourlyRate.Round(2)
	}
	if update.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*update.Currency))
		if len(currency) != 3 {
			return models.OwnerSettings{}, newError(KindValidation, "currency must be a 3-letter code")
		}
		current.Currency = currency
	}
	if update.AutoCalculate != nil {
		current.AutoCalculate = *update.AutoCalculate
	}
	if update.WhatsAppEnabled != nil {
		current.WhatsAppEnabled = *update.WhatsAppEnabled
	}
	if update.WhatsAppNumber != nil {
		number := strings.TrimSpace(*update.WhatsAppNumber)
		if number == "" {
			current.WhatsAppNumber = nil
		} else {
			current.WhatsAppNumber = &number
		}
	}
	if current.WhatsAppEnabled && current.WhatsAppNumber == nil {
		return models.OwnerSettings{}, newError(KindValidation, "whatsapp number is required when whatsapp is enabled")
	}

	current.OwnerID = ownerID
	if err := s.repo.Upsert(ctx, &current); err != nil {
		return models.OwnerSettings{}, fmt.Errorf("update settings: %w", err)
	}
	s.logger.Info("settings updated", zap.String("owner_id", ownerID))
	return current, nil
}
