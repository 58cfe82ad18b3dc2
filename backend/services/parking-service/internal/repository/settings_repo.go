package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parkinglot/backend/services/parking-service/internal/models"
)

// SettingsRepository stores owner settings in postgres.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository returns repository.
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the settings row of an owner.
func (r *SettingsRepository) Get(ctx context.Context, ownerID string) (*models.OwnerSettings, error) {
	const query = `
		SELECT owner_id, hourly_rate, currency, auto_calculate, whatsapp_enabled, whatsapp_number, updated_at
		FROM owner_settings
		WHERE owner_id = $1
	`
	var (
		s      models.OwnerSettings
		number sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&s.OwnerID,
		&s.HourlyRate,
		&s.Currency,
		&s.AutoCalculate,
		&s.WhatsAppEnabled,
		&number,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if number.Valid {
		v := number.String
		s.WhatsAppNumber = &v
	}
	return &s, nil
}

// Upsert creates or replaces the settings row of an owner.
func (r *SettingsRepository) Upsert(ctx context.Context, s *models.OwnerSettings) error {
	const query = `
		INSERT INTO owner_settings (owner_id, hourly_rate, currency, auto_calculate, whatsapp_enabled, whatsapp_number, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (owner_id) DO UPDATE
		SET hourly_rate = EXCLUDED.hourly_rate,
		    currency = EXCLUDED.currency,
		    auto_calculate = EXCLUDED.auto_calculate,
		    whatsapp_enabled = EXCLUDED.whatsapp_enabled,
		    whatsapp_number = EXCLUDED.whatsapp_number,
		    updated_at = NOW()
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.OwnerID,
		s.HourlyRate,
		s.Currency,
		s.AutoCalculate,
		s.WhatsAppEnabled,
		s.WhatsAppNumber,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
