package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/models"
	"parkinglot/backend/services/parking-service/internal/service"
)

// SettingsOperations reads and updates owner settings.
type SettingsOperations interface {
	Settings(ctx context.Context, ownerID string) (models.OwnerSettings, error)
	Update(ctx context.Context, ownerID string, update service.SettingsUpdate) (models.OwnerSettings, error)
}

// SettingsHandlers serves /api/settings.
type SettingsHandlers struct {
	settings SettingsOperations
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSettingsHandlers builds handlers.
func NewSettingsHandlers(settings SettingsOperations, logger *zap.Logger) *SettingsHandlers {
	return &SettingsHandlers{settings: settings, validate: newValidator(), logger: logger}
}

type settingsRequest struct {
	HourlyRate      *decimal.Decimal `json:"hourlyRate" validate:"omitempty,gte=0"`
	Currency        *string          `json:"currency" validate:"omitempty,iso4217"`
	AutoCalculate   *bool            `json:"autoCalculate"`
	WhatsAppEnabled *bool            `json:"whatsappEnabled"`
	WhatsAppNumber  *string          `json:"whatsappNumber" validate:"omitempty,max=32"`
}

// Get handles GET /api/settings.
func (h *SettingsHandlers) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	settings, err := h.settings.Settings(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, settings, "")
}

// Update handles PUT /api/settings. Omitted fields keep their value.
func (h *SettingsHandlers) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.settings.Update(r.Context(), owner, service.SettingsUpdate{
		HourlyRate:      req.HourlyRate,
		Currency:        req.Currency,
		AutoCalculate:   req.AutoCalculate,
		WhatsAppEnabled: req.WhatsAppEnabled,
		WhatsAppNumber:  req.WhatsAppNumber,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, updated, "Settings updated successfully")
}

func (r *settingsRequest) normalize() {
	if r.Currency == nil {
		return
	}
	c := strings.ToUpper(strings.TrimSpace(*r.Currency))
	r.Currency = &c
}
