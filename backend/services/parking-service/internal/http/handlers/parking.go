package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/models"
	"parkinglot/backend/services/parking-service/internal/service"
)

// ParkingOperations is the session lifecycle the handlers drive.
type ParkingOperations interface {
	RecordEntry(ctx context.Context, ownerID string, input service.EntryInput) (*models.ParkingSession, error)
	RecordExit(ctx context.Context, ownerID string, input service.ExitInput) (*models.ParkingSession, error)
	CalculateCharge(ctx context.Context, ownerID string, input service.ChargeInput) (*models.ParkingSession, error)
	SendReceipt(ctx context.Context, ownerID, sessionID, recipient string) (service.ReceiptResult, error)
	GetSession(ctx context.Context, ownerID, sessionID string) (*models.ParkingSession, error)
	VehicleHistory(ctx context.Context, ownerID, vehicleNumber string) (*models.VehicleHistory, error)
	RebuildVehicleHistory(ctx context.Context, ownerID string) (int, error)
}

// DashboardQueries are the read models behind the dashboard.
type DashboardQueries interface {
	GetDashboardStats(ctx context.Context, ownerID string) (models.DashboardStats, error)
	SearchVehicles(ctx context.Context, ownerID, query string) ([]models.ParkingSession, error)
}

// ParkingHandlers serves /api/parking.
type ParkingHandlers struct {
	parking   ParkingOperations
	dashboard DashboardQueries
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewParkingHandlers builds handlers.
func NewParkingHandlers(parking ParkingOperations, dashboard DashboardQueries, logger *zap.Logger) *ParkingHandlers {
	return &ParkingHandlers{
		parking:   parking,
		dashboard: dashboard,
		validate:  newValidator(),
		logger:    logger,
	}
}

type movementRequest struct {
	VehicleNumber string     `json:"vehicleNumber" validate:"required,max=20"`
	ImageURL      *string    `json:"imageUrl" validate:"omitempty,url"`
	Timestamp     *time.Time `json:"timestamp"`
}

func (r *movementRequest) normalize() {
	if r.ImageURL != nil && strings.TrimSpace(*r.ImageURL) == "" {
		r.ImageURL = nil
	}
}

type chargeRequest struct {
	SessionID  string           `json:"sessionId" validate:"required,uuid"`
	Amount     *decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	HourlyRate *decimal.Decimal `json:"hourlyRate" validate:"omitempty,gt=0"`
}

type receiptRequest struct {
	SessionID      string `json:"sessionId" validate:"required,uuid"`
	RecipientPhone string `json:"recipientPhone" validate:"required,max=32"`
}

// Entry handles POST /api/parking/entry.
func (h *ParkingHandlers) Entry(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	session, err := h.parking.RecordEntry(r.Context(), owner, service.EntryInput{
		VehicleNumber: req.VehicleNumber,
		ImageURL:      req.ImageURL,
		Timestamp:     req.Timestamp,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, session, "Vehicle entry recorded")
}

// Exit handles POST /api/parking/exit.
func (h *ParkingHandlers) Exit(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	session, err := h.parking.RecordExit(r.Context(), owner, service.ExitInput{
		VehicleNumber: req.VehicleNumber,
		ImageURL:      req.ImageURL,
		Timestamp:     req.Timestamp,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, session, "Vehicle exit recorded")
}

// CalculateCharge handles POST /api/parking/calculate-charge.
func (h *ParkingHandlers) CalculateCharge(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req chargeRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	session, err := h.parking.CalculateCharge(r.Context(), owner, service.ChargeInput{
		SessionID:  req.SessionID,
		Amount:     req.Amount,
		HourlyRate: req.HourlyRate,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, session, "Charge calculated")
}

// SendReceipt handles POST /api/parking/send-receipt. The success flag carries delivery.
func (h *ParkingHandlers) SendReceipt(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req receiptRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	result, err := h.parking.SendReceipt(r.Context(), owner, req.SessionID, req.RecipientPhone)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if !result.Delivered {
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: "Receipt could not be delivered"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Receipt sent"})
}

// Dashboard handles GET /api/parking/dashboard.
func (h *ParkingHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	stats, err := h.dashboard.GetDashboardStats(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, stats, "")
}

// Search handles GET /api/parking/search?q=.
func (h *ParkingHandlers) Search(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	results, err := h.dashboard.SearchVehicles(r.Context(), owner, r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, results, "")
}

// Session handles GET /api/parking/sessions/{id}.
func (h *ParkingHandlers) Session(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "parking session not found")
		return
	}
	session, err := h.parking.GetSession(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, session, "")
}

// VehicleHistory handles GET /api/parking/vehicles/{vehicleNumber}/history.
func (h *ParkingHandlers) VehicleHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	history, err := h.parking.VehicleHistory(r.Context(), owner, chi.URLParam(r, "vehicleNumber"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, history, "")
}

// RebuildHistory handles POST /api/parking/vehicles/history/rebuild.
func (h *ParkingHandlers) RebuildHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	n, err := h.parking.RebuildVehicleHistory(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"vehicles": n}, "Vehicle history rebuilt")
}
