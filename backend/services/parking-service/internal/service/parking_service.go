package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/billing"
	"parkinglot/backend/services/parking-service/internal/clock"
	"parkinglot/backend/services/parking-service/internal/models"
	"parkinglot/backend/services/parking-service/internal/notify"
	"parkinglot/backend/services/parking-service/internal/repository"
)

// Realtime event names.
const (
	EventVehicleEntered = "vehicle-entered"
	EventVehicleExited  = "vehicle-exited"
)

// MaxVehicleNumberLength bounds a normalised plate.
const MaxVehicleNumberLength = 20

const defaultHistoryTimeout = 2 * time.Second

// VehicleEnteredEvent is broadcast after an entry.
type VehicleEnteredEvent struct {
	SessionID     string    `json:"sessionId"`
	VehicleNumber string    `json:"vehicleNumber"`
	Timestamp     time.Time `json:"timestamp"`
}

// VehicleExitedEvent is broadcast after an exit.
type VehicleExitedEvent struct {
	SessionID       string           `json:"sessionId"`
	VehicleNumber   string           `json:"vehicleNumber"`
	Timestamp       time.Time        `json:"timestamp"`
	DurationMinutes int              `json:"durationMinutes"`
	Amount          *decimal.Decimal `json:"amount"`
}

// EntryInput describes a vehicle arriving.
type EntryInput struct {
	VehicleNumber string
	ImageURL      *string
	Timestamp     *time.Time
}

// ExitInput describes a vehicle leaving.
type ExitInput struct {
	VehicleNumber string
	ImageURL      *string
	Timestamp     *time.Time
}

// ChargeInput either overrides the amount or the hourly rate of a completed session.
type ChargeInput struct {
	SessionID  string
	Amount     *decimal.Decimal
	HourlyRate *decimal.Decimal
}

// ReceiptResult reports whether the receipt reached the provider.
type ReceiptResult struct {
	Delivered bool `json:"delivered"`
}

// ParkingDeps wires the lifecycle service.
type ParkingDeps struct {
	Sessions       SessionStore
	History        HistoryStore
	Settings       SettingsProvider
	Receipts       ReceiptDispatcher
	Broadcaster    Broadcaster
	Recorder       Recorder
	Clock          clock.Clock
	Logger         *zap.Logger
	HistoryTimeout time.Duration
}

// ParkingService drives the entry, exit, charge and receipt transitions.
type ParkingService struct {
	sessions       SessionStore
	history        HistoryStore
	settings       SettingsProvider
	receipts       ReceiptDispatcher
	broadcaster    Broadcaster
	recorder       Recorder
	clock          clock.Clock
	logger         *zap.Logger
	historyTimeout time.Duration
}

// NewParkingService builds service.
func NewParkingService(deps ParkingDeps) *ParkingService {
	s := &ParkingService{
		sessions:       deps.Sessions,
		history:        deps.History,
		settings:       deps.Settings,
		receipts:       deps.Receipts,
		broadcaster:    deps.Broadcaster,
		recorder:       deps.Recorder,
		clock:          deps.Clock,
		logger:         deps.Logger,
		historyTimeout: deps.HistoryTimeout,
	}
	if s.broadcaster == nil {
		s.broadcaster = nopBroadcaster{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.historyTimeout <= 0 {
		s.historyTimeout = defaultHistoryTimeout
	}
	return s
}

// RecordEntry opens an active session for the vehicle.
func (s *ParkingService) RecordEntry(ctx context.Context, ownerID string, input EntryInput) (*models.ParkingSession, error) {
	vehicle, err := NormalizeVehicleNumber(input.VehicleNumber)
	if err != nil {
		return nil, err
	}
	entryTime := s.clock.Now()
	if input.Timestamp != nil {
		entryTime = input.Timestamp.UTC()
	}

	session := &models.ParkingSession{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		VehicleNumber: vehicle,
		EntryTime:     entryTime,
		Status:        models.SessionStatusActive,
		EntryImageURL: cleanURL(input.ImageURL),
	}
	if err := s.sessions.CreateActive(ctx, session); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, newError(KindConflict, "vehicle already has an active parking session")
		}
		return nil, fmt.Errorf("record entry: %w", err)
	}
	s.recorder.SessionEntered()
	s.logger.Info("vehicle entered",
		zap.String("owner_id", ownerID),
		zap.String("session_id", session.ID),
		zap.String("vehicle_number", vehicle),
	)

	s.bestEffort("vehicle_history", func() {
		hctx, cancel := context.WithTimeout(ctx, s.historyTimeout)
		defer cancel()
		if err := s.history.RecordVisit(hctx, ownerID, vehicle, entryTime); err != nil {
			s.logger.Warn("failed to update vehicle history",
				zap.String("owner_id", ownerID),
				zap.String("vehicle_number", vehicle),
				zap.Error(err),
			)
			s.recorder.SideEffectFailed("vehicle_history")
		}
	})
	s.bestEffort("broadcast", func() {
		s.broadcaster.Publish(ctx, ownerID, EventVehicleEntered, VehicleEnteredEvent{
			SessionID:     session.ID,
			VehicleNumber: vehicle,
			Timestamp:     entryTime,
		})
	})
	return session, nil
}

// RecordExit closes the most recent active session of the vehicle and prices it
// when the owner has auto calculation enabled.
func (s *ParkingService) RecordExit(ctx context.Context, ownerID string, input ExitInput) (*models.ParkingSession, error) {
	vehicle, err := NormalizeVehicleNumber(input.VehicleNumber)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindActive(ctx, ownerID, vehicle)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "no active parking session found for this vehicle")
		}
		return nil, fmt.Errorf("record exit: %w", err)
	}

	exitTime := s.clock.Now()
	if input.Timestamp != nil {
		exitTime = input.Timestamp.UTC()
	}
	if exitTime.Before(session.EntryTime) {
		return nil, newError(KindValidation, "exit time must not be before entry time")
	}
	duration := int(exitTime.Sub(session.EntryTime) / time.Minute)

	settings, err := s.settings.Settings(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("record exit: load settings: %w", err)
	}

	session.ExitTime = &exitTime
	session.ExitImageURL = cleanURL(input.ImageURL)
	session.DurationMinutes = &duration
	session.Amount = nil
	session.AmountType = nil
	if settings.AutoChargeEnabled() {
		amount, err := billing.ComputeCharge(duration, settings.HourlyRate)
		if err != nil {
			return nil, newError(KindValidation, "%s", err.Error())
		}
		amount = amount.Round(2)
		amountType := models.AmountTypeAuto
		session.Amount = &amount
		session.AmountType = &amountType
	}

	if err := s.sessions.Complete(ctx, session); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "no active parking session found for this vehicle")
		}
		return nil, fmt.Errorf("record exit: %w", err)
	}

	amountType := ""
	if session.AmountType != nil {
		amountType = string(*session.AmountType)
	}
	s.recorder.SessionExited(amountType)
	s.logger.Info("vehicle exited",
		zap.String("owner_id", ownerID),
		zap.String("session_id", session.ID),
		zap.String("vehicle_number", vehicle),
		zap.Int("duration_minutes", duration),
	)

	s.bestEffort("broadcast", func() {
		s.broadcaster.Publish(ctx, ownerID, EventVehicleExited, VehicleExitedEvent{
			SessionID:       session.ID,
			VehicleNumber:   vehicle,
			Timestamp:       exitTime,
			DurationMinutes: duration,
			Amount:          session.Amount,
		})
	})
	return session, nil
}

// CalculateCharge sets the amount of a completed session, either from a manual
// amount or from the effective hourly rate. Repeated calls overwrite the amount.
func (s *ParkingService) CalculateCharge(ctx context.Context, ownerID string, input ChargeInput) (*models.ParkingSession, error) {
	session, err := s.GetSession(ctx, ownerID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, newError(KindInvalidState, "charge can only be calculated for completed sessions")
	}

	var (
		amount     decimal.Decimal
		amountType models.AmountType
	)
	if input.Amount != nil {
		if input.Amount.IsNegative() {
			return nil, newError(KindValidation, "amount must not be negative")
		}
		amount = *input.Amount
		amountType = models.AmountTypeManual
	} else {
		rate, err := s.effectiveRate(ctx, ownerID, input.HourlyRate)
		if err != nil {
			return nil, err
		}
		if session.DurationMinutes == nil {
			return nil, newError(KindInvalidState, "session duration is not known")
		}
		amount, err = billing.ComputeCharge(*session.DurationMinutes, rate)
		if err != nil {
			return nil, newError(KindValidation, "%s", err.Error())
		}
		amountType = models.AmountTypeAuto
	}
	// Stored as NUMERIC(12,2).
	amount = amount.Round(2)

	updated, err := s.sessions.UpdateCharge(ctx, ownerID, session.ID, amount, amountType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "parking session not found")
		}
		return nil, fmt.Errorf("calculate charge: %w", err)
	}
	s.recorder.ChargeCalculated(string(amountType))
	s.logger.Info("charge calculated",
		zap.String("owner_id", ownerID),
		zap.String("session_id", session.ID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("amount_type", string(amountType)),
	)
	return updated, nil
}

func (s *ParkingService) effectiveRate(ctx context.Context, ownerID string, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil {
		if override.IsNegative() {
			return decimal.Zero, newError(KindValidation, "hourly rate must not be negative")
		}
		if override.IsPositive() {
			return *override, nil
		}
	}
	settings, err := s.settings.Settings(ctx, ownerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("calculate charge: load settings: %w", err)
	}
	if !settings.HourlyRate.IsPositive() {
		return decimal.Zero, newError(KindConfig, "hourly rate not configured")
	}
	return settings.HourlyRate, nil
}

// SendReceipt delivers the receipt of a completed session. A provider failure
// is reported as Delivered=false rather than an error.
func (s *ParkingService) SendReceipt(ctx context.Context, ownerID, sessionID, recipient string) (ReceiptResult, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ReceiptResult{}, newError(KindValidation, "recipient phone is required")
	}
	session, err := s.GetSession(ctx, ownerID, sessionID)
	if err != nil {
		return ReceiptResult{}, err
	}
	if !session.Receiptable() {
		return ReceiptResult{}, newError(KindInvalidState, "receipt requires a completed session with exit time, duration and amount")
	}

	settings, err := s.settings.Settings(ctx, ownerID)
	if err != nil {
		return ReceiptResult{}, fmt.Errorf("send receipt: load settings: %w", err)
	}
	receipt := notify.Receipt{
		VehicleNumber:   session.VehicleNumber,
		EntryTime:       session.EntryTime,
		ExitTime:        *session.ExitTime,
		DurationMinutes: *session.DurationMinutes,
		Amount:          *session.Amount,
		Currency:        settings.Currency,
	}
	if !s.receipts.SendReceipt(ctx, recipient, receipt) {
		s.logger.Warn("receipt not delivered",
			zap.String("owner_id", ownerID),
			zap.String("session_id", session.ID),
		)
		return ReceiptResult{Delivered: false}, nil
	}

	if err := s.sessions.MarkReceiptSent(ctx, ownerID, session.ID, s.clock.Now()); err != nil {
		return ReceiptResult{}, fmt.Errorf("send receipt: mark sent: %w", err)
	}
	return ReceiptResult{Delivered: true}, nil
}

// GetSession returns one session of the owner.
func (s *ParkingService) GetSession(ctx context.Context, ownerID, sessionID string) (*models.ParkingSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, newError(KindValidation, "session id is required")
	}
	session, err := s.sessions.FindByID(ctx, ownerID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "parking session not found")
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// VehicleHistory returns the visit aggregate of a vehicle.
func (s *ParkingService) VehicleHistory(ctx context.Context, ownerID, vehicleNumber string) (*models.VehicleHistory, error) {
	vehicle, err := NormalizeVehicleNumber(vehicleNumber)
	if err != nil {
		return nil, err
	}
	h, err := s.history.Get(ctx, ownerID, vehicle)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "no visit history for this vehicle")
		}
		return nil, fmt.Errorf("vehicle history: %w", err)
	}
	return h, nil
}

// RebuildVehicleHistory recomputes the visit aggregates of an owner from completed sessions.
func (s *ParkingService) RebuildVehicleHistory(ctx context.Context, ownerID string) (int, error) {
	n, err := s.history.Rebuild(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("rebuild vehicle history: %w", err)
	}
	s.logger.Info("vehicle history rebuilt", zap.String("owner_id", ownerID), zap.Int("vehicles", n))
	return n, nil
}

// bestEffort runs a side effect that must never fail or panic the caller.
func (s *ParkingService) bestEffort(effect string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("side effect panicked", zap.String("effect", effect), zap.Any("panic", r))
			s.recorder.SideEffectFailed(effect)
		}
	}()
	fn()
}

// NormalizeVehicleNumber trims and upper-cases a plate and checks its length.
func NormalizeVehicleNumber(raw string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return "", newError(KindValidation, "vehicle number is required")
	}
	if len([]rune(v)) > MaxVehicleNumberLength {
		return "", newError(KindValidation, "vehicle number must be at most %d characters", MaxVehicleNumberLength)
	}
	return v, nil
}

func cleanURL(raw *string) *string {
	if raw == nil {
		return nil
	}
	v := strings.TrimSpace(*raw)
	if v == "" {
		return nil
	}
	return &v
}
