package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"parkinglot/backend/services/parking-service/internal/models"
	"parkinglot/backend/services/parking-service/internal/notify"
)

// SessionStore is the storage contract used by the lifecycle and dashboard services.
type SessionStore interface {
	CreateActive(ctx context.Context, s *models.ParkingSession) error
	FindActive(ctx context.Context, ownerID, vehicleNumber string) (*models.ParkingSession, error)
	FindByID(ctx context.Context, ownerID, id string) (*models.ParkingSession, error)
	Complete(ctx context.Context, s *models.ParkingSession) error
	UpdateCharge(ctx context.Context, ownerID, id string, amount decimal.Decimal, amountType models.AmountType) (*models.ParkingSession, error)
	MarkReceiptSent(ctx context.Context, ownerID, id string, at time.Time) error
	ListCompletedExitedSince(ctx context.Context, ownerID string, since time.Time) ([]models.ParkingSession, error)
	CountActive(ctx context.Context, ownerID string) (int, error)
	CountActiveEnteredSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	ListRecent(ctx context.Context, ownerID string, limit int) ([]models.ParkingSession, error)
	SearchByVehicle(ctx context.Context, ownerID, term string, limit int) ([]models.ParkingSession, error)
}

// HistoryStore keeps the visit aggregate per vehicle.
type HistoryStore interface {
	RecordVisit(ctx context.Context, ownerID, vehicleNumber string, at time.Time) error
	Get(ctx context.Context, ownerID, vehicleNumber string) (*models.VehicleHistory, error)
	Rebuild(ctx context.Context, ownerID string) (int, error)
}

// SettingsStore persists owner settings.
type SettingsStore interface {
	Get(ctx context.Context, ownerID string) (*models.OwnerSettings, error)
	Upsert(ctx context.Context, s *models.OwnerSettings) error
}

// SettingsProvider resolves the effective settings of an owner.
type SettingsProvider interface {
	Settings(ctx context.Context, ownerID string) (models.OwnerSettings, error)
}

// ReceiptDispatcher delivers a receipt and reports whether it went out.
type ReceiptDispatcher interface {
	SendReceipt(ctx context.Context, to string, receipt notify.Receipt) bool
}

// Broadcaster pushes an event to the owner's live dashboards. Fire and forget.
type Broadcaster interface {
	Publish(ctx context.Context, ownerID, event string, payload interface{})
}

// Recorder receives lifecycle counters.
type Recorder interface {
	SessionEntered()
	SessionExited(amountType string)
	ChargeCalculated(amountType string)
	SideEffectFailed(effect string)
}

type nopRecorder struct{}

func (nopRecorder) SessionEntered() {}
func (nopRecorder) SessionExited(string) {}
func (nopRecorder) ChargeCalculated(string) {}
func (nopRecorder) SideEffectFailed(string) {}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(context.Context, string, string, interface{}) {}
