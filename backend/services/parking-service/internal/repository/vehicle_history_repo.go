package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkinglot/backend/services/parking-service/internal/models"
)

// VehicleHistoryRepository maintains per-vehicle visit aggregates.
type VehicleHistoryRepository struct {
	db *sql.DB
}

// NewVehicleHistoryRepository returns repository.
func NewVehicleHistoryRepository(db *sql.DB) *VehicleHistoryRepository {
	return &VehicleHistoryRepository{db: db}
}

// RecordVisit counts one more visit and moves last_visit forward.
func (r *VehicleHistoryRepository) RecordVisit(ctx context.Context, ownerID, vehicleNumber string, at time.Time) error {
	const query = `
		INSERT INTO vehicle_history (owner_id, vehicle_number, total_visits, last_visit)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (owner_id, vehicle_number) DO UPDATE
		SET total_visits = vehicle_history.total_visits + 1,
		    last_visit = GREATEST(vehicle_history.last_visit, EXCLUDED.last_visit)
	`
	if _, err := r.db.ExecContext(ctx, query, ownerID, vehicleNumber, at); err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

// Get returns the aggregate of one vehicle.
func (r *VehicleHistoryRepository) Get(ctx context.Context, ownerID, vehicleNumber string) (*models.VehicleHistory, error) {
	const query = `
		SELECT owner_id, vehicle_number, total_visits, last_visit
		FROM vehicle_history
		WHERE owner_id = $1 AND vehicle_number = $2
	`
	var h models.VehicleHistory
	err := r.db.QueryRowContext(ctx, query, ownerID, vehicleNumber).
		Scan(&h.OwnerID, &h.VehicleNumber, &h.TotalVisits, &h.LastVisit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle history: %w", err)
	}
	return &h, nil
}

// Rebuild recomputes every aggregate of an owner from all recorded entries and
// returns the number of vehicles written.
func (r *VehicleHistoryRepository) Rebuild(ctx context.Context, ownerID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("rebuild vehicle history: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicle_history WHERE owner_id = $1`, ownerID); err != nil {
		return 0, fmt.Errorf("rebuild vehicle history: %w", err)
	}
	const insert = `
		INSERT INTO vehicle_history (owner_id, vehicle_number, total_visits, last_visit)
		SELECT owner_id, vehicle_number, COUNT(*), MAX(entry_time)
		FROM parking_sessions
		WHERE owner_id = $1
		GROUP BY owner_id, vehicle_number
	`
	result, err := tx.ExecContext(ctx, insert, ownerID)
	if err != nil {
		return 0, fmt.Errorf("rebuild vehicle history: %w", err)
	}
	written, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rebuild vehicle history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("rebuild vehicle history: %w", err)
	}
	return int(written), nil
}
