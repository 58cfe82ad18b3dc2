package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	libdb "parkinglot/backend/libs/db"
	"parkinglot/backend/services/parking-service/internal/models"
)

const sessionColumns = `id, owner_id, vehicle_number, entry_time, exit_time, duration_minutes, amount, amount_type,
	status, receipt_sent, receipt_sent_at, entry_image_url, exit_image_url, created_at, updated_at`

// SessionRepository persists parking sessions in postgres.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateActive inserts an active session unless the owner already has one for the vehicle.
// The partial unique index on active sessions makes the check and insert one statement.
func (r *SessionRepository) CreateActive(ctx context.Context, s *models.ParkingSession) error {
	const query = `
		INSERT INTO parking_sessions (id, owner_id, vehicle_number, entry_time, status, entry_image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', $5, NOW(), NOW())
		ON CONFLICT (owner_id, vehicle_number) WHERE status = 'active' DO NOTHING
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.OwnerID,
		s.VehicleNumber,
		s.EntryTime,
		s.EntryImageURL,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) || libdb.IsUniqueViolation(err) {
		return ErrActiveSessionExists
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.Status = models.SessionStatusActive
	return nil
}

// FindActive returns the most recently entered active session of a vehicle.
func (r *SessionRepository) FindActive(ctx context.Context, ownerID, vehicleNumber string) (*models.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE owner_id = $1 AND vehicle_number = $2 AND status = 'active'
		ORDER BY entry_time DESC
		LIMIT 1`
	return r.queryOne(ctx, query, ownerID, vehicleNumber)
}

// FindByID returns a session owned by ownerID.
func (r *SessionRepository) FindByID(ctx context.Context, ownerID, id string) (*models.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE id = $1 AND owner_id = $2`
	return r.queryOne(ctx, query, id, ownerID)
}

// Complete writes the exit of a session that is still active.
func (r *SessionRepository) Complete(ctx context.Context, s *models.ParkingSession) error {
	const query = `
		UPDATE parking_sessions
		SET exit_time = $3,
		    exit_image_url = $4,
		    duration_minutes = $5,
		    amount = $6,
		    amount_type = $7,
		    status = 'completed',
		    updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status = 'active'
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.OwnerID,
		s.ExitTime,
		s.ExitImageURL,
		s.DurationMinutes,
		nullDecimal(s.Amount),
		nullAmountType(s.AmountType),
	).Scan(&s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	s.Status = models.SessionStatusCompleted
	return nil
}

// UpdateCharge overwrites the amount of a completed session.
func (r *SessionRepository) UpdateCharge(ctx context.Context, ownerID, id string, amount decimal.Decimal, amountType models.AmountType) (*models.ParkingSession, error) {
	query := `
		UPDATE parking_sessions
		SET amount = $3, amount_type = $4, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status = 'completed'
		RETURNING ` + sessionColumns
	return r.queryOne(ctx, query, id, ownerID, amount, string(amountType))
}

// MarkReceiptSent flags the receipt of a session as delivered.
func (r *SessionRepository) MarkReceiptSent(ctx context.Context, ownerID, id string, at time.Time) error {
	const query = `
		UPDATE parking_sessions
		SET receipt_sent = TRUE, receipt_sent_at = $3, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, ownerID, at)
	if err != nil {
		return fmt.Errorf("mark receipt sent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark receipt sent: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCompletedExitedSince returns completed sessions whose exit is at or after since.
func (r *SessionRepository) ListCompletedExitedSince(ctx context.Context, ownerID string, since time.Time) ([]models.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE owner_id = $1 AND status = 'completed' AND exit_time >= $2
		ORDER BY exit_time ASC`
	return r.queryMany(ctx, query, ownerID, since)
}

// CountActive counts sessions still parked.
func (r *SessionRepository) CountActive(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM parking_sessions WHERE owner_id = $1 AND status = 'active'`
	var n int
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

// CountActiveEnteredSince counts active sessions entered at or after since.
func (r *SessionRepository) CountActiveEnteredSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM parking_sessions
		WHERE owner_id = $1 AND status = 'active' AND entry_time >= $2
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, ownerID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

// ListRecent returns the latest sessions by entry time.
func (r *SessionRepository) ListRecent(ctx context.Context, ownerID string, limit int) ([]models.ParkingSession, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE owner_id = $1
		ORDER BY entry_time DESC
		LIMIT $2`
	return r.queryMany(ctx, query, ownerID, limit)
}

// SearchByVehicle matches a case-insensitive substring of the vehicle number.
func (r *SessionRepository) SearchByVehicle(ctx context.Context, ownerID, term string, limit int) ([]models.ParkingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE owner_id = $1 AND vehicle_number ILIKE $2 ESCAPE '\'
		ORDER BY entry_time DESC
		LIMIT $3`
	return r.queryMany(ctx, query, ownerID, "%"+escapeLike(term)+"%", limit)
}

func (r *SessionRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.ParkingSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]models.ParkingSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.ParkingSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.ParkingSession, error) {
	var (
		s          models.ParkingSession
		exitTime   sql.NullTime
		duration   sql.NullInt64
		amount     decimal.NullDecimal
		amountType sql.NullString
		status     string
		sentAt     sql.NullTime
		entryImage sql.NullString
		exitImage  sql.NullString
	)
	if err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.VehicleNumber,
		&s.EntryTime,
		&exitTime,
		&duration,
		&amount,
		&amountType,
		&status,
		&s.ReceiptSent,
		&sentAt,
		&entryImage,
		&exitImage,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	if exitTime.Valid {
		t := exitTime.Time
		s.ExitTime = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		s.DurationMinutes = &d
	}
	if amount.Valid {
		a := amount.Decimal
		s.Amount = &a
	}
	if amountType.Valid {
		at := models.AmountType(amountType.String)
		s.AmountType = &at
	}
	if sentAt.Valid {
		t := sentAt.Time
		s.ReceiptSentAt = &t
	}
	if entryImage.Valid {
		v := entryImage.String
		s.EntryImageURL = &v
	}
	if exitImage.Valid {
		v := exitImage.String
		s.ExitImageURL = &v
	}
	return &s, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullAmountType(t *models.AmountType) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*t), Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
