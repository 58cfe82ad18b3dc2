package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"parkinglot/backend/services/parking-service/internal/models"
)

// MemoryStore keeps sessions, settings and vehicle history in process.
// It backs the memory storage driver and the service tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ParkingSession
	settings map[string]models.OwnerSettings
	history  map[historyKey]models.VehicleHistory
	now      func() time.Time
}

type historyKey struct {
	owner   string
	vehicle string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.ParkingSession),
		settings: make(map[string]models.OwnerSettings),
		history:  make(map[historyKey]models.VehicleHistory),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sessions returns the session view of the store.
func (m *MemoryStore) Sessions() *MemorySessionRepository {
	return &MemorySessionRepository{store: m}
}

// Settings returns the settings view of the store.
func (m *MemoryStore) Settings() *MemorySettingsRepository {
	return &MemorySettingsRepository{store: m}
}

// History returns the vehicle history view of the store.
func (m *MemoryStore) History() *MemoryVehicleHistoryRepository {
	return &MemoryVehicleHistoryRepository{store: m}
}

// MemorySessionRepository is the in-memory session store.
type MemorySessionRepository struct {
	store *MemoryStore
}

func (r *MemorySessionRepository) CreateActive(_ context.Context, s *models.ParkingSession) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if existing.OwnerID == s.OwnerID && existing.VehicleNumber == s.VehicleNumber && existing.IsActive() {
			return ErrActiveSessionExists
		}
	}
	now := m.now()
	s.Status = models.SessionStatusActive
	s.CreatedAt = now
	s.UpdatedAt = now
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *MemorySessionRepository) FindActive(_ context.Context, ownerID, vehicleNumber string) (*models.ParkingSession, error) {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.ParkingSession
	for _, s := range m.sessions {
		if s.OwnerID != ownerID || s.VehicleNumber != vehicleNumber || !s.IsActive() {
			continue
		}
		if found == nil || s.EntryTime.After(found.EntryTime) {
			found = s
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return cloneSession(found), nil
}

func (r *MemorySessionRepository) FindByID(_ context.Context, ownerID, id string) (*models.ParkingSession, error) {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || s.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *MemorySessionRepository) Complete(_ context.Context, s *models.ParkingSession) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.ID]
	if !ok || stored.OwnerID != s.OwnerID || !stored.IsActive() {
		return ErrNotFound
	}
	stored.ExitTime = copyTime(s.ExitTime)
	stored.ExitImageURL = copyString(s.ExitImageURL)
	stored.DurationMinutes = copyInt(s.DurationMinutes)
	stored.Amount = copyDecimal(s.Amount)
	stored.AmountType = copyAmountType(s.AmountType)
	stored.Status = models.SessionStatusCompleted
	stored.UpdatedAt = m.now()

	s.Status = stored.Status
	s.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MemorySessionRepository) UpdateCharge(_ context.Context, ownerID, id string, amount decimal.Decimal, amountType models.AmountType) (*models.ParkingSession, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[id]
	if !ok || stored.OwnerID != ownerID || stored.Status != models.SessionStatusCompleted {
		return nil, ErrNotFound
	}
	stored.Amount = &amount
	stored.AmountType = &amountType
	stored.UpdatedAt = m.now()
	return cloneSession(stored), nil
}

func (r *MemorySessionRepository) MarkReceiptSent(_ context.Context, ownerID, id string, at time.Time) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[id]
	if !ok || stored.OwnerID != ownerID {
		return ErrNotFound
	}
	stored.ReceiptSent = true
	stored.ReceiptSentAt = &at
	stored.UpdatedAt = m.now()
	return nil
}

func (r *MemorySessionRepository) ListCompletedExitedSince(_ context.Context, ownerID string, since time.Time) ([]models.ParkingSession, error) {
	out := r.filter(func(s *models.ParkingSession) bool {
		return s.OwnerID == ownerID && s.Status == models.SessionStatusCompleted &&
			s.ExitTime != nil && !s.ExitTime.Before(since)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExitTime.Before(*out[j].ExitTime) })
	return out, nil
}

func (r *MemorySessionRepository) CountActive(_ context.Context, ownerID string) (int, error) {
	return len(r.filter(func(s *models.ParkingSession) bool {
		return s.OwnerID == ownerID && s.IsActive()
	})), nil
}

func (r *MemorySessionRepository) CountActiveEnteredSince(_ context.Context, ownerID string, since time.Time) (int, error) {
	return len(r.filter(func(s *models.ParkingSession) bool {
		return s.OwnerID == ownerID && s.IsActive() && !s.EntryTime.Before(since)
	})), nil
}

func (r *MemorySessionRepository) ListRecent(_ context.Context, ownerID string, limit int) ([]models.ParkingSession, error) {
	if limit <= 0 {
		limit = 10
	}
	out := r.filter(func(s *models.ParkingSession) bool { return s.OwnerID == ownerID })
	return newestFirst(out, limit), nil
}

func (r *MemorySessionRepository) SearchByVehicle(_ context.Context, ownerID, term string, limit int) ([]models.ParkingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToUpper(term)
	out := r.filter(func(s *models.ParkingSession) bool {
		return s.OwnerID == ownerID && strings.Contains(strings.ToUpper(s.VehicleNumber), needle)
	})
	return newestFirst(out, limit), nil
}

func (r *MemorySessionRepository) filter(keep func(*models.ParkingSession) bool) []models.ParkingSession {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ParkingSession, 0)
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, *cloneSession(s))
		}
	}
	return out
}

func newestFirst(sessions []models.ParkingSession, limit int) []models.ParkingSession {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].EntryTime.Equal(sessions[j].EntryTime) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].EntryTime.After(sessions[j].EntryTime)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions
}

// MemorySettingsRepository is the in-memory settings store.
type MemorySettingsRepository struct {
	store *MemoryStore
}

func (r *MemorySettingsRepository) Get(_ context.Context, ownerID string) (*models.OwnerSettings, error) {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	s.WhatsAppNumber = copyString(s.WhatsAppNumber)
	return &s, nil
}

func (r *MemorySettingsRepository) Upsert(_ context.Context, s *models.OwnerSettings) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	s.UpdatedAt = m.now()
	stored := *s
	stored.WhatsAppNumber = copyString(s.WhatsAppNumber)
	m.settings[s.OwnerID] = stored
	return nil
}

// MemoryVehicleHistoryRepository is the in-memory visit aggregate store.
type MemoryVehicleHistoryRepository struct {
	store *MemoryStore
}

func (r *MemoryVehicleHistoryRepository) RecordVisit(_ context.Context, ownerID, vehicleNumber string, at time.Time) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	key := historyKey{owner: ownerID, vehicle: vehicleNumber}
	h, ok := m.history[key]
	if !ok {
		h = models.VehicleHistory{OwnerID: ownerID, VehicleNumber: vehicleNumber}
	}
	h.TotalVisits++
	if at.After(h.LastVisit) {
		h.LastVisit = at
	}
	m.history[key] = h
	return nil
}

func (r *MemoryVehicleHistoryRepository) Get(_ context.Context, ownerID, vehicleNumber string) (*models.VehicleHistory, error) {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.history[historyKey{owner: ownerID, vehicle: vehicleNumber}]
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}

func (r *MemoryVehicleHistoryRepository) Rebuild(_ context.Context, ownerID string) (int, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.history {
		if key.owner == ownerID {
			delete(m.history, key)
		}
	}
	for _, s := range m.sessions {
		if s.OwnerID != ownerID {
			continue
		}
		key := historyKey{owner: ownerID, vehicle: s.VehicleNumber}
		h, ok := m.history[key]
		if !ok {
			h = models.VehicleHistory{OwnerID: ownerID, VehicleNumber: s.VehicleNumber}
		}
		h.TotalVisits++
		if s.EntryTime.After(h.LastVisit) {
			h.LastVisit = s.EntryTime
		}
		m.history[key] = h
	}

	written := 0
	for key := range m.history {
		if key.owner == ownerID {
			written++
		}
	}
	return written, nil
}

func cloneSession(s *models.ParkingSession) *models.ParkingSession {
	c := *s
	c.ExitTime = copyTime(s.ExitTime)
	c.DurationMinutes = copyInt(s.DurationMinutes)
	c.Amount = copyDecimal(s.Amount)
	c.AmountType = copyAmountType(s.AmountType)
	c.ReceiptSentAt = copyTime(s.ReceiptSentAt)
	c.EntryImageURL = copyString(s.EntryImageURL)
	c.ExitImageURL = copyString(s.ExitImageURL)
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyDecimal(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyAmountType(v *models.AmountType) *models.AmountType {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
