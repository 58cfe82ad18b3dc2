package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/clock"
	"parkinglot/backend/services/parking-service/internal/models"
	"parkinglot/backend/services/parking-service/internal/notify"
	"parkinglot/backend/services/parking-service/internal/repository"
)

const owner = "owner-1"

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type published struct {
	owner   string
	event   string
	payload interface{}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBroadcaster) Publish(_ context.Context, ownerID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{owner: ownerID, event: event, payload: payload})
}

type panickingBroadcaster struct{}

func (panickingBroadcaster) Publish(context.Context, string, string, interface{}) {
	panic("hub closed")
}

type failingHistory struct {
	HistoryStore
}

func (failingHistory) RecordVisit(context.Context, string, string, time.Time) error {
	return errors.New("history table locked")
}

type fakeDispatcher struct {
	deliver bool
	calls   int
	to      string
	receipt notify.Receipt
}

func (d *fakeDispatcher) SendReceipt(_ context.Context, to string, r notify.Receipt) bool {
	d.calls++
	d.to = to
	d.receipt = r
	return d.deliver
}

type fixture struct {
	svc         *ParkingService
	store       *repository.MemoryStore
	settings    *SettingsService
	clock       *clock.Fake
	broadcaster *recordingBroadcaster
	dispatcher  *fakeDispatcher
}

func newFixture(t *testing.T, rate string, auto bool) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	settings := NewSettingsService(store.Settings(), SettingsDefaults{
		HourlyRate:    decimal.RequireFromString(rate),
		Currency:      "usd",
		AutoCalculate: auto,
	}, zap.NewNop())
	f := &fixture{
		store:       store,
		settings:    settings,
		clock:       clock.NewFake(t0),
		broadcaster: &recordingBroadcaster{},
		dispatcher:  &fakeDispatcher{deliver: true},
	}
	f.svc = NewParkingService(ParkingDeps{
		Sessions:    store.Sessions(),
		History:     store.History(),
		Settings:    settings,
		Receipts:    f.dispatcher,
		Broadcaster: f.broadcaster,
		Clock:       f.clock,
		Logger:      zap.NewNop(),
	})
	return f
}

func (f *fixture) enterAndExit(t *testing.T, vehicle string, minutes int) *models.ParkingSession {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: vehicle})
	require.NoError(t, err)
	f.clock.Advance(time.Duration(minutes) * time.Minute)
	s, err := f.svc.RecordExit(ctx, owner, ExitInput{VehicleNumber: vehicle})
	require.NoError(t, err)
	return s
}

func TestRecordEntryTwiceConflicts(t *testing.T) {
	f := newFixture(t, "10", true)
	ctx := context.Background()

	s, err := f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: " ka01ab1234 "})
	require.NoError(t, err)
	assert.Equal(t, "KA01AB1234", s.VehicleNumber)
	assert.Equal(t, models.SessionStatusActive, s.Status)
	assert.Equal(t, t0, s.EntryTime)
	assert.Nil(t, s.ExitTime)
	assert.Nil(t, s.DurationMinutes)
	assert.Nil(t, s.Amount)

	_, err = f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: "KA01AB1234"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.EqualError(t, err, "vehicle already has an active parking session")

	_, err = f.svc.RecordEntry(ctx, "owner-2", EntryInput{VehicleNumber: "KA01AB1234"})
	assert.NoError(t, err)
}

func TestRecordEntryValidatesVehicleNumber(t *testing.T) {
	f := newFixture(t, "10", true)
	_, err := f.svc.RecordEntry(context.Background(), owner, EntryInput{VehicleNumber: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.RecordEntry(context.Background(), owner, EntryInput{VehicleNumber: "ABCDEFGHIJKLMNOPQRSTU"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecordEntryUsesSuppliedTimestampAndImage(t *testing.T) {
	f := newFixture(t, "10", true)
	at := t0.Add(-time.Hour)
	img := "https://cdn.example.com/in.jpg"
	s, err := f.svc.RecordEntry(context.Background(), owner, EntryInput{VehicleNumber: "MH12", Timestamp: &at, ImageURL: &img})
	require.NoError(t, err)
	assert.Equal(t, at, s.EntryTime)
	require.NotNil(t, s.EntryImageURL)
	assert.Equal(t, img, *s.EntryImageURL)
}

func TestRecordEntryUpdatesHistoryAndBroadcasts(t *testing.T) {
	f := newFixture(t, "10", true)
	ctx := context.Background()
	s, err := f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)

	h, err := f.svc.VehicleHistory(ctx, owner, "ka01")
	require.NoError(t, err)
	assert.Equal(t, 1, h.TotalVisits)
	assert.Equal(t, t0, h.LastVisit)

	require.Len(t, f.broadcaster.events, 1)
	ev := f.broadcaster.events[0]
	assert.Equal(t, owner, ev.owner)
	assert.Equal(t, EventVehicleEntered, ev.event)
	assert.Equal(t, VehicleEnteredEvent{SessionID: s.ID, VehicleNumber: "KA01", Timestamp: t0}, ev.payload)
}

func TestRecordEntrySurvivesHistoryFailure(t *testing.T) {
	f := newFixture(t, "10", true)
	f.svc.history = failingHistory{HistoryStore: f.store.History()}

	s, err := f.svc.RecordEntry(context.Background(), owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	assert.True(t, s.IsActive())
	assert.Len(t, f.broadcaster.events, 1)
}

func TestRecordExitSurvivesBroadcasterPanic(t *testing.T) {
	f := newFixture(t, "10", true)
	f.svc.broadcaster = panickingBroadcaster{}
	ctx := context.Background()

	_, err := f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	s, err := f.svc.RecordExit(ctx, owner, ExitInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, s.Status)
}

func TestRecordExitLifecycle(t *testing.T) {
	f := newFixture(t, "10", true)
	ctx := context.Background()

	_, err := f.svc.RecordExit(ctx, owner, ExitInput{VehicleNumber: "KA01"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.RecordExit(ctx, owner, ExitInput{VehicleNumber: "KA01"})
	require.NoError(t, err)

	_, err = f.svc.RecordExit(ctx, owner, ExitInput{VehicleNumber: "KA01"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	_, err = f.svc.RecordExit(ctx, owner, ExitInput{VehicleNumber: "KA01"})
	assert.NoError(t, err)
}

func TestRecordExitComputesDurationAndAutoCharge(t *testing.T) {
	f := newFixture(t, "10", true)
	s := f.enterAndExit(t, "KA01", 125)

	require.NotNil(t, s.DurationMinutes)
	assert.Equal(t, 125, *s.DurationMinutes)
	require.NotNil(t, s.Amount)
	assert.True(t, decimal.NewFromInt(30).Equal(*s.Amount), "amount %s", s.Amount)
	require.NotNil(t, s.AmountType)
	assert.Equal(t, models.AmountTypeAuto, *s.AmountType)
	assert.Equal(t, t0.Add(125*time.Minute), *s.ExitTime)

	last := f.broadcaster.events[len(f.broadcaster.events)-1]
	assert.Equal(t, EventVehicleExited, last.event)
	exited, ok := last.payload.(VehicleExitedEvent)
	require.True(t, ok)
	assert.Equal(t, 125, exited.DurationMinutes)
	assert.True(t, decimal.NewFromInt(30).Equal(*exited.Amount))
}

func TestRecordExitFloorsPartialMinutes(t *testing.T) {
	f := newFixture(t, "10", true)
	ctx := context.Background()
	_, err := f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	f.clock.Advance(59*time.Minute + 59*time.Second)
	s, err := f.svc.RecordExit(ctx, owner, ExitInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	assert.Equal(t, 59, *s.DurationMinutes)
	assert.True(t, decimal.NewFromInt(10).Equal(*s.Amount))
}

func TestRecordExitWithoutAutoCalculateLeavesAmountNil(t *testing.T) {
	for _, tc := range []struct {
		name string
		rate string
		auto bool
	}{
		{name: "auto disabled", rate: "10", auto: false},
		{name: "zero rate", rate: "0", auto: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.rate, tc.auto)
			s := f.enterAndExit(t, "KA01", 90)
			assert.Equal(t, models.SessionStatusCompleted, s.Status)
			assert.Equal(t, 90, *s.DurationMinutes)
			assert.Nil(t, s.Amount)
			assert.Nil(t, s.AmountType)
		})
	}
}

func TestRecordExitRejectsExitBeforeEntry(t *testing.T) {
	f := newFixture(t, "10", true)
	ctx := context.Background()
	_, err := f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)

	before := t0.Add(-time.Minute)
	_, err = f.svc.RecordExit(ctx, owner, ExitInput{VehicleNumber: "KA01", Timestamp: &before})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCalculateChargeManualOverrideIsRepeatable(t *testing.T) {
	f := newFixture(t, "10", true)
	s := f.enterAndExit(t, "KA01", 125)
	ctx := context.Background()

	first := decimal.RequireFromString("12.50")
	_, err := f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: s.ID, Amount: &first})
	require.NoError(t, err)

	second := decimal.RequireFromString("7")
	got, err := f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: s.ID, Amount: &second})
	require.NoError(t, err)
	assert.True(t, second.Equal(*got.Amount))
	assert.Equal(t, models.AmountTypeManual, *got.AmountType)

	stored, err := f.svc.GetSession(ctx, owner, s.ID)
	require.NoError(t, err)
	assert.True(t, second.Equal(*stored.Amount))
	assert.Equal(t, models.AmountTypeManual, *stored.AmountType)
}

func TestCalculateChargeRoundsToCents(t *testing.T) {
	f := newFixture(t, "10", true)
	s := f.enterAndExit(t, "KA01", 125)
	ctx := context.Background()

	manual := decimal.RequireFromString("12.345")
	got, err := f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: s.ID, Amount: &manual})
	require.NoError(t, err)
	assert.Equal(t, "12.35", got.Amount.String())

	stored, err := f.svc.GetSession(ctx, owner, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.35", stored.Amount.String())

	rate := decimal.RequireFromString("3.333")
	got, err = f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: s.ID, HourlyRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, "10", got.Amount.String())
}

func TestCalculateChargeRateResolution(t *testing.T) {
	f := newFixture(t, "0", false)
	s := f.enterAndExit(t, "KA01", 61)
	ctx := context.Background()

	_, err := f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: s.ID})
	assert.ErrorIs(t, err, ErrConfig)
	assert.EqualError(t, err, "hourly rate not configured")

	override := decimal.RequireFromString("4.5")
	got, err := f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: s.ID, HourlyRate: &override})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(9).Equal(*got.Amount), "amount %s", got.Amount)
	assert.Equal(t, models.AmountTypeAuto, *got.AmountType)

	rate := decimal.NewFromInt(3)
	_, err = f.settings.Update(ctx, owner, SettingsUpdate{HourlyRate: &rate})
	require.NoError(t, err)
	got, err = f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: s.ID})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(6).Equal(*got.Amount))
}

func TestCalculateChargePreconditions(t *testing.T) {
	f := newFixture(t, "10", true)
	ctx := context.Background()

	_, err := f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	active, err := f.svc.RecordEntry(ctx, owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	_, err = f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: active.ID})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.CalculateCharge(ctx, "intruder", ChargeInput{SessionID: active.ID})
	assert.ErrorIs(t, err, ErrNotFound)

	negative := decimal.NewFromInt(-1)
	f.clock.Advance(time.Hour)
	done, err := f.svc.RecordExit(ctx, owner, ExitInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	_, err = f.svc.CalculateCharge(ctx, owner, ChargeInput{SessionID: done.ID, Amount: &negative})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSendReceiptRequiresAmount(t *testing.T) {
	f := newFixture(t, "10", false)
	s := f.enterAndExit(t, "KA01", 30)

	_, err := f.svc.SendReceipt(context.Background(), owner, s.ID, "+15550001111")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, f.dispatcher.calls)
}

func TestSendReceiptOnActiveSession(t *testing.T) {
	f := newFixture(t, "10", true)
	s, err := f.svc.RecordEntry(context.Background(), owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)

	_, err = f.svc.SendReceipt(context.Background(), owner, s.ID, "+15550001111")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSendReceiptDeliveryFailureIsNotAnError(t *testing.T) {
	f := newFixture(t, "10", true)
	f.dispatcher.deliver = false
	s := f.enterAndExit(t, "KA01", 125)

	result, err := f.svc.SendReceipt(context.Background(), owner, s.ID, "+15550001111")
	require.NoError(t, err)
	assert.False(t, result.Delivered)

	stored, err := f.svc.GetSession(context.Background(), owner, s.ID)
	require.NoError(t, err)
	assert.False(t, stored.ReceiptSent)
	assert.Nil(t, stored.ReceiptSentAt)
}

func TestSendReceiptMarksSent(t *testing.T) {
	f := newFixture(t, "10", true)
	s := f.enterAndExit(t, "KA01", 125)

	result, err := f.svc.SendReceipt(context.Background(), owner, s.ID, " +15550001111 ")
	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Equal(t, "+15550001111", f.dispatcher.to)
	assert.Equal(t, "USD", f.dispatcher.receipt.Currency)
	assert.Equal(t, 125, f.dispatcher.receipt.DurationMinutes)

	stored, err := f.svc.GetSession(context.Background(), owner, s.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReceiptSent)
	require.NotNil(t, stored.ReceiptSentAt)
	assert.Equal(t, f.clock.Now(), *stored.ReceiptSentAt)
}

func TestSendReceiptValidation(t *testing.T) {
	f := newFixture(t, "10", true)
	_, err := f.svc.SendReceipt(context.Background(), owner, "any", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SendReceipt(context.Background(), owner, "missing", "+1555")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRebuildVehicleHistory(t *testing.T) {
	f := newFixture(t, "10", true)
	f.enterAndExit(t, "KA01", 10)
	f.enterAndExit(t, "KA01", 10)
	f.enterAndExit(t, "MH12", 10)
	_, err := f.svc.RecordEntry(context.Background(), owner, EntryInput{VehicleNumber: "KA01"})
	require.NoError(t, err)
	_, err = f.svc.RecordEntry(context.Background(), owner, EntryInput{VehicleNumber: "DL09"})
	require.NoError(t, err)

	live, err := f.svc.VehicleHistory(context.Background(), owner, "KA01")
	require.NoError(t, err)
	assert.Equal(t, 3, live.TotalVisits)

	n, err := f.svc.RebuildVehicleHistory(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	h, err := f.svc.VehicleHistory(context.Background(), owner, "KA01")
	require.NoError(t, err)
	assert.Equal(t, live.TotalVisits, h.TotalVisits)
	assert.True(t, live.LastVisit.Equal(h.LastVisit))

	h, err = f.svc.VehicleHistory(context.Background(), owner, "DL09")
	require.NoError(t, err)
	assert.Equal(t, 1, h.TotalVisits)

	_, err = f.svc.VehicleHistory(context.Background(), owner, "DL01")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestErrorKindsMatch(t *testing.T) {
	err := newError(KindConflict, "custom message")
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, KindConflict, svcErr.Kind)
}
