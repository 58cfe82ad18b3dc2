package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"parkinglot/backend/services/parking-service/internal/clock"
	"parkinglot/backend/services/parking-service/internal/models"
)

const (
	recentSessionsLimit = 10
	searchResultsLimit  = 50
	chartDays           = 7
	chartDateLayout     = "2006-01-02"
)

// DashboardService computes read-only owner projections.
type DashboardService struct {
	sessions SessionStore
	clock    clock.Clock
	location *time.Location
}

// NewDashboardService builds service. Day boundaries are taken in loc.
func NewDashboardService(sessions SessionStore, clk clock.Clock, loc *time.Location) *DashboardService {
	if clk == nil {
		clk = clock.Real{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{sessions: sessions, clock: clk, location: loc}
}

// GetDashboardStats aggregates today's activity and the trailing week of earnings.
func (s *DashboardService) GetDashboardStats(ctx context.Context, ownerID string) (models.DashboardStats, error) {
	now := s.clock.Now().In(s.location)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	weekStart := startOfDay.AddDate(0, 0, -(chartDays - 1))

	completed, err := s.sessions.ListCompletedExitedSince(ctx, ownerID, weekStart)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("dashboard: completed sessions: %w", err)
	}
	active, err := s.sessions.CountActive(ctx, ownerID)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("dashboard: active sessions: %w", err)
	}
	activeToday, err := s.sessions.CountActiveEnteredSince(ctx, ownerID, startOfDay)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("dashboard: active sessions: %w", err)
	}
	recent, err := s.sessions.ListRecent(ctx, ownerID, recentSessionsLimit)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("dashboard: recent sessions: %w", err)
	}

	var (
		todayEarnings  = decimal.Zero
		completedToday int
		durationSum    int
		durationCount  int
		perDay         = make(map[string]decimal.Decimal)
	)
	for _, session := range completed {
		if session.ExitTime == nil {
			continue
		}
		exit := session.ExitTime.In(s.location)
		amount := decimal.Zero
		if session.Amount != nil {
			amount = *session.Amount
		}

		day := exit.Format(chartDateLayout)
		perDay[day] = perDay[day].Add(amount)

		if exit.Before(startOfDay) {
			continue
		}
		completedToday++
		todayEarnings = todayEarnings.Add(amount)
		if session.DurationMinutes != nil {
			durationSum += *session.DurationMinutes
			durationCount++
		}
	}

	average := 0
	if durationCount > 0 {
		average = int(math.Round(float64(durationSum) / float64(durationCount)))
	}

	chart := make([]models.EarningsPoint, 0, len(perDay))
	for day, amount := range perDay {
		chart = append(chart, models.EarningsPoint{Date: day, Amount: amount})
	}
	sort.Slice(chart, func(i, j int) bool { return chart[i].Date < chart[j].Date })

	return models.DashboardStats{
		TodayEarnings:   todayEarnings,
		ActiveVehicles:  active,
		TotalSessions:   completedToday + activeToday,
		AverageDuration: average,
		RecentSessions:  recent,
		EarningsChart:   chart,
	}, nil
}

// SearchVehicles finds sessions whose vehicle number contains query, newest first.
func (s *DashboardService) SearchVehicles(ctx context.Context, ownerID, query string) ([]models.ParkingSession, error) {
	term := strings.TrimSpace(query)
	if term == "" {
		return nil, newError(KindValidation, "search query is required")
	}
	results, err := s.sessions.SearchByVehicle(ctx, ownerID, term, searchResultsLimit)
	if err != nil {
		return nil, fmt.Errorf("search vehicles: %w", err)
	}
	return results, nil
}
