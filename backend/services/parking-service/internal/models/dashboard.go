package models

import "github.com/shopspring/decimal"

// DashboardStats is the owner dashboard projection.
type DashboardStats struct {
	TodayEarnings   decimal.Decimal  `json:"todayEarnings"`
	ActiveVehicles  int              `json:"activeVehicles"`
	TotalSessions   int              `json:"totalSessions"`
	AverageDuration int              `json:"averageDuration"`
	RecentSessions  []ParkingSession `json:"recentSessions"`
	EarningsChart   []EarningsPoint  `json:"earningsChart"`
}

// EarningsPoint is one day of the earnings series.
type EarningsPoint struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}
