package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerSettings holds per-owner billing and notification configuration.
type OwnerSettings struct {
	OwnerID         string          `db:"owner_id" json:"ownerId"`
	HourlyRate      decimal.Decimal `db:"hourly_rate" json:"hourlyRate"`
	Currency        string          `db:"currency" json:"currency"`
	AutoCalculate   bool            `db:"auto_calculate" json:"autoCalculate"`
	WhatsAppEnabled bool            `db:"whatsapp_enabled" json:"whatsappEnabled"`
	WhatsAppNumber  *string         `db:"whatsapp_number" json:"whatsappNumber"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// AutoChargeEnabled reports whether exits should be priced automatically.
func (s OwnerSettings) AutoChargeEnabled() bool {
	return s.AutoCalculate && s.HourlyRate.IsPositive()
}

// VehicleHistory is the per-owner visit aggregate of a vehicle.
type VehicleHistory struct {
	OwnerID       string    `db:"owner_id" json:"ownerId"`
	VehicleNumber string    `db:"vehicle_number" json:"vehicleNumber"`
	TotalVisits   int       `db:"total_visits" json:"totalVisits"`
	LastVisit     time.Time `db:"last_visit" json:"lastVisit"`
}
