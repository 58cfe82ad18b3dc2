package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money fields are sent to clients as JSON numbers.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// SessionStatus is the lifecycle state of a parking session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// AmountType tells how a session amount was produced.
type AmountType string

const (
	AmountTypeAuto   AmountType = "auto"
	AmountTypeManual AmountType = "manual"
)

// ParkingSession is one park-in/park-out episode of a vehicle for an owner.
type ParkingSession struct {
	ID              string           `db:"id" json:"id"`
	OwnerID         string           `db:"owner_id" json:"ownerId"`
	VehicleNumber   string           `db:"vehicle_number" json:"vehicleNumber"`
	EntryTime       time.Time        `db:"entry_time" json:"entryTime"`
	ExitTime        *time.Time       `db:"exit_time" json:"exitTime"`
	DurationMinutes *int             `db:"duration_minutes" json:"durationMinutes"`
	Amount          *decimal.Decimal `db:"amount" json:"amount"`
	AmountType      *AmountType      `db:"amount_type" json:"amountType"`
	Status          SessionStatus    `db:"status" json:"status"`
	ReceiptSent     bool             `db:"receipt_sent" json:"receiptSent"`
	ReceiptSentAt   *time.Time       `db:"receipt_sent_at" json:"receiptSentAt"`
	EntryImageURL   *string          `db:"entry_image_url" json:"entryImageUrl"`
	ExitImageURL    *string          `db:"exit_image_url" json:"exitImageUrl"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`
}

// IsActive reports whether the vehicle is still parked.
func (s *ParkingSession) IsActive() bool {
	return s.Status == SessionStatusActive
}

// Receiptable reports whether the session carries everything a receipt needs.
func (s *ParkingSession) Receiptable() bool {
	return s.Status == SessionStatusCompleted && s.ExitTime != nil && s.Amount != nil && s.DurationMinutes != nil
}
