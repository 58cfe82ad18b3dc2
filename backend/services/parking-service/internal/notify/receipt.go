// Package notify formats parking receipts and delivers them over WhatsApp.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const receiptTimeLayout = "02 Jan 2006, 15:04"

// Receipt is everything the message body needs.
type Receipt struct {
	VehicleNumber   string
	EntryTime       time.Time
	ExitTime        time.Time
	DurationMinutes int
	Amount          decimal.Decimal
	Currency        string
	PaymentLink     string
}

// FormatReceipt renders the WhatsApp text of a receipt with times shown in loc.
func FormatReceipt(r Receipt, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	b.WriteString("*Parking Receipt*\n\n")
	fmt.Fprintf(&b, "Vehicle: %s\n", r.VehicleNumber)
	fmt.Fprintf(&b, "Entry: %s\n", r.EntryTime.In(loc).Format(receiptTimeLayout))
	fmt.Fprintf(&b, "Exit: %s\n", r.ExitTime.In(loc).Format(receiptTimeLayout))
	fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(r.DurationMinutes))
	fmt.Fprintf(&b, "Amount: %s %s\n", r.Amount.StringFixed(2), r.Currency)
	if r.PaymentLink != "" {
		fmt.Fprintf(&b, "\nPay here: %s\n", r.PaymentLink)
	}
	b.WriteString("\nThank you for parking with us!")
	return b.String()
}

// FormatDuration renders minutes as "2 hours 5 minutes".
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	hours, mins := minutes/60, minutes%60
	switch {
	case hours == 0:
		return plural(mins, "minute")
	case mins == 0:
		return plural(hours, "hour")
	default:
		return plural(hours, "hour") + " " + plural(mins, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
