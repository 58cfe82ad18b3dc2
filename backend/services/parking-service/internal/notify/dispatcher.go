package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Provider names accepted by NewSender.
const (
	ProviderTwilio = "twilio"
	ProviderMeta   = "meta"
	ProviderLog    = "log"
	ProviderAuto   = "auto"
	ProviderNone   = "none"
)

const defaultSendTimeout = 10 * time.Second

// Config selects and configures the WhatsApp provider.
type Config struct {
	Provider    string
	Development bool
	Timeout     time.Duration
	Twilio      TwilioConfig
	Meta        MetaConfig
}

// NewSender resolves the provider once and returns the sender with its name.
// Auto prefers Twilio, then Meta, then the log sender in development.
func NewSender(cfg Config, logger *zap.Logger) (Sender, string) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	client := &http.Client{Timeout: timeout}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderTwilio:
		return NewTwilioSender(cfg.Twilio, client), ProviderTwilio
	case ProviderMeta:
		return NewMetaSender(cfg.Meta, client), ProviderMeta
	case ProviderLog:
		return NewLogSender(logger), ProviderLog
	}

	switch {
	case cfg.Twilio.Configured():
		return NewTwilioSender(cfg.Twilio, client), ProviderTwilio
	case cfg.Meta.Configured():
		return NewMetaSender(cfg.Meta, client), ProviderMeta
	case cfg.Development:
		return NewLogSender(logger), ProviderLog
	default:
		return disabledSender{}, ProviderNone
	}
}

// ResultRecorder counts delivery outcomes.
type ResultRecorder interface {
	ReceiptSent(provider string, delivered bool)
}

// Dispatcher formats receipts and hands them to the selected sender.
type Dispatcher struct {
	sender   Sender
	provider string
	location *time.Location
	recorder ResultRecorder
	logger   *zap.Logger
}

// NewDispatcher builds a dispatcher. recorder may be nil.
func NewDispatcher(sender Sender, provider string, loc *time.Location, recorder ResultRecorder, logger *zap.Logger) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sender: sender, provider: provider, location: loc, recorder: recorder, logger: logger}
}

// SendReceipt reports whether the provider accepted the message. Errors are logged, never returned.
func (d *Dispatcher) SendReceipt(ctx context.Context, to string, r Receipt) bool {
	body := FormatReceipt(r, d.location)
	err := d.sender.Send(ctx, to, body)
	delivered := err == nil
	if d.recorder != nil {
		d.recorder.ReceiptSent(d.provider, delivered)
	}
	if err != nil {
		d.logger.Warn("failed to send whatsapp receipt",
			zap.String("provider", d.provider),
			zap.String("vehicle_number", r.VehicleNumber),
			zap.Error(err),
		)
		return false
	}
	d.logger.Info("whatsapp receipt sent",
		zap.String("provider", d.provider),
		zap.String("vehicle_number", r.VehicleNumber),
	)
	return true
}
