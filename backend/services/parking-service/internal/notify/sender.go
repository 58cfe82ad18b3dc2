package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned by the sender used when no provider is available.
var ErrNotConfigured = errors.New("notify: whatsapp provider not configured")

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a development sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, body string) error {
	s.logger.Info("whatsapp message (log provider)", zap.String("to", to), zap.String("body", body))
	return nil
}

type disabledSender struct{}

func (disabledSender) Send(context.Context, string, string) error {
	return ErrNotConfigured
}

// ProviderError carries a non-2xx provider response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func checkResponse(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// e164 returns "+digits" for a phone number written with spaces, dashes or a whatsapp: prefix.
func e164(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "whatsapp:")
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}
