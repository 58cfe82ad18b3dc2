package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const twilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds the account credentials and the WhatsApp sender number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Configured reports whether every credential is present.
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// TwilioSender posts messages to the Twilio Messages API.
type TwilioSender struct {
	cfg     TwilioConfig
	client  *http.Client
	baseURL string
}

// NewTwilioSender builds a sender. A nil client uses http.DefaultClient.
func NewTwilioSender(cfg TwilioConfig, client *http.Client) *TwilioSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &TwilioSender{cfg: cfg, client: client, baseURL: twilioBaseURL}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("From", "whatsapp:"+e164(s.cfg.FromNumber))
	form.Set("To", "whatsapp:"+e164(to))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: send: %w", err)
	}
	defer resp.Body.Close()
	return checkResponse("twilio", resp)
}
