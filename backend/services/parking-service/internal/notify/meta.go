package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	metaBaseURL           = "https://graph.facebook.com"
	defaultMetaAPIVersion = "v18.0"
)

// MetaConfig holds the WhatsApp Cloud API credentials.
type MetaConfig struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
}

// Configured reports whether the token and phone number id are present.
func (c MetaConfig) Configured() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// MetaSender posts text messages to the WhatsApp Cloud API.
type MetaSender struct {
	cfg     MetaConfig
	client  *http.Client
	baseURL string
}

// NewMetaSender builds a sender. A nil client uses http.DefaultClient.
func NewMetaSender(cfg MetaConfig, client *http.Client) *MetaSender {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultMetaAPIVersion
	}
	return &MetaSender{cfg: cfg, client: client, baseURL: metaBaseURL}
}

type metaMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             metaText `json:"text"`
}

type metaText struct {
	Body string `json:"body"`
}

func (s *MetaSender) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(metaMessage{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(e164(to), "+"),
		Type:             "text",
		Text:             metaText{Body: body},
	})
	if err != nil {
		return fmt.Errorf("meta: encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", s.baseURL, s.cfg.APIVersion, url.PathEscape(s.cfg.PhoneNumberID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("meta: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("meta: send: %w", err)
	}
	defer resp.Body.Close()
	return checkResponse("meta", resp)
}
