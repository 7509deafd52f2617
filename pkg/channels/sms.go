package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dealradar/alert-engine/pkg/models"
)

// SMSConfig holds the SMS gateway settings. The gateway is an
// operator-provided HTTP endpoint accepting {to, message} JSON.
type SMSConfig struct {
	GatewayURL string
	APIKey     string
	Timeout    time.Duration
}

// SMSSender delivers alerts through an HTTP SMS gateway.
type SMSSender struct {
	cfg    SMSConfig
	client *http.Client
}

func NewSMSSender(cfg SMSConfig) *SMSSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *SMSSender) Name() models.Channel { return models.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, recipient string, payload Payload) error {
	if recipient == "" {
		return fmt.Errorf("no phone number on record")
	}

	message := fmt.Sprintf("%s: %s", payload.RuleName, payload.Reason)
	body, err := json.Marshal(map[string]string{
		"to":      recipient,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode SMS body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("SMS gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("SMS gateway returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
