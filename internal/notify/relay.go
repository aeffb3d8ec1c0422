package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RelayConfig struct {
	BaseURL    string
	From       string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// RelayMailer delivers messages through an HTTP mail relay. One attempt per
// send; retry policy belongs to the caller, and for lifecycle notifications
// there deliberately is none.
type RelayMailer struct {
	baseURL string
	from    string
	client  *http.Client
	timeout time.Duration
}

func NewRelayMailer(cfg RelayConfig) (*RelayMailer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("mail relay base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RelayMailer{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		from:    cfg.From,
		client:  client,
		timeout: timeout,
	}, nil
}

func (m *RelayMailer) Send(ctx context.Context, msg Message) (string, error) {
	payload := struct {
		ID   string `json:"id"`
		From string `json:"from"`
		Message
	}{
		ID:      uuid.New().String(),
		From:    m.from,
		Message: msg,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("mail marshal message: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("mail build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mail relay send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("mail relay returned HTTP %d", resp.StatusCode)
	}

	var receipt struct {
		ReceiptID string `json:"receiptId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		// Delivery succeeded even if the receipt body is unreadable.
		return payload.ID, nil
	}
	if receipt.ReceiptID == "" {
		return payload.ID, nil
	}
	return receipt.ReceiptID, nil
}
