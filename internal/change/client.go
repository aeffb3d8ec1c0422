// Package change validates change tickets against the change-management
// collaborator before any state-mutating call is allowed.
package change

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verdict is the collaborator's answer for a ticket.
type Verdict string

const (
	Approved            Verdict = "approved"
	NotFoundOrForbidden Verdict = "not-found-or-forbidden"
	WrongStage          Verdict = "wrong-stage"
	Misconfigured       Verdict = "misconfigured"
)

// Validator is what the dispatcher depends on.
type Validator interface {
	Validate(ctx context.Context, ticket, stage string) (Verdict, error)
}

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("change api base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		timeout: timeout,
	}, nil
}

// Validate asks the change-management service about a ticket. A ticket is only
// usable when it is approved and scheduled for the stage being deployed;
// anything else maps onto a non-approved verdict. Transport and decode
// problems come back as Misconfigured so the gate fails closed.
func (c *Client) Validate(ctx context.Context, ticket, stage string) (Verdict, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + "/tickets/" + url.PathEscape(ticket)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return Misconfigured, fmt.Errorf("change build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Misconfigured, fmt.Errorf("change validate ticket: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return NotFoundOrForbidden, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Misconfigured, fmt.Errorf("change service returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		State string `json:"state"`
		Stage string `json:"stage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Misconfigured, fmt.Errorf("change decode response: %w", err)
	}
	if !strings.EqualFold(body.State, "approved") {
		return NotFoundOrForbidden, nil
	}
	if stage != "" && body.Stage != "" && !strings.EqualFold(body.Stage, stage) {
		return WrongStage, nil
	}
	return Approved, nil
}
