// Package console is the HTTP client for the vendor endpoint family: relevance
// queries against the inventory, action submission, per-action status and
// result-row retrieval. Responses are loosely shaped; callers get either
// flattened scalar answers (queries) or raw bodies (submission) to interpret.
package console

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/fixstream/fixstream/internal/models"
)

// StatusError is a non-2xx response surfaced verbatim (status plus a truncated
// body) so operators see exactly what the console said.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("console returned HTTP %d: %s", e.Code, e.Body)
}

const maxErrBody = 512

type ClientConfig struct {
	BaseURL    string
	Username   string
	Password   string
	Timeout    time.Duration
	Insecure   bool
	HTTPClient *http.Client
}

type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	timeout  time.Duration
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("console base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.Insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		client = &http.Client{Timeout: 30 * time.Second, Transport: transport}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		client:   client,
		timeout:  timeout,
	}, nil
}

// Query runs a relevance expression against the inventory query endpoint and
// returns the answer leaves flattened in traversal order. An empty slice means
// the expression matched nothing; that is not an error.
func (c *Client) Query(ctx context.Context, relevance string) ([]string, error) {
	form := url.Values{}
	form.Set("relevance", relevance)
	form.Set("output", "json")

	body, err := c.do(ctx, http.MethodPost, "/api/query", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	answers, err := FlattenAnswers(body)
	if err != nil {
		return nil, fmt.Errorf("console decode query response: %w", err)
	}
	return answers, nil
}

// SubmitAction posts a synthesized action document and returns the raw
// acknowledgment body. Identifier extraction is the caller's concern since a
// missing identifier is not necessarily a rejected action.
func (c *Client) SubmitAction(ctx context.Context, document string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/actions", "application/xml", strings.NewReader(document))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var statusTokenRe = regexp.MustCompile(`<Status>([^<]*)</Status>`)

// ActionStatus fetches the status document for a previously-assigned action id
// and returns its status token.
func (c *Client) ActionStatus(ctx context.Context, actionID string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/action/"+url.PathEscape(actionID)+"/status", "", nil)
	if err != nil {
		return "", err
	}
	m := statusTokenRe.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("console status response missing status token")
	}
	return strings.TrimSpace(string(m[1])), nil
}

// ActionResults fetches the per-endpoint outcome tuples for a finished action.
// The query answers arrive as a flat leaf list; every five leaves form one row.
func (c *Client) ActionResults(ctx context.Context, actionID string) ([]models.ResultRow, error) {
	rel := fmt.Sprintf(`(name of computer of it, name of fixlet of it, status of it, start time of it | "", end time of it | "") of results of bes action whose (id of it = %s)`, actionID)
	answers, err := c.Query(ctx, rel)
	if err != nil {
		return nil, err
	}
	rows := make([]models.ResultRow, 0, len(answers)/5)
	for i := 0; i+5 <= len(answers); i += 5 {
		rows = append(rows, models.ResultRow{
			Computer: answers[i],
			Patch:    answers[i+1],
			Status:   answers[i+2],
			Start:    answers[i+3],
			End:      answers[i+4],
		})
	}
	return rows, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("console build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("console %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("console read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		trunc := string(raw)
		if len(trunc) > maxErrBody {
			trunc = trunc[:maxErrBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: trunc}
	}
	return raw, nil
}

var (
	idElementRe   = regexp.MustCompile(`<ID>(\d+)</ID>`)
	resourceRe    = regexp.MustCompile(`Resource="[^"]*/(\d+)"`)
	idAttributeRe = regexp.MustCompile(`\bid="(\d+)"`)
)

// ExtractActionID pulls the assigned identifier out of a submission
// acknowledgment. The console answers in one of three shapes, tried in
// priority order: a dedicated ID element, a resource URL whose path ends in
// the numeral, or a bare id attribute.
func ExtractActionID(ack string) (string, bool) {
	if m := idElementRe.FindStringSubmatch(ack); m != nil {
		return m[1], true
	}
	if m := resourceRe.FindStringSubmatch(ack); m != nil {
		return m[1], true
	}
	if m := idAttributeRe.FindStringSubmatch(ack); m != nil {
		return m[1], true
	}
	return "", false
}
