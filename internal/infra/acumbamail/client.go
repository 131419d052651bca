// Package acumbamail is an HTTP client for the Acumbamail email marketing API.
//
// Every failure is returned as a *resilience.Error so callers can tell
// invalid input, throttling, remote failures and transport problems apart.
package acumbamail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/acumba/internal/resilience"
)

const (
	DefaultBaseURL = "https://acumbamail.com/api/1"
	defaultTimeout = 30 * time.Second
	maxBodySize    = 10 << 20
)

// Config holds API connection settings.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	AuthToken   string        `yaml:"auth_token"`
	SenderName  string        `yaml:"sender_name"`
	SenderEmail string        `yaml:"sender_email"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Client calls the Acumbamail API. It is safe for concurrent use.
type Client struct {
	baseURL     string
	authToken   string
	senderName  string
	senderEmail string
	httpClient  *http.Client
	log         *slog.Logger

	Monitor *Monitor
}

// NewClient creates a client. A nil logger discards output.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		authToken:   cfg.AuthToken,
		senderName:  cfg.SenderName,
		senderEmail: cfg.SenderEmail,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log:     logger.With("component", "acumbamail"),
		Monitor: NewMonitor(),
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// call POSTs form to {base}/{method}/ and decodes the JSON answer into out.
func (c *Client) call(ctx context.Context, op, method string, form url.Values, out any) error {
	if wait := c.Monitor.RetryAfter(); wait > 0 {
		return resilience.Throttled(op, fmt.Sprintf("throttled, retry after %s", wait.Round(time.Second)), wait)
	}

	if form == nil {
		form = url.Values{}
	}
	form.Set("auth_token", c.authToken)
	form.Set("response_type", "json")

	endpoint := c.baseURL + "/" + method + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return resilience.Unclassified(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.Monitor.RecordFailure()
		return resilience.Unclassified(op, fmt.Errorf("%s call: %w", method, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.Monitor.RecordFailure()
		return resilience.Unclassified(op, fmt.Errorf("read response: %w", err))
	}
	latency := time.Since(start)

	c.log.Debug("API call", "method", method, "status", resp.StatusCode, "latency", latency)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		c.Monitor.RecordThrottle(retryAfter)
		return &resilience.Error{
			Kind:       resilience.KindRateLimit,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, "too many requests"),
			RetryAfter: retryAfter,
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := errorMessage(body, http.StatusText(resp.StatusCode))
		if c.Monitor.DetectThrottlePattern(msg) {
			c.Monitor.RecordThrottle(0)
			return &resilience.Error{Kind: resilience.KindRateLimit, Op: op, StatusCode: resp.StatusCode, Message: msg}
		}
		c.Monitor.RecordFailure()

		kind := resilience.KindAPI
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			kind = resilience.KindValidation
		}
		return &resilience.Error{Kind: kind, Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	// Some failures come back as 200 with an error object.
	if msg, ok := bodyError(body); ok {
		if c.Monitor.DetectThrottlePattern(msg) {
			c.Monitor.RecordThrottle(0)
			return resilience.RateLimited(op, msg, 0)
		}
		c.Monitor.RecordFailure()
		return resilience.APIFailure(op, resp.StatusCode, msg)
	}

	c.Monitor.RecordRequest(latency)

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resilience.Unclassified(op, fmt.Errorf("parse response: %w", err))
	}
	return nil
}

func errorMessage(body []byte, fallback string) string {
	if msg, ok := bodyError(body); ok {
		return msg
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return fallback
}

func bodyError(body []byte) (string, bool) {
	var obj struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil || obj.Error == "" {
		return "", false
	}
	if obj.Message != "" {
		return obj.Error + ": " + obj.Message, true
	}
	return obj.Error, true
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// idResponse decodes the identifier returned by create endpoints, which
// comes either bare or inside an object.
type idResponse int

func (r *idResponse) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*r = idResponse(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid id %q", s)
		}
		*r = idResponse(n)
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("unexpected id payload: %s", string(b))
	}
	for _, key := range []string{"id", "list_id", "subscriber_id", "campaign_id", "email_id"} {
		if raw, ok := obj[key]; ok {
			return r.UnmarshalJSON(raw)
		}
	}
	return fmt.Errorf("no id in response: %s", string(b))
}

// timestamp decodes the API's date strings.
type timestamp time.Time

var timestampLayouts = []string{"2006-01-02 15:04:05", "2006-01-02 15:04", time.RFC3339, "2006-01-02"}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = timestamp(parsed)
			return nil
		}
	}
	return nil
}

const scheduleLayout = "2006-01-02 15:04"
