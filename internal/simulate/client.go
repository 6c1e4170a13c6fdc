package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// ErrBackpressure is returned when the service kept answering 429 after all retries.
var ErrBackpressure = errors.New("service backpressure")

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client is a rate-limited JSON client for the shipwatch API.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	retries uint64
	delay   time.Duration

	// backpressured counts 429 answers, retried or not.
	backpressured func()
}

// NewClient builds a client for cfg. A zero rate disables limiting.
func NewClient(cfg Config) *Client {
	limit := rate.Inf
	burst := 1
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
		burst = max(1, int(cfg.Rate))
	}
	return &Client{
		base:          cfg.BaseURL,
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(limit, burst),
		retries:       cfg.Retries,
		delay:         50 * time.Millisecond,
		backpressured: func() {},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// UpsertShipment posts a shipment plan.
func (c *Client) UpsertShipment(ctx context.Context, s Shipment) error {
	return c.do(ctx, http.MethodPost, "/shipments", s, nil)
}

// IngestEvents posts a batch of events and returns the accepted and duplicate counts.
func (c *Client) IngestEvents(ctx context.Context, id string, events []Event) (int, int, error) {
	var resp ingestResponse
	body := map[string][]Event{"events": events}
	if err := c.do(ctx, http.MethodPost, "/shipments/"+url.PathEscape(id)+"/events", body, &resp); err != nil {
		return 0, 0, err
	}
	return resp.Accepted, resp.Duplicates, nil
}

// Alert fetches the current alert of a shipment.
func (c *Client) Alert(ctx context.Context, id string) (Alert, error) {
	var a Alert
	err := c.do(ctx, http.MethodGet, "/shipments/"+url.PathEscape(id)+"/alert", nil, &a)
	return a, err
}

// RiskBoard fetches the n riskiest open shipments.
func (c *Client) RiskBoard(ctx context.Context, n int) ([]Entry, error) {
	var entries []Entry
	err := c.do(ctx, http.MethodGet, "/riskboard?limit="+strconv.Itoa(n), nil, &entries)
	return entries, err
}

// Rank fetches the board position of one shipment.
func (c *Client) Rank(ctx context.Context, id string) (Entry, error) {
	var e Entry
	err := c.do(ctx, http.MethodGet, "/riskboard/"+url.PathEscape(id), nil, &e)
	return e, err
}

// Stats fetches GET /stats.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	err := c.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

// do sends one request, retrying 429 and transport errors with exponential
// backoff. Other non-2xx answers are permanent.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.delay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	return backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.backpressured()
			return ErrBackpressure
		case resp.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))})
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s %s: %w", method, path, err))
		}
		return nil
	}, policy)
}
