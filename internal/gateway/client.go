// Package gateway is the REST side of the SIA.Sat client. Every call goes
// through Client.Do, which attaches the bearer token and no-cache headers,
// classifies failures, and raises session-wide signals on the events bus.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/siasat-client/internal/events"
	"github.com/DoyleJ11/siasat-client/internal/logging"
)

const loginEndpoint = "/auth/login"

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Bus        *events.Bus
	Logger     *zap.Logger
}

type Client struct {
	baseURL string
	http    *http.Client
	bus     *events.Bus
	log     *zap.Logger

	mu    sync.RWMutex
	token string
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		http:    hc,
		bus:     opts.Bus,
		log:     logging.OrNop(opts.Logger).Named("gateway"),
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) BaseURL() string { return c.baseURL }

// Do sends one request. body is JSON-encoded when non-nil; out receives the
// decoded JSON body of a 2xx response when non-nil.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, endpoint, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, rd)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")

	route := routeLabel(endpoint)
	start := time.Now()
	resp, err := c.http.Do(req)
	apiLatency.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			apiRequests.WithLabelValues(route, method, outcomeCanceled).Inc()
			return fmt.Errorf("%s %s: %w", method, endpoint, ctxErr)
		}
		apiRequests.WithLabelValues(route, method, outcomeUnreachable).Inc()
		c.log.Warn("request did not reach server",
			zap.String("endpoint", endpoint), zap.String("method", method), zap.Error(err))
		c.bus.Publish(events.Signal{Kind: events.ServerConnectionError, Message: ConnectionErrorMessage})
		return fmt.Errorf("%s %s: %w: %v", method, endpoint, ErrServerUnreachable, err)
	}
	defer resp.Body.Close()

	// only trigger auth_error for session timeouts, not for bad credentials
	if resp.StatusCode == http.StatusUnauthorized && !strings.Contains(endpoint, loginEndpoint) {
		c.log.Info("session rejected by server", zap.String("endpoint", endpoint))
		c.bus.Publish(events.Signal{Kind: events.AuthError})
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, endpoint, err)
	}
	isJSON := strings.Contains(resp.Header.Get("Content-Type"), "application/json")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiRequests.WithLabelValues(route, method, outcomeRejected).Inc()
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(resp, raw, isJSON)}
		c.log.Debug("request rejected",
			zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode), zap.String("message", apiErr.Message))
		return apiErr
	}

	apiRequests.WithLabelValues(route, method, outcomeOK).Inc()
	if out == nil || !isJSON || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, endpoint, err)
	}
	return nil
}

func errorMessage(resp *http.Response, raw []byte, isJSON bool) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if isJSON {
		// a malformed error body is treated as an empty object
		_ = json.Unmarshal(raw, &body)
	}
	switch {
	case body.Message != "":
		return body.Message
	case body.Error != "":
		return body.Error
	}
	if txt := http.StatusText(resp.StatusCode); txt != "" {
		return txt
	}
	return "Request failed"
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, http.MethodPost, endpoint, body, out)
}

func (c *Client) put(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, http.MethodPut, endpoint, body, out)
}

func (c *Client) del(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, out)
}

// requireID rejects blank path parameters before they turn into a bogus URL.
func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid(field, "must not be empty")
	}
	return nil
}
