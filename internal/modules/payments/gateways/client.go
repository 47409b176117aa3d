// Package gateways holds the plumbing shared by the provider adapters:
// a JSON REST client whose failures map onto the payments error taxonomy,
// and helpers for digging values out of loosely typed provider payloads.
package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"multipay.dev/app/internal/modules/payments"
)

const DefaultTimeout = 20 * time.Second

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d %s", e.Provider, e.StatusCode, truncate(e.Body, 200))
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return payments.ErrInvalidGatewayCredentials
	}
	return payments.ErrGatewayUnavailable
}

// IsNotFound reports a provider 404/400 style "no such transaction" answer.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.StatusCode == http.StatusNotFound || ae.StatusCode == http.StatusBadRequest)
}

type Client struct {
	provider string
	baseURL  string
	http     *http.Client
	auth     func(r *http.Request)
}

func NewClient(provider, baseURL string, timeout time.Duration, auth func(r *http.Request)) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		auth:     auth,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// DoJSON sends in (if non-nil) as JSON and decodes the response into out.
// Transport failures, timeouts, 5xx and undecodable bodies all wrap
// payments.ErrGatewayUnavailable.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	raw, err := c.Do(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s returned malformed response: %v", payments.ErrGatewayUnavailable, c.provider, err)
	}
	return nil
}

func (c *Client) Do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth(req)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", payments.ErrGatewayUnavailable, c.provider, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", payments.ErrGatewayUnavailable, c.provider, err)
	}
	if res.StatusCode >= 300 {
		return nil, &APIError{Provider: c.provider, StatusCode: res.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
