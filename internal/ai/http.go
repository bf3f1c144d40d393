package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Option configures a provider client.
type Option func(*httpClient)

// WithBaseURL overrides the provider endpoint root.
func WithBaseURL(u string) Option { return func(c *httpClient) { c.baseURL = u } }

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *httpClient) { c.http = h } }

type httpClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func newHTTPClient(apiKey, baseURL string, opts []Option) httpClient {
	c := httpClient{http: &http.Client{}, baseURL: baseURL, apiKey: apiKey}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// postJSON sends payload and decodes a 2xx response into out.
func (c httpClient) postJSON(ctx context.Context, provider, path string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}
