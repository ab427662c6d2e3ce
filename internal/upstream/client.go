// Package upstream is the shared HTTP layer for provider clients. It
// converts transport-level outcomes into the gateway's error taxonomy so
// providers never leak raw HTTP failures.
package upstream

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

	"github.com/xwell/ptgen/internal/mediainfo"
)

// Browser-like UA: several upstreams serve CAPTCHAs to obvious bots.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// maxBodySize caps upstream reads; responses beyond this are malformed.
const maxBodySize = 4 << 20

type Client struct {
	http *http.Client
	ua   string
}

type Option func(*Client)

// WithHTTPClient swaps the transport, used by provider tests and by the
// IGDB provider to inject its OAuth2 client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.ua = ua }
}

// New creates a client with the given per-call timeout.
func New(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: timeout},
		ua:   defaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetJSON fetches url and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	body, err := c.do(ctx, http.MethodGet, url, "", nil, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return mediainfo.UpstreamWrap(err, fmt.Sprintf("malformed JSON from %s", hostOf(url)))
	}
	return nil
}

// PostJSON sends body and decodes the JSON response into out. IGDB's
// query language travels as a plain-text POST body.
func (c *Client) PostJSON(ctx context.Context, url, contentType string, reqBody []byte, headers map[string]string, out any) error {
	body, err := c.do(ctx, http.MethodPost, url, contentType, reqBody, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return mediainfo.UpstreamWrap(err, fmt.Sprintf("malformed JSON from %s", hostOf(url)))
	}
	return nil
}

// GetBody fetches url and returns the raw body, for providers that dig
// structured data out of HTML (JSON-LD blocks).
func (c *Client) GetBody(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, "", nil, headers)
}

func (c *Client) do(ctx context.Context, method, url, contentType string, reqBody []byte, headers map[string]string) ([]byte, error) {
	var r io.Reader
	if reqBody != nil {
		r = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, mediainfo.Internalf("build request for %s: %v", url, err)
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, mediainfo.Upstreamf("%s timed out", hostOf(url))
		}
		return nil, mediainfo.UpstreamWrap(err, fmt.Sprintf("request to %s failed", hostOf(url)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, mediainfo.UpstreamWrap(err, fmt.Sprintf("read response from %s", hostOf(url)))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, mediainfo.NotFoundf("%s: resource not found", hostOf(url))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, mediainfo.RateLimited(hostOf(url) + " rate limited the gateway")
	case resp.StatusCode >= 500:
		return nil, mediainfo.Upstreamf("%s returned %d", hostOf(url), resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, mediainfo.Upstreamf("%s rejected the request with %d", hostOf(url), resp.StatusCode)
	}

	if looksBlocked(body) {
		return nil, mediainfo.Upstreamf("%s served an anti-bot challenge", hostOf(url))
	}
	return body, nil
}

// looksBlocked detects CAPTCHA interstitials that arrive with status 200.
func looksBlocked(body []byte) bool {
	if len(body) > 8192 {
		body = body[:8192]
	}
	s := strings.ToLower(string(body))
	return strings.Contains(s, "sec.douban.com") ||
		strings.Contains(s, "captcha") && strings.Contains(s, "<form")
}

func hostOf(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
