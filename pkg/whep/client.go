package whep

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/sdputil"
)

// DefaultTimeout bounds one HTTP exchange when the caller's context has no
// deadline.
const DefaultTimeout = 15 * time.Second

// maxAnswerSize caps the body read from the server.
const maxAnswerSize = 1 << 20

// Negotiator exchanges a local offer for the server's answer.
type Negotiator interface {
	Negotiate(ctx context.Context, offer string) (string, error)
	// Bye ends the session. It is a no-op before a successful Negotiate.
	Bye(ctx context.Context) error
}

// Config configures a Client or LegacyClient.
type Config struct {
	URL *URL
	// Play selects WHEP (or type=play); otherwise WHIP (or type=push).
	Play bool
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient    *http.Client
	LoggerFactory logging.LoggerFactory
}

func (c Config) setup(name string) (*http.Client, logging.LeveledLogger, error) {
	if c.URL == nil {
		return nil, nil, fmt.Errorf("%w: URL is required", ErrBadURL)
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	lf := c.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return hc, lf.NewLogger(name), nil
}

// Client speaks WHEP or WHIP.
type Client struct {
	url  string
	http *http.Client
	log  logging.LeveledLogger

	mu        sync.Mutex
	deleteURL string
}

var _ Negotiator = (*Client)(nil)

// NewClient returns a WHEP client when cfg.Play is set, else a WHIP client.
func NewClient(cfg Config) (*Client, error) {
	hc, log, err := cfg.setup("whep")
	if err != nil {
		return nil, err
	}
	return &Client{url: cfg.URL.NegotiateURL(cfg.Play), http: hc, log: log}, nil
}

// Negotiate POSTs the offer and returns the answer body. The server must
// reply 201 Created; its Location header names the session resource.
func (c *Client) Negotiate(ctx context.Context, offer string) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	c.log.Debugf("POST %s", c.url)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("whep: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Accept", "application/sdp")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whep: post offer: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return "", fmt.Errorf("whep: read answer: %w", err)
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		c.mu.Lock()
		c.deleteURL = resolve(c.url, loc)
		c.mu.Unlock()
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	answer := string(body)
	if err := sdputil.Validate(answer); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}
	return answer, nil
}

// Bye DELETEs the session resource.
func (c *Client) Bye(ctx context.Context) error {
	c.mu.Lock()
	target := c.deleteURL
	c.deleteURL = ""
	c.mu.Unlock()
	if target == "" {
		return nil
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	c.log.Debugf("DELETE %s", target)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("whep: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whep: delete session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// SessionURL returns the resource named by the last Location header.
func (c *Client) SessionURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteURL
}

// LegacyClient speaks the /index/api/webrtc JSON API.
type LegacyClient struct {
	url  string
	http *http.Client
	log  logging.LeveledLogger
}

var _ Negotiator = (*LegacyClient)(nil)

// legacyResponse is the JSON reply of /index/api/webrtc.
type legacyResponse struct {
	Code int    `json:"code"`
	SDP  string `json:"sdp"`
	Msg  string `json:"msg"`
	Type string `json:"type,omitempty"`
}

// NewLegacyClient returns a client for the JSON API.
func NewLegacyClient(cfg Config) (*LegacyClient, error) {
	hc, log, err := cfg.setup("whep")
	if err != nil {
		return nil, err
	}
	return &LegacyClient{url: cfg.URL.LegacyURL(cfg.Play), http: hc, log: log}, nil
}

// Negotiate POSTs the offer as the raw body and decodes {code, sdp, msg}.
// A non-zero code is an error carrying msg.
func (c *LegacyClient) Negotiate(ctx context.Context, offer string) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	c.log.Debugf("POST %s", c.url)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("whep: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whep: post offer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var r legacyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAnswerSize)).Decode(&r); err != nil {
		return "", fmt.Errorf("whep: decode response: %w", err)
	}
	if r.Code != 0 {
		return "", fmt.Errorf("%w: code %d: %s", ErrInvalidAnswer, r.Code, r.Msg)
	}
	if err := sdputil.Validate(r.SDP); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}
	return r.SDP, nil
}

// Bye is a no-op; the JSON API has no session resource.
func (c *LegacyClient) Bye(context.Context) error { return nil }

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

// resolve makes a Location header absolute against the request URL.
func resolve(base, loc string) string {
	b, err := url.Parse(base)
	if err != nil {
		return loc
	}
	l, err := url.Parse(loc)
	if err != nil {
		return loc
	}
	return b.ResolveReference(l).String()
}
