package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/boardsync/internal/auth"
	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/codec"
	"github.com/danmuck/boardsync/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	trackingHeader = "TrackingID"
	trackingPrefix = "boardsync_"
	maxErrorBody   = 512
)

// Client talks to the board REST service.
type Client struct {
	cfg      Config
	base     string
	http     *http.Client
	authz    auth.Authorizer
	codec    *codec.Codec
	uploader Uploader
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithUploader(u Uploader) Option {
	return func(c *Client) {
		c.uploader = u
	}
}

// New builds a client for cfg.ServiceURL. The codec encrypts and decrypts content payloads.
func New(cfg Config, authz auth.Authorizer, cd *codec.Codec, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	base := strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")
	if base == "" {
		return nil, ErrMissingServiceURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("persistence: parse service url: %w", err)
	}
	c := &Client{
		cfg:   cfg,
		base:  base,
		http:  &http.Client{Timeout: cfg.Timeout},
		authz: authz,
		codec: cd,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Config() Config {
	return c.cfg
}

// resolve accepts absolute service links as-is and joins anything else onto the base URL.
func (c *Client) resolve(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return c.base + target
}

type request struct {
	method string
	target string
	query  url.Values
	body   any
}

// do performs one authorized JSON round trip, decoding a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) (http.Header, error) {
	target := c.resolve(r.target)
	if len(r.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("persistence: encode %s body: %w", r.method, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("persistence: build request: %w", err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	trackingID := trackingPrefix + uuid.NewString()
	req.Header.Set(trackingHeader, trackingID)
	if c.authz != nil {
		token, err := c.authz.Authorization(ctx)
		if err != nil {
			return nil, fmt.Errorf("persistence: authorize: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.RecordPersistenceRequest(r.method, 0, time.Since(start))
		log.Error().
			Str("method", r.method).
			Str("url", target).
			Str("tracking_id", trackingID).
			Err(err).
			Msg("persistence_request_failed")
		return nil, fmt.Errorf("persistence: %s %s: %w", r.method, target, err)
	}
	defer resp.Body.Close()
	observability.RecordPersistenceRequest(r.method, resp.StatusCode, time.Since(start))
	log.Debug().
		Str("method", r.method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Str("tracking_id", trackingID).
		Msg("persistence_request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.Header, &HTTPError{
			Method:     r.method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.Header, fmt.Errorf("persistence: read body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.Header, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.Header, fmt.Errorf("persistence: decode %s %s: %w", r.method, target, err)
	}
	return resp.Header, nil
}

func (c *Client) channelURL(channel board.Channel) (string, error) {
	if u := strings.TrimSpace(channel.ChannelURL); u != "" {
		return strings.TrimRight(u, "/"), nil
	}
	if id := strings.TrimSpace(channel.ChannelID); id != "" {
		return c.base + "/channels/" + url.PathEscape(id), nil
	}
	return "", ErrMissingChannel
}
