package sources

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTP fetches objects from a plain HTTP symbol server.
type HTTP struct {
	id      string
	base    *url.URL
	prefix  string
	headers map[string]string
	token   string
	client  *http.Client
	idle    time.Duration
}

// NewHTTP creates a backend for cfg. A nil client selects a default client
// whose connection setup and response headers are bounded by cfg.Timeout.
func NewHTTP(cfg domain.SourceConfig, client *http.Client) (*HTTP, error) {
	base, err := parseBaseURL(cfg)
	if err != nil {
		return nil, err
	}
	return &HTTP{
		id:      cfg.ID,
		base:    base,
		prefix:  cfg.Prefix,
		headers: cfg.Headers,
		token:   cfg.Token,
		client:  clientFor(cfg, client),
		idle:    timeoutFor(cfg),
	}, nil
}

func parseBaseURL(cfg domain.SourceConfig) (*url.URL, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		invalid := zerr.With(domain.ErrInvalidSourceConfig, "url", cfg.URL)
		return nil, zerr.With(invalid, "source", cfg.ID)
	}
	return base, nil
}

func timeoutFor(cfg domain.SourceConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return defaultHTTPTimeout
}

// clientFor bounds each phase of an exchange up to the response headers.
// Bodies have no overall deadline: large objects stream for as long as data
// keeps arriving, and idleBody cuts off a stalled one.
func clientFor(cfg domain.SourceConfig, client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	timeout := timeoutFor(cfg)
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   8,
		},
	}
}

// idleBody fails a response body that delivers nothing for idle.
type idleBody struct {
	body    io.ReadCloser
	idle    time.Duration
	timer   *time.Timer
	expired atomic.Bool
	source  string
	objPath string
}

func newIdleBody(body io.ReadCloser, idle time.Duration, source, objPath string) *idleBody {
	b := &idleBody{body: body, idle: idle, source: source, objPath: objPath}
	b.timer = time.AfterFunc(idle, func() {
		b.expired.Store(true)
		_ = body.Close()
	})
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if n > 0 {
		b.timer.Reset(b.idle)
	}
	if err != nil && !errors.Is(err, io.EOF) && b.expired.Load() {
		err = zerr.With(zerr.With(domain.ErrSourceRequestFailed, "reason", "body stalled"), "idle", b.idle.String())
		return n, domain.Transient(annotate(err, b.source, b.objPath))
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	return b.body.Close()
}

// ID implements ports.SourceBackend.
func (h *HTTP) ID() string { return h.id }

func (h *HTTP) url(objPath string) string {
	u := *h.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + objectKey(h.prefix, objPath)
	u.RawPath = ""
	return u.String()
}

func (h *HTTP) newRequest(ctx context.Context, method, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrSourceRequestFailed.Error())
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return req, nil
}

// Fetch implements ports.SourceBackend.
func (h *HTTP) Fetch(ctx context.Context, objPath string) (io.ReadCloser, error) {
	clean, err := cleanObjectPath(objPath)
	if err != nil {
		return nil, err
	}
	req, err := h.newRequest(ctx, http.MethodGet, h.url(clean))
	if err != nil {
		return nil, domain.Transient(annotate(err, h.id, objPath))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, transient(err, h.id, objPath)
	}
	if err := classifyStatus(resp.StatusCode, h.id, objPath); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return newIdleBody(resp.Body, h.idle, h.id, objPath), nil
}

// Exists implements ports.SourceBackend using a HEAD request.
func (h *HTTP) Exists(ctx context.Context, objPath string) (bool, error) {
	clean, err := cleanObjectPath(objPath)
	if err != nil {
		return false, nil
	}
	req, err := h.newRequest(ctx, http.MethodHead, h.url(clean))
	if err != nil {
		return false, domain.Transient(annotate(err, h.id, objPath))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return false, transient(err, h.id, objPath)
	}
	_ = resp.Body.Close()

	err = classifyStatus(resp.StatusCode, h.id, objPath)
	if err == nil {
		return true, nil
	}
	if domain.KindOf(err) == domain.KindNotFound {
		return false, nil
	}
	return false, err
}
