// Package proxy serves cached debug files over HTTP in the symbol server
// layout "<name>/<id>/<file>".
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	symbolsPrefix     = "/symbols/"
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Objects locates debug files through the cache.
type Objects interface {
	// OpenObject returns a pinned cache entry for the symstore path.
	OpenObject(ctx context.Context, name, id, file string) (ports.CacheHandle, error)
}

// Options configures a Server.
type Options struct {
	Objects Objects
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  ports.Logger
	// AccessLog receives one line per request in Apache combined format.
	AccessLog io.Writer
}

// Server is the symbol proxy.
type Server struct {
	objects   Objects
	metrics   http.Handler
	logger    ports.Logger
	accessLog io.Writer
}

// New creates a Server.
func New(opts Options) *Server {
	return &Server{
		objects:   opts.Objects,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		accessLog: opts.AccessLog,
	}
}

// Handler returns the routed handler with access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET "+symbolsPrefix, s.symbols)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	var h http.Handler = mux
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))(h)
	if s.accessLog != nil {
		h = handlers.CombinedLoggingHandler(s.accessLog, h)
	}
	return h
}

// Serve accepts connections on l until ctx ends.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("serving symbols", "addr", l.Addr().String())
	err := server.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on addr and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to listen"), "addr", addr)
	}
	return s.Serve(ctx, l)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) symbols(w http.ResponseWriter, r *http.Request) {
	name, id, file, err := ParsePath(strings.TrimPrefix(r.URL.Path, symbolsPrefix))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h, err := s.objects.OpenObject(r.Context(), name, id, file)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer h.Release()

	f, err := os.Open(h.Path())
	if err != nil {
		s.fail(w, zerr.Wrap(err, domain.ErrCacheReadFailed.Error()))
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(h.Size(), 10))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("failed to stream object", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(err)
	}
	http.Error(w, http.StatusText(status), status)
}

// StatusFor maps a lookup failure to an HTTP status.
func StatusFor(err error) int {
	if domain.IsCancellation(err) {
		return http.StatusGatewayTimeout
	}
	switch domain.KindOf(err) {
	case domain.KindNotFound, domain.KindMalformed:
		return http.StatusNotFound
	case domain.KindResourceExhausted:
		return http.StatusServiceUnavailable
	case domain.KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ParsePath splits "<name>/<id>/<file>". No segment may be empty or
// climb out of the tree.
func ParsePath(p string) (name, id, file string, err error) {
	parts := strings.Split(p, "/")
	if len(parts) != 3 {
		return "", "", "", zerr.With(domain.ErrInvalidSymstorePath, "path", p)
	}
	for _, part := range parts {
		if part == "" || part == "." || part == ".." || strings.Contains(part, "\\") {
			return "", "", "", zerr.With(domain.ErrInvalidSymstorePath, "path", p)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

type recoveryLogger struct {
	logger ports.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Warn("recovered from panic in handler", "panic", fmt.Sprint(v...))
}
