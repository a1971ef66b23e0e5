// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mperrors "github.com/absmach/mpdemux/pkg/errors"
	"github.com/absmach/mpdemux/pkg/handler"
	"github.com/absmach/mpdemux/pkg/metrics"
	"github.com/absmach/mpdemux/pkg/parser/multipart"
	"github.com/absmach/mpdemux/pkg/pool"
	"github.com/absmach/mpdemux/pkg/ratelimit"
	"github.com/google/uuid"
)

// Config holds the receiver configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// TLSConfig is optional TLS configuration for the listener
	TLSConfig *tls.Config

	// MaxBodyBytes limits the size of a request body. 0 means no limit.
	MaxBodyBytes int64

	// ReadHeaderTimeout bounds reading the request line and headers (default 10s).
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight requests
	// during graceful shutdown (default 30s).
	ShutdownTimeout time.Duration

	// Limiter rate limits requests per client address. Nil disables it.
	Limiter *ratelimit.Limiter

	Metrics *metrics.Metrics

	// Logger for server events
	Logger *slog.Logger
}

// Server accepts multipart uploads over HTTP, demultiplexes them with
// parsers from a pool and answers with a manifest of the parts.
type Server struct {
	config  Config
	pool    *pool.Pool
	handler handler.Handler
	server  *http.Server
}

var _ http.Handler = (*Server)(nil)

// New creates a new receiver that routes parts to h.
func New(cfg Config, p *pool.Pool, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	s := &Server{
		config:  cfg,
		pool:    p,
		handler: h,
	}
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s,
		TLSConfig:         cfg.TLSConfig,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s
}

// Listen starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	s.config.Logger.Info("receiver started", slog.String("address", s.server.Addr))

	errCh := make(chan error, 1)
	go func() {
		if s.server.TLSConfig != nil {
			errCh <- s.server.ListenAndServeTLS("", "")
		} else {
			errCh <- s.server.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		s.config.Logger.Info("shutdown signal received, closing receiver")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.config.Logger.Error("error during shutdown", slog.String("error", err.Error()))
			return err
		}

		s.config.Logger.Info("receiver shutdown complete")
		return nil

	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("receiver on %s: %w", s.server.Addr, err)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.config.Metrics == nil {
		s.serve(w, r)
		return
	}
	if r.ContentLength > 0 {
		s.config.Metrics.RequestSize.WithLabelValues(r.Method).Observe(float64(r.ContentLength))
	}
	s.config.Metrics.ObserveRequest(r.Method, func() int {
		return s.serve(w, r)
	})
}

// serve handles one upload and returns the response status code.
func (s *Server) serve(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		w.Header().Set("Allow", "POST, PUT")
		return writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}

	client := clientAddr(r.RemoteAddr)
	if s.config.Limiter != nil && !s.config.Limiter.Allow(client) {
		if s.config.Metrics != nil {
			s.config.Metrics.RateLimitedRequests.WithLabelValues("receiver", "per_client").Inc()
		}
		s.config.Logger.Warn("per-client rate limit exceeded", slog.String("client", client))
		return writeError(w, http.StatusTooManyRequests, ratelimit.ErrRateLimitExceeded.Error(), "")
	}

	boundary, err := multipart.Boundary(r.Header.Get("Content-Type"))
	if err != nil {
		return writeError(w, http.StatusUnsupportedMediaType, err.Error(), "")
	}

	parser, err := s.pool.Get(r.Context())
	if err != nil {
		s.config.Logger.Warn("no parser available", slog.String("error", err.Error()))
		return writeError(w, http.StatusServiceUnavailable, err.Error(), "")
	}
	defer s.pool.Put(parser)

	body := r.Body
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	hctx := &handler.Context{
		SessionID:  uuid.New().String(),
		RemoteAddr: r.RemoteAddr,
		Boundary:   boundary,
	}
	manifest := &Manifest{Session: hctx.SessionID, Parts: []Part{}}
	rec := &recorder{next: s.handler, manifest: manifest, metrics: s.config.Metrics}

	parse := func() error {
		return parser.Parse(r.Context(), body, rec, hctx)
	}
	if s.config.Metrics != nil {
		err = s.config.Metrics.ObserveDemux("receiver", parse)
	} else {
		err = parse()
	}
	if err != nil {
		code := statusFor(err)
		s.config.Logger.Warn("upload rejected",
			slog.String("session", hctx.SessionID),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", code),
			slog.String("error", err.Error()))

		var state string
		var de *mperrors.DemuxError
		if errors.As(err, &de) {
			state = de.State
		}
		return writeError(w, code, err.Error(), state)
	}

	s.config.Logger.Info("upload demultiplexed",
		slog.String("session", hctx.SessionID),
		slog.String("remote", r.RemoteAddr),
		slog.Int("parts", len(manifest.Parts)))

	writeJSON(w, http.StatusOK, manifest)
	return http.StatusOK
}

// statusFor maps a demultiplexing error to a response status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, mperrors.ErrSink):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func clientAddr(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

type errorResponse struct {
	Error string `json:"error"`
	State string `json:"state,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg, state string) int {
	writeJSON(w, code, errorResponse{Error: msg, State: state})
	return code
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
