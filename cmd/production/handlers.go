// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/absmach/mpdemux/pkg/breaker"
	"github.com/absmach/mpdemux/pkg/handler"
	"github.com/absmach/mpdemux/pkg/metrics"
	"github.com/absmach/mpdemux/pkg/ratelimit"
)

// RateLimitedHandler wraps a handler with a global limit on parts per second.
type RateLimitedHandler struct {
	handler       handler.Handler
	globalLimiter *ratelimit.TokenBucket
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// Sink implements handler.Handler with rate limiting.
func (h *RateLimitedHandler) Sink(ctx context.Context, hctx *handler.Context, hdr handler.Header) (io.WriteCloser, error) {
	if !h.globalLimiter.Allow() {
		h.metrics.RateLimitedRequests.WithLabelValues("sink", "global").Inc()
		h.logger.Warn("Global part rate limit exceeded",
			slog.String("session", hctx.SessionID),
			slog.String("remote", hctx.RemoteAddr))
		return nil, ratelimit.ErrRateLimitExceeded
	}

	return h.handler.Sink(ctx, hctx, hdr)
}

// BreakerHandler stops resolving sinks after repeated failures, e.g. a full
// disk, until the breaker lets a probe through.
type BreakerHandler struct {
	handler handler.Handler
	breaker *breaker.CircuitBreaker
}

// Sink implements handler.Handler through the circuit breaker.
func (h *BreakerHandler) Sink(ctx context.Context, hctx *handler.Context, hdr handler.Header) (io.WriteCloser, error) {
	var sink io.WriteCloser
	err := h.breaker.Call(func() error {
		var err error
		sink, err = h.handler.Sink(ctx, hctx, hdr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	name    string
	handler handler.Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Sink implements handler.Handler with metrics.
func (h *InstrumentedHandler) Sink(ctx context.Context, hctx *handler.Context, hdr handler.Header) (io.WriteCloser, error) {
	start := time.Now()
	sink, err := h.handler.Sink(ctx, hctx, hdr)
	h.metrics.SinkDuration.WithLabelValues(h.name).Observe(time.Since(start).Seconds())

	if err != nil {
		h.metrics.SinkErrors.WithLabelValues(h.name, "open").Inc()
		h.logger.Error("Failed to open part sink",
			slog.String("session", hctx.SessionID),
			slog.Int("part", hctx.Part),
			slog.String("error", err.Error()))
		return nil, err
	}
	if sink == nil {
		return nil, nil
	}
	return &instrumentedSink{WriteCloser: sink, name: h.name, metrics: h.metrics}, nil
}

type instrumentedSink struct {
	io.WriteCloser
	name    string
	metrics *metrics.Metrics
}

func (s *instrumentedSink) Write(p []byte) (int, error) {
	n, err := s.WriteCloser.Write(p)
	if err != nil {
		s.metrics.SinkErrors.WithLabelValues(s.name, "write").Inc()
	}
	return n, err
}

func (s *instrumentedSink) Close() error {
	err := s.WriteCloser.Close()
	if err != nil {
		s.metrics.SinkErrors.WithLabelValues(s.name, "close").Inc()
	}
	return err
}
