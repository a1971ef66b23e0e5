// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"io"
	"strings"
)

// Header holds the header fields of one multipart part. Names keep their
// original case and both names and values are trimmed. When a part repeats a
// name, the last occurrence wins.
type Header map[string]string

// Get returns the value for name. An exact match is preferred; otherwise the
// first case-insensitive match is returned.
func (h Header) Get(name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Context carries demultiplexing session metadata.
// It is passed to Handler methods together with the part headers.
type Context struct {
	// SessionID is a unique identifier for this demultiplexing run
	SessionID string

	// RemoteAddr is the peer that produced the stream, if any
	RemoteAddr string

	// Boundary is the multipart boundary token of the stream
	Boundary string

	// Part is the zero-based index of the part being resolved
	Part int
}

// Handler resolves where the body of a part is written.
//
// Sink is called once per part, right after its headers are parsed. It
// returns the destination for the part body, or nil to discard the body.
// The parser closes a non-nil sink once the body is written, including when
// the parse fails. Returning an error aborts the whole stream.
type Handler interface {
	Sink(ctx context.Context, hctx *Context, hdr Header) (io.WriteCloser, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, hctx *Context, hdr Header) (io.WriteCloser, error)

var _ Handler = HandlerFunc(nil)

// Sink calls f(ctx, hctx, hdr).
func (f HandlerFunc) Sink(ctx context.Context, hctx *Context, hdr Header) (io.WriteCloser, error) {
	return f(ctx, hctx, hdr)
}

// NoopHandler is a Handler implementation that discards every part.
// Useful for testing or for validating a stream without storing it.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) Sink(ctx context.Context, hctx *Context, hdr Header) (io.WriteCloser, error) {
	return nil, nil
}
