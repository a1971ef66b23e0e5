// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser defines the interface for stream demultiplexers.
//
// # Architecture Overview
//
// Parsers sit between a byte source (an HTTP response body, a request body,
// a file) and the handler that decides where data goes. They never own the
// destination: they ask the handler for one sink per part and stream bytes
// into it.
//
// # Parser Interface
//
// The Parser interface has a single method:
//
//	Parse(ctx context.Context, r io.Reader, h handler.Handler, hctx *handler.Context) error
//
// Parse consumes one complete stream. It returns nil once the closing
// boundary has been read and a wrapped error otherwise.
//
// # States
//
// The State type names the position of the parser in the stream:
//   - Preamble: bytes before the first boundary (discarded)
//   - Headers: header block of a part
//   - Body: part body, up to the next boundary
//   - Terminal: after the closing boundary
//
// Errors returned by Parse carry the state they happened in, so a caller can
// tell a truncated body from a stream that never had a boundary.
//
// # Implementations
//
//   - parser/multipart: bounded-memory MIME multipart demultiplexer
//
// # Example
//
//	p, err := multipart.New(multipart.Config{})
//	if err != nil {
//		return err
//	}
//	hctx := &handler.Context{SessionID: id, Boundary: boundary}
//	if err := p.Parse(ctx, resp.Body, handler.NewDir(out), hctx); err != nil {
//		return err
//	}
package parser
