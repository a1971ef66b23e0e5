// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"context"
	"io"

	"github.com/absmach/mpdemux/pkg/handler"
)

// State is the position of a parser in a multipart stream.
type State int

const (
	// Preamble is everything before the first boundary.
	Preamble State = iota

	// Headers is the header block of a part.
	Headers

	// Body is the body of a part, up to the next boundary.
	Body

	// Terminal is reached after the closing boundary.
	Terminal
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case Preamble:
		return "preamble"
	case Headers:
		return "headers"
	case Body:
		return "body"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Parser splits a stream into parts.
// Implementations are responsible for:
//  1. Reading the stream from r
//  2. Parsing each part's headers
//  3. Asking the handler for the part's sink
//  4. Streaming the part body into the sink and closing it
//
// Parse consumes the whole stream in one call. It should:
// - Return nil only after the closing boundary was read
// - Close every sink it obtained, on success and on failure
// - Return an error describing the state it failed in otherwise
type Parser interface {
	// Parse reads one multipart stream from r.
	// The handler h decides where each part body goes.
	// The handler context hctx carries the boundary and session metadata,
	// and is updated with the index of the current part.
	Parse(ctx context.Context, r io.Reader, h handler.Handler, hctx *handler.Context) error
}
