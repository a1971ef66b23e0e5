// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for mpdemux.
package errors

import (
	"errors"
	"fmt"
)

// Demultiplexing error kinds. Every failure surfaced by the window or the
// multipart parser matches exactly one of these with errors.Is.
var (
	// ErrEndOfStream indicates the source ended before the requested bytes were produced.
	ErrEndOfStream = errors.New("unexpected end of stream")

	// ErrPatternNotFound indicates a required delimiter never appeared before the source ended.
	ErrPatternNotFound = errors.New("pattern not found")

	// ErrMalformedHeader indicates a part header line without a name/value separator.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrSink indicates the part destination failed to open, accept bytes or close.
	ErrSink = errors.New("sink error")

	// ErrPatternTooLong indicates a delimiter that cannot fit in the window.
	ErrPatternTooLong = errors.New("pattern longer than window")

	// ErrNotInitialized indicates a window read before a source was bound.
	ErrNotInitialized = errors.New("window not initialized")
)

// Common error types
var (
	// ErrInvalidInput indicates invalid input data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBackendUnavailable indicates the document service is unavailable.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRateLimited indicates rate limit exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnexpectedStatus indicates a non-2xx response from the document service.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// DemuxError wraps an error with the state of the demultiplexer at the time
// of failure.
type DemuxError struct {
	Op        string // Operation that failed
	State     string // Parser state (preamble, headers, body)
	Part      int    // Zero-based index of the part being processed
	SessionID string // Session identifier
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *DemuxError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s [%s] part %d: %v", e.Op, e.State, e.SessionID, e.Part, e.Err)
	}
	return fmt.Sprintf("%s %s part %d: %v", e.Op, e.State, e.Part, e.Err)
}

// Unwrap returns the underlying error.
func (e *DemuxError) Unwrap() error {
	return e.Err
}

// New creates a new DemuxError.
func New(op, state string, part int, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return &DemuxError{
		Op:        op,
		State:     state,
		Part:      part,
		SessionID: sessionID,
		Err:       err,
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Sink marks err as a failure of the part destination.
func Sink(err error) error {
	if err == nil || errors.Is(err, ErrSink) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSink, err)
}
