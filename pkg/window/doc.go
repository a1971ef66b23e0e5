// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package window implements a bounded, circular read window over an io.Reader.
//
// # Overview
//
// A Window holds at most Cap() bytes of its source at any time, no matter how
// long the source is. It exposes two copy operations that the multipart
// parser is built on:
//
//	CopyN(ctx, dst, n)           copy exactly n bytes
//	CopyUntil(ctx, dst, pattern) copy until pattern, then drop the pattern
//
// A nil dst discards the bytes.
//
// # Layout
//
//	buf:  [ d e f . . . . a b c ]
//	              ^tail   ^head
//
// Valid bytes start at head and continue for Len() bytes, wrapping to index 0
// at the end of the physical array. Offset i of the valid region lives at
// (head + i) % Cap().
//
// # Refill and Matching
//
// Before every scan the window reads from the source until it is full or the
// source reports io.EOF. The scan is a plain backtracking search across the
// circular region, so a match may straddle the physical wrap point.
//
// When a full window contains no match, all but the last len(pattern)-1 bytes
// are flushed to dst. Those held-back bytes may be the first half of a
// pattern whose second half has not been read yet; the next refill joins them.
// Dropping this hold-back makes boundary detection depend on where the source
// happens to split its reads.
//
// # Errors
//
//   - ErrEndOfStream: CopyN ran out of source bytes
//   - ErrPatternNotFound: CopyUntil reached EOF without a match
//   - ErrPatternTooLong: the pattern cannot fit in the window
//   - ErrNotInitialized: copy before Reset
//   - ErrSink: dst returned a write error
//   - context errors: the context was done before a source read
//
// All of them come from pkg/errors and are matched with errors.Is.
//
// # Example
//
//	w, _ := window.New(window.DefaultSize)
//	w.Reset(body)
//	n, err := w.CopyUntil(ctx, file, []byte("\r\n--boundary"))
package window
