// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package window

import (
	"context"
	"fmt"
	"io"

	mperrors "github.com/absmach/mpdemux/pkg/errors"
)

// DefaultSize is the window capacity used when none is configured.
const DefaultSize = 8 * 1024

// maxEmptyReads bounds consecutive (0, nil) reads from the source.
const maxEmptyReads = 100

// Window is a fixed-capacity circular buffer over an io.Reader.
//
// Valid data starts at head and spans size bytes, wrapping past the end of
// buf back to index 0. A Window is not safe for concurrent use.
type Window struct {
	buf  []byte
	head int
	size int
	src  io.Reader
	eof  bool
}

// New creates a window with the given capacity.
func New(capacity int) (*Window, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: window capacity %d", mperrors.ErrInvalidInput, capacity)
	}
	return &Window{buf: make([]byte, capacity)}, nil
}

// Cap returns the capacity of the window.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Len returns the number of buffered, unconsumed bytes.
func (w *Window) Len() int {
	return w.size
}

// Reset binds the window to src and discards any buffered bytes.
func (w *Window) Reset(src io.Reader) {
	w.src = src
	w.head = 0
	w.size = 0
	w.eof = false
}

// CopyN writes exactly n bytes from the source to dst. A nil dst discards
// them. It returns ErrEndOfStream if the source ends first.
func (w *Window) CopyN(ctx context.Context, dst io.Writer, n int) error {
	if w.src == nil {
		return mperrors.ErrNotInitialized
	}
	for n > 0 {
		if w.size == 0 {
			if err := w.fill(ctx); err != nil {
				return err
			}
			if w.size == 0 {
				return mperrors.ErrEndOfStream
			}
		}
		k := min(n, w.size)
		if err := w.flush(dst, k); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// CopyUntil writes every byte preceding the first occurrence of pattern to
// dst, then consumes the pattern without writing it. A nil dst discards the
// bytes. It returns the number of bytes written, and ErrPatternNotFound if the
// source ends before the pattern appears.
func (w *Window) CopyUntil(ctx context.Context, dst io.Writer, pattern []byte) (int64, error) {
	if w.src == nil {
		return 0, mperrors.ErrNotInitialized
	}
	if len(pattern) == 0 {
		return 0, fmt.Errorf("%w: empty pattern", mperrors.ErrInvalidInput)
	}
	if len(pattern) > len(w.buf) {
		return 0, fmt.Errorf("%w: %d > %d", mperrors.ErrPatternTooLong, len(pattern), len(w.buf))
	}

	var written int64
	for {
		if err := w.fill(ctx); err != nil {
			return written, err
		}
		if i := w.index(pattern); i >= 0 {
			if err := w.flush(dst, i); err != nil {
				return written, err
			}
			written += int64(i)
			w.skip(len(pattern))
			return written, nil
		}
		if w.eof {
			return written, mperrors.ErrPatternNotFound
		}

		// The tail may hold the beginning of a match that the next fill
		// completes, so keep len(pattern)-1 bytes.
		keep := len(pattern) - 1
		if k := w.size - keep; k > 0 {
			if err := w.flush(dst, k); err != nil {
				return written, err
			}
			written += int64(k)
		}
	}
}

// fill reads from the source until the buffer is full or the source is
// exhausted. Cancellation is checked before every read.
func (w *Window) fill(ctx context.Context) error {
	empty := 0
	for w.size < len(w.buf) && !w.eof {
		if err := ctx.Err(); err != nil {
			return err
		}
		tail := w.pos(w.size)
		n := min(len(w.buf)-w.size, len(w.buf)-tail)
		m, err := w.src.Read(w.buf[tail : tail+n])
		w.size += m
		switch {
		case err == io.EOF:
			w.eof = true
		case err != nil:
			return err
		case m == 0:
			empty++
			if empty >= maxEmptyReads {
				return io.ErrNoProgress
			}
		default:
			empty = 0
		}
	}
	return nil
}

// flush writes the first n buffered bytes to dst and consumes them.
func (w *Window) flush(dst io.Writer, n int) error {
	for n > 0 {
		k := min(n, len(w.buf)-w.head)
		if dst != nil {
			if _, err := dst.Write(w.buf[w.head : w.head+k]); err != nil {
				return mperrors.Sink(err)
			}
		}
		w.skip(k)
		n -= k
	}
	return nil
}

// index returns the offset of the first full match of pattern in the
// buffered bytes, or -1.
func (w *Window) index(pattern []byte) int {
	last := w.size - len(pattern)
	for i := 0; i <= last; i++ {
		j := 0
		for j < len(pattern) && w.at(i+j) == pattern[j] {
			j++
		}
		if j == len(pattern) {
			return i
		}
	}
	return -1
}

func (w *Window) at(i int) byte {
	return w.buf[w.pos(i)]
}

func (w *Window) pos(i int) int {
	return (w.head + i) % len(w.buf)
}

func (w *Window) skip(n int) {
	w.head = w.pos(n)
	w.size -= n
}
