// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package multipart

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	mperrors "github.com/absmach/mpdemux/pkg/errors"
	"github.com/absmach/mpdemux/pkg/handler"
	"github.com/absmach/mpdemux/pkg/parser"
	"github.com/absmach/mpdemux/pkg/window"
	"go.uber.org/multierr"
)

// DefaultMaxHeaderBytes bounds the size of one part's header block.
const DefaultMaxHeaderBytes = 64 * 1024

const op = "demux"

var (
	crlf   = []byte("\r\n")
	dashes = []byte("--")
)

// Config holds the multipart parser configuration.
type Config struct {
	// BufferSize is the capacity of the read window (default window.DefaultSize).
	// The delimiter "\r\n--" + boundary must fit in it.
	BufferSize int

	// MaxHeaderBytes bounds the header block of a single part
	// (default DefaultMaxHeaderBytes).
	MaxHeaderBytes int

	// Logger for parser events
	Logger *slog.Logger
}

// Parser demultiplexes MIME multipart streams using a fixed amount of memory.
// A Parser may be reused for consecutive streams but is not safe for
// concurrent use.
type Parser struct {
	window         *window.Window
	scratch        bytes.Buffer
	maxHeaderBytes int
	logger         *slog.Logger
}

var _ parser.Parser = (*Parser)(nil)

// New creates a new multipart parser with the given configuration.
func New(cfg Config) (*Parser, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = window.DefaultSize
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	w, err := window.New(cfg.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	return &Parser{
		window:         w,
		maxHeaderBytes: cfg.MaxHeaderBytes,
		logger:         cfg.Logger,
	}, nil
}

// BufferSize returns the capacity of the parser's read window.
func (p *Parser) BufferSize() int {
	return p.window.Cap()
}

// Parse splits the multipart stream in r into parts delimited by
// hctx.Boundary. For every part it reads the header block, asks h for a sink,
// writes the body into it and closes it. Parse returns nil once the closing
// boundary has been read. Bytes after the closing boundary are ignored.
//
// Errors are *errors.DemuxError values carrying the parser state and the part
// index; the cause is one of the kinds in pkg/errors or a context error.
func (p *Parser) Parse(ctx context.Context, r io.Reader, h handler.Handler, hctx *handler.Context) error {
	if hctx == nil {
		hctx = &handler.Context{}
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}
	hctx.Part = 0

	if hctx.Boundary == "" {
		return p.fail(parser.Preamble, hctx, fmt.Errorf("%w: empty boundary", mperrors.ErrInvalidInput))
	}
	delim := []byte("\r\n--" + hctx.Boundary)
	if len(delim) > p.window.Cap() {
		return p.fail(parser.Preamble, hctx, fmt.Errorf("%w: delimiter of %d bytes, window of %d bytes",
			mperrors.ErrPatternTooLong, len(delim), p.window.Cap()))
	}

	// The first boundary may open the stream without a preceding CRLF.
	p.window.Reset(io.MultiReader(bytes.NewReader(crlf), r))

	if _, err := p.window.CopyUntil(ctx, nil, delim); err != nil {
		return p.fail(parser.Preamble, hctx, err)
	}
	if err := p.window.CopyN(ctx, nil, len(crlf)); err != nil {
		return p.fail(parser.Preamble, hctx, err)
	}

	for {
		last, err := p.part(ctx, delim, h, hctx)
		if err != nil {
			return err
		}
		if last {
			p.logger.Debug("multipart stream complete",
				slog.String("session", hctx.SessionID),
				slog.Int("parts", hctx.Part+1))
			return nil
		}
		hctx.Part++
	}
}

// part processes the headers and body of one part. It reports whether the
// boundary that ended the part was the closing one.
func (p *Parser) part(ctx context.Context, delim []byte, h handler.Handler, hctx *handler.Context) (bool, error) {
	hdr, err := ReadHeaders(ctx, p.window, &p.scratch, p.maxHeaderBytes)
	if err != nil {
		return false, p.fail(parser.Headers, hctx, err)
	}

	sink, err := h.Sink(ctx, hctx, hdr)
	if err != nil {
		return false, p.fail(parser.Headers, hctx, mperrors.Sink(err))
	}

	var dst io.Writer
	if sink != nil {
		dst = sink
	}
	n, err := p.window.CopyUntil(ctx, dst, delim)
	if err != nil {
		if sink != nil {
			err = multierr.Append(err, mperrors.Sink(sink.Close()))
		}
		return false, p.fail(parser.Body, hctx, err)
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			return false, p.fail(parser.Body, hctx, mperrors.Sink(err))
		}
	}

	p.logger.Debug("part demultiplexed",
		slog.String("session", hctx.SessionID),
		slog.Int("part", hctx.Part),
		slog.Int64("bytes", n),
		slog.Bool("discarded", sink == nil))

	// "--" closes the stream, anything else (normally CRLF) opens the next part.
	p.scratch.Reset()
	if err := p.window.CopyN(ctx, &p.scratch, len(dashes)); err != nil {
		return false, p.fail(parser.Body, hctx, err)
	}
	marker := p.scratch.Bytes()
	if !bytes.Equal(marker, dashes) && !bytes.Equal(marker, crlf) {
		p.logger.Warn("unexpected bytes after boundary",
			slog.String("session", hctx.SessionID),
			slog.Int("part", hctx.Part),
			slog.String("bytes", fmt.Sprintf("%q", marker)))
	}
	return bytes.Equal(marker, dashes), nil
}

func (p *Parser) fail(state parser.State, hctx *handler.Context, err error) error {
	p.logger.Debug("multipart stream failed",
		slog.String("session", hctx.SessionID),
		slog.String("state", state.String()),
		slog.Int("part", hctx.Part),
		slog.String("error", err.Error()))
	return mperrors.New(op, state.String(), hctx.Part, hctx.SessionID, err)
}
