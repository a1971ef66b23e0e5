// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package multipart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	mperrors "github.com/absmach/mpdemux/pkg/errors"
	"github.com/absmach/mpdemux/pkg/handler"
	"github.com/absmach/mpdemux/pkg/window"
)

var errHeaderTooLarge = errors.New("header block too large")

// ReadHeaders reads CRLF-terminated "Name: value" lines from w until an empty
// line. Names and values are trimmed of surrounding whitespace and a repeated
// name keeps its last value. scratch is reused as line storage. A positive
// maxBytes bounds the total size of the block, CRLFs included.
func ReadHeaders(ctx context.Context, w *window.Window, scratch *bytes.Buffer, maxBytes int) (handler.Header, error) {
	hdr := handler.Header{}
	total := 0
	for {
		scratch.Reset()
		var dst io.Writer = scratch
		if maxBytes > 0 {
			dst = &limitedWriter{w: scratch, n: maxBytes - total}
		}

		n, err := w.CopyUntil(ctx, dst, crlf)
		switch {
		case errors.Is(err, errHeaderTooLarge):
			return nil, fmt.Errorf("%w: header block exceeds %d bytes", mperrors.ErrMalformedHeader, maxBytes)
		case err != nil:
			return nil, err
		}
		if n == 0 {
			return hdr, nil
		}

		total += int(n) + len(crlf)
		if maxBytes > 0 && total > maxBytes {
			return nil, fmt.Errorf("%w: header block exceeds %d bytes", mperrors.ErrMalformedHeader, maxBytes)
		}

		line := scratch.String()
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", mperrors.ErrMalformedHeader, truncate(line, 64))
		}
		hdr[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
}

type limitedWriter struct {
	w *bytes.Buffer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if len(p) > l.n {
		return 0, errHeaderTooLarge
	}
	l.n -= len(p)
	return l.w.Write(p)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
