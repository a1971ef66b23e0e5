// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cloud

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	mperrors "github.com/absmach/mpdemux/pkg/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"
)

// acceptEncoding is advertised on every request; the transport's own gzip
// handling is off once the header is set explicitly.
const acceptEncoding = "gzip, zstd"

type decodedBody struct {
	io.Reader
	closers []func() error
}

func (d *decodedBody) Close() error {
	var err error
	for _, c := range d.closers {
		err = multierr.Append(err, c())
	}
	return err
}

// decode returns the response body with its Content-Encoding removed.
func decode(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return resp.Body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read gzip response: %w", err)
		}
		return &decodedBody{Reader: zr, closers: []func() error{zr.Close, resp.Body.Close}}, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read zstd response: %w", err)
		}
		return &decodedBody{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			resp.Body.Close,
		}}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported content encoding %q", mperrors.ErrInvalidInput, encoding)
	}
}
