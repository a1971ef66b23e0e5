// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cloud

import (
	"bytes"
	"io"
	"os"
	"strings"
)

// Source provides a request body that can be opened more than once, so a
// request can be resent after its package has been uploaded.
type Source interface {
	// Open returns the body and its length in bytes.
	Open() (io.ReadCloser, int64, error)
}

// FileSource reads the body from a file.
type FileSource string

// Open implements Source.
func (f FileSource) Open() (io.ReadCloser, int64, error) {
	file, err := os.Open(string(f))
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	return file, info.Size(), nil
}

// StringSource uses a string as the body.
type StringSource string

// Open implements Source.
func (s StringSource) Open() (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader(string(s))), int64(len(s)), nil
}

// BytesSource uses a byte slice as the body.
type BytesSource []byte

// Open implements Source.
func (b BytesSource) Open() (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}
