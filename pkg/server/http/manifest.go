// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"encoding/hex"
	"io"

	"github.com/absmach/mpdemux/pkg/handler"
	"github.com/absmach/mpdemux/pkg/metrics"
	"github.com/zeebo/blake3"
)

// Manifest describes the parts of one demultiplexed request.
type Manifest struct {
	Session string `json:"session"`
	Parts   []Part `json:"parts"`
}

// Part describes one part of a request body.
type Part struct {
	Index    int            `json:"index"`
	Filename string         `json:"filename,omitempty"`
	Headers  handler.Header `json:"headers"`
	Size     int64          `json:"size"`
	// Digest is the hex BLAKE3 hash of the part body.
	Digest string `json:"digest"`
	Stored bool   `json:"stored"`
}

// recorder passes parts to the next handler and records every one of them,
// discarded parts included, in the manifest.
type recorder struct {
	next     handler.Handler
	manifest *Manifest
	metrics  *metrics.Metrics
}

var _ handler.Handler = (*recorder)(nil)

func (r *recorder) Sink(ctx context.Context, hctx *handler.Context, hdr handler.Header) (io.WriteCloser, error) {
	w, err := r.next.Sink(ctx, hctx, hdr)
	if err != nil {
		return nil, err
	}

	r.manifest.Parts = append(r.manifest.Parts, Part{
		Index:    hctx.Part,
		Filename: handler.Filename(hdr),
		Headers:  hdr,
		Stored:   w != nil,
	})
	return &digestSink{
		next:   w,
		hash:   blake3.New(),
		part:   len(r.manifest.Parts) - 1,
		record: r,
	}, nil
}

// digestSink hashes and counts a part body on its way to next, which may be
// nil for discarded parts.
type digestSink struct {
	next   io.WriteCloser
	hash   *blake3.Hasher
	size   int64
	part   int
	record *recorder
}

func (d *digestSink) Write(p []byte) (int, error) {
	n := len(p)
	var err error
	if d.next != nil {
		n, err = d.next.Write(p)
	}
	_, _ = d.hash.Write(p[:n])
	d.size += int64(n)
	return n, err
}

func (d *digestSink) Close() error {
	part := &d.record.manifest.Parts[d.part]
	part.Size = d.size
	part.Digest = hex.EncodeToString(d.hash.Sum(nil))
	if d.record.metrics != nil {
		d.record.metrics.ObservePart("receiver", part.Stored, d.size)
	}

	if d.next == nil {
		return nil
	}
	return d.next.Close()
}
