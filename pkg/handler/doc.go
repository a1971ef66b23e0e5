// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the policy interface that links the multipart parser to storage.
//
// # Architecture Overview
//
// The Handler interface is the bridge between the multipart parser and
// whatever stores part bodies. The parser knows nothing about files, buckets
// or sockets: after it has read the headers of a part it asks the Handler
// where the body goes, streams the body there and closes the destination.
//
// # Data Flow
//
//	Stream → Parser (headers) → Handler (resolves sink) → Parser (body) → Sink
//
// # Handler Method
//
// Sink is the only method:
//   - Return a non-nil io.WriteCloser to receive the body
//   - Return nil, nil to discard the body
//   - Return an error to abort the whole stream
//
// The parser always closes a returned sink, on success and on failure, before
// it reads the headers of the next part.
//
// # Context
//
// The Context struct carries session metadata across all handler calls:
//   - SessionID: Unique identifier for this demultiplexing run
//   - RemoteAddr: Peer that sent the stream (receiver service)
//   - Boundary: Boundary token of the stream
//   - Part: Zero-based index of the current part
//
// # Implementations
//
//   - NoopHandler: discards every part
//   - HandlerFunc: adapts a plain function
//   - Dir: writes parts to files named by Content-Disposition filename
//
// # Example
//
//	h := handler.HandlerFunc(func(ctx context.Context, hctx *handler.Context, hdr handler.Header) (io.WriteCloser, error) {
//		if hdr.Get("Content-Type") != "application/pdf" {
//			return nil, nil
//		}
//		return os.Create(fmt.Sprintf("part-%d.pdf", hctx.Part))
//	})
package handler
