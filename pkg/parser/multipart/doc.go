// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package multipart implements a bounded-memory MIME multipart demultiplexer.
//
// The parser never holds more than one window of the stream. Part bodies are
// streamed into sinks chosen by a handler.Handler, so a response carrying
// several large documents can be split into files without buffering any of
// them.
//
// A stream is processed as
//
//	preamble  "\r\n--" boundary  CRLF
//	headers   (Name: value CRLF)* CRLF
//	body      "\r\n--" boundary  ("--" | CRLF)
//
// where the headers/body pair repeats until the boundary is followed by "--".
// The delimiter must fit in the window; otherwise Parse fails before reading.
//
// Example:
//
//	boundary, err := multipart.Boundary(resp.Header.Get("Content-Type"))
//	if err != nil {
//		return err
//	}
//	p, err := multipart.New(multipart.Config{Logger: logger})
//	if err != nil {
//		return err
//	}
//	hctx := &handler.Context{SessionID: id, Boundary: boundary}
//	err = p.Parse(ctx, resp.Body, handler.NewDir("out"), hctx)
package multipart
