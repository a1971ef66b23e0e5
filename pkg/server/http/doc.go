// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package http implements the multipart receiver for mpdemux.
//
// # Overview
//
// The receiver accepts POST and PUT requests whose body is a multipart
// stream. Each request borrows a parser from a pool, so the memory spent on
// bodies is bounded by the pool size times the parser buffer size, however
// large the uploads are.
//
//	┌────────┐  multipart   ┌──────────┐        ┌─────────┐
//	│ Client │ ───────────→ │ Receiver │ ─────→ │ Handler │ → sinks
//	└────────┘  ← manifest  └──────────┘        └─────────┘
//	                             ↓
//	                        ┌──────────┐
//	                        │   Pool   │
//	                        └──────────┘
//
// # Responses
//
// A fully demultiplexed body is answered with 200 and a JSON manifest:
//
//	{
//	  "session": "7b0e...",
//	  "parts": [
//	    {"index": 0, "filename": "a.txt", "headers": {...}, "size": 12,
//	     "digest": "<blake3 hex>", "stored": true}
//	  ]
//	}
//
// Failures are answered with {"error": ..., "state": ...}:
//
//   - 405 for methods other than POST and PUT
//   - 429 when the client exceeds its rate limit
//   - 415 when the body is not multipart or has no boundary
//   - 503 when no parser is available
//   - 413 when the body exceeds MaxBodyBytes
//   - 500 when a part destination fails
//   - 400 for malformed streams
//
// Parts written before a failure are left in place.
package http
