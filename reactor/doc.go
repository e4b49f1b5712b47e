// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package reactor implements a readiness-driven, non-blocking I/O core: a
// pool of Managed Selectors (one OS readiness mechanism each) feeding
// Endpoints, which in turn drive protocol-facing Connections. It is the
// layer HTTP/1, HTTP/2, WebSocket and similar protocol stacks sit on top of,
// not a protocol implementation itself.
//
// The reactor never constructs a concrete Endpoint or Connection type
// itself; both are supplied by the embedder through factory hooks passed to
// NewSelectorManager, keeping the reactor protocol-agnostic.
package reactor
