// Package timeouts defines shared timeout constants used across the
// service. Centralizing these values keeps the durations discoverable
// and prevents drift between transport boundaries.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Handshake bounds the wait for a websocket client's auth frame. A
// connection that never authenticates is closed when it expires instead
// of holding a goroutine and socket forever.
const Handshake = 30 * time.Second
