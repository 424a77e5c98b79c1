// Structure of Server-Sent-Events (SSE) Model in Hearth.

package entity

import (
	"time"

	"github.com/pkg/errors"
)

// ErrStreamEnded is returned by a StreamSink written to after End.
var ErrStreamEnded = errors.New("sse stream already ended")

// StreamSink is the writable side of one open SSE response.
type StreamSink interface {
	// Write sends one complete frame and flushes it.
	Write(frame []byte) error
	// End closes the stream, every later Write fails with ErrStreamEnded.
	End()
	// Ended reports whether End was called or the stream broke.
	Ended() bool
	// Done is closed once the stream ended.
	Done() <-chan struct{}
}

// Key under which the auth middleware stores the Identity in the request context.
const IdentityKey = "Identity"

// Identity established by the access token at connect time, never re-verified on the same connection.
type Identity struct {
	UserID int64
	Role   Role
}

// Uniquely defines an incoming client.
type SSEClient struct {
	// Unique Client ID, one per physical connection
	ID     string
	UserID int64
	Role   Role
	// Owned by the registry entry, nothing else writes to it
	Sink        StreamSink
	ConnectedAt time.Time
}
