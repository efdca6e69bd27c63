// internal/types/interfaces.go
package types

import (
	"context"
)

// Transport is a duplex frame link to the service for one authenticated
// identity. Connection establishment, TLS, and any reconnect policy live
// behind this interface; consumers only see frames.
type Transport interface {
	// Send writes one frame. Safe for concurrent use.
	Send(ctx context.Context, frame *RawFrame) error
	// Frames is the inbound frame stream. It is closed when the
	// connection ends, after which Err reports the reason (nil for a
	// clean local close).
	Frames() <-chan *RawFrame
	// Err returns the terminal connection error, if any. Valid only
	// after Frames is closed.
	Err() error
	// Close tears the connection down. Idempotent.
	Close() error
}

// SessionStater looks up a session's current service-side state. Used for
// the pre-listen state check so a finished session is reported without
// waiting on the event stream.
type SessionStater interface {
	GetSession(ctx context.Context, id SessionID) (*SessionInfo, error)
}
