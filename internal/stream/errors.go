// internal/stream/errors.go
package stream

import (
	"fmt"

	"github.com/user/pinewire/internal/types"
)

// SessionError reports a join/connect failure: the session does not
// exist or the identity was rejected. Surfaced synchronously to the
// caller of Join, never through the event stream.
type SessionError struct {
	SessionID types.SessionID
	Reason    string
	Cause     error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session %s: %s: %v", e.SessionID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("session %s: %s", e.SessionID, e.Reason)
}

func (e *SessionError) Unwrap() error { return e.Cause }

// TransportFailure reports an unexpected loss of the underlying
// connection. Surfaced as the stream's final error OutputEvent; the
// session transitions to StateFailed.
type TransportFailure struct {
	Cause error
}

func (e *TransportFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport failure: %v", e.Cause)
	}
	return "transport failure: connection closed unexpectedly"
}

func (e *TransportFailure) Unwrap() error { return e.Cause }
