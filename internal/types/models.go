// internal/types/models.go
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// RawFrame is one unit received over (or sent on) the transport,
// pre-classification. The Kind discriminant decides how Payload.Data
// is interpreted.
type RawFrame struct {
	Kind     string        `json:"type"`
	Payload  FramePayload  `json:"payload"`
	Metadata FrameMetadata `json:"metadata,omitempty"`
}

type FramePayload struct {
	SessionID SessionID       `json:"session_id,omitempty"`
	MessageID MessageID       `json:"message_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type FrameMetadata struct {
	Timestamp string          `json:"timestamp,omitempty"`
	Source    json.RawMessage `json:"source,omitempty"`
}

// Time parses the envelope timestamp. The server sends RFC 3339 with a
// trailing Z; missing or malformed timestamps return ok=false and the
// frame is treated as fresh.
func (m FrameMetadata) Time() (time.Time, bool) {
	if m.Timestamp == "" {
		return time.Time{}, false
	}
	s := strings.Replace(m.Timestamp, "Z", "+00:00", 1)
	t, err := time.Parse("2006-01-02T15:04:05.999999999-07:00", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// OutputKind discriminates consumer-visible events.
type OutputKind string

const (
	OutputText         OutputKind = "text"
	OutputWorkLogPart  OutputKind = "work_log_part"
	OutputStateChanged OutputKind = "state_changed"
	OutputError        OutputKind = "error"
	OutputTerminal     OutputKind = "terminal"
)

// OutputEvent is the unit of the consumer-facing event sequence. Exactly
// one of the kind-specific fields is set, per Kind.
type OutputEvent struct {
	Kind      OutputKind
	SessionID SessionID
	MessageID MessageID
	At        time.Time

	Text    string       // OutputText
	WorkLog *WorkLogPart // OutputWorkLogPart
	State   string       // OutputStateChanged, OutputTerminal
	Err     error        // OutputError
}

// WorkLogPart is one stable, coalesced work-log entry.
type WorkLogPart struct {
	StepID StepID `json:"step_id"`
	Title  string `json:"step_title,omitempty"`
	Status string `json:"status,omitempty"`
	Text   string `json:"text,omitempty"`
}

// SessionInfo is the service's view of a session.
type SessionInfo struct {
	ID        SessionID `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Terminal session states reported by the service. A session in one of
// these states accepts no further messages.
const (
	StateTaskFinished  = "task_finished"
	StateTaskCancelled = "task_cancelled"
	StateTaskStale     = "task_stale"
)

// IsTerminalState reports whether the given session state is terminal.
func IsTerminalState(state string) bool {
	switch state {
	case StateTaskFinished, StateTaskCancelled, StateTaskStale:
		return true
	}
	return false
}
