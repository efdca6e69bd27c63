// internal/protocol/classify.go
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/user/pinewire/internal/types"
)

// UnknownFrameKindError marks a frame whose discriminant is not part of
// the protocol. The caller logs and drops the frame; it never terminates
// the stream.
type UnknownFrameKindError struct {
	Kind string
}

func (e *UnknownFrameKindError) Error() string {
	return fmt.Sprintf("unknown frame kind: %s", e.Kind)
}

// Event is a classified protocol event. Exactly one concrete type below
// is produced per frame.
type Event interface {
	EventSessionID() types.SessionID
}

// TextDelta is one streamed fragment of the agent's reply.
type TextDelta struct {
	SessionID types.SessionID
	MessageID types.MessageID
	Content   string
}

// TextComplete marks the end of the text channel for the current turn.
// Content carries the full reply when the server sends it whole instead
// of streaming fragments.
type TextComplete struct {
	SessionID types.SessionID
	MessageID types.MessageID
	Content   string
}

// WorkLogDelta is one update to a single work-log step.
type WorkLogDelta struct {
	SessionID types.SessionID
	StepID    types.StepID
	Title     string
	Status    string
	TextDelta string
}

// WorkLogUpdate is a snapshot frame carrying deltas for several steps.
type WorkLogUpdate struct {
	SessionID types.SessionID
	Steps     []WorkLogDelta
}

// StateChange reports a session lifecycle state from the server.
type StateChange struct {
	SessionID types.SessionID
	State     string
}

// InputState reports the input channel's readiness (e.g. waiting_input).
type InputState struct {
	SessionID types.SessionID
	State     string
}

// ServerError is an error frame from the server.
type ServerError struct {
	SessionID types.SessionID
	Message   string
}

func (e TextDelta) EventSessionID() types.SessionID     { return e.SessionID }
func (e TextComplete) EventSessionID() types.SessionID  { return e.SessionID }
func (e WorkLogDelta) EventSessionID() types.SessionID  { return e.SessionID }
func (e WorkLogUpdate) EventSessionID() types.SessionID { return e.SessionID }
func (e StateChange) EventSessionID() types.SessionID   { return e.SessionID }
func (e InputState) EventSessionID() types.SessionID    { return e.SessionID }
func (e ServerError) EventSessionID() types.SessionID   { return e.SessionID }

// Terminal reports whether the state ends the session.
func (e StateChange) Terminal() bool {
	return types.IsTerminalState(e.State)
}

// Classify maps one raw frame to exactly one typed protocol event. It is
// a pure function: no state, no side effects. Unrecognized discriminants
// return *UnknownFrameKindError; payloads that fail to decode are treated
// as empty rather than fatal, matching the server's loose envelope.
func Classify(frame *types.RawFrame) (Event, error) {
	sid := frame.Payload.SessionID
	switch frame.Kind {
	case KindTextPart:
		var d contentData
		decode(frame.Payload.Data, &d)
		return TextDelta{SessionID: sid, MessageID: frame.Payload.MessageID, Content: d.Content}, nil

	case KindText:
		var d contentData
		decode(frame.Payload.Data, &d)
		return TextComplete{SessionID: sid, MessageID: frame.Payload.MessageID, Content: d.Content}, nil

	case KindWorkLogPart:
		var d workLogStep
		decode(frame.Payload.Data, &d)
		return WorkLogDelta{
			SessionID: sid,
			StepID:    d.StepID,
			Title:     d.Title,
			Status:    d.Status,
			TextDelta: d.TextDelta,
		}, nil

	case KindWorkLog:
		var d workLogData
		decode(frame.Payload.Data, &d)
		steps := make([]WorkLogDelta, 0, len(d.Steps))
		for _, s := range d.Steps {
			steps = append(steps, WorkLogDelta{
				SessionID: sid,
				StepID:    s.StepID,
				Title:     s.Title,
				Status:    s.Status,
				TextDelta: s.TextDelta,
			})
		}
		return WorkLogUpdate{SessionID: sid, Steps: steps}, nil

	case KindState:
		var d contentData
		decode(frame.Payload.Data, &d)
		return StateChange{SessionID: sid, State: d.Content}, nil

	case KindInputState:
		var d contentData
		decode(frame.Payload.Data, &d)
		return InputState{SessionID: sid, State: d.Content}, nil

	case KindError:
		var d contentData
		decode(frame.Payload.Data, &d)
		return ServerError{SessionID: sid, Message: d.Content}, nil
	}

	return nil, &UnknownFrameKindError{Kind: frame.Kind}
}

// decode unmarshals a payload body, ignoring errors: a malformed body
// yields zero values, not a dropped frame.
func decode(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}
