// internal/protocol/frames.go
package protocol

import (
	"encoding/json"
	"time"

	"github.com/user/pinewire/internal/types"
)

// Server-to-client frame kinds.
const (
	KindText        = "session:text"
	KindTextPart    = "session:text_part"
	KindWorkLog     = "session:work_log"
	KindWorkLogPart = "session:work_log_part"
	KindState       = "session:state"
	KindInputState  = "session:input_state"
	KindError       = "session:error"
)

// Client-to-server frame kinds.
const (
	KindJoin    = "session:join"
	KindLeave   = "session:leave"
	KindMessage = "session:message"
)

// Attachment references an uploaded file included with a message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SessionRef points a message at an earlier session for context.
type SessionRef struct {
	SessionID types.SessionID `json:"session_id"`
	Title     string          `json:"title,omitempty"`
}

// messageData is the session:message payload body.
type messageData struct {
	Content            string       `json:"content"`
	Attachments        []Attachment `json:"attachments"`
	ReferencedSessions []SessionRef `json:"referenced_sessions"`
	ClientNowDate      string       `json:"client_now_date"`
}

// contentData is the generic {content: ...} payload body used by text,
// state, and error frames.
type contentData struct {
	Content string `json:"content"`
}

// workLogStep is one step delta inside a work-log frame.
type workLogStep struct {
	StepID    types.StepID `json:"step_id"`
	Title     string       `json:"step_title,omitempty"`
	Status    string       `json:"status,omitempty"`
	TextDelta string       `json:"text_delta,omitempty"`
}

// workLogData is the session:work_log payload body (a snapshot of step
// deltas; session:work_log_part carries a single flat workLogStep).
type workLogData struct {
	Steps []workLogStep `json:"steps"`
}

// NewJoinFrame builds a session:join frame.
func NewJoinFrame(sessionID types.SessionID) *types.RawFrame {
	return &types.RawFrame{
		Kind:    KindJoin,
		Payload: types.FramePayload{SessionID: sessionID},
	}
}

// NewLeaveFrame builds a session:leave frame.
func NewLeaveFrame(sessionID types.SessionID) *types.RawFrame {
	return &types.RawFrame{
		Kind:    KindLeave,
		Payload: types.FramePayload{SessionID: sessionID},
	}
}

// MessageOption configures optional fields of an outgoing message.
type MessageOption func(*messageData)

// WithAttachments attaches uploaded files to the message.
func WithAttachments(atts ...Attachment) MessageOption {
	return func(d *messageData) { d.Attachments = append(d.Attachments, atts...) }
}

// WithReferencedSessions links earlier sessions into the message context.
func WithReferencedSessions(refs ...SessionRef) MessageOption {
	return func(d *messageData) { d.ReferencedSessions = append(d.ReferencedSessions, refs...) }
}

// NewMessageFrame builds a session:message frame carrying the user's
// content and the client's local timestamp.
func NewMessageFrame(sessionID types.SessionID, content string, opts ...MessageOption) (*types.RawFrame, error) {
	data := messageData{
		Content:            content,
		Attachments:        []Attachment{},
		ReferencedSessions: []SessionRef{},
		ClientNowDate:      time.Now().Format(time.RFC3339),
	}
	for _, opt := range opts {
		opt(&data)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &types.RawFrame{
		Kind: KindMessage,
		Payload: types.FramePayload{
			SessionID: sessionID,
			MessageID: types.NewMessageID(),
			Data:      raw,
		},
	}, nil
}
