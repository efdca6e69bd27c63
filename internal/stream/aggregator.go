// internal/stream/aggregator.go
package stream

import (
	"strings"

	"github.com/user/pinewire/internal/types"
)

// TextAggregator accumulates streamed text fragments for a session's
// current turn. Fragments are never exposed individually; the consumer
// sees one merged string per logical turn. Not safe for concurrent use:
// the multiplexer pump is the sole caller.
type TextAggregator struct {
	buf       strings.Builder
	messageID types.MessageID
}

// Ingest appends one fragment to the open buffer. The first fragment's
// message ID is kept for the merged event.
func (a *TextAggregator) Ingest(messageID types.MessageID, delta string) {
	if a.buf.Len() == 0 {
		a.messageID = messageID
	}
	a.buf.WriteString(delta)
}

// Flush returns the merged text and clears the buffer. ok is false when
// the buffer was empty, in which case no event should be emitted.
func (a *TextAggregator) Flush() (text string, messageID types.MessageID, ok bool) {
	if a.buf.Len() == 0 {
		return "", "", false
	}
	text = a.buf.String()
	messageID = a.messageID
	a.Reset()
	return text, messageID, true
}

// Reset discards any unflushed partial text. Called on session teardown
// so a torn-down session never leaks a partial merged event.
func (a *TextAggregator) Reset() {
	a.buf.Reset()
	a.messageID = ""
}

// Len returns the buffered byte count.
func (a *TextAggregator) Len() int {
	return a.buf.Len()
}
