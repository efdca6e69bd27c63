// internal/transcript/transcript.go
package transcript

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/pinewire/internal/types"
)

// Role of a transcript turn.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Turn is one exchange entry for the open session.
type Turn struct {
	Role      string
	Text      string
	MessageID types.MessageID
	At        time.Time
	Tokens    int
}

// Transcript is the in-memory turn log for one open session, with token
// accounting for budgeted display windows. It lives and dies with the
// session; nothing is persisted.
type Transcript struct {
	mu        sync.Mutex
	turns     []Turn
	total     int
	tokenizer *tiktoken.Tiktoken
}

// New creates a transcript using the tokenizer for the given model. An
// unknown model falls back to cl100k_base; if no tokenizer can be
// loaded (offline first run), counting degrades to an approximation.
func New(model string) (*Transcript, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Transcript{tokenizer: enc}, nil
}

// NewApproximate creates a transcript that estimates tokens at four
// characters apiece instead of encoding. Used when the tokenizer data
// is unavailable.
func NewApproximate() *Transcript {
	return &Transcript{}
}

func (t *Transcript) countTokens(text string) int {
	if t.tokenizer == nil {
		return (len(text) + 3) / 4
	}
	return len(t.tokenizer.Encode(text, nil, nil))
}

// Add appends one turn and returns its token count.
func (t *Transcript) Add(role, text string, messageID types.MessageID) int {
	tokens := t.countTokens(text)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, Turn{
		Role:      role,
		Text:      text,
		MessageID: messageID,
		At:        time.Now(),
		Tokens:    tokens,
	})
	t.total += tokens
	return tokens
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}

// TotalTokens returns the token count across all turns.
func (t *Transcript) TotalTokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Tail returns the most recent turns whose combined token count fits
// the budget, in chronological order. The newest turn is always
// included even when it alone exceeds the budget.
func (t *Transcript) Tail(budget int) []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.turns) == 0 {
		return nil
	}

	used := 0
	start := len(t.turns)
	for i := len(t.turns) - 1; i >= 0; i-- {
		if used+t.turns[i].Tokens > budget && start < len(t.turns) {
			break
		}
		used += t.turns[i].Tokens
		start = i
	}

	tail := make([]Turn, len(t.turns)-start)
	copy(tail, t.turns[start:])
	return tail
}

// Reset discards all turns. Called when the session closes.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
	t.total = 0
}
