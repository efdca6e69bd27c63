// internal/transcript/transcript_test.go
package transcript

import (
	"testing"
)

// Tests use the approximate counter so no tokenizer data download is
// needed.

func TestAddAccumulatesTokens(t *testing.T) {
	tr := NewApproximate()

	// 8 chars -> 2 approximate tokens.
	if got := tr.Add(RoleUser, "12345678", ""); got != 2 {
		t.Errorf("expected 2 tokens, got %d", got)
	}
	tr.Add(RoleAgent, "1234", "")

	if tr.Len() != 2 {
		t.Errorf("expected 2 turns, got %d", tr.Len())
	}
	if tr.TotalTokens() != 3 {
		t.Errorf("expected 3 total tokens, got %d", tr.TotalTokens())
	}
}

func TestTailRespectsBudget(t *testing.T) {
	tr := NewApproximate()
	tr.Add(RoleUser, "aaaaaaaa", "")  // 2 tokens
	tr.Add(RoleAgent, "bbbbbbbb", "") // 2 tokens
	tr.Add(RoleUser, "cccccccc", "")  // 2 tokens

	tail := tr.Tail(4)
	if len(tail) != 2 {
		t.Fatalf("expected 2 turns in tail, got %d", len(tail))
	}
	if tail[0].Text != "bbbbbbbb" || tail[1].Text != "cccccccc" {
		t.Errorf("expected the newest turns in order, got %+v", tail)
	}
}

func TestTailAlwaysIncludesNewestTurn(t *testing.T) {
	tr := NewApproximate()
	tr.Add(RoleAgent, "a very long reply that certainly exceeds a tiny budget", "")

	tail := tr.Tail(1)
	if len(tail) != 1 {
		t.Fatalf("expected the newest turn despite the budget, got %d", len(tail))
	}
}

func TestTailEmpty(t *testing.T) {
	tr := NewApproximate()
	if tail := tr.Tail(100); tail != nil {
		t.Errorf("expected nil tail for empty transcript, got %+v", tail)
	}
}

func TestResetDiscardsEverything(t *testing.T) {
	tr := NewApproximate()
	tr.Add(RoleUser, "hello there", "")
	tr.Reset()

	if tr.Len() != 0 || tr.TotalTokens() != 0 {
		t.Errorf("expected empty transcript after reset, got %d turns / %d tokens", tr.Len(), tr.TotalTokens())
	}
}
