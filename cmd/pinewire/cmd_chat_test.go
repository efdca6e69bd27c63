package main

import (
	"strings"
	"testing"

	"github.com/user/pinewire/internal/transcript"
)

func TestHistoryViewShowsBudgetedTail(t *testing.T) {
	tr := transcript.NewApproximate()
	tr.Add(transcript.RoleUser, strings.Repeat("a", 40), "")  // 10 tokens
	tr.Add(transcript.RoleAgent, strings.Repeat("b", 40), "") // 10 tokens
	tr.Add(transcript.RoleUser, strings.Repeat("c", 40), "")  // 10 tokens

	// Budget fits only the newest two turns.
	view := historyView(tr.Tail(20))
	if strings.Contains(view, "aaaa") {
		t.Errorf("oldest turn should be trimmed by the budget:\n%s", view)
	}
	if !strings.Contains(view, "bbbb") || !strings.Contains(view, "cccc") {
		t.Errorf("newest turns missing:\n%s", view)
	}
	if !strings.Contains(view, transcript.RoleAgent+":") {
		t.Errorf("expected role labels:\n%s", view)
	}
}

func TestHistoryViewEmpty(t *testing.T) {
	tr := transcript.NewApproximate()
	if view := historyView(tr.Tail(100)); view != "No turns yet.\n" {
		t.Errorf("unexpected empty view: %q", view)
	}
}
