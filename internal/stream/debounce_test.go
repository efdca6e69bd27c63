// internal/stream/debounce_test.go
package stream

import (
	"testing"
	"time"

	"github.com/user/pinewire/internal/protocol"
	"github.com/user/pinewire/internal/types"
)

var t0 = time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)

func delta(step, title, status, text string) protocol.WorkLogDelta {
	return protocol.WorkLogDelta{
		SessionID: "s1",
		StepID:    types.StepID(step),
		Title:     title,
		Status:    status,
		TextDelta: text,
	}
}

func TestDebounceRestartsOnEveryDelta(t *testing.T) {
	d := NewDebouncer(3 * time.Second)

	// Deltas at t=0, t=1, t=2: each restarts the 3s window.
	d.Observe(delta("step1", "Search", "", "a"), t0)
	d.Observe(delta("step1", "", "", "b"), t0.Add(1*time.Second))
	d.Observe(delta("step1", "", "running", "c"), t0.Add(2*time.Second))

	// Nothing is due before t=5.
	if parts := d.Expire(t0.Add(4 * time.Second)); len(parts) != 0 {
		t.Fatalf("expected no flush before silence elapses, got %d", len(parts))
	}

	deadline, ok := d.NextDeadline()
	if !ok {
		t.Fatal("expected a pending deadline")
	}
	if want := t0.Add(5 * time.Second); !deadline.Equal(want) {
		t.Errorf("expected deadline %v, got %v", want, deadline)
	}

	parts := d.Expire(t0.Add(5 * time.Second))
	if len(parts) != 1 {
		t.Fatalf("expected exactly one part, got %d", len(parts))
	}
	p := parts[0]
	if p.StepID != "step1" || p.Title != "Search" || p.Status != "running" || p.Text != "abc" {
		t.Errorf("unexpected merged part: %+v", p)
	}
	if d.Pending() != 0 {
		t.Errorf("expected no pending entries after flush, got %d", d.Pending())
	}
}

func TestDebounceKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(3 * time.Second)

	d.Observe(delta("a", "A", "", "1"), t0)
	d.Observe(delta("b", "B", "", "2"), t0.Add(1*time.Second))
	// Keep key b busy; key a goes silent after t=0.
	d.Observe(delta("b", "", "", "3"), t0.Add(2*time.Second))

	parts := d.Expire(t0.Add(3 * time.Second))
	if len(parts) != 1 || parts[0].StepID != "a" {
		t.Fatalf("expected only key a to flush at t=3, got %+v", parts)
	}

	parts = d.Expire(t0.Add(5 * time.Second))
	if len(parts) != 1 || parts[0].StepID != "b" {
		t.Fatalf("expected key b to flush at t=5, got %+v", parts)
	}
	if parts[0].Text != "23" {
		t.Errorf("expected key b text %q, got %q", "23", parts[0].Text)
	}
}

func TestDebounceScalarLatestWins(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Observe(delta("s", "Old title", "queued", ""), t0)
	d.Observe(delta("s", "New title", "done", ""), t0.Add(100*time.Millisecond))

	parts := d.Expire(t0.Add(2 * time.Second))
	if len(parts) != 1 {
		t.Fatalf("expected one part, got %d", len(parts))
	}
	if parts[0].Title != "New title" || parts[0].Status != "done" {
		t.Errorf("expected latest scalars to win, got %+v", parts[0])
	}
}

func TestDebounceEmptyScalarDoesNotClobber(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Observe(delta("s", "Title", "running", "x"), t0)
	d.Observe(delta("s", "", "", "y"), t0.Add(100*time.Millisecond))

	parts := d.Expire(t0.Add(2 * time.Second))
	if parts[0].Title != "Title" || parts[0].Status != "running" {
		t.Errorf("empty scalar fields must not clear earlier values: %+v", parts[0])
	}
}

func TestDebounceFlushAllDrainsPending(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Observe(delta("a", "", "", "1"), t0)
	d.Observe(delta("b", "", "", "2"), t0.Add(time.Second))

	parts := d.FlushAll()
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts from teardown flush, got %d", len(parts))
	}
	// Deadline order: a armed first.
	if parts[0].StepID != "a" || parts[1].StepID != "b" {
		t.Errorf("unexpected flush order: %+v", parts)
	}
	if d.Pending() != 0 {
		t.Errorf("expected nothing pending after FlushAll, got %d", d.Pending())
	}
	if _, ok := d.NextDeadline(); ok {
		t.Error("expected no deadline after FlushAll")
	}
}

func TestDebounceRearmAfterFlush(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Observe(delta("s", "", "", "first"), t0)
	if parts := d.Expire(t0.Add(time.Second)); len(parts) != 1 {
		t.Fatal("expected first flush")
	}

	// A new delta after the flush starts a fresh pending entry.
	d.Observe(delta("s", "", "", "second"), t0.Add(2*time.Second))
	parts := d.Expire(t0.Add(3 * time.Second))
	if len(parts) != 1 || parts[0].Text != "second" {
		t.Errorf("expected fresh entry with only new content, got %+v", parts)
	}
}

func TestDebouncePanicsAfterClose(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Close()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on Observe after Close")
		}
	}()
	d.Observe(delta("s", "", "", "x"), t0)
}
