// internal/types/models_test.go
package types

import (
	"testing"
	"time"
)

func TestMetadataTime(t *testing.T) {
	m := FrameMetadata{Timestamp: "2026-02-21T10:00:05Z"}
	ts, ok := m.Time()
	if !ok {
		t.Fatal("expected timestamp to parse")
	}
	want := time.Date(2026, 2, 21, 10, 0, 5, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("expected %v, got %v", want, ts)
	}
}

func TestMetadataTimeMissing(t *testing.T) {
	if _, ok := (FrameMetadata{}).Time(); ok {
		t.Error("expected ok=false for missing timestamp")
	}
}

func TestMetadataTimeMalformed(t *testing.T) {
	m := FrameMetadata{Timestamp: "not-a-date"}
	if _, ok := m.Time(); ok {
		t.Error("expected ok=false for malformed timestamp")
	}
}

func TestIsTerminalState(t *testing.T) {
	for _, s := range []string{StateTaskFinished, StateTaskCancelled, StateTaskStale} {
		if !IsTerminalState(s) {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []string{"", "working", "waiting_input"} {
		if IsTerminalState(s) {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}
