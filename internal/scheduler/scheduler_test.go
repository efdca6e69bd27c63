// internal/scheduler/scheduler_test.go
package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFiresEntry(t *testing.T) {
	entries := []Entry{{
		Name:     "every-second",
		Prompt:   "check the news",
		Schedule: "* * * * * *",
		Target:   "telegram:123",
		Enabled:  true,
	}}

	var fires atomic.Int32
	sched := New(entries, func(target, prompt string) {
		if target != "telegram:123" || prompt != "check the news" {
			t.Errorf("handler got %q / %q", target, prompt)
		}
		fires.Add(1)
	})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	// Wait up to 2.5 seconds for at least one fire
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("handler did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				return
			}
		}
	}
}

func TestSchedulerSkipsDisabled(t *testing.T) {
	entries := []Entry{{
		Name:     "disabled",
		Prompt:   "should not fire",
		Schedule: "* * * * * *",
		Target:   "telegram:123",
		Enabled:  false,
	}}

	var fires atomic.Int32
	sched := New(entries, func(target, prompt string) { fires.Add(1) })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	time.Sleep(2 * time.Second)

	if n := fires.Load(); n != 0 {
		t.Errorf("expected 0 fires for disabled entry, got %d", n)
	}
}

func TestSchedulerSkipsInvalidSchedule(t *testing.T) {
	entries := []Entry{
		{Name: "broken", Prompt: "x", Schedule: "not a cron line", Target: "t", Enabled: true},
		{Name: "empty", Prompt: "y", Schedule: "", Target: "t", Enabled: true},
	}

	var fires atomic.Int32
	sched := New(entries, func(target, prompt string) { fires.Add(1) })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	time.Sleep(1500 * time.Millisecond)

	if n := fires.Load(); n != 0 {
		t.Errorf("expected 0 fires, got %d", n)
	}
}

func TestSchedulerReloadSwapsEntries(t *testing.T) {
	var oldFires, newFires atomic.Int32
	sched := New([]Entry{{
		Name: "old", Prompt: "old", Schedule: "* * * * * *", Target: "old", Enabled: true,
	}}, func(target, prompt string) {
		if target == "old" {
			oldFires.Add(1)
		} else {
			newFires.Add(1)
		}
	})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if err := sched.Reload([]Entry{{
		Name: "new", Prompt: "new", Schedule: "* * * * * *", Target: "new", Enabled: true,
	}}); err != nil {
		t.Fatal(err)
	}
	before := oldFires.Load()

	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			t.Fatalf("reloaded entry never fired")
		case <-ticker.C:
			if newFires.Load() > 0 {
				if oldFires.Load() > before {
					t.Errorf("old entry fired after reload")
				}
				return
			}
		}
	}
}
