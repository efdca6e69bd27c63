// internal/stream/debounce.go
package stream

import (
	"container/heap"
	"time"

	"github.com/user/pinewire/internal/protocol"
	"github.com/user/pinewire/internal/types"
)

// DefaultDebounceWindow is the silence that must elapse after the last
// delta for a step before its work-log part is emitted.
const DefaultDebounceWindow = 3 * time.Second

// workLogEntry holds the merged content of one pending step. Scalar
// fields are last-writer-wins; text fragments append in arrival order.
type workLogEntry struct {
	stepID   types.StepID
	title    string
	status   string
	text     []byte
	deadline time.Time
	gen      uint64
}

func (e *workLogEntry) merge(d protocol.WorkLogDelta) {
	if d.Title != "" {
		e.title = d.Title
	}
	if d.Status != "" {
		e.status = d.Status
	}
	e.text = append(e.text, d.TextDelta...)
}

func (e *workLogEntry) part() *types.WorkLogPart {
	return &types.WorkLogPart{
		StepID: e.stepID,
		Title:  e.title,
		Status: e.status,
		Text:   string(e.text),
	}
}

// deadlineItem is a scheduled flush in the timer heap. Re-arming a step
// bumps the entry's generation instead of removing the stale item; stale
// items are skipped lazily on pop. This keeps the heap one binary heap
// for the whole dynamic key set rather than one OS timer per step.
type deadlineItem struct {
	at     time.Time
	stepID types.StepID
	gen    uint64
}

type deadlineHeap []deadlineItem

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)         { *h = append(*h, x.(deadlineItem)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Debouncer coalesces bursty work-log deltas into stable per-step parts.
// A step's part is emitted only after the debounce window elapses with no
// further deltas for that step; every delta restarts the wait. Steps are
// independent: one step's burst never delays another's flush.
//
// The debouncer is a passive data structure driven by the multiplexer
// pump, which owns the single timer armed to NextDeadline. It is not
// safe for concurrent use.
type Debouncer struct {
	window  time.Duration
	entries map[types.StepID]*workLogEntry
	heap    deadlineHeap
	gen     uint64
	closed  bool
}

// NewDebouncer creates a debouncer with the given silence window. A zero
// or negative window falls back to DefaultDebounceWindow.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:  window,
		entries: make(map[types.StepID]*workLogEntry),
	}
}

// Observe merges one delta and re-arms the step's flush deadline to
// now+window. Panics if called after Close: a delta arriving for a
// closed session is a lifecycle bug, not an input error.
func (d *Debouncer) Observe(delta protocol.WorkLogDelta, now time.Time) {
	if d.closed {
		panic("stream: work-log delta observed after debouncer close")
	}
	entry, ok := d.entries[delta.StepID]
	if !ok {
		entry = &workLogEntry{stepID: delta.StepID}
		d.entries[delta.StepID] = entry
	}
	entry.merge(delta)
	entry.deadline = now.Add(d.window)
	d.gen++
	entry.gen = d.gen
	heap.Push(&d.heap, deadlineItem{at: entry.deadline, stepID: delta.StepID, gen: d.gen})
}

// NextDeadline returns the earliest live flush deadline. ok is false
// when no step is pending.
func (d *Debouncer) NextDeadline() (time.Time, bool) {
	d.dropStale()
	if len(d.heap) == 0 {
		return time.Time{}, false
	}
	return d.heap[0].at, true
}

// dropStale pops heap items whose generation no longer matches their
// entry (the step was re-armed or already flushed).
func (d *Debouncer) dropStale() {
	for len(d.heap) > 0 {
		top := d.heap[0]
		entry, ok := d.entries[top.stepID]
		if ok && entry.gen == top.gen {
			return
		}
		heap.Pop(&d.heap)
	}
}

// Expire pops every step whose deadline has passed, returning their
// merged parts in deadline order. Panics after Close.
func (d *Debouncer) Expire(now time.Time) []*types.WorkLogPart {
	if d.closed {
		panic("stream: debounce expiry after debouncer close")
	}
	var parts []*types.WorkLogPart
	for {
		d.dropStale()
		if len(d.heap) == 0 || d.heap[0].at.After(now) {
			return parts
		}
		top := heap.Pop(&d.heap).(deadlineItem)
		entry := d.entries[top.stepID]
		delete(d.entries, top.stepID)
		parts = append(parts, entry.part())
	}
}

// FlushAll drains every pending step regardless of deadline, in deadline
// order. Called on session teardown so no accumulated content is lost.
func (d *Debouncer) FlushAll() []*types.WorkLogPart {
	if d.closed {
		panic("stream: teardown flush after debouncer close")
	}
	var parts []*types.WorkLogPart
	for {
		d.dropStale()
		if len(d.heap) == 0 {
			return parts
		}
		top := heap.Pop(&d.heap).(deadlineItem)
		entry := d.entries[top.stepID]
		delete(d.entries, top.stepID)
		parts = append(parts, entry.part())
	}
}

// Pending returns the number of steps awaiting flush.
func (d *Debouncer) Pending() int {
	return len(d.entries)
}

// Close marks the debouncer finished. Any later Observe, Expire, or
// FlushAll panics.
func (d *Debouncer) Close() {
	d.closed = true
}
