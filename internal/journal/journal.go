// internal/journal/journal.go
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/pinewire/internal/types"
)

// record is one journaled frame with its arrival time.
type record struct {
	At    time.Time       `json:"at"`
	Frame *types.RawFrame `json:"frame"`
}

// Entry is one journaled frame read back from disk.
type Entry struct {
	At    time.Time
	Frame *types.RawFrame
}

// Journal is a JSONL-backed append-only trace of raw frames.
// Frames are stored per-session in sessions/<sessionID>/frames.jsonl.
// Opt-in; the multiplexer runs without one by default.
type Journal struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

// New creates a file-backed Journal rooted at the given directory.
func New(root string) *Journal {
	return &Journal{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

// getLock returns the per-session mutex, creating one if it doesn't exist.
func (j *Journal) getLock(sessionID types.SessionID) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()

	if lock, ok := j.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	j.locks[sessionID] = lock
	return lock
}

func (j *Journal) framesPath(sessionID types.SessionID) string {
	return filepath.Join(j.root, "sessions", string(sessionID), "frames.jsonl")
}

// Record appends one raw frame to the session's trace. Satisfies the
// multiplexer's FrameRecorder.
func (j *Journal) Record(sessionID types.SessionID, frame *types.RawFrame) error {
	lock := j.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(j.framesPath(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(record{At: time.Now().UTC(), Frame: frame})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	f, err := os.OpenFile(j.framesPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open frames file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// Tail returns the last N journaled frames for the given session.
func (j *Journal) Tail(sessionID types.SessionID, limit int) ([]*Entry, error) {
	lock := j.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(j.framesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open frames file: %w", err)
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal frame: %w", err)
		}
		entries = append(entries, &Entry{At: rec.At, Frame: rec.Frame})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan frames file: %w", err)
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Count returns the number of journaled frames for the given session.
func (j *Journal) Count(sessionID types.SessionID) (int64, error) {
	lock := j.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(j.framesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open frames file: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan frames file: %w", err)
	}
	return count, nil
}
