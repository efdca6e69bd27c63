// internal/stream/mux.go
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/pinewire/internal/protocol"
	"github.com/user/pinewire/internal/types"
)

// SessionState is the multiplexer's lifecycle state.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// staleCutoffSkew is subtracted from the send time when Chat arms the
// stale-event filter, tolerating clock skew between client and server.
const staleCutoffSkew = 5 * time.Second

// emitTimeout bounds how long a teardown flush waits for a consumer that
// stopped draining before dropping the event.
const emitTimeout = 5 * time.Second

// DefaultIdleTimeout is the server silence after which the pump re-polls
// the session's service-side state. A session can end without a terminal
// frame reaching us (server crash, dropped broadcast); the poll keeps a
// consumer from waiting forever on a dead session.
const DefaultIdleTimeout = 2 * time.Minute

// idlePollTimeout bounds one idle-poll state lookup.
const idlePollTimeout = 10 * time.Second

// FrameRecorder receives every raw frame before classification.
// Implemented by the journal for debug traces.
type FrameRecorder interface {
	Record(sessionID types.SessionID, frame *types.RawFrame) error
}

// Mux is the session event multiplexer. It owns one text aggregator and
// one work-log debouncer for a joined session, drives them from the
// transport's frame stream, and merges their flushes with pass-through
// state and error frames into a single ordered sequence of OutputEvents.
//
// All aggregation state is owned by a single pump goroutine that selects
// on the frame channel and on one timer armed to the debouncer's
// earliest deadline, so a delta racing a timer expiry for the same step
// resolves in the pump's serial order: an in-flight flush proceeds and
// the new delta starts a fresh pending entry.
type Mux struct {
	transport types.Transport
	stater    types.SessionStater
	recorder  FrameRecorder
	log       *slog.Logger
	window    time.Duration
	idle      time.Duration

	out      chan types.OutputEvent
	agg      TextAggregator
	deb      *Debouncer
	dropped  []*types.WorkLogPart // pump-owned; parts superseded by a disconnect race
	closing  chan struct{}
	pumpDone chan struct{}

	mu        sync.Mutex
	state     SessionState
	sessionID types.SessionID
	cutoff    time.Time
	started   bool

	closingOnce sync.Once
	outOnce     sync.Once
}

// Option configures a Mux.
type Option func(*Mux)

// WithDebounceWindow overrides the work-log silence window.
func WithDebounceWindow(d time.Duration) Option {
	return func(m *Mux) { m.window = d }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Mux) { m.log = log }
}

// WithStater enables the pre-listen session state check via the service
// API: joining a session the service already reports terminal yields one
// terminal event instead of waiting on the stream.
func WithStater(s types.SessionStater) Option {
	return func(m *Mux) { m.stater = s }
}

// WithRecorder records every inbound raw frame (debug journal).
func WithRecorder(r FrameRecorder) Option {
	return func(m *Mux) { m.recorder = r }
}

// WithIdleTimeout sets the server-silence window after which the pump
// re-polls the session's state through the stater. Zero disables the
// poll.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Mux) { m.idle = d }
}

// New creates a multiplexer over the given transport. The session is not
// joined until Join is called.
func New(transport types.Transport, opts ...Option) *Mux {
	m := &Mux{
		transport: transport,
		log:       slog.Default(),
		window:    DefaultDebounceWindow,
		out:       make(chan types.OutputEvent, 64),
		closing:   make(chan struct{}),
		pumpDone:  make(chan struct{}),
		state:     StateConnecting,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.deb = NewDebouncer(m.window)
	return m
}

// Join attaches to the given session and starts the event pump. It fails
// with a *SessionError when the service rejects the session or identity;
// on success the session is open and Events begins producing.
func (m *Mux) Join(ctx context.Context, sessionID types.SessionID) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("stream: session already joined")
	}
	m.mu.Unlock()

	var precheck string
	if m.stater != nil {
		info, err := m.stater.GetSession(ctx, sessionID)
		if err != nil {
			return &SessionError{SessionID: sessionID, Reason: "session lookup failed", Cause: err}
		}
		if types.IsTerminalState(info.State) {
			precheck = info.State
		}
	}

	if precheck == "" {
		if err := m.transport.Send(ctx, protocol.NewJoinFrame(sessionID)); err != nil {
			return &SessionError{SessionID: sessionID, Reason: "join failed", Cause: err}
		}
	}

	m.mu.Lock()
	m.sessionID = sessionID
	m.state = StateOpen
	m.started = true
	m.mu.Unlock()

	go m.pump(precheck)
	return nil
}

// Events returns the ordered, lazily-produced sequence of OutputEvents.
// The channel is closed exactly once when the session reaches closed or
// failed; receiving from the closed channel afterwards yields an
// immediately-empty sequence.
func (m *Mux) Events() <-chan types.OutputEvent {
	return m.out
}

// Done is closed when the pump has finished and the event channel is
// closed.
func (m *Mux) Done() <-chan struct{} {
	return m.pumpDone
}

// State returns the current lifecycle state.
func (m *Mux) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the joined session's ID (empty before Join).
func (m *Mux) SessionID() types.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Send delivers a user message to the session, fire-and-forget.
func (m *Mux) Send(ctx context.Context, content string, opts ...protocol.MessageOption) error {
	m.mu.Lock()
	state := m.state
	sessionID := m.sessionID
	m.mu.Unlock()
	if state != StateOpen {
		return fmt.Errorf("stream: session is %s, not open", state)
	}
	frame, err := protocol.NewMessageFrame(sessionID, content, opts...)
	if err != nil {
		return fmt.Errorf("build message frame: %w", err)
	}
	return m.transport.Send(ctx, frame)
}

// Chat sends a user message and arms the stale-event filter: frames
// whose envelope timestamp predates the send (minus a skew allowance)
// are replays of earlier turns and are dropped before classification.
func (m *Mux) Chat(ctx context.Context, content string, opts ...protocol.MessageOption) error {
	m.mu.Lock()
	m.cutoff = time.Now().UTC().Add(-staleCutoffSkew)
	m.mu.Unlock()
	return m.Send(ctx, content, opts...)
}

// Disconnect transitions the session to closing, lets the pump flush
// pending work-log entries and discard unflushed text, and waits for the
// event channel to close. Idempotent: a second call returns immediately
// with no additional events. A currently-suspended consumer receive is
// unblocked by the channel close.
func (m *Mux) Disconnect() error {
	m.mu.Lock()
	switch m.state {
	case StateClosed, StateFailed:
		m.mu.Unlock()
		return nil
	case StateClosing:
		m.mu.Unlock()
		<-m.pumpDone
		return nil
	}
	started := m.started
	sessionID := m.sessionID
	m.state = StateClosing
	m.mu.Unlock()

	if !started {
		// Never joined: nothing to flush, no pump to stop.
		m.setState(StateClosed)
		m.closeOut()
		m.closePumpDone()
		return nil
	}

	// Best-effort leave; the transport may already be gone.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.transport.Send(ctx, protocol.NewLeaveFrame(sessionID)); err != nil {
		m.log.Debug("leave frame not delivered", "session_id", string(sessionID), "error", err)
	}

	m.closingOnce.Do(func() { close(m.closing) })
	<-m.pumpDone
	return nil
}

func (m *Mux) setState(s SessionState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Mux) closeOut() {
	m.outOnce.Do(func() { close(m.out) })
}

func (m *Mux) closePumpDone() {
	select {
	case <-m.pumpDone:
	default:
		close(m.pumpDone)
	}
}

// pump is the single goroutine owning all aggregation state. It merges
// three ready conditions into one ordered output: a frame arrived, a
// debounce deadline expired, or disconnect was requested.
func (m *Mux) pump(precheckTerminal string) {
	defer m.closePumpDone()
	defer m.closeOut()

	if precheckTerminal != "" {
		m.emitFinal(types.OutputEvent{Kind: types.OutputTerminal, State: precheckTerminal})
		m.deb.Close()
		m.setState(StateClosed)
		return
	}

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer timer.Stop()

	idleTimer := time.NewTimer(time.Hour)
	stopTimer(idleTimer)
	defer idleTimer.Stop()
	if m.idle > 0 {
		idleTimer.Reset(m.idle)
	}

	for {
		if deadline, ok := m.deb.NextDeadline(); ok {
			stopTimer(timer)
			timer.Reset(time.Until(deadline))
		} else {
			stopTimer(timer)
		}

		select {
		case <-m.closing:
			m.teardown(types.OutputEvent{Kind: types.OutputTerminal, State: "disconnected"}, StateClosed)
			return

		case now := <-timer.C:
			for _, part := range m.deb.Expire(now) {
				m.emit(types.OutputEvent{Kind: types.OutputWorkLogPart, WorkLog: part})
			}

		case <-idleTimer.C:
			// Server silence: the session may have ended without the
			// terminal frame reaching us. Ask the service.
			if state := m.pollSessionState(); state != "" {
				m.teardown(types.OutputEvent{Kind: types.OutputTerminal, State: state}, StateClosed)
				return
			}
			idleTimer.Reset(m.idle)

		case frame, ok := <-m.transport.Frames():
			if !ok {
				select {
				case <-m.closing:
					// Disconnect raced the transport closing; honor the
					// clean path.
					m.teardown(types.OutputEvent{Kind: types.OutputTerminal, State: "disconnected"}, StateClosed)
					return
				default:
				}
				cause := m.transport.Err()
				m.teardown(types.OutputEvent{
					Kind: types.OutputError,
					Err:  &TransportFailure{Cause: cause},
				}, StateFailed)
				return
			}
			if m.idle > 0 {
				stopTimer(idleTimer)
				idleTimer.Reset(m.idle)
			}
			if terminal := m.handleFrame(frame); terminal != "" {
				m.teardown(types.OutputEvent{Kind: types.OutputTerminal, State: terminal}, StateClosed)
				return
			}
		}
	}
}

// pollSessionState asks the service for the session's current state,
// returning it when terminal and "" otherwise. Lookup failures are
// logged and treated as not-terminal; the next idle expiry retries.
func (m *Mux) pollSessionState() string {
	if m.stater == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), idlePollTimeout)
	defer cancel()
	info, err := m.stater.GetSession(ctx, m.SessionID())
	if err != nil {
		m.log.Debug("idle session poll failed", "error", err)
		return ""
	}
	if types.IsTerminalState(info.State) {
		return info.State
	}
	return ""
}

// handleFrame records, filters, classifies, and dispatches one frame.
// It returns the terminal session state when the frame ends the session.
func (m *Mux) handleFrame(frame *types.RawFrame) string {
	m.mu.Lock()
	sessionID := m.sessionID
	cutoff := m.cutoff
	m.mu.Unlock()

	if m.recorder != nil {
		if err := m.recorder.Record(sessionID, frame); err != nil {
			m.log.Warn("journal record failed", "error", err)
		}
	}

	// Frames for other sessions on the shared link are not ours.
	if frame.Payload.SessionID != "" && frame.Payload.SessionID != sessionID {
		return ""
	}

	// Stale replays from before the current turn are dropped. Missing
	// or malformed timestamps pass.
	if !cutoff.IsZero() {
		if ts, ok := frame.Metadata.Time(); ok && ts.Before(cutoff) {
			m.log.Debug("dropping stale frame", "kind", frame.Kind, "timestamp", frame.Metadata.Timestamp)
			return ""
		}
	}

	ev, err := protocol.Classify(frame)
	if err != nil {
		// Unknown frame kinds are logged and dropped; the stream
		// continues.
		m.log.Warn("dropping unclassifiable frame", "error", err)
		return ""
	}

	switch ev := ev.(type) {
	case protocol.TextDelta:
		m.agg.Ingest(ev.MessageID, ev.Content)

	case protocol.TextComplete:
		// A server that didn't stream sends the whole reply on the
		// completion marker.
		if ev.Content != "" && m.agg.Len() == 0 {
			m.agg.Ingest(ev.MessageID, ev.Content)
		}
		if text, messageID, ok := m.agg.Flush(); ok {
			m.emit(types.OutputEvent{Kind: types.OutputText, MessageID: messageID, Text: text})
		}

	case protocol.WorkLogDelta:
		m.deb.Observe(ev, time.Now())

	case protocol.WorkLogUpdate:
		now := time.Now()
		for _, step := range ev.Steps {
			m.deb.Observe(step, now)
		}

	case protocol.StateChange:
		if ev.Terminal() {
			return ev.State
		}
		m.emit(types.OutputEvent{Kind: types.OutputStateChanged, State: ev.State})

	case protocol.InputState:
		m.emit(types.OutputEvent{Kind: types.OutputStateChanged, State: ev.State})

	case protocol.ServerError:
		m.emit(types.OutputEvent{Kind: types.OutputError, Err: errors.New(ev.Message)})
	}
	return ""
}

// teardown flushes pending debounce entries, discards unflushed text,
// emits the final event, and closes the stream. Parts whose live emit
// was interrupted by the disconnect go out first (they were due
// earliest), then the still-pending entries, then the final event so
// the consumer learns why iteration ended.
func (m *Mux) teardown(final types.OutputEvent, state SessionState) {
	for _, part := range m.dropped {
		m.emitFinal(types.OutputEvent{Kind: types.OutputWorkLogPart, WorkLog: part})
	}
	m.dropped = nil
	for _, part := range m.deb.FlushAll() {
		m.emitFinal(types.OutputEvent{Kind: types.OutputWorkLogPart, WorkLog: part})
	}
	m.deb.Close()
	m.agg.Reset()
	m.emitFinal(final)
	m.setState(state)
	if err := m.transport.Close(); err != nil {
		m.log.Debug("transport close", "error", err)
	}
}

// emit delivers one event to the consumer, suspending until the consumer
// is ready. A disconnect request releases the pump so teardown can run;
// an interrupted work-log part is stashed for teardown to re-emit, since
// the debouncer already dropped its entry. Interrupted text and state
// events are superseded by the terminal event.
func (m *Mux) emit(ev types.OutputEvent) {
	m.stamp(&ev)
	select {
	case m.out <- ev:
	case <-m.closing:
		if ev.Kind == types.OutputWorkLogPart && ev.WorkLog != nil {
			m.dropped = append(m.dropped, ev.WorkLog)
		}
	}
}

// emitFinal delivers a teardown event. It does not give up on the first
// contention, but it also must not wedge a disconnect under a consumer
// that stopped draining.
func (m *Mux) emitFinal(ev types.OutputEvent) {
	m.stamp(&ev)
	t := time.NewTimer(emitTimeout)
	defer t.Stop()
	select {
	case m.out <- ev:
	case <-t.C:
		m.log.Warn("dropping teardown event, consumer not draining", "kind", string(ev.Kind))
	}
}

func (m *Mux) stamp(ev *types.OutputEvent) {
	if ev.SessionID == "" {
		m.mu.Lock()
		ev.SessionID = m.sessionID
		m.mu.Unlock()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
}

// stopTimer stops a timer and drains its channel so Reset arms cleanly.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
