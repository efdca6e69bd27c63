// internal/transport/ws.go
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/user/pinewire/internal/types"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second

	// frameBuffer absorbs short bursts so the read loop is not stalled
	// by a slow consumer mid-burst.
	frameBuffer = 64
)

// WSLink is a websocket frame link to the service. One connection per
// link; reconnect policy applies to the initial dial only, a dropped
// established connection surfaces through Err after Frames closes.
type WSLink struct {
	url    string
	token  string
	dialer *websocket.Dialer
	retry  *RetryPolicy
	log    *slog.Logger

	writeMu sync.Mutex // serialises all conn writes (frames, pings)
	conn    *websocket.Conn

	frames chan *types.RawFrame
	group  *errgroup.Group
	cancel context.CancelFunc

	mu        sync.Mutex
	err       error
	closed    bool
	closeOnce sync.Once
}

// LinkOption configures a WSLink.
type LinkOption func(*WSLink)

// WithRetryPolicy overrides the dial retry policy.
func WithRetryPolicy(p *RetryPolicy) LinkOption {
	return func(l *WSLink) { l.retry = p }
}

// WithLinkLogger sets the structured logger.
func WithLinkLogger(log *slog.Logger) LinkOption {
	return func(l *WSLink) { l.log = log }
}

// WithDialer overrides the websocket dialer (TLS config, proxies).
func WithDialer(d *websocket.Dialer) LinkOption {
	return func(l *WSLink) { l.dialer = d }
}

// Dial connects and authenticates a WSLink. The bearer token rides the
// handshake request so an invalid identity is rejected before any frame
// flows.
func Dial(ctx context.Context, url, token string, opts ...LinkOption) (*WSLink, error) {
	l := &WSLink{
		url:    url,
		token:  token,
		dialer: websocket.DefaultDialer,
		retry:  DefaultRetryPolicy(),
		log:    slog.Default(),
		frames: make(chan *types.RawFrame, frameBuffer),
	}
	for _, opt := range opts {
		opt(l)
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	var conn *websocket.Conn
	err := l.retry.Execute(func() error {
		c, resp, err := l.dialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
			}
			return fmt.Errorf("dial %s: %w", url, err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.conn = conn
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	l.group = group
	group.Go(func() error { return l.readLoop(groupCtx) })
	group.Go(func() error { return l.pingLoop(groupCtx) })

	l.log.Debug("websocket link established", "url", url)
	return l, nil
}

// Send writes one frame as a JSON text message. Safe for concurrent use.
func (l *WSLink) Send(ctx context.Context, frame *types.RawFrame) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("transport: link closed")
	}
	l.mu.Unlock()

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(deadline)
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Frames is the inbound frame stream. Closed when the connection ends.
func (l *WSLink) Frames() <-chan *types.RawFrame {
	return l.frames
}

// Err returns the terminal connection error. Valid after Frames closes;
// nil for a clean local close.
func (l *WSLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close tears the link down. Idempotent.
func (l *WSLink) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		// Polite close frame; the read loop ends when the peer
		// acknowledges or the connection drops.
		l.writeMu.Lock()
		_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = l.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.writeMu.Unlock()

		l.cancel()
		_ = l.conn.Close()
		_ = l.group.Wait()
	})
	return nil
}

// readLoop reads until the connection ends, decoding each text message
// into a RawFrame. Undecodable messages are logged and skipped. The
// channel send also watches ctx so Close never waits on a consumer that
// stopped draining.
func (l *WSLink) readLoop(ctx context.Context) error {
	defer close(l.frames)
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			if !l.closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				l.err = err
			}
			l.mu.Unlock()
			return nil
		}

		var frame types.RawFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			l.log.Warn("skipping undecodable message", "error", err)
			continue
		}
		select {
		case l.frames <- &frame:
		case <-ctx.Done():
			return nil
		}
	}
}

// pingLoop keeps the connection alive. The pong handler extends the read
// deadline, so a dead peer fails the read loop within pongTimeout.
func (l *WSLink) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.writeMu.Lock()
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := l.conn.WriteMessage(websocket.PingMessage, nil)
			l.writeMu.Unlock()
			if err != nil {
				return nil
			}
		}
	}
}
