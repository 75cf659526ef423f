package network

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftsync/driftsync/logging"
)

// Hint is a change notification pushed by the server over WebSocket.
// It tells the client that syncing now is worthwhile; it carries no
// data itself.
type Hint struct {
	Type       string `json:"type"`
	Collection string `json:"collection,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
}

// Hint types the listener reacts to.
const (
	HintDataChanged   = "data_changed"
	HintSyncRequested = "sync_requested"
)

// HintHandler processes an incoming hint.
type HintHandler func(Hint)

// WSHintListener maintains a WebSocket connection to the server's hint
// endpoint and invokes the handler on every relevant hint. Connection
// drops are retried with exponential backoff.
type WSHintListener struct {
	url     string
	dialer  *websocket.Dialer
	handler HintHandler
	logger  *logging.Logger

	initialDelay time.Duration
	maxDelay     time.Duration

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	started   bool
	stop      chan struct{}
	stopped   sync.Once
}

// WSHintOption configures a WSHintListener.
type WSHintOption func(*WSHintListener)

// WithDialer sets a custom WebSocket dialer.
func WithDialer(d *websocket.Dialer) WSHintOption {
	return func(l *WSHintListener) { l.dialer = d }
}

// WithReconnectDelays sets the initial and maximum reconnect delays.
func WithReconnectDelays(initial, max time.Duration) WSHintOption {
	return func(l *WSHintListener) {
		l.initialDelay = initial
		l.maxDelay = max
	}
}

// WithHintLogger sets the logger.
func WithHintLogger(log *logging.Logger) WSHintOption {
	return func(l *WSHintListener) { l.logger = log }
}

// NewWSHintListener creates a listener for the given ws:// or wss://
// URL. The handler runs on the read goroutine; keep it short.
func NewWSHintListener(url string, handler HintHandler, opts ...WSHintOption) *WSHintListener {
	l := &WSHintListener{
		url:          url,
		dialer:       websocket.DefaultDialer,
		handler:      handler,
		logger:       logging.WithComponent(logging.Component("ws-hints")),
		initialDelay: time.Second,
		maxDelay:     30 * time.Second,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsConnected reports whether the WebSocket is currently open.
func (l *WSHintListener) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Start begins connecting in a background goroutine. A no-op when
// called twice.
func (l *WSHintListener) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go l.run(ctx)
}

// Close tears down the connection and stops reconnecting.
func (l *WSHintListener) Close() error {
	l.stopped.Do(func() { close(l.stop) })

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.connected = false
	return nil
}

func (l *WSHintListener) run(ctx context.Context) {
	delay := l.initialDelay

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		default:
		}

		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.logger.Warn("Hint connection failed",
				slog.String("url", l.url),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay))

			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > l.maxDelay {
				delay = l.maxDelay
			}
			continue
		}

		delay = l.initialDelay
		l.setConn(conn, true)
		l.logger.Info("Hint connection established", slog.String("url", l.url))

		l.readLoop(conn)
		l.setConn(nil, false)
	}
}

func (l *WSHintListener) readLoop(conn *websocket.Conn) {
	for {
		var hint Hint
		if err := conn.ReadJSON(&hint); err != nil {
			select {
			case <-l.stop:
			default:
				l.logger.Warn("Hint connection dropped", slog.String("error", err.Error()))
			}
			conn.Close()
			return
		}

		switch hint.Type {
		case HintDataChanged, HintSyncRequested:
			l.dispatch(hint)
		default:
			l.logger.Debug("Ignoring hint", slog.String("type", hint.Type))
		}
	}
}

// dispatch isolates handler panics from the read loop.
func (l *WSHintListener) dispatch(hint Hint) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Hint handler panicked", slog.Any("panic", r))
		}
	}()
	l.handler(hint)
}

func (l *WSHintListener) setConn(conn *websocket.Conn, connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = conn
	l.connected = connected
}
