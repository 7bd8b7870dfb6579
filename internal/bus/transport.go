package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// ErrClosed is returned for calls on a transport whose connection is gone
var ErrClosed = errors.New("bus: connection closed")

// Transport carries envelopes to a coordinator
type Transport interface {
	// RoundTrip sends req and waits for the reply with the same id
	RoundTrip(ctx context.Context, req models.Envelope) (models.Envelope, error)
	// Send delivers a one-way event
	Send(ctx context.Context, ev models.Envelope) error
	Close() error
}

// LocalTransport calls a Handler in-process
type LocalTransport struct {
	handler Handler
}

func NewLocalTransport(h Handler) *LocalTransport {
	return &LocalTransport{handler: h}
}

func (t *LocalTransport) RoundTrip(ctx context.Context, req models.Envelope) (models.Envelope, error) {
	resp, ok := t.handler.Handle(ctx, req)
	if !ok {
		return models.Envelope{}, fmt.Errorf("no reply to %s", req.Type)
	}
	return resp, nil
}

func (t *LocalTransport) Send(ctx context.Context, ev models.Envelope) error {
	t.handler.Handle(ctx, ev)
	return nil
}

func (t *LocalTransport) Close() error { return nil }

// WSTransport multiplexes requests over one websocket connection
type WSTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan models.Envelope
	closed  bool
	done    chan struct{}

	logger *slog.Logger
}

// Dial connects to a bus server, e.g. ws://localhost:8080/v1/bus
func Dial(ctx context.Context, url string, logger *slog.Logger) (*WSTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus at %s: %w", url, err)
	}

	t := &WSTransport{
		conn:    conn,
		pending: make(map[string]chan models.Envelope),
		done:    make(chan struct{}),
		logger:  logger.With("component", "bus-client"),
	}
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) readLoop() {
	defer t.shutdown()
	for {
		var env models.Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("bus read failed", "err", err)
			}
			return
		}

		t.mu.Lock()
		ch, ok := t.pending[env.ID]
		delete(t.pending, env.ID)
		t.mu.Unlock()
		if !ok {
			t.logger.Debug("dropping unsolicited frame", "id", env.ID, "type", env.Type)
			continue
		}
		ch <- env
	}
}

func (t *WSTransport) shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.done)
}

func (t *WSTransport) write(ctx context.Context, env models.Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteJSON(env)
}

func (t *WSTransport) RoundTrip(ctx context.Context, req models.Envelope) (models.Envelope, error) {
	ch := make(chan models.Envelope, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return models.Envelope{}, ErrClosed
	}
	t.pending[req.ID] = ch
	t.mu.Unlock()

	forget := func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}

	if err := t.write(ctx, req); err != nil {
		forget()
		return models.Envelope{}, fmt.Errorf("failed to send %s: %w", req.Type, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-t.done:
		return models.Envelope{}, ErrClosed
	case <-ctx.Done():
		forget()
		return models.Envelope{}, ctx.Err()
	}
}

func (t *WSTransport) Send(ctx context.Context, ev models.Envelope) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	return t.write(ctx, ev)
}

func (t *WSTransport) Close() error {
	t.writeMu.Lock()
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}
