package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/luca-patrignani/mental-poker-sync/syncer"
)

// ErrClosed is returned by Send on a closed WebSocketTransport.
var ErrClosed = errors.New("websocket transport closed")

// WebSocketTransport sends events over one WebSocket connection. It
// satisfies syncer.Transport and is safe for concurrent use.
type WebSocketTransport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Reply
	err     error
	done    chan struct{}
}

// DialWebSocket connects to the authority at address, a host:port or a
// ws:// or wss:// URL. A bare host:port gets the /ws path.
func DialWebSocket(ctx context.Context, address string, dialer *websocket.Dialer, header http.Header) (*WebSocketTransport, error) {
	if !strings.Contains(address, "://") {
		address = "ws://" + address + WebSocketPath
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, address, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: status %d: %w", address, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	t := &WebSocketTransport{
		conn:    conn,
		logger:  slog.Default(),
		pending: make(map[uint64]chan Reply),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Send writes payload as event and waits for the reply with the same id.
func (t *WebSocketTransport) Send(ctx context.Context, event string, payload any) (syncer.Ack, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return syncer.Ack{}, fmt.Errorf("encoding %s: %w", event, err)
	}

	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return syncer.Ack{}, err
	}
	t.nextID++
	id := t.nextID
	replies := make(chan Reply, 1)
	t.pending[id] = replies
	t.mu.Unlock()
	defer t.forget(id)

	t.writeMu.Lock()
	err = t.conn.WriteJSON(Envelope{ID: id, Event: event, Payload: raw})
	t.writeMu.Unlock()
	if err != nil {
		return syncer.Ack{}, fmt.Errorf("writing %s: %w", event, err)
	}

	select {
	case r := <-replies:
		if r.Error != "" {
			return r.Ack, fmt.Errorf("%s: %s", event, r.Error)
		}
		return r.Ack, nil
	case <-t.done:
		return syncer.Ack{}, t.closeErr()
	case <-ctx.Done():
		return syncer.Ack{}, ctx.Err()
	}
}

func (t *WebSocketTransport) readLoop() {
	for {
		var r Reply
		if err := t.conn.ReadJSON(&r); err != nil {
			t.fail(err)
			return
		}
		t.mu.Lock()
		replies, ok := t.pending[r.ID]
		t.mu.Unlock()
		if !ok {
			t.logger.Debug("reply without request", "id", r.ID)
			continue
		}
		select {
		case replies <- r:
		default:
		}
	}
}

func (t *WebSocketTransport) forget(id uint64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *WebSocketTransport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		err = ErrClosed
	}
	t.err = err
	close(t.done)
}

func (t *WebSocketTransport) closeErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close sends a close frame and releases the connection. Pending sends fail
// with ErrClosed.
func (t *WebSocketTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	t.fail(ErrClosed)
	return t.conn.Close()
}
