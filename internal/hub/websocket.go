package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// errObserverClosed is returned by Send after Close.
var errObserverClosed = errors.New("observer closed")

// wsObserver adapts a WebSocket connection to Observer. gorilla connections
// allow one concurrent writer, so every write holds writeMu.
type wsObserver struct {
	id   string
	conn *websocket.Conn

	writeMu   sync.Mutex
	writeWait time.Duration
	closed    bool
}

func newWSObserver(id string, conn *websocket.Conn, writeWait time.Duration) *wsObserver {
	return &wsObserver{id: id, conn: conn, writeWait: writeWait}
}

func (o *wsObserver) ID() string { return o.id }

// Send writes one text frame, bounded by writeWait and ctx's deadline.
func (o *wsObserver) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if o.closed {
		return errObserverClosed
	}

	deadline := time.Now().Add(o.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := o.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return o.conn.WriteMessage(websocket.TextMessage, data)
}

func (o *wsObserver) ping() error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if o.closed {
		return errObserverClosed
	}
	return o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(o.writeWait))
}

// Close sends a going-away close frame and closes the connection. Repeated
// calls are no-ops.
func (o *wsObserver) Close() error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing connection")
	_ = o.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(o.writeWait))
	return o.conn.Close()
}
