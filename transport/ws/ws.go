// Package ws carries wiremux traffic over WebSocket connections, one
// websocket message per frame.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wiremux/wiremux"
)

// Endpoint adapts an established websocket connection.
type Endpoint struct {
	conn    *websocket.Conn
	msgType int

	writeMu sync.Mutex

	closeOnce sync.Once
}

var _ wiremux.Transmitter = (*Endpoint)(nil)

// NewEndpoint wraps an established connection, typically one produced by a
// websocket.Upgrader. Binary selects binary frames; text frames suit
// text-based codecs.
func NewEndpoint(conn *websocket.Conn, binary bool) *Endpoint {
	msgType := websocket.TextMessage
	if binary {
		msgType = websocket.BinaryMessage
	}
	return &Endpoint{conn: conn, msgType: msgType}
}

// Dial connects to a wiremux websocket server at url.
func Dial(ctx context.Context, url string, binary bool) (*Endpoint, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewEndpoint(conn, binary), nil
}

// Transmit writes one websocket message.
func (e *Endpoint) Transmit(p []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.conn.WriteMessage(e.msgType, p); err != nil {
		return fmt.Errorf("write websocket message: %w", err)
	}
	return nil
}

// Run reports the ready transition to r, then delivers inbound messages
// until ctx ends or the connection closes. A normal peer close returns nil;
// a ready drain failure is reported in the returned error but does not stop
// the connection.
func (e *Endpoint) Run(ctx context.Context, r wiremux.Receiver) error {
	if r == nil {
		return errors.New("receiver is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	drainErr := r.Ready()

	stop := context.AfterFunc(ctx, func() { e.Close() })
	defer stop()

	for {
		_, frame, err := e.conn.ReadMessage()
		if err != nil {
			e.Close()
			switch {
			case ctx.Err() != nil:
				return errors.Join(drainErr, ctx.Err())
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return drainErr
			default:
				return errors.Join(drainErr, fmt.Errorf("read websocket message: %w", err))
			}
		}
		r.HandleData(frame)
	}
}

// Close closes the underlying connection. Safe to call more than once.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.conn.Close()
	})
	return err
}
