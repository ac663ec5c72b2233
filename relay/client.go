package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientConn is the relay's view of the browser connection. Send is safe for
// concurrent use; Receive is called from one goroutine and unblocks with an
// error after CancelRead or Close.
type ClientConn interface {
	Send(v any) error
	Receive() ([]byte, error)
	CancelRead()
	Close() error
}

// WSConn wraps a gorilla websocket connection. Writes are serialized with a
// mutex because gorilla allows only one concurrent writer.
type WSConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (c *WSConn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *WSConn) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// CancelRead forces a blocked Receive to return by expiring the read
// deadline. Used during teardown so the reader goroutine can exit.
func (c *WSConn) CancelRead() {
	c.conn.SetReadDeadline(time.Now())
}

func (c *WSConn) Close() error {
	return c.conn.Close()
}
