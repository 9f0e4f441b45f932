package connection

import (
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the transport connection the manager drives. The production
// implementation wraps a gorilla websocket; tests substitute fakes.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(url string) (Conn, error)
}

type wsDialer struct {
	writeWait time.Duration
}

func (d *wsDialer) Dial(url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn, writeWait: d.writeWait}, nil
}

// wsConn answers server pings implicitly: gorilla replies to control frames
// while ReadMessage is blocked, so the client needs no ping loop of its own.
type wsConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
