package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned by Send when the outbound queue is full; the
// message is dropped.
var ErrBufferFull = errors.New("notify: outbound buffer full")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("notify: connection closed")

const (
	defaultBuffer = 32
	writeWait     = 5 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
)

// WSConn adapts a gorilla websocket to Conn. Messages are queued and written by
// a single writer goroutine.
type WSConn struct {
	ws   *websocket.Conn
	out  chan Message
	done chan struct{}
	once sync.Once
}

// NewWSConn starts the write pump. buffer <= 0 selects a default size.
func NewWSConn(ws *websocket.Conn, buffer int) *WSConn {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	c := &WSConn{ws: ws, out: make(chan Message, buffer), done: make(chan struct{})}
	go c.writePump()
	return c
}

// Send enqueues msg without blocking.
func (c *WSConn) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// Close stops the write pump and closes the socket. Safe to call repeatedly.
func (c *WSConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

// Done is closed once the connection is closed.
func (c *WSConn) Done() <-chan struct{} { return c.done }

// ReadLoop discards inbound frames and keeps the read deadline fresh on pong.
// It returns when the peer goes away, then closes the connection.
func (c *WSConn) ReadLoop() {
	defer c.Close()
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
