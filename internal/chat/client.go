package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Session is one live connection to the server.
type Session interface {
	// Send queues a frame for writing. It fails once the session is done.
	Send(ctx context.Context, frame []byte) error
	// Inbound yields frames in arrival order and is closed when the session ends.
	Inbound() <-chan []byte
	// Done is closed when the session ends.
	Done() <-chan struct{}
	Close() error
}

// Client is a Session over a gorilla websocket connection. A read pump and a
// write pump own the connection; everything else talks to them through
// channels.
type Client struct {
	Conn *websocket.Conn
	send chan []byte
	in   chan []byte
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		Conn: conn,
		send: make(chan []byte, 256),
		in:   make(chan []byte, 256),
		done: make(chan struct{}),
		log:  logger.With("component", "session"),
	}
	go c.writePump()
	go c.readPump()
	return c
}

func (c *Client) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrTransportUnavailable
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrTransportUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Inbound() <-chan []byte { return c.in }

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		close(c.in)
		c.shutdown()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !errors.Is(err, websocket.ErrCloseSent) {
				c.log.Info("session read ended", "error", err)
			}
			return
		}
		select {
		case c.in <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()
	for {
		select {
		case message := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
