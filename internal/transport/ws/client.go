package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a thin websocket wrapper satisfying the channel adapter's
// Transport. Reads are pumped by ReadLoop into whatever handler the caller
// wires up, usually Adapter.HandleRaw.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  sync.Once
	done    chan struct{}
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, done: make(chan struct{})}, nil
}

func (c *Client) Send(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// ReadLoop pushes every inbound frame into handler until the connection
// drops or ctx is cancelled. It returns the terminating read error, nil on
// clean close.
func (c *Client) ReadLoop(ctx context.Context, handler func([]byte)) error {
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		handler(msg)
	}
}

func (c *Client) Close() error {
	var err error
	c.closed.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
