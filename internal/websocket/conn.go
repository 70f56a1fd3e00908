// Package websocket adapts coder/websocket connections to the framed
// connection the chat router reads from and writes to.
package websocket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/johndosdos/wschat/internal/model"
)

const pingTimeout = 10 * time.Second

// Options tune accepted connections.
type Options struct {
	// ReadLimit caps a single inbound frame in bytes. Zero keeps the library default.
	ReadLimit int64
	// OriginPatterns lists extra hosts allowed to connect from a browser.
	OriginPatterns []string
	// PingInterval enables keepalive pings. Zero disables them.
	PingInterval time.Duration
}

// Conn is one WebSocket connection carrying chat frames.
type Conn struct {
	conn *websocket.Conn
}

// Accept upgrades the HTTP request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: opts.OriginPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection to WebSocket: %w", err)
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	return &Conn{conn: conn}, nil
}

// Dial opens a client connection to url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &Conn{conn: conn}, nil
}

// ReadFrame blocks until the next frame arrives. A normal close by the peer
// is reported as io.EOF.
func (c *Conn) ReadFrame(ctx context.Context) (model.Frame, error) {
	msgType, p, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return model.Frame{}, io.EOF
		}
		return model.Frame{}, err
	}

	frameType := model.FrameBinary
	if msgType == websocket.MessageText {
		frameType = model.FrameText
	}
	return model.Frame{Type: frameType, Data: p}, nil
}

// WriteFrame sends one frame. Writes are serialized by the library.
func (c *Conn) WriteFrame(ctx context.Context, frame model.Frame) error {
	msgType := websocket.MessageBinary
	if frame.IsText() {
		msgType = websocket.MessageText
	}
	return c.conn.Write(ctx, msgType, frame.Data)
}

// SendText writes s as a text frame.
func (c *Conn) SendText(ctx context.Context, s string) error {
	return c.WriteFrame(ctx, model.TextFrame(s))
}

// Close tears the connection down without waiting for the close handshake.
func (c *Conn) Close() error {
	return c.conn.CloseNow()
}

// CloseWith performs the close handshake with the given status and reason.
func (c *Conn) CloseWith(code websocket.StatusCode, reason string) error {
	return c.conn.Close(code, reason)
}

// Keepalive pings the peer every interval until ctx ends. A failed ping
// closes the connection, which ends any pending read.
func (c *Conn) Keepalive(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				_ = c.conn.CloseNow()
				return fmt.Errorf("failed to send ping signal: %w", err)
			}
		}
	}
}
