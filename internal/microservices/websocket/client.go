package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Individual client connection handler

const ( // ping pong(2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time write a message to the peer
	PongWait       = 60 * time.Second    // max time to wait for pong from peer => no pong = no connection
	PingPeriod     = (PongWait * 9) / 10 // send pings before pong wait expires, 10% slack for network jitter
	MaxMessageSize = 4096                // maximum message size allowed from peer
)

var ErrClientClosed = errors.New("client closed")

type Client struct {
	ID      string          // unique client ID, also the run ID of its emitter
	UserID  string          // user ID from the JWT, empty when auth is disabled
	Conn    *websocket.Conn // WebSocket connection
	Limiter *rate.Limiter   // rate limiter for inbound echo frames
	Hub     *Hub            // reference to the central Hub

	writeMu   sync.Mutex // gorilla allows one concurrent writer
	closeOnce sync.Once
	done      chan struct{}
	logger    *slog.Logger
}

// constructor new client
func NewClient(id, userID string, conn *websocket.Conn, hub *Hub, limiter *rate.Limiter) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(10), 20) // 10 msgs/sec with burst of 20
	}
	return &Client{
		ID:      id,
		UserID:  userID,
		Conn:    conn,
		Limiter: limiter,
		Hub:     hub,
		done:    make(chan struct{}),
		logger:  slog.Default().With("client_id", id),
	}
}

// SendText writes one text frame; the write deadline is WriteWait
func (c *Client) SendText(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.Conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// SendMessage: encode and send one envelope
func (c *Client) SendMessage(ctx context.Context, msg OutboundMessage) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	return c.SendText(ctx, frame)
}

// ReadPump: reads inbound frames until the peer goes away and echoes each text frame back.
// returns nil on a normal close
func (c *Client) ReadPump(ctx context.Context) error {
	c.Conn.SetReadLimit(MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		msgType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("client_disconnected")
				return nil
			}
			select {
			case <-c.done: // closed locally
				return nil
			default:
			}
			c.logger.Warn("client_read_error", "error", err)
			return err
		}
		c.Conn.SetReadDeadline(time.Now().Add(PongWait))

		if msgType != websocket.TextMessage {
			c.logger.Debug("non_text_frame_ignored", "type", msgType)
			continue
		}

		if !c.Limiter.Allow() {
			c.logger.Warn("rate_limit_exceeded")
			continue
		}

		if err := c.SendMessage(ctx, NewEcho(data)); err != nil {
			c.logger.Warn("echo_send_failed", "error", err)
			return err
		}
	}
}

// PingLoop: keeps the connection alive until ctx is done or a ping fails
func (c *Client) PingLoop(ctx context.Context) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			// WriteControl may run concurrently with WriteMessage
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteWait)); err != nil {
				c.logger.Warn("ping_failed", "error", err)
				return
			}
		}
	}
}

// Close: sends a close frame and closes the underlying connection, safe to call twice
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(WriteWait))
		err = c.Conn.Close()
	})
	return err
}

// Done is closed once Close has been called
func (c *Client) Done() <-chan struct{} {
	return c.done
}
