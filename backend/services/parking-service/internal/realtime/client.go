package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval   = 30 * time.Second
	readDeadline   = 60 * time.Second
	maxInboundSize = 4 * 1024
	sendBuffer     = 32
)

// Client is one dashboard websocket connection.
type Client struct {
	ownerID      string
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	logger       *zap.Logger
	writeTimeout time.Duration
	onClose      func(*Client)
}

// NewClient wraps an upgraded connection.
func NewClient(ownerID string, ws *websocket.Conn, writeTimeout time.Duration, logger *zap.Logger, onClose func(*Client)) *Client {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Client{
		ownerID:      ownerID,
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		logger:       logger,
		writeTimeout: writeTimeout,
		onClose:      onClose,
	}
}

// OwnerID returns the room of the client.
func (c *Client) OwnerID() string {
	return c.ownerID
}

// Start launches read/write pumps and blocks until the connection ends.
func (c *Client) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump()
}

// Send enqueues a frame, reporting false when the buffer is full or the client is closed.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close asks the write pump to send a close frame and stop.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump only keeps the deadline fresh; dashboards never send commands.
func (c *Client) readPump() {
	defer c.cleanup()
	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(readDeadline))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("dashboard connection read closed", zap.String("owner_id", c.ownerID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-c.done:
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("dashboard write failed", zap.String("owner_id", c.ownerID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Client) cleanup() {
	c.Close()
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
}
