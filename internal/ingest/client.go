package ingest

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"

	"github.com/AdotEXE/protocol-XT-sub007/internal/logging"
)

const (
	maxMessageBytes  = 1 << 20
	handshakeTimeout = 10 * time.Second
)

// Client streams snapshot frames from a websocket server into a Queue.
type Client struct {
	url    string
	queue  *Queue
	dialer *websocket.Dialer
	logger *logging.Logger
}

// NewClient constructs a client for url that pushes into queue.
func NewClient(url string, queue *Queue, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.L()
	}
	return &Client{
		url:    url,
		queue:  queue,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: logger.With(logging.String("component", "ingest"), logging.String("url", url)),
	}
}

// Run dials the server and reads until ctx is cancelled or the connection
// fails. Malformed frames are logged and skipped. A cancelled context or a
// normal close returns nil.
func (c *Client) Run(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return eris.Wrapf(err, "dial snapshot feed %s", c.url)
	}
	conn.SetReadLimit(maxMessageBytes)
	c.logger.Info("snapshot feed connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("snapshot feed closed")
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return eris.Wrap(err, "snapshot feed timed out")
			}
			return eris.Wrap(err, "read snapshot feed")
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		updates, err := Decode(payload)
		if err != nil {
			c.logger.Warn("dropping malformed snapshot frame", logging.Error(err))
			continue
		}
		c.queue.Push(updates...)
	}
}
