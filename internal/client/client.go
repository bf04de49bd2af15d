// Package client maintains the connector's persistent websocket to the
// relay. It reconnects with a fixed delay up to a bounded attempt count
// and translates wire envelopes to and from the process bridge's events.
package client

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/coldshalamov/terminal-server/internal/wire"
)

// ErrMaxReconnects is the terminal error message surfaced to the owner
// when the reconnection budget is exhausted.
const ErrMaxReconnects = "max reconnection attempts reached"

// Events carries the owner's callbacks. All are optional.
type Events struct {
	OnConnected    func()
	OnDisconnected func()
	OnInput        func(data string)
	OnResize       func(cols, rows uint16)
	OnClose        func()
	OnError        func(message string)
}

// Client is the connector-side transport. Create with New, then call
// Connect once; the client keeps the connection alive until Disconnect
// or the reconnection budget runs out.
type Client struct {
	url          string
	interval     time.Duration
	maxAttempts  int
	events       Events

	mu       sync.Mutex
	conn     *websocket.Conn
	running  bool
	stopped  bool
	attempts int
	cancel   context.CancelFunc
}

// New creates a Client targeting serverURL with the given connector
// token. The URL may omit its scheme; secure websocket is the default.
func New(serverURL, token string, interval time.Duration, maxAttempts int, events Events) (*Client, error) {
	wsURL, err := normalizeURL(serverURL, token)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Client{
		url:         wsURL,
		interval:    interval,
		maxAttempts: maxAttempts,
		events:      events,
	}, nil
}

// normalizeURL turns a relay base URL into the connector websocket URL,
// defaulting to the secure scheme when none is given.
func normalizeURL(raw, token string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/connector"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// URL exposes the normalized websocket URL.
func (c *Client) URL() string { return c.url }

// Connect starts the connection loop. Calling it while already running
// or after Disconnect is a no-op.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.running {
		c.mu.Unlock()
		log.Printf("[socket] already connected")
		return
	}
	c.running = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go c.loop(ctx)
}

// loop dials, serves the connection, and retries with a fixed delay
// until the attempt budget is exhausted or the client is stopped.
func (c *Client) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			c.mu.Lock()
			c.attempts++
			attempts := c.attempts
			c.mu.Unlock()

			log.Printf("[socket] connect failed (attempt %d/%d): %v", attempts, c.maxAttempts, err)
			if attempts >= c.maxAttempts {
				if c.events.OnError != nil {
					c.events.OnError(ErrMaxReconnects)
				}
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(c.interval):
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.attempts = 0
		c.mu.Unlock()

		log.Printf("[socket] connected to relay")
		if c.events.OnConnected != nil {
			c.events.OnConnected()
		}

		c.readAll(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		stopped := c.stopped
		c.mu.Unlock()

		log.Printf("[socket] disconnected")
		if c.events.OnDisconnected != nil {
			c.events.OnDisconnected()
		}
		if stopped || ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

// readAll pumps inbound envelopes until the connection fails.
func (c *Client) readAll(ctx context.Context, conn *websocket.Conn) {
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return
		}

		env, err := wire.Decode(frame)
		if err != nil {
			log.Printf("[socket] bad frame: %v", err)
			continue
		}

		switch env.Type {
		case wire.TypeInput:
			if c.events.OnInput != nil {
				c.events.OnInput(env.Data)
			}
		case wire.TypeResize:
			if env.Cols > 0 && env.Rows > 0 && c.events.OnResize != nil {
				c.events.OnResize(env.Cols, env.Rows)
			}
		case wire.TypeClose:
			if c.events.OnClose != nil {
				c.events.OnClose()
			}
		case wire.TypeError:
			log.Printf("[socket] relay error: %s", env.Message)
			if c.events.OnError != nil {
				c.events.OnError(env.Message)
			}
		default:
			log.Printf("[socket] dropping unexpected %q", env.Type)
		}
	}
}

// send writes one envelope if connected; otherwise it warns and drops.
// Application messages are never queued across a reconnect gap.
func (c *Client) send(env wire.Envelope) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		log.Printf("[socket] not connected, dropping %s", env.Type)
		return
	}

	frame, err := wire.Encode(env)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		log.Printf("[socket] write %s: %v", env.Type, err)
	}
}

// EmitData forwards shell output to the relay.
func (c *Client) EmitData(data string) {
	c.send(wire.Data(data))
}

// EmitStatus pushes a lifecycle notice to the relay.
func (c *Client) EmitStatus(status, message string) {
	c.send(wire.Status(status, message))
}

// IsConnected reports whether a live connection exists right now.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Disconnect tears the connection down and stops the reconnect loop.
// It is idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	if cancel != nil {
		cancel()
	}
	log.Printf("[socket] disconnected by request")
}
