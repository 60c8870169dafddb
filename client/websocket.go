package client

// This file contains WebSocket support for real-time request events.

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Event names pushed by the server.
const (
	EventNewRequest       = "new-request"
	EventRequestCompleted = "request-completed"
	EventRequestCancelled = "request-cancelled"
)

// Event is one frame from the real-time channel.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Request decodes the payload of a new-request event.
func (e Event) Request() (Request, error) {
	var r Request
	return r, json.Unmarshal(e.Data, &r)
}

// RequestID decodes the payload of a completion or cancellation event.
func (e Event) RequestID() (int64, error) {
	var id int64
	return id, json.Unmarshal(e.Data, &id)
}

// EventHandler is called for each event received via WebSocket
type EventHandler func(event Event)

// WSClient manages a WebSocket connection for real-time events
type WSClient struct {
	baseURL    string
	tenant     string
	reconnect  bool
	maxBackoff time.Duration

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers []EventHandler
	done     chan struct{}
	once     sync.Once
}

// WSOption configures the WebSocket client
type WSOption func(*WSClient)

// WithWSTenant selects the café whose events are streamed
func WithWSTenant(tenantID string) WSOption {
	return func(c *WSClient) {
		c.tenant = tenantID
	}
}

// WithAutoReconnect enables automatic reconnection on disconnect
func WithAutoReconnect(enabled bool) WSOption {
	return func(c *WSClient) {
		c.reconnect = enabled
	}
}

// NewWSClient creates a new WebSocket client for real-time events
func NewWSClient(baseURL string, opts ...WSOption) *WSClient {
	c := &WSClient{
		baseURL:    baseURL,
		done:       make(chan struct{}),
		reconnect:  true,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnEvent registers an event handler
func (c *WSClient) OnEvent(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Connect dials once and then reads in the background until Close or ctx
// ends. Events published while disconnected are not replayed.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)
	go c.readLoop(ctx)
	return nil
}

// Close closes the WebSocket connection
func (c *WSClient) Close() error {
	c.once.Do(func() { close(c.done) })
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := c.buildWSURL()
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

func (c *WSClient) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *WSClient) buildWSURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	// Convert http(s) to ws(s)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	if c.tenant != "" {
		q := u.Query()
		q.Set("tenant_id", c.tenant)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func (c *WSClient) readLoop(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		var event Event
		err := wsjson.Read(ctx, conn, &event)
		if err == nil {
			c.dispatchEvent(event)
			continue
		}
		if !c.reconnect || c.closed(ctx) {
			return
		}
		next, ok := c.redial(ctx)
		if !ok {
			return
		}
		c.setConn(next)
	}
}

func (c *WSClient) closed(ctx context.Context) bool {
	select {
	case <-c.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *WSClient) dispatchEvent(event Event) {
	c.mu.RLock()
	handlers := make([]EventHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// redial retries with exponential backoff until it connects or the client
// is closed.
func (c *WSClient) redial(ctx context.Context) (*websocket.Conn, bool) {
	backoff := 100 * time.Millisecond

	for {
		select {
		case <-c.done:
			return nil, false
		case <-ctx.Done():
			return nil, false
		case <-time.After(backoff):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			return conn, true
		}

		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// FilteredEventHandler only forwards events whose name is in types.
func FilteredEventHandler(handler EventHandler, types ...string) EventHandler {
	return func(event Event) {
		for _, t := range types {
			if event.Event == t {
				handler(event)
				return
			}
		}
	}
}
