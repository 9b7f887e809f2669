package llmrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State describes the relay connection lifecycle
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

const writeWait = 10 * time.Second

// Config holds the relay client settings
type Config struct {
	URL                  string
	Model                string
	MaxTokens            int
	Temperature          float64
	RequestTimeout       time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	KeepaliveInterval    time.Duration
}

// SendOptions carries per-request overrides and context for a relay exchange
type SendOptions struct {
	SQLMode  bool
	Metadata map[string]interface{}
}

type result struct {
	reply *Reply
	err   error
}

type queuedRequest struct {
	id      string
	payload []byte
}

// Client maintains a single long-lived WebSocket connection to the LLM
// service shared by all callers. Each request gets a correlation id; replies
// are matched back through the pending map. While the transport is down,
// requests queue FIFO and are flushed in order on reconnect. After the
// reconnect budget is spent the client stays disconnected and every request
// takes the fallback path until Reconnect is called.
type Client struct {
	cfg Config

	mu      sync.Mutex // guards state, conn, pending, queue, flags
	state   State
	conn    *websocket.Conn
	pending map[string]chan result
	queue   []queuedRequest

	writeMu sync.Mutex // serializes data writes; the conn allows one writer

	shutdown  bool
	exhausted bool

	wake   chan struct{} // manual reconnect signal
	closed chan struct{}
}

// NewClient creates a relay client and starts its connection manager. The
// client begins dialing immediately; callers may send right away and their
// requests queue until the transport is up.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "custom-model"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 3
	}

	c := &Client{
		cfg:     cfg,
		state:   StateConnecting,
		pending: make(map[string]chan result),
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}

	log.Printf("[Relay] client initialized with URL: %s", cfg.URL)
	go c.run()

	return c
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingCount returns the number of requests waiting for a reply
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Send transmits text to the LLM service and waits for the correlated reply.
// If the transport is down but the client is still retrying, the request is
// queued and flushed on reconnect. Fails with ErrRequestTimeout when no reply
// arrives in time, ErrNotConnected when the reconnect budget is spent, and
// ErrClientShutdown after Disconnect.
func (c *Client) Send(ctx context.Context, text string, opts SendOptions) (*Reply, error) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil, ErrClientShutdown
	}
	if c.exhausted {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	out := outboundMessage{
		ID:          id,
		Message:     text,
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Metadata:    opts.Metadata,
	}
	if opts.SQLMode {
		if out.Metadata == nil {
			out.Metadata = map[string]interface{}{}
		}
		out.Metadata["sql_mode"] = true
	}

	payload, err := json.Marshal(out)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to encode relay request: %w", err)
	}

	ch := make(chan result, 1)
	c.pending[id] = ch

	conn := c.conn
	connected := c.state == StateConnected
	if !connected {
		c.queue = append(c.queue, queuedRequest{id: id, payload: payload})
	}
	c.mu.Unlock()

	if connected {
		if err := c.write(conn, payload); err != nil {
			// Transport is going down; requeue at the head so this request
			// stays ahead of anything that queued while the connection was
			// dropping. The read loop notices the failure and reconnects.
			log.Printf("[Relay] write failed, queuing request %s: %v", id, err)
			c.mu.Lock()
			if !c.shutdown {
				c.queue = append([]queuedRequest{{id: id, payload: payload}}, c.queue...)
			}
			c.mu.Unlock()
		}
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.reply, res.err
	case <-timer.C:
		c.drop(id)
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		c.drop(id)
		return nil, ctx.Err()
	}
}

// SendWithFallback wraps Send and never fails: any relay-level error is
// absorbed and a locally generated reply echoing the user's text is returned
// instead. This is the only entry point the chat flow should use.
func (c *Client) SendWithFallback(ctx context.Context, text string, opts SendOptions) *Reply {
	reply, err := c.Send(ctx, text, opts)
	if err == nil {
		return reply
	}

	log.Printf("[Relay] using fallback reply: %v", err)
	return FallbackReply(text, opts)
}

// FallbackReply builds the canned reply used when the LLM service cannot be
// reached. It repeats the original text so the user can see what was received.
func FallbackReply(text string, opts SendOptions) *Reply {
	var content string
	if opts.SQLMode {
		content = fmt.Sprintf("I'm currently unable to reach the SQL analysis service. Your query %q has been received; please try again in a moment.", text)
	} else {
		content = fmt.Sprintf("I'm currently experiencing connectivity issues with the AI service. Your message %q has been received; please try again in a moment.", text)
	}

	return &Reply{
		Content:      content,
		TokensUsed:   0,
		Model:        "fallback",
		FinishReason: "fallback_used",
		Metadata:     map[string]interface{}{"fallback": true},
		Fallback:     true,
	}
}

// Reconnect resets the reconnect budget after it was exhausted and wakes the
// connection manager. No-op while connected or shut down.
func (c *Client) Reconnect() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.exhausted = false
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Disconnect closes the transport and rejects all pending requests with
// ErrClientShutdown. Safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.state = StateDisconnected
	conn := c.conn
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan result)
	c.queue = nil
	c.mu.Unlock()

	close(c.closed)
	if conn != nil {
		conn.Close()
	}

	for _, ch := range pending {
		ch <- result{err: ErrClientShutdown}
	}

	log.Printf("[Relay] disconnected, %d pending requests rejected", len(pending))
}

// run is the connection manager: it owns the dial/retry loop and restarts the
// read loop after every drop until the attempt budget runs out.
func (c *Client) run() {
	attempts := 0

	for {
		c.mu.Lock()
		if c.shutdown {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(c.cfg.URL, nil)
		if err != nil {
			attempts++
			log.Printf("[Relay] connect attempt %d/%d failed: %v", attempts, c.cfg.MaxReconnectAttempts, err)

			if attempts >= c.cfg.MaxReconnectAttempts {
				c.giveUp()
				select {
				case <-c.wake:
					attempts = 0
					continue
				case <-c.closed:
					return
				}
			}

			select {
			case <-time.After(c.cfg.ReconnectDelay):
				continue
			case <-c.closed:
				return
			}
		}

		attempts = 0
		backlog := c.attach(conn)
		log.Printf("[Relay] connected to %s", c.cfg.URL)

		c.flush(conn, backlog)

		stopPing := make(chan struct{})
		go c.keepalive(conn, stopPing)

		c.readLoop(conn)

		close(stopPing)
		conn.Close()

		c.mu.Lock()
		c.conn = nil
		if c.shutdown {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		select {
		case <-time.After(c.cfg.ReconnectDelay):
		case <-c.closed:
			return
		}
	}
}

// attach installs a fresh connection and takes ownership of the queued
// backlog for flushing.
func (c *Client) attach(conn *websocket.Conn) []queuedRequest {
	if c.cfg.KeepaliveInterval > 0 {
		pongWait := 2 * c.cfg.KeepaliveInterval
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.state = StateConnected
	c.exhausted = false
	backlog := c.queue
	c.queue = nil
	return backlog
}

// flush drains the backlog in FIFO order. On a write failure the unsent tail
// is put back at the head of the queue so ordering survives the reconnect.
func (c *Client) flush(conn *websocket.Conn, backlog []queuedRequest) {
	for i, req := range backlog {
		if err := c.write(conn, req.payload); err != nil {
			log.Printf("[Relay] flush interrupted at %d/%d: %v", i, len(backlog), err)
			c.mu.Lock()
			if !c.shutdown {
				c.queue = append(append([]queuedRequest{}, backlog[i:]...), c.queue...)
			}
			c.mu.Unlock()
			return
		}
	}
	if len(backlog) > 0 {
		log.Printf("[Relay] flushed %d queued requests", len(backlog))
	}
}

func (c *Client) write(conn *websocket.Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// readLoop routes inbound messages to their pending requests until the
// connection drops.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Relay] connection closed unexpectedly: %v", err)
			}
			return
		}

		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			log.Printf("[Relay] dropping malformed message: %v", err)
			continue
		}

		if in.ID == "" {
			log.Printf("[Relay] dropping unroutable message without id")
			continue
		}

		if in.Error != "" {
			c.finish(in.ID, result{err: &UpstreamError{Message: in.Error}})
			continue
		}

		c.finish(in.ID, result{reply: in.toReply(c.cfg.Model)})
	}
}

// keepalive sends ping frames while the connection is up. A missing pong
// trips the read deadline, which surfaces as a read error and triggers the
// normal reconnect path.
func (c *Client) keepalive(conn *websocket.Conn, stop chan struct{}) {
	if c.cfg.KeepaliveInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// finish resolves or rejects the pending request for id. Replies for unknown
// or already-resolved ids are dropped, not fatal.
func (c *Client) finish(id string, res result) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		log.Printf("[Relay] dropping reply with unknown id %s", id)
		return
	}
	ch <- res
}

// drop removes a request that stopped waiting (timeout or caller cancel)
// from both the pending map and the queue.
func (c *Client) drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, id)
	for i, req := range c.queue {
		if req.id == id {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
}

// giveUp marks the reconnect budget as spent and fails everything queued so
// callers fall back immediately instead of waiting out their timeouts.
func (c *Client) giveUp() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.exhausted = true
	queued := c.queue
	c.queue = nil

	rejected := make([]chan result, 0, len(queued))
	for _, req := range queued {
		if ch, ok := c.pending[req.id]; ok {
			delete(c.pending, req.id)
			rejected = append(rejected, ch)
		}
	}
	c.mu.Unlock()

	for _, ch := range rejected {
		ch <- result{err: ErrNotConnected}
	}

	log.Printf("[Relay] reconnect budget exhausted, staying disconnected until manual reconnect")
}
