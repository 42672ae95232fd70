package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/tagstream/internal/logging"
)

// Client is an authenticated WebSocket connection. Turns started by a client
// run under its context and are cancelled when it disconnects.
type Client struct {
	ConnID      string
	Info        ClientInfo
	ConnectedAt time.Time

	socket *websocket.Conn
	ctx    context.Context
	stop   context.CancelFunc
	seq    atomic.Int64
	log    *logging.Logger

	mu     sync.Mutex
	closed bool
	turns  map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a Client for a newly authenticated connection.
func NewClient(conn *websocket.Conn, info ClientInfo, log *logging.Logger) *Client {
	ctx, stop := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Client{
		ConnID:      id,
		Info:        info,
		ConnectedAt: time.Now(),
		socket:      conn,
		ctx:         ctx,
		stop:        stop,
		turns:       make(map[string]context.CancelFunc),
		log:         log.With("connId", id),
	}
}

// Send writes a frame. Safe for concurrent use.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.socket.WriteJSON(frame)
}

// SendEvent sends a named event with the next sequence number.
func (c *Client) SendEvent(event string, payload any) error {
	f, err := NewEvent(event, payload, c.seq.Add(1))
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond sends a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the socket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// startTurn registers a running turn under reqID. It returns false when a
// turn with the same id is already running or the client is closed.
func (c *Client) startTurn(reqID string) (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ctx.Err() != nil {
		return nil, false
	}
	if _, dup := c.turns[reqID]; dup {
		return nil, false
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.turns[reqID] = cancel
	c.wg.Add(1)
	return ctx, true
}

func (c *Client) endTurn(reqID string) {
	c.mu.Lock()
	if cancel, ok := c.turns[reqID]; ok {
		cancel()
		delete(c.turns, reqID)
	}
	c.mu.Unlock()
	c.wg.Done()
}

// cancelTurn cancels the turn started by reqID.
func (c *Client) cancelTurn(reqID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.turns[reqID]
	if ok {
		cancel()
	}
	return ok
}

// Running returns the number of in-flight turns.
func (c *Client) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Close cancels the client's turns, waits for them and closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	c.stop()
	c.mu.Unlock()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.socket.Close()
}

// ClientRegistry tracks connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every connected client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		clients = append(clients, c)
		delete(r.clients, id)
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
