package ws

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeSubmit MessageType = "submit"
	MessageTypePing   MessageType = "ping"

	// Server -> Client message types
	MessageTypeState        MessageType = "state"
	MessageTypeNotification MessageType = "notification"
	MessageTypePong         MessageType = "pong"
	MessageTypeError        MessageType = "error"
)

// eventBuffer bounds the queued non-state messages per client.
const eventBuffer = 64

// Message represents a WebSocket message.
type Message struct {
	Type    MessageType     `json:"type"`
	Data    string          `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client is one attached UI.
//
// Notifications and replies queue in order on events. State snapshots go
// through a single slot instead: every snapshot carries the whole transcript,
// so a client that falls behind a token stream only needs the newest one.
type Client struct {
	conn   *websocket.Conn
	events chan []byte
	state  chan []byte // holds at most the newest undelivered snapshot
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client for conn.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:   conn,
		events: make(chan []byte, eventBuffer),
		state:  make(chan []byte, 1),
		done:   make(chan struct{}),
	}
}

// Send queues an event. A client whose queue is full is closed.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.events <- data:
	default:
		c.closeLocked()
	}
}

// SendMessage marshals and queues msg.
func (c *Client) SendMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.Send(data)
	return nil
}

// offerState replaces any undelivered snapshot with data.
func (c *Client) offerState(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	// Only writers hold c.mu, so the slot is free after the drain.
	select {
	case <-c.state:
	default:
	}
	c.state <- data
}

// Close stops the client's write loop.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Hub tracks the UI clients of one chat session and the session state they
// were last shown.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	latest  []byte // last published state message

	onMessage func(client *Client, msg *Message)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
	}
}

// SetOnMessage sets the callback for incoming messages.
func (h *Hub) SetOnMessage(callback func(client *Client, msg *Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = callback
}

// Register adds a client and primes it with the latest state, so a reload
// restores the transcript before any new event arrives.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	if h.latest != nil {
		client.offerState(h.latest)
	}
}

// Unregister removes a client from the hub and closes it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	client.Close()
}

// PublishState records data as the current state message and offers it to
// every client. Registration and publishing share the write lock, so no
// client can attach between the two and miss the snapshot.
func (h *Hub) PublishState(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = data
	for client := range h.clients {
		client.offerState(data)
	}
}

// Broadcast queues an event on every client.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.Send(data)
	}
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleMessage routes a client message to the registered callback.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	h.mu.RLock()
	callback := h.onMessage
	h.mu.RUnlock()

	if callback != nil {
		callback(client, msg)
	}
}

// Close detaches every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
