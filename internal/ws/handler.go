package ws

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatSession is the part of a session the UI bridge drives.
type ChatSession interface {
	Submit(text string) error
}

// Handler handles WebSocket connections from UI clients.
type Handler struct {
	hub     *Hub
	session ChatSession
	log     zerolog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, sess ChatSession, logger zerolog.Logger) *Handler {
	h := &Handler{
		hub:     hub,
		session: sess,
		log:     logger,
	}
	hub.SetOnMessage(h.handleMessage)
	return h
}

// HandleConnection upgrades the request and attaches the client to the hub.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn)
	h.hub.Register(client)
	h.log.Debug().Str("remote", r.RemoteAddr).Int("clients", h.hub.ClientCount()).Msg("ui client attached")

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// handleMessage processes incoming messages from clients.
func (h *Handler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case MessageTypeSubmit:
		h.handleSubmit(client, msg)
	case MessageTypePing:
		client.SendMessage(&Message{Type: MessageTypePong})
	default:
		client.SendMessage(&Message{Type: MessageTypeError, Error: "unknown message type: " + string(msg.Type)})
	}
}

func (h *Handler) handleSubmit(client *Client, msg *Message) {
	if msg.Data == "" {
		client.SendMessage(&Message{Type: MessageTypeError, Error: "message is required"})
		return
	}
	// A rejected submission also raises a notification; the error reply
	// tells the submitting client which request failed.
	if err := h.session.Submit(msg.Data); err != nil {
		client.SendMessage(&Message{Type: MessageTypeError, Error: err.Error()})
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Msg("ui client error")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			h.log.Debug().Err(err).Msg("failed to unmarshal ui message")
			continue
		}

		h.hub.HandleMessage(client, &msg)
	}
}

// writePump writes queued events and the newest state snapshot to the
// connection until the client is closed.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		var message []byte
		select {
		case message = <-client.events:
		case message = <-client.state:
		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
