package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/classcam/internal/models"
	"github.com/your-org/classcam/internal/observability"
	"github.com/your-org/classcam/pkg/dto"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live subscriber. A non-empty sessionID limits delivery to
// events of that recognition session.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

type message struct {
	sessionID string
	payload   []byte
}

// Hub fans recognition events out to WebSocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled. Call it in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "session", client.sessionID)

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				slog.Debug("ws client disconnected")
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.sessionID != "" && client.sessionID != msg.sessionID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					slog.Warn("ws client too slow, disconnecting", "session", client.sessionID)
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	observability.WSConnections.Dec()
}

// BroadcastEvent queues ev for every matching client. Events are dropped when
// the hub is saturated.
func (h *Hub) BroadcastEvent(ev models.RecognitionEvent) {
	data, err := json.Marshal(dto.WSEvent{
		Type:      "face_recognized",
		SessionID: ev.SessionID,
		Data:      toEventResponse(ev),
	})
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{sessionID: ev.SessionID, payload: data}:
	default:
		slog.Warn("ws broadcast queue full, dropping event", "session", ev.SessionID)
	}
}

// NotifyRecognition lets the hub receive events directly from the engine.
func (h *Hub) NotifyRecognition(_ context.Context, events []models.RecognitionEvent) error {
	for _, ev := range events {
		h.BroadcastEvent(ev)
	}
	return nil
}

// HandleEvent adapts the hub to a queue event consumer.
func (h *Hub) HandleEvent(_ context.Context, ev models.RecognitionEvent) error {
	h.BroadcastEvent(ev)
	return nil
}

func toEventResponse(ev models.RecognitionEvent) dto.EventResponse {
	return dto.EventResponse{
		ID:         ev.ID,
		SessionID:  ev.SessionID,
		TrackID:    ev.TrackID,
		Name:       ev.Name,
		ExternalID: ev.ExternalID,
		Section:    ev.Section,
		Similarity: ev.Similarity,
		Cached:     ev.Cached,
		BBox:       ev.BBox,
		FrameRef:   ev.FrameRef,
		Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// HandleWS upgrades the request; ?session_id= filters events.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan []byte, 64),
		sessionID: c.Query("session_id"),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump only detects disconnects; clients never send anything meaningful.
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
