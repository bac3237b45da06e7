package broadcast

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections and wires them into the hub.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers the websocket endpoint.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/queue", h.HandleConnect)
}

// HandleConnect upgrades the connection, registers the client, sends
// the current snapshot, and starts the read/write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 16),
		conn: ws,
	}
	h.hub.Register(client)

	if data, err := json.Marshal(h.hub.snapshot()); err == nil {
		select {
		case client.Send <- data:
		default:
		}
	}

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// readPump drains inbound frames; subscribers never send anything we
// act on, but reads detect disconnects.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump writes queued snapshots and periodic keepalive frames.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				return
			}
			if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ping, _ := json.Marshal(map[string]string{
				"type": "ping",
				"ts":   time.Now().UTC().Format(time.RFC3339),
			})
			if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, ping); err != nil {
				return
			}
		}
	}
}
