package ws

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	mW "github.com/peedutronix/credit-keeper/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API already runs behind CORS; the upgrade itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated requests and keeps the read loop alive for
// the ping/pong keepalive.
type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

type wsMessage struct {
	Type string `json:"type"`
}

// Serve handles GET /ws
// @Summary Open the notification push channel
// @Description Upgrade to a websocket carrying notification events; supports {"type":"ping"} keepalive
// @Tags notifications
// @Success 101 {string} string "Switching Protocols"
// @Failure 401 {string} string "Unauthorized"
// @Router /ws [get]
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed for user %d: %v", identity.UserID, err)
		return
	}

	connID := h.registry.Register(identity.UserID, conn)
	defer h.registry.Unregister(identity.UserID, connID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error for user %d: %v", identity.UserID, err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WS] Bad message from user %d: %v", identity.UserID, err)
			continue
		}

		if msg.Type == "ping" {
			h.registry.Send(identity.UserID, wsMessage{Type: "pong"})
		}
	}
}
