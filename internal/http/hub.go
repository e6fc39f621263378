// README: WebSocket hub pushing reload notifications to UI clients. Driver
// presence feeds the polling fallback's visibility flag.
package http

import (
	nethttp "net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"primetransportes/internal/modules/corrida"
)

type hubClient struct {
	conn *websocket.Conn
	role corrida.Role
}

type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	// onDriverPresence fires when the driver-client count crosses zero in
	// either direction. The sync engine reads it as tab visibility for the
	// polling floor.
	onDriverPresence func(bool)

	mu      sync.RWMutex
	clients map[string]hubClient
	drivers int
}

func NewHub(onDriverPresence func(bool), log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader:         websocket.Upgrader{CheckOrigin: func(*nethttp.Request) bool { return true }},
		log:              log,
		onDriverPresence: onDriverPresence,
		clients:          make(map[string]hubClient),
	}
}

// Handle upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	role := roleFrom(c)
	h.register(id, hubClient{conn: conn, role: role})
	defer h.unregister(id)

	// Clients only listen; reads exist to observe disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends a JSON message to every connected client. Reloads fan in
// from several goroutines and gorilla allows one concurrent writer per
// connection, so writes serialize under the exclusive lock. Send failures
// drop silently; the client will reconnect or the read loop reaps it.
func (h *Hub) Broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cl := range h.clients {
		_ = cl.conn.WriteJSON(msg)
	}
}

func (h *Hub) register(id string, cl hubClient) {
	h.mu.Lock()
	h.clients[id] = cl
	first := false
	if cl.role == corrida.RoleMotorista {
		h.drivers++
		first = h.drivers == 1
	}
	h.mu.Unlock()

	h.log.Info("ws client connected", zap.String("role", string(cl.role)))
	if first && h.onDriverPresence != nil {
		h.onDriverPresence(true)
	}
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	cl, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		cl.conn.Close()
	}
	last := false
	if ok && cl.role == corrida.RoleMotorista {
		h.drivers--
		last = h.drivers == 0
	}
	h.mu.Unlock()

	if last && h.onDriverPresence != nil {
		h.onDriverPresence(false)
	}
}
