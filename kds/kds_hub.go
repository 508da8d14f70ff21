// Package kds pushes POS events to connected staff and admin screens over
// websockets.
package kds

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/yeremiapane/pos-integrity/utils"
)

// Event types
const (
	EventOrderUpdate            = "order_update"
	EventTableUpdate            = "table_update"
	EventReconciliationFinished = "reconciliation_finished"
	EventManualReview           = "integrity_manual_review"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// adminOnly events are not sent to staff screens.
var adminOnly = map[string]bool{
	EventReconciliationFinished: true,
	EventManualReview:           true,
}

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type client struct {
	role     string
	tenantID uint       // 0: not scoped to a tenant
	mu       sync.Mutex // gorilla connections allow one concurrent writer
}

// Hub holds every connected screen and the role it authenticated with.
type Hub struct {
	clients map[*websocket.Conn]*client
	mutex   sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

// RegisterClient adds a connection with its role and tenant. A client with
// tenant 0 is not scoped and sees the events of every tenant.
func (h *Hub) RegisterClient(conn *websocket.Conn, role string, tenantID uint) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = &client{role: role, tenantID: tenantID}
}

// UnregisterClient drops and closes a connection.
func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mutex.Lock()
	delete(h.clients, conn)
	h.mutex.Unlock()
	conn.Close()
}

// ClientCount is the number of connected screens.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Publish broadcasts an event of one tenant. Clients scoped to another tenant
// do not receive it; an event with tenant 0 only reaches unscoped clients.
// It satisfies the notifier interfaces of the grouping manager and the
// services.
func (h *Hub) Publish(tenantID uint, event string, data interface{}) {
	h.broadcast(tenantID, Message{Event: event, Data: data})
}

func (h *Hub) broadcast(tenantID uint, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.Errorf("Error marshaling message: %v", err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	utils.InfoLogger.Debugf("Broadcasting %s to %d clients", msg.Event, len(h.clients))
	for conn, c := range h.clients {
		if adminOnly[msg.Event] && c.role != RoleAdmin {
			continue
		}
		if c.tenantID != 0 && c.tenantID != tenantID {
			continue
		}
		c.mu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			utils.InfoLogger.Warnf("Error sending %s to client with role %s: %v", msg.Event, c.role, err)
		}
	}
}
