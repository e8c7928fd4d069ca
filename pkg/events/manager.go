package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ConnectionManager manages WebSocket connections streaming one simulation
// each. Each process has one ConnectionManager instance.
type ConnectionManager struct {
	bus          *Bus
	writeTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*Connection
}

// Connection is a single WebSocket client attached to a simulation.
type Connection struct {
	ID     string
	SimID  string
	Conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnectionManager creates a manager fanning out from the given bus.
func NewConnectionManager(bus *Bus, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		bus:          bus,
		writeTimeout: writeTimeout,
		connections:  make(map[string]*Connection),
	}
}

// HandleConnection runs the lifecycle of one upgraded WebSocket connection:
// send the initial state snapshot, stream bus events, answer pings. Blocks
// until the connection closes or the subscriber is evicted.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, simID string, initialState []byte) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{ID: connID, SimID: simID, Conn: conn, ctx: ctx, cancel: cancel}
	m.register(c)
	defer m.unregister(c)

	if initialState != nil {
		if err := m.sendRaw(c, initialState); err != nil {
			slog.Warn("Failed to send initial state", "connection_id", connID, "error", err)
			return
		}
	}

	sub := m.bus.Subscribe(simID)
	defer m.bus.Unsubscribe(sub)

	// Write pump: drain the subscriber until eviction or connection close.
	go func() {
		for ev := range sub.Events() {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := m.sendRaw(c, data); err != nil {
				slog.Warn("Failed to send to WebSocket client",
					"connection_id", connID, "error", err)
				cancel()
				return
			}
		}
		// Channel closed: evicted or unsubscribed.
		cancel()
	}()

	// Read loop: the only inbound protocol is ping/pong keepalive.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if string(data) == "ping" {
			if err := m.sendText(c, "pong"); err != nil {
				return
			}
		}
	}
}

// ActiveConnections returns the count of open WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregister(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()
	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendText(c *Connection, s string) error {
	return m.sendRaw(c, []byte(s))
}

// sendRaw writes bytes to a connection under the write timeout.
func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
