package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
)

const (
	MessageState = "state"
	MessageEvent = "event"

	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

var ErrNotConnected = errors.New("dashboard not connected")

// Message is the envelope pushed to dashboards.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Conn is the part of a websocket connection the manager writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Manager keeps track of connected dashboards and fans out state changes and
// events to them. A slow dashboard loses messages; it never blocks the sender.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*client // clientID -> client
	log         *zap.SugaredLogger
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[string]*client),
		log:         logging.For("ws"),
	}
}

// Register registers a dashboard connection, replacing any existing one with the same id.
func (m *Manager) Register(clientID string, conn Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}

	m.mu.Lock()
	old, ok := m.connections[clientID]
	m.connections[clientID] = c
	m.mu.Unlock()

	if ok {
		old.stop()
	}
	go m.writeLoop(clientID, c)
}

// Unregister removes a dashboard connection.
func (m *Manager) Unregister(clientID string) {
	m.mu.Lock()
	c, ok := m.connections[clientID]
	if ok {
		delete(m.connections, clientID)
	}
	m.mu.Unlock()
	if ok {
		c.stop()
	}
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// remove drops c only if it is still the registered client for clientID.
func (m *Manager) remove(clientID string, c *client) {
	m.mu.Lock()
	if m.connections[clientID] == c {
		delete(m.connections, clientID)
	}
	m.mu.Unlock()
	c.stop()
}

func (m *Manager) writeLoop(clientID string, c *client) {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				m.log.Debugw("Dashboard write failed", "client", clientID, "error", err)
				m.remove(clientID, c)
				return
			}
		}
	}
}

// SendTo queues a message for one dashboard.
func (m *Manager) SendTo(clientID string, payload []byte) error {
	m.mu.RLock()
	c, ok := m.connections[clientID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	select {
	case c.send <- payload:
	default:
		m.log.Warnw("Dashboard is slow, dropping message", "client", clientID)
	}
	return nil
}

// Broadcast queues payload for every dashboard.
func (m *Manager) Broadcast(payload []byte) {
	for _, id := range m.List() {
		_ = m.SendTo(id, payload)
	}
}

func (m *Manager) broadcastMessage(kind string, data any) {
	if m.Count() == 0 {
		return
	}
	payload, err := json.Marshal(Message{Type: kind, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		m.log.Errorw("Could not encode dashboard message", "type", kind, "error", err)
		return
	}
	m.Broadcast(payload)
}

// PublishEvent pushes a logged event to all dashboards.
func (m *Manager) PublishEvent(evt entities.DeviceEvent) {
	m.broadcastMessage(MessageEvent, evt)
}

// PublishState pushes a state change to all dashboards.
func (m *Manager) PublishState(change entities.StateChange) {
	m.broadcastMessage(MessageState, change)
}

// IsConnected returns whether a dashboard is currently connected.
func (m *Manager) IsConnected(clientID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.connections[clientID]
	return ok
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// List returns a copy of current connected client IDs.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	return ids
}

// Close disconnects every dashboard.
func (m *Manager) Close() {
	for _, id := range m.List() {
		m.Unregister(id)
	}
}
