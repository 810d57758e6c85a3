package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/runtime"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

// StateUpdate is the message pushed to WebSocket clients
type StateUpdate struct {
	Type      string                 `json:"type"` // "state", "pong"
	Timestamp time.Time              `json:"timestamp"`
	State     *models.ExecutionState `json:"state,omitempty"`
}

// WebSocketMessage represents incoming WebSocket messages
type WebSocketMessage struct {
	Type string `json:"type"` // "ping"
}

// wsClient owns one connection. All writes go through its send channel so a
// single goroutine writes to the socket.
type wsClient struct {
	conn *websocket.Conn
	send chan StateUpdate
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WebSocketManager streams engine state snapshots to WebSocket clients
type WebSocketManager struct {
	upgrader websocket.Upgrader
	engine   *runtime.Engine
	logger   logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]bool
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager(engine *runtime.Engine, logger logging.Logger) *WebSocketManager {
	return &WebSocketManager{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		engine:  engine,
		logger:  logger,
		clients: make(map[*wsClient]bool),
	}
}

// HandleWebSocket upgrades the connection, sends the current state and then
// every subsequent change until the client disconnects
func (wsm *WebSocketManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsm.logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan StateUpdate, sendBuffer),
		done: make(chan struct{}),
	}

	// Registering and queueing the current state under the write lock keeps any
	// concurrent Broadcast behind the initial snapshot
	wsm.mu.Lock()
	wsm.clients[client] = true
	if state := wsm.engine.State(); state != nil {
		client.send <- StateUpdate{Type: "state", Timestamp: time.Now(), State: state}
	}
	wsm.mu.Unlock()

	wsm.logger.Debug("websocket connection established", logging.F("remote", r.RemoteAddr))

	go wsm.writePump(client)
	wsm.readPump(client)
}

// readPump handles incoming messages until the connection fails
func (wsm *WebSocketManager) readPump(client *wsClient) {
	defer wsm.removeClient(client)

	client.conn.SetPongHandler(func(string) error {
		return nil
	})

	for {
		var msg WebSocketMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wsm.logger.Warn("websocket error", logging.Err(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			wsm.enqueue(client, StateUpdate{Type: "pong", Timestamp: time.Now()})
		default:
			wsm.logger.Debug("unknown websocket message type", logging.F("type", msg.Type))
		}
	}
}

// writePump is the only writer of the connection
func (wsm *WebSocketManager) writePump(client *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer wsm.removeClient(client)

	for {
		select {
		case update := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(update); err != nil {
				wsm.logger.Debug("failed to send websocket message", logging.Err(err))
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

// Broadcast queues a state snapshot for every client. Clients whose queue is
// full are disconnected.
func (wsm *WebSocketManager) Broadcast(state *models.ExecutionState) {
	update := StateUpdate{Type: "state", Timestamp: time.Now(), State: state}

	wsm.mu.RLock()
	var slow []*wsClient
	for c := range wsm.clients {
		if !wsm.offer(c, update) {
			slow = append(slow, c)
		}
	}
	wsm.mu.RUnlock()

	for _, c := range slow {
		wsm.logger.Warn("websocket client too slow, disconnecting")
		wsm.removeClient(c)
	}
}

func (wsm *WebSocketManager) enqueue(client *wsClient, update StateUpdate) {
	if !wsm.offer(client, update) {
		wsm.logger.Warn("websocket client too slow, disconnecting")
		wsm.removeClient(client)
	}
}

// offer queues update without blocking and reports false when the queue is full
func (wsm *WebSocketManager) offer(client *wsClient, update StateUpdate) bool {
	select {
	case client.send <- update:
		return true
	case <-client.done:
		return true
	default:
		return false
	}
}

// removeClient forgets and closes a connection
func (wsm *WebSocketManager) removeClient(client *wsClient) {
	wsm.mu.Lock()
	delete(wsm.clients, client)
	wsm.mu.Unlock()
	client.close()
}

// Close disconnects every client
func (wsm *WebSocketManager) Close() {
	wsm.mu.Lock()
	clients := wsm.clients
	wsm.clients = make(map[*wsClient]bool)
	wsm.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// GetConnectedClients returns the number of connected clients
func (wsm *WebSocketManager) GetConnectedClients() int {
	wsm.mu.RLock()
	defer wsm.mu.RUnlock()
	return len(wsm.clients)
}
