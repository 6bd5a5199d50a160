package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns every observer connection and fans broadcasts out
// to them. Station-state and device-presence broadcasts travel on separate
// topics so presence chatter never delays score or timer updates; within a
// topic delivery order matches production order.
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	hooks    Hooks

	stateCh    chan []byte
	presenceCh chan []byte
}

// Connection represents one WebSocket observer/controller.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds WebSocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// Hooks let the service observe the connection lifecycle without the
// manager knowing about stations or devices.
type Hooks struct {
	// OnMessage receives every raw inbound frame.
	OnMessage func(connectionID string, data []byte)
	// OnDisconnect fires once when a connection goes away.
	OnDisconnect func(connectionID string)
	// InitialFrames supplies the frames sent to a freshly connected
	// observer, in order.
	InitialFrames func() [][]byte
}

// DefaultConnectionConfig returns the standard WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  32 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Scoreboards run on local venue networks; allow all origins.
			return true
		},
	}
}

// NewConnectionManager creates a manager. Start must be called before
// broadcasts are delivered.
func NewConnectionManager(config ConnectionConfig, hooks Hooks) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:     config,
		hooks:      hooks,
		stateCh:    make(chan []byte, 256),
		presenceCh: make(chan []byte, 256),
	}
}

// Start runs one pump per topic until the context ends.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	var wg sync.WaitGroup
	wg.Add(2)
	go cm.pump(ctx, &wg, cm.stateCh)
	go cm.pump(ctx, &wg, cm.presenceCh)
	wg.Wait()

	log.Info().Msg("connection manager shutting down")
}

func (cm *ConnectionManager) pump(ctx context.Context, wg *sync.WaitGroup, ch <-chan []byte) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-ch:
			cm.fanOut(frame)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket observer and
// immediately queues the current snapshots for it.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.register(connection)

	if cm.hooks.InitialFrames != nil {
		for _, frame := range cm.hooks.InitialFrames() {
			connection.Send <- frame
		}
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("observer connected")

	return connection, nil
}

func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = true
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn]
	if exists {
		delete(cm.connections, conn)
		close(conn.Send)
	}
	cm.mu.Unlock()

	if exists {
		log.Info().Str("connection_id", conn.ID).Msg("observer disconnected")
		if cm.hooks.OnDisconnect != nil {
			cm.hooks.OnDisconnect(conn.ID)
		}
	}
}

// ConnectionCount returns the number of live observers.
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

func (cm *ConnectionManager) enqueue(ch chan []byte, topic string, frame []byte) {
	select {
	case ch <- frame:
	default:
		log.Warn().Str("topic", topic).Msg("broadcast channel full, dropping frame")
	}
}

// fanOut delivers one frame to every observer. A slow or broken observer is
// dropped so it never blocks delivery to the rest.
func (cm *ConnectionManager) fanOut(frame []byte) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- frame:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("observer send buffer full, closing connection")
			cm.unregister(conn)
			conn.Conn.Close()
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected close")
			}
			break
		}
		if c.Manager.hooks.OnMessage != nil {
			c.Manager.hooks.OnMessage(c.ID, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
