package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/session"
	"github.com/mcdev12/guessmoji/go/internal/store"
	"github.com/mcdev12/guessmoji/go/internal/turnclock"
)

// Frame types sent to clients.
const (
	FrameRoom        = "room"
	FrameRoomDeleted = "room_deleted"
	FrameChat        = "chat"
	FrameResult      = "result"
	FrameError       = "error"
)

// Frame types accepted from clients.
const (
	FrameGuess = "guess"
	FrameSend  = "chat"
)

// ServerFrame is one websocket message to a client.
type ServerFrame struct {
	Type       string               `json:"type"`
	Room       *RoomState           `json:"room,omitempty"`
	Messages   []models.ChatMessage `json:"messages,omitempty"`
	Transition *TransitionResponse  `json:"transition,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// ClientFrame is one websocket message from a client.
type ClientFrame struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	Text   string `json:"text,omitempty"`
}

// RoomFeeds streams a room document.
type RoomFeeds interface {
	SubscribeRoom(ctx context.Context, code string) (*store.Feed[*models.Room], error)
}

// ChatFeeds streams a room's chat log.
type ChatFeeds interface {
	Subscribe(ctx context.Context, code string) (*store.Feed[[]models.ChatMessage], error)
}

// FrameHandler executes a client frame and returns the reply, if any.
type FrameHandler func(ctx context.Context, id session.Context, code string, frame ClientFrame) (*ServerFrame, error)

// TimeoutHandler times out turn in the room with the given code.
type TimeoutHandler func(ctx context.Context, code string, turn models.Turn) error

// ConnectionManager manages websocket connections grouped by room code.
// Every room with at least one connection has a hub that follows the room
// and chat documents and fans them out.
type ConnectionManager struct {
	hubs map[string]*roomHub
	mu   sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	roomFeeds RoomFeeds
	chatFeeds ChatFeeds
	clock     clockwork.Clock
	onFrame   FrameHandler
	onTimeout TimeoutHandler

	ctx    context.Context
	cancel context.CancelFunc
}

type roomHub struct {
	code   string
	conns  map[*Connection]bool
	cancel context.CancelFunc

	// latest state, replayed to connections that join later
	room     *models.Room
	roomSeen bool
	chat     []models.ChatMessage
	chatSeen bool
}

// Connection represents a websocket connection of one player to one room.
type Connection struct {
	ID       string
	Player   session.Context
	RoomCode string
	IsHost   bool
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	// rooms feeds the turn watcher of host connections
	rooms chan *models.Room
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	TurnTick        time.Duration
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		TurnTick:        turnclock.DefaultTick,
		CheckOrigin:     OriginChecker(nil),
	}
}

// ConnectionDeps are the services a ConnectionManager relays to.
type ConnectionDeps struct {
	Rooms     RoomFeeds
	Chat      ChatFeeds
	Clock     clockwork.Clock
	OnFrame   FrameHandler
	OnTimeout TimeoutHandler
}

// NewConnectionManager creates a new websocket connection manager
func NewConnectionManager(config ConnectionConfig, deps ConnectionDeps) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultConnectionConfig().SendBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		hubs: make(map[string]*roomHub),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		roomFeeds: deps.Rooms,
		chatFeeds: deps.Chat,
		clock:     deps.Clock,
		onFrame:   deps.OnFrame,
		onTimeout: deps.OnTimeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start blocks until ctx ends, then closes every connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	<-ctx.Done()
	log.Info().Msg("connection manager shutting down")
	cm.Shutdown()
}

// Shutdown stops every hub and closes every connection.
func (cm *ConnectionManager) Shutdown() {
	cm.cancel()

	cm.mu.RLock()
	var conns []*Connection
	for _, hub := range cm.hubs {
		for c := range hub.conns {
			conns = append(conns, c)
		}
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		cm.unregisterConnection(c)
		c.Conn.Close()
	}
}

// UpgradeConnection upgrades an HTTP connection to websocket and attaches it
// to the room's hub.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, player session.Context, code string, isHost bool) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(cm.ctx)
	connection := &Connection{
		ID:          uuid.NewString(),
		Player:      player,
		RoomCode:    code,
		IsHost:      isHost,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
	if isHost && cm.onTimeout != nil {
		connection.rooms = make(chan *models.Room, 1)
		watcher := &turnclock.Watcher{
			Clock:  cm.clock,
			Tick:   cm.config.TurnTick,
			IsHost: true,
			Timeout: func(ctx context.Context, turn models.Turn) error {
				return cm.onTimeout(ctx, code, turn)
			},
		}
		go watcher.Run(ctx, connection.rooms)
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", player.PlayerID).
		Str("room_code", code).
		Bool("host", isHost).
		Msg("websocket connection established")

	return nil
}

// registerConnection adds a connection to its room hub, starting the hub if
// it is the first one, and replays the latest known state to it.
func (cm *ConnectionManager) registerConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	hub, ok := cm.hubs[c.RoomCode]
	if !ok {
		ctx, cancel := context.WithCancel(cm.ctx)
		hub = &roomHub{
			code:   c.RoomCode,
			conns:  make(map[*Connection]bool),
			cancel: cancel,
		}
		cm.hubs[c.RoomCode] = hub
		go cm.runHub(ctx, hub)
	}
	hub.conns[c] = true

	now := cm.clock.Now()
	if hub.roomSeen {
		c.Send <- roomFrame(hub.room, c.Player.PlayerID, now)
		if c.rooms != nil {
			turnclock.Offer(c.rooms, hub.room)
		}
	}
	if hub.chatSeen {
		c.Send <- chatFrame(hub.chat)
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("room_code", c.RoomCode).
		Int("total_connections", len(hub.conns)).
		Msg("connection registered")
}

// unregisterConnection removes a connection, stopping the hub when the room
// has no connections left.
func (cm *ConnectionManager) unregisterConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	hub, ok := cm.hubs[c.RoomCode]
	if !ok || !hub.conns[c] {
		return
	}
	delete(hub.conns, c)
	close(c.Send)
	c.cancel()

	if len(hub.conns) == 0 {
		hub.cancel()
		delete(cm.hubs, c.RoomCode)
	}

	log.Info().
		Str("connection_id", c.ID).
		Str("player_id", c.Player.PlayerID).
		Str("room_code", c.RoomCode).
		Msg("connection unregistered")
}

// ConnectionCount returns the number of open connections to a room.
func (cm *ConnectionManager) ConnectionCount(code string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if hub, ok := cm.hubs[code]; ok {
		return len(hub.conns)
	}
	return 0
}

func (cm *ConnectionManager) runHub(ctx context.Context, hub *roomHub) {
	roomFeed, err := cm.roomFeeds.SubscribeRoom(ctx, hub.code)
	if err != nil {
		log.Error().Err(err).Str("room_code", hub.code).Msg("failed to subscribe to room")
		cm.dropHub(hub)
		return
	}
	defer roomFeed.Close()

	chatFeed, err := cm.chatFeeds.Subscribe(ctx, hub.code)
	if err != nil {
		log.Error().Err(err).Str("room_code", hub.code).Msg("failed to subscribe to chat")
		cm.dropHub(hub)
		return
	}
	defer chatFeed.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case room, ok := <-roomFeed.Updates():
			if !ok {
				if ctx.Err() == nil {
					log.Error().Err(roomFeed.Err()).Str("room_code", hub.code).Msg("room feed ended")
					cm.dropHub(hub)
				}
				return
			}
			cm.broadcastRoom(hub, room)
		case messages, ok := <-chatFeed.Updates():
			if !ok {
				if ctx.Err() == nil {
					log.Error().Err(chatFeed.Err()).Str("room_code", hub.code).Msg("chat feed ended")
					cm.dropHub(hub)
				}
				return
			}
			cm.broadcastChat(hub, messages)
		}
	}
}

// dropHub closes every connection of a hub whose feeds failed. Clients
// reconnect to get a fresh hub.
func (cm *ConnectionManager) dropHub(hub *roomHub) {
	for _, c := range cm.targets(hub) {
		cm.unregisterConnection(c)
		c.Conn.Close()
	}
}

func (cm *ConnectionManager) targets(hub *roomHub) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	conns := make([]*Connection, 0, len(hub.conns))
	for c := range hub.conns {
		conns = append(conns, c)
	}
	return conns
}

func (cm *ConnectionManager) broadcastRoom(hub *roomHub, room *models.Room) {
	cm.mu.Lock()
	hub.room, hub.roomSeen = room, true
	cm.mu.Unlock()

	now := cm.clock.Now()
	targets := cm.targets(hub)
	for _, c := range targets {
		cm.deliver(hub, c, roomFrame(room, c.Player.PlayerID, now))
		if c.rooms != nil {
			turnclock.Offer(c.rooms, room)
		}
	}

	log.Debug().
		Str("room_code", hub.code).
		Bool("deleted", room == nil).
		Int("connections", len(targets)).
		Msg("room broadcasted")
}

func (cm *ConnectionManager) broadcastChat(hub *roomHub, messages []models.ChatMessage) {
	cm.mu.Lock()
	hub.chat, hub.chatSeen = messages, true
	cm.mu.Unlock()

	data := chatFrame(messages)
	for _, c := range cm.targets(hub) {
		cm.deliver(hub, c, data)
	}
}

// deliver queues data for c unless it has been unregistered. A connection
// whose buffer is full is closed.
func (cm *ConnectionManager) deliver(hub *roomHub, c *Connection, data []byte) {
	cm.mu.RLock()
	slow := false
	if hub.conns[c] {
		select {
		case c.Send <- data:
		default:
			slow = true
		}
	}
	cm.mu.RUnlock()

	if slow {
		log.Warn().
			Str("connection_id", c.ID).
			Str("player_id", c.Player.PlayerID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(c)
		c.Conn.Close()
	}
}

// reply sends a frame to one connection.
func (c *Connection) reply(frame ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame")
		return
	}
	cm := c.Manager
	cm.mu.RLock()
	hub := cm.hubs[c.RoomCode]
	cm.mu.RUnlock()
	if hub != nil {
		cm.deliver(hub, c, data)
	}
}

func roomFrame(room *models.Room, viewer string, now time.Time) []byte {
	frame := ServerFrame{Type: FrameRoomDeleted}
	if room != nil {
		state := NewRoomState(room, viewer, now)
		frame = ServerFrame{Type: FrameRoom, Room: &state}
	}
	return mustMarshal(frame)
}

func chatFrame(messages []models.ChatMessage) []byte {
	return mustMarshal(ServerFrame{Type: FrameChat, Messages: messages})
}

func mustMarshal(frame ServerFrame) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		// frames hold only strings, numbers and maps of them
		panic(fmt.Sprintf("failed to marshal %s frame: %v", frame.Type, err))
	}
	return data
}

// writePump handles sending messages to the websocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the websocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage runs a guess or chat frame and replies with its result.
func (c *Connection) handleClientMessage(message []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.reply(ServerFrame{Type: FrameError, Error: errBadRequest.Error()})
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("player_id", c.Player.PlayerID).
		Str("frame_type", frame.Type).
		Msg("received client frame")

	if c.Manager.onFrame == nil {
		return
	}
	reply, err := c.Manager.onFrame(c.ctx, c.Player, c.RoomCode, frame)
	if err != nil {
		c.reply(ServerFrame{Type: FrameError, Error: err.Error()})
		return
	}
	if reply != nil {
		c.reply(*reply)
	}
}
