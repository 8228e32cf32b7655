package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bastago/basta/internal/auth"
	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/metrics"
	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Hub maintains the set of active clients and routes published events to
// the clients subscribed to each channel. It implements
// services.Broadcaster.
type Hub struct {
	log      logger.Logger
	auth     *auth.Auth
	sessions *services.SessionService
	rooms    *services.RoomService
	matching *services.MatchmakingService

	mutex    sync.RWMutex
	clients  map[*Client]bool
	channels map[string]map[*Client]bool
}

// Client is a middleman between one websocket connection and the hub
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan models.WSMessage
	identity *auth.Identity

	mu     sync.Mutex
	subs   map[string]bool
	closed bool // set by drop; send is closed once this is true
	roomID string // room the client joined over this connection
	gameID string
}

// trySend queues a message without blocking. It holds c.mu across the send
// so drop cannot close the channel mid-send. Returns false when the client
// is gone or its buffer is full.
func (c *Client) trySend(msg models.WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// New creates a new Hub instance. The hub is the Broadcaster the services
// are built on, so the services it dispatches to arrive later via Bind.
func New(log logger.Logger, a *auth.Auth) *Hub {
	return &Hub{
		log:      log,
		auth:     a,
		clients:  make(map[*Client]bool),
		channels: make(map[string]map[*Client]bool),
	}
}

// Bind wires the action dispatch targets. Must be called before ServeWs.
func (h *Hub) Bind(sessions *services.SessionService, rooms *services.RoomService, matching *services.MatchmakingService) {
	h.sessions = sessions
	h.rooms = rooms
	h.matching = matching
}

// Publish implements services.Broadcaster: deliver an event to every
// client subscribed to the channel. Slow clients are dropped rather than
// allowed to stall the rest.
func (h *Hub) Publish(channel, event string, payload interface{}) {
	msg := models.WSMessage{Type: event, Payload: payload}

	h.mutex.RLock()
	subs := make([]*Client, 0, len(h.channels[channel]))
	for c := range h.channels[channel] {
		subs = append(subs, c)
	}
	h.mutex.RUnlock()

	for _, c := range subs {
		if !c.trySend(msg) {
			go h.drop(c)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mutex.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mutex.Unlock()

	metrics.ConnectedClients.Inc()
	h.subscribe(c, services.PlayerChannel(c.identity.PlayerID))
	h.log.Debug("Client connected", "player_id", c.identity.PlayerID, "total_clients", total)
}

func (h *Hub) drop(c *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, c)
	c.mu.Lock()
	for ch := range c.subs {
		if set, ok := h.channels[ch]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.channels, ch)
			}
		}
	}
	c.closed = true
	roomID := c.roomID
	c.mu.Unlock()
	total := len(h.clients)
	h.mutex.Unlock()

	close(c.send)
	metrics.ConnectedClients.Dec()
	h.log.Debug("Client disconnected", "player_id", c.identity.PlayerID, "total_clients", total)

	// The connection is the player's presence: dropping it leaves the room
	h.matching.Leave(c.identity.PlayerID)
	if roomID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.rooms.LeaveRoom(ctx, roomID, c.identity.PlayerID); err != nil {
			h.log.Debug("Leave on disconnect", "room_id", roomID, "error", err)
		}
	}
}

func (h *Hub) subscribe(c *Client, channel string) {
	h.mutex.Lock()
	set, ok := h.channels[channel]
	if !ok {
		set = make(map[*Client]bool)
		h.channels[channel] = set
	}
	set[c] = true
	h.mutex.Unlock()

	c.mu.Lock()
	c.subs[channel] = true
	c.mu.Unlock()
}

func (h *Hub) unsubscribe(c *Client, channel string) {
	h.mutex.Lock()
	if set, ok := h.channels[channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.channels, channel)
		}
	}
	h.mutex.Unlock()

	c.mu.Lock()
	delete(c.subs, channel)
	c.mu.Unlock()
}

// inbound is the envelope for client actions
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinRoomAction struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password"`
}

type readyAction struct {
	Ready bool `json:"ready"`
}

type categoryAction struct {
	Category string `json:"category"`
}

type letterAction struct {
	Letter string `json:"letter"`
}

type answersAction struct {
	Answers []models.CategoryAnswer `json:"answers"`
}

type quickplayAction struct {
	Language string `json:"language"`
}

// handle dispatches one inbound client action. Errors go back to the
// sender only; successful actions are observed through the broadcasts the
// services publish.
func (c *Client) handle(ctx context.Context, msg inbound) {
	h := c.hub
	playerID := c.identity.PlayerID

	var err error
	switch msg.Type {
	case "join-room":
		var a joinRoomAction
		if err = json.Unmarshal(msg.Payload, &a); err != nil {
			break
		}
		var room *models.Room
		room, err = h.rooms.JoinRoom(ctx, a.RoomID, playerID, c.identity.Username, a.Password)
		if err == nil {
			c.bindRoom(room)
			c.reply("room-joined", room)
		}

	case "leave-room":
		roomID := c.boundRoom()
		if roomID == "" {
			break
		}
		err = h.rooms.LeaveRoom(ctx, roomID, playerID)
		c.unbindRoom()

	case "set-ready":
		var a readyAction
		if err = json.Unmarshal(msg.Payload, &a); err != nil {
			break
		}
		err = h.rooms.SetReady(ctx, c.boundRoom(), playerID, a.Ready)

	case "start-game":
		var game *models.GameSession
		game, err = h.rooms.StartGame(ctx, c.boundRoom(), playerID)
		if err == nil {
			c.bindGame(game.ID)
		}

	case "select-category":
		var a categoryAction
		if err = json.Unmarshal(msg.Payload, &a); err != nil {
			break
		}
		err = h.sessions.SelectCategory(ctx, c.boundGame(), playerID, a.Category)

	case "confirm-categories":
		err = h.sessions.ConfirmCategories(ctx, c.boundGame(), playerID)

	case "select-letter":
		var a letterAction
		if err = json.Unmarshal(msg.Payload, &a); err != nil {
			break
		}
		err = h.sessions.SelectLetter(ctx, c.boundGame(), playerID, a.Letter)

	case "submit-answers":
		var a answersAction
		if err = json.Unmarshal(msg.Payload, &a); err != nil {
			break
		}
		err = h.sessions.SubmitAnswers(ctx, c.boundGame(), playerID, a.Answers)

	case "stop":
		var a answersAction
		if err = json.Unmarshal(msg.Payload, &a); err != nil {
			break
		}
		err = h.sessions.Stop(ctx, c.boundGame(), playerID, a.Answers)

	case "next-round-ready":
		err = h.sessions.NextRoundReady(ctx, c.boundGame(), playerID)

	case "rematch-ready":
		err = h.sessions.RematchReady(ctx, c.boundGame(), playerID)

	case "quickplay":
		var a quickplayAction
		if err = json.Unmarshal(msg.Payload, &a); err != nil {
			break
		}
		var res *services.QuickplayResult
		res, err = h.matching.Quickplay(ctx, playerID, c.identity.Username, a.Language)
		if err == nil {
			if res.Room != nil {
				c.bindRoom(res.Room)
			}
			c.reply("quickplay-result", res)
		}

	case "quickplay-cancel":
		h.matching.Leave(playerID)

	default:
		h.log.Debug("Unknown message type", "type", msg.Type, "player_id", playerID)
		return
	}

	if err != nil {
		c.reply("error", map[string]interface{}{
			"action": msg.Type,
			"error":  err.Error(),
		})
	}
}

// bindRoom subscribes the client to the room's channel and, when a game
// is already running there, the game's channel too.
func (c *Client) bindRoom(room *models.Room) {
	c.mu.Lock()
	c.roomID = room.ID
	if room.GameID != nil {
		c.gameID = *room.GameID
	}
	gameID := c.gameID
	c.mu.Unlock()

	c.hub.subscribe(c, services.RoomChannel(room.ID))
	if gameID != "" {
		c.hub.subscribe(c, services.GameChannel(gameID))
	}
}

func (c *Client) bindGame(gameID string) {
	c.mu.Lock()
	c.gameID = gameID
	c.mu.Unlock()
	c.hub.subscribe(c, services.GameChannel(gameID))
}

func (c *Client) unbindRoom() {
	c.mu.Lock()
	roomID, gameID := c.roomID, c.gameID
	c.roomID, c.gameID = "", ""
	c.mu.Unlock()

	if roomID != "" {
		c.hub.unsubscribe(c, services.RoomChannel(roomID))
	}
	if gameID != "" {
		c.hub.unsubscribe(c, services.GameChannel(gameID))
	}
}

func (c *Client) boundRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) boundGame() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID
}

func (c *Client) reply(event string, payload interface{}) {
	c.trySend(models.WSMessage{Type: event, Payload: payload})
}

// readPump pumps messages from the websocket connection into the dispatcher
func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 << 10)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket error", "error", err)
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.reply("error", map[string]interface{}{"error": "malformed message"})
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c.handle(ctx, msg)
		cancel()
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			msgBytes, _ := json.Marshal(message)
			w.Write(msgBytes)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs authenticates and upgrades a websocket request
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.FromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade error", "error", err)
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan models.WSMessage, 256),
		identity: identity,
		subs:     make(map[string]bool),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
}
