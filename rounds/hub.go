package rounds

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Event types pushed to result watchers.
const (
	EventResultsUpdated = "RESULTS_UPDATED"
	EventResultsReset   = "RESULTS_RESET"
	EventResultsFinal   = "RESULTS_FINAL"
)

// ResultsEvent is the wire message broadcast to a game room after the
// authority applies a batch.
type ResultsEvent struct {
	Type        string `json:"type"`
	GameID      string `json:"game_id"`
	HeadVersion int64  `json:"head_version"`
}

// Client is one WebSocket subscriber watching a game's results.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	gameID string

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, gameID string) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, 16), gameID: gameID}
}

// Hub fans result events out to per-game rooms.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[client.gameID]; !ok {
				h.rooms[client.gameID] = make(map[*Client]bool)
			}
			h.rooms[client.gameID][client] = true
			h.logger.Debug("results watcher registered",
				slog.String("game_id", client.gameID),
				slog.Int("watchers", len(h.rooms[client.gameID])))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.gameID]; ok {
				if _, okClient := room[client]; okClient {
					client.mu.Lock()
					if !client.closed {
						close(client.send)
						client.closed = true
					}
					client.mu.Unlock()
					delete(room, client)
					if len(room) == 0 {
						delete(h.rooms, client.gameID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToGame sends an event to every watcher of the game. Slow clients
// are skipped rather than blocking the hub.
func (h *Hub) BroadcastToGame(gameID string, event ResultsEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[gameID]
	if !ok {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal results event",
			slog.String("game_id", gameID), slog.Any("error", err))
		return
	}

	for client := range room {
		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("dropping results event for slow watcher",
				slog.String("game_id", gameID))
		}
		client.mu.Unlock()
	}
}

// ReadPump drains (and ignores) inbound frames; the results stream is
// one-way. It keeps the pong deadline fresh and unregisters on close.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
