package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/models"
)

// Hub tracks connected clients by user and fans events out to them. One
// client per user; a reconnect replaces the previous connection. Clients
// attached to a match also live in that match's room for broadcasts.
type Hub struct {
	clients    map[string]*Client            // userID -> Client
	rooms      map[string]map[string]*Client // matchID -> userID -> Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			if old, exists := h.clients[client.userID]; exists {
				h.log.Info("replacing connection", zap.String("user_id", client.userID))
				old.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"),
					time.Now().Add(5*time.Second))
				old.conn.Close()
				h.dropLocked(old)
			}
			h.clients[client.userID] = client
			if client.matchID != "" {
				if _, ok := h.rooms[client.matchID]; !ok {
					h.rooms[client.matchID] = make(map[string]*Client)
				}
				h.rooms[client.matchID][client.userID] = client
			}
			h.mu.Unlock()
			h.log.Info("client connected",
				zap.String("user_id", client.userID),
				zap.String("match_id", client.matchID))

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.userID]; ok && cur == client {
				h.dropLocked(client)
				h.log.Info("client disconnected", zap.String("user_id", client.userID))
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) dropLocked(c *Client) {
	delete(h.clients, c.userID)
	if room, ok := h.rooms[c.matchID]; ok {
		delete(room, c.userID)
		if len(room) == 0 {
			delete(h.rooms, c.matchID)
		}
	}
	// Only Run calls this, under the lock and after the cur == c check, so
	// the channel cannot be closed twice. Closing wakes the writePump
	// immediately instead of leaving it to time out on the next ping.
	close(c.send)
}

// SendToUser delivers one event to one connected user. Undeliverable events
// are dropped; push is best effort.
func (h *Hub) SendToUser(userID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("event marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[userID]
	if !ok {
		h.log.Debug("no connection for user", zap.String("user_id", userID))
		return
	}
	select {
	case client.send <- data:
	default:
		h.log.Warn("send buffer full, dropping event", zap.String("user_id", userID))
	}
}

// BroadcastToMatch delivers one event to every client in a match room.
func (h *Hub) BroadcastToMatch(matchID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("event marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.rooms[matchID] {
		select {
		case client.send <- data:
		default:
			h.log.Warn("send buffer full, dropping event",
				zap.String("user_id", client.userID),
				zap.String("match_id", matchID))
		}
	}
}

func (h *Hub) broadcastAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// MatchFound tells a waiting user their match opened.
func (h *Hub) MatchFound(userID, matchID string) {
	h.SendToUser(userID, map[string]any{
		"type":     "match-found",
		"match_id": matchID,
	})
}

// MatchmakingFailed tells a user their pairing fell through; they may
// re-enqueue.
func (h *Hub) MatchmakingFailed(userID string) {
	h.SendToUser(userID, map[string]any{
		"type": "matchmaking-failed",
	})
}

// OpponentWagerPlaced informs the human counterpart of simulated activity.
func (h *Hub) OpponentWagerPlaced(userID, matchID string, stake float64, wagerType string, legCount int) {
	h.SendToUser(userID, map[string]any{
		"type":      "opp-parlay-placed",
		"match_id":  matchID,
		"stake":     stake,
		"wager":     wagerType,
		"leg_count": legCount,
	})
}

// MessageReceived fans an admitted chat message to the match room.
func (h *Hub) MessageReceived(msg *models.ChatMessage) {
	h.BroadcastToMatch(msg.MatchID, map[string]any{
		"type":    "message-received",
		"message": msg,
	})
}

// RunInvalidations forwards cache invalidation keys to every connected
// client until the channel closes or ctx ends.
func (h *Hub) RunInvalidations(ctx context.Context, keys <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case key, ok := <-keys:
			if !ok {
				return nil
			}
			data, err := json.Marshal(map[string]any{
				"type": "data-invalidated",
				"key":  key,
			})
			if err != nil {
				continue
			}
			h.broadcastAll(data)
		}
	}
}
