package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/chat"
	"github.com/parlayclash/backend/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxPayload = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // fronted by the gateway, which owns origin policy
	},
}

// ChatService admits, persists and returns chat messages.
type ChatService interface {
	Send(ctx context.Context, participantID, matchID, content string) (*models.ChatMessage, error)
}

// Client is one user's live connection.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	userID        string
	matchID       string
	participantID string
	chat          ChatService
	send          chan []byte
	log           *zap.Logger
}

// Serve upgrades the request and starts the read/write pumps. The caller has
// already authenticated userID and, when the user is in a match, resolved
// their participantID.
func Serve(hub *Hub, chatSvc ChatService, w http.ResponseWriter, r *http.Request, userID, matchID, participantID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:           hub,
		conn:          conn,
		userID:        userID,
		matchID:       matchID,
		participantID: participantID,
		chat:          chatSvc,
		send:          make(chan []byte, 256),
		log:           hub.log.With(zap.String("user_id", userID)),
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxPayload)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("unexpected close", zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg inbound) {
	switch msg.Type {
	case "chat-message":
		var data struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid chat payload", 0)
			return
		}
		c.handleChat(data.Content)
	default:
		c.sendError("unknown message type", 0)
	}
}

func (c *Client) handleChat(content string) {
	if c.matchID == "" || c.participantID == "" {
		c.sendError("not in a match", 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := c.chat.Send(ctx, c.participantID, c.matchID, content)
	if err != nil {
		var throttled *chat.ErrThrottled
		if errors.As(err, &throttled) {
			c.sendError(err.Error(), throttled.RetryAfter.Milliseconds())
			return
		}
		c.sendError(err.Error(), 0)
		return
	}
	c.hub.MessageReceived(msg)
}

func (c *Client) sendError(reason string, retryAfterMs int64) {
	payload := map[string]any{
		"type":  "message-error",
		"error": reason,
	}
	if retryAfterMs > 0 {
		payload["retry_after_ms"] = retryAfterMs
	}
	data, _ := json.Marshal(payload)
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
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
