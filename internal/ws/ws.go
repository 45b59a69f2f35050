package ws

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shayarigram/shayarigram/pkg/i18n"
)

var __ = i18n.Translate

// Subscription scopes. A client holds at most one subscription per scope;
// subscribing again replaces the previous target instead of stacking a
// second listener.
const (
	ScopeChats         = "chats"         // the conversation list
	ScopeChat          = "chat"          // one open conversation (target = chat id)
	ScopeNotifications = "notifications" // the notification bell
)

// Event is the wire format for everything pushed to clients.
type Event struct {
	Type    string      `json:"type"` // "message", "chat_update", "badge", "typing", "profile"
	ChatID  string      `json:"chat_id,omitempty"`
	From    string      `json:"from,omitempty"`
	Typing  bool        `json:"typing,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Badge carries the two unread booleans shown on the bottom bar.
type Badge struct {
	UnreadMessages      bool `json:"unread_messages"`
	UnreadNotifications bool `json:"unread_notifications"`
}

type delivery struct {
	to    string
	scope string // "" delivers unconditionally
	event *Event
}

type Hub struct {
	clients    map[string]*Client
	deliveries chan delivery
	register   chan *Client
	unregister chan *Client
	db         *sql.DB
	mu         sync.RWMutex

	typingMu sync.Mutex
	typing   map[string]map[string]bool // chat id -> username -> typing
}

type Client struct {
	username string
	conn     *websocket.Conn
	hub      *Hub
	send     chan *Event

	subMu sync.RWMutex
	subs  map[string]string // scope -> target
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin
		return true
	},
}

func NewHub(db *sql.DB) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		deliveries: make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		db:         db,
		typing:     make(map[string]map[string]bool),
	}
}

// IsUserOnline checks if a user is currently connected
func (h *Hub) IsUserOnline(username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[username]
	return ok
}

// NotifyMessage pushes a new message to every participant watching the
// conversation it belongs to.
func (h *Hub) NotifyMessage(chatID string, participants []string, message interface{}) {
	for _, username := range participants {
		h.deliveries <- delivery{
			to:    username,
			scope: ScopeChat,
			event: &Event{Type: "message", ChatID: chatID, Payload: message},
		}
	}
}

// NotifyChatUpdate pushes a conversation summary change to participants
// watching their chat list.
func (h *Hub) NotifyChatUpdate(chatID string, participants []string, summary interface{}) {
	for _, username := range participants {
		h.deliveries <- delivery{
			to:    username,
			scope: ScopeChats,
			event: &Event{Type: "chat_update", ChatID: chatID, Payload: summary},
		}
	}
}

// NotifyBadge pushes the unread booleans. Unconditional: the badge is
// visible on every screen.
func (h *Hub) NotifyBadge(username string, badge Badge) {
	h.deliveries <- delivery{
		to:    username,
		event: &Event{Type: "badge", Payload: badge},
	}
}

// NotifyProfile pushes a profile change (photo, privacy, block lists) to the
// owner's own clients so all their tabs stay in sync.
func (h *Hub) NotifyProfile(username string, payload interface{}) {
	h.deliveries <- delivery{
		to:    username,
		event: &Event{Type: "profile", Payload: payload},
	}
}

// Typing returns who is currently typing in a conversation. The flags live
// only in the hub; they never reach the database and die with the connection.
func (h *Hub) Typing(chatID string) []string {
	h.typingMu.Lock()
	defer h.typingMu.Unlock()
	var users []string
	for username := range h.typing[chatID] {
		users = append(users, username)
	}
	return users
}

func (h *Hub) setTyping(chatID, username string, typing bool) {
	h.typingMu.Lock()
	defer h.typingMu.Unlock()
	if typing {
		if h.typing[chatID] == nil {
			h.typing[chatID] = make(map[string]bool)
		}
		h.typing[chatID][username] = true
		return
	}
	delete(h.typing[chatID], username)
	if len(h.typing[chatID]) == 0 {
		delete(h.typing, chatID)
	}
}

func (h *Hub) clearTyping(username string) {
	h.typingMu.Lock()
	defer h.typingMu.Unlock()
	for chatID, users := range h.typing {
		delete(users, username)
		if len(users) == 0 {
			delete(h.typing, chatID)
		}
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.username]; ok {
				// One connection per user: a new session replaces the old
				// one and inherits none of its subscriptions.
				close(old.send)
			}
			h.clients[client.username] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.setOnline(client.username, true)
			log.Printf("User %s connected (total: %d)", client.username, total)

		case client := <-h.unregister:
			h.mu.Lock()
			current := false
			if registered, ok := h.clients[client.username]; ok && registered == client {
				delete(h.clients, client.username)
				close(client.send)
				current = true
			}
			total := len(h.clients)
			h.mu.Unlock()
			if current {
				h.clearTyping(client.username)
				h.setOnline(client.username, false)
				log.Printf("User %s disconnected (total: %d)", client.username, total)
			}

		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	client, ok := h.clients[d.to]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if d.scope != "" && !client.watches(d.scope, d.event.ChatID) {
		return
	}
	select {
	case client.send <- d.event:
	default:
		log.Printf("Event channel full for user %s", d.to)
	}
}

func (h *Hub) setOnline(username string, online bool) {
	var err error
	if online {
		_, err = h.db.Exec("UPDATE users SET is_online = 1 WHERE username = ?", username)
	} else {
		_, err = h.db.Exec(
			"UPDATE users SET is_online = 0, last_seen = CURRENT_TIMESTAMP WHERE username = ?",
			username,
		)
	}
	if err != nil {
		log.Printf("Failed to update presence for %s: %v", username, err)
	}
}

func (h *Hub) HandleWebSocket(c *gin.Context) {
	username, exists := c.Get("username")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Upgrade error: %v", err)
		return
	}

	client := &Client{
		username: username.(string),
		conn:     conn,
		hub:      h,
		send:     make(chan *Event, 256),
		subs:     make(map[string]string),
	}

	h.register <- client

	go client.readPump()
	go client.writePump()
}

// watches reports whether the client's subscription for the scope covers the
// given target. The chat-list and notification scopes have no target.
func (c *Client) watches(scope, target string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	current, ok := c.subs[scope]
	if !ok {
		return false
	}
	return scope != ScopeChat || current == target
}

func (c *Client) subscribe(scope, target string) {
	c.subMu.Lock()
	c.subs[scope] = target
	c.subMu.Unlock()
}

func (c *Client) unsubscribe(scope string) {
	c.subMu.Lock()
	delete(c.subs, scope)
	c.subMu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var event map[string]interface{}
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		eventType, ok := event["type"].(string)
		if !ok {
			continue
		}

		switch eventType {
		case "subscribe":
			c.handleSubscribe(event)
		case "unsubscribe":
			c.handleUnsubscribe(event)
		case "typing":
			c.handleTyping(event)
		}
	}
}

func (c *Client) handleSubscribe(event map[string]interface{}) {
	scope, _ := event["scope"].(string)
	target, _ := event["target"].(string)
	switch scope {
	case ScopeChats, ScopeNotifications:
		c.subscribe(scope, "")
	case ScopeChat:
		if target == "" {
			return
		}
		c.subscribe(scope, target)
	}
}

func (c *Client) handleUnsubscribe(event map[string]interface{}) {
	scope, _ := event["scope"].(string)
	switch scope {
	case ScopeChats, ScopeChat, ScopeNotifications:
		c.unsubscribe(scope)
	}
}

func (c *Client) handleTyping(event map[string]interface{}) {
	chatID, _ := event["chat_id"].(string)
	to, _ := event["to"].(string)
	typing, _ := event["typing"].(bool)
	if chatID == "" || to == "" {
		return
	}

	c.hub.setTyping(chatID, c.username, typing)
	c.hub.deliveries <- delivery{
		to:    to,
		scope: ScopeChat,
		event: &Event{Type: "typing", ChatID: chatID, From: c.username, Typing: typing},
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			data, _ := json.Marshal(event)
			w.Write(data)

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
