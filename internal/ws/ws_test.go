package ws

import (
	"database/sql"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			is_online BOOLEAN DEFAULT 0,
			last_seen TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	db.Exec("INSERT INTO users (username, password_hash) VALUES ('alice', 'hash1')")
	db.Exec("INSERT INTO users (username, password_hash) VALUES ('bob', 'hash2')")

	return db
}

func newTestClient(hub *Hub, username string) *Client {
	return &Client{
		username: username,
		hub:      hub,
		send:     make(chan *Event, 256),
		subs:     make(map[string]string),
	}
}

func TestHubCreation(t *testing.T) {
	db := setupTestDB(t)

	hub := NewHub(db)
	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.deliveries == nil {
		t.Error("Hub deliveries channel is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHubRunUpdatesPresence(t *testing.T) {
	db := setupTestDB(t)

	hub := NewHub(db)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	client := newTestClient(hub, "alice")
	hub.register <- client

	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if _, ok := hub.clients["alice"]; !ok {
		t.Error("Client was not registered")
	}
	hub.mu.RUnlock()

	var online bool
	db.QueryRow("SELECT is_online FROM users WHERE username = 'alice'").Scan(&online)
	if !online {
		t.Error("alice should be online after registering")
	}

	hub.unregister <- client

	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if _, ok := hub.clients["alice"]; ok {
		t.Error("Client was not unregistered")
	}
	hub.mu.RUnlock()

	var lastSeen sql.NullTime
	db.QueryRow("SELECT is_online, last_seen FROM users WHERE username = 'alice'").Scan(&online, &lastSeen)
	if online {
		t.Error("alice should be offline after unregistering")
	}
	if !lastSeen.Valid {
		t.Error("last_seen should be set on disconnect")
	}
}

func TestRegisterReplacesExistingSession(t *testing.T) {
	db := setupTestDB(t)

	hub := NewHub(db)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	first := newTestClient(hub, "alice")
	second := newTestClient(hub, "alice")

	hub.register <- first
	hub.register <- second

	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	current := hub.clients["alice"]
	hub.mu.RUnlock()
	if current != second {
		t.Fatal("New session should replace the old one")
	}

	// The old session's channel is closed so its writePump exits
	select {
	case _, open := <-first.send:
		if open {
			t.Error("Old session channel should be closed, got an event")
		}
	default:
		t.Error("Old session channel should be closed")
	}

	// Unregistering the stale client must not evict the current one
	hub.unregister <- first
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, ok := hub.clients["alice"]
	hub.mu.RUnlock()
	if !ok {
		t.Error("Stale unregister evicted the current session")
	}
}

func TestMessageDeliveryIsScopedToOpenChat(t *testing.T) {
	db := setupTestDB(t)

	hub := NewHub(db)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")

	hub.register <- alice
	hub.register <- bob

	time.Sleep(10 * time.Millisecond)

	alice.subscribe(ScopeChat, "alice_bob")
	// bob is looking at a different conversation
	bob.subscribe(ScopeChat, "bob_carol")

	hub.NotifyMessage("alice_bob", []string{"alice", "bob"}, map[string]string{"text": "hello"})

	time.Sleep(50 * time.Millisecond)

	select {
	case event := <-alice.send:
		if event.Type != "message" || event.ChatID != "alice_bob" {
			t.Errorf("alice got %+v, want message for alice_bob", event)
		}
	default:
		t.Error("alice did not receive the message")
	}

	select {
	case event := <-bob.send:
		t.Errorf("bob received %+v while watching another chat", event)
	default:
	}
}

func TestSubscriptionReplacedNotStacked(t *testing.T) {
	db := setupTestDB(t)

	hub := NewHub(db)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	alice := newTestClient(hub, "alice")
	hub.register <- alice

	time.Sleep(10 * time.Millisecond)

	alice.subscribe(ScopeChat, "alice_bob")
	alice.subscribe(ScopeChat, "alice_carol")

	hub.NotifyMessage("alice_bob", []string{"alice"}, nil)
	hub.NotifyMessage("alice_carol", []string{"alice"}, nil)

	time.Sleep(50 * time.Millisecond)

	var chatIDs []string
	for {
		select {
		case event := <-alice.send:
			chatIDs = append(chatIDs, event.ChatID)
			continue
		default:
		}
		break
	}

	if len(chatIDs) != 1 || chatIDs[0] != "alice_carol" {
		t.Errorf("Received for chats %v, want only alice_carol", chatIDs)
	}
}

func TestChatUpdateRequiresListSubscription(t *testing.T) {
	db := setupTestDB(t)

	hub := NewHub(db)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	hub.register <- alice
	hub.register <- bob

	time.Sleep(10 * time.Millisecond)

	alice.subscribe(ScopeChats, "")

	hub.NotifyChatUpdate("alice_bob", []string{"alice", "bob"}, map[string]string{"last_message": "hi"})

	time.Sleep(50 * time.Millisecond)

	select {
	case event := <-alice.send:
		if event.Type != "chat_update" {
			t.Errorf("alice got %q, want chat_update", event.Type)
		}
	default:
		t.Error("alice did not receive the chat update")
	}

	select {
	case event := <-bob.send:
		t.Errorf("bob received %+v without a list subscription", event)
	default:
	}
}

func TestBadgeIsUnconditional(t *testing.T) {
	db := setupTestDB(t)

	hub := NewHub(db)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	alice := newTestClient(hub, "alice")
	hub.register <- alice

	time.Sleep(10 * time.Millisecond)

	// no subscriptions at all
	hub.NotifyBadge("alice", Badge{UnreadMessages: true})

	time.Sleep(50 * time.Millisecond)

	select {
	case event := <-alice.send:
		if event.Type != "badge" {
			t.Errorf("got %q, want badge", event.Type)
		}
		badge, ok := event.Payload.(Badge)
		if !ok || !badge.UnreadMessages {
			t.Errorf("badge payload = %+v", event.Payload)
		}
	default:
		t.Error("alice did not receive the badge event")
	}
}

func TestTypingFlagsAreEphemeral(t *testing.T) {
	db := setupTestDB(t)

	hub := NewHub(db)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	hub.register <- alice
	hub.register <- bob

	time.Sleep(10 * time.Millisecond)

	bob.subscribe(ScopeChat, "alice_bob")

	alice.handleTyping(map[string]interface{}{
		"type": "typing", "chat_id": "alice_bob", "to": "bob", "typing": true,
	})

	time.Sleep(50 * time.Millisecond)

	typing := hub.Typing("alice_bob")
	if len(typing) != 1 || typing[0] != "alice" {
		t.Errorf("Typing() = %v, want [alice]", typing)
	}

	select {
	case event := <-bob.send:
		if event.Type != "typing" || event.From != "alice" || !event.Typing {
			t.Errorf("bob got %+v", event)
		}
	default:
		t.Error("bob did not receive the typing event")
	}

	// disconnect clears the flag
	hub.unregister <- alice
	time.Sleep(10 * time.Millisecond)

	if typing := hub.Typing("alice_bob"); len(typing) != 0 {
		t.Errorf("Typing() after disconnect = %v, want empty", typing)
	}
}

func TestSubscribeEventHandling(t *testing.T) {
	db := setupTestDB(t)

	hub := NewHub(db)
	client := newTestClient(hub, "alice")

	client.handleSubscribe(map[string]interface{}{"type": "subscribe", "scope": "chat", "target": "alice_bob"})
	if !client.watches(ScopeChat, "alice_bob") {
		t.Error("chat subscription not recorded")
	}

	// chat scope without a target is ignored
	client.handleSubscribe(map[string]interface{}{"type": "subscribe", "scope": "chat"})
	if !client.watches(ScopeChat, "alice_bob") {
		t.Error("targetless subscribe should not clobber the existing one")
	}

	client.handleSubscribe(map[string]interface{}{"type": "subscribe", "scope": "notifications"})
	if !client.watches(ScopeNotifications, "") {
		t.Error("notifications subscription not recorded")
	}

	client.handleUnsubscribe(map[string]interface{}{"type": "unsubscribe", "scope": "chat"})
	if client.watches(ScopeChat, "alice_bob") {
		t.Error("unsubscribe did not remove the chat subscription")
	}
}

func TestWebSocketIntegration(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)

	hub := NewHub(db)
	go hub.Run()

	router := gin.New()

	// Simple middleware that sets the username for testing
	router.GET("/ws", func(c *gin.Context) {
		c.Set("username", "alice")
		hub.HandleWebSocket(c)
	})

	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	hub.mu.RLock()
	_, connected := hub.clients["alice"]
	hub.mu.RUnlock()

	if !connected {
		t.Error("WebSocket client was not registered in hub")
	}
}
