package push

import (
	"database/sql"
	"encoding/json"
	"log"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Notifier sends Web Push notifications to subscribed users.
type Notifier struct {
	db              *sql.DB
	vapidPublicKey  string
	vapidPrivateKey string
}

// Subscription represents a stored Web Push subscription.
type Subscription struct {
	Endpoint  string `json:"endpoint"`
	KeyP256dh string `json:"p256dh"`
	KeyAuth   string `json:"auth"`
}

// NewNotifier creates a push Notifier. Returns nil if VAPID keys are empty.
func NewNotifier(db *sql.DB, vapidPublicKey, vapidPrivateKey string) *Notifier {
	if vapidPublicKey == "" || vapidPrivateKey == "" {
		return nil
	}
	return &Notifier{
		db:              db,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
	}
}

// VAPIDPublicKey returns the public VAPID key for the frontend.
func (n *Notifier) VAPIDPublicKey() string {
	return n.vapidPublicKey
}

// payload is the JSON structure sent inside the push notification.
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// SendNewMessageNotification pushes a new-message alert to the recipient
// unless they muted the conversation.
func (n *Notifier) SendNewMessageNotification(chatID, toUsername, fromUsername string) {
	if n == nil {
		return
	}

	var muted bool
	err := n.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM chat_mutes WHERE chat_id = ? AND username = ?)",
		chatID, toUsername,
	).Scan(&muted)
	if err != nil {
		log.Printf("push: failed to check mute for %s: %v", toUsername, err)
		return
	}
	if muted {
		return
	}

	n.send(toUsername, payload{
		Title: "नया संदेश",
		Body:  fromUsername + " का नया संदेश",
		URL:   "/",
	})
}

// SendActivityNotification pushes a like/comment/follow alert.
func (n *Notifier) SendActivityNotification(toUsername, fromUsername, notifType string) {
	if n == nil {
		return
	}

	var body string
	switch notifType {
	case "like":
		body = fromUsername + " ने आपकी पोस्ट पसंद की"
	case "comment":
		body = fromUsername + " ने आपकी पोस्ट पर टिप्पणी की"
	case "comment_like":
		body = fromUsername + " ने आपकी टिप्पणी पसंद की"
	case "follow":
		body = fromUsername + " ने आपको फ़ॉलो किया"
	default:
		return
	}

	n.send(toUsername, payload{
		Title: "शायरीग्राम",
		Body:  body,
		URL:   "/",
	})
}

func (n *Notifier) send(username string, p payload) {
	rows, err := n.db.Query(`
		SELECT s.endpoint, s.p256dh, s.auth
		FROM push_subscriptions s
		JOIN users u ON u.id = s.user_id
		WHERE u.username = ? AND s.revoked_at IS NULL
	`, username)
	if err != nil {
		log.Printf("push: failed to query subscriptions for %s: %v", username, err)
		return
	}
	defer rows.Close()

	data, _ := json.Marshal(p)

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.Endpoint, &sub.KeyP256dh, &sub.KeyAuth); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	rows.Close()

	if len(subs) == 0 {
		return
	}

	log.Printf("push: sending notification to %d subscription(s) for %s", len(subs), username)
	for _, sub := range subs {
		go n.sendToSubscription(sub, data)
	}
}

func (n *Notifier) sendToSubscription(sub Subscription, data []byte) {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.KeyP256dh,
			Auth:   sub.KeyAuth,
		},
	}

	resp, err := webpush.SendNotification(data, s, &webpush.Options{
		VAPIDPublicKey:  n.vapidPublicKey,
		VAPIDPrivateKey: n.vapidPrivateKey,
		Subscriber:      "mailto:push@shayarigram.local",
		TTL:             86400,
	})
	if err != nil {
		log.Printf("push: failed to send to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	log.Printf("push: sent to %s — status %d", sub.Endpoint, resp.StatusCode)

	// 410 Gone or 404 means the subscription is expired — clean it up
	if resp.StatusCode == 410 || resp.StatusCode == 404 {
		n.db.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", sub.Endpoint)
		log.Printf("push: removed expired subscription %s (status %d)", sub.Endpoint, resp.StatusCode)
	}
}
