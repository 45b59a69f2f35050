package handlers

import (
	"database/sql"
	"log"

	"github.com/shayarigram/shayarigram/internal/models"
	"github.com/shayarigram/shayarigram/internal/push"
	"github.com/shayarigram/shayarigram/internal/ws"
	"github.com/shayarigram/shayarigram/pkg/i18n"
)

var __ = i18n.Translate

// unreadBadge recomputes the two unread booleans a client shows on its
// bottom bar. Unread messages means a chat I participate in whose latest
// message is someone else's and unread; unread notifications excludes
// anything I triggered myself.
func unreadBadge(db *sql.DB, username string) ws.Badge {
	var badge ws.Badge

	err := db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM notifications
			WHERE to_user = ? AND from_user != ? AND read = 0
		)
	`, username, username).Scan(&badge.UnreadNotifications)
	if err != nil {
		log.Printf("Failed to compute notification badge for %s: %v", username, err)
	}

	err = db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM chats
			WHERE (user_a = ? OR user_b = ?)
			  AND is_read = 0
			  AND last_message_sender != ''
			  AND last_message_sender != ?
		)
	`, username, username, username).Scan(&badge.UnreadMessages)
	if err != nil {
		log.Printf("Failed to compute message badge for %s: %v", username, err)
	}

	return badge
}

func pushBadge(db *sql.DB, hub *ws.Hub, username string) {
	if hub == nil {
		return
	}
	hub.NotifyBadge(username, unreadBadge(db, username))
}

// emitNotification records an activity notification and fans it out over the
// live channel and web push. Self-actions are suppressed at the source.
func emitNotification(db *sql.DB, hub *ws.Hub, notifier *push.Notifier, n models.Notification) {
	if n.ToUser == n.FromUser {
		return
	}

	_, err := db.Exec(
		"INSERT INTO notifications (to_user, from_user, type, post_id, text) VALUES (?, ?, ?, ?, ?)",
		n.ToUser, n.FromUser, n.Type, n.PostID, n.Text,
	)
	if err != nil {
		log.Printf("Failed to record %s notification for %s: %v", n.Type, n.ToUser, err)
		return
	}

	pushBadge(db, hub, n.ToUser)
	notifier.SendActivityNotification(n.ToUser, n.FromUser, n.Type)
}
