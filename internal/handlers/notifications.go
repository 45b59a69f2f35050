package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shayarigram/shayarigram/internal/models"
	"github.com/shayarigram/shayarigram/internal/push"
	"github.com/shayarigram/shayarigram/internal/ws"
)

type NotificationHandler struct {
	db       *sql.DB
	hub      *ws.Hub
	notifier *push.Notifier
}

func NewNotificationHandler(db *sql.DB, hub *ws.Hub, notifier *push.Notifier) *NotificationHandler {
	return &NotificationHandler{db: db, hub: hub, notifier: notifier}
}

// List returns my notifications, newest first. Anything I triggered myself
// is filtered at read time too, as a second line of defense behind the
// write-time suppression.
func (h *NotificationHandler) List(c *gin.Context) {
	me := c.GetString("username")

	rows, err := h.db.Query(`
		SELECT id, to_user, from_user, type, post_id, text, read, created_at
		FROM notifications
		WHERE to_user = ? AND from_user != ?
		ORDER BY created_at DESC, id DESC
	`, me, me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch notifications")})
		return
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(
			&n.ID, &n.ToUser, &n.FromUser, &n.Type,
			&n.PostID, &n.Text, &n.Read, &n.CreatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch notifications")})
			return
		}
		notifications = append(notifications, n)
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// MarkAllRead clears the unread flag; called when the recipient opens the
// notifications view.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	me := c.GetString("username")

	_, err := h.db.Exec("UPDATE notifications SET read = 1 WHERE to_user = ?", me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update notifications")})
		return
	}

	pushBadge(h.db, h.hub, me)
	c.JSON(http.StatusOK, gin.H{"read": true})
}

// Delete removes one of my notifications.
func (h *NotificationHandler) Delete(c *gin.Context) {
	me := c.GetString("username")

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	result, err := h.db.Exec("DELETE FROM notifications WHERE id = ? AND to_user = ?", id, me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to delete notification")})
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": __("notification not found")})
		return
	}

	pushBadge(h.db, h.hub, me)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// VAPIDKey exposes the public web-push key for browser subscription.
func (h *NotificationHandler) VAPIDKey(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": __("not found")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": h.notifier.VAPIDPublicKey()})
}

type PushSubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256dh   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// Subscribe registers a browser push subscription for the current user.
func (h *NotificationHandler) Subscribe(c *gin.Context) {
	userID := c.GetInt("user_id")

	var req PushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	_, err := h.db.Exec(`
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			user_id = excluded.user_id,
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			revoked_at = NULL
	`, userID, req.Endpoint, req.P256dh, req.Auth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("internal server error")})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"subscribed": true})
}

type PushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// Unsubscribe revokes a push subscription without deleting its history.
func (h *NotificationHandler) Unsubscribe(c *gin.Context) {
	userID := c.GetInt("user_id")

	var req PushUnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	_, err := h.db.Exec(
		"UPDATE push_subscriptions SET revoked_at = CURRENT_TIMESTAMP WHERE endpoint = ? AND user_id = ?",
		req.Endpoint, userID,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("internal server error")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscribed": false})
}
