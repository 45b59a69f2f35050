package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shayarigram/shayarigram/internal/navigation"
	"github.com/shayarigram/shayarigram/internal/ws"
)

type SessionHandler struct {
	db  *sql.DB
	nav *navigation.Store
	hub *ws.Hub
}

func NewSessionHandler(db *sql.DB, nav *navigation.Store, hub *ws.Hub) *SessionHandler {
	return &SessionHandler{db: db, nav: nav, hub: hub}
}

// GetState restores the session's navigation position. A fresh account, or
// a stored view that no longer exists, lands on home.
func (h *SessionHandler) GetState(c *gin.Context) {
	me := c.GetString("username")

	state, err := h.nav.Load(me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch view state")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state})
}

type StateRequest struct {
	View       string  `json:"view" binding:"required"`
	Profile    string  `json:"profile"`
	ChatID     *string `json:"chat_id"`
	PostID     int     `json:"post_id"`
	EditPostID int     `json:"edit_post_id"`
}

// PutState applies one navigation transition on top of the stored state and
// persists the result. In the request body, an absent or null chat_id
// leaves the open conversation alone; an empty string closes it; any other
// value opens that conversation.
func (h *SessionHandler) PutState(c *gin.Context) {
	me := c.GetString("username")

	var req StateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	current, err := h.nav.Load(me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch view state")})
		return
	}

	next, err := navigation.Transition(current, navigation.Input{
		View:       navigation.View(req.View),
		Profile:    req.Profile,
		Chat:       req.ChatID,
		PostID:     req.PostID,
		EditPostID: req.EditPostID,
	})
	if err != nil {
		if errors.Is(err, navigation.ErrInvalidView) {
			c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid view")})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	if err := h.nav.Save(me, next); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save view state")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": next})
}

// Presence returns the unread booleans plus which of my chat partners are
// online right now.
func (h *SessionHandler) Presence(c *gin.Context) {
	me := c.GetString("username")

	badge := unreadBadge(h.db, me)

	online := map[string]bool{}
	rows, err := h.db.Query("SELECT user_a, user_b FROM chats WHERE user_a = ? OR user_b = ?", me, me)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var userA, userB string
			if err := rows.Scan(&userA, &userB); err != nil {
				break
			}
			other := userA
			if other == me {
				other = userB
			}
			if h.hub != nil {
				online[other] = h.hub.IsUserOnline(other)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"unread_messages":      badge.UnreadMessages,
		"unread_notifications": badge.UnreadNotifications,
		"online":               online,
	})
}
