package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shayarigram/shayarigram/internal/models"
	"github.com/shayarigram/shayarigram/internal/push"
	"github.com/shayarigram/shayarigram/internal/relations"
	"github.com/shayarigram/shayarigram/internal/ws"
)

const maxAvatarSize = 2 << 20 // 2MB

type UserHandler struct {
	db          *sql.DB
	rel         *relations.Store
	hub         *ws.Hub
	notifier    *push.Notifier
	storagePath string
}

func NewUserHandler(db *sql.DB, rel *relations.Store, hub *ws.Hub, notifier *push.Notifier, storagePath string) *UserHandler {
	return &UserHandler{db: db, rel: rel, hub: hub, notifier: notifier, storagePath: storagePath}
}

// GetProfile returns a user's profile, posts and follow counts. A pair
// separated by a block in either direction sees "user unavailable" instead
// of content; nothing leaks through.
func (h *UserHandler) GetProfile(c *gin.Context) {
	me := c.GetString("username")
	target := c.Param("username")

	if target != me {
		hidden, err := h.rel.IsHiddenFrom(me, target)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch profile")})
			return
		}
		if hidden {
			c.JSON(http.StatusForbidden, gin.H{"error": __("user unavailable")})
			return
		}
	}

	user, err := h.loadUser(target)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("user not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch profile")})
		return
	}

	followers, following, err := h.rel.FollowCounts(target)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch profile")})
		return
	}

	var isFollowing bool
	h.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM user_follows WHERE follower = ? AND followee = ?)",
		me, target,
	).Scan(&isFollowing)

	posts, err := scanPosts(h.db, `
		SELECT id, author, content, caption, bg_color, text_color, likes, comment_count, is_edited, created_at
		FROM posts WHERE author = ? ORDER BY created_at DESC
	`, target)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch posts")})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":         user,
		"followers":    followers,
		"following":    following,
		"is_following": isFollowing,
		"posts":        posts,
	})
}

// Search matches usernames by prefix, capped at 10, with hidden users and
// the searcher filtered out.
func (h *UserHandler) Search(c *gin.Context) {
	me := c.GetString("username")
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusOK, gin.H{"users": []*models.User{}})
		return
	}

	hidden, err := h.rel.Hidden(me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to search users")})
		return
	}
	excluded := map[string]bool{me: true}
	for _, name := range hidden {
		excluded[name] = true
	}

	rows, err := h.db.Query(`
		SELECT username, full_name, photo_url, is_private
		FROM users WHERE username LIKE ? ESCAPE '\' ORDER BY username LIMIT ?
	`, escapeLike(query)+"%", 10+len(excluded))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to search users")})
		return
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.Username, &user.FullName, &user.PhotoURL, &user.IsPrivate); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to search users")})
			return
		}
		if excluded[user.Username] {
			continue
		}
		users = append(users, user)
		if len(users) == 10 {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// ToggleFollow flips my follow edge towards the target.
func (h *UserHandler) ToggleFollow(c *gin.Context) {
	me := c.GetString("username")
	target := c.Param("username")

	if target == me {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("cannot follow yourself")})
		return
	}

	hidden, err := h.rel.IsHiddenFrom(me, target)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update follow")})
		return
	}
	if hidden {
		c.JSON(http.StatusForbidden, gin.H{"error": __("user unavailable")})
		return
	}

	var exists bool
	h.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", target).Scan(&exists)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": __("user not found")})
		return
	}

	following, err := h.rel.ToggleFollow(me, target)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update follow")})
		return
	}

	if following {
		emitNotification(h.db, h.hub, h.notifier, models.Notification{
			ToUser:   target,
			FromUser: me,
			Type:     models.NotifyFollow,
		})
	}

	c.JSON(http.StatusOK, gin.H{"following": following})
}

// Block hides the target from me and severs follows in both directions.
func (h *UserHandler) Block(c *gin.Context) {
	me := c.GetString("username")
	target := c.Param("username")

	if target == me {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("cannot block yourself")})
		return
	}

	var exists bool
	h.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", target).Scan(&exists)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": __("user not found")})
		return
	}

	if err := h.rel.Block(me, target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update block")})
		return
	}

	h.notifyBlockLists(me)
	c.JSON(http.StatusOK, gin.H{"blocked": true})
}

// Unblock removes my block on the target. The single row delete clears both
// my blocked list and the target's blocked-by view.
func (h *UserHandler) Unblock(c *gin.Context) {
	me := c.GetString("username")
	target := c.Param("username")

	if err := h.rel.Unblock(me, target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update block")})
		return
	}

	h.notifyBlockLists(me)
	c.JSON(http.StatusOK, gin.H{"blocked": false})
}

// GetBlocked lists the users I blocked directly, with enough detail for the
// settings screen.
func (h *UserHandler) GetBlocked(c *gin.Context) {
	me := c.GetString("username")

	blocked, err := h.rel.Blocked(me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch blocked users")})
		return
	}

	users := []*models.User{}
	for _, name := range blocked {
		user := &models.User{}
		err := h.db.QueryRow(
			"SELECT username, full_name, photo_url FROM users WHERE username = ?", name,
		).Scan(&user.Username, &user.FullName, &user.PhotoURL)
		if err != nil {
			continue
		}
		users = append(users, user)
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

type ProfileUpdateRequest struct {
	FullName  *string `json:"full_name"`
	Bio       *string `json:"bio"`
	IsPrivate *bool   `json:"is_private"`
}

// UpdateProfile edits the editable profile fields. The username is
// deliberately absent: it is assigned at signup and never changes.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	me := c.GetString("username")

	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	if req.FullName != nil {
		if _, err := h.db.Exec("UPDATE users SET full_name = ? WHERE username = ?", *req.FullName, me); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update profile")})
			return
		}
	}
	if req.Bio != nil {
		if _, err := h.db.Exec("UPDATE users SET bio = ? WHERE username = ?", *req.Bio, me); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update profile")})
			return
		}
	}
	if req.IsPrivate != nil {
		if _, err := h.db.Exec("UPDATE users SET is_private = ? WHERE username = ?", *req.IsPrivate, me); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update profile")})
			return
		}
	}

	user, err := h.loadUser(me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch profile")})
		return
	}

	if h.hub != nil {
		h.hub.NotifyProfile(me, user)
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UploadAvatar stores a new profile photo. Hard limits: 2MB, image/* only.
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	me := c.GetString("username")

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("avatar file is required")})
		return
	}
	if file.Size > maxAvatarSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("avatar must be smaller than 2MB")})
		return
	}
	if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("file must be an image")})
		return
	}

	dir := filepath.Join(h.storagePath, "avatars")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save avatar")})
		return
	}

	name := fmt.Sprintf("%s_%d%s", me, time.Now().UnixNano(), filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, filepath.Join(dir, name)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save avatar")})
		return
	}

	photoURL := "/api/files/avatars/" + name
	if _, err := h.db.Exec("UPDATE users SET photo_url = ? WHERE username = ?", photoURL, me); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update avatar")})
		return
	}

	if h.hub != nil {
		h.hub.NotifyProfile(me, gin.H{"photo_url": photoURL})
	}
	c.JSON(http.StatusOK, gin.H{"photo_url": photoURL})
}

func (h *UserHandler) loadUser(username string) (*models.User, error) {
	user := &models.User{}
	err := h.db.QueryRow(`
		SELECT id, username, full_name, bio, photo_url, is_private, is_online, created_at
		FROM users WHERE username = ?
	`, username).Scan(
		&user.ID, &user.Username, &user.FullName, &user.Bio,
		&user.PhotoURL, &user.IsPrivate, &user.IsOnline, &user.CreatedAt,
	)
	return user, err
}

// notifyBlockLists pushes the fresh blocked list to the actor's own clients
// so every open tab converges.
func (h *UserHandler) notifyBlockLists(me string) {
	if h.hub == nil {
		return
	}
	blocked, err := h.rel.Blocked(me)
	if err != nil {
		return
	}
	h.hub.NotifyProfile(me, gin.H{"blocked": blocked})
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
