package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/shayarigram/shayarigram/internal/db"
	"github.com/shayarigram/shayarigram/internal/models"
	"github.com/shayarigram/shayarigram/internal/navigation"
	"github.com/shayarigram/shayarigram/internal/push"
	"github.com/shayarigram/shayarigram/internal/relations"
	"github.com/shayarigram/shayarigram/internal/ws"
)

const (
	feedLimit    = 50
	exploreLimit = 60
)

type PostHandler struct {
	db       *sql.DB
	rel      *relations.Store
	hub      *ws.Hub
	notifier *push.Notifier

	fetcherMu sync.Mutex
	fetchers  map[string]*navigation.ActivityFetcher
}

func NewPostHandler(database *sql.DB, rel *relations.Store, hub *ws.Hub, notifier *push.Notifier) *PostHandler {
	return &PostHandler{
		db:       database,
		rel:      rel,
		hub:      hub,
		notifier: notifier,
		fetchers: make(map[string]*navigation.ActivityFetcher),
	}
}

// Feed returns recent posts with hidden authors filtered out.
func (h *PostHandler) Feed(c *gin.Context) {
	me := c.GetString("username")

	hidden, err := h.rel.Hidden(me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch posts")})
		return
	}

	posts, err := scanPosts(h.db, `
		SELECT id, author, content, caption, bg_color, text_color, likes, comment_count, is_edited, created_at
		FROM posts ORDER BY created_at DESC LIMIT ?
	`, feedLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch posts")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": filterHiddenAuthors(posts, hidden)})
}

// Explore returns the most-liked posts, hidden authors filtered out after
// the cut so the ranking itself is global.
func (h *PostHandler) Explore(c *gin.Context) {
	me := c.GetString("username")

	hidden, err := h.rel.Hidden(me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch posts")})
		return
	}

	posts, err := scanPosts(h.db, `
		SELECT id, author, content, caption, bg_color, text_color, likes, comment_count, is_edited, created_at
		FROM posts ORDER BY likes DESC, created_at DESC LIMIT ?
	`, exploreLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch posts")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": filterHiddenAuthors(posts, hidden)})
}

// GetPost returns one post with its comment thread, oldest comment first.
func (h *PostHandler) GetPost(c *gin.Context) {
	me := c.GetString("username")

	postID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	post, err := h.loadPost(postID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("post not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch post")})
		return
	}

	if post.Author != me {
		hiddenFrom, err := h.rel.IsHiddenFrom(me, post.Author)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch post")})
			return
		}
		if hiddenFrom {
			c.JSON(http.StatusNotFound, gin.H{"error": __("post not found")})
			return
		}
	}

	comments, err := scanComments(h.db, `
		SELECT id, post_id, username, text, reply_to_comment, reply_to_user, likes, created_at
		FROM comments WHERE post_id = ? ORDER BY created_at ASC
	`, postID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch comments")})
		return
	}

	var saved bool
	h.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM user_saves WHERE username = ? AND post_id = ?)",
		me, postID,
	).Scan(&saved)

	c.JSON(http.StatusOK, gin.H{"post": post, "comments": comments, "saved": saved})
}

type PostRequest struct {
	Content   string `json:"content"`
	Caption   string `json:"caption"`
	BgColor   string `json:"bg_color"`
	TextColor string `json:"text_color"`
}

// CreatePost publishes a new shayari.
func (h *PostHandler) CreatePost(c *gin.Context) {
	me := c.GetString("username")

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("post content required")})
		return
	}
	if req.BgColor == "" {
		req.BgColor = "#393e46"
	}
	if req.TextColor == "" {
		req.TextColor = "#eeeeee"
	}

	result, err := h.db.Exec(
		"INSERT INTO posts (author, content, caption, bg_color, text_color) VALUES (?, ?, ?, ?, ?)",
		me, req.Content, req.Caption, req.BgColor, req.TextColor,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save post")})
		return
	}

	id, _ := result.LastInsertId()
	post, err := h.loadPost(int(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch post")})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// UpdatePost edits a post's content and style. Author only; the author
// column itself never changes.
func (h *PostHandler) UpdatePost(c *gin.Context) {
	me := c.GetString("username")

	postID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("post content required")})
		return
	}

	var author string
	err = h.db.QueryRow("SELECT author FROM posts WHERE id = ?", postID).Scan(&author)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("post not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch post")})
		return
	}
	if author != me {
		c.JSON(http.StatusForbidden, gin.H{"error": __("can only edit own posts")})
		return
	}

	_, err = h.db.Exec(`
		UPDATE posts SET content = ?, caption = ?,
			bg_color = COALESCE(NULLIF(?, ''), bg_color),
			text_color = COALESCE(NULLIF(?, ''), text_color),
			is_edited = 1
		WHERE id = ?
	`, req.Content, req.Caption, req.BgColor, req.TextColor, postID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save post")})
		return
	}

	post, err := h.loadPost(postID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch post")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"post": post})
}

// DeletePost removes a post and everything hanging off it. The dependent
// rows go through the batch deleter so an arbitrarily large thread still
// commits in bounded transactions.
func (h *PostHandler) DeletePost(c *gin.Context) {
	me := c.GetString("username")

	postID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	var author string
	err = h.db.QueryRow("SELECT author FROM posts WHERE id = ?", postID).Scan(&author)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("post not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch post")})
		return
	}
	if author != me {
		c.JSON(http.StatusForbidden, gin.H{"error": __("can only delete own posts")})
		return
	}

	batch := db.NewBatch(h.db)
	batch.Add(`
		DELETE FROM comment_likes WHERE comment_id IN (SELECT id FROM comments WHERE post_id = ?)
	`, postID)
	batch.Add("DELETE FROM comments WHERE post_id = ?", postID)
	batch.Add("DELETE FROM post_likes WHERE post_id = ?", postID)
	batch.Add("DELETE FROM user_saves WHERE post_id = ?", postID)
	batch.Add("DELETE FROM notifications WHERE post_id = ?", postID)
	batch.Add("DELETE FROM posts WHERE id = ?", postID)
	if _, err := batch.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to delete post")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ToggleLike flips my like on a post. The membership row and the counter
// move in one transaction, so toggling twice restores both exactly.
func (h *PostHandler) ToggleLike(c *gin.Context) {
	me := c.GetString("username")

	postID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	var author string
	err = h.db.QueryRow("SELECT author FROM posts WHERE id = ?", postID).Scan(&author)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("post not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch post")})
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to toggle like")})
		return
	}
	defer tx.Rollback()

	var liked bool
	err = tx.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM post_likes WHERE post_id = ? AND username = ?)",
		postID, me,
	).Scan(&liked)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to toggle like")})
		return
	}

	if liked {
		_, err = tx.Exec("DELETE FROM post_likes WHERE post_id = ? AND username = ?", postID, me)
		if err == nil {
			_, err = tx.Exec("UPDATE posts SET likes = likes - 1 WHERE id = ?", postID)
		}
	} else {
		_, err = tx.Exec("INSERT INTO post_likes (post_id, username) VALUES (?, ?)", postID, me)
		if err == nil {
			_, err = tx.Exec("UPDATE posts SET likes = likes + 1 WHERE id = ?", postID)
		}
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to toggle like")})
		return
	}

	if !liked {
		emitNotification(h.db, h.hub, h.notifier, models.Notification{
			ToUser:   author,
			FromUser: me,
			Type:     models.NotifyLike,
			PostID:   &postID,
		})
	}

	var likes int
	h.db.QueryRow("SELECT likes FROM posts WHERE id = ?", postID).Scan(&likes)
	c.JSON(http.StatusOK, gin.H{"liked": !liked, "likes": likes})
}

// ToggleSave flips the post in my saved list. Saves are private; nothing on
// the post itself changes.
func (h *PostHandler) ToggleSave(c *gin.Context) {
	me := c.GetString("username")

	postID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	var saved bool
	err = h.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM user_saves WHERE username = ? AND post_id = ?)",
		me, postID,
	).Scan(&saved)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to toggle save")})
		return
	}

	if saved {
		_, err = h.db.Exec("DELETE FROM user_saves WHERE username = ? AND post_id = ?", me, postID)
	} else {
		_, err = h.db.Exec("INSERT INTO user_saves (username, post_id) VALUES (?, ?)", me, postID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to toggle save")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"saved": !saved})
}

// GetSaved lists my saved posts, most recently saved first.
func (h *PostHandler) GetSaved(c *gin.Context) {
	me := c.GetString("username")

	posts, err := scanPosts(h.db, `
		SELECT p.id, p.author, p.content, p.caption, p.bg_color, p.text_color, p.likes, p.comment_count, p.is_edited, p.created_at
		FROM posts p JOIN user_saves s ON s.post_id = p.id
		WHERE s.username = ? ORDER BY s.created_at DESC
	`, me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch posts")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// Activity serves the drawer's likes/comments tabs. Each user gets a
// generation-guarded fetcher: when requests race, only the one matching the
// last requested tab returns rows, so a slow earlier fetch can never
// overwrite a newer tab on the client.
func (h *PostHandler) Activity(c *gin.Context) {
	me := c.GetString("username")

	tab, err := navigation.ParseTab(c.DefaultQuery("tab", string(navigation.TabLikes)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid activity tab")})
		return
	}

	fetcher := h.fetcherFor(me)
	generation, err := fetcher.Request(tab)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid activity tab")})
		return
	}

	var posts []*models.Post
	switch tab {
	case navigation.TabLikes:
		posts, err = scanPosts(h.db, `
			SELECT p.id, p.author, p.content, p.caption, p.bg_color, p.text_color, p.likes, p.comment_count, p.is_edited, p.created_at
			FROM posts p JOIN post_likes l ON l.post_id = p.id
			WHERE l.username = ? ORDER BY l.created_at DESC
		`, me)
	case navigation.TabComments:
		posts, err = scanPosts(h.db, `
			SELECT p.id, p.author, p.content, p.caption, p.bg_color, p.text_color, p.likes, p.comment_count, p.is_edited, p.created_at
			FROM posts p
			WHERE p.id IN (SELECT DISTINCT post_id FROM comments WHERE username = ?)
			ORDER BY p.created_at DESC
		`, me)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch activity")})
		return
	}

	if !fetcher.Accept(generation) {
		c.JSON(http.StatusOK, gin.H{"tab": tab, "generation": generation, "stale": true, "posts": []*models.Post{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tab": tab, "generation": generation, "stale": false, "posts": posts})
}

func (h *PostHandler) fetcherFor(username string) *navigation.ActivityFetcher {
	h.fetcherMu.Lock()
	defer h.fetcherMu.Unlock()
	fetcher, ok := h.fetchers[username]
	if !ok {
		fetcher = navigation.NewActivityFetcher()
		h.fetchers[username] = fetcher
	}
	return fetcher
}

func (h *PostHandler) loadPost(postID int) (*models.Post, error) {
	posts, err := scanPosts(h.db, `
		SELECT id, author, content, caption, bg_color, text_color, likes, comment_count, is_edited, created_at
		FROM posts WHERE id = ?
	`, postID)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, sql.ErrNoRows
	}
	return posts[0], nil
}

// scanPosts runs a post query and attaches each post's liked_by set.
func scanPosts(database *sql.DB, query string, args ...interface{}) ([]*models.Post, error) {
	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []*models.Post{}
	for rows.Next() {
		post := &models.Post{LikedBy: []string{}}
		if err := rows.Scan(
			&post.ID, &post.Author, &post.Content, &post.Caption,
			&post.BgColor, &post.TextColor, &post.Likes, &post.CommentCount,
			&post.IsEdited, &post.CreatedAt,
		); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, post := range posts {
		likers, err := database.Query("SELECT username FROM post_likes WHERE post_id = ?", post.ID)
		if err != nil {
			return nil, err
		}
		for likers.Next() {
			var name string
			if err := likers.Scan(&name); err != nil {
				likers.Close()
				return nil, err
			}
			post.LikedBy = append(post.LikedBy, name)
		}
		likers.Close()
	}

	return posts, nil
}

func filterHiddenAuthors(posts []*models.Post, hidden []string) []*models.Post {
	if len(hidden) == 0 {
		return posts
	}
	hiddenSet := make(map[string]bool, len(hidden))
	for _, name := range hidden {
		hiddenSet[name] = true
	}
	visible := []*models.Post{}
	for _, post := range posts {
		if !hiddenSet[post.Author] {
			visible = append(visible, post)
		}
	}
	return visible
}
