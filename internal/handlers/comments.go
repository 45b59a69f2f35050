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

type CommentHandler struct {
	db       *sql.DB
	hub      *ws.Hub
	notifier *push.Notifier
}

func NewCommentHandler(db *sql.DB, hub *ws.Hub, notifier *push.Notifier) *CommentHandler {
	return &CommentHandler{db: db, hub: hub, notifier: notifier}
}

type CommentRequest struct {
	Text    string `json:"text"`
	ReplyTo *int   `json:"reply_to"`
}

// AddComment appends a comment to a post's thread. The insert and the
// post's comment counter move in one transaction. A reply must target a
// comment on the same post.
func (h *CommentHandler) AddComment(c *gin.Context) {
	me := c.GetString("username")

	postID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("comment text required")})
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

	var replyToUser *string
	if req.ReplyTo != nil {
		var targetPost int
		var targetUser string
		err := h.db.QueryRow(
			"SELECT post_id, username FROM comments WHERE id = ?", *req.ReplyTo,
		).Scan(&targetPost, &targetUser)
		if err == sql.ErrNoRows || (err == nil && targetPost != postID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": __("reply target not on this post")})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch comments")})
			return
		}
		replyToUser = &targetUser
	}

	tx, err := h.db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save comment")})
		return
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO comments (post_id, username, text, reply_to_comment, reply_to_user) VALUES (?, ?, ?, ?, ?)",
		postID, me, req.Text, req.ReplyTo, replyToUser,
	)
	if err == nil {
		_, err = tx.Exec("UPDATE posts SET comment_count = comment_count + 1 WHERE id = ?", postID)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save comment")})
		return
	}

	commentID, _ := result.LastInsertId()

	text := req.Text
	emitNotification(h.db, h.hub, h.notifier, models.Notification{
		ToUser:   author,
		FromUser: me,
		Type:     models.NotifyComment,
		PostID:   &postID,
		Text:     &text,
	})

	comment, err := h.loadComment(int(commentID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch comments")})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

// ToggleCommentLike flips my like on a comment, counter and membership in
// one transaction.
func (h *CommentHandler) ToggleCommentLike(c *gin.Context) {
	me := c.GetString("username")

	commentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	var commentAuthor string
	var postID int
	err = h.db.QueryRow("SELECT username, post_id FROM comments WHERE id = ?", commentID).Scan(&commentAuthor, &postID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("comment not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch comments")})
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
		"SELECT EXISTS(SELECT 1 FROM comment_likes WHERE comment_id = ? AND username = ?)",
		commentID, me,
	).Scan(&liked)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to toggle like")})
		return
	}

	if liked {
		_, err = tx.Exec("DELETE FROM comment_likes WHERE comment_id = ? AND username = ?", commentID, me)
		if err == nil {
			_, err = tx.Exec("UPDATE comments SET likes = likes - 1 WHERE id = ?", commentID)
		}
	} else {
		_, err = tx.Exec("INSERT INTO comment_likes (comment_id, username) VALUES (?, ?)", commentID, me)
		if err == nil {
			_, err = tx.Exec("UPDATE comments SET likes = likes + 1 WHERE id = ?", commentID)
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
			ToUser:   commentAuthor,
			FromUser: me,
			Type:     models.NotifyCommentLike,
			PostID:   &postID,
		})
	}

	var likes int
	h.db.QueryRow("SELECT likes FROM comments WHERE id = ?", commentID).Scan(&likes)
	c.JSON(http.StatusOK, gin.H{"liked": !liked, "likes": likes})
}

func (h *CommentHandler) loadComment(commentID int) (*models.Comment, error) {
	comments, err := scanComments(h.db, `
		SELECT id, post_id, username, text, reply_to_comment, reply_to_user, likes, created_at
		FROM comments WHERE id = ?
	`, commentID)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, sql.ErrNoRows
	}
	return comments[0], nil
}

// scanComments runs a comment query and attaches each comment's liked_by set.
func scanComments(database *sql.DB, query string, args ...interface{}) ([]*models.Comment, error) {
	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []*models.Comment{}
	for rows.Next() {
		comment := &models.Comment{LikedBy: []string{}}
		if err := rows.Scan(
			&comment.ID, &comment.PostID, &comment.Username, &comment.Text,
			&comment.ReplyTo, &comment.ReplyToUser, &comment.Likes, &comment.CreatedAt,
		); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, comment := range comments {
		likers, err := database.Query("SELECT username FROM comment_likes WHERE comment_id = ?", comment.ID)
		if err != nil {
			return nil, err
		}
		for likers.Next() {
			var name string
			if err := likers.Scan(&name); err != nil {
				likers.Close()
				return nil, err
			}
			comment.LikedBy = append(comment.LikedBy, name)
		}
		likers.Close()
	}

	return comments, nil
}
