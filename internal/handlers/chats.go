package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shayarigram/shayarigram/internal/db"
	"github.com/shayarigram/shayarigram/internal/models"
	"github.com/shayarigram/shayarigram/internal/push"
	"github.com/shayarigram/shayarigram/internal/relations"
	"github.com/shayarigram/shayarigram/internal/ws"
)

type ChatHandler struct {
	db            *sql.DB
	rel           *relations.Store
	hub           *ws.Hub
	notifier      *push.Notifier
	storagePath   string
	maxUploadSize int64
}

func NewChatHandler(database *sql.DB, rel *relations.Store, hub *ws.Hub, notifier *push.Notifier, storagePath string, maxUploadSize int64) *ChatHandler {
	return &ChatHandler{
		db:            database,
		rel:           rel,
		hub:           hub,
		notifier:      notifier,
		storagePath:   storagePath,
		maxUploadSize: maxUploadSize,
	}
}

// ChatID derives the conversation id from its unordered participant pair.
// Both sides compute the same id, so a pair can never end up with two rows.
func ChatID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}

type CreateChatRequest struct {
	Username string `json:"username" binding:"required"`
}

// CreateChat opens (or returns) the conversation with another user.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	me := c.GetString("username")

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	chat, status, errMsg := h.ensureChat(me, req.Username)
	if errMsg != "" {
		c.JSON(status, gin.H{"error": __(errMsg)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// ensureChat resolves the pair to its single chat row, creating it when
// absent. Returns an i18n key and status on refusal.
func (h *ChatHandler) ensureChat(me, other string) (*models.Chat, int, string) {
	if other == me {
		return nil, http.StatusBadRequest, "cannot chat with yourself"
	}

	var exists bool
	h.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", other).Scan(&exists)
	if !exists {
		return nil, http.StatusNotFound, "user not found"
	}

	hidden, err := h.rel.IsHiddenFrom(me, other)
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to create chat"
	}
	if hidden {
		return nil, http.StatusForbidden, "cannot chat with this user"
	}

	chatID := ChatID(me, other)
	userA, userB := me, other
	if userA > userB {
		userA, userB = userB, userA
	}

	_, err = h.db.Exec(
		"INSERT OR IGNORE INTO chats (id, user_a, user_b) VALUES (?, ?, ?)",
		chatID, userA, userB,
	)
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to create chat"
	}

	chat, err := h.loadChat(chatID)
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to fetch chats"
	}
	return chat, http.StatusOK, ""
}

// ListChats returns my conversations, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	me := c.GetString("username")

	rows, err := h.db.Query(`
		SELECT id, user_a, user_b, last_message, last_message_sender, is_read, updated_at
		FROM chats WHERE user_a = ? OR user_b = ?
		ORDER BY updated_at DESC
	`, me, me)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch chats")})
		return
	}
	defer rows.Close()

	chats := []*models.Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch chats")})
			return
		}
		chats = append(chats, chat)
	}
	rows.Close()

	for _, chat := range chats {
		chat.MutedBy = h.mutedBy(chat.ID)
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetMessages returns a conversation transcript, oldest first.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	me := c.GetString("username")
	chatID := c.Param("id")

	chat, err := h.loadChat(chatID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("chat not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch chats")})
		return
	}
	if !chat.HasParticipant(me) {
		c.JSON(http.StatusForbidden, gin.H{"error": __("not a participant")})
		return
	}

	rows, err := h.db.Query(`
		SELECT id, chat_id, sender, kind, text, image_url, audio_url, post_id,
			reply_to_id, reply_to_sender, reply_to_preview, is_forwarded, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC
	`, chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch messages")})
		return
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch messages")})
			return
		}
		messages = append(messages, msg)
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type MessageRequest struct {
	Kind        string  `json:"kind"`
	Text        string  `json:"text"`
	ImageURL    *string `json:"image_url"`
	AudioURL    *string `json:"audio_url"`
	PostID      *int    `json:"post_id"`
	ReplyTo     *int    `json:"reply_to"`
	IsForwarded bool    `json:"is_forwarded"`
}

// SendMessage appends a message to a conversation. The message row and the
// chat summary commit in one transaction; the live fan-out and push happen
// after the write is durable.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	me := c.GetString("username")
	chatID := c.Param("id")

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	chat, err := h.loadChat(chatID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("chat not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch chats")})
		return
	}
	if !chat.HasParticipant(me) {
		c.JSON(http.StatusForbidden, gin.H{"error": __("not a participant")})
		return
	}

	msg, status, errMsg := h.appendMessage(chat, me, req)
	if errMsg != "" {
		c.JSON(status, gin.H{"error": __(errMsg)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *ChatHandler) appendMessage(chat *models.Chat, sender string, req MessageRequest) (*models.Message, int, string) {
	if req.Kind == "" {
		req.Kind = models.MessageText
	}
	switch req.Kind {
	case models.MessageText:
		if req.Text == "" {
			return nil, http.StatusBadRequest, "message text required"
		}
	case models.MessageImage:
		if req.ImageURL == nil || *req.ImageURL == "" {
			return nil, http.StatusBadRequest, "invalid request"
		}
	case models.MessageAudio:
		if req.AudioURL == nil || *req.AudioURL == "" {
			return nil, http.StatusBadRequest, "invalid request"
		}
	case models.MessagePost:
		if req.PostID == nil {
			return nil, http.StatusBadRequest, "invalid request"
		}
		var exists bool
		h.db.QueryRow("SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)", *req.PostID).Scan(&exists)
		if !exists {
			return nil, http.StatusNotFound, "post not found"
		}
	default:
		return nil, http.StatusBadRequest, "invalid request"
	}

	var reply *models.ReplyRef
	if req.ReplyTo != nil {
		var targetChat, targetSender, targetText, targetKind string
		err := h.db.QueryRow(
			"SELECT chat_id, sender, text, kind FROM messages WHERE id = ?", *req.ReplyTo,
		).Scan(&targetChat, &targetSender, &targetText, &targetKind)
		if err == sql.ErrNoRows || (err == nil && targetChat != chat.ID) {
			return nil, http.StatusBadRequest, "reply target not in this chat"
		}
		if err != nil {
			return nil, http.StatusInternalServerError, "failed to fetch messages"
		}
		reply = &models.ReplyRef{
			MessageID: *req.ReplyTo,
			Sender:    targetSender,
			Preview:   messagePreview(targetKind, targetText),
		}
	}

	tx, err := h.db.Begin()
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to send message"
	}
	defer tx.Rollback()

	var replyID *int
	var replySender, replyPreview *string
	if reply != nil {
		replyID = &reply.MessageID
		replySender = &reply.Sender
		replyPreview = &reply.Preview
	}

	result, err := tx.Exec(`
		INSERT INTO messages (chat_id, sender, kind, text, image_url, audio_url, post_id,
			reply_to_id, reply_to_sender, reply_to_preview, is_forwarded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chat.ID, sender, req.Kind, req.Text, req.ImageURL, req.AudioURL, req.PostID,
		replyID, replySender, replyPreview, req.IsForwarded)
	if err == nil {
		_, err = tx.Exec(`
			UPDATE chats SET last_message = ?, last_message_sender = ?, is_read = 0, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, messagePreview(req.Kind, req.Text), sender, chat.ID)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to send message"
	}

	msgID, _ := result.LastInsertId()
	msg, err := h.loadMessage(int(msgID))
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to fetch messages"
	}

	h.fanOut(chat, msg)
	return msg, http.StatusOK, ""
}

func (h *ChatHandler) fanOut(chat *models.Chat, msg *models.Message) {
	other := chat.OtherParticipant(msg.Sender)

	if h.hub != nil {
		h.hub.NotifyMessage(chat.ID, chat.Participants, msg)
		summary, err := h.loadChat(chat.ID)
		if err == nil {
			summary.MutedBy = h.mutedBy(chat.ID)
			h.hub.NotifyChatUpdate(chat.ID, chat.Participants, summary)
		}
		pushBadge(h.db, h.hub, other)
	}

	h.notifier.SendNewMessageNotification(chat.ID, other, msg.Sender)
}

type ForwardRequest struct {
	Recipients []string `json:"recipients"`
	Kind       string   `json:"kind"`
	Text       string   `json:"text"`
	ImageURL   *string  `json:"image_url"`
	AudioURL   *string  `json:"audio_url"`
	PostID     *int     `json:"post_id"`
}

type ForwardOutcome struct {
	Recipient string `json:"recipient"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// Forward sends one payload to several recipients. Each recipient is an
// independent unit of work: the chat is created if missing, the message
// appended, and a per-recipient outcome recorded. One refusal or failure
// never aborts the rest.
func (h *ChatHandler) Forward(c *gin.Context) {
	me := c.GetString("username")

	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}
	if len(req.Recipients) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("recipients required")})
		return
	}
	if req.Kind == "" && req.Text == "" && req.PostID == nil && req.ImageURL == nil && req.AudioURL == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("nothing to forward")})
		return
	}

	outcomes := make([]ForwardOutcome, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		chat, _, errMsg := h.ensureChat(me, recipient)
		if errMsg != "" {
			outcomes = append(outcomes, ForwardOutcome{Recipient: recipient, Error: __(errMsg)})
			continue
		}

		_, _, errMsg = h.appendMessage(chat, me, MessageRequest{
			Kind:        req.Kind,
			Text:        req.Text,
			ImageURL:    req.ImageURL,
			AudioURL:    req.AudioURL,
			PostID:      req.PostID,
			IsForwarded: true,
		})
		if errMsg != "" {
			outcomes = append(outcomes, ForwardOutcome{Recipient: recipient, Error: __(errMsg)})
			continue
		}

		outcomes = append(outcomes, ForwardOutcome{Recipient: recipient, OK: true})
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

type BulkDeleteRequest struct {
	ChatIDs []string `json:"chat_ids" binding:"required"`
}

// BulkDelete removes whole conversations. Every child message becomes one
// queued delete, and the batch deleter commits them in bounded
// transactions; the chat row and mutes ride in the final batch, so a chat
// can never outlive its messages nor leave orphans behind. The response is
// sent only after every batch has committed.
func (h *ChatHandler) BulkDelete(c *gin.Context) {
	me := c.GetString("username")

	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	batch := db.NewBatch(h.db)
	deleted := []string{}

	for _, chatID := range req.ChatIDs {
		chat, err := h.loadChat(chatID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to delete chats")})
			return
		}
		if !chat.HasParticipant(me) {
			c.JSON(http.StatusForbidden, gin.H{"error": __("not a participant")})
			return
		}

		rows, err := h.db.Query("SELECT id FROM messages WHERE chat_id = ?", chatID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to delete chats")})
			return
		}
		for rows.Next() {
			var msgID int
			if err := rows.Scan(&msgID); err != nil {
				rows.Close()
				c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to delete chats")})
				return
			}
			batch.Add("DELETE FROM messages WHERE id = ?", msgID)
		}
		rows.Close()

		batch.Add("DELETE FROM chat_mutes WHERE chat_id = ?", chatID)
		batch.Add("DELETE FROM chats WHERE id = ?", chatID)
		deleted = append(deleted, chatID)
	}

	batches, err := batch.Commit()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to delete chats")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "batches": batches})
}

// ToggleMute flips my mute on a conversation. Muting only silences push
// notifications; messages still arrive.
func (h *ChatHandler) ToggleMute(c *gin.Context) {
	me := c.GetString("username")
	chatID := c.Param("id")

	chat, err := h.loadChat(chatID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("chat not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update chat")})
		return
	}
	if !chat.HasParticipant(me) {
		c.JSON(http.StatusForbidden, gin.H{"error": __("not a participant")})
		return
	}

	var muted bool
	h.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM chat_mutes WHERE chat_id = ? AND username = ?)",
		chatID, me,
	).Scan(&muted)

	if muted {
		_, err = h.db.Exec("DELETE FROM chat_mutes WHERE chat_id = ? AND username = ?", chatID, me)
	} else {
		_, err = h.db.Exec("INSERT INTO chat_mutes (chat_id, username) VALUES (?, ?)", chatID, me)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update chat")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"muted": !muted})
}

// MarkRead clears the unread flag when the recipient opens the
// conversation. The sender reading their own sent message changes nothing.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	me := c.GetString("username")
	chatID := c.Param("id")

	chat, err := h.loadChat(chatID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("chat not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update chat")})
		return
	}
	if !chat.HasParticipant(me) {
		c.JSON(http.StatusForbidden, gin.H{"error": __("not a participant")})
		return
	}

	_, err = h.db.Exec(
		"UPDATE chats SET is_read = 1 WHERE id = ? AND last_message_sender != ?",
		chatID, me,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to update chat")})
		return
	}

	pushBadge(h.db, h.hub, me)
	c.JSON(http.StatusOK, gin.H{"read": true})
}

// DeleteMessage removes a single message, sender only.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	me := c.GetString("username")

	msgID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	var sender string
	err = h.db.QueryRow("SELECT sender FROM messages WHERE id = ?", msgID).Scan(&sender)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": __("message not found")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to fetch messages")})
		return
	}
	if sender != me {
		c.JSON(http.StatusForbidden, gin.H{"error": __("can only delete own messages")})
		return
	}

	if _, err := h.db.Exec("DELETE FROM messages WHERE id = ?", msgID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to delete message")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Upload stores a chat attachment (photo or voice clip) and returns the URL
// to reference from a message.
func (h *ChatHandler) Upload(c *gin.Context) {
	me := c.GetString("username")
	kind := c.DefaultQuery("kind", models.MessageImage)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("file is required")})
		return
	}
	if file.Size > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("file too large")})
		return
	}

	contentType := file.Header.Get("Content-Type")
	var subdir string
	switch kind {
	case models.MessageImage:
		if !strings.HasPrefix(contentType, "image/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": __("file must be an image")})
			return
		}
		subdir = "images"
	case models.MessageAudio:
		if !strings.HasPrefix(contentType, "audio/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": __("file must be an audio clip")})
			return
		}
		subdir = "audio"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	dir := filepath.Join(h.storagePath, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save file")})
		return
	}

	name := fmt.Sprintf("%s_%d%s", me, time.Now().UnixNano(), filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, filepath.Join(dir, name)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save file")})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"url": "/api/files/" + subdir + "/" + name})
}

func (h *ChatHandler) loadChat(chatID string) (*models.Chat, error) {
	row := h.db.QueryRow(`
		SELECT id, user_a, user_b, last_message, last_message_sender, is_read, updated_at
		FROM chats WHERE id = ?
	`, chatID)
	return scanChat(row)
}

func (h *ChatHandler) loadMessage(msgID int) (*models.Message, error) {
	row := h.db.QueryRow(`
		SELECT id, chat_id, sender, kind, text, image_url, audio_url, post_id,
			reply_to_id, reply_to_sender, reply_to_preview, is_forwarded, created_at
		FROM messages WHERE id = ?
	`, msgID)
	return scanMessage(row)
}

func (h *ChatHandler) mutedBy(chatID string) []string {
	rows, err := h.db.Query("SELECT username FROM chat_mutes WHERE chat_id = ?", chatID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var muted []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return muted
		}
		muted = append(muted, name)
	}
	return muted
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChat(row rowScanner) (*models.Chat, error) {
	chat := &models.Chat{}
	var userA, userB string
	err := row.Scan(
		&chat.ID, &userA, &userB, &chat.LastMessage,
		&chat.LastMessageSender, &chat.IsRead, &chat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	chat.Participants = []string{userA, userB}
	return chat, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}
	var replyID sql.NullInt64
	var replySender, replyPreview sql.NullString
	err := row.Scan(
		&msg.ID, &msg.ChatID, &msg.Sender, &msg.Kind, &msg.Text,
		&msg.ImageURL, &msg.AudioURL, &msg.PostID,
		&replyID, &replySender, &replyPreview, &msg.IsForwarded, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if replyID.Valid {
		msg.ReplyTo = &models.ReplyRef{
			MessageID: int(replyID.Int64),
			Sender:    replySender.String,
			Preview:   replyPreview.String,
		}
	}
	return msg, nil
}

// messagePreview is the one-line summary shown in the chat list and in
// reply quotes.
func messagePreview(kind, text string) string {
	switch kind {
	case models.MessageImage:
		return "📷 फ़ोटो"
	case models.MessageAudio:
		return "🎤 वॉइस संदेश"
	case models.MessagePost:
		return "📝 शायरी"
	}
	if runes := []rune(text); len(runes) > 80 {
		return string(runes[:80])
	}
	return text
}
