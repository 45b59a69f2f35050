package models

import "time"

type User struct {
	ID        int       `json:"id"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username"`
	FullName  *string   `json:"full_name,omitempty"`
	Bio       *string   `json:"bio,omitempty"`
	PhotoURL  *string   `json:"photo_url,omitempty"`
	IsPrivate bool      `json:"is_private"`
	IsOnline  bool      `json:"is_online"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID           int       `json:"id"`
	Author       string    `json:"author"`
	Content      string    `json:"content"`
	Caption      string    `json:"caption,omitempty"`
	BgColor      string    `json:"bg_color,omitempty"`
	TextColor    string    `json:"text_color,omitempty"`
	Likes        int       `json:"likes"`
	LikedBy      []string  `json:"liked_by"`
	CommentCount int       `json:"comment_count"`
	IsEdited     bool      `json:"is_edited,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Comment struct {
	ID          int       `json:"id"`
	PostID      int       `json:"post_id"`
	Username    string    `json:"username"`
	Text        string    `json:"text"`
	ReplyTo     *int      `json:"reply_to,omitempty"`
	ReplyToUser *string   `json:"reply_to_user,omitempty"`
	Likes       int       `json:"likes"`
	LikedBy     []string  `json:"liked_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message kinds. A message carries exactly one of text, image, audio, or a
// shared post reference.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageAudio = "audio"
	MessagePost  = "post"
)

type Chat struct {
	ID                string    `json:"id"`
	Participants      []string  `json:"participants"`
	LastMessage       string    `json:"last_message"`
	LastMessageSender string    `json:"last_message_sender"`
	IsRead            bool      `json:"is_read"`
	MutedBy           []string  `json:"muted_by,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasParticipant reports whether the user is one of the chat's two sides.
func (c *Chat) HasParticipant(username string) bool {
	for _, p := range c.Participants {
		if p == username {
			return true
		}
	}
	return false
}

// OtherParticipant returns the side that isn't the given user.
func (c *Chat) OtherParticipant(username string) string {
	for _, p := range c.Participants {
		if p != username {
			return p
		}
	}
	return ""
}

type ReplyRef struct {
	MessageID int    `json:"message_id"`
	Sender    string `json:"sender"`
	Preview   string `json:"preview"`
}

type Message struct {
	ID          int       `json:"id"`
	ChatID      string    `json:"chat_id"`
	Sender      string    `json:"sender"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	AudioURL    *string   `json:"audio_url,omitempty"`
	PostID      *int      `json:"post_id,omitempty"`
	ReplyTo     *ReplyRef `json:"reply_to,omitempty"`
	IsForwarded bool      `json:"is_forwarded,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification types mirror the actions that emit them.
const (
	NotifyLike        = "like"
	NotifyComment     = "comment"
	NotifyFollow      = "follow"
	NotifyCommentLike = "comment_like"
)

type Notification struct {
	ID        int       `json:"id"`
	ToUser    string    `json:"to_user"`
	FromUser  string    `json:"from_user"`
	Type      string    `json:"type"`
	PostID    *int      `json:"post_id,omitempty"`
	Text      *string   `json:"text,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// ViewState is the navigation restart-cache persisted per user so a reload
// lands on the same screen.
type ViewState struct {
	View    string  `json:"view"`
	Profile *string `json:"profile,omitempty"`
	ChatID  *string `json:"chat_id,omitempty"`
	PostID  *int    `json:"post_id,omitempty"`
}
