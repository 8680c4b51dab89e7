package models

import "time"

const (
	MessageText   = "text"
	MessageImage  = "image"
	MessageVideo  = "video"
	MessageVoice  = "voice"
	MessageEmoji  = "emoji"
	MessageShared = "shared"
)

// Reaction is one user's emoji on a message, unique per (user, emoji).
type Reaction struct {
	UserID string `bson:"user_id" json:"user_id"`
	Emoji  string `bson:"emoji" json:"emoji"`
}

// Media describes an attachment on image/video/voice messages.
type Media struct {
	URL         string  `bson:"url" json:"url"`
	ContentType string  `bson:"content_type,omitempty" json:"content_type,omitempty"`
	AspectRatio float64 `bson:"aspect_ratio,omitempty" json:"aspect_ratio,omitempty"`
	DurationSec float64 `bson:"duration_sec,omitempty" json:"duration_sec,omitempty"`
}

// SharedContent is a snapshot of an external content item captured at share
// time, so the preview survives later edits or deletion of the original.
type SharedContent struct {
	ContentType string `bson:"content_type" json:"content_type"`
	ContentID   string `bson:"content_id" json:"content_id"`
	Title       string `bson:"title,omitempty" json:"title,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	MediaURL    string `bson:"media_url,omitempty" json:"media_url,omitempty"`
	AuthorID    string `bson:"author_id,omitempty" json:"author_id,omitempty"`
}

type Message struct {
	ID             string         `bson:"_id,omitempty" json:"id"`
	ConversationID string         `bson:"conversation_id" json:"conversation_id"`
	SenderID       string         `bson:"sender_id" json:"sender_id"`
	Kind           string         `bson:"kind" json:"kind"`
	Content        string         `bson:"content" json:"content"`
	Media          *Media         `bson:"media,omitempty" json:"media,omitempty"`
	SharedContent  *SharedContent `bson:"shared_content,omitempty" json:"shared_content,omitempty"`
	ReplyTo        string         `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	Reactions      []Reaction     `bson:"reactions" json:"reactions"`
	SeenBy         []string       `bson:"seen_by" json:"seen_by"`
	DeliveredTo    []string       `bson:"delivered_to" json:"delivered_to"`
	IsUnsent       bool           `bson:"is_unsent" json:"is_unsent"`
	Edited         bool           `bson:"edited" json:"edited"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
}

// ValidKind reports whether k is one of the supported message kinds.
func ValidKind(k string) bool {
	switch k {
	case MessageText, MessageImage, MessageVideo, MessageVoice, MessageEmoji, MessageShared:
		return true
	}
	return false
}

func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

func (m *Message) SeenByUser(userID string) bool {
	for _, u := range m.SeenBy {
		if u == userID {
			return true
		}
	}
	return false
}

// Preview converts the message into a conversation last-message snapshot.
func (m *Message) Preview() *LastMessage {
	return &LastMessage{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Kind:      m.Kind,
		SentAt:    m.CreatedAt,
	}
}
