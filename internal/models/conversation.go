package models

import "time"

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// LastMessage is the denormalized preview stored on a conversation so list
// views render without a per-row message query. It is a cache; the messages
// collection stays authoritative.
type LastMessage struct {
	MessageID string    `bson:"message_id" json:"message_id"`
	SenderID  string    `bson:"sender_id" json:"sender_id"`
	Content   string    `bson:"content" json:"content"`
	Kind      string    `bson:"kind" json:"kind"`
	SentAt    time.Time `bson:"sent_at" json:"sent_at"`
}

type Conversation struct {
	ID           string       `bson:"_id,omitempty" json:"id"`
	Kind         string       `bson:"kind" json:"kind"`
	Participants []string     `bson:"participants" json:"participants"`
	// PairKey is the sorted "<a>:<b>" of a direct conversation's two
	// participants. A unique index on it suppresses duplicate direct
	// conversations under concurrent creation.
	PairKey     string       `bson:"pair_key,omitempty" json:"-"`
	Name        string       `bson:"name,omitempty" json:"name,omitempty"`
	Avatar      string       `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Admins      []string     `bson:"admins,omitempty" json:"admins,omitempty"`
	LastMessage *LastMessage `bson:"last_message,omitempty" json:"last_message,omitempty"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}

func (c *Conversation) IsGroup() bool { return c.Kind == ConversationGroup }

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) IsAdmin(userID string) bool {
	for _, a := range c.Admins {
		if a == userID {
			return true
		}
	}
	return false
}

// PairKey builds the canonical key for a direct conversation between two
// users, independent of argument order.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
