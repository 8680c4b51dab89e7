package repository

import (
	"context"
	"errors"
	"time"

	"github.com/inspirecraft/realtime/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique index rejects an insert.
	ErrDuplicate = errors.New("duplicate")
)

type ConversationRepo interface {
	// GetOrCreateDirect returns the direct conversation for the unordered
	// pair {a, b}, creating it when absent. Safe under concurrent calls:
	// both callers observe the same stored conversation. The second result
	// reports whether this call created it.
	GetOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, bool, error)
	CreateGroup(ctx context.Context, conv *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	// ListForUser returns conversations containing userID, newest update first.
	ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error)
	TouchLastMessage(ctx context.Context, convID string, snap *models.LastMessage) error
	// ClearLastMessage drops the preview only if it still references messageID.
	ClearLastMessage(ctx context.Context, convID, messageID string) error
	AddParticipant(ctx context.Context, convID, userID string) error
	RemoveParticipant(ctx context.Context, convID, userID string) error
	Rename(ctx context.Context, convID, name string) error
}

type MessageRepo interface {
	Insert(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListByConversation returns non-unsent messages ascending by timestamp.
	// limit <= 0 means no limit; a non-zero before restricts to older messages.
	ListByConversation(ctx context.Context, convID string, limit int64, before time.Time) ([]*models.Message, error)
	// LastVisible returns the newest non-unsent message, or ErrNotFound.
	LastVisible(ctx context.Context, convID string) (*models.Message, error)
	// ToggleReaction atomically removes the (user, emoji) reaction if present,
	// otherwise adds it, and returns the updated message.
	ToggleReaction(ctx context.Context, msgID, userID, emoji string) (*models.Message, error)
	AddSeen(ctx context.Context, msgID, userID string) (*models.Message, error)
	AddDelivered(ctx context.Context, msgID, userID string) error
	MarkUnsent(ctx context.Context, msgID string) error
}

type LikeRepo interface {
	Find(ctx context.Context, userID, targetType, targetID string) (*models.Like, error)
	// Insert returns ErrDuplicate when a like for the same key already exists.
	Insert(ctx context.Context, like *models.Like) error
	Delete(ctx context.Context, id string) error
	ListByTarget(ctx context.Context, targetType, targetID string) ([]*models.Like, error)
}

// ContentRepo maintains the denormalized like-id arrays on post/tutorial/
// artwork documents. These arrays are caches over the likes collection.
type ContentRepo interface {
	AddLikeRef(ctx context.Context, targetType, targetID, likeID string) error
	RemoveLikeRef(ctx context.Context, targetType, targetID, likeID string) error
	SetLikeRefs(ctx context.Context, targetType, targetID string, likeIDs []string) error
}

type UserRepo interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	AddFollower(ctx context.Context, userID, followerID string) error
	RemoveFollower(ctx context.Context, userID, followerID string) error
	AddFollowing(ctx context.Context, userID, followedID string) error
	RemoveFollowing(ctx context.Context, userID, followedID string) error
	// FollowedBy lists the ids of users whose followers set contains userID.
	// It is the authoritative read used to rebuild a following set.
	FollowedBy(ctx context.Context, userID string) ([]string, error)
	SetFollowing(ctx context.Context, userID string, following []string) error
}
