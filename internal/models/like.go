package models

import "time"

const (
	TargetPost     = "post"
	TargetTutorial = "tutorial"
	TargetArtwork  = "artwork"
)

// Like is a join document: its existence is the liked state. At most one
// exists per (user, target_type, target_id), enforced by a unique index.
type Like struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	TargetType string    `bson:"target_type" json:"target_type"`
	TargetID   string    `bson:"target_id" json:"target_id"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// ValidTarget reports whether t is a likeable content type.
func ValidTarget(t string) bool {
	switch t {
	case TargetPost, TargetTutorial, TargetArtwork:
		return true
	}
	return false
}
