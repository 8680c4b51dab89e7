package models

import "time"

// User carries the identity and the two symmetric relation sets. Follower
// bookkeeping keeps both sides updated together; the followers side is the
// authoritative one for reconciliation.
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Handle    string    `bson:"handle" json:"handle"`
	Avatar    string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Followers []string  `bson:"followers" json:"followers"`
	Following []string  `bson:"following" json:"following"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (u *User) Follows(userID string) bool {
	for _, id := range u.Following {
		if id == userID {
			return true
		}
	}
	return false
}
