package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inspirecraft/realtime/internal/models"
	"github.com/inspirecraft/realtime/internal/repository"
)

type likeKey struct {
	userID     string
	targetType string
	targetID   string
}

type LikeRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.Like
	byKey map[likeKey]string
}

func NewLikeRepo() *LikeRepo {
	return &LikeRepo{
		byID:  make(map[string]*models.Like),
		byKey: make(map[likeKey]string),
	}
}

func (r *LikeRepo) Find(ctx context.Context, userID, targetType, targetID string) (*models.Like, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[likeKey{userID, targetType, targetID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	l := *r.byID[id]
	return &l, nil
}

func (r *LikeRepo) Insert(ctx context.Context, like *models.Like) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := likeKey{like.UserID, like.TargetType, like.TargetID}
	if _, exists := r.byKey[key]; exists {
		return repository.ErrDuplicate
	}
	if like.ID == "" {
		like.ID = uuid.NewString()
	}
	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now().UTC()
	}
	l := *like
	r.byID[l.ID] = &l
	r.byKey[key] = l.ID
	return nil
}

func (r *LikeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byKey, likeKey{l.UserID, l.TargetType, l.TargetID})
	return nil
}

func (r *LikeRepo) ListByTarget(ctx context.Context, targetType, targetID string) ([]*models.Like, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Like{}
	for _, l := range r.byID {
		if l.TargetType == targetType && l.TargetID == targetID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

type contentKey struct {
	targetType string
	targetID   string
}

type ContentRepo struct {
	mu    sync.Mutex
	likes map[contentKey][]string
}

func NewContentRepo() *ContentRepo {
	return &ContentRepo{likes: make(map[contentKey][]string)}
}

func (r *ContentRepo) AddLikeRef(ctx context.Context, targetType, targetID, likeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := contentKey{targetType, targetID}
	for _, id := range r.likes[key] {
		if id == likeID {
			return nil
		}
	}
	r.likes[key] = append(r.likes[key], likeID)
	return nil
}

func (r *ContentRepo) RemoveLikeRef(ctx context.Context, targetType, targetID, likeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := contentKey{targetType, targetID}
	r.likes[key] = remove(r.likes[key], likeID)
	return nil
}

func (r *ContentRepo) SetLikeRefs(ctx context.Context, targetType, targetID string, likeIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.likes[contentKey{targetType, targetID}] = append([]string(nil), likeIDs...)
	return nil
}

// LikeRefs is a test hook exposing the cached array.
func (r *ContentRepo) LikeRefs(targetType, targetID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.likes[contentKey{targetType, targetID}]...)
}

type UserRepo struct {
	mu   sync.Mutex
	byID map[string]*models.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{byID: make(map[string]*models.User)}
}

// Put seeds a user; used by dev mode and tests.
func (r *UserRepo) Put(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	cp.Followers = append([]string(nil), u.Followers...)
	cp.Following = append([]string(nil), u.Following...)
	r.byID[cp.ID] = &cp
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	cp.Followers = append([]string(nil), u.Followers...)
	cp.Following = append([]string(nil), u.Following...)
	return &cp, nil
}

func (r *UserRepo) AddFollower(ctx context.Context, userID, followerID string) error {
	return r.update(userID, func(u *models.User) {
		u.Followers = addUnique(u.Followers, followerID)
	})
}

func (r *UserRepo) RemoveFollower(ctx context.Context, userID, followerID string) error {
	return r.update(userID, func(u *models.User) {
		u.Followers = remove(u.Followers, followerID)
	})
}

func (r *UserRepo) AddFollowing(ctx context.Context, userID, followedID string) error {
	return r.update(userID, func(u *models.User) {
		u.Following = addUnique(u.Following, followedID)
	})
}

func (r *UserRepo) RemoveFollowing(ctx context.Context, userID, followedID string) error {
	return r.update(userID, func(u *models.User) {
		u.Following = remove(u.Following, followedID)
	})
}

func (r *UserRepo) FollowedBy(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, u := range r.byID {
		for _, f := range u.Followers {
			if f == userID {
				out = append(out, u.ID)
				break
			}
		}
	}
	return out, nil
}

func (r *UserRepo) SetFollowing(ctx context.Context, userID string, following []string) error {
	return r.update(userID, func(u *models.User) {
		u.Following = append([]string(nil), following...)
	})
}

func (r *UserRepo) update(userID string, fn func(*models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

func addUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
