package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/inspirecraft/realtime/internal/apperr"
	"github.com/inspirecraft/realtime/internal/events"
	"github.com/inspirecraft/realtime/internal/metrics"
	"github.com/inspirecraft/realtime/internal/models"
	"github.com/inspirecraft/realtime/internal/repository"
)

type LikeResult struct {
	Liked      bool     `json:"liked"`
	TotalLikes int      `json:"total_likes"`
	Likers     []string `json:"likes"`
}

type FollowResult struct {
	IsFollowing   bool `json:"is_following"`
	FollowerCount int  `json:"follower_count"`
}

// SocialService implements the like and follow toggles. The Like document
// and the followers set are the sources of truth; the denormalized arrays
// on content and the following set are caches repaired by the Reconciler.
type SocialService struct {
	likes   repository.LikeRepo
	content repository.ContentRepo
	users   repository.UserRepo
	events  EventSink
	log     *zap.SugaredLogger
}

func NewSocialService(likes repository.LikeRepo, content repository.ContentRepo, users repository.UserRepo, sink EventSink, log *zap.SugaredLogger) *SocialService {
	return &SocialService{likes: likes, content: content, users: users, events: sink, log: log}
}

// ToggleLike flips the liked state for (userID, targetType, targetID). The
// branch condition is the Like document's existence, never a counter, so
// retries and concurrent double-toggles cannot double-count.
func (s *SocialService) ToggleLike(ctx context.Context, userID, targetType, targetID string) (*LikeResult, error) {
	if !models.ValidTarget(targetType) {
		return nil, apperr.Validation("unknown target type %q", targetType)
	}
	if targetID == "" {
		return nil, apperr.Validation("target id required")
	}

	existing, err := s.likes.Find(ctx, userID, targetType, targetID)
	switch {
	case err == nil:
		if err := s.likes.Delete(ctx, existing.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			metrics.ToggleOps.WithLabelValues("like", "error").Inc()
			return nil, apperr.Upstream(err)
		}
		if err := s.content.RemoveLikeRef(ctx, targetType, targetID, existing.ID); err != nil {
			// like doc already gone; the cache heals on reconcile
			metrics.ToggleOps.WithLabelValues("like", "partial").Inc()
			s.log.Warnw("like cache update", "target", targetID, "err", err)
			return nil, apperr.Upstream(err)
		}
		metrics.ToggleOps.WithLabelValues("like", "unliked").Inc()
		res, err := s.likeResult(ctx, targetType, targetID, false)
		if err != nil {
			return nil, err
		}
		s.emitLike(ctx, userID, targetType, targetID, false)
		return res, nil

	case errors.Is(err, repository.ErrNotFound):
		like := &models.Like{UserID: userID, TargetType: targetType, TargetID: targetID}
		if err := s.likes.Insert(ctx, like); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// a concurrent toggle won the insert; adopt its document
				if existing, ferr := s.likes.Find(ctx, userID, targetType, targetID); ferr == nil {
					like = existing
				}
			} else {
				metrics.ToggleOps.WithLabelValues("like", "error").Inc()
				return nil, apperr.Upstream(err)
			}
		}
		if err := s.content.AddLikeRef(ctx, targetType, targetID, like.ID); err != nil {
			metrics.ToggleOps.WithLabelValues("like", "partial").Inc()
			s.log.Warnw("like cache update", "target", targetID, "err", err)
			return nil, apperr.Upstream(err)
		}
		metrics.ToggleOps.WithLabelValues("like", "liked").Inc()
		res, err := s.likeResult(ctx, targetType, targetID, true)
		if err != nil {
			return nil, err
		}
		s.emitLike(ctx, userID, targetType, targetID, true)
		return res, nil

	default:
		metrics.ToggleOps.WithLabelValues("like", "error").Inc()
		return nil, apperr.Upstream(err)
	}
}

// ToggleFollow flips whether actorID follows targetID, keeping both users'
// sets in step. The target's followers set is the branch condition and the
// authoritative side.
func (s *SocialService) ToggleFollow(ctx context.Context, actorID, targetID string) (*FollowResult, error) {
	if actorID == targetID {
		return nil, apperr.Validation("cannot follow yourself")
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("user %s", targetID)
		}
		return nil, apperr.Upstream(err)
	}

	following := false
	for _, f := range target.Followers {
		if f == actorID {
			following = true
			break
		}
	}

	if following {
		if err := s.users.RemoveFollower(ctx, targetID, actorID); err != nil {
			metrics.ToggleOps.WithLabelValues("follow", "error").Inc()
			return nil, apperr.Upstream(err)
		}
		if err := s.users.RemoveFollowing(ctx, actorID, targetID); err != nil {
			metrics.ToggleOps.WithLabelValues("follow", "partial").Inc()
			s.log.Warnw("follow bookkeeping", "actor", actorID, "err", err)
			return nil, apperr.Upstream(err)
		}
		metrics.ToggleOps.WithLabelValues("follow", "unfollowed").Inc()
	} else {
		if err := s.users.AddFollower(ctx, targetID, actorID); err != nil {
			metrics.ToggleOps.WithLabelValues("follow", "error").Inc()
			return nil, apperr.Upstream(err)
		}
		if err := s.users.AddFollowing(ctx, actorID, targetID); err != nil {
			metrics.ToggleOps.WithLabelValues("follow", "partial").Inc()
			s.log.Warnw("follow bookkeeping", "actor", actorID, "err", err)
			return nil, apperr.Upstream(err)
		}
		metrics.ToggleOps.WithLabelValues("follow", "followed").Inc()
	}

	target, err = s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, events.TypeFollowToggled, map[string]any{
			"actor_id":  actorID,
			"target_id": targetID,
			"following": !following,
		})
	}
	return &FollowResult{IsFollowing: !following, FollowerCount: len(target.Followers)}, nil
}

// likeResult recomputes liked-state facts from the likes collection, not
// from the denormalized cache.
func (s *SocialService) likeResult(ctx context.Context, targetType, targetID string, liked bool) (*LikeResult, error) {
	all, err := s.likes.ListByTarget(ctx, targetType, targetID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	likers := make([]string, 0, len(all))
	for _, l := range all {
		likers = append(likers, l.UserID)
	}
	return &LikeResult{Liked: liked, TotalLikes: len(all), Likers: likers}, nil
}

func (s *SocialService) emitLike(ctx context.Context, userID, targetType, targetID string, liked bool) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, events.TypeLikeToggled, map[string]any{
		"user_id":     userID,
		"target_type": targetType,
		"target_id":   targetID,
		"liked":       liked,
	})
}
