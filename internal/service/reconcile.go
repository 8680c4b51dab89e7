package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/inspirecraft/realtime/internal/apperr"
	"github.com/inspirecraft/realtime/internal/repository"
)

// Reconciler is the correctness backstop for the two-document toggle
// writes: it recomputes each denormalized cache from its source of truth.
// Run it periodically and after any toggle that reported Upstream.
type Reconciler struct {
	likes   repository.LikeRepo
	content repository.ContentRepo
	users   repository.UserRepo
	log     *zap.SugaredLogger
}

func NewReconciler(likes repository.LikeRepo, content repository.ContentRepo, users repository.UserRepo, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{likes: likes, content: content, users: users, log: log}
}

// ReconcileLikes rebuilds the target's like-id array from the Like
// documents, which are authoritative.
func (r *Reconciler) ReconcileLikes(ctx context.Context, targetType, targetID string) error {
	all, err := r.likes.ListByTarget(ctx, targetType, targetID)
	if err != nil {
		return apperr.Upstream(err)
	}
	ids := make([]string, 0, len(all))
	for _, l := range all {
		ids = append(ids, l.ID)
	}
	sort.Strings(ids)
	if err := r.content.SetLikeRefs(ctx, targetType, targetID, ids); err != nil {
		return apperr.Upstream(err)
	}
	r.log.Infow("likes reconciled", "target_type", targetType, "target", targetID, "count", len(ids))
	return nil
}

// ReconcileFollows rebuilds a user's following set from the authoritative
// followers sides.
func (r *Reconciler) ReconcileFollows(ctx context.Context, userID string) error {
	following, err := r.users.FollowedBy(ctx, userID)
	if err != nil {
		return apperr.Upstream(err)
	}
	sort.Strings(following)
	if err := r.users.SetFollowing(ctx, userID, following); err != nil {
		return apperr.Upstream(err)
	}
	r.log.Infow("follows reconciled", "user", userID, "count", len(following))
	return nil
}
