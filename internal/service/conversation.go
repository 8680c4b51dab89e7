package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/inspirecraft/realtime/internal/apperr"
	"github.com/inspirecraft/realtime/internal/models"
	"github.com/inspirecraft/realtime/internal/repository"
)

// ConversationView is a conversation annotated for list rendering with its
// most recent non-unsent message, resolved by a per-conversation lookup.
type ConversationView struct {
	*models.Conversation
	Latest *models.Message `json:"latest_message,omitempty"`
}

type ConversationService struct {
	convs repository.ConversationRepo
	msgs  repository.MessageRepo
	log   *zap.SugaredLogger
}

func NewConversationService(convs repository.ConversationRepo, msgs repository.MessageRepo, log *zap.SugaredLogger) *ConversationService {
	return &ConversationService{convs: convs, msgs: msgs, log: log}
}

func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]*ConversationView, error) {
	convs, err := s.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	out := make([]*ConversationView, 0, len(convs))
	for _, c := range convs {
		view := &ConversationView{Conversation: c}
		latest, err := s.msgs.LastVisible(ctx, c.ID)
		switch {
		case err == nil:
			view.Latest = latest
		case errors.Is(err, repository.ErrNotFound):
			// empty conversation
		default:
			return nil, apperr.Upstream(err)
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *ConversationService) GetOrCreateDirect(ctx context.Context, callerID, otherID string) (*models.Conversation, error) {
	if otherID == "" {
		return nil, apperr.Validation("participant required")
	}
	if otherID == callerID {
		return nil, apperr.Validation("cannot start a conversation with yourself")
	}
	conv, created, err := s.convs.GetOrCreateDirect(ctx, callerID, otherID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	if created {
		s.log.Infow("direct conversation created", "conversation", conv.ID)
	}
	return conv, nil
}

func (s *ConversationService) CreateGroup(ctx context.Context, creatorID string, participantIDs []string, name, avatar string) (*models.Conversation, error) {
	others := dedupe(participantIDs, creatorID)
	if len(others) < 2 {
		return nil, apperr.Validation("a group needs at least 2 other participants")
	}
	if name == "" {
		return nil, apperr.Validation("group name required")
	}
	conv := &models.Conversation{
		Kind:         models.ConversationGroup,
		Participants: append([]string{creatorID}, others...),
		Name:         name,
		Avatar:       avatar,
		Admins:       []string{creatorID},
	}
	if err := s.convs.CreateGroup(ctx, conv); err != nil {
		return nil, apperr.Upstream(err)
	}
	return conv, nil
}

// Get returns the conversation when the caller participates in it.
// Non-participants get NotFound so existence does not leak.
func (s *ConversationService) Get(ctx context.Context, convID, callerID string) (*models.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("conversation %s", convID)
		}
		return nil, apperr.Upstream(err)
	}
	if !conv.HasParticipant(callerID) {
		return nil, apperr.NotFoundf("conversation %s", convID)
	}
	return conv, nil
}

// IsParticipant backs the fan-out layer's join check.
func (s *ConversationService) IsParticipant(ctx context.Context, convID, userID string) (bool, error) {
	conv, err := s.convs.GetByID(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

func (s *ConversationService) Rename(ctx context.Context, convID, callerID, name string) (*models.Conversation, error) {
	if name == "" {
		return nil, apperr.Validation("name required")
	}
	conv, err := s.Get(ctx, convID, callerID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup() {
		return nil, apperr.Validation("direct conversations cannot be renamed")
	}
	if !conv.IsAdmin(callerID) {
		return nil, apperr.ErrForbidden
	}
	if err := s.convs.Rename(ctx, convID, name); err != nil {
		return nil, apperr.Upstream(err)
	}
	conv.Name = name
	return conv, nil
}

func (s *ConversationService) AddParticipant(ctx context.Context, convID, callerID, userID string) error {
	conv, err := s.Get(ctx, convID, callerID)
	if err != nil {
		return err
	}
	if !conv.IsGroup() {
		return apperr.Validation("cannot add participants to a direct conversation")
	}
	if !conv.IsAdmin(callerID) {
		return apperr.ErrForbidden
	}
	if err := s.convs.AddParticipant(ctx, convID, userID); err != nil {
		return apperr.Upstream(err)
	}
	return nil
}

// RemoveParticipant removes userID. Any participant may remove themselves
// (leave); removing someone else requires admin. Groups never shrink below
// three members.
func (s *ConversationService) RemoveParticipant(ctx context.Context, convID, callerID, userID string) error {
	conv, err := s.Get(ctx, convID, callerID)
	if err != nil {
		return err
	}
	if !conv.IsGroup() {
		return apperr.Validation("cannot leave a direct conversation")
	}
	if callerID != userID && !conv.IsAdmin(callerID) {
		return apperr.ErrForbidden
	}
	if !conv.HasParticipant(userID) {
		return apperr.NotFoundf("participant %s", userID)
	}
	if len(conv.Participants) <= 3 {
		return apperr.Validation("a group needs at least 3 participants")
	}
	if err := s.convs.RemoveParticipant(ctx, convID, userID); err != nil {
		return apperr.Upstream(err)
	}
	return nil
}

func dedupe(ids []string, exclude string) []string {
	seen := map[string]struct{}{exclude: {}}
	out := []string{}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
