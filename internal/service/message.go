package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/inspirecraft/realtime/internal/apperr"
	"github.com/inspirecraft/realtime/internal/events"
	"github.com/inspirecraft/realtime/internal/metrics"
	"github.com/inspirecraft/realtime/internal/models"
	"github.com/inspirecraft/realtime/internal/repository"
	"github.com/inspirecraft/realtime/internal/ws"
)

// SendRequest is the canonical message-creation request. The REST boundary
// decodes both JSON bodies and multipart forms into this one shape.
type SendRequest struct {
	ConversationID string
	SenderID       string
	Kind           string
	Content        string
	Media          *models.Media
	SharedContent  *models.SharedContent
	ReplyTo        string
}

type MessageService struct {
	msgs   repository.MessageRepo
	convs  repository.ConversationRepo
	bus    Broadcaster
	events EventSink
	log    *zap.SugaredLogger
}

func NewMessageService(msgs repository.MessageRepo, convs repository.ConversationRepo, bus Broadcaster, sink EventSink, log *zap.SugaredLogger) *MessageService {
	return &MessageService{msgs: msgs, convs: convs, bus: bus, events: sink, log: log}
}

// Send validates, persists, updates the conversation preview and only then
// fans the message out. Broadcast never precedes the acknowledged write.
func (s *MessageService) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	if err := validateSend(&req); err != nil {
		return nil, err
	}
	conv, err := s.participantConversation(ctx, req.ConversationID, req.SenderID)
	if err != nil {
		return nil, err
	}

	m := &models.Message{
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Kind:           req.Kind,
		Content:        req.Content,
		Media:          req.Media,
		SharedContent:  req.SharedContent,
		ReplyTo:        req.ReplyTo,
		Reactions:      []models.Reaction{},
		SeenBy:         []string{req.SenderID},
		DeliveredTo:    []string{},
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.msgs.Insert(ctx, m); err != nil {
		return nil, apperr.Upstream(err)
	}
	if err := s.convs.TouchLastMessage(ctx, conv.ID, m.Preview()); err != nil {
		// message is durable; preview divergence heals on the next send
		s.log.Warnw("touch last message", "conversation", conv.ID, "err", err)
	}

	metrics.MessagesSent.Inc()
	if s.bus != nil {
		s.bus.Publish(ws.ConversationTopic(conv.ID), ws.EventNewMessage, m)
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, events.TypeMessageSent, m)
	}
	return m, nil
}

// History returns the conversation's non-unsent messages in ascending
// timestamp order. Only participants may read; others get NotFound.
func (s *MessageService) History(ctx context.Context, convID, callerID string, limit int64, before time.Time) ([]*models.Message, error) {
	if _, err := s.participantConversation(ctx, convID, callerID); err != nil {
		return nil, err
	}
	msgs, err := s.msgs.ListByConversation(ctx, convID, limit, before)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return msgs, nil
}

// ToggleReaction removes the caller's (emoji) reaction when present,
// otherwise adds it. An odd number of calls leaves exactly one reaction.
func (s *MessageService) ToggleReaction(ctx context.Context, msgID, callerID, emoji string) (*models.Message, error) {
	if emoji == "" {
		return nil, apperr.Validation("emoji required")
	}
	m, err := s.visibleMessage(ctx, msgID, callerID)
	if err != nil {
		return nil, err
	}
	updated, err := s.msgs.ToggleReaction(ctx, m.ID, callerID, emoji)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("message %s", msgID)
		}
		return nil, apperr.Upstream(err)
	}
	if s.bus != nil {
		s.bus.Publish(ws.ConversationTopic(updated.ConversationID), ws.EventMessageReaction, updated)
	}
	return updated, nil
}

// MarkSeen idempotently records callerID in the message's seen set.
func (s *MessageService) MarkSeen(ctx context.Context, msgID, callerID string) (*models.Message, error) {
	m, err := s.visibleMessage(ctx, msgID, callerID)
	if err != nil {
		return nil, err
	}
	updated, err := s.msgs.AddSeen(ctx, m.ID, callerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("message %s", msgID)
		}
		return nil, apperr.Upstream(err)
	}
	if s.bus != nil {
		s.bus.Publish(ws.ConversationTopic(updated.ConversationID), ws.EventMessageSeen, map[string]string{
			"message_id": updated.ID,
			"user_id":    callerID,
		})
	}
	return updated, nil
}

// MarkDelivered records transport-level delivery for callerID.
func (s *MessageService) MarkDelivered(ctx context.Context, msgID, callerID string) error {
	m, err := s.visibleMessage(ctx, msgID, callerID)
	if err != nil {
		return err
	}
	if err := s.msgs.AddDelivered(ctx, m.ID, callerID); err != nil {
		return apperr.Upstream(err)
	}
	return nil
}

// Unsend soft-deletes the caller's own message: it disappears from
// retrieval but remains stored. The conversation preview is recomputed when
// it pointed at the unsent message.
func (s *MessageService) Unsend(ctx context.Context, msgID, callerID string) error {
	m, err := s.visibleMessage(ctx, msgID, callerID)
	if err != nil {
		return err
	}
	if m.SenderID != callerID {
		return apperr.ErrForbidden
	}
	if err := s.msgs.MarkUnsent(ctx, m.ID); err != nil {
		return apperr.Upstream(err)
	}

	conv, err := s.convs.GetByID(ctx, m.ConversationID)
	if err == nil && conv.LastMessage != nil && conv.LastMessage.MessageID == m.ID {
		latest, lerr := s.msgs.LastVisible(ctx, conv.ID)
		switch {
		case lerr == nil:
			_ = s.convs.TouchLastMessage(ctx, conv.ID, latest.Preview())
		case errors.Is(lerr, repository.ErrNotFound):
			_ = s.convs.ClearLastMessage(ctx, conv.ID, m.ID)
		}
	}

	if s.bus != nil {
		s.bus.Publish(ws.ConversationTopic(m.ConversationID), ws.EventMessageUnsent, map[string]string{
			"message_id":      m.ID,
			"conversation_id": m.ConversationID,
		})
	}
	return nil
}

func (s *MessageService) participantConversation(ctx context.Context, convID, userID string) (*models.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("conversation %s", convID)
		}
		return nil, apperr.Upstream(err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.NotFoundf("conversation %s", convID)
	}
	return conv, nil
}

// visibleMessage loads a message the caller is entitled to see: they must
// participate in its conversation and the message must not be unsent.
func (s *MessageService) visibleMessage(ctx context.Context, msgID, callerID string) (*models.Message, error) {
	m, err := s.msgs.GetByID(ctx, msgID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("message %s", msgID)
		}
		return nil, apperr.Upstream(err)
	}
	if m.IsUnsent {
		return nil, apperr.NotFoundf("message %s", msgID)
	}
	if _, err := s.participantConversation(ctx, m.ConversationID, callerID); err != nil {
		return nil, apperr.NotFoundf("message %s", msgID)
	}
	return m, nil
}

func validateSend(req *SendRequest) error {
	if req.ConversationID == "" {
		return apperr.Validation("conversation_id required")
	}
	if req.SenderID == "" {
		return apperr.Validation("sender required")
	}
	if req.Kind == "" {
		req.Kind = models.MessageText
	}
	if !models.ValidKind(req.Kind) {
		return apperr.Validation("unknown message kind %q", req.Kind)
	}
	switch req.Kind {
	case models.MessageText, models.MessageEmoji:
		if req.Content == "" {
			return apperr.Validation("content required")
		}
	case models.MessageImage, models.MessageVideo, models.MessageVoice:
		if req.Media == nil || req.Media.URL == "" {
			return apperr.Validation("media required for %s messages", req.Kind)
		}
	case models.MessageShared:
		if req.SharedContent == nil || req.SharedContent.ContentID == "" {
			return apperr.Validation("shared content required")
		}
	}
	return nil
}
