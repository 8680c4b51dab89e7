// Package memory holds in-memory implementations of the repository
// interfaces. They back the dev "store: memory" mode and the test suite;
// semantics mirror the mongo implementations, including duplicate-key
// behavior and atomic array toggles.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inspirecraft/realtime/internal/models"
	"github.com/inspirecraft/realtime/internal/repository"
)

type ConversationRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.Conversation
	pairs map[string]string // pair_key -> conversation id
}

func NewConversationRepo() *ConversationRepo {
	return &ConversationRepo{
		byID:  make(map[string]*models.Conversation),
		pairs: make(map[string]string),
	}
}

func (r *ConversationRepo) GetOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := models.PairKey(a, b)
	if id, ok := r.pairs[key]; ok {
		return cloneConv(r.byID[id]), false, nil
	}
	now := time.Now().UTC()
	participants := []string{a, b}
	if b < a {
		participants = []string{b, a}
	}
	c := &models.Conversation{
		ID:           uuid.NewString(),
		Kind:         models.ConversationDirect,
		Participants: participants,
		PairKey:      key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[c.ID] = c
	r.pairs[key] = c.ID
	return cloneConv(c), true, nil
}

func (r *ConversationRepo) CreateGroup(ctx context.Context, conv *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	r.byID[conv.ID] = cloneConv(conv)
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneConv(c), nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Conversation{}
	for _, c := range r.byID {
		if c.HasParticipant(userID) {
			out = append(out, cloneConv(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *ConversationRepo) TouchLastMessage(ctx context.Context, convID string, snap *models.LastMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[convID]
	if !ok {
		return repository.ErrNotFound
	}
	s := *snap
	c.LastMessage = &s
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ConversationRepo) ClearLastMessage(ctx context.Context, convID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[convID]
	if !ok {
		return repository.ErrNotFound
	}
	if c.LastMessage != nil && c.LastMessage.MessageID == messageID {
		c.LastMessage = nil
	}
	return nil
}

func (r *ConversationRepo) AddParticipant(ctx context.Context, convID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[convID]
	if !ok {
		return repository.ErrNotFound
	}
	if !c.HasParticipant(userID) {
		c.Participants = append(c.Participants, userID)
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ConversationRepo) RemoveParticipant(ctx context.Context, convID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[convID]
	if !ok {
		return repository.ErrNotFound
	}
	c.Participants = remove(c.Participants, userID)
	c.Admins = remove(c.Admins, userID)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ConversationRepo) Rename(ctx context.Context, convID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[convID]
	if !ok {
		return repository.ErrNotFound
	}
	c.Name = name
	c.UpdatedAt = time.Now().UTC()
	return nil
}

type MessageRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Message
	// seq breaks timestamp ties so insertion order stays total
	order map[string]int64
	next  int64
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{
		byID:  make(map[string]*models.Message),
		order: make(map[string]int64),
	}
}

func (r *MessageRepo) Insert(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.next++
	r.order[m.ID] = r.next
	r.byID[m.ID] = cloneMsg(m)
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneMsg(m), nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, convID string, limit int64, before time.Time) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Message{}
	for _, m := range r.byID {
		if m.ConversationID != convID || m.IsUnsent {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, cloneMsg(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return r.order[out[i].ID] < r.order[out[j].ID]
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (r *MessageRepo) LastVisible(ctx context.Context, convID string) (*models.Message, error) {
	msgs, err := r.ListByConversation(ctx, convID, 0, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, repository.ErrNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (r *MessageRepo) ToggleReaction(ctx context.Context, msgID, userID, emoji string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[msgID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if m.HasReaction(userID, emoji) {
		kept := m.Reactions[:0]
		for _, x := range m.Reactions {
			if !(x.UserID == userID && x.Emoji == emoji) {
				kept = append(kept, x)
			}
		}
		m.Reactions = kept
	} else {
		m.Reactions = append(m.Reactions, models.Reaction{UserID: userID, Emoji: emoji})
	}
	return cloneMsg(m), nil
}

func (r *MessageRepo) AddSeen(ctx context.Context, msgID, userID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[msgID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !m.SeenByUser(userID) {
		m.SeenBy = append(m.SeenBy, userID)
	}
	return cloneMsg(m), nil
}

func (r *MessageRepo) AddDelivered(ctx context.Context, msgID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[msgID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, u := range m.DeliveredTo {
		if u == userID {
			return nil
		}
	}
	m.DeliveredTo = append(m.DeliveredTo, userID)
	return nil
}

func (r *MessageRepo) MarkUnsent(ctx context.Context, msgID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[msgID]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsUnsent = true
	return nil
}

func cloneConv(c *models.Conversation) *models.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.Admins = append([]string(nil), c.Admins...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}

func cloneMsg(m *models.Message) *models.Message {
	cp := *m
	cp.Reactions = append([]models.Reaction(nil), m.Reactions...)
	cp.SeenBy = append([]string(nil), m.SeenBy...)
	cp.DeliveredTo = append([]string(nil), m.DeliveredTo...)
	if m.Media != nil {
		md := *m.Media
		cp.Media = &md
	}
	if m.SharedContent != nil {
		sc := *m.SharedContent
		cp.SharedContent = &sc
	}
	return &cp
}

func remove(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
