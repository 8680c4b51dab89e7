package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspirecraft/realtime/internal/apperr"
	"github.com/inspirecraft/realtime/internal/logger"
	"github.com/inspirecraft/realtime/internal/models"
	"github.com/inspirecraft/realtime/internal/repository/memory"
	"github.com/inspirecraft/realtime/internal/ws"
)

type publish struct {
	Topic string
	Event string
	Data  any
}

// recordingBus captures fan-out calls so tests can assert ordering and
// payloads without a socket.
type recordingBus struct {
	mu        sync.Mutex
	published []publish
}

func (b *recordingBus) Publish(topic, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publish{Topic: topic, Event: event, Data: data})
}

func (b *recordingBus) all() []publish {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publish(nil), b.published...)
}

type recordingSink struct {
	mu    sync.Mutex
	types []string
}

func (s *recordingSink) Publish(ctx context.Context, eventType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, eventType)
	return nil
}

type msgFixture struct {
	convs *ConversationService
	msgs  *MessageService
	store *memory.MessageRepo
	bus   *recordingBus
	sink  *recordingSink
}

func newMsgFixture() *msgFixture {
	convRepo := memory.NewConversationRepo()
	msgRepo := memory.NewMessageRepo()
	bus := &recordingBus{}
	sink := &recordingSink{}
	log := logger.Nop()
	return &msgFixture{
		convs: NewConversationService(convRepo, msgRepo, log),
		msgs:  NewMessageService(msgRepo, convRepo, bus, sink, log),
		store: msgRepo,
		bus:   bus,
		sink:  sink,
	}
}

func (f *msgFixture) direct(t *testing.T, a, b string) *models.Conversation {
	t.Helper()
	conv, err := f.convs.GetOrCreateDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func TestSendPersistsThenBroadcasts(t *testing.T) {
	f := newMsgFixture()
	ctx := context.Background()
	conv := f.direct(t, "alice", "bob")

	m, err := f.msgs.Send(ctx, SendRequest{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Kind:           models.MessageText,
		Content:        "hi",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "hi", m.Content)
	assert.Equal(t, []string{"alice"}, m.SeenBy)

	stored, err := f.store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", stored.Content)

	refreshed, err := f.convs.Get(ctx, conv.ID, "bob")
	require.NoError(t, err)
	require.NotNil(t, refreshed.LastMessage)
	assert.Equal(t, m.ID, refreshed.LastMessage.MessageID)
	assert.Equal(t, "hi", refreshed.LastMessage.Content)

	pubs := f.bus.all()
	require.Len(t, pubs, 1)
	assert.Equal(t, ws.ConversationTopic(conv.ID), pubs[0].Topic)
	assert.Equal(t, ws.EventNewMessage, pubs[0].Event)
	broadcast, ok := pubs[0].Data.(*models.Message)
	require.True(t, ok)
	// the broadcast carries the persisted document, id included
	assert.Equal(t, m.ID, broadcast.ID)

	assert.Equal(t, []string{"message.sent"}, f.sink.types)
}

func TestSendValidation(t *testing.T) {
	f := newMsgFixture()
	ctx := context.Background()
	conv := f.direct(t, "alice", "bob")

	cases := []struct {
		name string
		req  SendRequest
	}{
		{"empty text", SendRequest{ConversationID: conv.ID, SenderID: "alice", Kind: models.MessageText}},
		{"unknown kind", SendRequest{ConversationID: conv.ID, SenderID: "alice", Kind: "hologram", Content: "x"}},
		{"image without media", SendRequest{ConversationID: conv.ID, SenderID: "alice", Kind: models.MessageImage}},
		{"share without content", SendRequest{ConversationID: conv.ID, SenderID: "alice", Kind: models.MessageShared}},
		{"missing conversation", SendRequest{SenderID: "alice", Kind: models.MessageText, Content: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.msgs.Send(ctx, tc.req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	// nothing was fanned out for the rejected sends
	assert.Empty(t, f.bus.all())
}

func TestSendByOutsiderLooksLikeMissingConversation(t *testing.T) {
	f := newMsgFixture()
	ctx := context.Background()
	conv := f.direct(t, "alice", "bob")

	_, err := f.msgs.Send(ctx, SendRequest{
		ConversationID: conv.ID,
		SenderID:       "mallory",
		Kind:           models.MessageText,
		Content:        "hi",
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.bus.all())
}

func TestHistoryOrdering(t *testing.T) {
	f := newMsgFixture()
	ctx := context.Background()
	conv := f.direct(t, "alice", "bob")

	var sent []string
	for _, text := range []string{"one", "two", "three"} {
		m, err := f.msgs.Send(ctx, SendRequest{ConversationID: conv.ID, SenderID: "alice", Kind: models.MessageText, Content: text})
		require.NoError(t, err)
		sent = append(sent, m.ID)
	}

	history, err := f.msgs.History(ctx, conv.ID, "bob", 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, m := range history {
		assert.Equal(t, sent[i], m.ID)
	}

	// a limited window keeps the newest messages, still ascending
	window, err := f.msgs.History(ctx, conv.ID, "bob", 2, time.Time{})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, sent[1], window[0].ID)
	assert.Equal(t, sent[2], window[1].ID)

	_, err = f.msgs.History(ctx, conv.ID, "mallory", 0, time.Time{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestToggleReactionParity(t *testing.T) {
	f := newMsgFixture()
	ctx := context.Background()
	conv := f.direct(t, "alice", "bob")
	m, err := f.msgs.Send(ctx, SendRequest{ConversationID: conv.ID, SenderID: "alice", Kind: models.MessageText, Content: "hi"})
	require.NoError(t, err)

	updated, err := f.msgs.ToggleReaction(ctx, m.ID, "bob", "🔥")
	require.NoError(t, err)
	require.Len(t, updated.Reactions, 1)
	assert.True(t, updated.HasReaction("bob", "🔥"))

	// same (user, emoji) again removes it
	updated, err = f.msgs.ToggleReaction(ctx, m.ID, "bob", "🔥")
	require.NoError(t, err)
	assert.Empty(t, updated.Reactions)

	// a different user's reaction is independent
	_, err = f.msgs.ToggleReaction(ctx, m.ID, "alice", "🔥")
	require.NoError(t, err)
	updated, err = f.msgs.ToggleReaction(ctx, m.ID, "bob", "🔥")
	require.NoError(t, err)
	require.Len(t, updated.Reactions, 2)

	_, err = f.msgs.ToggleReaction(ctx, m.ID, "bob", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMarkSeenIdempotent(t *testing.T) {
	f := newMsgFixture()
	ctx := context.Background()
	conv := f.direct(t, "alice", "bob")
	m, err := f.msgs.Send(ctx, SendRequest{ConversationID: conv.ID, SenderID: "alice", Kind: models.MessageText, Content: "hi"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		updated, err := f.msgs.MarkSeen(ctx, m.ID, "bob")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"alice", "bob"}, updated.SeenBy)
	}
}

func TestUnsend(t *testing.T) {
	f := newMsgFixture()
	ctx := context.Background()
	conv := f.direct(t, "alice", "bob")

	first, err := f.msgs.Send(ctx, SendRequest{ConversationID: conv.ID, SenderID: "alice", Kind: models.MessageText, Content: "keep"})
	require.NoError(t, err)
	second, err := f.msgs.Send(ctx, SendRequest{ConversationID: conv.ID, SenderID: "alice", Kind: models.MessageText, Content: "oops"})
	require.NoError(t, err)

	// only the sender may unsend
	assert.ErrorIs(t, f.msgs.Unsend(ctx, second.ID, "bob"), apperr.ErrForbidden)

	require.NoError(t, f.msgs.Unsend(ctx, second.ID, "alice"))

	history, err := f.msgs.History(ctx, conv.ID, "bob", 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)

	// the unsent message stops resolving for everyone
	_, err = f.msgs.MarkSeen(ctx, second.ID, "bob")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// the preview falls back to the newest surviving message
	refreshed, err := f.convs.Get(ctx, conv.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, refreshed.LastMessage)
	assert.Equal(t, first.ID, refreshed.LastMessage.MessageID)

	// unsending the last remaining message clears the preview
	require.NoError(t, f.msgs.Unsend(ctx, first.ID, "alice"))
	refreshed, err = f.convs.Get(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, refreshed.LastMessage)
}
