package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspirecraft/realtime/internal/models"
)

type sentFrame struct {
	Event string
	Data  any
}

// fakeTransport records outbound frames and lets tests inject server events.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentFrame
	events   chan Envelope
	closed   bool
	connErr  error
	sendErrs map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:   make(chan Envelope, 16),
		sendErrs: make(map[string]error),
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error { return t.connErr }

func (t *fakeTransport) Send(event string, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.sendErrs[event]; err != nil {
		return err
	}
	t.sent = append(t.sent, sentFrame{Event: event, Data: data})
	return nil
}

func (t *fakeTransport) Events() <-chan Envelope { return t.events }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	return nil
}

func (t *fakeTransport) inject(event string, payload any) {
	raw, _ := json.Marshal(payload)
	t.events <- Envelope{Event: event, Data: raw}
}

func (t *fakeTransport) frames() []sentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentFrame(nil), t.sent...)
}

func (t *fakeTransport) lastEvent() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return ""
	}
	return t.sent[len(t.sent)-1].Event
}

// fakeAPI serves canned history and mints server-side message documents.
// onHistory, when set, runs while a History fetch is in flight.
type fakeAPI struct {
	mu        sync.Mutex
	history   map[string][]*models.Message
	sendErr   error
	onHistory func(conversationID string)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{history: make(map[string][]*models.Message)}
}

func (a *fakeAPI) History(ctx context.Context, conversationID string) ([]*models.Message, error) {
	if a.onHistory != nil {
		a.onHistory(conversationID)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*models.Message(nil), a.history[conversationID]...), nil
}

func (a *fakeAPI) Send(ctx context.Context, conversationID, kind, content string) (*models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Kind:           kind,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	a.history[conversationID] = append(a.history[conversationID], m)
	return m, nil
}

func (a *fakeAPI) seed(conversationID string, contents ...string) []*models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []*models.Message{}
	for _, c := range contents {
		m := &models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Kind:           models.MessageText,
			Content:        c,
			CreatedAt:      time.Now().UTC(),
		}
		a.history[conversationID] = append(a.history[conversationID], m)
		out = append(out, m)
	}
	return out
}

func startedSession(t *testing.T, opts ...Option) (*Session, *fakeTransport, *fakeAPI) {
	t.Helper()
	transport := newFakeTransport()
	api := newFakeAPI()
	s := NewSession("alice", transport, api, opts...)
	require.NoError(t, s.Start(context.Background()))
	return s, transport, api
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartAuthenticates(t *testing.T) {
	s, transport, _ := startedSession(t)
	assert.Equal(t, StateAuthenticated, s.State())

	frames := transport.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, EventAuthenticate, frames[0].Event)

	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
}

func TestStartFailsWhenAuthFrameRejected(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErrs[EventAuthenticate] = ErrNotConnected
	s := NewSession("alice", transport, newFakeAPI())

	assert.Error(t, s.Start(context.Background()))
	assert.Equal(t, StateDisconnected, s.State())
}

func TestStartFailsWhenConnectFails(t *testing.T) {
	transport := newFakeTransport()
	transport.connErr = errors.New("dial refused")
	s := NewSession("alice", transport, newFakeAPI())

	assert.Error(t, s.Start(context.Background()))
	assert.Equal(t, StateDisconnected, s.State())

	// once connectivity is back the same session can start
	transport.connErr = nil
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestOpenSeedsHistory(t *testing.T) {
	s, transport, api := startedSession(t)
	seeded := api.seed("conv-1", "hello", "world")

	require.NoError(t, s.Open(context.Background(), "conv-1"))
	assert.Equal(t, StateInConversation, s.State())
	assert.Equal(t, EventJoinConversation, transport.lastEvent())

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, seeded[0].ID, transcript[0].ID)
	assert.Equal(t, seeded[1].ID, transcript[1].ID)
}

func TestOpenRequiresStartedSession(t *testing.T) {
	s := NewSession("alice", newFakeTransport(), newFakeAPI())
	assert.ErrorIs(t, s.Open(context.Background(), "conv-1"), ErrNotConnected)
}

func TestOpenSwitchesRooms(t *testing.T) {
	s, transport, api := startedSession(t)
	api.seed("conv-1", "old room")
	api.seed("conv-2", "new room")

	require.NoError(t, s.Open(context.Background(), "conv-1"))
	require.NoError(t, s.Open(context.Background(), "conv-2"))

	var joins, leaves []string
	for _, f := range transport.frames() {
		payload, _ := f.Data.(map[string]string)
		switch f.Event {
		case EventJoinConversation:
			joins = append(joins, payload["conversation_id"])
		case EventLeaveConversation:
			leaves = append(leaves, payload["conversation_id"])
		}
	}
	assert.Equal(t, []string{"conv-1", "conv-2"}, joins)
	assert.Equal(t, []string{"conv-1"}, leaves)

	transcript := s.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, "new room", transcript[0].Content)

	// reopening the current room is a no-op
	before := len(transport.frames())
	require.NoError(t, s.Open(context.Background(), "conv-2"))
	assert.Len(t, transport.frames(), before)
}

func TestOpenKeepsMessageArrivingDuringHistoryFetch(t *testing.T) {
	s, transport, api := startedSession(t)
	seeded := api.seed("conv-1", "already persisted")

	// fanned out after the history snapshot was taken, so only the live
	// channel can deliver it
	racer := &models.Message{ID: uuid.NewString(), ConversationID: "conv-1", Kind: models.MessageText, Content: "mid-fetch"}
	api.onHistory = func(conversationID string) {
		transport.inject(EventNewMessage, racer)
		waitFor(t, func() bool { return len(s.Transcript()) == 1 })
	}

	require.NoError(t, s.Open(context.Background(), "conv-1"))

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, seeded[0].ID, transcript[0].ID)
	assert.Equal(t, racer.ID, transcript[1].ID)

	// a replay of the same message after the merge is absorbed
	transport.inject(EventNewMessage, racer)
	follow := &models.Message{ID: uuid.NewString(), ConversationID: "conv-1", Kind: models.MessageText, Content: "after"}
	transport.inject(EventNewMessage, follow)
	waitFor(t, func() bool { return len(s.Transcript()) == 3 })
	assert.Equal(t, follow.ID, s.Transcript()[2].ID)
}

func TestSendMessageConfirmsThenHints(t *testing.T) {
	s, transport, _ := startedSession(t)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	msg, err := s.SendMessage(context.Background(), models.MessageText, "hi there")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	transcript := s.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, msg.ID, transcript[0].ID)
	assert.Equal(t, EventSendMessage, transport.lastEvent())
}

func TestSendMessageRequiresOpenConversation(t *testing.T) {
	s, _, _ := startedSession(t)
	_, err := s.SendMessage(context.Background(), models.MessageText, "hi")
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestBusArrivalDedupesOwnMessage(t *testing.T) {
	var delivered []string
	var mu sync.Mutex
	s, transport, _ := startedSession(t, WithMessageHandler(func(m *models.Message) {
		mu.Lock()
		delivered = append(delivered, m.ID)
		mu.Unlock()
	}))
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	msg, err := s.SendMessage(context.Background(), models.MessageText, "hi")
	require.NoError(t, err)

	// the same message arrives again over the bus; transcript must not grow
	transport.inject(EventNewMessage, msg)

	other := &models.Message{ID: uuid.NewString(), ConversationID: "conv-1", Kind: models.MessageText, Content: "reply"}
	transport.inject(EventNewMessage, other)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	})
	mu.Lock()
	assert.Equal(t, []string{other.ID}, delivered)
	mu.Unlock()

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, msg.ID, transcript[0].ID)
	assert.Equal(t, other.ID, transcript[1].ID)
}

func TestMessagesForOtherRoomsAreIgnored(t *testing.T) {
	s, transport, _ := startedSession(t)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	stray := &models.Message{ID: uuid.NewString(), ConversationID: "conv-9", Kind: models.MessageText, Content: "wrong room"}
	transport.inject(EventNewMessage, stray)

	// follow with an on-room message so we know the stray was processed
	onRoom := &models.Message{ID: uuid.NewString(), ConversationID: "conv-1", Kind: models.MessageText, Content: "right room"}
	transport.inject(EventNewMessage, onRoom)

	waitFor(t, func() bool { return len(s.Transcript()) == 1 })
	assert.Equal(t, onRoom.ID, s.Transcript()[0].ID)
}

func TestPresenceAndTypingCallbacks(t *testing.T) {
	var mu sync.Mutex
	presence := map[string]bool{}
	typing := map[string]bool{}
	s, transport, _ := startedSession(t,
		WithPresenceHandler(func(userID string, online bool) {
			mu.Lock()
			presence[userID] = online
			mu.Unlock()
		}),
		WithTypingHandler(func(conversationID, userID string, isTyping bool) {
			mu.Lock()
			typing[userID] = isTyping
			mu.Unlock()
		}),
	)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	transport.inject(EventUserOnline, map[string]string{"user_id": "bob"})
	transport.inject(EventTypingStart, map[string]string{"conversation_id": "conv-1", "user_id": "bob"})
	// own typing echoes are suppressed
	transport.inject(EventTypingStart, map[string]string{"conversation_id": "conv-1", "user_id": "alice"})
	transport.inject(EventUserOffline, map[string]string{"user_id": "bob"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		online, seen := presence["bob"]
		return seen && !online
	})
	mu.Lock()
	assert.True(t, typing["bob"])
	_, selfSeen := typing["alice"]
	assert.False(t, selfSeen)
	mu.Unlock()
}

func TestTypingRequiresOpenConversation(t *testing.T) {
	s, transport, _ := startedSession(t)
	assert.ErrorIs(t, s.StartTyping(), ErrNoConversation)

	require.NoError(t, s.Open(context.Background(), "conv-1"))
	require.NoError(t, s.StartTyping())
	require.NoError(t, s.StopTyping())
	assert.Equal(t, EventTypingStop, transport.lastEvent())
}

func TestLeaveAndClose(t *testing.T) {
	s, transport, _ := startedSession(t)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	require.NoError(t, s.Leave())
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Empty(t, s.Transcript())
	assert.Equal(t, EventLeaveConversation, transport.lastEvent())

	// leaving twice is harmless
	require.NoError(t, s.Leave())

	require.NoError(t, s.Close())
	waitFor(t, func() bool { return s.State() == StateDisconnected })
}
