// Package chatclient implements the UI-facing chat session: it drives one
// realtime connection through its lifecycle, joins and leaves conversation
// rooms, and reconciles server-confirmed events into local transcript
// state.
package chatclient

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/inspirecraft/realtime/internal/models"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateInConversation
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateInConversation:
		return "in-conversation"
	default:
		return "disconnected"
	}
}

// API is the REST seam used to seed history and send messages. Sends are
// fire-and-confirm: the server-returned canonical message is what lands in
// the transcript, never an optimistic local copy.
type API interface {
	History(ctx context.Context, conversationID string) ([]*models.Message, error)
	Send(ctx context.Context, conversationID, kind, content string) (*models.Message, error)
}

type Session struct {
	userID    string
	transport Transport
	api       API

	mu             sync.Mutex
	state          State
	conversationID string
	transcript     []*models.Message
	seen           map[string]struct{}

	onMessage  func(*models.Message)
	onPresence func(userID string, online bool)
	onTyping   func(conversationID, userID string, typing bool)
}

type Option func(*Session)

func WithMessageHandler(fn func(*models.Message)) Option {
	return func(s *Session) { s.onMessage = fn }
}

func WithPresenceHandler(fn func(userID string, online bool)) Option {
	return func(s *Session) { s.onPresence = fn }
}

func WithTypingHandler(fn func(conversationID, userID string, typing bool)) Option {
	return func(s *Session) { s.onTyping = fn }
}

func NewSession(userID string, transport Transport, api API, opts ...Option) *Session {
	s := &Session{
		userID:    userID,
		transport: transport,
		api:       api,
		state:     StateDisconnected,
		seen:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects the transport, authenticates, and begins consuming server
// events. It returns once the session reaches Authenticated.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.transport.Connect(ctx); err != nil {
		s.setState(StateDisconnected)
		return err
	}
	if err := s.transport.Send(EventAuthenticate, map[string]string{"user_id": s.userID}); err != nil {
		_ = s.transport.Close()
		s.setState(StateDisconnected)
		return err
	}
	s.setState(StateAuthenticated)
	go s.loop()
	return nil
}

// Open joins a conversation room and seeds the transcript from the REST
// history endpoint. Switching rooms leaves the previous one first.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	switch s.state {
	case StateInConversation:
		prev := s.conversationID
		s.mu.Unlock()
		if prev == conversationID {
			return nil
		}
		if err := s.Leave(); err != nil {
			return err
		}
		s.mu.Lock()
	case StateAuthenticated:
	default:
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.mu.Unlock()

	if err := s.transport.Send(EventJoinConversation, map[string]string{"conversation_id": conversationID}); err != nil {
		return err
	}

	// Enter the room before fetching history: a message fanned out while the
	// fetch is in flight is too new for the response, so it must be captured
	// live. The id-dedupe absorbs any overlap between the two.
	s.mu.Lock()
	s.conversationID = conversationID
	s.transcript = nil
	s.seen = make(map[string]struct{})
	s.state = StateInConversation
	s.mu.Unlock()

	history, err := s.api.History(ctx, conversationID)
	if err != nil {
		s.mu.Lock()
		if s.conversationID == conversationID {
			s.conversationID = ""
			s.transcript = nil
			s.seen = make(map[string]struct{})
			s.state = StateAuthenticated
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.conversationID == conversationID {
		live := s.transcript
		s.transcript = nil
		s.seen = make(map[string]struct{})
		for _, m := range history {
			s.appendLocked(m)
		}
		for _, m := range live {
			s.appendLocked(m)
		}
	}
	s.mu.Unlock()
	return nil
}

// Leave exits the current room, returning the session to Authenticated.
func (s *Session) Leave() error {
	s.mu.Lock()
	if s.state != StateInConversation {
		s.mu.Unlock()
		return nil
	}
	convID := s.conversationID
	s.conversationID = ""
	s.transcript = nil
	s.seen = make(map[string]struct{})
	s.state = StateAuthenticated
	s.mu.Unlock()
	return s.transport.Send(EventLeaveConversation, map[string]string{"conversation_id": convID})
}

// SendMessage submits via REST, appends the server's canonical message,
// then emits the fan-out hint so other subscribers hear about it on the
// bus. Duplicate arrival via the bus dedupes by message id.
func (s *Session) SendMessage(ctx context.Context, kind, content string) (*models.Message, error) {
	s.mu.Lock()
	if s.state != StateInConversation {
		s.mu.Unlock()
		return nil, ErrNoConversation
	}
	convID := s.conversationID
	s.mu.Unlock()

	msg, err := s.api.Send(ctx, convID, kind, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.appendLocked(msg)
	s.mu.Unlock()

	_ = s.transport.Send(EventSendMessage, map[string]any{
		"conversation_id": convID,
		"message":         msg,
	})
	return msg, nil
}

func (s *Session) StartTyping() error {
	return s.typing(EventTypingStart)
}

func (s *Session) StopTyping() error {
	return s.typing(EventTypingStop)
}

func (s *Session) typing(event string) error {
	s.mu.Lock()
	if s.state != StateInConversation {
		s.mu.Unlock()
		return ErrNoConversation
	}
	convID := s.conversationID
	s.mu.Unlock()
	return s.transport.Send(event, map[string]string{
		"conversation_id": convID,
		"user_id":         s.userID,
	})
}

// Close tears the transport down; all room subscriptions drop server-side.
func (s *Session) Close() error {
	err := s.transport.Close()
	s.mu.Lock()
	s.state = StateDisconnected
	s.conversationID = ""
	s.transcript = nil
	s.seen = make(map[string]struct{})
	s.mu.Unlock()
	return err
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Transcript returns a snapshot of the current conversation's messages.
func (s *Session) Transcript() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) loop() {
	for env := range s.transport.Events() {
		s.handle(env)
	}
	// transport closed underneath us
	s.mu.Lock()
	s.state = StateDisconnected
	s.conversationID = ""
	s.mu.Unlock()
}

func (s *Session) handle(env Envelope) {
	switch env.Event {
	case EventNewMessage:
		var m models.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return
		}
		s.mu.Lock()
		fresh := s.state == StateInConversation &&
			m.ConversationID == s.conversationID &&
			s.appendLocked(&m)
		cb := s.onMessage
		s.mu.Unlock()
		if fresh && cb != nil {
			cb(&m)
		}
	case EventUserOnline, EventUserOffline:
		var p struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if s.onPresence != nil {
			s.onPresence(p.UserID, env.Event == EventUserOnline)
		}
	case EventTypingStart, EventTypingStop:
		var p struct {
			ConversationID string `json:"conversation_id"`
			UserID         string `json:"user_id"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if s.onTyping != nil && p.UserID != s.userID {
			s.onTyping(p.ConversationID, p.UserID, env.Event == EventTypingStart)
		}
	}
}

// appendLocked adds a message unless its id is already present. Returns
// true when the transcript grew.
func (s *Session) appendLocked(m *models.Message) bool {
	if _, dup := s.seen[m.ID]; dup {
		return false
	}
	s.seen[m.ID] = struct{}{}
	s.transcript = append(s.transcript, m)
	return true
}
