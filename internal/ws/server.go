package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/inspirecraft/realtime/internal/auth"
	"github.com/inspirecraft/realtime/internal/metrics"
	"github.com/inspirecraft/realtime/internal/presence"
)

// MembershipChecker verifies a user belongs to a conversation before the
// hub subscribes their connection. Joining is not trusted.
type MembershipChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

type Options struct {
	PingInterval   time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// Server owns the realtime channel: it upgrades connections, drives the
// per-connection read loop and translates envelopes into hub operations.
type Server struct {
	hub      *Hub
	registry *presence.Registry
	store    *presence.Store // optional redis mirror
	members  MembershipChecker
	verifier *auth.Verifier
	opts     Options
	log      *zap.SugaredLogger
}

func NewServer(hub *Hub, registry *presence.Registry, store *presence.Store, members MembershipChecker, verifier *auth.Verifier, opts Options, log *zap.SugaredLogger) *Server {
	if opts.PingInterval == 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteWait == 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	if opts.SendBuffer == 0 {
		opts.SendBuffer = 256
	}
	return &Server{
		hub:      hub,
		registry: registry,
		store:    store,
		members:  members,
		verifier: verifier,
		opts:     opts,
		log:      log,
	}
}

// HandleWS is the fiber/websocket handler. Identity comes from the token
// query parameter; the explicit authenticate envelope then registers
// presence and broadcasts user-online.
func (s *Server) HandleWS() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		token := conn.Query("token")
		if token == "" {
			_ = conn.Close()
			return
		}
		userID, err := s.verifier.Verify(token)
		if err != nil {
			_ = conn.Close()
			return
		}

		client := NewClient(conn, userID, s.opts.SendBuffer)
		s.hub.Register(client)
		metrics.Connections.Inc()
		go client.WritePump(s.opts.PingInterval, s.opts.WriteWait)

		s.readLoop(client, conn)

		s.teardown(client)
	}
}

func (s *Server) readLoop(client *Client, conn *websocket.Conn) {
	conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
		if s.store != nil && s.registry.Online(client.UserID) {
			_ = s.store.Refresh(context.Background(), client.UserID)
		}
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendError(client, "malformed envelope")
			continue
		}
		s.dispatch(client, &env)
	}
}

func (s *Server) dispatch(client *Client, env *Envelope) {
	switch env.Event {
	case EventAuthenticate:
		s.onAuthenticate(client, env.Data)
	case EventJoinConversation:
		s.onJoin(client, env.Data)
	case EventLeaveConversation:
		s.onLeave(client, env.Data)
	case EventSendMessage:
		s.onSendHint(client, env.Data)
	case EventTypingStart:
		s.onTyping(client, env.Data, true)
	case EventTypingStop:
		s.onTyping(client, env.Data, false)
	default:
		s.sendError(client, "unknown event")
	}
}

func (s *Server) onAuthenticate(client *Client, data json.RawMessage) {
	var req struct {
		UserID string `json:"user_id"`
	}
	_ = json.Unmarshal(data, &req)
	if req.UserID != "" && req.UserID != client.UserID {
		s.sendError(client, "identity mismatch")
		return
	}
	cameOnline := s.registry.Bind(client.ID, client.UserID)
	s.hub.Subscribe(client, UserTopic(client.UserID))
	if cameOnline {
		if s.store != nil {
			if err := s.store.SetOnline(context.Background(), client.UserID); err != nil {
				s.log.Warnw("presence mirror", "user", client.UserID, "err", err)
			}
		}
		s.hub.BroadcastExcept(EventUserOnline, map[string]string{"user_id": client.UserID}, client)
	}
}

func (s *Server) onJoin(client *Client, data json.RawMessage) {
	convID := conversationID(data)
	if convID == "" {
		s.sendError(client, "conversation_id required")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := s.members.IsParticipant(ctx, convID, client.UserID)
	if err != nil {
		s.sendError(client, "membership check failed")
		return
	}
	if !ok {
		s.sendError(client, "not a participant")
		return
	}
	s.hub.Subscribe(client, ConversationTopic(convID))
	s.reply(client, EventJoined, map[string]string{"conversation_id": convID})
}

func (s *Server) onLeave(client *Client, data json.RawMessage) {
	convID := conversationID(data)
	if convID == "" {
		return
	}
	s.hub.Unsubscribe(client, ConversationTopic(convID))
	if s.hub.TypingStop(convID, client.UserID) {
		s.hub.Publish(ConversationTopic(convID), EventTypingStop, typingPayload(convID, client.UserID))
	}
}

// onSendHint re-broadcasts an already-persisted message to the room. The
// authoritative path is the REST send; this is the fan-out hint emitted by
// the sending session so other subscribers hear about it immediately.
func (s *Server) onSendHint(client *Client, data json.RawMessage) {
	var req struct {
		ConversationID string          `json:"conversation_id"`
		Message        json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" || len(req.Message) == 0 {
		s.sendError(client, "conversation_id and message required")
		return
	}
	topic := ConversationTopic(req.ConversationID)
	if !s.hub.Subscribed(client, topic) {
		s.sendError(client, "not joined")
		return
	}
	s.hub.Publish(topic, EventNewMessage, json.RawMessage(req.Message))
}

func (s *Server) onTyping(client *Client, data json.RawMessage, start bool) {
	convID := conversationID(data)
	if convID == "" {
		return
	}
	topic := ConversationTopic(convID)
	if !s.hub.Subscribed(client, topic) {
		return
	}
	if start {
		if s.hub.TypingStart(convID, client.UserID) {
			s.hub.Publish(topic, EventTypingStart, typingPayload(convID, client.UserID))
		}
		return
	}
	if s.hub.TypingStop(convID, client.UserID) {
		s.hub.Publish(topic, EventTypingStop, typingPayload(convID, client.UserID))
	}
}

func (s *Server) teardown(client *Client) {
	for _, convID := range s.hub.StopTypingEverywhere(client.UserID) {
		s.hub.Publish(ConversationTopic(convID), EventTypingStop, typingPayload(convID, client.UserID))
	}
	s.hub.Drop(client)
	client.Close()
	metrics.Connections.Dec()

	userID, wentOffline := s.registry.Unbind(client.ID)
	if wentOffline {
		if s.store != nil {
			if err := s.store.SetOffline(context.Background(), userID); err != nil {
				s.log.Warnw("presence mirror", "user", userID, "err", err)
			}
		}
		s.hub.Broadcast(EventUserOffline, map[string]string{"user_id": userID})
	}
}

func (s *Server) reply(client *Client, event string, data any) {
	payload, err := NewEnvelope(event, data)
	if err != nil {
		return
	}
	client.Enqueue(payload)
}

func (s *Server) sendError(client *Client, msg string) {
	s.reply(client, EventError, map[string]string{"message": msg})
}

func conversationID(data json.RawMessage) string {
	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	_ = json.Unmarshal(data, &req)
	return req.ConversationID
}

func typingPayload(convID, userID string) map[string]string {
	return map[string]string{"conversation_id": convID, "user_id": userID}
}
