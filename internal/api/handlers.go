package api

import (
	"errors"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inspirecraft/realtime/internal/apperr"
	"github.com/inspirecraft/realtime/internal/auth"
	"github.com/inspirecraft/realtime/internal/models"
	"github.com/inspirecraft/realtime/internal/presence"
	"github.com/inspirecraft/realtime/internal/repository"
	"github.com/inspirecraft/realtime/internal/service"
)

type Handlers struct {
	convs     *service.ConversationService
	msgs      *service.MessageService
	social    *service.SocialService
	reconcile *service.Reconciler
	users     repository.UserRepo
	registry  *presence.Registry
	mirror    *presence.Store // nil when redis is disabled
	log       *zap.SugaredLogger
}

func NewHandlers(convs *service.ConversationService, msgs *service.MessageService, social *service.SocialService, reconcile *service.Reconciler, users repository.UserRepo, registry *presence.Registry, mirror *presence.Store, log *zap.SugaredLogger) *Handlers {
	return &Handlers{
		convs:     convs,
		msgs:      msgs,
		social:    social,
		reconcile: reconcile,
		users:     users,
		registry:  registry,
		mirror:    mirror,
		log:       log,
	}
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"status": "ok", "data": data})
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": data})
}

func fail(c *fiber.Ctx, err error) error {
	status := apperr.Status(err)
	if status >= fiber.StatusInternalServerError {
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	views, err := h.convs.ListForUser(c.Context(), auth.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, views)
}

func (h *Handlers) createConversation(c *fiber.Ctx) error {
	var req struct {
		Participants []string `json:"participants"`
		Type         string   `json:"type"`
		Name         string   `json:"name"`
		Avatar       string   `json:"avatar"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid body"))
	}
	caller := auth.UserID(c)

	if req.Type == models.ConversationGroup {
		conv, err := h.convs.CreateGroup(c.Context(), caller, req.Participants, req.Name, req.Avatar)
		if err != nil {
			return fail(c, err)
		}
		return created(c, conv)
	}
	if len(req.Participants) != 1 {
		return fail(c, apperr.Validation("direct conversations take exactly one other participant"))
	}
	conv, err := h.convs.GetOrCreateDirect(c.Context(), caller, req.Participants[0])
	if err != nil {
		return fail(c, err)
	}
	return ok(c, conv)
}

func (h *Handlers) renameConversation(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid body"))
	}
	conv, err := h.convs.Rename(c.Context(), c.Params("conversation_id"), auth.UserID(c), req.Name)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, conv)
}

func (h *Handlers) addParticipant(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return fail(c, apperr.Validation("user_id required"))
	}
	if err := h.convs.AddParticipant(c.Context(), c.Params("conversation_id"), auth.UserID(c), req.UserID); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"added": req.UserID})
}

func (h *Handlers) removeParticipant(c *fiber.Ctx) error {
	if err := h.convs.RemoveParticipant(c.Context(), c.Params("conversation_id"), auth.UserID(c), c.Params("user_id")); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"removed": c.Params("user_id")})
}

func (h *Handlers) listMessages(c *fiber.Ctx) error {
	convID := c.Query("conversationId")
	if convID == "" {
		convID = c.Query("conversation_id")
	}
	if convID == "" {
		return fail(c, apperr.Validation("conversationId required"))
	}
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fail(c, apperr.Validation("before must be RFC3339"))
		}
		before = t
	}
	msgs, err := h.msgs.History(c.Context(), convID, auth.UserID(c), limit, before)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, msgs)
}

// sendMessage accepts either a JSON body or a multipart form with a media
// file; both decode into the one canonical send request.
func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	req, err := decodeSend(c)
	if err != nil {
		return fail(c, err)
	}
	req.SenderID = auth.UserID(c)
	msg, err := h.msgs.Send(c.Context(), *req)
	if err != nil {
		return fail(c, err)
	}
	return created(c, msg)
}

func decodeSend(c *fiber.Ctx) (*service.SendRequest, error) {
	if form, err := c.MultipartForm(); err == nil && form != nil {
		return decodeMultipartSend(c, form)
	}
	var body struct {
		ConversationID string                `json:"conversation_id"`
		Content        string                `json:"content"`
		Type           string                `json:"type"`
		ReplyTo        string                `json:"reply_to"`
		Media          *models.Media         `json:"media"`
		SharedContent  *models.SharedContent `json:"shared_content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return nil, apperr.Validation("invalid body")
	}
	return &service.SendRequest{
		ConversationID: body.ConversationID,
		Kind:           body.Type,
		Content:        body.Content,
		ReplyTo:        body.ReplyTo,
		Media:          body.Media,
		SharedContent:  body.SharedContent,
	}, nil
}

func decodeMultipartSend(c *fiber.Ctx, form *multipart.Form) (*service.SendRequest, error) {
	get := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	req := &service.SendRequest{
		ConversationID: get("conversation_id"),
		Kind:           get("type"),
		Content:        get("content"),
		ReplyTo:        get("reply_to"),
	}
	files := form.File["file"]
	if len(files) == 0 {
		return nil, apperr.Validation("media file required")
	}
	fh := files[0]
	// storage/transcoding happens in the media pipeline; this service only
	// records the descriptor under which the file will be served
	ratio, _ := strconv.ParseFloat(get("aspect_ratio"), 64)
	duration, _ := strconv.ParseFloat(get("duration_sec"), 64)
	req.Media = &models.Media{
		URL:         "/media/" + uuid.NewString() + filepath.Ext(fh.Filename),
		ContentType: fh.Header.Get("Content-Type"),
		AspectRatio: ratio,
		DurationSec: duration,
	}
	if req.Kind == "" {
		req.Kind = models.MessageImage
	}
	return req, nil
}

func (h *Handlers) toggleReaction(c *fiber.Ctx) error {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid body"))
	}
	msg, err := h.msgs.ToggleReaction(c.Context(), c.Params("message_id"), auth.UserID(c), req.Emoji)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, msg)
}

func (h *Handlers) markSeen(c *fiber.Ctx) error {
	msg, err := h.msgs.MarkSeen(c.Context(), c.Params("message_id"), auth.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, msg)
}

func (h *Handlers) markDelivered(c *fiber.Ctx) error {
	if err := h.msgs.MarkDelivered(c.Context(), c.Params("message_id"), auth.UserID(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"delivered": c.Params("message_id")})
}

func (h *Handlers) unsendMessage(c *fiber.Ctx) error {
	if err := h.msgs.Unsend(c.Context(), c.Params("message_id"), auth.UserID(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"unsent": c.Params("message_id")})
}

func (h *Handlers) toggleLike(c *fiber.Ctx) error {
	res, err := h.social.ToggleLike(c.Context(), auth.UserID(c), c.Params("target_type"), c.Params("target_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"liked":      res.Liked,
		"totalLikes": res.TotalLikes,
		"likes":      res.Likers,
	})
}

func (h *Handlers) toggleFollow(c *fiber.Ctx) error {
	res, err := h.social.ToggleFollow(c.Context(), auth.UserID(c), c.Params("user_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"isFollowing":   res.IsFollowing,
		"followerCount": res.FollowerCount,
	})
}

func (h *Handlers) getUser(c *fiber.Ctx) error {
	u, err := h.users.GetByID(c.Context(), c.Params("user_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, apperr.NotFoundf("user %s", c.Params("user_id")))
		}
		return fail(c, apperr.Upstream(err))
	}
	return ok(c, fiber.Map{
		"id":             u.ID,
		"handle":         u.Handle,
		"avatar":         u.Avatar,
		"followerCount":  len(u.Followers),
		"followingCount": len(u.Following),
	})
}

func (h *Handlers) getPresence(c *fiber.Ctx) error {
	return ok(c, fiber.Map{"online": h.registry.Snapshot()})
}

// getUserPresence answers for one user. The local registry only knows this
// instance's connections; the redis mirror covers the rest of the fleet.
func (h *Handlers) getUserPresence(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	online := h.registry.Online(userID)
	if !online && h.mirror != nil {
		mirrored, err := h.mirror.IsOnline(c.Context(), userID)
		if err != nil {
			h.log.Warnw("presence mirror read", "user", userID, "err", err)
		} else {
			online = mirrored
		}
	}
	return ok(c, fiber.Map{"user_id": userID, "online": online})
}

func (h *Handlers) reconcileLikes(c *fiber.Ctx) error {
	if err := h.reconcile.ReconcileLikes(c.Context(), c.Params("target_type"), c.Params("target_id")); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"reconciled": c.Params("target_id")})
}

func (h *Handlers) reconcileFollows(c *fiber.Ctx) error {
	if err := h.reconcile.ReconcileFollows(c.Context(), c.Params("user_id")); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"reconciled": c.Params("user_id")})
}
