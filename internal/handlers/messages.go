package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/LorenzoRonconi00/twin/internal/apperr"
	"github.com/LorenzoRonconi00/twin/internal/metrics"
	"github.com/LorenzoRonconi00/twin/internal/models"
	"github.com/LorenzoRonconi00/twin/internal/realtime"
	"github.com/LorenzoRonconi00/twin/internal/store"
)

// channelScope resolves serverId and channelId query params to the caller's
// membership and the channel.
func (h *Handler) channelScope(r *http.Request, profileID uuid.UUID) (*models.Member, *models.Channel, error) {
	q := r.URL.Query()
	serverID, err := requireID(q.Get("serverId"), apperr.MsgMissingServerID)
	if err != nil {
		return nil, nil, err
	}
	channelID, err := requireID(q.Get("channelId"), apperr.MsgMissingChannelID)
	if err != nil {
		return nil, nil, err
	}

	ctx := r.Context()
	member, err := h.store.GetMember(ctx, serverID, profileID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if member == nil {
		return nil, nil, apperr.NotFound(apperr.MsgMemberNotFound)
	}

	channel, err := h.store.GetChannel(ctx, serverID, channelID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if channel == nil {
		return nil, nil, apperr.NotFound(apperr.MsgChannelNotFound)
	}
	return member, channel, nil
}

// SendMessage posts into a channel of a server the caller belongs to.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	const tag = "[MESSAGES_POST]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	member, channel, err := h.channelScope(r, profile.ID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	var req MessageRequest
	if err := decode(r, &req); err != nil {
		h.Fail(w, tag, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.Fail(w, tag, apperr.InvalidArg(apperr.MsgMissingContent))
		return
	}

	msg, err := h.store.CreateMessage(r.Context(), channel.ID, member.ID, content, req.FileURL)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	metrics.MessageMutations.WithLabelValues("channel", "create").Inc()

	h.emit(r, tag, realtime.NewKey(channel.ID.String()), msg)
	h.JSON(w, http.StatusOK, msg)
}

// ListMessages returns one batch of a channel, newest first.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	const tag = "[MESSAGES_GET]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	_, channel, err := h.channelScope(r, profile.ID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	items, err := h.store.ListMessages(r.Context(), channel.ID, parseCursor(r), store.MessageBatch)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}

	page := Page[models.Message]{Items: items}
	if len(items) == store.MessageBatch {
		page.NextCursor = items[len(items)-1].ID.String()
	}
	h.JSON(w, http.StatusOK, page)
}

// MessageID edits (PATCH) or soft-deletes (DELETE) a channel message.
func (h *Handler) MessageID(w http.ResponseWriter, r *http.Request) {
	const tag = "[MESSAGE_ID]"

	if r.Method != http.MethodPatch && r.Method != http.MethodDelete {
		h.Fail(w, tag, apperr.MethodNotAllowed())
		return
	}

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	member, channel, err := h.channelScope(r, profile.ID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	ctx := r.Context()
	msgID, err := uuid.Parse(chi.URLParam(r, "messageId"))
	if err != nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgMessageNotFound))
		return
	}
	msg, err := h.store.GetMessage(ctx, msgID, channel.ID)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	if msg == nil || msg.Deleted {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgMessageNotFound))
		return
	}

	perms := models.PermissionsFor(member, msg.MemberID)
	if !perms.CanModify() {
		h.Fail(w, tag, apperr.Unauthorized())
		return
	}

	var updated *models.Message
	switch r.Method {
	case http.MethodDelete:
		updated, err = h.store.SoftDeleteMessage(ctx, msg.ID)
	case http.MethodPatch:
		if !perms.CanEdit() {
			h.Fail(w, tag, apperr.Unauthorized())
			return
		}
		var req MessageRequest
		if err := decode(r, &req); err != nil {
			h.Fail(w, tag, err)
			return
		}
		content := strings.TrimSpace(req.Content)
		if content == "" {
			h.Fail(w, tag, apperr.InvalidArg(apperr.MsgMissingContent))
			return
		}
		updated, err = h.store.UpdateMessage(ctx, msg.ID, content)
	}
	if err != nil {
		h.Fail(w, tag, storeError(err, apperr.MsgMessageNotFound))
		return
	}
	metrics.MessageMutations.WithLabelValues("channel", strings.ToLower(r.Method)).Inc()

	h.emit(r, tag, realtime.UpdateKey(channel.ID.String()), updated)
	h.JSON(w, http.StatusOK, updated)
}
