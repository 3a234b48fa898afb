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

// MessageRequest is the body of message send and edit requests.
type MessageRequest struct {
	Content string  `json:"content"`
	FileURL *string `json:"fileUrl"`
}

// SendDirectMessage posts into a conversation the caller takes part in.
func (h *Handler) SendDirectMessage(w http.ResponseWriter, r *http.Request) {
	const tag = "[DIRECT_MESSAGES_POST]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	convID, err := requireID(r.URL.Query().Get("conversationId"), apperr.MsgMissingConvID)
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

	ctx := r.Context()
	conv, err := h.store.GetConversationForProfile(ctx, convID, profile.ID)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	if conv == nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgConvNotFound))
		return
	}
	member := conv.MemberFor(profile.ID)
	if member == nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgMemberNotFound))
		return
	}

	msg, err := h.store.CreateDirectMessage(ctx, conv.ID, member.ID, content, req.FileURL)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	metrics.MessageMutations.WithLabelValues("direct", "create").Inc()

	h.emit(r, tag, realtime.NewKey(conv.ID.String()), msg)
	h.JSON(w, http.StatusOK, msg)
}

// ListDirectMessages returns one batch of a conversation, newest first.
func (h *Handler) ListDirectMessages(w http.ResponseWriter, r *http.Request) {
	const tag = "[DIRECT_MESSAGES_GET]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	convID, err := requireID(r.URL.Query().Get("conversationId"), apperr.MsgMissingConvID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	ctx := r.Context()
	conv, err := h.store.GetConversationForProfile(ctx, convID, profile.ID)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	if conv == nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgConvNotFound))
		return
	}

	items, err := h.store.ListDirectMessages(ctx, conv.ID, parseCursor(r), store.MessageBatch)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}

	page := Page[models.DirectMessage]{Items: items}
	if len(items) == store.MessageBatch {
		page.NextCursor = items[len(items)-1].ID.String()
	}
	h.JSON(w, http.StatusOK, page)
}

// DirectMessageID edits (PATCH) or soft-deletes (DELETE) a direct message.
// Every other method is rejected before authentication.
func (h *Handler) DirectMessageID(w http.ResponseWriter, r *http.Request) {
	const tag = "[DIRECT_MESSAGE_ID]"

	if r.Method != http.MethodPatch && r.Method != http.MethodDelete {
		h.Fail(w, tag, apperr.MethodNotAllowed())
		return
	}

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	convID, err := requireID(r.URL.Query().Get("conversationId"), apperr.MsgMissingConvID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	ctx := r.Context()
	conv, err := h.store.GetConversationForProfile(ctx, convID, profile.ID)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	if conv == nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgConvNotFound))
		return
	}
	member := conv.MemberFor(profile.ID)
	if member == nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgMemberNotFound))
		return
	}

	msgID, err := uuid.Parse(chi.URLParam(r, "directMessageId"))
	if err != nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgMessageNotFound))
		return
	}
	msg, err := h.store.GetDirectMessage(ctx, msgID, conv.ID)
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

	var updated *models.DirectMessage
	switch r.Method {
	case http.MethodDelete:
		updated, err = h.store.SoftDeleteDirectMessage(ctx, msg.ID)
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
		updated, err = h.store.UpdateDirectMessage(ctx, msg.ID, content)
	}
	if err != nil {
		h.Fail(w, tag, storeError(err, apperr.MsgMessageNotFound))
		return
	}
	metrics.MessageMutations.WithLabelValues("direct", strings.ToLower(r.Method)).Inc()

	h.emit(r, tag, realtime.UpdateKey(conv.ID.String()), updated)
	h.JSON(w, http.StatusOK, updated)
}
