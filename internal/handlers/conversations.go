package handlers

import (
	"net/http"

	"github.com/LorenzoRonconi00/twin/internal/apperr"
)

// ConversationRequest is the body of POST /api/conversations.
type ConversationRequest struct {
	ServerID string `json:"serverId"`
	MemberID string `json:"memberId"`
}

// GetOrCreateConversation opens the 1:1 conversation between the caller's
// membership in a server and another member of it.
func (h *Handler) GetOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	const tag = "[CONVERSATIONS_POST]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	var req ConversationRequest
	if err := decode(r, &req); err != nil {
		h.Fail(w, tag, err)
		return
	}
	serverID, err := requireID(req.ServerID, apperr.MsgMissingServerID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}
	memberID, err := requireID(req.MemberID, apperr.MsgMissingMemberID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	ctx := r.Context()
	self, err := h.store.GetMember(ctx, serverID, profile.ID)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	if self == nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgMemberNotFound))
		return
	}

	other, err := h.store.GetMemberByID(ctx, serverID, memberID)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	if other == nil || other.ID == self.ID {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgMemberNotFound))
		return
	}

	conv, err := h.store.GetOrCreateConversation(ctx, self.ID, other.ID)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}

	h.JSON(w, http.StatusOK, conv)
}
