package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LorenzoRonconi00/twin/internal/apperr"
	"github.com/LorenzoRonconi00/twin/internal/models"
)

// MemberRoleRequest is the body of PATCH /api/members/{memberId}.
type MemberRoleRequest struct {
	Role models.MemberRole `json:"role"`
}

// UpdateMemberRole changes another member's role. Owner only.
func (h *Handler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	const tag = "[MEMBER_ID_PATCH]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	serverID, err := requireID(r.URL.Query().Get("serverId"), apperr.MsgMissingServerID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}
	memberID, err := requireID(chi.URLParam(r, "memberId"), apperr.MsgMissingMemberID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	var req MemberRoleRequest
	if err := decode(r, &req); err != nil {
		h.Fail(w, tag, err)
		return
	}
	switch req.Role {
	case models.RoleAdmin, models.RoleModerator, models.RoleGuest:
	default:
		h.Fail(w, tag, apperr.InvalidArg(apperr.MsgInvalidRole))
		return
	}

	server, err := h.store.UpdateMemberRole(r.Context(), serverID, memberID, profile.ID, req.Role)
	if err != nil {
		h.Fail(w, tag, storeError(err, apperr.MsgMemberNotFound))
		return
	}

	h.JSON(w, http.StatusOK, server)
}

// RemoveMember kicks another member from the server. Owner only.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	const tag = "[MEMBER_ID_DELETE]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	serverID, err := requireID(r.URL.Query().Get("serverId"), apperr.MsgMissingServerID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}
	memberID, err := requireID(chi.URLParam(r, "memberId"), apperr.MsgMissingMemberID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	server, err := h.store.RemoveMember(r.Context(), serverID, memberID, profile.ID)
	if err != nil {
		h.Fail(w, tag, storeError(err, apperr.MsgMemberNotFound))
		return
	}

	h.JSON(w, http.StatusOK, server)
}
