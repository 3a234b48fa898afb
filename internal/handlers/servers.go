package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LorenzoRonconi00/twin/internal/apperr"
	"github.com/LorenzoRonconi00/twin/internal/crypto"
	"github.com/LorenzoRonconi00/twin/internal/metrics"
)

// CreateServerRequest is the body of POST /api/servers.
type CreateServerRequest struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// CreateServer creates a server with its default channel and the caller as ADMIN.
func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	const tag = "[SERVER_POST]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	var req CreateServerRequest
	if err := decode(r, &req); err != nil {
		h.Fail(w, tag, err)
		return
	}
	name := sanitizeName(req.Name)
	if name == "" {
		h.Fail(w, tag, apperr.InvalidArg(apperr.MsgMissingName))
		return
	}

	server, err := h.store.CreateServer(r.Context(), profile.ID, name, req.ImageURL, crypto.NewInviteCode())
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	metrics.ServersCreated.Inc()

	h.JSON(w, http.StatusOK, server)
}

// GetServer returns a server the caller is a member of.
func (h *Handler) GetServer(w http.ResponseWriter, r *http.Request) {
	const tag = "[SERVER_GET]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	serverID, err := requireID(chi.URLParam(r, "serverId"), apperr.MsgMissingServerID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	member, err := h.store.GetMember(r.Context(), serverID, profile.ID)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	if member == nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgServerNotFound))
		return
	}

	server, err := h.store.GetServer(r.Context(), serverID)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}
	if server == nil {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgServerNotFound))
		return
	}

	h.JSON(w, http.StatusOK, server)
}

// RegenerateInviteCode issues a fresh invite code. Only the server's owner
// matches the update.
func (h *Handler) RegenerateInviteCode(w http.ResponseWriter, r *http.Request) {
	const tag = "[SERVER_ID]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	serverID, err := requireID(chi.URLParam(r, "serverId"), apperr.MsgMissingServerID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	server, err := h.store.RegenerateInviteCode(r.Context(), serverID, profile.ID, crypto.NewInviteCode())
	if err != nil {
		h.Fail(w, tag, storeError(err, apperr.MsgServerNotFound))
		return
	}

	h.JSON(w, http.StatusOK, server)
}

// JoinServer adds the caller to the server owning the invite code.
func (h *Handler) JoinServer(w http.ResponseWriter, r *http.Request) {
	const tag = "[INVITE_CODE]"

	profile := h.profile(r)
	if profile == nil {
		h.Fail(w, tag, apperr.Unauthenticated())
		return
	}

	code := chi.URLParam(r, "inviteCode")
	if code == "" {
		h.Fail(w, tag, apperr.NotFound(apperr.MsgInviteNotFound))
		return
	}

	server, err := h.store.JoinServer(r.Context(), code, profile.ID)
	if err != nil {
		h.Fail(w, tag, storeError(err, apperr.MsgInviteNotFound))
		return
	}

	h.JSON(w, http.StatusOK, server)
}
