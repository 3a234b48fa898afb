package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ServerLanding sends a member to the default channel of a server.
//
// Anonymous callers are redirected to sign in. A server that is not visible
// to the caller, or has no default channel, answers 200 with an empty body.
func (h *Handler) ServerLanding(w http.ResponseWriter, r *http.Request) {
	profile := h.profile(r)
	if profile == nil {
		http.Redirect(w, r, h.signInURL, http.StatusTemporaryRedirect)
		return
	}

	serverID, err := uuid.Parse(chi.URLParam(r, "serverId"))
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	channel, err := h.store.FindDefaultChannel(r.Context(), serverID, profile.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("tag", "[SERVER_LANDING]").Msg("default channel lookup failed")
		w.WriteHeader(http.StatusOK)
		return
	}
	if channel == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/servers/%s/channels/%s", serverID, channel.ID), http.StatusTemporaryRedirect)
}
