package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/LorenzoRonconi00/twin/internal/apperr"
	"github.com/LorenzoRonconi00/twin/internal/metrics"
	"github.com/LorenzoRonconi00/twin/internal/models"
	"github.com/LorenzoRonconi00/twin/internal/store"
)

// ChannelRequest is the body of channel create and update requests.
type ChannelRequest struct {
	Name string             `json:"name"`
	Type models.ChannelType `json:"type"`
}

// CreateChannel adds a channel to a server the caller manages.
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	const tag = "[CHANNELS_POST]"

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

	var req ChannelRequest
	if err := decode(r, &req); err != nil {
		h.Fail(w, tag, err)
		return
	}
	name := sanitizeName(req.Name)
	if name == "" {
		h.Fail(w, tag, apperr.InvalidArg(apperr.MsgMissingName))
		return
	}
	if name == models.DefaultChannelName {
		h.Fail(w, tag, apperr.InvalidArg(apperr.MsgReservedName))
		return
	}
	if req.Type == "" {
		req.Type = models.ChannelText
	}
	if !req.Type.Valid() {
		h.Fail(w, tag, apperr.InvalidArg(apperr.MsgInvalidChannel))
		return
	}

	server, err := h.store.CreateChannel(r.Context(), serverID, profile.ID, name, req.Type)
	metrics.ChannelMutations.WithLabelValues("create", outcome(err)).Inc()
	if err != nil {
		h.Fail(w, tag, storeError(err, apperr.MsgServerNotFound))
		return
	}

	h.JSON(w, http.StatusOK, server)
}

// UpdateChannel renames or retypes a channel. The default channel never
// matches the update.
func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	const tag = "[CHANNEL_ID_PATCH]"

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
	channelID, err := requireID(chi.URLParam(r, "channelId"), apperr.MsgMissingChannelID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	var req ChannelRequest
	if err := decode(r, &req); err != nil {
		h.Fail(w, tag, err)
		return
	}
	name := sanitizeName(req.Name)
	if name == models.DefaultChannelName {
		h.Fail(w, tag, apperr.InvalidArg(apperr.MsgReservedName))
		return
	}
	if req.Type != "" && !req.Type.Valid() {
		h.Fail(w, tag, apperr.InvalidArg(apperr.MsgInvalidChannel))
		return
	}

	server, err := h.store.UpdateChannel(r.Context(), serverID, channelID, profile.ID, name, req.Type)
	metrics.ChannelMutations.WithLabelValues("update", outcome(err)).Inc()
	if err != nil {
		h.Fail(w, tag, storeError(err, apperr.MsgChannelNotFound))
		return
	}

	h.JSON(w, http.StatusOK, server)
}

// DeleteChannel removes a channel. The default channel never matches the delete.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	const tag = "[CHANNEL_ID_DELETE]"

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
	channelID, err := requireID(chi.URLParam(r, "channelId"), apperr.MsgMissingChannelID)
	if err != nil {
		h.Fail(w, tag, err)
		return
	}

	server, err := h.store.DeleteChannel(r.Context(), serverID, channelID, profile.ID)
	metrics.ChannelMutations.WithLabelValues("delete", outcome(err)).Inc()
	if err != nil {
		h.Fail(w, tag, storeError(err, apperr.MsgChannelNotFound))
		return
	}

	h.JSON(w, http.StatusOK, server)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrForbidden):
		return "forbidden"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	}
	return "error"
}
