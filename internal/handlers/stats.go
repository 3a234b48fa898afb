package handlers

import (
	"net/http"

	"github.com/LorenzoRonconi00/twin/internal/apperr"
	"github.com/LorenzoRonconi00/twin/internal/models"
)

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	models.Stats
	RealtimeClients int   `json:"realtimeClients"`
	ActiveSessions  int64 `json:"activeSessions"`
}

// Stats returns platform-wide counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	const tag = "[STATS]"

	ctx := r.Context()
	stats, err := h.store.Stats(ctx)
	if err != nil {
		h.Fail(w, tag, apperr.Internal(err))
		return
	}

	resp := StatsResponse{Stats: *stats}
	if h.clients != nil {
		resp.RealtimeClients = h.clients.ClientCount()
	}
	if h.redis != nil {
		n, err := h.redis.ActiveSessions(ctx)
		if err != nil {
			h.logger.Warn().Err(err).Str("tag", tag).Msg("active sessions unavailable")
		}
		resp.ActiveSessions = n
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	h.JSON(w, http.StatusOK, resp)
}
