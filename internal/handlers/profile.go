package handlers

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/LorenzoRonconi00/twin/internal/apperr"
	"github.com/LorenzoRonconi00/twin/internal/identity"
)

// InitialProfile returns the caller's profile, creating it on first visit.
func (h *Handler) InitialProfile(w http.ResponseWriter, r *http.Request) {
	const tag = "[PROFILE_GET]"

	profile, err := h.resolver.Initial(r)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			h.Fail(w, tag, apperr.Unauthenticated())
			return
		}
		h.Fail(w, tag, apperr.Internal(err))
		return
	}

	h.JSON(w, http.StatusOK, profile)
}
