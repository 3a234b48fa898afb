package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unauthenticated", Unauthenticated(), http.StatusUnauthorized},
		{"unauthorized", Unauthorized(), http.StatusUnauthorized},
		{"missing id", InvalidArg(MsgMissingServerID), http.StatusBadRequest},
		{"not found", NotFound(MsgMessageNotFound), http.StatusNotFound},
		{"method", MethodNotAllowed(), http.StatusMethodNotAllowed},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
		{"plain error", errors.New("driver exploded"), http.StatusInternalServerError},
		{"wrapped app error", fmt.Errorf("ctx: %w", NotFound(MsgConvNotFound)), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessageHidesCauses(t *testing.T) {
	assert.Equal(t, MsgInternal, PublicMessage(errors.New("pq: relation does not exist")))
	assert.Equal(t, MsgInternal, PublicMessage(Internal(errors.New("secret detail"))))
	assert.Equal(t, MsgReservedName, PublicMessage(InvalidArg(MsgReservedName)))
}

func TestErrorIncludesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(CodeInternal, "query failed", cause)

	assert.Equal(t, "query failed: timeout", err.Error())
	assert.ErrorIs(t, err, cause)
}
