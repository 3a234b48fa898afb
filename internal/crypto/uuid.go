package crypto

import (
	"github.com/google/uuid"
)

// NewUUIDv7 generates a time-ordered UUID v7. Row ids use it so that id
// order follows insertion order, which message cursors rely on.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewInviteCode returns a fresh random invite code.
func NewInviteCode() string {
	return uuid.NewString()
}
