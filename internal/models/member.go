package models

import (
	"time"

	"github.com/google/uuid"
)

// MemberRole is a member's role within one server.
type MemberRole string

const (
	RoleAdmin     MemberRole = "ADMIN"
	RoleModerator MemberRole = "MODERATOR"
	RoleGuest     MemberRole = "GUEST"
)

// CanManage reports whether the role may manage channels and moderate messages.
func (r MemberRole) CanManage() bool {
	return r == RoleAdmin || r == RoleModerator
}

// Member joins a profile to a server with a role.
type Member struct {
	ID        uuid.UUID  `json:"id"`
	Role      MemberRole `json:"role"`
	ProfileID uuid.UUID  `json:"profileId"`
	ServerID  uuid.UUID  `json:"serverId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`

	Profile *Profile `json:"profile,omitempty"`
}

// Conversation is a 1:1 thread between two members.
type Conversation struct {
	ID          uuid.UUID `json:"id"`
	MemberOneID uuid.UUID `json:"memberOneId"`
	MemberTwoID uuid.UUID `json:"memberTwoId"`
	CreatedAt   time.Time `json:"createdAt"`

	MemberOne *Member `json:"memberOne,omitempty"`
	MemberTwo *Member `json:"memberTwo,omitempty"`
}

// MemberFor returns the conversation side owned by profileID, or nil.
func (c *Conversation) MemberFor(profileID uuid.UUID) *Member {
	if c.MemberOne != nil && c.MemberOne.ProfileID == profileID {
		return c.MemberOne
	}
	if c.MemberTwo != nil && c.MemberTwo.ProfileID == profileID {
		return c.MemberTwo
	}
	return nil
}
