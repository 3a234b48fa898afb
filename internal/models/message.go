package models

import (
	"time"

	"github.com/google/uuid"
)

// DeletedContent replaces the content of a soft-deleted message.
const DeletedContent = "Questo messaggio é stato eliminato."

// DirectMessage belongs to a conversation and is authored by one of its members.
type DirectMessage struct {
	ID             uuid.UUID `json:"id"`
	Content        string    `json:"content"`
	FileURL        *string   `json:"fileUrl"`
	MemberID       uuid.UUID `json:"memberId"`
	ConversationID uuid.UUID `json:"conversationId"`
	Deleted        bool      `json:"deleted"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Member *Member `json:"member,omitempty"`
}

// Message is posted in a server text channel.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	FileURL   *string   `json:"fileUrl"`
	MemberID  uuid.UUID `json:"memberId"`
	ChannelID uuid.UUID `json:"channelId"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Member *Member `json:"member,omitempty"`
}

// Permissions is the outcome of checking a caller against a message.
type Permissions struct {
	IsOwner     bool
	IsAdmin     bool
	IsModerator bool
}

// PermissionsFor computes what caller may do with a message authored by authorID.
func PermissionsFor(caller *Member, authorID uuid.UUID) Permissions {
	if caller == nil {
		return Permissions{}
	}
	return Permissions{
		IsOwner:     caller.ID == authorID,
		IsAdmin:     caller.Role == RoleAdmin,
		IsModerator: caller.Role == RoleModerator,
	}
}

// CanModify reports whether the caller may delete the message.
func (p Permissions) CanModify() bool {
	return p.IsOwner || p.IsAdmin || p.IsModerator
}

// CanEdit reports whether the caller may change the message content. Only
// the author can, whatever their role.
func (p Permissions) CanEdit() bool {
	return p.IsOwner
}
