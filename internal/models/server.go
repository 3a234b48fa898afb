package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultChannelName is the protected channel every server is created with.
// It can never be renamed or deleted.
const DefaultChannelName = "generale"

// Server is a community workspace owned by a single profile.
type Server struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	ImageURL   string    `json:"imageUrl"`
	InviteCode string    `json:"inviteCode"`
	ProfileID  uuid.UUID `json:"profileId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	Channels []Channel `json:"channels,omitempty"`
	Members  []Member  `json:"members,omitempty"`
}

// ChannelType is the medium of a channel.
type ChannelType string

const (
	ChannelText  ChannelType = "TEXT"
	ChannelAudio ChannelType = "AUDIO"
	ChannelVideo ChannelType = "VIDEO"
)

// Valid reports whether t is a known channel type.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelText, ChannelAudio, ChannelVideo:
		return true
	}
	return false
}

// Channel is a named sub-space within a server.
type Channel struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`
	ProfileID uuid.UUID   `json:"profileId"`
	ServerID  uuid.UUID   `json:"serverId"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// IsDefault reports whether the channel is the protected default channel.
func (c Channel) IsDefault() bool {
	return c.Name == DefaultChannelName
}
