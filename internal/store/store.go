package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/LorenzoRonconi00/twin/internal/models"
)

var (
	// ErrNotFound means no row matched the statement's conditions.
	ErrNotFound = errors.New("store: not found")
	// ErrForbidden means the target exists but the caller's membership
	// does not satisfy the statement's role predicate.
	ErrForbidden = errors.New("store: forbidden")
)

// MessageBatch is the page size for message history.
const MessageBatch = 10

// DataStore defines the interface for persistent storage.
// Both PostgresStore and SQLiteStore implement this interface.
//
// Lookups return (nil, nil) when nothing matches. Guarded mutations return
// ErrForbidden or ErrNotFound when their conditional statement affected no
// rows; the authorization predicate is always part of the mutating statement.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Profile operations
	GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error)
	CreateProfile(ctx context.Context, userID, name, imageURL, email string) (*models.Profile, error)

	// Server operations
	CreateServer(ctx context.Context, profileID uuid.UUID, name, imageURL, inviteCode string) (*models.Server, error)
	GetServer(ctx context.Context, id uuid.UUID) (*models.Server, error)
	RegenerateInviteCode(ctx context.Context, serverID, profileID uuid.UUID, inviteCode string) (*models.Server, error)
	JoinServer(ctx context.Context, inviteCode string, profileID uuid.UUID) (*models.Server, error)
	FindDefaultChannel(ctx context.Context, serverID, profileID uuid.UUID) (*models.Channel, error)

	// Channel operations, guarded by role {ADMIN, MODERATOR} and the default channel name
	CreateChannel(ctx context.Context, serverID, profileID uuid.UUID, name string, channelType models.ChannelType) (*models.Server, error)
	UpdateChannel(ctx context.Context, serverID, channelID, profileID uuid.UUID, name string, channelType models.ChannelType) (*models.Server, error)
	DeleteChannel(ctx context.Context, serverID, channelID, profileID uuid.UUID) (*models.Server, error)
	GetChannel(ctx context.Context, serverID, channelID uuid.UUID) (*models.Channel, error)

	// Member operations
	GetMember(ctx context.Context, serverID, profileID uuid.UUID) (*models.Member, error)
	GetMemberByID(ctx context.Context, serverID, memberID uuid.UUID) (*models.Member, error)
	UpdateMemberRole(ctx context.Context, serverID, memberID, ownerID uuid.UUID, role models.MemberRole) (*models.Server, error)
	RemoveMember(ctx context.Context, serverID, memberID, ownerID uuid.UUID) (*models.Server, error)

	// Conversation operations
	GetOrCreateConversation(ctx context.Context, memberOneID, memberTwoID uuid.UUID) (*models.Conversation, error)
	GetConversationForProfile(ctx context.Context, conversationID, profileID uuid.UUID) (*models.Conversation, error)

	// Direct message operations
	CreateDirectMessage(ctx context.Context, conversationID, memberID uuid.UUID, content string, fileURL *string) (*models.DirectMessage, error)
	GetDirectMessage(ctx context.Context, id, conversationID uuid.UUID) (*models.DirectMessage, error)
	UpdateDirectMessage(ctx context.Context, id uuid.UUID, content string) (*models.DirectMessage, error)
	SoftDeleteDirectMessage(ctx context.Context, id uuid.UUID) (*models.DirectMessage, error)
	ListDirectMessages(ctx context.Context, conversationID uuid.UUID, cursor *uuid.UUID, limit int) ([]models.DirectMessage, error)

	// Channel message operations
	CreateMessage(ctx context.Context, channelID, memberID uuid.UUID, content string, fileURL *string) (*models.Message, error)
	GetMessage(ctx context.Context, id, channelID uuid.UUID) (*models.Message, error)
	UpdateMessage(ctx context.Context, id uuid.UUID, content string) (*models.Message, error)
	SoftDeleteMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessages(ctx context.Context, channelID uuid.UUID, cursor *uuid.UUID, limit int) ([]models.Message, error)

	// Stats
	Stats(ctx context.Context) (*models.Stats, error)
}

// scanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const (
	profileColumns = `p.id, p.user_id, p.name, p.image_url, p.email, p.created_at, p.updated_at`
	serverColumns  = `s.id, s.name, s.image_url, s.invite_code, s.profile_id, s.created_at, s.updated_at`
	channelColumns = `c.id, c.name, c.type, c.profile_id, c.server_id, c.created_at, c.updated_at`
	memberColumns  = `m.id, m.role, m.profile_id, m.server_id, m.created_at, m.updated_at`

	directMessageColumns = `d.id, d.content, d.file_url, d.member_id, d.conversation_id, d.deleted, d.created_at, d.updated_at`
	messageColumns       = `x.id, x.content, x.file_url, x.member_id, x.channel_id, x.deleted, x.created_at, x.updated_at`
)

func scanProfile(row scanner) (*models.Profile, error) {
	p := &models.Profile{}
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.ImageURL, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanServer(row scanner) (*models.Server, error) {
	s := &models.Server{}
	err := row.Scan(&s.ID, &s.Name, &s.ImageURL, &s.InviteCode, &s.ProfileID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanChannel(row scanner) (*models.Channel, error) {
	c := &models.Channel{}
	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.ProfileID, &c.ServerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// scanMemberWithProfile reads memberColumns followed by profileColumns.
func scanMemberWithProfile(row scanner) (*models.Member, error) {
	m := &models.Member{Profile: &models.Profile{}}
	p := m.Profile
	err := row.Scan(
		&m.ID, &m.Role, &m.ProfileID, &m.ServerID, &m.CreatedAt, &m.UpdatedAt,
		&p.ID, &p.UserID, &p.Name, &p.ImageURL, &p.Email, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// scanDirectMessage reads directMessageColumns, memberColumns, profileColumns.
func scanDirectMessage(row scanner) (*models.DirectMessage, error) {
	d := &models.DirectMessage{Member: &models.Member{Profile: &models.Profile{}}}
	m := d.Member
	p := m.Profile
	err := row.Scan(
		&d.ID, &d.Content, &d.FileURL, &d.MemberID, &d.ConversationID, &d.Deleted, &d.CreatedAt, &d.UpdatedAt,
		&m.ID, &m.Role, &m.ProfileID, &m.ServerID, &m.CreatedAt, &m.UpdatedAt,
		&p.ID, &p.UserID, &p.Name, &p.ImageURL, &p.Email, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// scanMessage reads messageColumns, memberColumns, profileColumns.
func scanMessage(row scanner) (*models.Message, error) {
	x := &models.Message{Member: &models.Member{Profile: &models.Profile{}}}
	m := x.Member
	p := m.Profile
	err := row.Scan(
		&x.ID, &x.Content, &x.FileURL, &x.MemberID, &x.ChannelID, &x.Deleted, &x.CreatedAt, &x.UpdatedAt,
		&m.ID, &m.Role, &m.ProfileID, &m.ServerID, &m.CreatedAt, &m.UpdatedAt,
		&p.ID, &p.UserID, &p.Name, &p.ImageURL, &p.Email, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return x, nil
}

// clampLimit bounds a page size to (0, MessageBatch*5].
func clampLimit(limit int) int {
	if limit <= 0 {
		return MessageBatch
	}
	if limit > MessageBatch*5 {
		return MessageBatch * 5
	}
	return limit
}
