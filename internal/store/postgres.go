package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/LorenzoRonconi00/twin/internal/crypto"
	"github.com/LorenzoRonconi00/twin/internal/models"
)

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 50
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetProfileByUserID retrieves the profile bound to an external auth subject.
func (s *PostgresStore) GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p WHERE p.user_id = $1
	`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "postgres.GetProfileByUserID")
	}
	return p, nil
}

// CreateProfile creates the profile for userID. A concurrent first visit
// for the same subject resolves to the row that won.
func (s *PostgresStore) CreateProfile(ctx context.Context, userID, name, imageURL, email string) (*models.Profile, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, user_id, name, image_url, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id) DO NOTHING
	`, crypto.NewUUIDv7(), userID, name, imageURL, email, now)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.CreateProfile")
	}
	return s.GetProfileByUserID(ctx, userID)
}

// CreateServer creates a server with its default channel and the creator
// as ADMIN member in one transaction.
func (s *PostgresStore) CreateServer(ctx context.Context, profileID uuid.UUID, name, imageURL, inviteCode string) (*models.Server, error) {
	now := time.Now().UTC()
	serverID := crypto.NewUUIDv7()

	var server *models.Server
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO servers (id, name, image_url, invite_code, profile_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, serverID, name, imageURL, inviteCode, profileID, now); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO channels (id, name, type, profile_id, server_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, crypto.NewUUIDv7(), models.DefaultChannelName, string(models.ChannelText), profileID, serverID, now); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO members (id, role, profile_id, server_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, crypto.NewUUIDv7(), string(models.RoleAdmin), profileID, serverID, now); err != nil {
			return err
		}

		var err error
		server, err = pgLoadServer(ctx, tx, serverID)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "postgres.CreateServer")
	}
	return server, nil
}

// GetServer retrieves a server with its channels and members.
func (s *PostgresStore) GetServer(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	server, err := pgLoadServer(ctx, s.pool, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "postgres.GetServer")
	}
	return server, nil
}

// RegenerateInviteCode replaces the invite code of a server owned by profileID.
func (s *PostgresStore) RegenerateInviteCode(ctx context.Context, serverID, profileID uuid.UUID, inviteCode string) (*models.Server, error) {
	var server *models.Server
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE servers SET invite_code = $3, updated_at = $4
			WHERE id = $1 AND profile_id = $2
		`, serverID, profileID, inviteCode, time.Now().UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgClassifyOwner(ctx, tx, serverID, profileID)
		}

		server, err = pgLoadServer(ctx, tx, serverID)
		return err
	})
	if err != nil {
		return nil, pgWrap(err, "postgres.RegenerateInviteCode")
	}
	return server, nil
}

// JoinServer adds profileID as GUEST of the server owning inviteCode. Joining
// a server twice is a no-op.
func (s *PostgresStore) JoinServer(ctx context.Context, inviteCode string, profileID uuid.UUID) (*models.Server, error) {
	var server *models.Server
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var serverID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM servers WHERE invite_code = $1`, inviteCode).Scan(&serverID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.Exec(ctx, `
			INSERT INTO members (id, role, profile_id, server_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (profile_id, server_id) DO NOTHING
		`, crypto.NewUUIDv7(), string(models.RoleGuest), profileID, serverID, now); err != nil {
			return err
		}

		server, err = pgLoadServer(ctx, tx, serverID)
		return err
	})
	if err != nil {
		return nil, pgWrap(err, "postgres.JoinServer")
	}
	return server, nil
}

// FindDefaultChannel returns the default channel of a server the profile is a
// member of, or nil when the server is not visible or has no default channel.
func (s *PostgresStore) FindDefaultChannel(ctx context.Context, serverID, profileID uuid.UUID) (*models.Channel, error) {
	c, err := scanChannel(s.pool.QueryRow(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.server_id = $1 AND c.name = $3
		  AND EXISTS (SELECT 1 FROM members m WHERE m.server_id = c.server_id AND m.profile_id = $2)
		ORDER BY c.created_at ASC
		LIMIT 1
	`, serverID, profileID, models.DefaultChannelName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "postgres.FindDefaultChannel")
	}
	return c, nil
}

// CreateChannel inserts a channel if profileID manages the server.
func (s *PostgresStore) CreateChannel(ctx context.Context, serverID, profileID uuid.UUID, name string, channelType models.ChannelType) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO channels (id, name, type, profile_id, server_id, created_at, updated_at)
			SELECT $1::uuid, $2::text, $3::text, $4::uuid, $5::uuid, $6::timestamptz, $6::timestamptz
			WHERE $2::text <> $7::text
			  AND EXISTS (
				SELECT 1 FROM members m
				WHERE m.server_id = $5::uuid AND m.profile_id = $4::uuid AND m.role IN ($8::text, $9::text)
			  )
		`, crypto.NewUUIDv7(), name, string(channelType), profileID, serverID, now,
			models.DefaultChannelName, string(models.RoleAdmin), string(models.RoleModerator))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgClassifyManager(ctx, tx, serverID, profileID)
		}

		server, err = pgTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, pgWrap(err, "postgres.CreateChannel")
	}
	return server, nil
}

// UpdateChannel renames or retypes a non-default channel if profileID
// manages the server. Empty name or type keep the current value.
func (s *PostgresStore) UpdateChannel(ctx context.Context, serverID, channelID, profileID uuid.UUID, name string, channelType models.ChannelType) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE channels c
			SET name = COALESCE(NULLIF($4::text, ''), c.name),
			    type = COALESCE(NULLIF($5::text, ''), c.type),
			    updated_at = $6
			WHERE c.id = $1 AND c.server_id = $2
			  AND c.name <> $7 AND $4::text <> $7
			  AND EXISTS (
				SELECT 1 FROM members m
				WHERE m.server_id = $2 AND m.profile_id = $3 AND m.role IN ($8, $9)
			  )
		`, channelID, serverID, profileID, name, string(channelType), now,
			models.DefaultChannelName, string(models.RoleAdmin), string(models.RoleModerator))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgClassifyManager(ctx, tx, serverID, profileID)
		}

		server, err = pgTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, pgWrap(err, "postgres.UpdateChannel")
	}
	return server, nil
}

// DeleteChannel removes a non-default channel if profileID manages the server.
func (s *PostgresStore) DeleteChannel(ctx context.Context, serverID, channelID, profileID uuid.UUID) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM channels c
			WHERE c.id = $1 AND c.server_id = $2 AND c.name <> $4
			  AND EXISTS (
				SELECT 1 FROM members m
				WHERE m.server_id = $2 AND m.profile_id = $3 AND m.role IN ($5, $6)
			  )
		`, channelID, serverID, profileID,
			models.DefaultChannelName, string(models.RoleAdmin), string(models.RoleModerator))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgClassifyManager(ctx, tx, serverID, profileID)
		}

		server, err = pgTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, pgWrap(err, "postgres.DeleteChannel")
	}
	return server, nil
}

// GetChannel retrieves a channel scoped to its server.
func (s *PostgresStore) GetChannel(ctx context.Context, serverID, channelID uuid.UUID) (*models.Channel, error) {
	c, err := scanChannel(s.pool.QueryRow(ctx, `
		SELECT `+channelColumns+`
		FROM channels c WHERE c.id = $1 AND c.server_id = $2
	`, channelID, serverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "postgres.GetChannel")
	}
	return c, nil
}

// GetMember retrieves the membership of a profile in a server.
func (s *PostgresStore) GetMember(ctx context.Context, serverID, profileID uuid.UUID) (*models.Member, error) {
	m, err := scanMemberWithProfile(s.pool.QueryRow(ctx, `
		SELECT `+memberColumns+`, `+profileColumns+`
		FROM members m JOIN profiles p ON p.id = m.profile_id
		WHERE m.server_id = $1 AND m.profile_id = $2
	`, serverID, profileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "postgres.GetMember")
	}
	return m, nil
}

// GetMemberByID retrieves a member of a server by id.
func (s *PostgresStore) GetMemberByID(ctx context.Context, serverID, memberID uuid.UUID) (*models.Member, error) {
	m, err := scanMemberWithProfile(s.pool.QueryRow(ctx, `
		SELECT `+memberColumns+`, `+profileColumns+`
		FROM members m JOIN profiles p ON p.id = m.profile_id
		WHERE m.server_id = $1 AND m.id = $2
	`, serverID, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "postgres.GetMemberByID")
	}
	return m, nil
}

// UpdateMemberRole changes the role of another member of a server owned by
// ownerID. The owner's own membership is never matched.
func (s *PostgresStore) UpdateMemberRole(ctx context.Context, serverID, memberID, ownerID uuid.UUID, role models.MemberRole) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE members SET role = $4, updated_at = $5
			WHERE id = $2 AND server_id = $1 AND profile_id <> $3
			  AND EXISTS (SELECT 1 FROM servers s WHERE s.id = $1 AND s.profile_id = $3)
		`, serverID, memberID, ownerID, string(role), now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgClassifyOwner(ctx, tx, serverID, ownerID)
		}

		server, err = pgTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, pgWrap(err, "postgres.UpdateMemberRole")
	}
	return server, nil
}

// RemoveMember kicks another member from a server owned by ownerID.
func (s *PostgresStore) RemoveMember(ctx context.Context, serverID, memberID, ownerID uuid.UUID) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM members
			WHERE id = $2 AND server_id = $1 AND profile_id <> $3
			  AND EXISTS (SELECT 1 FROM servers s WHERE s.id = $1 AND s.profile_id = $3)
		`, serverID, memberID, ownerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgClassifyOwner(ctx, tx, serverID, ownerID)
		}

		server, err = pgTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, pgWrap(err, "postgres.RemoveMember")
	}
	return server, nil
}

// GetOrCreateConversation returns the conversation between two members in
// either orientation, creating it when absent.
func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, memberOneID, memberTwoID uuid.UUID) (*models.Conversation, error) {
	var conv *models.Conversation
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT id FROM conversations
			WHERE (member_one_id = $1 AND member_two_id = $2)
			   OR (member_one_id = $2 AND member_two_id = $1)
			LIMIT 1
		`, memberOneID, memberTwoID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			id = crypto.NewUUIDv7()
			_, err = tx.Exec(ctx, `
				INSERT INTO conversations (id, member_one_id, member_two_id, created_at)
				VALUES ($1, $2, $3, $4)
			`, id, memberOneID, memberTwoID, time.Now().UTC())
		}
		if err != nil {
			return err
		}

		conv, err = pgLoadConversation(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, pgWrap(err, "postgres.GetOrCreateConversation")
	}
	return conv, nil
}

// GetConversationForProfile retrieves a conversation only if profileID owns
// one of its two members.
func (s *PostgresStore) GetConversationForProfile(ctx context.Context, conversationID, profileID uuid.UUID) (*models.Conversation, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT c.id
		FROM conversations c
		JOIN members m1 ON m1.id = c.member_one_id
		JOIN members m2 ON m2.id = c.member_two_id
		WHERE c.id = $1 AND (m1.profile_id = $2 OR m2.profile_id = $2)
	`, conversationID, profileID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "postgres.GetConversationForProfile")
	}

	conv, err := pgLoadConversation(ctx, s.pool, id)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.GetConversationForProfile")
	}
	return conv, nil
}

const pgDirectMessageSelect = `
	SELECT ` + directMessageColumns + `, ` + memberColumns + `, ` + profileColumns + `
	FROM direct_messages d
	JOIN members m ON m.id = d.member_id
	JOIN profiles p ON p.id = m.profile_id
`

// CreateDirectMessage stores a new direct message.
func (s *PostgresStore) CreateDirectMessage(ctx context.Context, conversationID, memberID uuid.UUID, content string, fileURL *string) (*models.DirectMessage, error) {
	id := crypto.NewUUIDv7()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO direct_messages (id, content, file_url, member_id, conversation_id, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
	`, id, content, fileURL, memberID, conversationID, now)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.CreateDirectMessage")
	}
	return s.directMessageByID(ctx, id)
}

// GetDirectMessage retrieves a direct message scoped to its conversation.
func (s *PostgresStore) GetDirectMessage(ctx context.Context, id, conversationID uuid.UUID) (*models.DirectMessage, error) {
	d, err := scanDirectMessage(s.pool.QueryRow(ctx,
		pgDirectMessageSelect+` WHERE d.id = $1 AND d.conversation_id = $2`, id, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "postgres.GetDirectMessage")
	}
	return d, nil
}

// UpdateDirectMessage replaces the content of a live direct message.
func (s *PostgresStore) UpdateDirectMessage(ctx context.Context, id uuid.UUID, content string) (*models.DirectMessage, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE direct_messages SET content = $2, updated_at = $3
		WHERE id = $1 AND deleted = FALSE
	`, id, content, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "postgres.UpdateDirectMessage")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.directMessageByID(ctx, id)
}

// SoftDeleteDirectMessage tombstones a live direct message.
func (s *PostgresStore) SoftDeleteDirectMessage(ctx context.Context, id uuid.UUID) (*models.DirectMessage, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE direct_messages SET content = $2, file_url = NULL, deleted = TRUE, updated_at = $3
		WHERE id = $1 AND deleted = FALSE
	`, id, models.DeletedContent, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "postgres.SoftDeleteDirectMessage")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.directMessageByID(ctx, id)
}

// ListDirectMessages returns a page of a conversation, newest first. When
// cursor is set, only messages older than it are returned.
func (s *PostgresStore) ListDirectMessages(ctx context.Context, conversationID uuid.UUID, cursor *uuid.UUID, limit int) ([]models.DirectMessage, error) {
	limit = clampLimit(limit)

	var (
		rows pgx.Rows
		err  error
	)
	if cursor != nil {
		rows, err = s.pool.Query(ctx, pgDirectMessageSelect+`
			WHERE d.conversation_id = $1 AND d.id < $2
			ORDER BY d.id DESC LIMIT $3
		`, conversationID, *cursor, limit)
	} else {
		rows, err = s.pool.Query(ctx, pgDirectMessageSelect+`
			WHERE d.conversation_id = $1
			ORDER BY d.id DESC LIMIT $2
		`, conversationID, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres.ListDirectMessages")
	}
	defer rows.Close()

	messages := make([]models.DirectMessage, 0, limit)
	for rows.Next() {
		d, err := scanDirectMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres.ListDirectMessages.Scan")
		}
		messages = append(messages, *d)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) directMessageByID(ctx context.Context, id uuid.UUID) (*models.DirectMessage, error) {
	d, err := scanDirectMessage(s.pool.QueryRow(ctx, pgDirectMessageSelect+` WHERE d.id = $1`, id))
	if err != nil {
		return nil, errors.Wrap(err, "postgres.directMessageByID")
	}
	return d, nil
}

const pgMessageSelect = `
	SELECT ` + messageColumns + `, ` + memberColumns + `, ` + profileColumns + `
	FROM messages x
	JOIN members m ON m.id = x.member_id
	JOIN profiles p ON p.id = m.profile_id
`

// CreateMessage stores a new channel message.
func (s *PostgresStore) CreateMessage(ctx context.Context, channelID, memberID uuid.UUID, content string, fileURL *string) (*models.Message, error) {
	id := crypto.NewUUIDv7()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, content, file_url, member_id, channel_id, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
	`, id, content, fileURL, memberID, channelID, now)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.CreateMessage")
	}
	return s.messageByID(ctx, id)
}

// GetMessage retrieves a channel message scoped to its channel.
func (s *PostgresStore) GetMessage(ctx context.Context, id, channelID uuid.UUID) (*models.Message, error) {
	x, err := scanMessage(s.pool.QueryRow(ctx,
		pgMessageSelect+` WHERE x.id = $1 AND x.channel_id = $2`, id, channelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "postgres.GetMessage")
	}
	return x, nil
}

// UpdateMessage replaces the content of a live channel message.
func (s *PostgresStore) UpdateMessage(ctx context.Context, id uuid.UUID, content string) (*models.Message, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET content = $2, updated_at = $3
		WHERE id = $1 AND deleted = FALSE
	`, id, content, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "postgres.UpdateMessage")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.messageByID(ctx, id)
}

// SoftDeleteMessage tombstones a live channel message.
func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET content = $2, file_url = NULL, deleted = TRUE, updated_at = $3
		WHERE id = $1 AND deleted = FALSE
	`, id, models.DeletedContent, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "postgres.SoftDeleteMessage")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.messageByID(ctx, id)
}

// ListMessages returns a page of a channel, newest first.
func (s *PostgresStore) ListMessages(ctx context.Context, channelID uuid.UUID, cursor *uuid.UUID, limit int) ([]models.Message, error) {
	limit = clampLimit(limit)

	var (
		rows pgx.Rows
		err  error
	)
	if cursor != nil {
		rows, err = s.pool.Query(ctx, pgMessageSelect+`
			WHERE x.channel_id = $1 AND x.id < $2
			ORDER BY x.id DESC LIMIT $3
		`, channelID, *cursor, limit)
	} else {
		rows, err = s.pool.Query(ctx, pgMessageSelect+`
			WHERE x.channel_id = $1
			ORDER BY x.id DESC LIMIT $2
		`, channelID, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres.ListMessages")
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		x, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres.ListMessages.Scan")
		}
		messages = append(messages, *x)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) messageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	x, err := scanMessage(s.pool.QueryRow(ctx, pgMessageSelect+` WHERE x.id = $1`, id))
	if err != nil {
		return nil, errors.Wrap(err, "postgres.messageByID")
	}
	return x, nil
}

// Stats returns aggregate counts.
func (s *PostgresStore) Stats(ctx context.Context) (*models.Stats, error) {
	st := &models.Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM servers),
			(SELECT COUNT(*) FROM channels),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM direct_messages)
	`).Scan(&st.Profiles, &st.Servers, &st.Channels, &st.Messages, &st.DirectMessages)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.Stats")
	}
	return st, nil
}

// pgLoadServer reads a server with its channels (oldest first) and members.
func pgLoadServer(ctx context.Context, q pgQuerier, id uuid.UUID) (*models.Server, error) {
	server, err := scanServer(q.QueryRow(ctx, `
		SELECT `+serverColumns+` FROM servers s WHERE s.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+channelColumns+` FROM channels c
		WHERE c.server_id = $1 ORDER BY c.created_at ASC, c.id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	server.Channels = []models.Channel{}
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		server.Channels = append(server.Channels, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT `+memberColumns+`, `+profileColumns+`
		FROM members m JOIN profiles p ON p.id = m.profile_id
		WHERE m.server_id = $1 ORDER BY m.created_at ASC, m.id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	server.Members = []models.Member{}
	for rows.Next() {
		m, err := scanMemberWithProfile(rows)
		if err != nil {
			return nil, err
		}
		server.Members = append(server.Members, *m)
	}
	return server, rows.Err()
}

func pgTouchAndLoadServer(ctx context.Context, q pgQuerier, id uuid.UUID, now time.Time) (*models.Server, error) {
	if _, err := q.Exec(ctx, `UPDATE servers SET updated_at = $2 WHERE id = $1`, id, now); err != nil {
		return nil, err
	}
	return pgLoadServer(ctx, q, id)
}

func pgLoadConversation(ctx context.Context, q pgQuerier, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := q.QueryRow(ctx, `
		SELECT id, member_one_id, member_two_id, created_at FROM conversations WHERE id = $1
	`, id).Scan(&conv.ID, &conv.MemberOneID, &conv.MemberTwoID, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	memberSelect := `
		SELECT ` + memberColumns + `, ` + profileColumns + `
		FROM members m JOIN profiles p ON p.id = m.profile_id
		WHERE m.id = $1
	`
	if conv.MemberOne, err = scanMemberWithProfile(q.QueryRow(ctx, memberSelect, conv.MemberOneID)); err != nil {
		return nil, err
	}
	if conv.MemberTwo, err = scanMemberWithProfile(q.QueryRow(ctx, memberSelect, conv.MemberTwoID)); err != nil {
		return nil, err
	}
	return conv, nil
}

// pgClassifyOwner explains why an owner-scoped statement matched nothing.
func pgClassifyOwner(ctx context.Context, q pgQuerier, serverID, profileID uuid.UUID) error {
	var owner uuid.UUID
	err := q.QueryRow(ctx, `SELECT profile_id FROM servers WHERE id = $1`, serverID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if owner != profileID {
		return ErrForbidden
	}
	return ErrNotFound
}

// pgClassifyManager explains why a role-guarded channel statement matched
// nothing: the caller is not a manager, or the target is missing/protected.
func pgClassifyManager(ctx context.Context, q pgQuerier, serverID, profileID uuid.UUID) error {
	var role models.MemberRole
	err := q.QueryRow(ctx, `
		SELECT role FROM members WHERE server_id = $1 AND profile_id = $2
	`, serverID, profileID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrForbidden
		}
		return err
	}
	if !role.CanManage() {
		return ErrForbidden
	}
	return ErrNotFound
}

// pgWrap keeps store sentinels unwrapped so callers can match them directly.
func pgWrap(err error, op string) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
		return err
	}
	return errors.Wrap(err, op)
}
