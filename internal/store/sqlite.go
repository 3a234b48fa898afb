package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/LorenzoRonconi00/twin/internal/crypto"
	"github.com/LorenzoRonconi00/twin/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/twin.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/twin.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One writer keeps guarded statements and their follow-up reads serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS servers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		invite_code TEXT UNIQUE NOT NULL,
		profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'TEXT' CHECK (type IN ('TEXT', 'AUDIO', 'VIDEO')),
		profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		server_id TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'GUEST' CHECK (role IN ('ADMIN', 'MODERATOR', 'GUEST')),
		profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		server_id TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (profile_id, server_id)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		member_one_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		member_two_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		UNIQUE (member_one_id, member_two_id)
	);

	CREATE TABLE IF NOT EXISTS direct_messages (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		file_url TEXT,
		member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		deleted BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		file_url TEXT,
		member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		deleted BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_channels_server ON channels(server_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_members_server ON members(server_id);
	CREATE INDEX IF NOT EXISTS idx_direct_messages_conversation ON direct_messages(conversation_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetProfileByUserID retrieves the profile bound to an external auth subject.
func (s *SQLiteStore) GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+` FROM profiles p WHERE p.user_id = ?
	`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite.GetProfileByUserID")
	}
	return p, nil
}

// CreateProfile creates the profile for userID, or returns the existing one.
func (s *SQLiteStore) CreateProfile(ctx context.Context, userID, name, imageURL, email string) (*models.Profile, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, user_id, name, image_url, email, created_at, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?6)
		ON CONFLICT (user_id) DO NOTHING
	`, crypto.NewUUIDv7(), userID, name, imageURL, email, now)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.CreateProfile")
	}
	return s.GetProfileByUserID(ctx, userID)
}

// CreateServer creates a server with its default channel and the creator as
// ADMIN member in one transaction.
func (s *SQLiteStore) CreateServer(ctx context.Context, profileID uuid.UUID, name, imageURL, inviteCode string) (*models.Server, error) {
	now := time.Now().UTC()
	serverID := crypto.NewUUIDv7()

	var server *models.Server
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO servers (id, name, image_url, invite_code, profile_id, created_at, updated_at)
			VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?6)
		`, serverID, name, imageURL, inviteCode, profileID, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channels (id, name, type, profile_id, server_id, created_at, updated_at)
			VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?6)
		`, crypto.NewUUIDv7(), models.DefaultChannelName, string(models.ChannelText), profileID, serverID, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO members (id, role, profile_id, server_id, created_at, updated_at)
			VALUES (?1, ?2, ?3, ?4, ?5, ?5)
		`, crypto.NewUUIDv7(), string(models.RoleAdmin), profileID, serverID, now); err != nil {
			return err
		}

		var err error
		server, err = sqliteLoadServer(ctx, tx, serverID)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.CreateServer")
	}
	return server, nil
}

// GetServer retrieves a server with its channels and members.
func (s *SQLiteStore) GetServer(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	server, err := sqliteLoadServer(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite.GetServer")
	}
	return server, nil
}

// RegenerateInviteCode replaces the invite code of a server owned by profileID.
func (s *SQLiteStore) RegenerateInviteCode(ctx context.Context, serverID, profileID uuid.UUID, inviteCode string) (*models.Server, error) {
	var server *models.Server
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE servers SET invite_code = ?3, updated_at = ?4
			WHERE id = ?1 AND profile_id = ?2
		`, serverID, profileID, inviteCode, time.Now().UTC())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sqliteClassifyOwner(ctx, tx, serverID, profileID)
		}

		server, err = sqliteLoadServer(ctx, tx, serverID)
		return err
	})
	if err != nil {
		return nil, sqliteWrap(err, "sqlite.RegenerateInviteCode")
	}
	return server, nil
}

// JoinServer adds profileID as GUEST of the server owning inviteCode.
func (s *SQLiteStore) JoinServer(ctx context.Context, inviteCode string, profileID uuid.UUID) (*models.Server, error) {
	var server *models.Server
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var serverID uuid.UUID
		err := tx.QueryRowContext(ctx, `SELECT id FROM servers WHERE invite_code = ?`, inviteCode).Scan(&serverID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO members (id, role, profile_id, server_id, created_at, updated_at)
			VALUES (?1, ?2, ?3, ?4, ?5, ?5)
			ON CONFLICT (profile_id, server_id) DO NOTHING
		`, crypto.NewUUIDv7(), string(models.RoleGuest), profileID, serverID, time.Now().UTC()); err != nil {
			return err
		}

		server, err = sqliteLoadServer(ctx, tx, serverID)
		return err
	})
	if err != nil {
		return nil, sqliteWrap(err, "sqlite.JoinServer")
	}
	return server, nil
}

// FindDefaultChannel returns the default channel of a server the profile
// belongs to, or nil.
func (s *SQLiteStore) FindDefaultChannel(ctx context.Context, serverID, profileID uuid.UUID) (*models.Channel, error) {
	c, err := scanChannel(s.db.QueryRowContext(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.server_id = ?1 AND c.name = ?3
		  AND EXISTS (SELECT 1 FROM members m WHERE m.server_id = ?1 AND m.profile_id = ?2)
		ORDER BY c.created_at ASC
		LIMIT 1
	`, serverID, profileID, models.DefaultChannelName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite.FindDefaultChannel")
	}
	return c, nil
}

// CreateChannel inserts a channel if profileID manages the server.
func (s *SQLiteStore) CreateChannel(ctx context.Context, serverID, profileID uuid.UUID, name string, channelType models.ChannelType) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO channels (id, name, type, profile_id, server_id, created_at, updated_at)
			SELECT ?1, ?2, ?3, ?4, ?5, ?6, ?6
			WHERE ?2 <> ?7
			  AND EXISTS (
				SELECT 1 FROM members m
				WHERE m.server_id = ?5 AND m.profile_id = ?4 AND m.role IN (?8, ?9)
			  )
		`, crypto.NewUUIDv7(), name, string(channelType), profileID, serverID, now,
			models.DefaultChannelName, string(models.RoleAdmin), string(models.RoleModerator))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sqliteClassifyManager(ctx, tx, serverID, profileID)
		}

		server, err = sqliteTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, sqliteWrap(err, "sqlite.CreateChannel")
	}
	return server, nil
}

// UpdateChannel renames or retypes a non-default channel if profileID
// manages the server.
func (s *SQLiteStore) UpdateChannel(ctx context.Context, serverID, channelID, profileID uuid.UUID, name string, channelType models.ChannelType) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE channels
			SET name = COALESCE(NULLIF(?4, ''), name),
			    type = COALESCE(NULLIF(?5, ''), type),
			    updated_at = ?6
			WHERE id = ?1 AND server_id = ?2
			  AND name <> ?7 AND ?4 <> ?7
			  AND EXISTS (
				SELECT 1 FROM members m
				WHERE m.server_id = ?2 AND m.profile_id = ?3 AND m.role IN (?8, ?9)
			  )
		`, channelID, serverID, profileID, name, string(channelType), now,
			models.DefaultChannelName, string(models.RoleAdmin), string(models.RoleModerator))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sqliteClassifyManager(ctx, tx, serverID, profileID)
		}

		server, err = sqliteTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, sqliteWrap(err, "sqlite.UpdateChannel")
	}
	return server, nil
}

// DeleteChannel removes a non-default channel if profileID manages the server.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, serverID, channelID, profileID uuid.UUID) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM channels
			WHERE id = ?1 AND server_id = ?2 AND name <> ?4
			  AND EXISTS (
				SELECT 1 FROM members m
				WHERE m.server_id = ?2 AND m.profile_id = ?3 AND m.role IN (?5, ?6)
			  )
		`, channelID, serverID, profileID,
			models.DefaultChannelName, string(models.RoleAdmin), string(models.RoleModerator))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sqliteClassifyManager(ctx, tx, serverID, profileID)
		}

		server, err = sqliteTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, sqliteWrap(err, "sqlite.DeleteChannel")
	}
	return server, nil
}

// GetChannel retrieves a channel scoped to its server.
func (s *SQLiteStore) GetChannel(ctx context.Context, serverID, channelID uuid.UUID) (*models.Channel, error) {
	c, err := scanChannel(s.db.QueryRowContext(ctx, `
		SELECT `+channelColumns+` FROM channels c WHERE c.id = ? AND c.server_id = ?
	`, channelID, serverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite.GetChannel")
	}
	return c, nil
}

// GetMember retrieves the membership of a profile in a server.
func (s *SQLiteStore) GetMember(ctx context.Context, serverID, profileID uuid.UUID) (*models.Member, error) {
	m, err := scanMemberWithProfile(s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`, `+profileColumns+`
		FROM members m JOIN profiles p ON p.id = m.profile_id
		WHERE m.server_id = ? AND m.profile_id = ?
	`, serverID, profileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite.GetMember")
	}
	return m, nil
}

// GetMemberByID retrieves a member of a server by id.
func (s *SQLiteStore) GetMemberByID(ctx context.Context, serverID, memberID uuid.UUID) (*models.Member, error) {
	m, err := scanMemberWithProfile(s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`, `+profileColumns+`
		FROM members m JOIN profiles p ON p.id = m.profile_id
		WHERE m.server_id = ? AND m.id = ?
	`, serverID, memberID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite.GetMemberByID")
	}
	return m, nil
}

// UpdateMemberRole changes the role of another member of a server owned by ownerID.
func (s *SQLiteStore) UpdateMemberRole(ctx context.Context, serverID, memberID, ownerID uuid.UUID, role models.MemberRole) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE members SET role = ?4, updated_at = ?5
			WHERE id = ?2 AND server_id = ?1 AND profile_id <> ?3
			  AND EXISTS (SELECT 1 FROM servers s WHERE s.id = ?1 AND s.profile_id = ?3)
		`, serverID, memberID, ownerID, string(role), now)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sqliteClassifyOwner(ctx, tx, serverID, ownerID)
		}

		server, err = sqliteTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, sqliteWrap(err, "sqlite.UpdateMemberRole")
	}
	return server, nil
}

// RemoveMember kicks another member from a server owned by ownerID.
func (s *SQLiteStore) RemoveMember(ctx context.Context, serverID, memberID, ownerID uuid.UUID) (*models.Server, error) {
	now := time.Now().UTC()

	var server *models.Server
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM members
			WHERE id = ?2 AND server_id = ?1 AND profile_id <> ?3
			  AND EXISTS (SELECT 1 FROM servers s WHERE s.id = ?1 AND s.profile_id = ?3)
		`, serverID, memberID, ownerID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sqliteClassifyOwner(ctx, tx, serverID, ownerID)
		}

		server, err = sqliteTouchAndLoadServer(ctx, tx, serverID, now)
		return err
	})
	if err != nil {
		return nil, sqliteWrap(err, "sqlite.RemoveMember")
	}
	return server, nil
}

// GetOrCreateConversation returns the conversation between two members in
// either orientation, creating it when absent.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, memberOneID, memberTwoID uuid.UUID) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id uuid.UUID
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM conversations
			WHERE (member_one_id = ?1 AND member_two_id = ?2)
			   OR (member_one_id = ?2 AND member_two_id = ?1)
			LIMIT 1
		`, memberOneID, memberTwoID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			id = crypto.NewUUIDv7()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO conversations (id, member_one_id, member_two_id, created_at)
				VALUES (?, ?, ?, ?)
			`, id, memberOneID, memberTwoID, time.Now().UTC())
		}
		if err != nil {
			return err
		}

		conv, err = sqliteLoadConversation(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, sqliteWrap(err, "sqlite.GetOrCreateConversation")
	}
	return conv, nil
}

// GetConversationForProfile retrieves a conversation only if profileID owns
// one of its members.
func (s *SQLiteStore) GetConversationForProfile(ctx context.Context, conversationID, profileID uuid.UUID) (*models.Conversation, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id
		FROM conversations c
		JOIN members m1 ON m1.id = c.member_one_id
		JOIN members m2 ON m2.id = c.member_two_id
		WHERE c.id = ?1 AND (m1.profile_id = ?2 OR m2.profile_id = ?2)
	`, conversationID, profileID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite.GetConversationForProfile")
	}

	conv, err := sqliteLoadConversation(ctx, s.db, id)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.GetConversationForProfile")
	}
	return conv, nil
}

const sqliteDirectMessageSelect = `
	SELECT ` + directMessageColumns + `, ` + memberColumns + `, ` + profileColumns + `
	FROM direct_messages d
	JOIN members m ON m.id = d.member_id
	JOIN profiles p ON p.id = m.profile_id
`

// CreateDirectMessage stores a new direct message.
func (s *SQLiteStore) CreateDirectMessage(ctx context.Context, conversationID, memberID uuid.UUID, content string, fileURL *string) (*models.DirectMessage, error) {
	id := crypto.NewUUIDv7()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO direct_messages (id, content, file_url, member_id, conversation_id, deleted, created_at, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5, 0, ?6, ?6)
	`, id, content, fileURL, memberID, conversationID, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.CreateDirectMessage")
	}
	return s.directMessageByID(ctx, id)
}

// GetDirectMessage retrieves a direct message scoped to its conversation.
func (s *SQLiteStore) GetDirectMessage(ctx context.Context, id, conversationID uuid.UUID) (*models.DirectMessage, error) {
	d, err := scanDirectMessage(s.db.QueryRowContext(ctx,
		sqliteDirectMessageSelect+` WHERE d.id = ? AND d.conversation_id = ?`, id, conversationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite.GetDirectMessage")
	}
	return d, nil
}

// UpdateDirectMessage replaces the content of a live direct message.
func (s *SQLiteStore) UpdateDirectMessage(ctx context.Context, id uuid.UUID, content string) (*models.DirectMessage, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE direct_messages SET content = ?, updated_at = ?
		WHERE id = ? AND deleted = 0
	`, content, time.Now().UTC(), id)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.UpdateDirectMessage")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.directMessageByID(ctx, id)
}

// SoftDeleteDirectMessage tombstones a live direct message.
func (s *SQLiteStore) SoftDeleteDirectMessage(ctx context.Context, id uuid.UUID) (*models.DirectMessage, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE direct_messages SET content = ?, file_url = NULL, deleted = 1, updated_at = ?
		WHERE id = ? AND deleted = 0
	`, models.DeletedContent, time.Now().UTC(), id)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.SoftDeleteDirectMessage")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.directMessageByID(ctx, id)
}

// ListDirectMessages returns a page of a conversation, newest first.
func (s *SQLiteStore) ListDirectMessages(ctx context.Context, conversationID uuid.UUID, cursor *uuid.UUID, limit int) ([]models.DirectMessage, error) {
	limit = clampLimit(limit)

	var (
		rows *sql.Rows
		err  error
	)
	if cursor != nil {
		rows, err = s.db.QueryContext(ctx, sqliteDirectMessageSelect+`
			WHERE d.conversation_id = ? AND d.id < ?
			ORDER BY d.id DESC LIMIT ?
		`, conversationID, *cursor, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, sqliteDirectMessageSelect+`
			WHERE d.conversation_id = ?
			ORDER BY d.id DESC LIMIT ?
		`, conversationID, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.ListDirectMessages")
	}
	defer rows.Close()

	messages := make([]models.DirectMessage, 0, limit)
	for rows.Next() {
		d, err := scanDirectMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite.ListDirectMessages.Scan")
		}
		messages = append(messages, *d)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) directMessageByID(ctx context.Context, id uuid.UUID) (*models.DirectMessage, error) {
	d, err := scanDirectMessage(s.db.QueryRowContext(ctx, sqliteDirectMessageSelect+` WHERE d.id = ?`, id))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.directMessageByID")
	}
	return d, nil
}

const sqliteMessageSelect = `
	SELECT ` + messageColumns + `, ` + memberColumns + `, ` + profileColumns + `
	FROM messages x
	JOIN members m ON m.id = x.member_id
	JOIN profiles p ON p.id = m.profile_id
`

// CreateMessage stores a new channel message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, channelID, memberID uuid.UUID, content string, fileURL *string) (*models.Message, error) {
	id := crypto.NewUUIDv7()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, content, file_url, member_id, channel_id, deleted, created_at, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5, 0, ?6, ?6)
	`, id, content, fileURL, memberID, channelID, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.CreateMessage")
	}
	return s.messageByID(ctx, id)
}

// GetMessage retrieves a channel message scoped to its channel.
func (s *SQLiteStore) GetMessage(ctx context.Context, id, channelID uuid.UUID) (*models.Message, error) {
	x, err := scanMessage(s.db.QueryRowContext(ctx,
		sqliteMessageSelect+` WHERE x.id = ? AND x.channel_id = ?`, id, channelID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite.GetMessage")
	}
	return x, nil
}

// UpdateMessage replaces the content of a live channel message.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, id uuid.UUID, content string) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, updated_at = ?
		WHERE id = ? AND deleted = 0
	`, content, time.Now().UTC(), id)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.UpdateMessage")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.messageByID(ctx, id)
}

// SoftDeleteMessage tombstones a live channel message.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, file_url = NULL, deleted = 1, updated_at = ?
		WHERE id = ? AND deleted = 0
	`, models.DeletedContent, time.Now().UTC(), id)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.SoftDeleteMessage")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.messageByID(ctx, id)
}

// ListMessages returns a page of a channel, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID uuid.UUID, cursor *uuid.UUID, limit int) ([]models.Message, error) {
	limit = clampLimit(limit)

	var (
		rows *sql.Rows
		err  error
	)
	if cursor != nil {
		rows, err = s.db.QueryContext(ctx, sqliteMessageSelect+`
			WHERE x.channel_id = ? AND x.id < ?
			ORDER BY x.id DESC LIMIT ?
		`, channelID, *cursor, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, sqliteMessageSelect+`
			WHERE x.channel_id = ?
			ORDER BY x.id DESC LIMIT ?
		`, channelID, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.ListMessages")
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		x, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite.ListMessages.Scan")
		}
		messages = append(messages, *x)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) messageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	x, err := scanMessage(s.db.QueryRowContext(ctx, sqliteMessageSelect+` WHERE x.id = ?`, id))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.messageByID")
	}
	return x, nil
}

// Stats returns aggregate counts.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.Stats, error) {
	st := &models.Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM servers),
			(SELECT COUNT(*) FROM channels),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM direct_messages)
	`).Scan(&st.Profiles, &st.Servers, &st.Channels, &st.Messages, &st.DirectMessages)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.Stats")
	}
	return st, nil
}

func sqliteLoadServer(ctx context.Context, q sqlQuerier, id uuid.UUID) (*models.Server, error) {
	server, err := scanServer(q.QueryRowContext(ctx, `
		SELECT `+serverColumns+` FROM servers s WHERE s.id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+channelColumns+` FROM channels c
		WHERE c.server_id = ? ORDER BY c.created_at ASC, c.id ASC
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

	rows, err = q.QueryContext(ctx, `
		SELECT `+memberColumns+`, `+profileColumns+`
		FROM members m JOIN profiles p ON p.id = m.profile_id
		WHERE m.server_id = ? ORDER BY m.created_at ASC, m.id ASC
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

func sqliteTouchAndLoadServer(ctx context.Context, q sqlQuerier, id uuid.UUID, now time.Time) (*models.Server, error) {
	if _, err := q.ExecContext(ctx, `UPDATE servers SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, err
	}
	return sqliteLoadServer(ctx, q, id)
}

func sqliteLoadConversation(ctx context.Context, q sqlQuerier, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := q.QueryRowContext(ctx, `
		SELECT id, member_one_id, member_two_id, created_at FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.MemberOneID, &conv.MemberTwoID, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	memberSelect := `
		SELECT ` + memberColumns + `, ` + profileColumns + `
		FROM members m JOIN profiles p ON p.id = m.profile_id
		WHERE m.id = ?
	`
	if conv.MemberOne, err = scanMemberWithProfile(q.QueryRowContext(ctx, memberSelect, conv.MemberOneID)); err != nil {
		return nil, err
	}
	if conv.MemberTwo, err = scanMemberWithProfile(q.QueryRowContext(ctx, memberSelect, conv.MemberTwoID)); err != nil {
		return nil, err
	}
	return conv, nil
}

func sqliteClassifyOwner(ctx context.Context, q sqlQuerier, serverID, profileID uuid.UUID) error {
	var owner uuid.UUID
	err := q.QueryRowContext(ctx, `SELECT profile_id FROM servers WHERE id = ?`, serverID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if owner != profileID {
		return ErrForbidden
	}
	return ErrNotFound
}

func sqliteClassifyManager(ctx context.Context, q sqlQuerier, serverID, profileID uuid.UUID) error {
	var role models.MemberRole
	err := q.QueryRowContext(ctx, `
		SELECT role FROM members WHERE server_id = ? AND profile_id = ?
	`, serverID, profileID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrForbidden
		}
		return err
	}
	if !role.CanManage() {
		return ErrForbidden
	}
	return ErrNotFound
}

func sqliteWrap(err error, op string) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
		return err
	}
	return errors.Wrap(err, op)
}
