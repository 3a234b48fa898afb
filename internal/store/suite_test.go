package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LorenzoRonconi00/twin/internal/crypto"
	"github.com/LorenzoRonconi00/twin/internal/models"
)

// runDataStoreSuite exercises the DataStore contract. newStore must return an
// empty store.
func runDataStoreSuite(t *testing.T, newStore func(t *testing.T) DataStore) {
	t.Run("CreateServer", func(t *testing.T) { testCreateServer(t, newStore(t)) })
	t.Run("ChannelGuards", func(t *testing.T) { testChannelGuards(t, newStore(t)) })
	t.Run("ModeratorDeletesChannel", func(t *testing.T) { testModeratorDeletesChannel(t, newStore(t)) })
	t.Run("InviteCode", func(t *testing.T) { testInviteCode(t, newStore(t)) })
	t.Run("JoinServer", func(t *testing.T) { testJoinServer(t, newStore(t)) })
	t.Run("MemberManagement", func(t *testing.T) { testMemberManagement(t, newStore(t)) })
	t.Run("Conversations", func(t *testing.T) { testConversations(t, newStore(t)) })
	t.Run("DirectMessageLifecycle", func(t *testing.T) { testDirectMessageLifecycle(t, newStore(t)) })
	t.Run("DirectMessagePaging", func(t *testing.T) { testDirectMessagePaging(t, newStore(t)) })
	t.Run("ChannelMessages", func(t *testing.T) { testChannelMessages(t, newStore(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore(t)) })
}

type fixture struct {
	s       DataStore
	owner   *models.Profile
	server  *models.Server
	general models.Channel
}

func mustProfile(t *testing.T, s DataStore, userID string) *models.Profile {
	t.Helper()
	p, err := s.CreateProfile(context.Background(), userID, "user "+userID, "", userID+"@example.com")
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func newFixture(t *testing.T, s DataStore) *fixture {
	t.Helper()
	owner := mustProfile(t, s, "owner")
	server, err := s.CreateServer(context.Background(), owner.ID, "Test", "", crypto.NewInviteCode())
	require.NoError(t, err)
	require.Len(t, server.Channels, 1)
	return &fixture{s: s, owner: owner, server: server, general: server.Channels[0]}
}

// join adds a profile to the fixture server with the given role.
func (f *fixture) join(t *testing.T, userID string, role models.MemberRole) (*models.Profile, *models.Member) {
	t.Helper()
	ctx := context.Background()
	p := mustProfile(t, f.s, userID)
	_, err := f.s.JoinServer(ctx, f.server.InviteCode, p.ID)
	require.NoError(t, err)

	m, err := f.s.GetMember(ctx, f.server.ID, p.ID)
	require.NoError(t, err)
	require.NotNil(t, m)

	if role != models.RoleGuest {
		_, err = f.s.UpdateMemberRole(ctx, f.server.ID, m.ID, f.owner.ID, role)
		require.NoError(t, err)
		m.Role = role
	}
	return p, m
}

func channelNames(s *models.Server) []string {
	names := make([]string, 0, len(s.Channels))
	for _, c := range s.Channels {
		names = append(names, c.Name)
	}
	return names
}

func testCreateServer(t *testing.T, s DataStore) {
	ctx := context.Background()
	owner := mustProfile(t, s, "creator")

	server, err := s.CreateServer(ctx, owner.ID, "Test", "", "invite-1")
	require.NoError(t, err)

	assert.Equal(t, "Test", server.Name)
	assert.Equal(t, "invite-1", server.InviteCode)
	assert.Equal(t, owner.ID, server.ProfileID)

	require.Len(t, server.Channels, 1)
	assert.Equal(t, models.DefaultChannelName, server.Channels[0].Name)
	assert.Equal(t, models.ChannelText, server.Channels[0].Type)
	assert.Equal(t, owner.ID, server.Channels[0].ProfileID)

	require.Len(t, server.Members, 1)
	assert.Equal(t, models.RoleAdmin, server.Members[0].Role)
	assert.Equal(t, owner.ID, server.Members[0].ProfileID)
	require.NotNil(t, server.Members[0].Profile)
	assert.Equal(t, owner.Name, server.Members[0].Profile.Name)

	loaded, err := s.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, server.ID, loaded.ID)

	missing, err := s.GetServer(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	def, err := s.FindDefaultChannel(ctx, server.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.True(t, def.IsDefault())

	stranger := mustProfile(t, s, "stranger")
	def, err = s.FindDefaultChannel(ctx, server.ID, stranger.ID)
	require.NoError(t, err)
	assert.Nil(t, def)
}

func testChannelGuards(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	guest, _ := f.join(t, "guest", models.RoleGuest)
	stranger := mustProfile(t, s, "stranger")

	server, err := s.CreateChannel(ctx, f.server.ID, f.owner.ID, "annunci", models.ChannelText)
	require.NoError(t, err)
	assert.Equal(t, []string{models.DefaultChannelName, "annunci"}, channelNames(server))
	annunci := server.Channels[1]

	_, err = s.CreateChannel(ctx, f.server.ID, f.owner.ID, models.DefaultChannelName, models.ChannelText)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateChannel(ctx, f.server.ID, guest.ID, "ospiti", models.ChannelText)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.CreateChannel(ctx, f.server.ID, stranger.ID, "estranei", models.ChannelText)
	assert.ErrorIs(t, err, ErrForbidden)

	// The default channel is neither renamed nor deleted, even by the owner.
	_, err = s.UpdateChannel(ctx, f.server.ID, f.general.ID, f.owner.ID, "rinominato", "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeleteChannel(ctx, f.server.ID, f.general.ID, f.owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// No channel can be renamed onto the default name.
	_, err = s.UpdateChannel(ctx, f.server.ID, annunci.ID, f.owner.ID, models.DefaultChannelName, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateChannel(ctx, f.server.ID, annunci.ID, guest.ID, "hack", "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.DeleteChannel(ctx, f.server.ID, annunci.ID, stranger.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	server, err = s.UpdateChannel(ctx, f.server.ID, annunci.ID, f.owner.ID, "novità", models.ChannelAudio)
	require.NoError(t, err)
	assert.Equal(t, []string{models.DefaultChannelName, "novità"}, channelNames(server))
	assert.Equal(t, models.ChannelAudio, server.Channels[1].Type)

	server, err = s.UpdateChannel(ctx, f.server.ID, annunci.ID, f.owner.ID, "", models.ChannelVideo)
	require.NoError(t, err)
	assert.Equal(t, "novità", server.Channels[1].Name)
	assert.Equal(t, models.ChannelVideo, server.Channels[1].Type)

	_, err = s.DeleteChannel(ctx, f.server.ID, uuid.New(), f.owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	loaded, err := s.GetServer(ctx, f.server.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{models.DefaultChannelName, "novità"}, channelNames(loaded))
}

func testModeratorDeletesChannel(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	mod, _ := f.join(t, "mod", models.RoleModerator)

	server, err := s.CreateChannel(ctx, f.server.ID, mod.ID, "temporaneo", models.ChannelText)
	require.NoError(t, err)
	require.Len(t, server.Channels, 2)

	server, err = s.DeleteChannel(ctx, f.server.ID, server.Channels[1].ID, mod.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{models.DefaultChannelName}, channelNames(server))

	c, err := s.GetChannel(ctx, f.server.ID, f.general.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
}

func testInviteCode(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	admin, _ := f.join(t, "admin", models.RoleAdmin)

	server, err := s.RegenerateInviteCode(ctx, f.server.ID, f.owner.ID, "fresh-code")
	require.NoError(t, err)
	assert.Equal(t, "fresh-code", server.InviteCode)

	// Only the owner may rotate the code, even another ADMIN may not.
	_, err = s.RegenerateInviteCode(ctx, f.server.ID, admin.ID, "stolen")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.RegenerateInviteCode(ctx, uuid.New(), f.owner.ID, "nowhere")
	assert.ErrorIs(t, err, ErrNotFound)

	loaded, err := s.GetServer(ctx, f.server.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-code", loaded.InviteCode)
}

func testJoinServer(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	p := mustProfile(t, s, "joiner")

	server, err := s.JoinServer(ctx, f.server.InviteCode, p.ID)
	require.NoError(t, err)
	require.Len(t, server.Members, 2)
	assert.Equal(t, models.RoleGuest, server.Members[1].Role)

	server, err = s.JoinServer(ctx, f.server.InviteCode, p.ID)
	require.NoError(t, err)
	assert.Len(t, server.Members, 2)

	// The owner keeps ADMIN when following their own invite.
	server, err = s.JoinServer(ctx, f.server.InviteCode, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, server.Members[0].Role)

	_, err = s.JoinServer(ctx, "does-not-exist", p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testMemberManagement(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	_, guest := f.join(t, "guest", models.RoleGuest)
	admin, adminMember := f.join(t, "admin", models.RoleAdmin)

	server, err := s.UpdateMemberRole(ctx, f.server.ID, guest.ID, f.owner.ID, models.RoleModerator)
	require.NoError(t, err)
	for _, m := range server.Members {
		if m.ID == guest.ID {
			assert.Equal(t, models.RoleModerator, m.Role)
		}
	}

	_, err = s.UpdateMemberRole(ctx, f.server.ID, guest.ID, admin.ID, models.RoleGuest)
	assert.ErrorIs(t, err, ErrForbidden)

	ownerMember, err := s.GetMember(ctx, f.server.ID, f.owner.ID)
	require.NoError(t, err)
	_, err = s.UpdateMemberRole(ctx, f.server.ID, ownerMember.ID, f.owner.ID, models.RoleGuest)
	assert.ErrorIs(t, err, ErrNotFound)

	server, err = s.RemoveMember(ctx, f.server.ID, adminMember.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, server.Members, 2)

	gone, err := s.GetMemberByID(ctx, f.server.ID, adminMember.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = s.RemoveMember(ctx, uuid.New(), guest.ID, f.owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testConversations(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	ownerMember, err := s.GetMember(ctx, f.server.ID, f.owner.ID)
	require.NoError(t, err)
	other, otherMember := f.join(t, "other", models.RoleGuest)
	outsider := mustProfile(t, s, "outsider")

	conv, err := s.GetOrCreateConversation(ctx, ownerMember.ID, otherMember.ID)
	require.NoError(t, err)
	assert.Equal(t, ownerMember.ID, conv.MemberOneID)
	require.NotNil(t, conv.MemberTwo)
	assert.Equal(t, other.ID, conv.MemberTwo.ProfileID)

	again, err := s.GetOrCreateConversation(ctx, otherMember.ID, ownerMember.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	found, err := s.GetConversationForProfile(ctx, conv.ID, other.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, otherMember.ID, found.MemberFor(other.ID).ID)

	hidden, err := s.GetConversationForProfile(ctx, conv.ID, outsider.ID)
	require.NoError(t, err)
	assert.Nil(t, hidden)
}

func testDirectMessageLifecycle(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	ownerMember, err := s.GetMember(ctx, f.server.ID, f.owner.ID)
	require.NoError(t, err)
	_, otherMember := f.join(t, "other", models.RoleGuest)

	conv, err := s.GetOrCreateConversation(ctx, ownerMember.ID, otherMember.ID)
	require.NoError(t, err)

	file := "https://files.example.com/a.png"
	dm, err := s.CreateDirectMessage(ctx, conv.ID, otherMember.ID, "ciao", &file)
	require.NoError(t, err)
	assert.Equal(t, "ciao", dm.Content)
	require.NotNil(t, dm.FileURL)
	require.NotNil(t, dm.Member)
	assert.Equal(t, otherMember.ID, dm.Member.ID)

	got, err := s.GetDirectMessage(ctx, dm.ID, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	wrongConv, err := s.GetDirectMessage(ctx, dm.ID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, wrongConv)

	edited, err := s.UpdateDirectMessage(ctx, dm.ID, "ciao a tutti")
	require.NoError(t, err)
	assert.Equal(t, "ciao a tutti", edited.Content)
	assert.False(t, edited.Deleted)

	deleted, err := s.SoftDeleteDirectMessage(ctx, dm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeletedContent, deleted.Content)
	assert.Nil(t, deleted.FileURL)
	assert.True(t, deleted.Deleted)

	_, err = s.SoftDeleteDirectMessage(ctx, dm.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.UpdateDirectMessage(ctx, dm.ID, "resurrect")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = s.GetDirectMessage(ctx, dm.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeletedContent, got.Content)
}

func testDirectMessagePaging(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	ownerMember, err := s.GetMember(ctx, f.server.ID, f.owner.ID)
	require.NoError(t, err)
	_, otherMember := f.join(t, "other", models.RoleGuest)
	conv, err := s.GetOrCreateConversation(ctx, ownerMember.ID, otherMember.ID)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, err := s.CreateDirectMessage(ctx, conv.ID, ownerMember.ID, fmt.Sprintf("msg %02d", i), nil)
		require.NoError(t, err)
	}

	page, err := s.ListDirectMessages(ctx, conv.ID, nil, MessageBatch)
	require.NoError(t, err)
	require.Len(t, page, MessageBatch)
	assert.Equal(t, "msg 24", page[0].Content)
	assert.Equal(t, "msg 15", page[9].Content)

	cursor := page[len(page)-1].ID
	page, err = s.ListDirectMessages(ctx, conv.ID, &cursor, MessageBatch)
	require.NoError(t, err)
	require.Len(t, page, MessageBatch)
	assert.Equal(t, "msg 14", page[0].Content)

	cursor = page[len(page)-1].ID
	page, err = s.ListDirectMessages(ctx, conv.ID, &cursor, MessageBatch)
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, "msg 00", page[4].Content)
}

func testChannelMessages(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	_, guest := f.join(t, "guest", models.RoleGuest)

	msg, err := s.CreateMessage(ctx, f.general.ID, guest.ID, "primo", nil)
	require.NoError(t, err)
	assert.Equal(t, f.general.ID, msg.ChannelID)

	got, err := s.GetMessage(ctx, msg.ID, f.general.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	edited, err := s.UpdateMessage(ctx, msg.ID, "primo!")
	require.NoError(t, err)
	assert.Equal(t, "primo!", edited.Content)

	deleted, err := s.SoftDeleteMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, models.DeletedContent, deleted.Content)

	_, err = s.UpdateMessage(ctx, msg.ID, "again")
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := s.ListMessages(ctx, f.general.ID, nil, 0)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func testStats(t *testing.T, s DataStore) {
	ctx := context.Background()
	f := newFixture(t, s)
	_, guest := f.join(t, "guest", models.RoleGuest)
	_, err := s.CreateMessage(ctx, f.general.ID, guest.ID, "hello", nil)
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Profiles)
	assert.Equal(t, int64(1), st.Servers)
	assert.Equal(t, int64(1), st.Channels)
	assert.Equal(t, int64(1), st.Messages)
	assert.Equal(t, int64(0), st.DirectMessages)
}
