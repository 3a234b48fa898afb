package models

import (
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

var allRoles = []MemberRole{RoleAdmin, RoleModerator, RoleGuest}

func TestPermissionsProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		role := rapid.SampledFrom(allRoles).Draw(t, "role")
		isAuthor := rapid.Bool().Draw(t, "isAuthor")

		caller := &Member{ID: uuid.New(), Role: role}
		authorID := uuid.New()
		if isAuthor {
			authorID = caller.ID
		}

		p := PermissionsFor(caller, authorID)

		// Edits belong to the author alone, whatever the role.
		if p.CanEdit() != isAuthor {
			t.Fatalf("CanEdit=%v for role=%s author=%v", p.CanEdit(), role, isAuthor)
		}

		wantModify := isAuthor || role == RoleAdmin || role == RoleModerator
		if p.CanModify() != wantModify {
			t.Fatalf("CanModify=%v for role=%s author=%v", p.CanModify(), role, isAuthor)
		}

		if p.CanModify() != (isAuthor || role.CanManage()) {
			t.Fatalf("CanModify disagrees with CanManage for role=%s", role)
		}
	})
}

func TestPermissionsForNilCaller(t *testing.T) {
	p := PermissionsFor(nil, uuid.New())
	if p.CanModify() || p.CanEdit() {
		t.Fatal("nil caller must not be allowed anything")
	}
}

func TestChannelTypeValid(t *testing.T) {
	for _, ct := range []ChannelType{ChannelText, ChannelAudio, ChannelVideo} {
		if !ct.Valid() {
			t.Fatalf("%s should be valid", ct)
		}
	}
	if ChannelType("STAGE").Valid() {
		t.Fatal("unknown type accepted")
	}
}

func TestConversationMemberFor(t *testing.T) {
	one := &Member{ID: uuid.New(), ProfileID: uuid.New()}
	two := &Member{ID: uuid.New(), ProfileID: uuid.New()}
	conv := &Conversation{MemberOne: one, MemberTwo: two}

	if conv.MemberFor(one.ProfileID) != one {
		t.Fatal("expected member one")
	}
	if conv.MemberFor(two.ProfileID) != two {
		t.Fatal("expected member two")
	}
	if conv.MemberFor(uuid.New()) != nil {
		t.Fatal("outsider resolved to a member")
	}
}
