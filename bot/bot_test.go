// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roleward/roleward/config"
	"github.com/roleward/roleward/lib/clock"
	"github.com/roleward/roleward/platform"
	"github.com/roleward/roleward/policy"
	"github.com/roleward/roleward/store"
)

var botTestClockEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testHarness struct {
	bot   *Bot
	api   *fakeAPI
	store *store.Store
	clock *clock.FakeClock
}

func newTestBot(t *testing.T) *testHarness {
	t.Helper()

	fakeClock := clock.Fake(botTestClockEpoch)
	policyStore, err := store.OpenStore(store.StoreConfig{
		Path:     filepath.Join(t.TempDir(), "bot_test.db"),
		PoolSize: 2,
		Clock:    fakeClock,
		Logger:   slog.Default(),
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() {
		if err := policyStore.Close(); err != nil {
			t.Errorf("store.Close: %v", err)
		}
	})

	api := newFakeAPI()
	b, err := New(Options{
		API:       api,
		Store:     policyStore,
		Clock:     fakeClock,
		Logger:    slog.Default(),
		Operators: []platform.UserID{"operator"},
		Sweeps: config.SweepConfig{
			SetupReminder:    24 * time.Hour,
			Blacklist:        time.Minute,
			TempRoles:        time.Minute,
			BotRoleDiscovery: 24 * time.Hour,
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testHarness{bot: b, api: api, store: policyStore, clock: fakeClock}
}

// configureCommunity seeds a standard configured community: owner,
// announcement channel, one protected and one bypass role.
func (h *testHarness) configureCommunity(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	h.api.communities = []platform.Community{
		{ID: "c1", Name: "Test Community", OwnerID: "owner"},
	}
	h.api.roles["c1"] = []platform.Role{
		{ID: "admin-role", Name: "Admin", Position: 90, Administrator: true},
		{ID: "protected-role", Name: "Moderator", Position: 50},
		{ID: "bypass-role", Name: "Staff", Position: 60},
		{ID: "low-role", Name: "Member", Position: 10},
		{ID: "bot-managed", Name: "roleward", Position: 80, Managed: true},
	}
	h.api.channels["c1"] = []platform.Channel{
		{ID: "general", Name: "general", Text: true, Community: "c1"},
	}
	h.api.addMember("c1", &platform.Member{UserID: "owner", Username: "owner"})
	h.api.addMember("c1", &platform.Member{
		UserID: h.api.self, Username: "roleward", RoleIDs: []platform.RoleID{"bot-managed"}, Bot: true,
	})

	if err := h.store.SetAnnouncementChannel(ctx, "c1", "general"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.AddRole(ctx, "c1", policy.Protected, "protected-role"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.AddRole(ctx, "c1", policy.Bypass, "bypass-role"); err != nil {
		t.Fatal(err)
	}
}

func roleUpdateEvent(user platform.UserID, roles ...platform.RoleID) platform.MemberRoleUpdateEvent {
	return platform.MemberRoleUpdateEvent{
		Community: "c1",
		Member:    platform.Member{UserID: user, Username: string(user), RoleIDs: roles},
		Added:     roles,
	}
}

func TestEnforcementRevokesAndNotifiesActor(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	h.api.audit["victim"] = &platform.AuditEntry{ActorID: "granter", TargetID: "victim"}

	h.bot.HandleMemberRoleUpdate(roleUpdateEvent("victim", "protected-role"))

	removed := h.api.removedRoles()
	if len(removed) != 1 || removed[0] != "c1/victim/protected-role" {
		t.Fatalf("removed = %v, want the protected role revoked once", removed)
	}
	directs := h.api.directMessages()
	if len(directs) != 1 || directs[0].user != "granter" {
		t.Fatalf("directs = %v, want one DM to the granting actor", directs)
	}
	if !strings.Contains(directs[0].text, "protected") {
		t.Errorf("notification text = %q", directs[0].text)
	}
}

func TestEnforcementNotifiesOwnerWhenActorUnknown(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	// No audit entry: the trail is empty.

	h.bot.HandleMemberRoleUpdate(roleUpdateEvent("victim", "protected-role"))

	if len(h.api.removedRoles()) != 1 {
		t.Fatal("role was not revoked")
	}
	directs := h.api.directMessages()
	if len(directs) != 1 || directs[0].user != "owner" {
		t.Fatalf("directs = %v, want one DM to the owner", directs)
	}
}

func TestEnforcementBypassHolderAllowed(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)

	h.bot.HandleMemberRoleUpdate(roleUpdateEvent("victim", "protected-role", "bypass-role"))

	if removed := h.api.removedRoles(); len(removed) != 0 {
		t.Errorf("bypass holder was enforced against: %v", removed)
	}
}

func TestEnforcementSkipsOwnGrant(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	h.api.audit["victim"] = &platform.AuditEntry{ActorID: h.api.self, TargetID: "victim"}

	h.bot.HandleMemberRoleUpdate(roleUpdateEvent("victim", "protected-role"))

	if removed := h.api.removedRoles(); len(removed) != 0 {
		t.Errorf("bot reversed its own grant: %v", removed)
	}
}

func TestEnforcementRevokeFailureNotifiesOwnerNoRetry(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	h.api.failRemoveRole["protected-role"] = &platform.APIError{
		Code: platform.ErrCodeMissingPermissions, Message: "role hierarchy",
	}

	h.bot.HandleMemberRoleUpdate(roleUpdateEvent("victim", "protected-role"))

	directs := h.api.directMessages()
	if len(directs) != 1 || directs[0].user != "owner" {
		t.Fatalf("directs = %v, want one failure DM to the owner", directs)
	}
	if !strings.Contains(directs[0].text, "permissions") {
		t.Errorf("failure message = %q, want a permissions hint", directs[0].text)
	}
}

func TestNotificationFallsBackToChannel(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	h.api.failDirect = true
	h.api.audit["victim"] = &platform.AuditEntry{ActorID: "granter", TargetID: "victim"}

	h.bot.HandleMemberRoleUpdate(roleUpdateEvent("victim", "protected-role"))

	posts := h.api.channelMessages()
	if len(posts) != 1 || posts[0].channel != "general" {
		t.Fatalf("posts = %v, want one fallback post to #general", posts)
	}
	if !strings.Contains(posts[0].text, "<@granter>") {
		t.Errorf("fallback post = %q, want a mention of the recipient", posts[0].text)
	}
}

func TestAutoAssignOnJoin(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	ctx := context.Background()
	if _, err := h.store.AddRole(ctx, "c1", policy.Auto, "low-role"); err != nil {
		t.Fatal(err)
	}
	// Invalid placeholder ids are skipped, not sent to the platform.
	if _, err := h.store.AddRole(ctx, "c1", policy.Auto, "0"); err != nil {
		t.Fatal(err)
	}

	h.bot.HandleMemberJoin(platform.MemberJoinEvent{
		Community: "c1",
		Member:    platform.Member{UserID: "newbie", Username: "newbie"},
	})

	added := h.api.addedRoles()
	if len(added) != 1 || added[0] != "c1/newbie/low-role" {
		t.Fatalf("added = %v, want only the valid auto role", added)
	}
	if directs := h.api.directMessages(); len(directs) != 0 {
		t.Errorf("auto-assignment sent notifications: %v", directs)
	}
}

func TestAutoAssignSkipsBots(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	if _, err := h.store.AddRole(context.Background(), "c1", policy.Auto, "low-role"); err != nil {
		t.Fatal(err)
	}

	h.bot.HandleMemberJoin(platform.MemberJoinEvent{
		Community: "c1",
		Member:    platform.Member{UserID: "other-bot", Bot: true},
	})

	if added := h.api.addedRoles(); len(added) != 0 {
		t.Errorf("auto-assigned to a bot: %v", added)
	}
}

func TestBotJoinedRecordsManagedRole(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)

	h.bot.HandleBotJoined(platform.BotJoinedEvent{
		Community: platform.Community{ID: "c1", Name: "Test Community", OwnerID: "owner"},
	})

	cfg, err := h.store.Config(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BotRole != "bot-managed" {
		t.Errorf("bot role = %q, want bot-managed", cfg.BotRole)
	}
	directs := h.api.directMessages()
	if len(directs) != 1 || directs[0].user != "owner" {
		t.Fatalf("directs = %v, want a setup prompt to the owner", directs)
	}
}

func TestBotRemovedPurgesEverything(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	ctx := context.Background()
	if err := h.store.AddGrant(ctx, store.Grant{
		Community: "c1", UserID: "u1", RoleID: "low-role",
		ExpiresAt: h.clock.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	h.bot.HandleBotRemoved(platform.BotRemovedEvent{Community: "c1"})

	cfg, err := h.store.Config(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Configured() || len(cfg.Protected) != 0 {
		t.Errorf("config survived removal: %+v", cfg)
	}
	grants, err := h.store.Grants(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Errorf("grants survived removal: %v", grants)
	}
}

func TestRoleDeletePurgesAndNotifies(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)

	h.bot.HandleRoleDelete(platform.RoleDeleteEvent{
		Community: "c1",
		Role:      platform.Role{ID: "protected-role", Name: "Moderator"},
	})

	cfg, err := h.store.Config(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Protected) != 0 {
		t.Errorf("deleted role still configured: %v", cfg.Protected)
	}
	directs := h.api.directMessages()
	if len(directs) != 1 || directs[0].user != "owner" {
		t.Fatalf("directs = %v, want owner notification", directs)
	}
	if !strings.Contains(directs[0].text, "protected") {
		t.Errorf("notification = %q, want the purged category named", directs[0].text)
	}
}

func TestRoleDeleteSelfRoleFlagOnly(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	ctx := context.Background()
	if err := h.store.SetSelfRole(ctx, "c1", "low-role", true); err != nil {
		t.Fatal(err)
	}

	h.bot.HandleRoleDelete(platform.RoleDeleteEvent{
		Community: "c1",
		Role:      platform.Role{ID: "low-role", Name: "Member"},
	})

	// Flagged to the owner but not purged: the marker stays until
	// the owner fixes their menu.
	is, err := h.store.IsSelfRole(ctx, "c1", "low-role")
	if err != nil {
		t.Fatal(err)
	}
	if !is {
		t.Error("self-role marker was purged")
	}
	directs := h.api.directMessages()
	if len(directs) != 1 || !strings.Contains(directs[0].text, "self-assignable") {
		t.Fatalf("directs = %v, want a self-role warning", directs)
	}
}

func TestRoleUpdateWarnsOnAdminLoss(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)
	if err := h.store.SetBotRole(context.Background(), "c1", "bot-managed"); err != nil {
		t.Fatal(err)
	}

	h.bot.HandleRoleUpdate(platform.RoleUpdateEvent{
		Community: "c1",
		Before:    platform.Role{ID: "bot-managed", Name: "roleward", Administrator: true},
		After:     platform.Role{ID: "bot-managed", Name: "roleward", Administrator: false},
	})

	directs := h.api.directMessages()
	if len(directs) != 1 || !strings.Contains(directs[0].text, "administrator") {
		t.Fatalf("directs = %v, want an administrator-loss warning", directs)
	}

	// Changes to other roles are ignored.
	h.bot.HandleRoleUpdate(platform.RoleUpdateEvent{
		Community: "c1",
		Before:    platform.Role{ID: "admin-role", Administrator: true},
		After:     platform.Role{ID: "admin-role", Administrator: false},
	})
	if len(h.api.directMessages()) != 1 {
		t.Error("warned about a role that is not the bot's")
	}
}

func TestChannelDeleteClearsAnnouncement(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)

	h.bot.HandleChannelDelete(platform.ChannelDeleteEvent{
		Community: "c1",
		Channel:   platform.Channel{ID: "general", Name: "general", Text: true},
	})

	cfg, err := h.store.Config(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Configured() {
		t.Error("announcement channel record survived channel deletion")
	}
	directs := h.api.directMessages()
	if len(directs) != 1 || !strings.Contains(directs[0].text, "set-channel") {
		t.Fatalf("directs = %v, want a set-channel prompt", directs)
	}
}

func TestChannelDeleteOtherChannelIgnored(t *testing.T) {
	h := newTestBot(t)
	h.configureCommunity(t)

	h.bot.HandleChannelDelete(platform.ChannelDeleteEvent{
		Community: "c1",
		Channel:   platform.Channel{ID: "random", Name: "random", Text: true},
	})

	cfg, err := h.store.Config(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Configured() {
		t.Error("unrelated channel deletion cleared the announcement channel")
	}
	if len(h.api.directMessages()) != 0 {
		t.Error("unrelated channel deletion notified the owner")
	}
}
