// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot is the core of roleward: it consumes gateway events,
// enforces protected-role policy, auto-assigns join roles, schedules
// temporary grants, reconciles platform lifecycle changes against the
// policy store, and serves the administrative command surface.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roleward/roleward/config"
	"github.com/roleward/roleward/lib/clock"
	"github.com/roleward/roleward/platform"
	"github.com/roleward/roleward/policy"
	"github.com/roleward/roleward/store"
)

const (
	// eventTimeout bounds all work triggered by one gateway event.
	eventTimeout = 30 * time.Second

	// notifyTimeout bounds a single notification attempt. Message
	// delivery can hang on the platform side; a stuck DM must not
	// stall enforcement.
	notifyTimeout = 10 * time.Second

	// auditTimeout bounds the advisory audit-trail lookup.
	auditTimeout = 5 * time.Second
)

// Bot wires the policy store, the platform API, and the decision
// logic together. It implements [platform.EventHandler]; gateway
// deliveries may invoke handlers concurrently, and the bot takes no
// cross-event locks. Read-then-act races against concurrent admin
// changes are tolerated and logged, never fatal.
type Bot struct {
	api           platform.API
	store         *store.Store
	clock         clock.Clock
	logger        *slog.Logger
	operators     map[platform.UserID]bool
	blacklistPath string
	sweeps        config.SweepConfig
}

// Options holds the dependencies for constructing a Bot.
type Options struct {
	// API is the outbound platform surface. Required.
	API platform.API

	// Store is the policy store. Required.
	Store *store.Store

	// Clock provides the current time for grant deadlines. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger

	// Operators are user ids that pass every capability check.
	Operators []platform.UserID

	// BlacklistPath is the JSONC blacklist file, re-read every
	// blacklist sweep tick. Empty means nothing is blacklisted.
	BlacklistPath string

	// Sweeps sets the background sweep intervals. Zero fields
	// disable the corresponding sweep; [config.Load] always fills
	// them.
	Sweeps config.SweepConfig
}

// New validates the options and builds a Bot.
func New(opts Options) (*Bot, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("bot: API is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: Store is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("bot: Clock is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("bot: Logger is required")
	}

	operators := make(map[platform.UserID]bool, len(opts.Operators))
	for _, id := range opts.Operators {
		operators[id] = true
	}
	return &Bot{
		api:           opts.API,
		store:         opts.Store,
		clock:         opts.Clock,
		logger:        opts.Logger,
		operators:     operators,
		blacklistPath: opts.BlacklistPath,
		sweeps:        opts.Sweeps,
	}, nil
}

// eventContext returns the bounded context for one gateway event.
// The receiver's EventHandler interface is fire-and-forget, so the
// bot owns the deadline itself.
func (b *Bot) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), eventTimeout)
}

// HandleMemberRoleUpdate classifies the member's post-change role set
// and reverses any protected-role grant not covered by a bypass.
func (b *Bot) HandleMemberRoleUpdate(event platform.MemberRoleUpdateEvent) {
	ctx, cancel := b.eventContext()
	defer cancel()

	cfg, err := b.store.Config(ctx, event.Community)
	if err != nil {
		b.logger.Error("reading config for role update", "community", event.Community, "error", err)
		return
	}
	decision := policy.Classify(cfg, &event.Member, b.api.SelfID())
	if decision.Allowed() {
		return
	}

	actor := b.resolveActor(ctx, event.Community, event.Member.UserID)
	if actor == b.api.SelfID() {
		// The bot only grants roles through temporary grants, which
		// an operator already sanctioned.
		b.logger.Info("skipping enforcement of own grant",
			"community", event.Community, "member", event.Member.UserID)
		return
	}

	for _, role := range decision.Violations {
		b.enforce(ctx, event.Community, &event.Member, role, actor)
	}
}

// resolveActor asks the audit trail who last changed the member's
// roles. Best-effort and advisory: the trail is eventually consistent
// and may attribute a near-simultaneous change to the wrong actor.
// Returns "" when resolution fails; enforcement proceeds regardless.
func (b *Bot) resolveActor(ctx context.Context, community platform.CommunityID, target platform.UserID) platform.UserID {
	auditCtx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()

	entry, err := b.api.LatestRoleAudit(auditCtx, community, target)
	if err != nil {
		b.logger.Warn("audit resolution failed",
			"community", community, "target", target, "error", err)
		return ""
	}
	if entry == nil {
		return ""
	}
	return entry.ActorID
}

// enforce revokes one violating role and notifies whoever granted it
// (or the owner when the actor is unknown). A failed revocation gets
// a distinct owner message and no retry; the next role-update event
// for the member re-runs classification anyway.
func (b *Bot) enforce(ctx context.Context, community platform.CommunityID, member *platform.Member, role platform.RoleID, actor platform.UserID) {
	if err := b.api.RemoveRole(ctx, community, member.UserID, role); err != nil {
		enforcementsTotal.WithLabelValues("revoke_failed").Inc()
		b.logger.Error("revoking protected role",
			"community", community, "member", member.UserID, "role", role, "error", err)
		b.notifyOwner(ctx, community, fmt.Sprintf(
			"I could not remove the protected role <@&%s> from %s. Check my permissions and my role position.",
			role, member.Username))
		return
	}
	enforcementsTotal.WithLabelValues("revoked").Inc()
	b.logger.Info("revoked protected role",
		"community", community, "member", member.UserID, "role", role, "actor", actor)

	text := fmt.Sprintf(
		"The role <@&%s> is protected and cannot be assigned by hand. I removed it from %s.",
		role, member.Username)
	if actor != "" {
		b.notify(ctx, community, actor, text)
		return
	}
	b.notifyOwner(ctx, community, text)
}

// HandleMemberJoin grants each configured auto role to the new
// member. Idempotent: the platform treats granting a held role as a
// no-op, and a failed grant is retried naturally the next time the
// member rejoins. No notification.
func (b *Bot) HandleMemberJoin(event platform.MemberJoinEvent) {
	ctx, cancel := b.eventContext()
	defer cancel()

	if event.Member.Bot {
		return
	}
	cfg, err := b.store.Config(ctx, event.Community)
	if err != nil {
		b.logger.Error("reading config for member join", "community", event.Community, "error", err)
		return
	}
	for _, role := range cfg.Auto {
		if !role.IsValid() {
			continue
		}
		if err := b.api.AddRole(ctx, event.Community, event.Member.UserID, role); err != nil {
			b.logger.Error("auto-assigning role",
				"community", event.Community, "member", event.Member.UserID,
				"role", role, "error", err)
			continue
		}
		autoAssignmentsTotal.Inc()
	}
}

// HandleBotJoined records the bot's managed role and prompts the
// owner to run setup.
func (b *Bot) HandleBotJoined(event platform.BotJoinedEvent) {
	ctx, cancel := b.eventContext()
	defer cancel()

	if err := b.recordBotRole(ctx, event.Community.ID); err != nil {
		b.logger.Error("recording bot role on join",
			"community", event.Community.ID, "error", err)
	}
	b.notify(ctx, event.Community.ID, event.Community.OwnerID, fmt.Sprintf(
		"Thanks for adding me to %s. Run the setup command to choose an announcement channel and protected roles.",
		event.Community.Name))
}

// recordBotRole finds the platform-managed role representing the bot
// and stores it. The managed role is how the bot appears in the role
// hierarchy, so lifecycle handlers need to recognize it.
func (b *Bot) recordBotRole(ctx context.Context, community platform.CommunityID) error {
	self, err := b.api.Member(ctx, community, b.api.SelfID())
	if err != nil {
		return fmt.Errorf("fetching own membership: %w", err)
	}
	roles, err := b.api.Roles(ctx, community)
	if err != nil {
		return fmt.Errorf("listing roles: %w", err)
	}
	for _, role := range roles {
		if role.Managed && self.HasRole(role.ID) {
			return b.store.SetBotRole(ctx, community, role.ID)
		}
	}
	return fmt.Errorf("no managed role held in community %s", community)
}

// HandleBotRemoved purges every stored record for the community. One
// transaction, so a re-add never sees half a config.
func (b *Bot) HandleBotRemoved(event platform.BotRemovedEvent) {
	ctx, cancel := b.eventContext()
	defer cancel()

	if err := b.store.PurgeCommunity(ctx, event.Community); err != nil {
		b.logger.Error("purging removed community", "community", event.Community, "error", err)
		return
	}
	b.logger.Info("purged removed community", "community", event.Community)
}

// HandleRoleDelete reconciles a deleted role against the config: any
// category assignments are purged and the owner notified. A role that
// was only marked self-assignable is flagged to the owner without
// touching other state, since the menu message is the owner's to fix.
func (b *Bot) HandleRoleDelete(event platform.RoleDeleteEvent) {
	ctx, cancel := b.eventContext()
	defer cancel()

	cfg, err := b.store.Config(ctx, event.Community)
	if err != nil {
		b.logger.Error("reading config for role delete", "community", event.Community, "error", err)
		return
	}
	categories := cfg.CategoriesOf(event.Role.ID)
	selfRole, err := b.store.IsSelfRole(ctx, event.Community, event.Role.ID)
	if err != nil {
		b.logger.Error("checking self-role marker", "community", event.Community, "error", err)
	}

	if len(categories) == 0 && cfg.BotRole != event.Role.ID {
		if selfRole {
			b.notifyOwner(ctx, event.Community, fmt.Sprintf(
				"The self-assignable role %q was deleted. Update your role menu.", event.Role.Name))
		}
		return
	}

	if err := b.store.PurgeRole(ctx, event.Community, event.Role.ID); err != nil {
		b.logger.Error("purging deleted role",
			"community", event.Community, "role", event.Role.ID, "error", err)
		return
	}
	names := make([]string, len(categories))
	for i, category := range categories {
		names[i] = category.String()
	}
	b.notifyOwner(ctx, event.Community, fmt.Sprintf(
		"The role %q was deleted. I removed it from my configuration (%s).",
		event.Role.Name, joinOr(names, "no categories")))
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	out := items[0]
	for _, item := range items[1:] {
		out += ", " + item
	}
	return out
}

// HandleRoleUpdate warns the owner when the bot's own managed role
// loses administrator permission, which breaks enforcement.
func (b *Bot) HandleRoleUpdate(event platform.RoleUpdateEvent) {
	ctx, cancel := b.eventContext()
	defer cancel()

	cfg, err := b.store.Config(ctx, event.Community)
	if err != nil {
		b.logger.Error("reading config for role update", "community", event.Community, "error", err)
		return
	}
	if event.After.ID != cfg.BotRole {
		return
	}
	if !event.Before.Administrator || event.After.Administrator {
		return
	}
	b.notifyOwner(ctx, event.Community, fmt.Sprintf(
		"My role %q lost administrator permission. I need it to manage roles, "+
			"read the audit log, and send messages; until it is restored I cannot enforce protected roles.",
		event.After.Name))
}

// HandleChannelDelete clears the announcement channel record when the
// channel it points at disappears.
func (b *Bot) HandleChannelDelete(event platform.ChannelDeleteEvent) {
	ctx, cancel := b.eventContext()
	defer cancel()

	cleared, err := b.store.ClearAnnouncementChannel(ctx, event.Community, event.Channel.ID)
	if err != nil {
		b.logger.Error("clearing announcement channel",
			"community", event.Community, "channel", event.Channel.ID, "error", err)
		return
	}
	if !cleared {
		return
	}
	b.notifyOwner(ctx, event.Community, fmt.Sprintf(
		"The announcement channel #%s was deleted. Run the set-channel command to pick a new one.",
		event.Channel.Name))
}

// notify delivers a message to a user: direct message first, then the
// community's first text channel with a mention, then a log line and
// give up. Each attempt gets its own bounded timeout.
func (b *Bot) notify(ctx context.Context, community platform.CommunityID, user platform.UserID, text string) {
	dmCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	err := b.api.SendDirect(dmCtx, user, text)
	cancel()
	if err == nil {
		notificationsTotal.WithLabelValues("direct").Inc()
		return
	}
	b.logger.Warn("direct message failed, falling back to channel",
		"community", community, "user", user, "error", err)

	channels, chanErr := b.api.TextChannels(ctx, community)
	if chanErr != nil || len(channels) == 0 {
		notificationsTotal.WithLabelValues("dropped").Inc()
		b.logger.Error("giving up on notification",
			"community", community, "user", user, "error", chanErr)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	err = b.api.SendChannel(sendCtx, channels[0].ID, fmt.Sprintf("<@%s> %s", user, text))
	cancel()
	if err != nil {
		notificationsTotal.WithLabelValues("dropped").Inc()
		b.logger.Error("giving up on notification",
			"community", community, "user", user, "error", err)
		return
	}
	notificationsTotal.WithLabelValues("channel").Inc()
}

// notifyOwner resolves the community owner and notifies them.
func (b *Bot) notifyOwner(ctx context.Context, community platform.CommunityID, text string) {
	info, err := b.api.Community(ctx, community)
	if err != nil {
		b.logger.Error("resolving community owner", "community", community, "error", err)
		return
	}
	b.notify(ctx, community, info.OwnerID, text)
}
