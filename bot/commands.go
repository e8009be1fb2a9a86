// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roleward/roleward/lib/duration"
	"github.com/roleward/roleward/platform"
	"github.com/roleward/roleward/policy"
	"github.com/roleward/roleward/store"
)

// RunCommand executes one administrative command on behalf of a
// community member and returns the status line to show them. Errors
// are *Error values; transports render them with [UserMessage].
func (b *Bot) RunCommand(ctx context.Context, community platform.CommunityID, invoker platform.UserID, name string, args []string) (string, error) {
	reply, err := b.runCommand(ctx, community, invoker, name, args)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	commandsTotal.WithLabelValues(name, outcome).Inc()
	return reply, err
}

func (b *Bot) runCommand(ctx context.Context, community platform.CommunityID, invoker platform.UserID, name string, args []string) (string, error) {
	actor, err := b.buildActor(ctx, community, invoker)
	if err != nil {
		return "", err
	}
	cfg, err := b.store.Config(ctx, community)
	if err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not read my configuration", Err: err}
	}

	switch name {
	case "setup":
		return b.cmdSetup(ctx, cfg, actor, args)
	case "set-channel":
		return b.cmdSetChannel(ctx, cfg, actor, args)
	case "add-role":
		return b.cmdAddRole(ctx, cfg, actor, args)
	case "remove-role":
		return b.cmdRemoveRole(ctx, cfg, actor, args)
	case "reset":
		return b.cmdReset(ctx, cfg, actor)
	case "force-reset":
		return b.cmdForceReset(ctx, actor, args)
	case "remove-invalid-entries":
		return b.cmdRemoveInvalid(ctx, cfg, actor)
	case "show-setup":
		return b.cmdShowSetup(ctx, cfg, actor)
	case "temprole":
		return b.cmdTempRole(ctx, cfg, actor, args)
	}
	return "", failf(ValidationError, "unknown command %q", name)
}

// buildActor resolves the invoker's capabilities: membership, held
// roles, effective administrator permission, ownership, operator
// status.
func (b *Bot) buildActor(ctx context.Context, community platform.CommunityID, invoker platform.UserID) (*policy.Actor, error) {
	member, err := b.api.Member(ctx, community, invoker)
	if err != nil {
		if platform.IsCode(err, platform.ErrCodeUnknownMember) {
			return nil, failf(PermissionDenied, "you are not a member of this community")
		}
		return nil, &Error{Kind: PlatformActionFailed, Message: "could not look you up", Err: err}
	}
	info, err := b.api.Community(ctx, community)
	if err != nil {
		return nil, &Error{Kind: PlatformActionFailed, Message: "could not look up this community", Err: err}
	}
	roles, err := b.api.Roles(ctx, community)
	if err != nil {
		return nil, &Error{Kind: PlatformActionFailed, Message: "could not list this community's roles", Err: err}
	}

	actor := &policy.Actor{
		UserID:         invoker,
		RoleIDs:        member.RoleIDs,
		CommunityOwner: info.OwnerID == invoker,
		Operator:       b.operators[invoker],
	}
	for _, role := range roles {
		if role.Administrator && member.HasRole(role.ID) {
			actor.Administrator = true
			break
		}
	}
	return actor, nil
}

func requireAdmin(actor *policy.Actor) error {
	if !policy.CanAdminister(actor) {
		return failf(PermissionDenied, "you need administrator permission for that")
	}
	return nil
}

func requireManage(cfg *policy.Config, actor *policy.Actor) error {
	if !policy.CanManage(cfg, actor) {
		return failf(PermissionDenied, "you need a manager role or administrator permission for that")
	}
	return nil
}

func requireConfigured(cfg *policy.Config) error {
	if !cfg.Configured() {
		return failf(ConfigurationMissing, "this community is not set up yet, run the setup command first")
	}
	return nil
}

// cmdSetup records the announcement channel and an initial set of
// protected roles. Re-runnable; existing assignments are kept.
func (b *Bot) cmdSetup(ctx context.Context, cfg *policy.Config, actor *policy.Actor, args []string) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}
	if len(args) < 1 {
		return "", failf(ValidationError, "usage: setup <channel-id> [protected-role-id ...]")
	}
	channel := platform.ChannelID(args[0])
	if err := b.validateChannel(ctx, cfg.Community, channel); err != nil {
		return "", err
	}
	if err := b.store.SetAnnouncementChannel(ctx, cfg.Community, channel); err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not save the announcement channel", Err: err}
	}

	added := 0
	for _, arg := range args[1:] {
		role := platform.RoleID(arg)
		if err := b.validateRole(ctx, cfg.Community, role); err != nil {
			return "", err
		}
		if err := checkCategoryConflict(cfg, role, policy.Protected); err != nil {
			return "", err
		}
		inserted, err := b.store.AddRole(ctx, cfg.Community, policy.Protected, role)
		if err != nil {
			return "", &Error{Kind: PlatformActionFailed, Message: "could not save a protected role", Err: err}
		}
		if inserted {
			added++
		}
	}
	return fmt.Sprintf("setup complete: announcements go to <#%s>, %d protected role(s) added", channel, added), nil
}

func (b *Bot) cmdSetChannel(ctx context.Context, cfg *policy.Config, actor *policy.Actor, args []string) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", failf(ValidationError, "usage: set-channel <channel-id>")
	}
	channel := platform.ChannelID(args[0])
	if err := b.validateChannel(ctx, cfg.Community, channel); err != nil {
		return "", err
	}
	if err := b.store.SetAnnouncementChannel(ctx, cfg.Community, channel); err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not save the announcement channel", Err: err}
	}
	return fmt.Sprintf("announcements now go to <#%s>", channel), nil
}

func (b *Bot) cmdAddRole(ctx context.Context, cfg *policy.Config, actor *policy.Actor, args []string) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}
	if err := requireConfigured(cfg); err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", failf(ValidationError, "usage: add-role <protected|bypass|auto|manager> <role-id>")
	}
	category, err := policy.ParseCategory(args[0])
	if err != nil {
		return "", failf(ValidationError, "unknown category %q, expected protected, bypass, auto, or manager", args[0])
	}
	role := platform.RoleID(args[1])
	if err := b.validateRole(ctx, cfg.Community, role); err != nil {
		return "", err
	}
	if err := checkCategoryConflict(cfg, role, category); err != nil {
		return "", err
	}

	inserted, err := b.store.AddRole(ctx, cfg.Community, category, role)
	if err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not save the role", Err: err}
	}
	if !inserted {
		return fmt.Sprintf("<@&%s> is already a %s role", role, category), nil
	}
	return fmt.Sprintf("<@&%s> is now a %s role", role, category), nil
}

// checkCategoryConflict rejects assigning a role to a category that
// conflicts with one it is already in. Manager and bypass are the
// only pair allowed to overlap.
func checkCategoryConflict(cfg *policy.Config, role platform.RoleID, category policy.Category) error {
	for _, existing := range cfg.CategoriesOf(role) {
		if existing == category {
			continue
		}
		if !policy.CanOverlap(existing, category) {
			return failf(ValidationError,
				"<@&%s> is already a %s role; remove it from that category first", role, existing)
		}
	}
	return nil
}

func (b *Bot) cmdRemoveRole(ctx context.Context, cfg *policy.Config, actor *policy.Actor, args []string) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}
	if err := requireConfigured(cfg); err != nil {
		return "", err
	}
	if len(args) != 1 && len(args) != 2 {
		return "", failf(ValidationError, "usage: remove-role <role-id> [category]")
	}
	role := platform.RoleID(args[0])
	categories := cfg.CategoriesOf(role)
	if len(categories) == 0 {
		return "", failf(ValidationError, "<@&%s> is not assigned to any category", role)
	}

	var category policy.Category
	switch {
	case len(args) == 2:
		parsed, err := policy.ParseCategory(args[1])
		if err != nil {
			return "", failf(ValidationError, "unknown category %q", args[1])
		}
		found := false
		for _, existing := range categories {
			if existing == parsed {
				found = true
			}
		}
		if !found {
			return "", failf(ValidationError, "<@&%s> is not a %s role", role, parsed)
		}
		category = parsed
	case len(categories) > 1:
		// Manager/bypass overlap: the caller has to say which one.
		names := make([]string, len(categories))
		for i, existing := range categories {
			names[i] = existing.String()
		}
		return "", failf(ValidationError,
			"<@&%s> is assigned to %s; name the category to remove it from", role, strings.Join(names, " and "))
	default:
		category = categories[0]
	}

	if _, err := b.store.RemoveRole(ctx, cfg.Community, category, role); err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not remove the role", Err: err}
	}
	return fmt.Sprintf("<@&%s> is no longer a %s role", role, category), nil
}

func (b *Bot) cmdReset(ctx context.Context, cfg *policy.Config, actor *policy.Actor) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}
	if err := b.store.PurgeCommunity(ctx, cfg.Community); err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not reset the configuration", Err: err}
	}
	return "configuration reset, run setup to start over", nil
}

// cmdForceReset purges an arbitrary community's records. Operator
// only; it exists for cleaning up after communities the bot left
// while offline.
func (b *Bot) cmdForceReset(ctx context.Context, actor *policy.Actor, args []string) (string, error) {
	if !actor.Operator {
		return "", failf(PermissionDenied, "only bot operators can force-reset")
	}
	if len(args) != 1 {
		return "", failf(ValidationError, "usage: force-reset <community-id>")
	}
	community := platform.CommunityID(args[0])
	if err := b.store.PurgeCommunity(ctx, community); err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not purge the community", Err: err}
	}
	return fmt.Sprintf("purged all records for community %s", community), nil
}

func (b *Bot) cmdRemoveInvalid(ctx context.Context, cfg *policy.Config, actor *policy.Actor) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}
	removed, err := b.store.RemoveInvalid(ctx, cfg.Community)
	if err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not clean up invalid entries", Err: err}
	}
	return fmt.Sprintf("removed %d invalid role entr(ies)", removed), nil
}

func (b *Bot) cmdShowSetup(ctx context.Context, cfg *policy.Config, actor *policy.Actor) (string, error) {
	if err := requireManage(cfg, actor); err != nil {
		return "", err
	}
	if err := requireConfigured(cfg); err != nil {
		return "", err
	}

	roleNames := make(map[platform.RoleID]string)
	if roles, err := b.api.Roles(ctx, cfg.Community); err == nil {
		for _, role := range roles {
			roleNames[role.ID] = role.Name
		}
	}
	describe := func(ids []platform.RoleID) string {
		if len(ids) == 0 {
			return "none"
		}
		parts := make([]string, len(ids))
		for i, id := range ids {
			if name, ok := roleNames[id]; ok {
				parts[i] = name
			} else {
				parts[i] = string(id)
			}
		}
		return strings.Join(parts, ", ")
	}

	grants, err := b.store.Grants(ctx, cfg.Community)
	if err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not list temporary grants", Err: err}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "announcement channel: <#%s>\n", cfg.AnnouncementChannel)
	fmt.Fprintf(&out, "protected: %s\n", describe(cfg.Protected))
	fmt.Fprintf(&out, "bypass: %s\n", describe(cfg.Bypass))
	fmt.Fprintf(&out, "auto: %s\n", describe(cfg.Auto))
	fmt.Fprintf(&out, "manager: %s\n", describe(cfg.Manager))
	fmt.Fprintf(&out, "active temporary grants: %d", len(grants))
	return out.String(), nil
}

func (b *Bot) cmdTempRole(ctx context.Context, cfg *policy.Config, actor *policy.Actor, args []string) (string, error) {
	if err := requireManage(cfg, actor); err != nil {
		return "", err
	}
	if err := requireConfigured(cfg); err != nil {
		return "", err
	}
	if len(args) < 1 {
		return "", failf(ValidationError, "usage: temprole <give|remove> <user-id> <role-id> [duration]")
	}
	switch args[0] {
	case "give":
		return b.tempRoleGive(ctx, cfg, actor, args[1:])
	case "remove":
		return b.tempRoleRemove(ctx, cfg, args[1:])
	}
	return "", failf(ValidationError, "unknown temprole subcommand %q, expected give or remove", args[0])
}

func (b *Bot) tempRoleGive(ctx context.Context, cfg *policy.Config, actor *policy.Actor, args []string) (string, error) {
	if len(args) < 3 {
		return "", failf(ValidationError, "usage: temprole give <user-id> <role-id> <duration, e.g. 1w 2d 3h>")
	}
	user := platform.UserID(args[0])
	role := platform.RoleID(args[1])
	spec := strings.Join(args[2:], " ")

	lifetime, err := duration.Parse(spec)
	if err != nil {
		return "", failf(ValidationError, "could not parse duration %q: use tokens like 1w 2d 3h 4m 5s, total must be positive", spec)
	}
	target, err := b.api.Member(ctx, cfg.Community, user)
	if err != nil {
		if platform.IsCode(err, platform.ErrCodeUnknownMember) {
			return "", failf(ValidationError, "<@%s> is not a member of this community", user)
		}
		return "", &Error{Kind: PlatformActionFailed, Message: "could not look up the member", Err: err}
	}
	if err := b.checkHierarchy(ctx, cfg.Community, actor, role); err != nil {
		return "", err
	}

	expires := b.clock.Now().Add(lifetime).UTC()
	err = b.store.AddGrant(ctx, store.Grant{
		Community: cfg.Community,
		UserID:    user,
		RoleID:    role,
		ExpiresAt: expires,
	})
	if errors.Is(err, store.ErrGrantExists) {
		return "", failf(ValidationError,
			"<@%s> already has a temporary grant of <@&%s>; remove it first to change the duration", user, role)
	}
	if err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not record the grant", Err: err}
	}

	if err := b.api.AddRole(ctx, cfg.Community, user, role); err != nil {
		// Keep the store consistent with the platform: a grant row
		// without the role would expire into a spurious revocation.
		if _, removeErr := b.store.RemoveGrant(ctx, cfg.Community, user, role); removeErr != nil {
			b.logger.Error("removing grant after failed role add",
				"community", cfg.Community, "user", user, "role", role, "error", removeErr)
		}
		return "", &Error{Kind: PlatformActionFailed, Message: "could not grant the role, check my permissions and role position", Err: err}
	}

	b.notify(ctx, cfg.Community, user, fmt.Sprintf(
		"You received the role <@&%s> until %s.", role, expires.Format("2006-01-02 15:04 MST")))
	return fmt.Sprintf("gave <@&%s> to %s until %s", role, target.Username, expires.Format("2006-01-02 15:04 MST")), nil
}

// checkHierarchy enforces the platform's role-position rules before
// the store ever sees the grant: the actor cannot hand out roles at
// or above their own top role (owner and operators exempt), and the
// bot cannot hand out roles at or above its own.
func (b *Bot) checkHierarchy(ctx context.Context, community platform.CommunityID, actor *policy.Actor, role platform.RoleID) error {
	roles, err := b.api.Roles(ctx, community)
	if err != nil {
		return &Error{Kind: PlatformActionFailed, Message: "could not list this community's roles", Err: err}
	}
	positions := make(map[platform.RoleID]int, len(roles))
	found := false
	var target int
	for _, r := range roles {
		positions[r.ID] = r.Position
		if r.ID == role {
			found = true
			target = r.Position
		}
	}
	if !found {
		return failf(ValidationError, "<@&%s> is not a role in this community", role)
	}

	top := func(held []platform.RoleID) int {
		best := 0
		for _, id := range held {
			if positions[id] > best {
				best = positions[id]
			}
		}
		return best
	}

	if !actor.CommunityOwner && !actor.Operator && target >= top(actor.RoleIDs) {
		return failf(PermissionDenied, "<@&%s> is at or above your top role", role)
	}
	self, err := b.api.Member(ctx, community, b.api.SelfID())
	if err != nil {
		return &Error{Kind: PlatformActionFailed, Message: "could not look up my own membership", Err: err}
	}
	if target >= top(self.RoleIDs) {
		return failf(PermissionDenied, "<@&%s> is at or above my top role, I cannot manage it", role)
	}
	return nil
}

// tempRoleRemove revokes a temporary grant ahead of its deadline.
// Succeeds even if the member no longer holds the role or the grant
// row is already gone; the end state is what matters.
func (b *Bot) tempRoleRemove(ctx context.Context, cfg *policy.Config, args []string) (string, error) {
	if len(args) != 2 {
		return "", failf(ValidationError, "usage: temprole remove <user-id> <role-id>")
	}
	user := platform.UserID(args[0])
	role := platform.RoleID(args[1])

	if err := b.api.RemoveRole(ctx, cfg.Community, user, role); err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not remove the role, check my permissions and role position", Err: err}
	}
	if _, err := b.store.RemoveGrant(ctx, cfg.Community, user, role); err != nil {
		return "", &Error{Kind: PlatformActionFailed, Message: "could not delete the grant record", Err: err}
	}
	return fmt.Sprintf("removed <@&%s> from <@%s>", role, user), nil
}

// validateRole checks that a role id names a real, assignable role.
func (b *Bot) validateRole(ctx context.Context, community platform.CommunityID, role platform.RoleID) error {
	if !role.IsValid() {
		return failf(ValidationError, "%q is not a valid role id", role)
	}
	roles, err := b.api.Roles(ctx, community)
	if err != nil {
		return &Error{Kind: PlatformActionFailed, Message: "could not list this community's roles", Err: err}
	}
	for _, r := range roles {
		if r.ID == role {
			if r.Managed {
				return failf(ValidationError, "<@&%s> is an integration-managed role and cannot be assigned", role)
			}
			return nil
		}
	}
	return failf(ValidationError, "<@&%s> is not a role in this community", role)
}

// validateChannel checks that a channel id names a real text channel.
func (b *Bot) validateChannel(ctx context.Context, community platform.CommunityID, channel platform.ChannelID) error {
	channels, err := b.api.TextChannels(ctx, community)
	if err != nil {
		return &Error{Kind: PlatformActionFailed, Message: "could not list this community's channels", Err: err}
	}
	for _, c := range channels {
		if c.ID == channel {
			return nil
		}
	}
	return failf(ValidationError, "<#%s> is not a text channel in this community", channel)
}
