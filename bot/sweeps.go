// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/roleward/roleward/blacklist"
	"github.com/roleward/roleward/lib/sweep"
)

// Runners builds the four background sweeps. The daemon starts each
// in its own goroutine; they share the process shutdown context and
// nothing else, so one slow sweep never delays another.
func (b *Bot) Runners() []*sweep.Runner {
	build := func(name string, interval time.Duration, task sweep.Task) *sweep.Runner {
		return sweep.New(sweep.Config{
			Name:     name,
			Interval: interval,
			Task: func(ctx context.Context) error {
				if err := task(ctx); err != nil {
					sweepErrorsTotal.WithLabelValues(name).Inc()
					return err
				}
				return nil
			},
			Clock:  b.clock,
			Logger: b.logger,
		})
	}
	return []*sweep.Runner{
		build("setup-reminder", b.sweeps.SetupReminder, b.setupReminderTick),
		build("blacklist", b.sweeps.Blacklist, b.blacklistTick),
		build("temp-roles", b.sweeps.TempRoles, b.tempRoleTick),
		build("bot-role-discovery", b.sweeps.BotRoleDiscovery, b.botRoleTick),
	}
}

// setupReminderTick nags the owner of every community that has not
// completed setup.
func (b *Bot) setupReminderTick(ctx context.Context) error {
	communities, err := b.api.Communities(ctx)
	if err != nil {
		return fmt.Errorf("listing communities: %w", err)
	}
	for _, community := range communities {
		cfg, err := b.store.Config(ctx, community.ID)
		if err != nil {
			b.logger.Error("reading config for setup reminder", "community", community.ID, "error", err)
			continue
		}
		if cfg.Configured() {
			continue
		}
		b.notify(ctx, community.ID, community.OwnerID, fmt.Sprintf(
			"%s is not set up yet. Run the setup command so I can start protecting roles.",
			community.Name))
	}
	return nil
}

// blacklistTick re-reads the blacklist file and leaves any listed
// community the bot is still in. A malformed file skips the whole
// tick; acting on a half-read list could make the bot leave the wrong
// communities.
func (b *Bot) blacklistTick(ctx context.Context) error {
	if b.blacklistPath == "" {
		return nil
	}
	list, err := blacklist.ReadFile(b.blacklistPath)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}

	communities, err := b.api.Communities(ctx)
	if err != nil {
		return fmt.Errorf("listing communities: %w", err)
	}
	for _, community := range communities {
		if !list.Contains(community.ID) {
			continue
		}
		entry := list[community.ID]
		b.notify(ctx, community.ID, community.OwnerID, fmt.Sprintf(
			"%s has been blacklisted (%s). I am leaving; contact the operators to appeal.",
			community.Name, entry.Reason))
		if err := b.api.Leave(ctx, community.ID); err != nil {
			b.logger.Error("leaving blacklisted community", "community", community.ID, "error", err)
			continue
		}
		if err := b.store.PurgeCommunity(ctx, community.ID); err != nil {
			b.logger.Error("purging blacklisted community", "community", community.ID, "error", err)
		}
		b.logger.Info("left blacklisted community",
			"community", community.ID, "name", community.Name, "reason", entry.Reason)
	}
	return nil
}

// tempRoleTick revokes every grant past its deadline. Grants are
// processed independently: a platform failure on one logs, still
// deletes the row, and moves on. Deleting the row even on failure is
// what guarantees forward progress; a member who somehow keeps the
// role is a one-line log, a grant that re-fails every minute forever
// is an outage.
func (b *Bot) tempRoleTick(ctx context.Context) error {
	due, err := b.store.DueGrants(ctx)
	if err != nil {
		return fmt.Errorf("listing due grants: %w", err)
	}
	for _, grant := range due {
		if err := b.api.RemoveRole(ctx, grant.Community, grant.UserID, grant.RoleID); err != nil {
			b.logger.Error("revoking expired grant",
				"community", grant.Community, "user", grant.UserID,
				"role", grant.RoleID, "error", err)
		} else {
			b.notify(ctx, grant.Community, grant.UserID, fmt.Sprintf(
				"Your temporary role <@&%s> expired and has been removed.", grant.RoleID))
		}
		if _, err := b.store.RemoveGrant(ctx, grant.Community, grant.UserID, grant.RoleID); err != nil {
			b.logger.Error("deleting expired grant",
				"community", grant.Community, "user", grant.UserID,
				"role", grant.RoleID, "error", err)
			continue
		}
		grantsExpiredTotal.Inc()
	}
	return nil
}

// botRoleTick re-derives the bot's managed role in every community.
// Covers communities joined while the bot was offline and platforms
// that recreate the managed role.
func (b *Bot) botRoleTick(ctx context.Context) error {
	communities, err := b.api.Communities(ctx)
	if err != nil {
		return fmt.Errorf("listing communities: %w", err)
	}
	for _, community := range communities {
		if err := b.recordBotRole(ctx, community.ID); err != nil {
			b.logger.Error("recording bot role", "community", community.ID, "error", err)
		}
	}
	return nil
}
