// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy holds the pure decision logic of the bot: the closed
// role-category enumeration, the protected-role classifier, and the
// capability predicates for the administrative command surface. It
// has no storage or platform side effects; callers fetch state, ask
// for a decision, and act on it.
package policy

import (
	"fmt"

	"github.com/roleward/roleward/platform"
)

// Category is the closed set of role categories a community config
// assigns. A role id must not appear in more than one category, with
// one deliberate exception: manager and bypass may overlap, since
// managers routinely need to hold protected roles themselves.
type Category int

const (
	// Protected roles may not be granted by ordinary means; the bot
	// reverses any grant not covered by a bypass.
	Protected Category = iota
	// Bypass roles exempt their holders from protected-role
	// enforcement entirely.
	Bypass
	// Auto roles are granted to every member on join.
	Auto
	// Manager roles may operate the bot's role commands without
	// administrator permission.
	Manager
)

var categoryNames = map[Category]string{
	Protected: "protected",
	Bypass:    "bypass",
	Auto:      "auto",
	Manager:   "manager",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// ParseCategory maps a command argument to a Category.
func ParseCategory(s string) (Category, error) {
	for category, name := range categoryNames {
		if name == s {
			return category, nil
		}
	}
	return 0, fmt.Errorf("policy: unknown role category %q", s)
}

// Categories lists every category in declaration order.
func Categories() []Category {
	return []Category{Protected, Bypass, Auto, Manager}
}

// CanOverlap reports whether two categories may share a role id.
// Only the manager/bypass pair may.
func CanOverlap(a, b Category) bool {
	if a == b {
		return false
	}
	return (a == Manager && b == Bypass) || (a == Bypass && b == Manager)
}

// Config is one community's role policy, read fresh from the store
// for every decision. Configuration may change between gateway
// events, so nothing caches a Config beyond a single event or tick.
type Config struct {
	Community           platform.CommunityID
	Protected           []platform.RoleID
	Bypass              []platform.RoleID
	Auto                []platform.RoleID
	Manager             []platform.RoleID
	AnnouncementChannel platform.ChannelID
	BotRole             platform.RoleID
}

// Configured reports whether the community has completed setup. The
// announcement channel is the marker row, as setup always writes it.
func (c *Config) Configured() bool { return c.AnnouncementChannel != "" }

// Roles returns the configured role ids for a category.
func (c *Config) Roles(category Category) []platform.RoleID {
	switch category {
	case Protected:
		return c.Protected
	case Bypass:
		return c.Bypass
	case Auto:
		return c.Auto
	case Manager:
		return c.Manager
	}
	return nil
}

// CategoriesOf returns every category the role id is assigned to.
func (c *Config) CategoriesOf(role platform.RoleID) []Category {
	var result []Category
	for _, category := range Categories() {
		for _, id := range c.Roles(category) {
			if id == role {
				result = append(result, category)
				break
			}
		}
	}
	return result
}
