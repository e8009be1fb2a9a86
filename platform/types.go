// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import "time"

// CommunityID identifies a community (guild/server) on the platform.
type CommunityID string

// RoleID identifies a role within a community. The platform uses the
// literal id "0" as a placeholder for deleted or never-valid roles;
// IsValid filters it.
type RoleID string

// UserID identifies a platform user.
type UserID string

// ChannelID identifies a channel within a community.
type ChannelID string

// IsValid reports whether the role id is a real role reference rather
// than the empty string or the platform's zero placeholder.
func (r RoleID) IsValid() bool { return r != "" && r != "0" }

// Community is a community the bot is a member of.
type Community struct {
	ID      CommunityID `json:"id"`
	Name    string      `json:"name"`
	OwnerID UserID      `json:"owner_id"`
}

// Role is a community role. Position orders the role hierarchy; a
// member may only act on roles strictly below their own top role.
// Managed roles are owned by an integration (such as this bot) and
// cannot be assigned by hand.
type Role struct {
	ID            RoleID `json:"id"`
	Name          string `json:"name"`
	Position      int    `json:"position"`
	Managed       bool   `json:"managed"`
	Administrator bool   `json:"administrator"`
}

// Member is a user's membership in one community.
type Member struct {
	UserID   UserID   `json:"user_id"`
	Username string   `json:"username"`
	RoleIDs  []RoleID `json:"role_ids"`
	Bot      bool     `json:"bot"`
}

// HasRole reports whether the member currently holds the role.
func (m *Member) HasRole(id RoleID) bool {
	for _, held := range m.RoleIDs {
		if held == id {
			return true
		}
	}
	return false
}

// Channel is a community channel. Only text channels are relevant to
// the bot (announcements and message fallbacks).
type Channel struct {
	ID        ChannelID   `json:"id"`
	Name      string      `json:"name"`
	Text      bool        `json:"text"`
	Community CommunityID `json:"community_id"`
}

// AuditEntry is one audit-log record. The bot only ever asks for the
// most recent member-role-update entry targeting a given user, to
// resolve who performed a role change.
type AuditEntry struct {
	ActorID   UserID    `json:"actor_id"`
	TargetID  UserID    `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}
