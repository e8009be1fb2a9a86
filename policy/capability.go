// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "github.com/roleward/roleward/platform"

// Actor describes who invoked a command within a community.
type Actor struct {
	UserID platform.UserID
	// RoleIDs is the actor's current role set.
	RoleIDs []platform.RoleID
	// Administrator is the actor's effective administrator
	// permission in the community.
	Administrator bool
	// CommunityOwner marks the community's owner.
	CommunityOwner bool
	// Operator marks the bot's own operators, who pass every check
	// everywhere.
	Operator bool
}

// holdsAny reports whether the actor holds any of the given roles.
func (a *Actor) holdsAny(roles []platform.RoleID) bool {
	for _, role := range roles {
		for _, held := range a.RoleIDs {
			if held == role {
				return true
			}
		}
	}
	return false
}

// CanAdminister is the capability check for setup-level commands
// (setup, set-channel, add-role, remove-role, reset): community
// owner, administrator permission, or bot operator.
func CanAdminister(actor *Actor) bool {
	return actor.Operator || actor.CommunityOwner || actor.Administrator
}

// CanManage is the capability check for role-level commands
// (temporary grants, show-setup): everything CanAdminister accepts,
// plus holders of a configured manager role.
func CanManage(config *Config, actor *Actor) bool {
	if CanAdminister(actor) {
		return true
	}
	return actor.holdsAny(config.Manager)
}
