// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import "context"

// API is the outbound platform surface the bot core depends on.
// [Client] implements it over REST; tests use an in-memory fake.
//
// All methods take a context; callers bound notification attempts
// (SendDirect, SendChannel) with short timeouts because message
// delivery can hang on the platform side.
type API interface {
	// SelfID returns the bot's own user id. Known from
	// authentication, so no context or error.
	SelfID() UserID

	// Community fetches one community's metadata.
	Community(ctx context.Context, id CommunityID) (*Community, error)

	// Communities lists every community the bot is currently in.
	Communities(ctx context.Context) ([]Community, error)

	// Roles lists a community's roles.
	Roles(ctx context.Context, community CommunityID) ([]Role, error)

	// Member fetches one member of a community. Returns *APIError
	// with ErrCodeUnknownMember if the user is not a member.
	Member(ctx context.Context, community CommunityID, user UserID) (*Member, error)

	// TextChannels lists the community's text channels in display
	// order. Used for the channel fallback when a direct message is
	// refused.
	TextChannels(ctx context.Context, community CommunityID) ([]Channel, error)

	// AddRole grants a role to a member. Granting a role the member
	// already holds is a no-op on the platform side.
	AddRole(ctx context.Context, community CommunityID, user UserID, role RoleID) error

	// RemoveRole revokes a role from a member. Revoking a role the
	// member does not hold is a no-op on the platform side.
	RemoveRole(ctx context.Context, community CommunityID, user UserID, role RoleID) error

	// SendDirect sends a direct message to a user.
	SendDirect(ctx context.Context, user UserID, text string) error

	// SendChannel posts a message to a channel.
	SendChannel(ctx context.Context, channel ChannelID, text string) error

	// LatestRoleAudit returns the most recent member-role-update
	// audit entry targeting the user, or nil if the trail has none.
	// The audit trail is eventually consistent; treat the result as
	// advisory.
	LatestRoleAudit(ctx context.Context, community CommunityID, target UserID) (*AuditEntry, error)

	// Leave removes the bot from the community.
	Leave(ctx context.Context, community CommunityID) error
}
