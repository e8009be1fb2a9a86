// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"encoding/json"
	"fmt"
)

// Gateway event types. These are the envelope "type" values the
// platform delivers to the webhook receiver.
const (
	EventMemberJoin       = "member_join"
	EventMemberRoleUpdate = "member_role_update"
	EventRoleDelete       = "role_delete"
	EventRoleUpdate       = "role_update"
	EventChannelDelete    = "channel_delete"
	EventBotJoined        = "bot_joined"
	EventBotRemoved       = "bot_removed"
)

// MemberJoinEvent fires when a user joins a community.
type MemberJoinEvent struct {
	Community CommunityID `json:"community_id"`
	Member    Member      `json:"member"`
}

// MemberRoleUpdateEvent fires when a member's role set changes.
// Member carries the post-change state; Added lists the role ids the
// change granted (empty for pure removals).
type MemberRoleUpdateEvent struct {
	Community CommunityID `json:"community_id"`
	Member    Member      `json:"member"`
	Added     []RoleID    `json:"added_role_ids"`
}

// RoleDeleteEvent fires when a community role is deleted.
type RoleDeleteEvent struct {
	Community CommunityID `json:"community_id"`
	Role      Role        `json:"role"`
}

// RoleUpdateEvent fires when a role's name, position, or permissions
// change. Before and After carry the role state around the change.
type RoleUpdateEvent struct {
	Community CommunityID `json:"community_id"`
	Before    Role        `json:"before"`
	After     Role        `json:"after"`
}

// ChannelDeleteEvent fires when a community channel is deleted.
type ChannelDeleteEvent struct {
	Community CommunityID `json:"community_id"`
	Channel   Channel     `json:"channel"`
}

// BotJoinedEvent fires when the bot itself is added to a community.
type BotJoinedEvent struct {
	Community Community `json:"community"`
}

// BotRemovedEvent fires when the bot is removed from a community.
// Only the id survives removal; the community is no longer visible.
type BotRemovedEvent struct {
	Community CommunityID `json:"community_id"`
}

// EventHandler receives decoded gateway events. Implementations must
// tolerate interleaved calls from concurrent webhook deliveries; the
// receiver adds no cross-event ordering or locking.
type EventHandler interface {
	HandleMemberJoin(event MemberJoinEvent)
	HandleMemberRoleUpdate(event MemberRoleUpdateEvent)
	HandleRoleDelete(event RoleDeleteEvent)
	HandleRoleUpdate(event RoleUpdateEvent)
	HandleChannelDelete(event ChannelDeleteEvent)
	HandleBotJoined(event BotJoinedEvent)
	HandleBotRemoved(event BotRemovedEvent)
}

// envelope is the wire shape of a gateway delivery.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// dispatch decodes the envelope payload and routes it to the handler.
// Unknown event types return an error; the receiver logs and drops
// them so a gateway schema addition never breaks deployed bots.
func dispatch(handler EventHandler, env envelope) error {
	decode := func(v any) error {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("platform: decoding %s event: %w", env.Type, err)
		}
		return nil
	}

	switch env.Type {
	case EventMemberJoin:
		var event MemberJoinEvent
		if err := decode(&event); err != nil {
			return err
		}
		handler.HandleMemberJoin(event)
	case EventMemberRoleUpdate:
		var event MemberRoleUpdateEvent
		if err := decode(&event); err != nil {
			return err
		}
		handler.HandleMemberRoleUpdate(event)
	case EventRoleDelete:
		var event RoleDeleteEvent
		if err := decode(&event); err != nil {
			return err
		}
		handler.HandleRoleDelete(event)
	case EventRoleUpdate:
		var event RoleUpdateEvent
		if err := decode(&event); err != nil {
			return err
		}
		handler.HandleRoleUpdate(event)
	case EventChannelDelete:
		var event ChannelDeleteEvent
		if err := decode(&event); err != nil {
			return err
		}
		handler.HandleChannelDelete(event)
	case EventBotJoined:
		var event BotJoinedEvent
		if err := decode(&event); err != nil {
			return err
		}
		handler.HandleBotJoined(event)
	case EventBotRemoved:
		var event BotRemovedEvent
		if err := decode(&event); err != nil {
			return err
		}
		handler.HandleBotRemoved(event)
	default:
		return fmt.Errorf("platform: unknown event type %q", env.Type)
	}
	return nil
}
