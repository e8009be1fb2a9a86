// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

// Package platform is the boundary to the chat platform.
//
// The bot core depends on the [API] interface for everything it does
// to the platform: role grants and revocations, direct and channel
// messages, audit-log queries, community metadata, and leaving a
// community. [Client] implements API over the platform's REST surface.
// Tests substitute an in-memory fake.
//
// Inbound gateway events (member joins, role changes, deletions, the
// bot's own arrival and removal) are delivered by the platform as
// signed webhook POSTs; [Receiver] verifies the HMAC signature,
// decodes the event envelope, and dispatches to an [EventHandler].
// A panic in one event's handling is recovered and logged so a single
// bad event never stops the stream.
//
// API errors are returned as [*APIError] carrying the platform error
// code and HTTP status; use [IsCode] or errors.As to branch on them.
package platform
