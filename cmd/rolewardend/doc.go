// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

// Rolewardend is the roleward daemon: a chat-platform moderation bot
// that enforces role policy. It reverses unauthorized grants of
// protected roles, assigns join roles, schedules temporary role
// grants, and reconciles role and channel lifecycle changes against
// its SQLite policy store.
//
// The daemon serves one HTTP listener with three routes: /gateway
// receives HMAC-signed platform event deliveries, /metrics exposes
// Prometheus metrics, and /ping answers uptime probes.
//
// Usage:
//
//	rolewardend --config /etc/roleward/roleward.yaml
package main
