// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "github.com/roleward/roleward/platform"

// Decision is the outcome of classifying a member's role state
// against a community's policy.
type Decision struct {
	// Violations lists the protected roles the member holds without
	// authorization, in config order. Empty means the state is
	// allowed.
	Violations []platform.RoleID
}

// Allowed reports whether the member's role state needs no
// enforcement.
func (d Decision) Allowed() bool { return len(d.Violations) == 0 }

// Classify inspects a member's current role set under a community's
// policy. self is the bot's own user id.
//
// Rules, in order:
//   - Bots (including this one) are never enforced against.
//   - A member holding any bypass role is allowed unconditionally.
//   - Otherwise every protected role the member holds is a violation.
//
// An unconfigured community has no protected roles, so everything is
// allowed. Classification is pure and computed fresh per event; the
// caller supplies a Config read after the event arrived.
func Classify(config *Config, member *platform.Member, self platform.UserID) Decision {
	if member.Bot || member.UserID == self {
		return Decision{}
	}

	for _, bypass := range config.Bypass {
		if member.HasRole(bypass) {
			return Decision{}
		}
	}

	var violations []platform.RoleID
	for _, protected := range config.Protected {
		if !protected.IsValid() {
			continue
		}
		if member.HasRole(protected) {
			violations = append(violations, protected)
		}
	}
	return Decision{Violations: violations}
}
