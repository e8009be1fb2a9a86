// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enforcementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roleward_enforcements_total",
			Help: "Protected-role enforcement attempts by outcome.",
		},
		[]string{"outcome"},
	)

	autoAssignmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roleward_auto_assignments_total",
			Help: "Roles granted by the join auto-assignment handler.",
		},
	)

	grantsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roleward_temp_grants_expired_total",
			Help: "Temporary grants revoked by the expiry sweep.",
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roleward_notifications_total",
			Help: "Notification deliveries by route.",
		},
		[]string{"route"},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roleward_commands_total",
			Help: "Administrative commands by name and outcome.",
		},
		[]string{"command", "outcome"},
	)

	sweepErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roleward_sweep_errors_total",
			Help: "Background sweep ticks that returned an error.",
		},
		[]string{"sweep"},
	)
)
