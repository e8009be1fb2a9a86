// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"errors"
	"fmt"
)

// Kind classifies a command or enforcement failure. Every Kind maps
// to a short user-facing message; the wrapped error keeps the detail
// for logs.
type Kind int

const (
	// ConfigurationMissing means the community has not run setup.
	ConfigurationMissing Kind = iota
	// PermissionDenied means the invoker lacks the capability for
	// the command.
	PermissionDenied
	// ValidationError means the command arguments are malformed or
	// inconsistent with current state.
	ValidationError
	// PlatformActionFailed means a platform API call failed.
	PlatformActionFailed
	// AuditResolutionFailed means the audit trail could not identify
	// who performed a role change. Advisory; enforcement proceeds.
	AuditResolutionFailed
)

// Error is a failure with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// failf builds an *Error with a formatted user-facing message.
func failf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure Kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// UserMessage returns the short message to show the command invoker.
// Non-Error failures collapse to a generic line so internal detail
// never reaches chat.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "something went wrong, try again later"
}
