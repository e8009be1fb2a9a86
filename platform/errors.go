// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"errors"
	"fmt"
)

// APIError is a structured error response from the platform. Callers
// use errors.As to extract it:
//
//	var apiErr *platform.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == platform.ErrCodeMissingPermissions { ... }
type APIError struct {
	// Code is the platform error code.
	Code string `json:"code"`
	// Message is the human-readable description from the platform.
	Message string `json:"message"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Platform error codes the bot branches on.
const (
	// ErrCodeMissingPermissions: the bot lacks the permission or role
	// position required for the operation.
	ErrCodeMissingPermissions = "MISSING_PERMISSIONS"
	// ErrCodeUnknownMember: the target user is not (or no longer) a
	// member of the community.
	ErrCodeUnknownMember = "UNKNOWN_MEMBER"
	// ErrCodeUnknownRole: the role does not exist.
	ErrCodeUnknownRole = "UNKNOWN_ROLE"
	// ErrCodeCannotMessage: the user does not accept direct messages.
	ErrCodeCannotMessage = "CANNOT_MESSAGE_USER"
	// ErrCodeUnknownCommunity: the bot is not in the community.
	ErrCodeUnknownCommunity = "UNKNOWN_COMMUNITY"
)

// IsCode reports whether err is a *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
