// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

// Package blacklist reads the operator-maintained list of communities
// the bot refuses to serve. The list is a JSONC file (JSON extended
// with comments and trailing commas) edited by hand, so entries carry
// a reason and a cached community name for the operator's benefit:
//
//	{
//	    // scraper network, reported 2026-01
//	    "109462029566230528": {"reason": "mass-invite abuse", "name": "Free Nitro"},
//	}
//
// The file is re-read on every sweep tick; edits take effect without
// a restart.
package blacklist

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/roleward/roleward/platform"
)

// Entry is one blacklisted community.
type Entry struct {
	// Reason records why the community was blacklisted.
	Reason string `json:"reason"`
	// Name is the community's display name at the time of listing,
	// kept so the file stays readable after the bot has left.
	Name string `json:"name,omitempty"`
}

// List maps blacklisted community ids to their entries.
type List map[platform.CommunityID]Entry

// Contains reports whether a community is blacklisted.
func (l List) Contains(community platform.CommunityID) bool {
	_, ok := l[community]
	return ok
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a List.
func Parse(data []byte) (List, error) {
	stripped := jsonc.ToJSON(data)

	var list List
	if err := json.Unmarshal(stripped, &list); err != nil {
		return nil, fmt.Errorf("parsing blacklist: %w", err)
	}
	return list, nil
}

// ReadFile reads and parses a JSONC blacklist file. A missing file is
// an empty list, so a fresh deployment needs no placeholder file. A
// malformed file is an error; callers skip the tick rather than act
// on a half-read list.
func ReadFile(path string) (List, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return List{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	list, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}
