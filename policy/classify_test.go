// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"reflect"
	"testing"

	"github.com/roleward/roleward/platform"
)

func testConfig() *Config {
	return &Config{
		Community:           "c1",
		Protected:           []platform.RoleID{"prot-a", "prot-b"},
		Bypass:              []platform.RoleID{"bypass-1"},
		Manager:             []platform.RoleID{"mgr-1"},
		AnnouncementChannel: "chan-1",
	}
}

func member(id platform.UserID, bot bool, roles ...platform.RoleID) *platform.Member {
	return &platform.Member{UserID: id, Bot: bot, RoleIDs: roles}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		member     *platform.Member
		violations []platform.RoleID
	}{
		{
			name:   "no protected roles held",
			member: member("u1", false, "ordinary"),
		},
		{
			name:       "protected role held",
			member:     member("u1", false, "prot-a"),
			violations: []platform.RoleID{"prot-a"},
		},
		{
			name:       "multiple protected roles held",
			member:     member("u1", false, "prot-b", "prot-a"),
			violations: []platform.RoleID{"prot-a", "prot-b"},
		},
		{
			name:   "bypass holder is exempt",
			member: member("u1", false, "prot-a", "bypass-1"),
		},
		{
			name:   "bots are never enforced",
			member: member("u1", true, "prot-a"),
		},
		{
			name:   "the bot itself is never enforced",
			member: member("self", false, "prot-a"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Classify(testConfig(), tt.member, "self")
			if !reflect.DeepEqual(decision.Violations, tt.violations) {
				t.Errorf("violations = %v, want %v", decision.Violations, tt.violations)
			}
			if decision.Allowed() != (len(tt.violations) == 0) {
				t.Errorf("Allowed() = %v with violations %v", decision.Allowed(), decision.Violations)
			}
		})
	}
}

func TestClassifyUnconfiguredCommunity(t *testing.T) {
	decision := Classify(&Config{Community: "c1"}, member("u1", false, "anything"), "self")
	if !decision.Allowed() {
		t.Errorf("unconfigured community produced violations: %v", decision.Violations)
	}
}

func TestClassifySkipsInvalidRoleIDs(t *testing.T) {
	config := &Config{Community: "c1", Protected: []platform.RoleID{"0", "prot-a"}}
	decision := Classify(config, member("u1", false, "0", "prot-a"), "self")
	want := []platform.RoleID{"prot-a"}
	if !reflect.DeepEqual(decision.Violations, want) {
		t.Errorf("violations = %v, want %v", decision.Violations, want)
	}
}

func TestCapabilities(t *testing.T) {
	config := testConfig()
	tests := []struct {
		name       string
		actor      Actor
		administer bool
		manage     bool
	}{
		{"ordinary member", Actor{UserID: "u1", RoleIDs: []platform.RoleID{"ordinary"}}, false, false},
		{"manager role holder", Actor{UserID: "u1", RoleIDs: []platform.RoleID{"mgr-1"}}, false, true},
		{"administrator", Actor{UserID: "u1", Administrator: true}, true, true},
		{"community owner", Actor{UserID: "u1", CommunityOwner: true}, true, true},
		{"operator", Actor{UserID: "u1", Operator: true}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAdminister(&tt.actor); got != tt.administer {
				t.Errorf("CanAdminister = %v, want %v", got, tt.administer)
			}
			if got := CanManage(config, &tt.actor); got != tt.manage {
				t.Errorf("CanManage = %v, want %v", got, tt.manage)
			}
		})
	}
}

func TestCategoryParsing(t *testing.T) {
	for _, category := range Categories() {
		parsed, err := ParseCategory(category.String())
		if err != nil {
			t.Fatalf("ParseCategory(%q): %v", category.String(), err)
		}
		if parsed != category {
			t.Errorf("round trip %v -> %v", category, parsed)
		}
	}
	if _, err := ParseCategory("sparkly"); err == nil {
		t.Error("ParseCategory accepted an unknown category")
	}
}

func TestCategoryOverlap(t *testing.T) {
	if !CanOverlap(Manager, Bypass) || !CanOverlap(Bypass, Manager) {
		t.Error("manager and bypass must be allowed to overlap")
	}
	if CanOverlap(Protected, Bypass) || CanOverlap(Protected, Protected) {
		t.Error("only the manager/bypass pair may overlap")
	}
}

func TestCategoriesOf(t *testing.T) {
	config := testConfig()
	config.Bypass = append(config.Bypass, "mgr-1")

	got := config.CategoriesOf("mgr-1")
	want := []Category{Bypass, Manager}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CategoriesOf(mgr-1) = %v, want %v", got, want)
	}
	if got := config.CategoriesOf("unknown"); got != nil {
		t.Errorf("CategoriesOf(unknown) = %v, want nil", got)
	}
}
