// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/roleward/roleward/platform"
)

// roleChange records one AddRole or RemoveRole call.
type roleChange struct {
	community platform.CommunityID
	user      platform.UserID
	role      platform.RoleID
}

// message records one SendDirect or SendChannel call.
type message struct {
	user    platform.UserID
	channel platform.ChannelID
	text    string
}

// fakeAPI is an in-memory platform.API. State is fixed by the test;
// calls are recorded for assertions. Role grants and revocations do
// not mutate member state, tests set up the member they want.
type fakeAPI struct {
	mu sync.Mutex

	self        platform.UserID
	communities []platform.Community
	roles       map[platform.CommunityID][]platform.Role
	members     map[platform.CommunityID]map[platform.UserID]*platform.Member
	channels    map[platform.CommunityID][]platform.Channel
	audit       map[platform.UserID]*platform.AuditEntry

	// failRemoveRole makes RemoveRole fail for the given role ids.
	failRemoveRole map[platform.RoleID]error
	// failAddRole makes every AddRole fail.
	failAddRole error
	// failDirect makes every SendDirect fail with CANNOT_MESSAGE_USER.
	failDirect bool

	added    []roleChange
	removed  []roleChange
	directs  []message
	posts    []message
	departed []platform.CommunityID
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		self:           "bot-self",
		roles:          make(map[platform.CommunityID][]platform.Role),
		members:        make(map[platform.CommunityID]map[platform.UserID]*platform.Member),
		channels:       make(map[platform.CommunityID][]platform.Channel),
		audit:          make(map[platform.UserID]*platform.AuditEntry),
		failRemoveRole: make(map[platform.RoleID]error),
	}
}

func (f *fakeAPI) addMember(community platform.CommunityID, member *platform.Member) {
	if f.members[community] == nil {
		f.members[community] = make(map[platform.UserID]*platform.Member)
	}
	f.members[community][member.UserID] = member
}

func (f *fakeAPI) SelfID() platform.UserID { return f.self }

func (f *fakeAPI) Community(_ context.Context, id platform.CommunityID) (*platform.Community, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, community := range f.communities {
		if community.ID == id {
			return &community, nil
		}
	}
	return nil, &platform.APIError{Code: platform.ErrCodeUnknownCommunity, Message: "no such community"}
}

func (f *fakeAPI) Communities(context.Context) ([]platform.Community, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Community{}, f.communities...), nil
}

func (f *fakeAPI) Roles(_ context.Context, community platform.CommunityID) ([]platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Role{}, f.roles[community]...), nil
}

func (f *fakeAPI) Member(_ context.Context, community platform.CommunityID, user platform.UserID) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if member, ok := f.members[community][user]; ok {
		copied := *member
		return &copied, nil
	}
	return nil, &platform.APIError{Code: platform.ErrCodeUnknownMember, Message: "no such member"}
}

func (f *fakeAPI) TextChannels(_ context.Context, community platform.CommunityID) ([]platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Channel{}, f.channels[community]...), nil
}

func (f *fakeAPI) AddRole(_ context.Context, community platform.CommunityID, user platform.UserID, role platform.RoleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAddRole != nil {
		return f.failAddRole
	}
	f.added = append(f.added, roleChange{community, user, role})
	return nil
}

func (f *fakeAPI) RemoveRole(_ context.Context, community platform.CommunityID, user platform.UserID, role platform.RoleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failRemoveRole[role]; err != nil {
		return err
	}
	f.removed = append(f.removed, roleChange{community, user, role})
	return nil
}

func (f *fakeAPI) SendDirect(_ context.Context, user platform.UserID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDirect {
		return &platform.APIError{Code: platform.ErrCodeCannotMessage, Message: "user blocks DMs"}
	}
	f.directs = append(f.directs, message{user: user, text: text})
	return nil
}

func (f *fakeAPI) SendChannel(_ context.Context, channel platform.ChannelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, message{channel: channel, text: text})
	return nil
}

func (f *fakeAPI) LatestRoleAudit(_ context.Context, _ platform.CommunityID, target platform.UserID) (*platform.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audit[target], nil
}

func (f *fakeAPI) Leave(_ context.Context, community platform.CommunityID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.departed = append(f.departed, community)
	return nil
}

// removedRoles returns the recorded revocations as "community/user/role"
// strings for compact assertions.
func (f *fakeAPI) removedRoles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removed))
	for i, change := range f.removed {
		out[i] = fmt.Sprintf("%s/%s/%s", change.community, change.user, change.role)
	}
	return out
}

func (f *fakeAPI) addedRoles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.added))
	for i, change := range f.added {
		out[i] = fmt.Sprintf("%s/%s/%s", change.community, change.user, change.role)
	}
	return out
}

func (f *fakeAPI) directMessages() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message{}, f.directs...)
}

func (f *fakeAPI) channelMessages() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message{}, f.posts...)
}
