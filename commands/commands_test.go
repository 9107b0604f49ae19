package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/storage"
)

const admin directory.Identity = 1

type fixture struct {
	registry *Registry
	dir      *directory.Directory
	handles  *storage.MemHandles
	mutes    *storage.MemMutes
	saves    int
	saveErr  error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		dir:     directory.New(),
		handles: storage.NewMemHandles(),
		mutes:   storage.NewMemMutes(),
	}
	f.registry = NewRegistry(Deps{
		Dir:     f.dir,
		Handles: f.handles,
		Mutes:   f.mutes,
		AdminID: admin,
		Save: func(*directory.Directory) error {
			f.saves++
			return f.saveErr
		},
	})
	return f
}

func (f *fixture) dispatch(t *testing.T, sender directory.Identity, text string) string {
	t.Helper()
	reply, handled := f.registry.Dispatch(context.Background(), sender, text)
	require.True(t, handled, "%q should be handled as a command", text)
	return reply
}

func TestDispatch_NonCommandPassesThrough(t *testing.T) {
	f := newFixture(t)

	_, handled := f.registry.Dispatch(context.Background(), 100, "just a message")
	assert.False(t, handled)

	_, handled = f.registry.Dispatch(context.Background(), 100, "-team also not a command")
	assert.False(t, handled)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	f := newFixture(t)

	reply := f.dispatch(t, 100, "/frobnicate")
	assert.Contains(t, reply, "Unknown command /frobnicate")
}

func TestDispatch_AdminGate(t *testing.T) {
	f := newFixture(t)

	reply := f.dispatch(t, 100, "/addrole writer 200")
	assert.Contains(t, reply, "administrative rights")

	// The privileged identity passes the gate.
	reply = f.dispatch(t, admin, "/addrole writer 200")
	assert.Contains(t, reply, "Added 1 member(s) to writer.")

	// So does a group-admin member.
	mustAdd(t, f.dir, directory.RoleGroupAdmin, 100)
	reply = f.dispatch(t, 100, "/addrole writer 300")
	assert.Contains(t, reply, "Added 1 member(s)")
}

func TestAddRole(t *testing.T) {
	f := newFixture(t)

	reply := f.dispatch(t, admin, "/addrole writer 200 300")
	assert.Equal(t, "Added 2 member(s) to writer.", reply)
	assert.True(t, f.dir.IsMember(directory.RoleWriter, 200))
	assert.True(t, f.dir.IsMember(directory.RoleWriter, 300))
	assert.Equal(t, 1, f.saves)

	// Re-adding is counted as zero and skips the save.
	reply = f.dispatch(t, admin, "/addrole writer 200")
	assert.Equal(t, "Added 0 member(s) to writer.", reply)
	assert.Equal(t, 1, f.saves)
}

func TestAddRoleUnknownRole(t *testing.T) {
	f := newFixture(t)

	reply := f.dispatch(t, admin, "/addrole phantom 200")
	assert.Contains(t, reply, "failed")
	assert.Equal(t, 0, f.saves)
}

func TestRemoveRole(t *testing.T) {
	f := newFixture(t)
	mustAdd(t, f.dir, directory.RoleWriter, 200)

	reply := f.dispatch(t, admin, "/removerole writer 200")
	assert.Equal(t, "Removed 1 member(s) from writer.", reply)
	assert.False(t, f.dir.IsMember(directory.RoleWriter, 200))

	reply = f.dispatch(t, admin, "/removerole writer 200")
	assert.Equal(t, "Removed 0 member(s) from writer.", reply)
}

func TestSaveFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.saveErr = errors.New("disk full")

	reply := f.dispatch(t, admin, "/addrole writer 200")
	assert.Contains(t, reply, "save role file")
}

func TestRoles(t *testing.T) {
	f := newFixture(t)
	mustAdd(t, f.dir, directory.RoleWriter, 100)
	mustAdd(t, f.dir, directory.RoleChecker, 100)

	reply := f.dispatch(t, 100, "/roles")
	assert.Contains(t, reply, "writer")
	assert.Contains(t, reply, "checker")

	reply = f.dispatch(t, 200, "/roles")
	assert.Equal(t, "200 holds no roles.", reply)
}

func TestRolesOfOther(t *testing.T) {
	f := newFixture(t)
	mustAdd(t, f.dir, directory.RoleWriter, 200)

	// Non-admins cannot inspect other users.
	reply := f.dispatch(t, 100, "/roles 200")
	assert.Contains(t, reply, "administrative rights")

	reply = f.dispatch(t, admin, "/roles 200")
	assert.Contains(t, reply, "writer")
}

func TestMembers(t *testing.T) {
	f := newFixture(t)
	mustAdd(t, f.dir, directory.RoleWriter, 300)
	mustAdd(t, f.dir, directory.RoleWriter, 200)

	reply := f.dispatch(t, admin, "/members writer")
	assert.Equal(t, "writer: 200, 300", reply)

	reply = f.dispatch(t, admin, "/members king")
	assert.Equal(t, "king has no members.", reply)
}

func TestMuteUnmute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.dispatch(t, admin, "/mute 200")
	assert.Equal(t, "200 is now muted.", reply)
	muted, err := f.mutes.IsMuted(ctx, 200)
	require.NoError(t, err)
	assert.True(t, muted)

	reply = f.dispatch(t, admin, "/unmute 200")
	assert.Equal(t, "200 is no longer muted.", reply)
	muted, err = f.mutes.IsMuted(ctx, 200)
	require.NoError(t, err)
	assert.False(t, muted)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	reply := f.dispatch(t, admin, "/register @Alice 200")
	assert.Contains(t, reply, "maps to 200")

	id, ok, err := f.handles.Resolve(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, directory.Identity(200), id)
}

func TestHelpFiltersAdminCommands(t *testing.T) {
	f := newFixture(t)

	plain := f.dispatch(t, 100, "/help")
	assert.Contains(t, plain, "/roles")
	assert.NotContains(t, plain, "/mute")

	full := f.dispatch(t, admin, "/help")
	assert.Contains(t, full, "/mute")
	assert.Contains(t, full, "/register")
}

func TestUsageErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		text string
		want string
	}{
		{"/members", "usage: /members <role>"},
		{"/addrole writer", "usage"},
		{"/mute", "usage: /mute <id>"},
		{"/mute alice", "not a numeric identity"},
		{"/register alice", "usage: /register <handle> <id>"},
	}
	for _, tt := range tests {
		reply := f.dispatch(t, admin, tt.text)
		assert.Contains(t, reply, tt.want, "command %q", tt.text)
	}
}

func mustAdd(t *testing.T, d *directory.Directory, role directory.Role, id directory.Identity) {
	t.Helper()
	_, err := d.Add(role, id)
	require.NoError(t, err)
}
