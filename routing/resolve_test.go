package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/teamrelay/directory"
)

func buildDirectory(t *testing.T, members map[directory.Role][]directory.Identity) *directory.Directory {
	t.Helper()
	d := directory.New()
	for role, ids := range members {
		for _, id := range ids {
			_, err := d.Add(role, id)
			require.NoError(t, err)
		}
	}
	return d
}

func TestResolve_NeverIncludesSender(t *testing.T) {
	d := buildDirectory(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100, 200},
		directory.RoleTara:   {100, 300},
	})

	// The sender belongs to both target roles and still must not appear.
	got, err := Resolve(100, []directory.Role{directory.RoleWriter, directory.RoleTara}, d)
	require.NoError(t, err)

	assert.NotContains(t, got, directory.Identity(100))
	assert.Contains(t, got, directory.Identity(200))
	assert.Contains(t, got, directory.Identity(300))
}

func TestResolve_OrderIndependent(t *testing.T) {
	d := buildDirectory(t, map[directory.Role][]directory.Identity{
		directory.RoleMCQs: {200, 300},
		directory.RoleWord: {300, 400},
	})

	forward, err := Resolve(100, []directory.Role{directory.RoleMCQs, directory.RoleWord}, d)
	require.NoError(t, err)
	backward, err := Resolve(100, []directory.Role{directory.RoleWord, directory.RoleMCQs}, d)
	require.NoError(t, err)

	assert.Equal(t, forward, backward)
	assert.Len(t, forward, 3) // 300 appears once despite holding both roles
}

func TestResolve_EmptySetFails(t *testing.T) {
	d := buildDirectory(t, map[directory.Role][]directory.Identity{
		directory.RoleChecker: {100},
	})

	// Sender is the sole member of the only target role.
	_, err := Resolve(100, []directory.Role{directory.RoleChecker}, d)
	assert.ErrorIs(t, err, ErrNoRecipients)

	// Empty target role.
	_, err = Resolve(100, []directory.Role{directory.RoleDesign}, d)
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestResolveAll_AllRoleHoldersMinusSender(t *testing.T) {
	d := buildDirectory(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter:  {100},
		directory.RoleChecker: {200},
		directory.RoleKing:    {300},
	})

	got, err := ResolveAll(999, d)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = ResolveAll(100, d)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NotContains(t, got, directory.Identity(100))
}

func TestResolveUser_SelfSendPolicy(t *testing.T) {
	_, err := ResolveUser(100, 100, false)
	assert.ErrorIs(t, err, ErrNoRecipients)

	got, err := ResolveUser(100, 100, true)
	require.NoError(t, err)
	assert.Contains(t, got, directory.Identity(100))

	got, err = ResolveUser(100, 200, false)
	require.NoError(t, err)
	assert.Equal(t, map[directory.Identity]struct{}{200: {}}, got)
}
