package api_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/moderation-engine/api"
	"github.com/warp/moderation-engine/moderation"
)

func TestLoadAdmins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"name": "Root", "master": true},
		{"name": "mod", "permissions": ["players.ban", "players.approve_bans"]}
	]`), 0o600))

	dir, err := api.LoadAdmins(path)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Len())

	root, ok := dir.Lookup(" root ")
	require.True(t, ok, "lookup ignores case and padding")
	assert.True(t, root.Has(api.PermWagerHead))

	mod, ok := dir.Lookup("MOD")
	require.True(t, ok)
	assert.True(t, mod.CanApproveBans())
	assert.False(t, mod.Has(api.PermMute))

	_, ok = dir.Lookup("nobody")
	assert.False(t, ok)
}

func TestLoadAdmins_Errors(t *testing.T) {
	_, err := api.LoadAdmins(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "admins.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":`), 0o600))
	_, err = api.LoadAdmins(path)
	assert.ErrorContains(t, err, "parse admins file")
}

func TestAdminDirectory_Put(t *testing.T) {
	dir := api.NewAdminDirectory()
	_, ok := dir.Lookup("mod")
	assert.False(t, ok)

	dir.Put(api.Admin{Name: "mod", Permissions: []string{moderation.PermAllPermissions}})
	caps, ok := dir.Lookup("mod")
	require.True(t, ok)
	assert.True(t, caps.Has(api.PermBan))
}
