package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oktsec/signdata/internal/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStore_LoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	bound, err := GenerateKeypair("bound", rawAddr)
	require.NoError(t, err)
	require.NoError(t, bound.Save(dir))
	loose, err := GenerateKeypair("loose", "")
	require.NoError(t, err)
	require.NoError(t, loose.Save(dir))

	ks := NewKeyStore()
	require.NoError(t, ks.LoadFromDir(dir))
	assert.Equal(t, 2, ks.Count())
	assert.Equal(t, []string{"bound", "loose"}, ks.Names())

	got, ok := ks.Get("loose")
	require.True(t, ok)
	assert.True(t, got.Equal(loose.PublicKey))

	_, ok = ks.Get("missing")
	assert.False(t, ok)

	got, ok = ks.ForAddress(rawAddr)
	require.True(t, ok)
	assert.True(t, got.Equal(bound.PublicKey))
}

func TestKeyStore_ForAddressAnySpelling(t *testing.T) {
	dir := t.TempDir()
	kp, err := GenerateKeypair("wallet", rawAddr)
	require.NoError(t, err)
	require.NoError(t, kp.Save(dir))

	ks := NewKeyStore()
	require.NoError(t, ks.LoadFromDir(dir))

	acct, err := address.Parse(rawAddr)
	require.NoError(t, err)
	for _, spelling := range []string{
		address.Friendly(acct, true, false),
		address.Friendly(acct, false, false),
		address.Friendly(acct, true, true),
	} {
		got, ok := ks.ForAddress(spelling)
		require.True(t, ok, spelling)
		assert.True(t, got.Equal(kp.PublicKey))
	}

	_, ok := ks.ForAddress("garbage")
	assert.False(t, ok)
}

func TestKeyStore_Reload(t *testing.T) {
	dir := t.TempDir()
	first, err := GenerateKeypair("first", "")
	require.NoError(t, err)
	require.NoError(t, first.Save(dir))

	ks := NewKeyStore()
	require.NoError(t, ks.LoadFromDir(dir))
	assert.Equal(t, 1, ks.Count())

	require.NoError(t, os.Remove(filepath.Join(dir, "first.pub")))
	second, err := GenerateKeypair("second", "")
	require.NoError(t, err)
	require.NoError(t, second.Save(dir))

	require.NoError(t, ks.ReloadFromDir(dir))
	assert.Equal(t, []string{"second"}, ks.Names())
}

func TestKeyStore_MissingDir(t *testing.T) {
	ks := NewKeyStore()
	assert.Error(t, ks.LoadFromDir(filepath.Join(t.TempDir(), "nope")))
}
