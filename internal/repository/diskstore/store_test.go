package diskstore

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

func newStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := New(fsys, "/idx")
	require.NoError(t, err)
	return s, fsys
}

func TestWriteRead_RoundTrip(t *testing.T) {
	s, fsys := newStore(t)

	require.NoError(t, s.Write("acme", []byte("INDEX"), []byte("META")))

	index, meta, err := s.Read("acme")
	require.NoError(t, err)
	assert.Equal(t, "INDEX", string(index))
	assert.Equal(t, "META", string(meta))

	ok, err := afero.Exists(fsys, "/idx/index_acme")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = afero.Exists(fsys, "/idx/meta_acme")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWrite_ReplacesAndLeavesNoTempFiles(t *testing.T) {
	s, fsys := newStore(t)

	require.NoError(t, s.Write("acme", []byte("v1"), []byte("m1")))
	require.NoError(t, s.Write("acme", []byte("v2"), []byte("m2")))

	index, meta, err := s.Read("acme")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(index))
	assert.Equal(t, "m2", string(meta))

	entries, err := afero.ReadDir(fsys, "/idx")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRead_Missing(t *testing.T) {
	s, fsys := newStore(t)

	_, _, err := s.Read("ghost")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// index without meta is still a miss
	require.NoError(t, afero.WriteFile(fsys, "/idx/index_half", []byte("x"), 0o640))
	_, _, err = s.Read("half")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, s.Exists("half"))
}

func TestDelete(t *testing.T) {
	s, _ := newStore(t)

	require.NoError(t, s.Write("acme", []byte("i"), []byte("m")))
	assert.True(t, s.Exists("acme"))

	require.NoError(t, s.Delete("acme"))
	assert.False(t, s.Exists("acme"))

	// deleting again is fine
	require.NoError(t, s.Delete("acme"))
}

func TestTenants(t *testing.T) {
	s, fsys := newStore(t)

	require.NoError(t, s.Write("beta", []byte("i"), []byte("m")))
	require.NoError(t, s.Write("alpha", []byte("i"), []byte("m")))
	require.NoError(t, afero.WriteFile(fsys, "/idx/index_orphan", []byte("x"), 0o640))

	tenants, err := s.Tenants()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, tenants)
}

func TestValidateTenant(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		err := ValidateTenant(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "tenant %q", bad)
	}
	assert.NoError(t, ValidateTenant("tenant-42_x"))

	s, _ := newStore(t)
	assert.ErrorIs(t, s.Write("../etc", nil, nil), domain.ErrInvalidInput)
}
