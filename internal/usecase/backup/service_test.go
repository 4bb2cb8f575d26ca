package backup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSyncer struct {
	local   []string
	listErr error
	fail    map[string]error
	synced  []string
}

func (f *fakeSyncer) DiskTenants() ([]string, error) { return f.local, f.listErr }

func (f *fakeSyncer) Sync(_ context.Context, tenant string) error {
	f.synced = append(f.synced, tenant)
	return f.fail[tenant]
}

func TestRun_AllLocalTenants(t *testing.T) {
	s := &fakeSyncer{local: []string{"b", "a", "c"}, fail: map[string]error{"b": errors.New("upload failed")}}
	rep, err := New(s, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, s.synced, "a failure does not stop the batch")
	assert.Equal(t, []string{"a", "c"}, rep.Succeeded)
	require.Len(t, rep.Failed, 1)
	assert.EqualError(t, rep.Failed["b"], "upload failed")
}

func TestRun_NamedTenants(t *testing.T) {
	s := &fakeSyncer{local: []string{"a", "b"}}
	rep, err := New(s, zaptest.NewLogger(t)).Run(context.Background(), "x", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, s.synced)
	assert.Equal(t, []string{"x"}, rep.Succeeded)
}

func TestRun_NothingToBackUp(t *testing.T) {
	rep, err := New(&fakeSyncer{}, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Succeeded)
	assert.Empty(t, rep.Failed)
}

func TestRun_ListError(t *testing.T) {
	_, err := New(&fakeSyncer{listErr: errors.New("disk gone")}, zaptest.NewLogger(t)).Run(context.Background())
	require.Error(t, err)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeSyncer{local: []string{"a"}}
	_, err := New(s, zaptest.NewLogger(t)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.synced)
}
