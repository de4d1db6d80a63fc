package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/relay/internal/daemon/store"
	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/models"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg, err := New(st, logging.NewLogger("registry-test"))
	require.NoError(t, err)
	return reg, st
}

func TestCreateAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)

	sess, err := reg.Create(store.SessionMeta{Title: "T", Prompt: "hi"})
	require.NoError(t, err)

	got := reg.Get(sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, models.StatusIdle, got.Status)
	assert.True(t, reg.Has(sess.ID))
	assert.Equal(t, 1, reg.Count())

	assert.Nil(t, reg.Get("unknown"))
	assert.False(t, reg.Has("unknown"))
}

func TestGetReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t)

	sess, err := reg.Create(store.SessionMeta{Title: "T"})
	require.NoError(t, err)

	got := reg.Get(sess.ID)
	got.Title = "mutated"

	assert.Equal(t, "T", reg.Get(sess.ID).Title)
}

func TestApplyUpdateKeepsLayersInSync(t *testing.T) {
	reg, st := newTestRegistry(t)

	sess, err := reg.Create(store.SessionMeta{Title: "T"})
	require.NoError(t, err)

	updated, err := reg.ApplyUpdate(sess.ID, models.SessionUpdate{
		Status:   models.StatusPtr(models.StatusRunning),
		ResumeID: models.StringPtr("eng-1"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, models.StatusRunning, updated.Status)

	// In-memory copy changed.
	assert.Equal(t, models.StatusRunning, reg.Get(sess.ID).Status)
	assert.Equal(t, "eng-1", reg.Get(sess.ID).ResumeID)

	// Durable copy changed too.
	stored, err := st.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, stored.Status)
	assert.Equal(t, "eng-1", stored.ResumeID)
}

func TestApplyUpdateUnknownSession(t *testing.T) {
	reg, _ := newTestRegistry(t)

	updated, err := reg.ApplyUpdate("missing", models.SessionUpdate{
		Status: models.StatusPtr(models.StatusError),
	})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestDeleteRemovesBothLayers(t *testing.T) {
	reg, st := newTestRegistry(t)

	sess, err := reg.Create(store.SessionMeta{Title: "T"})
	require.NoError(t, err)

	existed, err := reg.Delete(sess.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	assert.Nil(t, reg.Get(sess.ID))
	stored, err := st.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	existed, err = reg.Delete(sess.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestHydrationFromStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sess, err := st.CreateSession(store.SessionMeta{Title: "persisted"})
	require.NoError(t, err)

	reg, err := New(st, logging.NewLogger("registry-test"))
	require.NoError(t, err)

	got := reg.Get(sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, "persisted", got.Title)
}
