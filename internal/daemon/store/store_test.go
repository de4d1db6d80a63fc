package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.CreateSession(SessionMeta{
		Title:        "Fix the build",
		Cwd:          "/tmp/repo",
		AllowedTools: "Bash,Edit",
		Prompt:       "please fix",
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, models.StatusIdle, sess.Status)
	assert.NotZero(t, sess.CreatedAt)

	got, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Fix the build", got.Title)
	assert.Equal(t, "/tmp/repo", got.Cwd)
	assert.Equal(t, "Bash,Edit", got.AllowedTools)
	assert.Equal(t, "please fix", got.LastPrompt)
	assert.Empty(t, got.ResumeID)
}

func TestGetSessionUnknownID(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetSession("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateSession(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.CreateSession(SessionMeta{Title: "T"})
	require.NoError(t, err)

	err = s.UpdateSession(sess.ID, models.SessionUpdate{
		Status:   models.StatusPtr(models.StatusRunning),
		ResumeID: models.StringPtr("eng-abc"),
	})
	require.NoError(t, err)

	got, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.Equal(t, "eng-abc", got.ResumeID)
	assert.GreaterOrEqual(t, got.UpdatedAt, sess.UpdatedAt)

	// Unknown id is a no-op, not an error.
	err = s.UpdateSession("missing", models.SessionUpdate{Status: models.StatusPtr(models.StatusError)})
	require.NoError(t, err)

	// Empty update changes nothing.
	err = s.UpdateSession(sess.ID, models.SessionUpdate{})
	require.NoError(t, err)
}

func TestAppendMessageIdempotent(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.CreateSession(SessionMeta{Title: "T"})
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(sess.ID, "msg-1", []byte(`{"type":"assistant"}`)))
	require.NoError(t, s.AppendMessage(sess.ID, "msg-1", []byte(`{"type":"assistant","dup":true}`)))
	require.NoError(t, s.AppendMessage(sess.ID, "msg-2", []byte(`{"type":"result"}`)))

	_, messages, err := s.GetHistory(sess.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "msg-1", messages[0].ID)
	assert.Equal(t, "msg-2", messages[1].ID)
	// The duplicate insert was ignored, first write wins.
	assert.JSONEq(t, `{"type":"assistant"}`, string(messages[0].Data))
}

func TestAppendMessageGeneratesID(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.CreateSession(SessionMeta{Title: "T"})
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(sess.ID, "", []byte(`{"type":"user_prompt","prompt":"hi"}`)))
	require.NoError(t, s.AppendMessage(sess.ID, "", []byte(`{"type":"user_prompt","prompt":"hi"}`)))

	_, messages, err := s.GetHistory(sess.ID)
	require.NoError(t, err)
	// Empty ids get distinct generated ids, so both rows exist.
	assert.Len(t, messages, 2)
}

func TestListSessionsOrderedByUpdatedAt(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := s.CreateSession(SessionMeta{Title: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
		ids = append(ids, sess.ID)
	}

	// Touch the first session so it becomes the most recent. Timestamps are
	// millisecond-resolution, so make sure the clock has moved.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.UpdateSession(ids[0], models.SessionUpdate{
		Status: models.StatusPtr(models.StatusRunning),
	}))

	sessions, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, ids[0], sessions[0].ID)
}

func TestDeleteSessionCascades(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.CreateSession(SessionMeta{Title: "T"})
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(sess.ID, "m1", []byte(`{}`)))

	existed, err := s.DeleteSession(sess.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	got, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	sessRow, messages, err := s.GetHistory(sess.ID)
	require.NoError(t, err)
	assert.Nil(t, sessRow)
	assert.Empty(t, messages)

	// Deleting again reports nothing existed.
	existed, err = s.DeleteSession(sess.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestDeleteSessionLeavesOthersIntact(t *testing.T) {
	s := newTestStore(t)

	doomed, err := s.CreateSession(SessionMeta{Title: "DOOMED"})
	require.NoError(t, err)
	kept, err := s.CreateSession(SessionMeta{Title: "KEPT"})
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(doomed.ID, "m1", []byte(`{}`)))
	require.NoError(t, s.AppendMessage(kept.ID, "m2", []byte(`{}`)))

	existed, err := s.DeleteSession(doomed.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	sessRow, messages, err := s.GetHistory(kept.ID)
	require.NoError(t, err)
	require.NotNil(t, sessRow)
	require.Len(t, messages, 1)
	assert.Equal(t, "m2", messages[0].ID)
}

func TestListRecentCwds(t *testing.T) {
	s := newTestStore(t)

	for _, cwd := range []string{"/a", "/b", "", "/a"} {
		_, err := s.CreateSession(SessionMeta{Title: "T", Cwd: cwd})
		require.NoError(t, err)
	}

	cwds, err := s.ListRecentCwds(8)
	require.NoError(t, err)
	// Distinct, blank filtered out.
	assert.ElementsMatch(t, []string{"/a", "/b"}, cwds)

	cwds, err = s.ListRecentCwds(1)
	require.NoError(t, err)
	assert.Len(t, cwds, 1)
}

func TestUninitializedStore(t *testing.T) {
	var s *Store

	_, err := s.ListSessions()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUninitialized))

	closed := newTestStore(t)
	require.NoError(t, closed.Close())
	_, err = closed.CreateSession(SessionMeta{Title: "T"})
	assert.True(t, errors.Is(err, errors.ErrCodeUninitialized))
}
