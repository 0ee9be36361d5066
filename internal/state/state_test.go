package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
)

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	st, recovered := Load(path)
	require.NotNil(t, st)
	assert.Nil(t, recovered)
	assert.Nil(t, st.Session)
	assert.Equal(t, models.StateVersion, st.Version)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	st, recovered := Load(path)
	assert.Nil(t, recovered)
	assert.Nil(t, st.Session)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	started := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	st := models.NewState()
	st.Session = &models.TaskSession{
		WorkItemID: 12345,
		Title:      "Implement retry budget",
		StartedAt:  started,
		ExpiresAt:  started.Add(24 * time.Hour),
		TimerID:    "timer-abc",
	}
	st.TouchCursor(models.SourceTracker, started)

	require.NoError(t, Save(path, st))

	got, recovered := Load(path)
	require.Nil(t, recovered)
	require.NotNil(t, got.Session)
	assert.Equal(t, st.Session.WorkItemID, got.Session.WorkItemID)
	assert.Equal(t, st.Session.Title, got.Session.Title)
	assert.True(t, st.Session.StartedAt.Equal(got.Session.StartedAt))
	assert.True(t, st.Session.ExpiresAt.Equal(got.Session.ExpiresAt))
	assert.Equal(t, st.Session.TimerID, got.Session.TimerID)
	assert.True(t, st.SyncCursors[models.SourceTracker].Equal(got.SyncCursors[models.SourceTracker]))
}

func TestLoad_CorruptFile_BackedUpAndRecovered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "1", "session": {tru`), 0o644))

	st, recovered := Load(path)
	require.NotNil(t, recovered)
	assert.Nil(t, st.Session)

	// Original file moved aside; a backup with the corrupt suffix exists.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, matches[0], recovered.BackupPath)
}

func TestStore_MutateUnderLock_PersistsOnSuccess(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	now := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	_, err := s.MutateUnderLock(context.Background(), func(st *models.State, m *Mutation) error {
		st.Session = &models.TaskSession{
			WorkItemID: 67890,
			Title:      "New task",
			StartedAt:  now,
			ExpiresAt:  now.Add(24 * time.Hour),
		}
		return nil
	})
	require.NoError(t, err)

	st, recovered := s.Read()
	require.Nil(t, recovered)
	require.NotNil(t, st.Session)
	assert.Equal(t, 67890, st.Session.WorkItemID)
}

func TestStore_MutateUnderLock_DiscardsOnError(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	now := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	_, err := s.MutateUnderLock(context.Background(), func(st *models.State, m *Mutation) error {
		st.Session = &models.TaskSession{WorkItemID: 1, StartedAt: now, ExpiresAt: now.Add(time.Hour)}
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("remote failed")
	_, err = s.MutateUnderLock(context.Background(), func(st *models.State, m *Mutation) error {
		st.Session = nil
		return boom
	})
	require.ErrorIs(t, err, boom)

	// On-disk state untouched by the failed transformation.
	st, _ := s.Read()
	require.NotNil(t, st.Session)
	assert.Equal(t, 1, st.Session.WorkItemID)
}

func TestStore_ExpirySweep_ClearsAndReports(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	started := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	now := started.Add(48 * time.Hour)
	s.Now = func() time.Time { return started }

	_, err := s.MutateUnderLock(context.Background(), func(st *models.State, m *Mutation) error {
		st.Session = &models.TaskSession{
			WorkItemID: 12345,
			StartedAt:  started,
			ExpiresAt:  started.Add(24 * time.Hour),
			TimerID:    "timer-old",
		}
		return nil
	})
	require.NoError(t, err)

	s.Now = func() time.Time { return now }
	var stopped []string
	s.StopExpiredTimer = func(ctx context.Context, timerID string) error {
		stopped = append(stopped, timerID)
		return nil
	}

	var sawSessionInFn bool
	m, err := s.MutateUnderLock(context.Background(), func(st *models.State, m *Mutation) error {
		sawSessionInFn = st.Session != nil
		return nil
	})
	require.NoError(t, err)

	// Sweep ran before the caller's operation and is reported.
	assert.False(t, sawSessionInFn)
	require.NotNil(t, m.ExpiredSession)
	assert.Equal(t, 12345, m.ExpiredSession.WorkItemID)
	assert.Equal(t, []string{"timer-old"}, stopped)

	st, _ := s.Read()
	assert.Nil(t, st.Session)
}

func TestStore_ExpirySweep_BestEffortTimerStopFailure(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	started := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return started }

	_, err := s.MutateUnderLock(context.Background(), func(st *models.State, m *Mutation) error {
		st.Session = &models.TaskSession{
			WorkItemID: 7,
			StartedAt:  started,
			ExpiresAt:  started.Add(time.Hour),
			TimerID:    "timer-x",
		}
		return nil
	})
	require.NoError(t, err)

	s.Now = func() time.Time { return started.Add(2 * time.Hour) }
	s.StopExpiredTimer = func(ctx context.Context, timerID string) error {
		return errors.New("timer service down")
	}

	m, err := s.MutateUnderLock(context.Background(), func(st *models.State, m *Mutation) error {
		return nil
	})
	// Remote failure on the sweep never blocks the main operation.
	require.NoError(t, err)
	require.NotNil(t, m.ExpiredSession)
}

func TestStore_Read_RecoversCorruption(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	require.NoError(t, os.WriteFile(s.StatePath(), []byte("{not json"), 0o644))

	st, recovered := s.Read()
	require.NotNil(t, recovered)
	assert.Nil(t, st.Session)
}

func TestStore_SessionInvariant_ExpiresAfterStart(t *testing.T) {
	now := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	sess := &models.TaskSession{StartedAt: now, ExpiresAt: now.Add(24 * time.Hour)}
	assert.True(t, sess.ExpiresAt.After(sess.StartedAt))
	assert.False(t, sess.Expired(now))
	assert.True(t, sess.Expired(now.Add(25*time.Hour)))
}
