package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kinereplay/backend/internal/archive"
	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sceneXML = `<scene>
  <ball id="1" radius="0.5"/>
  <ball id="2" radius="0.25" xy_parent_id="1" y="-1"/>
  <input_format>
    <map column="1" type="time"/>
    <map column="2" type="body" id="1" field="x"/>
  </input_format>
</scene>`

const dataText = "0 0\n1 1\n2 2\n3 3\n5 4\n8 5\n"

func writeFiles(t *testing.T, scene, data string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "scene.xml")
	dataPath := filepath.Join(dir, "run.dat")
	require.NoError(t, os.WriteFile(scenePath, []byte(scene), 0644))
	require.NoError(t, os.WriteFile(dataPath, []byte(data), 0644))
	return scenePath, dataPath
}

func waitForStatus(t *testing.T, m *Manager, id string) *models.PlaybackSession {
	t.Helper()
	for i := 0; i < 100; i++ {
		s, ok := m.GetSession(id)
		require.True(t, ok, "session not found")
		if s.Status != models.SessionStatusLoading {
			return s
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("session %s still loading", id)
	return nil
}

func pausedManager() *Manager {
	opts := DefaultOptions()
	opts.StartPaused = true
	opts.TickInterval = 5 * time.Millisecond
	return NewManager(opts)
}

func TestSessionManager(t *testing.T) {
	scenePath, dataPath := writeFiles(t, sceneXML, dataText)
	m := pausedManager()
	defer m.Shutdown()

	sess, err := m.StartSession("scene-1", scenePath, "data-1", dataPath)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusLoading, sess.Status)

	ready := waitForStatus(t, m, sess.ID)
	require.Equal(t, models.SessionStatusReady, ready.Status, ready.Error)
	assert.Equal(t, 6, ready.FrameCount)
	assert.Equal(t, 2, ready.BodyCount)
	assert.True(t, ready.ExplicitTime)
	assert.Equal(t, 0.0, ready.StartTime)
	assert.Equal(t, 8.0, ready.EndTime)

	snap, err := m.Snapshot(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Index)
	assert.True(t, snap.Paused)

	ctx := context.Background()
	require.NoError(t, m.Command(ctx, sess.ID, playback.Seek(3.4)))
	snap, _ = m.Snapshot(sess.ID)
	assert.Equal(t, 3, snap.Index)
	assert.Equal(t, 3.0, snap.Time)
	require.Len(t, snap.Bodies, 2)
	assert.InDelta(t, 3.0, snap.Bodies[1].X, 1e-12)
	assert.InDelta(t, -1.0, snap.Bodies[1].Y, 1e-12)

	require.NoError(t, m.Command(ctx, sess.ID, playback.Step(10)))
	snap, _ = m.Snapshot(sess.ID)
	assert.Equal(t, 5, snap.Index)

	require.NoError(t, m.Command(ctx, sess.ID, playback.Resume()))
	err = m.Command(ctx, sess.ID, playback.Seek(1))
	assert.True(t, errors.Is(err, playback.ErrNotPaused))

	assert.True(t, m.CloseSession(sess.ID))
	_, ok := m.GetSession(sess.ID)
	assert.False(t, ok)
	assert.False(t, m.CloseSession(sess.ID))
}

func TestSessionManager_Subscribe(t *testing.T) {
	scenePath, dataPath := writeFiles(t, sceneXML, dataText)
	m := pausedManager()
	defer m.Shutdown()

	sess, err := m.StartSession("scene-1", scenePath, "data-1", dataPath)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusReady, waitForStatus(t, m, sess.ID).Status)

	ch, done, cancel, err := m.Subscribe(sess.ID, 64)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, m.Command(context.Background(), sess.ID, playback.Resume()))

	seen := map[int]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case snap := <-ch:
			seen[snap.Index] = true
		case <-done:
			t.Fatal("player stopped")
		case <-timeout:
			t.Fatalf("only saw frames %v", seen)
		}
	}

	m.CloseSession(sess.ID)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("player did not stop after close")
	}
}

func TestSessionManager_Errors(t *testing.T) {
	tests := []struct {
		name    string
		scene   string
		data    string
		wantErr string
	}{
		{"bad scene", `<scene><ball/></scene>`, dataText, "radius"},
		{"bad data", sceneXML, "0 0\n1 x\n", "invalid number"},
		{"no frames", sceneXML, "\n\n", "no frames"},
		{"non-monotonic", sceneXML, "0 0\n2 1\n1 2\n", "non-monotonic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenePath, dataPath := writeFiles(t, tt.scene, tt.data)
			m := pausedManager()
			defer m.Shutdown()

			sess, err := m.StartSession("s", scenePath, "d", dataPath)
			require.NoError(t, err)

			got := waitForStatus(t, m, sess.ID)
			assert.Equal(t, models.SessionStatusError, got.Status)
			assert.Contains(t, got.Error, tt.wantErr)

			err = m.Command(context.Background(), sess.ID, playback.Pause())
			assert.ErrorIs(t, err, ErrSessionNotReady)
		})
	}
}

func TestSessionManager_NotFound(t *testing.T) {
	m := NewManager(DefaultOptions())

	_, err := m.Snapshot("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Command(context.Background(), "missing", playback.Tick()), ErrSessionNotFound)
	assert.False(t, m.TouchSession("missing"))
}

func TestSessionManager_Limit(t *testing.T) {
	scenePath, dataPath := writeFiles(t, sceneXML, dataText)
	opts := DefaultOptions()
	opts.MaxSessions = 1
	opts.StartPaused = true
	m := NewManager(opts)
	defer m.Shutdown()

	first, err := m.StartSession("s", scenePath, "d", dataPath)
	require.NoError(t, err)
	waitForStatus(t, m, first.ID)

	_, err = m.StartSession("s", scenePath, "d", dataPath)
	var limitErr *models.ResourceLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "sessions", limitErr.Resource)
}

func TestSessionManager_FailedSessionsMakeRoom(t *testing.T) {
	scenePath, dataPath := writeFiles(t, `<scene><ball/></scene>`, dataText)
	opts := DefaultOptions()
	opts.MaxSessions = 1
	m := NewManager(opts)
	defer m.Shutdown()

	failed, err := m.StartSession("s", scenePath, "d", dataPath)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusError, waitForStatus(t, m, failed.ID).Status)

	_, err = m.StartSession("s", scenePath, "d", dataPath)
	require.NoError(t, err)
	_, ok := m.GetSession(failed.ID)
	assert.False(t, ok, "failed session should have been cleaned up")
}

func TestSessionManager_CleanupKeepsRecentSessions(t *testing.T) {
	scenePath, dataPath := writeFiles(t, sceneXML, dataText)
	m := pausedManager()
	defer m.Shutdown()

	sess, err := m.StartSession("s", scenePath, "d", dataPath)
	require.NoError(t, err)
	waitForStatus(t, m, sess.ID)

	m.CleanupOldSessions(0)
	_, ok := m.GetSession(sess.ID)
	assert.True(t, ok, "recently accessed session must survive cleanup")

	m.mu.Lock()
	m.sessions[sess.ID].LastAccessed = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.CleanupOldSessions(10 * time.Minute)
	_, ok = m.GetSession(sess.ID)
	assert.False(t, ok)
}

func TestSessionManager_ArchiveReuse(t *testing.T) {
	scenePath, dataPath := writeFiles(t, sceneXML, dataText)
	archives := NewArchiveCache(t.TempDir(), archive.DefaultOptions())

	opts := DefaultOptions()
	opts.StartPaused = true
	opts.Archives = archives
	m := NewManager(opts)
	defer m.Shutdown()

	first, err := m.StartSession("scene-1", scenePath, "data-1", dataPath)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusReady, waitForStatus(t, m, first.ID).Status)
	assert.True(t, archives.Has("scene-1", "data-1"))
	assert.Equal(t, 1, m.ArchiveStats()["archiveCount"])

	// The archive must be used even when the source data is gone.
	require.NoError(t, os.Remove(dataPath))
	second, err := m.StartSession("scene-1", scenePath, "data-1", dataPath)
	require.NoError(t, err)
	got := waitForStatus(t, m, second.ID)
	require.Equal(t, models.SessionStatusReady, got.Status, got.Error)
	assert.Equal(t, 6, got.FrameCount)

	m.DeleteFileArtifacts("data-1")
	assert.False(t, archives.Has("scene-1", "data-1"))
	assert.Nil(t, pausedManager().ArchiveStats())
}

func TestSessionManager_Scene(t *testing.T) {
	scenePath, dataPath := writeFiles(t, sceneXML, dataText)
	m := pausedManager()
	defer m.Shutdown()

	sess, err := m.StartSession("s", scenePath, "d", dataPath)
	require.NoError(t, err)

	_, err = m.Scene("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.Equal(t, models.SessionStatusReady, waitForStatus(t, m, sess.ID).Status)
	info, err := m.Scene(sess.ID)
	require.NoError(t, err)
	require.Len(t, info.Bodies, 2)
	assert.Equal(t, 2, info.Bodies[1].ID)
	assert.Equal(t, 0, info.Bodies[1].XYParent)
	assert.Equal(t, models.DefaultViewport(), info.Viewport)
	assert.Len(t, info.InputMap, 2)
}

func TestSessionManager_FirstFramePanic(t *testing.T) {
	orig := applyFirstFrame
	applyFirstFrame = func(*playback.Controller) { panic("resolver failed") }
	t.Cleanup(func() { applyFirstFrame = orig })

	scenePath, dataPath := writeFiles(t, sceneXML, dataText)
	m := pausedManager()
	defer m.Shutdown()

	sess, err := m.StartSession("s", scenePath, "d", dataPath)
	require.NoError(t, err)

	got := waitForStatus(t, m, sess.ID)
	assert.Equal(t, models.SessionStatusError, got.Status)
	assert.Contains(t, got.Error, "resolver failed")

	_, err = m.Snapshot(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotReady)
	assert.True(t, m.CloseSession(sess.ID))
}
