package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kinereplay/backend/internal/frames"
	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/playback"
	"github.com/kinereplay/backend/internal/scene"
)

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionNotReady = errors.New("session is not ready")
)

// Options configures a Manager.
type Options struct {
	MaxSessions  int
	TickInterval time.Duration
	StartPaused  bool
	Limits       scene.Limits
	Palette      *scene.Palette
	Archives     *ArchiveCache // nil disables frame archiving
}

// DefaultOptions returns the settings used when no config is loaded.
func DefaultOptions() Options {
	return Options{
		MaxSessions:  10,
		TickInterval: 33 * time.Millisecond,
		Limits:       scene.DefaultLimits(),
	}
}

// Manager handles replay sessions, each driven by its own Player.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	opts     Options
}

// SessionState holds the session metadata and its player.
type SessionState struct {
	Session      *models.PlaybackSession
	Player       *Player   // nil until the session is ready
	Scene        *SceneInfo
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)
}

// SceneInfo is the static part of a loaded scene, captured before playback
// starts so clients can read it without touching the live scene.
type SceneInfo struct {
	Viewport   models.Viewport         `json:"viewport"`
	TimeStep   float64                 `json:"timeStep"`
	Bodies     []models.Body           `json:"bodies"`
	Connectors []models.Connector      `json:"connectors"`
	Grounds    []models.Ground         `json:"grounds"`
	InputMap   []models.InputMapEntry `json:"inputMap"`
}

func newSceneInfo(s *scene.Scene) *SceneInfo {
	info := &SceneInfo{
		Viewport:   s.Viewport(),
		TimeStep:   s.TimeStep(),
		Bodies:     make([]models.Body, s.Len()),
		Connectors: append([]models.Connector(nil), s.Connectors()...),
		Grounds:    append([]models.Ground(nil), s.Grounds()...),
		InputMap:   append([]models.InputMapEntry(nil), s.InputMap()...),
	}
	for h := range info.Bodies {
		info.Bodies[h] = *s.Body(h)
	}
	return info
}

// NewManager creates a new session manager.
func NewManager(opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultOptions().MaxSessions
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultOptions().TickInterval
	}
	return &Manager{
		sessions: make(map[string]*SessionState),
		opts:     opts,
	}
}

// StartSession loads a scene and a data file in the background and starts
// playback once both are valid.
func (m *Manager) StartSession(sceneFileID, scenePath, dataFileID, dataPath string) (*models.PlaybackSession, error) {
	m.cleanupOldSessionsIfNeeded()

	m.mu.RLock()
	full := len(m.sessions) >= m.opts.MaxSessions
	m.mu.RUnlock()
	if full {
		return nil, &models.ResourceLimitError{Resource: "sessions", Limit: m.opts.MaxSessions}
	}

	sessionID := uuid.New().String()
	session := models.NewPlaybackSession(sessionID, sceneFileID, dataFileID)

	m.mu.Lock()
	m.sessions[sessionID] = &SessionState{Session: session, LastAccessed: time.Now()}
	m.mu.Unlock()

	go m.runLoad(sessionID, sceneFileID, scenePath, dataFileID, dataPath)

	copied := *session
	return &copied, nil
}

func (m *Manager) runLoad(sessionID, sceneFileID, scenePath, dataFileID, dataPath string) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Session %s] PANIC recovered during load: %v\n", shortID(sessionID), r)
			m.updateSessionError(sessionID, fmt.Sprintf("load panicked: %v", r))
		}
	}()

	start := time.Now()
	fmt.Printf("[Session %s] Loading scene %s\n", shortID(sessionID), scenePath)

	loader := scene.NewLoader()
	loader.Limits = m.opts.Limits
	loader.Palette = m.opts.Palette
	s, err := loader.LoadFile(scenePath)
	if err != nil {
		fmt.Printf("[Session %s] ERROR: scene load failed: %v\n", shortID(sessionID), err)
		m.updateSessionError(sessionID, err.Error())
		return
	}

	store, err := m.loadFrames(sessionID, sceneFileID, dataFileID, dataPath, s)
	if err != nil {
		fmt.Printf("[Session %s] ERROR: data load failed: %v\n", shortID(sessionID), err)
		m.updateSessionError(sessionID, err.Error())
		return
	}

	info := newSceneInfo(s)
	ctrl := playback.NewController(s, store)
	if m.opts.StartPaused {
		ctrl.Pause()
	}
	player := newPlayer(sessionID, ctrl, m.opts.TickInterval, func(reason string) {
		m.updateSessionError(sessionID, reason)
	})
	// Nothing else can reach the controller yet, and a panic here is
	// recovered above without m.mu held.
	applyFirstFrame(ctrl)

	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	tmin, tmax := ctrl.Span()
	state.Player = player
	state.Scene = info
	state.Session.Status = models.SessionStatusReady
	state.Session.FrameCount = store.Len()
	state.Session.BodyCount = s.Len()
	state.Session.ExplicitTime = store.HasTime()
	state.Session.StartTime = tmin
	state.Session.EndTime = tmax
	state.Session.LoadTimeMs = time.Since(start).Milliseconds()
	m.mu.Unlock()
	player.start()

	fmt.Printf("[Session %s] Ready: %d bodies, %d frames in %v\n",
		shortID(sessionID), s.Len(), store.Len(), time.Since(start).Round(time.Millisecond))
}

func (m *Manager) loadFrames(sessionID, sceneFileID, dataFileID, dataPath string, s *scene.Scene) (*frames.Store, error) {
	ctx := context.Background()
	if m.opts.Archives != nil {
		store, err := m.opts.Archives.Load(ctx, sceneFileID, dataFileID, s.InputMap())
		if err != nil {
			fmt.Printf("[Session %s] Warning: %v, re-reading data\n", shortID(sessionID), err)
		} else if store != nil {
			return store, nil
		}
	}

	store, err := frames.LoadFile(dataPath, s.InputMap())
	if err != nil {
		return nil, err
	}

	if m.opts.Archives != nil {
		if err := m.opts.Archives.Save(ctx, sceneFileID, dataFileID, store); err != nil {
			fmt.Printf("[Session %s] Warning: failed to archive frames: %v\n", shortID(sessionID), err)
		}
	}
	return store, nil
}

func (m *Manager) updateSessionError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.Error = reason
}

// cleanupOldSessionsIfNeeded removes failed sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.opts.MaxSessions {
		return
	}

	for id, state := range m.sessions {
		if state.Session.Status != models.SessionStatusError {
			continue
		}
		delete(m.sessions, id)
		fmt.Printf("[Manager] Cleaned up failed session %s\n", shortID(id))
		if len(m.sessions) < m.opts.MaxSessions {
			return
		}
	}
}

// CleanupOldSessions closes sessions not accessed within maxAge, but never
// those accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	if maxAge < SessionKeepAliveWindow {
		maxAge = SessionKeepAliveWindow
	}
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*SessionState
	for id, state := range m.sessions {
		if state.Session.Status == models.SessionStatusLoading {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			stale = append(stale, state)
			delete(m.sessions, id)
			fmt.Printf("[Manager] Cleaned up aged session %s (last accessed: %s ago)\n",
				shortID(id), time.Since(state.LastAccessed).Round(time.Second))
		}
	}
	m.mu.Unlock()

	for _, state := range stale {
		if state.Player != nil {
			state.Player.Stop()
		}
	}
}

// GetSession returns a copy of the session description.
func (m *Manager) GetSession(id string) (*models.PlaybackSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	copied := *state.Session
	return &copied, true
}

// ListSessions returns copies of every session description.
func (m *Manager) ListSessions() []*models.PlaybackSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*models.PlaybackSession, 0, len(m.sessions))
	for _, state := range m.sessions {
		copied := *state.Session
		list = append(list, &copied)
	}
	return list
}

// TouchSession updates the LastAccessed timestamp for a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// player returns the ready player of a session and marks it accessed.
func (m *Manager) player(id string) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	state.LastAccessed = time.Now()
	if state.Player == nil || state.Session.Status != models.SessionStatusReady {
		return nil, ErrSessionNotReady
	}
	return state.Player, nil
}

// Command runs a playback command on the session's loop.
func (m *Manager) Command(ctx context.Context, id string, cmd playback.Command) error {
	p, err := m.player(id)
	if err != nil {
		return err
	}
	return p.Send(ctx, cmd)
}

// Snapshot returns the latest published snapshot of a session.
func (m *Manager) Snapshot(id string) (playback.Snapshot, error) {
	p, err := m.player(id)
	if err != nil {
		return playback.Snapshot{}, err
	}
	return p.Latest(), nil
}

// Scene returns the static scene description of a ready session.
func (m *Manager) Scene(id string) (*SceneInfo, error) {
	if _, err := m.player(id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state.Scene, nil
}

// Subscribe streams snapshots of a session until cancel is called. The
// returned done channel closes when the session's player stops.
func (m *Manager) Subscribe(id string, buffer int) (<-chan playback.Snapshot, <-chan struct{}, func(), error) {
	p, err := m.player(id)
	if err != nil {
		return nil, nil, nil, err
	}
	ch, cancel := p.Subscribe(buffer)
	return ch, p.Done(), cancel, nil
}

// CloseSession stops and removes a session.
func (m *Manager) CloseSession(id string) bool {
	m.mu.Lock()
	state, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		state.Session.Status = models.SessionStatusClosed
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	if state.Player != nil {
		state.Player.Stop()
	}
	fmt.Printf("[Manager] Closed session %s\n", shortID(id))
	return true
}

// DeleteFileArtifacts removes archived frames built from a deleted file.
func (m *Manager) DeleteFileArtifacts(fileID string) {
	if m.opts.Archives != nil {
		m.opts.Archives.DeleteFile(fileID)
	}
}

// ArchiveStats reports the frame archive cache, or nil when archiving is off.
func (m *Manager) ArchiveStats() map[string]interface{} {
	if m.opts.Archives == nil {
		return nil
	}
	return m.opts.Archives.Stats()
}

// Shutdown stops every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	states := make([]*SessionState, 0, len(m.sessions))
	for id, state := range m.sessions {
		states = append(states, state)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, state := range states {
		if state.Player != nil {
			state.Player.Stop()
		}
	}
}
