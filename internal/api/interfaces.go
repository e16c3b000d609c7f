// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/playback"
	"github.com/kinereplay/backend/internal/session"
	"github.com/labstack/echo/v4"
)

// FileHandler handles uploaded scene and data files
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// SessionHandler handles replay session operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleSessionStatusStream(c echo.Context) error
	HandleCloseSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleGetScene(c echo.Context) error
	HandleGetFrame(c echo.Context) error
	HandleGetFrameMsgpack(c echo.Context) error
	HandlePause(c echo.Context) error
	HandleResume(c echo.Context) error
	HandleTogglePause(c echo.Context) error
	HandleSeek(c echo.Context) error
	HandleStep(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// StreamHandler handles the websocket snapshot stream
type StreamHandler interface {
	HandleWebSocket(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(sceneFileID, scenePath, dataFileID, dataPath string) (*models.PlaybackSession, error)
	GetSession(id string) (*models.PlaybackSession, bool)
	ListSessions() []*models.PlaybackSession
	TouchSession(id string) bool
	CloseSession(id string) bool
	DeleteFileArtifacts(fileID string)
	ArchiveStats() map[string]interface{}
	Command(ctx context.Context, id string, cmd playback.Command) error
	Snapshot(id string) (playback.Snapshot, error)
	Scene(id string) (*session.SceneInfo, error)
	Subscribe(id string, buffer int) (<-chan playback.Snapshot, <-chan struct{}, func(), error)
}

var _ SessionManager = (*session.Manager)(nil)
