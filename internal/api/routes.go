// routes.go - Route registration helpers
package api

import (
	"github.com/kinereplay/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	SessionMgr SessionManager
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Files   FileHandler
	Session SessionHandler
	Stream  StreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.SessionMgr),
		Files:   NewFileHandler(deps.Store, deps.SessionMgr),
		Session: NewSessionHandler(deps.Store, deps.SessionMgr),
		Stream:  NewWebSocketHandler(deps.SessionMgr),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/health", handlers.Health.HandleHealth)

	// File routes
	files := e.Group("/api/files")
	files.POST("", handlers.Files.HandleUploadFile)
	files.GET("", handlers.Files.HandleListFiles)
	files.GET("/:id", handlers.Files.HandleGetFile)
	files.DELETE("/:id", handlers.Files.HandleDeleteFile)
	files.PUT("/:id", handlers.Files.HandleRenameFile)

	// Session routes
	sessions := e.Group("/api/sessions")
	sessions.POST("", handlers.Session.HandleCreateSession)
	sessions.GET("", handlers.Session.HandleListSessions)
	sessions.GET("/:id", handlers.Session.HandleGetSession)
	sessions.DELETE("/:id", handlers.Session.HandleCloseSession)
	sessions.GET("/:id/status", handlers.Session.HandleSessionStatusStream)
	sessions.POST("/:id/keepalive", handlers.Session.HandleSessionKeepAlive)
	sessions.GET("/:id/scene", handlers.Session.HandleGetScene)
	sessions.GET("/:id/frame", handlers.Session.HandleGetFrame)
	sessions.GET("/:id/frame/msgpack", handlers.Session.HandleGetFrameMsgpack)
	sessions.POST("/:id/pause", handlers.Session.HandlePause)
	sessions.POST("/:id/resume", handlers.Session.HandleResume)
	sessions.POST("/:id/toggle", handlers.Session.HandleTogglePause)
	sessions.POST("/:id/seek", handlers.Session.HandleSeek)
	sessions.POST("/:id/step", handlers.Session.HandleStep)
	sessions.GET("/:id/ws", handlers.Stream.HandleWebSocket)
}
