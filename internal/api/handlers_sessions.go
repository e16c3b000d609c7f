// handlers_sessions.go - Replay session handlers
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/playback"
	"github.com/kinereplay/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// commandTimeout bounds how long a request waits for a session loop.
const commandTimeout = 2 * time.Second

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(store storage.Store, sessions SessionManager) SessionHandler {
	return &SessionHandlerImpl{
		store:    store,
		sessions: sessions,
	}
}

type createSessionRequest struct {
	SceneFileID string `json:"sceneFileId"`
	DataFileID  string `json:"dataFileId"`
}

func (r *createSessionRequest) validate() error {
	if r.SceneFileID == "" {
		return NewValidationError("sceneFileId")
	}
	if r.DataFileID == "" {
		return NewValidationError("dataFileId")
	}
	return nil
}

type seekRequest struct {
	Time *float64 `json:"time"`
}

type stepRequest struct {
	Delta int    `json:"delta"`
	To    string `json:"to,omitempty"` // "start" or "end"
}

// resolveFile checks that an uploaded file exists with the expected role
// and returns its path on disk.
func (h *SessionHandlerImpl) resolveFile(id string, role models.FileRole) (string, error) {
	info, err := h.store.Get(id)
	if err != nil {
		return "", NewNotFoundError("file", id)
	}
	if info.Role != role {
		return "", NewBadRequestError(fmt.Sprintf("file %s is a %s file, expected %s", id, info.Role, role), nil)
	}
	path, err := h.store.GetFilePath(id)
	if err != nil {
		return "", NewNotFoundError("file", id)
	}
	return path, nil
}

// HandleCreateSession starts loading a scene and a data file into a new session
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	scenePath, err := h.resolveFile(req.SceneFileID, models.FileRoleScene)
	if err != nil {
		return err
	}
	dataPath, err := h.resolveFile(req.DataFileID, models.FileRoleData)
	if err != nil {
		return err
	}

	sess, err := h.sessions.StartSession(req.SceneFileID, scenePath, req.DataFileID, dataPath)
	if err != nil {
		return sessionError("", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleListSessions returns every live session
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.ListSessions())
}

// HandleGetSession returns the description of a session
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	// Touch session to prevent cleanup while being viewed
	h.sessions.TouchSession(id)
	return c.JSON(http.StatusOK, sess)
}

// HandleSessionStatusStream streams session status via SSE until loading
// finishes, so clients need not poll.
func (h *SessionHandlerImpl) HandleSessionStatusStream(c echo.Context) error {
	id := c.Param("id")

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	send := func(v interface{}) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Response(), "data: %s\n\n", data)
		c.Response().Flush()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		sess, ok := h.sessions.GetSession(id)
		if !ok {
			send(map[string]string{"error": "session not found"})
			return nil
		}
		if sess.Status != models.SessionStatusLoading {
			send(sess)
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

// HandleCloseSession stops and removes a session
func (h *SessionHandlerImpl) HandleCloseSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.CloseSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive marks a session as in use
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.TouchSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetScene returns the static scene description of a ready session
func (h *SessionHandlerImpl) HandleGetScene(c echo.Context) error {
	id := c.Param("id")
	info, err := h.sessions.Scene(id)
	if err != nil {
		return sessionError(id, err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleGetFrame returns the latest snapshot as JSON
func (h *SessionHandlerImpl) HandleGetFrame(c echo.Context) error {
	id := c.Param("id")
	snap, err := h.sessions.Snapshot(id)
	if err != nil {
		return sessionError(id, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleGetFrameMsgpack returns the latest snapshot encoded as msgpack
func (h *SessionHandlerImpl) HandleGetFrameMsgpack(c echo.Context) error {
	id := c.Param("id")
	snap, err := h.sessions.Snapshot(id)
	if err != nil {
		return sessionError(id, err)
	}

	data, err := msgpack.Marshal(snap)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// command runs cmd on the session loop and answers with the resulting snapshot.
func (h *SessionHandlerImpl) command(c echo.Context, cmd playback.Command) error {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request().Context(), commandTimeout)
	defer cancel()

	if err := h.sessions.Command(ctx, id, cmd); err != nil {
		return sessionError(id, err)
	}

	snap, err := h.sessions.Snapshot(id)
	if err != nil {
		return sessionError(id, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// HandlePause stops frame advancement
func (h *SessionHandlerImpl) HandlePause(c echo.Context) error {
	return h.command(c, playback.Pause())
}

// HandleResume restarts frame advancement
func (h *SessionHandlerImpl) HandleResume(c echo.Context) error {
	return h.command(c, playback.Resume())
}

// HandleTogglePause flips between playing and paused
func (h *SessionHandlerImpl) HandleTogglePause(c echo.Context) error {
	return h.command(c, playback.TogglePause())
}

// HandleSeek moves a paused session to the frame nearest a time
func (h *SessionHandlerImpl) HandleSeek(c echo.Context) error {
	var req seekRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Time == nil {
		return NewValidationError("time")
	}
	return h.command(c, playback.Seek(*req.Time))
}

// HandleStep moves by a number of frames, or to the first or last frame
func (h *SessionHandlerImpl) HandleStep(c echo.Context) error {
	var req stepRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	switch req.To {
	case "":
		if req.Delta == 0 {
			return NewValidationError("delta")
		}
		return h.command(c, playback.Step(req.Delta))
	case "start":
		return h.command(c, playback.StepStart())
	case "end":
		return h.command(c, playback.StepEnd())
	default:
		return NewValidationError("to")
	}
}
