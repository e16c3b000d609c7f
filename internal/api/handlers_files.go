// handlers_files.go - Scene and data file handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

const defaultListLimit = 50

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(store storage.Store, sessions SessionManager) FileHandler {
	return &FileHandlerImpl{
		store:    store,
		sessions: sessions,
	}
}

// HandleUploadFile accepts a multipart upload with a "file" part and a
// "role" field naming it a scene or a data file
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	role := models.FileRole(c.FormValue("role"))
	if !storage.ValidRole(role) {
		return NewValidationError("role")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, role, src)
	if err != nil {
		var limitErr *models.ResourceLimitError
		if errors.As(err, &limitErr) {
			return NewTooLargeError(limitErr)
		}
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleListFiles returns recently uploaded files, optionally filtered by role
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	role := models.FileRole(c.QueryParam("role"))
	if role != "" && !storage.ValidRole(role) {
		return NewValidationError("role")
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	files, err := h.store.List(role, limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a file and the frame archives built from it
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("file", id)
	}

	if h.sessions != nil {
		h.sessions.DeleteFileArtifacts(id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the name of a file
func (h *FileHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.Name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

type renameFileRequest struct {
	Name string `json:"name"`
}
