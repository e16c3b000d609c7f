package models

import "time"

// FileRole says what an uploaded file is used for.
type FileRole string

const (
	FileRoleScene FileRole = "scene"
	FileRoleData  FileRole = "data"
)

// FileInfo represents metadata about an uploaded scene or data file.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Role       FileRole  `json:"role"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}
