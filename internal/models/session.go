package models

// SessionStatus represents the status of a playback session.
type SessionStatus string

const (
	SessionStatusLoading SessionStatus = "loading"
	SessionStatusReady   SessionStatus = "ready"
	SessionStatusClosed  SessionStatus = "closed"
	SessionStatusError   SessionStatus = "error"
)

// PlaybackSession describes a replay session to API clients.
type PlaybackSession struct {
	ID           string        `json:"id"`
	SceneFileID  string        `json:"sceneFileId"`
	DataFileID   string        `json:"dataFileId"`
	Status       SessionStatus `json:"status"`
	FrameCount   int           `json:"frameCount"`
	BodyCount    int           `json:"bodyCount"`
	ExplicitTime bool          `json:"explicitTime"`
	StartTime    float64       `json:"startTime"`
	EndTime      float64       `json:"endTime"`
	LoadTimeMs   int64         `json:"loadTimeMs,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// NewPlaybackSession creates a session description in loading status.
func NewPlaybackSession(id, sceneFileID, dataFileID string) *PlaybackSession {
	return &PlaybackSession{
		ID:          id,
		SceneFileID: sceneFileID,
		DataFileID:  dataFileID,
		Status:      SessionStatusLoading,
	}
}
