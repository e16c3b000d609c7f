package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kinereplay/backend/internal/playback"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the playback stream
const (
	// Client -> Server messages
	MsgTypePing   = "ping"
	MsgTypePause  = "pause"
	MsgTypeResume = "resume"
	MsgTypeToggle = "toggle"
	MsgTypeSeek   = "seek"
	MsgTypeStep   = "step"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeFrame     = "frame"
	MsgTypeAck       = "ack"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
	MsgTypeClosed    = "closed"
)

// snapshotBuffer is how many snapshots may queue for a slow client before
// newer ones are dropped.
const snapshotBuffer = 8

// WSMessage is the envelope of every stream message
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SeekPayload is sent with a seek message
type SeekPayload struct {
	Time float64 `json:"time"`
}

// StepPayload is sent with a step message
type StepPayload struct {
	Delta int    `json:"delta"`
	To    string `json:"to,omitempty"`
}

// WSErrorResponse is the payload of an error message
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams snapshots of one session and accepts playback
// commands over the same connection
type WebSocketHandler struct {
	sessions SessionManager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket stream handler
func NewWebSocketHandler(sessions SessionManager) StreamHandler {
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// wsConn serializes writes; gorilla allows only one concurrent writer.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) sendError(id, message, code string) error {
	return c.send(WSMessage{
		Type:    MsgTypeError,
		ID:      id,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

// HandleWebSocket upgrades the connection and streams the session's snapshots
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	snapshots, done, cancel, err := wsh.sessions.Subscribe(id, snapshotBuffer)
	if err != nil {
		return sessionError(id, err)
	}
	defer cancel()

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	conn := &wsConn{ws: ws}

	fmt.Printf("[WebSocket] Client connected to session %s\n", shortID(id))

	conn.send(WSMessage{Type: MsgTypeConnected, ID: id})
	if snap, err := wsh.sessions.Snapshot(id); err == nil {
		conn.send(WSMessage{Type: MsgTypeFrame, ID: id, Payload: mustJSON(snap)})
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		wsh.readLoop(conn, id)
	}()

	for {
		select {
		case snap := <-snapshots:
			if err := conn.send(WSMessage{Type: MsgTypeFrame, ID: id, Payload: mustJSON(snap)}); err != nil {
				return nil
			}
		case <-done:
			conn.send(WSMessage{Type: MsgTypeClosed, ID: id})
			fmt.Printf("[WebSocket] Session %s stopped, closing stream\n", shortID(id))
			return nil
		case <-readerDone:
			fmt.Printf("[WebSocket] Client disconnected from session %s\n", shortID(id))
			return nil
		}
	}
}

// readLoop handles client messages until the connection fails.
func (wsh *WebSocketHandler) readLoop(conn *wsConn, id string) {
	for {
		var msg WSMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			return
		}

		if msg.Type == MsgTypePing {
			conn.send(WSMessage{Type: MsgTypePong, ID: msg.ID})
			continue
		}

		cmd, err := decodeCommand(msg)
		if err != nil {
			conn.sendError(msg.ID, err.Error(), "INVALID_PAYLOAD")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		err = wsh.sessions.Command(ctx, id, cmd)
		cancel()
		if err != nil {
			apiErr := sessionError(id, err)
			conn.sendError(msg.ID, apiErr.Message, apiErr.Code)
			continue
		}
		conn.send(WSMessage{Type: MsgTypeAck, ID: msg.ID})
	}
}

// decodeCommand turns a client message into a playback command.
func decodeCommand(msg WSMessage) (playback.Command, error) {
	switch msg.Type {
	case MsgTypePause:
		return playback.Pause(), nil
	case MsgTypeResume:
		return playback.Resume(), nil
	case MsgTypeToggle:
		return playback.TogglePause(), nil
	case MsgTypeSeek:
		var p SeekPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return playback.Command{}, fmt.Errorf("invalid seek payload: %w", err)
		}
		return playback.Seek(p.Time), nil
	case MsgTypeStep:
		var p StepPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return playback.Command{}, fmt.Errorf("invalid step payload: %w", err)
		}
		switch p.To {
		case "start":
			return playback.StepStart(), nil
		case "end":
			return playback.StepEnd(), nil
		case "":
			return playback.Step(p.Delta), nil
		}
		return playback.Command{}, fmt.Errorf("invalid step target %q", p.To)
	}
	return playback.Command{}, fmt.Errorf("unknown message type: %s", msg.Type)
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
