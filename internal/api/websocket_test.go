package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kinereplay/backend/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readUntil reads messages until one of the wanted type arrives, returning
// it along with any frame snapshots seen on the way.
func readUntil(t *testing.T, ws *websocket.Conn, msgType string) (WSMessage, []playback.Snapshot) {
	t.Helper()
	var frames []playback.Snapshot
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg WSMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == MsgTypeFrame {
			var snap playback.Snapshot
			require.NoError(t, json.Unmarshal(msg.Payload, &snap))
			frames = append(frames, snap)
		}
		if msg.Type == msgType {
			return msg, frames
		}
	}
}

func TestWebSocketStream(t *testing.T) {
	s := newTestServer(t)
	id := s.readySession(t)

	srv := httptest.NewServer(s.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	readUntil(t, ws, MsgTypeConnected)
	_, frames := readUntil(t, ws, MsgTypeFrame)
	require.Len(t, frames, 1)
	assert.Equal(t, 0, frames[0].Index)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeSeek, ID: "1", Payload: mustJSON(SeekPayload{Time: 5.2})}))
	ack, _ := readUntil(t, ws, MsgTypeAck)
	assert.Equal(t, "1", ack.ID)
	snap, err := s.sessions.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Index)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing, ID: "2"}))
	pong, _ := readUntil(t, ws, MsgTypePong)
	assert.Equal(t, "2", pong.ID)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "rewind", ID: "3"}))
	errMsg, _ := readUntil(t, ws, MsgTypeError)
	assert.Equal(t, "3", errMsg.ID)
	assert.Contains(t, string(errMsg.Payload), "unknown message type")

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeResume, ID: "4"}))
	readUntil(t, ws, MsgTypeAck)
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeSeek, ID: "5", Payload: mustJSON(SeekPayload{Time: 1})}))
	errMsg, _ = readUntil(t, ws, MsgTypeError)
	assert.Contains(t, string(errMsg.Payload), "CONFLICT")

	s.sessions.CloseSession(id)
	readUntil(t, ws, MsgTypeClosed)
}

func TestWebSocketUnknownSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		msg  WSMessage
		want playback.Command
	}{
		{WSMessage{Type: MsgTypePause}, playback.Pause()},
		{WSMessage{Type: MsgTypeToggle}, playback.TogglePause()},
		{WSMessage{Type: MsgTypeStep, Payload: mustJSON(StepPayload{Delta: -10})}, playback.Step(-10)},
		{WSMessage{Type: MsgTypeStep, Payload: mustJSON(StepPayload{To: "start"})}, playback.StepStart()},
		{WSMessage{Type: MsgTypeSeek, Payload: mustJSON(SeekPayload{Time: 2.5})}, playback.Seek(2.5)},
	}
	for _, tt := range tests {
		got, err := decodeCommand(tt.msg)
		require.NoError(t, err, tt.msg.Type)
		assert.Equal(t, tt.want, got)
	}

	_, err := decodeCommand(WSMessage{Type: MsgTypeSeek, Payload: json.RawMessage(`"x"`)})
	assert.Error(t, err)
	_, err = decodeCommand(WSMessage{Type: MsgTypeStep, Payload: mustJSON(StepPayload{To: "middle"})})
	assert.Error(t, err)
}
