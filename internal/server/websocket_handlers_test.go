package server

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/marker"
	"github.com/MeKo-Tech/squarefid/internal/testutil"
)

func dialDetect(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(newMux(s))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/detect"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketDetect(t *testing.T) {
	det := &mockDetector{}
	conn := dialDetect(t, newTestServer(det, Config{}))
	img := pngBytes(t, testutil.NewScene(40, 30, marker.White))

	for _, id := range []string{"first", "second"} {
		require.NoError(t, conn.WriteJSON(WebSocketDetectRequest{
			RequestID: id,
			Image:     img,
			Quads:     [][][2]float64{{{1, 20}, {1, 1}, {20, 1}, {20, 20}}},
		}))
		var resp WebSocketDetectResponse
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, id, resp.RequestID)
		require.NotNil(t, resp.Result)
		assert.Equal(t, 40, resp.Result.Width)
	}
	require.Len(t, det.quads, 1)
	assert.Equal(t, geom.Point{X: 20, Y: 1}, det.quads[0][2])
}

func TestWebSocketDetect_Errors(t *testing.T) {
	conn := dialDetect(t, newTestServer(&mockDetector{}, Config{}))
	img := pngBytes(t, testutil.NewScene(16, 16, marker.White))

	tests := []struct {
		name      string
		send      func() error
		errorType string
	}{
		{"bad json", func() error { return conn.WriteMessage(websocket.TextMessage, []byte("{")) }, "invalid_request"},
		{"no image", func() error { return conn.WriteJSON(WebSocketDetectRequest{RequestID: "x"}) }, "invalid_request"},
		{"bad quad", func() error {
			return conn.WriteJSON(WebSocketDetectRequest{Image: img, Quads: [][][2]float64{{{0, 0}}}})
		}, "invalid_request"},
		{"bad image", func() error { return conn.WriteJSON(WebSocketDetectRequest{Image: []byte("nope")}) }, "processing_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.send())
			var resp WebSocketDetectResponse
			require.NoError(t, conn.ReadJSON(&resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.errorType, resp.ErrorType)
			assert.NotEmpty(t, resp.Error)
		})
	}
}
