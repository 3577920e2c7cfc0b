package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/squarefid/internal/fiducial"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketDetectRequest is one frame sent by a streaming client. Image holds
// the encoded image bytes (base64 in JSON).
type WebSocketDetectRequest struct {
	RequestID string          `json:"request_id,omitempty"`
	Image     []byte          `json:"image"`
	Quads     [][][2]float64  `json:"quads"`
}

// WebSocketDetectResponse answers one WebSocketDetectRequest.
type WebSocketDetectResponse struct {
	Type      string                `json:"type"`
	Status    string                `json:"status"` // "completed" or "error"
	Result    *fiducial.FrameResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	ErrorType string                `json:"error_type,omitempty"`
	RequestID string                `json:"request_id,omitempty"`
}

// detectWebSocketHandler streams detection over a WebSocket: one response per
// request message, in order.
func (s *Server) detectWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r, conn)
}

func (s *Server) handleWebSocketConnection(r *http.Request, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.sendWebSocketResponse(conn, s.handleWebSocketMessage(r, data))
		}
	}
}

func (s *Server) handleWebSocketMessage(r *http.Request, data []byte) WebSocketDetectResponse {
	var req WebSocketDetectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return wsError("", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
	}
	if req.RequestID == "" {
		req.RequestID = strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	if len(req.Image) == 0 {
		return wsError(req.RequestID, "invalid_request", "No image data provided")
	}
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Allow(getClientIP(r)); err != nil {
			rateLimitHits.Inc()
			return wsError(req.RequestID, "rate_limited", err.Error())
		}
	}

	quads, err := parseQuadsJSON(req.Quads)
	if err != nil {
		return wsError(req.RequestID, "invalid_request", err.Error())
	}
	res, _, err := s.runDetect(r.Context(), req.Image, quads)
	if err != nil {
		detectRequestsTotal.WithLabelValues("websocket", "error").Inc()
		return wsError(req.RequestID, "processing_error", err.Error())
	}
	detectRequestsTotal.WithLabelValues("websocket", "success").Inc()
	return WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "completed",
		Result:    res,
		RequestID: req.RequestID,
	}
}

func wsError(requestID, errorType, message string) WebSocketDetectResponse {
	return WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	}
}

func (s *Server) sendWebSocketResponse(conn *websocket.Conn, response WebSocketDetectResponse) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(response); err != nil {
		s.logger.Error("Failed to send WebSocket response", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
