package detect_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/squarefid/internal/fiducial"
	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/marker"
	"github.com/MeKo-Tech/squarefid/internal/raster"
	"github.com/MeKo-Tech/squarefid/internal/server"
	"github.com/MeKo-Tech/squarefid/internal/testutil"
)

// scenario holds the state of one feature scenario.
type scenario struct {
	http   *httptest.Server
	scene  *raster.Gray
	quads  []geom.Quad
	status int
	result *fiducial.FrameResult
	wsResp server.WebSocketDetectResponse
}

func newScenario() (*scenario, error) {
	srv, err := server.NewServer(server.Config{
		Detector: fiducial.DefaultConfig(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	return &scenario{http: httptest.NewServer(mux)}, nil
}

func (s *scenario) close() {
	s.http.Close()
}

func (s *scenario) register(sc *godog.ScenarioContext) {
	sc.Step(`^a (\d+)x(\d+) scene$`, s.aScene)
	sc.Step(`^marker (\d+) pasted at (\d+),(\d+) rotated (\d) quarter turns$`, s.markerPasted)
	sc.Step(`^a noise patch at (\d+),(\d+)$`, s.noisePatch)
	sc.Step(`^a degenerate candidate$`, s.degenerateCandidate)
	sc.Step(`^a candidate reaching outside the scene$`, s.outsideCandidate)
	sc.Step(`^I post the scene to /v1/detect$`, s.postScene)
	sc.Step(`^I post the scene to /v1/detect with quads "([^"]*)"$`, s.postSceneWithQuads)
	sc.Step(`^I stream the scene over the websocket$`, s.streamScene)
	sc.Step(`^the response status should be (\d+)$`, s.responseStatus)
	sc.Step(`^the websocket status should be "([^"]*)"$`, s.websocketStatus)
	sc.Step(`^(\d+) markers? should be decoded$`, s.markersDecoded)
	sc.Step(`^marker (\d+) should be decoded from candidate (\d+) with rotation (\d)$`, s.markerFromCandidate)
	sc.Step(`^(\d+) candidates? should be rejected as "([^"]*)"$`, s.rejectedAs)
}

func (s *scenario) aScene(width, height int) error {
	s.scene = testutil.NewScene(width, height, marker.White)
	return nil
}

func (s *scenario) markerPasted(id, x, y, turns int) error {
	bm, err := marker.Render(uint64(id), marker.DefaultConfig())
	if err != nil {
		return err
	}
	for range turns {
		next := bm.RotateCCW()
		bm.Release()
		bm = next
	}
	defer bm.Release()
	s.quads = append(s.quads, testutil.PasteMarker(s.scene, bm, x, y))
	return nil
}

func (s *scenario) noisePatch(x, y int) error {
	side := marker.DefaultConfig().BitmapSide()
	s.quads = append(s.quads, testutil.PasteMarker(s.scene, testutil.NoiseBitmap(side, testutil.Rand(7)), x, y))
	return nil
}

func (s *scenario) degenerateCandidate() error {
	s.quads = append(s.quads, geom.Quad{{X: 10, Y: 10}, {X: 20, Y: 20}, {X: 30, Y: 30}, {X: 40, Y: 40}})
	return nil
}

func (s *scenario) outsideCandidate() error {
	w, h := s.scene.Size()
	fw, fh := float64(w), float64(h)
	s.quads = append(s.quads, geom.Quad{{X: fw - 20, Y: fh + 40}, {X: fw - 20, Y: fh - 40}, {X: fw + 60, Y: fh - 40}, {X: fw + 60, Y: fh + 40}})
	return nil
}

func (s *scenario) imageBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.scene.ToImage()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *scenario) rawQuads() [][][2]float64 {
	raw := make([][][2]float64, len(s.quads))
	for i, q := range s.quads {
		raw[i] = make([][2]float64, 4)
		for j, p := range q {
			raw[i][j] = [2]float64{p.X, p.Y}
		}
	}
	return raw
}

func (s *scenario) postScene() error {
	b, err := json.Marshal(s.rawQuads())
	if err != nil {
		return err
	}
	return s.postSceneWithQuads(string(b))
}

func (s *scenario) postSceneWithQuads(quads string) error {
	img, err := s.imageBytes()
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "scene.png")
	if err != nil {
		return err
	}
	if _, err := fw.Write(img); err != nil {
		return err
	}
	if err := mw.WriteField("quads", quads); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.http.URL+"/v1/detect", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := s.http.Client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	s.status = resp.StatusCode
	var dr server.DetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	s.result = dr.Result
	return nil
}

func (s *scenario) streamScene() error {
	img, err := s.imageBytes()
	if err != nil {
		return err
	}
	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws/detect"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(server.WebSocketDetectRequest{RequestID: "scene", Image: img, Quads: s.rawQuads()}); err != nil {
		return err
	}
	if err := conn.ReadJSON(&s.wsResp); err != nil {
		return err
	}
	s.result = s.wsResp.Result
	return nil
}

func (s *scenario) responseStatus(status int) error {
	if s.status != status {
		return fmt.Errorf("expected status %d, got %d", status, s.status)
	}
	return nil
}

func (s *scenario) websocketStatus(status string) error {
	if s.wsResp.Status != status {
		return fmt.Errorf("expected websocket status %q, got %q (%s)", status, s.wsResp.Status, s.wsResp.Error)
	}
	return nil
}

func (s *scenario) markersDecoded(n int) error {
	if s.result == nil {
		return errors.New("no result received")
	}
	if len(s.result.Markers) != n {
		return fmt.Errorf("expected %d markers, got %d (rejected: %v)", n, len(s.result.Markers), s.result.Rejected)
	}
	return nil
}

func (s *scenario) markerFromCandidate(id, candidate, rotation int) error {
	if s.result == nil {
		return errors.New("no result received")
	}
	for _, m := range s.result.Markers {
		if m.Candidate != candidate {
			continue
		}
		if m.ID != uint64(id) || m.Rotation != rotation {
			return fmt.Errorf("candidate %d: got id %d rotation %d", candidate, m.ID, m.Rotation)
		}
		return nil
	}
	return fmt.Errorf("candidate %d was not decoded", candidate)
}

func (s *scenario) rejectedAs(n int, reason string) error {
	if s.result == nil {
		return errors.New("no result received")
	}
	if got := s.result.Rejected[reason]; got != n {
		return fmt.Errorf("expected %d rejections as %s, got %d (%v)", n, reason, got, s.result.Rejected)
	}
	return nil
}
