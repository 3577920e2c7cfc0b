package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/squarefid/internal/fiducial"
	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/raster"
	"github.com/MeKo-Tech/squarefid/internal/version"
)

// healthHandler returns the server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health response", "error", err)
	}
}

// detectHandler decodes the candidate quadrilaterals of one uploaded image.
// The multipart form carries the image in "image" and the candidates in
// "quads" as a JSON array of four [x, y] corners each. An optional "format"
// field selects json (default), yaml, csv or text output.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)
	if err := r.ParseMultipartForm(s.maxUploadMB * 1024 * 1024); err != nil {
		s.writeErrorResponse(w, "Failed to parse multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = file.Close()
	}()
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image: "+err.Error(), http.StatusBadRequest)
		return
	}
	quads, err := parseQuadsField(r.FormValue("quads"))
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, status, err := s.runDetect(r.Context(), data, quads)
	if err != nil {
		detectRequestsTotal.WithLabelValues("http", "error").Inc()
		s.writeErrorResponse(w, err.Error(), status)
		return
	}
	detectRequestsTotal.WithLabelValues("http", "success").Inc()
	res.Name = header.Filename

	format := strings.ToLower(r.FormValue("format"))
	if format == "" || format == "json" {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(DetectResponse{Success: true, Result: res}); err != nil {
			s.logger.Error("Failed to encode detect response", "error", err)
		}
		return
	}

	out, err := fiducial.Format([]*fiducial.FrameResult{res}, format)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch format {
	case "yaml":
		w.Header().Set("Content-Type", "application/yaml")
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	_, _ = io.WriteString(w, out)
}

// runDetect decodes the image bytes and runs the detector. The returned
// status is the HTTP code to report on failure.
func (s *Server) runDetect(ctx context.Context, data []byte, quads []geom.Quad) (*fiducial.FrameResult, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("failed to decode image: %w", err)
	}
	res, err := s.detector.Detect(ctx, raster.FromImage(img), quads)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("detection failed: %w", err)
	}
	return res, http.StatusOK, nil
}

// parseQuadsField parses the JSON candidate list. An empty field means no
// candidates.
func parseQuadsField(field string) ([]geom.Quad, error) {
	if strings.TrimSpace(field) == "" {
		return nil, nil
	}
	var raw [][][2]float64
	if err := json.Unmarshal([]byte(field), &raw); err != nil {
		return nil, fmt.Errorf("invalid quads: %w", err)
	}
	return parseQuadsJSON(raw)
}

func parseQuadsJSON(raw [][][2]float64) ([]geom.Quad, error) {
	quads, err := geom.ParseQuads(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid quads: %w", err)
	}
	return quads, nil
}

// writeErrorResponse writes an error response in JSON format.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(DetectResponse{Success: false, Error: message}); err != nil {
		s.logger.Error("Failed to encode error response", "error", err)
	}
}
