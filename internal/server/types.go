package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/squarefid/internal/fiducial"
	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/raster"
)

// frameDetector is the part of fiducial.Detector the server needs.
type frameDetector interface {
	Detect(ctx context.Context, src raster.Source, quads []geom.Quad) (*fiducial.FrameResult, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	detector    frameDetector
	corsOrigin  string
	maxUploadMB int64
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Host              string
	Port              int
	CORSOrigin        string
	MaxUploadMB       int64
	TimeoutSec        int
	RequestsPerMinute int // 0 disables rate limiting
	Detector          fiducial.Config
	Logger            *slog.Logger
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// DetectResponse is returned by POST /v1/detect.
type DetectResponse struct {
	Success bool                  `json:"success"`
	Result  *fiducial.FrameResult `json:"result,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// detectorMetrics registers the detector collectors once per process.
var detectorMetrics = sync.OnceValue(func() *fiducial.Metrics {
	return fiducial.NewMetrics(prometheus.DefaultRegisterer)
})

// NewServer builds the detector and the server around it.
func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	det, err := fiducial.NewDetector(config.Detector,
		fiducial.WithLogger(logger),
		fiducial.WithMetrics(detectorMetrics()))
	if err != nil {
		return nil, err
	}
	s := newServer(det, config)
	s.logger = logger
	return s, nil
}

func newServer(det frameDetector, config Config) *Server {
	s := &Server{
		detector:    det,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		logger:      slog.Default(),
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 50
	}
	if config.RequestsPerMinute > 0 {
		s.rateLimiter = NewRateLimiter(config.RequestsPerMinute)
	}
	return s
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/v1/detect", s.corsMiddleware(s.rateLimitMiddleware(s.detectHandler)))
	mux.HandleFunc("/ws/detect", s.detectWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}
