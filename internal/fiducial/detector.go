package fiducial

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/marker"
	"github.com/MeKo-Tech/squarefid/internal/pose"
	"github.com/MeKo-Tech/squarefid/internal/raster"
)

// Rejection reasons used in FrameResult.Rejected and metrics labels.
const (
	ReasonOutOfBounds    = "out_of_bounds"
	ReasonBorder         = "border"
	ReasonOrientation    = "orientation"
	ReasonDegenerateQuad = "degenerate_quad"
	ReasonDegeneratePose = "degenerate_pose"
	ReasonOther          = "other"
)

// Detector decodes candidate quadrilaterals. It is safe for concurrent use.
type Detector struct {
	cfg       Config
	sampler   *marker.Sampler
	decoder   *marker.Decoder
	estimator *pose.Estimator // nil without intrinsics
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records candidate outcomes and frame latency.
func WithMetrics(m *Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// NewDetector validates cfg and builds the pipeline stages.
func NewDetector(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	th, err := marker.ParseThresholder(cfg.Threshold.Method, cfg.Threshold.Level)
	if err != nil {
		return nil, err
	}
	sampler, err := marker.NewSampler(cfg.Marker)
	if err != nil {
		return nil, err
	}
	decoder, err := marker.NewDecoder(cfg.Marker, th)
	if err != nil {
		return nil, err
	}

	d := &Detector{cfg: cfg, sampler: sampler, decoder: decoder, logger: slog.Default()}
	if cfg.Intrinsics != nil {
		if d.estimator, err = pose.NewEstimator(*cfg.Intrinsics); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// HasPose reports whether markers get a pose.
func (d *Detector) HasPose() bool { return d.estimator != nil }

// DecodeCandidate runs sample, decode and pose for one quadrilateral. Every
// error it returns is a per-candidate rejection; see RejectReason.
func (d *Detector) DecodeCandidate(src raster.Source, quad geom.Quad) (Marker, error) {
	bm, err := d.sampler.Sample(src, quad)
	if err != nil {
		return Marker{}, err
	}
	defer bm.Release()

	res, err := d.decoder.Decode(bm)
	if err != nil {
		return Marker{}, err
	}

	m := Marker{
		ID:          res.ID,
		Rotation:    res.Rotation,
		Corners:     res.Corners,
		BorderBlack: res.BorderBlack,
	}
	if d.estimator == nil {
		return m, nil
	}
	p, err := d.estimator.Estimate(res.Corners, d.cfg.SideLength)
	if err != nil {
		return Marker{}, err
	}
	m.Pose = &p
	m.ReprojectionError = p.ReprojectionError(d.estimator.Intrinsics(), res.Corners, d.cfg.SideLength)
	return m, nil
}

// Detect decodes every candidate of one frame. Rejected candidates are
// counted, not returned as errors; the only errors are a nil source and
// context cancellation. Markers are sorted by candidate index.
func (d *Detector) Detect(ctx context.Context, src raster.Source, quads []geom.Quad) (*FrameResult, error) {
	return d.detect(ctx, src, quads, d.cfg.workers())
}

func (d *Detector) detect(ctx context.Context, src raster.Source, quads []geom.Quad, workers int) (*FrameResult, error) {
	if src == nil {
		return nil, errors.New("nil source image")
	}
	start := time.Now()

	outcomes, err := d.runCandidates(ctx, src, quads, workers)
	if err != nil {
		return nil, err
	}

	w, h := src.Size()
	fr := &FrameResult{
		Width:      w,
		Height:     h,
		Candidates: len(quads),
		Markers:    make([]Marker, 0, len(quads)),
		Rejected:   map[string]int{},
	}
	for _, o := range outcomes {
		if o.err != nil {
			reason := RejectReason(o.err)
			fr.Rejected[reason]++
			d.logger.Debug("candidate rejected", "candidate", o.index, "reason", reason, "error", o.err)
			d.metrics.observeCandidate(reason)
			continue
		}
		fr.Markers = append(fr.Markers, o.marker)
		d.metrics.observeCandidate(outcomeDecoded)
	}
	elapsed := time.Since(start)
	fr.DurationMs = float64(elapsed.Microseconds()) / 1000
	d.metrics.observeFrame(elapsed, len(fr.Markers))

	d.logger.Info("frame decoded",
		"candidates", fr.Candidates,
		"markers", len(fr.Markers),
		"rejected", fr.RejectedTotal(),
		"duration_ms", fr.DurationMs)
	return fr, nil
}

// RejectReason classifies a candidate error.
func RejectReason(err error) string {
	var oob *marker.SampleOutOfBoundsError
	var contrast *marker.InsufficientBorderContrastError
	var orient *marker.AmbiguousOrientationError
	switch {
	case errors.As(err, &oob):
		return ReasonOutOfBounds
	case errors.As(err, &contrast):
		return ReasonBorder
	case errors.As(err, &orient):
		return ReasonOrientation
	case errors.Is(err, marker.ErrDegenerateQuad):
		return ReasonDegenerateQuad
	case errors.Is(err, pose.ErrDegenerate):
		return ReasonDegeneratePose
	default:
		return ReasonOther
	}
}
