package fiducial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/squarefid/internal/camera"
	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/marker"
	"github.com/MeKo-Tech/squarefid/internal/pose"
	"github.com/MeKo-Tech/squarefid/internal/raster"
	"github.com/MeKo-Tech/squarefid/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDetector(t *testing.T, cfg Config, opts ...Option) *Detector {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	d, err := NewDetector(cfg, opts...)
	require.NoError(t, err)
	return d
}

type placed struct {
	id       uint64
	rotation int
	x, y     int
}

// busyScene pastes markers and distractors and returns the candidate list:
// markers at even indices, rejects at odd ones.
func busyScene(t *testing.T, cfg marker.Config) (*raster.Gray, []geom.Quad, []placed) {
	t.Helper()
	scene := testutil.NewScene(testutil.MediumSize[0], testutil.MediumSize[1], marker.White)
	markers := []placed{
		{id: 5, rotation: 0, x: 40, y: 40},
		{id: 100, rotation: 1, x: 220, y: 60},
		{id: 4000, rotation: 2, x: 420, y: 300},
	}

	var quads []geom.Quad
	rejects := []func() geom.Quad{
		func() geom.Quad {
			return testutil.PasteMarker(scene, testutil.NoiseBitmap(100, testutil.Rand(3)), 40, 300)
		},
		func() geom.Quad {
			return geom.Quad{{X: 600, Y: 100}, {X: 600, Y: 20}, {X: 700, Y: 20}, {X: 700, Y: 100}}
		},
		func() geom.Quad {
			return geom.Quad{{X: 10, Y: 10}, {X: 20, Y: 20}, {X: 30, Y: 30}, {X: 40, Y: 40}}
		},
	}
	for i, p := range markers {
		bm, err := marker.Render(p.id, cfg)
		require.NoError(t, err)
		for range p.rotation {
			bm = bm.RotateCCW()
		}
		quads = append(quads, testutil.PasteMarker(scene, bm, p.x, p.y), rejects[i]())
	}
	return scene, quads, markers
}

func TestDetect_BusyScene(t *testing.T) {
	cfg := DefaultConfig()
	scene, quads, want := busyScene(t, cfg.Marker)

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			cfg := cfg
			cfg.Parallel.MaxWorkers = workers
			d := newTestDetector(t, cfg)

			fr, err := d.Detect(context.Background(), scene, quads)
			require.NoError(t, err)
			require.NoError(t, ValidateFrameResult(fr))

			assert.Equal(t, len(quads), fr.Candidates)
			assert.Equal(t, testutil.MediumSize[0], fr.Width)
			require.Len(t, fr.Markers, len(want))
			for i, p := range want {
				m := fr.Markers[i]
				assert.Equal(t, 2*i, m.Candidate)
				assert.Equal(t, p.id, m.ID)
				assert.Equal(t, p.rotation, m.Rotation)
				assert.Equal(t, quads[2*i][(4-p.rotation)%4], m.Corners[0])
				assert.Nil(t, m.Pose)
			}
			assert.Equal(t, map[string]int{
				ReasonBorder:         1,
				ReasonOutOfBounds:    1,
				ReasonDegenerateQuad: 1,
			}, fr.Rejected)
		})
	}
}

func TestDetect_EmptyFrameIsSuccess(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	scene := testutil.NewScene(testutil.SmallSize[0], testutil.SmallSize[1], 128)

	fr, err := d.Detect(context.Background(), scene, nil)
	require.NoError(t, err)
	assert.Empty(t, fr.Markers)
	assert.Zero(t, fr.Candidates)
	assert.Zero(t, fr.RejectedTotal())
}

func TestDetect_NilSource(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	_, err := d.Detect(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestDetect_Cancelled(t *testing.T) {
	cfg := DefaultConfig()
	scene, quads, _ := busyScene(t, cfg.Marker)
	d := newTestDetector(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Detect(ctx, scene, quads)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDetect_DoesNotModifySource(t *testing.T) {
	cfg := DefaultConfig()
	scene, quads, _ := busyScene(t, cfg.Marker)
	before := append([]float32(nil), scene.Pix...)

	d := newTestDetector(t, cfg)
	_, err := d.Detect(context.Background(), scene, quads)
	require.NoError(t, err)
	assert.Equal(t, before, scene.Pix)
}

func TestDetect_WithPose(t *testing.T) {
	intr := camera.Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240, Width: 640, Height: 480}
	cfg := DefaultConfig()
	cfg.Intrinsics = &intr
	cfg.SideLength = 2
	d := newTestDetector(t, cfg)
	require.True(t, d.HasPose())

	flip := pose.FromAxisAngle(r3.Vector{X: 1}, math.Pi+0.25, r3.Vector{X: 0.2, Y: -0.1, Z: 7})
	quad, ok := flip.ProjectCorners(intr, 2)
	require.True(t, ok)

	bm, err := marker.Render(3210, cfg.Marker)
	require.NoError(t, err)
	scene := testutil.NewScene(640, 480, 220)
	require.NoError(t, testutil.WarpMarker(scene, bm, quad, 4))

	fr, err := d.Detect(context.Background(), scene, []geom.Quad{quad})
	require.NoError(t, err)
	require.Len(t, fr.Markers, 1)
	m := fr.Markers[0]
	assert.Equal(t, uint64(3210), m.ID)
	require.NotNil(t, m.Pose)
	assert.InDelta(t, 7.0, m.Pose.Translation.Z, 1e-6)
	assert.InDelta(t, 0.2, m.Pose.Translation.X, 1e-6)
	assert.Less(t, m.ReprojectionError, 1e-4)

	want, _ := intr.Project(flip.Apply(r3.Vector{X: -1, Y: -1}))
	got, _ := intr.Project(m.Pose.Apply(r3.Vector{X: -1, Y: -1}))
	assert.InDelta(t, want.X, got.X, 1e-4)
	assert.InDelta(t, want.Y, got.Y, 1e-4)
}

func TestDetect_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	cfg := DefaultConfig()
	scene, quads, _ := busyScene(t, cfg.Marker)
	d := newTestDetector(t, cfg, WithMetrics(m))

	_, err := d.Detect(context.Background(), scene, quads)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, promtest.ToFloat64(m.candidates.WithLabelValues(outcomeDecoded)), 1e-9)
	assert.InDelta(t, 1.0, promtest.ToFloat64(m.candidates.WithLabelValues(ReasonBorder)), 1e-9)
	assert.Equal(t, 1, promtest.CollectAndCount(m.frameDuration))

	count, err := promtest.GatherAndCount(reg, "squarefid_candidates_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestDetectFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parallel.MaxWorkers = 3
	d := newTestDetector(t, cfg)

	var frames []Frame
	for i := range 5 {
		bm, err := marker.Render(uint64(i*100), cfg.Marker)
		require.NoError(t, err)
		scene := testutil.NewScene(200, 200, marker.White)
		q := testutil.PasteMarker(scene, bm, 50, 60)
		frames = append(frames, Frame{Name: fmt.Sprintf("f%d", i), Source: scene, Quads: []geom.Quad{q}})
	}

	progress := &recordingProgress{}
	results, err := d.DetectFrames(context.Background(), frames, progress)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, fr := range results {
		assert.Equal(t, fmt.Sprintf("f%d", i), fr.Name)
		require.Len(t, fr.Markers, 1)
		assert.Equal(t, uint64(i*100), fr.Markers[0].ID)
	}
	assert.Equal(t, 5, progress.started)
	assert.Equal(t, 5, progress.last)
	assert.True(t, progress.completed)

	stats := CalculateBatchStats(results, 0, 3)
	assert.Equal(t, 5, stats.Frames)
	assert.Equal(t, 5, stats.Markers)
	assert.Zero(t, stats.FailedFrames)
}

func TestDetectFrames_Errors(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	_, err := d.DetectFrames(context.Background(), nil, nil)
	require.Error(t, err)

	scene := testutil.NewScene(50, 50, 0)
	results, err := d.DetectFrames(context.Background(), []Frame{{Source: scene}, {Name: "broken"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 1")
	require.Len(t, results, 2)
	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
}

type recordingProgress struct {
	started   int
	last      int
	errors    int
	completed bool
}

func (r *recordingProgress) OnStart(total int)         { r.started = total }
func (r *recordingProgress) OnProgress(current, _ int) { r.last = current }
func (r *recordingProgress) OnComplete()               { r.completed = true }
func (r *recordingProgress) OnError(int, error)        { r.errors++ }

func TestRejectReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&marker.SampleOutOfBoundsError{}, ReasonOutOfBounds},
		{fmt.Errorf("wrapped: %w", &marker.InsufficientBorderContrastError{}), ReasonBorder},
		{&marker.AmbiguousOrientationError{Matches: 2}, ReasonOrientation},
		{marker.ErrDegenerateQuad, ReasonDegenerateQuad},
		{&pose.DegenerateGeometryError{Reason: "x"}, ReasonDegeneratePose},
		{errors.New("boom"), ReasonOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RejectReason(tt.err), "%v", tt.err)
	}
}

func TestNewDetector_InvalidConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"grid":       func(c *Config) { c.Marker.GridWidth = 2 },
		"border":     func(c *Config) { c.Marker.BorderFraction = 0.6 },
		"threshold":  func(c *Config) { c.Threshold.Method = "magic" },
		"intrinsics": func(c *Config) { c.Intrinsics = &camera.Intrinsics{} },
		"side": func(c *Config) {
			c.Intrinsics = &camera.Intrinsics{Fx: 1, Fy: 1}
			c.SideLength = 0
		},
		"workers": func(c *Config) { c.Parallel.MaxWorkers = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewDetector(cfg)
			require.Error(t, err)
		})
	}
}
