package fiducial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/raster"
)

// candidateJob is one quadrilateral waiting for a worker.
type candidateJob struct {
	index int
	quad  geom.Quad
}

// candidateOutcome is the result of one candidate.
type candidateOutcome struct {
	index  int
	marker Marker
	err    error
}

// runCandidates decodes quads on up to workers goroutines and returns the
// outcomes in candidate order. The source is only read.
func (d *Detector) runCandidates(ctx context.Context, src raster.Source, quads []geom.Quad, workers int) ([]candidateOutcome, error) {
	outcomes := make([]candidateOutcome, len(quads))
	if workers > len(quads) {
		workers = len(quads)
	}

	// Small frames are not worth the goroutines.
	if workers <= 1 {
		for i, q := range quads {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i] = d.runCandidate(src, candidateJob{index: i, quad: q})
		}
		return outcomes, nil
	}

	jobs := make(chan candidateJob, len(quads))
	results := make(chan candidateOutcome, len(quads))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go d.candidateWorker(ctx, src, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, q := range quads {
			select {
			case jobs <- candidateJob{index: i, quad: q}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for o := range results {
		outcomes[o.index] = o
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (d *Detector) candidateWorker(
	ctx context.Context,
	src raster.Source,
	jobs <-chan candidateJob,
	results chan<- candidateOutcome,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			results <- d.runCandidate(src, job)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Detector) runCandidate(src raster.Source, job candidateJob) candidateOutcome {
	m, err := d.DecodeCandidate(src, job.quad)
	if err != nil {
		return candidateOutcome{index: job.index, err: err}
	}
	m.Candidate = job.index
	return candidateOutcome{index: job.index, marker: m}
}

// Frame is one image with its candidate quadrilaterals.
type Frame struct {
	Name   string
	Source raster.Source
	Quads  []geom.Quad
}

// frameResult pairs a frame index with its outcome.
type frameResult struct {
	index  int
	result *FrameResult
	err    error
}

// DetectFrames decodes several frames in parallel, one frame per worker,
// and returns the results in input order. A failing frame does not stop the
// others; the first failure is returned alongside the partial results.
func (d *Detector) DetectFrames(ctx context.Context, frames []Frame, progress ProgressCallback) ([]*FrameResult, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames provided")
	}
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	progress.OnStart(len(frames))
	defer progress.OnComplete()

	workers := min(d.cfg.workers(), len(frames))
	jobs := make(chan int, len(frames))
	results := make(chan frameResult, len(frames))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				f := frames[i]
				fr, err := d.detect(ctx, f.Source, f.Quads, 1)
				if fr != nil {
					fr.Name = f.Name
				}
				results <- frameResult{index: i, result: fr, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range frames {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*FrameResult, len(frames))
	errs := make([]error, len(frames))
	done := 0
	for r := range results {
		ordered[r.index] = r.result
		errs[r.index] = r.err
		done++
		if r.err != nil {
			progress.OnError(r.index, r.err)
		}
		progress.OnProgress(done, len(frames))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return ordered, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return ordered, nil
}

// BatchStats summarises a DetectFrames run.
type BatchStats struct {
	Frames           int           `json:"frames"`
	FailedFrames     int           `json:"failed_frames"`
	Markers          int           `json:"markers"`
	Candidates       int           `json:"candidates"`
	Workers          int           `json:"workers"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateBatchStats summarises results of a batch that took duration.
func CalculateBatchStats(results []*FrameResult, duration time.Duration, workers int) BatchStats {
	s := BatchStats{Frames: len(results), Workers: workers, TotalDuration: duration}
	for _, r := range results {
		if r == nil {
			s.FailedFrames++
			continue
		}
		s.Markers += len(r.Markers)
		s.Candidates += r.Candidates
	}
	if ok := s.Frames - s.FailedFrames; ok > 0 && duration > 0 {
		s.ThroughputPerSec = float64(ok) / duration.Seconds()
	}
	return s
}
