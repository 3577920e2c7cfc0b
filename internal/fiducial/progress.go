package fiducial

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives batch progress from DetectFrames. Calls are
// made from a single goroutine.
type ProgressCallback interface {
	OnStart(total int)
	OnProgress(current, total int)
	OnComplete()
	OnError(frame int, err error)
}

// NoOpProgressCallback ignores every event.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)        {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()        {}
func (NoOpProgressCallback) OnError(int, error) {}

// ConsoleProgressCallback draws a one-line progress bar.
type ConsoleProgressCallback struct {
	mu       sync.Mutex
	w        io.Writer
	width    int
	interval time.Duration
	start    time.Time
	last     time.Time
}

// NewConsoleProgressCallback writes to w, or stderr when w is nil.
func NewConsoleProgressCallback(w io.Writer) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{w: w, width: 40, interval: 100 * time.Millisecond}
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
	c.last = time.Time{}
	_, _ = fmt.Fprintf(c.w, "decoding %d frames\n", total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.Sub(c.last) < c.interval && current < total {
		return
	}
	c.last = now
	if total <= 0 {
		return
	}
	filled := c.width * current / total
	bar := strings.Repeat("#", filled) + strings.Repeat(".", c.width-filled)
	line := fmt.Sprintf("\r[%s] %d/%d", bar, current, total)
	if elapsed := now.Sub(c.start); elapsed > 0 {
		line += fmt.Sprintf(" %.1f frames/s", float64(current)/elapsed.Seconds())
	}
	_, _ = fmt.Fprint(c.w, line)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\ndone in %v\n", time.Since(c.start).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(frame int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\nframe %d failed: %v\n", frame, err)
}

// LogProgressCallback reports progress through slog every interval frames.
type LogProgressCallback struct {
	logger   *slog.Logger
	interval int
	last     int
	start    time.Time
}

// NewLogProgressCallback logs to logger, or slog.Default() when nil.
func NewLogProgressCallback(logger *slog.Logger, interval int) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10
	}
	return &LogProgressCallback{logger: logger, interval: interval}
}

func (l *LogProgressCallback) OnStart(total int) {
	l.start = time.Now()
	l.last = 0
	l.logger.Info("batch started", "frames", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	if current-l.last < l.interval && current != total {
		return
	}
	l.last = current
	l.logger.Info("batch progress", "done", current, "total", total,
		"elapsed_ms", time.Since(l.start).Milliseconds())
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Info("batch completed", "elapsed_ms", time.Since(l.start).Milliseconds())
}

func (l *LogProgressCallback) OnError(frame int, err error) {
	l.logger.Warn("frame failed", "frame", frame, "error", err)
}
