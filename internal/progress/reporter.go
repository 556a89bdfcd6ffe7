package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// Options configures the progress reporter.
type Options struct {
	// TotalCalls is the number of calls in the plan.
	TotalCalls int

	// StartAt is the number of calls already downloaded before this run.
	StartAt int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source is the server URI (for display).
	Source string

	// Destination is the output location (for display).
	Destination string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu             sync.Mutex
	completedBytes atomic.Int64
	completedCalls atomic.Int32
	failedCalls    atomic.Int32
	inProgress     atomic.Int32
	startTime      time.Time
	lastUpdate     time.Time
	lastBytes      int64
	stopCh         chan struct{}
	doneCh         chan struct{}
	started        bool
	stopped        bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// IsTerminal reports whether w is an interactive terminal. The CLI enables
// the live display by default only in that case.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[scanfetch] Downloading: %s -> %s\n", r.opts.Source, r.opts.Destination)
	fmt.Fprintf(r.opts.Output, "[scanfetch] Calls: %d planned | %d already done\n",
		r.opts.TotalCalls,
		r.opts.StartAt,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// CallStarted marks a call as in progress.
func (r *Reporter) CallStarted() {
	r.inProgress.Add(1)
}

// CallCompleted marks a call as written with size bytes of audio.
func (r *Reporter) CallCompleted(size int64) {
	r.completedBytes.Add(size)
	r.completedCalls.Add(1)
	r.inProgress.Add(-1)
}

// CallFailed marks the in-progress call as failed.
func (r *Reporter) CallFailed() {
	r.failedCalls.Add(1)
	r.inProgress.Add(-1)
}

// Done returns the number of plan items finished, including those finished
// before this run.
func (r *Reporter) Done() int {
	return r.opts.StartAt + int(r.completedCalls.Load())
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	now := time.Now()
	completed := r.completedBytes.Load()
	done := r.Done()

	r.mu.Lock()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(completed-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = completed
	runTime := now.Sub(r.startTime)
	r.mu.Unlock()

	var percent float64
	eta := "calculating..."
	if r.opts.TotalCalls > 0 {
		percent = float64(done) / float64(r.opts.TotalCalls) * 100
		if n := r.completedCalls.Load(); n > 0 {
			perCall := runTime / time.Duration(n)
			eta = formatDuration(perCall * time.Duration(r.opts.TotalCalls-done))
		}
	}

	fmt.Fprintf(r.opts.Output, "\r[scanfetch] Progress: %.1f%% | %d / %d calls | %s | Speed: %s/s | ETA: %s    ",
		percent,
		done,
		r.opts.TotalCalls,
		FormatBytes(completed),
		FormatBytes(int64(speed)),
		eta,
	)
}

func (r *Reporter) printFinalStatus() {
	completed := r.completedBytes.Load()
	calls := int(r.completedCalls.Load())
	duration := time.Since(r.startTime)
	avgSpeed := float64(completed) / max(duration.Seconds(), 0.001)

	status := "Complete!"
	if r.Done() < r.opts.TotalCalls || r.failedCalls.Load() > 0 {
		status = "Stopped"
	}
	fmt.Fprintf(r.opts.Output, "\r[scanfetch] Progress: %d / %d calls | %s    \n",
		r.Done(),
		r.opts.TotalCalls,
		status,
	)
	fmt.Fprintf(r.opts.Output, "[scanfetch] This run: %d calls | %s | Total time: %s | Average speed: %s/s\n",
		calls,
		FormatBytes(completed),
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// FormatBytes formats bytes as a human-readable IEC string.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	value := float64(b) / float64(div)
	suffix := []string{"KiB", "MiB", "GiB", "TiB"}[exp]
	if value >= 100 {
		return fmt.Sprintf("%.0f %s", value, suffix)
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// ParseBytes parses a human-readable byte string such as "64MiB" or "1MB".
// IEC suffixes are powers of 1024, SI suffixes powers of 1000.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"TiB", 1 << 40},
		{"GiB", 1 << 30},
		{"MiB", 1 << 20},
		{"KiB", 1 << 10},
		{"TB", 1000 * 1000 * 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"MB", 1000 * 1000},
		{"KB", 1000},
		{"B", 1},
	}

	var multiplier int64 = 1
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.multiplier
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	var value float64
	if _, err := fmt.Sscanf(s, "%f", &value); err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}
	return int64(value * float64(multiplier)), nil
}
