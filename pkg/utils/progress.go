package utils

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// ProgressBar renders a single-line progress bar. Redraws are throttled;
// the final state is always drawn by Finish.
type ProgressBar struct {
	mu          sync.Mutex
	out         io.Writer
	description string
	startTime   time.Time
	width       int
	throttle    rate.Sometimes

	current int64
	total   int64
	// percent is used when byte counts are unknown; -1 is indeterminate.
	percent  int
	finished bool
}

// NewProgressBar creates a bar drawing to out at most ten times a second.
func NewProgressBar(out io.Writer, description string) *ProgressBar {
	return &ProgressBar{
		out:         out,
		description: description,
		startTime:   time.Now(),
		width:       30,
		throttle:    rate.Sometimes{Interval: 100 * time.Millisecond},
	}
}

// Update sets byte progress.
func (pb *ProgressBar) Update(current, total int64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current, pb.total = current, total
	if total > 0 {
		pb.percent = int(float64(current) / float64(total) * 100)
	}
	pb.throttle.Do(pb.render)
}

// UpdatePercent sets progress when only a percentage is known. A negative
// value shows an indeterminate bar.
func (pb *ProgressBar) UpdatePercent(percent int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current, pb.total = 0, 0
	pb.percent = percent
	pb.throttle.Do(pb.render)
}

// SetDescription updates the description.
func (pb *ProgressBar) SetDescription(desc string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.description = desc
	pb.render()
}

// Finish draws the last state and ends the line. Further calls are no-ops.
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.finished {
		return
	}
	pb.finished = true
	if pb.out != nil {
		pb.render()
		fmt.Fprintln(pb.out)
	}
}

func (pb *ProgressBar) render() {
	if pb.out == nil {
		return
	}
	fmt.Fprint(pb.out, "\r"+pb.line())
}

func (pb *ProgressBar) line() string {
	var bar string
	if pb.percent < 0 {
		bar = strings.Repeat("~", pb.width)
	} else {
		p := min(pb.percent, 100)
		filled := pb.width * p / 100
		bar = strings.Repeat("#", filled) + strings.Repeat(".", pb.width-filled)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", pb.description, bar)
	if pb.percent >= 0 {
		fmt.Fprintf(&b, " %3d%%", min(pb.percent, 100))
	}
	if pb.total > 0 {
		fmt.Fprintf(&b, " %s/%s", humanize.IBytes(uint64(pb.current)), humanize.IBytes(uint64(pb.total)))
		if elapsed := time.Since(pb.startTime).Seconds(); elapsed > 0 && pb.current > 0 {
			fmt.Fprintf(&b, " %s/s", humanize.IBytes(uint64(float64(pb.current)/elapsed)))
		}
	}
	return b.String()
}
