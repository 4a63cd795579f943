package tui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	clearLine  = "\r\033[2K"
	hideCursor = "\033[?25l"
	showCursor = "\033[?25h"
)

// LiveRenderer redraws a single progress line on a plain terminal, at most
// frameRate times per second. The final update is always drawn and ends
// the line.
type LiveRenderer struct {
	mu        sync.Mutex
	w         io.Writer
	label     string
	frameRate int
	lastFrame time.Time
	started   bool
}

func NewLiveRenderer(w io.Writer, label string, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 10
	}
	return &LiveRenderer{w: w, label: label, frameRate: frameRate}
}

// OnProgress matches the experiment progress callback.
func (r *LiveRenderer) OnProgress(done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		fmt.Fprint(r.w, hideCursor)
		r.started = true
	}
	last := done >= total
	if !last && time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	fmt.Fprintf(r.w, "%s%s %s %s %d/%d", clearLine, r.label, bar(done, total, barWidth, false), percent(done, total), done, total)
	if last {
		fmt.Fprint(r.w, "\n"+showCursor)
		r.started = false
	}
}

// Close restores the cursor and ends the line of an unfinished run.
func (r *LiveRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		fmt.Fprint(r.w, "\n"+showCursor)
		r.started = false
	}
}
