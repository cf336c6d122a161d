package client

import "time"

// ProgressTimer decides whether a progress indicator should be displayed
// while waiting for work that started at start and may finish at any
// moment, and for how much longer it must stay up once shown, mirroring
// client/core.py's select_screen/_show_progress throttling: a screen
// that resolves within MaxBlockTime never shows a spinner at all, and
// once shown, a spinner never disappears in under MinShowProgressTime
// (avoiding a single-frame flash).
type ProgressTimer struct {
	start        time.Time
	shownAt      time.Time
	shown        bool
}

// NewProgressTimer starts a timer at the current moment.
func NewProgressTimer(now time.Time) *ProgressTimer {
	return &ProgressTimer{start: now}
}

// ShouldShow reports whether, at moment now, a progress indicator should
// be visible: it becomes true once MaxBlockTime has elapsed without the
// awaited work completing.
func (p *ProgressTimer) ShouldShow(now time.Time) bool {
	if !p.shown && now.Sub(p.start) >= MaxBlockTime {
		p.shown = true
		p.shownAt = now
	}
	return p.shown
}

// MinRemainingWait returns how much longer a shown indicator must stay up
// before the caller may remove it, respecting MinShowProgressTime.
func (p *ProgressTimer) MinRemainingWait(now time.Time) time.Duration {
	if !p.shown {
		return 0
	}
	elapsed := now.Sub(p.shownAt)
	if elapsed >= MinShowProgressTime {
		return 0
	}
	return MinShowProgressTime - elapsed
}
