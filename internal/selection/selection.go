// Package selection holds the timeseries selection shared between a figure
// widget and the keys that drive it: the visible time window and the
// current time cursor.
package selection

import "sync"

const minWindowSec = 1e-3

// Scope is one shared selection. The zero value is unusable; use New.
type Scope struct {
	mu           sync.RWMutex
	startSec     float64
	endSec       float64
	visibleStart float64
	visibleEnd   float64
	current      float64
	version      uint64
}

// Window is a snapshot of a Scope.
type Window struct {
	StartSec        float64
	EndSec          float64
	VisibleStartSec float64
	VisibleEndSec   float64
	CurrentSec      float64
	Version         uint64
}

// New creates a scope over [startSec, endSec] showing the whole range.
func New(startSec, endSec float64) *Scope {
	if endSec < startSec {
		startSec, endSec = endSec, startSec
	}
	return &Scope{
		startSec:     startSec,
		endSec:       endSec,
		visibleStart: startSec,
		visibleEnd:   endSec,
		current:      startSec,
	}
}

// Window returns a consistent snapshot.
func (s *Scope) Window() Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Window{
		StartSec:        s.startSec,
		EndSec:          s.endSec,
		VisibleStartSec: s.visibleStart,
		VisibleEndSec:   s.visibleEnd,
		CurrentSec:      s.current,
		Version:         s.version,
	}
}

// SetTotalRange replaces the full range, e.g. once a widget has read the
// dataset extent. The visible window is reset to cover it.
func (s *Scope) SetTotalRange(startSec, endSec float64) {
	if endSec < startSec {
		startSec, endSec = endSec, startSec
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startSec, s.endSec = startSec, endSec
	s.visibleStart, s.visibleEnd = startSec, endSec
	s.current = clamp(s.current, startSec, endSec)
	s.version++
}

// SetVisible sets the visible window, clamped to the total range.
func (s *Scope) SetVisible(startSec, endSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setVisibleLocked(startSec, endSec)
}

// Pan shifts the visible window by frac of its width. The window keeps its
// width and stops at the range edges.
func (s *Scope) Pan(frac float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	width := s.visibleEnd - s.visibleStart
	shift := width * frac
	start := s.visibleStart + shift
	if start < s.startSec {
		start = s.startSec
	}
	if start+width > s.endSec {
		start = s.endSec - width
	}
	s.setVisibleLocked(start, start+width)
}

// Zoom scales the visible window around its centre. factor < 1 zooms in.
func (s *Scope) Zoom(factor float64) {
	if factor <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	center := (s.visibleStart + s.visibleEnd) / 2
	half := (s.visibleEnd - s.visibleStart) * factor / 2
	if half < minWindowSec/2 {
		half = minWindowSec / 2
	}
	s.setVisibleLocked(center-half, center+half)
}

// SetCurrentTime moves the cursor, clamped to the total range.
func (s *Scope) SetCurrentTime(sec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = clamp(sec, s.startSec, s.endSec)
	s.version++
}

// Reset shows the full range again.
func (s *Scope) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setVisibleLocked(s.startSec, s.endSec)
}

func (s *Scope) setVisibleLocked(startSec, endSec float64) {
	if endSec < startSec {
		startSec, endSec = endSec, startSec
	}
	s.visibleStart = clamp(startSec, s.startSec, s.endSec)
	s.visibleEnd = clamp(endSec, s.startSec, s.endSec)
	s.version++
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
