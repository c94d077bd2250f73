// Package schedule decides when the preview is re-rendered.
//
// Two independent channels feed the renderer. The frame channel coalesces
// requests into at most one callback per frame interval; the debounce channel
// waits for a quiet period after the last content change. Each channel keeps
// a generation number, and a timer only fires its callback if its generation
// is still current, so a stopped timer that races its own expiry is harmless.
package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultFrameInterval = 16 * time.Millisecond
	DefaultDebounce      = 300 * time.Millisecond
)

// Kind is the weight of a render request. Heavier kinds absorb lighter ones.
type Kind int

const (
	KindNone Kind = iota
	// KindOverlay recomposites field boxes onto the cached bitmap.
	KindOverlay
	// KindContent follows a field value change and is debounced.
	KindContent
	// KindStructural re-rasterizes: page, zoom or container changes.
	KindStructural
)

func (k Kind) String() string {
	switch k {
	case KindOverlay:
		return "overlay"
	case KindContent:
		return "content"
	case KindStructural:
		return "structural"
	default:
		return "none"
	}
}

// Callbacks are invoked from timer goroutines, never with the scheduler's
// lock held.
type Callbacks struct {
	Structural func()
	Content    func()
	Overlay    func()
}

// Config holds the two channel delays.
type Config struct {
	FrameInterval time.Duration
	Debounce      time.Duration
}

// Scheduler coalesces render requests for one session.
type Scheduler struct {
	clock clockwork.Clock
	cfg   Config
	run   Callbacks

	mu            sync.Mutex
	frameTimer    clockwork.Timer
	frameGen      uint64
	frameKind     Kind
	debounceTimer clockwork.Timer
	debounceGen   uint64
	suspended     bool
	deferred      bool
	stopped       bool
}

// New creates a scheduler. A nil clock uses the real clock; zero delays use
// the defaults.
func New(clock clockwork.Clock, cfg Config, run Callbacks) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Scheduler{clock: clock, cfg: cfg, run: run}
}

// RequestStructural asks for a full render on the next frame. Any pending
// debounced render is cancelled since the structural render covers it.
func (s *Scheduler) RequestStructural() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelDebounceLocked()
	if s.suspended {
		s.deferred = true
		return
	}
	s.scheduleFrameLocked(KindStructural)
}

// RequestContent restarts the debounce timer.
func (s *Scheduler) RequestContent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.suspended {
		s.deferred = true
		return
	}
	s.cancelDebounceLocked()
	gen := s.debounceGen
	s.debounceTimer = s.clock.AfterFunc(s.cfg.Debounce, func() { s.fireDebounce(gen) })
}

// RequestOverlay asks for an overlay repaint on the next frame. It never
// downgrades a pending structural request. Overlay repaints continue while
// suspended.
func (s *Scheduler) RequestOverlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.scheduleFrameLocked(KindOverlay)
}

// Suspend defers structural and content renders, e.g. while a drag is in
// progress.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
	if s.debounceTimer != nil {
		s.cancelDebounceLocked()
		s.deferred = true
	}
}

// Resume lifts a suspension. If anything was deferred, exactly one
// structural render is scheduled.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
	if s.deferred && !s.stopped {
		s.deferred = false
		s.scheduleFrameLocked(KindStructural)
	}
}

// Suspended reports whether renders are being deferred.
func (s *Scheduler) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Pending reports what the next frame will run and whether a debounced
// render is waiting.
func (s *Scheduler) Pending() (Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameKind, s.debounceTimer != nil
}

// Stop cancels all timers. Later requests are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancelDebounceLocked()
	if s.frameTimer != nil {
		s.frameTimer.Stop()
		s.frameTimer = nil
	}
	s.frameGen++
	s.frameKind = KindNone
}

func (s *Scheduler) scheduleFrameLocked(k Kind) {
	if k > s.frameKind {
		s.frameKind = k
	}
	if s.frameTimer != nil {
		return
	}
	s.frameGen++
	gen := s.frameGen
	s.frameTimer = s.clock.AfterFunc(s.cfg.FrameInterval, func() { s.fireFrame(gen) })
}

func (s *Scheduler) cancelDebounceLocked() {
	s.debounceGen++
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}

func (s *Scheduler) fireFrame(gen uint64) {
	s.mu.Lock()
	if gen != s.frameGen || s.stopped {
		s.mu.Unlock()
		return
	}
	kind := s.frameKind
	s.frameKind = KindNone
	s.frameTimer = nil
	if kind == KindStructural && s.suspended {
		// Suspended after the request was queued: hold the render, keep the
		// overlay repaint.
		s.deferred = true
		kind = KindOverlay
	}
	s.mu.Unlock()

	s.invoke(kind)
}

func (s *Scheduler) fireDebounce(gen uint64) {
	s.mu.Lock()
	if gen != s.debounceGen || s.stopped {
		s.mu.Unlock()
		return
	}
	s.debounceTimer = nil
	s.mu.Unlock()

	s.invoke(KindContent)
}

func (s *Scheduler) invoke(k Kind) {
	var f func()
	switch k {
	case KindStructural:
		f = s.run.Structural
	case KindContent:
		f = s.run.Content
	case KindOverlay:
		f = s.run.Overlay
	}
	if f != nil {
		f()
	}
}
