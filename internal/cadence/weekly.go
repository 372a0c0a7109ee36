package cadence

import (
	"sync"
	"time"

	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/pkg/models"
)

// DefaultPulseDelay defers the weekly prompt so it does not interrupt a flow
// the user just started.
const DefaultPulseDelay = 5 * time.Second

// WeekOf returns the ISO-8601 week of t.
func WeekOf(t time.Time) models.WeekMarker {
	year, week := t.ISOWeek()
	return models.WeekMarker{Year: year, Week: week}
}

// PulseCheckDue reports whether the weekly check-in has not been done in the
// ISO week of now.
func PulseCheckDue(marker *models.WeekMarker, now time.Time) bool {
	if marker == nil {
		return true
	}
	return *marker != WeekOf(now)
}

// View names what the user is looking at.
type View string

const (
	ViewDashboard View = "dashboard"
	ViewPractice  View = "practice"
	ViewReview    View = "review"
	ViewOther     View = "other"
)

// ViewState is what the prompter needs to know about the user's surface.
type ViewState struct {
	View          View
	Authenticated bool
	SessionActive bool
}

// Eligible reports whether the check-in may interrupt the user.
func (v ViewState) Eligible() bool {
	return v.View == ViewDashboard && v.Authenticated && !v.SessionActive
}

// PulsePrompter schedules the deferred weekly check-in prompt. Every
// observation cancels the pending prompt first.
type PulsePrompter struct {
	clock clock.Clock
	delay time.Duration

	mu      sync.Mutex
	pending clock.Timer
	gen     uint64
}

// NewPulsePrompter returns a prompter firing after delay.
func NewPulsePrompter(c clock.Clock, delay time.Duration) *PulsePrompter {
	if delay <= 0 {
		delay = DefaultPulseDelay
	}
	return &PulsePrompter{clock: c, delay: delay}
}

// Observe records the current view. When the view is eligible and the
// check-in is due, prompt runs after the delay unless another observation
// arrives first. It reports whether a prompt was scheduled.
func (p *PulsePrompter) Observe(state ViewState, marker *models.WeekMarker, prompt func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelLocked()
	if !state.Eligible() || !PulseCheckDue(marker, p.clock.Now()) {
		return false
	}

	gen := p.gen
	p.pending = p.clock.AfterFunc(p.delay, func() {
		p.mu.Lock()
		if gen != p.gen {
			p.mu.Unlock()
			return
		}
		p.pending = nil
		p.mu.Unlock()
		prompt()
	})
	return true
}

// Cancel drops a pending prompt.
func (p *PulsePrompter) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

func (p *PulsePrompter) cancelLocked() {
	p.gen++
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}
