package progress

import (
	"context"
	"strings"

	"github.com/example/examprep/internal/cadence"
	"github.com/example/examprep/internal/localstore"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
)

// PulseDue reports whether the weekly check-in is open.
func (s *Session) PulseDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cadence.PulseCheckDue(s.state.Progress.GlobalPulseCheck, s.clock.Now())
}

// ObserveView tells the session what the user is looking at. On the
// dashboard, with the check-in due and no practice running, prompt runs after
// the configured delay unless the view changes first.
func (s *Session) ObserveView(view cadence.View, authenticated bool, prompt func()) bool {
	s.mu.Lock()
	state := cadence.ViewState{View: view, Authenticated: authenticated, SessionActive: len(s.practice) > 0}
	var marker *models.WeekMarker
	if m := s.state.Progress.GlobalPulseCheck; m != nil {
		copied := *m
		marker = &copied
	}
	s.mu.Unlock()

	return s.prompter.Observe(state, marker, prompt)
}

// PulseCheck is a completed weekly check-in.
type PulseCheck struct {
	// Subject is optional; when set the subject marker and mood history are
	// updated too.
	Subject models.Subject `json:"subject,omitempty"`
	Mood    int            `json:"mood"`
	Note    string         `json:"note,omitempty"`
}

// CompletePulseCheck stores the check-in for the current ISO week and
// pushes it to the remote document without waiting for the debounce.
func (s *Session) CompletePulseCheck(ctx context.Context, pc PulseCheck) (Gain, error) {
	if pc.Subject != "" {
		if err := checkSubject(pc.Subject); err != nil {
			return Gain{}, err
		}
	}
	if pc.Mood < 1 || pc.Mood > 5 {
		return Gain{}, errors.Wrap(ErrInvalidArgument, "mood must be between 1 and 5")
	}

	s.mu.Lock()
	now := s.clock.Now()
	p := s.state.Progress
	if !cadence.PulseCheckDue(p.GlobalPulseCheck, now) {
		s.mu.Unlock()
		return Gain{XP: p.XP, Level: p.Level}, nil
	}

	marker := cadence.WeekOf(now)
	p.GlobalPulseCheck = &marker
	fields := map[string]any{localstore.KeyGlobalPulseCheck: p.GlobalPulseCheck}
	var subjects []models.Subject
	if pc.Subject != "" {
		sp := p.Subject(pc.Subject)
		subjectMarker := marker
		sp.LastPulseCheck = &subjectMarker
		sp.MoodHistory = append(sp.MoodHistory, models.MoodEntry{
			Date: cadence.Today(now),
			Mood: pc.Mood,
			Note: strings.TrimSpace(pc.Note),
		})
		subjects = append(subjects, pc.Subject)
	}
	gain := s.addXPLocked(XPPulseCheck, fields)
	s.commitLocked(fields, subjects...)
	s.mu.Unlock()

	s.prompter.Cancel()
	if s.sync != nil {
		if err := s.sync.ForceSync(ctx, s.userID, nil); err != nil {
			// still pending; the next change retries
			s.logger.Info("pulse check kept local for now", "error", err)
		}
	}
	return gain, nil
}
