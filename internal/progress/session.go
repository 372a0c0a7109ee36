package progress

import (
	"log/slog"
	"math/rand"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/internal/cadence"
	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/internal/leveling"
	"github.com/example/examprep/internal/localstore"
	"github.com/example/examprep/internal/remotesync"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
)

// XP rewards.
const (
	XPCorrectAnswer = 10
	XPWrongAnswer   = 2
	XPReview        = 5
	XPPractice      = 15
	XPPulseCheck    = 10
)

// syncedKeys are local keys mirrored one-to-one in the remote document.
var syncedKeys = map[string]bool{
	localstore.KeyLevel:            true,
	localstore.KeyXP:               true,
	localstore.KeyStudyStreak:      true,
	localstore.KeyEarnedBadges:     true,
	localstore.KeyGlobalPulseCheck: true,
}

// Session is the live state of one user. All methods are safe for
// concurrent use; state is only touched under mu.
type Session struct {
	userID   string
	store    *localstore.Store
	sync     *remotesync.Coordinator
	clock    clock.Clock
	feedback FeedbackGenerator
	limits   cadence.FreeLimits
	logger   *slog.Logger
	prompter *cadence.PulsePrompter

	mu       sync.Mutex
	state    *localstore.State
	rng      *rand.Rand
	practice map[models.Subject]bool
}

func newSession(userID string, store *localstore.Store, state *localstore.State, deps Deps) *Session {
	return &Session{
		userID:   userID,
		store:    store,
		sync:     deps.Sync,
		clock:    deps.Clock,
		feedback: deps.Feedback,
		limits:   *deps.Config.FreeLimits,
		logger:   deps.Logger.With("user", userID),
		prompter: cadence.NewPulsePrompter(deps.Clock, deps.Config.PulseDelay),
		state:    state,
		rng:      rand.New(rand.NewSource(deps.Clock.Now().UnixNano())),
		practice: make(map[models.Subject]bool),
	}
}

// UserID returns the identity of the session.
func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) today() civil.Date {
	return cadence.Today(s.clock.Now())
}

// commitLocked writes fields and subjects locally right away and queues the
// synced ones for the remote document.
func (s *Session) commitLocked(fields map[string]any, subjects ...models.Subject) {
	remoteFields := make(map[string]any)
	for key, value := range fields {
		if err := s.store.Set(key, value); err != nil {
			s.logger.Warn("local write failed", "key", key, "error", err)
		}
		if syncedKeys[key] {
			remoteFields[key] = value
		}
	}
	p := s.state.Progress
	for _, subject := range subjects {
		if err := localstore.SaveSubject(s.store, subject, p.Subject(subject)); err != nil {
			s.logger.Warn("local write failed", "subject", subject, "error", err)
		}
	}
	if len(subjects) > 0 {
		remoteFields[models.FieldPerSubjectData] = p.PerSubjectData
	}
	if s.sync != nil && len(remoteFields) > 0 {
		s.sync.ScheduleSync(s.userID, remoteFields)
	}
}

// Snapshot returns a deep copy of the user's progress.
func (s *Session) Snapshot() *models.UserProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Progress.Clone()
}

// Gain summarizes the effect of an XP award.
type Gain struct {
	XP           int      `json:"xp"`
	Level        int      `json:"level"`
	Gained       int      `json:"gained"`
	LevelsGained int      `json:"levelsGained"`
	NewBadges    []string `json:"newBadges,omitempty"`
}

// add folds a follow-up gain into g.
func (g *Gain) add(other Gain) {
	if other.Gained == 0 {
		return
	}
	g.XP, g.Level = other.XP, other.Level
	g.Gained += other.Gained
	g.LevelsGained += other.LevelsGained
	g.NewBadges = append(g.NewBadges, other.NewBadges...)
}

// addXPLocked applies amount and records the changed fields in fields.
func (s *Session) addXPLocked(amount int, fields map[string]any) Gain {
	p := s.state.Progress
	before := p.Level
	p.XP, p.Level = leveling.ApplyXP(p.XP, p.Level, amount)
	fields[localstore.KeyXP] = p.XP
	fields[localstore.KeyLevel] = p.Level

	g := Gain{XP: p.XP, Level: p.Level, Gained: amount, LevelsGained: p.Level - before}
	g.NewBadges = s.awardBadgesLocked(fields)
	if g.LevelsGained > 0 {
		s.logger.Info("level up", "level", p.Level)
	}
	return g
}

// AwardXP adds amount XP. A single award may cross several levels.
func (s *Session) AwardXP(amount int) (Gain, error) {
	if amount < 0 {
		return Gain{}, errors.Wrap(ErrInvalidArgument, "negative xp award")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := map[string]any{}
	g := s.addXPLocked(amount, fields)
	s.commitLocked(fields)
	return g, nil
}

// VisitResult reports the streak after a visit.
type VisitResult struct {
	Streak    int      `json:"streak"`
	Changed   bool     `json:"changed"`
	NewBadges []string `json:"newBadges,omitempty"`
}

// Visit records activity on the current day. Consecutive days grow the
// streak; a gap restarts it at one.
func (s *Session) Visit() VisitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.state.Progress
	today := s.today()
	if p.LastVisitDate != nil && *p.LastVisitDate == today {
		return VisitResult{Streak: p.StudyStreak}
	}
	if p.LastVisitDate != nil && p.LastVisitDate.AddDays(1) == today {
		p.StudyStreak++
	} else {
		p.StudyStreak = 1
	}
	p.LastVisitDate = &today

	fields := map[string]any{
		localstore.KeyStudyStreak:   p.StudyStreak,
		localstore.KeyLastVisitDate: p.LastVisitDate,
	}
	badges := s.awardBadgesLocked(fields)
	s.commitLocked(fields)
	return VisitResult{Streak: p.StudyStreak, Changed: true, NewBadges: badges}
}
