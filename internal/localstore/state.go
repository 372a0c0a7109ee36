package localstore

import (
	"cloud.google.com/go/civil"
	"github.com/example/examprep/internal/cadence"
	"github.com/example/examprep/internal/leveling"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
)

// State is everything kept locally for one user.
type State struct {
	Progress     *models.UserProgress
	AIAnswers    models.DailyCounter
	ChatMessages models.DailyCounter
	// PendingPlan is the tier chosen before leaving for checkout.
	PendingPlan models.Tier
}

// Load reads the full state eagerly. Daily counters from another day are
// replaced by a zero counter for today and written back at once; quest sets
// from another day are dropped so the caller regenerates them. Calling Load
// twice on the same day yields the same state.
func Load(s *Store, today civil.Date) *State {
	def := models.NewUserProgress()

	p := &models.UserProgress{
		Level:            Get(s, KeyLevel, def.Level),
		XP:               Get(s, KeyXP, def.XP),
		StudyStreak:      Get(s, KeyStudyStreak, def.StudyStreak),
		LastVisitDate:    Get[*civil.Date](s, KeyLastVisitDate, nil),
		EarnedBadges:     Get(s, KeyEarnedBadges, def.EarnedBadges),
		SubscriptionTier: Get(s, KeySubscriptionTier, def.SubscriptionTier),
		PrimarySubject:   Get(s, KeyPrimarySubject, def.PrimarySubject),
		GlobalPulseCheck: Get[*models.WeekMarker](s, KeyGlobalPulseCheck, nil),
		PerSubjectData:   make(map[models.Subject]*models.SubjectProgress, len(models.Subjects)),
	}
	p.XP, p.Level = leveling.Normalize(p.XP, p.Level)
	if p.StudyStreak < 0 {
		p.StudyStreak = 0
	}
	if p.EarnedBadges == nil {
		p.EarnedBadges = []string{}
	}
	if !p.SubscriptionTier.Valid() {
		p.SubscriptionTier = models.TierFree
	}

	for _, subject := range models.Subjects {
		sp := Get[*models.SubjectProgress](s, SubjectKey(subject), nil)
		if sp != nil && sp.DailyQuests != nil && cadence.NeedsRegeneration(sp.DailyQuests, today) {
			sp.DailyQuests = nil
		}
		if sp != nil {
			p.PerSubjectData[subject] = sp
		}
	}
	p.PerSubjectData = models.NormalizeSubjects(p.PerSubjectData)

	return &State{
		Progress:     p,
		AIAnswers:    loadCounter(s, KeyAIAnswersUsed, today),
		ChatMessages: loadCounter(s, KeyChatMessagesUsed, today),
		PendingPlan:  Get(s, KeyPendingPlan, models.Tier("")),
	}
}

func loadCounter(s *Store, key string, today civil.Date) models.DailyCounter {
	c := Get(s, key, models.DailyCounter{Date: today})
	c, reset := cadence.ResetIfStale(c, today)
	if c.Count < 0 {
		c.Count = 0
		reset = true
	}
	if reset {
		if err := s.Set(key, c); err != nil {
			s.logger.Warn("failed to persist counter reset", "key", key, "error", err)
		}
	}
	return c
}

// SaveProgress writes every field of p.
func SaveProgress(s *Store, p *models.UserProgress) error {
	fields := map[string]any{
		KeyLevel:            p.Level,
		KeyXP:               p.XP,
		KeyStudyStreak:      p.StudyStreak,
		KeyLastVisitDate:    p.LastVisitDate,
		KeyEarnedBadges:     p.EarnedBadges,
		KeySubscriptionTier: p.SubscriptionTier,
		KeyPrimarySubject:   p.PrimarySubject,
		KeyGlobalPulseCheck: p.GlobalPulseCheck,
	}
	for subject, sp := range p.PerSubjectData {
		fields[SubjectKey(subject)] = sp
	}
	for key, value := range fields {
		if err := s.Set(key, value); err != nil {
			return errors.Wrap(err, "failed to save progress")
		}
	}
	return nil
}

// SaveSubject writes the progress of a single subject.
func SaveSubject(s *Store, subject models.Subject, sp *models.SubjectProgress) error {
	return s.Set(SubjectKey(subject), sp)
}
