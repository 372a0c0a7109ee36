package progress

import (
	"github.com/example/examprep/internal/cadence"
	"github.com/example/examprep/internal/localstore"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
)

func (s *Session) counterLocked(kind cadence.UsageKind) (*models.DailyCounter, string) {
	if kind == cadence.UsageChatMessages {
		return &s.state.ChatMessages, localstore.KeyChatMessagesUsed
	}
	return &s.state.AIAnswers, localstore.KeyAIAnswersUsed
}

func (s *Session) quotaLocked(kind cadence.UsageKind, subject models.Subject) cadence.Quota {
	p := s.state.Progress
	c, _ := s.counterLocked(kind)
	limit := s.limits.Limit(p.SubscriptionTier, kind, subject, p.PrimarySubject)
	return cadence.NewQuota(*c, s.today(), limit)
}

// useLocked consumes one unit of kind for subject.
func (s *Session) useLocked(kind cadence.UsageKind, subject models.Subject) (cadence.Quota, error) {
	q := s.quotaLocked(kind, subject)
	if !q.Allowed() {
		return q, errors.Wrapf(ErrQuotaExceeded, "%s", kind)
	}
	c, key := s.counterLocked(kind)
	*c, _ = cadence.ResetIfStale(*c, s.today())
	c.Count++
	if err := s.store.Set(key, *c); err != nil {
		s.logger.Warn("local write failed", "key", key, "error", err)
	}
	return s.quotaLocked(kind, subject), nil
}

// AIAnswerQuota returns today's AI answer allowance for subject.
func (s *Session) AIAnswerQuota(subject models.Subject) (cadence.Quota, error) {
	if err := checkSubject(subject); err != nil {
		return cadence.Quota{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quotaLocked(cadence.UsageAIAnswers, subject), nil
}

// UseAIAnswer consumes one AI answer or fails with ErrQuotaExceeded.
func (s *Session) UseAIAnswer(subject models.Subject) (cadence.Quota, error) {
	if err := checkSubject(subject); err != nil {
		return cadence.Quota{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useLocked(cadence.UsageAIAnswers, subject)
}

// ChatQuota returns today's study coach allowance for subject.
func (s *Session) ChatQuota(subject models.Subject) (cadence.Quota, error) {
	if err := checkSubject(subject); err != nil {
		return cadence.Quota{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quotaLocked(cadence.UsageChatMessages, subject), nil
}

// UseChatMessage consumes one chat message and advances chat quests.
func (s *Session) UseChatMessage(subject models.Subject) (cadence.Quota, Gain, error) {
	if err := checkSubject(subject); err != nil {
		return cadence.Quota{}, Gain{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.useLocked(cadence.UsageChatMessages, subject)
	if err != nil {
		return q, Gain{}, err
	}
	fields := map[string]any{}
	g := s.advanceQuestLocked(subject, models.QuestChat, 1, fields)
	s.commitLocked(fields, subject)
	return q, g, nil
}

// RefreshCadence applies the daily reset rules: stale counters are zeroed
// and stale quest sets regenerated. Each rule runs on its own. It reports
// whether anything changed.
func (s *Session) RefreshCadence() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.today()
	changed := false
	for _, kind := range []cadence.UsageKind{cadence.UsageAIAnswers, cadence.UsageChatMessages} {
		c, key := s.counterLocked(kind)
		fresh, reset := cadence.ResetIfStale(*c, today)
		if !reset {
			continue
		}
		*c = fresh
		changed = true
		if err := s.store.Set(key, fresh); err != nil {
			s.logger.Warn("local write failed", "key", key, "error", err)
		}
	}

	var regenerated []models.Subject
	for subject, sp := range s.state.Progress.PerSubjectData {
		if sp.DailyQuests != nil && cadence.NeedsRegeneration(sp.DailyQuests, today) {
			sp.DailyQuests = cadence.GenerateQuests(s.rng, today)
			regenerated = append(regenerated, subject)
		}
	}
	if len(regenerated) > 0 {
		changed = true
		s.commitLocked(nil, regenerated...)
	}
	return changed
}

// ensureQuestsLocked regenerates the quest set of subject when needed.
func (s *Session) ensureQuestsLocked(subject models.Subject) bool {
	sp := s.state.Progress.Subject(subject)
	today := s.today()
	if !cadence.NeedsRegeneration(sp.DailyQuests, today) {
		return false
	}
	sp.DailyQuests = cadence.GenerateQuests(s.rng, today)
	return true
}

// advanceQuestLocked moves quests of type t forward and awards the XP of
// newly completed ones.
func (s *Session) advanceQuestLocked(subject models.Subject, t models.QuestType, amount int, fields map[string]any) Gain {
	s.ensureQuestsLocked(subject)
	xp := cadence.Advance(s.state.Progress.Subject(subject).DailyQuests, t, amount)
	if xp == 0 {
		p := s.state.Progress
		return Gain{XP: p.XP, Level: p.Level}
	}
	return s.addXPLocked(xp, fields)
}

// DailyQuests returns today's quests for subject, generating them if needed.
func (s *Session) DailyQuests(subject models.Subject) (models.DailyQuestSet, error) {
	if err := checkSubject(subject); err != nil {
		return models.DailyQuestSet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensureQuestsLocked(subject) {
		s.commitLocked(nil, subject)
	}
	set := s.state.Progress.Subject(subject).DailyQuests
	out := models.DailyQuestSet{Date: set.Date, Quests: append([]models.Quest(nil), set.Quests...)}
	return out, nil
}
