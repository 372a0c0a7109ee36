package progress

import "github.com/example/examprep/internal/localstore"

// Automatic badges.
var (
	streakBadges = []struct {
		days int
		id   string
	}{
		{3, "streak-3"},
		{7, "streak-7"},
		{30, "streak-30"},
	}
	levelBadges = []struct {
		level int
		id    string
	}{
		{5, "level-5"},
		{10, "level-10"},
	}
)

// awardBadgesLocked grants every automatic badge the current state earns.
func (s *Session) awardBadgesLocked(fields map[string]any) []string {
	p := s.state.Progress
	var earned []string
	for _, b := range streakBadges {
		if p.StudyStreak >= b.days && p.AddBadge(b.id) {
			earned = append(earned, b.id)
		}
	}
	for _, b := range levelBadges {
		if p.Level >= b.level && p.AddBadge(b.id) {
			earned = append(earned, b.id)
		}
	}
	if len(earned) > 0 {
		fields[localstore.KeyEarnedBadges] = p.EarnedBadges
		s.logger.Info("badges earned", "badges", earned)
	}
	return earned
}

// EarnBadge grants id once. It reports whether the badge is new.
func (s *Session) EarnBadge(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Progress.AddBadge(id) {
		return false
	}
	s.commitLocked(map[string]any{localstore.KeyEarnedBadges: s.state.Progress.EarnedBadges})
	return true
}
