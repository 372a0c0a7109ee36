package models

import (
	"cloud.google.com/go/civil"
	"github.com/mohae/deepcopy"
)

// WeekMarker is an ISO-8601 (year, week) pair.
type WeekMarker struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

// DailyCounter counts usage on a single day; it is only valid on Date.
type DailyCounter struct {
	Count int        `json:"count"`
	Date  civil.Date `json:"date"`
}

// UserProgress is the root aggregate for one user identity.
type UserProgress struct {
	Level            int                          `json:"level"`
	XP               int                          `json:"xp"`
	StudyStreak      int                          `json:"studyStreak"`
	LastVisitDate    *civil.Date                  `json:"lastVisitDate,omitempty"`
	EarnedBadges     []string                     `json:"earnedBadges"`
	SubscriptionTier Tier                         `json:"subscriptionTier"`
	PrimarySubject   Subject                      `json:"primarySubject"`
	GlobalPulseCheck *WeekMarker                  `json:"globalPulseCheck"`
	PerSubjectData   map[Subject]*SubjectProgress `json:"perSubjectData"`
}

// NewUserProgress returns the defaults of a brand-new user.
func NewUserProgress() *UserProgress {
	return &UserProgress{
		Level:            1,
		EarnedBadges:     []string{},
		SubscriptionTier: TierFree,
		PerSubjectData:   NormalizeSubjects(nil),
	}
}

// Subject returns the progress of s, creating the default entry if missing.
func (p *UserProgress) Subject(s Subject) *SubjectProgress {
	if p.PerSubjectData == nil {
		p.PerSubjectData = NormalizeSubjects(nil)
	}
	sp, ok := p.PerSubjectData[s]
	if !ok || sp == nil {
		sp = NewSubjectProgress()
		p.PerSubjectData[s] = sp
	}
	return sp
}

// HasBadge reports whether id was earned.
func (p *UserProgress) HasBadge(id string) bool {
	for _, b := range p.EarnedBadges {
		if b == id {
			return true
		}
	}
	return false
}

// AddBadge adds id once. It returns false when the badge was already earned.
func (p *UserProgress) AddBadge(id string) bool {
	if p.HasBadge(id) {
		return false
	}
	p.EarnedBadges = append(p.EarnedBadges, id)
	return true
}

// Clone returns a deep copy safe to hand out of a locked section.
func (p *UserProgress) Clone() *UserProgress {
	return deepcopy.Copy(p).(*UserProgress)
}
