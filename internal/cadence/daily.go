// Package cadence holds the calendar rules that reset daily counters, daily
// quests and the weekly pulse check. The rules are independent of each other.
package cadence

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/pkg/models"
)

// Unlimited is returned as a limit when the tier has no daily cap.
const Unlimited = -1

// UsageKind names a metered daily feature.
type UsageKind string

const (
	UsageAIAnswers    UsageKind = "ai_answers"
	UsageChatMessages UsageKind = "chat_messages"
)

// FreeLimits are the daily caps of the free tier.
type FreeLimits struct {
	AIAnswers    int
	ChatMessages int
}

// DefaultFreeLimits are used when nothing is configured.
var DefaultFreeLimits = FreeLimits{AIAnswers: 5, ChatMessages: 10}

// Today returns the local calendar date of t.
func Today(t time.Time) civil.Date {
	return civil.DateOf(t)
}

// IsStale reports whether c belongs to another day than today.
func IsStale(c models.DailyCounter, today civil.Date) bool {
	return c.Date != today
}

// ResetIfStale returns a fresh counter for today when c is stale. It is
// idempotent and reports whether a reset happened.
func ResetIfStale(c models.DailyCounter, today civil.Date) (models.DailyCounter, bool) {
	if !IsStale(c, today) {
		return c, false
	}
	return models.DailyCounter{Count: 0, Date: today}, true
}

// Limit returns the daily cap of kind for a tier. Totaal is unlimited
// everywhere; focus is unlimited for its primary subject only.
func (l FreeLimits) Limit(tier models.Tier, kind UsageKind, subject, primary models.Subject) int {
	switch tier {
	case models.TierTotaal:
		return Unlimited
	case models.TierFocus:
		if primary != "" && subject == primary {
			return Unlimited
		}
	}
	switch kind {
	case UsageAIAnswers:
		return l.AIAnswers
	case UsageChatMessages:
		return l.ChatMessages
	}
	return 0
}

// Quota is the derived view of a daily counter against its limit.
type Quota struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// Allowed reports whether one more use fits today.
func (q Quota) Allowed() bool {
	return q.Unlimited || q.Remaining > 0
}

// NewQuota computes the quota of c on today. A stale counter counts as zero.
func NewQuota(c models.DailyCounter, today civil.Date, limit int) Quota {
	c, _ = ResetIfStale(c, today)
	if limit == Unlimited {
		return Quota{Used: c.Count, Limit: Unlimited, Remaining: Unlimited, Unlimited: true}
	}
	remaining := limit - c.Count
	if remaining < 0 {
		remaining = 0
	}
	return Quota{Used: c.Count, Limit: limit, Remaining: remaining}
}
