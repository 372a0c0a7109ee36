package cadence

import (
	"math/rand"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	monday    = civil.Date{Year: 2026, Month: 2, Day: 2}
	wednesday = civil.Date{Year: 2026, Month: 2, Day: 4}
)

func TestResetIfStaleIdempotent(t *testing.T) {
	stale := models.DailyCounter{Count: 5, Date: monday}

	first, reset := ResetIfStale(stale, wednesday)
	assert.True(t, reset)
	assert.Equal(t, models.DailyCounter{Count: 0, Date: wednesday}, first)

	second, reset := ResetIfStale(first, wednesday)
	assert.False(t, reset)
	assert.Equal(t, first, second)

	current := models.DailyCounter{Count: 3, Date: wednesday}
	kept, reset := ResetIfStale(current, wednesday)
	assert.False(t, reset)
	assert.Equal(t, current, kept)
}

func TestLimitByTier(t *testing.T) {
	limits := DefaultFreeLimits
	tests := []struct {
		name    string
		tier    models.Tier
		kind    UsageKind
		subject models.Subject
		primary models.Subject
		want    int
	}{
		{"free ai", models.TierFree, UsageAIAnswers, models.SubjectEngels, "", 5},
		{"free chat", models.TierFree, UsageChatMessages, models.SubjectEngels, "", 10},
		{"totaal", models.TierTotaal, UsageAIAnswers, models.SubjectBiologie, "", Unlimited},
		{"focus primary", models.TierFocus, UsageAIAnswers, models.SubjectWiskundeA, models.SubjectWiskundeA, Unlimited},
		{"focus other subject", models.TierFocus, UsageAIAnswers, models.SubjectEngels, models.SubjectWiskundeA, 5},
		{"focus without primary", models.TierFocus, UsageChatMessages, models.SubjectEngels, "", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, limits.Limit(tt.tier, tt.kind, tt.subject, tt.primary))
		})
	}
}

func TestNewQuota(t *testing.T) {
	q := NewQuota(models.DailyCounter{Count: 5, Date: wednesday}, wednesday, 5)
	assert.Equal(t, 0, q.Remaining)
	assert.False(t, q.Allowed())

	// yesterday's exhausted quota is not carried over
	q = NewQuota(models.DailyCounter{Count: 5, Date: monday}, wednesday, 5)
	assert.Equal(t, 5, q.Remaining)
	assert.True(t, q.Allowed())

	q = NewQuota(models.DailyCounter{Count: 50, Date: wednesday}, wednesday, Unlimited)
	assert.True(t, q.Unlimited)
	assert.True(t, q.Allowed())
}

func TestNeedsRegeneration(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	set := GenerateQuests(rng, wednesday)

	assert.True(t, NeedsRegeneration(nil, wednesday))
	assert.False(t, NeedsRegeneration(set, wednesday))
	assert.True(t, NeedsRegeneration(set, wednesday.AddDays(1)))

	set.Quests[0].Description = "Lorem ipsum dolor"
	assert.True(t, NeedsRegeneration(set, wednesday))
}

func TestGenerateQuestsWithoutReplacement(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		set := GenerateQuests(rand.New(rand.NewSource(seed)), wednesday)
		require.Len(t, set.Quests, QuestsPerDay)
		assert.Equal(t, wednesday, set.Date)

		seen := map[string]bool{}
		for _, q := range set.Quests {
			assert.False(t, seen[q.Description], "duplicate quest %q", q.Description)
			seen[q.Description] = true
			assert.Zero(t, q.Current)
			assert.False(t, q.Completed)
		}
	}
}

func TestAdvance(t *testing.T) {
	set := &models.DailyQuestSet{
		Date: wednesday,
		Quests: []models.Quest{
			{Description: "a", Type: models.QuestAnswer, Target: 2, XP: 30},
			{Description: "b", Type: models.QuestCorrect, Target: 1, XP: 25},
		},
	}

	assert.Equal(t, 0, Advance(set, models.QuestAnswer, 1))
	assert.Equal(t, 30, Advance(set, models.QuestAnswer, 5))
	assert.Equal(t, 2, set.Quests[0].Current)
	assert.True(t, set.Quests[0].Completed)

	// completed quests pay out once
	assert.Equal(t, 0, Advance(set, models.QuestAnswer, 1))
	assert.Equal(t, 0, Advance(nil, models.QuestAnswer, 1))
}

func TestPulseCheckDue(t *testing.T) {
	marker := &models.WeekMarker{Year: 2026, Week: 6}

	assert.False(t, PulseCheckDue(marker, time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)))
	assert.True(t, PulseCheckDue(marker, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)))
	assert.True(t, PulseCheckDue(nil, time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)))
}

func TestWeekOfUsesISOYear(t *testing.T) {
	assert.Equal(t, models.WeekMarker{Year: 2026, Week: 53}, WeekOf(time.Date(2027, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.WeekMarker{Year: 2026, Week: 1}, WeekOf(time.Date(2025, 12, 29, 9, 0, 0, 0, time.UTC)))
}

func TestPulsePrompter(t *testing.T) {
	now := time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC)
	dashboard := ViewState{View: ViewDashboard, Authenticated: true}

	t.Run("fires after delay", func(t *testing.T) {
		m := clock.NewMock(now)
		p := NewPulsePrompter(m, 5*time.Second)
		prompts := 0

		assert.True(t, p.Observe(dashboard, nil, func() { prompts++ }))
		m.Advance(4 * time.Second)
		assert.Equal(t, 0, prompts)
		m.Advance(time.Second)
		assert.Equal(t, 1, prompts)
	})

	t.Run("navigation cancels", func(t *testing.T) {
		m := clock.NewMock(now)
		p := NewPulsePrompter(m, 5*time.Second)
		prompts := 0

		p.Observe(dashboard, nil, func() { prompts++ })
		m.Advance(2 * time.Second)
		assert.False(t, p.Observe(ViewState{View: ViewPractice, Authenticated: true}, nil, func() { prompts++ }))
		m.Advance(time.Minute)
		assert.Equal(t, 0, prompts)
	})

	t.Run("not while a session is active", func(t *testing.T) {
		m := clock.NewMock(now)
		p := NewPulsePrompter(m, 5*time.Second)
		state := dashboard
		state.SessionActive = true
		assert.False(t, p.Observe(state, nil, func() {}))
		assert.False(t, p.Observe(ViewState{View: ViewDashboard}, nil, func() {}))
	})

	t.Run("not when done this week", func(t *testing.T) {
		m := clock.NewMock(now)
		p := NewPulsePrompter(m, 5*time.Second)
		assert.False(t, p.Observe(dashboard, &models.WeekMarker{Year: 2026, Week: 6}, func() {}))
		assert.Equal(t, 0, m.Pending())
	})
}
