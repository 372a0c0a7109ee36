package localstore

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/internal/database"
	"github.com/example/examprep/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	yesterday = civil.Date{Year: 2026, Month: 2, Day: 3}
	today     = civil.Date{Year: 2026, Month: 2, Day: 4}
)

func newTestStore(t *testing.T) (*Store, *database.KVRepository) {
	t.Helper()
	db, err := database.Connect(database.Config{Type: database.TypeSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.NewKVRepository(db)
	return New(repo, "user-1", nil), repo
}

func TestGetFallsBackToDefault(t *testing.T) {
	s, repo := newTestStore(t)

	assert.Equal(t, 7, Get(s, "missing", 7))

	require.NoError(t, repo.Set("user-1", "broken", "{not json"))
	assert.Equal(t, []string{"x"}, Get(s, "broken", []string{"x"}))

	require.NoError(t, s.Set("level", 4))
	assert.Equal(t, 4, Get(s, "level", 1))
}

func TestLoadDefaults(t *testing.T) {
	s, _ := newTestStore(t)

	state := Load(s, today)

	p := state.Progress
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0, p.XP)
	assert.Equal(t, models.TierFree, p.SubscriptionTier)
	assert.Nil(t, p.LastVisitDate)
	assert.Len(t, p.PerSubjectData, len(models.Subjects))
	assert.Equal(t, models.DailyCounter{Count: 0, Date: today}, state.AIAnswers)
}

func TestLoadResetsStaleCounterOnce(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Set(KeyAIAnswersUsed, models.DailyCounter{Count: 5, Date: yesterday}))
	require.NoError(t, s.Set(KeyChatMessagesUsed, models.DailyCounter{Count: 2, Date: today}))

	first := Load(s, today)
	assert.Equal(t, models.DailyCounter{Count: 0, Date: today}, first.AIAnswers)
	assert.Equal(t, models.DailyCounter{Count: 2, Date: today}, first.ChatMessages)

	// the reset was persisted at load time
	stored := Get(s, KeyAIAnswersUsed, models.DailyCounter{})
	assert.Equal(t, models.DailyCounter{Count: 0, Date: today}, stored)

	second := Load(s, today)
	assert.Equal(t, first.AIAnswers, second.AIAnswers)
	assert.Equal(t, first.ChatMessages, second.ChatMessages)
}

func TestLoadDropsStaleQuests(t *testing.T) {
	s, _ := newTestStore(t)

	stale := models.NewSubjectProgress()
	stale.DailyQuests = &models.DailyQuestSet{Date: yesterday, Quests: []models.Quest{{Description: "Beantwoord 10 examenvragen", Type: models.QuestAnswer, Target: 10}}}
	current := models.NewSubjectProgress()
	current.DailyQuests = &models.DailyQuestSet{Date: today, Quests: []models.Quest{{Description: "Herhaal 3 fouten", Type: models.QuestReview, Target: 3}}}
	require.NoError(t, SaveSubject(s, models.SubjectEngels, stale))
	require.NoError(t, SaveSubject(s, models.SubjectBiologie, current))

	state := Load(s, today)

	assert.Nil(t, state.Progress.Subject(models.SubjectEngels).DailyQuests)
	require.NotNil(t, state.Progress.Subject(models.SubjectBiologie).DailyQuests)
	assert.Equal(t, today, state.Progress.Subject(models.SubjectBiologie).DailyQuests.Date)
}

func TestSaveProgressRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	p := models.NewUserProgress()
	p.Level, p.XP, p.StudyStreak = 3, 40, 6
	visit := today
	p.LastVisitDate = &visit
	p.AddBadge("streak-3")
	p.GlobalPulseCheck = &models.WeekMarker{Year: 2026, Week: 6}
	p.Subject(models.SubjectWiskundeA).MasteryScores["kansrekening"] = models.MasteryScore{Correct: 2, Total: 3}
	require.NoError(t, SaveProgress(s, p))

	loaded := Load(s, today).Progress
	assert.Equal(t, 3, loaded.Level)
	assert.Equal(t, 40, loaded.XP)
	assert.Equal(t, 6, loaded.StudyStreak)
	require.NotNil(t, loaded.LastVisitDate)
	assert.Equal(t, today, *loaded.LastVisitDate)
	assert.Equal(t, []string{"streak-3"}, loaded.EarnedBadges)
	assert.Equal(t, p.GlobalPulseCheck, loaded.GlobalPulseCheck)
	assert.Equal(t, models.MasteryScore{Correct: 2, Total: 3}, loaded.Subject(models.SubjectWiskundeA).MasteryScores["kansrekening"])
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Set(KeyLevel, 9))
	require.NoError(t, s.Clear())
	assert.Equal(t, 1, Load(s, today).Progress.Level)
}
