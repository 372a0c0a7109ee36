package cadence

import (
	"math/rand"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/pkg/models"
)

// QuestsPerDay is the size of a generated quest set.
const QuestsPerDay = 3

// QuestTemplates is the fixed pool daily quests are drawn from.
var QuestTemplates = []models.Quest{
	{Description: "Beantwoord 10 examenvragen", Type: models.QuestAnswer, Target: 10, XP: 30},
	{Description: "Beantwoord 5 vragen goed", Type: models.QuestCorrect, Target: 5, XP: 25},
	{Description: "Herhaal 3 fouten", Type: models.QuestReview, Target: 3, XP: 20},
	{Description: "Oefen 15 flashcards", Type: models.QuestFlashcards, Target: 15, XP: 20},
	{Description: "Rond 1 oefensessie af", Type: models.QuestPractice, Target: 1, XP: 15},
	{Description: "Stel 2 vragen aan de studiecoach", Type: models.QuestChat, Target: 2, XP: 10},
	{Description: "Beantwoord 20 examenvragen", Type: models.QuestAnswer, Target: 20, XP: 50},
}

// placeholderDenylist holds fragments of quest texts from older content
// versions. A stored set containing any of them is regenerated.
var placeholderDenylist = []string{
	"lorem ipsum",
	"todo",
	"placeholder",
	"quest_description",
	"{{",
	"undefined",
}

// HasPlaceholder reports whether any quest text is on the denylist.
func HasPlaceholder(set *models.DailyQuestSet) bool {
	for _, q := range set.Quests {
		text := strings.ToLower(q.Description)
		if strings.TrimSpace(text) == "" {
			return true
		}
		for _, bad := range placeholderDenylist {
			if strings.Contains(text, bad) {
				return true
			}
		}
	}
	return false
}

// NeedsRegeneration reports whether set must be replaced on today.
func NeedsRegeneration(set *models.DailyQuestSet, today civil.Date) bool {
	if set == nil || set.Date != today || len(set.Quests) == 0 {
		return true
	}
	return HasPlaceholder(set)
}

// GenerateQuests draws QuestsPerDay templates without replacement.
func GenerateQuests(rng *rand.Rand, today civil.Date) *models.DailyQuestSet {
	n := QuestsPerDay
	if n > len(QuestTemplates) {
		n = len(QuestTemplates)
	}
	set := &models.DailyQuestSet{Date: today, Quests: make([]models.Quest, 0, n)}
	for _, i := range rng.Perm(len(QuestTemplates))[:n] {
		q := QuestTemplates[i]
		q.Current = 0
		q.Completed = false
		set.Quests = append(set.Quests, q)
	}
	return set
}

// Advance adds amount to every open quest of type t and returns the XP of
// quests that were completed by this call.
func Advance(set *models.DailyQuestSet, t models.QuestType, amount int) int {
	if set == nil || amount <= 0 {
		return 0
	}
	xp := 0
	for i := range set.Quests {
		q := &set.Quests[i]
		if q.Type != t || q.Completed {
			continue
		}
		q.Current += amount
		if q.Current >= q.Target {
			q.Current = q.Target
			q.Completed = true
			xp += q.XP
		}
	}
	return xp
}
