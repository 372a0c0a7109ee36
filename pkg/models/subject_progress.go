package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// MasteryScore is a per-skill correct/total counter. Correct never exceeds Total.
type MasteryScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Percentage returns the score as 0-100.
func (m MasteryScore) Percentage() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Correct) / float64(m.Total) * 100
}

// Mistake is a wrongly answered question queued for spaced repetition.
type Mistake struct {
	QuestionID       int         `json:"questionId"`
	UserAnswerText   string      `json:"userAnswerText"`
	AIFeedbackText   string      `json:"aiFeedbackText"`
	RepetitionLevel  int         `json:"repetitionLevel"`
	NextReviewDate   civil.Date  `json:"nextReviewDate"`
	LastReviewedDate *civil.Date `json:"lastReviewedDate,omitempty"`
}

// QuestType names what a daily quest counts.
type QuestType string

const (
	QuestAnswer     QuestType = "answer"
	QuestCorrect    QuestType = "correct"
	QuestReview     QuestType = "review"
	QuestFlashcards QuestType = "flashcards"
	QuestPractice   QuestType = "practice"
	QuestChat       QuestType = "chat"
)

// Quest is one daily objective.
type Quest struct {
	Description string    `json:"description"`
	Type        QuestType `json:"type"`
	Target      int       `json:"target"`
	Current     int       `json:"current"`
	Completed   bool      `json:"completed"`
	XP          int       `json:"xp"`
}

// DailyQuestSet is only valid on Date.
type DailyQuestSet struct {
	Date   civil.Date `json:"date"`
	Quests []Quest    `json:"quests"`
}

// PlanWeek is one week of a generated study plan.
type PlanWeek struct {
	Week  int      `json:"week"`
	Focus string   `json:"focus"`
	Tasks []string `json:"tasks"`
}

// StudyPlan is the generated plan towards an exam date.
type StudyPlan struct {
	CreatedAt time.Time  `json:"createdAt"`
	Summary   string     `json:"summary"`
	Weeks     []PlanWeek `json:"weeks"`
}

// ProgressPoint is one sample of the average mastery time series.
type ProgressPoint struct {
	Date       civil.Date `json:"date"`
	AvgMastery float64    `json:"avgMastery"`
}

// Flashcard is a single front/back card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// FlashcardDeck groups cards under a title.
type FlashcardDeck struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Cards     []Flashcard `json:"cards"`
	CreatedAt time.Time   `json:"createdAt"`
}

// MoodEntry is recorded with each weekly pulse check.
type MoodEntry struct {
	Date civil.Date `json:"date"`
	Mood int        `json:"mood"` // 1-5
	Note string     `json:"note,omitempty"`
}

// SubjectProgress holds everything tracked for one subject.
type SubjectProgress struct {
	MasteryScores       map[string]MasteryScore `json:"masteryScores"`
	AnsweredQuestionIDs []int                   `json:"answeredQuestionIds"`
	Mistakes            []Mistake               `json:"mistakes"`
	StudyPlan           *StudyPlan              `json:"studyPlan"`
	ExamDate            *civil.Date             `json:"examDate,omitempty"`
	DailyQuests         *DailyQuestSet          `json:"dailyQuests"`
	ProgressHistory     []ProgressPoint         `json:"progressHistory"`
	FlashcardDecks      []FlashcardDeck         `json:"flashcardDecks"`
	FreeAnalysisUsed    bool                    `json:"freeAnalysisUsed"`
	LastPulseCheck      *WeekMarker             `json:"lastPulseCheck,omitempty"`
	MoodHistory         []MoodEntry             `json:"moodHistory"`
}

// NewSubjectProgress returns the zero-valued default for a subject.
func NewSubjectProgress() *SubjectProgress {
	return &SubjectProgress{
		MasteryScores:       make(map[string]MasteryScore),
		AnsweredQuestionIDs: []int{},
		Mistakes:            []Mistake{},
		ProgressHistory:     []ProgressPoint{},
		FlashcardDecks:      []FlashcardDeck{},
		MoodHistory:         []MoodEntry{},
	}
}

// AverageMastery averages the skill percentages; 0 without answers.
func (sp *SubjectProgress) AverageMastery() float64 {
	if len(sp.MasteryScores) == 0 {
		return 0
	}
	var sum float64
	for _, score := range sp.MasteryScores {
		sum += score.Percentage()
	}
	return sum / float64(len(sp.MasteryScores))
}

// NormalizeSubjects returns a map with an entry for every known subject.
// Existing entries are kept; nil collections inside them are initialized.
func NormalizeSubjects(in map[Subject]*SubjectProgress) map[Subject]*SubjectProgress {
	out := make(map[Subject]*SubjectProgress, len(Subjects))
	for subject, sp := range in {
		if sp != nil {
			out[subject] = sp
		}
	}
	for _, subject := range Subjects {
		sp, ok := out[subject]
		if !ok {
			out[subject] = NewSubjectProgress()
			continue
		}
		if sp.MasteryScores == nil {
			sp.MasteryScores = make(map[string]MasteryScore)
		}
		if sp.AnsweredQuestionIDs == nil {
			sp.AnsweredQuestionIDs = []int{}
		}
		if sp.Mistakes == nil {
			sp.Mistakes = []Mistake{}
		}
		if sp.ProgressHistory == nil {
			sp.ProgressHistory = []ProgressPoint{}
		}
		if sp.FlashcardDecks == nil {
			sp.FlashcardDecks = []FlashcardDeck{}
		}
		if sp.MoodHistory == nil {
			sp.MoodHistory = []MoodEntry{}
		}
	}
	return out
}
