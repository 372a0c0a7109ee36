package spaced_repetition

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/pkg/models"
)

// Intervals are the review gaps in days, indexed by repetition level.
// Levels past the end reuse the last interval.
var Intervals = []int{1, 3, 7, 14, 30, 60}

// IntervalDays returns the gap for a repetition level.
func IntervalDays(repetitionLevel int) int {
	if repetitionLevel < 0 {
		repetitionLevel = 0
	}
	if repetitionLevel >= len(Intervals) {
		repetitionLevel = len(Intervals) - 1
	}
	return Intervals[repetitionLevel]
}

// ScheduleNextReview returns the calendar date of the next review.
func ScheduleNextReview(today civil.Date, repetitionLevel int) civil.Date {
	return today.AddDays(IntervalDays(repetitionLevel))
}

// IsDue reports whether m should be reviewed on today. Overdue items stay due.
func IsDue(m models.Mistake, today civil.Date) bool {
	return !m.NextReviewDate.After(today)
}

// FindMistake returns the index of questionID in mistakes, or -1.
func FindMistake(mistakes []models.Mistake, questionID int) int {
	for i, m := range mistakes {
		if m.QuestionID == questionID {
			return i
		}
	}
	return -1
}

// RecordMistake adds a level-0 mistake for a question answered wrongly.
// A question that is already tracked is left untouched and false is returned.
func RecordMistake(mistakes []models.Mistake, questionID int, answer, feedback string, today civil.Date) ([]models.Mistake, bool) {
	if FindMistake(mistakes, questionID) >= 0 {
		return mistakes, false
	}
	return append(mistakes, models.Mistake{
		QuestionID:      questionID,
		UserAnswerText:  answer,
		AIFeedbackText:  feedback,
		RepetitionLevel: 0,
		NextReviewDate:  ScheduleNextReview(today, 0),
	}), true
}

// Acknowledge handles a "got it" during review: the level grows by one and
// the next review moves out accordingly. Only a mistake that is due can be
// acknowledged. Mistakes are never deleted so the history stays available
// for analysis.
func Acknowledge(mistakes []models.Mistake, questionID int, today civil.Date) (models.Mistake, bool) {
	i := FindMistake(mistakes, questionID)
	if i < 0 || !IsDue(mistakes[i], today) {
		return models.Mistake{}, false
	}
	m := &mistakes[i]
	m.RepetitionLevel++
	m.NextReviewDate = ScheduleNextReview(today, m.RepetitionLevel)
	reviewed := today
	m.LastReviewedDate = &reviewed
	return *m, true
}

// DueQueue returns the mistakes due on today, most overdue first.
// The result is computed fresh on every call.
func DueQueue(mistakes []models.Mistake, today civil.Date) []models.Mistake {
	var due []models.Mistake
	for _, m := range mistakes {
		if IsDue(m, today) {
			due = append(due, m)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].NextReviewDate != due[j].NextReviewDate {
			return due[i].NextReviewDate.Before(due[j].NextReviewDate)
		}
		// lower level means the question is less settled
		return due[i].RepetitionLevel < due[j].RepetitionLevel
	})
	return due
}
