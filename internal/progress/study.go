package progress

import (
	"context"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/internal/ai"
	"github.com/example/examprep/internal/cadence"
	"github.com/example/examprep/internal/spaced_repetition"
	"github.com/example/examprep/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Answer is a submitted exam question answer.
type Answer struct {
	Subject       models.Subject `json:"subject"`
	QuestionID    int            `json:"questionId"`
	Skill         string         `json:"skill"`
	Correct       bool           `json:"correct"`
	Question      string         `json:"question"`
	CorrectAnswer string         `json:"correctAnswer"`
	UserAnswer    string         `json:"userAnswer"`
}

// AnswerResult is what an answer changed.
type AnswerResult struct {
	Gain
	Mastery models.MasteryScore `json:"mastery"`
	Mistake *models.Mistake     `json:"mistake,omitempty"`
}

// RecordAnswer updates mastery, the answered list, quests and XP. A wrong
// answer to a question that is not yet a mistake becomes one; its feedback
// is generated outside the session lock and only while the AI quota allows.
func (s *Session) RecordAnswer(ctx context.Context, a Answer) (AnswerResult, error) {
	if err := checkSubject(a.Subject); err != nil {
		return AnswerResult{}, err
	}
	skill := strings.TrimSpace(a.Skill)
	if skill == "" {
		skill = "algemeen"
	}

	s.mu.Lock()
	p := s.state.Progress
	sp := p.Subject(a.Subject)

	score := sp.MasteryScores[skill]
	score.Total++
	if a.Correct {
		score.Correct++
	}
	sp.MasteryScores[skill] = score
	sp.AnsweredQuestionIDs = append(sp.AnsweredQuestionIDs, a.QuestionID)

	fields := map[string]any{}
	xp := XPWrongAnswer
	if a.Correct {
		xp = XPCorrectAnswer
	}
	gain := s.addXPLocked(xp, fields)
	gain.add(s.advanceQuestLocked(a.Subject, models.QuestAnswer, 1, fields))
	if a.Correct {
		gain.add(s.advanceQuestLocked(a.Subject, models.QuestCorrect, 1, fields))
	}

	needsMistake := !a.Correct && spaced_repetition.FindMistake(sp.Mistakes, a.QuestionID) < 0
	useAI := false
	if needsMistake && s.feedback != nil {
		_, err := s.useLocked(cadence.UsageAIAnswers, a.Subject)
		useAI = err == nil
	}
	s.commitLocked(fields, a.Subject)
	s.mu.Unlock()

	result := AnswerResult{Gain: gain, Mastery: score}
	if !needsMistake {
		return result, nil
	}

	feedback := ai.FallbackFeedback
	if useAI {
		text, err := s.feedback.MistakeFeedback(ctx, ai.MistakeRequest{
			Subject:       a.Subject,
			Question:      a.Question,
			CorrectAnswer: a.CorrectAnswer,
			UserAnswer:    a.UserAnswer,
		})
		if err != nil {
			s.logger.Warn("feedback generation failed, using fallback", "question", a.QuestionID, "error", err)
		} else {
			feedback = text
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sp = s.state.Progress.Subject(a.Subject)
	var added bool
	sp.Mistakes, added = spaced_repetition.RecordMistake(sp.Mistakes, a.QuestionID, a.UserAnswer, feedback, s.today())
	if added {
		m := sp.Mistakes[len(sp.Mistakes)-1]
		result.Mistake = &m
		s.commitLocked(nil, a.Subject)
	}
	return result, nil
}

// ReviewQueue returns the mistakes of subject due today, most overdue first.
func (s *Session) ReviewQueue(subject models.Subject) ([]models.Mistake, error) {
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return spaced_repetition.DueQueue(s.state.Progress.Subject(subject).Mistakes, s.today()), nil
}

// ReviewResult is the outcome of acknowledging a review item.
type ReviewResult struct {
	Gain
	Mistake models.Mistake `json:"mistake"`
}

// AcknowledgeReview handles "got it" on a due mistake: it moves to the next
// repetition level and out of today's queue. The record is kept.
func (s *Session) AcknowledgeReview(subject models.Subject, questionID int) (ReviewResult, error) {
	if err := checkSubject(subject); err != nil {
		return ReviewResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.state.Progress.Subject(subject)
	today := s.today()
	i := spaced_repetition.FindMistake(sp.Mistakes, questionID)
	if i < 0 {
		return ReviewResult{}, errors.Wrapf(ErrNotFound, "mistake %d", questionID)
	}
	if !spaced_repetition.IsDue(sp.Mistakes[i], today) {
		return ReviewResult{}, errors.Wrapf(ErrNotDue, "mistake %d until %s", questionID, sp.Mistakes[i].NextReviewDate)
	}
	m, _ := spaced_repetition.Acknowledge(sp.Mistakes, questionID, today)

	fields := map[string]any{}
	gain := s.addXPLocked(XPReview, fields)
	gain.add(s.advanceQuestLocked(subject, models.QuestReview, 1, fields))
	s.commitLocked(fields, subject)
	return ReviewResult{Gain: gain, Mistake: m}, nil
}

// StartPractice marks a practice session as running, which holds back the
// weekly check-in prompt.
func (s *Session) StartPractice(subject models.Subject) error {
	if err := checkSubject(subject); err != nil {
		return err
	}
	s.mu.Lock()
	s.practice[subject] = true
	s.mu.Unlock()
	s.prompter.Cancel()
	return nil
}

// PracticeResult is recorded when a practice session ends.
type PracticeResult struct {
	Gain
	Point models.ProgressPoint `json:"point"`
}

// FinishPractice ends a practice session and samples the average mastery
// into the progress history, one point per day.
func (s *Session) FinishPractice(subject models.Subject) (PracticeResult, error) {
	if err := checkSubject(subject); err != nil {
		return PracticeResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.practice, subject)
	sp := s.state.Progress.Subject(subject)
	point := models.ProgressPoint{Date: s.today(), AvgMastery: sp.AverageMastery()}
	if n := len(sp.ProgressHistory); n > 0 && sp.ProgressHistory[n-1].Date == point.Date {
		sp.ProgressHistory[n-1] = point
	} else {
		sp.ProgressHistory = append(sp.ProgressHistory, point)
	}

	fields := map[string]any{}
	gain := s.addXPLocked(XPPractice, fields)
	gain.add(s.advanceQuestLocked(subject, models.QuestPractice, 1, fields))
	s.commitLocked(fields, subject)
	return PracticeResult{Gain: gain, Point: point}, nil
}

// PracticeActive reports whether any practice session is running.
func (s *Session) PracticeActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.practice) > 0
}

// SetExamDate stores the exam date of subject.
func (s *Session) SetExamDate(subject models.Subject, date civil.Date) error {
	if err := checkSubject(subject); err != nil {
		return err
	}
	if !date.IsValid() {
		return errors.Wrap(ErrInvalidArgument, "invalid exam date")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Progress.Subject(subject).ExamDate = &date
	s.commitLocked(nil, subject)
	return nil
}

// CanAnalyze reports whether a study plan may be generated: paid tiers
// always, the free tier once per subject.
func (s *Session) CanAnalyze(subject models.Subject) (bool, error) {
	if err := checkSubject(subject); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.state.Progress
	return p.SubscriptionTier.Paid() || !p.Subject(subject).FreeAnalysisUsed, nil
}

// SetStudyPlan stores a generated plan. On the free tier it also uses up
// the free analysis.
func (s *Session) SetStudyPlan(subject models.Subject, plan *models.StudyPlan) error {
	if err := checkSubject(subject); err != nil {
		return err
	}
	if plan == nil {
		return errors.Wrap(ErrInvalidArgument, "empty plan")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.state.Progress
	sp := p.Subject(subject)
	if !p.SubscriptionTier.Paid() {
		if sp.FreeAnalysisUsed {
			return ErrAnalysisUsed
		}
		sp.FreeAnalysisUsed = true
	}
	sp.StudyPlan = plan
	s.commitLocked(nil, subject)
	return nil
}

// MarkFreeAnalysisUsed records that the free analysis of subject was spent.
// It reports false when it already was.
func (s *Session) MarkFreeAnalysisUsed(subject models.Subject) (bool, error) {
	if err := checkSubject(subject); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.state.Progress.Subject(subject)
	if sp.FreeAnalysisUsed {
		return false, nil
	}
	sp.FreeAnalysisUsed = true
	s.commitLocked(nil, subject)
	return true, nil
}

// PlanInput collects what the plan generator needs for subject. Without an
// exam date the request leaves ExamDate zero.
func (s *Session) PlanInput(subject models.Subject) (ai.PlanRequest, error) {
	if err := checkSubject(subject); err != nil {
		return ai.PlanRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.state.Progress.Subject(subject)
	mastery := make(map[string]float64, len(sp.MasteryScores))
	for skill, score := range sp.MasteryScores {
		mastery[skill] = score.Percentage()
	}
	req := ai.PlanRequest{
		Subject:  subject,
		Today:    s.today(),
		Mastery:  mastery,
		Mistakes: len(spaced_repetition.DueQueue(sp.Mistakes, s.today())),
	}
	if sp.ExamDate != nil {
		req.ExamDate = *sp.ExamDate
	}
	return req, nil
}

// AddFlashcardDeck stores a new deck for subject.
func (s *Session) AddFlashcardDeck(subject models.Subject, title string, cards []models.Flashcard) (models.FlashcardDeck, error) {
	if err := checkSubject(subject); err != nil {
		return models.FlashcardDeck{}, err
	}
	if strings.TrimSpace(title) == "" || len(cards) == 0 {
		return models.FlashcardDeck{}, errors.Wrap(ErrInvalidArgument, "deck needs a title and cards")
	}
	deck := models.FlashcardDeck{
		ID:        uuid.NewString(),
		Title:     title,
		Cards:     append([]models.Flashcard(nil), cards...),
		CreatedAt: s.clock.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.state.Progress.Subject(subject)
	sp.FlashcardDecks = append(sp.FlashcardDecks, deck)
	s.commitLocked(nil, subject)
	return deck, nil
}

// ReviewFlashcards counts studied cards towards the flashcard quests.
func (s *Session) ReviewFlashcards(subject models.Subject, cards int) (Gain, error) {
	if err := checkSubject(subject); err != nil {
		return Gain{}, err
	}
	if cards <= 0 {
		return Gain{}, errors.Wrap(ErrInvalidArgument, "card count must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := map[string]any{}
	g := s.advanceQuestLocked(subject, models.QuestFlashcards, cards, fields)
	s.commitLocked(fields, subject)
	return g, nil
}

// DueReviews counts the mistakes due today across all subjects.
func (s *Session) DueReviews() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := s.today()
	due := 0
	for _, sp := range s.state.Progress.PerSubjectData {
		due += len(spaced_repetition.DueQueue(sp.Mistakes, today))
	}
	return due
}
