package server

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/internal/ai"
	"github.com/example/examprep/internal/billing"
	"github.com/example/examprep/internal/excel"
	"github.com/example/examprep/internal/progress"
	"github.com/example/examprep/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const webhookSecretHeader = "X-Webhook-Secret"

var errUnavailable = errors.New("feature not configured")

func statusFor(err error) int {
	switch {
	case errors.Is(err, progress.ErrUnknownSubject),
		errors.Is(err, progress.ErrInvalidArgument),
		errors.Is(err, billing.ErrInvalidEvent),
		errors.Is(err, billing.ErrUnknownPlan):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, progress.ErrNotDue):
		return http.StatusConflict
	case errors.Is(err, progress.ErrAnalysisUsed):
		return http.StatusPaymentRequired
	case errors.Is(err, progress.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, progress.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}

// session resolves the caller's live session.
func (s *Server) session(c *gin.Context) (*progress.Session, bool) {
	session, err := s.deps.Manager.Session(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return session, true
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.deps.RequestTimeout)
}

func subjectParam(c *gin.Context) models.Subject {
	return models.Subject(c.Param("subject"))
}

func (s *Server) getProgress(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"progress":   session.Snapshot(),
		"pulseDue":   session.PulseDue(),
		"dueReviews": session.DueReviews(),
	})
}

func (s *Server) visit(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Visit())
}

func (s *Server) awardXP(c *gin.Context) {
	var req struct {
		Amount int `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	gain, err := session.AwardXP(req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gain)
}

func (s *Server) reset(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := session.Reset(ctx); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (s *Server) earnBadge(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"badge": c.Param("badge"), "new": session.EarnBadge(c.Param("badge"))})
}

func (s *Server) report(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := excel.ExportProgress(&buf, excel.Report{
		UserID:      session.UserID(),
		GeneratedAt: s.deps.Clock.Now(),
		Progress:    session.Snapshot(),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="voortgang.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) recordAnswer(c *gin.Context) {
	var answer progress.Answer
	if err := c.ShouldBindJSON(&answer); err != nil {
		s.badRequest(c, err)
		return
	}
	answer.Subject = subjectParam(c)
	session, ok := s.session(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	res, err := session.RecordAnswer(ctx, answer)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) reviewQueue(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	queue, err := session.ReviewQueue(subjectParam(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"due": queue})
}

func (s *Server) acknowledgeReview(c *gin.Context) {
	questionID, err := strconv.Atoi(c.Param("questionId"))
	if err != nil {
		s.badRequest(c, err)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	res, err := session.AcknowledgeReview(subjectParam(c), questionID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) startPractice(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	if err := session.StartPractice(subjectParam(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) finishPractice(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	res, err := session.FinishPractice(subjectParam(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) quota(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	subject := subjectParam(c)
	answers, err := session.AIAnswerQuota(subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	chat, err := session.ChatQuota(subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"aiAnswers": answers, "chatMessages": chat})
}

func (s *Server) useAIAnswer(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	q, err := session.UseAIAnswer(subjectParam(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) chat(c *gin.Context) {
	if s.deps.Coach == nil {
		s.fail(c, errUnavailable)
		return
	}
	var req struct {
		Messages []ai.Message `json:"messages" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	subject := subjectParam(c)
	q, gain, err := session.UseChatMessage(subject)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	reply, err := s.deps.Coach.Chat(ctx, subject, req.Messages)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "study coach unavailable", "quota": q})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply, "quota": q, "gain": gain})
}

func (s *Server) quests(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	set, err := session.DailyQuests(subjectParam(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (s *Server) setExamDate(c *gin.Context) {
	var req struct {
		ExamDate civil.Date `json:"examDate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	if err := session.SetExamDate(subjectParam(c), req.ExamDate); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) generatePlan(c *gin.Context) {
	if s.deps.Planner == nil {
		s.fail(c, errUnavailable)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	subject := subjectParam(c)
	allowed, err := session.CanAnalyze(subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !allowed {
		s.fail(c, progress.ErrAnalysisUsed)
		return
	}
	in, err := session.PlanInput(subject)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	plan, err := s.deps.Planner.StudyPlan(ctx, in)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "study plan generation failed"})
		return
	}
	if err := session.SetStudyPlan(subject, plan); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) addFlashcardDeck(c *gin.Context) {
	var req struct {
		Title string             `json:"title"`
		Cards []models.Flashcard `json:"cards"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	deck, err := session.AddFlashcardDeck(subjectParam(c), req.Title, req.Cards)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, deck)
}

func (s *Server) importFlashcards(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	subject := subjectParam(c)
	if !subject.Valid() {
		s.fail(c, errors.Wrapf(progress.ErrUnknownSubject, "%q", subject))
		return
	}

	file, err := header.Open()
	if err != nil {
		s.badRequest(c, err)
		return
	}
	defer file.Close()

	result, err := excel.ImportFlashcards(header.Filename, file, excel.DefaultImportConfig())
	if err != nil {
		s.badRequest(c, err)
		return
	}
	decks := make([]models.FlashcardDeck, 0, len(result.Decks))
	for _, imported := range result.Decks {
		deck, err := session.AddFlashcardDeck(subject, imported.Title, imported.Cards)
		if err != nil {
			s.fail(c, err)
			return
		}
		decks = append(decks, deck)
	}
	c.JSON(http.StatusCreated, gin.H{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
		"decks":    decks,
	})
}

func (s *Server) reviewFlashcards(c *gin.Context) {
	var req struct {
		Cards int `json:"cards"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	gain, err := session.ReviewFlashcards(subjectParam(c), req.Cards)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gain)
}

func (s *Server) pulseStatus(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"due": session.PulseDue()})
}

func (s *Server) completePulse(c *gin.Context) {
	var pc progress.PulseCheck
	if err := c.ShouldBindJSON(&pc); err != nil {
		s.badRequest(c, err)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	gain, err := session.CompletePulseCheck(ctx, pc)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gain)
}

func (s *Server) startCheckout(c *gin.Context) {
	if s.deps.Billing == nil {
		s.fail(c, errUnavailable)
		return
	}
	var req struct {
		Tier models.Tier `json:"tier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	link, err := s.deps.Billing.StartCheckout(c.Request.Context(), c.GetString(ctxUserID), req.Tier)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

func (s *Server) billingReturn(c *gin.Context) {
	if s.deps.Billing == nil {
		s.fail(c, errUnavailable)
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	res, err := s.deps.Billing.HandleReturn(ctx, c.GetString(ctxUserID), c.Request.URL.Query())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) billingWebhook(c *gin.Context) {
	if s.deps.Billing == nil {
		s.fail(c, errUnavailable)
		return
	}
	var ev billing.WebhookEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		s.badRequest(c, err)
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.deps.Billing.HandleWebhook(ctx, c.GetHeader(webhookSecretHeader), ev); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
