// Package server exposes the progress service over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/examprep/internal/ai"
	"github.com/example/examprep/internal/billing"
	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/internal/progress"
	"github.com/example/examprep/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Planner generates study plans.
type Planner interface {
	StudyPlan(ctx context.Context, req ai.PlanRequest) (*models.StudyPlan, error)
}

// Coach answers study coach chat messages.
type Coach interface {
	Chat(ctx context.Context, subject models.Subject, history []ai.Message) (string, error)
}

// Deps are the collaborators of the server. Planner, Coach and Billing may
// be nil; their routes then answer 503.
type Deps struct {
	Manager        *progress.Manager
	Billing        *billing.Service
	Planner        Planner
	Coach          Coach
	Clock          clock.Clock
	Logger         *slog.Logger
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the router.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	s := &Server{deps: deps, logger: deps.Logger.With("component", "http")}
	s.engine = s.setupRouter()
	return s
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(recoveryMiddleware(s.logger))
	router.Use(requestTracingMiddleware())
	router.Use(metricsMiddleware())
	router.Use(loggingMiddleware(s.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/webhooks/billing", s.billingWebhook)

	api := router.Group("/api")
	api.Use(userMiddleware())
	{
		api.GET("/progress", s.getProgress)
		api.POST("/visit", s.visit)
		api.POST("/xp", s.awardXP)
		api.POST("/reset", s.reset)
		api.POST("/badges/:badge", s.earnBadge)
		api.GET("/report.xlsx", s.report)

		subjects := api.Group("/subjects/:subject")
		{
			subjects.POST("/answers", s.recordAnswer)
			subjects.GET("/reviews", s.reviewQueue)
			subjects.POST("/reviews/:questionId/ack", s.acknowledgeReview)
			subjects.POST("/practice/start", s.startPractice)
			subjects.POST("/practice/finish", s.finishPractice)
			subjects.GET("/quota", s.quota)
			subjects.POST("/ai-answers", s.useAIAnswer)
			subjects.POST("/chat", s.chat)
			subjects.GET("/quests", s.quests)
			subjects.PUT("/exam-date", s.setExamDate)
			subjects.POST("/plan", s.generatePlan)
			subjects.POST("/flashcards", s.addFlashcardDeck)
			subjects.POST("/flashcards/import", s.importFlashcards)
			subjects.POST("/flashcards/review", s.reviewFlashcards)
		}

		api.GET("/pulse", s.pulseStatus)
		api.POST("/pulse", s.completePulse)

		api.POST("/checkout", s.startCheckout)
		api.GET("/billing/return", s.billingReturn)
	}
	return router
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderUserID, webhookSecretHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}).Handler(s.engine)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.deps.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown failed")
	}
	s.logger.Info("http server stopped")
	return nil
}
