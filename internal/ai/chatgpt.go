package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// FallbackFeedback is shown when no feedback could be generated.
const FallbackFeedback = "Bekijk het juiste antwoord nog eens rustig en probeer te zien waar je redenering afweek. Deze vraag komt binnenkort terug in je herhaling."

// ErrEmptyResponse is returned when the model answered with nothing usable.
var ErrEmptyResponse = errors.New("empty model response")

// Config holds the client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	MaxRetries  int
	// RetryBase is the first backoff wait; it doubles per attempt.
	RetryBase time.Duration
	// RequestsPerMinute bounds outgoing calls; zero disables the limit.
	RequestsPerMinute int
}

// ChatGPT is a client for chat completion models.
type ChatGPT struct {
	client  *openai.Client
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a new ChatGPT client
func New(cfg Config, logger *slog.Logger) (*ChatGPT, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 400
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	return &ChatGPT{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.With("component", "ai"),
	}, nil
}

// Message represents a message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MistakeRequest describes a wrong answer.
type MistakeRequest struct {
	Subject       models.Subject
	Question      string
	CorrectAnswer string
	UserAnswer    string
}

// MistakeFeedback explains a wrong answer to the student.
func (c *ChatGPT) MistakeFeedback(ctx context.Context, req MistakeRequest) (string, error) {
	prompt := fmt.Sprintf(
		"Vak: %s\nVraag: %s\nJuiste antwoord: %s\nAntwoord van de leerling: %s\n\n"+
			"Leg in maximaal vier zinnen uit waarom het antwoord van de leerling niet klopt en hoe je de vraag aanpakt.",
		req.Subject, req.Question, req.CorrectAnswer, req.UserAnswer,
	)

	text, err := c.complete(ctx, []Message{
		{Role: openai.ChatMessageRoleSystem, Content: "Je bent een geduldige examentrainer voor het Nederlandse eindexamen. Je antwoordt altijd in het Nederlands."},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, false)
	if err != nil {
		return "", errors.Wrap(err, "failed to generate mistake feedback")
	}
	return text, nil
}

// MistakeFeedbackWithFallback never fails; errors are logged and replaced
// by FallbackFeedback.
func (c *ChatGPT) MistakeFeedbackWithFallback(ctx context.Context, req MistakeRequest) string {
	text, err := c.MistakeFeedback(ctx, req)
	if err != nil {
		c.logger.Warn("feedback generation failed, using fallback", "subject", req.Subject, "error", err)
		return FallbackFeedback
	}
	return text
}

// DefaultPlanWeeks is the plan length when no exam date is known.
const DefaultPlanWeeks = 8

// PlanRequest is the input of a study plan.
type PlanRequest struct {
	Subject models.Subject
	Today   civil.Date
	// ExamDate is zero when the student has not set one.
	ExamDate civil.Date
	// Mastery maps skill names to 0-100 scores.
	Mastery  map[string]float64
	Mistakes int
}

type planResponse struct {
	Summary string            `json:"summary"`
	Weeks   []models.PlanWeek `json:"weeks"`
}

// StudyPlan asks the model for a week-by-week plan in JSON.
func (c *ChatGPT) StudyPlan(ctx context.Context, req PlanRequest) (*models.StudyPlan, error) {
	weeks := DefaultPlanWeeks
	examLine := "Er is nog geen examendatum bekend."
	if !req.ExamDate.IsZero() {
		weeks = req.ExamDate.DaysSince(req.Today) / 7
		if weeks < 1 {
			weeks = 1
		}
		examLine = fmt.Sprintf("Het examen is op %s.", req.ExamDate)
	}

	var skills strings.Builder
	for skill, score := range req.Mastery {
		fmt.Fprintf(&skills, "- %s: %.0f%%\n", skill, score)
	}

	prompt := fmt.Sprintf(
		"Maak een studieplan van %d weken voor het vak %s. %s\n"+
			"Beheersing per onderdeel:\n%s\nOpenstaande fouten: %d\n\n"+
			`Antwoord als JSON: {"summary": string, "weeks": [{"week": int, "focus": string, "tasks": [string]}]}`,
		weeks, req.Subject, examLine, skills.String(), req.Mistakes,
	)

	text, err := c.complete(ctx, []Message{
		{Role: openai.ChatMessageRoleSystem, Content: "Je bent een studiecoach. Je antwoordt uitsluitend met geldige JSON."},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate study plan")
	}

	var parsed planResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, errors.Wrap(err, "malformed study plan")
	}
	if len(parsed.Weeks) == 0 {
		return nil, errors.Wrap(ErrEmptyResponse, "study plan has no weeks")
	}
	return &models.StudyPlan{
		CreatedAt: time.Now().UTC(),
		Summary:   parsed.Summary,
		Weeks:     parsed.Weeks,
	}, nil
}

// Chat continues a study coach conversation.
func (c *ChatGPT) Chat(ctx context.Context, subject models.Subject, history []Message) (string, error) {
	messages := append([]Message{{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf("Je bent een studiecoach voor het examenvak %s. Houd antwoorden kort en concreet.", subject),
	}}, history...)
	text, err := c.complete(ctx, messages, false)
	if err != nil {
		return "", errors.Wrap(err, "failed to complete chat")
	}
	return text, nil
}

func (c *ChatGPT) complete(ctx context.Context, messages []Message, jsonOutput bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}
	if jsonOutput {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var result string
	err := c.doWithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		text := strings.TrimSpace(resp.Choices[0].Message.Content)
		if text == "" {
			return ErrEmptyResponse
		}
		result = text
		return nil
	})
	return result, err
}

// doWithRetry executes a function with exponential backoff retry.
func (c *ChatGPT) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < c.cfg.MaxRetries-1 {
			wait := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.RetryBase
			c.logger.Debug("model request failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
