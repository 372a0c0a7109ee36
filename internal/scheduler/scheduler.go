package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/examprep/internal/progress"
	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
)

// Default reminder window.
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 21
)

// Notifier delivers review reminders.
type Notifier interface {
	SendReminders(userID string, count int) error
}

// Config tunes the scheduled jobs.
type Config struct {
	StartHour int
	EndHour   int
	// CadenceEvery is how often the daily reset check runs.
	CadenceEvery time.Duration
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	manager   *progress.Manager
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a new scheduler instance. notifier may be nil, in which case
// no reminders are sent.
func New(manager *progress.Manager, notifier Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.StartHour == 0 && cfg.EndHour == 0 {
		cfg.StartHour, cfg.EndHour = DefaultNotificationStartHour, DefaultNotificationEndHour
	}
	if cfg.CadenceEvery <= 0 {
		cfg.CadenceEvery = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.Local),
		manager:   manager,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() error {
	// the daily counters and quests roll over at local midnight; checking
	// often keeps long-lived sessions current
	if _, err := s.scheduler.Every(s.cfg.CadenceEvery).Do(s.refreshCadence); err != nil {
		return errors.Wrap(err, "failed to schedule cadence refresh")
	}
	if s.notifier != nil {
		if _, err := s.scheduler.Every(1).Hour().Do(s.sendReminders); err != nil {
			return errors.Wrap(err, "failed to schedule reminders")
		}
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "cadenceEvery", s.cfg.CadenceEvery, "reminders", s.notifier != nil)
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

func (s *Scheduler) refreshCadence() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if n := s.manager.RefreshCadence(ctx); n > 0 {
		s.logger.Info("daily cadence refreshed", "sessions", n)
	}
}

// inWindow reports whether hour lies in the reminder window.
func (s *Scheduler) inWindow(hour int) bool {
	return hour >= s.cfg.StartHour && hour <= s.cfg.EndHour
}

// sendReminders notifies every live user with reviews due today.
func (s *Scheduler) sendReminders() {
	currentHour := s.now().Hour()
	if !s.inWindow(currentHour) {
		s.logger.Debug("outside notification hours, skipping reminders",
			"hour", currentHour, "start", s.cfg.StartHour, "end", s.cfg.EndHour)
		return
	}

	ctx := context.Background()
	for _, userID := range s.manager.UserIDs() {
		if err := s.RunManualCheck(ctx, userID); err != nil {
			s.logger.Warn("failed to send reminder", "user", userID, "error", err)
		}
	}
}

// RunManualCheck sends a reminder to userID if reviews are due.
func (s *Scheduler) RunManualCheck(ctx context.Context, userID string) error {
	if s.notifier == nil {
		return nil
	}
	session, err := s.manager.Session(ctx, userID)
	if err != nil {
		return err
	}
	if due := session.DueReviews(); due > 0 {
		return s.notifier.SendReminders(userID, due)
	}
	return nil
}
