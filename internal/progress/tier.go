package progress

import (
	"context"

	"github.com/example/examprep/internal/localstore"
	"github.com/example/examprep/internal/remotesync"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
)

// ApplyTier sets the subscription locally and writes it to the remote
// document at once through the billing path.
func (s *Session) ApplyTier(ctx context.Context, u remotesync.TierUpdate) error {
	if err := s.AdoptTier(u); err != nil {
		return err
	}
	if s.sync == nil {
		return nil
	}
	return s.sync.SyncTier(ctx, s.userID, u)
}

// AdoptTier sets the subscription locally only. It is used when the remote
// document already holds the value, e.g. after a billing webhook.
func (s *Session) AdoptTier(u remotesync.TierUpdate) error {
	if !u.Tier.Valid() {
		return errors.Wrapf(ErrInvalidArgument, "tier %q", u.Tier)
	}
	if u.PrimarySubject != "" {
		if err := checkSubject(u.PrimarySubject); err != nil {
			return err
		}
	}

	s.mu.Lock()
	p := s.state.Progress
	p.SubscriptionTier = u.Tier
	fields := map[string]any{localstore.KeySubscriptionTier: p.SubscriptionTier}
	if u.PrimarySubject != "" {
		p.PrimarySubject = u.PrimarySubject
		fields[localstore.KeyPrimarySubject] = p.PrimarySubject
	}
	s.commitLocked(fields)
	s.mu.Unlock()

	s.logger.Info("subscription tier applied", "tier", u.Tier, "primarySubject", u.PrimarySubject)
	return nil
}

// Tier returns the current subscription tier and primary subject.
func (s *Session) Tier() (models.Tier, models.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Progress.SubscriptionTier, s.state.Progress.PrimarySubject
}

// SetPendingPlan remembers the tier chosen before leaving for checkout.
func (s *Session) SetPendingPlan(t models.Tier) error {
	if !t.Valid() {
		return errors.Wrapf(ErrInvalidArgument, "tier %q", t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PendingPlan = t
	return s.store.Set(localstore.KeyPendingPlan, t)
}

// PendingPlan returns the remembered checkout tier, if any.
func (s *Session) PendingPlan() models.Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PendingPlan
}

// ClearPendingPlan forgets the checkout tier.
func (s *Session) ClearPendingPlan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PendingPlan = ""
	return s.store.Remove(localstore.KeyPendingPlan)
}

// Reset wipes all local progress and pushes the zeroed progress fields to
// the remote document. The subscription is not progress and survives. Only
// a failing local store is an error.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	old := s.state.Progress
	if err := s.store.Clear(); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "failed to clear local state")
	}

	fresh := models.NewUserProgress()
	fresh.SubscriptionTier = old.SubscriptionTier
	fresh.PrimarySubject = old.PrimarySubject
	s.state = localstore.Load(s.store, s.today())
	s.state.Progress = fresh
	s.practice = make(map[models.Subject]bool)

	if err := localstore.SaveProgress(s.store, fresh); err != nil {
		s.logger.Warn("failed to persist reset progress", "error", err)
	}
	snap := fresh.Clone()
	changes := map[string]any{
		models.FieldLevel:            snap.Level,
		models.FieldXP:               snap.XP,
		models.FieldStudyStreak:      snap.StudyStreak,
		models.FieldEarnedBadges:     snap.EarnedBadges,
		models.FieldGlobalPulseCheck: snap.GlobalPulseCheck,
		models.FieldPerSubjectData:   snap.PerSubjectData,
	}
	s.mu.Unlock()

	s.prompter.Cancel()
	s.logger.Info("progress reset")
	if s.sync != nil {
		if err := s.sync.ForceSync(ctx, s.userID, changes); err != nil {
			// still pending; the next change retries
			s.logger.Info("reset kept local for now", "error", err)
		}
	}
	return nil
}

// Counters returns today's usage counters.
func (s *Session) Counters() (aiAnswers, chat models.DailyCounter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AIAnswers, s.state.ChatMessages
}
