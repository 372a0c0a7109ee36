package remotesync

import (
	"context"
	"log/slog"

	"github.com/example/examprep/internal/leveling"
	"github.com/example/examprep/internal/remote"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
)

// Loader performs the one-time pull of a user document at login.
type Loader struct {
	store  remote.DocumentStore
	logger *slog.Logger
}

// NewLoader returns a loader reading from store.
func NewLoader(store remote.DocumentStore, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, logger: logger.With("component", "loader")}
}

// Load makes sure the user document exists and fetches it once. A missing
// document is created with zero-valued defaults.
func (l *Loader) Load(ctx context.Context, userID string) (*models.Document, error) {
	doc, err := l.store.GetDocument(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch user document")
	}
	if doc != nil {
		return doc, nil
	}

	defaults := models.DefaultDocumentFields()
	if err := l.store.SetDocument(ctx, userID, defaults); err != nil {
		return nil, errors.Wrap(err, "failed to create user document")
	}
	RemoteLoadsTotal.WithLabelValues("created").Inc()
	l.logger.Info("created user document", "user", userID)
	return defaultDocument(), nil
}

func defaultDocument() *models.Document {
	level, xp, streak := 1, 0, 0
	tier := models.TierFree
	return &models.Document{
		Level:            &level,
		XP:               &xp,
		StudyStreak:      &streak,
		EarnedBadges:     []string{},
		SubscriptionTier: &tier,
	}
}

// LoadAndMerge pulls the remote document and merges it into local. Remote
// failures degrade to local-only state and are only logged. It reports
// whether remote values were applied.
func (l *Loader) LoadAndMerge(ctx context.Context, userID string, local *models.UserProgress) bool {
	doc, err := l.Load(ctx, userID)
	if err != nil {
		RemoteLoadsTotal.WithLabelValues("failed").Inc()
		if remote.IsPermissionDenied(err) {
			l.logger.Info("remote document not readable, continuing with local state", "user", userID, "error", err)
		} else {
			l.logger.Warn("remote load failed, continuing with local state", "user", userID, "error", err)
		}
		return false
	}
	if IsNewUser(doc) {
		RemoteLoadsTotal.WithLabelValues("new_user").Inc()
		// a subscription bought before any progress still counts
		return mergeBilling(local, doc)
	}
	Merge(local, doc)
	RemoteLoadsTotal.WithLabelValues("merged").Inc()
	return true
}

// IsNewUser reports whether doc holds nothing worth merging.
func IsNewUser(doc *models.Document) bool {
	if doc == nil {
		return true
	}
	level := 1
	if doc.Level != nil {
		level = *doc.Level
	}
	xp := 0
	if doc.XP != nil {
		xp = *doc.XP
	}
	return level == 1 && xp == 0 && len(doc.PerSubjectData) == 0
}

// Merge copies remote fields over local ones. Remote wins for every field it
// carries, except that an empty subject map never erases local progress.
func Merge(local *models.UserProgress, doc *models.Document) {
	if doc == nil {
		return
	}
	if doc.Level != nil {
		local.Level = *doc.Level
	}
	if doc.XP != nil {
		local.XP = *doc.XP
	}
	local.XP, local.Level = leveling.Normalize(local.XP, local.Level)
	if doc.StudyStreak != nil && *doc.StudyStreak >= 0 {
		local.StudyStreak = *doc.StudyStreak
	}
	if doc.EarnedBadges != nil {
		local.EarnedBadges = append([]string{}, doc.EarnedBadges...)
	}
	if len(doc.PerSubjectData) > 0 {
		local.PerSubjectData = models.NormalizeSubjects(doc.PerSubjectData)
	}
	if doc.GlobalPulseCheck != nil {
		marker := *doc.GlobalPulseCheck
		local.GlobalPulseCheck = &marker
	}
	mergeBilling(local, doc)
}

// mergeBilling copies the subscription fields and reports whether local
// changed. A missing tier is derived from the legacy premium flag.
func mergeBilling(local *models.UserProgress, doc *models.Document) bool {
	tier, primary := local.SubscriptionTier, local.PrimarySubject
	switch {
	case doc.SubscriptionTier != nil && doc.SubscriptionTier.Valid():
		local.SubscriptionTier = *doc.SubscriptionTier
	case doc.IsPremium != nil:
		if *doc.IsPremium {
			local.SubscriptionTier = models.TierTotaal
		} else {
			local.SubscriptionTier = models.TierFree
		}
	}
	if doc.PrimarySubject != nil {
		local.PrimarySubject = *doc.PrimarySubject
	}
	return tier != local.SubscriptionTier || primary != local.PrimarySubject
}
