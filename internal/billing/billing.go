// Package billing handles the hosted checkout round trip and the webhook
// that carries the authoritative subscription tier.
package billing

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/url"
	"strings"

	"github.com/example/examprep/internal/progress"
	"github.com/example/examprep/internal/remotesync"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
)

var (
	ErrUnknownPlan  = errors.New("no checkout configured for plan")
	ErrUnauthorized = errors.New("invalid webhook secret")
	ErrInvalidEvent = errors.New("invalid webhook event")
)

// Outcome of a checkout return.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeSuccess  Outcome = "success"
	OutcomeCanceled Outcome = "canceled"
)

// Config configures the billing service.
type Config struct {
	// CheckoutURLs maps a paid tier to its hosted checkout page.
	CheckoutURLs  map[string]string
	WebhookSecret string
}

// TierSyncer writes billing fields to the document store immediately.
type TierSyncer interface {
	SyncTier(ctx context.Context, userID string, u remotesync.TierUpdate) error
}

// Service ties checkout and webhook events to user sessions.
type Service struct {
	manager  *progress.Manager
	syncer   TierSyncer
	checkout map[models.Tier]string
	secret   string
	logger   *slog.Logger
}

// New returns a billing service.
func New(manager *progress.Manager, syncer TierSyncer, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	checkout := make(map[models.Tier]string, len(cfg.CheckoutURLs))
	for tier, link := range cfg.CheckoutURLs {
		checkout[models.Tier(strings.ToLower(tier))] = link
	}
	return &Service{
		manager:  manager,
		syncer:   syncer,
		checkout: checkout,
		secret:   cfg.WebhookSecret,
		logger:   logger.With("component", "billing"),
	}
}

// StartCheckout remembers the chosen tier locally and returns the hosted
// checkout URL to redirect to.
func (s *Service) StartCheckout(ctx context.Context, userID string, tier models.Tier) (string, error) {
	if !tier.Paid() {
		return "", errors.Wrapf(ErrUnknownPlan, "%q", tier)
	}
	link, ok := s.checkout[tier]
	if !ok || link == "" {
		return "", errors.Wrapf(ErrUnknownPlan, "%q", tier)
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", errors.Wrapf(err, "invalid checkout url for %s", tier)
	}
	q := u.Query()
	q.Set("client_reference_id", userID)
	u.RawQuery = q.Encode()

	session, err := s.manager.Session(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := session.SetPendingPlan(tier); err != nil {
		return "", err
	}
	s.logger.Info("checkout started", "user", userID, "tier", tier)
	return u.String(), nil
}

// ReturnResult is the interpretation of the checkout return parameters.
type ReturnResult struct {
	Outcome        Outcome        `json:"outcome"`
	Tier           models.Tier    `json:"tier,omitempty"`
	PrimarySubject models.Subject `json:"primarySubject,omitempty"`
}

// ParseReturn reads payment=success|canceled and the optional plan and
// subject parameters. A missing or unknown plan falls back to the pending
// marker; when neither names a paid tier the tier stays empty and only the
// webhook can set it.
func ParseReturn(q url.Values, pending models.Tier) ReturnResult {
	switch strings.ToLower(q.Get("payment")) {
	case "success":
		res := ReturnResult{Outcome: OutcomeSuccess}
		if plan := models.Tier(strings.ToLower(q.Get("plan"))); plan.Paid() {
			res.Tier = plan
		} else if pending.Paid() {
			res.Tier = pending
		}
		if subject := models.Subject(q.Get("subject")); subject.Valid() {
			res.PrimarySubject = subject
		}
		return res
	case "canceled", "cancelled":
		return ReturnResult{Outcome: OutcomeCanceled}
	}
	return ReturnResult{Outcome: OutcomeNone}
}

// HandleReturn applies the outcome of a checkout return. A success applies
// the tier through the immediate path; success and cancel both clear the
// pending marker.
func (s *Service) HandleReturn(ctx context.Context, userID string, q url.Values) (ReturnResult, error) {
	session, err := s.manager.Session(ctx, userID)
	if err != nil {
		return ReturnResult{}, err
	}
	res := ParseReturn(q, session.PendingPlan())

	switch res.Outcome {
	case OutcomeNone:
		return res, nil
	case OutcomeCanceled:
		s.logger.Info("checkout canceled", "user", userID)
	case OutcomeSuccess:
		if res.Tier == "" {
			s.logger.Warn("checkout returned without a known plan, waiting for webhook", "user", userID)
			break
		}
		if err := session.ApplyTier(ctx, remotesync.TierUpdate{Tier: res.Tier, PrimarySubject: res.PrimarySubject}); err != nil {
			// the local tier is set; the webhook will write the document
			s.logger.Warn("failed to write tier after checkout", "user", userID, "error", err)
		}
	}

	if err := session.ClearPendingPlan(); err != nil {
		s.logger.Warn("failed to clear pending plan", "user", userID, "error", err)
	}
	return res, nil
}

// WebhookEvent is an authoritative subscription change.
type WebhookEvent struct {
	UserID               string         `json:"userId"`
	Tier                 models.Tier    `json:"tier"`
	PrimarySubject       models.Subject `json:"primarySubject,omitempty"`
	StripeCustomerID     string         `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string         `json:"stripeSubscriptionId,omitempty"`
}

// VerifySecret compares the shared webhook secret in constant time. An
// unconfigured secret rejects everything.
func (s *Service) VerifySecret(provided string) bool {
	if s.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.secret), []byte(provided)) == 1
}

// HandleWebhook writes the event straight to the document store and, when
// the user has a live session, adopts it locally as well.
func (s *Service) HandleWebhook(ctx context.Context, secret string, ev WebhookEvent) error {
	if !s.VerifySecret(secret) {
		return ErrUnauthorized
	}
	if strings.TrimSpace(ev.UserID) == "" || !ev.Tier.Valid() {
		return errors.Wrapf(ErrInvalidEvent, "user %q tier %q", ev.UserID, ev.Tier)
	}
	if ev.PrimarySubject != "" && !ev.PrimarySubject.Valid() {
		return errors.Wrapf(ErrInvalidEvent, "subject %q", ev.PrimarySubject)
	}

	u := remotesync.TierUpdate{
		Tier:                 ev.Tier,
		PrimarySubject:       ev.PrimarySubject,
		StripeCustomerID:     ev.StripeCustomerID,
		StripeSubscriptionID: ev.StripeSubscriptionID,
	}
	if err := s.syncer.SyncTier(ctx, ev.UserID, u); err != nil {
		return errors.Wrap(err, "failed to write webhook tier")
	}
	if session, ok := s.manager.Lookup(ev.UserID); ok {
		if err := session.AdoptTier(u); err != nil {
			s.logger.Warn("failed to adopt webhook tier", "user", ev.UserID, "error", err)
		}
	}
	s.logger.Info("webhook tier applied", "user", ev.UserID, "tier", ev.Tier)
	return nil
}
