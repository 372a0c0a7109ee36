// Package remotesync pushes local progress changes to the document store and
// pulls the remote document once at login.
package remotesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/internal/remote"
	"github.com/example/examprep/pkg/models"
	"github.com/mohae/deepcopy"
)

// Defaults for Config.
const (
	DefaultDebounce     = 2 * time.Second
	DefaultMinInterval  = 5 * time.Second
	DefaultWriteTimeout = 15 * time.Second
)

const (
	pathDebounced = "debounced"
	pathForced    = "forced"
	pathTier      = "tier"
)

// Config tunes the coordinator.
type Config struct {
	Debounce     time.Duration
	MinInterval  time.Duration
	WriteTimeout time.Duration
}

// Coordinator batches field changes per user and writes them to the store
// after a quiet period, never more often than MinInterval per user. Billing
// fields never travel through the batches; they use SyncTier.
type Coordinator struct {
	store  remote.DocumentStore
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config

	mu      sync.Mutex
	batches map[string]*batch
}

type batch struct {
	fields map[string]any
	// seqs holds the change sequence of each pending field so a write only
	// clears values it actually carried.
	seqs      map[string]uint64
	seq       uint64
	timer     clock.Timer
	gen       uint64
	inflight  int
	lastWrite time.Time
}

// NewCoordinator returns a coordinator writing to store.
func NewCoordinator(store remote.DocumentStore, c clock.Clock, logger *slog.Logger, cfg Config) *Coordinator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		clock:   c,
		logger:  logger.With("component", "remotesync"),
		cfg:     cfg,
		batches: make(map[string]*batch),
	}
}

func (c *Coordinator) batchLocked(userID string) *batch {
	b, ok := c.batches[userID]
	if !ok {
		b = &batch{fields: make(map[string]any), seqs: make(map[string]uint64)}
		c.batches[userID] = b
	}
	return b
}

// mergeLocked adds changes to the batch, skipping billing fields. It returns
// the number of fields accepted.
func (c *Coordinator) mergeLocked(userID string, b *batch, changes map[string]any) int {
	accepted := 0
	for name, value := range changes {
		if models.IsBillingField(name) {
			SyncDroppedBillingTotal.Inc()
			c.logger.Debug("dropping billing field from generic sync", "user", userID, "field", name)
			continue
		}
		if _, pending := b.fields[name]; pending {
			SyncCoalescedTotal.Inc()
		}
		b.seq++
		b.fields[name] = deepcopy.Copy(value)
		b.seqs[name] = b.seq
		accepted++
	}
	return accepted
}

func (c *Coordinator) stopTimerLocked(b *batch) {
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (c *Coordinator) armLocked(userID string, b *batch, d time.Duration) {
	c.stopTimerLocked(b)
	gen := b.gen
	b.timer = c.clock.AfterFunc(d, func() { c.fire(userID, gen) })
}

// ScheduleSync merges changes into the user's pending batch and restarts
// the debounce timer.
func (c *Coordinator) ScheduleSync(userID string, changes map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.batchLocked(userID)
	if c.mergeLocked(userID, b, changes) == 0 {
		return
	}
	c.armLocked(userID, b, c.cfg.Debounce)
}

func (c *Coordinator) fire(userID string, gen uint64) {
	c.mu.Lock()
	b, ok := c.batches[userID]
	if !ok || b.gen != gen {
		c.mu.Unlock()
		return
	}
	b.timer = nil

	if len(b.fields) == 0 {
		c.mu.Unlock()
		return
	}
	if b.inflight > 0 {
		// wait for the running write before sending the remainder
		c.armLocked(userID, b, c.cfg.Debounce)
		c.mu.Unlock()
		return
	}
	if !b.lastWrite.IsZero() {
		if elapsed := c.clock.Now().Sub(b.lastWrite); elapsed < c.cfg.MinInterval {
			SyncRateLimitedTotal.Inc()
			c.armLocked(userID, b, c.cfg.MinInterval-elapsed)
			c.mu.Unlock()
			return
		}
	}
	payload, seq := c.snapshotLocked(b)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	c.write(ctx, userID, payload, seq, pathDebounced)
}

func (c *Coordinator) snapshotLocked(b *batch) (map[string]any, uint64) {
	payload := make(map[string]any, len(b.fields))
	for name, value := range b.fields {
		payload[name] = value
	}
	b.inflight++
	return payload, b.seq
}

// write sends payload and settles the batch. On success only fields not
// changed since the snapshot are cleared; on failure everything stays
// pending for the next change to retry.
func (c *Coordinator) write(ctx context.Context, userID string, payload map[string]any, seq uint64, path string) error {
	err := c.store.SetDocument(ctx, userID, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.batchLocked(userID)
	b.inflight--

	if err != nil {
		c.logFailure(userID, path, err, len(payload))
		return err
	}

	SyncWritesTotal.WithLabelValues(path).Inc()
	b.lastWrite = c.clock.Now()
	for name := range payload {
		if b.seqs[name] <= seq {
			delete(b.fields, name)
			delete(b.seqs, name)
		}
	}
	c.logger.Debug("synced user document", "user", userID, "path", path, "fields", len(payload), "pending", len(b.fields))
	return nil
}

func (c *Coordinator) logFailure(userID, path string, err error, fields int) {
	denied := remote.IsPermissionDenied(err)
	SyncFailuresTotal.WithLabelValues(path, failureReason(denied)).Inc()
	if denied {
		c.logger.Info("remote write rejected, keeping changes local", "user", userID, "path", path, "error", err)
		return
	}
	c.logger.Warn("remote write failed, will retry on next change", "user", userID, "path", path, "fields", fields, "error", err)
}

// ForceSync cancels the debounce timer, merges changes and writes the whole
// pending batch now, ignoring the minimum interval.
func (c *Coordinator) ForceSync(ctx context.Context, userID string, changes map[string]any) error {
	c.mu.Lock()
	b := c.batchLocked(userID)
	c.stopTimerLocked(b)
	c.mergeLocked(userID, b, changes)
	if len(b.fields) == 0 {
		c.mu.Unlock()
		return nil
	}
	payload, seq := c.snapshotLocked(b)
	c.mu.Unlock()

	return c.write(ctx, userID, payload, seq, pathForced)
}

// TierUpdate is an authoritative billing change.
type TierUpdate struct {
	Tier                 models.Tier
	PrimarySubject       models.Subject
	StripeCustomerID     string
	StripeSubscriptionID string
}

// Fields returns the document fields of u. The legacy premium flag is kept
// in step with the tier.
func (u TierUpdate) Fields() map[string]any {
	fields := map[string]any{
		models.FieldSubscriptionTier: u.Tier,
		models.FieldIsPremium:        u.Tier.Paid(),
	}
	if u.PrimarySubject != "" {
		fields[models.FieldPrimarySubject] = u.PrimarySubject
	}
	if u.StripeCustomerID != "" {
		fields[models.FieldStripeCustomerID] = u.StripeCustomerID
	}
	if u.StripeSubscriptionID != "" {
		fields[models.FieldStripeSubscriptionID] = u.StripeSubscriptionID
	}
	return fields
}

// SyncTier writes billing fields immediately, bypassing the batches.
func (c *Coordinator) SyncTier(ctx context.Context, userID string, u TierUpdate) error {
	err := c.store.SetDocument(ctx, userID, u.Fields())
	if err != nil {
		c.logFailure(userID, pathTier, err, 0)
		return err
	}
	SyncWritesTotal.WithLabelValues(pathTier).Inc()
	c.logger.Info("synced subscription tier", "user", userID, "tier", u.Tier)
	return nil
}

// Flush writes every pending batch now. It is used on shutdown.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	users := make([]string, 0, len(c.batches))
	for userID, b := range c.batches {
		if len(b.fields) > 0 {
			users = append(users, userID)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, userID := range users {
		if err := c.ForceSync(ctx, userID, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pending returns a copy of the user's unwritten fields.
func (c *Coordinator) Pending(userID string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any)
	if b, ok := c.batches[userID]; ok {
		for name, value := range b.fields {
			out[name] = value
		}
	}
	return out
}

// Stop cancels every timer without writing.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.batches {
		c.stopTimerLocked(b)
	}
}
