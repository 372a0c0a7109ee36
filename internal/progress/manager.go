// Package progress owns the live progress state of every active user and
// applies study events to it.
package progress

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/examprep/internal/ai"
	"github.com/example/examprep/internal/cadence"
	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/internal/database"
	"github.com/example/examprep/internal/localstore"
	"github.com/example/examprep/internal/remotesync"
)

// FeedbackGenerator explains wrong answers.
type FeedbackGenerator interface {
	MistakeFeedback(ctx context.Context, req ai.MistakeRequest) (string, error)
}

// Config tunes session behaviour.
type Config struct {
	// FreeLimits falls back to cadence.DefaultFreeLimits when nil. A zero
	// cap is honored.
	FreeLimits *cadence.FreeLimits
	PulseDelay time.Duration
}

// Deps are the collaborators of a Manager. Feedback may be nil.
type Deps struct {
	Repo     *database.KVRepository
	Loader   *remotesync.Loader
	Sync     *remotesync.Coordinator
	Clock    clock.Clock
	Feedback FeedbackGenerator
	Logger   *slog.Logger
	Config   Config
}

// Manager creates one Session per user identity on first use.
type Manager struct {
	deps   Deps
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	loading  map[string]*sync.Mutex
}

// NewManager returns a manager with no live sessions.
func NewManager(deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.FreeLimits == nil {
		limits := cadence.DefaultFreeLimits
		deps.Config.FreeLimits = &limits
	}
	return &Manager{
		deps:     deps,
		logger:   deps.Logger.With("component", "progress"),
		sessions: make(map[string]*Session),
		loading:  make(map[string]*sync.Mutex),
	}
}

// Session returns the live session of userID. The first call loads local
// state and merges the remote document once; remote failures only degrade
// to local state.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	lock, ok := m.loading[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.loading[userID] = lock
	}
	m.mu.Unlock()

	// one login per user at a time
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s := m.login(ctx, userID)

	m.mu.Lock()
	m.sessions[userID] = s
	delete(m.loading, userID)
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) login(ctx context.Context, userID string) *Session {
	store := localstore.New(m.deps.Repo, userID, m.deps.Logger)
	today := cadence.Today(m.deps.Clock.Now())
	state := localstore.Load(store, today)

	if m.deps.Loader != nil && m.deps.Loader.LoadAndMerge(ctx, userID, state.Progress) {
		if err := localstore.SaveProgress(store, state.Progress); err != nil {
			m.logger.Warn("failed to persist merged progress", "user", userID, "error", err)
		}
	}
	m.logger.Info("session started", "user", userID, "level", state.Progress.Level, "tier", state.Progress.SubscriptionTier)
	return newSession(userID, store, state, m.deps)
}

// Lookup returns the live session of userID without logging in.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Forget drops the live session; the next access logs in again.
func (m *Manager) Forget(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		s.prompter.Cancel()
	}
}

// UserIDs lists the live sessions.
func (m *Manager) UserIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) live() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// RefreshCadence runs the daily reset check on every live session.
func (m *Manager) RefreshCadence(ctx context.Context) int {
	refreshed := 0
	for _, s := range m.live() {
		if ctx.Err() != nil {
			break
		}
		if s.RefreshCadence() {
			refreshed++
		}
	}
	return refreshed
}

// Flush pushes every pending remote change.
func (m *Manager) Flush(ctx context.Context) error {
	if m.deps.Sync == nil {
		return nil
	}
	return m.deps.Sync.Flush(ctx)
}
