// Package fleet keeps the set of running bot workers converged with the
// set of active, token-bearing projects.
package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/askbase/askbase/internal/model"
)

// Runner is one managed bot worker.
type Runner interface {
	Run(ctx context.Context) error
	CleanupSessions() int
}

// Factory builds a Runner for a project. Swapped for a fake in tests.
type Factory func(project *model.Project) Runner

// ProjectLister yields the projects that should have a worker.
type ProjectLister interface {
	ListActiveBots(ctx context.Context) ([]*model.Project, error)
}

type ProjectHealth struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Configured  bool   `json:"configured"`
	Running     bool   `json:"running"`
	LastError   string `json:"last_error,omitempty"`
}

type slot struct {
	token       string
	projectID   string
	projectName string
	cancel      context.CancelFunc
	done        chan struct{}

	mu      sync.Mutex
	lastErr error
}

func (s *slot) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func (s *slot) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *slot) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Manager is the sole writer of the running-worker set. Workers never
// start or stop siblings.
type Manager struct {
	projects ProjectLister
	factory  Factory
	interval time.Duration

	mu      sync.Mutex
	running map[string]*slot // keyed by bot token
	runners map[string]Runner
}

func NewManager(projects ProjectLister, factory Factory, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	return &Manager{
		projects: projects,
		factory:  factory,
		interval: interval,
		running:  make(map[string]*slot),
		runners:  make(map[string]Runner),
	}
}

// Run reconciles once immediately, then on every tick until ctx ends.
// All workers are stopped before Run returns.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.Reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			m.StopAll(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			m.Reconcile(ctx)
		}
	}
}

// Reconcile converges running workers toward the active project set. A
// read failure aborts the whole tick; the stale fleet keeps serving until
// the next interval.
func (m *Manager) Reconcile(ctx context.Context) {
	logger := logutil.GetLogger(ctx)
	projects, err := m.projects.ListActiveBots(ctx)
	if err != nil {
		logger.Error("fleet reconcile aborted, project read failed", zap.Error(err))
		return
	}
	desired := make(map[string]*model.Project, len(projects))
	for _, p := range projects {
		desired[p.BotToken] = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Stop workers whose token is gone, whose project went inactive, or
	// that already exited with a connect failure and lost their token.
	for token, s := range m.running {
		if _, want := desired[token]; want {
			continue
		}
		m.stopSlotLocked(ctx, s)
		delete(m.running, token)
		delete(m.runners, token)
		logger.Info("bot worker stopped by reconcile",
			zap.String("project_id", s.projectID), zap.String("project", s.projectName))
	}

	// Start what is desired but absent. A slot whose worker exited cleanly
	// (platform stream ended) is restarted; one that failed to start stays
	// down and is visible through Health until its config changes.
	for token, p := range desired {
		s, ok := m.running[token]
		if ok {
			if !s.finished() || s.err() != nil {
				continue
			}
			delete(m.running, token)
			delete(m.runners, token)
		}
		m.startSlotLocked(ctx, p)
		logger.Info("bot worker started by reconcile",
			zap.String("project_id", p.ID), zap.String("project", p.Name))
	}
}

func (m *Manager) startSlotLocked(ctx context.Context, p *model.Project) {
	runner := m.factory(p)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &slot{
		token:       p.BotToken,
		projectID:   p.ID,
		projectName: p.Name,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	m.running[p.BotToken] = s
	m.runners[p.BotToken] = runner
	go func() {
		defer close(s.done)
		if err := runner.Run(runCtx); err != nil {
			s.setErr(err)
			logutil.GetLogger(runCtx).Error("bot worker exited with error",
				zap.String("project_id", s.projectID), zap.Error(err))
		}
	}()
}

// stopSlotLocked cancels the worker and waits for it to return, which
// guarantees the platform connection is released before the token slot
// can be reused. Worker shutdown is itself grace-bounded.
func (m *Manager) stopSlotLocked(ctx context.Context, s *slot) {
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
	}
}

// StopAll shuts the whole fleet down, waiting for every worker.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.running {
		m.stopSlotLocked(ctx, s)
		delete(m.running, token)
		delete(m.runners, token)
	}
}

// CleanupSessions sweeps expired sessions across all live workers and
// returns the total removed.
func (m *Manager) CleanupSessions() int {
	m.mu.Lock()
	runners := make([]Runner, 0, len(m.runners))
	for token, r := range m.runners {
		if s := m.running[token]; s != nil && !s.finished() {
			runners = append(runners, r)
		}
	}
	m.mu.Unlock()

	total := 0
	for _, r := range runners {
		total += r.CleanupSessions()
	}
	return total
}

// Health reports configured-vs-running state per bot-bearing project.
func (m *Manager) Health(ctx context.Context) ([]*ProjectHealth, error) {
	projects, err := m.projects.ListActiveBots(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ProjectHealth, 0, len(projects))
	for _, p := range projects {
		h := &ProjectHealth{
			ProjectID:   p.ID,
			ProjectName: p.Name,
			Configured:  true,
		}
		if s, ok := m.running[p.BotToken]; ok {
			h.Running = !s.finished()
			if err := s.err(); err != nil {
				h.LastError = err.Error()
			}
		}
		out = append(out, h)
	}
	return out, nil
}

// RunningCount reports how many workers are currently live.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.running {
		if !s.finished() {
			n++
		}
	}
	return n
}
