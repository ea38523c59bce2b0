package session

import (
	"sync"
	"time"
)

type Config struct {
	HistorySize    int
	TTL            time.Duration
	MaxAttempts    int
	AttemptsWindow time.Duration
}

// Store owns all sessions of one bot worker, keyed by chat id.
type Store struct {
	projectID string
	cfg       Config
	now       func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore(projectID string, cfg Config) *Store {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.AttemptsWindow <= 0 {
		cfg.AttemptsWindow = 10 * time.Minute
	}
	return &Store{
		projectID: projectID,
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[int64]*Session),
	}
}

func (st *Store) GetOrCreate(chatID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[chatID]; ok {
		return s
	}
	s := &Session{
		ProjectID:      st.projectID,
		ChatID:         chatID,
		stage:          StageUnauthenticated,
		lastSeen:       st.now(),
		historySize:    st.cfg.HistorySize,
		maxAttempts:    st.cfg.MaxAttempts,
		attemptsWindow: st.cfg.AttemptsWindow,
		now:            st.now,
	}
	st.sessions[chatID] = s
	return s
}

func (st *Store) Remove(chatID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, chatID)
}

// CleanupExpired drops sessions idle for longer than the TTL and returns
// how many were removed.
func (st *Store) CleanupExpired() int {
	cutoff := st.now().Add(-st.cfg.TTL)
	st.mu.Lock()
	candidates := make(map[int64]*Session, len(st.sessions))
	for id, s := range st.sessions {
		candidates[id] = s
	}
	st.mu.Unlock()

	removed := 0
	for id, s := range candidates {
		if s.expired(cutoff) {
			st.Remove(id)
			removed++
		}
	}
	return removed
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
