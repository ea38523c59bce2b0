// Package session holds per-(project, chat) authentication state and the
// short dialogue history used as answer context. Sessions live in memory
// only and die with their bot worker.
package session

import (
	"sync"
	"time"
)

type Stage int

const (
	StageUnauthenticated Stage = iota
	StageAwaitingPassword
	StageAwaitingContact
	StageAuthenticated
)

func (s Stage) String() string {
	switch s {
	case StageUnauthenticated:
		return "unauthenticated"
	case StageAwaitingPassword:
		return "awaiting_password"
	case StageAwaitingContact:
		return "awaiting_contact"
	case StageAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

type Event int

const (
	EventStart Event = iota
	EventPasswordOK
	EventPasswordBad
	EventContactShared
)

type Turn struct {
	Question string
	Answer   string
	At       time.Time
}

type Session struct {
	ProjectID string
	ChatID    int64

	mu           sync.Mutex
	stage        Stage
	subscriberID string
	history      []Turn
	attempts     []time.Time
	lastSeen     time.Time

	historySize    int
	maxAttempts    int
	attemptsWindow time.Duration
	now            func() time.Time
}

func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Advance applies one auth event. Transitions are exhaustive per stage;
// an event that does not apply to the current stage is a no-op, which is
// what makes a duplicate concurrent password submission harmless.
func (s *Session) Advance(ev Event) Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	switch s.stage {
	case StageUnauthenticated:
		if ev == EventStart {
			s.stage = StageAwaitingPassword
		}
	case StageAwaitingPassword:
		switch ev {
		case EventPasswordOK:
			s.stage = StageAwaitingContact
			s.attempts = nil
		case EventPasswordBad:
			s.attempts = append(s.attempts, s.now())
		case EventStart:
			// Re-issued start keeps the stage.
		}
	case StageAwaitingContact:
		if ev == EventContactShared {
			s.stage = StageAuthenticated
		}
	case StageAuthenticated:
		// No transitions out; blocked is a per-turn gate, not a stage.
	}
	return s.stage
}

// PasswordAttemptAllowed reports whether another password check may run.
// Failed attempts are counted over a rolling window.
func (s *Session) PasswordAttemptAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxAttempts <= 0 {
		return true
	}
	cutoff := s.now().Add(-s.attemptsWindow)
	kept := s.attempts[:0]
	for _, at := range s.attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	s.attempts = kept
	return len(s.attempts) < s.maxAttempts
}

func (s *Session) BindSubscriber(subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriberID = subscriberID
}

func (s *Session) SubscriberID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriberID
}

func (s *Session) RecordTurn(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	s.history = append(s.history, Turn{Question: question, Answer: answer, At: s.now()})
	if s.historySize > 0 && len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
}

func (s *Session) expired(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(cutoff)
}
