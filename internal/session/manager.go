// Package session tracks the live consultations held by this process.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/medbot/internal/consultation"
)

var ErrNotFound = errors.New("session not found")

// Factory builds a fresh consultation for the given id.
type Factory func(id string) *consultation.Session

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*consultation.Session
	factory           Factory
	inactivityTimeout time.Duration
	onExpire          func(*consultation.Session)
	onEnd             func(*consultation.Session)
	onChange          func(active int)
}

func NewManager(inactivityTimeout time.Duration, factory Factory) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*consultation.Session),
		factory:           factory,
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook is called, outside the lock, for each session the janitor drops.
func (m *Manager) SetExpireHook(hook func(*consultation.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetEndHook is called, outside the lock, when End removes a session.
func (m *Manager) SetEndHook(hook func(*consultation.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = hook
}

// SetChangeHook receives the active count after every create, end or expiry.
func (m *Manager) SetChangeHook(hook func(active int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = hook
}

func (m *Manager) Create() *consultation.Session {
	s := m.factory(uuid.NewString())

	m.mu.Lock()
	m.sessions[s.ID()] = s
	active, hook := len(m.sessions), m.onChange
	m.mu.Unlock()

	if hook != nil {
		hook(active)
	}
	return s
}

func (m *Manager) Get(sessionID string) (*consultation.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End drops the session. A turn already in flight on it still completes.
func (m *Manager) End(sessionID string) (*consultation.Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	delete(m.sessions, sessionID)
	active, changeHook, endHook := len(m.sessions), m.onChange, m.onEnd
	m.mu.Unlock()

	if endHook != nil {
		endHook(s)
	}
	if changeHook != nil {
		changeHook(active)
	}
	return s, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.expireInactive(now)
			}
		}
	}()
}

func (m *Manager) expireInactive(now time.Time) {
	var expired []*consultation.Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Busy() || now.Sub(s.LastActivity()) < m.inactivityTimeout {
			continue
		}
		expired = append(expired, s)
		delete(m.sessions, id)
	}
	active := len(m.sessions)
	expireHook, changeHook := m.onExpire, m.onChange
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	if expireHook != nil {
		for _, s := range expired {
			expireHook(s)
		}
	}
	if changeHook != nil {
		changeHook(active)
	}
}
