package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrAlreadyRunning = errors.New("session already running")
)

// Store keeps sessions by key. Expired sessions behave exactly like missing
// ones; a running session never expires. Implementations return copies, so
// callers never share state.
type Store interface {
	Get(key string) (model.Session, error)
	Put(s model.Session) (model.Session, error)
	// Start marks the session as running with the chosen format.
	Start(key, format string) (model.Session, error)
	Delete(key string)
	DeleteUser(userID int64) int
	Expire() int
	Len() int
}

// NewKey returns a fresh session key.
func NewKey() string {
	return uuid.NewString()
}

// MemoryStore is an in-process Store with a fixed time-to-live.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]model.Session
}

// NewMemoryStore creates a store. now may be nil to use the wall clock.
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		ttl:      ttl,
		now:      now,
		sessions: make(map[string]model.Session),
	}
}

func (m *MemoryStore) Get(key string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(key)
}

func (m *MemoryStore) lookup(key string) (model.Session, error) {
	s, ok := m.sessions[key]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	if stale(s, m.now()) {
		delete(m.sessions, key)
		return model.Session{}, ErrNotFound
	}
	return s, nil
}

// Put stores s, assigning a key and timestamps when they are unset.
func (m *MemoryStore) Put(s model.Session) (model.Session, error) {
	if s.UserID == 0 {
		return model.Session{}, errors.New("session without user")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if s.Key == "" {
		s.Key = NewKey()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() && m.ttl > 0 {
		s.ExpiresAt = now.Add(m.ttl)
	}
	m.sessions[s.Key] = s
	return s, nil
}

func (m *MemoryStore) Start(key, format string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(key)
	if err != nil {
		return model.Session{}, err
	}
	if s.Running {
		return s, ErrAlreadyRunning
	}
	s.Running = true
	s.Format = format
	m.sessions[key] = s
	return s, nil
}

func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// DeleteUser removes every session of userID and reports how many there were.
func (m *MemoryStore) DeleteUser(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, key)
			n++
		}
	}
	return n
}

// Expire drops stale sessions and returns how many were dropped.
func (m *MemoryStore) Expire() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for key, s := range m.sessions {
		if stale(s, now) {
			delete(m.sessions, key)
			n++
		}
	}
	return n
}

// Len counts live sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for _, s := range m.sessions {
		if !stale(s, now) {
			n++
		}
	}
	return n
}

func stale(s model.Session, now time.Time) bool {
	return !s.Running && s.Expired(now)
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func RunJanitor(ctx context.Context, store Store, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := store.Expire(); n > 0 {
				log.Printf("[session] expired %d sessions", n)
			}
		}
	}
}
