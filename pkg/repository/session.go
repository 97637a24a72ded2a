package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dskvich/scholarai/pkg/domain"
)

type sessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionRepository keeps sessions in memory. Sessions idle for longer
// than ttl are treated as gone; a ttl of zero keeps them forever.
func NewSessionRepository(ttl time.Duration) *sessionRepository {
	return &sessionRepository{
		sessions: make(map[string]*domain.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *sessionRepository) Create() *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := domain.NewSession(uuid.NewString())
	s.UpdatedAt = r.now()
	r.sessions[s.ID] = s
	return s.Clone()
}

// Get returns a copy of the session.
func (r *sessionRepository) Get(id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || r.expired(s) {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Update applies fn to the stored session under the repository lock. The
// session is left untouched when fn fails.
func (r *sessionRepository) Update(id string, fn func(s *domain.Session) error) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || r.expired(s) {
		delete(r.sessions, id)
		return nil, domain.ErrSessionNotFound
	}

	updated := s.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = r.now()
	r.sessions[id] = updated
	return updated.Clone(), nil
}

func (r *sessionRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}

// Sweep drops expired sessions and reports how many were removed.
func (r *sessionRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if r.expired(s) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func (r *sessionRepository) expired(s *domain.Session) bool {
	return r.ttl > 0 && r.now().Sub(s.UpdatedAt) > r.ttl
}
