// Package registry keeps the in-memory view of all sessions. Session
// existence and status are checked synchronously on the broadcast hot path,
// so the registry holds current session objects in a mutex-guarded map and
// forwards every mutation to the durable store before returning. Transcripts
// are not held here; they are fetched from the store on demand.
package registry

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/relay/internal/daemon/store"
	"github.com/grovetools/relay/pkg/models"
)

// Registry is the in-memory session registry backed by the durable store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	store    *store.Store
	logger   *logrus.Entry
}

// New creates a Registry hydrated from the store's session list.
func New(st *store.Store, logger *logrus.Entry) (*Registry, error) {
	sessions, err := st.ListSessions()
	if err != nil {
		return nil, err
	}

	m := make(map[string]*models.Session, len(sessions))
	for _, sess := range sessions {
		m[sess.ID] = sess
	}

	logger.WithField("sessions", len(m)).Info("Session registry hydrated")
	return &Registry{
		sessions: m,
		store:    st,
		logger:   logger,
	}, nil
}

// Get returns a copy of the session, or nil when the id is unknown.
func (r *Registry) Get(id string) *models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return sess.Clone()
}

// Has reports whether the session exists in memory.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Create makes a new session in the store and registers it in memory.
func (r *Registry) Create(meta store.SessionMeta) (*models.Session, error) {
	sess, err := r.store.CreateSession(meta)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	return sess.Clone(), nil
}

// ApplyUpdate mutates the in-memory session and forwards the same fields to
// the store. After it returns, the two copies agree. Returns the updated
// session, or nil when the id is unknown.
func (r *Registry) ApplyUpdate(id string, update models.SessionUpdate) (*models.Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, nil
	}
	update.Apply(sess)
	updated := sess.Clone()
	r.mu.Unlock()

	if err := r.store.UpdateSession(id, update); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the session from memory and from the store, cascading its
// messages. It reports whether the session existed in either layer.
func (r *Registry) Delete(id string) (bool, error) {
	r.mu.Lock()
	_, inMemory := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	existed, err := r.store.DeleteSession(id)
	if err != nil {
		return inMemory, err
	}
	return existed || inMemory, nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
