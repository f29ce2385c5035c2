package auth

import (
	"sync"

	"github.com/ndewijer/depotsync/internal/model"
)

// SessionCache holds at most one session per account.
type SessionCache struct {
	mu       sync.RWMutex
	sessions map[model.AccountRef]model.Session
}

// NewSessionCache creates an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{sessions: make(map[model.AccountRef]model.Session)}
}

// Get returns a copy of the cached session.
func (c *SessionCache) Get(ref model.AccountRef) (*model.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sessions[ref]
	if !ok {
		return nil, false
	}
	return &s, true
}

// Put replaces the session of its account.
func (c *SessionCache) Put(s *model.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.AccountRef] = *s
}

// Delete drops the session of an account.
func (c *SessionCache) Delete(ref model.AccountRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, ref)
}
