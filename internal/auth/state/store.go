// Package state holds the ephemeral CSRF state tokens that tie an OAuth
// callback back to the user who started the flow. Tokens are in-memory
// only; a restart invalidates every in-flight flow.
package state

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// TTL bounds how long a callback may take after initiation.
const TTL = 10 * time.Minute

type entry struct {
	userID    int64
	platform  string
	expiresAt time.Time
}

// Store is a mutex-guarded token map. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	states map[string]entry
	ttl    time.Duration
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		states: make(map[string]entry),
		ttl:    TTL,
		now:    time.Now,
	}
}

// Create issues a new single-use state token for a linking attempt and
// opportunistically purges expired entries so the map stays bounded.
func (s *Store) Create(userID int64, platform string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, e := range s.states {
		if now.After(e.expiresAt) {
			delete(s.states, t)
		}
	}

	s.states[token] = entry{
		userID:    userID,
		platform:  platform,
		expiresAt: now.Add(s.ttl),
	}
	return token, nil
}

// Consume looks up a token and deletes it. A token yields a user at most
// once and only within its TTL; expired entries are purged on sight.
func (s *Store) Consume(token string) (userID int64, platform string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.states[token]
	if !found {
		return 0, "", false
	}
	delete(s.states, token)

	if s.now().After(e.expiresAt) {
		return 0, "", false
	}
	return e.userID, e.platform, true
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
