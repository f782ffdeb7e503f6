package payments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jaineelmodi11/KingsHacks/internal/pagination"
)

// MemoryStore is an in-memory store for demo/development mode.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	cards      map[string]*Card
	challenges map[string]*Challenge
	attempts   []*Attempt
	audit      []*AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*Session),
		cards:      make(map[string]*Card),
		challenges: make(map[string]*Challenge),
	}
}

func (m *MemoryStore) UpsertSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) CreateCard(_ context.Context, c *Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cards[c.ID] = copyCard(c)
	return nil
}

func (m *MemoryStore) GetCard(_ context.Context, sessionID, cardID string) (*Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cards[cardID]
	if !ok || c.SessionID != sessionID {
		return nil, ErrCardNotFound
	}
	return copyCard(c), nil
}

// ListCards returns the session's cards oldest first.
func (m *MemoryStore) ListCards(_ context.Context, sessionID string) ([]*Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*Card{}
	for _, c := range m.cards {
		if c.SessionID == sessionID {
			result = append(result, copyCard(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) CreateChallenge(_ context.Context, c *Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.challenges[c.ID] = copyChallenge(c)
	return nil
}

func (m *MemoryStore) GetChallenge(_ context.Context, sessionID, challengeID string) (*Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.challenges[challengeID]
	if !ok || c.SessionID != sessionID {
		return nil, ErrChallengeNotFound
	}
	return copyChallenge(c), nil
}

func (m *MemoryStore) ResolveChallenge(_ context.Context, sessionID, challengeID string, status ChallengeStatus, at time.Time, fromPendingOnly bool) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[challengeID]
	if !ok || c.SessionID != sessionID {
		return nil, ErrChallengeNotFound
	}
	if fromPendingOnly && c.Status != ChallengePending {
		return nil, ErrChallengeResolved
	}
	c.Status = status
	c.ResolvedAt = &at
	return copyChallenge(c), nil
}

func (m *MemoryStore) InsertAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.attempts = append(m.attempts, &cp)
	return nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, sessionID string, cursor *pagination.Cursor, limit int) ([]*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Attempt
	for _, a := range m.attempts {
		if a.SessionID != sessionID {
			continue
		}
		if !cursor.Follows(a.CreatedAt, a.ID) {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) InsertAudit(_ context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.audit = append(m.audit, &cp)
	return nil
}

// AuditEntries returns the session's chat audit log in insertion order.
func (m *MemoryStore) AuditEntries(sessionID string) []*AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*AuditEntry
	for _, e := range m.audit {
		if e.SessionID == sessionID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

func copyCard(c *Card) *Card {
	cp := *c
	if c.ExpMonth != nil {
		v := *c.ExpMonth
		cp.ExpMonth = &v
	}
	if c.ExpYear != nil {
		v := *c.ExpYear
		cp.ExpYear = &v
	}
	return &cp
}

func copyChallenge(c *Challenge) *Challenge {
	cp := *c
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
