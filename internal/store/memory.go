// internal/store/memory.go
//
// Session snapshot persistence.
//
// The server saves a Record after every accepted action of an in-progress
// game and deletes it when the game ends, so a restart can bring unfinished
// sessions back. Completed games are never kept.
//
// Implementations:
//   - memory (this file): RWMutex-guarded map, lost on restart; used when
//     HUNT_DB is empty and in tests.
//   - SQLite (sqlite.go): one row per session, JSON columns.

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robalobadob/wolfsheep/internal/game"
)

// ErrNotFound is returned by Get for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Record is the persisted form of a session.
type Record struct {
	ID           string
	Rules        game.Rules
	Snapshot     game.Snapshot
	PasswordHash string // bcrypt hash; empty when the session is open
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store defines the persistence interface for sessions.
type Store interface {
	// Save inserts or replaces a record.
	Save(ctx context.Context, rec Record) error

	// Get retrieves a record by id, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Delete removes a record; deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns every record, oldest update first.
	List(ctx context.Context) ([]Record, error)
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu   sync.RWMutex      // guards recs
	recs map[string]Record // keyed by Record.ID
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{recs: make(map[string]Record)}
}

func (m *memory) Save(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.recs[rec.ID]; ok && rec.CreatedAt.IsZero() {
		rec.CreatedAt = old.CreatedAt
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.recs[id]; ok {
		return r, nil
	}
	return Record{}, ErrNotFound
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

func (m *memory) List(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}
