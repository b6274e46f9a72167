// internal/session/manager.go
//
// Registry of live sessions.
// Responsibilities:
//   - Create sessions from a rules preset, optionally password protected.
//   - Look sessions up by id and list them for the lobby.
//   - Bring unfinished sessions back from the store on startup.
//   - Drop sessions once they close (idle, game over) and shut all of them
//     down on server exit, keeping their records for the next start.
//
// Lock order: a session's mutex may be held while taking the manager's,
// never the other way round.

package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/wolfsheep/internal/board"
	"github.com/robalobadob/wolfsheep/internal/errs"
	"github.com/robalobadob/wolfsheep/internal/game"
)

// ErrTooManySessions is returned by Create when MaxSessions is reached.
var ErrTooManySessions = errors.New("too many sessions")

// ErrNotFound is returned by Get for unknown or closed sessions.
var ErrNotFound = errors.New("session not found")

// CreateRequest selects the rules of a new session. Empty fields fall back
// to the manager's defaults.
type CreateRequest struct {
	Rules     string `json:"rules,omitempty"`
	Chain     string `json:"chain,omitempty"`
	FirstTurn string `json:"firstTurn,omitempty"`
	Password  string `json:"password,omitempty"`
}

// Manager owns every session on the server.
type Manager struct {
	board    *board.Topology
	defaults game.Rules
	opts     Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty manager for games on b.
func NewManager(b *board.Topology, defaults game.Rules, opts Options) *Manager {
	if opts.EndLinger <= 0 {
		opts.EndLinger = 30 * time.Second
	}
	return &Manager{
		board:    b,
		defaults: defaults,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Rules resolves a create request against the defaults.
func (m *Manager) Rules(req CreateRequest) (game.Rules, error) {
	r := m.defaults
	if req.Rules != "" {
		preset, err := game.RulesByName(req.Rules)
		if err != nil {
			return game.Rules{}, errs.Wrap(errs.CodeConfiguration, "unknown-rules", err)
		}
		preset.Chain = r.Chain
		r = preset
	}
	if req.Chain != "" {
		if err := r.Chain.UnmarshalText([]byte(req.Chain)); err != nil {
			return game.Rules{}, errs.Wrap(errs.CodeConfiguration, "unknown-chain", err)
		}
	}
	if req.FirstTurn != "" {
		role, err := game.ParseRole(req.FirstTurn)
		if err != nil {
			return game.Rules{}, errs.Wrap(errs.CodeConfiguration, "unknown-role", err)
		}
		r.FirstTurn = role
	}
	return r, nil
}

// Create starts a new session.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := m.Rules(req)
	if err != nil {
		return nil, err
	}
	ctrl, err := game.NewController(m.board, r)
	if err != nil {
		return nil, err
	}
	var hash string
	if req.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hash = string(h)
	}

	s := newSession(uuid.NewString(), time.Now().UTC(), ctrl, hash, &m.opts, m.remove)
	if err := m.add(s); err != nil {
		s.rec.close()
		return nil, err
	}

	s.mu.Lock()
	s.persistLocked(ctrl.Current())
	s.startIdleLocked()
	s.mu.Unlock()

	s.log.Info().Str("rules", r.Name).Str("chain", r.Chain.String()).Bool("protected", hash != "").Msg("session created")
	return s, nil
}

func (m *Manager) add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		return ErrTooManySessions
	}
	m.sessions[s.id] = s
	m.opts.Metrics.sessionOpened()
	return nil
}

// remove is every session's onClose callback.
func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		m.opts.Metrics.sessionClosed()
	}
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List summarises every live session, oldest first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(all))
	for _, s := range all {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Restore loads unfinished sessions from the store. Records that no longer
// restore cleanly are deleted. It returns the number of sessions restored.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	st := m.opts.Store
	if st == nil {
		return 0, nil
	}
	recs, err := st.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		l := log.With().Str("session", rec.ID).Logger()
		ctrl, err := game.NewController(m.board, rec.Rules)
		if err == nil {
			err = ctrl.Restore(rec.Snapshot)
		}
		if err == nil && rec.Snapshot.Result.Over() {
			err = errors.New("game already finished")
		}
		if err != nil {
			l.Warn().Err(err).Msg("dropping stored session")
			if err := st.Delete(ctx, rec.ID); err != nil {
				l.Warn().Err(err).Msg("delete stored session")
			}
			continue
		}

		s := newSession(rec.ID, rec.CreatedAt, ctrl, rec.PasswordHash, &m.opts, m.remove)
		if err := m.add(s); err != nil {
			s.rec.close()
			l.Warn().Err(err).Msg("session cap reached; leaving the rest stored")
			return n, nil
		}
		s.mu.Lock()
		s.startIdleLocked()
		s.mu.Unlock()
		l.Info().Int("moveCount", rec.Snapshot.MoveCount).Msg("session restored")
		n++
	}
	return n, nil
}

// Close shuts every session down. Stored records are kept.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.shutdown()
		m.opts.Metrics.sessionClosed()
	}
}
