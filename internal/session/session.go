// internal/session/session.go
//
// One server-hosted game and the connections attached to it.
// Responsibilities:
//   - Own exactly one game.Controller; every controller call happens under
//     the session mutex, so submissions from several connections are applied
//     one at a time.
//   - Assign seats (wolves, sheep, spectator) on join and hand out seat
//     tokens that reclaim the seat after a reconnect.
//   - Broadcast accepted actions to every member; send rejections only to
//     the submitter.
//   - Let a player start the game over; everyone gets the fresh snapshot.
//   - Answer resync with a full snapshot whenever the client's move count
//     differs from the server's.
//   - Track liveness: a disconnected player keeps its seat until the forfeit
//     timer fires; a session nobody is attached to is destroyed by the idle
//     timer; a finished game lingers briefly, then closes.
//
// Connection loss never touches the game state.

package session

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wolfsheep/internal/game"
	"github.com/robalobadob/wolfsheep/internal/protocol"
	"github.com/robalobadob/wolfsheep/internal/store"
)

// Conn is an outbound message sink for one client connection. Send must not
// block; Close ends the connection after already queued messages are sent.
type Conn interface {
	Send([]byte) error
	Close() error
}

// Options configure every session of a Manager.
type Options struct {
	TokenSecret    []byte
	TokenTTL       time.Duration
	ForfeitTimeout time.Duration // 0 disables forfeits
	IdleTimeout    time.Duration // 0 keeps empty sessions forever
	EndLinger      time.Duration // how long a finished game stays reachable
	MaxSessions    int           // 0 is unlimited
	Store          store.Store   // nil disables persistence
	Metrics        *Metrics
}

type member struct {
	id      string
	name    string
	seat    game.Seat
	conn    Conn // nil while disconnected
	forfeit *time.Timer
}

// Session is one game instance with an authoritative state.
type Session struct {
	id        string
	createdAt time.Time
	rules     game.Rules
	pwHash    string
	ctrl      *game.Controller
	opts      *Options
	log       zerolog.Logger
	rec       *recorder // nil without a store
	onClose   func(id string)

	mu      sync.Mutex
	members map[string]*member   // by member id
	seats   map[game.Seat]string // player seat -> member id, kept while disconnected
	idle    *time.Timer
	end     *time.Timer
	closed  bool
}

func newSession(id string, createdAt time.Time, ctrl *game.Controller, pwHash string, opts *Options, onClose func(string)) *Session {
	s := &Session{
		id:        id,
		createdAt: createdAt,
		rules:     ctrl.Rules(),
		pwHash:    pwHash,
		ctrl:      ctrl,
		opts:      opts,
		log:       log.With().Str("session", id).Logger(),
		onClose:   onClose,
		members:   make(map[string]*member),
		seats:     make(map[game.Seat]string),
	}
	s.rec = newRecorder(opts.Store, id, s.log)
	ctrl.Subscribe(s.onEvent)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Protected reports whether joining requires a password.
func (s *Session) Protected() bool { return s.pwHash != "" }

// Controller exposes the game controller. Callers outside the package must
// not mutate through it.
func (s *Session) Controller() *game.Controller { return s.ctrl }

// Snapshot returns the authoritative game state.
func (s *Session) Snapshot() game.Snapshot { return s.ctrl.Current() }

// Info is a summary of a session for listings.
type Info struct {
	ID        string            `json:"id"`
	Rules     string            `json:"rules"`
	Phase     game.Phase        `json:"phase"`
	Turn      game.Role         `json:"turn"`
	MoveCount int               `json:"moveCount"`
	Result    game.Result       `json:"result"`
	Players   []protocol.Player `json:"players"`
	Protected bool              `json:"protected"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Info summarises the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.ctrl.Current()
	return Info{
		ID:        s.id,
		Rules:     s.rules.Name,
		Phase:     snap.Phase(),
		Turn:      snap.Turn,
		MoveCount: snap.MoveCount,
		Result:    snap.Result,
		Players:   s.playersLocked(),
		Protected: s.Protected(),
		CreatedAt: s.createdAt,
	}
}

// ---- controller events (always delivered with s.mu held) ----

func (s *Session) onEvent(ev game.Event) {
	o := ev.Outcome
	switch ev.Kind {
	case game.EventMove, game.EventEndTurn, game.EventForfeit:
		s.broadcastLocked(protocol.MsgMoveResult, protocol.Accepted(s.ctrl.Board(), o))
	case game.EventRestore, game.EventReset:
		s.broadcastLocked(protocol.MsgFullSnapshot, protocol.FullSnapshot{Snapshot: o.Snapshot})
	}
	if ev.Kind == game.EventMove || ev.Kind == game.EventEndTurn {
		s.opts.Metrics.action(true)
	}
	if o.Result.Over() {
		s.broadcastLocked(protocol.MsgGameOver, protocol.GameOverNotice{Result: o.Result.Status, Reason: o.Result.Reason})
		s.finishLocked(o.Result)
		return
	}
	s.persistLocked(o.Snapshot)
}

func (s *Session) persistLocked(snap game.Snapshot) {
	s.rec.save(store.Record{
		ID:           s.id,
		Rules:        s.rules,
		Snapshot:     snap,
		PasswordHash: s.pwHash,
		CreatedAt:    s.createdAt,
	})
}

func (s *Session) forgetLocked() { s.rec.forget() }

// finishLocked handles a game that just ended.
func (s *Session) finishLocked(r game.Result) {
	s.log.Info().Str("result", r.String()).Msg("game over")
	s.opts.Metrics.gameOver(r)
	s.forgetLocked()
	for _, m := range s.members {
		stopTimer(&m.forfeit)
	}
	s.cancelIdleLocked()
	if s.end == nil {
		var t *time.Timer
		t = time.AfterFunc(s.opts.EndLinger, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.end != t {
				return // stopped by a reset
			}
			s.closeLocked("game-over")
		})
		s.end = t
	}
}

// ---- membership ----

func (s *Session) connectedLocked() int {
	n := 0
	for _, m := range s.members {
		if m.conn != nil {
			n++
		}
	}
	return n
}

func (s *Session) playersLocked() []protocol.Player {
	out := make([]protocol.Player, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, protocol.Player{Name: m.name, Seat: m.seat, Connected: m.conn != nil})
	}
	order := map[game.Seat]int{game.SeatWolves: 0, game.SeatSheep: 1, game.SeatBoth: 2, game.SeatSpectator: 3}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seat != out[j].Seat {
			return order[out[i].Seat] < order[out[j].Seat]
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Session) broadcastLocked(t string, payload any) {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		s.log.Error().Err(err).Str("type", t).Msg("encode broadcast")
		return
	}
	for _, m := range s.members {
		if m.conn == nil {
			continue
		}
		if err := m.conn.Send(b); err != nil {
			s.log.Warn().Err(err).Str("member", m.id).Msg("send failed; dropping connection")
			_ = m.conn.Close()
		}
	}
}

func (s *Session) broadcastPlayersLocked() {
	s.broadcastLocked(protocol.MsgPlayers, protocol.PlayerList{Players: s.playersLocked()})
}

// ---- timers ----

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Session) cancelIdleLocked() { stopTimer(&s.idle) }

func (s *Session) startIdleLocked() {
	if s.opts.IdleTimeout <= 0 || s.idle != nil || s.closed {
		return
	}
	s.idle = time.AfterFunc(s.opts.IdleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.connectedLocked() > 0 {
			return
		}
		s.log.Info().Msg("idle timeout; destroying session")
		s.forgetLocked()
		s.closeLocked("idle")
	})
}

func (s *Session) startForfeitLocked(m *member) {
	if s.opts.ForfeitTimeout <= 0 || s.ctrl.Phase() == game.GameOver {
		return
	}
	stopTimer(&m.forfeit)
	id := m.id
	m.forfeit = time.AfterFunc(s.opts.ForfeitTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		m, ok := s.members[id]
		if s.closed || !ok || m.conn != nil {
			return
		}
		role := seatRole(m.seat)
		s.log.Info().Str("member", id).Str("role", role.String()).Msg("forfeit after disconnect")
		if _, err := s.ctrl.Forfeit(role); err != nil {
			s.log.Debug().Err(err).Msg("forfeit ignored")
		}
	})
}

// resetLocked starts a fresh game with the same rules. A finished game is
// kept open again and disconnected players get their forfeit timers back.
func (s *Session) resetLocked() error {
	stopTimer(&s.end)
	if err := s.ctrl.Reset(); err != nil {
		return err
	}
	for _, m := range s.members {
		if m.conn == nil && m.seat.IsPlayer() {
			s.startForfeitLocked(m)
		}
	}
	s.log.Info().Msg("game reset")
	return nil
}

func seatRole(seat game.Seat) game.Role {
	if seat == game.SeatSheep {
		return game.RoleSheep
	}
	return game.RoleWolves
}

// closeLocked drops every connection and tells the manager.
func (s *Session) closeLocked(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.cancelIdleLocked()
	stopTimer(&s.end)
	for _, m := range s.members {
		stopTimer(&m.forfeit)
		if m.conn != nil {
			_ = m.conn.Close()
			m.conn = nil
		}
	}
	s.rec.close()
	s.log.Info().Str("reason", reason).Msg("session closed")
	if s.onClose != nil {
		s.onClose(s.id)
	}
}

// shutdown stops the session without forgetting its record, so it can be
// restored on the next start. It returns once pending writes are stored.
func (s *Session) shutdown() {
	s.mu.Lock()
	onClose := s.onClose
	s.onClose = nil
	s.closeLocked("shutdown")
	s.onClose = onClose
	s.mu.Unlock()
	s.rec.wait()
}

// Closed reports whether the session has been destroyed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
