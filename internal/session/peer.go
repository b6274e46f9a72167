package session

import (
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/wolfsheep/internal/errs"
	"github.com/robalobadob/wolfsheep/internal/game"
	"github.com/robalobadob/wolfsheep/internal/protocol"
)

// Peer is one connection's handle on a session. The transport feeds every
// inbound frame to Handle and calls Disconnect once when the connection ends.
type Peer struct {
	s      *Session
	conn   Conn
	member *member // nil until joined
	log    zerolog.Logger
}

// Connect attaches a new connection. Nothing is sent until it joins.
func (s *Session) Connect(conn Conn) *Peer {
	s.opts.Metrics.connOpened()
	return &Peer{s: s, conn: conn, log: s.log.With().Str("conn", uuid.NewString()).Logger()}
}

// Seat returns the seat assigned at join, or SeatSpectator before that.
func (p *Peer) Seat() game.Seat {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.member == nil {
		return game.SeatSpectator
	}
	return p.member.seat
}

// Handle processes one inbound frame. A returned error is a protocol
// violation: an error notice has already been sent and the caller must close
// the connection. Illegal moves are not errors here.
func (p *Peer) Handle(frame []byte) error {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		return p.fail(err)
	}

	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return p.fail(errs.New(errs.CodeProtocol, "session-closed"))
	case p.member != nil && p.member.conn != p.conn:
		return p.fail(errs.New(errs.CodeProtocol, "connection-replaced"))
	case env.T != protocol.MsgJoin && p.member == nil:
		return p.fail(errs.Newf(errs.CodeProtocol, "not-joined", "%s before join", env.T))
	}

	switch env.T {
	case protocol.MsgJoin:
		return p.join(env)
	case protocol.MsgMove:
		return p.move(env)
	case protocol.MsgEndTurn:
		if _, err := s.ctrl.EndTurn(p.member.seat); err != nil {
			p.reject(err)
		}
		return nil
	case protocol.MsgForfeit:
		if !p.member.seat.IsPlayer() {
			p.reject(errs.New(errs.CodeIllegalMove, game.ReasonNotAPlayer))
			return nil
		}
		if _, err := s.ctrl.Forfeit(seatRole(p.member.seat)); err != nil {
			p.reject(err)
		}
		return nil
	case protocol.MsgResync:
		return p.resync(env)
	case protocol.MsgReset:
		if !p.member.seat.IsPlayer() {
			p.reject(errs.New(errs.CodeIllegalMove, game.ReasonNotAPlayer))
			return nil
		}
		if err := s.resetLocked(); err != nil {
			p.reject(err)
		}
		return nil
	}
	return p.fail(errs.Newf(errs.CodeProtocol, "unknown-type", "unknown message type %q", env.T))
}

func (p *Peer) join(env protocol.Envelope) error {
	s := p.s
	req, err := protocol.DecodePayload[protocol.JoinRequest](env)
	if err != nil {
		return p.fail(err)
	}
	if p.member != nil {
		return p.fail(errs.New(errs.CodeProtocol, "already-joined"))
	}
	if req.V != 0 && req.V != protocol.Version {
		return p.fail(errs.Newf(errs.CodeProtocol, "version-mismatch", "client speaks v%d, server v%d", req.V, protocol.Version))
	}
	if s.pwHash != "" && bcrypt.CompareHashAndPassword([]byte(s.pwHash), []byte(req.Password)) != nil {
		return p.fail(errs.New(errs.CodeProtocol, "bad-password"))
	}

	m := s.reclaimLocked(req.Token)
	if m == nil {
		m = &member{id: uuid.NewString(), name: req.Name, seat: game.SeatSpectator}
		if req.DesiredRole == game.SeatWolves || req.DesiredRole == game.SeatSheep {
			if _, taken := s.seats[req.DesiredRole]; !taken {
				m.seat = req.DesiredRole
				s.seats[m.seat] = m.id
			}
		}
		s.members[m.id] = m
	} else if req.Name != "" {
		m.name = req.Name
	}
	if m.name == "" {
		m.name = m.seat.String()
	}
	stopTimer(&m.forfeit)
	m.conn = p.conn
	p.member = m
	p.log = p.log.With().Str("member", m.id).Str("seat", m.seat.String()).Logger()

	token, err := issueToken(s.opts.TokenSecret, s.opts.TokenTTL, seatClaims{
		Session: s.id, Member: m.id, Seat: m.seat, Name: m.name,
	})
	if err != nil {
		p.log.Error().Err(err).Msg("issue seat token")
	}
	p.send(protocol.MsgJoinAck, protocol.JoinAck{
		SessionID:    s.id,
		AssignedRole: m.seat,
		Token:        token,
		Snapshot:     s.ctrl.Current(),
	})
	p.log.Info().Str("name", m.name).Msg("joined")

	s.cancelIdleLocked()
	s.broadcastPlayersLocked()
	return nil
}

// reclaimLocked returns the member a valid seat token names, taking its seat
// back if nobody else holds it. A newer connection replaces an older one.
func (s *Session) reclaimLocked(raw string) *member {
	if raw == "" || len(s.opts.TokenSecret) == 0 {
		return nil
	}
	c, err := parseToken(s.opts.TokenSecret, raw)
	if err != nil || c.Session != s.id || !c.Seat.IsPlayer() {
		s.log.Debug().Err(err).Msg("seat token not accepted")
		return nil
	}
	if holder, ok := s.seats[c.Seat]; ok && holder != c.Member {
		return nil
	}
	m := s.members[c.Member]
	if m == nil {
		m = &member{id: c.Member, name: c.Name, seat: c.Seat}
		s.members[m.id] = m
		s.seats[m.seat] = m.id
	}
	if m.conn != nil {
		old := m.conn
		m.conn = nil
		_ = old.Close()
	}
	return m
}

func (p *Peer) move(env protocol.Envelope) error {
	s := p.s
	req, err := protocol.DecodePayload[protocol.MoveRequest](env)
	if err != nil {
		return p.fail(err)
	}
	b := s.ctrl.Board()
	from, err1 := b.Parse(req.From)
	to, err2 := b.Parse(req.To)
	if err1 != nil || err2 != nil {
		p.reject(errs.New(errs.CodeIllegalMove, game.ReasonUnknownPosition))
		return nil
	}
	if _, err := s.ctrl.Propose(p.member.seat, game.Move{From: from, To: to}); err != nil {
		p.reject(err)
	}
	return nil
}

func (p *Peer) resync(env protocol.Envelope) error {
	req, err := protocol.DecodePayload[protocol.Resync](env)
	if err != nil {
		return p.fail(err)
	}
	snap := p.s.ctrl.Current()
	if req.LastKnownMoveCount == snap.MoveCount {
		p.send(protocol.MsgInSync, protocol.InSync{MoveCount: snap.MoveCount})
		return nil
	}
	p.log.Info().
		Err(errs.Newf(errs.CodeDesync, "", "client at %d, server at %d", req.LastKnownMoveCount, snap.MoveCount)).
		Msg("resync")
	p.send(protocol.MsgFullSnapshot, protocol.FullSnapshot{Snapshot: snap})
	return nil
}

// reject answers the submitter alone.
func (p *Peer) reject(err error) {
	p.s.opts.Metrics.action(false)
	reason := errs.ReasonOf(err)
	if !errors.Is(err, errs.IllegalMove) || reason == "" {
		p.log.Error().Err(err).Msg("unexpected controller error")
		reason = "internal"
	}
	p.send(protocol.MsgMoveResult, protocol.Rejected(reason))
}

func (p *Peer) send(t string, payload any) {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		p.log.Error().Err(err).Str("type", t).Msg("encode")
		return
	}
	if err := p.conn.Send(b); err != nil {
		p.log.Warn().Err(err).Str("type", t).Msg("send failed")
	}
}

// fail reports a protocol violation to the peer and returns it.
func (p *Peer) fail(err error) error {
	notice := protocol.ErrorNotice{Code: string(errs.CodeProtocol), Reason: errs.ReasonOf(err), Message: err.Error()}
	p.send(protocol.MsgError, notice)
	p.log.Warn().Err(err).Msg("protocol violation")
	return err
}

// Disconnect detaches the connection. The member's seat stays reserved; the
// game state is untouched.
func (p *Peer) Disconnect() {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Metrics.connClosed()

	m := p.member
	if s.closed || m == nil || m.conn != p.conn {
		return
	}
	m.conn = nil
	if m.seat.IsPlayer() {
		s.startForfeitLocked(m)
	} else {
		delete(s.members, m.id)
	}
	p.log.Info().Msg("disconnected")
	s.broadcastPlayersLocked()
	if s.connectedLocked() == 0 && s.end == nil {
		s.startIdleLocked()
	}
}
