package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/wolfsheep/internal/board"
	"github.com/robalobadob/wolfsheep/internal/errs"
	"github.com/robalobadob/wolfsheep/internal/game"
	"github.com/robalobadob/wolfsheep/internal/protocol"
	"github.com/robalobadob/wolfsheep/internal/store"
)

type fakeConn struct {
	sendCh chan []byte

	mu     sync.Mutex
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{sendCh: make(chan []byte, 256)} }

func (f *fakeConn) Send(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case f.sendCh <- cp:
		return nil
	default:
		return errors.New("queue full")
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// drain returns every message queued so far.
func drain(t *testing.T, fc *fakeConn) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case b := <-fc.sendCh:
			env, err := protocol.DecodeEnvelope(b)
			require.NoError(t, err)
			out = append(out, env)
		default:
			return out
		}
	}
}

// expect waits for the next message of type typ, skipping others.
func expect(t *testing.T, fc *fakeConn, typ string) protocol.Envelope {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case b := <-fc.sendCh:
			env, err := protocol.DecodeEnvelope(b)
			require.NoError(t, err)
			if env.T == typ {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func payload[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	v, err := protocol.DecodePayload[T](env)
	require.NoError(t, err)
	return v
}

func ofType(envs []protocol.Envelope, typ string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, e := range envs {
		if e.T == typ {
			out = append(out, e)
		}
	}
	return out
}

func moveFrame(from, to string) []byte {
	return protocol.MustEncode(protocol.MsgMove, protocol.MoveRequest{From: from, To: to})
}

func testOptions() Options {
	return Options{TokenSecret: []byte("test-secret"), TokenTTL: time.Hour}
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(board.MustStandard(), game.StandardRules(), opts)
	t.Cleanup(m.Close)
	return m
}

func create(t *testing.T, m *Manager, req CreateRequest) *Session {
	t.Helper()
	s, err := m.Create(context.Background(), req)
	require.NoError(t, err)
	return s
}

func tryJoin(s *Session, req protocol.JoinRequest) (*Peer, *fakeConn, error) {
	fc := newFakeConn()
	p := s.Connect(fc)
	req.V = protocol.Version
	err := p.Handle(protocol.MustEncode(protocol.MsgJoin, req))
	return p, fc, err
}

func join(t *testing.T, s *Session, seat game.Seat, name, token string) (*Peer, *fakeConn, protocol.JoinAck) {
	t.Helper()
	p, fc, err := tryJoin(s, protocol.JoinRequest{DesiredRole: seat, Name: name, Token: token})
	require.NoError(t, err)
	ack := payload[protocol.JoinAck](t, expect(t, fc, protocol.MsgJoinAck))
	return p, fc, ack
}

// restore replaces the session's game the way the controller's owner does.
func restore(t *testing.T, s *Session, snap game.Snapshot) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NoError(t, s.ctrl.Restore(snap))
}

func requireProtocolError(t *testing.T, err error, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.Protocol), "%v", err)
	assert.Equal(t, reason, errs.ReasonOf(err))
}

func TestJoinAssignsSeats(t *testing.T) {
	m := newTestManager(t, testOptions())
	s := create(t, m, CreateRequest{})

	_, _, wolves := join(t, s, game.SeatWolves, "ann", "")
	assert.Equal(t, game.SeatWolves, wolves.AssignedRole)
	assert.Equal(t, s.ID(), wolves.SessionID)
	assert.NotEmpty(t, wolves.Token)
	assert.Equal(t, 0, wolves.Snapshot.MoveCount)

	_, _, sheep := join(t, s, game.SeatSheep, "bob", "")
	assert.Equal(t, game.SeatSheep, sheep.AssignedRole)

	_, fc, late := join(t, s, game.SeatWolves, "cy", "")
	assert.Equal(t, game.SeatSpectator, late.AssignedRole, "taken seat falls back to spectator")

	players := payload[protocol.PlayerList](t, expect(t, fc, protocol.MsgPlayers))
	require.Len(t, players.Players, 3)
	assert.Equal(t, protocol.Player{Name: "ann", Seat: game.SeatWolves, Connected: true}, players.Players[0])
	assert.Equal(t, protocol.Player{Name: "bob", Seat: game.SeatSheep, Connected: true}, players.Players[1])
	assert.Equal(t, protocol.Player{Name: "cy", Seat: game.SeatSpectator, Connected: true}, players.Players[2])
}

func TestAcceptedBroadcastRejectedPrivate(t *testing.T) {
	m := newTestManager(t, testOptions())
	s := create(t, m, CreateRequest{})
	pw, fw, _ := join(t, s, game.SeatWolves, "w", "")
	ps, fs, _ := join(t, s, game.SeatSheep, "s", "")
	pv, fv, _ := join(t, s, game.SeatSpectator, "v", "")
	drain(t, fw)
	drain(t, fs)
	drain(t, fv)

	require.NoError(t, pw.Handle(moveFrame("b5", "b6")))
	for _, fc := range []*fakeConn{fw, fs, fv} {
		res := payload[protocol.MoveResult](t, expect(t, fc, protocol.MsgMoveResult))
		require.True(t, res.Accepted)
		require.NotNil(t, res.NewSnapshot)
		assert.Equal(t, 1, res.NewSnapshot.MoveCount)
		require.NotNil(t, res.NextTurnHolder)
		assert.Equal(t, game.RoleSheep, *res.NextTurnHolder)
		assert.Equal(t, &protocol.MoveInfo{Piece: "wolf", From: "b5", To: "b6"}, res.Move)
		assert.Equal(t, "Wb5-b6", res.Notation)
	}

	require.NoError(t, pw.Handle(moveFrame("d5", "d4")), "an illegal move is not a protocol error")
	res := payload[protocol.MoveResult](t, expect(t, fw, protocol.MsgMoveResult))
	assert.False(t, res.Accepted)
	assert.Equal(t, game.ReasonWrongTurn, res.Reason)
	assert.Nil(t, res.NewSnapshot)
	assert.Empty(t, drain(t, fs), "rejections go to the submitter only")
	assert.Empty(t, drain(t, fv))

	require.NoError(t, pv.Handle(moveFrame("b2", "c2")))
	res = payload[protocol.MoveResult](t, expect(t, fv, protocol.MsgMoveResult))
	assert.Equal(t, game.ReasonNotAPlayer, res.Reason)

	require.NoError(t, ps.Handle(moveFrame("b2", "z9")))
	res = payload[protocol.MoveResult](t, expect(t, fs, protocol.MsgMoveResult))
	assert.Equal(t, game.ReasonUnknownPosition, res.Reason)

	assert.Equal(t, 1, s.Snapshot().MoveCount)
}

func TestChainOverTheWire(t *testing.T) {
	m := newTestManager(t, testOptions())
	s := create(t, m, CreateRequest{})
	pw, fw, _ := join(t, s, game.SeatWolves, "w", "")
	ps, fs, _ := join(t, s, game.SeatSheep, "s", "")

	restore(t, s, game.Snapshot{
		Wolves:       []string{"c4", "e5"},
		Sheep:        []string{"c3", "b2", "a1", "b1", "c1", "d1", "e1", "e2", "d3"},
		Turn:         game.RoleWolves,
		InitialSheep: 9,
	})
	full := payload[protocol.FullSnapshot](t, expect(t, fs, protocol.MsgFullSnapshot))
	assert.ElementsMatch(t, []string{"c4", "e5"}, full.Snapshot.Wolves)
	drain(t, fw)

	require.NoError(t, pw.Handle(moveFrame("c4", "c2")))
	res := payload[protocol.MoveResult](t, expect(t, fs, protocol.MsgMoveResult))
	require.True(t, res.Accepted)
	assert.Equal(t, "c2", res.NewSnapshot.Chain)
	assert.Equal(t, game.RoleWolves, *res.NextTurnHolder, "the chain keeps the turn")
	assert.Equal(t, "c3", res.Move.Over)
	drain(t, fw)

	require.NoError(t, ps.Handle(moveFrame("e2", "e3")))
	res = payload[protocol.MoveResult](t, expect(t, fs, protocol.MsgMoveResult))
	assert.Equal(t, game.ReasonChainWrongPiece, res.Reason)
	assert.Empty(t, drain(t, fw))

	// Eight sheep left is below the standard threshold, so completing the
	// turn ends the game.
	require.NoError(t, pw.Handle(protocol.MustEncode(protocol.MsgEndTurn, protocol.EndTurnRequest{})))
	res = payload[protocol.MoveResult](t, expect(t, fs, protocol.MsgMoveResult))
	require.True(t, res.Accepted)
	assert.Equal(t, "W*#", res.Notation)
	assert.Nil(t, res.Move)
	over := payload[protocol.GameOverNotice](t, expect(t, fs, protocol.MsgGameOver))
	assert.Equal(t, protocol.GameOverNotice{Result: game.WolfWin, Reason: game.ReasonSheepDepleted}, over)
}

func TestResync(t *testing.T) {
	m := newTestManager(t, testOptions())
	s := create(t, m, CreateRequest{})
	ps, fs, _ := join(t, s, game.SeatSheep, "s", "")

	snap := s.Snapshot()
	snap.MoveCount = 7
	restore(t, s, snap)
	drain(t, fs)

	require.NoError(t, ps.Handle(protocol.MustEncode(protocol.MsgResync, protocol.Resync{LastKnownMoveCount: 3})))
	full := payload[protocol.FullSnapshot](t, expect(t, fs, protocol.MsgFullSnapshot))
	assert.Equal(t, 7, full.Snapshot.MoveCount)

	require.NoError(t, ps.Handle(protocol.MustEncode(protocol.MsgResync, protocol.Resync{LastKnownMoveCount: 7})))
	envs := drain(t, fs)
	require.Len(t, envs, 1)
	require.Equal(t, protocol.MsgInSync, envs[0].T)
	assert.Equal(t, 7, payload[protocol.InSync](t, envs[0]).MoveCount)
}

func TestProtocolViolations(t *testing.T) {
	m := newTestManager(t, testOptions())
	s := create(t, m, CreateRequest{})

	fc := newFakeConn()
	p := s.Connect(fc)
	requireProtocolError(t, p.Handle(moveFrame("b5", "b6")), "not-joined")
	notice := payload[protocol.ErrorNotice](t, expect(t, fc, protocol.MsgError))
	assert.Equal(t, "not-joined", notice.Reason)
	assert.Equal(t, string(errs.CodeProtocol), notice.Code)

	requireProtocolError(t, p.Handle([]byte("{nope")), "malformed-envelope")
	requireProtocolError(t, p.Handle([]byte(`{"t":"move","p":{"from":1}}`)), "not-joined")

	_, _, err := tryJoin(s, protocol.JoinRequest{DesiredRole: game.SeatWolves, Token: "x"})
	require.NoError(t, err, "a bad token is ignored, not fatal")

	pw, _, _ := join(t, s, game.SeatSheep, "s", "")
	requireProtocolError(t, pw.Handle(protocol.MustEncode(protocol.MsgJoin, protocol.JoinRequest{V: protocol.Version})), "already-joined")
	requireProtocolError(t, pw.Handle(protocol.MustEncode("dance", struct{}{})), "unknown-type")
	requireProtocolError(t, pw.Handle([]byte(`{"t":"move","p":{"from":1}}`)), "malformed-payload")

	fc = newFakeConn()
	p = s.Connect(fc)
	err = p.Handle(protocol.MustEncode(protocol.MsgJoin, protocol.JoinRequest{V: 99}))
	requireProtocolError(t, err, "version-mismatch")

	assert.Equal(t, 0, s.Snapshot().MoveCount, "violations never touch the game")
}

func TestReconnectWithToken(t *testing.T) {
	m := newTestManager(t, testOptions())
	s := create(t, m, CreateRequest{})
	pw, _, ack := join(t, s, game.SeatWolves, "w", "")
	_, fs, _ := join(t, s, game.SeatSheep, "s", "")
	drain(t, fs)

	pw.Disconnect()
	players := payload[protocol.PlayerList](t, expect(t, fs, protocol.MsgPlayers))
	assert.Equal(t, protocol.Player{Name: "w", Seat: game.SeatWolves, Connected: false}, players.Players[0])

	_, _, intruder := join(t, s, game.SeatWolves, "x", "")
	assert.Equal(t, game.SeatSpectator, intruder.AssignedRole, "a reserved seat is not free")

	_, _, forged := join(t, s, game.SeatSpectator, "y", "not-a-token")
	assert.Equal(t, game.SeatSpectator, forged.AssignedRole)

	pw2, fw2, back := join(t, s, game.SeatSpectator, "", ack.Token)
	assert.Equal(t, game.SeatWolves, back.AssignedRole)
	require.NoError(t, pw2.Handle(moveFrame("b5", "b6")))
	res := payload[protocol.MoveResult](t, expect(t, fw2, protocol.MsgMoveResult))
	assert.True(t, res.Accepted)
}

func TestTokenFromAnotherSessionIgnored(t *testing.T) {
	m := newTestManager(t, testOptions())
	s1 := create(t, m, CreateRequest{})
	s2 := create(t, m, CreateRequest{})
	_, _, ack := join(t, s1, game.SeatWolves, "w", "")
	join(t, s2, game.SeatWolves, "other", "")

	_, _, got := join(t, s2, game.SeatSpectator, "w", ack.Token)
	assert.Equal(t, game.SeatSpectator, got.AssignedRole)
}

func TestNewConnectionReplacesOld(t *testing.T) {
	m := newTestManager(t, testOptions())
	s := create(t, m, CreateRequest{})
	pw, fw, ack := join(t, s, game.SeatWolves, "w", "")

	_, fw2, back := join(t, s, game.SeatSpectator, "", ack.Token)
	assert.Equal(t, game.SeatWolves, back.AssignedRole)
	assert.True(t, fw.isClosed())

	requireProtocolError(t, pw.Handle(moveFrame("b5", "b6")), "connection-replaced")
	pw.Disconnect()
	drain(t, fw2)

	info := s.Info()
	require.Len(t, info.Players, 1)
	assert.True(t, info.Players[0].Connected, "the replaced connection's disconnect is ignored")
}

func TestPasswordProtectedSession(t *testing.T) {
	m := newTestManager(t, testOptions())
	s := create(t, m, CreateRequest{Password: "hunter2"})
	assert.True(t, s.Protected())

	_, fc, err := tryJoin(s, protocol.JoinRequest{DesiredRole: game.SeatWolves, Password: "guess"})
	requireProtocolError(t, err, "bad-password")
	assert.Equal(t, "bad-password", payload[protocol.ErrorNotice](t, expect(t, fc, protocol.MsgError)).Reason)

	_, _, err = tryJoin(s, protocol.JoinRequest{DesiredRole: game.SeatWolves, Password: "hunter2"})
	require.NoError(t, err)
}

func TestForfeitAfterDisconnect(t *testing.T) {
	st := store.NewMemoryStore()
	opts := testOptions()
	opts.ForfeitTimeout = 20 * time.Millisecond
	opts.EndLinger = time.Hour
	opts.Store = st
	m := newTestManager(t, opts)
	s := create(t, m, CreateRequest{})
	pw, _, _ := join(t, s, game.SeatWolves, "w", "")
	_, fs, _ := join(t, s, game.SeatSheep, "s", "")

	pw.Disconnect()
	over := payload[protocol.GameOverNotice](t, expect(t, fs, protocol.MsgGameOver))
	assert.Equal(t, protocol.GameOverNotice{Result: game.SheepWin, Reason: game.ReasonForfeit}, over)

	require.Eventually(t, func() bool {
		_, err := st.Get(context.Background(), s.ID())
		return errors.Is(err, store.ErrNotFound)
	}, time.Second, 5*time.Millisecond, "finished games are not kept")
}

func TestReconnectCancelsForfeit(t *testing.T) {
	opts := testOptions()
	opts.ForfeitTimeout = 50 * time.Millisecond
	m := newTestManager(t, opts)
	s := create(t, m, CreateRequest{})
	pw, _, ack := join(t, s, game.SeatWolves, "w", "")
	join(t, s, game.SeatSheep, "s", "")

	pw.Disconnect()
	join(t, s, game.SeatSpectator, "", ack.Token)
	time.Sleep(150 * time.Millisecond)
	assert.False(t, s.Snapshot().Result.Over())
}

func TestIdleSessionDestroyed(t *testing.T) {
	st := store.NewMemoryStore()
	opts := testOptions()
	opts.IdleTimeout = 20 * time.Millisecond
	opts.Store = st
	m := newTestManager(t, opts)

	s := create(t, m, CreateRequest{})
	stored := func() bool {
		_, err := st.Get(context.Background(), s.ID())
		return err == nil
	}
	require.Eventually(t, stored, time.Second, time.Millisecond, "new sessions are persisted")

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Closed())
	require.Eventually(t, func() bool { return !stored() }, time.Second, 5*time.Millisecond)

	s = create(t, m, CreateRequest{})
	p, _, _ := join(t, s, game.SeatSpectator, "v", "")
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, m.Len(), "attached sessions do not idle out")
	p.Disconnect()
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestFinishedGameCloses(t *testing.T) {
	opts := testOptions()
	opts.EndLinger = 20 * time.Millisecond
	m := newTestManager(t, opts)
	s := create(t, m, CreateRequest{})
	pw, fw, _ := join(t, s, game.SeatWolves, "w", "")
	_, fs, _ := join(t, s, game.SeatSheep, "s", "")

	require.NoError(t, pw.Handle(protocol.MustEncode(protocol.MsgForfeit, protocol.ForfeitRequest{})))
	over := payload[protocol.GameOverNotice](t, expect(t, fs, protocol.MsgGameOver))
	assert.Equal(t, game.SheepWin, over.Result)
	res := payload[protocol.MoveResult](t, expect(t, fw, protocol.MsgMoveResult))
	assert.Equal(t, "W resigns", res.Notation)

	require.Eventually(t, s.Closed, time.Second, 5*time.Millisecond)
	assert.True(t, fw.isClosed())
	assert.True(t, fs.isClosed())
	assert.Equal(t, 0, m.Len())
	_, err := m.Get(s.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentSubmissionsApplyOnce(t *testing.T) {
	m := newTestManager(t, testOptions())
	s := create(t, m, CreateRequest{})
	pw, fw, _ := join(t, s, game.SeatWolves, "w", "")
	drain(t, fw)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pw.Handle(moveFrame("b5", "b6")))
		}()
	}
	wg.Wait()

	accepted, rejected := 0, 0
	for _, env := range ofType(drain(t, fw), protocol.MsgMoveResult) {
		if payload[protocol.MoveResult](t, env).Accepted {
			accepted++
		} else {
			rejected++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, 1, s.Snapshot().MoveCount)
}

func TestManagerRulesAndCap(t *testing.T) {
	opts := testOptions()
	opts.MaxSessions = 1
	m := newTestManager(t, opts)

	r, err := m.Rules(CreateRequest{Rules: "classic", Chain: "forced", FirstTurn: "wolves"})
	require.NoError(t, err)
	assert.Equal(t, "classic", r.Name)
	assert.Equal(t, game.ChainForced, r.Chain)
	assert.Equal(t, game.RoleWolves, r.FirstTurn)

	_, err = m.Rules(CreateRequest{Rules: "nope"})
	assert.ErrorIs(t, err, errs.Configuration)
	_, err = m.Rules(CreateRequest{Chain: "sometimes"})
	assert.ErrorIs(t, err, errs.Configuration)

	s := create(t, m, CreateRequest{Rules: "classic"})
	assert.Len(t, s.Snapshot().Sheep, 15)
	_, err = m.Create(context.Background(), CreateRequest{})
	assert.ErrorIs(t, err, ErrTooManySessions)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, s.ID(), list[0].ID)
	assert.Equal(t, "classic", list[0].Rules)
	assert.Equal(t, game.RoleSheep, list[0].Turn)
}

func TestManagerRestore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	opts := testOptions()
	opts.Store = st

	m1 := NewManager(board.MustStandard(), game.StandardRules(), opts)
	s := create(t, m1, CreateRequest{Password: "pw"})
	pw, fw, _ := tryJoinOK(t, s, protocol.JoinRequest{DesiredRole: game.SeatWolves, Password: "pw"})
	require.NoError(t, pw.Handle(moveFrame("b5", "b6")))
	m1.Close()
	assert.True(t, fw.isClosed())

	require.NoError(t, st.Save(ctx, store.Record{ID: "broken", Rules: game.StandardRules(), Snapshot: game.Snapshot{Wolves: []string{"a1"}}}))
	done := s.Snapshot()
	done.Result = game.Result{Status: game.WolfWin, Reason: game.ReasonForfeit}
	require.NoError(t, st.Save(ctx, store.Record{ID: "done", Rules: game.StandardRules(), Snapshot: done}))

	m2 := newTestManager(t, opts)
	n, err := m2.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := m2.Get(s.ID())
	require.NoError(t, err)
	assert.True(t, got.Protected())
	snap := got.Snapshot()
	assert.Equal(t, 1, snap.MoveCount)
	assert.Contains(t, snap.Wolves, "b6")

	for _, id := range []string{"broken", "done"} {
		_, err := st.Get(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound, id)
	}
}

func TestResetOverTheWire(t *testing.T) {
	st := store.NewMemoryStore()
	opts := testOptions()
	opts.EndLinger = 200 * time.Millisecond
	opts.Store = st
	m := newTestManager(t, opts)
	s := create(t, m, CreateRequest{})
	pw, fw, _ := join(t, s, game.SeatWolves, "w", "")
	ps, fs, _ := join(t, s, game.SeatSheep, "s", "")
	pv, fv, _ := join(t, s, game.SeatSpectator, "v", "")
	reset := protocol.MustEncode(protocol.MsgReset, protocol.ResetRequest{})

	require.NoError(t, pv.Handle(reset))
	res := payload[protocol.MoveResult](t, expect(t, fv, protocol.MsgMoveResult))
	assert.Equal(t, game.ReasonNotAPlayer, res.Reason)

	require.NoError(t, pw.Handle(moveFrame("b5", "b6")))
	require.NoError(t, ps.Handle(protocol.MustEncode(protocol.MsgForfeit, protocol.ForfeitRequest{})))
	expect(t, fw, protocol.MsgGameOver)
	require.Eventually(t, func() bool {
		_, err := st.Get(context.Background(), s.ID())
		return errors.Is(err, store.ErrNotFound)
	}, time.Second, time.Millisecond)

	require.NoError(t, pw.Handle(reset))
	for _, fc := range []*fakeConn{fw, fs, fv} {
		full := payload[protocol.FullSnapshot](t, expect(t, fc, protocol.MsgFullSnapshot))
		assert.Equal(t, 0, full.Snapshot.MoveCount)
		assert.False(t, full.Snapshot.Result.Over())
		assert.ElementsMatch(t, []string{"b5", "d5"}, full.Snapshot.Wolves)
	}

	time.Sleep(300 * time.Millisecond)
	assert.False(t, s.Closed(), "a reset game stays open")
	require.Eventually(t, func() bool {
		rec, err := st.Get(context.Background(), s.ID())
		return err == nil && rec.Snapshot.MoveCount == 0
	}, time.Second, time.Millisecond, "the fresh game is persisted again")

	require.NoError(t, pw.Handle(moveFrame("b5", "b6")))
	res = payload[protocol.MoveResult](t, expect(t, fs, protocol.MsgMoveResult))
	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.NewSnapshot.MoveCount)
}

// slowStore blocks every save until release is closed.
type slowStore struct {
	store.Store
	release chan struct{}

	mu    sync.Mutex
	saves int
}

func (s *slowStore) Save(ctx context.Context, rec store.Record) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Store.Save(ctx, rec)
}

func TestSlowStoreDoesNotStallMoves(t *testing.T) {
	st := &slowStore{Store: store.NewMemoryStore(), release: make(chan struct{})}
	opts := testOptions()
	opts.Store = st
	m := newTestManager(t, opts)
	s := create(t, m, CreateRequest{})
	pw, _, _ := join(t, s, game.SeatWolves, "w", "")
	ps, _, _ := join(t, s, game.SeatSheep, "s", "")

	played := make(chan error, 1)
	go func() {
		if err := pw.Handle(moveFrame("b5", "b6")); err != nil {
			played <- err
			return
		}
		played <- ps.Handle(moveFrame("a2", "a3"))
	}()
	select {
	case err := <-played:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("moves blocked on the store")
	}
	assert.Equal(t, 2, s.Snapshot().MoveCount)

	close(st.release)
	require.Eventually(t, func() bool {
		rec, err := st.Get(context.Background(), s.ID())
		return err == nil && rec.Snapshot.MoveCount == 2
	}, time.Second, time.Millisecond)
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.LessOrEqual(t, st.saves, 2, "superseded snapshots are skipped")
}

func tryJoinOK(t *testing.T, s *Session, req protocol.JoinRequest) (*Peer, *fakeConn, protocol.JoinAck) {
	t.Helper()
	p, fc, err := tryJoin(s, req)
	require.NoError(t, err)
	return p, fc, payload[protocol.JoinAck](t, expect(t, fc, protocol.MsgJoinAck))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := testOptions()
	opts.Metrics = NewMetrics(reg)
	m := newTestManager(t, opts)

	s := create(t, m, CreateRequest{})
	assert.Equal(t, 1.0, testutil.ToFloat64(opts.Metrics.Sessions))

	pw, _, _ := join(t, s, game.SeatWolves, "w", "")
	assert.Equal(t, 1.0, testutil.ToFloat64(opts.Metrics.Connections))

	require.NoError(t, pw.Handle(moveFrame("b5", "b6")))
	require.NoError(t, pw.Handle(moveFrame("d5", "d4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(opts.Metrics.Moves.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(opts.Metrics.Moves.WithLabelValues("rejected")))

	require.NoError(t, pw.Handle(protocol.MustEncode(protocol.MsgForfeit, protocol.ForfeitRequest{})))
	assert.Equal(t, 1.0, testutil.ToFloat64(opts.Metrics.Games.WithLabelValues("sheep-win", "forfeit")))

	pw.Disconnect()
	assert.Equal(t, 0.0, testutil.ToFloat64(opts.Metrics.Connections))
}
