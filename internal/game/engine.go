// internal/game/engine.go
//
// Turn Controller for a single game.
// Responsibilities:
//   - Run validator -> capture resolver -> win evaluator -> state change ->
//     turn handoff as one transaction under the controller lock.
//   - Hold the chain context as explicit state (ChainInProgress), so a chain
//     survives a snapshot/restore round trip.
//   - Push an Event to subscribers after every accepted transition.
//
// State machine:
//   AwaitingMove(r)    + step             -> evaluate -> GameOver | AwaitingMove(other)
//   AwaitingMove(r)    + jump             -> ChainInProgress(w) if w can jump again,
//                                            else evaluate -> GameOver | AwaitingMove(other)
//   ChainInProgress(w) + jump from w      -> same as above
//   ChainInProgress(w) + end turn         -> evaluate -> GameOver | AwaitingMove(other)
//   any                + illegal action   -> rejected, state unchanged, no event
//
// Notes:
//   - Listeners run after the state lock is released, in subscription order.
//     Deliveries are serialised, so listeners see transitions in the order
//     they were applied. A listener may read the controller but must not
//     mutate it.
//   - The controller performs no I/O.
package game

import (
	"sort"
	"sync"

	"github.com/robalobadob/wolfsheep/internal/board"
	"github.com/robalobadob/wolfsheep/internal/errs"
)

// Controller is the only mutator of a game's State.
type Controller struct {
	mu        sync.Mutex
	state     *State
	listeners map[int]Listener
	nextID    int
	ticket    uint64 // last transition handed out for delivery

	dmu       sync.Mutex
	delivered uint64 // last transition whose listeners have returned
	turnCond  *sync.Cond
}

// NewController sets up a fresh game of r on b.
func NewController(b *board.Topology, r Rules) (*Controller, error) {
	s, err := NewState(b, r)
	if err != nil {
		return nil, err
	}
	c := &Controller{state: s, listeners: make(map[int]Listener)}
	c.turnCond = sync.NewCond(&c.dmu)
	return c, nil
}

// Board returns the board the game is played on.
func (c *Controller) Board() *board.Topology { return c.state.board }

// Rules returns the game's rules.
func (c *Controller) Rules() Rules { return c.state.rules }

// Subscribe registers l for every accepted transition. Call cancel to stop.
func (c *Controller) Subscribe(l Listener) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// listenersLocked returns the listeners in subscription order.
func (c *Controller) listenersLocked() []Listener {
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = c.listeners[id]
	}
	return out
}

// commit finishes an accepted action and unlocks; listeners are notified
// after the unlock.
func (c *Controller) commit(kind EventKind, o Outcome) Outcome {
	s := c.state
	s.moveCount++
	s.history = append(s.history, o.Notation)
	o.Phase = s.Phase()
	o.Turn = s.turn
	o.Result = s.result
	o.Snapshot = s.Snapshot()
	c.deliverLocked(Event{Kind: kind, Outcome: o})
	return o
}

// finishTurn clears the chain, hands the turn over and evaluates the result.
func (c *Controller) finishTurn() {
	s := c.state
	s.chain = board.None
	s.turn = s.turn.Other()
	s.result = Evaluate(s)
}

// Propose submits m on behalf of seat.
func (c *Controller) Propose(seat Seat, m Move) (Outcome, error) {
	c.mu.Lock()
	s := c.state
	eff, err := Validate(s, seat, m)
	if err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}

	switch eff.Kind {
	case Step:
		s.applyStep(eff.From, eff.To)
		c.finishTurn()
	case Capture:
		s.applyCapture(eff.From, eff.Over, eff.To)
		if len(Jumps(s, eff.To)) > 0 {
			s.chain = eff.To
		} else {
			c.finishTurn()
		}
	}
	o := Outcome{Effect: &eff, Notation: notateEffect(s.board, eff, s.result.Over())}
	return c.commit(EventMove, o), nil
}

// ProposeMove submits m for whichever side holds the turn. It is the entry
// point for a local game where one presentation layer plays both sides.
func (c *Controller) ProposeMove(m Move) (Outcome, error) {
	return c.Propose(SeatBoth, m)
}

// EndTurn stops a capture chain early. It is only legal mid-chain, for the
// wolves' seat, and only when the rules allow a voluntary stop.
func (c *Controller) EndTurn(seat Seat) (Outcome, error) {
	c.mu.Lock()
	s := c.state
	var reason string
	switch {
	case s.result.Over():
		reason = ReasonGameOver
	case !seat.IsPlayer():
		reason = ReasonNotAPlayer
	case s.chain == board.None:
		reason = ReasonNotInChain
	case !seat.Controls(RoleWolves):
		reason = ReasonWrongTurn
	case s.rules.Chain == ChainForced:
		reason = ReasonMustContinue
	}
	if reason != "" {
		c.mu.Unlock()
		return Outcome{}, illegal(reason)
	}
	mover := s.turn
	c.finishTurn()
	return c.commit(EventEndTurn, Outcome{Notation: notateEndTurn(mover, s.result.Over())}), nil
}

// Forfeit ends the game in favour of loser's opponent.
func (c *Controller) Forfeit(loser Role) (Outcome, error) {
	c.mu.Lock()
	s := c.state
	if s.result.Over() {
		c.mu.Unlock()
		return Outcome{}, illegal(ReasonGameOver)
	}
	s.chain = board.None
	s.result = Result{Status: winFor(loser.Other()), Reason: ReasonForfeit}
	return c.commit(EventForfeit, Outcome{Notation: notateForfeit(loser)}), nil
}

// Current returns a snapshot of the game.
func (c *Controller) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// Phase returns the state machine's current state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase()
}

// LegalMoves lists the moves the turn holder may make right now.
func (c *Controller) LegalMoves() []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return LegalMoves(c.state)
}

// Restore replaces the game with snap. Subscribers receive an EventRestore.
func (c *Controller) Restore(snap Snapshot) error {
	c.mu.Lock()
	if err := c.state.restore(snap); err != nil {
		c.mu.Unlock()
		return err
	}
	c.notifyLocked(EventRestore)
	return nil
}

// Reset starts a fresh game with the same rules.
func (c *Controller) Reset() error {
	c.mu.Lock()
	s, err := NewState(c.state.board, c.state.rules)
	if err != nil {
		c.mu.Unlock()
		return errs.Wrap(errs.CodeConfiguration, "reset", err)
	}
	c.state = s
	c.notifyLocked(EventReset)
	return nil
}

// notifyLocked sends a whole-state event without counting a move, then unlocks.
func (c *Controller) notifyLocked(kind EventKind) {
	s := c.state
	o := Outcome{Phase: s.Phase(), Turn: s.turn, Result: s.result, Snapshot: s.Snapshot()}
	c.deliverLocked(Event{Kind: kind, Outcome: o})
}

// deliverLocked releases mu and hands ev to the listeners. Each transition
// draws a ticket under mu and waits until the previous ticket is delivered,
// so a later transition cannot overtake an earlier one.
func (c *Controller) deliverLocked(ev Event) {
	c.ticket++
	ticket := c.ticket
	ls := c.listenersLocked()
	c.mu.Unlock()

	c.dmu.Lock()
	for c.delivered != ticket-1 {
		c.turnCond.Wait()
	}
	c.dmu.Unlock()
	defer func() {
		c.dmu.Lock()
		c.delivered = ticket
		c.turnCond.Broadcast()
		c.dmu.Unlock()
	}()

	for _, l := range ls {
		l(ev)
	}
}
