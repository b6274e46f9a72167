// internal/game/state.go
//
// Game State: piece placement, turn holder, chain context, move count,
// captures, terminal status and the recorder history.
//
// Only the Controller mutates a State. Readers outside the package see it
// through Snapshot, an immutable value that is safe to serialise and send.

package game

import (
	"github.com/robalobadob/wolfsheep/internal/board"
	"github.com/robalobadob/wolfsheep/internal/errs"
)

// State is the mutable game model.
type State struct {
	board     *board.Topology
	rules     Rules
	cells     []Occupant
	turn      Role
	chain     board.Position // wolf mid-chain, or board.None
	moveCount int
	captured  int
	result    Result
	history   []string
}

// NewState lays out r on b. A layout that does not fit the board is a
// configuration error.
func NewState(b *board.Topology, r Rules) (*State, error) {
	s := &State{
		board: b,
		rules: r,
		cells: make([]Occupant, b.Len()),
		turn:  r.FirstTurn,
		chain: board.None,
	}
	if len(r.Wolves) != 2 {
		return nil, errs.Newf(errs.CodeConfiguration, "bad-rules", "rules %q place %d wolves, want 2", r.Name, len(r.Wolves))
	}
	if len(r.Sheep) == 0 {
		return nil, errs.Newf(errs.CodeConfiguration, "bad-rules", "rules %q place no sheep", r.Name)
	}
	if r.WolfWinBelow < 0 || r.WolfWinBelow > len(r.Sheep) {
		return nil, errs.Newf(errs.CodeConfiguration, "bad-rules", "win threshold %d outside 0..%d", r.WolfWinBelow, len(r.Sheep))
	}
	if err := s.place(r.Wolves, Wolf); err != nil {
		return nil, errs.Wrap(errs.CodeConfiguration, "bad-rules", err)
	}
	if err := s.place(r.Sheep, Sheep); err != nil {
		return nil, errs.Wrap(errs.CodeConfiguration, "bad-rules", err)
	}
	return s, nil
}

func (s *State) place(names []string, o Occupant) error {
	for _, n := range names {
		p, err := s.board.Parse(n)
		if err != nil {
			return err
		}
		if s.cells[p] != Empty {
			return errs.Newf(errs.CodeConfiguration, "bad-rules", "%s is occupied twice", n)
		}
		s.cells[p] = o
	}
	return nil
}

// ---- read accessors ----

func (s *State) Board() *board.Topology { return s.board }
func (s *State) Rules() Rules           { return s.rules }
func (s *State) Turn() Role             { return s.turn }
func (s *State) MoveCount() int         { return s.moveCount }
func (s *State) Captured() int          { return s.captured }
func (s *State) Result() Result         { return s.result }

// Chain returns the wolf mid-chain, or board.None.
func (s *State) Chain() board.Position { return s.chain }

// OccupantAt returns what p holds. Unknown positions read as Empty.
func (s *State) OccupantAt(p board.Position) Occupant {
	if !s.board.Valid(p) {
		return Empty
	}
	return s.cells[p]
}

// Phase derives the turn state machine's state.
func (s *State) Phase() Phase {
	switch {
	case s.result.Over():
		return GameOver
	case s.chain != board.None:
		return ChainInProgress
	}
	return AwaitingMove
}

// Pieces returns the positions holding o, in arena order.
func (s *State) Pieces(o Occupant) []board.Position {
	var out []board.Position
	for i, c := range s.cells {
		if c == o {
			out = append(out, board.Position(i))
		}
	}
	return out
}

// SheepOnBoard counts sheep still in play, barn included.
func (s *State) SheepOnBoard() int { return len(s.Pieces(Sheep)) }

// BarnSheep counts sheep standing on barn positions.
func (s *State) BarnSheep() int {
	n := 0
	for _, p := range s.board.Barn() {
		if s.cells[p] == Sheep {
			n++
		}
	}
	return n
}

// ---- mutation (Controller only) ----

func (s *State) applyStep(from, to board.Position) {
	s.cells[to] = s.cells[from]
	s.cells[from] = Empty
}

// applyCapture vacates wolf, removes the sheep at over and places the wolf at to.
func (s *State) applyCapture(wolf, over, to board.Position) {
	s.cells[wolf] = Empty
	s.cells[over] = Empty
	s.cells[to] = Wolf
	s.captured++
}

// ---- snapshots ----

// Snapshot is an immutable, serialisable copy of a State.
type Snapshot struct {
	Board        string   `json:"board"`
	Rules        string   `json:"rules"`
	Wolves       []string `json:"wolves"`
	Sheep        []string `json:"sheep"`
	Turn         Role     `json:"turn"`
	Chain        string   `json:"chain,omitempty"` // wolf mid-chain
	MoveCount    int      `json:"moveCount"`
	Captured     int      `json:"captured"`
	InitialSheep int      `json:"initialSheep"`
	Result       Result   `json:"result"`
	History      []string `json:"history,omitempty"`
}

// Phase derives the state machine's state from the snapshot.
func (s Snapshot) Phase() Phase {
	switch {
	case s.Result.Over():
		return GameOver
	case s.Chain != "":
		return ChainInProgress
	}
	return AwaitingMove
}

func names(b *board.Topology, ps []board.Position) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = b.NameOf(p)
	}
	return out
}

// Snapshot copies the state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Board:        s.board.Name(),
		Rules:        s.rules.Name,
		Wolves:       names(s.board, s.Pieces(Wolf)),
		Sheep:        names(s.board, s.Pieces(Sheep)),
		Turn:         s.turn,
		MoveCount:    s.moveCount,
		Captured:     s.captured,
		InitialSheep: s.rules.InitialSheep(),
		Result:       s.result,
		History:      append([]string(nil), s.history...),
	}
	if s.chain != board.None {
		snap.Chain = s.board.NameOf(s.chain)
	}
	return snap
}

func badSnapshot(format string, args ...any) error {
	return errs.Newf(errs.CodeProtocol, "bad-snapshot", format, args...)
}

// restore replaces the state with snap after checking it is reachable-shaped:
// two wolves, no shared positions, conserved sheep, and a chain that names a
// wolf with a continuation.
func (s *State) restore(snap Snapshot) error {
	if snap.Board != "" && snap.Board != s.board.Name() {
		return badSnapshot("snapshot is for board %q, not %q", snap.Board, s.board.Name())
	}
	if snap.Rules != "" && snap.Rules != s.rules.Name {
		return badSnapshot("snapshot is for rules %q, not %q", snap.Rules, s.rules.Name)
	}
	if snap.InitialSheep != s.rules.InitialSheep() {
		return badSnapshot("snapshot starts with %d sheep, rules start with %d", snap.InitialSheep, s.rules.InitialSheep())
	}
	if snap.MoveCount < 0 || snap.Captured < 0 {
		return badSnapshot("negative counters")
	}

	next := &State{
		board:     s.board,
		rules:     s.rules,
		cells:     make([]Occupant, s.board.Len()),
		turn:      snap.Turn,
		chain:     board.None,
		moveCount: snap.MoveCount,
		captured:  snap.Captured,
		result:    snap.Result,
		history:   append([]string(nil), snap.History...),
	}
	if len(snap.Wolves) != 2 {
		return badSnapshot("snapshot has %d wolves", len(snap.Wolves))
	}
	if err := next.place(snap.Wolves, Wolf); err != nil {
		return errs.Wrap(errs.CodeProtocol, "bad-snapshot", err)
	}
	if err := next.place(snap.Sheep, Sheep); err != nil {
		return errs.Wrap(errs.CodeProtocol, "bad-snapshot", err)
	}
	if len(snap.Sheep)+snap.Captured != snap.InitialSheep {
		return badSnapshot("%d sheep + %d captured != %d", len(snap.Sheep), snap.Captured, snap.InitialSheep)
	}
	if !snap.Result.Over() && snap.Result.Reason != "" {
		return badSnapshot("ongoing game with reason %q", snap.Result.Reason)
	}
	if snap.Chain != "" {
		p, err := s.board.Parse(snap.Chain)
		if err != nil {
			return errs.Wrap(errs.CodeProtocol, "bad-snapshot", err)
		}
		if snap.Result.Over() || snap.Turn != RoleWolves || next.cells[p] != Wolf {
			return badSnapshot("chain at %s does not name the moving wolf", snap.Chain)
		}
		next.chain = p
		if len(Jumps(next, p)) == 0 {
			return badSnapshot("chain at %s has no continuation", snap.Chain)
		}
	}
	*s = *next
	return nil
}
