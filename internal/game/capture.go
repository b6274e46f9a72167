// internal/game/capture.go
//
// Capture Resolver and move generation.
//
// Jumps are enumerated one at a time against the live state: after every
// applied capture the controller asks again from the wolf's new position.
// No capture tree is computed ahead, so a sheep removed by an earlier jump can
// never be counted by a later one.

package game

import "github.com/robalobadob/wolfsheep/internal/board"

// jumpLine reports whether from -> over -> to is a line a capture may follow.
// Straight lines and 45° bends at marked corners qualify; 90° turns never do.
func jumpLine(b *board.Topology, from, over, to board.Position) (board.Corner, bool) {
	c, ok := b.CornerCut(from, over, to)
	if !ok || c == board.CornerNinety {
		return c, false
	}
	return c, true
}

// Jumps lists the legal single capture jumps for the wolf at from.
func Jumps(s *State, from board.Position) []Effect {
	if s.OccupantAt(from) != Wolf {
		return nil
	}
	b := s.board
	var out []Effect
	for _, in := range b.Neighbors(from) {
		over := in.To
		if s.cells[over] != Sheep {
			continue
		}
		for _, l := range b.Neighbors(over) {
			to := l.To
			if to == from || s.cells[to] != Empty {
				continue
			}
			if _, ok := jumpLine(b, from, over, to); !ok {
				continue
			}
			out = append(out, Effect{Kind: Capture, Piece: Wolf, From: from, Over: over, To: to})
		}
	}
	return out
}

// sheepStep reports whether a sheep may walk along l: orthogonal links only,
// upward or sideways.
func sheepStep(l board.Link) bool {
	if l.Class != board.Orthogonal {
		return false
	}
	switch l.Dir {
	case board.North, board.East, board.West:
		return true
	}
	return false
}

// Steps lists the simple steps for the piece at from.
func Steps(s *State, from board.Position) []Effect {
	piece := s.OccupantAt(from)
	if piece == Empty {
		return nil
	}
	var out []Effect
	for _, l := range s.board.Neighbors(from) {
		if s.cells[l.To] != Empty {
			continue
		}
		if piece == Sheep && !sheepStep(l) {
			continue
		}
		out = append(out, Effect{Kind: Step, Piece: piece, From: from, Over: board.None, To: l.To})
	}
	return out
}

// canMove reports whether any piece of role r has a step or (for wolves) a jump.
func canMove(s *State, r Role) bool {
	piece := Sheep
	if r == RoleWolves {
		piece = Wolf
	}
	for _, p := range s.Pieces(piece) {
		if len(Steps(s, p)) > 0 {
			return true
		}
		if piece == Wolf && len(Jumps(s, p)) > 0 {
			return true
		}
	}
	return false
}

// LegalMoves lists every move the turn holder may make. During a chain only
// the chain wolf's jumps are listed; after the game ends the list is empty.
func LegalMoves(s *State) []Effect {
	switch s.Phase() {
	case GameOver:
		return nil
	case ChainInProgress:
		return Jumps(s, s.chain)
	}
	piece := Sheep
	if s.turn == RoleWolves {
		piece = Wolf
	}
	var out []Effect
	for _, p := range s.Pieces(piece) {
		out = append(out, Steps(s, p)...)
		if piece == Wolf {
			out = append(out, Jumps(s, p)...)
		}
	}
	return out
}
