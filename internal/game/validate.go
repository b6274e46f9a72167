// internal/game/validate.go
//
// Move Validator: decides whether a proposed move is legal for the acting
// seat and resolves it into an Effect.
//
// Checks run in a fixed order so a move that breaks several rules always
// reports the same reason:
//   game-over, not-a-player, unknown-position, empty-source,
//   chain-in-progress-wrong-piece, wrong-turn, occupied-destination,
//   then the step or jump geometry.

package game

import (
	"github.com/robalobadob/wolfsheep/internal/board"
	"github.com/robalobadob/wolfsheep/internal/errs"
)

// Rejection reasons reported with errs.IllegalMove.
const (
	ReasonGameOver          = "game-over"
	ReasonNotAPlayer        = "not-a-player"
	ReasonUnknownPosition   = "unknown-position"
	ReasonEmptySource       = "empty-source"
	ReasonChainWrongPiece   = "chain-in-progress-wrong-piece"
	ReasonWrongTurn         = "wrong-turn"
	ReasonOccupied          = "occupied-destination"
	ReasonWrongDirection    = "wrong-direction"
	ReasonNotAdjacent       = "not-adjacent"
	ReasonNoCaptureGeometry = "no-capture-geometry"
	ReasonCornerBlocked     = "corner-blocked"
	ReasonNotInChain        = "not-in-chain"
	ReasonMustContinue      = "must-continue"
)

func illegal(reason string) error { return errs.New(errs.CodeIllegalMove, reason) }

// Validate checks m against s for seat and returns the resolved effect.
// Errors are *errs.Error with Code illegal-move.
func Validate(s *State, seat Seat, m Move) (Effect, error) {
	if s.result.Over() {
		return Effect{}, illegal(ReasonGameOver)
	}
	if !seat.IsPlayer() {
		return Effect{}, illegal(ReasonNotAPlayer)
	}
	b := s.board
	if !b.Valid(m.From) || !b.Valid(m.To) {
		return Effect{}, illegal(ReasonUnknownPosition)
	}
	piece := s.cells[m.From]
	if piece == Empty {
		return Effect{}, illegal(ReasonEmptySource)
	}
	if s.chain != board.None && m.From != s.chain {
		return Effect{}, illegal(ReasonChainWrongPiece)
	}
	owner, _ := piece.Role()
	if owner != s.turn || !seat.Controls(owner) {
		return Effect{}, illegal(ReasonWrongTurn)
	}
	if s.cells[m.To] != Empty {
		return Effect{}, illegal(ReasonOccupied)
	}

	if l, ok := b.Link(m.From, m.To); ok {
		if s.chain != board.None {
			return Effect{}, illegal(ReasonNoCaptureGeometry)
		}
		if piece == Sheep && !sheepStep(l) {
			return Effect{}, illegal(ReasonWrongDirection)
		}
		return Effect{Kind: Step, Piece: piece, From: m.From, Over: board.None, To: m.To}, nil
	}

	if piece == Sheep {
		return Effect{}, illegal(ReasonNotAdjacent)
	}
	return resolveJump(s, m)
}

// resolveJump looks for a sheep between the wolf and the landing position on
// a line a capture may follow. When the only candidate lines turn by 90° the
// jump is corner-blocked.
func resolveJump(s *State, m Move) (Effect, error) {
	b := s.board
	blocked := false
	for _, l := range b.Neighbors(m.From) {
		over := l.To
		if s.cells[over] != Sheep || !b.Adjacent(over, m.To) {
			continue
		}
		corner, ok := jumpLine(b, m.From, over, m.To)
		if ok {
			return Effect{Kind: Capture, Piece: Wolf, From: m.From, Over: over, To: m.To}, nil
		}
		if corner == board.CornerNinety {
			blocked = true
		}
	}
	if blocked {
		return Effect{}, illegal(ReasonCornerBlocked)
	}
	return Effect{}, illegal(ReasonNoCaptureGeometry)
}
