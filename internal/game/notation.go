// internal/game/notation.go
//
// Recorder notation for the move history.
//
//   Wb5-b6    step
//   Wc4xc2    capture
//   Sc4#c5    move that ends the game ('#' replaces the separator)
//   W*        wolf ends a capture chain
//   W resigns forfeit

package game

import "github.com/robalobadob/wolfsheep/internal/board"

func notateEffect(b *board.Topology, e Effect, final bool) string {
	r, _ := e.Piece.Role()
	sep := "-"
	if e.Kind == Capture {
		sep = "x"
	}
	if final {
		sep = "#"
	}
	return r.Letter() + b.NameOf(e.From) + sep + b.NameOf(e.To)
}

func notateEndTurn(r Role, final bool) string {
	if final {
		return r.Letter() + "*#"
	}
	return r.Letter() + "*"
}

func notateForfeit(loser Role) string { return loser.Letter() + " resigns" }

// Notation renders e the way the history records it.
func Notation(b *board.Topology, e Effect) string { return notateEffect(b, e, false) }
