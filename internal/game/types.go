// internal/game/types.go
//
// Core type definitions for the Wolves & Sheep rule engine.
// Defines:
//   - Role / Seat: the two sides and who may act for them.
//   - Occupant: what a board position holds.
//   - Phase / Result: where the turn state machine is, and how a game ended.
//   - Move / Effect / Outcome / Event: requests in, resolved effects and notifications out.

package game

import (
	"fmt"
	"strings"

	"github.com/robalobadob/wolfsheep/internal/board"
)

// Role is one side of the game.
type Role uint8

const (
	RoleWolves Role = iota
	RoleSheep
)

// Other returns the opposing role.
func (r Role) Other() Role {
	if r == RoleWolves {
		return RoleSheep
	}
	return RoleWolves
}

func (r Role) String() string {
	if r == RoleSheep {
		return "sheep"
	}
	return "wolves"
}

// Letter is the recorder prefix for the role: "W" or "S".
func (r Role) Letter() string {
	if r == RoleSheep {
		return "S"
	}
	return "W"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRole accepts "wolves"/"wolf"/"w" and "sheep"/"s".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wolves", "wolf", "w":
		return RoleWolves, nil
	case "sheep", "s":
		return RoleSheep, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Seat is who is submitting an action. A local hot-seat game plays both sides.
type Seat uint8

const (
	SeatSpectator Seat = iota
	SeatWolves
	SeatSheep
	SeatBoth
)

// SeatFor returns the seat that controls exactly r.
func SeatFor(r Role) Seat {
	if r == RoleSheep {
		return SeatSheep
	}
	return SeatWolves
}

// Controls reports whether the seat may act for r.
func (s Seat) Controls(r Role) bool {
	switch s {
	case SeatBoth:
		return true
	case SeatWolves:
		return r == RoleWolves
	case SeatSheep:
		return r == RoleSheep
	}
	return false
}

// IsPlayer reports whether the seat controls any side.
func (s Seat) IsPlayer() bool { return s != SeatSpectator }

func (s Seat) String() string {
	switch s {
	case SeatWolves:
		return "wolves"
	case SeatSheep:
		return "sheep"
	case SeatBoth:
		return "both"
	}
	return "spectator"
}

func (s Seat) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Seat) UnmarshalText(b []byte) error {
	v, err := ParseSeat(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeat accepts the seat names plus the role aliases of ParseRole.
func ParseSeat(s string) (Seat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "both":
		return SeatBoth, nil
	case "spectator", "watch", "":
		return SeatSpectator, nil
	}
	r, err := ParseRole(s)
	if err != nil {
		return 0, fmt.Errorf("unknown seat %q", s)
	}
	return SeatFor(r), nil
}

// Occupant is the content of one position.
type Occupant uint8

const (
	Empty Occupant = iota
	Wolf
	Sheep
)

// Role returns the side owning the occupant; ok is false for Empty.
func (o Occupant) Role() (Role, bool) {
	switch o {
	case Wolf:
		return RoleWolves, true
	case Sheep:
		return RoleSheep, true
	}
	return 0, false
}

func (o Occupant) String() string {
	switch o {
	case Wolf:
		return "wolf"
	case Sheep:
		return "sheep"
	}
	return "empty"
}

// Phase is the state of the turn state machine.
type Phase uint8

const (
	AwaitingMove Phase = iota
	ChainInProgress
	GameOver
)

func (p Phase) String() string {
	switch p {
	case ChainInProgress:
		return "chain-in-progress"
	case GameOver:
		return "game-over"
	}
	return "awaiting-move"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "awaiting-move", "":
		*p = AwaitingMove
	case "chain-in-progress":
		*p = ChainInProgress
	case "game-over":
		*p = GameOver
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

// Status is the terminal status of a game.
type Status uint8

const (
	Ongoing Status = iota
	SheepWin
	WolfWin
)

func (s Status) String() string {
	switch s {
	case SheepWin:
		return "sheep-win"
	case WolfWin:
		return "wolf-win"
	}
	return "ongoing"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ongoing", "":
		*s = Ongoing
	case "sheep-win":
		*s = SheepWin
	case "wolf-win":
		*s = WolfWin
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Winner returns the winning role; ok is false while the game is ongoing.
func (s Status) Winner() (Role, bool) {
	switch s {
	case SheepWin:
		return RoleSheep, true
	case WolfWin:
		return RoleWolves, true
	}
	return 0, false
}

func winFor(r Role) Status {
	if r == RoleSheep {
		return SheepWin
	}
	return WolfWin
}

// Reasons attached to a terminal Result.
const (
	ReasonBarnFull          = "barn-full"
	ReasonWolvesImmobilized = "wolves-immobilized"
	ReasonSheepDepleted     = "sheep-depleted"
	ReasonSheepImmobilized  = "sheep-immobilized"
	ReasonForfeit           = "forfeit"
)

// Result is the terminal status plus its reason.
type Result struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Over reports whether the game has ended.
func (r Result) Over() bool { return r.Status != Ongoing }

func (r Result) String() string {
	if r.Reason == "" {
		return r.Status.String()
	}
	return r.Status.String() + "(" + r.Reason + ")"
}

// Move is a request to move the piece at From to To.
type Move struct {
	From board.Position
	To   board.Position
}

// EffectKind distinguishes a simple step from a capture jump.
type EffectKind uint8

const (
	Step EffectKind = iota
	Capture
)

func (k EffectKind) String() string {
	if k == Capture {
		return "capture"
	}
	return "step"
}

// Effect is a validated move, resolved against the board.
// Over is board.None for a step.
type Effect struct {
	Kind  EffectKind
	Piece Occupant
	From  board.Position
	Over  board.Position
	To    board.Position
}

// Outcome describes the state after an accepted action.
type Outcome struct {
	Effect   *Effect // nil for end-turn and forfeit
	Notation string  // recorder line appended to the history
	Phase    Phase
	Turn     Role // next turn holder
	Result   Result
	Snapshot Snapshot
}

// EventKind names the transition an Event reports.
type EventKind uint8

const (
	EventMove EventKind = iota
	EventEndTurn
	EventForfeit
	EventRestore
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventEndTurn:
		return "end-turn"
	case EventForfeit:
		return "forfeit"
	case EventRestore:
		return "restore"
	case EventReset:
		return "reset"
	}
	return "move"
}

// Event is pushed to subscribers after every accepted transition.
type Event struct {
	Kind    EventKind
	Outcome Outcome
}

// Listener receives controller events. It runs on the caller's goroutine
// after the controller lock is released and must not block for long. It may
// read the controller but must not mutate it.
type Listener func(Event)
