// internal/board/board.go
//
// Board topology: the static graph of playable positions.
// Responsibilities:
//   - Address positions by a stable arena index (Position) and by notation ("c7").
//   - Answer adjacency queries with a direction and a direction class.
//   - Classify the turn a capture line makes at the jumped piece (CornerCut).
//
// A Topology is built once from a Description (see description.go), validated
// against the printed lines, and is read-only afterwards. It is safe to share
// between goroutines and sessions.
package board

import (
	"fmt"
	"strings"
)

// Position is an index into the topology's position arena.
type Position int

// None marks "no position".
const None Position = -1

// Coord is a grid coordinate. X grows to the right, Y grows downwards;
// row 0 is the top of the barn.
type Coord struct {
	X, Y int
}

// Kind is the type of a playable position.
type Kind uint8

const (
	Field Kind = iota
	Barn
)

// Direction is one of the eight compass directions, clockwise from north.
type Direction uint8

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var dirDelta = [8]Coord{
	{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
}

var dirNames = [8]string{"n", "ne", "e", "se", "s", "sw", "w", "nw"}

func (d Direction) String() string { return dirNames[d%8] }

// Delta returns the unit grid step for d.
func (d Direction) Delta() Coord { return dirDelta[d%8] }

func directionOf(dx, dy int) (Direction, bool) {
	for i, c := range dirDelta {
		if c.X == dx && c.Y == dy {
			return Direction(i), true
		}
	}
	return 0, false
}

// Class is the printed kind of a line.
type Class uint8

const (
	Orthogonal Class = iota
	Diagonal
	CornerLine
)

func (c Class) String() string {
	switch c {
	case Orthogonal:
		return "orthogonal"
	case Diagonal:
		return "diagonal"
	case CornerLine:
		return "corner"
	}
	return fmt.Sprintf("class(%d)", c)
}

// Corner classifies the angle a capture line makes at the jumped piece.
type Corner uint8

const (
	CornerNone          Corner = iota // straight line
	CornerNinety                      // 90° turn, never a legal capture
	CornerOneThirtyFive               // 45° turn at a marked corner
)

func (c Corner) String() string {
	switch c {
	case CornerNone:
		return "none"
	case CornerNinety:
		return "ninety"
	case CornerOneThirtyFive:
		return "one-thirty-five"
	}
	return fmt.Sprintf("corner(%d)", c)
}

// Link is one edge of the adjacency graph, seen from its source.
type Link struct {
	To    Position
	Dir   Direction
	Class Class
}

// Topology is the validated, immutable board graph.
type Topology struct {
	name    string
	width   int
	height  int
	coords  []Coord
	kinds   []Kind
	grid    []Position // width*height, None where unused
	links   [][]Link
	corners []bool
	barn    []Position
}

// Name returns the board description's name.
func (t *Topology) Name() string { return t.name }

// Width and Height return the grid dimensions.
func (t *Topology) Width() int  { return t.width }
func (t *Topology) Height() int { return t.height }

// Len returns the number of playable positions.
func (t *Topology) Len() int { return len(t.coords) }

// Valid reports whether p addresses a playable position.
func (t *Topology) Valid(p Position) bool { return p >= 0 && int(p) < len(t.coords) }

// Coord returns the grid coordinate of p.
func (t *Topology) Coord(p Position) Coord { return t.coords[p] }

// Kind returns the kind of p.
func (t *Topology) Kind(p Position) Kind { return t.kinds[p] }

// IsBarn reports whether p belongs to the barn.
func (t *Topology) IsBarn(p Position) bool { return t.Valid(p) && t.kinds[p] == Barn }

// Barn returns the barn positions in arena order.
func (t *Topology) Barn() []Position { return append([]Position(nil), t.barn...) }

// Rank returns how far up the board p is: 0 on the bottom row.
func (t *Topology) Rank(p Position) int { return t.height - 1 - t.coords[p].Y }

// At returns the position at grid coordinate c.
func (t *Topology) At(c Coord) (Position, bool) {
	if c.X < 0 || c.X >= t.width || c.Y < 0 || c.Y >= t.height {
		return None, false
	}
	p := t.grid[c.Y*t.width+c.X]
	return p, p != None
}

// Neighbors returns the links leaving p.
func (t *Topology) Neighbors(p Position) []Link {
	if !t.Valid(p) {
		return nil
	}
	return t.links[p]
}

// Link returns the link from a to b, if the board prints one.
func (t *Topology) Link(a, b Position) (Link, bool) {
	if !t.Valid(a) {
		return Link{}, false
	}
	for _, l := range t.links[a] {
		if l.To == b {
			return l, true
		}
	}
	return Link{}, false
}

// Adjacent reports whether a and b share a printed link.
func (t *Topology) Adjacent(a, b Position) bool {
	_, ok := t.Link(a, b)
	return ok
}

// IsMarkedCorner reports whether a capture line may bend by 45° at p.
func (t *Topology) IsMarkedCorner(p Position) bool { return t.Valid(p) && t.corners[p] }

// CornerCut classifies the path from -> over -> to. ok is false when the three
// positions do not form a path along printed links that a capture could follow:
// a leg is missing, the path doubles back, it turns by more than 90°, or it
// bends by 45° at an intersection that is not a marked corner.
func (t *Topology) CornerCut(from, over, to Position) (Corner, bool) {
	if from == to {
		return CornerNone, false
	}
	in, ok := t.Link(from, over)
	if !ok {
		return CornerNone, false
	}
	out, ok := t.Link(over, to)
	if !ok {
		return CornerNone, false
	}
	turn := (int(out.Dir) - int(in.Dir) + 8) % 8
	if turn > 4 {
		turn = 8 - turn
	}
	switch turn {
	case 0:
		return CornerNone, true
	case 1:
		if t.corners[over] {
			return CornerOneThirtyFive, true
		}
		return CornerNone, false
	case 2:
		return CornerNinety, true
	}
	return CornerNone, false
}

// NameOf returns the notation of p, e.g. "c7". Columns are letters from the
// left, rows are digits counted from the bottom.
func (t *Topology) NameOf(p Position) string {
	if !t.Valid(p) {
		return "-"
	}
	c := t.coords[p]
	return fmt.Sprintf("%c%d", 'a'+c.X, t.height-c.Y)
}

// Parse resolves notation to a position.
func (t *Topology) Parse(name string) (Position, error) {
	c, err := parseCoord(name, t.height)
	if err != nil {
		return None, err
	}
	p, ok := t.At(c)
	if !ok {
		return None, fmt.Errorf("position %q is not on the board", name)
	}
	return p, nil
}

// Positions returns every playable position in arena order.
func (t *Topology) Positions() []Position {
	out := make([]Position, len(t.coords))
	for i := range out {
		out[i] = Position(i)
	}
	return out
}

func parseCoord(name string, height int) (Coord, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) != 2 {
		return Coord{}, fmt.Errorf("invalid position %q", name)
	}
	col, row := name[0], name[1]
	if col < 'a' || col > 'z' || row < '1' || row > '9' {
		return Coord{}, fmt.Errorf("invalid position %q", name)
	}
	return Coord{X: int(col - 'a'), Y: height - int(row-'0')}, nil
}
