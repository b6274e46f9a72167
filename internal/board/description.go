package board

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/robalobadob/wolfsheep/internal/errs"
)

// Description is the published board diagram in data form.
//
//	cells:   one string per row, top row first; '.' unused, 'B' barn, 'F' field
//	lines:   the printed lines, each a straight segment with a class
//	links:   the adjacency table, "a5-a4" pairs; every pair must lie on a printed line
//	corners: intersections where a capture line may bend by 45°
type Description struct {
	Name    string   `json:"name"`
	Cells   []string `json:"cells"`
	Lines   []Line   `json:"lines"`
	Links   []string `json:"links"`
	Corners []string `json:"corners"`
}

// Line is one printed line of the board diagram.
type Line struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Class string `json:"class"`
}

// ParseDescription decodes a JSON board description.
func ParseDescription(b []byte) (Description, error) {
	var d Description
	if err := json.Unmarshal(b, &d); err != nil {
		return Description{}, errs.Wrap(errs.CodeConfiguration, "bad-description", err)
	}
	return d, nil
}

type segment struct{ a, b Coord }

func orderedSegment(a, b Coord) segment {
	if b.Y < a.Y || (b.Y == a.Y && b.X < a.X) {
		a, b = b, a
	}
	return segment{a, b}
}

func configErr(reason, format string, args ...any) error {
	return errs.Newf(errs.CodeConfiguration, reason, format, args...)
}

// New validates d and builds the topology. Any mismatch between the adjacency
// table and the printed lines is a configuration error.
func New(d Description) (*Topology, error) {
	height := len(d.Cells)
	if height == 0 || height > 9 {
		return nil, configErr("bad-grid", "board %q needs 1..9 rows, got %d", d.Name, height)
	}
	width := len(d.Cells[0])
	if width == 0 || width > 26 {
		return nil, configErr("bad-grid", "board %q needs 1..26 columns, got %d", d.Name, width)
	}

	t := &Topology{
		name:   d.Name,
		width:  width,
		height: height,
		grid:   make([]Position, width*height),
	}
	for y, row := range d.Cells {
		if len(row) != width {
			return nil, configErr("bad-grid", "row %d has width %d, want %d", y, len(row), width)
		}
		for x, ch := range row {
			idx := y*width + x
			var kind Kind
			switch ch {
			case '.':
				t.grid[idx] = None
				continue
			case 'B':
				kind = Barn
			case 'F':
				kind = Field
			default:
				return nil, configErr("bad-grid", "unknown cell %q at row %d", ch, y)
			}
			p := Position(len(t.coords))
			t.grid[idx] = p
			t.coords = append(t.coords, Coord{X: x, Y: y})
			t.kinds = append(t.kinds, kind)
			if kind == Barn {
				t.barn = append(t.barn, p)
			}
		}
	}
	if len(t.coords) == 0 {
		return nil, configErr("bad-grid", "board %q has no playable positions", d.Name)
	}

	printed, err := t.printedSegments(d.Lines)
	if err != nil {
		return nil, err
	}

	t.links = make([][]Link, len(t.coords))
	declared := make(map[segment]bool, len(d.Links))
	for _, raw := range d.Links {
		a, b, err := t.parsePair(raw)
		if err != nil {
			return nil, err
		}
		ca, cb := t.coords[a], t.coords[b]
		dir, ok := directionOf(cb.X-ca.X, cb.Y-ca.Y)
		if !ok {
			return nil, configErr("bad-link", "%s is not a unit step", raw)
		}
		seg := orderedSegment(ca, cb)
		class, ok := printed[seg]
		if !ok {
			return nil, configErr("unprinted-link", "%s is not on any printed line", raw)
		}
		if declared[seg] {
			return nil, configErr("duplicate-link", "%s is declared twice", raw)
		}
		declared[seg] = true
		back, _ := directionOf(ca.X-cb.X, ca.Y-cb.Y)
		t.links[a] = append(t.links[a], Link{To: b, Dir: dir, Class: class})
		t.links[b] = append(t.links[b], Link{To: a, Dir: back, Class: class})
	}
	for seg := range printed {
		if !declared[seg] {
			a, _ := t.At(seg.a)
			b, _ := t.At(seg.b)
			return nil, configErr("missing-link", "printed segment %s-%s has no adjacency entry",
				t.NameOf(a), t.NameOf(b))
		}
	}

	t.corners = make([]bool, len(t.coords))
	for _, name := range d.Corners {
		p, err := t.Parse(name)
		if err != nil {
			return nil, errs.Wrap(errs.CodeConfiguration, "bad-corner", err)
		}
		t.corners[p] = true
	}
	return t, nil
}

// printedSegments expands every printed line into its unit segments.
func (t *Topology) printedSegments(lines []Line) (map[segment]Class, error) {
	out := make(map[segment]Class)
	for _, l := range lines {
		class, err := parseClass(l.Class)
		if err != nil {
			return nil, err
		}
		from, err := parseCoord(l.From, t.height)
		if err != nil {
			return nil, errs.Wrap(errs.CodeConfiguration, "bad-line", err)
		}
		to, err := parseCoord(l.To, t.height)
		if err != nil {
			return nil, errs.Wrap(errs.CodeConfiguration, "bad-line", err)
		}
		dx, dy := to.X-from.X, to.Y-from.Y
		steps := max(abs(dx), abs(dy))
		if steps == 0 {
			return nil, configErr("bad-line", "%s-%s has no length", l.From, l.To)
		}
		straight := dx == 0 || dy == 0
		diagonal := abs(dx) == abs(dy)
		if (class == Orthogonal && !straight) || (class != Orthogonal && !diagonal) {
			return nil, configErr("bad-line", "%s-%s is not a straight %s line", l.From, l.To, class)
		}
		ux, uy := sign(dx), sign(dy)
		prev := from
		for i := 0; i <= steps; i++ {
			c := Coord{X: from.X + i*ux, Y: from.Y + i*uy}
			if _, ok := t.At(c); !ok {
				return nil, configErr("bad-line", "%s-%s crosses an unused cell", l.From, l.To)
			}
			if i > 0 {
				seg := orderedSegment(prev, c)
				if existing, ok := out[seg]; ok && existing != class {
					return nil, configErr("bad-line", "%s-%s overlaps a %s line", l.From, l.To, existing)
				}
				out[seg] = class
			}
			prev = c
		}
	}
	return out, nil
}

func (t *Topology) parsePair(raw string) (Position, Position, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return None, None, configErr("bad-link", "malformed link %q", raw)
	}
	a, err := t.Parse(parts[0])
	if err != nil {
		return None, None, errs.Wrap(errs.CodeConfiguration, "bad-link", err)
	}
	b, err := t.Parse(parts[1])
	if err != nil {
		return None, None, errs.Wrap(errs.CodeConfiguration, "bad-link", err)
	}
	return a, b, nil
}

func parseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "orthogonal":
		return Orthogonal, nil
	case "diagonal":
		return Diagonal, nil
	case "corner":
		return CornerLine, nil
	}
	return 0, configErr("bad-line", "unknown line class %q", s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

// String renders the description name and size, for logs.
func (t *Topology) String() string {
	return fmt.Sprintf("%s (%dx%d, %d positions, %d barn)", t.name, t.width, t.height, len(t.coords), len(t.barn))
}
