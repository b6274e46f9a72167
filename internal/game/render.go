package game

import (
	"strconv"
	"strings"

	"github.com/robalobadob/wolfsheep/internal/board"
)

// Render draws snap as text: W wolf, S sheep, + empty barn, . empty field.
func Render(b *board.Topology, snap Snapshot) string {
	marks := make(map[board.Position]byte)
	for _, n := range snap.Wolves {
		if p, err := b.Parse(n); err == nil {
			marks[p] = 'W'
		}
	}
	for _, n := range snap.Sheep {
		if p, err := b.Parse(n); err == nil {
			marks[p] = 'S'
		}
	}

	var sb strings.Builder
	for y := 0; y < b.Height(); y++ {
		sb.WriteString(strconv.Itoa(b.Height() - y))
		sb.WriteByte(' ')
		for x := 0; x < b.Width(); x++ {
			sb.WriteByte(' ')
			p, ok := b.At(board.Coord{X: x, Y: y})
			switch {
			case !ok:
				sb.WriteByte(' ')
			case marks[p] != 0:
				sb.WriteByte(marks[p])
			case b.IsBarn(p):
				sb.WriteByte('+')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  ")
	for x := 0; x < b.Width(); x++ {
		sb.WriteByte(' ')
		sb.WriteByte(byte('a' + x))
	}
	sb.WriteByte('\n')
	return sb.String()
}
