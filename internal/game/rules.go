// internal/game/rules.go
//
// Game configuration: initial layout, who moves first, the chain policy and
// the wolves' win threshold.

package game

import (
	"fmt"
	"strings"
)

// ChainMode decides whether a wolf may stop a capture chain while another
// jump is still available.
type ChainMode uint8

const (
	ChainVoluntary ChainMode = iota // end-turn allowed mid-chain
	ChainForced                     // end-turn rejected while a jump exists
)

func (m ChainMode) String() string {
	if m == ChainForced {
		return "forced"
	}
	return "voluntary"
}

func (m ChainMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ChainMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "voluntary", "":
		*m = ChainVoluntary
	case "forced":
		*m = ChainForced
	default:
		return fmt.Errorf("unknown chain mode %q", b)
	}
	return nil
}

// Rules configures one game.
type Rules struct {
	Name         string    `json:"name"`
	Wolves       []string  `json:"wolves"`
	Sheep        []string  `json:"sheep"`
	FirstTurn    Role      `json:"firstTurn"`
	Chain        ChainMode `json:"chain"`
	WolfWinBelow int       `json:"wolfWinBelow"` // wolves win when fewer sheep remain
}

// StandardRules is the nine-sheep game: wolves on b5 and d5, sheep on the
// two bottom rows, wolves first.
func StandardRules() Rules {
	return Rules{
		Name:         "standard",
		Wolves:       []string{"b5", "d5"},
		Sheep:        []string{"a1", "b1", "c1", "d1", "e1", "a2", "b2", "d2", "e2"},
		FirstTurn:    RoleWolves,
		Chain:        ChainVoluntary,
		WolfWinBelow: 9,
	}
}

// ClassicRules fills the three bottom rows with fifteen sheep, sheep first,
// and the wolves win once fewer than seven are left.
func ClassicRules() Rules {
	var sheep []string
	for _, row := range []string{"1", "2", "3"} {
		for _, col := range []string{"a", "b", "c", "d", "e"} {
			sheep = append(sheep, col+row)
		}
	}
	return Rules{
		Name:         "classic",
		Wolves:       []string{"b5", "d5"},
		Sheep:        sheep,
		FirstTurn:    RoleSheep,
		Chain:        ChainVoluntary,
		WolfWinBelow: 7,
	}
}

// RulesByName resolves a preset.
func RulesByName(name string) (Rules, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return StandardRules(), nil
	case "classic":
		return ClassicRules(), nil
	}
	return Rules{}, fmt.Errorf("unknown rules %q", name)
}

// InitialSheep is the number of sheep the game starts with.
func (r Rules) InitialSheep() int { return len(r.Sheep) }
