// internal/board/load.go
//
// Loading board descriptions.
//
// Initialization behavior (Load):
//  1. If a path is given (HUNT_BOARD_FILE), read the description from that file.
//  2. Otherwise fall back to the embedded "standard" description.
//
// The standard board is parsed and validated once (sync.Once) and shared.
package board

import (
	"fmt"
	"os"
	"sync"

	"github.com/robalobadob/wolfsheep/assets"
	"github.com/robalobadob/wolfsheep/internal/errs"
)

var (
	standardOnce sync.Once
	standard     *Topology
	standardErr  error
)

// Standard returns the embedded standard board.
func Standard() (*Topology, error) {
	standardOnce.Do(func() {
		standard, standardErr = Embedded("standard")
	})
	return standard, standardErr
}

// MustStandard is Standard for tests and package init; it panics on error.
func MustStandard() *Topology {
	t, err := Standard()
	if err != nil {
		panic(err)
	}
	return t
}

// Embedded builds one of the descriptions shipped in assets/boards.
func Embedded(name string) (*Topology, error) {
	raw, err := assets.Board(name)
	if err != nil {
		return nil, errs.Wrap(errs.CodeConfiguration, "unknown-board", fmt.Errorf("board %q: %w", name, err))
	}
	return FromJSON(raw)
}

// LoadFile builds a topology from a JSON description on disk.
func LoadFile(path string) (*Topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeConfiguration, "board-file", err)
	}
	return FromJSON(raw)
}

// FromJSON parses and validates a JSON description.
func FromJSON(raw []byte) (*Topology, error) {
	d, err := ParseDescription(raw)
	if err != nil {
		return nil, err
	}
	return New(d)
}

// Load returns the board at path, or the standard board when path is empty.
func Load(path string) (*Topology, error) {
	if path == "" {
		return Standard()
	}
	return LoadFile(path)
}
