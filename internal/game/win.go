// internal/game/win.go
//
// Win Evaluator. Runs after a completed turn, once the next turn holder is
// known. Conditions are checked in a fixed order:
//   1. barn full                       -> SheepWin(barn-full)
//   2. wolves to move and cannot       -> SheepWin(wolves-immobilized)
//   3. fewer sheep than the threshold  -> WolfWin(sheep-depleted)
//   4. sheep to move and cannot        -> WolfWin(sheep-immobilized)

package game

// Evaluate returns the terminal status of s.
func Evaluate(s *State) Result {
	if barnFull(s) {
		return Result{Status: SheepWin, Reason: ReasonBarnFull}
	}
	if s.turn == RoleWolves && !canMove(s, RoleWolves) {
		return Result{Status: SheepWin, Reason: ReasonWolvesImmobilized}
	}
	if s.SheepOnBoard() < s.rules.WolfWinBelow {
		return Result{Status: WolfWin, Reason: ReasonSheepDepleted}
	}
	if s.turn == RoleSheep && !canMove(s, RoleSheep) {
		return Result{Status: WolfWin, Reason: ReasonSheepImmobilized}
	}
	return Result{}
}

func barnFull(s *State) bool {
	barn := s.board.Barn()
	if len(barn) == 0 {
		return false
	}
	for _, p := range barn {
		if s.cells[p] != Sheep {
			return false
		}
	}
	return true
}
