package engine

// Winner is the faction or role that ended the game.
type Winner int

const (
	WinnerNone Winner = iota
	WinnerWhiteWolf
	WinnerPiper
	WinnerLovers
	WinnerBitterOldMan
	WinnerVillage
	WinnerWerewolves
	WinnerAngel
)

var winnerNames = [...]string{
	WinnerNone:         "",
	WinnerWhiteWolf:    "white_wolf",
	WinnerPiper:        "piper",
	WinnerLovers:       "lovers",
	WinnerBitterOldMan: "bitter_old_man",
	WinnerVillage:      "village",
	WinnerWerewolves:   "werewolves",
	WinnerAngel:        "angel",
}

func (w Winner) String() string {
	if w < 0 || int(w) >= len(winnerNames) {
		return "unknown"
	}
	return winnerNames[w]
}

func (w Winner) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

// Evaluate checks the win conditions in precedence order and returns the
// first that holds, or WinnerNone.
func Evaluate(roster Roster, st *State) Winner {
	alive := roster.Alive()

	if len(alive) == 1 && alive[0].Role == RoleWhiteWolf {
		return WinnerWhiteWolf
	}

	if piper := alive.ByCurrent(RolePiper); len(piper) > 0 {
		all := true
		for _, p := range alive {
			if p != piper[0] && !st.IsEnchanted(p.Name) {
				all = false
				break
			}
		}
		if all {
			return WinnerPiper
		}
	}

	if len(alive) == 2 && st.AreLovers(alive[0].Name, alive[1].Name) {
		return WinnerLovers
	}

	if revengeTaken(roster, st) {
		return WinnerBitterOldMan
	}

	wolves := 0
	for _, p := range alive {
		if p.Role.IsWerewolf() {
			wolves++
		}
	}
	switch {
	case wolves == 0:
		return WinnerVillage
	case wolves == len(alive):
		return WinnerWerewolves
	}
	return WinnerNone
}

// revengeTaken: the bitter old man is dead and exactly one of its groups has
// been wiped out.
func revengeTaken(roster Roster, st *State) bool {
	g := st.RevengeGroups
	if len(g[0]) == 0 || len(g[1]) == 0 {
		return false
	}
	for _, p := range roster {
		if p.OriginalRole == RoleBitterOldMan && p.Alive {
			return false
		}
	}
	gone := func(group []string) bool {
		for _, name := range group {
			if roster.isAlive(name) {
				return false
			}
		}
		return true
	}
	return gone(g[0]) != gone(g[1])
}
