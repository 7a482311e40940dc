package engine

// Player is one seat at the table. OriginalRole is fixed at deal time and
// drives eligibility; Role is the current card and drives faction checks.
type Player struct {
	Name         string `json:"name"`
	Role         Role   `json:"role,omitempty"`
	OriginalRole Role   `json:"original_role,omitempty"`
	Alive        bool   `json:"alive"`
}

// Roster is the seating order. Players are never removed, only marked dead.
type Roster []*Player

// NewRoster seats players in the given order with Role == OriginalRole.
func NewRoster(names []string, roles []Role) (Roster, error) {
	if len(names) != len(roles) {
		return nil, errorf(ErrInvalidSetup, "%d names for %d roles", len(names), len(roles))
	}
	seen := make(map[string]bool, len(names))
	roster := make(Roster, 0, len(names))
	for i, name := range names {
		if name == "" {
			return nil, errorf(ErrInvalidSetup, "empty player name at seat %d", i)
		}
		if seen[name] {
			return nil, errorf(ErrInvalidSetup, "duplicate player name %q", name)
		}
		if !roles[i].valid() {
			return nil, errorf(ErrInvalidSetup, "invalid role for %q", name)
		}
		seen[name] = true
		roster = append(roster, &Player{Name: name, Role: roles[i], OriginalRole: roles[i], Alive: true})
	}
	return roster, nil
}

// Clone returns a deep copy so resolution can stay pure.
func (r Roster) Clone() Roster {
	out := make(Roster, len(r))
	for i, p := range r {
		cp := *p
		out[i] = &cp
	}
	return out
}

func (r Roster) Find(name string) *Player {
	for _, p := range r {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Alive returns the living players in seating order.
func (r Roster) Alive() Roster {
	var out Roster
	for _, p := range r {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

func (r Roster) Names() []string {
	names := make([]string, len(r))
	for i, p := range r {
		names[i] = p.Name
	}
	return names
}

func (r Roster) isAlive(name string) bool {
	p := r.Find(name)
	return p != nil && p.Alive
}

// ByOriginal returns living players who were dealt role.
func (r Roster) ByOriginal(role Role) Roster {
	var out Roster
	for _, p := range r {
		if p.Alive && p.OriginalRole == role {
			out = append(out, p)
		}
	}
	return out
}

// ByCurrent returns living players currently holding role.
func (r Roster) ByCurrent(role Role) Roster {
	var out Roster
	for _, p := range r {
		if p.Alive && p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// Neighbors returns the left and right living neighbours of name, wrapping
// around the table. A lone survivor has no neighbours.
func (r Roster) Neighbors(name string) []string {
	alive := r.Alive()
	idx := -1
	for i, p := range alive {
		if p.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 || len(alive) < 2 {
		return nil
	}
	left := alive[(idx-1+len(alive))%len(alive)].Name
	right := alive[(idx+1)%len(alive)].Name
	if left == right {
		return []string{left}
	}
	return []string{left, right}
}

// leftWerewolf walks left from name over living seats and returns the first
// werewolf-aligned player, or "".
func (r Roster) leftWerewolf(name string) string {
	idx := -1
	for i, p := range r {
		if p.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ""
	}
	for step := 1; step < len(r); step++ {
		p := r[(idx-step+len(r))%len(r)]
		if p.Alive && p.Role.IsWerewolf() {
			return p.Name
		}
	}
	return ""
}
