package engine

import "slices"

// RoundResult is the outcome of one night.
type RoundResult struct {
	Round  int      `json:"round"`
	Deaths []string `json:"deaths"`
	Roster Roster   `json:"roster"`
	// FinalActs are the dead whose original role may act on death.
	FinalActs []string `json:"final_acts,omitempty"`
	// BearGrowl is set when a werewolf sits next to the living bear tamer.
	BearGrowl bool `json:"bear_growl,omitempty"`
}

// Resolve computes the night's deaths. It does not modify its arguments: the
// returned roster and state are copies with the deaths and their follow-ups
// (wild child transformation, knight infection, shelter host) applied.
func Resolve(night *Night, st *State, roster Roster) (RoundResult, *State) {
	st = st.Clone()
	roster = roster.Clone()

	var dead deathSet
	protected := func(name string) bool {
		return name == st.LastProtected || name == night.healTarget()
	}
	// Only the pack's own bite infects; a knight dying through a lover or
	// shelter chain does not.
	var bitten *Player
	if target := night.WerewolfTarget; target != "" && !protected(target) {
		if p := roster.Find(target); p != nil && p.OriginalRole == RoleKnight {
			bitten = p
		}
	}
	for _, target := range []string{night.WerewolfTarget, night.SecondTarget, night.PoisonTarget} {
		if target != "" && !protected(target) {
			dead.add(target)
		}
	}
	if night.WhiteWolfTarget != "" {
		dead.add(night.WhiteWolfTarget)
	}

	dead.chain(st, night.ShelterHost, roster)
	if st.Infected != "" && roster.isAlive(st.Infected) {
		dead.add(st.Infected)
		dead.chain(st, night.ShelterHost, roster)
	}
	st.Infected = ""

	for _, name := range dead {
		if p := roster.Find(name); p != nil {
			p.Alive = false
		}
	}

	afterDeaths(st, roster, dead)

	// A knight bitten by the pack poisons the nearest wolf to its left.
	if bitten != nil && dead.has(bitten.Name) {
		st.Infected = roster.leftWerewolf(bitten.Name)
	}

	st.PreviousShelter = night.ShelterHost

	return RoundResult{
		Round:     night.Round,
		Deaths:    []string(dead),
		Roster:    roster,
		FinalActs: finalActs(roster, dead),
		BearGrowl: bearGrowl(roster),
	}, st
}

// deathSet keeps deaths in the order they were caused.
type deathSet []string

func (d *deathSet) add(name string) bool {
	if name == "" || d.has(name) {
		return false
	}
	*d = append(*d, name)
	return true
}

func (d deathSet) has(name string) bool { return slices.Contains(d, name) }

// chain adds shelter and lover deaths until nothing changes, so applying it
// again is a no-op. Players already dead on the roster are never added.
func (d *deathSet) chain(st *State, shelterHost string, roster Roster) {
	homeless := roster.ByOriginal(RoleHomeless)
	for changed := true; changed; {
		changed = false
		if shelterHost != "" && d.has(shelterHost) {
			for _, p := range homeless {
				changed = d.add(p.Name) || changed
			}
		}
		for _, name := range *d {
			if partner := st.Partner(name); partner != "" && roster.isAlive(partner) {
				changed = d.add(partner) || changed
			}
		}
	}
}

// afterDeaths applies the consequences every death shares, at night or by day.
func afterDeaths(st *State, roster Roster, dead []string) {
	if st.WildChildModel != "" && slices.Contains(dead, st.WildChildModel) {
		for _, p := range roster.ByOriginal(RoleWildChild) {
			p.Role = RoleWerewolf
		}
	}
}

func finalActs(roster Roster, dead []string) []string {
	var out []string
	for _, name := range dead {
		if p := roster.Find(name); p != nil && p.OriginalRole.Descriptor().FinalAct {
			out = append(out, name)
		}
	}
	return out
}

func bearGrowl(roster Roster) bool {
	for _, tamer := range roster.ByOriginal(RoleBearTamer) {
		for _, name := range roster.Neighbors(tamer.Name) {
			if roster.Find(name).Role.IsWerewolf() {
				return true
			}
		}
	}
	return false
}
