package engine

import (
	"fmt"
	"slices"
)

// Side is the committed choice of the wolfhound.
type Side int

const (
	SideUndecided Side = iota
	SideVillage
	SideWerewolf
)

func (s Side) String() string {
	switch s {
	case SideVillage:
		return "village"
	case SideWerewolf:
		return "werewolf"
	}
	return "undecided"
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "village":
		*s = SideVillage
	case "werewolf":
		*s = SideWerewolf
	case "", "undecided":
		*s = SideUndecided
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}

// State is the hidden game state that outlives a single night. The host owns
// it; a new game gets a fresh value from NewState.
//
// One-shot flags (HealPotionUsed, PoisonPotionUsed, FoxLostAbility,
// OrphanCopied, MaidUsed) are never reset. LastProtected is moved to
// PreviousProtected and cleared by StartRound, not at the end of the night.
type State struct {
	Lovers    []string `json:"lovers,omitempty"`    // 0 or 2 names
	Enchanted []string `json:"enchanted,omitempty"` // grows monotonically

	HealPotionUsed   bool `json:"heal_potion_used"`
	PoisonPotionUsed bool `json:"poison_potion_used"`

	LastProtected     string `json:"last_protected,omitempty"`
	PreviousProtected string `json:"previous_protected,omitempty"`
	PreviousShelter   string `json:"previous_shelter,omitempty"`

	RevengeGroups [2][]string `json:"revenge_groups"`

	WolfhoundSide  Side     `json:"wolfhound_side"`
	SecretWord     string   `json:"secret_word,omitempty"`
	Viewed         []string `json:"viewed,omitempty"`
	FoxLostAbility bool     `json:"fox_lost_ability"`
	WildChildModel string   `json:"wild_child_model,omitempty"`
	OrphanCopied   bool     `json:"orphan_copied"`
	MaidUsed       bool     `json:"maid_used"`

	// Infected dies at the next night resolution.
	Infected string `json:"infected,omitempty"`

	ThiefPool  []Role `json:"thief_pool,omitempty"`
	JesterPool []Role `json:"jester_pool,omitempty"`
}

// NewState returns the state of a freshly dealt game.
func NewState(thiefPool, jesterPool []Role) *State {
	return &State{
		ThiefPool:  slices.Clone(thiefPool),
		JesterPool: slices.Clone(jesterPool),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	cp := *s
	cp.Lovers = slices.Clone(s.Lovers)
	cp.Enchanted = slices.Clone(s.Enchanted)
	cp.RevengeGroups = [2][]string{slices.Clone(s.RevengeGroups[0]), slices.Clone(s.RevengeGroups[1])}
	cp.Viewed = slices.Clone(s.Viewed)
	cp.ThiefPool = slices.Clone(s.ThiefPool)
	cp.JesterPool = slices.Clone(s.JesterPool)
	return &cp
}

// StartRound clears round-scoped fields. It runs before the sequence of a
// new night is built.
func (s *State) StartRound() {
	s.PreviousProtected = s.LastProtected
	s.LastProtected = ""
}

func (s *State) IsEnchanted(name string) bool { return slices.Contains(s.Enchanted, name) }

func (s *State) enchant(name string) {
	if !s.IsEnchanted(name) {
		s.Enchanted = append(s.Enchanted, name)
	}
}

func (s *State) AreLovers(a, b string) bool {
	return len(s.Lovers) == 2 &&
		((s.Lovers[0] == a && s.Lovers[1] == b) || (s.Lovers[0] == b && s.Lovers[1] == a))
}

// Partner returns the other lover, or "".
func (s *State) Partner(name string) string {
	if len(s.Lovers) != 2 {
		return ""
	}
	switch name {
	case s.Lovers[0]:
		return s.Lovers[1]
	case s.Lovers[1]:
		return s.Lovers[0]
	}
	return ""
}

func (s *State) viewed(name string) bool { return slices.Contains(s.Viewed, name) }

// Night is the per-round scratch record of submitted night choices. It is
// created when the night starts and dropped once Resolve has run.
type Night struct {
	Round int `json:"round"`

	WerewolfTarget  string `json:"werewolf_target,omitempty"`
	SecondTarget    string `json:"second_target,omitempty"` // big bad wolf
	PoisonTarget    string `json:"poison_target,omitempty"`
	Healed          bool   `json:"healed"`
	WhiteWolfTarget string `json:"white_wolf_target,omitempty"`
	Converted       string `json:"converted,omitempty"`
	ShelterHost     string `json:"shelter_host,omitempty"`
}

// healTarget is the player the witch's heal potion saves this round.
func (n *Night) healTarget() string {
	if n.Healed {
		return n.WerewolfTarget
	}
	return ""
}
