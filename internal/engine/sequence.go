package engine

import "time"

// StepKind distinguishes bracketing steps from role calls.
type StepKind int

const (
	StepCloseEyes StepKind = iota
	StepRole
	StepOpenEyes
)

func (k StepKind) String() string {
	switch k {
	case StepCloseEyes:
		return "close_eyes"
	case StepOpenEyes:
		return "open_eyes"
	}
	return "role"
}

func (k StepKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// NightStep is one entry of a night's running order.
type NightStep struct {
	Kind     StepKind      `json:"kind"`
	Role     Role          `json:"role,omitempty"`
	Decision bool          `json:"decision"` // a Submit with a payload is required
	Prompt   PromptKind    `json:"prompt"`
	Actors   []string      `json:"actors,omitempty"`
	Pause    time.Duration `json:"pause"`
}

// BuildSequence returns the night's steps in the fixed order. st may be nil,
// in which case state-dependent exceptions (a fox that lost its ability) are
// not applied.
func BuildSequence(round int, roster Roster, st *State) []NightStep {
	invariant(round >= 1, "round %d < 1", round)

	var steps []NightStep
	for _, role := range nightOrder {
		if !scheduled(role, round) {
			continue
		}
		actors := roster.ByOriginal(role)
		if len(actors) == 0 || !eligible(role, actors, st) {
			continue
		}
		kind := promptKinds[role]
		step := NightStep{
			Kind:     StepRole,
			Role:     role,
			Decision: kind != PromptAcknowledge,
			Prompt:   kind,
			Actors:   actors.Names(),
		}
		if role == RoleWitch && st != nil && st.HealPotionUsed && st.PoisonPotionUsed {
			step.Decision = false
			step.Prompt = PromptAcknowledge
		}
		if pausedRoles[role] {
			step.Pause = PauseDuration
		}
		steps = append(steps, step)
	}

	closeEyes := NightStep{Kind: StepCloseEyes, Prompt: PromptAcknowledge, Pause: PauseDuration}
	openEyes := NightStep{Kind: StepOpenEyes, Prompt: PromptAcknowledge, Pause: PauseDuration}

	// The pure soul reveals itself with eyes open, before the village sleeps.
	out := make([]NightStep, 0, len(steps)+2)
	if len(steps) > 0 && steps[0].Role == RolePureSoul {
		out = append(out, steps[0])
		steps = steps[1:]
	}
	out = append(out, closeEyes)
	out = append(out, steps...)
	return append(out, openEyes)
}

// scheduled applies the round-1-only and even-round-only flags.
func scheduled(role Role, round int) bool {
	d := role.Descriptor()
	switch {
	case d.Round1Only:
		return round == 1
	case d.EvenOnly:
		return round%2 == 0
	}
	return true
}

func eligible(role Role, actors Roster, st *State) bool {
	switch role {
	case RoleJester:
		// A jester holding a werewolf card wakes with the pack instead.
		for _, p := range actors {
			if !p.Role.IsWerewolf() {
				return true
			}
		}
		return false
	case RoleFox:
		return st == nil || !st.FoxLostAbility
	}
	return true
}
