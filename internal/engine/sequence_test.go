package engine

import (
	"testing"
	"testing/quick"
)

// ============================================================================
// Night Sequencer Tests
// ============================================================================

func fullTable() Roster { return seat(Roles()...) }

func stepRoles(steps []NightStep) []Role {
	var roles []Role
	for _, s := range steps {
		if s.Kind == StepRole {
			roles = append(roles, s.Role)
		}
	}
	return roles
}

func TestSequenceEmptyRoster(t *testing.T) {
	steps := BuildSequence(1, nil, nil)
	if len(steps) != 2 || steps[0].Kind != StepCloseEyes || steps[1].Kind != StepOpenEyes {
		t.Fatalf("expected only the brackets, got %+v", steps)
	}
	for _, s := range steps {
		if s.Decision || s.Pause != PauseDuration {
			t.Errorf("bracket step %s: decision=%v pause=%v", s.Kind, s.Decision, s.Pause)
		}
	}
}

func TestSequenceBrackets(t *testing.T) {
	r := fullTable()
	round1 := BuildSequence(1, r, NewState(nil, nil))
	if round1[0].Role != RolePureSoul || round1[1].Kind != StepCloseEyes {
		t.Errorf("round 1 must open with the pure soul reveal, then close eyes: %v, %v", round1[0], round1[1])
	}
	if round1[0].Pause != PauseDuration {
		t.Error("pure soul reveal should carry the pause hint")
	}
	if last := round1[len(round1)-1]; last.Kind != StepOpenEyes {
		t.Errorf("last step is %v", last)
	}

	round2 := BuildSequence(2, r, NewState(nil, nil))
	if round2[0].Kind != StepCloseEyes {
		t.Errorf("round 2 starts with %v", round2[0])
	}
}

func TestSequenceFollowsNightOrder(t *testing.T) {
	pos := make(map[Role]int)
	for i, r := range nightOrder {
		pos[r] = i
	}
	for round := 1; round <= 4; round++ {
		roles := stepRoles(BuildSequence(round, fullTable(), nil))
		for i := 1; i < len(roles); i++ {
			if pos[roles[i-1]] >= pos[roles[i]] {
				t.Errorf("round %d: %s comes before %s", round, roles[i-1], roles[i])
			}
		}
	}
}

func TestSequenceRoundFlags(t *testing.T) {
	f := func(n uint8) bool {
		round := int(n%6) + 1
		included := make(map[Role]bool)
		for _, r := range stepRoles(BuildSequence(round, fullTable(), NewState(nil, nil))) {
			included[r] = true
		}
		for _, r := range nightOrder {
			d := r.Descriptor()
			want := (!d.Round1Only && !d.EvenOnly) ||
				(round == 1 && d.Round1Only) ||
				(round%2 == 0 && d.EvenOnly)
			if included[r] != want {
				t.Errorf("round %d: %s included=%v want %v", round, r, included[r], want)
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 50}); err != nil {
		t.Error(err)
	}
}

func TestSequenceSkipsDeadRoles(t *testing.T) {
	f := func(mask uint32, n uint8) bool {
		round := int(n%6) + 1
		r := fullTable()
		for i, p := range r {
			if mask&(1<<uint(i)) != 0 {
				p.Alive = false
			}
		}
		for _, role := range stepRoles(BuildSequence(round, r, nil)) {
			if len(r.ByOriginal(role)) == 0 {
				t.Errorf("round %d: %s scheduled with no living holder", round, role)
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 100}); err != nil {
		t.Error(err)
	}
}

func TestSequenceUsesOriginalRole(t *testing.T) {
	r := table("Sam", RoleSeer, "Wolf", RoleWerewolf, "Vic", RoleVillager)
	// An alpha wolf conversion changes the current role only.
	r.Find("Sam").Role = RoleWerewolf
	roles := stepRoles(BuildSequence(2, r, nil))
	if len(roles) != 2 || roles[0] != RoleSeer || roles[1] != RoleWerewolf {
		t.Errorf("got %v", roles)
	}
}

func TestSequenceLivenessExceptions(t *testing.T) {
	r := table("Jo", RoleJester, "Fox", RoleFox, "Wolf", RoleWerewolf)
	st := NewState(nil, nil)

	roles := stepRoles(BuildSequence(3, r, st))
	if len(roles) != 3 {
		t.Fatalf("expected jester, werewolf and fox: %v", roles)
	}

	r.Find("Jo").Role = RoleWerewolf
	st.FoxLostAbility = true
	roles = stepRoles(BuildSequence(3, r, st))
	if len(roles) != 1 || roles[0] != RoleWerewolf {
		t.Errorf("jester with a wolf card and a blunted fox must sit out: %v", roles)
	}
}

func TestSequenceSpentWitchOnlyAcknowledges(t *testing.T) {
	r := table("Wanda", RoleWitch, "Wolf", RoleWerewolf)
	st := NewState(nil, nil)
	st.HealPotionUsed, st.PoisonPotionUsed = true, true
	for _, s := range BuildSequence(2, r, st) {
		if s.Role == RoleWitch && (s.Decision || s.Prompt != PromptAcknowledge) {
			t.Errorf("witch without potions still asks for a decision: %+v", s)
		}
	}
}

func TestSequenceRejectsRoundZero(t *testing.T) {
	expectInvariant(t, func() { BuildSequence(0, fullTable(), nil) })
}
