package engine

import (
	"errors"
	"fmt"
	"testing"
)

// table seats name/role pairs in order: table("Alice", RoleSeer, "Bob", RoleWerewolf).
func table(seats ...any) Roster {
	var names []string
	var roles []Role
	for i := 0; i < len(seats); i += 2 {
		names = append(names, seats[i].(string))
		roles = append(roles, seats[i+1].(Role))
	}
	r, err := NewRoster(names, roles)
	if err != nil {
		panic(err)
	}
	return r
}

// seat gives players P1..Pn the listed roles.
func seat(roles ...Role) Roster {
	names := make([]string, len(roles))
	for i := range roles {
		names[i] = fmt.Sprintf("P%d", i+1)
	}
	r, err := NewRoster(names, roles)
	if err != nil {
		panic(err)
	}
	return r
}

func roleStep(r Role) NightStep {
	kind := promptKinds[r]
	return NightStep{Kind: StepRole, Role: r, Decision: kind != PromptAcknowledge, Prompt: kind}
}

func pick(names ...string) Decision { return Decision{Targets: names} }

func kill(r Roster, names ...string) {
	for _, n := range names {
		r.Find(n).Alive = false
	}
}

func expectErr(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func mustApply(t *testing.T, step NightStep, d Decision, st *State, night *Night, r Roster) Outcome {
	t.Helper()
	out, err := ApplyNight(step, d, st, night, r)
	if err != nil {
		t.Fatalf("%s: %v", step.Role, err)
	}
	return out
}

func expectInvariant(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		rec := recover()
		if _, ok := rec.(*InvariantError); !ok {
			t.Fatalf("expected an invariant panic, got %v", rec)
		}
	}()
	fn()
}
