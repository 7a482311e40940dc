package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTarget: the choice names a dead or unknown player, repeats a
	// required-distinct pick, or breaks a no-repeat rule. Re-prompt.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrIllegalAbility: a consumed one-shot or an off-parity use. Re-prompt.
	ErrIllegalAbility = errors.New("illegal ability use")
	ErrWrongPhase     = errors.New("wrong phase for this decision")
	ErrGameOver       = errors.New("game is over")
	ErrInvalidSetup   = errors.New("invalid game setup")
)

func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// InvariantError is raised (via panic) on programming defects such as a
// changed original role or a dead actor. It is never a user error.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "engine invariant violated: " + e.Msg }

func invariant(ok bool, format string, args ...any) {
	if !ok {
		panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
	}
}
