package engine

import (
	"crypto/rand"
	"math/big"
	"slices"
)

// Phase is the coarse position of a game.
type Phase int

const (
	PhaseSetup Phase = iota // assign-roles boundary, no game running
	PhaseNight
	PhaseDay
	PhaseOver
)

func (p Phase) String() string {
	switch p {
	case PhaseNight:
		return "night"
	case PhaseDay:
		return "day"
	case PhaseOver:
		return "over"
	}
	return "setup"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Setup is what the narrator supplies to deal a game. Roles[i] goes to
// Players[i]; call Shuffle first for a random deal.
type Setup struct {
	Players    []string `json:"players"`
	Roles      []Role   `json:"roles"`
	ThiefPool  []Role   `json:"thief_pool,omitempty"`
	JesterPool []Role   `json:"jester_pool,omitempty"`
}

// Game drives one table through nights and days. Exactly one decision is
// pending at any time; callers must serialize Pending, Submit and Reset.
type Game struct {
	phase  Phase
	round  int
	roster Roster
	state  *State
	winner Winner

	night  *Night
	steps  []NightStep
	cursor int
	last   *RoundResult

	day *day
}

// New deals setup and opens the first night.
func New(setup Setup) (*Game, error) {
	g := &Game{}
	if err := g.Start(setup); err != nil {
		return nil, err
	}
	return g, nil
}

// Start discards whatever was running and deals a new game.
func (g *Game) Start(setup Setup) error {
	roster, err := NewRoster(setup.Players, setup.Roles)
	if err != nil {
		return err
	}
	for _, pool := range [][]Role{setup.ThiefPool, setup.JesterPool} {
		for _, r := range pool {
			if !r.valid() {
				return errorf(ErrInvalidSetup, "invalid role in card pool")
			}
		}
	}
	*g = Game{
		phase:  PhaseNight,
		round:  1,
		roster: roster,
		state:  NewState(setup.ThiefPool, setup.JesterPool),
	}
	g.startNight()
	return nil
}

// Reset returns to the assign-roles boundary. Nothing of the previous game
// survives.
func (g *Game) Reset() { *g = Game{} }

func (g *Game) Phase() Phase   { return g.phase }
func (g *Game) Round() int     { return g.round }
func (g *Game) Winner() Winner { return g.winner }
func (g *Game) Roster() Roster { return g.roster.Clone() }
func (g *Game) State() *State {
	if g.state == nil {
		return nil
	}
	return g.state.Clone()
}

// LastNight returns the most recent night's result, if any.
func (g *Game) LastNight() (RoundResult, bool) {
	if g.last == nil {
		return RoundResult{}, false
	}
	res := *g.last
	res.Roster = res.Roster.Clone()
	return res, true
}

// Sequence returns the current night's steps.
func (g *Game) Sequence() []NightStep { return slices.Clone(g.steps) }

// Pending describes the decision the game is waiting for.
func (g *Game) Pending() Prompt {
	switch g.phase {
	case PhaseNight:
		return NightPrompt(g.steps[g.cursor], g.state, g.night, g.roster)
	case PhaseDay:
		return g.dayPrompt()
	}
	return Prompt{Phase: g.phase, Stage: g.phase.String(), Round: g.round, Kind: PromptAcknowledge}
}

// Submit answers the pending prompt. Validation errors (ErrInvalidTarget,
// ErrIllegalAbility) leave the game unchanged; submit again.
func (g *Game) Submit(d Decision) (Outcome, error) {
	switch g.phase {
	case PhaseSetup:
		return Outcome{}, errorf(ErrWrongPhase, "no game has been dealt")
	case PhaseOver:
		return Outcome{}, errorf(ErrGameOver, "%s won", g.winner)
	case PhaseDay:
		return g.submitDay(d)
	}

	out, err := ApplyNight(g.steps[g.cursor], d, g.state, g.night, g.roster)
	if err != nil {
		return Outcome{}, err
	}
	g.cursor++
	if g.cursor < len(g.steps) {
		return out, nil
	}
	res := g.endNight()
	out.Deaths = res.Deaths
	out.Winner = g.winner
	return out, nil
}

func (g *Game) startNight() {
	g.phase = PhaseNight
	g.state.StartRound()
	g.night = &Night{Round: g.round}
	g.steps = BuildSequence(g.round, g.roster, g.state)
	g.cursor = 0
}

func (g *Game) endNight() RoundResult {
	res, st := Resolve(g.night, g.state, g.roster)
	g.roster, g.state = res.Roster, st
	g.last = &res
	g.night, g.steps, g.cursor = nil, nil, 0
	if g.checkWin() != WinnerNone {
		return res
	}
	g.phase = PhaseDay
	g.day = newDay(res)
	return res
}

func (g *Game) checkWin() Winner {
	w := Evaluate(g.roster, g.state)
	if w != WinnerNone {
		g.finish(w)
	}
	return w
}

func (g *Game) finish(w Winner) {
	g.phase = PhaseOver
	g.winner = w
	g.day = nil
	g.night, g.steps = nil, nil
}

// Snapshot is a read-only view of a game for hosts.
type Snapshot struct {
	Phase     Phase        `json:"phase"`
	Round     int          `json:"round"`
	Roster    Roster       `json:"roster"`
	Pending   Prompt       `json:"pending"`
	LastNight *RoundResult `json:"last_night,omitempty"`
	DayDeaths []string     `json:"day_deaths,omitempty"`
	BearGrowl bool         `json:"bear_growl,omitempty"`
	Winner    Winner       `json:"winner,omitempty"`
}

func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		Phase:   g.phase,
		Round:   g.round,
		Roster:  g.roster.Clone(),
		Pending: g.Pending(),
		Winner:  g.winner,
	}
	if res, ok := g.LastNight(); ok {
		s.LastNight = &res
		s.BearGrowl = res.BearGrowl
	}
	if g.day != nil {
		s.DayDeaths = slices.Clone(g.day.deaths)
	}
	return s
}

// TableView strips everything the players must not see: roles, who acts on
// the pending prompt and its choices. What is left is what the narrator
// announces aloud anyway.
func (s Snapshot) TableView() Snapshot {
	v := Snapshot{
		Phase:     s.Phase,
		Round:     s.Round,
		DayDeaths: slices.Clone(s.DayDeaths),
		BearGrowl: s.BearGrowl,
		Winner:    s.Winner,
		Pending: Prompt{
			Phase:  s.Pending.Phase,
			Stage:  s.Pending.Stage,
			Round:  s.Pending.Round,
			Kind:   s.Pending.Kind,
			Deaths: slices.Clone(s.Pending.Deaths),
			Pause:  s.Pending.Pause,
		},
	}
	for _, p := range s.Roster {
		v.Roster = append(v.Roster, &Player{Name: p.Name, Alive: p.Alive})
	}
	if s.LastNight != nil {
		v.LastNight = &RoundResult{
			Round:     s.LastNight.Round,
			Deaths:    slices.Clone(s.LastNight.Deaths),
			BearGrowl: s.LastNight.BearGrowl,
		}
	}
	return v
}

// Shuffle returns a crypto-random permutation of roles.
func Shuffle(roles []Role) ([]Role, error) {
	out := slices.Clone(roles)
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, err
		}
		k := int(j.Int64())
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}
