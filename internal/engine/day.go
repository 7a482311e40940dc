package engine

import "slices"

// DayStage is the position inside the day phase state machine.
type DayStage int

const (
	StageAnnounce DayStage = iota
	StageMaid
	StageFinalAct
	StageDiscussion
	StageVote
	StageSecondVote
	StageTieBreak
)

var dayStageNames = [...]string{
	StageAnnounce:   "announce",
	StageMaid:       "loyal_maid",
	StageFinalAct:   "final_act",
	StageDiscussion: "discussion",
	StageVote:       "vote",
	StageSecondVote: "second_vote",
	StageTieBreak:   "tie_break",
}

func (s DayStage) String() string {
	if s < 0 || int(s) >= len(dayStageNames) {
		return "unknown"
	}
	return dayStageNames[s]
}

func (s DayStage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// day is the scratch record of one day phase.
type day struct {
	stage       DayStage
	nightDeaths []string
	deaths      []string

	// shooters queue the pending final acts; resume is the stage to enter
	// once the queue is empty, unless the vote has already happened.
	shooters  []string
	resume    DayStage
	afterVote bool

	firstVote *Decision
	revoting  bool
}

func newDay(res RoundResult) *day {
	return &day{
		stage:       StageAnnounce,
		nightDeaths: slices.Clone(res.Deaths),
		shooters:    slices.Clone(res.FinalActs),
	}
}

func (g *Game) dayPrompt() Prompt {
	d := g.day
	p := Prompt{Phase: PhaseDay, Stage: d.stage.String(), Round: g.round}
	alive := g.roster.Alive().Names()
	switch d.stage {
	case StageAnnounce:
		p.Kind = PromptAcknowledge
		p.Deaths = slices.Clone(d.nightDeaths)
	case StageMaid:
		p.Kind = PromptYesNo
		p.Role = RoleLoyalMaid
		p.Actors = g.roster.ByOriginal(RoleLoyalMaid).Names()
		p.Targets = slices.Clone(d.nightDeaths)
		p.Arity = 1
		p.Optional = true
	case StageFinalAct:
		shooter := g.roster.Find(d.shooters[0])
		p.Kind = PromptPlayer
		p.Role = shooter.OriginalRole
		p.Actors = []string{shooter.Name}
		p.Targets = alive
		p.Arity = min(1, len(alive))
		p.Optional = true
	case StageDiscussion:
		p.Kind = PromptAcknowledge
		p.Deaths = slices.Clone(d.deaths)
	case StageVote:
		p.Kind = PromptVote
		p.Targets = alive
		p.Arity = 1
		p.Optional = true
	case StageSecondVote:
		p.Kind = PromptYesNo
		p.Role = RoleStutteringJudge
		p.Actors = g.roster.ByOriginal(RoleStutteringJudge).Names()
	case StageTieBreak:
		p.Kind = PromptTieBreak
		p.Targets = alive
		p.Arity = 1
		p.Optional = true
	}
	return p
}

func (g *Game) submitDay(dec Decision) (Outcome, error) {
	d := g.day
	switch d.stage {
	case StageAnnounce:
		if g.maidCanSwap() {
			d.stage = StageMaid
			return Outcome{}, nil
		}
		g.toFinalActs(StageDiscussion)
		return Outcome{}, nil

	case StageMaid:
		if dec.Yes {
			if len(dec.Targets) != 1 || !slices.Contains(d.nightDeaths, dec.Targets[0]) {
				return Outcome{}, errorf(ErrInvalidTarget, "the loyal maid must name one of last night's dead")
			}
			dead := g.roster.Find(dec.Targets[0])
			for _, maid := range g.roster.ByOriginal(RoleLoyalMaid) {
				maid.Role = dead.Role
			}
			g.state.MaidUsed = true
		}
		g.toFinalActs(StageDiscussion)
		return Outcome{}, nil

	case StageFinalAct:
		var deaths []string
		if len(dec.Targets) > 0 {
			if len(dec.Targets) != 1 || !g.roster.isAlive(dec.Targets[0]) {
				return Outcome{}, errorf(ErrInvalidTarget, "the final act needs one living player")
			}
			deaths = g.kill(dec.Targets[0])
		}
		d.shooters = d.shooters[1:]
		if w := g.checkWin(); w != WinnerNone {
			return Outcome{Deaths: deaths, Winner: w}, nil
		}
		g.toFinalActs(d.resume)
		return Outcome{Deaths: deaths}, nil

	case StageDiscussion:
		d.stage = StageVote
		return Outcome{}, nil

	case StageVote:
		if err := g.validateVote(dec); err != nil {
			return Outcome{}, err
		}
		if g.judgeCanInterject() {
			first := dec
			d.firstVote = &first
			d.stage = StageSecondVote
			return Outcome{}, nil
		}
		return g.countVote(dec)

	case StageSecondVote:
		first := *d.firstVote
		d.firstVote = nil
		if dec.Yes {
			// the first vote is discarded, not applied
			d.revoting = true
			d.stage = StageVote
			return Outcome{}, nil
		}
		return g.countVote(first)

	case StageTieBreak:
		if len(dec.Targets) == 0 {
			return g.endDay(nil), nil
		}
		if len(dec.Targets) != 1 || !g.roster.isAlive(dec.Targets[0]) {
			return Outcome{}, errorf(ErrInvalidTarget, "the tie break needs one living player or none")
		}
		return g.applyVote(dec.Targets[0]), nil
	}
	invariant(false, "unknown day stage %d", d.stage)
	return Outcome{}, nil
}

func (g *Game) validateVote(dec Decision) error {
	if dec.Tie && len(dec.Targets) > 0 {
		return errorf(ErrInvalidTarget, "a tied vote names nobody")
	}
	if len(dec.Targets) > 1 {
		return errorf(ErrInvalidTarget, "the vote eliminates at most one player")
	}
	if len(dec.Targets) == 1 && !g.roster.isAlive(dec.Targets[0]) {
		return errorf(ErrInvalidTarget, "%q is not a living player", dec.Targets[0])
	}
	return nil
}

// countVote turns a validated vote into its consequence.
func (g *Game) countVote(dec Decision) (Outcome, error) {
	switch {
	case dec.Tie:
		if goats := g.roster.ByOriginal(RoleScapegoat); len(goats) > 0 {
			return g.applyVote(goats[0].Name), nil
		}
		g.day.stage = StageTieBreak
		return Outcome{}, nil
	case len(dec.Targets) == 1:
		return g.applyVote(dec.Targets[0]), nil
	}
	return g.endDay(nil), nil
}

func (g *Game) applyVote(name string) Outcome {
	p := g.roster.Find(name)
	switch {
	case p.OriginalRole == RoleAngel && g.round == 1:
		g.kill(name)
		g.finish(WinnerAngel)
		return Outcome{Deaths: []string{name}, Winner: WinnerAngel}
	case p.OriginalRole == RoleVillageIdiot:
		out := g.endDay(nil)
		out.Spared = name
		return out
	}
	deaths := g.kill(name)
	if w := g.checkWin(); w != WinnerNone {
		return Outcome{Deaths: deaths, Winner: w}
	}
	g.day.afterVote = true
	g.toFinalActs(StageVote)
	return Outcome{Deaths: deaths}
}

// toFinalActs moves to the next queued shooter, or to next once none are
// left. After the vote, next means the end of the day.
func (g *Game) toFinalActs(next DayStage) {
	d := g.day
	if len(d.shooters) > 0 {
		d.stage = StageFinalAct
		d.resume = next
		return
	}
	if d.afterVote {
		g.endDay(nil)
		return
	}
	d.stage = next
}

func (g *Game) maidCanSwap() bool {
	return !g.state.MaidUsed && len(g.day.nightDeaths) > 0 && len(g.roster.ByOriginal(RoleLoyalMaid)) > 0
}

func (g *Game) judgeCanInterject() bool {
	return g.round == 1 && !g.day.revoting && len(g.roster.ByOriginal(RoleStutteringJudge)) > 0
}

// kill marks name dead by day and applies the lover chain. New final-act
// holders join the shooter queue.
func (g *Game) kill(name string) []string {
	var dead deathSet
	dead.add(name)
	dead.chain(g.state, "", g.roster)
	for _, n := range dead {
		g.roster.Find(n).Alive = false
	}
	afterDeaths(g.state, g.roster, dead)
	g.day.deaths = append(g.day.deaths, dead...)
	g.day.shooters = append(g.day.shooters, finalActs(g.roster, dead)...)
	return dead
}

func (g *Game) endDay(deaths []string) Outcome {
	g.day = nil
	g.round++
	g.startNight()
	return Outcome{Deaths: deaths}
}
