package engine

import (
	"slices"
	"strings"
)

// nightContext is what a night handler reads and writes. Handlers validate
// the whole decision before touching st, night or roster.
type nightContext struct {
	step   NightStep
	st     *State
	night  *Night
	roster Roster
	actor  *Player
	h      nightHandler
}

type nightHandler struct {
	// targets lists the legal picks; arity is how many a full decision names.
	targets  func(c *nightContext) []string
	arity    int
	optional bool
	prompt   func(c *nightContext, p *Prompt)
	apply    func(c *nightContext, d Decision) (Outcome, error)
}

var nightHandlers = map[Role]nightHandler{
	RolePureSoul:      {apply: acknowledge},
	RoleThreeBrothers: {apply: acknowledge},
	RoleTwoSisters:    {apply: acknowledge},

	RoleOrphan: {
		targets: othersAlive,
		arity:   1,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if c.st.OrphanCopied {
				return Outcome{}, errorf(ErrIllegalAbility, "the orphan has already chosen")
			}
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			c.actor.Role = c.roster.Find(names[0]).Role
			c.st.OrphanCopied = true
			return Outcome{}, nil
		},
	},

	RoleThief: {
		optional: true,
		prompt:   func(c *nightContext, p *Prompt) { p.Cards = slices.Clone(c.st.ThiefPool) },
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if d.Card == RoleNone {
				return Outcome{}, nil
			}
			pool, err := draw(c.st.ThiefPool, d.Card)
			if err != nil {
				return Outcome{}, err
			}
			c.st.ThiefPool = pool
			c.actor.Role = d.Card
			return Outcome{}, nil
		},
	},

	RoleJester: {
		optional: true,
		prompt:   func(c *nightContext, p *Prompt) { p.Cards = slices.Clone(c.st.JesterPool) },
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if d.Card == RoleNone {
				return Outcome{}, nil
			}
			pool, err := draw(c.st.JesterPool, d.Card)
			if err != nil {
				return Outcome{}, err
			}
			if c.actor.Role != RoleJester {
				pool = append(pool, c.actor.Role)
			}
			c.st.JesterPool = pool
			c.actor.Role = d.Card
			return Outcome{}, nil
		},
	},

	RoleBitterOldMan: {
		targets: allAlive,
		prompt: func(c *nightContext, p *Prompt) {
			p.Arity = len(c.roster.Alive()) / 2
		},
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if len(c.st.RevengeGroups[0])+len(c.st.RevengeGroups[1]) > 0 {
				return Outcome{}, errorf(ErrIllegalAbility, "revenge groups are already set")
			}
			alive := c.roster.Alive().Names()
			group, err := c.pickN(d, len(alive)/2, alive)
			if err != nil {
				return Outcome{}, err
			}
			var rest []string
			for _, name := range alive {
				if !slices.Contains(group, name) {
					rest = append(rest, name)
				}
			}
			c.st.RevengeGroups = [2][]string{slices.Clone(group), rest}
			return Outcome{}, nil
		},
	},

	RoleCupid: {
		targets: allAlive,
		arity:   2,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if len(c.st.Lovers) == 2 {
				return Outcome{}, errorf(ErrIllegalAbility, "the lovers are already bound")
			}
			names, err := c.pickN(d, 2, allAlive(c))
			if err != nil {
				return Outcome{}, err
			}
			c.st.Lovers = slices.Clone(names)
			return Outcome{}, nil
		},
	},

	RoleWolfhound: {
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if c.st.WolfhoundSide != SideUndecided {
				return Outcome{}, errorf(ErrIllegalAbility, "the wolfhound has already chosen a side")
			}
			switch d.Side {
			case SideVillage:
			case SideWerewolf:
				c.actor.Role = RoleWerewolf
			default:
				return Outcome{}, errorf(ErrInvalidTarget, "choose village or werewolf")
			}
			c.st.WolfhoundSide = d.Side
			return Outcome{}, nil
		},
	},

	RoleWildChild: {
		targets: othersAlive,
		arity:   1,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if c.st.WildChildModel != "" {
				return Outcome{}, errorf(ErrIllegalAbility, "the wild child already has a model")
			}
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			c.st.WildChildModel = names[0]
			return Outcome{}, nil
		},
	},

	RoleStutteringJudge: {
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if c.st.SecretWord != "" {
				return Outcome{}, errorf(ErrIllegalAbility, "the secret word is already set")
			}
			word := strings.TrimSpace(d.Word)
			if word == "" {
				return Outcome{}, errorf(ErrInvalidTarget, "the secret word must not be empty")
			}
			c.st.SecretWord = word
			return Outcome{}, nil
		},
	},

	RoleSeer: {
		targets: func(c *nightContext) []string {
			return c.alive(func(p *Player) bool { return p != c.actor && !c.st.viewed(p.Name) })
		},
		arity: 1,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			c.st.Viewed = append(c.st.Viewed, names[0])
			return Outcome{Revealed: c.roster.Find(names[0]).Role}, nil
		},
	},

	RoleHealer: {
		targets: func(c *nightContext) []string {
			return c.alive(func(p *Player) bool { return p.Name != c.st.PreviousProtected })
		},
		arity: 1,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if len(d.Targets) == 1 && d.Targets[0] != "" && d.Targets[0] == c.st.PreviousProtected {
				return Outcome{}, errorf(ErrInvalidTarget, "%q was protected last round", d.Targets[0])
			}
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			c.st.LastProtected = names[0]
			return Outcome{}, nil
		},
	},

	RoleWerewolf: {
		targets:  villagersAlive,
		arity:    1,
		optional: true,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			c.night.WerewolfTarget = names[0]
			return Outcome{}, nil
		},
	},

	RoleAlphaWolf: {
		targets:  villagersAlive,
		arity:    1,
		optional: true,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			c.roster.Find(names[0]).Role = RoleWerewolf
			c.night.Converted = names[0]
			return Outcome{}, nil
		},
	},

	RoleBigBadWolf: {
		targets: func(c *nightContext) []string {
			return c.alive(func(p *Player) bool { return !p.Role.IsWerewolf() && p.Name != c.night.WerewolfTarget })
		},
		arity:    1,
		optional: true,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			c.night.SecondTarget = names[0]
			return Outcome{}, nil
		},
	},

	RoleWhiteWolf: {
		targets: func(c *nightContext) []string {
			return c.alive(func(p *Player) bool { return p != c.actor && p.Role.IsWerewolf() })
		},
		arity:    1,
		optional: true,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			c.night.WhiteWolfTarget = names[0]
			return Outcome{}, nil
		},
	},

	RoleWitch: {
		targets:  othersAlive,
		arity:    1,
		optional: true,
		prompt: func(c *nightContext, p *Prompt) {
			p.Victim = c.night.WerewolfTarget
			p.CanHeal = c.canHeal()
			p.CanPoison = !c.st.PoisonPotionUsed
			if !p.CanPoison {
				p.Targets = nil
				p.Arity = 0
			}
		},
		apply: applyWitch,
	},

	RolePiper: {
		targets: func(c *nightContext) []string {
			return c.alive(func(p *Player) bool { return p != c.actor && !c.st.IsEnchanted(p.Name) })
		},
		arity: 2,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			names, err := c.pick(d)
			if err != nil {
				return Outcome{}, err
			}
			for _, name := range names {
				c.st.enchant(name)
			}
			return Outcome{}, nil
		},
	},

	RoleHomeless: {
		targets: func(c *nightContext) []string {
			return c.alive(func(p *Player) bool { return p != c.actor && p.Name != c.st.PreviousShelter })
		},
		arity: 1,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			c.night.ShelterHost = names[0]
			return Outcome{}, nil
		},
	},

	RoleFox: {
		targets: othersAlive,
		arity:   1,
		apply: func(c *nightContext, d Decision) (Outcome, error) {
			if c.st.FoxLostAbility {
				return Outcome{}, errorf(ErrIllegalAbility, "the fox has lost its sense of smell")
			}
			names, err := c.pick(d)
			if err != nil || len(names) == 0 {
				return Outcome{}, err
			}
			sniffed := append([]string{names[0]}, c.roster.Neighbors(names[0])...)
			for _, name := range sniffed {
				if c.roster.Find(name).Role.IsWerewolf() {
					return Outcome{WerewolfFound: true}, nil
				}
			}
			c.st.FoxLostAbility = true
			return Outcome{}, nil
		},
	},
}

func acknowledge(*nightContext, Decision) (Outcome, error) { return Outcome{}, nil }

func applyWitch(c *nightContext, d Decision) (Outcome, error) {
	if d.Heal && !c.canHeal() {
		if c.st.HealPotionUsed {
			return Outcome{}, errorf(ErrIllegalAbility, "the heal potion is already used")
		}
		return Outcome{}, errorf(ErrIllegalAbility, "there is no werewolf victim to heal")
	}
	if len(d.Targets) > 0 && c.st.PoisonPotionUsed {
		return Outcome{}, errorf(ErrIllegalAbility, "the poison potion is already used")
	}
	poison, err := c.pick(d)
	if err != nil {
		return Outcome{}, err
	}
	if d.Heal {
		c.night.Healed = true
		c.st.HealPotionUsed = true
	}
	if len(poison) == 1 {
		c.night.PoisonTarget = poison[0]
		c.st.PoisonPotionUsed = true
	}
	return Outcome{}, nil
}

func (c *nightContext) canHeal() bool {
	return !c.st.HealPotionUsed && c.night.WerewolfTarget != ""
}

func (c *nightContext) alive(keep func(*Player) bool) []string {
	var names []string
	for _, p := range c.roster {
		if p.Alive && keep(p) {
			names = append(names, p.Name)
		}
	}
	return names
}

func allAlive(c *nightContext) []string { return c.roster.Alive().Names() }

func othersAlive(c *nightContext) []string {
	return c.alive(func(p *Player) bool { return p != c.actor })
}

func villagersAlive(c *nightContext) []string {
	return c.alive(func(p *Player) bool { return !p.Role.IsWerewolf() })
}

// pick validates d.Targets against the handler's own target list and arity.
// When fewer legal targets exist than the arity, every legal target must be
// named; with none left, an empty decision passes.
func (c *nightContext) pick(d Decision) ([]string, error) {
	legal := c.h.targets(c)
	n := min(c.h.arity, len(legal))
	if c.h.optional && len(d.Targets) == 0 {
		return nil, nil
	}
	return c.pickN(d, n, legal)
}

func (c *nightContext) pickN(d Decision, n int, legal []string) ([]string, error) {
	if len(d.Targets) != n {
		return nil, errorf(ErrInvalidTarget, "%s needs %d name(s), got %d", c.step.Role, n, len(d.Targets))
	}
	seen := make(map[string]bool, n)
	for _, name := range d.Targets {
		if !c.roster.isAlive(name) {
			return nil, errorf(ErrInvalidTarget, "%q is not a living player", name)
		}
		if seen[name] {
			return nil, errorf(ErrInvalidTarget, "%q is named twice", name)
		}
		if !slices.Contains(legal, name) {
			return nil, errorf(ErrInvalidTarget, "%q is not a legal target for %s", name, c.step.Role)
		}
		seen[name] = true
	}
	return d.Targets, nil
}

// draw removes one copy of card from pool.
func draw(pool []Role, card Role) ([]Role, error) {
	i := slices.Index(pool, card)
	if i < 0 {
		return nil, errorf(ErrInvalidTarget, "%s is not in the card pool", card)
	}
	return slices.Delete(slices.Clone(pool), i, i+1), nil
}

func newNightContext(step NightStep, st *State, night *Night, roster Roster) *nightContext {
	h, ok := nightHandlers[step.Role]
	invariant(ok, "no night handler for %s", step.Role)
	c := &nightContext{step: step, st: st, night: night, roster: roster, h: h}
	actors := roster.ByOriginal(step.Role)
	invariant(len(actors) > 0, "no living %s to act in round %d", step.Role, night.Round)
	c.actor = actors[0]
	if step.Role == RoleJester {
		// a jester holding a werewolf card sits this call out
		for _, p := range actors {
			if !p.Role.IsWerewolf() {
				c.actor = p
				break
			}
		}
	}
	return c
}

// NightPrompt describes the choice for step.
func NightPrompt(step NightStep, st *State, night *Night, roster Roster) Prompt {
	p := Prompt{
		Phase:  PhaseNight,
		Stage:  step.Kind.String(),
		Round:  night.Round,
		Kind:   step.Prompt,
		Role:   step.Role,
		Actors: step.Actors,
		Pause:  step.Pause,
	}
	if step.Kind != StepRole {
		return p
	}
	p.Stage = step.Role.String()
	if !step.Decision {
		p.Kind = PromptAcknowledge
		return p
	}
	c := newNightContext(step, st, night, roster)
	h := c.h
	if h.targets != nil {
		p.Targets = h.targets(c)
		p.Arity = min(h.arity, len(p.Targets))
	}
	p.Optional = h.optional
	if h.prompt != nil {
		h.prompt(c, &p)
	}
	return p
}

// ApplyNight validates d for step and applies it to st, night and roster. On
// error nothing is changed and the same step should be prompted again.
func ApplyNight(step NightStep, d Decision, st *State, night *Night, roster Roster) (Outcome, error) {
	if step.Kind != StepRole || !step.Decision {
		return Outcome{}, nil
	}
	if !scheduled(step.Role, night.Round) {
		return Outcome{}, errorf(ErrIllegalAbility, "%s does not act in round %d", step.Role, night.Round)
	}
	c := newNightContext(step, st, night, roster)
	originals := make([]Role, len(roster))
	for i, p := range roster {
		originals[i] = p.OriginalRole
	}
	out, err := c.h.apply(c, d)
	for i, p := range roster {
		invariant(p.OriginalRole == originals[i], "original role of %q changed", p.Name)
	}
	return out, err
}
