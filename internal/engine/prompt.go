package engine

import "time"

// PromptKind tells the host which kind of choice to render.
type PromptKind int

const (
	PromptAcknowledge PromptKind = iota // no payload, just continue
	PromptPlayer                        // one name
	PromptPair                          // two distinct names
	PromptGroup                         // Arity distinct names
	PromptCard                          // one card from Cards
	PromptSide                          // village or werewolf
	PromptWord                          // free text
	PromptPotions                       // heal yes/no plus optional poison name
	PromptYesNo                         // Yes, optionally with one name
	PromptVote                          // one name, or Tie
	PromptTieBreak                      // one name, or none
)

var promptKindNames = [...]string{
	PromptAcknowledge: "acknowledge",
	PromptPlayer:      "player",
	PromptPair:        "pair",
	PromptGroup:       "group",
	PromptCard:        "card",
	PromptSide:        "side",
	PromptWord:        "word",
	PromptPotions:     "potions",
	PromptYesNo:       "yes_no",
	PromptVote:        "vote",
	PromptTieBreak:    "tie_break",
}

func (k PromptKind) String() string {
	if k < 0 || int(k) >= len(promptKindNames) {
		return "unknown"
	}
	return promptKindNames[k]
}

func (k PromptKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// promptKinds maps every waking role to the kind of choice it makes.
var promptKinds = map[Role]PromptKind{
	RolePureSoul:        PromptAcknowledge,
	RoleOrphan:          PromptPlayer,
	RoleThief:           PromptCard,
	RoleJester:          PromptCard,
	RoleBitterOldMan:    PromptGroup,
	RoleCupid:           PromptPair,
	RoleWolfhound:       PromptSide,
	RoleThreeBrothers:   PromptAcknowledge,
	RoleTwoSisters:      PromptAcknowledge,
	RoleWildChild:       PromptPlayer,
	RoleStutteringJudge: PromptWord,
	RoleSeer:            PromptPlayer,
	RoleHealer:          PromptPlayer,
	RoleWerewolf:        PromptPlayer,
	RoleAlphaWolf:       PromptPlayer,
	RoleBigBadWolf:      PromptPlayer,
	RoleWhiteWolf:       PromptPlayer,
	RoleWitch:           PromptPotions,
	RolePiper:           PromptPair,
	RoleHomeless:        PromptPlayer,
	RoleFox:             PromptPlayer,
}

// Prompt describes the one decision the engine is waiting for.
type Prompt struct {
	Phase     Phase         `json:"phase"`
	Stage     string        `json:"stage"`
	Round     int           `json:"round"`
	Kind      PromptKind    `json:"kind"`
	Role      Role          `json:"role,omitempty"`
	Actors    []string      `json:"actors,omitempty"`
	Arity     int           `json:"arity,omitempty"`
	Optional  bool          `json:"optional,omitempty"`
	Targets   []string      `json:"targets,omitempty"`
	Cards     []Role        `json:"cards,omitempty"`
	Victim    string        `json:"victim,omitempty"`
	CanHeal   bool          `json:"can_heal,omitempty"`
	CanPoison bool          `json:"can_poison,omitempty"`
	Deaths    []string      `json:"deaths,omitempty"`
	Pause     time.Duration `json:"pause,omitempty"`
}

// Decision is the payload the host submits for the pending prompt. Only the
// fields relevant to the prompt kind are read.
type Decision struct {
	Targets []string `json:"targets,omitempty"`
	Card    Role     `json:"card,omitempty"`
	Side    Side     `json:"side,omitempty"`
	Word    string   `json:"word,omitempty"`
	Heal    bool     `json:"heal,omitempty"`
	Yes     bool     `json:"yes,omitempty"`
	Tie     bool     `json:"tie,omitempty"`
}

// Outcome carries read-only information produced by a decision, such as a
// seer reveal, to be shown to the acting player only.
type Outcome struct {
	Revealed      Role     `json:"revealed,omitempty"`
	WerewolfFound bool     `json:"werewolf_found,omitempty"`
	Deaths        []string `json:"deaths,omitempty"`
	Spared        string   `json:"spared,omitempty"` // village idiot voted out but alive
	Winner        Winner   `json:"winner,omitempty"`
}
