package engine

import (
	"fmt"
	"time"
)

// Role identifies a card from the fixed catalog. The set is closed: adding a
// value means adding a catalog row, a night handler (if it wakes up) and a
// position in nightOrder. catalog_test.go checks all three.
type Role int

const (
	RoleNone Role = iota
	RoleVillager
	RoleWerewolf
	RoleBigBadWolf
	RoleWhiteWolf
	RoleAlphaWolf
	RoleSeer
	RoleHealer
	RoleWitch
	RoleHunter
	RoleCupid
	RolePiper
	RoleThief
	RoleJester
	RoleOrphan
	RoleWildChild
	RoleWolfhound
	RoleBitterOldMan
	RoleStutteringJudge
	RolePureSoul
	RoleThreeBrothers
	RoleTwoSisters
	RoleHomeless
	RoleFox
	RoleKnight
	RoleBearTamer
	RoleLoyalMaid
	RoleScapegoat
	RoleVillageIdiot
	RoleAngel

	roleCount
)

// Descriptor is the immutable catalog entry of a role.
type Descriptor struct {
	ID   string
	Name string

	Werewolf   bool // belongs to the werewolf faction while held as current role
	Round1Only bool
	EvenOnly   bool
	WakesUp    bool // has a step in the night order
	FinalAct   bool // may act at the moment of its own death
}

var catalog = [roleCount]Descriptor{
	RoleNone:            {ID: "", Name: "None"},
	RoleVillager:        {ID: "villager", Name: "Villager"},
	RoleWerewolf:        {ID: "werewolf", Name: "Werewolf", Werewolf: true, WakesUp: true},
	RoleBigBadWolf:      {ID: "big_bad_wolf", Name: "Big Bad Wolf", Werewolf: true, EvenOnly: true, WakesUp: true},
	RoleWhiteWolf:       {ID: "white_wolf", Name: "White Wolf", Werewolf: true, EvenOnly: true, WakesUp: true},
	RoleAlphaWolf:       {ID: "alpha_wolf", Name: "Alpha Wolf", Werewolf: true, Round1Only: true, WakesUp: true},
	RoleSeer:            {ID: "seer", Name: "Seer", WakesUp: true},
	RoleHealer:          {ID: "healer", Name: "Healer", WakesUp: true},
	RoleWitch:           {ID: "witch", Name: "Witch", WakesUp: true},
	RoleHunter:          {ID: "hunter", Name: "Hunter", FinalAct: true},
	RoleCupid:           {ID: "cupid", Name: "Cupid", Round1Only: true, WakesUp: true},
	RolePiper:           {ID: "piper", Name: "Piper", WakesUp: true},
	RoleThief:           {ID: "thief", Name: "Thief", Round1Only: true, WakesUp: true},
	RoleJester:          {ID: "jester", Name: "Jester", WakesUp: true},
	RoleOrphan:          {ID: "orphan", Name: "Orphan", Round1Only: true, WakesUp: true},
	RoleWildChild:       {ID: "wild_child", Name: "Wild Child", Round1Only: true, WakesUp: true},
	RoleWolfhound:       {ID: "wolfhound", Name: "Wolfhound", Round1Only: true, WakesUp: true},
	RoleBitterOldMan:    {ID: "bitter_old_man", Name: "Bitter Old Man", Round1Only: true, WakesUp: true},
	RoleStutteringJudge: {ID: "stuttering_judge", Name: "Stuttering Judge", Round1Only: true, WakesUp: true},
	RolePureSoul:        {ID: "pure_soul", Name: "Pure Soul", Round1Only: true, WakesUp: true},
	RoleThreeBrothers:   {ID: "three_brothers", Name: "Three Brothers", Round1Only: true, WakesUp: true},
	RoleTwoSisters:      {ID: "two_sisters", Name: "Two Sisters", Round1Only: true, WakesUp: true},
	RoleHomeless:        {ID: "homeless", Name: "Homeless", WakesUp: true},
	RoleFox:             {ID: "fox", Name: "Fox", WakesUp: true},
	RoleKnight:          {ID: "knight", Name: "Knight"},
	RoleBearTamer:       {ID: "bear_tamer", Name: "Bear Tamer"},
	RoleLoyalMaid:       {ID: "loyal_maid", Name: "Loyal Maid"},
	RoleScapegoat:       {ID: "scapegoat", Name: "Scapegoat"},
	RoleVillageIdiot:    {ID: "village_idiot", Name: "Village Idiot"},
	RoleAngel:           {ID: "angel", Name: "Angel"},
}

// nightOrder is the "who opens their eyes when" order. Pure Soul is listed
// first but is emitted before the close-eyes bracket.
var nightOrder = []Role{
	RolePureSoul,
	RoleOrphan,
	RoleThief,
	RoleJester,
	RoleBitterOldMan,
	RoleCupid,
	RoleWolfhound,
	RoleThreeBrothers,
	RoleTwoSisters,
	RoleWildChild,
	RoleStutteringJudge,
	RoleSeer,
	RoleHealer,
	RoleWerewolf,
	RoleAlphaWolf,
	RoleBigBadWolf,
	RoleWhiteWolf,
	RoleWitch,
	RolePiper,
	RoleHomeless,
	RoleFox,
}

// PauseDuration is the advisory hold after bracketing and reveal steps.
const PauseDuration = 5 * time.Second

// pausedRoles get a PauseDuration hint on their step.
var pausedRoles = map[Role]bool{
	RolePureSoul:      true,
	RoleThreeBrothers: true,
	RoleTwoSisters:    true,
}

// Roles returns every playable role in catalog order.
func Roles() []Role {
	roles := make([]Role, 0, roleCount-1)
	for r := RoleVillager; r < roleCount; r++ {
		roles = append(roles, r)
	}
	return roles
}

// NightOrder returns a copy of the fixed night order.
func NightOrder() []Role {
	return append([]Role(nil), nightOrder...)
}

func (r Role) valid() bool { return r > RoleNone && r < roleCount }

// Descriptor returns the catalog entry. Unknown roles return the zero entry.
func (r Role) Descriptor() Descriptor {
	if r < 0 || r >= roleCount {
		return Descriptor{}
	}
	return catalog[r]
}

// IsWerewolf reports whether holding r as current role puts a player in the
// werewolf faction.
func (r Role) IsWerewolf() bool { return r.Descriptor().Werewolf }

func (r Role) String() string {
	if !r.valid() {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return catalog[r].ID
}

// ParseRole maps a wire id back to a Role.
func ParseRole(id string) (Role, error) {
	for r := RoleVillager; r < roleCount; r++ {
		if catalog[r].ID == id {
			return r, nil
		}
	}
	return RoleNone, fmt.Errorf("unknown role %q", id)
}

func (r Role) MarshalText() ([]byte, error) {
	if r == RoleNone {
		return []byte{}, nil
	}
	if !r.valid() {
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
	return []byte(catalog[r].ID), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = RoleNone
		return nil
	}
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
