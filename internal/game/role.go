package game

import (
	"cmp"
	"slices"
	"time"
)

// Capability tags the stages in which a role may open polls.
type Capability int

const (
	FirstDayVoter Capability = iota + 1
	FirstNightVoter
	DayVoter
	NightVoter
	// DoubleNightVoter refines NightVoter: the role gets a second poll right
	// after its first one on ordinary nights.
	DoubleNightVoter
)

func (c Capability) String() string {
	switch c {
	case FirstDayVoter:
		return "first-day voter"
	case FirstNightVoter:
		return "first-night voter"
	case DayVoter:
		return "day voter"
	case NightVoter:
		return "night voter"
	case DoubleNightVoter:
		return "double-night voter"
	default:
		return "unknown capability"
	}
}

// PollFunc produces the role's poll for the running stage, or nil when the
// role does not act.
type PollFunc func() *Poll

// Voters maps each capability a role holds to the function that opens its poll.
type Voters map[Capability]PollFunc

// Role is a capability bundle granted to a set of players.
type Role interface {
	Name() string
	Description() string
	// Precedence orders roles within a stage; lower acts first.
	Precedence() int
	Players() []*Player
	AddPlayer(p *Player)
	HasPlayer(p *Player) bool
	Voters() Voters
}

// Fraction is a role that can win the game.
type Fraction interface {
	Role
	HasWon(alive []*Player) bool
}

// Table is the view of the running game that roles act through. Its methods
// are only called from engine callbacks, which already hold the game's lock.
type Table interface {
	AlivePlayers() []*Player
	RolesOf(p *Player) []Role
	StageCommands() []Command
	AddStageCommand(c Command)
	RemoveStageCommand(c Command)
	Decider() TiedPollDecider
	PollDuration(role string) time.Duration
}

// HasCapability reports whether r holds capability c.
func HasCapability(r Role, c Capability) bool {
	_, ok := r.Voters()[c]
	return ok
}

// SortRoles orders roles by precedence, then name. The result does not depend
// on the input order.
func SortRoles(roles []Role) []Role {
	sorted := slices.Clone(roles)
	slices.SortStableFunc(sorted, func(a, b Role) int {
		if c := cmp.Compare(a.Precedence(), b.Precedence()); c != 0 {
			return c
		}
		return cmp.Compare(a.Name(), b.Name())
	})
	return sorted
}

// VotersOf builds a stage queue from every role holding capability c.
func VotersOf(roles []Role, c Capability) []PollFunc {
	var queue []PollFunc
	for _, r := range SortRoles(roles) {
		if fn, ok := r.Voters()[c]; ok {
			queue = append(queue, fn)
		}
	}
	return queue
}

// NightVotersOf builds an ordinary night queue. Double-night voters contribute
// their second poll right after their first.
func NightVotersOf(roles []Role) []PollFunc {
	var queue []PollFunc
	for _, r := range SortRoles(roles) {
		voters := r.Voters()
		first, ok := voters[NightVoter]
		if !ok {
			continue
		}
		queue = append(queue, first)
		if second, ok := voters[DoubleNightVoter]; ok {
			queue = append(queue, second)
		}
	}
	return queue
}

type baseRole struct {
	name        string
	description string
	precedence  int
	players     []*Player
}

func (r *baseRole) Name() string        { return r.name }
func (r *baseRole) Description() string { return r.description }
func (r *baseRole) Precedence() int     { return r.precedence }

func (r *baseRole) Players() []*Player {
	return slices.Clone(r.players)
}

func (r *baseRole) AddPlayer(p *Player) {
	if r.HasPlayer(p) {
		return
	}
	r.players = append(r.players, p)
}

func (r *baseRole) HasPlayer(p *Player) bool {
	return slices.Contains(r.players, p)
}

func (r *baseRole) alivePlayers() []*Player {
	return alivePlayers(r.players)
}

// allMembers reports whether every player in alive belongs to r.
func allMembers(r Role, alive []*Player) bool {
	for _, p := range alive {
		if !r.HasPlayer(p) {
			return false
		}
	}
	return true
}

func without(players []*Player, r Role) []*Player {
	var rest []*Player
	for _, p := range players {
		if !r.HasPlayer(p) {
			rest = append(rest, p)
		}
	}
	return rest
}
