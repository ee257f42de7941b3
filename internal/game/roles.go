package game

import (
	"fmt"
	"strings"
)

// Role names.
const (
	RoleVillager = "Villager"
	RoleWerewolf = "Werewolf"
	RoleSeer     = "Seer"
	RoleWitch    = "Witch"
	RoleCupid    = "Cupid"
	RoleLover    = "Lover"
)

// Noter is implemented by roles that keep private information for their players.
type Noter interface {
	Notes() []string
}

func playerOptions(targets []*Player, command func(*Player) Command) []*PollOption {
	options := make([]*PollOption, 0, len(targets))
	for _, t := range targets {
		options = append(options, NewPollOption(t.Name, t, command(t)))
	}
	return options
}

func names(players []*Player) string {
	parts := make([]string, 0, len(players))
	for _, p := range players {
		parts = append(parts, p.Name)
	}
	return strings.Join(parts, ", ")
}

// ============================================================================
// Villager
// ============================================================================

// Villager holds the daily hanging vote. Everyone who is not a werewolf is a
// villager, and the villagers win once nobody else is alive.
type Villager struct {
	baseRole
	table Table
}

func NewVillager(table Table) *Villager {
	return &Villager{
		baseRole: baseRole{
			name:        RoleVillager,
			description: "Hunts the werewolves by day. Wins when only villagers are left alive.",
			precedence:  50,
		},
		table: table,
	}
}

func (v *Villager) Voters() Voters {
	return Voters{DayVoter: v.createDayPoll}
}

func (v *Villager) createDayPoll() *Poll {
	alive := v.table.AlivePlayers()
	if len(alive) < 2 {
		return nil
	}
	options := playerOptions(alive, func(p *Player) Command { return NewKillCommand(p) })
	return NewPoll("Who should be hanged today?", alive, options, v.table.PollDuration(v.name), v.table.Decider())
}

func (v *Villager) HasWon(alive []*Player) bool {
	return allMembers(v, alive)
}

// ============================================================================
// Werewolf
// ============================================================================

// Werewolf picks a victim every night, including the first.
type Werewolf struct {
	baseRole
	table Table
}

func NewWerewolf(table Table) *Werewolf {
	return &Werewolf{
		baseRole: baseRole{
			name:        RoleWerewolf,
			description: "Knows the other werewolves and devours one villager every night.",
			precedence:  30,
		},
		table: table,
	}
}

func (w *Werewolf) Voters() Voters {
	return Voters{
		FirstNightVoter: w.createNightPoll,
		NightVoter:      w.createNightPoll,
	}
}

func (w *Werewolf) createNightPoll() *Poll {
	pack := w.alivePlayers()
	victims := without(w.table.AlivePlayers(), w)
	if len(pack) == 0 || len(victims) == 0 {
		return nil
	}
	options := playerOptions(victims, func(p *Player) Command { return NewNightKillCommand(p) })
	return NewPoll("Who should the werewolves devour tonight?", pack, options, w.table.PollDuration(w.name), w.table.Decider())
}

// HasWon reports whether the werewolves are at least as many as everyone else.
func (w *Werewolf) HasWon(alive []*Player) bool {
	wolves := 0
	for _, p := range alive {
		if w.HasPlayer(p) {
			wolves++
		}
	}
	return wolves > 0 && wolves >= len(alive)-wolves
}

func (w *Werewolf) Notes() []string {
	return []string{"Your pack: " + names(w.players)}
}

// ============================================================================
// Seer
// ============================================================================

// Vision is what a seer learned about a player.
type Vision struct {
	Target *Player
	Roles  []string
}

// Seer looks into one player's roles every night.
type Seer struct {
	baseRole
	table   Table
	visions []Vision
}

func NewSeer(table Table) *Seer {
	return &Seer{
		baseRole: baseRole{
			name:        RoleSeer,
			description: "Learns the roles of one player every night.",
			precedence:  20,
		},
		table: table,
	}
}

func (s *Seer) Voters() Voters {
	return Voters{
		FirstNightVoter: s.createNightPoll,
		NightVoter:      s.createNightPoll,
	}
}

func (s *Seer) createNightPoll() *Poll {
	seers := s.alivePlayers()
	targets := without(s.table.AlivePlayers(), s)
	if len(seers) == 0 || len(targets) == 0 {
		return nil
	}
	options := playerOptions(targets, func(p *Player) Command { return &RevealCommand{seer: s, Target: p} })
	return NewPoll("Whose secret should the seer uncover?", seers, options, s.table.PollDuration(s.name), s.table.Decider())
}

func (s *Seer) Visions() []Vision {
	return append([]Vision(nil), s.visions...)
}

func (s *Seer) Notes() []string {
	notes := make([]string, 0, len(s.visions))
	for _, v := range s.visions {
		notes = append(notes, fmt.Sprintf("%s is %s", v.Target.Name, strings.Join(v.Roles, ", ")))
	}
	return notes
}

// RevealCommand records a vision for the seer. Its public message does not
// name the target.
type RevealCommand struct {
	Target *Player
	seer   *Seer
}

func (c *RevealCommand) Execute() {
	var roles []string
	for _, r := range c.seer.table.RolesOf(c.Target) {
		roles = append(roles, r.Name())
	}
	c.seer.visions = append(c.seer.visions, Vision{Target: c.Target, Roles: roles})
}

func (c *RevealCommand) Kind() string   { return KindReveal }
func (c *RevealCommand) String() string { return "The seer had a vision" }

// ============================================================================
// Witch
// ============================================================================

// Witch owns one healing and one poison potion. On ordinary nights she gets two
// polls: heal one of tonight's victims, then poison anyone.
type Witch struct {
	baseRole
	table      Table
	healUsed   bool
	poisonUsed bool
}

func NewWitch(table Table) *Witch {
	return &Witch{
		baseRole: baseRole{
			name:        RoleWitch,
			description: "Has one potion to save tonight's victim and one potion to kill.",
			precedence:  40,
		},
		table: table,
	}
}

func (w *Witch) Voters() Voters {
	return Voters{
		NightVoter:       w.createHealPoll,
		DoubleNightVoter: w.createPoisonPoll,
	}
}

func (w *Witch) createHealPoll() *Poll {
	witches := w.alivePlayers()
	if w.healUsed || len(witches) == 0 {
		return nil
	}
	var options []*PollOption
	for _, c := range w.table.StageCommands() {
		kill, ok := c.(*NightKillCommand)
		if !ok || !kill.Pending() {
			continue
		}
		options = append(options, NewPollOption("Save "+kill.Target.Name, kill.Target, &HealCommand{witch: w, Kill: kill}))
	}
	if len(options) == 0 {
		return nil
	}
	pass := NewPollOption("Do nothing", nil, &NoopCommand{})
	options = append(options, pass)
	return NewPoll("Should the witch use her healing potion?", witches, options, w.table.PollDuration(w.name), preferOption(pass, w.table.Decider()))
}

func (w *Witch) createPoisonPoll() *Poll {
	witches := w.alivePlayers()
	targets := without(w.table.AlivePlayers(), w)
	if w.poisonUsed || len(witches) == 0 || len(targets) == 0 {
		return nil
	}
	options := playerOptions(targets, func(p *Player) Command { return &PoisonCommand{witch: w, Target: p} })
	pass := NewPollOption("Do nothing", nil, &NoopCommand{})
	options = append(options, pass)
	return NewPoll("Should the witch use her poison?", witches, options, w.table.PollDuration(w.name), preferOption(pass, w.table.Decider()))
}

// HealCommand cancels a pending night kill by taking it off the stage.
type HealCommand struct {
	Kill  *NightKillCommand
	witch *Witch
}

func (c *HealCommand) Execute() {
	c.witch.healUsed = true
	c.witch.table.RemoveStageCommand(c.Kill)
}

func (c *HealCommand) Kind() string { return KindHeal }

func (c *HealCommand) String() string {
	return fmt.Sprintf("%s was saved by a potion", c.Kill.Target.Name)
}

type PoisonCommand struct {
	Target *Player
	witch  *Witch
}

func (c *PoisonCommand) Execute() {
	c.witch.poisonUsed = true
	c.Target.Kill()
}

func (c *PoisonCommand) Kind() string { return KindPoison }

func (c *PoisonCommand) String() string {
	return fmt.Sprintf("%s was poisoned", c.Target.Name)
}

// ============================================================================
// Cupid
// ============================================================================

// Cupid binds two players together as lovers on the first night.
type Cupid struct {
	baseRole
	table Table
	lover *Lover
}

func NewCupid(table Table, lover *Lover) *Cupid {
	return &Cupid{
		baseRole: baseRole{
			name:        RoleCupid,
			description: "Chooses two lovers on the first night.",
			precedence:  10,
		},
		table: table,
		lover: lover,
	}
}

func (c *Cupid) Voters() Voters {
	return Voters{FirstNightVoter: c.createLoversPoll}
}

func (c *Cupid) createLoversPoll() *Poll {
	cupids := c.alivePlayers()
	alive := c.table.AlivePlayers()
	if c.lover == nil || len(cupids) == 0 || len(alive) < 2 {
		return nil
	}
	var options []*PollOption
	for i, a := range alive {
		for _, b := range alive[i+1:] {
			cmd := &LoversCommand{lover: c.lover, First: a, Second: b}
			options = append(options, NewPollOption(a.Name+" & "+b.Name, nil, cmd))
		}
	}
	return NewPoll("Which two players should fall in love?", cupids, options, c.table.PollDuration(c.name), c.table.Decider())
}

type LoversCommand struct {
	First, Second *Player
	lover         *Lover
}

func (c *LoversCommand) Execute() {
	c.lover.AddPlayer(c.First)
	c.lover.AddPlayer(c.Second)
}

func (c *LoversCommand) Kind() string   { return KindLovers }
func (c *LoversCommand) String() string { return "Cupid's arrow has struck two hearts" }

// ============================================================================
// Lover
// ============================================================================

type loverState int

const (
	loverArmed loverState = iota
	loverTriggered
)

// Lover groups the players bound by Cupid. When the first lover dies the rest
// die of heartbreak; that chain kill happens once per game. The lovers win once
// nobody else is alive.
type Lover struct {
	baseRole
	table Table
	state loverState
}

func NewLover(table Table) *Lover {
	return &Lover{
		baseRole: baseRole{
			name:        RoleLover,
			description: "Bound to another player by Cupid. Lovers live and die together.",
			precedence:  60,
		},
		table: table,
	}
}

func (l *Lover) Voters() Voters {
	return nil
}

func (l *Lover) AddPlayer(p *Player) {
	if l.HasPlayer(p) {
		return
	}
	p.AddObserver(l)
	l.baseRole.AddPlayer(p)
}

func (l *Lover) HasWon(alive []*Player) bool {
	return allMembers(l, alive)
}

// Triggered reports whether the heartbreak already happened.
func (l *Lover) Triggered() bool {
	return l.state == loverTriggered
}

func (l *Lover) OnPlayerKilled() {
	if l.state == loverTriggered {
		return
	}
	l.state = loverTriggered
	l.killLovers()
}

// killLovers kills the surviving lovers directly and records the kills on the
// running stage, without a poll.
func (l *Lover) killLovers() {
	for _, p := range l.alivePlayers() {
		cmd := NewKillCommand(p)
		cmd.Execute()
		l.table.AddStageCommand(cmd)
		logger.Printf("Lover %s died of heartbreak", p.Name)
	}
}

func (l *Lover) Notes() []string {
	return []string{"Lovers: " + names(l.players)}
}
