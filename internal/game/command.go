package game

import "fmt"

// Command is the effect bound to a poll option. It runs once, when its option
// wins. Kind and String feed the action list shown after a stage.
type Command interface {
	Execute()
	Kind() string
	String() string
}

// StageFinishedCommand is a command with a completion step that runs when the
// stage that recorded it finishes.
type StageFinishedCommand interface {
	Command
	ExecuteAfterStageFinished()
}

// Command kinds.
const (
	KindKill      = "kill"
	KindNightKill = "night_kill"
	KindHeal      = "heal"
	KindPoison    = "poison"
	KindReveal    = "reveal"
	KindLovers    = "lovers"
	KindNone      = "none"
)

// KillCommand kills its target immediately.
type KillCommand struct {
	Target *Player
}

func NewKillCommand(target *Player) *KillCommand {
	return &KillCommand{Target: target}
}

func (c *KillCommand) Execute() {
	c.Target.Kill()
}

func (c *KillCommand) Kind() string { return KindKill }

func (c *KillCommand) String() string {
	return fmt.Sprintf("%s was killed", c.Target.Name)
}

// NightKillCommand marks its target when the poll resolves and kills it when
// the night is over, which leaves room for a heal in between.
type NightKillCommand struct {
	Target *Player

	marked bool
	done   bool
}

func NewNightKillCommand(target *Player) *NightKillCommand {
	return &NightKillCommand{Target: target}
}

func (c *NightKillCommand) Execute() {
	c.marked = true
}

// Pending reports whether the victim is chosen but not yet dead.
func (c *NightKillCommand) Pending() bool {
	return c.marked && !c.done
}

func (c *NightKillCommand) ExecuteAfterStageFinished() {
	if c.done {
		return
	}
	c.done = true
	c.Target.Kill()
}

func (c *NightKillCommand) Kind() string { return KindNightKill }

func (c *NightKillCommand) String() string {
	return fmt.Sprintf("%s was killed during the night", c.Target.Name)
}

// NoopCommand backs "do nothing" options.
type NoopCommand struct {
	Message string
}

func (c *NoopCommand) Execute() {}

func (c *NoopCommand) Kind() string { return KindNone }

func (c *NoopCommand) String() string {
	if c.Message == "" {
		return "Nothing happened"
	}
	return c.Message
}
