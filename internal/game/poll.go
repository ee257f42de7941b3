package game

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Participant is a player allowed to vote in a poll, together with the option
// they currently support.
type Participant struct {
	player   *Player
	selected *PollOption
}

func (p *Participant) Player() *Player {
	return p.player
}

// Selected returns the option the participant currently supports.
func (p *Participant) Selected() (*PollOption, bool) {
	return p.selected, p.selected != nil
}

// PollOption is one choice of a poll, bound to the command that runs if it wins.
type PollOption struct {
	id         int
	label      string
	player     *Player
	command    Command
	supporters []*Participant
}

// NewPollOption creates an option. player is the player the option is about
// and may be nil for options such as "do nothing".
func NewPollOption(label string, player *Player, command Command) *PollOption {
	return &PollOption{label: label, player: player, command: command}
}

// ID is the option's 1-based position in its poll.
func (o *PollOption) ID() int          { return o.id }
func (o *PollOption) Label() string    { return o.label }
func (o *PollOption) Player() *Player  { return o.player }
func (o *PollOption) Command() Command { return o.command }

func (o *PollOption) Supporters() []*Participant {
	return slices.Clone(o.supporters)
}

func (o *PollOption) SupporterCount() int {
	return len(o.supporters)
}

func (o *PollOption) addSupporter(p *Participant) {
	o.supporters = append(o.supporters, p)
}

func (o *PollOption) removeSupporter(p *Participant) {
	o.supporters = slices.DeleteFunc(o.supporters, func(s *Participant) bool { return s == p })
}

// Poll is a timed vote of participants over options. Finish resolves it once;
// afterwards votes are rejected.
type Poll struct {
	id              uuid.UUID
	question        string
	participants    []*Participant
	options         []*PollOption
	duration        time.Duration
	scheduledFinish time.Time
	decider         TiedPollDecider

	resolved bool
	winner   *PollOption

	resolveListeners []func(*Poll)
	finishListeners  []func(*Poll)
}

// NewPoll creates an unresolved poll. Voters become participants in the given
// order and options are numbered from 1 in the given order.
func NewPoll(question string, voters []*Player, options []*PollOption, duration time.Duration, decider TiedPollDecider) *Poll {
	p := &Poll{
		id:       uuid.New(),
		question: question,
		options:  options,
		duration: duration,
		decider:  decider,
	}
	for _, v := range voters {
		p.participants = append(p.participants, &Participant{player: v})
	}
	for i, o := range options {
		o.id = i + 1
	}
	return p
}

func (p *Poll) ID() uuid.UUID           { return p.id }
func (p *Poll) Question() string        { return p.question }
func (p *Poll) Duration() time.Duration { return p.duration }
func (p *Poll) Resolved() bool          { return p.resolved }

func (p *Poll) Participants() []*Participant {
	return slices.Clone(p.participants)
}

func (p *Poll) Options() []*PollOption {
	return slices.Clone(p.options)
}

// Participant looks up the participant wrapping the given player.
func (p *Poll) Participant(playerID int64) (*Participant, bool) {
	for _, pp := range p.participants {
		if pp.player.ID == playerID {
			return pp, true
		}
	}
	return nil, false
}

func (p *Poll) Option(id int) (*PollOption, bool) {
	for _, o := range p.options {
		if o.id == id {
			return o, true
		}
	}
	return nil, false
}

// CalculateScheduledFinish projects when the poll closes if it opens at now.
func (p *Poll) CalculateScheduledFinish(now time.Time) time.Time {
	return now.Add(p.duration)
}

func (p *Poll) ScheduledFinish() time.Time {
	return p.scheduledFinish
}

func (p *Poll) SetScheduledFinish(t time.Time) {
	p.scheduledFinish = t
}

// Winner returns the option chosen by Finish, if any.
func (p *Poll) Winner() (*PollOption, bool) {
	return p.winner, p.winner != nil
}

// CastVote moves the participant's support to option.
func (p *Poll) CastVote(participant *Participant, option *PollOption) error {
	if err := p.checkVote(participant); err != nil {
		return err
	}
	if !slices.Contains(p.options, option) {
		return fmt.Errorf("%w: option is not part of this poll", ErrInvalidVote)
	}

	if previous := participant.selected; previous != nil {
		previous.removeSupporter(participant)
	}
	option.addSupporter(participant)
	participant.selected = option
	return nil
}

// RemoveVote withdraws the participant's support from option.
func (p *Poll) RemoveVote(participant *Participant, option *PollOption) error {
	if err := p.checkVote(participant); err != nil {
		return err
	}
	if option == nil || participant.selected != option {
		return fmt.Errorf("%w: %s does not support this option", ErrInvalidVote, participant.player.Name)
	}

	option.removeSupporter(participant)
	participant.selected = nil
	return nil
}

func (p *Poll) checkVote(participant *Participant) error {
	if p.resolved {
		return fmt.Errorf("%w: poll is already finished", ErrInvalidVote)
	}
	if participant == nil || !slices.Contains(p.participants, participant) {
		return fmt.Errorf("%w: not a participant of this poll", ErrInvalidVote)
	}
	return nil
}

// Finish resolves the poll and runs the winning option's command. A single
// option with the most supporters wins outright; otherwise the tied poll
// decider chooses among the leaders. Resolve listeners see the winner before
// its command runs, finish listeners after. Finishing a resolved poll does
// nothing.
func (p *Poll) Finish() {
	if p.resolved {
		return
	}
	p.resolved = true
	p.winner = p.decide()

	for _, listener := range p.resolveListeners {
		listener(p)
	}
	if p.winner != nil && p.winner.command != nil {
		p.winner.command.Execute()
	}
	for _, listener := range p.finishListeners {
		listener(p)
	}
}

func (p *Poll) decide() *PollOption {
	leaders := leadingOptions(p.options)
	switch {
	case len(leaders) == 0:
		return nil
	case len(leaders) == 1:
		return leaders[0]
	case p.decider == nil:
		return nil
	default:
		return p.decider.Decide(leaders)
	}
}

func (p *Poll) onResolve(listener func(*Poll)) {
	p.resolveListeners = append(p.resolveListeners, listener)
}

func (p *Poll) onFinish(listener func(*Poll)) {
	p.finishListeners = append(p.finishListeners, listener)
}

// leadingOptions returns the options sharing the highest supporter count, in
// poll order.
func leadingOptions(options []*PollOption) []*PollOption {
	best := -1
	var leaders []*PollOption
	for _, o := range options {
		switch n := len(o.supporters); {
		case n > best:
			best = n
			leaders = []*PollOption{o}
		case n == best:
			leaders = append(leaders, o)
		}
	}
	return leaders
}
