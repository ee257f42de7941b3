package game

import "slices"

type StageType int

const (
	Day StageType = iota + 1
	Night
)

func (t StageType) String() string {
	switch t {
	case Day:
		return "Day"
	case Night:
		return "Night"
	default:
		return "Unknown"
	}
}

type StageState int

const (
	StageNotStarted StageState = iota
	StageRunning
	StageFinished
)

type stageObserver interface {
	onNewPoll(s *Stage, p *Poll)
	onStageFinished(s *Stage)
}

// Stage is one day or night. It runs its voters one at a time: a voter that
// opens a poll suspends the stage until that poll is finished.
type Stage struct {
	kind     StageType
	queue    []PollFunc
	state    StageState
	current  *Poll
	commands []Command
	opened   int
	observer stageObserver
}

func NewStage(kind StageType, queue []PollFunc) *Stage {
	return &Stage{kind: kind, queue: queue}
}

func (s *Stage) Type() StageType   { return s.kind }
func (s *Stage) State() StageState { return s.state }

// CurrentPoll returns the poll the stage is waiting on.
func (s *Stage) CurrentPoll() (*Poll, bool) {
	return s.current, s.current != nil
}

// PollsOpened counts the polls this stage has opened so far.
func (s *Stage) PollsOpened() int {
	return s.opened
}

// PollCommands returns the commands recorded during this stage, in order.
func (s *Stage) PollCommands() []Command {
	return slices.Clone(s.commands)
}

func (s *Stage) AddPollCommand(c Command) {
	s.commands = append(s.commands, c)
}

func (s *Stage) RemovePollCommand(c Command) {
	s.commands = slices.DeleteFunc(s.commands, func(existing Command) bool { return existing == c })
}

// Start runs voters until one opens a poll or the queue is exhausted.
func (s *Stage) Start() {
	if s.state != StageNotStarted {
		return
	}
	s.state = StageRunning
	s.pull()
}

func (s *Stage) pull() {
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]

		poll := next()
		if poll == nil {
			continue
		}
		s.current = poll
		s.opened++
		poll.onResolve(s.onPollResolved)
		poll.onFinish(s.onPollFinished)
		if s.observer != nil {
			s.observer.onNewPoll(s, poll)
		}
		return
	}

	s.queue = nil
	s.current = nil
	s.state = StageFinished
	if s.observer != nil {
		s.observer.onStageFinished(s)
	}
}

// onPollResolved records the winning command before it runs, so effects it
// triggers are recorded after it.
func (s *Stage) onPollResolved(p *Poll) {
	if p != s.current || s.state != StageRunning {
		return
	}
	if winner, ok := p.Winner(); ok && winner.Command() != nil {
		s.commands = append(s.commands, winner.Command())
	}
}

func (s *Stage) onPollFinished(p *Poll) {
	if p != s.current || s.state != StageRunning {
		return
	}
	s.current = nil
	s.pull()
}
