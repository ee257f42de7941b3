package game

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPollDuration applies to roles without a configured duration.
const DefaultPollDuration = 60 * time.Second

// GameObserver is notified after the game changes. Notifications are delivered
// once the game's lock is released, in the order they were raised, so
// observers may call back into the game.
type GameObserver interface {
	OnNewStage(g *Game)
	OnNewPoll(g *Game)
	OnGameFinished(g *Game)
}

type GameOption func(*Game)

// WithDecider sets the tie-break policy handed to every poll.
func WithDecider(d TiedPollDecider) GameOption {
	return func(g *Game) {
		g.decider = d
	}
}

// WithPollDurations sets the voting time per role name, falling back to
// fallback for roles not in perRole.
func WithPollDurations(fallback time.Duration, perRole map[string]time.Duration) GameOption {
	return func(g *Game) {
		g.defaultDuration = fallback
		g.durations = perRole
	}
}

func WithClock(now func() time.Time) GameOption {
	return func(g *Game) {
		g.now = now
	}
}

// Game drives the stages of one table until a fraction wins. All methods are
// safe for concurrent use: foreground calls and poll timers are serialized on
// the game's lock.
type Game struct {
	mu sync.Mutex

	id     uuid.UUID
	roster Roster

	stage       *Stage
	stageCount  int
	pollCount   int
	currentPoll *Poll
	started     bool
	stageDone   bool
	idleStages  int
	stalled     bool
	finished    bool
	winner      Fraction

	lastStageCommands []Command
	observers         []GameObserver
	pending           []func(GameObserver)

	decider         TiedPollDecider
	defaultDuration time.Duration
	durations       map[string]time.Duration
	now             func() time.Time
}

func New(roster Roster, opts ...GameOption) *Game {
	g := &Game{
		id:              uuid.New(),
		roster:          roster,
		decider:         RandomDecider{},
		defaultDuration: DefaultPollDuration,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Game) ID() uuid.UUID   { return g.id }
func (g *Game) Roster() Roster { return g.roster }

func (g *Game) AddObserver(o GameObserver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, o)
}

// Table returns the view roles act through.
func (g *Game) Table() Table {
	return gameTable{g: g}
}

// Start opens the first day. The roster must be within MinSize..MaxSize and
// have its roles assigned.
func (g *Game) Start() error {
	g.mu.Lock()
	defer g.unlock()

	if g.started {
		return fmt.Errorf("%w: game %s already started", ErrPrecondition, g.id)
	}
	if n := g.roster.Size(); n < MinSize || n > MaxSize {
		return fmt.Errorf("%w: %d players is outside %d..%d", ErrPrecondition, n, MinSize, MaxSize)
	}
	if len(g.roster.Roles()) == 0 {
		return fmt.Errorf("%w: roles are not assigned", ErrPrecondition)
	}

	logger.Printf("Game %s: starting with %d players", g.id, g.roster.Size())
	g.started = true
	g.startNextStage()
	g.settle()
	return nil
}

func (g *Game) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

func (g *Game) Finished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.finished
}

// Stalled reports whether a full day and night passed without any poll or
// command. Such a game can never progress and stops advancing.
func (g *Game) Stalled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stalled
}

// StageCount is the number of stages started so far.
func (g *Game) StageCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stageCount
}

func (g *Game) PollCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pollCount
}

func (g *Game) CurrentStageType() (StageType, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stage == nil {
		return 0, ErrGameNotStarted
	}
	return g.stage.Type(), nil
}

// CurrentPoll returns the poll waiting for votes.
func (g *Game) CurrentPoll() (*Poll, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentPoll == nil {
		return nil, ErrNoActivePoll
	}
	return g.currentPoll, nil
}

func (g *Game) Winner() (Fraction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.finished {
		return nil, ErrGameNotFinished
	}
	return g.winner, nil
}

// LastStagePollCommands returns what happened in the last stage that ended
// without a winner.
func (g *Game) LastStagePollCommands() []Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.lastStageCommands)
}

func (g *Game) CurrentStagePollCommands() ([]Command, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stage == nil {
		return nil, ErrGameNotStarted
	}
	return g.stage.PollCommands(), nil
}

func (g *Game) AddPollCommandToCurrentStage(c Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stage == nil {
		return ErrGameNotStarted
	}
	g.stage.AddPollCommand(c)
	return nil
}

func (g *Game) RemovePollCommandFromCurrentStage(c Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stage == nil {
		return ErrGameNotStarted
	}
	g.stage.RemovePollCommand(c)
	return nil
}

// CastVote records playerID's vote for option optionID of the current poll.
func (g *Game) CastVote(playerID int64, optionID int) error {
	g.mu.Lock()
	defer g.unlock()

	participant, option, err := g.lookupVote(playerID, optionID)
	if err != nil {
		return err
	}
	return g.currentPoll.CastVote(participant, option)
}

// RemoveVote withdraws playerID's vote for option optionID of the current poll.
func (g *Game) RemoveVote(playerID int64, optionID int) error {
	g.mu.Lock()
	defer g.unlock()

	participant, option, err := g.lookupVote(playerID, optionID)
	if err != nil {
		return err
	}
	return g.currentPoll.RemoveVote(participant, option)
}

func (g *Game) lookupVote(playerID int64, optionID int) (*Participant, *PollOption, error) {
	if g.currentPoll == nil {
		return nil, nil, ErrNoActivePoll
	}
	participant, ok := g.currentPoll.Participant(playerID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: player %d is not a participant", ErrInvalidVote, playerID)
	}
	option, ok := g.currentPoll.Option(optionID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown option %d", ErrInvalidVote, optionID)
	}
	return participant, option, nil
}

// FinishPoll resolves p if it is still the current poll and lets the stage
// continue. Late or repeated calls are ignored, so it is safe as a timer
// callback.
func (g *Game) FinishPoll(p *Poll) {
	g.mu.Lock()
	defer g.unlock()

	if p == nil || g.currentPoll != p {
		return
	}
	p.Finish()
	if g.currentPoll == p {
		g.currentPoll = nil
	}
	g.settle()
}

// StageFor builds the stage with the given index: the first day and night use
// their dedicated voters, afterwards even indexes are days and odd ones nights.
func StageFor(index int, roles []Role) *Stage {
	switch {
	case index == 0:
		return NewStage(Day, VotersOf(roles, FirstDayVoter))
	case index == 1:
		return NewStage(Night, VotersOf(roles, FirstNightVoter))
	case index%2 == 0:
		return NewStage(Day, VotersOf(roles, DayVoter))
	default:
		return NewStage(Night, NightVotersOf(roles))
	}
}

func (g *Game) startNextStage() {
	stage := StageFor(g.stageCount, g.roster.Roles())
	stage.observer = g
	g.stageCount++
	g.stage = stage

	logger.Printf("Game %s: stage %d (%s) starts with %d voters", g.id, g.stageCount-1, stage.Type(), len(stage.queue))
	stage.Start()
	g.notify(func(o GameObserver) { o.OnNewStage(g) })
}

func (g *Game) onNewPoll(s *Stage, p *Poll) {
	if s != g.stage {
		return
	}
	g.pollCount++
	p.SetScheduledFinish(p.CalculateScheduledFinish(g.now()))
	g.currentPoll = p
	g.notify(func(o GameObserver) { o.OnNewPoll(g) })
}

func (g *Game) onStageFinished(s *Stage) {
	if s == g.stage {
		g.stageDone = true
	}
}

// settle advances through finished stages. Stages that open no poll finish
// right away, so this loops instead of recursing.
func (g *Game) settle() {
	for g.stageDone && !g.finished && !g.stalled {
		g.stageDone = false
		if g.closeStage() {
			return
		}
		g.startNextStage()
	}
}

// closeStage completes deferred commands, checks the fractions in registration
// order and archives the stage. It reports whether the game stopped.
func (g *Game) closeStage() bool {
	stage := g.stage
	for _, c := range stage.PollCommands() {
		if sf, ok := c.(StageFinishedCommand); ok {
			sf.ExecuteAfterStageFinished()
		}
	}

	alive := g.roster.AlivePlayers()
	for _, f := range g.roster.Fractions() {
		if f.HasWon(alive) {
			g.finish(f)
			return true
		}
	}

	g.lastStageCommands = stage.PollCommands()

	regular := g.stageCount > 2
	if regular && stage.PollsOpened() == 0 && len(g.lastStageCommands) == 0 {
		g.idleStages++
	} else {
		g.idleStages = 0
	}
	if g.idleStages >= 2 {
		g.stalled = true
		logger.Printf("Game %s: stalled after stage %d, no role can act", g.id, g.stageCount-1)
		return true
	}
	return false
}

func (g *Game) finish(winner Fraction) {
	g.winner = winner
	g.finished = true
	g.currentPoll = nil
	logger.Printf("Game %s finished after %d stages, winner: %s", g.id, g.stageCount, winner.Name())
	g.notify(func(o GameObserver) { o.OnGameFinished(g) })
}

func (g *Game) notify(fn func(GameObserver)) {
	g.pending = append(g.pending, fn)
}

// unlock releases the lock and then delivers queued notifications.
func (g *Game) unlock() {
	pending := g.pending
	g.pending = nil
	observers := slices.Clone(g.observers)
	g.mu.Unlock()

	for _, fn := range pending {
		for _, o := range observers {
			fn(o)
		}
	}
}

// gameTable exposes the game to roles without locking; roles only run inside
// engine callbacks.
type gameTable struct {
	g *Game
}

func (t gameTable) AlivePlayers() []*Player {
	return t.g.roster.AlivePlayers()
}

func (t gameTable) RolesOf(p *Player) []Role {
	return t.g.roster.RolesOf(p)
}

func (t gameTable) StageCommands() []Command {
	if t.g.stage == nil {
		return nil
	}
	return t.g.stage.PollCommands()
}

func (t gameTable) AddStageCommand(c Command) {
	if t.g.stage != nil {
		t.g.stage.AddPollCommand(c)
	}
}

func (t gameTable) RemoveStageCommand(c Command) {
	if t.g.stage != nil {
		t.g.stage.RemovePollCommand(c)
	}
}

func (t gameTable) Decider() TiedPollDecider {
	return t.g.decider
}

func (t gameTable) PollDuration(role string) time.Duration {
	if d, ok := t.g.durations[role]; ok && d > 0 {
		return d
	}
	return t.g.defaultDuration
}
