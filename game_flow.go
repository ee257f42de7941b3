package main

import (
	"fmt"
	"log"
	"sync"

	"werewolves/internal/game"
)

// GameService keeps the running game of every started lobby and reacts to
// their progress: it times polls, archives stages, narrates deaths and pushes
// snapshots to the lobby's websocket clients.
type GameService struct {
	mu          sync.RWMutex
	store       *Store
	hub         *Hub
	scheduler   game.Scheduler
	storyteller Storyteller
	rules       Rules
	games       map[int64]*game.Game
	release     func(lobbyID int64)
	finished    func(lobbyID int64)
}

func newGameService(store *Store, hub *Hub, scheduler game.Scheduler, storyteller Storyteller, rules Rules) *GameService {
	return &GameService{
		store:       store,
		hub:         hub,
		scheduler:   scheduler,
		storyteller: storyteller,
		rules:       rules,
		games:       make(map[int64]*game.Game),
		release:     func(int64) {},
		finished:    func(int64) {},
	}
}

// Register starts observing g as the game of lobbyID.
func (gs *GameService) Register(lobbyID int64, g *game.Game) {
	gs.mu.Lock()
	gs.games[lobbyID] = g
	gs.mu.Unlock()
	g.AddObserver(&lobbyObserver{gs: gs, lobbyID: lobbyID, archived: -1})
}

func (gs *GameService) Get(lobbyID int64) (*game.Game, bool) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	g, ok := gs.games[lobbyID]
	return g, ok
}

// Game returns the game of lobbyID or ErrUnknownLobby.
func (gs *GameService) Game(lobbyID int64) (*game.Game, error) {
	g, ok := gs.Get(lobbyID)
	if !ok {
		return nil, fmt.Errorf("%w: no game in lobby %d", ErrUnknownLobby, lobbyID)
	}
	return g, nil
}

// Remove drops the game of lobbyID and releases the lobby.
func (gs *GameService) Remove(lobbyID int64) {
	gs.mu.Lock()
	_, ok := gs.games[lobbyID]
	delete(gs.games, lobbyID)
	gs.mu.Unlock()
	if ok {
		log.Printf("Lobby %d: game removed", lobbyID)
		gs.release(lobbyID)
	}
}

// Vote casts (or with cast false removes) playerID's vote and pushes the new
// poll state to the lobby.
func (gs *GameService) Vote(lobbyID, playerID int64, optionID int, cast bool) error {
	g, err := gs.Game(lobbyID)
	if err != nil {
		return err
	}
	if cast {
		err = g.CastVote(playerID, optionID)
	} else {
		err = g.RemoveVote(playerID, optionID)
	}
	if err != nil {
		DebugLog("GameService.Vote", "Lobby %d: vote of player %d for option %d rejected: %v", lobbyID, playerID, optionID, err)
		return err
	}
	DebugLog("GameService.Vote", "Lobby %d: player %d cast=%t option %d", lobbyID, playerID, cast, optionID)
	gs.pushPoll(lobbyID, g)
	return nil
}

// ============================================================================
// Views
// ============================================================================

// snapshotFor returns the game as playerID may see it.
func snapshotFor(g *game.Game, playerID int64) game.Snapshot {
	s := g.Snapshot()
	if s.Poll != nil && !g.Participates(playerID) {
		censored := censorPoll(*s.Poll)
		s.Poll = &censored
	}
	return s
}

// pollFor returns the current poll as playerID may see it.
func pollFor(g *game.Game, playerID int64) (game.PollState, error) {
	p, err := g.PollSnapshot()
	if err != nil {
		return game.PollState{}, err
	}
	if !g.Participates(playerID) {
		return censorPoll(p), nil
	}
	return p, nil
}

// censorPoll hides who votes and on what from non-participants.
func censorPoll(p game.PollState) game.PollState {
	return game.PollState{
		ID:              p.ID,
		Question:        p.Question,
		ScheduledFinish: p.ScheduledFinish,
		Resolved:        p.Resolved,
	}
}

func (gs *GameService) pushGame(lobbyID int64, g *game.Game) {
	gs.hub.sendToLobbyEach(lobbyID, MsgGame, func(playerID int64) any {
		return snapshotFor(g, playerID)
	})
}

func (gs *GameService) pushPoll(lobbyID int64, g *game.Game) {
	gs.hub.sendToLobbyEach(lobbyID, MsgPoll, func(playerID int64) any {
		p, err := pollFor(g, playerID)
		if err != nil {
			return nil
		}
		return p
	})
}

// ============================================================================
// Game observer
// ============================================================================

// lobbyObserver follows one game. Notifications may arrive from a poll timer
// and a request at the same time, so it serializes them.
type lobbyObserver struct {
	gs      *GameService
	lobbyID int64

	mu         sync.Mutex
	archived   int
	timedPolls map[string]bool
	cleanup    sync.Once
}

func (o *lobbyObserver) OnNewStage(g *game.Game) {
	// A stalled game archived its current stage without opening another.
	index := g.StageCount() - 2
	if g.Stalled() {
		index = g.StageCount() - 1
	}
	o.mu.Lock()
	o.archive(g, index, g.LastStagePollCommands())
	o.mu.Unlock()

	stageType, _ := g.CurrentStageType()
	DebugLog("lobbyObserver.OnNewStage", "Lobby %d: stage %d (%s)", o.lobbyID, g.StageCount()-1, stageType)
	o.gs.pushGame(o.lobbyID, g)

	if g.Stalled() {
		log.Printf("Lobby %d: game %s stalled, scheduling cleanup", o.lobbyID, g.ID())
		o.scheduleCleanup()
	}
}

func (o *lobbyObserver) OnNewPoll(g *game.Game) {
	poll, err := g.CurrentPoll()
	if err != nil {
		return
	}

	o.mu.Lock()
	if o.timedPolls == nil {
		o.timedPolls = make(map[string]bool)
	}
	id := poll.ID().String()
	already := o.timedPolls[id]
	o.timedPolls[id] = true
	o.mu.Unlock()
	if already {
		return
	}

	DebugLog("lobbyObserver.OnNewPoll", "Lobby %d: poll %q closes at %s", o.lobbyID, poll.Question(), poll.ScheduledFinish().Format("15:04:05"))
	o.gs.scheduler.Schedule(func() { g.FinishPoll(poll) }, poll.Duration())
	o.gs.pushPoll(o.lobbyID, g)
}

func (o *lobbyObserver) OnGameFinished(g *game.Game) {
	o.mu.Lock()
	commands, _ := g.CurrentStagePollCommands()
	o.archive(g, g.StageCount()-1, commands)
	o.mu.Unlock()

	s := g.Snapshot()
	if s.Winner != nil {
		if err := o.gs.store.SaveResult(o.lobbyID, s.ID, *s.Winner); err != nil {
			logError("lobbyObserver.OnGameFinished: SaveResult", err)
		}
		log.Printf("Lobby %d: game %s won by %s", o.lobbyID, s.ID, s.Winner.Fraction)
		LogDBState(fmt.Sprintf("after game %s finished", s.ID))
		o.gs.hub.broadcastToLobby(o.lobbyID, MsgFinished, s.Winner)
	}
	o.gs.pushGame(o.lobbyID, g)
	o.gs.finished(o.lobbyID)
	o.scheduleCleanup()
}

// archive stores the commands of stage index unless an earlier notification
// already did. Callers hold o.mu.
func (o *lobbyObserver) archive(g *game.Game, index int, commands []game.Command) {
	if index < 0 || index <= o.archived {
		return
	}
	o.archived = index
	actions := game.Actions(commands)
	stageType := stageName(index)
	if err := o.gs.store.ArchiveStage(o.lobbyID, g.ID().String(), index, stageType, actions); err != nil {
		logError("lobbyObserver.archive: ArchiveStage", err)
		return
	}
	if hasDeath(actions) {
		o.gs.maybeGenerateStory(o.lobbyID, g.ID().String(), index, stageType)
	}
}

func (o *lobbyObserver) scheduleCleanup() {
	o.cleanup.Do(func() {
		lobbyID := o.lobbyID
		o.gs.scheduler.Schedule(func() { o.gs.Remove(lobbyID) }, o.gs.rules.CleanupDelay)
	})
}

// stageName names the stage type of index without asking the game.
func stageName(index int) string {
	if index%2 == 0 {
		return game.Day.String()
	}
	return game.Night.String()
}

func hasDeath(actions []game.Action) bool {
	for _, a := range actions {
		switch a.Kind {
		case game.KindKill, game.KindNightKill, game.KindPoison:
			return true
		}
	}
	return false
}
