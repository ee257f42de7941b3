package game

import (
	"fmt"
	"time"
)

type PlayerState struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
}

// Action is a command as shown to the players.
type Action struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type OptionState struct {
	ID         int           `json:"id"`
	Label      string        `json:"label"`
	PlayerID   int64         `json:"player_id,omitempty"`
	Supporters []PlayerState `json:"supporters"`
}

type PollState struct {
	ID              string        `json:"id"`
	Question        string        `json:"question"`
	Participants    []PlayerState `json:"participants"`
	Options         []OptionState `json:"options"`
	ScheduledFinish time.Time     `json:"scheduled_finish"`
	Resolved        bool          `json:"resolved"`
}

type WinnerState struct {
	Fraction string        `json:"fraction"`
	Members  []PlayerState `json:"members"`
}

// Snapshot is a consistent copy of the public game state.
type Snapshot struct {
	ID          string        `json:"id"`
	Started     bool          `json:"started"`
	Finished    bool          `json:"finished"`
	Stalled     bool          `json:"stalled"`
	StageIndex  int           `json:"stage_index"`
	Stage       string        `json:"stage,omitempty"`
	PollCount   int           `json:"poll_count"`
	LastActions []Action      `json:"last_actions"`
	Players     []PlayerState `json:"players"`
	Poll        *PollState    `json:"poll,omitempty"`
	Winner      *WinnerState  `json:"winner,omitempty"`
}

// RoleState is what a player may know about one of their roles.
type RoleState struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Notes       []string `json:"notes,omitempty"`
}

func playerStates(players []*Player) []PlayerState {
	states := make([]PlayerState, 0, len(players))
	for _, p := range players {
		states = append(states, PlayerState{ID: p.ID, Name: p.Name, Alive: p.Alive()})
	}
	return states
}

// Actions converts commands for display.
func Actions(commands []Command) []Action {
	actions := make([]Action, 0, len(commands))
	for _, c := range commands {
		actions = append(actions, Action{Kind: c.Kind(), Message: c.String()})
	}
	return actions
}

func pollState(p *Poll) *PollState {
	state := &PollState{
		ID:              p.ID().String(),
		Question:        p.Question(),
		ScheduledFinish: p.ScheduledFinish(),
		Resolved:        p.Resolved(),
	}
	for _, pp := range p.Participants() {
		state.Participants = append(state.Participants, PlayerState{ID: pp.player.ID, Name: pp.player.Name, Alive: pp.player.Alive()})
	}
	for _, o := range p.Options() {
		option := OptionState{ID: o.ID(), Label: o.Label(), Supporters: []PlayerState{}}
		if o.player != nil {
			option.PlayerID = o.player.ID
		}
		for _, s := range o.supporters {
			option.Supporters = append(option.Supporters, PlayerState{ID: s.player.ID, Name: s.player.Name, Alive: s.player.Alive()})
		}
		state.Options = append(state.Options, option)
	}
	return state
}

func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		ID:          g.id.String(),
		Started:     g.started,
		Finished:    g.finished,
		Stalled:     g.stalled,
		StageIndex:  g.stageCount - 1,
		PollCount:   g.pollCount,
		LastActions: Actions(g.lastStageCommands),
		Players:     playerStates(g.roster.Players()),
	}
	if g.stage != nil {
		s.Stage = g.stage.Type().String()
	}
	if g.currentPoll != nil {
		s.Poll = pollState(g.currentPoll)
	}
	if g.finished {
		s.Winner = &WinnerState{
			Fraction: g.winner.Name(),
			Members:  playerStates(g.winner.Players()),
		}
	}
	return s
}

// PollSnapshot returns the current poll's state.
func (g *Game) PollSnapshot() (PollState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentPoll == nil {
		return PollState{}, ErrNoActivePoll
	}
	return *pollState(g.currentPoll), nil
}

// PlayerRoles lists the roles of a player together with the private notes
// those roles keep.
func (g *Game) PlayerRoles(playerID int64) ([]RoleState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var player *Player
	for _, p := range g.roster.Players() {
		if p.ID == playerID {
			player = p
			break
		}
	}
	if player == nil {
		return nil, fmt.Errorf("%w: player %d is not at this table", ErrPrecondition, playerID)
	}

	var states []RoleState
	for _, r := range g.roster.RolesOf(player) {
		state := RoleState{Name: r.Name(), Description: r.Description()}
		if n, ok := r.(Noter); ok {
			state.Notes = n.Notes()
		}
		states = append(states, state)
	}
	return states, nil
}

// Participates reports whether playerID may vote in the current poll.
func (g *Game) Participates(playerID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentPoll == nil {
		return false
	}
	_, ok := g.currentPoll.Participant(playerID)
	return ok
}
