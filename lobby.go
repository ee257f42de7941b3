package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"werewolves/internal/game"
)

var (
	ErrUnknownLobby = errors.New("unknown lobby")
	ErrForbidden    = errors.New("forbidden")
)

// LobbyView is what every member sees of a lobby.
type LobbyView struct {
	ID      int64              `json:"id"`
	AdminID int64              `json:"admin_id"`
	Open    bool               `json:"open"`
	Players []game.PlayerState `json:"players"`
	GameID  string             `json:"game_id,omitempty"`
}

// LobbyService gathers players into lobbies and starts their games. Every
// player sits in at most one lobby whose game is not finished.
type LobbyService struct {
	mu       sync.Mutex
	store    *Store
	hub      *Hub
	games    *GameService
	rules    Rules
	lobbies  map[int64]*game.Lobby
	byPlayer map[int64]int64
}

func newLobbyService(store *Store, hub *Hub, games *GameService, rules Rules) *LobbyService {
	ls := &LobbyService{
		store:    store,
		hub:      hub,
		games:    games,
		rules:    rules,
		lobbies:  make(map[int64]*game.Lobby),
		byPlayer: make(map[int64]int64),
	}
	games.release = ls.release
	games.finished = ls.freePlayers
	return ls
}

func (ls *LobbyService) lobby(id int64) (*game.Lobby, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	lobby, ok := ls.lobbies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLobby, id)
	}
	return lobby, nil
}

// Member reports whether playerID sits in lobby id.
func (ls *LobbyService) Member(id, playerID int64) bool {
	lobby, err := ls.lobby(id)
	if err != nil {
		return false
	}
	_, ok := lobby.Player(playerID)
	return ok
}

// Create opens a lobby with p as its admin.
func (ls *LobbyService) Create(p Player) (int64, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if current, ok := ls.byPlayer[p.ID]; ok {
		return 0, fmt.Errorf("%w: %s already sits in lobby %d", game.ErrPrecondition, p.Name, current)
	}
	id, err := ls.store.CreateLobby(p.ID)
	if err != nil {
		return 0, err
	}
	ls.lobbies[id] = game.NewLobby(id, game.NewPlayer(p.ID, p.Name))
	ls.byPlayer[p.ID] = id

	log.Printf("Lobby %d created by player %d (%s)", id, p.ID, p.Name)
	LogDBState(fmt.Sprintf("after lobby %d created", id))
	return id, nil
}

// Join seats p in lobby id.
func (ls *LobbyService) Join(id int64, p Player) error {
	lobby, err := ls.lobby(id)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	if current, ok := ls.byPlayer[p.ID]; ok {
		ls.mu.Unlock()
		return fmt.Errorf("%w: %s already sits in lobby %d", game.ErrPrecondition, p.Name, current)
	}
	if err := lobby.AddPlayer(game.NewPlayer(p.ID, p.Name)); err != nil {
		ls.mu.Unlock()
		return err
	}
	ls.byPlayer[p.ID] = id
	ls.mu.Unlock()

	if err := ls.store.AddLobbyPlayer(id, p.ID); err != nil {
		logError("LobbyService.Join: AddLobbyPlayer", err)
	}
	log.Printf("Player %d (%s) joined lobby %d", p.ID, p.Name, id)
	DebugLog("LobbyService.Join", "Lobby %d now has %d players", id, lobby.Size())
	ls.broadcast(id)
	return nil
}

// Leave unseats p from an open lobby. The admin cannot leave.
func (ls *LobbyService) Leave(id int64, p Player) error {
	lobby, err := ls.lobby(id)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	if !lobby.RemovePlayer(p.ID) {
		ls.mu.Unlock()
		return fmt.Errorf("%w: %s cannot leave lobby %d", game.ErrPrecondition, p.Name, id)
	}
	delete(ls.byPlayer, p.ID)
	ls.mu.Unlock()

	if err := ls.store.RemoveLobbyPlayer(id, p.ID); err != nil {
		logError("LobbyService.Leave: RemoveLobbyPlayer", err)
	}
	log.Printf("Player %d (%s) left lobby %d", p.ID, p.Name, id)
	ls.broadcast(id)
	return nil
}

// Start deals the roles and starts the game of lobby id. Only the admin may
// start, and only with MinSize..MaxSize players.
func (ls *LobbyService) Start(id int64, p Player) (*game.Game, error) {
	lobby, err := ls.lobby(id)
	if err != nil {
		return nil, err
	}
	if lobby.Admin().ID != p.ID {
		return nil, fmt.Errorf("%w: only the admin starts lobby %d", ErrForbidden, id)
	}

	// Joins hold ls.mu too, so the roster cannot change between the size
	// check and closing the lobby.
	ls.mu.Lock()
	if !lobby.Open() {
		ls.mu.Unlock()
		return nil, fmt.Errorf("%w: lobby %d already started", game.ErrPrecondition, id)
	}
	size := lobby.Size()
	if size < game.MinSize || size > game.MaxSize {
		ls.mu.Unlock()
		return nil, fmt.Errorf("%w: %d players is outside %d..%d", game.ErrPrecondition, size, game.MinSize, game.MaxSize)
	}
	g := game.New(lobby, ls.rules.GameOptions()...)
	if err := lobby.AssignRoles(ls.rules.Setup(size), g.Table()); err != nil {
		ls.mu.Unlock()
		return nil, err
	}
	lobby.Close()
	ls.mu.Unlock()

	if err := ls.store.MarkLobbyRunning(id, g.ID().String()); err != nil {
		logError("LobbyService.Start: MarkLobbyRunning", err)
	}
	log.Printf("Lobby %d: starting game %s with %d players", id, g.ID(), size)
	ls.broadcast(id)

	ls.games.Register(id, g)
	if err := g.Start(); err != nil {
		ls.games.Remove(id)
		return nil, err
	}
	return g, nil
}

// View returns the lobby as its members see it.
func (ls *LobbyService) View(id int64) (LobbyView, error) {
	lobby, err := ls.lobby(id)
	if err != nil {
		return LobbyView{}, err
	}
	view := LobbyView{
		ID:      id,
		AdminID: lobby.Admin().ID,
		Open:    lobby.Open(),
	}
	// Once a game runs, deaths happen under its lock.
	if g, ok := ls.games.Get(id); ok {
		s := g.Snapshot()
		view.GameID = s.ID
		view.Players = s.Players
		return view, nil
	}
	for _, p := range lobby.Players() {
		view.Players = append(view.Players, game.PlayerState{ID: p.ID, Name: p.Name, Alive: p.Alive()})
	}
	return view, nil
}

// freePlayers lets the players of a finished game open or join other lobbies.
func (ls *LobbyService) freePlayers(id int64) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for playerID, lobbyID := range ls.byPlayer {
		if lobbyID == id {
			delete(ls.byPlayer, playerID)
		}
	}
}

// release forgets a lobby once its game has been cleaned up.
func (ls *LobbyService) release(id int64) {
	ls.freePlayers(id)
	ls.mu.Lock()
	delete(ls.lobbies, id)
	ls.mu.Unlock()
	DebugLog("LobbyService.release", "Lobby %d released", id)
}

func (ls *LobbyService) broadcast(id int64) {
	view, err := ls.View(id)
	if err != nil {
		return
	}
	ls.hub.broadcastToLobby(id, MsgLobby, view)
}

// ============================================================================
// HTTP handlers
// ============================================================================

func (s *server) handleCreateLobby(w http.ResponseWriter, r *http.Request, player Player) {
	id, err := s.lobbies.Create(player)
	if err != nil {
		writeError(w, "handleCreateLobby", err)
		return
	}
	view, err := s.lobbies.View(id)
	if err != nil {
		writeError(w, "handleCreateLobby", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *server) handleGetLobby(w http.ResponseWriter, r *http.Request, player Player) {
	id, err := lobbyIDFrom(r)
	if err != nil {
		writeError(w, "handleGetLobby", err)
		return
	}
	view, err := s.lobbies.View(id)
	if err != nil {
		writeError(w, "handleGetLobby", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleJoinLobby(w http.ResponseWriter, r *http.Request, player Player) {
	id, err := lobbyIDFrom(r)
	if err != nil {
		writeError(w, "handleJoinLobby", err)
		return
	}
	if err := s.lobbies.Join(id, player); err != nil {
		writeError(w, "handleJoinLobby", err)
		return
	}
	view, _ := s.lobbies.View(id)
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleLeaveLobby(w http.ResponseWriter, r *http.Request, player Player) {
	id, err := lobbyIDFrom(r)
	if err != nil {
		writeError(w, "handleLeaveLobby", err)
		return
	}
	if err := s.lobbies.Leave(id, player); err != nil {
		writeError(w, "handleLeaveLobby", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleStartLobby(w http.ResponseWriter, r *http.Request, player Player) {
	id, err := lobbyIDFrom(r)
	if err != nil {
		writeError(w, "handleStartLobby", err)
		return
	}
	g, err := s.lobbies.Start(id, player)
	if err != nil {
		writeError(w, "handleStartLobby", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotFor(g, player.ID))
}
