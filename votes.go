package main

import (
	"errors"
	"net/http"
	"strconv"

	"werewolves/internal/game"
)

// statusFor maps service and engine errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownLobby), errors.Is(err, ErrNotFound), errors.Is(err, game.ErrNoActivePoll):
		return http.StatusNotFound
	case errors.Is(err, game.ErrInvalidVote), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, game.ErrPrecondition), errors.Is(err, game.ErrGameNotFinished), errors.Is(err, game.ErrGameNotStarted):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with an error toast. Unexpected errors are logged and
// not shown to the player.
func writeError(w http.ResponseWriter, context string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logError(context, err)
		writeToast(w, status, "error", "Something went wrong")
		return
	}
	writeToast(w, status, "error", err.Error())
}

func lobbyIDFrom(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, ErrUnknownLobby
	}
	return id, nil
}

// memberGame resolves the lobby's game for one of its members.
func (s *server) memberGame(r *http.Request, player Player) (int64, *game.Game, error) {
	lobbyID, err := lobbyIDFrom(r)
	if err != nil {
		return 0, nil, err
	}
	if !s.lobbies.Member(lobbyID, player.ID) {
		if _, err := s.lobbies.lobby(lobbyID); err != nil {
			return 0, nil, err
		}
		return 0, nil, ErrForbidden
	}
	g, err := s.games.Game(lobbyID)
	if err != nil {
		return 0, nil, game.ErrGameNotStarted
	}
	return lobbyID, g, nil
}

// pastMember checks that player sits in lobbyID, or sat in it when its game
// has already been cleaned up.
func (s *server) pastMember(lobbyID int64, player Player) error {
	if s.lobbies.Member(lobbyID, player.ID) {
		return nil
	}
	if _, err := s.lobbies.lobby(lobbyID); err == nil {
		return ErrForbidden
	}
	if _, err := s.store.Lobby(lobbyID); err != nil {
		return ErrUnknownLobby
	}
	members, err := s.store.LobbyPlayers(lobbyID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.ID == player.ID {
			return nil
		}
	}
	return ErrForbidden
}

func (s *server) handleGetGame(w http.ResponseWriter, r *http.Request, player Player) {
	_, g, err := s.memberGame(r, player)
	if err != nil {
		writeError(w, "handleGetGame", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotFor(g, player.ID))
}

func (s *server) handleGetRoles(w http.ResponseWriter, r *http.Request, player Player) {
	_, g, err := s.memberGame(r, player)
	if err != nil {
		writeError(w, "handleGetRoles", err)
		return
	}
	roles, err := g.PlayerRoles(player.ID)
	if err != nil {
		writeError(w, "handleGetRoles", err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (s *server) handleGetPoll(w http.ResponseWriter, r *http.Request, player Player) {
	_, g, err := s.memberGame(r, player)
	if err != nil {
		writeError(w, "handleGetPoll", err)
		return
	}
	poll, err := pollFor(g, player.ID)
	if err != nil {
		writeError(w, "handleGetPoll", err)
		return
	}
	writeJSON(w, http.StatusOK, poll)
}

// handleVote serves PUT (cast) and DELETE (remove) on a poll option.
func (s *server) handleVote(w http.ResponseWriter, r *http.Request, player Player) {
	lobbyID, _, err := s.memberGame(r, player)
	if err != nil {
		writeError(w, "handleVote", err)
		return
	}
	optionID, err := strconv.Atoi(r.PathValue("option"))
	if err != nil {
		writeToast(w, http.StatusBadRequest, "error", "option must be a number")
		return
	}

	if err := s.games.Vote(lobbyID, player.ID, optionID, r.Method == http.MethodPut); err != nil {
		writeError(w, "handleVote", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGetWinner(w http.ResponseWriter, r *http.Request, player Player) {
	lobbyID, err := lobbyIDFrom(r)
	if err != nil {
		writeError(w, "handleGetWinner", err)
		return
	}

	if _, g, err := s.memberGame(r, player); err == nil {
		if _, err := g.Winner(); err != nil {
			writeError(w, "handleGetWinner", err)
			return
		}
		writeJSON(w, http.StatusOK, g.Snapshot().Winner)
		return
	}

	// The game may already be cleaned up; the stored result outlives it.
	if err := s.pastMember(lobbyID, player); err != nil {
		writeError(w, "handleGetWinner", err)
		return
	}
	record, err := s.store.Lobby(lobbyID)
	if err != nil {
		writeError(w, "handleGetWinner", ErrUnknownLobby)
		return
	}
	if !record.GameID.Valid {
		writeError(w, "handleGetWinner", game.ErrGameNotFinished)
		return
	}
	result, err := s.store.Result(record.GameID.String)
	if errors.Is(err, ErrNotFound) {
		writeError(w, "handleGetWinner", game.ErrGameNotFinished)
		return
	}
	if err != nil {
		writeError(w, "handleGetWinner", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetHistory lists the archived actions and stories of the lobby's game.
func (s *server) handleGetHistory(w http.ResponseWriter, r *http.Request, player Player) {
	lobbyID, err := lobbyIDFrom(r)
	if err != nil {
		writeError(w, "handleGetHistory", err)
		return
	}
	if err := s.pastMember(lobbyID, player); err != nil {
		writeError(w, "handleGetHistory", err)
		return
	}
	record, err := s.store.Lobby(lobbyID)
	if err != nil {
		writeError(w, "handleGetHistory", ErrUnknownLobby)
		return
	}
	if !record.GameID.Valid {
		writeError(w, "handleGetHistory", game.ErrGameNotStarted)
		return
	}
	actions, err := s.store.ActionsForGame(record.GameID.String)
	if err != nil {
		writeError(w, "handleGetHistory", err)
		return
	}
	if actions == nil {
		actions = []GameAction{}
	}
	writeJSON(w, http.StatusOK, actions)
}
