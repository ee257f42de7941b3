package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"werewolves/internal/game"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type Player struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	SecretCode string `db:"secret_code"`
}

// LobbyRecord is the persisted lifecycle of a lobby. Status moves from
// 'open' over 'running' to 'finished'.
type LobbyRecord struct {
	ID        int64          `db:"id"`
	AdminID   int64          `db:"admin_id"`
	Status    string         `db:"status"`
	GameID    sql.NullString `db:"game_id"`
	CreatedAt time.Time      `db:"created_at"`
}

// Lobby statuses
const (
	LobbyOpen     = "open"
	LobbyRunning  = "running"
	LobbyFinished = "finished"
)

// GameAction is one executed command of an archived stage.
type GameAction struct {
	ID         int64  `db:"id" json:"id"`
	LobbyID    int64  `db:"lobby_id" json:"lobby_id"`
	GameID     string `db:"game_id" json:"game_id"`
	StageIndex int    `db:"stage_index" json:"stage_index"`
	StageType  string `db:"stage_type" json:"stage_type"`
	Kind       string `db:"kind" json:"kind"`
	Message    string `db:"message" json:"message"`
}

// ActionStory marks narration rows written by the storyteller.
const ActionStory = "Story"

// GameResult is the persisted outcome of a finished game.
type GameResult struct {
	GameID   string    `db:"game_id" json:"game_id"`
	LobbyID  int64     `db:"lobby_id" json:"lobby_id"`
	Fraction string    `db:"fraction" json:"fraction"`
	Members  string    `db:"members" json:"members"`
	Finished time.Time `db:"finished_at" json:"finished_at"`
}

// Store is the sqlite persistence of accounts, lobbies and game history.
type Store struct {
	db *sqlx.DB
}

// openStore connects to dsn and creates the schema.
func openStore(dsn string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dsn, err)
	}
	if strings.Contains(dsn, "memory") {
		// Shared-cache memory databases lock per table; one connection avoids SQLITE_LOCKED.
		db.SetMaxOpenConns(1)
	}
	store := &Store{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initDB() error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS player (
		name TEXT UNIQUE NOT NULL,
		secret_code TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS session (
		token INTEGER PRIMARY KEY,
		player_id INTEGER NOT NULL,
		FOREIGN KEY (player_id) REFERENCES player(rowid)
	);
	CREATE TABLE IF NOT EXISTS lobby (
		admin_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		game_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (admin_id) REFERENCES player(rowid)
	);
	CREATE TABLE IF NOT EXISTS lobby_player (
		lobby_id INTEGER NOT NULL,
		player_id INTEGER NOT NULL,
		FOREIGN KEY (lobby_id) REFERENCES lobby(rowid),
		FOREIGN KEY (player_id) REFERENCES player(rowid),
		UNIQUE(lobby_id, player_id)
	);
	CREATE TABLE IF NOT EXISTS game_action (
		lobby_id INTEGER NOT NULL,
		game_id TEXT NOT NULL,
		stage_index INTEGER NOT NULL,
		stage_type TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (lobby_id) REFERENCES lobby(rowid)
	);
	CREATE INDEX IF NOT EXISTS idx_game_action_lookup ON game_action(game_id, stage_index);
	CREATE TABLE IF NOT EXISTS game_result (
		game_id TEXT PRIMARY KEY,
		lobby_id INTEGER NOT NULL,
		fraction TEXT NOT NULL,
		members TEXT NOT NULL,
		finished_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (lobby_id) REFERENCES lobby(rowid)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		log.Printf("initDB error: %v", err)
		return err
	}
	log.Printf("Database initialized successfully")
	return nil
}

// ============================================================================
// Accounts
// ============================================================================

func (s *Store) CreatePlayer(name, secretCode string) (int64, error) {
	result, err := s.db.Exec("INSERT INTO player (name, secret_code) VALUES (?, ?)", name, secretCode)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) PlayerByName(name string) (Player, error) {
	var p Player
	err := s.db.Get(&p, "SELECT rowid as id, name, secret_code FROM player WHERE name = ?", name)
	return p, notFound(err)
}

func (s *Store) PlayerByID(id int64) (Player, error) {
	var p Player
	err := s.db.Get(&p, "SELECT rowid as id, name, secret_code FROM player WHERE rowid = ?", id)
	return p, notFound(err)
}

// PlayerName returns the player's name, or "" when unknown. Used for log lines.
func (s *Store) PlayerName(id int64) string {
	var name string
	s.db.Get(&name, "SELECT name FROM player WHERE rowid = ?", id)
	return name
}

func (s *Store) CreateSession(token, playerID int64) error {
	_, err := s.db.Exec("INSERT INTO session (token, player_id) VALUES (?, ?)", token, playerID)
	return err
}

func (s *Store) SessionPlayer(token int64) (int64, error) {
	var playerID int64
	err := s.db.Get(&playerID, "SELECT player_id FROM session WHERE token = ?", token)
	return playerID, notFound(err)
}

func (s *Store) DeleteSession(token int64) error {
	_, err := s.db.Exec("DELETE FROM session WHERE token = ?", token)
	return err
}

// ============================================================================
// Lobbies
// ============================================================================

func (s *Store) CreateLobby(adminID int64) (int64, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec("INSERT INTO lobby (admin_id, status) VALUES (?, ?)", adminID, LobbyOpen)
	if err != nil {
		return 0, err
	}
	lobbyID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec("INSERT INTO lobby_player (lobby_id, player_id) VALUES (?, ?)", lobbyID, adminID); err != nil {
		return 0, err
	}
	return lobbyID, tx.Commit()
}

func (s *Store) Lobby(id int64) (LobbyRecord, error) {
	var l LobbyRecord
	err := s.db.Get(&l, "SELECT rowid as id, admin_id, status, game_id, created_at FROM lobby WHERE rowid = ?", id)
	return l, notFound(err)
}

func (s *Store) AddLobbyPlayer(lobbyID, playerID int64) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO lobby_player (lobby_id, player_id) VALUES (?, ?)", lobbyID, playerID)
	return err
}

func (s *Store) RemoveLobbyPlayer(lobbyID, playerID int64) error {
	_, err := s.db.Exec("DELETE FROM lobby_player WHERE lobby_id = ? AND player_id = ?", lobbyID, playerID)
	return err
}

func (s *Store) LobbyPlayers(lobbyID int64) ([]Player, error) {
	var players []Player
	err := s.db.Select(&players, `
		SELECT p.rowid as id, p.name as name, p.secret_code as secret_code
		FROM lobby_player lp
			JOIN player p ON lp.player_id = p.rowid
		WHERE lp.lobby_id = ?
		ORDER BY lp.rowid`, lobbyID)
	return players, err
}

// MarkLobbyRunning records the game started in the lobby.
func (s *Store) MarkLobbyRunning(lobbyID int64, gameID string) error {
	_, err := s.db.Exec("UPDATE lobby SET status = ?, game_id = ? WHERE rowid = ?", LobbyRunning, gameID, lobbyID)
	return err
}

// ============================================================================
// Game history
// ============================================================================

// ArchiveStage stores the commands executed in one finished stage.
func (s *Store) ArchiveStage(lobbyID int64, gameID string, stageIndex int, stageType string, actions []game.Action) error {
	if len(actions) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range actions {
		_, err := tx.Exec(`
			INSERT INTO game_action (lobby_id, game_id, stage_index, stage_type, kind, message)
			VALUES (?, ?, ?, ?, ?, ?)`,
			lobbyID, gameID, stageIndex, stageType, a.Kind, a.Message)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddStory stores a narration for a stage.
func (s *Store) AddStory(lobbyID int64, gameID string, stageIndex int, stageType, text string) error {
	_, err := s.db.Exec(`
		INSERT INTO game_action (lobby_id, game_id, stage_index, stage_type, kind, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		lobbyID, gameID, stageIndex, stageType, ActionStory, text)
	return err
}

func (s *Store) ActionsForGame(gameID string) ([]GameAction, error) {
	var actions []GameAction
	err := s.db.Select(&actions, `
		SELECT rowid as id, lobby_id, game_id, stage_index, stage_type, kind, message
		FROM game_action
		WHERE game_id = ?
		ORDER BY rowid ASC`, gameID)
	return actions, err
}

// History returns the public history lines of a game, oldest first.
func (s *Store) History(gameID string) ([]string, error) {
	actions, err := s.ActionsForGame(gameID)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		if a.Message != "" {
			lines = append(lines, fmt.Sprintf("%s %d: %s", a.StageType, a.StageIndex, a.Message))
		}
	}
	return lines, nil
}

// SaveResult stores the winner of a game and marks its lobby finished.
func (s *Store) SaveResult(lobbyID int64, gameID string, winner game.WinnerState) error {
	names := make([]string, 0, len(winner.Members))
	for _, m := range winner.Members {
		names = append(names, m.Name)
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO game_result (game_id, lobby_id, fraction, members) VALUES (?, ?, ?, ?)`,
		gameID, lobbyID, winner.Fraction, strings.Join(names, ", ")); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE lobby SET status = ? WHERE rowid = ?", LobbyFinished, lobbyID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Result(gameID string) (GameResult, error) {
	var r GameResult
	err := s.db.Get(&r, "SELECT game_id, lobby_id, fraction, members, finished_at FROM game_result WHERE game_id = ?", gameID)
	return r, notFound(err)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
