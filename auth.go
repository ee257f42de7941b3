package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"
)

const sessionCookieName = "werewolf_session"

var errNotLoggedIn = errors.New("not logged in")

func generateSecretCode() (string, error) {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func (s *server) setSessionCookie(w http.ResponseWriter, playerID int64) error {
	tokenBig, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return err
	}
	token := tokenBig.Int64()

	if err := s.store.CreateSession(token, playerID); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    strconv.FormatInt(token, 10),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *server) getPlayerIdFromSession(r *http.Request) (int64, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return -1, errNotLoggedIn
	}

	token, err := strconv.ParseInt(cookie.Value, 10, 64)
	if err != nil {
		return -1, errNotLoggedIn
	}

	playerID, err := s.store.SessionPlayer(token)
	if errors.Is(err, ErrNotFound) {
		return -1, errNotLoggedIn
	}
	if err != nil {
		return -1, err
	}
	return playerID, nil
}

// PlayerView is the public account data returned after signup and login.
type PlayerView struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	SecretCode string `json:"secret_code,omitempty"`
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeToast(w, http.StatusBadRequest, "error", "Name is required")
		return
	}

	_, err := s.store.PlayerByName(name)
	if err == nil {
		writeToast(w, http.StatusConflict, "error", "Name already taken. Use login with secret code if this is you.")
		return
	}
	if !errors.Is(err, ErrNotFound) {
		logError("handleSignup: PlayerByName", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	secretCode, err := generateSecretCode()
	if err != nil {
		logError("handleSignup: generateSecretCode", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	playerID, err := s.store.CreatePlayer(name, secretCode)
	if err != nil {
		logError("handleSignup: CreatePlayer", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	log.Printf("New player created: name='%s', id=%d", name, playerID)
	DebugLog("handleSignup", "Player '%s' signed up with ID %d", name, playerID)
	LogDBState("after signup: " + name)

	if err := s.setSessionCookie(w, playerID); err != nil {
		logError("handleSignup: setSessionCookie", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusCreated, PlayerView{ID: playerID, Name: name, SecretCode: secretCode})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	secretCode := r.FormValue("secret_code")

	if name == "" || secretCode == "" {
		writeToast(w, http.StatusBadRequest, "error", "Name and secret code are required")
		return
	}

	player, err := s.store.PlayerByName(name)
	if errors.Is(err, ErrNotFound) || (err == nil && player.SecretCode != secretCode) {
		writeToast(w, http.StatusUnauthorized, "error", "Invalid name or secret code")
		return
	}
	if err != nil {
		logError("handleLogin: PlayerByName", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	log.Printf("Player logged in: name='%s', id=%d", name, player.ID)
	DebugLog("handleLogin", "Player '%s' logged in with ID %d", name, player.ID)
	if err := s.setSessionCookie(w, player.ID); err != nil {
		logError("handleLogin: setSessionCookie", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, PlayerView{ID: player.ID, Name: player.Name})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	playerID, _ := s.getPlayerIdFromSession(r)

	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if token, err := strconv.ParseInt(cookie.Value, 10, 64); err == nil {
			if err := s.store.DeleteSession(token); err != nil {
				logError("handleLogout: DeleteSession", err)
			}
		}
	}

	log.Printf("Player logged out: id=%d", playerID)
	DebugLog("handleLogout", "Player '%s' (ID: %d) logged out", s.store.PlayerName(playerID), playerID)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

// requirePlayer resolves the session before calling next.
func (s *server) requirePlayer(next func(w http.ResponseWriter, r *http.Request, player Player)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, err := s.getPlayerIdFromSession(r)
		if err != nil {
			if !errors.Is(err, errNotLoggedIn) {
				logError("requirePlayer: session", err)
			}
			writeToast(w, http.StatusUnauthorized, "error", "Not logged in")
			return
		}
		player, err := s.store.PlayerByID(playerID)
		if err != nil {
			writeToast(w, http.StatusUnauthorized, "error", "Not logged in")
			return
		}
		next(w, r, player)
	}
}
