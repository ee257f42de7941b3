package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
)

// Toast represents a notification message to show to the user
type Toast struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "error", "warning", "success", "info"
	Message string `json:"message"`
}

var toastCounter atomic.Int64

func newToast(toastType, message string) Toast {
	return Toast{
		ID:      strconv.FormatInt(toastCounter.Add(1), 10),
		Type:    toastType,
		Message: message,
	}
}

// writeToast answers an HTTP request with a toast body.
func writeToast(w http.ResponseWriter, status int, toastType, message string) {
	writeJSON(w, status, newToast(toastType, message))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// sendErrorToast sends an error toast to a specific player via WebSocket
func (h *Hub) sendErrorToast(lobbyID, playerID int64, message string) {
	h.sendToPlayer(lobbyID, playerID, MsgToast, newToast("error", message))
}
