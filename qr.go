package main

import (
	"fmt"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// joinURL is the link players follow to join lobby id.
func joinURL(r *http.Request, id int64) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/lobbies/%d/join", scheme, r.Host, id)
}

// handleLobbyQR serves a PNG QR code of the lobby's join link.
func (s *server) handleLobbyQR(w http.ResponseWriter, r *http.Request, player Player) {
	id, err := lobbyIDFrom(r)
	if err != nil {
		writeError(w, "handleLobbyQR", err)
		return
	}
	if _, err := s.lobbies.lobby(id); err != nil {
		writeError(w, "handleLobbyQR", err)
		return
	}

	png, err := qrcode.Encode(joinURL(r, id), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, "handleLobbyQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
