package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// Message types pushed to clients
const (
	MsgLobby    = "lobby"
	MsgGame     = "game"
	MsgPoll     = "poll"
	MsgFinished = "finished"
	MsgStory    = "story"
	MsgToast    = "toast"
)

// Envelope wraps every message pushed to a client.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WSMessage represents a message from the client
type WSMessage struct {
	Action string `json:"action"`
	Option int    `json:"option,omitempty"`
}

// Client represents a websocket connection with player info
type Client struct {
	conn     *websocket.Conn
	playerID int64
	lobbyID  int64
	writeMu  sync.Mutex // gorilla/websocket allows one concurrent writer

	// registered is closed once the hub tracks the client.
	registered chan struct{}
}

func (c *Client) write(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

type lobbyMessage struct {
	lobbyID int64
	data    []byte
}

// Hub fans lobby messages out to the websocket clients of that lobby.
type Hub struct {
	clients    map[*websocket.Conn]*Client
	broadcast  chan lobbyMessage
	register   chan *Client
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan lobbyMessage),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
		done:       make(chan struct{}),
	}
}

// stop signals the hub goroutine to exit and waits for it to finish
func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

func encodeEnvelope(msgType string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Data: data})
}

// broadcastToLobby queues one message for every client of lobbyID.
func (h *Hub) broadcastToLobby(lobbyID int64, msgType string, data any) {
	message, err := encodeEnvelope(msgType, data)
	if err != nil {
		logError("broadcastToLobby: encode "+msgType, err)
		return
	}
	select {
	case h.broadcast <- lobbyMessage{lobbyID: lobbyID, data: message}:
	case <-h.done:
	}
}

// sendToLobbyEach sends every client of lobbyID its own message. A nil
// message is skipped.
func (h *Hub) sendToLobbyEach(lobbyID int64, msgType string, dataFor func(playerID int64) any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.lobbyID != lobbyID {
			continue
		}
		data := dataFor(client.playerID)
		if data == nil {
			continue
		}
		message, err := encodeEnvelope(msgType, data)
		if err != nil {
			logError("sendToLobbyEach: encode "+msgType, err)
			continue
		}
		LogWSMessage("OUT", strconv.FormatInt(client.playerID, 10), string(message))
		if err := client.write(message); err != nil {
			log.Printf("WebSocket write error to player %d: %v", client.playerID, err)
		}
	}
}

func (h *Hub) sendToPlayer(lobbyID, playerID int64, msgType string, data any) {
	h.sendToLobbyEach(lobbyID, msgType, func(id int64) any {
		if id != playerID {
			return nil
		}
		return data
	})
}

// clientCount returns the number of connected clients of lobbyID.
func (h *Hub) clientCount(lobbyID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.lobbyID == lobbyID {
			n++
		}
	}
	return n
}

func (h *Hub) run(ctx context.Context) error {
	h.wg.Add(1)
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			h.closeAll()
			return nil

		case <-h.done:
			h.closeAll()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			total := len(h.clients)
			h.mu.Unlock()
			close(client.registered)
			log.Printf("WebSocket client connected (player %d, lobby %d). Total: %d", client.playerID, client.lobbyID, total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				DebugLog("hub.unregister", "Player %d left lobby %d websocket", client.playerID, client.lobbyID)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn, client := range h.clients {
				if client.lobbyID != message.lobbyID {
					continue
				}
				LogWSMessage("OUT", strconv.FormatInt(client.playerID, 10), string(message.data))
				if err := client.write(message.data); err != nil {
					log.Printf("WebSocket write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request, player Player) {
	lobbyID, err := strconv.ParseInt(r.URL.Query().Get("lobby"), 10, 64)
	if err != nil {
		writeToast(w, http.StatusBadRequest, "error", "lobby is required")
		return
	}
	if !s.lobbies.Member(lobbyID, player.ID) {
		DebugLog("handleWebSocket", "Rejected player '%s' (ID: %d) for lobby %d", player.Name, player.ID, lobbyID)
		writeToast(w, http.StatusForbidden, "error", "Not a member of this lobby")
		return
	}

	var upgrader = websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error for player %d (%s): %v", player.ID, player.Name, err)
		return
	}

	DebugLog("handleWebSocket", "WebSocket upgraded for player '%s' (ID: %d) in lobby %d", player.Name, player.ID, lobbyID)
	client := &Client{conn: conn, playerID: player.ID, lobbyID: lobbyID, registered: make(chan struct{})}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}
	select {
	case <-client.registered:
	case <-s.hub.done:
		return
	}
	s.sendInitialState(client)

	// Handle messages and disconnection
	go func() {
		defer func() {
			select {
			case s.hub.unregister <- conn:
			case <-s.hub.done:
			}
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleWSMessage(client, message)
		}
	}()
}

// sendInitialState brings a fresh connection up to date.
func (s *server) sendInitialState(client *Client) {
	if view, err := s.lobbies.View(client.lobbyID); err == nil {
		s.hub.sendToPlayer(client.lobbyID, client.playerID, MsgLobby, view)
	}
	if g, ok := s.games.Get(client.lobbyID); ok {
		s.hub.sendToPlayer(client.lobbyID, client.playerID, MsgGame, snapshotFor(g, client.playerID))
	}
}

func (s *server) handleWSMessage(client *Client, message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("WebSocket unmarshal error for player %d: %v", client.playerID, err)
		s.hub.sendErrorToast(client.lobbyID, client.playerID, "Malformed message")
		return
	}

	LogWSMessage("IN", strconv.FormatInt(client.playerID, 10), string(message))

	switch msg.Action {
	case "cast_vote", "remove_vote":
		err := s.games.Vote(client.lobbyID, client.playerID, msg.Option, msg.Action == "cast_vote")
		if err != nil {
			s.hub.sendErrorToast(client.lobbyID, client.playerID, err.Error())
		}
	default:
		log.Printf("Unknown action: %s for player %d in lobby %d", msg.Action, client.playerID, client.lobbyID)
		s.hub.sendErrorToast(client.lobbyID, client.playerID, "Unknown action "+msg.Action)
	}
}
