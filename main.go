package main

import (
	"compress/gzip"
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"werewolves/internal/game"
)

// server bundles the services behind the HTTP routes.
type server struct {
	store   *Store
	hub     *Hub
	games   *GameService
	lobbies *LobbyService
}

func newServer(store *Store, scheduler game.Scheduler, storyteller Storyteller, rules Rules) *server {
	hub := newHub()
	games := newGameService(store, hub, scheduler, storyteller, rules)
	return &server{
		store:   store,
		hub:     hub,
		games:   games,
		lobbies: newLobbyService(store, hub, games, rules),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	// Wrap handlers with compression, caching control, and optional logging
	handle := func(pattern string, handler http.HandlerFunc) {
		var h http.Handler = handler
		h = compress(h)
		h = disableCaching(h)
		mux.Handle(pattern, h)
	}

	handle("POST /signup", s.handleSignup)
	handle("POST /login", s.handleLogin)
	handle("POST /logout", s.handleLogout)

	handle("POST /lobbies", s.requirePlayer(s.handleCreateLobby))
	handle("GET /lobbies/{id}", s.requirePlayer(s.handleGetLobby))
	handle("GET /lobbies/{id}/qr", s.requirePlayer(s.handleLobbyQR))
	handle("POST /lobbies/{id}/join", s.requirePlayer(s.handleJoinLobby))
	handle("POST /lobbies/{id}/leave", s.requirePlayer(s.handleLeaveLobby))
	handle("POST /lobbies/{id}/start", s.requirePlayer(s.handleStartLobby))

	handle("GET /lobbies/{id}/game", s.requirePlayer(s.handleGetGame))
	handle("GET /lobbies/{id}/roles", s.requirePlayer(s.handleGetRoles))
	handle("GET /lobbies/{id}/poll", s.requirePlayer(s.handleGetPoll))
	handle("PUT /lobbies/{id}/poll/votes/{option}", s.requirePlayer(s.handleVote))
	handle("DELETE /lobbies/{id}/poll/votes/{option}", s.requirePlayer(s.handleVote))
	handle("GET /lobbies/{id}/winner", s.requirePlayer(s.handleGetWinner))
	handle("GET /lobbies/{id}/history", s.requirePlayer(s.handleGetHistory))

	// WebSocket upgrades need the raw ResponseWriter to hijack the connection
	mux.Handle("GET /ws", s.requirePlayer(s.handleWebSocket))

	var h http.Handler = mux
	if appLogger != nil && appLogger.logRequests {
		h = &LoggingHandler{Handler: h, Logger: appLogger}
	}
	return h
}

func disableCaching(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Cache-Control", "no-cache")

		next.ServeHTTP(w, r)
	})
}

// shouldCompress determines if a content type should be gzip compressed
// Compresses text-based formats but not binary formats like images
func shouldCompress(contentType string) bool {
	for _, prefix := range []string{"text/", "application/json"} {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to handle conditional gzip compression
type responseWriter struct {
	http.ResponseWriter
	gz         *gzip.Writer
	acceptGzip bool
	headerSent bool
}

// WriteHeader checks content type and sets up compression if appropriate
func (w *responseWriter) WriteHeader(statusCode int) {
	if w.headerSent {
		return
	}
	w.headerSent = true

	contentType := w.Header().Get("Content-Type")
	if w.acceptGzip && shouldCompress(contentType) {
		w.gz = gzip.NewWriter(w.ResponseWriter)
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

// Write writes to gzip writer if it exists, otherwise to the wrapped writer
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.headerSent {
		w.WriteHeader(http.StatusOK)
	}

	if w.gz != nil {
		return w.gz.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Close closes the gzip writer if it exists
func (w *responseWriter) Close() error {
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

// compress adds gzip compression to compressible responses
func compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{
			ResponseWriter: w,
			acceptGzip:     strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"),
		}
		defer wrapped.Close()

		next.ServeHTTP(wrapped, r)
	})
}

func main() {
	fv := registerFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := loadConfig(*fv.configPath, *fv.envPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	fv.applyTo(flag.CommandLine, &cfg)
	devMode = cfg.Dev

	// Set up logging to both stdout and file
	logFile, err := os.OpenFile("werewolf.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	appLogger, err = NewAppLogger(cfg.toLogConfig())
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer CloseAppLogger()
	if appLogger.IsEnabled() {
		log.Println("Extended logging enabled")
	}
	game.SetLogger(appLogger)

	rules, err := loadRules(cfg.Rules)
	if err != nil {
		log.Fatal("Failed to load rules: ", err)
	}

	store, err := openStore(cfg.DB)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer store.Close()
	appLogger.AttachDB(store.DB())
	LogDBState("after initDB")

	srv := newServer(store, game.DefaultScheduler(), newStoryteller(cfg), rules)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.hub.run(ctx)
	})
	group.Go(func() error {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Println("Server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}
}
