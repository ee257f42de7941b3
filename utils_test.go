package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLog(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestAppLoggerDisabled(t *testing.T) {
	al, err := NewAppLogger(LogConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if al.IsEnabled() {
		t.Error("empty config should disable extended logging")
	}
	// Nothing is opened, so these must be no-ops.
	al.LogRequest(http.MethodGet, "/", nil, http.StatusOK, nil, nil)
	al.LogWebSocket("IN", "1", "{}")
	al.LogDB("noop")
	al.Close()
}

func TestAppLoggerWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	al, err := NewAppLogger(LogConfig{OutputDir: dir, LogRequests: true, LogDB: true, LogWS: true})
	if err != nil {
		t.Fatal(err)
	}
	defer al.Close()

	store := newTestStore(t)
	store.CreatePlayer("Alice", "cafe0001")
	al.AttachDB(store.DB())
	al.LogDB("after signup")
	al.LogWebSocket("OUT", "7", `{"type":"game"}`)

	teapot := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeToast(w, http.StatusTeapot, "info", "short and stout")
	})
	handler := &LoggingHandler{Handler: teapot, Logger: al}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader("name=Alice")))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status %d", rec.Code)
	}

	if dump := readLog(t, dir, "database.log"); !strings.Contains(dump, "Table: player") || !strings.Contains(dump, "Alice") {
		t.Errorf("database dump = %q", dump)
	}
	if ws := readLog(t, dir, "websocket.log"); !strings.Contains(ws, "#1 OUT [Player 7]") {
		t.Errorf("websocket log = %q", ws)
	}
	requests := readLog(t, dir, "requests.log")
	for _, want := range []string{"REQUEST #1", "POST /signup", "name=Alice", "418", "short and stout"} {
		if !strings.Contains(requests, want) {
			t.Errorf("request log misses %q:\n%s", want, requests)
		}
	}
}
