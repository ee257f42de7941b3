package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// AppLogger provides the opt-in diagnostics of the server: request and
// websocket transcripts, database dumps and debug lines.
type AppLogger struct {
	outputDir      string
	logRequests    bool
	logDB          bool
	logWS          bool
	debug          bool
	requestLog     io.WriteCloser
	dbLog          io.WriteCloser
	wsLog          io.WriteCloser
	db             *sqlx.DB
	mu             sync.Mutex
	requestCount   int
	wsMessageCount int
}

// Global application logger
var appLogger *AppLogger

var devMode bool

// LogConfig holds logging configuration
type LogConfig struct {
	OutputDir   string
	LogRequests bool
	LogDB       bool
	LogWS       bool
	Debug       bool
}

// NewAppLogger creates a new application logger. Without an output directory
// only debug lines are written, to the standard logger.
func NewAppLogger(config LogConfig) (*AppLogger, error) {
	al := &AppLogger{
		outputDir:   config.OutputDir,
		logRequests: config.LogRequests,
		logDB:       config.LogDB,
		logWS:       config.LogWS,
		debug:       config.Debug,
	}

	if al.outputDir == "" {
		return al, nil
	}
	if err := os.MkdirAll(al.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	open := func(name string) (*os.File, error) {
		return os.OpenFile(filepath.Join(al.outputDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	}
	var err error
	if al.logRequests {
		if al.requestLog, err = open("requests.log"); err != nil {
			return nil, fmt.Errorf("failed to open request log: %w", err)
		}
	}
	if al.logDB {
		if al.dbLog, err = open("database.log"); err != nil {
			return nil, fmt.Errorf("failed to open database log: %w", err)
		}
	}
	if al.logWS {
		if al.wsLog, err = open("websocket.log"); err != nil {
			return nil, fmt.Errorf("failed to open WebSocket log: %w", err)
		}
	}

	return al, nil
}

// AttachDB sets the database LogDB dumps.
func (al *AppLogger) AttachDB(db *sqlx.DB) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.db = db
}

// Close closes all open log files
func (al *AppLogger) Close() {
	for _, f := range []io.WriteCloser{al.requestLog, al.dbLog, al.wsLog} {
		if f != nil {
			f.Close()
		}
	}
}

// LogRequest logs an HTTP request and response
func (al *AppLogger) LogRequest(method, url string, reqBody []byte, status int, header http.Header, respBody []byte) {
	if !al.logRequests || al.requestLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.requestCount++
	timestamp := time.Now().Format("15:04:05.000")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== REQUEST #%d [%s] ==========\n", al.requestCount, timestamp)
	fmt.Fprintf(&buf, "%s %s\n", method, url)

	if len(reqBody) > 0 {
		fmt.Fprintf(&buf, "\n--- Request Body ---\n")
		buf.Write(reqBody)
		buf.WriteString("\n")
	}

	fmt.Fprintf(&buf, "\n--- Response [%d %s] ---\n", status, http.StatusText(status))
	for k, v := range header {
		fmt.Fprintf(&buf, "%s: %s\n", k, strings.Join(v, ", "))
	}

	if len(respBody) > 0 {
		fmt.Fprintf(&buf, "\n--- Response Body ---\n")
		if len(respBody) > 5000 {
			buf.Write(respBody[:5000])
			fmt.Fprintf(&buf, "\n... (truncated, %d bytes total)\n", len(respBody))
		} else {
			buf.Write(respBody)
		}
		buf.WriteString("\n")
	}

	al.requestLog.Write(buf.Bytes())
}

// LogWebSocket logs a WebSocket message
func (al *AppLogger) LogWebSocket(direction, playerName, message string) {
	if !al.logWS || al.wsLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.wsMessageCount++
	timestamp := time.Now().Format("15:04:05.000")

	fmt.Fprintf(al.wsLog, "[%s] #%d %s [Player %s]: %s\n",
		timestamp, al.wsMessageCount, direction, playerName, message)
}

// LogDB dumps every table of the attached database.
func (al *AppLogger) LogDB(context string) {
	if !al.logDB || al.dbLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	if al.db == nil {
		return
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== DATABASE DUMP [%s] ==========\n", time.Now().Format("15:04:05.000"))
	fmt.Fprintf(&buf, "Context: %s\n\n", context)
	dumpTables(&buf, al.db)
	al.dbLog.Write(buf.Bytes())
}

// dumpTables writes the rows of all user tables to w.
func dumpTables(w io.Writer, db *sqlx.DB) {
	var tables []string
	if err := db.Select(&tables, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name"); err != nil {
		fmt.Fprintf(w, "Error getting tables: %v\n", err)
		return
	}

	for _, table := range tables {
		fmt.Fprintf(w, "--- Table: %s ---\n", table)

		rows, err := db.Queryx("SELECT * FROM " + table)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n\n", err)
			continue
		}
		cols, _ := rows.Columns()
		fmt.Fprintf(w, "Columns: %s\n", strings.Join(cols, " | "))

		rowCount := 0
		for rows.Next() {
			rowCount++
			values, err := rows.SliceScan()
			if err != nil {
				fmt.Fprintf(w, "Error scanning row: %v\n", err)
				continue
			}
			cells := make([]string, len(values))
			for i, v := range values {
				switch val := v.(type) {
				case nil:
					cells[i] = "NULL"
				case []byte:
					cells[i] = string(val)
				default:
					cells[i] = fmt.Sprintf("%v", val)
				}
			}
			fmt.Fprintf(w, "Row %d: %s\n", rowCount, strings.Join(cells, " | "))
		}
		rows.Close()

		if rowCount == 0 {
			fmt.Fprintf(w, "(empty)\n")
		}
		fmt.Fprintln(w)
	}
}

// Debug logs a debug message if debug mode is enabled
func (al *AppLogger) Debug(context, format string, args ...any) {
	if !al.debug {
		return
	}
	log.Printf("[DEBUG] ["+context+"] "+format, args...)
}

// IsEnabled returns true if any logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logRequests || al.logDB || al.logWS || al.debug
}

// Printf lets the engine log through the application logger.
func (al *AppLogger) Printf(format string, args ...any) {
	log.Printf(format, args...)
}

// LoggingHandler wraps http.Handler to log requests/responses.
// WebSocket upgrades need http.Hijacker, so /ws is passed through unrecorded.
type LoggingHandler struct {
	Handler http.Handler
	Logger  *AppLogger
}

func (l *LoggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" {
		l.Logger.LogRequest(r.Method, r.URL.String(), nil, http.StatusSwitchingProtocols, nil, []byte("[WebSocket upgrade]"))
		l.Handler.ServeHTTP(w, r)
		return
	}

	var reqBody []byte
	if r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
	l.Handler.ServeHTTP(rec, r)

	l.Logger.LogRequest(r.Method, r.URL.String(), reqBody, rec.status, w.Header(), rec.body.Bytes())
}

// recordingWriter passes a response through while keeping a copy.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// ============================================================================
// Global helper functions
// ============================================================================

// logError logs an error with context and dumps the database in dev mode
func logError(context string, err error) {
	log.Printf("ERROR [%s]: %v", context, err)
	if devMode && appLogger != nil && appLogger.db != nil {
		var buf bytes.Buffer
		dumpTables(&buf, appLogger.db)
		log.Printf("DB dump:\n%s", buf.String())
	}
}

// LogWSMessage logs a WebSocket message using the global logger
func LogWSMessage(direction, playerName, message string) {
	if appLogger != nil {
		appLogger.LogWebSocket(direction, playerName, message)
	}
}

// LogDBState logs the database state using the global logger
func LogDBState(context string) {
	if appLogger != nil {
		appLogger.LogDB(context)
	}
}

// DebugLog logs a debug message using the global logger
func DebugLog(context, format string, args ...any) {
	if appLogger != nil {
		appLogger.Debug(context, format, args...)
	}
}

// CloseAppLogger closes the global application logger
func CloseAppLogger() {
	if appLogger != nil {
		appLogger.Close()
	}
}
