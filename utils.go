package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"maps"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// AppLogger provides extended diagnostics: request, WebSocket and database
// dump logs written to files under an output directory.
type AppLogger struct {
	outputDir      string
	logRequests    bool
	logDB          bool
	logWS          bool
	debug          bool
	requestLog     *os.File
	dbLog          *os.File
	wsLog          *os.File
	db             *sqlx.DB
	mu             sync.Mutex
	requestCount   int
	wsMessageCount int
}

// Global application logger (used by server)
var appLogger *AppLogger

// LogConfig holds logging configuration
type LogConfig struct {
	OutputDir   string
	LogRequests bool
	LogDB       bool
	LogWS       bool
	Debug       bool
}

// NewAppLogger creates a new application logger
func NewAppLogger(config LogConfig) (*AppLogger, error) {
	al := &AppLogger{
		outputDir:   config.OutputDir,
		logRequests: config.LogRequests,
		logDB:       config.LogDB,
		logWS:       config.LogWS,
		debug:       config.Debug,
	}

	if al.outputDir == "" {
		return al, nil // No file logging
	}

	open := func(enabled bool, name string, dst **os.File) error {
		if !enabled {
			return nil
		}
		f, err := os.OpenFile(filepath.Join(al.outputDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		*dst = f
		return nil
	}
	if err := open(al.logRequests, "requests.log", &al.requestLog); err != nil {
		return nil, err
	}
	if err := open(al.logDB, "database.log", &al.dbLog); err != nil {
		al.Close()
		return nil, err
	}
	if err := open(al.logWS, "websocket.log", &al.wsLog); err != nil {
		al.Close()
		return nil, err
	}
	return al, nil
}

// InitAppLogger initializes the global application logger
func InitAppLogger(config LogConfig) error {
	var err error
	appLogger, err = NewAppLogger(config)
	return err
}

// WatchDB sets the database dumped by LogDB.
func (al *AppLogger) WatchDB(db *sqlx.DB) {
	al.mu.Lock()
	al.db = db
	al.mu.Unlock()
}

// Close closes all open log files
func (al *AppLogger) Close() {
	for _, f := range []*os.File{al.requestLog, al.dbLog, al.wsLog} {
		if f != nil {
			f.Close()
		}
	}
}

// maxLoggedBody caps how much of a response body goes into requests.log.
const maxLoggedBody = 5000

func section(buf *bytes.Buffer, title string, body []byte) {
	if len(body) == 0 {
		return
	}
	fmt.Fprintf(buf, "\n--- %s ---\n", title)
	if len(body) > maxLoggedBody {
		buf.Write(body[:maxLoggedBody])
		fmt.Fprintf(buf, "\n... (truncated, %d bytes total)", len(body))
	} else {
		buf.Write(body)
	}
	buf.WriteByte('\n')
}

// LogRequest logs an HTTP exchange. resp is nil when the request failed.
func (al *AppLogger) LogRequest(method, url string, reqBody []byte, resp *http.Response, respBody []byte) {
	if !al.logRequests || al.requestLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	al.requestCount++

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== REQUEST #%d [%s] ==========\n%s %s\n",
		al.requestCount, time.Now().Format("15:04:05.000"), method, url)
	section(&buf, "Request Body", reqBody)
	if resp != nil {
		fmt.Fprintf(&buf, "\n--- Response [%d %s] ---\n", resp.StatusCode, resp.Status)
		keys := slices.Sorted(maps.Keys(resp.Header))
		for _, k := range keys {
			fmt.Fprintf(&buf, "%s: %s\n", k, strings.Join(resp.Header[k], ", "))
		}
	}
	section(&buf, "Response Body", respBody)

	al.requestLog.Write(buf.Bytes())
}

// LogWebSocket logs one frame; direction is IN or OUT, remote is "*" for
// broadcasts.
func (al *AppLogger) LogWebSocket(direction, remote, message string) {
	if !al.logWS || al.wsLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	al.wsMessageCount++

	fmt.Fprintf(al.wsLog, "[%s] #%d %s [%s]: %s\n",
		time.Now().Format("15:04:05.000"), al.wsMessageCount, direction, remote, message)
}

// LogDB dumps every table of the watched database, labelled with context.
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
	fmt.Fprintf(&buf, "\n========== DATABASE DUMP [%s] ==========\nContext: %s\n\n",
		time.Now().Format("15:04:05.000"), context)

	var tables []string
	err := al.db.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		fmt.Fprintf(&buf, "Error listing tables: %v\n", err)
	}
	for _, table := range tables {
		fmt.Fprintf(&buf, "--- Table: %s ---\n", table)
		if n, err := dumpTable(&buf, al.db, table); err != nil {
			fmt.Fprintf(&buf, "Error: %v\n", err)
		} else if n == 0 {
			buf.WriteString("(empty)\n")
		}
		buf.WriteByte('\n')
	}

	al.dbLog.Write(buf.Bytes())
}

// dumpTable writes one "Row n: a | b | c" line per row and returns the row count.
func dumpTable(buf *bytes.Buffer, db *sqlx.DB, table string) (int, error) {
	rows, err := db.Queryx("SELECT * FROM " + table)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return n, err
		}
		n++
		cells := make([]string, len(values))
		for i, v := range values {
			switch v := v.(type) {
			case nil:
				cells[i] = "NULL"
			case []byte:
				cells[i] = string(v)
			default:
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintf(buf, "Row %d: %s\n", n, strings.Join(cells, " | "))
	}
	return n, rows.Err()
}

// Debug logs a debug message if debug mode is enabled
func (al *AppLogger) Debug(format string, args ...any) {
	if !al.debug {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

// IsEnabled returns true if any logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logRequests || al.logDB || al.logWS || al.debug
}

// ============================================================================
// HTTP Middleware
// ============================================================================

// LoggingRoundTripper wraps http.RoundTripper to log outgoing requests
// (storyteller provider calls).
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Logger    *AppLogger
}

func (l *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	resp, err := l.Transport.RoundTrip(req)
	if err != nil {
		l.Logger.LogRequest(req.Method, req.URL.String(), reqBody, nil, nil)
		return resp, err
	}

	// Streaming bodies are not buffered; only the status and headers are logged.
	l.Logger.LogRequest(req.Method, req.URL.String(), reqBody, resp, nil)
	return resp, err
}

// LoggingHandler wraps http.Handler to log requests/responses
// Note: WebSocket requests (/ws) are passed through without recording
// because they require http.Hijacker which ResponseRecorder doesn't support
type LoggingHandler struct {
	Handler http.Handler
	Logger  *AppLogger
}

func (l *LoggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// WebSocket upgrades need http.Hijacker, so pass them through directly
	if r.URL.Path == "/ws" {
		l.Logger.LogRequest(r.Method, r.URL.String(), nil, nil, []byte("[WebSocket upgrade]"))
		l.Handler.ServeHTTP(w, r)
		return
	}

	var reqBody []byte
	if r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	rec := httptest.NewRecorder()
	l.Handler.ServeHTTP(rec, r)

	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	respBody := rec.Body.Bytes()
	w.Write(respBody)

	l.Logger.LogRequest(r.Method, r.URL.String(), reqBody, &http.Response{
		StatusCode: rec.Code,
		Status:     http.StatusText(rec.Code),
		Header:     rec.Header(),
	}, respBody)
}

// ============================================================================
// Global helper functions
// ============================================================================

// LogWSMessage logs a WebSocket message using the global logger
func LogWSMessage(direction, remote, message string) {
	if appLogger != nil {
		appLogger.LogWebSocket(direction, remote, message)
	}
}

// LogDBState logs the database state using the global logger
func LogDBState(context string) {
	if appLogger != nil {
		appLogger.LogDB(context)
	}
}

// DebugLog logs a debug message using the global logger
func DebugLog(format string, args ...any) {
	if appLogger != nil {
		appLogger.Debug(format, args...)
	}
}

// CloseAppLogger closes the global application logger
func CloseAppLogger() {
	if appLogger != nil {
		appLogger.Close()
	}
}
