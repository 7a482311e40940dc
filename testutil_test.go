package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ============================================================================
// Test Context
// ============================================================================

// TestContext holds a running server backed by a per-test database
type TestContext struct {
	t       *testing.T
	server  *server
	baseURL string
	db      *sqlx.DB
	hub     *Hub
	spans   *tracetest.SpanRecorder
}

// newTestContext starts a server on the cgo SQLite driver without a storyteller
func newTestContext(t *testing.T) *TestContext {
	return newTestContextWith(t, "sqlite3", nil)
}

func newTestContextWith(t *testing.T, driver string, storyteller Storyteller) *TestContext {
	t.Helper()

	db, err := openDB(driver, filepath.Join(t.TempDir(), "narrator.db"))
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := initDB(db); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	hub := newHub()
	hub.start()

	srv := newServer(db, hub, storyteller, "http://table.example/join")
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	srv.tracer = tp.Tracer(tracerName)

	ts := httptest.NewServer(srv.routes())

	t.Cleanup(func() {
		ts.Close()
		hub.stop() // closes WebSocket connections
		srv.stories.Wait()
		db.Close()
		tp.Shutdown(context.Background())
	})

	return &TestContext{
		t:       t,
		server:  srv,
		baseURL: ts.URL,
		db:      db,
		hub:     hub,
		spans:   spans,
	}
}

// ============================================================================
// HTTP Helpers
// ============================================================================

func (ctx *TestContext) do(method, path string, body any) (*http.Response, []byte) {
	ctx.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			ctx.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ctx.baseURL+path, reader)
	if err != nil {
		ctx.t.Fatalf("new request: %v", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ctx.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		ctx.t.Fatalf("read body: %v", err)
	}
	return resp, data
}

// expect performs a request, checks the status and decodes the body into out
func (ctx *TestContext) expect(status int, method, path string, body, out any) {
	ctx.t.Helper()
	resp, data := ctx.do(method, path, body)
	if resp.StatusCode != status {
		ctx.t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, status, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			ctx.t.Fatalf("%s %s: decode %s: %v", method, path, data, err)
		}
	}
}

func (ctx *TestContext) state() wireState {
	ctx.t.Helper()
	var s wireState
	ctx.expect(http.StatusOK, "GET", "/api/state?narrator=1", nil, &s)
	return s
}

// decide submits a decision and returns the outcome
func (ctx *TestContext) decide(d map[string]any) wireOutcome {
	ctx.t.Helper()
	var resp struct {
		Outcome wireOutcome `json:"outcome"`
	}
	ctx.expect(http.StatusOK, "POST", "/api/decision", d, &resp)
	return resp.Outcome
}

// decideAt checks the pending stage before submitting
func (ctx *TestContext) decideAt(stage string, d map[string]any) wireOutcome {
	ctx.t.Helper()
	if got := ctx.state().Pending.Stage; got != stage {
		ctx.t.Fatalf("pending stage %q, want %q", got, stage)
	}
	return ctx.decide(d)
}

// dealTable starts the standard four-player table in seating order:
// Wolf (werewolf), Sam (seer), Ann and Bob (villagers).
func (ctx *TestContext) dealTable() {
	ctx.t.Helper()
	ctx.expect(http.StatusCreated, "POST", "/api/game", tableSetup(), nil)
}

func tableSetup() map[string]any {
	return map[string]any{
		"players": []string{"Wolf", "Sam", "Ann", "Bob"},
		"roles":   []string{"werewolf", "seer", "villager", "villager"},
		"dealt":   true,
	}
}

func pick(names ...string) map[string]any {
	return map[string]any{"targets": names}
}

// ============================================================================
// Wire types
// ============================================================================

// The engine's enums only marshal, so tests decode into plain strings.

type wirePlayer struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	OriginalRole string `json:"original_role"`
	Alive        bool   `json:"alive"`
}

type wirePrompt struct {
	Phase   string   `json:"phase"`
	Stage   string   `json:"stage"`
	Round   int      `json:"round"`
	Kind    string   `json:"kind"`
	Role    string   `json:"role"`
	Actors  []string `json:"actors"`
	Targets []string `json:"targets"`
	Deaths  []string `json:"deaths"`
}

type wireState struct {
	Phase   string       `json:"phase"`
	Round   int          `json:"round"`
	Roster  []wirePlayer `json:"roster"`
	Pending wirePrompt   `json:"pending"`
	Winner  string       `json:"winner"`
}

type wireOutcome struct {
	Revealed      string   `json:"revealed"`
	WerewolfFound bool     `json:"werewolf_found"`
	Deaths        []string `json:"deaths"`
	Spared        string   `json:"spared"`
	Winner        string   `json:"winner"`
}

type wireFrame struct {
	Type    string       `json:"type"`
	State   *wireState   `json:"state"`
	Outcome *wireOutcome `json:"outcome"`
	Toast   *Toast       `json:"toast"`
	Story   *Story       `json:"story"`
}

// ============================================================================
// WebSocket Helpers
// ============================================================================

const wsTimeout = 5 * time.Second

// dial opens a screen and consumes the snapshot sent on connect
// dial connects a narrator screen and returns its initial frame
func (ctx *TestContext) dial() (*websocket.Conn, wireFrame) {
	ctx.t.Helper()
	return ctx.dialPath("/ws?narrator=1")
}

// dialTable connects a screen that only follows the table
func (ctx *TestContext) dialTable() (*websocket.Conn, wireFrame) {
	ctx.t.Helper()
	return ctx.dialPath("/ws")
}

func (ctx *TestContext) dialPath(path string) (*websocket.Conn, wireFrame) {
	ctx.t.Helper()
	url := "ws" + strings.TrimPrefix(ctx.baseURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		ctx.t.Fatalf("dial %s: %v", url, err)
	}
	ctx.t.Cleanup(func() { conn.Close() })
	return conn, readFrame(ctx.t, conn)
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(wsTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return f
}

// readUntil skips frames until one of the given type satisfies match
func readUntil(t *testing.T, conn *websocket.Conn, frameType string, match func(wireFrame) bool) wireFrame {
	t.Helper()
	deadline := time.Now().Add(wsTimeout)
	for time.Now().Before(deadline) {
		f := readFrame(t, conn)
		if f.Type == frameType && (match == nil || match(f)) {
			return f
		}
	}
	t.Fatalf("no %s frame before deadline", frameType)
	return wireFrame{}
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// ============================================================================
// Mock Storyteller
// ============================================================================

// mockStoryteller streams fixed chunks, then waits pause and fails with err
// if one is set.
type mockStoryteller struct {
	chunks []string
	pause  time.Duration
	err    error
	calls  chan []string // receives the history of each call, if set
}

func (m *mockStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	if m.calls != nil {
		m.calls <- history
	}
	for _, c := range m.chunks {
		onChunk(c)
	}
	time.Sleep(m.pause)
	if m.err != nil {
		return "", m.err
	}
	return strings.Join(m.chunks, ""), nil
}
