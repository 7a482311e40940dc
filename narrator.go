package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/skip2/go-qrcode"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"narrator/internal/engine"
)

// gameRequest is the body of POST /api/game and of the "start" WebSocket
// action.
type gameRequest struct {
	engine.Setup
	Dealt bool `json:"dealt,omitempty"` // roles already match players; skip the shuffle
}

// server hosts one table. Every call into the engine goes through mu, so
// exactly one decision is processed at a time.
type server struct {
	mu     sync.Mutex
	game   *engine.Game
	gameID string

	db          *sqlx.DB
	hub         *Hub
	storyteller Storyteller
	tracer      trace.Tracer
	publicURL   string
	dev         bool

	stories sync.WaitGroup
}

func newServer(db *sqlx.DB, hub *Hub, storyteller Storyteller, publicURL string) *server {
	return &server{
		game:        &engine.Game{},
		db:          db,
		hub:         hub,
		storyteller: storyteller,
		tracer:      otel.Tracer(tracerName),
		publicURL:   publicURL,
	}
}

// logError logs an error with context and dumps the database in dev mode
func (s *server) logError(context string, err error) {
	log.Printf("ERROR [%s]: %v", context, err)
	if s.dev {
		LogDBState("error: " + context)
	}
}

func (s *server) snapshot() engine.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Snapshot()
}

// broadcastState pushes the current snapshot to every screen. Callers hold mu.
func (s *server) broadcastState() {
	snap := s.game.Snapshot()
	s.hub.publish(Frame{Type: FrameState, State: &snap})
}

// start deals a new game, discarding whatever was running.
func (s *server) start(ctx context.Context, req gameRequest) error {
	_, span := s.tracer.Start(ctx, "narrator.start", trace.WithAttributes(
		attribute.Int("players", len(req.Players)),
		attribute.Bool("dealt", req.Dealt),
	))
	defer span.End()

	setup := req.Setup
	if !req.Dealt {
		roles, err := engine.Shuffle(setup.Roles)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("shuffle roles: %w", err)
		}
		setup.Roles = roles
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.game.Start(setup); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.gameID = uuid.NewString()
	span.SetAttributes(attribute.String("game.id", s.gameID))

	if err := createGame(s.db, s.gameID, s.game.Roster()); err != nil {
		s.logError("start: createGame", err)
	}
	roles := make([]string, len(setup.Roles))
	for i, r := range setup.Roles {
		roles[i] = r.String()
	}
	s.record(GameAction{
		Round:       1,
		Phase:       engine.PhaseSetup.String(),
		ActionType:  ActionDeal,
		Visibility:  VisibilityNarrator,
		Description: fmt.Sprintf("Dealt %s to %s.", strings.Join(roles, ", "), strings.Join(setup.Players, ", ")),
	})
	s.record(GameAction{
		Round:       1,
		Phase:       engine.PhaseSetup.String(),
		ActionType:  ActionDeal,
		Visibility:  VisibilityPublic,
		Description: fmt.Sprintf("%d players take their seats. Night falls on the village.", len(setup.Players)),
	})
	LogDBState("after start")
	log.Printf("Game %s dealt to %d players", s.gameID, len(setup.Players))

	s.broadcastState()
	return nil
}

// submit answers the pending prompt.
func (s *server) submit(ctx context.Context, d engine.Decision) (engine.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.game.Pending()
	_, span := s.tracer.Start(ctx, "narrator.submit", trace.WithAttributes(
		attribute.String("game.id", s.gameID),
		attribute.String("phase", before.Phase.String()),
		attribute.String("stage", before.Stage),
		attribute.Int("round", before.Round),
	))
	defer span.End()

	out, err := s.game.Submit(d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		DebugLog("submit rejected at %s: %v", before.Stage, err)
		return out, err
	}
	if len(out.Deaths) > 0 {
		span.SetAttributes(attribute.StringSlice("deaths", out.Deaths))
	}

	s.recordOutcome(before, d, out)
	s.broadcastState()
	return out, nil
}

// reset returns to the assign-roles boundary.
func (s *server) reset(ctx context.Context) {
	_, span := s.tracer.Start(ctx, "narrator.reset")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gameID != "" {
		s.record(GameAction{
			Round:       s.game.Round(),
			Phase:       s.game.Phase().String(),
			ActionType:  ActionReset,
			Visibility:  VisibilityNarrator,
			Description: "The narrator reset the game.",
		})
		if err := updateGame(s.db, s.gameID, engine.PhaseSetup, s.game.Round(), engine.WinnerNone); err != nil {
			s.logError("reset: updateGame", err)
		}
	}
	s.game.Reset()
	s.gameID = ""
	log.Printf("Game reset")

	s.broadcastState()
	s.hub.broadcastToast("info", "Game reset")
}

// record stores a history entry for the current game. Callers hold mu.
func (s *server) record(a GameAction) {
	if s.gameID == "" {
		return
	}
	a.GameID = s.gameID
	if _, err := recordAction(s.db, a); err != nil {
		s.logError("recordAction "+a.ActionType, err)
	}
}

// recordOutcome writes the history entries for an accepted decision.
// Callers hold mu.
func (s *server) recordOutcome(before engine.Prompt, d engine.Decision, out engine.Outcome) {
	phase := before.Phase.String()
	actionType := ActionNight
	if before.Phase == engine.PhaseDay {
		actionType = ActionDay
	}

	if summary := describeDecision(before, d, out); summary != "" {
		s.record(GameAction{
			Round:       before.Round,
			Phase:       phase,
			Actor:       strings.Join(before.Actors, ", "),
			ActionType:  actionType,
			Target:      strings.Join(d.Targets, ", "),
			Visibility:  VisibilityNarrator,
			Description: summary,
		})
	}

	for _, name := range out.Deaths {
		s.record(GameAction{
			Round:       before.Round,
			Phase:       phase,
			Actor:       name,
			ActionType:  ActionDeath,
			Visibility:  VisibilityPublic,
			Description: name + " is dead.",
		})
	}
	if err := markDead(s.db, s.gameID, out.Deaths); err != nil {
		s.logError("recordOutcome: markDead", err)
	}

	if out.Spared != "" {
		s.record(GameAction{
			Round:       before.Round,
			Phase:       phase,
			Actor:       out.Spared,
			ActionType:  ActionSpared,
			Visibility:  VisibilityPublic,
			Description: out.Spared + " was voted out, but the village spares its idiot.",
		})
	}

	// The last night step just resolved the night.
	if before.Phase == engine.PhaseNight && s.game.Phase() != engine.PhaseNight {
		if res, ok := s.game.LastNight(); ok && res.BearGrowl {
			s.record(GameAction{
				Round:       before.Round,
				Phase:       phase,
				ActionType:  ActionBearGrowl,
				Visibility:  VisibilityPublic,
				Description: "The bear growls.",
			})
		}
	}

	if out.Winner != engine.WinnerNone {
		s.record(GameAction{
			Round:       before.Round,
			Phase:       phase,
			ActionType:  ActionWinner,
			Visibility:  VisibilityPublic,
			Description: fmt.Sprintf("The game is over: %s win.", strings.ReplaceAll(out.Winner.String(), "_", " ")),
		})
		log.Printf("Game %s won by %s", s.gameID, out.Winner)
	}

	if err := updateGame(s.db, s.gameID, s.game.Phase(), s.game.Round(), s.game.Winner()); err != nil {
		s.logError("recordOutcome: updateGame", err)
	}

	if len(out.Deaths) > 0 {
		s.maybeTellStory(s.gameID, before.Round, phase)
	}
}

var phaseTitle = cases.Title(language.English)

// describeDecision renders a narrator-only history line, or "" for steps
// that carry no choice.
func describeDecision(p engine.Prompt, d engine.Decision, out engine.Outcome) string {
	var parts []string
	if len(d.Targets) > 0 {
		parts = append(parts, "chose "+strings.Join(d.Targets, ", "))
	}
	if d.Card != engine.RoleNone {
		parts = append(parts, "took the "+d.Card.String()+" card")
	}
	if d.Side != engine.SideUndecided {
		parts = append(parts, "joined the "+d.Side.String()+" side")
	}
	if d.Word != "" {
		parts = append(parts, fmt.Sprintf("picked the word %q", d.Word))
	}
	if d.Heal {
		parts = append(parts, "healed the victim")
	}
	if d.Yes {
		parts = append(parts, "said yes")
	}
	if d.Tie {
		parts = append(parts, "declared a tie")
	}
	if out.Revealed != engine.RoleNone {
		parts = append(parts, "saw "+out.Revealed.String())
	}
	if p.Role == engine.RoleFox {
		if out.WerewolfFound {
			parts = append(parts, "smelled a werewolf")
		} else {
			parts = append(parts, "smelled nothing")
		}
	}
	if len(parts) == 0 {
		return ""
	}

	who := p.Stage
	if p.Role != engine.RoleNone {
		who = p.Role.String()
	}
	if len(p.Actors) > 0 {
		who += " (" + strings.Join(p.Actors, ", ") + ")"
	}
	return fmt.Sprintf("%s %d, %s: %s.", phaseTitle.String(p.Phase.String()), p.Round, who, strings.Join(parts, "; "))
}

// ============================================================================
// HTTP handlers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidTarget), errors.Is(err, engine.ErrIllegalAbility):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrWrongPhase), errors.Is(err, engine.ErrGameOver):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidSetup):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleState returns what the table may see. ?narrator=1 returns the full
// snapshot with roles and the pending prompt's choices.
func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if r.URL.Query().Get("narrator") != "1" {
		snap = snap.TableView()
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleGame(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode game: %w", err))
		return
	}
	if err := s.start(r.Context(), req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, s.snapshot())
}

type decisionResponse struct {
	Outcome engine.Outcome  `json:"outcome"`
	State   engine.Snapshot `json:"state"`
}

func (s *server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var d engine.Decision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode decision: %w", err))
		return
	}
	out, err := s.submit(r.Context(), d)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Outcome: out, State: s.snapshot()})
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.reset(r.Context())
	writeJSON(w, http.StatusOK, s.snapshot())
}

type historyResponse struct {
	GameID  string       `json:"game_id"`
	Game    *GameRecord  `json:"game,omitempty"`
	Seats   []Seat       `json:"seats,omitempty"`
	Actions []GameAction `json:"actions"`
}

// handleHistory returns the public log of the current game. ?narrator=1 adds
// the narrator-only entries and the seating chart with dealt roles.
func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	gameID := s.gameID
	s.mu.Unlock()

	resp := historyResponse{GameID: gameID, Actions: []GameAction{}}
	if gameID == "" {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	visibility := []string{VisibilityPublic}
	narrator := r.URL.Query().Get("narrator") == "1"
	if narrator {
		visibility = append(visibility, VisibilityNarrator)
	}
	actions, err := getHistory(s.db, gameID, visibility...)
	if err != nil {
		s.logError("handleHistory: getHistory", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to load history"))
		return
	}
	resp.Actions = actions

	if narrator {
		game, err := getGame(s.db, gameID)
		if err != nil {
			s.logError("handleHistory: getGame", err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to load game"))
			return
		}
		seats, err := getSeats(s.db, gameID)
		if err != nil {
			s.logError("handleHistory: getSeats", err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to load seats"))
			return
		}
		resp.Game, resp.Seats = &game, seats
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleQR serves a PNG QR code pointing players at the public URL.
func (s *server) handleQR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(s.publicURL, qrcode.Medium, 256)
	if err != nil {
		s.logError("handleQR", err)
		http.Error(w, "failed to generate QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// routes wires the handlers. API routes are gzip-compressed; the WebSocket
// route is not, since the upgrade needs the raw connection.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	api := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, compress(handler))
	}
	api("GET /api/state", s.handleState)
	api("POST /api/game", s.handleGame)
	api("POST /api/decision", s.handleDecision)
	api("POST /api/reset", s.handleReset)
	api("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /qr", s.handleQR)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	var h http.Handler = disableCaching(mux)
	if appLogger != nil && appLogger.logRequests {
		h = &LoggingHandler{Handler: h, Logger: appLogger}
	}
	return otelhttp.NewHandler(h, "narrator")
}
