package main

import (
	"bytes"
	"net/http"
	"slices"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"

	"narrator/internal/engine"
)

func TestStateBeforeGame(t *testing.T) {
	ctx := newTestContext(t)

	s := ctx.state()
	if s.Phase != "setup" || len(s.Roster) != 0 {
		t.Errorf("state = %+v", s)
	}

	var h historyResponse
	ctx.expect(http.StatusOK, "GET", "/api/history", nil, &h)
	if h.GameID != "" || len(h.Actions) != 0 {
		t.Errorf("history before a game = %+v", h)
	}
}

func TestDecisionWithoutGameConflicts(t *testing.T) {
	ctx := newTestContext(t)
	resp, body := ctx.do("POST", "/api/decision", map[string]any{})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status %d: %s", resp.StatusCode, body)
	}
}

func TestBadSetupRejected(t *testing.T) {
	ctx := newTestContext(t)

	cases := []struct {
		name string
		body any
	}{
		{"malformed json", `{"players": [`},
		{"unknown role", map[string]any{"players": []string{"A"}, "roles": []string{"dragon"}}},
		{"role count mismatch", map[string]any{"players": []string{"A", "B"}, "roles": []string{"werewolf"}, "dealt": true}},
		{"duplicate names", map[string]any{"players": []string{"A", "A"}, "roles": []string{"werewolf", "villager"}, "dealt": true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := ctx.do("POST", "/api/game", tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status %d: %s", resp.StatusCode, body)
			}
		})
	}
	if s := ctx.state(); s.Phase != "setup" {
		t.Errorf("a rejected setup changed the phase to %s", s.Phase)
	}
}

func TestStartShufflesRoles(t *testing.T) {
	ctx := newTestContext(t)
	setup := tableSetup()
	delete(setup, "dealt")

	var s wireState
	ctx.expect(http.StatusCreated, "POST", "/api/game", setup, &s)
	if s.Phase != "night" || s.Round != 1 || s.Pending.Stage != "close_eyes" {
		t.Fatalf("state = %+v", s)
	}

	var names, roles []string
	for _, p := range s.Roster {
		names = append(names, p.Name)
		roles = append(roles, p.Role)
	}
	if !slices.Equal(names, []string{"Wolf", "Sam", "Ann", "Bob"}) {
		t.Errorf("seating order changed: %v", names)
	}
	slices.Sort(roles)
	if !slices.Equal(roles, []string{"seer", "villager", "villager", "werewolf"}) {
		t.Errorf("roles are not a permutation of the deck: %v", roles)
	}
}

// TestFullGameOverHTTP plays the standard table to a village win.
func TestFullGameOverHTTP(t *testing.T) {
	ctx := newTestContext(t)
	ctx.dealTable()

	ctx.decideAt("close_eyes", nil)

	// Self-inspection is rejected and the seer is prompted again.
	resp, body := ctx.do("POST", "/api/decision", pick("Sam"))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("self-inspection: status %d: %s", resp.StatusCode, body)
	}
	out := ctx.decideAt("seer", pick("Wolf"))
	if out.Revealed != "werewolf" {
		t.Errorf("seer saw %q", out.Revealed)
	}

	ctx.decideAt("werewolf", pick("Ann"))
	out = ctx.decideAt("open_eyes", nil)
	if !slices.Equal(out.Deaths, []string{"Ann"}) {
		t.Errorf("night deaths = %v", out.Deaths)
	}

	s := ctx.state()
	if s.Phase != "day" || s.Pending.Stage != "announce" || !slices.Equal(s.Pending.Deaths, []string{"Ann"}) {
		t.Fatalf("day state = %+v", s)
	}
	ctx.decideAt("announce", nil)
	ctx.decideAt("discussion", nil)
	out = ctx.decideAt("vote", pick("Wolf"))
	if !slices.Equal(out.Deaths, []string{"Wolf"}) || out.Winner != "village" {
		t.Errorf("vote outcome = %+v", out)
	}

	s = ctx.state()
	if s.Phase != "over" || s.Winner != "village" {
		t.Errorf("final state = %+v", s)
	}
	resp, body = ctx.do("POST", "/api/decision", map[string]any{})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("decision after the game: status %d: %s", resp.StatusCode, body)
	}

	// Public history: deaths and the winner, never the seer's result
	var public historyResponse
	ctx.expect(http.StatusOK, "GET", "/api/history", nil, &public)
	text := describeHistory(public.Actions)
	for _, want := range []string{"Ann is dead.", "Wolf is dead.", "The game is over: village win."} {
		if !strings.Contains(text, want) {
			t.Errorf("public history lacks %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "saw werewolf") {
		t.Errorf("public history leaks the seer's result:\n%s", text)
	}
	if public.Game != nil || public.Seats != nil {
		t.Errorf("public history carries the seating chart")
	}

	var narrator historyResponse
	ctx.expect(http.StatusOK, "GET", "/api/history?narrator=1", nil, &narrator)
	text = describeHistory(narrator.Actions)
	if !strings.Contains(text, "Night 1, seer (Sam): chose Wolf; saw werewolf.") {
		t.Errorf("narrator history lacks the seer's result:\n%s", text)
	}
	if narrator.Game == nil || narrator.Game.Winner != "village" || narrator.Game.Phase != "over" {
		t.Errorf("game record = %+v", narrator.Game)
	}
	alive := map[string]bool{}
	for _, seat := range narrator.Seats {
		alive[seat.Name] = seat.IsAlive
	}
	if alive["Ann"] || alive["Wolf"] || !alive["Sam"] || !alive["Bob"] {
		t.Errorf("seats = %+v", narrator.Seats)
	}
}

func describeHistory(actions []GameAction) string {
	var b strings.Builder
	for _, a := range actions {
		b.WriteString(a.Description)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestResetDiscardsGame(t *testing.T) {
	ctx := newTestContext(t)
	ctx.dealTable()
	ctx.decide(nil)

	var s wireState
	ctx.expect(http.StatusOK, "POST", "/api/reset", nil, &s)
	if s.Phase != "setup" || len(s.Roster) != 0 {
		t.Errorf("state after reset = %+v", s)
	}
	resp, _ := ctx.do("POST", "/api/decision", map[string]any{})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("decision after reset: status %d", resp.StatusCode)
	}

	// A new game can be dealt right away.
	ctx.dealTable()
	if s := ctx.state(); s.Phase != "night" || s.Round != 1 {
		t.Errorf("state after redeal = %+v", s)
	}
}

func TestSubmitSpans(t *testing.T) {
	ctx := newTestContext(t)
	ctx.dealTable()
	ctx.decide(nil)
	ctx.do("POST", "/api/decision", pick("Nobody"))

	var submits []codes.Code
	var started bool
	for _, span := range ctx.spans.Ended() {
		switch span.Name() {
		case "narrator.start":
			started = true
		case "narrator.submit":
			submits = append(submits, span.Status().Code)
		}
	}
	if !started {
		t.Error("no narrator.start span")
	}
	if !slices.Equal(submits, []codes.Code{codes.Unset, codes.Error}) {
		t.Errorf("submit span statuses = %v", submits)
	}
}

func TestQRCode(t *testing.T) {
	ctx := newTestContext(t)
	resp, body := ctx.do("GET", "/qr", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("body is not a PNG")
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", resp.Header.Get("Cache-Control"))
	}
}

func TestAPIResponsesCompressed(t *testing.T) {
	ctx := newTestContext(t)
	resp, _ := ctx.do("GET", "/api/state", nil)
	// The client asked for gzip implicitly and decoded it transparently.
	if !resp.Uncompressed {
		t.Error("state response was not gzip-encoded")
	}
}

func TestDescribeDecision(t *testing.T) {
	cases := []struct {
		prompt engine.Prompt
		d      engine.Decision
		out    engine.Outcome
		want   string
	}{
		{
			engine.Prompt{Phase: engine.PhaseNight, Round: 2, Stage: "close_eyes"},
			engine.Decision{}, engine.Outcome{},
			"",
		},
		{
			engine.Prompt{Phase: engine.PhaseNight, Round: 1, Stage: "fox", Role: engine.RoleFox, Actors: []string{"Finn"}},
			engine.Decision{Targets: []string{"A", "B", "C"}}, engine.Outcome{},
			"Night 1, fox (Finn): chose A, B, C; smelled nothing.",
		},
		{
			engine.Prompt{Phase: engine.PhaseDay, Round: 3, Stage: "vote"},
			engine.Decision{Tie: true}, engine.Outcome{},
			"Day 3, vote: declared a tie.",
		},
		{
			engine.Prompt{Phase: engine.PhaseNight, Round: 1, Stage: "wolfhound", Role: engine.RoleWolfhound, Actors: []string{"Rex"}},
			engine.Decision{Side: engine.SideWerewolf}, engine.Outcome{},
			"Night 1, wolfhound (Rex): joined the werewolf side.",
		},
	}
	for _, tc := range cases {
		if got := describeDecision(tc.prompt, tc.d, tc.out); got != tc.want {
			t.Errorf("describeDecision(%s) = %q, want %q", tc.prompt.Stage, got, tc.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	g := &engine.Game{}
	_, wrongPhase := g.Submit(engine.Decision{})
	if got := statusFor(wrongPhase); got != http.StatusConflict {
		t.Errorf("wrong phase -> %d", got)
	}
	_, badSetup := engine.New(engine.Setup{Players: []string{"A"}})
	if got := statusFor(badSetup); got != http.StatusBadRequest {
		t.Errorf("invalid setup -> %d", got)
	}
	if got := statusFor(http.ErrBodyNotAllowed); got != http.StatusInternalServerError {
		t.Errorf("unknown error -> %d", got)
	}
}
