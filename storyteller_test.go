package main

import (
	"errors"
	"slices"
	"testing"
)

// playFirstNight runs the standard table through night 1, where Ann dies.
func playFirstNight(ctx *TestContext) {
	ctx.t.Helper()
	ctx.dealTable()
	ctx.decide(nil)
	ctx.decide(pick("Wolf"))
	ctx.decide(pick("Ann"))
	ctx.decide(nil)
}

func countStories(t *testing.T, ctx *TestContext) int {
	t.Helper()
	var n int
	if err := ctx.db.Get(&n, `SELECT COUNT(*) FROM game_action WHERE action_type = ?`, ActionStory); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestStoryStreamsAfterDeaths(t *testing.T) {
	teller := &mockStoryteller{
		chunks: []string{"Mist crept ", "over the square. ", "Ann did not wake."},
		calls:  make(chan []string, 4),
	}
	ctx := newTestContextWith(t, "sqlite3", teller)
	conn, _ := ctx.dial()

	playFirstNight(ctx)

	f := readUntil(t, conn, FrameStory, func(f wireFrame) bool { return f.Story.Done })
	want := "Mist crept over the square. Ann did not wake."
	if f.Story.Text != want || f.Story.Round != 1 || f.Story.Phase != "night" {
		t.Errorf("story = %+v", f.Story)
	}

	ctx.server.stories.Wait()
	history := <-teller.calls
	if !slices.Contains(history, "Ann is dead.") {
		t.Errorf("storyteller history = %v", history)
	}
	if slices.Contains(history, "Night 1, seer (Sam): chose Wolf; saw werewolf.") {
		t.Errorf("storyteller saw narrator-only history")
	}

	actions, err := getHistory(ctx.db, f.Story.GameID, VisibilityPublic)
	if err != nil {
		t.Fatal(err)
	}
	last := actions[len(actions)-1]
	if last.ActionType != ActionStory || last.Description != want {
		t.Errorf("last public entry = %+v", last)
	}
}

func TestNoStoryWithoutDeaths(t *testing.T) {
	teller := &mockStoryteller{chunks: []string{"unused"}, calls: make(chan []string, 4)}
	ctx := newTestContextWith(t, "sqlite3", teller)
	ctx.dealTable()
	ctx.decide(nil)
	ctx.decide(pick("Wolf"))
	ctx.decide(pick("Ann"))
	ctx.server.stories.Wait()

	if len(teller.calls) != 0 || countStories(t, ctx) != 0 {
		t.Error("a story was told before anyone died")
	}
}

func TestFailedStoryLeavesNoTrace(t *testing.T) {
	for name, teller := range map[string]*mockStoryteller{
		"error": {err: errors.New("model unavailable")},
		"empty": {chunks: []string{"  ", "\n"}},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := newTestContextWith(t, "sqlite3", teller)
			playFirstNight(ctx)
			ctx.server.stories.Wait()
			if n := countStories(t, ctx); n != 0 {
				t.Errorf("%d story rows left behind", n)
			}
		})
	}
}

func TestStoryFailingMidStreamIsWithdrawn(t *testing.T) {
	teller := &mockStoryteller{
		chunks: []string{"Mist crept over"},
		pause:  3 * storyFlushInterval,
		err:    errors.New("connection reset"),
	}
	ctx := newTestContextWith(t, "sqlite3", teller)
	conn, _ := ctx.dial()

	playFirstNight(ctx)

	f := readUntil(t, conn, FrameStory, nil)
	if f.Story.Done || f.Story.Text != "Mist crept over" {
		t.Fatalf("partial story = %+v", f.Story)
	}
	f = readUntil(t, conn, FrameStory, func(f wireFrame) bool { return f.Story.Done })
	if f.Story.Text != "" {
		t.Errorf("closing story frame = %+v", f.Story)
	}

	ctx.server.stories.Wait()
	if n := countStories(t, ctx); n != 0 {
		t.Errorf("%d story rows left behind", n)
	}
}

func TestNewStoryteller(t *testing.T) {
	st, err := newStoryteller(AppConfig{})
	if st != nil || err != nil {
		t.Errorf("no provider: got %v, %v", st, err)
	}

	if _, err := newStoryteller(AppConfig{StorytellerProvider: "oracle"}); err == nil {
		t.Error("unknown provider accepted")
	}
	if _, err := newStoryteller(AppConfig{StorytellerProvider: "openai-compatible"}); err == nil {
		t.Error("openai-compatible without a URL accepted")
	}

	st, err = newStoryteller(AppConfig{
		StorytellerProvider:    "ollama",
		StorytellerModel:       "llama3",
		StorytellerOllamaURL:   "http://127.0.0.1:11434",
		StorytellerTemperature: "0.7",
		StorytellerThinking:    "low",
	})
	if err != nil {
		t.Fatal(err)
	}
	llm, ok := st.(*llmStoryteller)
	if !ok || len(llm.callOpts) != 2 {
		t.Errorf("storyteller = %#v", st)
	}
}

func TestBuildCallOptsSkipsInvalidValues(t *testing.T) {
	opts := buildCallOpts(AppConfig{StorytellerTemperature: "warm", StorytellerThinking: "deep"})
	if len(opts) != 0 {
		t.Errorf("got %d options", len(opts))
	}
}
