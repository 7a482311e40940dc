package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const storytellerSystemPrompt = `You help the narrator of a face-to-face werewolf game. When players die, you write a short atmospheric passage the narrator reads aloud to the table. Keep it to 2-3 sentences. Be gothic and dramatic, fitting for a village plagued by werewolves. Never reveal anyone's role.`

// storyFlushInterval is how often partial text is pushed while a story streams.
const storyFlushInterval = 300 * time.Millisecond

// Storyteller generates a dramatic story after deaths in the game.
// onChunk is called with each text chunk as it streams in.
type Storyteller interface {
	Tell(ctx context.Context, history []string, onChunk func(string)) (string, error)
}

// Story is a narration pushed to screens while it streams.
type Story struct {
	GameID string `json:"game_id"`
	Round  int    `json:"round"`
	Phase  string `json:"phase"`
	Text   string `json:"text"`
	Done   bool   `json:"done"`
}

type llmStoryteller struct {
	llm          llms.Model
	systemPrompt string
	callOpts     []llms.CallOption
}

func (s *llmStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			"What the table has heard so far:\n"+strings.Join(history, "\n")+
				"\n\nTell a short dramatic story (2-3 sentences) about the deaths that were just announced."),
	}

	var fullText strings.Builder
	opts := append(append([]llms.CallOption{}, s.callOpts...), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text := string(chunk)
		fullText.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
		return nil
	}))

	_, err := s.llm.GenerateContent(ctx, messages, opts...)
	return strings.TrimSpace(fullText.String()), err
}

// buildCallOpts builds LLM call options from the config.
func buildCallOpts(cfg AppConfig) []llms.CallOption {
	var opts []llms.CallOption

	if cfg.StorytellerTemperature != "" {
		if f, err := strconv.ParseFloat(cfg.StorytellerTemperature, 64); err == nil {
			opts = append(opts, llms.WithTemperature(f))
			log.Printf("Storyteller: temperature=%.2f", f)
		} else {
			log.Printf("Storyteller: invalid temperature %q: %v", cfg.StorytellerTemperature, err)
		}
	}

	if cfg.StorytellerThinking != "" {
		mode := llms.ThinkingMode(cfg.StorytellerThinking)
		switch mode {
		case llms.ThinkingModeNone, llms.ThinkingModeLow, llms.ThinkingModeMedium, llms.ThinkingModeHigh, llms.ThinkingModeAuto:
			opts = append(opts, llms.WithThinkingMode(mode))
			log.Printf("Storyteller: thinking=%s", mode)
		default:
			log.Printf("Storyteller: invalid thinking %q (valid: none, low, medium, high, auto)", cfg.StorytellerThinking)
		}
	}

	return opts
}

// storytellerHTTPClient logs provider traffic when request logging is on.
func storytellerHTTPClient() *http.Client {
	if appLogger == nil || !appLogger.logRequests {
		return http.DefaultClient
	}
	return &http.Client{Transport: &LoggingRoundTripper{Transport: http.DefaultTransport, Logger: appLogger}}
}

// newStoryteller builds the configured storyteller. It returns nil when no
// provider is configured (feature disabled).
func newStoryteller(cfg AppConfig) (Storyteller, error) {
	model := cfg.StorytellerModel
	client := storytellerHTTPClient()

	var (
		llm llms.Model
		err error
	)
	switch cfg.StorytellerProvider {
	case "":
		log.Printf("Storyteller: disabled (set storyteller_provider to enable)")
		return nil, nil
	case "ollama":
		llm, err = ollama.New(ollama.WithModel(model), ollama.WithServerURL(cfg.StorytellerOllamaURL), ollama.WithHTTPClient(client))
	case "openai":
		llm, err = openai.New(openai.WithModel(model), openai.WithHTTPClient(client))
	case "claude":
		llm, err = anthropic.New(anthropic.WithModel(model), anthropic.WithHTTPClient(client))
	case "gemini":
		llm, err = googleai.New(context.Background(), googleai.WithDefaultModel(model))
	case "groq":
		llm, err = openai.New(
			openai.WithModel(model),
			openai.WithBaseURL("https://api.groq.com/openai/v1"),
			openai.WithToken(cfg.GroqAPIKey),
			openai.WithHTTPClient(client),
		)
	case "openai-compatible":
		if cfg.StorytellerURL == "" {
			return nil, fmt.Errorf("storyteller_url is required for openai-compatible provider")
		}
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithBaseURL(cfg.StorytellerURL),
			openai.WithHTTPClient(client),
		}
		if cfg.StorytellerAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.StorytellerAPIKey))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown storyteller provider %q", cfg.StorytellerProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storyteller (%s): %w", cfg.StorytellerProvider, model, err)
	}
	log.Printf("Storyteller: %s model=%s", cfg.StorytellerProvider, model)
	return &llmStoryteller{llm: llm, systemPrompt: storytellerSystemPrompt, callOpts: buildCallOpts(cfg)}, nil
}

// maybeTellStory asynchronously streams a story into the game history after
// deaths were announced. Returns immediately; partial text is pushed as
// story frames.
func (s *server) maybeTellStory(gameID string, round int, phase string) {
	if s.storyteller == nil {
		return
	}

	s.stories.Add(1)
	go func() {
		defer s.stories.Done()

		// Fetch all public history at this point in time
		actions, err := getHistory(s.db, gameID, VisibilityPublic)
		if err != nil {
			log.Printf("maybeTellStory: fetch history: %v", err)
			return
		}
		history := make([]string, len(actions))
		for i, a := range actions {
			history[i] = a.Description
		}

		// Placeholder row (empty description = hidden from history until text arrives)
		storyRowID, err := recordAction(s.db, GameAction{
			GameID:     gameID,
			Round:      round,
			Phase:      phase,
			ActionType: ActionStory,
			Visibility: VisibilityPublic,
		})
		if err != nil {
			s.logError("maybeTellStory: insert placeholder", err)
			return
		}

		var mu sync.Mutex
		var buf strings.Builder
		push := func(text string, done bool) {
			s.db.Exec(`UPDATE game_action SET description=? WHERE rowid=?`, text, storyRowID)
			s.hub.publish(Frame{Type: FrameStory, Story: &Story{GameID: gameID, Round: round, Phase: phase, Text: text, Done: done}})
		}

		// Flush goroutine: pushes partial text to DB and screens
		done := make(chan struct{})
		flushed := make(chan struct{})
		go func() {
			defer close(flushed)
			ticker := time.NewTicker(storyFlushInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					text := strings.TrimSpace(buf.String())
					mu.Unlock()
					if text != "" {
						push(text, false)
					}
				case <-done:
					return
				}
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_, err = s.storyteller.Tell(ctx, history, func(chunk string) {
			mu.Lock()
			buf.WriteString(chunk)
			mu.Unlock()
		})

		close(done)
		<-flushed

		mu.Lock()
		finalText := strings.TrimSpace(buf.String())
		mu.Unlock()

		if err != nil || finalText == "" {
			if err != nil {
				log.Printf("maybeTellStory: storyteller error: %v", err)
			}
			// Drop any partial text already flushed and tell screens to clear it.
			if _, err := s.db.Exec(`DELETE FROM game_action WHERE rowid=?`, storyRowID); err != nil {
				s.logError("maybeTellStory: delete story", err)
			}
			s.hub.publish(Frame{Type: FrameStory, Story: &Story{GameID: gameID, Round: round, Phase: phase, Done: true}})
			return
		}

		push(finalText, true)
		log.Printf("Storyteller: completed story for game %s round %d %s", gameID, round, phase)
	}()
}
