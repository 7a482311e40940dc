package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig holds all server configuration.
// Priority (lowest → highest): defaults < .env file < env vars < JSON config file < CLI flags.
type AppConfig struct {
	// Server
	DBDriver  string `json:"db_driver" env:"DB_DRIVER"`   // sqlite3 (cgo) | sqlite (pure Go)
	DB        string `json:"db" env:"DB"`                 // database connection string
	Dev       bool   `json:"dev" env:"DEV"`               // dev mode: verbose logging, db dumps on errors
	Addr      string `json:"addr" env:"ADDR"`             // HTTP listen address
	PublicURL string `json:"public_url" env:"PUBLIC_URL"` // encoded in the join QR code

	// Logging (extended diagnostics, off by default)
	LogOutputDir string `json:"log_output_dir" env:"LOG_OUTPUT_DIR"`
	LogRequests  bool   `json:"log_requests" env:"LOG_REQUESTS"`
	LogDB        bool   `json:"log_db" env:"LOG_DB"`
	LogWS        bool   `json:"log_ws" env:"LOG_WS"`
	LogDebug     bool   `json:"log_debug" env:"LOG_DEBUG"`

	// Tracing; empty endpoint disables the exporter
	OTLPEndpoint string `json:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `json:"service_name" env:"OTEL_SERVICE_NAME"`

	// AI Storyteller
	StorytellerProvider    string `json:"storyteller_provider" env:"STORYTELLER_PROVIDER"`       // ollama | openai | claude | gemini | groq | openai-compatible
	StorytellerModel       string `json:"storyteller_model" env:"STORYTELLER_MODEL"`             // model name
	StorytellerOllamaURL   string `json:"storyteller_ollama_url" env:"STORYTELLER_OLLAMA_URL"`   // Ollama server URL
	StorytellerURL         string `json:"storyteller_url" env:"STORYTELLER_URL"`                 // base URL for openai-compatible
	StorytellerAPIKey      string `json:"storyteller_api_key" env:"STORYTELLER_API_KEY"`         // API key for openai-compatible
	StorytellerTemperature string `json:"storyteller_temperature" env:"STORYTELLER_TEMPERATURE"` // float 0-1 as string
	StorytellerThinking    string `json:"storyteller_thinking" env:"STORYTELLER_THINKING"`       // none | low | medium | high | auto
	GroqAPIKey             string `json:"groq_api_key" env:"GROQ_API_KEY"`                       // API key for groq provider
}

func (cfg AppConfig) toLogConfig() LogConfig {
	return LogConfig{
		OutputDir:   cfg.LogOutputDir,
		LogRequests: cfg.LogRequests,
		LogDB:       cfg.LogDB,
		LogWS:       cfg.LogWS,
		Debug:       cfg.LogDebug,
	}
}

func defaultConfig() AppConfig {
	return AppConfig{
		DBDriver:             "sqlite3",
		DB:                   "file::memory:?cache=shared",
		Addr:                 ":8080",
		PublicURL:            "http://localhost:8080",
		ServiceName:          "narrator",
		StorytellerOllamaURL: "http://localhost:11434",
	}
}

// loadConfig builds a config by layering: defaults → .env file → env vars → JSON config file.
// CLI flag overrides are applied separately by flagValues.applyTo after flag.Parse.
func loadConfig(configPath, dotenvPath string) (AppConfig, error) {
	cfg := defaultConfig()

	// Layer 1: .env file. godotenv does not override variables already set
	// in the process environment.
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err == nil {
			log.Printf("Config: loaded %s", dotenvPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	// Layer 2: env vars. Unset variables leave the defaults alone.
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	// Layer 3: JSON config file. Only fields present in the file override env vars.
	if data, err := os.ReadFile(configPath); err == nil {
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(data, &overlay); err != nil {
			log.Printf("Config: failed to parse %s: %v", configPath, err)
		} else {
			applyJSONOverlay(&cfg, overlay)
			log.Printf("Config: loaded from %s", configPath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Config: failed to read %s: %v", configPath, err)
	}

	return cfg, nil
}

// applyJSONOverlay only sets fields that are explicitly present in the JSON map.
func applyJSONOverlay(cfg *AppConfig, m map[string]json.RawMessage) {
	str := func(key string, dst *string) {
		if v, ok := m[key]; ok {
			json.Unmarshal(v, dst)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := m[key]; ok {
			json.Unmarshal(v, dst)
		}
	}
	str("db_driver", &cfg.DBDriver)
	str("db", &cfg.DB)
	boolean("dev", &cfg.Dev)
	str("addr", &cfg.Addr)
	str("public_url", &cfg.PublicURL)
	str("log_output_dir", &cfg.LogOutputDir)
	boolean("log_requests", &cfg.LogRequests)
	boolean("log_db", &cfg.LogDB)
	boolean("log_ws", &cfg.LogWS)
	boolean("log_debug", &cfg.LogDebug)
	str("otlp_endpoint", &cfg.OTLPEndpoint)
	str("service_name", &cfg.ServiceName)
	str("storyteller_provider", &cfg.StorytellerProvider)
	str("storyteller_model", &cfg.StorytellerModel)
	str("storyteller_ollama_url", &cfg.StorytellerOllamaURL)
	str("storyteller_url", &cfg.StorytellerURL)
	str("storyteller_api_key", &cfg.StorytellerAPIKey)
	str("storyteller_temperature", &cfg.StorytellerTemperature)
	str("storyteller_thinking", &cfg.StorytellerThinking)
	str("groq_api_key", &cfg.GroqAPIKey)
}

// flagValues holds pointers to all registered CLI flags.
type flagValues struct {
	configPath             *string
	dotenvPath             *string
	dbDriver               *string
	db                     *string
	dev                    *bool
	addr                   *string
	publicURL              *string
	logOutputDir           *string
	logRequests            *bool
	logDB                  *bool
	logWS                  *bool
	logDebug               *bool
	otlpEndpoint           *string
	storytellerProvider    *string
	storytellerModel       *string
	storytellerOllamaURL   *string
	storytellerURL         *string
	storytellerAPIKey      *string
	storytellerTemperature *string
	storytellerThinking    *string
	groqAPIKey             *string
}

// registerFlags registers all CLI flags on flags and returns pointers to their values.
// Parse flags after this, then applyTo to layer them over the loaded config.
func registerFlags(flags *flag.FlagSet) flagValues {
	return flagValues{
		configPath:             flags.String("config", "config.json", "path to JSON config file"),
		dotenvPath:             flags.String("env-file", ".env", "path to .env file"),
		dbDriver:               flags.String("db-driver", "", "database driver (sqlite3|sqlite)"),
		db:                     flags.String("db", "", "database connection string"),
		dev:                    flags.Bool("dev", false, "enable development mode (verbose logging, db dumps on error)"),
		addr:                   flags.String("addr", "", "HTTP listen address (e.g. :8080)"),
		publicURL:              flags.String("public-url", "", "URL encoded in the join QR code"),
		logOutputDir:           flags.String("log-output-dir", "", "directory for extended log files"),
		logRequests:            flags.Bool("log-requests", false, "log HTTP requests and responses"),
		logDB:                  flags.Bool("log-db", false, "log database dumps"),
		logWS:                  flags.Bool("log-ws", false, "log WebSocket messages"),
		logDebug:               flags.Bool("log-debug", false, "enable debug logging"),
		otlpEndpoint:           flags.String("otlp-endpoint", "", "OTLP/HTTP trace endpoint URL"),
		storytellerProvider:    flags.String("storyteller-provider", "", "AI storyteller provider (ollama|openai|claude|gemini|groq|openai-compatible)"),
		storytellerModel:       flags.String("storyteller-model", "", "AI storyteller model name"),
		storytellerOllamaURL:   flags.String("storyteller-ollama-url", "", "Ollama server URL"),
		storytellerURL:         flags.String("storyteller-url", "", "base URL for openai-compatible provider"),
		storytellerAPIKey:      flags.String("storyteller-api-key", "", "API key for storyteller provider"),
		storytellerTemperature: flags.String("storyteller-temperature", "", "sampling temperature 0-1"),
		storytellerThinking:    flags.String("storyteller-thinking", "", "thinking mode: none|low|medium|high|auto"),
		groqAPIKey:             flags.String("groq-api-key", "", "Groq API key"),
	}
}

// applyTo overlays any CLI flags that were explicitly set onto cfg.
// Flags that were not passed on the command line are ignored (env/JSON values win).
func (fv flagValues) applyTo(flags *flag.FlagSet, cfg *AppConfig) {
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db-driver":
			cfg.DBDriver = *fv.dbDriver
		case "db":
			cfg.DB = *fv.db
		case "dev":
			cfg.Dev = *fv.dev
		case "addr":
			cfg.Addr = *fv.addr
		case "public-url":
			cfg.PublicURL = *fv.publicURL
		case "log-output-dir":
			cfg.LogOutputDir = *fv.logOutputDir
		case "log-requests":
			cfg.LogRequests = *fv.logRequests
		case "log-db":
			cfg.LogDB = *fv.logDB
		case "log-ws":
			cfg.LogWS = *fv.logWS
		case "log-debug":
			cfg.LogDebug = *fv.logDebug
		case "otlp-endpoint":
			cfg.OTLPEndpoint = *fv.otlpEndpoint
		case "storyteller-provider":
			cfg.StorytellerProvider = *fv.storytellerProvider
		case "storyteller-model":
			cfg.StorytellerModel = *fv.storytellerModel
		case "storyteller-ollama-url":
			cfg.StorytellerOllamaURL = *fv.storytellerOllamaURL
		case "storyteller-url":
			cfg.StorytellerURL = *fv.storytellerURL
		case "storyteller-api-key":
			cfg.StorytellerAPIKey = *fv.storytellerAPIKey
		case "storyteller-temperature":
			cfg.StorytellerTemperature = *fv.storytellerTemperature
		case "storyteller-thinking":
			cfg.StorytellerThinking = *fv.storytellerThinking
		case "groq-api-key":
			cfg.GroqAPIKey = *fv.groqAPIKey
		}
	})
}
