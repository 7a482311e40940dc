package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	fv := registerFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := loadConfig(*fv.configPath, *fv.dotenvPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	fv.applyTo(flag.CommandLine, &cfg)

	// Set up logging to both stdout and file
	logFile, err := os.OpenFile("narrator.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	if err := InitAppLogger(cfg.toLogConfig()); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer CloseAppLogger()
	if appLogger.IsEnabled() {
		log.Println("Extended logging enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := setupTelemetry(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatal("Failed to set up telemetry:", err)
	}
	defer shutdownTelemetry(context.Background())

	db, err := openDB(cfg.DBDriver, cfg.DB)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := initDB(db); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	appLogger.WatchDB(db)
	LogDBState("after initDB")

	storyteller, err := newStoryteller(cfg)
	if err != nil {
		// The game runs without narration; only the storyteller is off.
		log.Printf("Storyteller: %v", err)
	}

	hub := newHub()
	hub.start()

	srv := newServer(db, hub, storyteller, cfg.PublicURL)
	srv.dev = cfg.Dev

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.routes(),
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	hub.stop()
	srv.stories.Wait()
}
