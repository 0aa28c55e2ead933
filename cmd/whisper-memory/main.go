package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/bootstrap"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/notify"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/server"
)

func main() {
	log.SetPrefix("[whisper-memory] ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Security.Mode == "production" && cfg.Security.APIToken == "" {
		log.Fatalf("WHISPER_API_TOKEN is required in production mode")
	}

	rt, err := bootstrap.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize memory engine: %v", err)
	}
	defer rt.Close()

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start memory engine: %v", err)
	}

	addr, hub, err := server.Start(ctx, cfg, rt.Engine)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Relay events from whisper-memoryctl runs against the same data directory
	watcher := notify.NewEventWatcher(cfg.Storage.DataPath, hub.Publish)
	if err := watcher.Start(); err != nil {
		log.Printf("Event relay disabled: %v", err)
	} else {
		defer watcher.Stop()
	}
	log.Printf("Memory API listening on http://%s (storage: %s, security: %s)", addr, cfg.Storage.Engine, cfg.Security.Mode)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := rt.Engine.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down memory engine: %v", err)
	}

	cancel()
	time.Sleep(500 * time.Millisecond) // Give time for connections to close
}
