package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/dcervantes/rutalert/internal/cleanup"
	"github.com/dcervantes/rutalert/internal/config"
	"github.com/dcervantes/rutalert/internal/dispatch"
	"github.com/dcervantes/rutalert/internal/fcm"
	"github.com/dcervantes/rutalert/internal/onesignal"
	"github.com/dcervantes/rutalert/internal/registry"
	"github.com/dcervantes/rutalert/internal/scheduler"
	"github.com/dcervantes/rutalert/internal/server"
	"github.com/dcervantes/rutalert/internal/storage"
	"github.com/dcervantes/rutalert/internal/trigger"
)

func main() {
	cfg := config.Load()

	var store storage.Store
	var err error

	switch cfg.DatabaseDriver {
	case "sqlite":
		store, err = storage.NewSQLStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Cannot create store: %v", err)
		}
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Cannot create store: %v", err)
		}
	default:
		log.Fatalf("Unsupported database driver: %s", cfg.DatabaseDriver)
		return
	}

	// Clients are built once here and injected; nothing reinitializes
	// per invocation.
	var fcmClient *fcm.Client
	var userRegistry *registry.FirebaseClient

	serviceAccountBytes, err := os.ReadFile(cfg.FirebaseCredentials)
	if err != nil {
		log.Printf("FCM disabled: cannot read service account: %v", err)
	} else {
		fcmClient, err = fcm.NewClient(context.Background(), serviceAccountBytes, cfg.SenderCount)
		if err != nil {
			log.Printf("FCM disabled: cannot create client: %v", err)
			fcmClient = nil
		} else {
			log.Println("FCM client initialized")
		}

		userRegistry, err = registry.NewFirebaseClient(context.Background(), serviceAccountBytes, cfg.FirebaseDatabaseURL)
		if err != nil {
			log.Printf("Registry disabled: cannot create client: %v", err)
			userRegistry = nil
		} else {
			log.Println("Registry client initialized")
		}
	}

	var transport dispatch.Transport

	switch cfg.TransportKind {
	case "fcm":
		if fcmClient == nil || userRegistry == nil {
			log.Fatal("FCM transport selected but FCM client or registry is unavailable")
		}
		transport = dispatch.NewDirectTransport(userRegistry, fcmClient, cfg.BatchSize)
		log.Println("Using direct token transport")
	case "onesignal":
		if cfg.OneSignalAppID == "" || cfg.OneSignalAPIKey == "" {
			log.Fatal("OneSignal transport selected but ONESIGNAL_APP_ID or ONESIGNAL_API_KEY is not configured")
		}
		transport = dispatch.NewTagTransport(onesignal.NewClient(cfg.OneSignalAppID, cfg.OneSignalAPIKey))
		log.Println("Using tag broadcast transport")
	default:
		log.Fatalf("Unsupported transport kind: %s", cfg.TransportKind)
	}

	handler := trigger.NewHandler(transport, store)

	var sanitizer *cleanup.Sanitizer
	var cleanupScheduler *scheduler.Scheduler

	if fcmClient != nil && userRegistry != nil {
		sanitizer = cleanup.NewSanitizer(userRegistry, fcmClient, cfg.ValidatorCount)
		cleanupScheduler = scheduler.New(sanitizer, cfg.CleanupIntervalHours)
		cleanupScheduler.Start()
		log.Printf("Token cleanup scheduled every %d hour(s)", cfg.CleanupIntervalHours)
	} else {
		log.Println("Token cleanup disabled: FCM client or registry is unavailable")
	}

	httpServer := server.New(handler, sanitizer, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpServer.Start(cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()
	<-ctx.Done()

	log.Println("Shutdown signal received, stopping app")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if cleanupScheduler != nil {
		cleanupScheduler.Stop()
	}

	if err := store.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Server exiting")
}
