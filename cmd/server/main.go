package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/julienbonastre/tariff-helpers/internal/config"
	"github.com/julienbonastre/tariff-helpers/internal/database"
	"github.com/julienbonastre/tariff-helpers/internal/handlers"
	"github.com/julienbonastre/tariff-helpers/internal/ingest"
	"github.com/julienbonastre/tariff-helpers/internal/logging"
	"github.com/julienbonastre/tariff-helpers/internal/metrics"
	"github.com/julienbonastre/tariff-helpers/internal/workspace"
)

//go:embed web/*
var webFS embed.FS

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command line flags override the environment
	port := flag.String("port", cfg.Port, "Server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	seed := flag.Bool("seed", cfg.SeedDemoData, "Load demo tables when none are stored")
	flag.Parse()

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Development: cfg.LogDevelopment,
		Fields:      map[string]string{"service": "tariff-helpers"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(*dbPath)
	if err != nil {
		logger.Fatal("Failed to open database", zap.String("path", *dbPath), zap.Error(err))
	}
	defer db.Close()

	if err := db.SeedInitialData(); err != nil {
		logger.Fatal("Failed to seed settings", zap.Error(err))
	}

	sessionStore := newSessionStore(cfg, db, logger)

	ingestSvc := ingest.NewService(db, logger)
	if *seed {
		if err := ingestSvc.SeedDemo(context.Background()); err != nil {
			logger.Error("Failed to load demo tables", zap.Error(err))
		}
	}

	h := handlers.NewHandler(db, ingestSvc, workspace.NewStore(sessionStore), logger, handlers.Options{
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		QuoteHistoryLimit: cfg.QuoteHistoryLimit,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("/metrics", metrics.Handler())

	// Serve embedded static files
	webContent, err := fs.Sub(webFS, "web")
	if err != nil {
		logger.Fatal("Failed to load web assets", zap.Error(err))
	}
	mux.Handle("/", http.FileServer(http.FS(webContent)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler, err := scheduleSessionCleanup(cfg.SessionCleanupSchedule, sessionStore, logger)
	if err != nil {
		logger.Fatal("Failed to schedule session cleanup", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting tariff simulator", zap.String("addr", "http://localhost"+srv.Addr), zap.String("db", *dbPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// newSessionStore builds the SQLite-backed session store. Without SESSION_KEY a
// random key is used and sessions do not survive a restart.
func newSessionStore(cfg *config.Config, db *database.DB, logger *zap.Logger) *database.DBSessionStore {
	key := []byte(cfg.SessionKey)
	if len(key) == 0 {
		logger.Warn("SESSION_KEY not set - using a random key, workspaces will reset on restart")
		key = securecookie.GenerateRandomKey(32)
	}
	store := database.NewDBSessionStore(db, key)

	if cfg.SessionEncryptionKey != "" {
		sealer, err := database.NewSealer(cfg.SessionEncryptionKey)
		if err != nil {
			logger.Fatal("Invalid SESSION_ENCRYPTION_KEY", zap.Error(err))
		}
		store.SetSealer(sealer)
		logger.Info("Session encryption enabled")
	}
	return store
}

// scheduleSessionCleanup registers the expired-session sweep on a cron schedule
func scheduleSessionCleanup(spec string, store *database.DBSessionStore, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(spec, cleanupSessions(store, logger)); err != nil {
		return nil, fmt.Errorf("invalid session cleanup schedule %q: %w", spec, err)
	}
	return c, nil
}

func cleanupSessions(store *database.DBSessionStore, logger *zap.Logger) func() {
	return func() {
		n, err := store.CleanupExpiredSessions()
		if err != nil {
			logger.Warn("Session cleanup failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Debug("Expired sessions removed", zap.Int64("count", n))
		}
	}
}
