package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"fanctl-backend/config"
	"fanctl-backend/internal/api"
	"fanctl-backend/internal/auth"
	"fanctl-backend/internal/db"
	"fanctl-backend/internal/fanctl"
	"fanctl-backend/internal/ingest"
	"fanctl-backend/internal/logger"
	"fanctl-backend/internal/model"
	"fanctl-backend/internal/mw"
	"fanctl-backend/internal/notification"
	"fanctl-backend/internal/realtime"
	"fanctl-backend/internal/store"
	"fanctl-backend/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("Failed to load .env")
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "./config/config.yaml"
	}

	flags := pflag.NewFlagSet("fand", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", defaultConfig, "path to the YAML configuration file")
	issueFor := flags.String("issue-token", "", "print a bearer token for this subject and exit")
	role := flags.String("role", "", "role claim for --issue-token (default: the configured admin role)")
	tokenTTL := flags.Duration("token-ttl", 24*time.Hour, "lifetime of the token printed by --issue-token")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", *configPath, err)
	}

	if *issueFor != "" {
		if *role == "" {
			*role = cfg.Auth.AdminRole
		}
		token, err := auth.IssueToken(*issueFor, *role, cfg.Auth.JWTSecret, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	if err := logger.Setup(cfg.Logging); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	log.Infof("Configuration loaded from %s", *configPath)

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
	log.Info("Server gracefully stopped")
}

func run(cfg *config.Config) error {
	gormDB, err := db.Init(&cfg.Database, log.IsLevelEnabled(log.DebugLevel))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)

	if err := os.MkdirAll(cfg.Import.UploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	recorder, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to connect telemetry: %w", err)
	}
	defer recorder.Close()

	respCache := mw.NewResponseCache(cfg.CacheTTL())
	opts := []fanctl.Option{
		fanctl.WithRecorder(recorder),
		fanctl.WithRecorder(fanctl.RecorderFunc(func(model.Fan) { respCache.Flush() })),
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions)
		pool.Start(ctx)
		opts = append(opts, fanctl.WithNotifier(pool))
	} else {
		log.Warn("VAPID keys are not configured, push notifications are disabled")
	}

	controller := fanctl.NewController(appStore, opts...)
	hub := realtime.NewHub(cfg.WebSocket, controller)
	go hub.Run(ctx)

	handler := api.NewHandler(cfg, appStore, ingest.NewCoordinator(appStore, cfg.Import), controller, hub, webpushOptions)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, respCache),
		ReadHeaderTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	case <-ctx.Done():
	}
	log.Info("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}
	return nil
}
