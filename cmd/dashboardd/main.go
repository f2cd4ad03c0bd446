package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/pflag"

	"mc-dashboard-backend/config"
	"mc-dashboard-backend/internal/api"
	"mc-dashboard-backend/internal/db"
	"mc-dashboard-backend/internal/notification"
	"mc-dashboard-backend/internal/poller"
	"mc-dashboard-backend/internal/rcon"
	"mc-dashboard-backend/internal/remote"
	"mc-dashboard-backend/internal/snapshot"
	"mc-dashboard-backend/internal/stats"
	"mc-dashboard-backend/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "mc-dashboard ", log.LstdFlags)

	var configPath string
	flagSet := pflag.NewFlagSet("dashboardd", pflag.ExitOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default: $CONFIG_PATH or ./config/config.yaml)")
	flagSet.Parse(os.Args[1:])

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatalf("failed to load timezone %s: %v", cfg.Timezone, err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)

	// Sessions left open by a previous run cannot be trusted.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	closed, err := appStore.CloseOrphans(ctx)
	if err != nil {
		logger.Fatalf("failed to close orphaned sessions: %v", err)
	}
	if closed > 0 {
		logger.Printf("closed %d orphaned sessions from a previous run", closed)
	}

	cache := snapshot.New(cfg.Poller.StaleAfter)
	connector := remote.NewSSHConnector(cfg.SSH)
	statsCollector := stats.NewCollector(connector, cfg.SSH)
	registry := notification.NewRegistry(gormDB)

	var wg sync.WaitGroup

	// Join notifications are optional.
	var webpushOptions *webpush.Options
	var notifier poller.Notifier
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, registry, webpushOptions)
		pool.Start(ctx)
		notifier = pool
	} else {
		logger.Println("VAPID keys not configured; join notifications disabled")
	}

	if !cfg.Poller.Disabled {
		pollerSvc := poller.NewService(cfg.Poller, rcon.NewClient(cfg.RCON),
			remote.NewCollector(connector, cfg.SSH), appStore, cache, notifier)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pollerSvc.Run(ctx)
		}()
	}

	if !cfg.Stats.Disabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statsCollector.Run(ctx, cfg.Stats.Interval, cfg.Stats.InitialDelay)
		}()
	}

	// Initialize router
	handler := api.NewHandler(cache, appStore, statsCollector, registry, webpushOptions, loc)
	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	// A poll cycle blocked on a source is bounded by the client timeouts.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Println("background tasks did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
