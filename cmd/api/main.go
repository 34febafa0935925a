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

	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/config"
	"github.com/edukinara/happybar-sub000/internal/counting"
	"github.com/edukinara/happybar-sub000/internal/database"
	"github.com/edukinara/happybar-sub000/internal/handlers"
	"github.com/edukinara/happybar-sub000/internal/logger"
	"github.com/edukinara/happybar-sub000/internal/services/counts"
	appsync "github.com/edukinara/happybar-sub000/internal/sync"
	"github.com/edukinara/happybar-sub000/internal/utils"
	"github.com/edukinara/happybar-sub000/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment:     cfg.IsDevelopment(),
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	})
	defer log.Sync()

	// 2. Initialize database (sqlite file, external or embedded postgres)
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	repo := counting.NewRepository(db.DB)
	if err := repo.Migrate(); err != nil {
		log.Fatal("schema migration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := repo.Load(ctx)
	if err != nil {
		log.Fatal("failed to load persisted counts", zap.Error(err))
	}

	syncCfg := config.LoadSyncConfig()
	hub := websocket.NewHub(log)

	// 3. Count engine
	opts := []counting.Option{
		counting.WithPersister(repo),
		counting.WithNotifier(hub),
		counting.WithBackgroundTimeout(time.Duration(syncCfg.BackgroundTimeout) * time.Second),
	}
	if cfg.OfflineOnly() {
		log.Warn("BACKEND_URL not set, counting offline only")
	} else {
		client, err := counts.NewClient(counts.Config{
			BaseURL:        cfg.Backend.URL,
			Token:          cfg.Backend.Token,
			OrganizationID: cfg.Backend.OrganizationID,
			Timeout:        time.Duration(cfg.Backend.Timeout) * time.Second,
		}, log)
		if err != nil {
			log.Fatal("invalid backend configuration", zap.Error(err))
		}
		opts = append(opts, counting.WithReconciler(client))
	}

	store := counting.NewStore(log, opts...)
	store.Restore(snap)
	log.Info("count store restored",
		zap.Int("sessions", len(snap.Sessions)),
		zap.Int("items", len(snap.Items)),
		zap.Bool("online", store.Online()))

	// 4. Sync
	metrics := appsync.NewMetrics()
	reconciler := appsync.NewReconciler(store, log, metrics)
	scheduler := appsync.NewScheduler(reconciler.Run, log,
		appsync.WithInterval(time.Duration(syncCfg.AutoSyncInterval)*time.Second),
		appsync.WithRunTimeout(time.Duration(syncCfg.SyncTimeout)*time.Second),
		appsync.WithFireOnStart(syncCfg.SyncOnStartup),
		appsync.WithFireOnForeground(syncCfg.SyncOnForeground),
		appsync.WithMetrics(metrics),
	)
	hub.OnAppState(func(state string) {
		if st := appsync.AppState(state); st.Valid() {
			scheduler.OnAppStateChange(st)
		}
	})

	go hub.Run(ctx)

	if syncCfg.Enabled && store.Online() {
		if err := scheduler.Start(ctx); err != nil {
			log.Warn("sync scheduler failed to start", zap.Error(err))
		}
	}

	// 5. HTTP
	router := handlers.NewRouter(handlers.Deps{
		Store:      store,
		Scheduler:  scheduler,
		Reconciler: reconciler,
		Metrics:    metrics,
		Hub:        hub,
		JWTSecret:  cfg.JWTSecret,
		Log:        log,
	})

	if cfg.IsDevelopment() {
		if token, err := utils.GenerateDeviceToken("dev-device", "admin", cfg.JWTSecret, 0); err == nil {
			log.Info("development device token", zap.String("token", token))
		}
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.Strings("lan_ips", utils.GetLocalIPs()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	scheduler.Stop()
	// let fire-and-forget transitions finish writing through
	store.Wait()

	// Close database (this also stops embedded PostgreSQL)
	if err := db.Close(); err != nil {
		log.Warn("database close error", zap.Error(err))
	}

	log.Info("shutdown complete")
}
