package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/benefits/internal/audit"
	"github.com/abduss/benefits/internal/auth"
	"github.com/abduss/benefits/internal/benefit"
	"github.com/abduss/benefits/internal/config"
	"github.com/abduss/benefits/internal/document"
	"github.com/abduss/benefits/internal/logger"
	"github.com/abduss/benefits/internal/request"
	"github.com/abduss/benefits/internal/server"
	"github.com/abduss/benefits/internal/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	zl, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		zl.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	if cfg.Postgres.AutoMigrate {
		if err := storage.Migrate(ctx, dbPool); err != nil {
			zl.Fatal("migrate database", zap.Error(err))
		}
	}

	chunks, err := storage.OpenChunkStore(ctx, cfg, dbPool, zl)
	if err != nil {
		zl.Fatal("open chunk store", zap.Error(err))
	}
	defer chunks.Store.Close()

	docMetrics := document.InitMetrics(prometheus.DefaultRegisterer)
	go chunks.Store.RunSweeper(ctx, cfg.ChunkStore.SweepInterval, cfg.ChunkStore.OrphanTTL, func(removed int, _ error) {
		docMetrics.SweptOrphans(removed)
	})

	authService := auth.NewService(auth.NewRepository(dbPool), cfg.Auth)
	auditLog := audit.NewRepository(dbPool)
	benefitService := benefit.NewService(benefit.NewRepository(dbPool))

	requestRepo := request.NewRepository(dbPool)
	requestService := request.NewService(requestRepo, benefitService, chunks.Store, auditLog)

	binder := document.NewBinder(requestRepo, chunks.Store, auditLog, docMetrics)
	supervisor := document.NewSupervisor(binder, chunks.Store, document.PolicyFromConfig(cfg.Upload), docMetrics)
	gateway := document.NewGateway(requestRepo, chunks.Store, docMetrics)

	deps := server.Dependencies{
		Config:      cfg,
		DB:          dbPool,
		AuthService: authService,
		Benefits:    benefitService,
		Requests:    requestService,
		AuditLog:    auditLog,
		Documents: server.DocumentServices{
			Supervisor: supervisor,
			Binder:     binder,
			Gateway:    gateway,
			Metrics:    docMetrics,
		},
	}
	if chunks.MinIO != nil {
		deps.ObjectStore = chunks.MinIO
	}
	router := server.NewRouter(deps)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zl.Info("benefits API listening",
			zap.String("addr", cfg.Server.Address()),
			zap.String("chunk_store", cfg.ChunkStore.Backend),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zl.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown error", zap.Error(err))
	}
}
