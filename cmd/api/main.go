package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"mediastore/internal/config"
	"mediastore/internal/database"
	"mediastore/internal/domain/asset"
	"mediastore/internal/domain/chat"
	"mediastore/internal/middleware"
	jwtsvc "mediastore/internal/pkg/jwt"
	"mediastore/internal/pkg/lock"
	"mediastore/internal/pkg/logger"
	"mediastore/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logg.Sync()

	db, err := database.Connect(cfg.DatabaseURL, logg)
	if err != nil {
		logg.Fatal("db connect failed", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		logg.Fatal("migration failed", "error", err)
	}

	root, err := asset.NewRoot(cfg.Media.StorageRoot)
	if err != nil {
		logg.Fatal("storage root unavailable", "root", cfg.Media.StorageRoot, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := asset.Options{
		TTLDays:       cfg.Media.TTLDays,
		PublicBaseURL: cfg.Media.PublicBaseURL,
	}
	if cfg.S3.Enabled() {
		presigner, err := storage.NewS3Presigner(ctx, storage.S3Config{
			Region:     cfg.S3.Region,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Endpoint:   cfg.S3.Endpoint,
			PresignTTL: cfg.S3.PresignTTL,
		})
		if err != nil {
			logg.Fatal("s3 presigner init failed", "error", err)
		}
		opts.Signer = presigner
	}

	chatRepo := chat.NewRepository(db)
	assetRepo := asset.NewRepository(db)
	assetService := asset.NewService(assetRepo, root, asset.NewOwners(chatRepo), opts, logg)
	assetHandler := asset.NewHandler(assetService, asset.Limits{
		RawMaxBytes:    cfg.Media.RawMaxBytes,
		InlineMaxBytes: cfg.Media.InlineMaxBytes,
	}, logg)

	locker := lock.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "mediastore:")
	reaper := asset.NewReaper(assetRepo, root, locker, cfg.Media.ReaperInterval, cfg.Media.ReaperBatch, logg)

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL)

	if config.IsProdLike(cfg.AppEnv) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(logg), middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	asset.RegisterRoutes(v1, assetHandler, middleware.JWTAuth(j), middleware.OptionalJWTAuth(j))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	reaper.Start(ctx)

	go func() {
		logg.Info("server listening", "addr", srv.Addr, "storage_root", root.Dir(), "ttl_days", cfg.Media.TTLDays)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logg.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("graceful shutdown failed", "error", err)
	}
	reaper.Stop()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logg.Info("server stopped")
}
