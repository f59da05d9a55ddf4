package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/billion-eyes/incident-pipeline/internal/api"
	"github.com/billion-eyes/incident-pipeline/internal/bus"
	"github.com/billion-eyes/incident-pipeline/internal/classify"
	"github.com/billion-eyes/incident-pipeline/internal/config"
	"github.com/billion-eyes/incident-pipeline/internal/correlation"
	"github.com/billion-eyes/incident-pipeline/internal/imagestore"
	"github.com/billion-eyes/incident-pipeline/internal/ingestion"
	"github.com/billion-eyes/incident-pipeline/internal/logging"
	"github.com/billion-eyes/incident-pipeline/internal/responsibility"
	"github.com/billion-eyes/incident-pipeline/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := store.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.SeedAgencies(ctx, db, cfg.DB.AgencySeedPath); err != nil {
		slog.Warn("agency seeding failed", "error", err)
	}

	// Decision subsystems: label resolution, classification,
	// responsibility, correlation.
	priorities := classify.LoadPriorityTable(cfg.Classifier.PriorityPath)
	resolver := classify.NewResolver(priorities, classify.NewLevenshteinScorer(), cfg.Classifier.ScoreThreshold)
	classifier := classify.NewClassifier(classify.LoadRules(cfg.Classifier.RulesPath), resolver)

	criticality := responsibility.LoadCriticalityTable(cfg.Classifier.CriticalityPath)
	respResolver := responsibility.NewResolver(db, criticality, cfg.Responsibility.TopN, cfg.Responsibility.VertexProximity)

	codes := correlation.LoadIncidentCodes(cfg.Classifier.CodesPath)
	engine := correlation.NewEngine(db, db, respResolver, codes, cfg.Correlation.Window, cfg.Correlation.Radius)

	var images imagestore.Store = imagestore.Null{}
	if cfg.MinIO.Enabled {
		minioStore, err := imagestore.NewMinIOStore(
			cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey,
			cfg.MinIO.Bucket, cfg.MinIO.UseSSL,
		)
		if err != nil {
			logging.Fatalf("Failed to initialize image store: %v", err)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("bucket check failed, uploads may error", "error", err)
		}
		images = minioStore
	}

	broadcaster := bus.NewBroadcaster()
	pipeline := ingestion.NewPipeline(classifier, engine, db, db, db, images, broadcaster)

	var mgr *ingestion.Manager
	if cfg.Queue.Enabled {
		mgr = ingestion.NewManager(cfg, pipeline)
		if err := mgr.Start(ctx); err != nil {
			logging.Fatalf("Failed to start queue consumer: %v", err)
		}
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(5)) // 5 req/s global limit

	handler := api.NewHandler(db, db, pipeline, broadcaster)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	if mgr != nil {
		mgr.Stop()
	}
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
