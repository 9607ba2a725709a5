package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/option"

	"github.com/yoockh/yoointerview/config"
	"github.com/yoockh/yoointerview/internal/api/handlers"
	"github.com/yoockh/yoointerview/internal/api/middleware"
	"github.com/yoockh/yoointerview/internal/api/routes"
	"github.com/yoockh/yoointerview/internal/cache"
	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/gateway"
	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/orchestrator"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	"github.com/yoockh/yoointerview/internal/providers/stt"
	mongorepo "github.com/yoockh/yoointerview/internal/repositories/mongo"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/storage"
	"github.com/yoockh/yoointerview/internal/workers"
)

func main() {
	cfg, err := config.Load()
	log := logger.New()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var gopts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		gopts = append(gopts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}

	model, err := newModel(ctx, cfg, gopts)
	if err != nil {
		log.WithError(err).Fatal("model init error")
	}
	defer model.Close()
	log.WithField("model", model.Name()).Info("model ready")

	var speech stt.Provider
	if cfg.SpeechCheck {
		gs, err := stt.NewGoogleSpeech(ctx, gopts...)
		if err != nil {
			log.WithError(err).Warn("speech check disabled")
		} else {
			speech = gs
			defer gs.Close()
		}
	}

	gw, err := gateway.New(model, speech, gateway.Config{
		HistoryWindow:      cfg.HistoryWindow,
		DocCharBudget:      cfg.DocCharBudget,
		CodeMinChars:       cfg.CodeMinChars,
		MinTranscriptChars: cfg.MinTranscriptChars,
		SpeechLanguage:     cfg.SpeechLanguage,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("gateway init error")
	}

	// Optional infrastructure
	var (
		bus     events.Bus = events.NewMemoryBus(log)
		reports cache.ReportCache
		dumps   mongorepo.SessionDumpRepository
		rows    pgrepo.ReportRepository
		up      storage.Uploader
	)
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, using in-process event bus")
	} else if err := config.InitRedis(cfg.RedisAddr); err != nil {
		log.WithError(err).Warn("Redis unavailable, using in-process event bus")
	} else {
		bus = events.NewRedisBus(config.RedisClient, log)
		reports = cache.NewRedisReportCache(config.RedisClient, cfg.ReportCacheTTL)
		log.Info("Redis connected")
	}
	defer bus.Close()

	if cfg.MongoURI == "" {
		log.Warn("MONGO_URI not set, session dumps are not stored")
	} else if err := config.InitMongo(cfg.MongoURI); err != nil {
		log.WithError(err).Warn("MongoDB unavailable, session dumps are not stored")
	} else {
		if err := config.EnsureMongoIndexes(cfg.MongoDB); err != nil {
			log.WithError(err).Warn("failed to ensure mongo indexes")
		}
		dumps = mongorepo.NewSessionDumpRepo(config.MongoClient.Database(cfg.MongoDB))
		defer config.CloseMongo(context.Background())
		log.Info("MongoDB connected")
	}

	if cfg.PostgresURI == "" {
		log.Warn("POSTGRES_URI not set, reports are not indexed")
	} else if err := config.InitPostgres(cfg.PostgresURI); err != nil {
		log.WithError(err).Warn("PostgreSQL unavailable, reports are not indexed")
	} else if err := pgrepo.Migrate(config.PostgresDB); err != nil {
		log.WithError(err).Warn("report migration failed, reports are not indexed")
	} else {
		rows = pgrepo.NewReportRepo(config.PostgresDB)
		log.Info("PostgreSQL connected")
	}

	if cfg.GCSBucket == "" {
		log.Warn("GCS_BUCKET not set, archives are not uploaded")
	} else if gcs, err := storage.NewGCSUploader(ctx, cfg.GCSBucket, gopts...); err != nil {
		log.WithError(err).Warn("GCS unavailable, archives are not uploaded")
	} else {
		up = gcs
		defer gcs.Close()
	}

	poolCtx, stopPool := context.WithCancel(context.Background())
	pool := &workers.AnalysisWorkerPool{NumWorkers: cfg.AnalysisWorkers, Logger: log}
	if err := pool.Start(poolCtx); err != nil {
		log.WithError(err).Fatal("worker pool error")
	}

	svc := services.NewInterviewService(gw, pool, bus,
		services.NewExportService(dumps, rows, up, log),
		reports,
		orchestrator.Config{
			MinAnswerBytes: cfg.MinAnswerBytes,
			HistoryWindow:  cfg.HistoryWindow,
			DrainTimeout:   cfg.DrainTimeout,
		}, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	r.MaxMultipartMemory = 32 << 20
	routes.RegisterRoutes(r, routes.Deps{
		Interview: handlers.NewInterviewHandler(svc, cfg.FrameMaxWidth),
		Export:    handlers.NewExportHandler(svc),
		WS:        handlers.NewWSHandler(svc, bus, cfg.FrameMaxWidth, log),
		History:   handlers.NewHistoryHandler(services.NewHistoryService(rows, dumps)),
		Auth: middleware.JWTConfig{
			Secret:    cfg.JWTSecret,
			Issuer:    cfg.JWTIssuer,
			Audience:  cfg.JWTAudience,
			DevUserID: cfg.DevUserID,
		},
	})
	if cfg.DevUserID != "" {
		log.WithField("user_id", cfg.DevUserID).Warn("authentication disabled")
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown error")
	}
	svc.Shutdown()
	stopPool()
	pool.Wait()
}

func newModel(ctx context.Context, cfg config.App, opts []option.ClientOption) (llm.Provider, error) {
	if cfg.UseVertex() {
		return llm.NewVertexGemini(ctx, cfg.GeminiProjectID, cfg.GeminiLocation, cfg.GeminiModel, opts...)
	}
	return llm.NewGeminiAPI(ctx, llm.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
}
