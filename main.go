package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/oauth2"

	"github.com/zlnvch/easel/api"
	"github.com/zlnvch/easel/api/rest"
	"github.com/zlnvch/easel/blob/s3blob"
	"github.com/zlnvch/easel/cache/redis"
	"github.com/zlnvch/easel/config"
	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/metrics"
	"github.com/zlnvch/easel/mq/sqsmq"
	"github.com/zlnvch/easel/service"
	"github.com/zlnvch/easel/store/postgres"
	"github.com/zlnvch/easel/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		logutils.Log.WithError(err).Fatal("failed to load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		logutils.Log.WithError(err).Fatal("failed to load config")
	}
	logutils.SetLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logutils.Log.WithError(err).Fatal("invalid config")
	}
	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		logutils.Log.WithError(err).Fatal("invalid jwt secret")
	}

	ctx := context.Background()

	if cfg.DevMode {
		if err := postgres.RunMigrations(cfg.Database.URL); err != nil {
			logutils.Log.WithError(err).Fatal("failed to run migrations")
		}
	}

	easelStore, err := postgres.NewPostgresEaselStore(ctx, cfg.Database.URL, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
		ConnMaxIdleTime: cfg.ConnMaxIdleTime(),
	})
	if err != nil {
		logutils.Log.WithError(err).Fatal("failed to create postgres store")
	}

	easelCache, err := redis.NewRedisEaselCache(ctx, cfg.DevMode, cfg.Redis.Endpoint)
	if err != nil {
		logutils.Log.WithError(err).Fatal("failed to create redis cache")
	}

	blobs, err := s3blob.NewS3BlobStore(ctx, s3blob.Options{
		DevMode:       cfg.DevMode,
		Endpoint:      cfg.S3.Endpoint,
		Region:        cfg.S3.Region,
		Bucket:        cfg.S3.Bucket,
		PublicBaseURL: cfg.S3.PublicBaseURL,
		UsePathStyle:  cfg.S3.UsePathStyle,
	})
	if err != nil {
		logutils.Log.WithError(err).Fatal("failed to create s3 blob store")
	}

	blobCleanupQueue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQS.Endpoint, cfg.SQS.BlobCleanupQueue)
	if err != nil {
		logutils.Log.WithError(err).Fatal("failed to create SQS queue")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	var workers sync.WaitGroup

	// The saver outlives the HTTP server and websocket hub so late session
	// messages are still flushed.
	saverCtx, stopSaver := context.WithCancel(context.Background())
	defer stopSaver()

	sessionSaver := worker.NewSessionSaver(easelStore, cfg.SessionDebounce(), collector)
	blobCleaner := worker.NewBlobCleaner(blobCleanupQueue, blobs, collector)
	workers.Add(2)
	go func() {
		defer workers.Done()
		sessionSaver.Run(saverCtx)
	}()
	go func() {
		defer workers.Done()
		blobCleaner.Run(shutdownCtx)
	}()

	oauthConfigs := map[string]*oauth2.Config{
		"github": {
			ClientID:     cfg.Auth.GithubClientID,
			ClientSecret: cfg.Auth.GithubClientSecret,
			RedirectURL:  cfg.Auth.OAuthRedirectURL,
		},
		"google": {
			ClientID:     cfg.Auth.GoogleClientID,
			ClientSecret: cfg.Auth.GoogleClientSecret,
			RedirectURL:  cfg.Auth.OAuthRedirectURL,
		},
	}

	svc, err := service.NewService(
		easelStore,
		blobs,
		easelCache,
		blobCleanupQueue,
		sessionSaver,
		collector,
		oauthConfigs,
		jwtSecret,
		service.Options{
			MaxAssetBytes:      cfg.Assets.MaxBytes,
			UploadURLTTL:       cfg.UploadURLTTL(),
			DownloadURLTTL:     cfg.DownloadURLTTL(),
			CleanupGracePeriod: cfg.CleanupGracePeriod(),
		},
	)
	if err != nil {
		logutils.Log.WithError(err).Fatal("failed to create service")
	}

	easelAPI := api.NewEaselAPI(svc, api.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		RateLimit:     rest.RateLimiterConfigFrom(cfg.RateLimit),
		Gatherer:      registry,
	}, shutdownCtx)

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	easelAPI.RegisterRoutes(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logutils.Log.WithField("port", cfg.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutils.Log.WithError(err).Fatal("server failed")
		}
	}()

	<-shutdownCtx.Done()
	logutils.Log.Info("server shutting down...")

	shutdownTimeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownTimeoutCtx); err != nil {
		logutils.Log.WithError(err).Error("http server shutdown failed")
	}
	easelAPI.Close()

	// The session saver flushes pending autosaves before returning.
	stopSaver()
	workers.Wait()

	if err := easelCache.Close(); err != nil {
		logutils.Log.WithError(err).Warn("failed to close redis client")
	}
	if err := easelStore.Close(); err != nil {
		logutils.Log.WithError(err).Warn("failed to close postgres pool")
	}
	logutils.Log.Info("shutdown complete")
}
