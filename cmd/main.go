package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/config"
	"github.com/oksasatya/account-guard/internal/application"
	"github.com/oksasatya/account-guard/internal/container"
	repo "github.com/oksasatya/account-guard/internal/domain/repository"
	"github.com/oksasatya/account-guard/internal/infrastructure/checkpoint"
	eslog "github.com/oksasatya/account-guard/internal/infrastructure/elasticsearch"
	"github.com/oksasatya/account-guard/internal/infrastructure/memory"
	pginfra "github.com/oksasatya/account-guard/internal/infrastructure/postgres"
	"github.com/oksasatya/account-guard/internal/infrastructure/redisstore"
	"github.com/oksasatya/account-guard/internal/interface/middleware"
	"github.com/oksasatya/account-guard/internal/router"
	"github.com/oksasatya/account-guard/pkg/helpers"
	"github.com/oksasatya/account-guard/pkg/mailer"
	mailtpl "github.com/oksasatya/account-guard/pkg/mailer/templates"
	"github.com/oksasatya/account-guard/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env, cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx := context.Background()
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Sign-up interest log (optional)
	var interest *pginfra.InterestRepository
	if cfg.InterestLogEnabled {
		pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), pginfra.PoolOptions{
			AppName:         cfg.AppName,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: cfg.DBMaxConnLife,
		}, logger)
		if err != nil {
			logger.Fatalf("failed to connect to postgres: %v", err)
		}
		closers = append(closers, pool.Close)
		if err := pginfra.RunMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			logger.Fatalf("migration failed: %v", err)
		}
		container.SetPGPool(pool)
		interest = pginfra.NewInterestRepository(pool)
	}

	// Redis: sessions and request rate limits
	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	closers = append(closers, func() { _ = rdb.Close() })
	if err := helpers.PingRedis(ctx, rdb, 3*time.Second); err != nil {
		logger.Fatalf("redis unavailable: %v", err)
	}

	// Lockout event index (optional)
	var lockouts *eslog.LockoutLog
	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.Fatalf("failed to init elasticsearch client: %v", err)
		}
		container.SetES(es)
		lockouts = eslog.NewLockoutLog(es, cfg.ESSecurityIndex, logger)
		lockouts.Start()
	}

	// Mail
	dispatcher := mailer.NewDispatcher(mailTransport(cfg, logger, &closers), cfg.MailQueueSize, logger)
	dispatcher.Start()

	// Core state
	accounts := memory.NewAccountStore()
	trackers := memory.NewTrackerStore()

	checkpoints := newCheckpointer(ctx, cfg, accounts, trackers, logger, &closers)
	if _, err := checkpoints.Load(ctx); err != nil {
		logger.Fatalf("checkpoint load failed: %v", err)
	}

	var observer application.LockoutObserver
	if lockouts != nil {
		observer = lockouts
	}
	guard := application.NewAuthGuard(trackers, application.GuardConfigFrom(cfg), observer, logger)

	jwtManager := helpers.NewJWTManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	sessions := application.NewSessionService(redisstore.NewSessionStore(rdb), jwtManager, logger)

	var interestLog repo.InterestLog
	if interest != nil {
		interestLog = interest
	}
	svc := application.NewAccountService(accounts, guard, dispatcher, interestLog, sessions, cfg, logger)
	svc.Start()

	keeper := application.NewHousekeeper(accounts, cfg, logger)
	tasks := []*helpers.PeriodicTask{
		helpers.NewPeriodicTask("account-housekeeping", cfg.HousekeepingInterval, keeper.Run, logger),
		helpers.NewPeriodicTask("auth-guard-housekeeping", cfg.GuardSweepInterval, func(context.Context) error {
			guard.Sweep()
			return nil
		}, logger),
		helpers.NewPeriodicTask("checkpoint", cfg.CheckpointInterval, checkpoints.Save, logger),
	}
	for _, t := range tasks {
		t.Start()
	}

	// Provide singletons to container for registry auto-wiring
	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetRedis(rdb)
	container.SetJWT(jwtManager)
	container.SetAccountService(svc)
	container.SetSessionService(sessions)
	container.SetAuthGuard(guard)
	container.SetLockoutLog(lockouts)

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) > 0 {
		r.Use(cors.New(corsCfg))
	}
	if cfg.HTTPLogEnabled {
		r.Use(gin.Logger())
	}

	reg := router.NewRegistry(r, cfg.APIPrefix)
	router.InitModules(reg)
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	for _, t := range tasks {
		t.Stop()
	}
	if err := checkpoints.Save(ctxShutdown); err != nil {
		logger.WithError(err).Error("final checkpoint failed")
	}
	if err := svc.Stop(ctxShutdown); err != nil {
		logger.WithError(err).Warn("background tasks not drained")
	}
	if err := dispatcher.Stop(ctxShutdown); err != nil {
		logger.WithError(err).Warn("mail queue not drained")
	}
	if lockouts != nil {
		if err := lockouts.Stop(ctxShutdown); err != nil {
			logger.WithError(err).Warn("lockout queue not drained")
		}
	}
	logger.Info("server exited properly")
}

// mailTransport picks the delivery path: the RabbitMQ worker when configured,
// Mailgun in-process otherwise, or logging only when sending is disabled.
func mailTransport(cfg *config.Config, logger *logrus.Logger, closers *[]func()) mailer.Transport {
	if !cfg.MailSendEnabled {
		logger.Info("MAIL_SEND_ENABLED=false; notices are logged, not sent")
		return mailer.LogTransport{Logger: logger}
	}
	if cfg.RabbitMQURL != "" {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err != nil {
			logger.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		*closers = append(*closers, pub.Close)
		return mailer.RabbitTransport{Publisher: pub}
	}
	if cfg.MailgunDomain != "" && cfg.MailgunAPIKey != "" && cfg.MailgunSender != "" {
		return mailer.DirectTransport{
			Sender:   mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender),
			Resolver: mailtpl.NewCachedResolver(mailtpl.IPAPIResolver{}, time.Hour),
		}
	}
	logger.Warn("no mail transport configured; notices are logged, not sent")
	return mailer.LogTransport{Logger: logger}
}

func newCheckpointer(ctx context.Context, cfg *config.Config, accounts *memory.AccountStore, trackers *memory.TrackerStore, logger *logrus.Logger, closers *[]func()) *checkpoint.Checkpointer {
	var mirror checkpoint.BlobStore
	if cfg.GCSBucket != "" && cfg.CheckpointGCSObject != "" {
		gcs, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
		if err != nil {
			logger.Fatalf("failed to init GCS client: %v", err)
		}
		*closers = append(*closers, func() { _ = gcs.Close() })
		container.SetGCS(gcs)
		mirror = checkpoint.GCSStore{Client: gcs, Bucket: cfg.GCSBucket, Object: cfg.CheckpointGCSObject}
	}
	return checkpoint.NewCheckpointer(accounts, trackers, checkpoint.FileStore{Path: cfg.CheckpointPath}, mirror, logger)
}
