package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/traafik/auth-svc/internal/config"
	"github.com/traafik/auth-svc/internal/cron"
	"github.com/traafik/auth-svc/internal/database"
	"github.com/traafik/auth-svc/internal/handler"
	"github.com/traafik/auth-svc/internal/metrics"
	"github.com/traafik/auth-svc/internal/middleware"
	"github.com/traafik/auth-svc/internal/queue"
	"github.com/traafik/auth-svc/internal/repository"
	"github.com/traafik/auth-svc/internal/router"
	"github.com/traafik/auth-svc/internal/service"
	"github.com/traafik/auth-svc/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	e.Logger.SetHeader(`{"time":"${time_rfc3339}","level":"${level}","file":"${short_file}","line":"${line}"}`)
	e.HTTPErrorHandler = handler.ErrorHandler(cfg.Development())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	})
	if err != nil {
		e.Logger.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		e.Logger.Fatalf("migrate: %v", err)
	}

	rec := metrics.New()

	var events service.EventPublisher
	if cfg.RabbitMQURL != "" {
		pub := queue.NewPublisher(cfg.RabbitMQURL, cfg.EventsQueue, e.Logger, rec)
		go pub.Run(ctx)
		events = pub

		audit := &queue.AuditConsumer{URL: cfg.RabbitMQURL, Queue: cfg.EventsQueue, Log: e.Logger}
		go func() {
			if err := audit.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.Logger.Errorf("audit consumer stopped: %v", err)
			}
		}()
	} else {
		e.Logger.Info("RABBITMQ_URL not set; account events disabled")
	}

	sessions := service.NewSessionService(service.Deps{
		Accounts: repository.NewAccountRepo(db),
		Tokens:   repository.NewTokenRepo(db, cfg.RefreshTTL),
		Signer:   utils.NewTokenSigner(cfg.JWTSecret, cfg.AccessTTL, cfg.JWTIssuer),
		Hasher:   utils.NewPasswordHasher(cfg.BcryptCost),
		Events:   events,
		Metrics:  rec,
		Log:      e.Logger,
	}, service.Config{StoreTimeout: cfg.StoreTimeout})

	sched, err := cron.StartSweep(sessions, cfg.SweepInterval, cfg.StoreTimeout, e.Logger)
	if err != nil {
		e.Logger.Fatalf("cron: %v", err)
	}
	defer sched.Stop()

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		e.Logger.Warn("redis unavailable; rate limiting disabled")
	} else {
		defer rdb.Close()
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e.Use(echomw.RequestID())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			c.Logger().Infoj(log.JSON{
				"request_id": v.RequestID,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			})
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.SecureWithConfig(echomw.DefaultSecureConfig))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: !slices.Contains(cfg.CORSOrigins, "*"),
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	e.Use(echomw.BodyLimit("1M"))

	router.RegisterRoutes(e, rec.Handler())
	router.RegisterAuth(e, handler.NewAuthHandler(sessions), sessions, limiter)

	go func() {
		addr := ":" + cfg.Port
		e.Logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	e.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Errorf("shutdown: %v", err)
	}
}

func logLevel(s string) log.Lvl {
	switch s {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
