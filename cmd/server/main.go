package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/dojo-schedule/internal/config"
	"github.com/iliyamo/dojo-schedule/internal/database"
	"github.com/iliyamo/dojo-schedule/internal/handler"
	"github.com/iliyamo/dojo-schedule/internal/logging"
	"github.com/iliyamo/dojo-schedule/internal/middleware"
	"github.com/iliyamo/dojo-schedule/internal/queue"
	"github.com/iliyamo/dojo-schedule/internal/repository"
	"github.com/iliyamo/dojo-schedule/internal/repository/memory"
	"github.com/iliyamo/dojo-schedule/internal/router"
	"github.com/iliyamo/dojo-schedule/internal/service"
	"github.com/iliyamo/dojo-schedule/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, db, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage unavailable", "driver", cfg.StorageDriver, "err", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	svc := service.New(deps, service.Config{
		DefaultTimezone: cfg.CheckIn.DefaultTimezone,
		OpensBefore:     cfg.CheckIn.OpensBefore,
		ClosesAfter:     cfg.CheckIn.ClosesAfter,
		BlockedStatuses: cfg.CheckIn.BlockedStatuses,
	})

	// Eligibility goes through RabbitMQ when configured, otherwise the relay
	// evaluates in process and notifications only reach the log.
	var dispatcher worker.Dispatcher
	if cfg.RabbitMQURL != "" {
		pub := queue.NewPublisher(cfg.RabbitMQURL, logger)
		dispatcher = pub
		consumer := queue.NewConsumer(cfg.RabbitMQURL, svc.Eligibility, pub, logger)
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("eligibility consumer stopped", "err", err)
			}
		}()
	} else {
		dispatcher = worker.EvaluateInProcess(svc.Eligibility, queue.LogNotifier{Logger: logger})
	}
	if cfg.Outbox.Enabled {
		go worker.NewRelay(deps.Outbox, dispatcher, cfg.Outbox, logger).Run(ctx)
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unreachable, rate limiting and response cache disabled", "addr", cfg.Redis.Addr)
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency))
			return nil
		},
	}))

	var ready echo.HandlerFunc
	if db != nil {
		ready = handler.Ready(db)
	} else {
		ready = handler.Ready(nil)
	}
	router.Register(e, router.Handlers{
		Bookings:   handler.NewBookingHandler(svc.Bookings, logger),
		Schedule:   handler.NewScheduleHandler(svc.Schedule, logger),
		Attendance: handler.NewAttendanceHandler(svc.CheckIns, logger),
		Graduation: handler.NewGraduationHandler(svc.Eligibility, logger),
		Ready:      ready,
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(cfg.RateLimit, rdb, logger),
		Cache:     middleware.NewRedisCache(cfg.Cache, rdb, logger),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "storage", cfg.StorageDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

// openStorage builds the store set for the configured driver.  The
// returned *sql.DB is nil for the memory driver.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (service.Deps, *sql.DB, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		st := memory.New()
		return service.Deps{
			Templates: st, Sessions: st, Bookings: st, Attendance: st, Students: st,
			Ranks: st, Tenants: st, Rules: st, Outbox: st, Logger: logger,
		}, nil, nil
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return service.Deps{}, nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return service.Deps{}, nil, err
		}
		students := repository.NewStudentRepo(db)
		return service.Deps{
			Templates:  repository.NewTemplateRepo(db),
			Sessions:   repository.NewSessionRepo(db),
			Bookings:   repository.NewBookingRepo(db),
			Attendance: repository.NewAttendanceRepo(db),
			Students:   students,
			Ranks:      students,
			Tenants:    repository.NewTenantRepo(db),
			Rules:      repository.NewRuleRepo(db),
			Outbox:     repository.NewOutboxRepo(db),
			Logger:     logger,
		}, db, nil
	}
	return service.Deps{}, nil, errors.New("unknown STORAGE_DRIVER " + cfg.StorageDriver)
}
