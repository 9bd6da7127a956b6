package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/student_records/pkg/db"
	"github.com/Skotchmaster/student_records/pkg/events"
	"github.com/Skotchmaster/student_records/pkg/logging"
	"github.com/Skotchmaster/student_records/pkg/metrics"
	authmw "github.com/Skotchmaster/student_records/pkg/middleware/auth"
	"github.com/Skotchmaster/student_records/pkg/revocation"
	"github.com/Skotchmaster/student_records/pkg/servicetoken"
	"github.com/Skotchmaster/student_records/pkg/telemetry"
	"github.com/Skotchmaster/student_records/pkg/userclient"
	"github.com/Skotchmaster/student_records/services/auth/internal/config"
	"github.com/Skotchmaster/student_records/services/auth/internal/httpserver"
	"github.com/Skotchmaster/student_records/services/auth/internal/repo"
	"github.com/Skotchmaster/student_records/services/auth/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Shared.LogLevel).With("service", "auth")
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Init(ctx, "auth", cfg.Shared.OTLPEndpoint)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	gormRepo := &repo.GormRepo{DB: gdb}
	if cfg.AutoMigrate {
		if err := gormRepo.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	redisClient, err := revocation.OpenRedis(ctx, cfg.Shared.Revocation.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	store := revocation.NewRedisStore(redisClient, cfg.Shared.Revocation.KeyPrefix, cfg.Shared.Revocation.Timeout)

	m := metrics.New(nil)
	codec := cfg.Shared.Tokens.Codec()

	var users service.CredentialStore = gormRepo
	if cfg.UserServiceURL != "" {
		exchanger := servicetoken.NewExchanger(cfg.S2STokenURL, cfg.S2SClientID, cfg.S2SClientSecret)
		cache := servicetoken.NewCache(exchanger, servicetoken.DefaultSkew, m)
		users = &repo.RemoteUsers{Client: userclient.NewClient(cfg.UserServiceURL, &servicetoken.Transport{
			Cache:    cache,
			Audience: cfg.S2SUserAudience,
		})}
		logger.Info("credential_store", "source", "user-service", "url", cfg.UserServiceURL)
	}

	publisher := buildPublisher(cfg, logger)
	defer publisher.Close()

	gw := authmw.NewGateway(codec, store)
	gw.Metrics = m
	if cfg.Shared.MachineAuth.JWKSURL != "" {
		v, err := servicetoken.NewJWKSVerifier(ctx, cfg.Shared.MachineAuth.JWKSURL, cfg.Shared.MachineAuth.Issuer, cfg.Shared.MachineAuth.Audience)
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		gw.Machine = v
	}

	svc := &service.AuthService{
		Users:       users,
		Tokens:      gormRepo,
		Codec:       codec,
		Revocations: store,
		Verifier:    service.NewCredentialVerifier(users),
		Events:      publisher,
		Metrics:     m,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(echo.WrapMiddleware(telemetry.Middleware("auth")))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:        &httpserver.AuthHTTP{Svc: svc, CookieSecure: cfg.CookieSecure},
		Gateway:            gw,
		Metrics:            m,
		Logger:             logger,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Ready: func(ctx context.Context) error {
			return errors.Join(db.Ping(ctx, gdb), store.Ping(ctx))
		},
	})

	go func() {
		if err := e.Start(cfg.Addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing_shutdown", "error", err)
	}
}

func buildPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	var pubs events.Multi
	if len(cfg.KafkaBrokers) > 0 {
		pubs = append(pubs, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	if cfg.ESURL != "" {
		audit, err := events.NewElasticAudit(cfg.ESURL, cfg.ESUser, cfg.ESPassword, cfg.ESIndex)
		if err != nil {
			logger.Warn("audit_disabled", "error", err)
		} else {
			pubs = append(pubs, audit)
		}
	}
	if len(pubs) == 0 {
		return events.Nop{}
	}
	return pubs
}
