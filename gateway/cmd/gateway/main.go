package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/student_records/gateway/internal/config"
	"github.com/Skotchmaster/student_records/gateway/internal/httpserver"
	"github.com/Skotchmaster/student_records/pkg/logging"
	"github.com/Skotchmaster/student_records/pkg/metrics"
	authmw "github.com/Skotchmaster/student_records/pkg/middleware/auth"
	"github.com/Skotchmaster/student_records/pkg/revocation"
	"github.com/Skotchmaster/student_records/pkg/servicetoken"
	"github.com/Skotchmaster/student_records/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Shared.LogLevel).With("service", "gateway")
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Init(ctx, "gateway", cfg.Shared.OTLPEndpoint)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	redisClient, err := revocation.OpenRedis(ctx, cfg.Shared.Revocation.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	store := revocation.NewRedisStore(redisClient, cfg.Shared.Revocation.KeyPrefix, cfg.Shared.Revocation.Timeout)

	m := metrics.New(nil)
	gw := authmw.NewGateway(cfg.Shared.Tokens.Codec(), store)
	gw.Metrics = m
	if cfg.Shared.MachineAuth.JWKSURL != "" {
		v, err := servicetoken.NewJWKSVerifier(ctx, cfg.Shared.MachineAuth.JWKSURL, cfg.Shared.MachineAuth.Issuer, cfg.Shared.MachineAuth.Audience)
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		gw.Machine = v
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(echo.WrapMiddleware(telemetry.Middleware("gateway")))

	if err := httpserver.Register(e, &httpserver.Deps{
		AuthURL: cfg.AuthURL,
		Routes:  cfg.Routes,
		Gateway: gw,
		Metrics: m,
		Logger:  logger,
		Ready:   store.Ping,
	}); err != nil {
		log.Fatal(err)
	}
	logger.Info("gateway_routes", "auth", cfg.AuthURL, "routes", len(cfg.Routes))

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("start: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing_shutdown", "error", err)
	}
}
