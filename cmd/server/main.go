package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vpgate/internal/platform/config"
	"vpgate/internal/platform/health"
	"vpgate/internal/platform/httpserver"
	"vpgate/internal/platform/logger"
	"vpgate/internal/platform/redis"
	httptransport "vpgate/internal/transport/http"
	"vpgate/internal/verification/adapters/vcapi"
	"vpgate/internal/verification/handler"
	"vpgate/internal/verification/metrics"
	"vpgate/internal/verification/ports"
	"vpgate/internal/verification/service"
	"vpgate/internal/verification/status"
	"vpgate/internal/verification/tracer"
	"vpgate/pkg/platform/circuit"
	"vpgate/pkg/platform/middleware/metadata"
	"vpgate/pkg/platform/middleware/request"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Verification logic lives in internal/verification.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("initializing vpgate",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"reader_auth", cfg.Verification.ReaderAuthEnabled,
		"holder_proof", cfg.Verification.HolderProofRequired,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	healthHandler := health.New(cfg.Server.Environment)

	statusChecker, closeStatus, err := buildStatusChecker(ctx, cfg.Redis, cfg.Verification.RevocationsFile, reg, healthHandler, log)
	if err != nil {
		return err
	}
	defer closeStatus()

	resolver, err := buildKeyResolver(cfg.Verification)
	if err != nil {
		return err
	}
	handlers, err := buildHandlers(cfg.Verification, resolver, statusChecker, log)
	if err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}
	policies, err := buildPolicies(ctx, cfg.Verification, log)
	if err != nil {
		return err
	}
	log.Info("verification registries ready", "formats", handlers.Names(), "policies", policies.Names())

	svc := service.New(handlers, policies,
		service.WithLogger(log),
		service.WithMetrics(metrics.New(reg)),
		service.WithTracer(tracer.NewOTel()),
		service.WithTimeout(cfg.Verification.Timeout),
		service.WithBatchConcurrency(cfg.Verification.BatchConcurrency),
	)
	healthHandler.RegisterCheck("handlers", func(context.Context) error {
		if len(svc.Formats()) == 0 {
			return fmt.Errorf("no format handlers registered")
		}
		return nil
	})

	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Health:         healthHandler,
		API:            []httptransport.Routes{handler.New(svc, vcapi.New(), log)},
		Metadata:       metadata.Config{TrustedProxies: proxies},
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        request.NewMetrics(reg),
		Gatherer:       reg,
	})

	return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, router), nil, cfg.Server.ShutdownTimeout, log)
}

// buildStatusChecker selects the Redis revocation store, behind a circuit
// breaker, when REDIS_URL is set, then a revocation list file. With neither,
// it returns a nil checker and status checks are off.
func buildStatusChecker(ctx context.Context, cfg config.RedisConfig, revocationsFile string, reg prometheus.Registerer, h *health.Handler, log *slog.Logger) (ports.StatusChecker, func(), error) {
	client, err := redis.New(ctx, cfg, reg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		if revocationsFile == "" {
			log.Warn("revocation checks disabled: set REDIS_URL or REVOCATIONS_FILE")
			return nil, func() {}, nil
		}
		mem, err := status.LoadMemoryFile(revocationsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load revocations: %w", err)
		}
		log.Info("revocation store: file", "entries", mem.Len())
		return mem, func() {}, nil
	}

	log.Info("revocation store: redis")
	h.RegisterCheck("redis", client.Health)
	statsCtx, cancel := context.WithCancel(ctx)
	go client.RecordPoolStatsEvery(statsCtx, 15*time.Second)
	breaker := circuit.New("redis-status", circuit.WithStateChange(func(name string, from, to circuit.State) {
		log.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
	}))
	return status.NewGuarded(status.NewRedis(client.Client), breaker), func() {
		cancel()
		if err := client.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}, nil
}
