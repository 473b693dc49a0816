package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/execution-calltree/pkg/api"
	"github.com/ethpandaops/execution-calltree/pkg/cache"
	"github.com/ethpandaops/execution-calltree/pkg/clickhouse"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum"
	"github.com/ethpandaops/execution-calltree/pkg/observability"
	"github.com/ethpandaops/execution-calltree/pkg/processor"
	"github.com/ethpandaops/execution-calltree/pkg/redis"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

type Server struct {
	log       logrus.FieldLogger
	config    *Config
	namespace string

	redis     *r.Client
	pool      *ethereum.Pool
	processor *processor.Manager
	memory    *MemoryStatsCollector

	pprofServer  *http.Server
	healthServer *http.Server
	apiServer    *http.Server
}

func NewServer(log logrus.FieldLogger, namespace string, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	redisClient, err := redis.New(config.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	asynqOpt, err := redis.AsynqOpt(config.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to build task queue options: %w", err)
	}

	store, err := storage.New(log.WithField("component", "storage"), &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace store: %w", err)
	}

	pool := ethereum.NewPool(log.WithField("component", "ethereum"), namespace, &config.Ethereum)

	deps := &processor.Dependencies{
		Store:       store,
		Redis:       redisClient,
		AsynqOpt:    asynqOpt,
		RedisPrefix: config.Redis.Prefix,
	}

	// A pool without nodes serves persisted traces only.
	if pool.HasExecutionNodes() {
		deps.Nodes = pool
	}

	if config.Cache.Enabled {
		deps.Cache = cache.New(log, redisClient, config.Redis.Prefix, &config.Cache)
	}

	if config.ClickHouse.Enabled {
		ch, err := clickhouse.New(log, &config.ClickHouse)
		if err != nil {
			return nil, fmt.Errorf("failed to create clickhouse client: %w", err)
		}

		deps.ClickHouse = ch
	}

	p, err := processor.NewManager(log, &config.Processor, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor manager: %w", err)
	}

	return &Server{
		config:    config,
		log:       log,
		namespace: namespace,
		redis:     redisClient,
		pool:      pool,
		processor: p,
		memory:    NewMemoryStatsCollector(log, config.MemoryMonitor),
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return observability.StartMetricsServer(ctx, s.log, s.config.MetricsAddr)
	})

	if s.config.PProfAddr != nil {
		s.pprofServer = s.newPProfServer()

		g.Go(func() error {
			return listen(s.log, "pprof", s.pprofServer)
		})
	}

	if s.config.HealthCheckAddr != nil {
		s.healthServer = s.newHealthServer()

		g.Go(func() error {
			return listen(s.log, "healthcheck", s.healthServer)
		})
	}

	if s.config.APIAddr != nil {
		s.apiServer = s.newAPIServer()

		g.Go(func() error {
			return listen(s.log, "API", s.apiServer)
		})
	}

	if err := s.memory.Start(ctx); err != nil {
		return fmt.Errorf("failed to start memory stats collector: %w", err)
	}

	if s.pool.HasExecutionNodes() {
		s.pool.Start(ctx)
	} else {
		s.log.Warn("No execution nodes configured, serving persisted traces only")
	}

	g.Go(func() error {
		return s.processor.Start(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		return s.stop()
	})

	return g.Wait()
}

func (s *Server) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	// Stop intake before draining the worker.
	for name, srv := range map[string]*http.Server{"api": s.apiServer, "health": s.healthServer, "pprof": s.pprofServer} {
		if srv == nil {
			continue
		}

		if err := srv.Shutdown(ctx); err != nil {
			s.log.WithError(err).WithField("server", name).Error("Failed to shutdown http server")
		}
	}

	if err := s.processor.Stop(ctx); err != nil {
		s.log.WithError(err).Error("Failed to stop processor")
	}

	if err := s.pool.Stop(ctx); err != nil {
		s.log.WithError(err).Error("Failed to stop ethereum pool")
	}

	s.memory.Stop()

	if err := s.redis.Close(); err != nil {
		s.log.WithError(err).Error("Failed to close redis")
	}

	if err := observability.StopMetricsServer(ctx); err != nil {
		s.log.WithError(err).Error("Failed to stop metrics server")
	}

	s.log.Info("Server stopped gracefully")

	return nil
}

func (s *Server) newAPIServer() *http.Server {
	mux := http.NewServeMux()
	api.NewHandler(s.log, s.processor).RegisterRoutes(mux)

	return &http.Server{
		Addr:              *s.config.APIAddr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
}

func (s *Server) newPProfServer() *http.Server {
	return &http.Server{
		Addr:              *s.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}
}

func (s *Server) newHealthServer() *http.Server {
	return &http.Server{
		Addr:              *s.config.HealthCheckAddr,
		Handler:           s.healthHandler(),
		ReadHeaderTimeout: 120 * time.Second,
	}
}

// healthHandler answers /healthz while the process is up and /readyz once a
// trace source is usable.
func (s *Server) healthHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.pool.HasExecutionNodes() && !s.pool.HasHealthyExecutionNodes() {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func listen(log logrus.FieldLogger, name string, srv *http.Server) error {
	log.WithField("addr", srv.Addr).Infof("Starting %s server", name)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}

	return nil
}
