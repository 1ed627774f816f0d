package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cortexops/gateway/pkg/auth"
	"github.com/cortexops/gateway/pkg/bridge"
	"github.com/cortexops/gateway/pkg/config"
	"github.com/cortexops/gateway/pkg/events"
	"github.com/cortexops/gateway/pkg/log"
	"github.com/cortexops/gateway/pkg/metrics"
	"github.com/cortexops/gateway/pkg/pool"
	"github.com/cortexops/gateway/pkg/proxy"
	"github.com/cortexops/gateway/pkg/rbac"
	"github.com/cortexops/gateway/pkg/registry"
	"github.com/cortexops/gateway/pkg/scheduler"
	"github.com/cortexops/gateway/pkg/storage"
	"github.com/cortexops/gateway/pkg/stream"
	"github.com/cortexops/gateway/pkg/tracker"
)

// shutdownGrace bounds how long the scheduler and pools get to drain.
const shutdownGrace = 30 * time.Second

// Server is the gateway composition root. It owns every component and
// wires them into the HTTP router.
type Server struct {
	cfg *config.Config

	broker    *events.Broker
	store     storage.Store
	registry  *registry.Registry
	rbac      *rbac.Engine
	tokens    *auth.TokenManager
	internal  *auth.InternalTokenManager
	keys      *auth.APIKeyManager
	tracker   *tracker.Tracker
	scheduler *scheduler.Scheduler
	pools     *pool.Manager
	hub       *stream.Hub
	bridge    *bridge.Bridge
	proxy     *proxy.Proxy
	collector *metrics.Collector

	httpServer *http.Server
}

// New builds a fully wired server from the configuration.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	s.store = store

	s.broker = events.NewBroker()
	s.registry = registry.New(s.broker, cfg.HealthCheckInterval)

	s.rbac = rbac.NewEngine()
	if err := seedRBAC(s.rbac); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to seed rbac: %w", err)
	}

	s.tokens, err = auth.NewTokenManager(cfg.JWTSecret, time.Hour, 7*24*time.Hour)
	if err != nil {
		store.Close()
		return nil, err
	}
	s.internal, err = auth.NewInternalTokenManager(cfg.InternalSecret, auth.DefaultInternalServices)
	if err != nil {
		store.Close()
		return nil, err
	}
	s.keys, err = auth.NewAPIKeyManager(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	s.tracker = tracker.New()
	s.scheduler = scheduler.New(cfg.TaskPoolSize, cfg.QueueSize)
	s.pools = pool.NewManager()
	s.hub = stream.NewHub(cfg.StreamKeepalive, cfg.StreamTimeout)
	s.bridge = bridge.New(s.registry, store)
	s.proxy = proxy.New(cfg.ProxyTimeout, cfg.ProxyMaxRetries)
	s.collector = metrics.NewCollector(s.registry, s.scheduler, s.hub, s.pools)

	// Health probes and reconciliation run on the shared pools so their
	// concurrency shows up in pool stats and stays bounded.
	s.registry.UseProbePool(func(fn func() error) error {
		_, err := s.pools.Submit(pool.PoolHealthCheck, fn)
		return err
	})
	s.bridge.SetSubmitter(func(fn func() error) error {
		_, err := s.pools.Submit(pool.PoolIO, fn)
		return err
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router(),
	}
	return s, nil
}

// seedRBAC installs the built-in permissions and roles.
func seedRBAC(e *rbac.Engine) error {
	userPerms := []string{
		"agents:*", "knowledge:*", "models:*", "chat:*", "mcp:*",
		"auth:*", "upload:*", "files:*", "system-config:*",
	}
	for _, p := range append(userPerms, "system:*") {
		if err := e.CreatePermission(p, "built-in", true); err != nil {
			return err
		}
	}
	if err := e.CreateRole("user", userPerms, nil, true); err != nil {
		return err
	}
	return e.CreateRole("admin", []string{"system:*"}, []string{"user"}, true)
}

// Start launches the background loops and blocks serving HTTP until
// Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.broker.Start()

	if err := s.bridge.Restore(); err != nil {
		return err
	}
	s.registry.StartHealthLoop()
	s.scheduler.Start()
	s.hub.StartReaper()
	s.bridge.Start()
	s.tracker.StartSweeper(time.Minute)
	s.tokens.StartJanitor(10 * time.Minute)
	s.collector.Start()

	log.WithComponent("gateway").Info().Int("port", s.cfg.Port).Msg("gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown runs the stop cascade: stop accepting, stop the health loop,
// drain the scheduler, close streams, close proxy pools, close storage.
func (s *Server) Shutdown(ctx context.Context) error {
	log.WithComponent("gateway").Info().Msg("shutting down")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.WithComponent("gateway").Warn().Err(err).Msg("listener shutdown incomplete")
	}

	s.registry.StopHealthLoop()
	s.bridge.Stop()
	s.scheduler.Shutdown(shutdownGrace)
	s.pools.Shutdown(shutdownGrace)
	s.hub.Shutdown()
	s.proxy.Close()
	s.collector.Stop()
	s.tracker.StopSweeper()
	s.tokens.StopJanitor()
	s.broker.Stop()

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	log.WithComponent("gateway").Info().Msg("shutdown complete")
	return nil
}
