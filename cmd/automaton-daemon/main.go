// Command automaton-daemon runs the lifecycle core as a standalone
// service: a status/health HTTP surface and a cron-scheduled heartbeat
// that ticks the phase machine, checks the sealed death clock, and
// recomputes capacity. Grounded on the teacher's service entrypoints
// (config load, structured logger, migrate-then-serve, signal-driven
// shutdown).
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/automaton-systems/lifecycle-core/collab"
	"github.com/automaton-systems/lifecycle-core/engine/phase"
	"github.com/automaton-systems/lifecycle-core/infrastructure/database"
	"github.com/automaton-systems/lifecycle-core/infrastructure/logging"
	"github.com/automaton-systems/lifecycle-core/infrastructure/metrics"
	"github.com/automaton-systems/lifecycle-core/infrastructure/ratelimit"
	"github.com/automaton-systems/lifecycle-core/internal/config"
	"github.com/automaton-systems/lifecycle-core/lifecycle"
	daemoncore "github.com/automaton-systems/lifecycle-core/system/core"
	"github.com/automaton-systems/lifecycle-core/system/heartbeat"
	"github.com/automaton-systems/lifecycle-core/system/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.NewFromEnv("automaton-daemon")
	metricsRegistry := metrics.Init("automaton-daemon")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		log.WithContext(ctx).WithField("error", err.Error()).Fatal("open database")
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if cfg.Database.MigrateOnStart {
		if err := store.RunMigrations(db.DB); err != nil {
			log.WithContext(ctx).WithField("error", err.Error()).Fatal("run migrations")
		}
	}

	st := store.New(db)
	lc := lifecycle.New(cfg, st, log, nil, collab.NewFakeWallet(map[string]float64{"USDC": 0}))

	lm := wireModules(cfg, lc, log, metricsRegistry)

	if err := lm.Start(ctx); err != nil {
		log.WithContext(ctx).WithField("error", err.Error()).Fatal("start daemon modules")
	}
	lm.MarkReady("", "")

	<-ctx.Done()
	log.WithContext(context.Background()).Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := lm.Stop(shutdownCtx); err != nil {
		log.WithContext(shutdownCtx).WithField("error", err.Error()).Warn("shutdown did not complete cleanly")
	}
	if err := db.Close(); err != nil {
		log.WithContext(shutdownCtx).WithField("error", err.Error()).Warn("close database")
	}
}

// wireModules registers the two ServiceModules this daemon runs on top of
// the already-open store: the heartbeat scheduler and the status HTTP
// server. The store's own lifetime is the process's, closed by the
// caller after lm.Stop returns, so it is not itself a ServiceModule.
func wireModules(cfg *config.Config, lc *lifecycle.Core, log *logging.Logger, reg *metrics.Metrics) *daemoncore.LifecycleManager {
	registry := daemoncore.NewRegistry()

	httpMod := newHTTPModule(cfg, lc, log)
	registry.Register(newHeartbeatModule(cfg, lc, log, reg))
	registry.Register(httpMod)

	deps := daemoncore.NewDependencyManager(registry)
	health := daemoncore.NewHealthMonitor()
	lm := daemoncore.NewLifecycleManager(registry, deps, health, nil)
	httpMod.lm = lm
	return lm
}

// heartbeatModule adapts *heartbeat.Daemon to daemoncore.ServiceModule.
type heartbeatModule struct {
	daemon *heartbeat.Daemon
}

func newHeartbeatModule(cfg *config.Config, lc *lifecycle.Core, log *logging.Logger, reg *metrics.Metrics) *heartbeatModule {
	tick := func(ctx context.Context) error {
		in := phase.Inputs{DeploymentMode: deploymentModeFor(cfg)}
		if err := lc.Tick(ctx, in); err != nil {
			return err
		}
		// ComputeCapacityVector re-checks the sealed death clock against
		// the real lunar cycle and persists it if it just triggered.
		if _, err := lc.ComputeCapacityVector(ctx, time.Now().UTC()); err != nil {
			return err
		}
		reg.HeartbeatTicksTotal.Inc()
		return nil
	}
	return &heartbeatModule{daemon: heartbeat.New("*/5 * * * *", tick, log)}
}

func deploymentModeFor(cfg *config.Config) string {
	if cfg.Env == "production" {
		return "server"
	}
	return "sandbox"
}

func (m *heartbeatModule) Name() string        { return "heartbeat" }
func (m *heartbeatModule) Domain() string      { return "scheduler" }
func (m *heartbeatModule) DependsOn() []string { return nil }
func (m *heartbeatModule) Start(ctx context.Context) error { return m.daemon.Start(ctx) }
func (m *heartbeatModule) Stop(ctx context.Context) error  { return m.daemon.Stop(ctx) }

// httpModule serves /healthz, /lifecycle/state, and /metrics behind a
// per-client rate limiter.
type httpModule struct {
	core        *lifecycle.Core
	log         *logging.Logger
	server      *http.Server
	limiter     *ratelimit.Limiter
	lm          *daemoncore.LifecycleManager
	stopCleanup func()
}

func newHTTPModule(cfg *config.Config, lc *lifecycle.Core, log *logging.Logger) *httpModule {
	m := &httpModule{core: lc, log: log, limiter: ratelimit.New(5, 10, log)}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", m.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/lifecycle/state", m.handleLifecycleState).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	port := cfg.Server.Port
	if port <= 0 {
		port = 8089
	}
	m.server = &http.Server{
		Addr:              cfg.Server.Host + ":" + strconv.Itoa(port),
		Handler:           m.limiter.Middleware(router),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m
}

func (m *httpModule) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if m.lm == nil {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"modules": m.lm.Snapshot(),
	})
}

func (m *httpModule) handleLifecycleState(w http.ResponseWriter, r *http.Request) {
	capacity, err := m.core.ComputeCapacityVector(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(capacity)
}

func (m *httpModule) Name() string        { return "httpserver" }
func (m *httpModule) Domain() string      { return "transport" }
func (m *httpModule) DependsOn() []string { return nil }

func (m *httpModule) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		return err
	}
	m.stopCleanup = m.limiter.StartCleanup(10 * time.Minute)
	go func() {
		if err := m.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.log.WithContext(ctx).WithField("error", err.Error()).Warn("http server stopped unexpectedly")
		}
	}()
	return nil
}

func (m *httpModule) Stop(ctx context.Context) error {
	if m.stopCleanup != nil {
		m.stopCleanup()
	}
	return m.server.Shutdown(ctx)
}
