// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// cipherswarmd is the control plane daemon: it loads configuration, opens
// the store, wires the service layer, and serves the agent-facing REST API
// while the maintenance loop ticks in the background. Grounded on cmd/kcn's
// urfave/cli app shape (flags and app.Action, with setup and graceful
// teardown done inside the action).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/unclesp1d3r/cipherswarm/internal/agentapi"
	"github.com/unclesp1d3r/cipherswarm/internal/assignment"
	"github.com/unclesp1d3r/cipherswarm/internal/cache"
	"github.com/unclesp1d3r/cipherswarm/internal/config"
	"github.com/unclesp1d3r/cipherswarm/internal/crackservice"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/eta"
	"github.com/unclesp1d3r/cipherswarm/internal/health"
	"github.com/unclesp1d3r/cipherswarm/internal/log"
	"github.com/unclesp1d3r/cipherswarm/internal/maintenance"
	"github.com/unclesp1d3r/cipherswarm/internal/preemption"
	"github.com/unclesp1d3r/cipherswarm/internal/resourceref"
	"github.com/unclesp1d3r/cipherswarm/internal/statusservice"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

var logger = log.NewModuleLogger(log.Daemon)

var configFlag = cli.StringFlag{
	Name:  "config",
	Usage: "path to a TOML configuration file",
}

var migrateFlag = cli.BoolFlag{
	Name:  "migrate",
	Usage: "run schema auto-migration at startup",
}

var metricsAddrFlag = cli.StringFlag{
	Name:  "metrics-addr",
	Usage: "listen address for the /metrics endpoint",
	Value: ":9090",
}

func main() {
	app := cli.NewApp()
	app.Name = "cipherswarmd"
	app.Usage = "CipherSwarm distributed password-cracking control plane"
	app.Flags = []cli.Flag{configFlag, migrateFlag, metricsAddrFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.Open(cfg.Store.Dialect, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if ctx.Bool(migrateFlag.Name) {
		if err := st.Migrate(); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}

	etaCache, err := cache.New(cache.Config{
		Size: cfg.Cache.Size, Distributed: cfg.Cache.Distributed, RedisAddr: cfg.Cache.RedisAddr,
	})
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	preemptionSvc := preemption.New(st, taskProgress(st), cfg.PreemptableProgress, cfg.PreemptionStarvationCap)
	crackSvc := crackservice.New(st, etaCache)
	statusSvc := statusservice.New(st)
	assignSvc := assignment.New(st, etaCache, preemptionSvc, assignment.Thresholds(cfg.BenchmarkThresholds))
	etaCalc := eta.New(st, etaCache)
	resolver := &resourceref.StaticResolver{}

	var publisher maintenance.TickPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := maintenance.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Error("kafka publisher unavailable, continuing without it", "err", err)
		} else {
			defer kp.Close()
			publisher = kp
		}
	}

	maintLoop := maintenance.New(st, preemptionSvc, maintenance.Config{
		Tick:                 time.Minute,
		AgentOfflineSeconds:  cfg.AgentOfflineDuration(),
		TaskAbandonSeconds:   cfg.TaskAbandonDuration(),
		NStatusKeep:          cfg.NStatusKeep,
		RetentionAgentErrors: cfg.RetentionAgentErrorsDuration(),
		RetentionAudit:       cfg.RetentionAuditDuration(),
	}, publisher)

	healthChecker := health.New(health.Config{
		Store:        storeProbe(st),
		Cache:        cacheProbe(etaCache),
		ObjectStore:  func(context.Context) health.Probe { return health.Probe{Status: health.StatusHealthy} },
		Queue:        func(context.Context) health.Probe { return health.Probe{Status: health.StatusHealthy} },
		TTL:          time.Duration(cfg.HealthTTLSeconds) * time.Second,
		LockTTL:      time.Duration(cfg.HealthLockSeconds) * time.Second,
		ProbeTimeout: 5 * time.Second,
	}, etaCache)

	apiServer := agentapi.New(agentapi.Config{
		Store: st, Crack: crackSvc, Status: statusSvc, Assign: assignSvc, ETA: etaCalc, Resolver: resolver,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go maintLoop.Run(runCtx)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Handler())
	mux.HandleFunc("/system_health", func(w http.ResponseWriter, r *http.Request) {
		rep, err := healthChecker.Check(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeHealthJSON(w, rep)
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: ctx.String(metricsAddrFlag.Name), Handler: metricsMux}

	go func() {
		logger.Info("metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	return nil
}

// taskProgress derives preemption.ProgressFunc from the most recent
// HashcatStatus recorded for a task, feeding the preemptability check's
// "progress below threshold" comparison.
func taskProgress(st *store.Store) preemption.ProgressFunc {
	return func(ctx context.Context, task *d.Task) (float64, error) {
		statuses, err := st.Read(ctx).RecentStatusesForTask(task.ID, 1)
		if err != nil {
			return 0, err
		}
		if len(statuses) == 0 {
			return 0, nil
		}
		p := statuses[0].Progress
		if p[1] == 0 {
			return 0, nil
		}
		return float64(p[0]) / float64(p[1]), nil
	}
}

func storeProbe(st *store.Store) health.CheckFunc {
	return func(ctx context.Context) health.Probe {
		start := time.Now()
		if _, err := st.Read(ctx).AgentsLastSeenBefore(time.Now()); err != nil {
			return health.Probe{Status: health.StatusUnhealthy, Error: err.Error(), LatencyMS: time.Since(start).Milliseconds()}
		}
		return health.Probe{Status: health.StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	}
}

func cacheProbe(c cache.Cache) health.CheckFunc {
	return func(ctx context.Context) health.Probe {
		start := time.Now()
		token, ok := c.Lock("health:probe", time.Second)
		if !ok {
			return health.Probe{Status: health.StatusUnhealthy, Error: "lock unavailable", LatencyMS: time.Since(start).Milliseconds()}
		}
		c.Unlock("health:probe", token)
		return health.Probe{Status: health.StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	}
}

func writeHealthJSON(w http.ResponseWriter, rep *health.Report) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rep)
}
