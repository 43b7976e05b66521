package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/launchr/internal/bus"
	"github.com/loykin/launchr/internal/config"
	"github.com/loykin/launchr/internal/health"
	"github.com/loykin/launchr/internal/metrics"
	"github.com/loykin/launchr/internal/orchestrator"
	"github.com/loykin/launchr/internal/process"
	"github.com/loykin/launchr/internal/server"
)

const shutdownGrace = 5 * time.Second

func createServeCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the supervisor until interrupted",
		Long: `Run the supervisor: subscribe to intents, launch and watch games, and
publish state. On SIGINT or SIGTERM the running game is stopped before exit.
Config or manifest errors abort startup with a non-zero status.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), global.configPath(args))
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, logFile := cfg.LoggerConfig().NewSlogger()
	defer func() { _ = logFile.Close() }()
	slog.SetDefault(log)

	games, err := cfg.LoadManifest()
	if err != nil {
		return err
	}
	gameEnv, err := cfg.NewEnv()
	if err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	procs := process.NewManager(gameEnv, log)
	checker := health.NewChecker(cfg.HealthDefaults(), log)
	orch := orchestrator.New(games, procs, checker, cfg.OrchestratorConfig(), log)

	mq := bus.NewMQTT(cfg.BusConfig(), log)
	defer mq.Close()
	states := bus.NewStatePublisher(mq, cfg.Topics.State)
	orch.AddPublisher(states)
	// late subscribers and reconnects see the current state
	mq.OnConnect(func() { orch.Republish(states) })
	if err := bus.SubscribeIntents(mq, cfg.Topics.Intent, orch.Deliver); err != nil {
		return err
	}

	var srv *http.Server
	var hub *server.Hub
	var ln net.Listener
	if cfg.Server.Enabled {
		hub = server.NewHub(orch.Snapshot, log)
		orch.AddPublisher(hub)
		opts := server.Options{
			BasePath: cfg.Server.BasePath,
			Games:    games,
			Process:  procs,
			Hub:      hub,
			Log:      log,
		}
		if cfg.Metrics.Enabled {
			opts.Metrics = metrics.Handler()
		}
		srv = server.NewServer(cfg.Server.Listen, server.NewRouter(orch, orch, opts).Handler())
		if ln, err = net.Listen("tcp", cfg.Server.Listen); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
		}
	}

	log.Info("launchr starting",
		"config", cfg.Path, "manifest", cfg.Manifest, "games", len(games.Games()),
		"intent_topic", cfg.Topics.Intent, "state_topic", cfg.Topics.State)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, 10*time.Second)
		defer cancel()
		if err := mq.Connect(cctx); err != nil && gctx.Err() == nil {
			log.Warn("mqtt broker not reachable yet; retrying in background", "error", err)
		}
		return nil
	})
	if srv != nil {
		g.Go(func() error {
			log.Info("http api listening", "addr", ln.Addr().String(), "base_path", cfg.Server.BasePath)
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			hub.Close()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	if cfg.Metrics.Enabled {
		sampler := metrics.NewResourceSampler(cfg.Metrics.ResourceInterval, func() (string, int, bool) {
			pid := procs.PID()
			return procs.CurrentGameID(), pid, pid > 0
		}, log)
		g.Go(func() error {
			sampler.Run(gctx)
			return nil
		})
	}

	err = g.Wait()
	log.Info("launchr stopped")
	return err
}
