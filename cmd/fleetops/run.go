package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"fleetops/internal/actor"
	"fleetops/internal/admin"
	"fleetops/internal/api"
	"fleetops/internal/broker"
	"fleetops/internal/config"
	"fleetops/internal/coordinator"
	"fleetops/internal/goals"
	"fleetops/internal/history"
	"fleetops/internal/logging"
	"fleetops/internal/nav"
	"fleetops/internal/report"
	"fleetops/internal/store"
)

const actorInbox = 16

var (
	runConfigPath string
	runSchemaPath string
	runPrintOnly  bool
	runLogFile    string
	runTUI        bool
	runPlan       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Operate the fleet",
	Long:  "run discovers the agent's ships and keeps them working on the active goals until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logOut, closeLog, err := logOutput(cfg, usesTerminal(runPrintOnly, runTUI))
		if err != nil {
			return err
		}
		defer closeLog()
		logger := logging.NewWithOptions(logOut, cfg.Log.Level, cfg.Log.Format)
		ctx = logging.NewContext(ctx, logger)
		return run(ctx, cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/fleetops.yaml", "Path to configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "schemas/fleetops.cue", "Path to CUE schema file")
	runCmd.Flags().BoolVar(&runPrintOnly, "print-only", false, "Print status to STDOUT instead of writing to GreptimeDB")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to export per-tick status rows (JSONL)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the live dashboard when attached to a terminal")
	runCmd.Flags().StringVar(&runPlan, "plan", "", "Goal plan to submit at startup")
}

// logOutput sends logs to stderr, or to a file next to the stores while the
// dashboard owns the terminal.
func logOutput(cfg *config.Config, dashboard bool) (io.Writer, func(), error) {
	if !dashboard {
		return os.Stderr, func() {}, nil
	}
	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(cfg.Storage.Dir, "fleetops.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logging.FromContext(ctx)
	token := cfg.Token()
	if token == "" {
		return fmt.Errorf("%s is not set", cfg.API.TokenEnv)
	}

	opts := []broker.Option{
		broker.WithMinInterval(cfg.API.MinInterval.Duration),
		broker.WithBackoff(cfg.API.BackoffFloor.Duration, cfg.API.BackoffCap.Duration),
		broker.WithMaxRateRetries(cfg.API.MaxRateRetries),
	}
	if cfg.API.BurstPerSecond > 0 {
		opts = append(opts, broker.WithBurst(rate.NewLimiter(rate.Limit(cfg.API.BurstPerSecond), 1)))
	}
	b := broker.New(&http.Client{Timeout: cfg.API.Timeout.Duration}, opts...)
	client := api.New(b, cfg.API.BaseURL, token)

	st := cfg.Storage
	ships, err := store.OpenShips(st.Dir, st.ShipStaleness.Duration, st.ShipRetention.Duration, nil)
	if err != nil {
		return err
	}
	cooldowns, err := store.OpenCooldowns(st.Dir, nil)
	if err != nil {
		return err
	}
	waypoints, err := store.OpenWaypointCache(st.Dir, st.WaypointTTL.Duration, nil)
	if err != nil {
		return err
	}
	surveys, err := store.OpenSurveyCache(st.Dir, st.SurveyTTL.Duration, nil)
	if err != nil {
		return err
	}
	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer hist.Close()

	actorDeps := actor.Deps{
		API:       client,
		Cooldowns: cooldowns,
		Ships:     ships,
		Waypoints: waypoints,
		Surveys:   surveys,
		Planner:   nav.New(cfg.Navigation.FuelOverhead, cfg.Navigation.SafetyMargin),
	}
	coord := coordinator.New(coordinator.Deps{
		API:       client,
		Ships:     ships,
		Cooldowns: cooldowns,
		Waypoints: waypoints,
		Surveys:   surveys,
		Workers:   coordinator.ActorWorkers(actorDeps, actorInbox),
		History:   hist,
	}, cfg.Coordinator)
	sched := goals.NewScheduler(coord, cfg.Scheduler.MaxActive, cfg.Scheduler.Interval.Duration, goals.WithHistory(hist))
	env := goals.Env{Fleet: coord, Contracts: client, Charts: waypoints}
	submit := func(ctx context.Context, p *goals.Plan) error {
		for _, g := range p.Build(env) {
			sched.Submit(ctx, g)
		}
		return nil
	}
	if runPlan != "" {
		plan, err := goals.LoadPlan(runPlan)
		if err != nil {
			return err
		}
		_ = submit(ctx, plan)
	}

	writer, cleanup, err := newWriter(runPrintOnly, runTUI, runLogFile)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := admin.NewServer(admin.Deps{
		Fleet:     coord,
		Scheduler: sched,
		Cooldowns: cooldowns,
		Broker:    b,
		History:   hist,
		Env:       env,
	})

	log.Info("fleet operator starting", "base_url", cfg.API.BaseURL, "tick", cfg.Coordinator.Tick.Duration, "admin", cfg.Admin.Addr)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { b.Run(ctx); return nil })
	g.Go(func() error { return coord.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return goals.WatchInbox(ctx, cfg.Scheduler.InboxDir, submit) })
	g.Go(func() error { return srv.Start(ctx, cfg.Admin.Addr) })
	g.Go(func() error { return report.Run(ctx, coord, writer, cfg.Coordinator.Tick.Duration) })
	err = g.Wait()
	log.Info("fleet operator stopped")
	return err
}
