package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mlanders/swarmd/internal/coordinator"
	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/events"
	"github.com/mlanders/swarmd/internal/executor"
	"github.com/mlanders/swarmd/internal/logging"
	"github.com/mlanders/swarmd/internal/metrics"
	"github.com/mlanders/swarmd/internal/model"
	"github.com/mlanders/swarmd/internal/store"
)

var (
	runObjective    string
	runStrategy     string
	runAgents       int
	runCapabilities []string
	runHeadless     bool
	runMetricsAddr  string
	runResume       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the coordinator",
	Long: `Start the coordinator with a pool of in-process agents.

With --objective, the description is decomposed into a task graph and
executed; the process exits when the objective reaches a terminal state.
Without it, the coordinator runs until interrupted.

By default a live dashboard is shown. Use --headless for batch jobs,
daemons, and CI.

Executor selection comes from config (executor.type): "simulated" sleeps
through each task, "command" runs a subprocess per task with the task's
instructions on stdin and its identity in SWARMD_* variables.`,
	RunE: runSwarm,
}

func init() {
	runCmd.Flags().StringVarP(&runObjective, "objective", "o", "", "Objective description to decompose and execute")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "auto", "Decomposition strategy: auto, research, development, analysis, testing, documentation")
	runCmd.Flags().IntVar(&runAgents, "agents", 3, "Number of agents to register")
	runCmd.Flags().StringSliceVar(&runCapabilities, "capabilities", nil, "Capabilities granted to every agent")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without the dashboard")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Restore state from the last snapshot before starting")
}

func runSwarm(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runAgents < 1 {
		return fmt.Errorf("--agents must be at least 1")
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	// Stderr logging corrupts the dashboard; without a log file, drop it.
	if !runHeadless && cfg.Logging.File == "" {
		logger = logging.Nop()
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if runMetricsAddr != "" {
		serveMetrics(ctx, runMetricsAddr, reg, logger)
	}

	var snaps store.SnapshotStore
	if cfg.Store.Path != "" {
		st, err := store.NewSQLiteStore(ctx, cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening snapshot store: %w", err)
		}
		defer st.Close()
		snaps = st
	}

	pm := executor.NewProcessManager()
	exec, err := executor.New(executor.Config{
		Type:    cfg.Executor.Type,
		Command: cfg.Executor.Command,
		Args:    cfg.Executor.Args,
		Delay:   cfg.Executor.Delay,
	}, pm, logger)
	if err != nil {
		return err
	}

	c, err := coordinator.New(coordinator.Options{
		Config:    cfg,
		Logger:    logger,
		Executor:  exec,
		Snapshots: snaps,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	if runResume {
		if snaps == nil {
			return fmt.Errorf("--resume requires store.path in the config")
		}
		if err := c.LoadSnapshot(ctx); err != nil {
			var nf *errors.NotFoundError
			if errors.As(err, &nf) {
				logger.Info("no snapshot to resume, starting fresh")
			} else {
				return err
			}
		}
	}

	agentIDs := make([]string, 0, runAgents)
	for i := 1; i <= runAgents; i++ {
		agent, err := c.RegisterAgent(fmt.Sprintf("worker-%d", i), "worker", runCapabilities)
		if err != nil {
			return err
		}
		agentIDs = append(agentIDs, agent.ID)
	}

	if err := c.Start(ctx); err != nil {
		return err
	}
	go heartbeatLoop(ctx, c, agentIDs, cfg.Health.HeartbeatTimeout/3)

	defer func() {
		if err := pm.KillAll(); err != nil {
			logger.Warn("killing leftover subprocesses", "error", err)
		}
	}()

	if runHeadless {
		return runHeadlessMode(ctx, c, logger)
	}
	return runDashboardMode(ctx, stop, c, cfg)
}

// runHeadlessMode executes the objective (if any) and blocks until it
// terminates or a signal arrives.
func runHeadlessMode(ctx context.Context, c *coordinator.Coordinator, logger *slog.Logger) error {
	// Subscribe before creating the objective so its terminal event cannot
	// be missed.
	objEvents := c.Events().Subscribe(events.TopicObjective, 16)

	objectiveID, err := createObjectiveFromFlags(ctx, c)
	if err != nil {
		_ = c.Stop(context.Background())
		return err
	}

	if objectiveID == "" {
		<-ctx.Done()
		return c.Stop(context.Background())
	}

	for {
		select {
		case <-ctx.Done():
			return c.Stop(context.Background())
		case ev, ok := <-objEvents:
			if !ok {
				return c.Stop(context.Background())
			}
			switch e := ev.(type) {
			case events.ObjectiveCompletedEvent:
				if e.ID == objectiveID {
					logger.Info("objective completed",
						"objective_id", e.ID,
						"tasks", e.Progress.Total,
						"duration", e.Duration)
					return c.Stop(context.Background())
				}
			case events.ObjectiveFailedEvent:
				if e.ID == objectiveID {
					_ = c.Stop(context.Background())
					return fmt.Errorf("objective failed: %s", e.Reason)
				}
			}
		}
	}
}

// createObjectiveFromFlags creates the objective named by --objective, or
// returns empty when the flag is unset.
func createObjectiveFromFlags(ctx context.Context, c *coordinator.Coordinator) (string, error) {
	if runObjective == "" {
		return "", nil
	}
	obj, err := c.CreateObjective(ctx, objectiveName(runObjective), runObjective, model.Strategy(runStrategy))
	if err != nil {
		return "", err
	}
	return obj.ID, nil
}

// objectiveName derives a short display name from the description.
func objectiveName(description string) string {
	const maxLen = 48
	if len(description) <= maxLen {
		return description
	}
	return description[:maxLen-3] + "..."
}

// heartbeatLoop keeps the in-process agents alive in the health monitor's
// eyes. Real deployments would have agents call Heartbeat themselves.
func heartbeatLoop(ctx context.Context, c *coordinator.Coordinator, agentIDs []string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range agentIDs {
				if err := c.Heartbeat(id); err != nil {
					return // coordinator stopped
				}
			}
		}
	}
}

// serveMetrics exposes the registry on addr until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
}
