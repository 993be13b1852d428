package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/config"
	"github.com/fyrsmithlabs/pland/internal/events"
	planhttp "github.com/fyrsmithlabs/pland/internal/http"
	"github.com/fyrsmithlabs/pland/internal/logging"
	"github.com/fyrsmithlabs/pland/internal/state"
	"github.com/fyrsmithlabs/pland/internal/task"
	"github.com/fyrsmithlabs/pland/internal/taskmgr"
	"github.com/fyrsmithlabs/pland/internal/telemetry"
	"github.com/fyrsmithlabs/pland/internal/validator"
	"github.com/fyrsmithlabs/pland/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon with the status API",
	Long: `Load the planning documents, resume any persisted execution state,
and serve the status API until interrupted.

Examples:
  # Serve the plan in the current directory
  pland serve

  # Serve a specific spec directory
  PLAND_DOCUMENTS_SPEC_DIR=/work/specs/payment pland serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	tel, err := telemetry.New(cmd.Context(), &cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	mgr, err := buildManager(cfg, logger)
	if err != nil {
		return err
	}

	broker := events.NewBroker(logger)
	defer broker.Close()
	mgr.Graph().AddListener(broker.Dispatch)

	if cfg.Events.NATSURL != "" {
		conn, err := events.Connect(cfg.Events.NATSURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		pub, err := events.NewPublisher(conn, logger)
		if err != nil {
			return err
		}
		mgr.Graph().AddListener(pub.Dispatch)
		logger.Info("mirroring events to nats", zap.String("url", cfg.Events.NATSURL))
	}

	if cfg.Watch.Enabled {
		watcher, err := watch.NewWatcher(cfg.Documents.SpecDir, logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	val := validator.NewService(&validator.Config{
		CacheTTL: cfg.Validator.CacheTTL,
		Timeout:  cfg.Validator.Timeout,
	}, logger)

	srv, err := planhttp.NewServer(mgr, broker, val, logger, &planhttp.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		MaxAttempts: cfg.Ralph.MaxAttempts,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// buildManager parses tasks.md and wires the task manager over the
// persisted execution snapshot.
func buildManager(cfg *config.Config, logger *zap.Logger) (*taskmgr.Manager, error) {
	tasksPath := filepath.Join(cfg.Documents.SpecDir, "tasks.md")
	data, err := os.ReadFile(tasksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", tasksPath, err)
	}
	g, err := task.ParseTasksDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", tasksPath, err)
	}

	store, err := state.NewStore(cfg.State.Path, logger)
	if err != nil {
		return nil, err
	}
	return taskmgr.NewManager(cfg.Documents.SpecDir, g, store, logger)
}
