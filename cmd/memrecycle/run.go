package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dreamsxin/memrecycle/config"
	"github.com/dreamsxin/memrecycle/ipc"
	"github.com/dreamsxin/memrecycle/logging"
	"github.com/dreamsxin/memrecycle/manager"
	"github.com/dreamsxin/memrecycle/monitor"
	"github.com/dreamsxin/memrecycle/notify"
	"github.com/dreamsxin/memrecycle/policy"
	"github.com/dreamsxin/memrecycle/system"
	"github.com/dreamsxin/memrecycle/types"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the memory watchdog in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), ctx)
		},
	}
}

func runDaemon(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Log)
	defer logger.Close()
	log := logger.Component("daemon")

	if err := os.MkdirAll(filepath.Dir(cfg.Runtime.LockPath), 0o755); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}
	lock := flock.New(cfg.Runtime.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another memrecycle daemon is already running (lock %s)", cfg.Runtime.LockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Msg("Failed to release daemon lock")
		}
	}()

	store := config.NewSettingsStore(cfg.Runtime.SettingsPath, cfg.Policy)
	initial, err := store.Load()
	if err != nil {
		log.Warn().Err(err).Str("path", store.Path()).Msg("Could not read saved settings, using configured policy")
	}

	pol, err := policy.New(initial, store, logger.Logger)
	if err != nil {
		return fmt.Errorf("initial policy: %w", err)
	}
	// final save at shutdown, after every other component has stopped
	defer func() {
		if err := pol.Save(); err != nil {
			log.Error().Err(err).Msg("Failed to save settings on shutdown")
		}
	}()

	ops := manager.NewProcessManager(manager.Options{
		GraceTimeout: cfg.Recycle.GraceTimeout,
		KillTimeout:  cfg.Recycle.KillTimeout,
		RestoreArgs:  cfg.Recycle.RestoreArgs,
	}, logger.Logger)

	ctrl := manager.NewController(pol, monitor.NewProcessMonitor(logger.Logger), ops, logger.Logger,
		manager.WithHostProbe(system.NewHostProbe()),
		manager.WithNotifier(notify.New(cfg.Notify.NtfyTopic, cfg.Notify.RequestTimeout)),
	)

	socket := ctx.socketPath()
	srv, err := ipc.NewServer(signalCtx, socket, ctrl, cfg.Choices.Processes, logger.Logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}

	p := pol.Snapshot()
	log.Info().
		Str("process", p.ProcessName).
		Int64("memory_threshold_mb", p.MemoryThresholdMB).
		Dur("check_interval", p.CheckInterval()).
		Str("socket", socket).
		Str("config", ctx.configPath).
		Msg("memrecycle started")

	serve(signalCtx, log, ctrl, srv)
	log.Info().Msg("memrecycle shutting down")
	return nil
}

// serve answers operator requests while the first check runs, then hands
// over to the scheduler until ctx ends
func serve(ctx context.Context, log zerolog.Logger, ctrl *manager.Controller, srv *ipc.Server) {
	srv.Serve()
	defer srv.Close()

	// sample once so status has something to show before the first tick
	if res, err := ctrl.Trigger(ctx, types.TriggerTimer); err == nil {
		log.Info().Str("outcome", res.Outcome.String()).Msg(ipc.DisplayLine(ctrl.Display()))
	}

	ctrl.Start(ctx)
	defer ctrl.Stop()

	<-ctx.Done()
}
