package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sandboxfs/internal/config"
	"sandboxfs/internal/fs"
	"sandboxfs/internal/logging"
	"sandboxfs/internal/reconfig"
	"sandboxfs/internal/state"
)

var (
	logger = logging.GetLogger()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandboxfs [flags] MOUNT_POINT",
		Short: "sandboxfs, a FUSE file system exposing a virtual view of host paths",
		Long: `sandboxfs mounts a virtual directory tree in which every entry is either
an intermediate directory or a mapping of a host path, read-only or read-write.

Mappings are given with --mapping TYPE:VIRTUAL:HOST or listed in a YAML file.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	config.RegisterFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v, err := config.NewViper(cmd.Flags())
		if err != nil {
			return err
		}
		settings, err := config.Load(v, filepath.Clean(args[0]))
		if err != nil {
			return err
		}
		return run(cmd.Context(), settings)
	}
	return cmd
}

func run(ctx context.Context, settings *config.Settings) error {
	if settings.Verbose {
		logger.SetLevel(logging.LevelDebug)
	}

	logger.Info("Starting sandboxfs...")
	logger.Debug("Mount point: %s", settings.MountPoint)
	if logger.Enabled(logging.LevelDebug) {
		for _, m := range settings.Mappings {
			logger.Debug("Mapping: %s", m)
		}
	}

	opts := []fs.Option{fs.WithAttrTTL(settings.TTL)}
	var stateManager *state.Manager
	var recorded []fs.Mapping
	if settings.StatePath != "" {
		logger.Info("Initializing state manager...")
		var err error
		stateManager, err = state.NewManager(settings.StatePath)
		if err != nil {
			return fmt.Errorf("failed to initialize state manager: %w", err)
		}
		fsState, err := stateManager.LoadState()
		if err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}
		recorded = fsState.Mappings
		opts = append(opts, fs.WithMapHook(stateManager.Record))
	}

	logger.Info("Creating sandbox...")
	sfs, err := fs.NewSandboxFS(settings.Mappings, opts...)
	if err != nil {
		return fmt.Errorf("failed to create sandbox: %w", err)
	}

	if stateManager != nil {
		for _, m := range sfs.Mappings() {
			if err := stateManager.Record(m); err != nil {
				return fmt.Errorf("failed to record mapping %s: %w", m, err)
			}
		}
		for _, m := range state.Pending(recorded, settings.Mappings) {
			logger.Info("Replaying recorded mapping %s", m)
			if err := sfs.Map(m); err != nil {
				logger.Warn("Could not replay mapping %s: %v", m, err)
			}
		}
	}

	logger.Info("Mounting filesystem...")
	if err := sfs.Mount(settings.MountPoint, settings.AllowOther); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return sfs.Serve()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		if err := sfs.Unmount(settings.MountPoint); err != nil {
			logger.Warn("Unmount error: %v", err)
		}
		return nil
	})

	if settings.Reconfig {
		// Not part of the group: a read from stdin cannot be interrupted, so
		// waiting for it would block shutdown.
		go func() {
			if err := reconfig.Run(gctx, os.Stdin, os.Stdout, sfs); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Reconfiguration failed: %v", err)
				cancel()
			}
		}()
	}

	logger.Info("Filesystem mounted and ready")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Clean shutdown complete")
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
