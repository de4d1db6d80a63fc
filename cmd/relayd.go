// Package cmd contains the relayd command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/relay/cli"
	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/internal/daemon/engine"
	"github.com/grovetools/relay/internal/daemon/hub"
	"github.com/grovetools/relay/internal/daemon/pidfile"
	"github.com/grovetools/relay/internal/daemon/registry"
	"github.com/grovetools/relay/internal/daemon/router"
	"github.com/grovetools/relay/internal/daemon/server"
	"github.com/grovetools/relay/internal/daemon/store"
	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/paths"
)

const shutdownTimeout = 5 * time.Second

// NewStartCmd returns the daemon start command.
func NewStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the relay daemon in foreground mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cli.GetLogger(cmd, "relayd")

			cfgPath := cli.ConfigPath(cmd)
			if cfgPath == "" {
				cfgPath = paths.ConfigFilePath()
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logging.SetLevel(cfg.LogLevel)

			pidPath := paths.PidFilePath()
			if err := pidfile.Acquire(pidPath); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			reg, err := registry.New(st, logger)
			if err != nil {
				return fmt.Errorf("failed to load sessions: %w", err)
			}

			h := hub.New(logger)
			eng := engine.NewCLIEngine(cfg.Engine.Command, logger)
			rt := router.New(reg, st, h, eng, cfg.Engine.MaxBufferMB*1024*1024, logger)
			srv := server.New(rt, h, st, cfg.AuthToken, logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Config changes only retune the log level; everything else
			// needs a restart.
			watcher, err := config.NewWatcher(cfgPath, logger, func(c *config.Config) {
				logging.SetLevel(c.LogLevel)
			})
			if err != nil {
				logger.WithError(err).Warn("Config watcher disabled")
			} else {
				go watcher.Start(ctx)
				defer func() { _ = watcher.Close() }()
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-stop
				logger.Info("Received stop signal")

				rt.Shutdown()

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
				h.CloseAll()
				cancel()
			}()

			logger.WithField("pid", os.Getpid()).Info("Starting daemon")
			if err := srv.ListenAndServe(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
}

// NewStopCmd returns the daemon stop command.
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Println("Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Printf("Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

// NewStatusCmd returns the daemon status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			if running {
				fmt.Printf("Running (PID: %d)\n", pid)
			} else {
				fmt.Println("Stopped")
				os.Exit(1) // Return non-zero for stopped state (useful for scripts)
			}
			return nil
		},
	}
}
