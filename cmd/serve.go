package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/grovetools/relay/cli"
	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/internal/daemon/pidfile"
	"github.com/grovetools/relay/internal/daemon/server"
	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/daemon"
	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/paths"
	"github.com/grovetools/relay/pkg/relay"
	"github.com/grovetools/relay/pkg/sessions"
	"github.com/grovetools/relay/pkg/transcript"
	"github.com/grovetools/relay/state"
	"github.com/grovetools/relay/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd returns the daemon command with its subcommands.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Manage the relay daemon",
		Long:  "The daemon owns every session and serves the relay API on a unix socket.",
	}

	cmd.AddCommand(newServeStartCmd())
	cmd.AddCommand(newServeStopCmd())
	cmd.AddCommand(newServeStatusCmd())
	return cmd
}

func newServeStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			return runDaemon(cmd, env)
		},
	}
}

func runDaemon(cmd *cobra.Command, env *environment) error {
	logger := cli.GetLogger(cmd, "relayd")
	pidPath := paths.PidFilePath()
	socket := env.socket()

	if err := pidfile.Acquire(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	if pruned, err := sessions.Prune(paths.LiveDir()); err != nil {
		logger.WithError(err).Warn("Failed to prune live-process records")
	} else if pruned > 0 {
		logger.Infof("Pruned %d interrupted agent processes", pruned)
	}
	tracker, err := sessions.NewFileSystemRegistry(paths.LiveDir())
	if err != nil {
		return err
	}

	bus := events.New()
	reg := relay.New(
		relay.WithConfig(env.cfg),
		relay.WithStore(state.NewStore(paths.SnapshotDir())),
		relay.WithTracker(tracker),
		relay.WithBus(bus),
		relay.WithHomesDir(paths.HomesDir()),
		relay.WithLogger(logging.NewLogger("relay")),
	)

	if env.cfg.Daemon.TranscriptsEnabled() {
		recorder := transcript.NewRecorder(paths.TranscriptDir(), bus)
		recorder.Start()
		defer recorder.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if env.cfg.Daemon.WatchEnabled() {
		watcher, err := daemon.NewConfigWatcher(watchDirs(env.cfg), daemon.DefaultDebounce,
			func() (*config.Config, error) { return cli.LoadConfig(env.opts) },
			func(file string, cfg *config.Config) {
				reg.UpdateConfig(cfg)
				bus.ConfigReloaded(file)
			})
		if err != nil {
			logger.WithError(err).Warn("Config watching disabled")
		} else {
			go watcher.Start(ctx)
			defer watcher.Close()
		}
	}

	restored, err := reg.RestoreSessions()
	if err != nil {
		logger.WithError(err).Warn("Failed to restore sessions")
	}
	if len(restored) > 0 {
		logger.WithField("sessions", restored).Infof("Restored %d sessions", len(restored))
	}

	srv := server.New(reg, logger)
	sources := make(map[string]string, len(env.cfg.Sources))
	for source, file := range env.cfg.Sources {
		sources[string(source)] = file
	}
	srv.SetRunningConfig(&models.RunningConfig{
		PID:       os.Getpid(),
		Version:   version.GetInfo().Version,
		Socket:    socket,
		StartedAt: time.Now(),
		Sources:   sources,
	})

	go func() {
		<-ctx.Done()
		logger.Info("Received stop signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	logger.WithFields(logrus.Fields{"pid": os.Getpid(), "socket": socket}).Info("Starting relay daemon")
	serveErr := srv.ListenAndServe(socket)
	reg.Close()
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

// watchDirs lists the directories whose relay config files feed the daemon.
func watchDirs(cfg *config.Config) []string {
	seen := map[string]bool{paths.ConfigDir(): true}
	if cwd, err := os.Getwd(); err == nil {
		seen[cwd] = true
	}
	for _, file := range cfg.Sources {
		seen[filepath.Dir(file)] = true
	}
	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			client, err := daemon.Dial(env.socket())
			if err != nil {
				if running, pid, _ := pidfile.IsRunning(paths.PidFilePath()); running {
					return fmt.Errorf("daemon process %d is running but its socket is unreachable: %w", pid, err)
				}
				return err
			}
			defer client.Close()

			running, err := client.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			if env.opts.JSONOutput {
				return printJSON(cmd.OutOrStdout(), running)
			}

			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pretty.Success("Running")
			pretty.Field("PID", running.PID)
			pretty.Field("Version", running.Version)
			pretty.Path("Socket", running.Socket)
			pretty.Field("Uptime", time.Since(running.StartedAt).Round(time.Second))
			pretty.Field("Sessions", running.Sessions)
			for _, source := range []config.ConfigSource{config.SourceGlobal, config.SourceProject, config.SourceOverride} {
				if file, ok := running.Sources[string(source)]; ok {
					pretty.Path("Config ("+string(source)+")", file)
				}
			}
			return nil
		},
	}
}
