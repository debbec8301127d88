// Package cmd provides the entrypoint and CLI command configuration for
// qontrol.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/config"
	"github.com/qontrol/qontrol/internal/dashboard"
	"github.com/qontrol/qontrol/internal/logging"
	"github.com/qontrol/qontrol/internal/redistrace"
	"github.com/qontrol/qontrol/internal/server"
	"github.com/qontrol/qontrol/internal/tui"
)

func buildVersion(version, commit, date, builtBy string) string {
	result := version
	if commit != "" {
		result = fmt.Sprintf("%s\ncommit: %s", result, commit)
	}
	if date != "" {
		result = fmt.Sprintf("%s\nbuilt at: %s", result, date)
	}
	if builtBy != "" {
		result = fmt.Sprintf("%s\nbuilt by: %s", result, builtBy)
	}
	result = fmt.Sprintf("%s\ngoos: %s\ngoarch: %s", result, runtime.GOOS, runtime.GOARCH)
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		result = fmt.Sprintf("%s\nmodule version: %s, checksum: %s", result, info.Main.Version, info.Main.Sum)
	}

	return result
}

// Execute initializes and runs the qontrol command line.
func Execute(version, commit, date, builtBy string) error {
	rootCmd := newRootCmd(version)
	rootCmd.Version = buildVersion(version, commit, date, builtBy)
	rootCmd.SetVersionTemplate(`qontrol {{printf "version %s\n" .Version}}`)

	return fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(rootCmd.Version),
		fang.WithoutCompletions(),
		fang.WithoutManpage(),
	)
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qontrol",
		Short: "Monitor and administer BullMQ queues.",
		Long:  "Monitor and administer BullMQ queues over HTTP or in the terminal.",
		Args:  cobra.NoArgs,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("redis", "", "redis URL (overrides REDIS_URL and host settings)")
	flags.String("prefix", bullmq.DefaultPrefix, "BullMQ key prefix")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")

	rootCmd.AddCommand(
		newServeCmd(version),
		newTopCmd(version),
		newQueuesCmd(version),
	)
	return rootCmd
}

func newServeCmd(version string) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard HTTP API.",
		Args:  cobra.NoArgs,
	}
	serveCmd.Flags().String("listen", ":3000", "address to listen on")
	serveCmd.Flags().String("cors-origin", "*", "allowed CORS origin, empty disables CORS headers")
	serveCmd.Flags().Bool("trace-redis", false, "record recent Redis commands at /api/debug/redis")

	serveCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := logging.New(cfg.Log)

		var trace *redistrace.Recorder
		opts := cfg.RedisOptions()
		if cfg.Server.TraceRedis {
			trace = redistrace.NewRecorder(redistrace.DefaultLimit)
			opts.Hooks = append(opts.Hooks, trace.Hook())
		}

		client, err := bullmq.NewClient(cfg.RedisURL(), opts)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer func() {
			_ = client.Close()
		}()

		svc := dashboard.New(client, dashboard.Options{Logger: logger, Version: version})
		defer func() {
			_ = svc.Close()
		}()

		srv := server.New(svc, server.Options{
			Logger:          logger,
			CORSOrigin:      cfg.Server.CORSOrigin,
			WSInterval:      cfg.Server.WSInterval,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Trace:           trace,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("starting qontrol", "version", version, "config", cfg.String())
		if err := srv.Run(ctx, cfg.Server.Listen); err != nil {
			logger.Error("server stopped", logging.Err(err))
			return err
		}
		logger.Info("server stopped")
		return nil
	}
	return serveCmd
}

func newTopCmd(version string) *cobra.Command {
	var enableDangerousActions bool
	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Watch queues in the terminal.",
		Args:  cobra.NoArgs,
	}
	topCmd.Flags().String("cpuprofile", "", "write cpu profile to file")
	topCmd.Flags().Duration("interval", 0, "refresh interval (defaults to the ws interval)")
	topCmd.Flags().BoolVar(
		&enableDangerousActions,
		"danger",
		false,
		"enable pause, resume, retry and remove",
	)
	topCmd.Flags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		switch name {
		case "yolo":
			name = "danger"
		}
		return pflag.NormalizedName(name)
	})

	topCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cpuprofile, err := cmd.Flags().GetString("cpuprofile")
		if err != nil {
			return fmt.Errorf("parse cpuprofile flag: %w", err)
		}
		interval, err := cmd.Flags().GetDuration("interval")
		if err != nil {
			return fmt.Errorf("parse interval flag: %w", err)
		}
		if interval <= 0 {
			interval = cfg.Server.WSInterval
		}

		client, err := bullmq.NewClient(cfg.RedisURL(), cfg.RedisOptions())
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer func() {
			_ = client.Close()
		}()

		// The terminal is owned by the view; logs would corrupt it.
		svc := dashboard.New(client, dashboard.Options{Logger: logging.Discard(), Version: version})
		defer func() {
			_ = svc.Close()
		}()

		if cpuprofile != "" {
			profileFile, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("create cpuprofile file: %w", err)
			}
			if err := pprof.StartCPUProfile(profileFile); err != nil {
				_ = profileFile.Close()
				return fmt.Errorf("start cpu profile: %w", err)
			}
			defer func() {
				pprof.StopCPUProfile()
				_ = profileFile.Close()
			}()
		}

		app := tui.New(svc, tui.Options{
			Danger:   enableDangerousActions,
			Interval: interval,
			Target:   client.DisplayRedisURL(),
		})
		p := tea.NewProgram(app, tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run qontrol top: %w", err)
		}
		return nil
	}
	return topCmd
}

func newQueuesCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Print discovered queues with job counts as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := bullmq.NewClient(cfg.RedisURL(), cfg.RedisOptions())
			if err != nil {
				return fmt.Errorf("create redis client: %w", err)
			}
			defer func() {
				_ = client.Close()
			}()

			logger := logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
			svc := dashboard.New(client, dashboard.Options{Logger: logger, Version: version})
			defer func() {
				_ = svc.Close()
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(svc.Registry.AllQueuesInfo(cmd.Context()))
		},
	}
}

// loadConfig resolves the layered configuration and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("parse config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	stringFlags := map[string]*string{
		"redis":       &cfg.Redis.URL,
		"prefix":      &cfg.Queue.Prefix,
		"log-level":   &cfg.Log.Level,
		"log-format":  &cfg.Log.Format,
		"listen":      &cfg.Server.Listen,
		"cors-origin": &cfg.Server.CORSOrigin,
	}
	for name, dest := range stringFlags {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		if *dest, err = flags.GetString(name); err != nil {
			return nil, fmt.Errorf("parse %s flag: %w", name, err)
		}
	}
	if flags.Lookup("trace-redis") != nil && flags.Changed("trace-redis") {
		if cfg.Server.TraceRedis, err = flags.GetBool("trace-redis"); err != nil {
			return nil, fmt.Errorf("parse trace-redis flag: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
