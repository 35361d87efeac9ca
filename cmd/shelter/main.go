// Package main provides the shelter binary entry point.
// It serves the pet adoption catalogue API, the frontend pages and the
// contact form.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/shelter/config"
	"github.com/c360studio/shelter/storage"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "shelter"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Pet adoption shelter server",
		Long: `Shelter serves the pet adoption catalogue.

It provides:
- A JSON API for pets, shelters and user registration
- The frontend pages and static assets
- A contact form forwarded to a webhook or NATS subject`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags, os.Stderr)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(flags),
		migrateCmd(flags),
		seedCmd(flags),
		configCmd(flags),
		versionCmd(),
	)
	return cmd
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags, os.Stderr)
		},
	}
}

func migrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags, os.Stderr)
			if err != nil {
				return err
			}
			store, err := openStore(cmdContext(cmd), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready: %s\n", cfg.Database.DSN)
			return nil
		},
	}
}

func seedCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo catalogue into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags, os.Stderr)
			if err != nil {
				return err
			}
			store, err := openStore(cmdContext(cmd), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := store.Seed(cmdContext(cmd))
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			if res.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "Database already holds a catalogue, nothing to do")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d shelters and %d pets\n", res.Shelters, res.Pets)
			return nil
		},
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Long: `Write the default configuration to path, or to the user config
file (~/.config/shelter/config.yaml) when no path is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(levelOrDefault(flags.logLevel), "text", os.Stderr)
			loader := config.NewLoader(logger)

			path := ""
			if len(args) == 1 {
				path = args[0]
			} else if path = loader.UserConfigPath(); path == "" {
				return fmt.Errorf("cannot determine home directory")
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}

			var err error
			if len(args) == 1 {
				err = config.DefaultConfig().SaveToFile(path)
			} else {
				err = loader.EnsureUserConfig()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	})
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

func runServe(ctx context.Context, flags *globalFlags, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := setup(flags, logOut)
	if err != nil {
		return err
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	app, err := NewApp(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Error during shutdown", "error", err)
		}
	}()

	logger.Info("Shelter ready", "version", Version, "addr", cfg.Server.Addr)
	if err := app.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("Shelter shutdown complete")
	return nil
}

// setup loads the layered configuration and builds the logger it asks for.
// A --log-level flag wins over the configured level.
func setup(flags *globalFlags, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	bootstrap := newLogger(levelOrDefault(flags.logLevel), "text", logOut)

	cfg, err := config.NewLoader(bootstrap).Load(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logger := newLogger(cfg.Log.Level, cfg.Log.Format, logOut)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// newLogger builds a slog logger writing text or JSON records to w.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Store, error) {
	store, err := storage.Open(ctx, storage.Options{
		DSN:         cfg.Database.DSN,
		BusyTimeout: cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}
