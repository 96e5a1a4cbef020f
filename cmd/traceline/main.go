// Command traceline runs the work management backend: the REST API,
// the email ingestion poller, and the supporting stores. Subcommands
// cover RSA key generation for work item signing and offline schedule
// solving.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/traceline/config"
	"github.com/c360studio/traceline/scheduler"
	"github.com/c360studio/traceline/signing"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "traceline"
)

func main() {
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

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "traceline",
		Short: "Work management backend",
		Long: `Traceline is a work management backend for engineering programs.

It provides:
- Versioned work items (requirements, tasks, risks, test specs, documents)
  stored in a property graph
- RSA-PSS digital signatures over canonical work item snapshots
- Sprint and backlog coordination with velocity and burndown reporting
- Dependency-aware project scheduling with resource capacity
- Email ingestion that turns replies into work item updates`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(keygenCmd())
	cmd.AddCommand(scheduleCmd())
	cmd.AddCommand(notifyCmd(&configPath))

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

func runServe(configPath, logLevel string) error {
	printBanner()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	level := new(slog.LevelVar)
	parsed, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	level.Set(parsed)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Hot-reload the log level when the config file changes.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, level, logger)
		if err != nil {
			logger.Warn("config watcher unavailable", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, logger)
	if err := app.Start(ctx); err != nil {
		return err
	}
	logger.Info("traceline ready", "version", Version, "addr", cfg.HTTP.Addr)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-app.Err():
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Stop(shutdownCtx)
}

func keygenCmd() *cobra.Command {
	var (
		bits   int
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA key pair for work item signing",
		RunE: func(cmd *cobra.Command, args []string) error {
			privPEM, pubPEM, err := signing.GenerateKeyPair(bits)
			if err != nil {
				return fmt.Errorf("generate key pair: %w", err)
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			privPath := filepath.Join(outDir, "private.pem")
			pubPath := filepath.Join(outDir, "public.pem")
			if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}
			fmt.Printf("Wrote %s and %s\n", privPath, pubPath)
			return nil
		},
	}

	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size in bits")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	return cmd
}

func scheduleCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "schedule <problem.json>",
		Short: "Solve a scheduling problem from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read problem file: %w", err)
			}
			var problem scheduler.Problem
			if err := json.Unmarshal(data, &problem); err != nil {
				return fmt.Errorf("parse problem file: %w", err)
			}

			solver := scheduler.NewSolver(scheduler.WithTimeout(timeout))
			sched, err := solver.Solve(cmd.Context(), problem)
			if err != nil {
				return fmt.Errorf("solve: %w", err)
			}

			out, err := json.MarshalIndent(sched, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Solve time limit")
	return cmd
}

func notifyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify <workitem-id> <recipient>...",
		Short: "Email a work instruction for a work item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return runNotify(ctx, cfg, args[0], args[1:])
		},
	}
	return cmd
}

func printBanner() {
	fmt.Printf(`
 _____                    _ _
|_   _| __ __ _  ___ ___ | (_)_ __   ___
  | || '__/ _`+"`"+` |/ __/ _ \| | | '_ \ / _ \
  | || | | (_| | (_|  __/| | | | | |  __/
  |_||_|  \__,_|\___\___||_|_|_| |_|\___|

  %s v%s
`, "work management backend", Version)
}
