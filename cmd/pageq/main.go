package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/rzbill/pageq/internal/cmd/client"
	serverrun "github.com/rzbill/pageq/internal/cmd/server"
	cfgpkg "github.com/rzbill/pageq/internal/config"
	"github.com/rzbill/pageq/internal/runtime"
	logpkg "github.com/rzbill/pageq/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pageq",
		Short: "pageq bounded multi-origin message queue",
		Long: `pageq keeps one bounded message queue per origin, accounts each queue
in messages, bytes and pages, and services ready origins round-robin under
a per-pass weight budget.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", os.Getenv("PAGEQ_CONFIG"), "Path to a JSON config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text|json (default text)")

	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "Service the queues on an interval until interrupted",
		Aliases: []string{"start"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			intervalMs, _ := cmd.Flags().GetInt("interval-ms")
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				Config:   cfg,
				Interval: time.Duration(intervalMs) * time.Millisecond,
			}); err != nil {
				return fmt.Errorf("run error: %w", err)
			}
			return nil
		},
	}
	runCmd.Flags().Int("interval-ms", int(serverrun.DefaultInterval/time.Millisecond), "Pause between service passes in ms")
	rootCmd.AddCommand(runCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.DataDir = cfg.ResolveDataDir()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
	rootCmd.AddCommand(configCmd)

	open := func(cmd *cobra.Command) (*runtime.Runtime, error) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		logger, err := logpkg.ApplyConfig(cfg.Log)
		if err != nil {
			return nil, err
		}
		logpkg.RedirectStdLog(logger)
		return runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	}
	rootCmd.AddCommand(clientcmd.NewQueueCommand(open))
	rootCmd.AddCommand(clientcmd.NewAuditCommand(open))
	return rootCmd
}

// loadConfig layers the config file, PAGEQ_* variables and flags, in that
// order, and validates the result.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}
