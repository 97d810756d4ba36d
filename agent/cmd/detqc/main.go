package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/detqc/agent/internal/config"
)

// Exit codes of detqc check.
const (
	ExitGood   = 0
	ExitBad    = 1
	ExitError  = 2
	ExitMedium = 3
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI with args and returns the process exit code.
func run(args []string) int {
	code := ExitGood
	root := newRootCmd(&code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "detqc:", err)
		return ExitError
	}
	return code
}

func newRootCmd(code *int) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "detqc",
		Short:         "Detector data-quality evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd, opts.logLevel)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (built-in defaults when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")

	root.AddCommand(newCheckCmd(opts, code))
	root.AddCommand(newOccupancyCmd(opts))
	root.AddCommand(newServeCmd(opts))
	return root
}

func setupLogging(cmd *cobra.Command, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig returns the config at path, or the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	slog.Info("config loaded", "path", path, "metrics", len(cfg.Metrics), "source", cfg.Store.Source)
	return cfg, nil
}
