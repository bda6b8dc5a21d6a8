package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/silverhadch/arkdep/internal/config"
	"github.com/silverhadch/arkdep/internal/logging"
	"github.com/silverhadch/arkdep/internal/pipeline"
	"github.com/silverhadch/arkdep/internal/runner"
	"github.com/silverhadch/arkdep/internal/variant"
)

const defaultLogLevel = "info"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.New(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("build interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("build failed", "error", err)
		if errors.Is(err, variant.ErrNoBuildType) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	logLevel := defaultLogLevel

	root := &cobra.Command{
		Use:           "arkdep-build",
		Short:         "Build immutable btrfs root images for atomic updates",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		if levelVar != nil {
			levelVar.Set(level)
		}
		return nil
	}

	root.AddCommand(
		newBuildCommand(logger),
		newListCommand(logger),
	)
	return root
}

func newBuildCommand(logger *slog.Logger) *cobra.Command {
	var (
		configDir   string
		outputDir   string
		imageName   string
		noCleanup   bool
		skipArchive bool
	)

	cmd := &cobra.Command{
		Use:   "build <variant>",
		Args:  cobra.ExactArgs(1),
		Short: "Build the filesystem images for the named variant",
		RunE: func(cmd *cobra.Command, args []string) error {
			variantName := strings.TrimSpace(args[0])
			if variantName == "" {
				return fmt.Errorf("variant name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("config-dir") {
				cfg.ConfigDir = configDir
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if cmd.Flags().Changed("name") {
				cfg.ImageName = imageName
			}
			if cmd.Flags().Changed("no-cleanup") {
				cfg.NoCleanup = noCleanup
			}
			if cmd.Flags().Changed("skip-archive") {
				cfg.SkipArchive = skipArchive
			}

			cmdLogger := logger.With("command", "build")
			controller := &pipeline.Controller{
				Config: cfg,
				Run:    &runner.Exec{Logger: cmdLogger},
				Logger: cmdLogger,
			}
			return controller.Build(cmd.Context(), variantName)
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", config.DefaultConfigDir, "Configuration root holding variant directories")
	cmd.Flags().StringVar(&outputDir, "output-dir", config.DefaultOutputDir, "Directory receiving build artifacts")
	cmd.Flags().StringVar(&imageName, "name", "", "Deterministic image name override")
	cmd.Flags().BoolVar(&noCleanup, "no-cleanup", false, "Leave scratch state in place for postmortem debugging")
	cmd.Flags().BoolVar(&skipArchive, "skip-archive", false, "Skip tar.zst bundling of the output directory")

	return cmd
}

func newListCommand(logger *slog.Logger) *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured variants and their build types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("config-dir") {
				cfg.ConfigDir = configDir
			}

			names, err := variant.List(cfg.ConfigDir)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				logger.Warn("no variants configured", "config_dir", cfg.ConfigDir)
				return nil
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				v, err := variant.Load(cfg.ConfigDir, name)
				if err != nil {
					fmt.Fprintf(out, "%s\t(invalid: %v)\n", name, err)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", v.Name, v.Type)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", config.DefaultConfigDir, "Configuration root holding variant directories")

	return cmd
}
