// Package cmd - Command line interface of the multi-camera detection demo.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-mcdetect/config"
	"github.com/nvr-ai/go-mcdetect/logging"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string
	envFiles   []string

	// cfg and logger are set by the root command before any subcommand runs.
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "mcdetect",
	Short:         "Multi-camera YOLOv8 detection compositing demo",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFiles...); err != nil {
			return err
		}

		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if logger, err = logging.New(cfg.Log); err != nil {
			return err
		}
		logger.Debug("configuration loaded",
			zap.String("path", configPath),
			zap.Int("cameras", cfg.NumberCameras),
			zap.String("device", string(cfg.InferenceDevice)),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command until it returns or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "environment files to load (default: .env)")
}
