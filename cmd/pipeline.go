package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-mcdetect/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Print the GStreamer launch description for the configured cameras",
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, err := pipeline.Build(cfg.PipelineOptions())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), desc)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}
