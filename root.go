package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var cfg Config

	rootCmd := &cobra.Command{
		Use:           "scholarai",
		Short:         "Research assistant gateway for Gemini and OpenAI-compatible models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			cfg = loaded
			setupLogger(cfg, os.Stderr)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand(&cfg))
	rootCmd.AddCommand(newAskCommand(&cfg))
	rootCmd.AddCommand(newModelsCommand(&cfg))

	return rootCmd
}
