package main

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

type globalFlags struct {
	configPath string
	verbose    bool
}

// NewRootCommand creates and returns the root cobra command for planflow
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "planflow",
		Short: "Plan, research and report on wine questions",
		Long: `planflow answers research questions with a reviewed plan.

A coordinator decides whether a request needs research, a planner drafts
a step plan for you to accept or edit, researcher and coder agents run
the steps, and a reporter writes the final answer. Every step is
checkpointed, so interrupted runs can be resumed.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "planflow.yaml", "config file")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log workflow events to stderr")

	cmd.AddCommand(NewRunCommand(flags))
	cmd.AddCommand(NewResumeCommand(flags))
	cmd.AddCommand(NewShowCommand(flags))
	cmd.AddCommand(NewThreadsCommand(flags))
	cmd.AddCommand(NewDeleteCommand(flags))
	cmd.AddCommand(NewServeCommand(flags))
	cmd.AddCommand(NewConfigCommand(flags))

	return cmd
}
