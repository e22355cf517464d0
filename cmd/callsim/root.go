package main

import (
	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "callsim",
		Short: "Simulate calls to the clinic scheduling agent",
		Long: `callsim plays the caller's side of a scheduling call.

Examples:
  callsim chat                                   # in-process agent, keyword extraction
  callsim chat --url http://localhost:8080       # talk to a running API
  callsim normalize "next friday" --ref 2026-10-13
  callsim extract "tomorrow at the arlington heights office" --provider bedrock`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "log level for the in-process agent")

	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newNormalizeCmd())
	cmd.AddCommand(newExtractCmd(opts))
	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) *logging.Logger {
	return logging.NewWithWriter(cmd.ErrOrStderr(), o.logLevel)
}
