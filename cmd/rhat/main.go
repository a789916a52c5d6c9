// Command rhat evaluates an insights rule over a list of support archives on
// a worker pool and prints the aggregate hit report
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rhat/internal/core/version"
	"rhat/internal/platform/logger"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var f analyzeFlags
	root := &cobra.Command{
		Use:   "rhat",
		Short: "Evaluate a rule over support archives and report the hits",
		Long: "rhat maps a rule over the archives listed in the input file on a worker\n" +
			"pool and prints hit counts by release, by response, and the similarity\n" +
			"of every check pair.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Info().String(),
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, f)
		},
	}
	f.bind(root)
	root.AddCommand(newWorkerCmd(), newPluginsCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Get().Error().Err(err).Msg("rhat failed")
		os.Exit(1)
	}
}
