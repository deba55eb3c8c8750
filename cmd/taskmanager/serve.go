package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task manager and its HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(nil)
			if err != nil {
				return err
			}

			app, err := newApplication(cfg, logger, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().Int("max-concurrent", 4, "maximum number of operations running at once")
	bindFlag(opts.v, "server.port", cmd.Flags(), "port")
	bindFlag(opts.v, "scheduler.max_concurrent_operations", cmd.Flags(), "max-concurrent")
	return cmd
}
