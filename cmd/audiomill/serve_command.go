package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"audiomill/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var stdout bool
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if bind := ctx.apiBind(); bind != "" {
				cfg.Paths.APIBind = bind
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				Version:     version,
				Stdout:      stdout,
			})
		},
	}

	cmd.Flags().BoolVar(&stdout, "stdout", true, "Mirror daemon logs to stdout")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}
