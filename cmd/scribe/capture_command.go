package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meetscribe/internal/capturerun"
	"meetscribe/internal/logging"
)

// newCaptureCommand runs a page-bound capture context in the foreground.
// The page shim opens a websocket endpoint per meeting tab; this command
// bridges one such endpoint to the daemon.
func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var sessionKey string
	var shimURL string

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Attach a capture context to a meeting page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			return capturerun.Run(cmd.Context(), cfg, logger, capturerun.Options{
				SessionKey: sessionKey,
				ShimURL:    shimURL,
			})
		},
	}

	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "Session key identifying this capture context")
	cmd.Flags().StringVar(&shimURL, "shim-url", "", "Websocket URL of the page shim")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("shim-url")
	return cmd
}
