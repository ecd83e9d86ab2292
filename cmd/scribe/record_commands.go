package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meetscribe/internal/ipc"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Control recording for a capture session",
	}

	var sessionKey string
	recordCmd.PersistentFlags().StringVarP(&sessionKey, "session", "s", "", "Session key of the capture context")

	requireSession := func() error {
		if sessionKey == "" {
			return fmt.Errorf("a session key is required (--session)")
		}
		return nil
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Begin recording the session's meeting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.RecordingStart(sessionKey); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Recording start requested")
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop recording and save the transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordingStop(sessionKey)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Skipped {
					fmt.Fprintf(stdout, "Recording not saved: %s\n", resp.Reason)
					return nil
				}
				fmt.Fprintln(stdout, "Recording saved")
				return nil
			})
		},
	}

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the active recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.RecordingPause(sessionKey); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Recording pause requested")
				return nil
			})
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.RecordingResume(sessionKey); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Recording resume requested")
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Stop recording and discard the captured data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.RecordingDelete(sessionKey); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Recording discarded")
				return nil
			})
		},
	}

	recordCmd.AddCommand(startCmd, stopCmd, pauseCmd, resumeCmd, deleteCmd)
	return recordCmd
}
