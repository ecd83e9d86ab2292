package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"meetscribe/internal/ipc"
	"meetscribe/internal/session"
	"meetscribe/internal/store"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse saved meeting sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionHistory(limit)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(stdout, "No saved sessions")
					return nil
				}
				rows := buildHistoryRows(resp.Entries)
				table := renderTable(
					[]string{"ID", "Title", "Platform", "Saved", "Duration", "Captions", "Chat"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	sessionsCmd.Flags().Int("limit", 0, "Maximum number of sessions to list (0 uses the configured history limit)")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the transcript of a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.HistoryRecord(id)
				if err != nil {
					return err
				}
				if resp.Record == nil {
					return fmt.Errorf("no saved session with id %d", id)
				}
				printTranscript(cmd, resp.Record)
				return nil
			})
		},
	}

	lastCmd := &cobra.Command{
		Use:   "last",
		Short: "Print the most recently saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LastSaved()
				if err != nil {
					return err
				}
				if resp.Record == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions")
					return nil
				}
				printTranscript(cmd, resp.Record)
				return nil
			})
		},
	}

	sessionsCmd.AddCommand(showCmd, lastCmd)
	return sessionsCmd
}

func buildHistoryRows(entries []store.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		saved := ""
		if !entry.SavedAt.IsZero() {
			saved = entry.SavedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			displayTitle(entry.Title),
			platformLabel(entry.Platform),
			saved,
			formatDuration(time.Duration(entry.Duration) * time.Millisecond),
			strconv.Itoa(entry.CaptionCount),
			strconv.Itoa(entry.ChatCount),
		})
	}
	return rows
}

func printTranscript(cmd *cobra.Command, rec *session.Record) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Title:    %s\n", displayTitle(rec.MeetingInfo.Title))
	fmt.Fprintf(stdout, "Platform: %s\n", rec.MeetingInfo.Platform)
	if rec.MeetingInfo.URL != "" {
		fmt.Fprintf(stdout, "URL:      %s\n", rec.MeetingInfo.URL)
	}
	fmt.Fprintf(stdout, "Duration: %s\n", formatDuration(rec.RecordTimings.TotalDuration))
	if len(rec.MeetingInfo.Attendees) > 0 {
		fmt.Fprintf(stdout, "Attendees: %d\n", len(rec.MeetingInfo.Attendees))
	}
	fmt.Fprintln(stdout)

	if len(rec.Captions) == 0 {
		fmt.Fprintln(stdout, "No captions captured")
	}
	for _, caption := range rec.Captions {
		stamp := caption.Timestamp.Local().Format("15:04:05")
		fmt.Fprintf(stdout, "[%s] %s: %s\n", stamp, caption.Speaker, caption.Text)
	}

	if len(rec.ChatMessages) > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Chat:")
		for _, msg := range rec.ChatMessages {
			stamp := msg.Timestamp.Local().Format("15:04:05")
			fmt.Fprintf(stdout, "[%s] %s: %s\n", stamp, msg.Speaker, msg.Message)
		}
	}
}
