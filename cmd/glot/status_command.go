package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"glot/internal/api"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [content-id]",
		Short: "Show daemon health or per-locale generate state for a content",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return runDaemonStatus(cmd, client)
			}
			return runContentStatus(cmd, client, args[0])
		},
	}
}

func runDaemonStatus(cmd *cobra.Command, client *apiClient) error {
	var status api.DaemonStatus
	if err := client.get(cmd.Context(), "/api/status", &status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	running := "stopped"
	if status.Running {
		running = "running"
	}
	fmt.Fprintf(out, "Daemon:   %s\n", running)
	fmt.Fprintf(out, "Database: %s\n", status.DBPath)
	fmt.Fprintf(out, "Lock:     %s\n", status.LockFilePath)

	if len(status.Generation) == 0 {
		fmt.Fprintln(out, "No generation records yet")
		return nil
	}
	states := make([]string, 0, len(status.Generation))
	for state := range status.Generation {
		states = append(states, state)
	}
	sort.Strings(states)
	rows := make([][]string, 0, len(states))
	for _, state := range states {
		rows = append(rows, []string{state, strconv.Itoa(status.Generation[state])})
	}
	fmt.Fprintln(out, renderTable([]string{"STATE", "RECORDS"}, rows, 1))
	return nil
}

func runContentStatus(cmd *cobra.Command, client *apiClient, contentID string) error {
	var status api.GenerateStatusResponse
	if err := client.get(cmd.Context(), "/api/content/"+contentID+"/generate", &status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(status.Locales) == 0 {
		fmt.Fprintf(out, "No generate state for %s\n", contentID)
		return nil
	}

	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(status.Locales))
	for _, locale := range status.Locales {
		rows = append(rows, []string{
			locale.Locale,
			colorStatus(locale.Status, colorize),
			strconv.Itoa(locale.Attempts),
			formatNextAttempt(locale.NextAttemptAt),
			locale.LastError,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"LOCALE", "STATUS", "ATTEMPTS", "NEXT ATTEMPT", "LAST ERROR"}, rows, 2))
	return nil
}

func colorStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch status {
	case "succeeded":
		return ansiGreen + status + ansiReset
	case "failed":
		return ansiRed + status + ansiReset
	case "dirty", "queued", "running":
		return ansiYellow + status + ansiReset
	}
	return status
}

func formatNextAttempt(at *time.Time) string {
	if at == nil {
		return ""
	}
	return at.Local().Format(time.RFC3339)
}
