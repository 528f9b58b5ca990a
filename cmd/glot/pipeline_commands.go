package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"glot/internal/api"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "generate <content-id>",
		Short: "Plan and enqueue translation work for a content instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			path := "/api/content/" + args[0] + "/generate"
			if force {
				path += "?force=1"
			}
			var result api.GenerateResult
			if err := client.post(cmd.Context(), path, &result); err != nil {
				return err
			}
			printGenerateResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Bypass backoff windows and exhausted-attempt gating")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <content-id>",
		Short: "Reset exhausted attempts and re-enqueue a content instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp api.RetryResponse
			if err := client.post(cmd.Context(), "/api/content/"+args[0]+"/retry", &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reopened %d failed record(s)\n", resp.Reopened)
			printGenerateResult(cmd, resp.Result)
			return nil
		},
	}
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "publish <content-id>",
		Short: "Publish a content's rendered locales",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			path := "/api/content/" + args[0] + "/publish"
			if noWait {
				path += "?nowait=1"
			}
			var resp api.PublishResponse
			if err := client.post(cmd.Context(), path, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch resp.State {
			case "published":
				fmt.Fprintf(out, "Published revision %s\n", resp.Revision)
			default:
				fmt.Fprintf(out, "Publish in progress; check `glot status %s`\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return without waiting for the canonical locale")
	return cmd
}

func newUnpublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unpublish <content-id>",
		Short: "Take a content's renders out of serving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp api.PublishResponse
			if err := client.post(cmd.Context(), "/api/content/"+args[0]+"/unpublish", &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unpublished %s\n", args[0])
			return nil
		},
	}
}

func printGenerateResult(cmd *cobra.Command, result api.GenerateResult) {
	out := cmd.OutOrStdout()
	if len(result.Enqueued) > 0 {
		fmt.Fprintf(out, "Enqueued: %v\n", result.Enqueued)
	}
	if len(result.Succeeded) > 0 {
		fmt.Fprintf(out, "Converged without translation: %v\n", result.Succeeded)
	}
	for _, locale := range sortedKeys(result.Skipped) {
		fmt.Fprintf(out, "Skipped %s: %s\n", locale, result.Skipped[locale])
	}
	for _, locale := range sortedKeys(result.Failed) {
		fmt.Fprintf(out, "Failed %s: %s\n", locale, result.Failed[locale])
	}
	if len(result.Enqueued)+len(result.Succeeded)+len(result.Skipped)+len(result.Failed) == 0 {
		fmt.Fprintln(out, "Nothing to do")
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
