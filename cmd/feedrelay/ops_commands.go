package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"feedrelay/internal/ipc"
)

func newOpsCommand(ctx *commandContext) *cobra.Command {
	opsCmd := &cobra.Command{
		Use:   "ops",
		Short: "Inspect and control in-flight transfers",
	}

	var jsonOutput bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List in-flight transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Operations()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Operations)
				}
				if len(resp.Operations) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No transfers in flight")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderOperations(resp.Operations))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit transfers as JSON")

	opsCmd.AddCommand(listCmd)
	opsCmd.AddCommand(newControlCommand(ctx, "pause", "Pause a running transfer", "Paused", (*ipc.Client).Pause))
	opsCmd.AddCommand(newControlCommand(ctx, "resume", "Resume a paused transfer", "Resumed", (*ipc.Client).Resume))
	opsCmd.AddCommand(newControlCommand(ctx, "cancel", "Cancel a running transfer", "Cancelling", (*ipc.Client).Cancel))
	return opsCmd
}

func newControlCommand(ctx *commandContext, use, short, done string, call func(*ipc.Client, string) (*ipc.ControlResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <key>",
		Short: short,
		Args:  messageKeyArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := call(client, args[0])
				if err != nil {
					return err
				}
				if resp.Changed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Transfer %s unchanged\n", args[0])
				}
				return nil
			})
		},
	}
}
