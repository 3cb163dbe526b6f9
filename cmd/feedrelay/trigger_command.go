package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/ipc"
)

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	names := make([]string, 0, len(actionstate.ActionKinds))
	for _, kind := range actionstate.ActionKinds {
		names = append(names, string(kind))
	}

	return &cobra.Command{
		Use:       "trigger <key> <action>",
		Short:     "Run a follow-up action on a delivered item",
		Long:      "Run a follow-up action on the record owning <key>. Actions: " + strings.Join(names, ", "),
		Args:      messageKeyArgs(2),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Trigger(args[0], args[1])
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Accepted {
					fmt.Fprintf(stdout, "Accepted: %s\n", resp.Message)
					return nil
				}
				fmt.Fprintf(stdout, "Rejected (%s): %s\n", resp.Reason, resp.Message)
				return nil
			})
		},
	}
}
