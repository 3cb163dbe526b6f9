package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/ipc"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"record"},
		Short:   "Inspect and maintain action records",
	}
	recordsCmd.AddCommand(newRecordsListCommand(ctx))
	recordsCmd.AddCommand(newRecordsShowCommand(ctx))
	recordsCmd.AddCommand(newRecordsDeleteCommand(ctx))
	return recordsCmd
}

func newRecordsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent action records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordList(limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Records)
				}
				if len(resp.Records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No action records")
					return nil
				}
				rows := make([][]string, 0, len(resp.Records))
				for _, rec := range resp.Records {
					rows = append(rows, []string{
						rec.PrimaryKey,
						truncate(recordTitle(rec), 40),
						fmt.Sprintf("%d", rec.Media),
						humanize.Bytes(uint64(max(rec.TotalBytes, 0))),
						actionSummary(rec.Actions),
						humanize.Time(rec.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Key", "Title", "Media", "Size", "Actions", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum records to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit records as JSON")
	return cmd
}

func newRecordsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Show the action record owning a message key",
		Args:  messageKeyArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordShow(args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Record)
				}
				rec := resp.Record
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Primary key: %s\n", rec.PrimaryKey)
				fmt.Fprintf(stdout, "Chat:        %s\n", rec.ChatID)
				fmt.Fprintf(stdout, "Item:        %s\n", rec.ItemID)
				fmt.Fprintf(stdout, "Title:       %s\n", recordTitle(rec))
				if rec.SourceURL != "" {
					fmt.Fprintf(stdout, "Source:      %s\n", rec.SourceURL)
				}
				fmt.Fprintf(stdout, "Media:       %d (%s)\n", rec.Media, humanize.Bytes(uint64(max(rec.TotalBytes, 0))))
				fmt.Fprintf(stdout, "As files:    %s\n", yesNo(rec.Flags.SentAsFile))
				fmt.Fprintf(stdout, "Live media:  %s\n", yesNo(rec.Flags.IncludedLiveMedia))
				fmt.Fprintf(stdout, "Created:     %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))

				p := newStatusPrinter(stdout)
				p.gap()
				p.section("Actions")
				for _, kind := range actionstate.ActionKinds {
					state := rec.Actions[string(kind)]
					p.line(string(kind), actionStateKind(state), state)
				}
				if len(rec.Aliases) > 0 {
					fmt.Fprintf(stdout, "Aliases: %s\n", strings.Join(rec.Aliases, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the record as JSON")
	return cmd
}

func newRecordsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete the action record owning a message key",
		Args:  messageKeyArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordDelete(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted action record %s\n", resp.PrimaryKey)
				return nil
			})
		},
	}
}

func recordTitle(rec ipc.Record) string {
	if title := strings.TrimSpace(rec.Title); title != "" {
		return title
	}
	if rec.ItemID != "" {
		return rec.ItemID
	}
	return "(untitled)"
}

// actionSummary lists the actions that have left the available state.
func actionSummary(actions map[string]string) string {
	var parts []string
	for _, kind := range actionstate.ActionKinds {
		state := actions[string(kind)]
		if state == "" || state == string(actionstate.StateUnused) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", kind, state))
	}
	if len(parts) == 0 {
		return "-"
	}
	slices.Sort(parts)
	return strings.Join(parts, " ")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
