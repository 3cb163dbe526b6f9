package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"feedrelay/internal/content"
	"feedrelay/internal/ipc"
)

func newDeliverCommand(ctx *commandContext) *cobra.Command {
	var chatID string
	var replyTo string
	var asFile bool
	var live bool
	var altLink bool
	var batch int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "deliver <item.json>",
		Short: "Deliver a content item read from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(chatID) == "" {
				return errors.New("--chat is required")
			}
			item, err := content.FileSource{}.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			req := ipc.DeliverRequest{
				ChatID:  strings.TrimSpace(chatID),
				Item:    *item,
				ReplyTo: strings.TrimSpace(replyTo),
			}
			flags := cmd.Flags()
			if flags.Changed("as-file") || flags.Changed("live") || flags.Changed("alt-link") || flags.Changed("batch") {
				cfg := ctx.configValue()
				opts := &ipc.DeliveryOptions{}
				if cfg != nil {
					opts.SendAsFile = cfg.Delivery.SendAsFile
					opts.IncludeLiveMedia = cfg.Delivery.IncludeLiveMedia
					opts.UseAlternateLink = cfg.Delivery.UseAlternateLink
					opts.BatchSize = cfg.Transfer.BatchSize
				}
				if flags.Changed("as-file") {
					opts.SendAsFile = asFile
				}
				if flags.Changed("live") {
					opts.IncludeLiveMedia = live
				}
				if flags.Changed("alt-link") {
					opts.UseAlternateLink = altLink
				}
				if flags.Changed("batch") {
					opts.BatchSize = batch
				}
				req.Options = opts
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Deliver(req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Delivery %s: %d of %d media sent in %d message(s), %s transferred\n",
					resp.Status, resp.Delivered, resp.Delivered+resp.Failed, resp.Messages,
					humanize.Bytes(uint64(max(resp.TransferredBytes, 0))))
				if resp.PrimaryKey != "" {
					fmt.Fprintf(stdout, "Action record: %s\n", resp.PrimaryKey)
				}
				if resp.PersistError != "" {
					fmt.Fprintf(stdout, "Warning: action record not saved: %s\n", resp.PersistError)
				}
				if resp.Error != "" {
					return fmt.Errorf("delivery %s: %s", resp.Status, resp.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "", "Destination chat identifier")
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "Message key the delivery replies to")
	cmd.Flags().BoolVar(&asFile, "as-file", false, "Send media as documents instead of inline")
	cmd.Flags().BoolVar(&live, "live", false, "Include live-photo videos")
	cmd.Flags().BoolVar(&altLink, "alt-link", false, "Use the alternate source link in captions")
	cmd.Flags().IntVar(&batch, "batch", 0, "Maximum media per album")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the delivery report as JSON")
	return cmd
}
