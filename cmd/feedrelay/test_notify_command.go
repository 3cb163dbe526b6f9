package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feedrelay/internal/ipc"
	"feedrelay/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var direct bool

	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test ntfy alert",
		Long: "Send a test ntfy alert through the running daemon. With --direct the alert is\n" +
			"published from this process, which checks the ntfy settings while the daemon is down.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if direct {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
					fmt.Fprintln(out, "ntfy topic not configured")
					return nil
				}
				if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
					return fmt.Errorf("publish test alert: %w", err)
				}
				fmt.Fprintln(out, "Test notification sent")
				return nil
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return fmt.Errorf("daemon test alert: %w", err)
				}
				fmt.Fprintln(out, notifyOutcome(resp))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "Publish from this process instead of the daemon")
	return cmd
}

func notifyOutcome(resp *ipc.TestNotificationResponse) string {
	switch {
	case resp == nil:
		return "Notification not sent"
	case resp.Message != "":
		return resp.Message
	case resp.Sent:
		return "Test notification sent"
	default:
		return "Notification not sent"
	}
}
