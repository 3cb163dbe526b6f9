package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"feedrelay/internal/deps"
	"feedrelay/internal/ipc"
	"feedrelay/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and transfer status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status *ipc.StatusResponse
			if client, err := ctx.dialClient(); err == nil {
				status, err = client.Status()
				client.Close()
				if err != nil {
					return err
				}
			}
			if jsonOutput {
				if status == nil {
					return writeJSON(cmd, ipc.StatusResponse{})
				}
				return writeJSON(cmd, status)
			}

			p := newStatusPrinter(cmd.OutOrStdout())
			p.section("System Status")
			p.lines(daemonLines(status, p.colorize))
			p.gap()

			p.section("Dependencies")
			p.lines(dependencyLines(preflight.CheckSystemDeps(ctx.configValue()), p.colorize))

			if status == nil {
				return nil
			}
			p.gap()
			p.section("Transfers")
			if len(status.Operations) == 0 {
				p.line("Active", statusInfo, "No transfers in flight")
				return nil
			}
			for _, op := range status.Operations {
				kind := transferKind(op.Phase)
				if op.State == "paused" {
					kind = transferKind(op.State)
				}
				p.line(op.Key, kind, fmt.Sprintf("%s · %s · %s", op.Label, op.Phase, transferProgress(op)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the raw status as JSON")
	return cmd
}

func daemonLines(status *ipc.StatusResponse, colorize bool) []string {
	if status == nil || !status.Running {
		return []string{renderStatusLine("Daemon", statusError, "Not running", colorize)}
	}
	lines := []string{
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d, up %s)", status.PID, uptime(status.StartedAt)), colorize),
		renderStatusLine("Deliveries", statusInfo, fmt.Sprintf("%d running, %d waiting, capacity %d", status.InFlight, status.Waiting, status.Capacity), colorize),
		renderStatusLine("Action records", statusInfo, fmt.Sprintf("%d stored in %s", status.Records, status.DatabasePath), colorize),
	}
	if status.LastPollError != "" {
		lines = append(lines, renderStatusLine("Telegram", statusWarn, status.LastPollError, colorize))
	} else {
		lines = append(lines, renderStatusLine("Telegram", statusOK, fmt.Sprintf("%d updates handled", status.UpdatesHandled), colorize))
	}
	if status.MetricsAddr != "" {
		lines = append(lines, renderStatusLine("Metrics", statusInfo, "http://"+status.MetricsAddr+"/metrics", colorize))
	}
	return lines
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+2)
	summaryKind := statusOK
	summary := "All dependencies available"
	if len(deps.Missing(statuses)) > 0 {
		summaryKind = statusError
		summary = "Required dependencies missing"
	} else {
		for _, dep := range statuses {
			if !dep.Available {
				summaryKind = statusWarn
				summary = "Optional dependencies missing"
				break
			}
		}
	}
	lines = append(lines, renderStatusLine("Summary", summaryKind, summary, colorize))

	var names []string
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			switch {
			case dep.Path != "":
				message = fmt.Sprintf("Ready (%s)", dep.Path)
			case dep.Command != "":
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		names = append(names, dep.Name)
		detail := dep.Detail
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	if len(names) > 0 {
		lines = append(lines, fmt.Sprintf("%sMissing dependencies: %s", statusIndent, strings.Join(names, ", ")))
	}
	return lines
}

func renderOperations(ops []ipc.Operation) string {
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, []string{op.Key, op.Label, op.Phase, op.State, transferProgress(op), uptime(op.StartedAt)})
	}
	return renderTable(
		[]string{"Key", "Item", "Phase", "State", "Progress", "Age"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func transferProgress(op ipc.Operation) string {
	done := humanize.Bytes(uint64(max(op.Transferred, 0)))
	if op.Expected <= 0 {
		return done
	}
	pct := float64(op.Transferred) / float64(op.Expected) * 100
	return fmt.Sprintf("%s / %s (%.0f%%)", done, humanize.Bytes(uint64(op.Expected)), min(pct, 100))
}

func uptime(since time.Time) string {
	if since.IsZero() {
		return "-"
	}
	return time.Since(since).Round(time.Second).String()
}
