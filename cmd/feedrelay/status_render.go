package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

type statusStyle struct {
	tag    string
	colors text.Colors
}

var statusStyles = map[statusKind]statusStyle{
	statusInfo:  {tag: "INFO", colors: text.Colors{text.FgBlue}},
	statusOK:    {tag: "OK", colors: text.Colors{text.FgGreen}},
	statusWarn:  {tag: "WARN", colors: text.Colors{text.FgYellow}},
	statusError: {tag: "ERROR", colors: text.Colors{text.FgRed}},
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style, ok := statusStyles[kind]
	if !ok {
		style = statusStyles[statusInfo]
	}
	status := "[" + style.tag + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", status)
	if colorize {
		return style.colors.Sprint(line)
	}
	return line
}

// transferKind grades a transfer phase or control state.
func transferKind(value string) statusKind {
	switch value {
	case "done":
		return statusOK
	case "paused", "cancelled":
		return statusWarn
	case "failed":
		return statusError
	default:
		return statusInfo
	}
}

// actionStateKind grades a follow-up action: unused actions are still
// offered, done ones were consumed, cancelled ones were dismissed.
func actionStateKind(state string) statusKind {
	switch state {
	case "unused":
		return statusOK
	case "done":
		return statusInfo
	default:
		return statusWarn
	}
}

// statusPrinter writes sectioned status output, colored on terminals.
type statusPrinter struct {
	w        io.Writer
	colorize bool
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	return &statusPrinter{w: w, colorize: shouldColorize(w)}
}

func (p *statusPrinter) section(title string) {
	title = strings.TrimSpace(title)
	header := "▸ " + title
	rule := strings.Repeat("─", len([]rune(header)))
	if p.colorize {
		header = text.Colors{text.Bold, text.FgCyan}.Sprint(header)
	}
	fmt.Fprintln(p.w, header)
	fmt.Fprintln(p.w, rule)
}

func (p *statusPrinter) line(label string, kind statusKind, message string) {
	fmt.Fprintln(p.w, renderStatusLine(label, kind, message, p.colorize))
}

func (p *statusPrinter) lines(lines []string) {
	for _, l := range lines {
		fmt.Fprintln(p.w, l)
	}
}

func (p *statusPrinter) gap() {
	fmt.Fprintln(p.w)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
