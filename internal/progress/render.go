package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	barWidth    = 20
	filledCell  = "█"
	emptyCell   = "░"
	minRateSpan = 300 * time.Millisecond
)

var titler = cases.Title(language.English)

// Input carries everything Render needs.
type Input struct {
	Phase       string
	Transferred int64
	Expected    int64
	StartedAt   time.Time
	Paused      bool
	Now         time.Time
}

// Percent returns the completed share in [0,100], or 0 when the expected
// total is unknown.
func Percent(transferred, expected int64) float64 {
	if expected <= 0 || transferred <= 0 {
		return 0
	}
	pct := float64(transferred) / float64(expected) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Bar renders a fixed-width bar for pct.
func Bar(pct float64) string {
	filled := int(pct / 100 * barWidth)
	if filled < 0 {
		filled = 0
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat(filledCell, filled) + strings.Repeat(emptyCell, barWidth-filled)
}

// Label turns a phase identifier such as "sending_comment_media" into
// "Sending Comment Media".
func Label(phase string) string {
	phase = strings.TrimSpace(strings.ReplaceAll(phase, "_", " "))
	if phase == "" {
		return "Working"
	}
	return titler.String(phase)
}

// Render formats a two-line progress block:
//
//	Downloading ████████░░░░░░░░░░░░ 42%
//	4.2 MB / 10 MB · 1.4 MB/s · ETA 4s
//
// Rate is left blank during the first 300ms of a phase and ETA is omitted
// until some progress exists.
func Render(in Input) string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	pct := Percent(in.Transferred, in.Expected)

	var head strings.Builder
	head.WriteString(Label(in.Phase))
	if in.Paused {
		head.WriteString(" (paused)")
	}
	fmt.Fprintf(&head, " %s %d%%", Bar(pct), int(pct))

	parts := make([]string, 0, 3)
	if in.Expected > 0 {
		parts = append(parts, fmt.Sprintf("%s / %s", humanize.Bytes(uint64(max(in.Transferred, 0))), humanize.Bytes(uint64(in.Expected))))
	} else {
		parts = append(parts, humanize.Bytes(uint64(max(in.Transferred, 0))))
	}

	elapsed := now.Sub(in.StartedAt)
	if !in.StartedAt.IsZero() && elapsed >= minRateSpan && in.Transferred > 0 {
		rate := float64(in.Transferred) / elapsed.Seconds()
		parts = append(parts, humanize.Bytes(uint64(rate))+"/s")
		if eta, ok := ETA(elapsed, pct); ok && !in.Paused {
			parts = append(parts, "ETA "+formatETA(eta))
		}
	}

	return head.String() + "\n" + strings.Join(parts, " · ")
}

// ETA extrapolates the remaining time linearly from elapsed and pct.
func ETA(elapsed time.Duration, pct float64) (time.Duration, bool) {
	if pct <= 0 || pct >= 100 || elapsed <= 0 {
		return 0, false
	}
	remaining := float64(elapsed) / pct * (100 - pct)
	return time.Duration(remaining), true
}

func formatETA(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Second {
		return "<1s"
	}
	return d.String()
}
