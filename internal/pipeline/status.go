package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"feedrelay/internal/chat"
	"feedrelay/internal/media/ffprobe"
	"feedrelay/internal/progress"
	"feedrelay/internal/transfer"
)

// Callback data carried by the transfer control buttons.
const (
	DataPause  = "ctl:pause"
	DataResume = "ctl:resume"
	DataCancel = "ctl:cancel"
)

// ControlButtons returns the keyboard shown under a running status message.
func ControlButtons(paused bool) chat.Keyboard {
	toggle := chat.Button{Text: "⏸ Pause", Data: DataPause}
	if paused {
		toggle = chat.Button{Text: "▶️ Resume", Data: DataResume}
	}
	return chat.Keyboard{{toggle, {Text: "✖️ Cancel", Data: DataCancel}}}
}

// StatusText renders the body of a status message for snap.
func StatusText(snap transfer.Snapshot, now time.Time) string {
	head := "⏳ " + snap.Label
	if snap.Paused() {
		head = "⏸ " + snap.Label
	}
	return head + "\n" + progress.Render(progress.Input{
		Phase:       string(snap.Phase),
		Transferred: snap.Transferred,
		Expected:    snap.Expected,
		StartedAt:   snap.StartedAt,
		Paused:      snap.Paused(),
		Now:         now,
	})
}

// FinalText renders the status message once a delivery has ended.
func FinalText(res Result, link string) string {
	switch res.Status {
	case StatusDelivered:
		if res.Summary == "" {
			return "✅ Delivered"
		}
		return "✅ Delivered · " + res.Summary
	case StatusPartial:
		return fmt.Sprintf("⚠️ Partially delivered: %d of %d media sent",
			len(res.Delivered), len(res.Delivered)+len(res.Failed))
	case StatusCancelled:
		if link == "" {
			return "🚫 Cancelled"
		}
		return "🚫 Cancelled\n" + link
	default:
		msg := "❌ Failed"
		if res.Err != nil {
			msg += ": " + res.Err.Error()
		}
		return msg
	}
}

func transferSummary(count int, bytes int64, elapsed time.Duration) string {
	parts := make([]string, 0, 3)
	if count == 1 {
		parts = append(parts, "1 file")
	} else {
		parts = append(parts, fmt.Sprintf("%d files", count))
	}
	parts = append(parts, humanize.Bytes(uint64(max(bytes, 0))))
	if elapsed > 0 {
		parts = append(parts, elapsed.Round(100*time.Millisecond).String())
	}
	return strings.Join(parts, " · ")
}

// videoSummary describes a delivered video. Probe fields that are missing
// are left out; the bitrate falls back to size over duration.
func videoSummary(info ffprobe.VideoInfo, size int64, download, upload time.Duration) string {
	parts := []string{humanize.Bytes(uint64(max(size, 0)))}
	if info.Width > 0 && info.Height > 0 {
		parts = append(parts, fmt.Sprintf("%d×%d", info.Width, info.Height))
	}
	if info.Codec != "" {
		parts = append(parts, info.Codec)
	}
	bitRate := info.BitRate
	if bitRate <= 0 && info.Duration > 0 {
		bitRate = int64(float64(size*8) / info.Duration)
	}
	if bitRate > 0 {
		parts = append(parts, humanize.SIWithDigits(float64(bitRate), 1, "bps"))
	}
	if info.Duration > 0 {
		parts = append(parts, (time.Duration(info.Seconds()) * time.Second).String())
	}
	parts = append(parts,
		"↓ "+download.Round(100*time.Millisecond).String(),
		"↑ "+upload.Round(100*time.Millisecond).String(),
	)
	return strings.Join(parts, " · ")
}
