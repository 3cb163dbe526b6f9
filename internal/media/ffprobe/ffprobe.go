package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Result is the decoded ffprobe payload.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	BitRate   string `json:"bit_rate"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// VideoInfo is the metadata attached to a video upload.
type VideoInfo struct {
	Width    int
	Height   int
	Codec    string
	Duration float64
	BitRate  int64
	Size     int64
}

// Inspect executes ffprobe against path with the given timeout. A zero
// timeout means no extra deadline beyond ctx.
func Inspect(ctx context.Context, binary, path string, timeout time.Duration) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("ffprobe inspect: %w", ctxErr)
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// Parse decodes raw ffprobe JSON.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Video returns metadata of the first video stream. ok is false when the
// container holds no video stream.
func (r Result) Video() (VideoInfo, bool) {
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "video") {
			continue
		}
		info := VideoInfo{
			Width:    stream.Width,
			Height:   stream.Height,
			Codec:    stream.CodecName,
			Duration: finite(parseFloat(r.Format.Duration)),
			BitRate:  positive(parseFloat(r.Format.BitRate)),
			Size:     positive(parseFloat(r.Format.Size)),
		}
		if info.Duration == 0 {
			info.Duration = finite(parseFloat(stream.Duration))
		}
		if info.BitRate == 0 {
			info.BitRate = positive(parseFloat(stream.BitRate))
		}
		return info, true
	}
	return VideoInfo{}, false
}

// Seconds returns the duration rounded to whole seconds.
func (v VideoInfo) Seconds() int {
	return int(math.Round(v.Duration))
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func positive(v float64) int64 {
	return int64(finite(v))
}
