// Package transcode wraps the ffmpeg invocations used while relaying media:
// video thumbnails, audio re-encodes for the voice and music fallbacks, and
// image downscaling before summarization.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes ffmpeg with a fixed binary.
type Runner struct {
	Binary string
}

// New returns a runner using binary, defaulting to "ffmpeg".
func New(binary string) Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return Runner{Binary: binary}
}

// Thumbnail extracts the first frame of source as a JPEG no larger than 320px
// on the long side.
func (r Runner) Thumbnail(ctx context.Context, source, dest string) error {
	return r.run(ctx, "thumbnail", source, dest,
		"-frames:v", "1",
		"-vf", "scale='if(gt(iw,ih),320,-2)':'if(gt(iw,ih),-2,320)'",
		"-q:v", "5",
	)
}

// Voice re-encodes source as an Ogg/Opus voice note.
func (r Runner) Voice(ctx context.Context, source, dest string) error {
	return r.run(ctx, "voice", source, dest,
		"-vn",
		"-ac", "1",
		"-c:a", "libopus",
		"-b:a", "48k",
		"-f", "ogg",
	)
}

// Music re-encodes source as an MP3 file.
func (r Runner) Music(ctx context.Context, source, dest string) error {
	return r.run(ctx, "music", source, dest,
		"-vn",
		"-c:a", "libmp3lame",
		"-q:a", "4",
	)
}

// Downscale shrinks an image to fit within 1280x720, preserving aspect ratio,
// and writes it as JPEG.
func (r Runner) Downscale(ctx context.Context, source, dest string) error {
	return r.run(ctx, "downscale", source, dest,
		"-vf", "scale='min(1280,iw)':'min(720,ih)':force_original_aspect_ratio=decrease",
		"-frames:v", "1",
		"-q:v", "4",
	)
}

func (r Runner) run(ctx context.Context, op, source, dest string, extra ...string) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return errors.New("ffmpeg " + op + ": source and destination are required")
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
	}
	args = append(args, extra...)
	args = append(args, dest)
	cmd := exec.CommandContext(ctx, r.Binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", op, err, strings.TrimSpace(string(output)))
	}
	return nil
}
