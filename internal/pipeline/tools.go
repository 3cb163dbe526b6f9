package pipeline

import (
	"context"
	"time"

	"feedrelay/internal/media/ffprobe"
	"feedrelay/internal/media/transcode"
)

// MediaTools inspects and converts local media files.
type MediaTools interface {
	Probe(ctx context.Context, path string) (ffprobe.VideoInfo, error)
	Thumbnail(ctx context.Context, source, dest string) error
	Voice(ctx context.Context, source, dest string) error
	Music(ctx context.Context, source, dest string) error
}

// FFmpegTools implements MediaTools with the ffprobe and ffmpeg binaries.
type FFmpegTools struct {
	FFprobe      string
	ProbeTimeout time.Duration
	Runner       transcode.Runner
}

// NewFFmpegTools returns tools bound to the given binaries.
func NewFFmpegTools(ffmpegBinary, ffprobeBinary string, probeTimeout time.Duration) FFmpegTools {
	return FFmpegTools{
		FFprobe:      ffprobeBinary,
		ProbeTimeout: probeTimeout,
		Runner:       transcode.New(ffmpegBinary),
	}
}

// Probe returns the video properties of path.
func (t FFmpegTools) Probe(ctx context.Context, path string) (ffprobe.VideoInfo, error) {
	result, err := ffprobe.Inspect(ctx, t.FFprobe, path, t.ProbeTimeout)
	if err != nil {
		return ffprobe.VideoInfo{}, err
	}
	info, ok := result.Video()
	if !ok {
		return ffprobe.VideoInfo{}, errNoVideoStream
	}
	return info, nil
}

func (t FFmpegTools) Thumbnail(ctx context.Context, source, dest string) error {
	return t.Runner.Thumbnail(ctx, source, dest)
}

func (t FFmpegTools) Voice(ctx context.Context, source, dest string) error {
	return t.Runner.Voice(ctx, source, dest)
}

func (t FFmpegTools) Music(ctx context.Context, source, dest string) error {
	return t.Runner.Music(ctx, source, dest)
}
