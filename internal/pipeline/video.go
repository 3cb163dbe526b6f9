package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"feedrelay/internal/chat"
	"feedrelay/internal/content"
	"feedrelay/internal/logging"
	"feedrelay/internal/media/ffprobe"
	"feedrelay/internal/metrics"
	"feedrelay/internal/transfer"
)

// sendVideo streams a single video to disk, probes it, and uploads it with
// dimensions and a thumbnail when those are available.
func (r *run) sendVideo(ctx context.Context, entry content.MediaRef) error {
	op := r.op
	expected, err := r.p.downloader.Probe(ctx, entry.URL)
	if err != nil {
		r.logger.Debug("size probe failed", logging.String("url", entry.URL), logging.Error(err))
	}
	op.Begin(transfer.PhaseDownloading, max(expected, 0))
	r.report(ctx, true)

	started := time.Now()
	file, err := r.p.downloader.ToFile(ctx, entry.URL, r.dir, "video", op.Control, func(written int64) {
		op.SetTransferred(written)
		r.report(ctx, false)
	})
	if err != nil {
		return err
	}
	metrics.AddBytes("download", file.Size)
	r.mu.Lock()
	r.bytes += file.Size
	r.mu.Unlock()
	downloadTime := time.Since(started)
	if err := op.Control.Checkpoint(ctx); err != nil {
		return err
	}

	var info ffprobe.VideoInfo
	upload := chat.Upload{
		Kind: uploadKind(entry.Kind, r.opts.SendAsFile),
		Path: file.Path,
		Name: filepath.Base(file.Path),
		MIME: file.MIME,
	}
	if r.p.tools != nil && upload.Kind == chat.UploadVideo {
		if probed, probeErr := r.p.tools.Probe(ctx, file.Path); probeErr != nil {
			r.logger.Info("video probe unavailable; uploading without metadata", logging.Error(probeErr))
		} else {
			info = probed
			upload.Width = info.Width
			upload.Height = info.Height
			upload.Duration = info.Seconds()
		}
		thumb := r.localDir("thumb.jpg")
		if thumbErr := r.p.tools.Thumbnail(ctx, file.Path, thumb); thumbErr != nil {
			r.logger.Info("thumbnail unavailable", logging.Error(thumbErr))
		} else if fileExists(thumb) {
			upload.Thumbnail = thumb
		}
	}

	op.Begin(transfer.PhaseUploading, file.Size)
	r.report(ctx, true)
	uploadStarted := time.Now()
	opts := chat.SendOptions{ReplyTo: r.req.ReplyTo, Caption: r.caption}
	chain := r.uploadChain("video", upload, opts, entry.URL, func(sent, _ int64) {
		op.SetTransferred(sent)
		r.report(ctx, false)
	})
	ref, _, err := chain.Run(ctx, r.logger)
	if err != nil {
		return err
	}
	uploadTime := time.Since(uploadStarted)
	metrics.AddBytes("upload", file.Size)
	op.SetTransferred(file.Size)
	r.addContent(ref)
	r.captionSent = true
	r.mu.Lock()
	r.delivered = append(r.delivered, entry)
	r.summary = videoSummary(info, file.Size, downloadTime, uploadTime)
	r.mu.Unlock()
	return nil
}
