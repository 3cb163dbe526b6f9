package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"feedrelay/internal/chat"
	"feedrelay/internal/content"
	"feedrelay/internal/fetch"
	"feedrelay/internal/logging"
	"feedrelay/internal/metrics"
	"feedrelay/internal/services"
	"feedrelay/internal/transfer"
)

type downloaded struct {
	entry content.MediaRef
	file  fetch.File
}

// expectedTotal sums the advertised sizes of entries. It returns 0 when any
// size is unknown.
func (r *run) expectedTotal(ctx context.Context, entries content.Manifest) int64 {
	var total int64
	for _, entry := range entries {
		n, err := r.p.downloader.Probe(ctx, entry.URL)
		if err != nil || n < 0 {
			return 0
		}
		total += n
	}
	return total
}

// sendBatch downloads every entry one by one and uploads them as albums.
func (r *run) sendBatch(ctx context.Context, entries content.Manifest) error {
	op := r.op
	started := time.Now()
	op.Begin(transfer.PhaseDownloading, r.expectedTotal(ctx, entries))
	r.report(ctx, true)

	files := make([]downloaded, 0, len(entries))
	var base int64
	for i, entry := range entries {
		if err := op.Control.Checkpoint(ctx); err != nil {
			return err
		}
		if i > 0 {
			if err := r.pause(ctx); err != nil {
				return err
			}
		}
		offset := base
		file, err := r.p.downloader.ToFile(ctx, entry.URL, r.dir, fmt.Sprintf("%03d", entry.Sequence), op.Control, func(written int64) {
			op.SetTransferred(offset + written)
			r.report(ctx, false)
		})
		if err != nil {
			if services.IsCancelled(err) || ctx.Err() != nil {
				return err
			}
			logging.WarnWithContext(ctx, r.logger, "media download failed; skipping", "media_download_failed",
				logging.String("url", entry.URL),
				logging.Int("sequence", entry.Sequence),
				logging.Error(err),
				logging.String(logging.FieldImpact, "item will be delivered without this media"),
			)
			r.mu.Lock()
			r.failed = append(r.failed, entry)
			r.mu.Unlock()
			continue
		}
		base += file.Size
		op.SetTransferred(base)
		files = append(files, downloaded{entry: entry, file: file})
	}
	metrics.AddBytes("download", base)
	r.mu.Lock()
	r.bytes += base
	r.mu.Unlock()
	if len(files) == 0 {
		return services.Wrap(services.ErrTransferFailed, "pipeline", "batch", "no media could be downloaded", nil)
	}

	op.Begin(transfer.PhaseUploading, base)
	r.report(ctx, true)
	batches := chunk(files, r.opts.BatchSize)
	var sent int64
	for bi, batch := range batches {
		if err := op.Control.Checkpoint(ctx); err != nil {
			return err
		}
		last := bi == len(batches)-1
		opts := chat.SendOptions{ReplyTo: r.req.ReplyTo}
		if last {
			opts.Caption = r.caption
		}
		var batchBytes int64
		for _, d := range batch {
			batchBytes += d.file.Size
		}
		if err := r.sendAlbum(ctx, batch, opts, sent); err != nil {
			return err
		}
		sent += batchBytes
		op.SetTransferred(sent)
		r.report(ctx, false)
	}
	metrics.AddBytes("upload", sent)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.delivered) == 0 {
		return services.Wrap(services.ErrTransferFailed, "pipeline", "batch", "no media could be sent", nil)
	}
	r.summary = transferSummary(len(r.delivered), base, time.Since(started))
	return nil
}

// sendAlbum uploads one batch. When the album call fails the entries are
// retried one at a time through their fallback chains.
func (r *run) sendAlbum(ctx context.Context, batch []downloaded, opts chat.SendOptions, offset int64) error {
	op := r.op
	uploads := make([]chat.Upload, 0, len(batch))
	for _, d := range batch {
		uploads = append(uploads, chat.Upload{
			Kind: uploadKind(d.entry.Kind, r.opts.SendAsFile),
			Path: d.file.Path,
			Name: filepath.Base(d.file.Path),
			MIME: d.file.MIME,
		})
	}
	progressFn := func(sent, _ int64) {
		op.SetTransferred(offset + sent)
		r.report(ctx, false)
	}

	var refs []chat.Ref
	var err error
	if len(uploads) == 1 {
		var ref chat.Ref
		ref, err = r.p.gateway.SendFile(ctx, r.req.ChatID, uploads[0], opts, progressFn)
		if err == nil {
			refs = []chat.Ref{ref}
		}
	} else {
		refs, err = r.p.gateway.SendFiles(ctx, r.req.ChatID, uploads, opts, progressFn)
	}
	if err == nil {
		r.addContent(refs...)
		r.mu.Lock()
		for _, d := range batch {
			r.delivered = append(r.delivered, d.entry)
		}
		if opts.Caption != "" {
			r.captionSent = true
		}
		r.mu.Unlock()
		return nil
	}
	if services.IsCancelled(err) || ctx.Err() != nil {
		return err
	}
	r.logger.Info("album upload failed; sending items individually",
		logging.Int("album_size", len(batch)),
		logging.Error(err),
	)
	metrics.RecordFallback("album", "individual")

	for i, d := range batch {
		if err := op.Control.Checkpoint(ctx); err != nil {
			return err
		}
		itemOpts := chat.SendOptions{ReplyTo: opts.ReplyTo}
		if i == len(batch)-1 {
			itemOpts.Caption = opts.Caption
		}
		chain := r.uploadChain(string(d.entry.Kind), uploads[i], itemOpts, d.entry.URL, nil)
		ref, _, chainErr := chain.Run(ctx, r.logger)
		if chainErr != nil {
			if services.IsCancelled(chainErr) || ctx.Err() != nil {
				return chainErr
			}
			logging.WarnWithContext(ctx, r.logger, "media send failed", "media_send_failed",
				logging.String("url", d.entry.URL),
				logging.Error(chainErr),
			)
			r.mu.Lock()
			r.failed = append(r.failed, d.entry)
			r.mu.Unlock()
			continue
		}
		r.addContent(ref)
		r.mu.Lock()
		r.delivered = append(r.delivered, d.entry)
		if itemOpts.Caption != "" {
			r.captionSent = true
		}
		r.mu.Unlock()
	}
	return nil
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
