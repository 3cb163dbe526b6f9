package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/chat"
	"feedrelay/internal/content"
	"feedrelay/internal/logging"
	"feedrelay/internal/services"
	"feedrelay/internal/summarize"
	"feedrelay/internal/transfer"
)

// Auxiliary field names written by the summarize action.
const (
	AuxSummary        = "summary"
	AuxSummaryMessage = "summary_message"
)

// summarize posts a placeholder under the record's primary message, walks it
// through the gathering stages, and replaces it with the summary. The
// placeholder becomes an alias of the record and the summary is merged into
// the record's auxiliary fields.
func (e *Engine) summarize(ctx context.Context, record *actionstate.Record) error {
	if e.summarizer == nil {
		return services.Wrap(services.ErrConfiguration, "engine", "summarize", "summarizer is not configured", nil)
	}
	primary, err := chat.ParseKey(record.PrimaryKey)
	if err != nil {
		return services.Wrap(services.ErrValidation, "engine", "summarize", "primary key", err)
	}
	placeholder, err := e.gateway.SendMessage(ctx, record.ChatID, "🧠 Gathering note data…", chat.SendOptions{ReplyTo: primary.Message})
	if err != nil {
		return services.Wrap(services.ErrTransferFailed, "engine", "summarize", "send placeholder", err)
	}
	persistCtx := context.WithoutCancel(ctx)
	if err := e.store.AddAliases(persistCtx, record.PrimaryKey, placeholder.Key()); err != nil {
		logging.ErrorWithContext(ctx, e.logger, "summary message not recorded", "alias_persist_failed",
			logging.String(logging.FieldPrimaryKey, record.PrimaryKey),
			logging.Error(err),
		)
	}
	stage := func(text string) {
		if err := e.gateway.EditMessage(ctx, placeholder, text, nil); err != nil {
			e.logger.Debug("summary stage update failed", logging.Error(err))
		}
	}
	fail := func(err error) error {
		stage("❌ Summary failed: " + err.Error())
		return err
	}

	item := record.Item()
	text := item.SummaryText()

	stage("🧠 Downloading media…")
	images, err := e.summaryImages(ctx, item)
	if err != nil {
		return fail(err)
	}

	stage("🧠 Generating summary…")
	summary, err := e.summarizer.Summarize(ctx, text, images)
	if err != nil {
		return fail(services.Wrap(services.ErrExternalTool, "engine", "summarize", "summarizer request", err))
	}
	summary = strings.TrimSpace(summary)
	stage("🧠 Summary\n\n" + summary)

	if err := e.store.UpdateAuxiliary(persistCtx, record.PrimaryKey, map[string]string{
		AuxSummary:        summary,
		AuxSummaryMessage: placeholder.Key(),
	}); err != nil {
		logging.ErrorWithContext(ctx, e.logger, "summary not recorded", "auxiliary_persist_failed",
			logging.String(logging.FieldPrimaryKey, record.PrimaryKey),
			logging.Error(err),
		)
		return err
	}
	return nil
}

// summaryImages downloads up to the configured number of photos and shrinks
// them. Individual failures drop that image only.
func (e *Engine) summaryImages(ctx context.Context, item *content.Item) ([]summarize.Image, error) {
	limit := e.cfg.Actions.SummarizeMaxImages
	if limit <= 0 || e.downloader == nil {
		return nil, nil
	}
	var photos content.Manifest
	for _, ref := range item.Manifest {
		if ref.Kind == content.KindPhoto {
			photos = append(photos, ref)
		}
		if len(photos) == limit {
			break
		}
	}
	if len(photos) == 0 {
		return nil, nil
	}
	dir, err := os.MkdirTemp(e.cfg.Paths.WorkDir, "summary-")
	if err != nil {
		return nil, fmt.Errorf("create summary dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ctl := transfer.NewControl()
	images := make([]summarize.Image, 0, len(photos))
	for i, ref := range photos {
		file, err := e.downloader.ToFile(ctx, ref.URL, dir, fmt.Sprintf("image-%02d", i+1), ctl, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Info("summary image skipped", logging.String("url", ref.URL), logging.Error(err))
			continue
		}
		path, mime := file.Path, file.MIME
		if e.images != nil {
			small := filepath.Join(dir, fmt.Sprintf("small-%02d.jpg", i+1))
			if err := e.images.Downscale(ctx, file.Path, small); err != nil {
				e.logger.Debug("image downscale failed; sending original", logging.Error(err))
			} else if info, statErr := os.Stat(small); statErr == nil && info.Size() > 0 {
				path, mime = small, "image/jpeg"
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		images = append(images, summarize.Image{Data: data, MIME: mime})
	}
	return images, nil
}
