package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"feedrelay/internal/chat"
	"feedrelay/internal/content"
	"feedrelay/internal/fetch"
	"feedrelay/internal/logging"
	"feedrelay/internal/services"
	"feedrelay/internal/transfer"
)

// orderComments returns comments with every parent ahead of its replies.
// Input order is otherwise preserved; comments whose parent is not part of
// the set keep their position.
func orderComments(comments []content.Comment) []content.Comment {
	known := make(map[string]bool, len(comments))
	for _, c := range comments {
		known[c.ID] = true
	}
	emitted := make(map[string]bool, len(comments))
	out := make([]content.Comment, 0, len(comments))
	pending := comments
	for len(pending) > 0 {
		var next []content.Comment
		for _, c := range pending {
			if c.ParentID == "" || !known[c.ParentID] || emitted[c.ParentID] || c.ParentID == c.ID {
				out = append(out, c)
				emitted[c.ID] = true
				continue
			}
			next = append(next, c)
		}
		if len(next) == len(pending) {
			// Cycle: emit the rest as-is.
			out = append(out, next...)
			break
		}
		pending = next
	}
	return out
}

func commentText(c content.Comment) string {
	text := strings.TrimSpace(c.Text)
	author := strings.TrimSpace(c.Author)
	switch {
	case author != "" && text != "":
		return "💬 " + author + ": " + text
	case author != "":
		return "💬 " + author
	case text != "":
		return "💬 " + text
	default:
		return "💬"
	}
}

// sendComments posts the comment thread. Each comment replies to its
// parent's message, or to the primary message for top-level comments.
// Failures are contained per comment.
func (r *run) sendComments(ctx context.Context, comments []content.Comment) error {
	r.op.Begin(transfer.PhaseSendingCommentMedia, 0)
	r.report(ctx, true)

	sent := make(map[string]chat.Ref, len(comments))
	anchor := r.anchor()
	for _, c := range orderComments(comments) {
		if err := r.op.Control.Checkpoint(ctx); err != nil {
			return err
		}
		replyTo := anchor
		if parent, ok := sent[c.ParentID]; ok {
			replyTo = parent.Message
		}
		ref, err := r.sendComment(ctx, c, replyTo)
		if err != nil {
			if services.IsCancelled(err) || ctx.Err() != nil {
				return err
			}
			logging.WarnWithContext(ctx, r.logger, "comment send failed", "comment_send_failed",
				logging.String("comment_id", c.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "replies to this comment attach to the item instead"),
			)
			r.mu.Lock()
			r.commentFails++
			r.mu.Unlock()
			continue
		}
		sent[c.ID] = ref
	}
	return nil
}

func (r *run) sendComment(ctx context.Context, c content.Comment, replyTo string) (chat.Ref, error) {
	text := commentText(c)
	switch {
	case len(c.Images) > 0:
		return r.sendCommentImages(ctx, c, text, replyTo)
	case strings.TrimSpace(c.AudioURL) != "":
		return r.sendCommentAudio(ctx, c, text, replyTo)
	}
	ref, err := r.p.gateway.SendMessage(ctx, r.req.ChatID, text, chat.SendOptions{ReplyTo: replyTo})
	if err != nil {
		return chat.Ref{}, err
	}
	r.addComment(ref)
	return ref, nil
}

func (r *run) fetchCommentMedia(ctx context.Context, c content.Comment, url, base string) (fetch.File, error) {
	file, err := r.p.downloader.ToFile(ctx, url, r.localDir("comments", sanitize(c.ID)), base, r.op.Control, nil)
	if err != nil {
		return fetch.File{}, err
	}
	r.op.Add(file.Size)
	r.mu.Lock()
	r.bytes += file.Size
	r.mu.Unlock()
	r.report(ctx, false)
	return file, nil
}

// sendCommentImages uploads comment images in albums with the comment text on
// the last album. The returned ref is the first message of that album.
func (r *run) sendCommentImages(ctx context.Context, c content.Comment, text, replyTo string) (chat.Ref, error) {
	uploads := make([]chat.Upload, 0, len(c.Images))
	urls := make([]string, 0, len(c.Images))
	for i, url := range c.Images {
		file, err := r.fetchCommentMedia(ctx, c, url, fmt.Sprintf("image-%02d", i+1))
		if err != nil {
			if services.IsCancelled(err) || ctx.Err() != nil {
				return chat.Ref{}, err
			}
			r.logger.Info("comment image download failed", logging.String("url", url), logging.Error(err))
			continue
		}
		uploads = append(uploads, chat.Upload{
			Kind: uploadKind(content.KindPhoto, r.opts.SendAsFile),
			Path: file.Path,
			Name: filepath.Base(file.Path),
			MIME: file.MIME,
		})
		urls = append(urls, url)
	}
	if len(uploads) == 0 {
		ref, err := r.p.gateway.SendMessage(ctx, r.req.ChatID, text+"\n\n"+strings.Join(c.Images, "\n"), chat.SendOptions{ReplyTo: replyTo, DisablePreview: true})
		if err != nil {
			return chat.Ref{}, err
		}
		r.addComment(ref)
		return ref, nil
	}

	var anchor chat.Ref
	groups := chunk(uploads, r.opts.BatchSize)
	offset := 0
	for gi, group := range groups {
		if err := r.op.Control.Checkpoint(ctx); err != nil {
			return chat.Ref{}, err
		}
		opts := chat.SendOptions{ReplyTo: replyTo}
		if gi == len(groups)-1 {
			opts.Caption = text
		}
		refs, err := r.sendGroup(ctx, group, urls[offset:offset+len(group)], opts)
		offset += len(group)
		if err != nil {
			return chat.Ref{}, err
		}
		r.addComment(refs...)
		if gi == len(groups)-1 && len(refs) > 0 {
			anchor = refs[0]
		}
	}
	if anchor.IsZero() {
		return chat.Ref{}, services.Wrap(services.ErrTransferFailed, "pipeline", "comment images", "no image was sent", nil)
	}
	return anchor, nil
}

// sendGroup sends an album, falling back to individual chains on failure.
func (r *run) sendGroup(ctx context.Context, group []chat.Upload, urls []string, opts chat.SendOptions) ([]chat.Ref, error) {
	if len(group) == 1 {
		ref, _, err := r.uploadChain("comment_image", group[0], opts, urls[0], nil).Run(ctx, r.logger)
		if err != nil {
			return nil, err
		}
		return []chat.Ref{ref}, nil
	}
	refs, err := r.p.gateway.SendFiles(ctx, r.req.ChatID, group, opts, nil)
	if err == nil {
		return refs, nil
	}
	if services.IsCancelled(err) || ctx.Err() != nil {
		return nil, err
	}
	r.logger.Info("comment album failed; sending images individually", logging.Error(err))
	refs = nil
	for i, up := range group {
		itemOpts := chat.SendOptions{ReplyTo: opts.ReplyTo}
		if i == len(group)-1 {
			itemOpts.Caption = opts.Caption
		}
		ref, _, chainErr := r.uploadChain("comment_image", up, itemOpts, urls[i], nil).Run(ctx, r.logger)
		if chainErr != nil {
			if services.IsCancelled(chainErr) || ctx.Err() != nil {
				return refs, chainErr
			}
			continue
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, services.Wrap(services.ErrTransferFailed, "pipeline", "comment album", "no image was sent", nil)
	}
	return refs, nil
}

// sendCommentAudio tries a voice note, then a music file, then the original
// file, then a text link.
func (r *run) sendCommentAudio(ctx context.Context, c content.Comment, text, replyTo string) (chat.Ref, error) {
	chatID := r.req.ChatID
	gw := r.p.gateway
	opts := chat.SendOptions{ReplyTo: replyTo, Caption: text}
	link := Step{
		Name: "link",
		Send: func(ctx context.Context) (chat.Ref, error) {
			return gw.SendMessage(ctx, chatID, text+"\n\n🎧 "+c.AudioURL, chat.SendOptions{ReplyTo: replyTo})
		},
	}

	file, err := r.fetchCommentMedia(ctx, c, c.AudioURL, "audio")
	if err != nil {
		if services.IsCancelled(err) || ctx.Err() != nil {
			return chat.Ref{}, err
		}
		r.logger.Info("comment audio download failed; sending link", logging.Error(err))
		ref, _, chainErr := Chain{Name: "comment_audio", Steps: []Step{link}}.Run(ctx, r.logger)
		if chainErr != nil {
			return chat.Ref{}, chainErr
		}
		r.addComment(ref)
		return ref, nil
	}

	dir := filepath.Dir(file.Path)
	var steps []Step
	if r.p.tools != nil {
		steps = append(steps,
			Step{
				Name: "voice",
				Send: func(ctx context.Context) (chat.Ref, error) {
					dest := filepath.Join(dir, "voice.ogg")
					if err := r.p.tools.Voice(ctx, file.Path, dest); err != nil {
						return chat.Ref{}, err
					}
					return gw.SendFile(ctx, chatID, chat.Upload{Kind: chat.UploadVoice, Path: dest, Name: "voice.ogg", MIME: "audio/ogg"}, opts, nil)
				},
			},
			Step{
				Name: "music",
				Send: func(ctx context.Context) (chat.Ref, error) {
					dest := filepath.Join(dir, "audio.mp3")
					if err := r.p.tools.Music(ctx, file.Path, dest); err != nil {
						return chat.Ref{}, err
					}
					return gw.SendFile(ctx, chatID, chat.Upload{Kind: chat.UploadAudio, Path: dest, Name: "audio.mp3", MIME: "audio/mpeg"}, opts, nil)
				},
			},
		)
	}
	steps = append(steps,
		Step{
			Name: "document",
			Send: func(ctx context.Context) (chat.Ref, error) {
				return gw.SendFile(ctx, chatID, chat.Upload{Kind: chat.UploadDocument, Path: file.Path, Name: filepath.Base(file.Path), MIME: file.MIME}, opts, nil)
			},
		},
		link,
	)
	ref, _, err := Chain{Name: "comment_audio", Steps: steps}.Run(ctx, r.logger)
	if err != nil {
		return chat.Ref{}, err
	}
	r.addComment(ref)
	return ref, nil
}

func sanitize(id string) string {
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
	if id == "" {
		return "comment"
	}
	return id
}
