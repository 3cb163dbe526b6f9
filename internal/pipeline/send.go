package pipeline

import (
	"context"
	"strings"

	"feedrelay/internal/chat"
	"feedrelay/internal/content"
)

// uploadKind maps a media kind onto the upload presentation.
func uploadKind(kind content.MediaKind, asFile bool) chat.UploadKind {
	if asFile {
		return chat.UploadDocument
	}
	switch kind {
	case content.KindPhoto:
		return chat.UploadPhoto
	case content.KindVideo, content.KindLiveVideo:
		return chat.UploadVideo
	default:
		return chat.UploadDocument
	}
}

func linkText(caption, url string) string {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return "🔗 " + url
	}
	return caption + "\n\n🔗 " + url
}

// uploadChain sends upload as-is, then as a generic file, then as a text
// link to sourceURL.
func (r *run) uploadChain(name string, upload chat.Upload, opts chat.SendOptions, sourceURL string, onProgress chat.ProgressFunc) Chain {
	chatID := r.req.ChatID
	gw := r.p.gateway
	steps := []Step{{
		Name: string(upload.Kind),
		Send: func(ctx context.Context) (chat.Ref, error) {
			return gw.SendFile(ctx, chatID, upload, opts, onProgress)
		},
	}}
	if upload.Kind != chat.UploadDocument {
		doc := chat.Upload{Kind: chat.UploadDocument, Path: upload.Path, Name: upload.Name, MIME: upload.MIME}
		steps = append(steps, Step{
			Name: string(chat.UploadDocument),
			Send: func(ctx context.Context) (chat.Ref, error) {
				return gw.SendFile(ctx, chatID, doc, opts, onProgress)
			},
		})
	}
	if strings.TrimSpace(sourceURL) != "" {
		steps = append(steps, Step{
			Name: "link",
			Send: func(ctx context.Context) (chat.Ref, error) {
				return gw.SendMessage(ctx, chatID, linkText(opts.Caption, sourceURL), chat.SendOptions{ReplyTo: opts.ReplyTo})
			},
		})
	}
	return Chain{Name: name, Steps: steps}
}
