package pipeline_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedrelay/internal/chat"
	"feedrelay/internal/content"
	"feedrelay/internal/fetch"
	"feedrelay/internal/media/ffprobe"
	"feedrelay/internal/pipeline"
	"feedrelay/internal/services"
	"feedrelay/internal/testsupport"
	"feedrelay/internal/transfer"
)

type fakeTools struct {
	mu       sync.Mutex
	voiceErr error
	calls    []string
}

func (f *fakeTools) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeTools) Probe(ctx context.Context, path string) (ffprobe.VideoInfo, error) {
	f.record("probe")
	return ffprobe.VideoInfo{Width: 1920, Height: 1080, Codec: "h264", Duration: 12.4}, nil
}

func (f *fakeTools) Thumbnail(ctx context.Context, source, dest string) error {
	f.record("thumbnail")
	return os.WriteFile(dest, []byte("thumb"), 0o644)
}

func (f *fakeTools) Voice(ctx context.Context, source, dest string) error {
	f.record("voice")
	if f.voiceErr != nil {
		return f.voiceErr
	}
	return os.WriteFile(dest, []byte("ogg"), 0o644)
}

func (f *fakeTools) Music(ctx context.Context, source, dest string) error {
	f.record("music")
	return os.WriteFile(dest, []byte("mp3"), 0o644)
}

type harness struct {
	gw     *testsupport.FakeGateway
	media  *testsupport.MediaServer
	tools  *fakeTools
	pipe   *pipeline.Pipeline
	chatID string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	ms := testsupport.NewMediaServer(t, 4096)
	gw := testsupport.NewFakeGateway()
	tools := &fakeTools{}
	dl := fetch.New(ms.Client(), fetch.Options{Timeout: 5 * time.Second, Retries: 1, ChunkSize: 1024})
	pipe, err := pipeline.New(pipeline.Deps{
		Gateway:    gw,
		Downloader: dl,
		Tools:      tools,
		WorkDir:    cfg.Paths.WorkDir,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return &harness{gw: gw, media: ms, tools: tools, pipe: pipe, chatID: "42"}
}

func (h *harness) deliver(item *content.Item, opts pipeline.Options) pipeline.Result {
	return h.pipe.Deliver(context.Background(), pipeline.Request{ChatID: h.chatID, Item: item, Options: opts})
}

func uploads(msgs []testsupport.SentMessage) []testsupport.SentMessage {
	var out []testsupport.SentMessage
	for _, m := range msgs {
		if m.Upload != nil {
			out = append(out, m)
		}
	}
	return out
}

func repeatKind(kind content.MediaKind, n int) []content.MediaKind {
	out := make([]content.MediaKind, n)
	for i := range out {
		out[i] = kind
	}
	return out
}

func TestClassify(t *testing.T) {
	photo := content.MediaRef{URL: "u", Kind: content.KindPhoto}
	video := content.MediaRef{URL: "u", Kind: content.KindVideo}
	live := content.MediaRef{URL: "u", Kind: content.KindLiveVideo}
	cases := []struct {
		name  string
		media content.Manifest
		want  pipeline.Strategy
	}{
		{"empty", nil, pipeline.StrategyText},
		{"single video", content.Manifest{video}, pipeline.StrategyVideo},
		{"single photo", content.Manifest{photo}, pipeline.StrategyBatch},
		{"single live video", content.Manifest{live}, pipeline.StrategyBatch},
		{"two videos", content.Manifest{video, video}, pipeline.StrategyBatch},
		{"mixed", content.Manifest{photo, video}, pipeline.StrategyBatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pipeline.Classify(tc.media); got != tc.want {
				t.Fatalf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDeliverBatchesAlbumsWithCaptionOnLast(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL, repeatKind(content.KindPhoto, 23)...)

	res := h.deliver(item, pipeline.Options{BatchSize: 10})
	if res.Status != pipeline.StatusDelivered {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if res.Strategy != pipeline.StrategyBatch {
		t.Fatalf("strategy = %s", res.Strategy)
	}
	albums := h.gw.Albums()
	if len(albums) != 3 {
		t.Fatalf("expected 3 albums, got %d", len(albums))
	}
	for i, want := range []int{10, 10, 3} {
		if got := len(albums[i].Uploads); got != want {
			t.Fatalf("album %d size = %d, want %d", i, got, want)
		}
	}
	if albums[0].Caption != "" || albums[1].Caption != "" {
		t.Fatalf("caption attached before the last album")
	}
	if !strings.Contains(albums[2].Caption, "Sample title") {
		t.Fatalf("last album caption = %q", albums[2].Caption)
	}
	if len(res.Messages) != 23 || len(res.Delivered) != 23 {
		t.Fatalf("messages = %d delivered = %d", len(res.Messages), len(res.Delivered))
	}
	if res.TransferredBytes != 23*4096 {
		t.Fatalf("transferred = %d", res.TransferredBytes)
	}
	if res.Primary() != res.Messages[0] {
		t.Fatalf("primary should be first content message")
	}
	final := h.gw.LastText(res.StatusMessage)
	if !strings.HasPrefix(final, "✅ Delivered") {
		t.Fatalf("final status = %q", final)
	}
	if h.pipe.Registry().Len() != 0 {
		t.Fatalf("operation left in registry")
	}
}

func TestDeliverExcludesLiveVideoUnlessRequested(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindLiveVideo, content.KindPhoto)

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusDelivered {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if got := len(uploads(h.gw.Messages())); got != 2 {
		t.Fatalf("expected 2 uploads, got %d", got)
	}
	if h.media.Hits("/media/live_video/2") != 0 {
		t.Fatalf("live video should not be downloaded")
	}

	h2 := newHarness(t)
	item2 := testsupport.SampleItem(h2.media.URL, content.KindPhoto, content.KindLiveVideo, content.KindPhoto)
	res = h2.deliver(item2, pipeline.Options{IncludeLiveMedia: true})
	if len(res.Delivered) != 3 {
		t.Fatalf("expected live media included, delivered %d", len(res.Delivered))
	}
}

func TestDeliverSingleVideoCarriesMetadata(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL, content.KindVideo)

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusDelivered || res.Strategy != pipeline.StrategyVideo {
		t.Fatalf("status = %s strategy = %s err = %v", res.Status, res.Strategy, res.Err)
	}
	ups := uploads(h.gw.Messages())
	if len(ups) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(ups))
	}
	up := ups[0].Upload
	if up.Kind != chat.UploadVideo || up.Width != 1920 || up.Height != 1080 || up.Duration != 12 {
		t.Fatalf("unexpected upload %+v", up)
	}
	if up.Thumbnail == "" {
		t.Fatalf("expected thumbnail")
	}
	if !strings.HasSuffix(up.Name, ".mp4") {
		t.Fatalf("expected sniffed mp4 extension, got %q", up.Name)
	}
	if !strings.Contains(ups[0].Caption, "Sample body") {
		t.Fatalf("caption = %q", ups[0].Caption)
	}
	for _, want := range []string{"4.1 kB", "1920×1080 · h264", "2.6 kbps", "12s", "↓ ", "↑ "} {
		if !strings.Contains(res.Summary, want) {
			t.Fatalf("summary %q missing %q", res.Summary, want)
		}
	}
	if final := h.gw.LastText(res.StatusMessage); !strings.Contains(final, res.Summary) {
		t.Fatalf("final status = %q", final)
	}
}

func TestDeliverSendAsFileUsesDocuments(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL, content.KindVideo)

	res := h.deliver(item, pipeline.Options{SendAsFile: true})
	if res.Status != pipeline.StatusDelivered {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	ups := uploads(h.gw.Messages())
	if len(ups) != 1 || ups[0].Upload.Kind != chat.UploadDocument {
		t.Fatalf("expected one document upload, got %+v", ups)
	}
}

func TestDeliverTextOnlyItem(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL)

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusDelivered || res.Strategy != pipeline.StrategyText {
		t.Fatalf("status = %s strategy = %s", res.Status, res.Strategy)
	}
	if !res.StatusMessage.IsZero() {
		t.Fatalf("text delivery should not open a status message")
	}
	msgs := h.gw.Messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "https://example.com/note-1") {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if res.Primary() != msgs[0].Ref {
		t.Fatalf("primary = %+v", res.Primary())
	}
}

func TestDeliverCancelKeepsSentMessages(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL, repeatKind(content.KindPhoto, 3)...)
	var calls atomic.Int32
	var op *transfer.Operation
	h.gw.BeforeUpload = func(ctx context.Context) {
		if calls.Add(1) == 2 {
			ops := h.pipe.Registry().List()
			if len(ops) != 1 {
				t.Errorf("expected one registered operation, got %d", len(ops))
				return
			}
			op, _ = h.pipe.Registry().Get(ops[0].Key)
			if n := h.pipe.Registry().CancelAll(); n != 1 {
				t.Errorf("CancelAll = %d", n)
			}
		}
	}

	res := h.deliver(item, pipeline.Options{BatchSize: 1})
	if res.Status != pipeline.StatusCancelled {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if op == nil || op.Phase() != transfer.PhaseCancelled {
		t.Fatalf("operation should end in the cancelled phase")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected no upload after cancellation, got %d upload calls", calls.Load())
	}
	if !services.IsCancelled(res.Err) {
		t.Fatalf("expected cancelled error, got %v", res.Err)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("expected the two sent messages to be kept, got %d", len(res.Messages))
	}
	if !res.Recordable() {
		t.Fatalf("cancelled delivery with messages should be recordable")
	}
	final := h.gw.LastText(res.StatusMessage)
	if !strings.HasPrefix(final, "🚫 Cancelled") {
		t.Fatalf("final status = %q", final)
	}
}

func TestDeliverCancelDuringDownloadStopsTransfer(t *testing.T) {
	const size = 4096
	gw := testsupport.NewFakeGateway()
	var pipe *pipeline.Pipeline
	var gets atomic.Int32
	var op atomic.Pointer[transfer.Operation]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(size))
		if r.Method == http.MethodHead {
			return
		}
		if gets.Add(1) == 2 {
			if ops := pipe.Registry().List(); len(ops) == 1 {
				if live, ok := pipe.Registry().Get(ops[0].Key); ok {
					op.Store(live)
				}
			}
			pipe.Registry().CancelAll()
		}
		_, _ = w.Write(testsupport.JPEGPayload(size))
	}))
	defer srv.Close()

	dl := fetch.New(srv.Client(), fetch.Options{Timeout: 5 * time.Second, Retries: 2, ChunkSize: 1024})
	var err error
	pipe, err = pipeline.New(pipeline.Deps{Gateway: gw, Downloader: dl, WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	gw.BeforeUpload = func(ctx context.Context) {
		t.Errorf("upload started after cancellation")
	}
	item := testsupport.SampleItem(srv.URL, repeatKind(content.KindPhoto, 3)...)
	res := pipe.Deliver(context.Background(), pipeline.Request{ChatID: "42", Item: item, Options: pipeline.Options{}})
	if res.Status != pipeline.StatusCancelled {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if gets.Load() != 2 {
		t.Fatalf("expected downloads to stop after cancellation, got %d requests", gets.Load())
	}
	live := op.Load()
	if live == nil {
		t.Fatalf("operation was not registered while downloading")
	}
	if live.Phase() != transfer.PhaseCancelled {
		t.Fatalf("phase = %s, want cancelled", live.Phase())
	}
	if snap := live.Snapshot(); snap.Transferred != size {
		t.Fatalf("expected only the first download to be transferred, got %d bytes", snap.Transferred)
	}
	if res.TransferredBytes != 0 {
		t.Fatalf("cancelled downloads should not be counted, got %d bytes", res.TransferredBytes)
	}
	if final := gw.LastText(res.StatusMessage); !strings.HasPrefix(final, "🚫 Cancelled") {
		t.Fatalf("final status = %q", final)
	}
}

func TestDeliverPauseBlocksUntilResume(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL, repeatKind(content.KindPhoto, 2)...)
	var once sync.Once
	h.gw.BeforeUpload = func(ctx context.Context) {
		once.Do(func() {
			ops := h.pipe.Registry().List()
			if len(ops) != 1 {
				t.Errorf("expected one registered operation, got %d", len(ops))
				return
			}
			key := ops[0].Key
			if ok, err := h.pipe.Registry().Pause(key); !ok || err != nil {
				t.Errorf("Pause = %v, %v", ok, err)
			}
			go func() {
				time.Sleep(60 * time.Millisecond)
				_, _ = h.pipe.Registry().Resume(key)
			}()
		})
	}

	started := time.Now()
	res := h.deliver(item, pipeline.Options{BatchSize: 1})
	if res.Status != pipeline.StatusDelivered {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if elapsed := time.Since(started); elapsed < 50*time.Millisecond {
		t.Fatalf("delivery did not wait for resume (%s)", elapsed)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("messages = %d", len(res.Messages))
	}
}

func TestDeliverFallsBackToDocumentWhenPhotoRejected(t *testing.T) {
	h := newHarness(t)
	h.gw.FailKinds = map[chat.UploadKind]error{chat.UploadPhoto: errors.New("PHOTO_INVALID_DIMENSIONS")}
	h.gw.FailAlbums = errors.New("album rejected")
	item := testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindPhoto)

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusDelivered {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	ups := uploads(h.gw.Messages())
	if len(ups) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(ups))
	}
	for _, m := range ups {
		if m.Upload.Kind != chat.UploadDocument {
			t.Fatalf("expected document fallback, got %s", m.Upload.Kind)
		}
	}
	if ups[0].Caption != "" || !strings.Contains(ups[1].Caption, "Sample title") {
		t.Fatalf("caption should ride on the last item: %q / %q", ups[0].Caption, ups[1].Caption)
	}
}

func TestDeliverFallsBackToLinkWhenAllUploadsFail(t *testing.T) {
	h := newHarness(t)
	h.gw.FailKinds = map[chat.UploadKind]error{
		chat.UploadVideo:    errors.New("too big"),
		chat.UploadDocument: errors.New("too big"),
	}
	item := testsupport.SampleItem(h.media.URL, content.KindVideo)

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusDelivered {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	msgs := h.gw.Messages()
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Text, "/media/video/1") {
		t.Fatalf("expected link fallback, got %q", last.Text)
	}
}

func TestDeliverFailsWhenNoMediaReachesChat(t *testing.T) {
	h := newHarness(t)
	h.gw.FailKinds = map[chat.UploadKind]error{
		chat.UploadPhoto:    errors.New("rejected"),
		chat.UploadDocument: errors.New("rejected"),
	}
	h.gw.FailAlbums = errors.New("album rejected")
	h.gw.FailText = func(text string) error {
		if strings.Contains(text, "/media/") {
			return errors.New("flood wait")
		}
		return nil
	}
	item := testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindPhoto)

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !errors.Is(res.Err, services.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", res.Err)
	}
	if len(res.Delivered) != 0 || len(res.Failed) != 2 || len(res.Messages) != 0 {
		t.Fatalf("delivered = %d failed = %d messages = %d", len(res.Delivered), len(res.Failed), len(res.Messages))
	}
	if final := h.gw.LastText(res.StatusMessage); !strings.HasPrefix(final, "❌ Failed") {
		t.Fatalf("final status = %q", final)
	}
}

func TestDeliverMissingMediaIsPartial(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL, content.KindPhoto)
	item.Manifest = append(item.Manifest, content.MediaRef{URL: h.media.URL + "/missing/2", Kind: content.KindPhoto, Sequence: 2})

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusPartial {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if len(res.Failed) != 1 || len(res.Delivered) != 1 {
		t.Fatalf("failed = %d delivered = %d", len(res.Failed), len(res.Delivered))
	}
	if final := h.gw.LastText(res.StatusMessage); !strings.Contains(final, "1 of 2") {
		t.Fatalf("final status = %q", final)
	}
}

func TestDeliverThreadsComments(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL, content.KindPhoto)
	item.Comments = []content.Comment{
		{ID: "c2", ParentID: "c1", Author: "bob", Text: "reply"},
		{ID: "c1", Author: "alice", Text: "top"},
		{ID: "c3", Author: "carol", Text: "pics", Images: []string{h.media.URL + "/photo/c3-1", h.media.URL + "/photo/c3-2"}},
		{ID: "c4", ParentID: "gone", Text: "orphan"},
	}

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusDelivered {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	primary := res.Primary()
	byText := map[string]testsupport.SentMessage{}
	for _, m := range h.gw.Messages() {
		byText[m.Text+m.Caption] = m
	}
	top := byText["💬 alice: top"]
	reply := byText["💬 bob: reply"]
	orphan := byText["💬 orphan"]
	if top.Ref.IsZero() || reply.Ref.IsZero() || orphan.Ref.IsZero() {
		t.Fatalf("missing comment messages: %+v", byText)
	}
	if top.ReplyTo != primary.Message {
		t.Fatalf("top-level comment replies to %q, want %q", top.ReplyTo, primary.Message)
	}
	if reply.ReplyTo != top.Ref.Message {
		t.Fatalf("reply attached to %q, want parent %q", reply.ReplyTo, top.Ref.Message)
	}
	if orphan.ReplyTo != primary.Message {
		t.Fatalf("orphan should attach to primary, got %q", orphan.ReplyTo)
	}
	albums := h.gw.Albums()
	if len(albums) != 1 || len(albums[0].Uploads) != 2 || albums[0].Caption != "💬 carol: pics" {
		t.Fatalf("unexpected comment album %+v", albums)
	}
	// 1 photo + 2 text comments + 2 comment images + 1 orphan
	if len(res.Messages) != 6 {
		t.Fatalf("messages = %d", len(res.Messages))
	}
	aliases := res.Aliases()
	if len(aliases) != 6 {
		t.Fatalf("aliases = %d", len(aliases))
	}
}

func TestDeliverAudioCommentFallsBackToMusic(t *testing.T) {
	h := newHarness(t)
	h.tools.voiceErr = errors.New("encoder missing")
	item := testsupport.SampleItem(h.media.URL, content.KindPhoto)
	item.Comments = []content.Comment{{ID: "a1", Author: "dan", Text: "listen", AudioURL: h.media.URL + "/audio/a1"}}

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusDelivered {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	var audio *chat.Upload
	for _, m := range h.gw.Messages() {
		if m.Upload != nil && m.Upload.Kind == chat.UploadAudio {
			audio = m.Upload
		}
	}
	if audio == nil {
		t.Fatalf("expected music fallback upload")
	}
}

func TestDeliverRejectsInvalidItem(t *testing.T) {
	h := newHarness(t)
	item := &content.Item{ID: "x", Manifest: content.Manifest{{URL: "", Kind: content.KindPhoto}}}

	res := h.deliver(item, pipeline.Options{})
	if res.Status != pipeline.StatusFailed || !errors.Is(res.Err, services.ErrValidation) {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if len(h.gw.Messages()) != 0 {
		t.Fatalf("nothing should be sent for an invalid item")
	}
}
