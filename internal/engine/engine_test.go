package engine_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/chat"
	"feedrelay/internal/config"
	"feedrelay/internal/content"
	"feedrelay/internal/dispatch"
	"feedrelay/internal/engine"
	"feedrelay/internal/fetch"
	"feedrelay/internal/pipeline"
	"feedrelay/internal/summarize"
	"feedrelay/internal/testsupport"
)

type fakeSummarizer struct {
	calls  atomic.Int32
	images atomic.Int32
	err    error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string, images []summarize.Image) (string, error) {
	f.calls.Add(1)
	f.images.Store(int32(len(images)))
	if f.err != nil {
		return "", f.err
	}
	return "Short summary", nil
}

type harness struct {
	cfg   *config.Config
	store *actionstate.Store
	gw    *testsupport.FakeGateway
	media *testsupport.MediaServer
	sum   *fakeSummarizer
	eng   *engine.Engine
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	ms := testsupport.NewMediaServer(t, 2048)
	gw := testsupport.NewFakeGateway()
	dl := fetch.New(ms.Client(), fetch.Options{Timeout: 5 * time.Second, Retries: 1})
	pipe, err := pipeline.New(pipeline.Deps{Gateway: gw, Downloader: dl, WorkDir: cfg.Paths.WorkDir})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	sum := &fakeSummarizer{}
	eng, err := engine.New(engine.Deps{
		Config:     cfg,
		Gateway:    gw,
		Store:      store,
		Pipeline:   pipe,
		Downloader: dl,
		Summarizer: sum,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(eng.Close)
	return &harness{cfg: cfg, store: store, gw: gw, media: ms, sum: sum, eng: eng}
}

func (h *harness) deliver(t *testing.T, item *content.Item, opts *pipeline.Options, origin chat.Ref) engine.DeliveryReport {
	t.Helper()
	report, err := h.eng.Deliver(context.Background(), engine.DeliverRequest{ChatID: "42", Item: item, Options: opts, Origin: origin})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	return report
}

func (h *harness) click(ref chat.Ref, data string) {
	h.eng.HandleUpdate(context.Background(), chat.Update{Kind: chat.UpdateCallback, Message: ref, Data: data, TriggerID: "cb-" + data})
}

func TestDeliverRecordsEveryMessage(t *testing.T) {
	h := newHarness(t)
	item := testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindLiveVideo, content.KindPhoto)

	report := h.deliver(t, item, nil, chat.Ref{})
	res := report.Result
	if res.Status != pipeline.StatusDelivered || report.PersistErr != nil {
		t.Fatalf("status = %s persist = %v", res.Status, report.PersistErr)
	}
	if report.PrimaryKey != res.Primary().Key() {
		t.Fatalf("primary = %s, want %s", report.PrimaryKey, res.Primary().Key())
	}
	keys := append(chat.Keys(res.Messages), res.StatusMessage.Key())
	for _, key := range keys {
		rec, err := h.store.Resolve(context.Background(), key)
		if err != nil || rec == nil {
			t.Fatalf("Resolve(%s) = %v, %v", key, rec, err)
		}
		if rec.PrimaryKey != report.PrimaryKey {
			t.Fatalf("Resolve(%s) primary = %s", key, rec.PrimaryKey)
		}
		if len(rec.Manifest) != 3 || rec.Flags.IncludedLiveMedia {
			t.Fatalf("manifest should keep all media while flags reflect the choice: %+v", rec)
		}
		if rec.TotalBytes != 2*2048 {
			t.Fatalf("total bytes = %d", rec.TotalBytes)
		}
	}

	var buttons chat.Keyboard
	for _, edit := range h.gw.Edits() {
		if edit.Markup && edit.Ref == res.StatusMessage {
			buttons = edit.Buttons
		}
	}
	if len(buttons) != 2 || len(buttons[0]) != 3 {
		t.Fatalf("expected three action buttons and a dismiss row, got %+v", buttons)
	}
}

func TestDeliverReactsAndDeletesOrigin(t *testing.T) {
	h := newHarness(t)
	h.cfg.Delivery.Reactions = true
	h.cfg.Delivery.DeleteOriginMessage = true
	origin := chat.Ref{Chat: "42", Message: "9000"}

	h.deliver(t, testsupport.SampleItem(h.media.URL, content.KindPhoto), nil, origin)

	reactions := h.gw.Reactions()
	if len(reactions) != 1 || reactions[0].Ref != origin || reactions[0].Emoji != "👌" {
		t.Fatalf("unexpected reactions %+v", reactions)
	}
	if deleted := h.gw.Deleted(); len(deleted) != 1 || deleted[0] != origin {
		t.Fatalf("origin not deleted: %+v", deleted)
	}
}

func TestFailedDeliveryReactsWithoutDeleting(t *testing.T) {
	h := newHarness(t)
	h.cfg.Delivery.Reactions = true
	h.cfg.Delivery.DeleteOriginMessage = true
	origin := chat.Ref{Chat: "42", Message: "9001"}
	item := testsupport.SampleItem(h.media.URL)
	item.Manifest = content.Manifest{{URL: h.media.URL + "/missing/1", Kind: content.KindPhoto, Sequence: 1}}

	report := h.deliver(t, item, nil, origin)
	if report.Result.Status != pipeline.StatusFailed {
		t.Fatalf("status = %s", report.Result.Status)
	}
	reactions := h.gw.Reactions()
	if len(reactions) != 1 || reactions[0].Emoji != "😢" {
		t.Fatalf("unexpected reactions %+v", reactions)
	}
	if len(h.gw.Deleted()) != 0 {
		t.Fatalf("failed delivery must not delete the origin")
	}
}

func TestCancelledDeliveryLocksActions(t *testing.T) {
	h := newHarness(t)
	var once sync.Once
	h.gw.BeforeUpload = func(ctx context.Context) {
		once.Do(func() {
			ops := h.eng.Operations()
			if len(ops) != 1 {
				t.Errorf("operations = %d", len(ops))
				return
			}
			ref, err := chat.ParseKey(ops[0].Key)
			if err != nil {
				t.Errorf("ParseKey: %v", err)
				return
			}
			h.click(ref, pipeline.DataCancel)
		})
	}
	item := testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindPhoto, content.KindPhoto)

	report := h.deliver(t, item, &pipeline.Options{BatchSize: 1}, chat.Ref{})
	if report.Result.Status != pipeline.StatusCancelled {
		t.Fatalf("status = %s", report.Result.Status)
	}
	if !slices.Contains(h.gw.Answers(), "Cancelling…") {
		t.Fatalf("cancel not acknowledged: %v", h.gw.Answers())
	}
	rec, err := h.store.Resolve(context.Background(), report.PrimaryKey)
	if err != nil || rec == nil {
		t.Fatalf("cancelled delivery should still be recorded: %v", err)
	}
	for _, kind := range actionstate.ActionKinds {
		if rec.ActionState(kind) != actionstate.StateCancelled {
			t.Fatalf("action %s = %s, want cancelled", kind, rec.ActionState(kind))
		}
	}
	decision, err := h.eng.Trigger(context.Background(), report.PrimaryKey, actionstate.ActionSummarize)
	if err != nil || decision.Reason != dispatch.ReasonAlreadyUsed {
		t.Fatalf("Trigger = %+v, %v", decision, err)
	}
}

func TestPauseAndResumeButtons(t *testing.T) {
	h := newHarness(t)
	var once sync.Once
	h.gw.BeforeUpload = func(ctx context.Context) {
		once.Do(func() {
			ref, err := chat.ParseKey(h.eng.Operations()[0].Key)
			if err != nil {
				t.Errorf("ParseKey: %v", err)
				return
			}
			h.click(ref, pipeline.DataPause)
			go func() {
				time.Sleep(50 * time.Millisecond)
				h.click(ref, pipeline.DataResume)
			}()
		})
	}
	item := testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindPhoto)

	report := h.deliver(t, item, &pipeline.Options{BatchSize: 1}, chat.Ref{})
	if report.Result.Status != pipeline.StatusDelivered {
		t.Fatalf("status = %s", report.Result.Status)
	}
	answers := h.gw.Answers()
	if !slices.Contains(answers, "Paused") || !slices.Contains(answers, "Resumed") {
		t.Fatalf("unexpected answers %v", answers)
	}
	var sawPaused bool
	for _, edit := range h.gw.Edits() {
		if strings.Contains(edit.Text, "(paused)") && len(edit.Buttons) > 0 && edit.Buttons[0][0].Data == pipeline.DataResume {
			sawPaused = true
		}
	}
	if !sawPaused {
		t.Fatalf("status message never showed the paused state")
	}
}

func TestControlOnUnknownOperation(t *testing.T) {
	h := newHarness(t)
	h.click(chat.Ref{Chat: "42", Message: "404"}, pipeline.DataPause)
	if answers := h.gw.Answers(); len(answers) != 1 || answers[0] != "This transfer is no longer running" {
		t.Fatalf("unexpected answers %v", answers)
	}
}

func TestSummarizeButton(t *testing.T) {
	h := newHarness(t)
	report := h.deliver(t, testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindPhoto), nil, chat.Ref{})
	host := report.Result.StatusMessage

	h.click(host, "act:summarize")
	h.eng.Wait()

	if h.sum.calls.Load() != 1 || h.sum.images.Load() != 2 {
		t.Fatalf("summarizer calls = %d images = %d", h.sum.calls.Load(), h.sum.images.Load())
	}
	rec, err := h.store.Resolve(context.Background(), report.PrimaryKey)
	if err != nil || rec == nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rec.Auxiliary[engine.AuxSummary] != "Short summary" {
		t.Fatalf("summary not merged: %+v", rec.Auxiliary)
	}
	placeholder, err := chat.ParseKey(rec.Auxiliary[engine.AuxSummaryMessage])
	if err != nil {
		t.Fatalf("summary message key: %v", err)
	}
	if text := h.gw.LastText(placeholder); !strings.HasPrefix(text, "🧠 Summary") {
		t.Fatalf("placeholder text = %q", text)
	}
	if alias, err := h.store.Resolve(context.Background(), placeholder.Key()); err != nil || alias == nil || alias.PrimaryKey != report.PrimaryKey {
		t.Fatalf("summary message should resolve to the record: %+v, %v", alias, err)
	}
	if !slices.Contains(h.gw.Answers(), "On it") {
		t.Fatalf("trigger not acknowledged: %v", h.gw.Answers())
	}

	h.click(host, "act:summarize")
	h.eng.Wait()
	if h.sum.calls.Load() != 1 {
		t.Fatalf("summarize ran twice")
	}
}

func TestThinkingReactionTriggersSummary(t *testing.T) {
	h := newHarness(t)
	report := h.deliver(t, testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindPhoto), nil, chat.Ref{})
	alias := report.Result.Messages[1]

	h.eng.HandleUpdate(context.Background(), chat.Update{Kind: chat.UpdateReaction, Message: alias, Emoji: "👍"})
	h.eng.HandleUpdate(context.Background(), chat.Update{Kind: chat.UpdateReaction, Message: alias, Emoji: "🤔"})
	h.eng.Wait()

	if h.sum.calls.Load() != 1 {
		t.Fatalf("summarizer calls = %d", h.sum.calls.Load())
	}
	reactions := h.gw.Reactions()
	if len(reactions) != 1 || reactions[0].Ref != alias || reactions[0].Emoji != "👾" {
		t.Fatalf("unexpected reactions %+v", reactions)
	}
}

func TestSummarizeRejectedWhenTooLarge(t *testing.T) {
	h := newHarness(t, testsupport.WithSummarizeCeiling(2048))
	report := h.deliver(t, testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindPhoto), nil, chat.Ref{})

	decision, err := h.eng.Trigger(context.Background(), report.PrimaryKey, actionstate.ActionSummarize)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if decision.Reason != dispatch.ReasonTooLarge {
		t.Fatalf("decision = %+v", decision)
	}
	h.eng.Wait()
	if h.sum.calls.Load() != 0 {
		t.Fatalf("summarizer must not be called")
	}
}

func TestSummarizeFailureEditsPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.sum.err = errors.New("quota exceeded")
	report := h.deliver(t, testsupport.SampleItem(h.media.URL, content.KindPhoto), nil, chat.Ref{})

	if decision, err := h.eng.Trigger(context.Background(), report.PrimaryKey, actionstate.ActionSummarize); err != nil || !decision.Accepted {
		t.Fatalf("Trigger = %+v, %v", decision, err)
	}
	h.eng.Wait()
	var failed bool
	for _, edit := range h.gw.Edits() {
		if strings.HasPrefix(edit.Text, "❌ Summary failed") && strings.Contains(edit.Text, "quota exceeded") {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("failure not shown on the placeholder")
	}
}

func TestResendAsFilesReplies(t *testing.T) {
	h := newHarness(t)
	report := h.deliver(t, testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindPhoto), nil, chat.Ref{})
	before := len(h.gw.Messages())

	h.click(report.Result.StatusMessage, "act:resend_as_file")
	h.eng.Wait()

	var docs []testsupport.SentMessage
	for _, m := range h.gw.Messages()[before:] {
		if m.Upload != nil {
			docs = append(docs, m)
		}
	}
	if len(docs) != 2 {
		t.Fatalf("expected two resent files, got %d", len(docs))
	}
	primary := report.Result.Primary()
	for _, m := range docs {
		if m.Upload.Kind != chat.UploadDocument || m.ReplyTo != primary.Message {
			t.Fatalf("unexpected resend %+v", m)
		}
	}
	rec, err := h.store.Resolve(context.Background(), docs[0].Ref.Key())
	if err != nil || rec == nil || rec.PrimaryKey != report.PrimaryKey {
		t.Fatalf("resent message should resolve to the record: %+v, %v", rec, err)
	}
	if rec.ActionState(actionstate.ActionResendAsFile) != actionstate.StateDone {
		t.Fatalf("action state = %s", rec.ActionState(actionstate.ActionResendAsFile))
	}
}

func TestFetchOmittedMediaDownloadsLiveVideo(t *testing.T) {
	h := newHarness(t)
	report := h.deliver(t, testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindLiveVideo), nil, chat.Ref{})
	if h.media.Hits("/media/live_video/2") != 0 {
		t.Fatalf("live video fetched during the initial delivery")
	}

	decision, err := h.eng.Trigger(context.Background(), report.PrimaryKey, actionstate.ActionFetchOmittedMedia)
	if err != nil || !decision.Accepted {
		t.Fatalf("Trigger = %+v, %v", decision, err)
	}
	h.eng.Wait()
	if h.media.Hits("/media/live_video/2") != 1 {
		t.Fatalf("live video not fetched")
	}
	rec, err := h.store.Resolve(context.Background(), report.PrimaryKey)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rec.TotalBytes != 2*2048 {
		t.Fatalf("total bytes = %d", rec.TotalBytes)
	}
}

func TestDismissRemovesButtons(t *testing.T) {
	h := newHarness(t)
	report := h.deliver(t, testsupport.SampleItem(h.media.URL, content.KindPhoto, content.KindPhoto), nil, chat.Ref{})
	host := report.Result.StatusMessage

	h.click(host, "act:dismiss")

	rec, err := h.store.Resolve(context.Background(), report.PrimaryKey)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for _, kind := range actionstate.ActionKinds {
		if rec.ActionState(kind) != actionstate.StateCancelled {
			t.Fatalf("%s = %s", kind, rec.ActionState(kind))
		}
	}
	edits := h.gw.Edits()
	last := edits[len(edits)-1]
	if !last.Markup || last.Ref != host || len(last.Buttons) != 0 {
		t.Fatalf("buttons not removed: %+v", last)
	}
}

func TestActionButtonsHideUsedAndRedundant(t *testing.T) {
	rec := &actionstate.Record{
		Manifest: content.Manifest{{URL: "u", Kind: content.KindPhoto}},
		Actions:  map[actionstate.ActionKind]actionstate.ActionState{actionstate.ActionSummarize: actionstate.StateDone},
	}
	buttons := engine.ActionButtons(rec)
	if len(buttons) != 2 || len(buttons[0]) != 1 || buttons[0][0].Data != "act:resend_as_file" {
		t.Fatalf("unexpected buttons %+v", buttons)
	}
	rec.Flags.SentAsFile = true
	if engine.ActionButtons(rec) != nil {
		t.Fatalf("expected no buttons when nothing is left")
	}
}
