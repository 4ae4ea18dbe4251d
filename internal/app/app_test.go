package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"errtoast/internal/capture"
	"errtoast/internal/config"
	"errtoast/internal/history"
	"errtoast/internal/pipeline"
	"errtoast/internal/storage"
	logx "errtoast/pkg/logx"
)

const baseConfig = `
logging:
  level: error
page:
  url: https://app.example.com/dashboard
toast:
  pinned_flush: ""
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "errtoast.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func startApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	a, err := NewApp(writeConfig(t, baseConfig), opts...)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})
	return a
}

func TestFeedIngestsCommandsAndExports(t *testing.T) {
	feed := strings.Join([]string{
		`{"type":"console-error","message":"X","file":"a.js","line":1}`,
		`{"type":"console-error","message":"X","file":"b.js","line":2}`,
		`not json`,
		`{"type":"uncaught","message":"boom"}`,
		``,
		`{"op":"export","format":"json","path":"-"}`,
	}, "\n")
	var out bytes.Buffer
	a := startApp(t, WithStore(storage.NewMemory()), WithFeed(strings.NewReader(feed)), WithStdout(&out))

	select {
	case <-a.FeedDone():
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not finish")
	}

	if n := a.History().Len(); n != 3 {
		t.Fatalf("history len = %d", n)
	}
	if n := a.Toasts().Count(); n != 2 {
		t.Fatalf("toast count = %d", n)
	}
	if got := a.Pipeline().Stats().Dropped[pipeline.DropMalformed]; got != 1 {
		t.Fatalf("malformed drops = %d", got)
	}

	var exp history.Export
	if err := json.Unmarshal(out.Bytes(), &exp); err != nil {
		t.Fatalf("export is not JSON: %v\n%s", err, out.String())
	}
	if exp.TotalErrors != 3 || exp.Hostname != "app.example.com" || exp.SessionID != a.Page().SessionID {
		t.Fatalf("export = %+v", exp)
	}
}

func TestIgnoreCommandsFromToast(t *testing.T) {
	a := startApp(t, WithStore(storage.NewMemory()))
	res := a.Ingest(capture.Error{Type: capture.TypeConsoleError, Message: "X"})
	if !res.Accepted() {
		t.Fatalf("ingest = %+v", res)
	}
	if err := a.exec(command{Op: "ignore_session", ID: res.ToastID}); err != nil {
		t.Fatal(err)
	}
	if a.Toasts().Count() != 0 {
		t.Fatal("ignoring from a notification should close it")
	}
	if r := a.Ingest(capture.Error{Type: capture.TypeConsoleError, Message: "X"}); r.Reason != pipeline.DropIgnored {
		t.Fatalf("reason = %q", r.Reason)
	}
	if err := a.exec(command{Op: "ignore_session"}); err == nil {
		t.Fatal("missing signature and id should fail")
	}
	if err := a.exec(command{Op: "explode"}); err == nil {
		t.Fatal("unknown op should fail")
	}
}

type failingStore struct{ storage.Store }

func (failingStore) SaveIgnored(context.Context, []string) error { return errors.New("quota exceeded") }

func TestIgnoreForeverFailurePostsNotice(t *testing.T) {
	a := startApp(t, WithStore(failingStore{storage.NewMemory()}))
	done := make(chan error, 1)
	if err := a.IgnoreForever("console-error::X", 0, func(err error) { done <- err }); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected write failure")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no completion")
	}
	if a.Ignore().IsIgnored("console-error::X") {
		t.Fatal("failed ignore must be rolled back")
	}
	if n := len(a.Notices().Active()); n != 1 {
		t.Fatalf("notices = %d", n)
	}
	if a.Toasts().Count() != 0 {
		t.Fatal("notices must not become toasts")
	}
}

// slowStore delays SaveIgnored and gives up when its context is canceled.
type slowStore struct{ storage.Store }

func (s slowStore) SaveIgnored(ctx context.Context, sigs []string) error {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Store.SaveIgnored(ctx, sigs)
}

func TestStopDrainsInflightIgnoreWrite(t *testing.T) {
	mem := storage.NewMemory()
	a, err := NewApp(writeConfig(t, baseConfig), WithStore(slowStore{mem}))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	if err := a.IgnoreForever("console-error::late", 0, func(err error) { done <- err }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Stop(ctx, StopAppStop)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("write canceled by shutdown: %v", err)
		}
	default:
		t.Fatal("Stop returned before the write finished")
	}
	got, _ := mem.LoadIgnored(context.Background())
	if len(got) != 1 || got[0] != "console-error::late" {
		t.Fatalf("stored list = %v", got)
	}
}

func TestApplyReloadedConfig(t *testing.T) {
	a := startApp(t, WithStore(storage.NewMemory()))
	for i := 0; i < 8; i++ {
		a.Ingest(capture.Error{Type: capture.TypeUncaught, Message: "e" + string(rune('a'+i))})
	}
	visible := a.Toasts().Count()

	off := false
	next := &config.Config{
		Page:    config.PageConfig{URL: "https://app.example.com/dashboard"},
		Capture: config.CaptureConfig{Sites: map[string]bool{"app.example.com": false}},
		Toast:   config.ToastConfig{MaxVisible: 2, SwipeToDismiss: &off},
		History: config.HistoryConfig{MaxSize: 5},
		Drawer:  config.DrawerConfig{Shortcut: "Alt+H"},
	}
	a.apply(a.Config().Get(), next)

	if a.History().Len() != 5 || a.History().Cap() != 5 {
		t.Fatalf("history len=%d cap=%d", a.History().Len(), a.History().Cap())
	}
	if a.Toasts().Count() != visible {
		t.Fatal("history truncation must not touch visible toasts")
	}
	if cfg := a.Toasts().Config(); cfg.MaxVisible != 2 || cfg.SwipeToDismiss {
		t.Fatalf("toast config = %+v", cfg)
	}
	if got := a.Drawer().Shortcut().String(); got != "Alt+H" {
		t.Fatalf("shortcut = %s", got)
	}
	if r := a.Ingest(capture.Error{Type: capture.TypeUncaught, Message: "late"}); r.Reason != pipeline.DropSite {
		t.Fatalf("reason = %q", r.Reason)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: redis\n")
	if _, err := NewApp(path); err == nil {
		t.Fatal("expected error")
	}
	path = writeConfig(t, "toast:\n  max_visibel: 3\n")
	if _, err := NewApp(path); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestExportCSVToFile(t *testing.T) {
	a := startApp(t, WithStore(storage.NewMemory()))
	a.Ingest(capture.Error{Type: capture.TypeUncaught, Message: `say "hi", twice`})
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := a.Export("csv", path); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"say ""hi"", twice"`) {
		t.Fatalf("csv = %s", b)
	}
	if err := a.Export("xml", "-"); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestPinnedFlusher(t *testing.T) {
	var calls atomic.Int32
	f := newPinnedFlusher(func(context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	}, logx.Nop())

	if err := f.validSpec("every now and then"); err == nil {
		t.Fatal("bad spec accepted")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.Start(ctx, "@every 1s"); err != nil {
		t.Fatal(err)
	}
	if err := f.Apply("nonsense"); err == nil {
		t.Fatal("bad spec applied")
	}

	deadline := time.Now().Add(4 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatal("flush never ran")
	}

	if err := f.Apply(""); err != nil {
		t.Fatal(err)
	}
	n := calls.Load()
	time.Sleep(1500 * time.Millisecond)
	if calls.Load() != n {
		t.Fatal("disabled flusher still running")
	}
	f.Stop(context.Background())
}

func TestStopReasonForSignal(t *testing.T) {
	cases := map[os.Signal]StopReason{
		os.Interrupt:    StopSIGINT,
		syscall.SIGTERM: StopSIGTERM,
		syscall.SIGHUP:  StopUnknown,
	}
	for sig, want := range cases {
		if got := StopReasonForSignal(sig); got != want {
			t.Fatalf("%v: got %q, want %q", sig, got, want)
		}
	}
}
