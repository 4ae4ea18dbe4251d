// Package app wires one page context: configuration, storage, the ignore
// list, history, toasts, notices, the ingestion pipeline and the drawer,
// plus the background loops that keep them fed and in sync.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"errtoast/internal/capture"
	"errtoast/internal/clock"
	"errtoast/internal/config"
	"errtoast/internal/drawer"
	"errtoast/internal/eventbus"
	"errtoast/internal/history"
	"errtoast/internal/ignore"
	"errtoast/internal/notice"
	"errtoast/internal/page"
	"errtoast/internal/pipeline"
	"errtoast/internal/runtime/supervisor"
	"errtoast/internal/storage"
	"errtoast/internal/toast"
	logx "errtoast/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	clock clock.Clock
	bus   eventbus.Bus
	store storage.Store
	page  page.Context

	ignore  *ignore.Store
	history *history.Log
	toasts  *toast.Manager
	notices *notice.Center
	pipe    *pipeline.Pipeline
	drawer  *drawer.View
	flusher *pinnedFlusher

	feed     io.Reader
	feedDone chan struct{}
	stdout   io.Writer

	// Background writes (ignore list, pinned snapshot) outlive the
	// supervisor context so Stop can drain them.
	writeCtx    context.Context
	writeCancel context.CancelFunc
}

type Option func(*App)

// WithFeed makes Start read JSON lines from r.
func WithFeed(r io.Reader) Option { return func(a *App) { a.feed = r } }

// WithClock replaces the wall clock. Tests use clock.Fake.
func WithClock(c clock.Clock) Option { return func(a *App) { a.clock = c } }

// WithStdout sets where an export to "-" is written.
func WithStdout(w io.Writer) Option { return func(a *App) { a.stdout = w } }

// WithStore uses st instead of opening the configured store. The app does
// not close a store it was given.
func WithStore(st storage.Store) Option { return func(a *App) { a.store = st } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	a := &App{feedDone: make(chan struct{}), stdout: os.Stdout}
	a.writeCtx, a.writeCancel = context.WithCancel(context.Background())
	for _, o := range opts {
		o(a)
	}
	if a.clock == nil {
		a.clock = clock.NewReal()
	}

	a.cfgm = config.NewManager(cfgPath)
	cfg, err := a.cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a.logs, a.log = logx.New(cfg.Logging.Logx())
	log := a.log
	a.log = a.log.With(logx.String("comp", "app"))

	s, issues := config.Resolve(cfg)
	for _, issue := range issues {
		a.log.Warn("config value rejected; using default", logx.Err(issue))
	}

	a.page, err = page.New(s.PageURL)
	if err != nil {
		return nil, err
	}

	if a.store == nil {
		sc, err := mapStorageConfig(cfg)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.store = &ownedStore{Store: st}
		a.log.Info("storage opened", logx.String("driver", sc.Driver))
	}

	a.bus = eventbus.New()
	a.ignore = ignore.New(ignore.Config{SessionCapacity: s.SessionCapacity}, a.store, log.With(logx.String("comp", "ignore")), a.bus)
	a.history = history.New(history.Config{MaxSize: s.HistorySize}, a.page, a.clock, log.With(logx.String("comp", "history")), a.bus)
	a.toasts = toast.New(toastConfig(s), a.clock, a.store, a.page.Origin, log.With(logx.String("comp", "toast")), a.bus)
	a.notices = notice.New(noticeConfig(s), a.clock, log.With(logx.String("comp", "notice")), a.bus)
	a.pipe = pipeline.New(gateConfig(s), a.page, a.ignore, a.history, a.toasts, a.clock, log.With(logx.String("comp", "pipeline")), a.bus)
	a.drawer = drawer.New(drawerConfig(s), a.history, a.clock, log.With(logx.String("comp", "drawer")))
	a.flusher = newPinnedFlusher(a.toasts.FlushPinned, log.With(logx.String("comp", "flush")))
	if err := a.flusher.validSpec(s.PinnedFlush); err != nil {
		a.log.Warn("invalid toast.pinned_flush; using default", logx.String("spec", s.PinnedFlush), logx.Err(err))
		s.PinnedFlush = config.DefaultPinnedFlush
	}
	a.flusher.spec = s.PinnedFlush

	a.log.Info("page context created",
		logx.String("session", a.page.SessionID),
		logx.String("host", a.page.Host),
	)
	return a, nil
}

// ownedStore marks a store the app opened itself and must close.
type ownedStore struct{ storage.Store }

func (a *App) Bus() eventbus.Bus            { return a.bus }
func (a *App) Page() page.Context           { return a.page }
func (a *App) Ignore() *ignore.Store        { return a.ignore }
func (a *App) History() *history.Log        { return a.history }
func (a *App) Toasts() *toast.Manager       { return a.toasts }
func (a *App) Notices() *notice.Center      { return a.notices }
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }
func (a *App) Drawer() *drawer.View         { return a.drawer }
func (a *App) Config() *config.Manager      { return a.cfgm }

// Done is closed when the supervisor context is canceled (fatal error or
// Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// FeedDone is closed once the feed reached EOF or failed. It never closes
// when the app has no feed.
func (a *App) FeedDone() <-chan struct{} { return a.feedDone }

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start loads persisted state and launches the background loops.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	lctx, cancel := context.WithTimeout(run, 5*time.Second)
	if err := a.ignore.Reload(lctx); err != nil {
		a.log.Warn("permanent ignore list unavailable; starting empty", logx.Err(err))
		a.notices.Post(notice.LevelError, "Could not load the permanent ignore list")
	}
	if n, err := a.toasts.RestorePinned(lctx); err != nil {
		a.log.Warn("pinned restore failed", logx.Err(err))
	} else if n > 0 {
		a.log.Info("pinned notifications restored", logx.Int("count", n))
	}
	cancel()

	a.sup.GoRestart("ignore.watch", a.ignore.Watch)

	if err := a.flusher.Start(run, a.flusher.spec); err != nil {
		a.log.Warn("pinned flush not started", logx.Err(err))
	}

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if a.feed != nil {
		a.sup.Go("feed", func(c context.Context) error {
			defer close(a.feedDone)
			return a.runFeed(c, a.feed)
		})
	}

	a.log.Info("app started")
	return nil
}

// Ingest runs one captured error through the pipeline.
func (a *App) Ingest(e capture.Error) pipeline.Result { return a.pipe.Ingest(e) }

// IngestRaw decodes and ingests one JSON record.
func (a *App) IngestRaw(b []byte) pipeline.Result { return a.pipe.IngestRaw(b) }

// resolveSignature returns sig, or the signature of toast id when sig is
// empty.
func (a *App) resolveSignature(sig string, id int64) (string, error) {
	if sig = strings.TrimSpace(sig); sig != "" {
		return sig, nil
	}
	if it, ok := a.toasts.Get(id); ok {
		return it.Signature, nil
	}
	return "", fmt.Errorf("no signature and no notification %d", id)
}

// IgnoreForSession suppresses the error for this page load and closes its
// notification when id names one.
func (a *App) IgnoreForSession(sig string, id int64) error {
	sig, err := a.resolveSignature(sig, id)
	if err != nil {
		return err
	}
	a.ignore.IgnoreForSession(sig)
	if id != 0 {
		a.toasts.Close(id)
	}
	return nil
}

// IgnoreForever suppresses the error permanently. The notification closes
// right away; if the write fails the ignore is rolled back, a notice is
// posted and done receives the error.
func (a *App) IgnoreForever(sig string, id int64, done func(error)) error {
	sig, err := a.resolveSignature(sig, id)
	if err != nil {
		return err
	}
	a.ignore.IgnoreForever(a.opContext(), sig, func(err error) {
		if err != nil {
			a.notices.Post(notice.LevelError, "Could not save the ignore list; the error will show again")
		}
		if done != nil {
			done(err)
		}
	})
	if id != 0 {
		a.toasts.Close(id)
	}
	return nil
}

// Unignore removes sig from the permanent list. Failures post a notice.
func (a *App) Unignore(sig string, done func(error)) {
	a.ignore.Unignore(a.opContext(), sig, func(err error) {
		if err != nil {
			a.notices.Post(notice.LevelError, "Could not save the ignore list")
		}
		if done != nil {
			done(err)
		}
	})
}

// TogglePin pins or unpins a notification and writes the snapshot in the
// background.
func (a *App) TogglePin(id int64) (bool, bool) {
	pinned, ok := a.toasts.TogglePin(id)
	if !ok {
		return false, false
	}
	ctx := a.opContext()
	go func() {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.toasts.SavePinned(sctx); err != nil {
			a.log.Warn("pinned save failed", logx.Err(err))
			a.notices.Post(notice.LevelError, "Could not save pinned notifications")
		}
	}()
	return pinned, true
}

// SetHistorySize applies a new history capacity and returns the clamped
// value.
func (a *App) SetHistorySize(n int) int { return a.history.SetMaxSize(n) }

// Export writes the history in format ("json" or "csv") to path; "-" is
// stdout.
func (a *App) Export(format, path string) error {
	var w io.Writer = a.stdout
	var f *os.File
	if path != "" && path != "-" {
		var err error
		f, err = os.Create(path)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		w = f
	}
	var err error
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		err = a.history.ExportJSON(w)
	case "csv":
		err = a.history.ExportCSV(w)
	default:
		err = fmt.Errorf("export: unknown format %q", format)
	}
	if f != nil {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (a *App) opContext() context.Context { return a.writeCtx }

// Stop unwinds the app. Each step is bounded so one stuck component cannot
// stall shutdown. Writes already started are drained before they are
// canceled.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.writeCancel()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Loops (the feed included) stop first so no new write starts while
	// the in-flight ones drain.
	a.sup.Cancel()
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
	a.step(ctx, "flush", time.Second, func(c context.Context) error { a.flusher.Stop(c); return nil })
	a.step(ctx, "ignore.writes", 2*time.Second, a.ignore.Wait)
	a.step(ctx, "pinned", 2*time.Second, a.toasts.SavePinned)
	a.writeCancel()

	a.step(ctx, "toasts", time.Second, func(context.Context) error { a.toasts.Shutdown(); return nil })
	a.step(ctx, "notices", time.Second, func(context.Context) error { a.notices.Shutdown(); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if st, ok := a.store.(*ownedStore); ok {
			return st.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return a.sup.Err()
}

func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
