package app

import (
	"context"
	"strings"
	"sync"
	"time"

	logx "errtoast/pkg/logx"

	"github.com/robfig/cron/v3"
)

// pinnedFlusher periodically writes the pinned snapshot when it changed
// since the last write. The schedule is a cron spec ("@every 30s",
// "*/15 * * * * *", ...); an empty spec disables it.
type pinnedFlusher struct {
	log    logx.Logger
	parser cron.Parser
	flush  func(ctx context.Context) (bool, error)

	mu   sync.Mutex
	spec string
	c    *cron.Cron
	ctx  context.Context
}

func newPinnedFlusher(flush func(ctx context.Context) (bool, error), log logx.Logger) *pinnedFlusher {
	return &pinnedFlusher{
		log:    log,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		flush:  flush,
	}
}

// validSpec reports whether spec parses. Empty is valid (disabled).
func (f *pinnedFlusher) validSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	_, err := f.parser.Parse(spec)
	return err
}

// Start runs the flusher with spec until Stop. ctx bounds each flush.
func (f *pinnedFlusher) Start(ctx context.Context, spec string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctx = ctx
	return f.restartLocked(spec)
}

// Apply switches to a new schedule. An unparsable spec keeps the previous
// one and returns the parse error.
func (f *pinnedFlusher) Apply(spec string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	spec = strings.TrimSpace(spec)
	if spec == f.spec {
		return nil
	}
	if err := f.validSpec(spec); err != nil {
		return err
	}
	if f.ctx == nil {
		f.spec = spec
		return nil
	}
	return f.restartLocked(spec)
}

func (f *pinnedFlusher) restartLocked(spec string) error {
	spec = strings.TrimSpace(spec)
	sched := cron.Schedule(nil)
	if spec != "" {
		s, err := f.parser.Parse(spec)
		if err != nil {
			return err
		}
		sched = s
	}
	if f.c != nil {
		<-f.c.Stop().Done()
		f.c = nil
	}
	f.spec = spec
	if sched == nil {
		f.log.Info("pinned flush disabled")
		return nil
	}

	ctx := f.ctx
	f.c = cron.New(cron.WithParser(f.parser))
	f.c.Schedule(sched, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		wrote, err := f.flush(fctx)
		if err != nil {
			f.log.Warn("pinned flush failed", logx.Err(err))
			return
		}
		if wrote {
			f.log.Debug("pinned snapshot flushed")
		}
	}))
	f.c.Start()
	f.log.Info("pinned flush scheduled", logx.String("spec", spec))
	return nil
}

// Stop halts the schedule and waits for a running flush up to ctx.
func (f *pinnedFlusher) Stop(ctx context.Context) {
	f.mu.Lock()
	c := f.c
	f.c = nil
	f.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
