package app

import (
	"context"
	"strings"

	"errtoast/internal/config"
	logx "errtoast/pkg/logx"
)

// reloadLoop applies every published config. Each field takes effect on
// its own: gate switches on the next event, the toast cap on the next Show,
// history truncation immediately without touching visible toasts.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.apply(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) apply(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}

	s, issues := config.Resolve(newCfg)
	for _, issue := range issues {
		a.log.Warn("config value rejected; using default", logx.Err(issue))
	}

	if changed["logging"] {
		a.logs.Apply(newCfg.Logging.Logx())
	}
	if changed["page"] {
		a.log.Warn("page.url changed; restart required for changes to take effect")
	}
	if changed["storage"] {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if changed["capture"] {
		a.pipe.Apply(gateConfig(s))
	}
	if changed["toast"] {
		a.toasts.Apply(toastConfig(s))
		if err := a.flusher.Apply(s.PinnedFlush); err != nil {
			a.log.Warn("invalid toast.pinned_flush; keeping previous", logx.String("spec", s.PinnedFlush), logx.Err(err))
		}
	}
	if changed["history"] {
		if got := a.history.SetMaxSize(s.HistorySize); got != s.HistorySize {
			a.log.Warn("history.max_size out of range; clamped", logx.Int("requested", s.HistorySize), logx.Int("applied", got))
		}
	}
	if changed["ignore"] {
		a.ignore.SetSessionCapacity(s.SessionCapacity)
	}
	if changed["drawer"] {
		a.drawer.Apply(drawerConfig(s))
	}
	if changed["notices"] {
		a.notices.Apply(noticeConfig(s))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
