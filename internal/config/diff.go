package config

import (
	"reflect"
	"strings"

	logx "errtoast/pkg/logx"
)

// SummarizeConfigChange returns the names of the sections that differ
// between oldCfg and newCfg plus log fields describing the new values.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, _ := Resolve(oldCfg)
	n, _ := Resolve(newCfg)

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		lc := newCfg.Logging.Logx()
		attrs = append(attrs,
			logx.String("logging.level", lc.Level),
			logx.Bool("logging.console", lc.Console),
			logx.Bool("logging.file_enabled", lc.File.Enabled),
		)
	}

	if o.PageURL != n.PageURL {
		changed = append(changed, "page")
		attrs = append(attrs, logx.String("page.url", n.PageURL))
	}

	if o.CaptureEnabled != n.CaptureEnabled ||
		!reflect.DeepEqual(o.Sites, n.Sites) ||
		!reflect.DeepEqual(o.Types, n.Types) {
		changed = append(changed, "capture")
		attrs = append(attrs,
			logx.Bool("capture.enabled", n.CaptureEnabled),
			logx.Int("capture.site_overrides", len(n.Sites)),
		)
	}

	if o.MaxVisible != n.MaxVisible ||
		o.AutoClose != n.AutoClose ||
		o.Position != n.Position ||
		o.SwipeToDismiss != n.SwipeToDismiss ||
		o.SwipeThreshold != n.SwipeThreshold ||
		o.ExitDuration != n.ExitDuration ||
		o.SnapBackDuration != n.SnapBackDuration ||
		o.PersistPinned != n.PersistPinned ||
		o.PinnedFlush != n.PinnedFlush {
		changed = append(changed, "toast")
		attrs = append(attrs,
			logx.Int("toast.max_visible", n.MaxVisible),
			logx.Duration("toast.auto_close", n.AutoClose),
			logx.String("toast.position", n.Position),
			logx.Bool("toast.persist_pinned", n.PersistPinned),
		)
	}

	if o.HistorySize != n.HistorySize {
		changed = append(changed, "history")
		attrs = append(attrs, logx.Int("history.max_size", n.HistorySize))
	}
	if o.SessionCapacity != n.SessionCapacity {
		changed = append(changed, "ignore")
		attrs = append(attrs, logx.Int("ignore.session_capacity", n.SessionCapacity))
	}
	if o.Shortcut != n.Shortcut || o.ResetOnClose != n.ResetOnClose {
		changed = append(changed, "drawer")
		attrs = append(attrs, logx.String("drawer.shortcut", n.Shortcut))
	}
	if o.NoticeDuration != n.NoticeDuration || o.NoticeRate != n.NoticeRate {
		changed = append(changed, "notices")
		attrs = append(attrs, logx.Duration("notices.duration", n.NoticeDuration))
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		driver := "memory"
		if newCfg.Storage != nil && strings.TrimSpace(newCfg.Storage.Driver) != "" {
			driver = strings.ToLower(strings.TrimSpace(newCfg.Storage.Driver))
		}
		attrs = append(attrs, logx.String("storage.driver", driver))
	}

	return changed, attrs
}

// Logx converts the logging section into the logger's config. Console
// defaults to true.
func (l LoggingConfig) Logx() logx.Config {
	console := true
	if l.Console != nil {
		console = *l.Console
	}
	level := strings.TrimSpace(l.Level)
	if level == "" {
		level = "info"
	}
	return logx.Config{
		Level:   level,
		Console: console,
		Format:  strings.TrimSpace(l.Format),
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    strings.TrimSpace(l.File.Path),
		},
	}
}
