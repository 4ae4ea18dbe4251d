package app

import (
	"strings"
	"time"

	"errtoast/internal/capture"
	"errtoast/internal/config"
	"errtoast/internal/drawer"
	"errtoast/internal/notice"
	"errtoast/internal/pipeline"
	"errtoast/internal/storage"
	"errtoast/internal/toast"
)

func gateConfig(s config.Settings) pipeline.GateConfig {
	g := pipeline.GateConfig{
		Enabled: s.CaptureEnabled,
		Sites:   make(map[string]bool, len(s.Sites)),
		Types:   make(map[capture.Type]bool, len(s.Types)),
	}
	for host, on := range s.Sites {
		g.Sites[host] = on
	}
	for name, on := range s.Types {
		g.Types[capture.ParseType(name)] = on
	}
	return g
}

func toastConfig(s config.Settings) toast.Config {
	pos, _ := toast.ParsePosition(s.Position)
	return toast.Config{
		MaxVisible:       s.MaxVisible,
		AutoClose:        s.AutoClose,
		Position:         pos,
		SwipeToDismiss:   s.SwipeToDismiss,
		SwipeThreshold:   s.SwipeThreshold,
		ExitDuration:     s.ExitDuration,
		SnapBackDuration: s.SnapBackDuration,
		PersistPinned:    s.PersistPinned,
	}
}

func noticeConfig(s config.Settings) notice.Config {
	return notice.Config{Duration: s.NoticeDuration, RatePerSec: s.NoticeRate}
}

func drawerConfig(s config.Settings) drawer.Config {
	return drawer.Config{Shortcut: s.Shortcut, ResetOnClose: s.ResetOnClose}
}

// mapStorageConfig translates the storage section. A nil section means the
// in-memory store.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		driver = "memory"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
}
