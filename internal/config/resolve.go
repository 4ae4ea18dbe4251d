package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied by Resolve.
const (
	DefaultMaxVisible       = 5
	DefaultAutoClose        = 5 * time.Second
	DefaultPosition         = "bottom-right"
	DefaultSwipeThreshold   = 80.0
	DefaultExitDuration     = 300 * time.Millisecond
	DefaultSnapBackDuration = 200 * time.Millisecond
	DefaultPinnedFlush      = "@every 30s"
	DefaultHistorySize      = 100
	DefaultSessionCapacity  = 200
	DefaultShortcut         = "Ctrl+Shift+E"
	DefaultNoticeDuration   = 4 * time.Second
	DefaultNoticeRate       = 1
)

var positions = []string{"top-left", "top-right", "top-center", "bottom-left", "bottom-right", "bottom-center"}

// DefaultTypes are the category switches used for categories the file does
// not mention.
var DefaultTypes = map[string]bool{
	"console-error":       true,
	"uncaught":            true,
	"unhandled-rejection": true,
	"resource":            false,
	"network":             false,
}

// Settings is a fully resolved configuration with every default applied.
type Settings struct {
	PageURL string

	CaptureEnabled bool
	Sites          map[string]bool
	Types          map[string]bool

	MaxVisible       int
	AutoClose        time.Duration
	Position         string
	SwipeToDismiss   bool
	SwipeThreshold   float64
	ExitDuration     time.Duration
	SnapBackDuration time.Duration
	PersistPinned    bool
	PinnedFlush      string

	HistorySize     int
	SessionCapacity int

	Shortcut     string
	ResetOnClose bool

	NoticeDuration time.Duration
	NoticeRate     int
}

// Resolve applies defaults to cfg. Invalid fields fall back to their
// default and are reported in issues; Resolve never fails.
func Resolve(cfg *Config) (Settings, []error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var issues []error
	bad := func(field string, format string, args ...any) {
		issues = append(issues, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}

	s := Settings{
		PageURL:        strings.TrimSpace(cfg.Page.URL),
		CaptureEnabled: boolOr(cfg.Capture.Enabled, true),
		Sites:          map[string]bool{},
		Types:          map[string]bool{},
		Position:       DefaultPosition,
		SwipeToDismiss: boolOr(cfg.Toast.SwipeToDismiss, true),
		PersistPinned:  boolOr(cfg.Toast.PersistPinned, true),
		PinnedFlush:    DefaultPinnedFlush,
		Shortcut:       DefaultShortcut,
		ResetOnClose:   cfg.Drawer.ResetOnClose,
	}

	for host, on := range cfg.Capture.Sites {
		h := strings.ToLower(strings.TrimSpace(host))
		if h == "" {
			bad("capture.sites", "empty hostname")
			continue
		}
		s.Sites[h] = on
	}
	for k, v := range DefaultTypes {
		s.Types[k] = v
	}
	for k, v := range cfg.Capture.Types {
		s.Types[strings.ToLower(strings.TrimSpace(k))] = v
	}

	s.MaxVisible = cfg.Toast.MaxVisible
	if s.MaxVisible < 0 {
		bad("toast.max_visible", "must be > 0, got %d", s.MaxVisible)
	}
	if s.MaxVisible <= 0 {
		s.MaxVisible = DefaultMaxVisible
	}

	var err error
	if s.AutoClose, err = durationOr(cfg.Toast.AutoClose, DefaultAutoClose); err != nil {
		bad("toast.auto_close", "%v", err)
	}
	if p := strings.ToLower(strings.TrimSpace(cfg.Toast.Position)); p != "" {
		if contains(positions, p) {
			s.Position = p
		} else {
			bad("toast.position", "unknown position %q", cfg.Toast.Position)
		}
	}
	s.SwipeThreshold = cfg.Toast.SwipeThreshold
	if s.SwipeThreshold < 0 {
		bad("toast.swipe_threshold", "must be > 0")
	}
	if s.SwipeThreshold <= 0 {
		s.SwipeThreshold = DefaultSwipeThreshold
	}
	if s.ExitDuration, err = durationOr(cfg.Toast.ExitDuration, DefaultExitDuration); err != nil {
		bad("toast.exit_duration", "%v", err)
	}
	if s.SnapBackDuration, err = durationOr(cfg.Toast.SnapBackDuration, DefaultSnapBackDuration); err != nil {
		bad("toast.snap_back_duration", "%v", err)
	}
	if cfg.Toast.PinnedFlush != nil {
		s.PinnedFlush = strings.TrimSpace(*cfg.Toast.PinnedFlush)
	}

	s.HistorySize = cfg.History.MaxSize
	if s.HistorySize < 0 {
		bad("history.max_size", "must be > 0, got %d", s.HistorySize)
	}
	if s.HistorySize <= 0 {
		s.HistorySize = DefaultHistorySize
	}

	s.SessionCapacity = cfg.Ignore.SessionCapacity
	if s.SessionCapacity < 0 {
		bad("ignore.session_capacity", "must be > 0, got %d", s.SessionCapacity)
	}
	if s.SessionCapacity <= 0 {
		s.SessionCapacity = DefaultSessionCapacity
	}

	if sc := strings.TrimSpace(cfg.Drawer.Shortcut); sc != "" {
		s.Shortcut = sc
	}

	if s.NoticeDuration, err = durationOr(cfg.Notices.Duration, DefaultNoticeDuration); err != nil {
		bad("notices.duration", "%v", err)
	}
	if s.NoticeDuration == 0 {
		s.NoticeDuration = DefaultNoticeDuration
	}
	s.NoticeRate = cfg.Notices.RatePerSec
	if s.NoticeRate <= 0 {
		s.NoticeRate = DefaultNoticeRate
	}

	return s, issues
}

// durationOr parses raw. An empty string yields def; "0s" is kept as zero.
// On error def is returned along with the error.
func durationOr(raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := ParseDurationField("", raw)
	if err != nil {
		return def, err
	}
	return d, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
