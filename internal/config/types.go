package config

// Config is the on-disk configuration. Every section and field is optional;
// Resolve fills in defaults.
type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Page    PageConfig     `json:"page"`
	Capture CaptureConfig  `json:"capture"`
	Toast   ToastConfig    `json:"toast"`
	History HistoryConfig  `json:"history"`
	Ignore  IgnoreConfig   `json:"ignore"`
	Drawer  DrawerConfig   `json:"drawer"`
	Notices NoticesConfig  `json:"notices"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	// Console defaults to true when omitted.
	Console *bool       `json:"console,omitempty"`
	Format  string      `json:"format,omitempty"` // "console" or "json"
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PageConfig identifies the page this engine instance is attached to.
type PageConfig struct {
	URL string `json:"url"`
}

// CaptureConfig holds the ingestion switches.
//
// Example:
//
//	"capture": {
//	  "enabled": true,
//	  "sites": { "ads.example.net": false },
//	  "types": { "network": true }
//	}
type CaptureConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`
	// Sites maps hostname to an explicit override of Enabled.
	Sites map[string]bool `json:"sites,omitempty"`
	// Types maps category name to its switch. Omitted categories keep their
	// defaults.
	Types map[string]bool `json:"types,omitempty"`
}

// ToastConfig controls visible notifications.
//
// Durations are Go duration strings. AutoClose "0s" means never; an omitted
// value means the default.
type ToastConfig struct {
	MaxVisible       int     `json:"max_visible,omitempty"`
	AutoClose        string  `json:"auto_close,omitempty"`
	Position         string  `json:"position,omitempty"`
	SwipeToDismiss   *bool   `json:"swipe_to_dismiss,omitempty"`
	SwipeThreshold   float64 `json:"swipe_threshold,omitempty"`
	ExitDuration     string  `json:"exit_duration,omitempty"`
	SnapBackDuration string  `json:"snap_back_duration,omitempty"`
	PersistPinned    *bool   `json:"persist_pinned,omitempty"`
	// PinnedFlush is a cron spec for periodic pinned-snapshot saves. An
	// explicit empty string disables the periodic flush.
	PinnedFlush *string `json:"pinned_flush,omitempty"`
}

type HistoryConfig struct {
	MaxSize int `json:"max_size,omitempty"`
}

type IgnoreConfig struct {
	SessionCapacity int `json:"session_capacity,omitempty"`
}

type DrawerConfig struct {
	Shortcut     string `json:"shortcut,omitempty"`
	ResetOnClose bool   `json:"reset_on_close,omitempty"`
}

type NoticesConfig struct {
	Duration   string `json:"duration,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls persistence of the permanent ignore list and
// pinned snapshots. Omitted means in-memory.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/errtoast" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
