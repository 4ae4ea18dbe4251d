// Package toast owns the set of visible error notifications: it collapses
// duplicates into counters, caps the number of unpinned items, runs each
// item's auto-close timer and gesture handling, and persists pinned items
// per origin.
//
// The manager knows nothing about rendering. Every state change is published
// on the event bus; a view subscribes and draws.
package toast

import (
	"strings"
	"time"

	"errtoast/internal/capture"
)

const (
	DefaultMaxVisible       = 5
	DefaultAutoClose        = 5 * time.Second
	DefaultSwipeThreshold   = 80.0
	DefaultExitDuration     = 300 * time.Millisecond
	DefaultSnapBackDuration = 200 * time.Millisecond
)

// Position is the screen anchor of the notification stack.
type Position string

const (
	TopLeft      Position = "top-left"
	TopRight     Position = "top-right"
	TopCenter    Position = "top-center"
	BottomLeft   Position = "bottom-left"
	BottomRight  Position = "bottom-right"
	BottomCenter Position = "bottom-center"
)

// ParsePosition maps a config string to a Position.
func ParsePosition(s string) (Position, bool) {
	p := Position(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case TopLeft, TopRight, TopCenter, BottomLeft, BottomRight, BottomCenter:
		return p, true
	}
	return BottomRight, false
}

// outward returns the drag axis and the sign of the dismiss direction:
// toward the edge the stack is anchored to.
func (p Position) outward() (vertical bool, sign float64) {
	switch p {
	case TopLeft, BottomLeft:
		return false, -1
	case TopCenter:
		return true, -1
	case BottomCenter:
		return true, 1
	default: // right-anchored
		return false, 1
	}
}

type Config struct {
	MaxVisible int
	// AutoClose of 0 means items never close on their own.
	AutoClose        time.Duration
	Position         Position
	SwipeToDismiss   bool
	SwipeThreshold   float64 // pixels
	ExitDuration     time.Duration
	SnapBackDuration time.Duration
	PersistPinned    bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxVisible:       DefaultMaxVisible,
		AutoClose:        DefaultAutoClose,
		Position:         BottomRight,
		SwipeToDismiss:   true,
		SwipeThreshold:   DefaultSwipeThreshold,
		ExitDuration:     DefaultExitDuration,
		SnapBackDuration: DefaultSnapBackDuration,
		PersistPinned:    true,
	}
}

func normalize(cfg Config) Config {
	if cfg.MaxVisible <= 0 {
		cfg.MaxVisible = DefaultMaxVisible
	}
	if cfg.AutoClose < 0 {
		cfg.AutoClose = 0
	}
	if p, ok := ParsePosition(string(cfg.Position)); ok {
		cfg.Position = p
	} else {
		cfg.Position = BottomRight
	}
	if cfg.SwipeThreshold <= 0 {
		cfg.SwipeThreshold = DefaultSwipeThreshold
	}
	if cfg.ExitDuration < 0 {
		cfg.ExitDuration = 0
	}
	if cfg.SnapBackDuration < 0 {
		cfg.SnapBackDuration = 0
	}
	return cfg
}

// State is the lifecycle stage of an item.
type State int

const (
	Visible State = iota
	// Closing holds the item for the exit transition. Nothing but removal
	// happens after this point.
	Closing
	Removed
)

func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case Closing:
		return "closing"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Item is a snapshot of one notification.
type Item struct {
	ID               int64         `json:"id"`
	Signature        string        `json:"signature"`
	Error            capture.Error `json:"error"`
	Count            int           `json:"count"`
	Pinned           bool          `json:"pinned"`
	HasTimer         bool          `json:"has_timer"`
	Hovered          bool          `json:"hovered"`
	Dragging         bool          `json:"dragging"`
	DragOffset       float64       `json:"drag_offset"`
	State            State         `json:"state"`
	CreatedAt        time.Time     `json:"created_at"`
	LastOccurrenceAt time.Time     `json:"last_occurrence_at"`
}

// CloseReason says why an item left the Visible state.
type CloseReason string

const (
	ReasonClosed   CloseReason = "closed"
	ReasonExpired  CloseReason = "expired"
	ReasonEvicted  CloseReason = "evicted"
	ReasonSwiped   CloseReason = "swiped"
	ReasonCloseAll CloseReason = "close_all"
)

// ClosingEvent is the payload of eventbus.ToastClosing.
type ClosingEvent struct {
	Item   Item        `json:"item"`
	Reason CloseReason `json:"reason"`
}
