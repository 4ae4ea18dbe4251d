// Package drawer is the read-only projection of the history log shown in the
// slide-out panel: a search box, type filter chips and newest-first rows.
package drawer

import (
	"sync"
	"time"

	"errtoast/internal/capture"
	"errtoast/internal/clock"
	"errtoast/internal/history"
	logx "errtoast/pkg/logx"

	"github.com/dustin/go-humanize"
)

// Source is what the drawer reads from.
type Source interface {
	Query(query string, types []capture.Type) []history.Entry
	All() []history.Entry
}

// Row is one rendered history line.
type Row struct {
	history.Entry
	// Age is the relative time since capture, e.g. "3 seconds ago".
	Age string `json:"age"`
}

type Config struct {
	Shortcut string
	// ResetOnClose clears the search and filters whenever the drawer closes.
	ResetOnClose bool
}

// View holds drawer-local state. It never writes to the source.
type View struct {
	src   Source
	clock clock.Clock
	log   logx.Logger

	mu           sync.Mutex
	open         bool
	query        string
	active       map[capture.Type]struct{}
	shortcut     Shortcut
	resetOnClose bool
}

func New(cfg Config, src Source, clk clock.Clock, log logx.Logger) *View {
	if clk == nil {
		clk = clock.NewReal()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	v := &View{src: src, clock: clk, log: log, active: map[capture.Type]struct{}{}}
	v.Apply(cfg)
	return v
}

// Apply updates the shortcut and reset policy. An unparsable shortcut keeps
// the current one (the default on first use).
func (v *View) Apply(cfg Config) {
	raw := cfg.Shortcut
	if raw == "" {
		raw = DefaultShortcut
	}
	sc, err := ParseShortcut(raw)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.resetOnClose = cfg.ResetOnClose
	if err != nil {
		v.log.Warn("invalid drawer shortcut; keeping previous", logx.String("shortcut", raw), logx.Err(err))
		if v.shortcut.Key == "" {
			v.shortcut, _ = ParseShortcut(DefaultShortcut)
		}
		return
	}
	v.shortcut = sc
}

func (v *View) Shortcut() Shortcut {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shortcut
}

// HandleKey toggles the drawer when k matches the shortcut.
func (v *View) HandleKey(k KeyEvent) bool {
	v.mu.Lock()
	match := v.shortcut.Matches(k)
	v.mu.Unlock()
	if match {
		v.Toggle()
	}
	return match
}

func (v *View) Open() {
	v.mu.Lock()
	v.open = true
	v.mu.Unlock()
}

func (v *View) Close() {
	v.mu.Lock()
	v.open = false
	if v.resetOnClose {
		v.query = ""
		v.active = map[capture.Type]struct{}{}
	}
	v.mu.Unlock()
}

func (v *View) Toggle() bool {
	v.mu.Lock()
	open := !v.open
	v.mu.Unlock()
	if open {
		v.Open()
	} else {
		v.Close()
	}
	return open
}

func (v *View) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

func (v *View) SetQuery(q string) {
	v.mu.Lock()
	v.query = q
	v.mu.Unlock()
}

func (v *View) Query() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// ToggleType flips t in the active filter set and reports whether it is now
// active.
func (v *View) ToggleType(t capture.Type) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.active[t]; ok {
		delete(v.active, t)
		return false
	}
	v.active[t] = struct{}{}
	return true
}

// ActiveTypes returns the active filters in display order.
func (v *View) ActiveTypes() []capture.Type {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activeLocked()
}

func (v *View) activeLocked() []capture.Type {
	var out []capture.Type
	for _, t := range append(append([]capture.Type(nil), capture.KnownTypes...), capture.TypeUnknown) {
		if _, ok := v.active[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (v *View) ClearFilters() {
	v.mu.Lock()
	v.query = ""
	v.active = map[capture.Type]struct{}{}
	v.mu.Unlock()
}

// Rows recomputes search intersected with the type filter, newest first.
func (v *View) Rows() []Row {
	v.mu.Lock()
	q := v.query
	types := v.activeLocked()
	v.mu.Unlock()

	entries := v.src.Query(q, types)
	now := v.clock.Now()
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[len(entries)-1-i] = Row{Entry: e, Age: relative(time.UnixMilli(e.Timestamp), now)}
	}
	return rows
}

// Counts returns the number of history entries per type, for filter chips.
func (v *View) Counts() map[capture.Type]int {
	out := map[capture.Type]int{}
	for _, e := range v.src.All() {
		out[e.Type]++
	}
	return out
}

func relative(then, now time.Time) string {
	if now.Sub(then) < time.Second {
		return "now"
	}
	return humanize.RelTime(then, now, "ago", "from now")
}
