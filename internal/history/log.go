// Package history keeps the bounded, queryable log of every accepted error
// for one page session.
package history

import (
	"strings"
	"sync"

	"errtoast/internal/capture"
	"errtoast/internal/clock"
	"errtoast/internal/eventbus"
	"errtoast/internal/page"
	logx "errtoast/pkg/logx"
)

const (
	MinSize     = 5
	MaxSize     = 500
	DefaultSize = 100
)

// Entry is the stored form of a captured error. Entries are immutable once
// added. Count is always 1; collapsing happens in the toast layer.
type Entry struct {
	ID        int64        `json:"id"`
	Type      capture.Type `json:"type"`
	Message   string       `json:"message"`
	File      string       `json:"file,omitempty"`
	Line      int          `json:"line,omitempty"`
	Column    int          `json:"column,omitempty"`
	Stack     string       `json:"stack,omitempty"`
	Timestamp int64        `json:"timestamp"`
	URL       string       `json:"url"`
	Count     int          `json:"count"`
}

type Config struct {
	MaxSize int
	// Floor and Ceiling bound MaxSize; zero means MinSize and MaxSize.
	Floor   int
	Ceiling int
}

// TruncatedEvent is published when a capacity change drops entries.
type TruncatedEvent struct {
	Removed int `json:"removed"`
	MaxSize int `json:"max_size"`
}

// Log is a FIFO ring of accepted errors.
type Log struct {
	page  page.Context
	clock clock.Clock
	log   logx.Logger
	bus   eventbus.Bus

	floor, ceiling int

	mu     sync.RWMutex
	ring   *ring[Entry]
	nextID int64
}

func New(cfg Config, pg page.Context, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Log {
	if clk == nil {
		clk = clock.NewReal()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	l := &Log{page: pg, clock: clk, log: log, bus: bus, floor: cfg.Floor, ceiling: cfg.Ceiling}
	if l.floor <= 0 {
		l.floor = MinSize
	}
	if l.ceiling <= 0 {
		l.ceiling = MaxSize
	}
	if l.ceiling < l.floor {
		l.ceiling = l.floor
	}
	l.ring = newRing[Entry](l.normalize(cfg.MaxSize))
	return l
}

// ClampSize coerces n into [MinSize, MaxSize]. Non-positive values are
// invalid and map to DefaultSize; ok is false in that case.
func ClampSize(n int) (size int, ok bool) {
	return clampSize(n, MinSize, MaxSize)
}

func clampSize(n, floor, ceiling int) (int, bool) {
	switch {
	case n <= 0:
		return min(max(DefaultSize, floor), ceiling), false
	case n < floor:
		return floor, true
	case n > ceiling:
		return ceiling, true
	default:
		return n, true
	}
}

func (l *Log) normalize(n int) int {
	size, ok := clampSize(n, l.floor, l.ceiling)
	if !ok {
		l.log.Warn("invalid history size; using default", logx.Int("requested", n), logx.Int("size", size))
	} else if size != n {
		l.log.Debug("history size clamped", logx.Int("requested", n), logx.Int("size", size))
	}
	return size
}

// Add stores e, evicting the oldest entry when full.
func (l *Log) Add(e capture.Error, url string) Entry {
	l.mu.Lock()
	l.nextID++
	ent := Entry{
		ID:        l.nextID,
		Type:      e.Type,
		Message:   e.Message,
		File:      e.File,
		Line:      e.Line,
		Column:    e.Column,
		Stack:     e.Stack,
		Timestamp: e.Timestamp,
		URL:       url,
		Count:     1,
	}
	l.ring.push(ent)
	l.mu.Unlock()

	eventbus.Emit(l.bus, eventbus.HistoryAdded, l.clock.Now(), ent)
	return ent
}

// SetMaxSize applies a new capacity (clamped) and drops the oldest entries
// if the log is now over it. It returns the capacity actually applied.
func (l *Log) SetMaxSize(n int) int {
	size := l.normalize(n)
	l.mu.Lock()
	if size == l.ring.capacity {
		l.mu.Unlock()
		return size
	}
	removed := l.ring.resize(size)
	l.mu.Unlock()

	if removed > 0 {
		l.log.Info("history truncated", logx.Int("removed", removed), logx.Int("max_size", size))
		eventbus.Emit(l.bus, eventbus.HistoryTruncated, l.clock.Now(), TruncatedEvent{Removed: removed, MaxSize: size})
	}
	return size
}

// All returns every entry, oldest first.
func (l *Log) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.all()
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.len()
}

func (l *Log) Cap() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.capacity
}

// Clear drops every entry. Callers confirm with the user first.
func (l *Log) Clear() {
	l.mu.Lock()
	n := l.ring.len()
	l.ring.clear()
	l.mu.Unlock()
	eventbus.Emit(l.bus, eventbus.HistoryCleared, l.clock.Now(), n)
}

// Search returns entries whose message, stack, file or url contains query,
// case-insensitively. A blank query matches everything.
func (l *Log) Search(query string) []Entry {
	return l.Query(query, nil)
}

// FilterByTypes returns entries whose type is in types. An empty set is no
// filter.
func (l *Log) FilterByTypes(types []capture.Type) []Entry {
	return l.Query("", types)
}

// Query applies Search and FilterByTypes together, oldest first.
func (l *Log) Query(query string, types []capture.Type) []Entry {
	match := matcher(query, types)
	l.mu.RLock()
	all := l.ring.all()
	l.mu.RUnlock()

	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

func matcher(query string, types []capture.Type) func(Entry) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	var allowed map[capture.Type]struct{}
	if len(types) > 0 {
		allowed = make(map[capture.Type]struct{}, len(types))
		for _, t := range types {
			allowed[t] = struct{}{}
		}
	}
	return func(e Entry) bool {
		if allowed != nil {
			if _, ok := allowed[e.Type]; !ok {
				return false
			}
		}
		if q == "" {
			return true
		}
		return containsFold(e.Message, q) ||
			containsFold(e.Stack, q) ||
			containsFold(e.File, q) ||
			containsFold(e.URL, q)
	}
}

func containsFold(s, lowerQuery string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerQuery)
}
