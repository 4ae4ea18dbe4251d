package toast

import (
	"sync"

	"errtoast/internal/capture"
	"errtoast/internal/clock"
	"errtoast/internal/eventbus"
	"errtoast/internal/storage"
	logx "errtoast/pkg/logx"
)

type item struct {
	Item

	// Auto-close timer. Callbacks compare timerVer and no-op when stale.
	timer    clock.Timer
	timerVer uint64

	exitTimer clock.Timer

	snapTimer clock.Timer
	snapVer   uint64
	snapping  bool

	dragStartX, dragStartY float64
}

// Manager owns the visible notifications of one page context. It is safe
// for concurrent use.
type Manager struct {
	clock  clock.Clock
	log    logx.Logger
	bus    eventbus.Bus
	store  storage.Store
	origin string

	mu     sync.Mutex
	cfg    Config
	items  []*item // display order, oldest first
	nextID int64

	// pinnedDirty is set when the pinned set changed since the last save.
	pinnedDirty bool

	// saveMu is held from snapshot to write so snapshots land in order.
	saveMu sync.Mutex
}

// New builds a Manager. store may be nil, in which case pinned items are not
// persisted.
func New(cfg Config, clk clock.Clock, st storage.Store, origin string, log logx.Logger, bus eventbus.Bus) *Manager {
	if clk == nil {
		clk = clock.NewReal()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		clock:  clk,
		log:    log,
		bus:    bus,
		store:  st,
		origin: origin,
		cfg:    normalize(cfg),
	}
}

// Apply swaps the configuration. A lower cap takes effect at the next Show;
// a new auto-close duration applies to timers started afterwards.
func (m *Manager) Apply(cfg Config) {
	cfg = normalize(cfg)
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.PersistPinned != m.cfg.PersistPinned {
		m.pinnedDirty = true
	}
	m.cfg = cfg
	if !cfg.SwipeToDismiss {
		for _, it := range m.items {
			if it.State == Visible && it.Dragging {
				it.Dragging = false
				it.DragOffset = 0
				m.resumeLocked(it)
			}
		}
	}
}

func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Show displays e. A visible item with the same signature absorbs it as
// another occurrence; otherwise a new item is created, first evicting the
// oldest unpinned item if the cap is reached. It returns the id of the item
// that now represents e and whether that item is new.
func (m *Manager) Show(e capture.Error) (id int64, created bool) {
	sig := capture.Signature(e)
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if it := m.findVisibleLocked(sig); it != nil {
		it.Count++
		it.LastOccurrenceAt = now
		m.emitLocked(eventbus.ToastUpdated, it.Item)
		return it.ID, false
	}

	for m.unpinnedVisibleLocked() >= m.cfg.MaxVisible {
		oldest := m.oldestUnpinnedLocked()
		if oldest == nil {
			break
		}
		m.closeLocked(oldest, ReasonEvicted)
	}

	m.nextID++
	it := &item{Item: Item{
		ID:               m.nextID,
		Signature:        sig,
		Error:            e,
		Count:            1,
		State:            Visible,
		CreatedAt:        now,
		LastOccurrenceAt: now,
	}}
	m.items = append(m.items, it)
	m.startTimerLocked(it)
	m.emitLocked(eventbus.ToastShown, it.Item)
	return it.ID, true
}

// Close starts the exit transition of id. Unknown ids and items that are
// already closing are ignored; the return value reports whether anything
// happened.
func (m *Manager) Close(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.visibleLocked(id)
	if it == nil {
		return false
	}
	m.closeLocked(it, ReasonClosed)
	return true
}

// CloseAll closes every visible item, pinned ones included.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range append([]*item(nil), m.items...) {
		if it.State == Visible {
			m.closeLocked(it, ReasonCloseAll)
			n++
		}
	}
	return n
}

// TogglePin flips the pinned flag of id. Pinning stops the auto-close timer;
// unpinning starts a fresh full-length one.
func (m *Manager) TogglePin(id int64) (pinned bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.visibleLocked(id)
	if it == nil {
		return false, false
	}
	it.Pinned = !it.Pinned
	m.pinnedDirty = true
	if it.Pinned {
		m.stopTimerLocked(it)
		m.emitLocked(eventbus.ToastPinned, it.Item)
	} else {
		m.resumeLocked(it)
		m.emitLocked(eventbus.ToastUnpinned, it.Item)
	}
	return it.Pinned, true
}

// Get returns a snapshot of id, including items that are closing.
func (m *Manager) Get(id int64) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ID == id {
			return it.Item, true
		}
	}
	return Item{}, false
}

// Visible returns the items in the Visible state, oldest first.
func (m *Manager) Visible() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		if it.State == Visible {
			out = append(out, it.Item)
		}
	}
	return out
}

// Items returns every item still on screen, closing ones included.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it.Item)
	}
	return out
}

// Count returns the number of visible items.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		if it.State == Visible {
			n++
		}
	}
	return n
}

// Shutdown cancels every timer and drops all items without publishing
// events. Call SavePinned first if pinned items should survive.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		m.cancelTimersLocked(it)
		it.State = Removed
	}
	m.items = nil
}

func (m *Manager) findVisibleLocked(sig string) *item {
	for _, it := range m.items {
		if it.State == Visible && it.Signature == sig {
			return it
		}
	}
	return nil
}

func (m *Manager) visibleLocked(id int64) *item {
	for _, it := range m.items {
		if it.ID == id && it.State == Visible {
			return it
		}
	}
	return nil
}

func (m *Manager) unpinnedVisibleLocked() int {
	n := 0
	for _, it := range m.items {
		if it.State == Visible && !it.Pinned {
			n++
		}
	}
	return n
}

func (m *Manager) oldestUnpinnedLocked() *item {
	for _, it := range m.items {
		if it.State == Visible && !it.Pinned {
			return it
		}
	}
	return nil
}

// closeLocked moves it from Visible to Closing and schedules removal.
func (m *Manager) closeLocked(it *item, reason CloseReason) {
	if it.State != Visible {
		return
	}
	m.cancelTimersLocked(it)
	it.State = Closing
	it.Hovered = false
	it.Dragging = false
	if it.Pinned {
		m.pinnedDirty = true
	}
	m.emitLocked(eventbus.ToastClosing, ClosingEvent{Item: it.Item, Reason: reason})

	if m.cfg.ExitDuration <= 0 {
		m.removeLocked(it)
		return
	}
	it.exitTimer = m.clock.AfterFunc(m.cfg.ExitDuration, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if it.State != Closing {
			return
		}
		m.removeLocked(it)
	})
}

func (m *Manager) removeLocked(it *item) {
	it.State = Removed
	it.exitTimer = nil
	for i, cur := range m.items {
		if cur == it {
			m.items = append(m.items[:i], m.items[i+1:]...)
			break
		}
	}
	m.emitLocked(eventbus.ToastRemoved, it.Item)
}

// startTimerLocked (re)starts the full auto-close interval when the item is
// eligible for one.
func (m *Manager) startTimerLocked(it *item) {
	m.stopTimerLocked(it)
	if it.State != Visible || it.Pinned || it.Hovered || it.Dragging || it.snapping || m.cfg.AutoClose <= 0 {
		return
	}
	ver := it.timerVer
	it.HasTimer = true
	it.timer = m.clock.AfterFunc(m.cfg.AutoClose, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Stopped, restarted, pinned or closed since scheduling.
		if it.timerVer != ver || it.State != Visible || it.Pinned {
			return
		}
		it.timer = nil
		it.HasTimer = false
		m.closeLocked(it, ReasonExpired)
	})
}

func (m *Manager) stopTimerLocked(it *item) {
	if it.timer != nil {
		it.timer.Stop()
		it.timer = nil
	}
	it.timerVer++
	it.HasTimer = false
}

// resumeLocked restarts the timer after a pause and reports it.
func (m *Manager) resumeLocked(it *item) {
	m.startTimerLocked(it)
	if it.HasTimer {
		m.emitLocked(eventbus.ToastResumed, it.Item)
	}
}

func (m *Manager) cancelTimersLocked(it *item) {
	m.stopTimerLocked(it)
	if it.snapTimer != nil {
		it.snapTimer.Stop()
		it.snapTimer = nil
	}
	it.snapVer++
	it.snapping = false
	if it.exitTimer != nil {
		it.exitTimer.Stop()
		it.exitTimer = nil
	}
}

func (m *Manager) emitLocked(typ string, data any) {
	eventbus.Emit(m.bus, typ, m.clock.Now(), data)
}
