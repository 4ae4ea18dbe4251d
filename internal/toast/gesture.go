package toast

import "errtoast/internal/eventbus"

// HoverStart pauses id's auto-close timer while the pointer is over it.
func (m *Manager) HoverStart(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.visibleLocked(id)
	if it == nil || it.Hovered {
		return false
	}
	it.Hovered = true
	if it.HasTimer {
		m.stopTimerLocked(it)
		m.emitLocked(eventbus.ToastPaused, it.Item)
	}
	return true
}

// HoverEnd restarts the full auto-close interval. Elapsed time before the
// hover is not remembered.
func (m *Manager) HoverEnd(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.visibleLocked(id)
	if it == nil || !it.Hovered {
		return false
	}
	it.Hovered = false
	m.resumeLocked(it)
	return true
}

// DragStart begins a swipe gesture at pointer position (x, y). It is refused
// when swipe-to-dismiss is disabled.
func (m *Manager) DragStart(id int64, x, y float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.SwipeToDismiss {
		return false
	}
	it := m.visibleLocked(id)
	if it == nil || it.Dragging {
		return false
	}
	if it.snapTimer != nil {
		it.snapTimer.Stop()
		it.snapTimer = nil
	}
	it.snapVer++
	it.snapping = false

	it.Dragging = true
	it.DragOffset = 0
	it.dragStartX, it.dragStartY = x, y
	if it.HasTimer {
		m.stopTimerLocked(it)
		m.emitLocked(eventbus.ToastPaused, it.Item)
	}
	return true
}

// DragMove records the pointer and returns the signed outward offset. A
// positive value moves the item toward the edge the stack is anchored to.
func (m *Manager) DragMove(id int64, x, y float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.visibleLocked(id)
	if it == nil || !it.Dragging {
		return 0, false
	}
	it.DragOffset = m.outwardLocked(it, x, y)
	return it.DragOffset, true
}

// DragEnd finishes the gesture. Past the threshold the item closes the same
// way an explicit Close does; otherwise it snaps back and, once the snap-back
// transition is over, its timer restarts at full length.
func (m *Manager) DragEnd(id int64, x, y float64) (dismissed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.visibleLocked(id)
	if it == nil || !it.Dragging {
		return false
	}
	offset := m.outwardLocked(it, x, y)
	it.Dragging = false
	it.DragOffset = 0

	if offset >= m.cfg.SwipeThreshold {
		m.closeLocked(it, ReasonSwiped)
		return true
	}

	m.emitLocked(eventbus.ToastSnapBack, it.Item)
	if m.cfg.SnapBackDuration <= 0 {
		m.resumeLocked(it)
		return false
	}
	it.snapping = true
	it.snapVer++
	ver := it.snapVer
	it.snapTimer = m.clock.AfterFunc(m.cfg.SnapBackDuration, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if it.snapVer != ver || it.State != Visible {
			return
		}
		it.snapTimer = nil
		it.snapping = false
		m.resumeLocked(it)
	})
	return false
}

func (m *Manager) outwardLocked(it *item, x, y float64) float64 {
	vertical, sign := m.cfg.Position.outward()
	if vertical {
		return sign * (y - it.dragStartY)
	}
	return sign * (x - it.dragStartX)
}
