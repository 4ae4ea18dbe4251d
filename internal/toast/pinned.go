package toast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"errtoast/internal/capture"
	"errtoast/internal/eventbus"
	logx "errtoast/pkg/logx"
)

// pinnedRecord is the persisted form of one pinned item.
type pinnedRecord struct {
	Signature        string        `json:"signature"`
	Error            capture.Error `json:"error"`
	Count            int           `json:"count"`
	CreatedAt        time.Time     `json:"created_at"`
	LastOccurrenceAt time.Time     `json:"last_occurrence_at"`
}

// SavePinned writes every visible pinned item to the per-origin snapshot.
// With persistence disabled, or nothing pinned, the stored snapshot is
// removed.
func (m *Manager) SavePinned(ctx context.Context) error {
	if m.store == nil || m.origin == "" {
		return nil
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	m.mu.Lock()
	persist := m.cfg.PersistPinned
	var recs []pinnedRecord
	if persist {
		for _, it := range m.items {
			if it.State != Visible || !it.Pinned {
				continue
			}
			recs = append(recs, pinnedRecord{
				Signature:        it.Signature,
				Error:            it.Error,
				Count:            it.Count,
				CreatedAt:        it.CreatedAt,
				LastOccurrenceAt: it.LastOccurrenceAt,
			})
		}
	}
	m.pinnedDirty = false
	m.mu.Unlock()

	var blob []byte
	if len(recs) > 0 {
		b, err := json.Marshal(recs)
		if err != nil {
			m.markPinnedDirty()
			return fmt.Errorf("encode pinned snapshot: %w", err)
		}
		blob = b
	}
	if err := m.store.SavePinned(ctx, m.origin, blob); err != nil {
		m.markPinnedDirty()
		return fmt.Errorf("save pinned snapshot: %w", err)
	}
	m.log.Debug("pinned snapshot saved", logx.Int("items", len(recs)), logx.String("origin", m.origin))
	return nil
}

// FlushPinned saves only if the pinned set changed since the last save.
func (m *Manager) FlushPinned(ctx context.Context) (bool, error) {
	m.mu.Lock()
	dirty := m.pinnedDirty
	m.mu.Unlock()
	if !dirty {
		return false, nil
	}
	return true, m.SavePinned(ctx)
}

func (m *Manager) markPinnedDirty() {
	m.mu.Lock()
	m.pinnedDirty = true
	m.mu.Unlock()
}

// RestorePinned loads the per-origin snapshot and shows each record as a
// pinned item without a timer. A snapshot that cannot be decoded is logged,
// deleted and otherwise ignored. It returns the number of restored items.
func (m *Manager) RestorePinned(ctx context.Context) (int, error) {
	if m.store == nil || m.origin == "" {
		return 0, nil
	}
	if !m.Config().PersistPinned {
		return 0, nil
	}
	blob, err := m.store.LoadPinned(ctx, m.origin)
	if err != nil {
		return 0, fmt.Errorf("load pinned snapshot: %w", err)
	}
	if len(blob) == 0 {
		return 0, nil
	}
	var recs []pinnedRecord
	if err := json.Unmarshal(blob, &recs); err != nil {
		m.log.Warn("discarding unreadable pinned snapshot", logx.String("origin", m.origin), logx.Err(err))
		m.saveMu.Lock()
		defer m.saveMu.Unlock()
		if derr := m.store.SavePinned(ctx, m.origin, nil); derr != nil {
			m.log.Warn("failed to delete pinned snapshot", logx.Err(derr))
		}
		return 0, nil
	}

	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range recs {
		sig := r.Signature
		if sig == "" {
			sig = capture.Signature(r.Error)
		}
		if existing := m.findVisibleLocked(sig); existing != nil {
			// Already on screen; keep the existing item and just pin it.
			if !existing.Pinned {
				existing.Pinned = true
				m.stopTimerLocked(existing)
				m.emitLocked(eventbus.ToastPinned, existing.Item)
			}
			continue
		}
		if r.Count < 1 {
			r.Count = 1
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.LastOccurrenceAt.IsZero() {
			r.LastOccurrenceAt = r.CreatedAt
		}
		m.nextID++
		it := &item{Item: Item{
			ID:               m.nextID,
			Signature:        sig,
			Error:            r.Error,
			Count:            r.Count,
			Pinned:           true,
			State:            Visible,
			CreatedAt:        r.CreatedAt,
			LastOccurrenceAt: r.LastOccurrenceAt,
		}}
		m.items = append(m.items, it)
		m.emitLocked(eventbus.ToastShown, it.Item)
		n++
	}
	if n > 0 {
		m.log.Info("pinned notifications restored", logx.Int("items", n), logx.String("origin", m.origin))
	}
	return n, nil
}
