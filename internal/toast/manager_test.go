package toast

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"errtoast/internal/capture"
	"errtoast/internal/clock"
	"errtoast/internal/eventbus"
	"errtoast/internal/storage"
	logx "errtoast/pkg/logx"
)

const origin = "https://app.example.com"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, mutate func(*Config)) (*Manager, *clock.Fake, *storage.Memory) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clk := clock.NewFake(t0)
	st := storage.NewMemory()
	return New(cfg, clk, st, origin, logx.Nop(), nil), clk, st
}

func ce(msg string) capture.Error {
	return capture.Error{Type: capture.TypeConsoleError, Message: msg, Timestamp: t0.UnixMilli()}
}

func TestDuplicateShowsCollapse(t *testing.T) {
	m, _, _ := newManager(t, nil)
	id1, created := m.Show(ce("X"))
	if !created {
		t.Fatal("first show must create an item")
	}
	for i := 0; i < 2; i++ {
		id, created := m.Show(ce("X"))
		if created || id != id1 {
			t.Fatalf("duplicate created a new item (id=%d created=%v)", id, created)
		}
	}
	vis := m.Visible()
	if len(vis) != 1 || vis[0].Count != 3 {
		t.Fatalf("visible = %+v, want one item with count 3", vis)
	}
}

func TestDuplicateUpdatesLastOccurrence(t *testing.T) {
	m, clk, _ := newManager(t, func(c *Config) { c.AutoClose = 0 })
	id, _ := m.Show(ce("X"))
	clk.Advance(3 * time.Second)
	m.Show(ce("X"))
	it, _ := m.Get(id)
	if !it.CreatedAt.Equal(t0) || !it.LastOccurrenceAt.Equal(t0.Add(3*time.Second)) {
		t.Fatalf("created=%v last=%v", it.CreatedAt, it.LastOccurrenceAt)
	}
}

func TestCapEvictsOldestUnpinned(t *testing.T) {
	m, clk, _ := newManager(t, func(c *Config) { c.MaxVisible = 1 })
	m.Show(ce("X"))
	m.Show(ce("Y"))
	vis := m.Visible()
	if len(vis) != 1 || vis[0].Error.Message != "Y" {
		t.Fatalf("visible = %+v, want only Y", vis)
	}
	// X is still holding for its exit transition.
	if len(m.Items()) != 2 {
		t.Fatalf("items = %d, want 2 while X is closing", len(m.Items()))
	}
	clk.Advance(DefaultExitDuration)
	if len(m.Items()) != 1 {
		t.Fatalf("items = %d after exit duration", len(m.Items()))
	}
}

func TestPinnedItemsAreNeverEvicted(t *testing.T) {
	m, _, _ := newManager(t, func(c *Config) { c.MaxVisible = 2 })
	a, _ := m.Show(ce("A"))
	if pinned, ok := m.TogglePin(a); !ok || !pinned {
		t.Fatal("pin failed")
	}
	for _, msg := range []string{"B", "C", "D", "E"} {
		m.Show(ce(msg))
		unpinned := 0
		for _, it := range m.Visible() {
			if !it.Pinned {
				unpinned++
			}
		}
		if unpinned > 2 {
			t.Fatalf("unpinned visible = %d after %s", unpinned, msg)
		}
	}
	if _, ok := m.Get(a); !ok {
		t.Fatal("pinned item was evicted")
	}
	if m.Count() != 3 {
		t.Fatalf("Count = %d, want pinned + 2", m.Count())
	}
}

func TestLoweredCapAppliesAtNextShow(t *testing.T) {
	m, _, _ := newManager(t, nil)
	for _, msg := range []string{"A", "B", "C", "D"} {
		m.Show(ce(msg))
	}
	cfg := m.Config()
	cfg.MaxVisible = 2
	m.Apply(cfg)
	if m.Count() != 4 {
		t.Fatal("cap change must not close items by itself")
	}
	m.Show(ce("E"))
	vis := m.Visible()
	if len(vis) != 2 || vis[0].Error.Message != "D" || vis[1].Error.Message != "E" {
		t.Fatalf("visible = %+v", vis)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m, clk, _ := newManager(t, nil)
	id, _ := m.Show(ce("X"))
	if !m.Close(id) {
		t.Fatal("first close should act")
	}
	if m.Close(id) || m.Close(999) {
		t.Fatal("second close and unknown id must be no-ops")
	}
	clk.Advance(time.Hour)
	if m.Close(id) {
		t.Fatal("close after removal must be a no-op")
	}
	if clk.Pending() != 0 {
		t.Fatalf("%d timers left behind", clk.Pending())
	}
}

func TestAutoCloseAndRemoval(t *testing.T) {
	m, clk, _ := newManager(t, nil)
	bus := eventbus.New()
	m.bus = bus
	ch, unsub := bus.Subscribe(32)
	defer unsub()

	id, _ := m.Show(ce("X"))
	clk.Advance(DefaultAutoClose - time.Millisecond)
	if it, _ := m.Get(id); it.State != Visible || !it.HasTimer {
		t.Fatalf("state = %v timer=%v before deadline", it.State, it.HasTimer)
	}
	clk.Advance(time.Millisecond)
	if it, _ := m.Get(id); it.State != Closing {
		t.Fatalf("state = %v at deadline, want closing", it.State)
	}
	clk.Advance(DefaultExitDuration)
	if _, ok := m.Get(id); ok {
		t.Fatal("item not removed after exit duration")
	}

	var got []string
	for len(ch) > 0 {
		got = append(got, (<-ch).Type)
	}
	want := []string{eventbus.ToastShown, eventbus.ToastClosing, eventbus.ToastRemoved}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestAutoCloseZeroMeansNever(t *testing.T) {
	m, clk, _ := newManager(t, func(c *Config) { c.AutoClose = 0 })
	id, _ := m.Show(ce("X"))
	clk.Advance(24 * time.Hour)
	if it, ok := m.Get(id); !ok || it.State != Visible || it.HasTimer {
		t.Fatalf("item = %+v ok=%v", it, ok)
	}
}

func TestUnpinRestartsFullDuration(t *testing.T) {
	m, clk, _ := newManager(t, nil)
	id, _ := m.Show(ce("X"))
	clk.Advance(4 * time.Second)
	m.TogglePin(id)
	clk.Advance(10 * time.Second)
	if it, _ := m.Get(id); it.State != Visible || it.HasTimer {
		t.Fatal("pinned item must not auto-close")
	}
	m.TogglePin(id)
	clk.Advance(DefaultAutoClose - 100*time.Millisecond)
	if it, _ := m.Get(id); it.State != Visible {
		t.Fatal("unpinned item closed before a full interval")
	}
	clk.Advance(100 * time.Millisecond)
	if it, _ := m.Get(id); it.State != Closing {
		t.Fatalf("state = %v, want closing", it.State)
	}
}

func TestHoverPausesAndRestartsFullDuration(t *testing.T) {
	m, clk, _ := newManager(t, nil)
	id, _ := m.Show(ce("X"))
	clk.Advance(4 * time.Second)
	if !m.HoverStart(id) {
		t.Fatal("HoverStart refused")
	}
	clk.Advance(time.Minute)
	if it, _ := m.Get(id); it.State != Visible || it.HasTimer || !it.Hovered {
		t.Fatalf("hovered item = %+v", it)
	}
	m.HoverEnd(id)
	clk.Advance(DefaultAutoClose - 100*time.Millisecond)
	if it, _ := m.Get(id); it.State != Visible {
		t.Fatal("resume must restart the full interval, not the remainder")
	}
	clk.Advance(200 * time.Millisecond)
	if it, _ := m.Get(id); it.State == Visible {
		t.Fatal("item did not close after the restarted interval")
	}
}

func TestHoverEndOnPinnedItemKeepsNoTimer(t *testing.T) {
	m, _, _ := newManager(t, nil)
	id, _ := m.Show(ce("X"))
	m.HoverStart(id)
	m.TogglePin(id)
	m.HoverEnd(id)
	if it, _ := m.Get(id); it.HasTimer {
		t.Fatal("pinned item got a timer after hover end")
	}
}

func TestDragDirectionFollowsAnchor(t *testing.T) {
	cases := []struct {
		pos       Position
		dx, dy    float64
		dismissed bool
	}{
		{BottomRight, 100, 0, true},
		{BottomRight, -100, 0, false},
		{TopRight, 81, 0, true},
		{BottomLeft, -100, 0, true},
		{TopLeft, 100, 0, false},
		{TopCenter, 0, -100, true},
		{TopCenter, 0, 100, false},
		{BottomCenter, 0, 100, true},
		{BottomCenter, 100, 0, false},
		{BottomRight, 79, 0, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.pos), func(t *testing.T) {
			m, _, _ := newManager(t, func(c *Config) { c.Position = tc.pos })
			id, _ := m.Show(ce("X"))
			if !m.DragStart(id, 200, 300) {
				t.Fatal("DragStart refused")
			}
			m.DragMove(id, 200+tc.dx/2, 300+tc.dy/2)
			got := m.DragEnd(id, 200+tc.dx, 300+tc.dy)
			if got != tc.dismissed {
				t.Fatalf("drag (%v,%v) dismissed=%v, want %v", tc.dx, tc.dy, got, tc.dismissed)
			}
			it, _ := m.Get(id)
			if tc.dismissed && it.State != Closing {
				t.Fatalf("state = %v after swipe", it.State)
			}
			if !tc.dismissed && it.State != Visible {
				t.Fatalf("state = %v after snap back", it.State)
			}
		})
	}
}

func TestSnapBackResumesTimerAfterTransition(t *testing.T) {
	m, clk, _ := newManager(t, nil)
	id, _ := m.Show(ce("X"))
	m.DragStart(id, 0, 0)
	clk.Advance(10 * time.Second)
	if it, _ := m.Get(id); it.State != Visible {
		t.Fatal("item closed while being dragged")
	}
	if m.DragEnd(id, 10, 0) {
		t.Fatal("short drag dismissed the item")
	}
	if it, _ := m.Get(id); it.HasTimer {
		t.Fatal("timer restarted before the snap-back finished")
	}
	clk.Advance(DefaultSnapBackDuration)
	if it, _ := m.Get(id); !it.HasTimer {
		t.Fatal("timer not restarted after snap-back")
	}
	clk.Advance(DefaultAutoClose - 100*time.Millisecond)
	if it, _ := m.Get(id); it.State != Visible {
		t.Fatal("closed early")
	}
	clk.Advance(100 * time.Millisecond)
	if it, _ := m.Get(id); it.State != Closing {
		t.Fatalf("state = %v, want closing", it.State)
	}
}

func TestCloseDuringSnapBackCancelsIt(t *testing.T) {
	m, clk, _ := newManager(t, nil)
	id, _ := m.Show(ce("X"))
	m.DragStart(id, 0, 0)
	m.DragEnd(id, 5, 0)
	m.Close(id)
	clk.Advance(time.Minute)
	if _, ok := m.Get(id); ok {
		t.Fatal("item should be gone")
	}
	if clk.Pending() != 0 {
		t.Fatalf("%d timers leaked", clk.Pending())
	}
}

func TestSwipeDisabled(t *testing.T) {
	m, _, _ := newManager(t, func(c *Config) { c.SwipeToDismiss = false })
	id, _ := m.Show(ce("X"))
	if m.DragStart(id, 0, 0) {
		t.Fatal("drag accepted with swipe disabled")
	}
	if m.DragEnd(id, 500, 0) {
		t.Fatal("drag end dismissed with swipe disabled")
	}
}

func TestDisablingSwipeResumesWithNewAutoClose(t *testing.T) {
	m, clk, _ := newManager(t, nil)
	id, _ := m.Show(ce("X"))
	if !m.DragStart(id, 0, 0) {
		t.Fatal("drag start rejected")
	}
	cfg := m.Config()
	cfg.SwipeToDismiss = false
	cfg.AutoClose = 2 * DefaultAutoClose
	m.Apply(cfg)

	it, _ := m.Get(id)
	if it.Dragging || !it.HasTimer {
		t.Fatalf("item after apply = %+v", it)
	}
	clk.Advance(DefaultAutoClose)
	if it, _ := m.Get(id); it.State != Visible {
		t.Fatal("timer resumed with the old auto-close duration")
	}
	clk.Advance(DefaultAutoClose)
	if it, _ := m.Get(id); it.State == Visible {
		t.Fatal("item did not close after the new duration")
	}
}

func TestClosingItemRejectsOperations(t *testing.T) {
	m, _, _ := newManager(t, nil)
	id, _ := m.Show(ce("X"))
	m.Close(id)
	if _, ok := m.TogglePin(id); ok {
		t.Fatal("pin accepted on closing item")
	}
	if m.HoverStart(id) || m.DragStart(id, 0, 0) {
		t.Fatal("gesture accepted on closing item")
	}
	// A closing item does not absorb duplicates.
	id2, created := m.Show(ce("X"))
	if !created || id2 == id {
		t.Fatal("duplicate of a closing item must create a new one")
	}
}

func TestCloseAllIncludesPinned(t *testing.T) {
	m, clk, _ := newManager(t, nil)
	a, _ := m.Show(ce("A"))
	m.Show(ce("B"))
	m.TogglePin(a)
	if n := m.CloseAll(); n != 2 {
		t.Fatalf("CloseAll = %d", n)
	}
	clk.Advance(DefaultExitDuration)
	if len(m.Items()) != 0 {
		t.Fatalf("items left: %+v", m.Items())
	}
}

func TestZeroExitDurationRemovesImmediately(t *testing.T) {
	m, _, _ := newManager(t, func(c *Config) { c.ExitDuration = 0 })
	id, _ := m.Show(ce("X"))
	m.Close(id)
	if _, ok := m.Get(id); ok {
		t.Fatal("item should be removed without an exit hold")
	}
}

func TestPinnedRestoreAcrossReload(t *testing.T) {
	ctx := context.Background()
	m, _, st := newManager(t, nil)
	a, _ := m.Show(ce("A"))
	m.Show(ce("A"))
	m.Show(ce("B"))
	m.TogglePin(a)
	if err := m.SavePinned(ctx); err != nil {
		t.Fatal(err)
	}
	m.Shutdown()

	clk := clock.NewFake(t0.Add(time.Hour))
	next := New(DefaultConfig(), clk, st, origin, logx.Nop(), nil)
	n, err := next.RestorePinned(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RestorePinned = %d, %v", n, err)
	}
	vis := next.Visible()
	if len(vis) != 1 || !vis[0].Pinned || vis[0].HasTimer || vis[0].Count != 2 || vis[0].Error.Message != "A" {
		t.Fatalf("restored = %+v", vis)
	}
	clk.Advance(24 * time.Hour)
	if next.Count() != 1 {
		t.Fatal("restored pinned item auto-closed")
	}

	other := New(DefaultConfig(), clk, st, "https://other.example", logx.Nop(), nil)
	if n, _ := other.RestorePinned(ctx); n != 0 {
		t.Fatalf("other origin restored %d items", n)
	}
}

func TestCorruptPinnedSnapshotIsDiscarded(t *testing.T) {
	ctx := context.Background()
	m, _, st := newManager(t, nil)
	if err := st.SavePinned(ctx, origin, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	n, err := m.RestorePinned(ctx)
	if err != nil || n != 0 {
		t.Fatalf("RestorePinned = %d, %v", n, err)
	}
	if blob, _ := st.LoadPinned(ctx, origin); blob != nil {
		t.Fatalf("corrupt snapshot kept: %s", blob)
	}
}

func TestPersistPinnedDisabled(t *testing.T) {
	ctx := context.Background()
	m, _, st := newManager(t, nil)
	a, _ := m.Show(ce("A"))
	m.TogglePin(a)
	_ = m.SavePinned(ctx)

	cfg := m.Config()
	cfg.PersistPinned = false
	m.Apply(cfg)
	if wrote, err := m.FlushPinned(ctx); !wrote || err != nil {
		t.Fatalf("FlushPinned = %v, %v", wrote, err)
	}
	if blob, _ := st.LoadPinned(ctx, origin); blob != nil {
		t.Fatal("snapshot should be removed once persistence is off")
	}
}

func TestFlushPinnedOnlyWhenDirty(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, nil)
	if wrote, _ := m.FlushPinned(ctx); wrote {
		t.Fatal("nothing changed, nothing to flush")
	}
	a, _ := m.Show(ce("A"))
	m.TogglePin(a)
	if wrote, err := m.FlushPinned(ctx); !wrote || err != nil {
		t.Fatalf("FlushPinned = %v, %v", wrote, err)
	}
	if wrote, _ := m.FlushPinned(ctx); wrote {
		t.Fatal("second flush should be a no-op")
	}
}

// gatedPinStore holds the first pinned write until release is closed.
type gatedPinStore struct {
	*storage.Memory
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPinStore) SavePinned(ctx context.Context, origin string, blob []byte) error {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.Memory.SavePinned(ctx, origin, blob)
}

func TestPinnedSavesLandInOrder(t *testing.T) {
	ctx := context.Background()
	st := &gatedPinStore{Memory: storage.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	m := New(DefaultConfig(), clock.NewFake(t0), st, origin, logx.Nop(), nil)
	a, _ := m.Show(ce("A"))
	m.TogglePin(a)

	errs := make(chan error, 2)
	go func() { errs <- m.SavePinned(ctx) }()
	<-st.entered
	if pinned, _ := m.TogglePin(a); pinned {
		t.Fatal("second toggle should unpin")
	}
	go func() { errs <- m.SavePinned(ctx) }()
	close(st.release)
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("save did not finish")
		}
	}

	blob, err := st.LoadPinned(ctx, origin)
	if err != nil {
		t.Fatal(err)
	}
	if len(blob) != 0 {
		t.Fatalf("stale snapshot written last: %s", blob)
	}
}
