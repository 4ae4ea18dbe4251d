package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "errtoast/pkg/logx"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "file", "errtoast")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "db", "errtoast.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	stores := map[string]Store{"memory": NewMemory(), "file": fs, "sqlite": sq}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestIgnoredRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := st.LoadIgnored(ctx)
			if err != nil {
				t.Fatalf("LoadIgnored on empty store: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected empty list, got %v", got)
			}
			want := []string{"console-error::X", "uncaught::Y, with comma", "network::Z"}
			if err := st.SaveIgnored(ctx, want); err != nil {
				t.Fatalf("SaveIgnored: %v", err)
			}
			got, err = st.LoadIgnored(ctx)
			if err != nil {
				t.Fatalf("LoadIgnored: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
				}
			}
			if err := st.SaveIgnored(ctx, want[:1]); err != nil {
				t.Fatalf("SaveIgnored shrink: %v", err)
			}
			got, _ = st.LoadIgnored(ctx)
			if len(got) != 1 || got[0] != want[0] {
				t.Fatalf("after shrink got %v", got)
			}
		})
	}
}

func TestPinnedPerOrigin(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			a := []byte(`[{"signature":"console-error::A"}]`)
			b := []byte(`[{"signature":"console-error::B"}]`)
			if err := st.SavePinned(ctx, "https://a.example", a); err != nil {
				t.Fatalf("SavePinned a: %v", err)
			}
			if err := st.SavePinned(ctx, "https://b.example", b); err != nil {
				t.Fatalf("SavePinned b: %v", err)
			}
			got, err := st.LoadPinned(ctx, "https://a.example")
			if err != nil {
				t.Fatalf("LoadPinned: %v", err)
			}
			if string(got) != string(a) {
				t.Fatalf("origin a = %s", got)
			}
			if err := st.SavePinned(ctx, "https://a.example", nil); err != nil {
				t.Fatalf("SavePinned delete: %v", err)
			}
			got, err = st.LoadPinned(ctx, "https://a.example")
			if err != nil || got != nil {
				t.Fatalf("expected deleted snapshot, got %s err=%v", got, err)
			}
			got, _ = st.LoadPinned(ctx, "https://b.example")
			if string(got) != string(b) {
				t.Fatalf("origin b = %s", got)
			}
		})
	}
}

func TestFileStoreCorruptIgnoredFile(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "errtoast")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	if err := os.WriteFile(filepath.Join(dir, "errtoast.ignored.json"), []byte("{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadIgnored(context.Background()); err == nil {
		t.Fatal("expected decode error for corrupt file")
	}
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	m := NewMemory()
	_ = m.Close()
	if err := m.SaveIgnored(context.Background(), []string{"x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestMemoryWatchNotifiesOtherContexts(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}()

	// Wait until the watcher is registered.
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.wmu.Lock()
		n := len(m.watchers)
		m.wmu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.SaveIgnored(context.Background(), []string{"console-error::X"}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watch callback not called")
	}
	cancel()
	<-done
}

func TestFileWatchSeesExternalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "errtoast")
	reader, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	writer, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fired := make(chan struct{}, 1)
	go func() {
		_ = reader.Watch(ctx, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}()

	// The watcher starts asynchronously; keep writing until it reports.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-fired:
			got, err := reader.LoadIgnored(context.Background())
			if err != nil || len(got) != 1 || got[0] != "uncaught::boom" {
				t.Fatalf("reader sees %v err=%v", got, err)
			}
			return
		case <-tick.C:
			if err := writer.SaveIgnored(context.Background(), []string{"uncaught::boom"}); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("file watch never fired")
		}
	}
}
