// Package ignore implements the two-scope suppression list consulted by the
// ingestion gate.
//
// The session scope lives for one page load and is capacity bounded with
// oldest-first eviction. The permanent scope is persisted through a
// storage.Store shared by every context on the profile; each context keeps
// an in-memory mirror so IsIgnored never touches storage.
//
// Permanent changes made in another context become visible here only after
// the store's change notification fires and Reload runs. Until then this
// context may still show an error that was just ignored elsewhere; that
// window is expected.
package ignore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"errtoast/internal/eventbus"
	"errtoast/internal/storage"
	logx "errtoast/pkg/logx"
)

const DefaultSessionCapacity = 200

var ErrNoStore = errors.New("ignore: no persistent store configured")

type Config struct {
	SessionCapacity int
}

// ChangeEvent is published on the bus when the permanent list changes.
type ChangeEvent struct {
	Signature string `json:"signature,omitempty"`
	Op        string `json:"op"` // "add", "remove", "reload", "rollback"
	Total     int    `json:"total"`
}

type Store struct {
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	ready atomic.Bool

	mu         sync.RWMutex
	sessionCap int
	session    *orderedSet
	permanent  *orderedSet

	// In-flight permanent writes by signature. Reload keeps their optimistic
	// state applied on top of what it reads.
	pending map[string]*pendingSig

	// wmu serializes read-modify-write cycles against the store; seq orders
	// the ones that committed.
	wmu      sync.Mutex
	seq      uint64
	inflight sync.WaitGroup
}

// pendingSig tracks overlapping writes for one signature. The mirror is
// settled only when the last of them finishes: to the state of the latest
// committed write, or back to baseline when none committed.
type pendingSig struct {
	ops       int
	baseline  bool
	committed bool
	seq       uint64
	state     bool
}

func New(cfg Config, st storage.Store, log logx.Logger, bus eventbus.Bus) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		log:        log,
		bus:        bus,
		store:      st,
		session:    newOrderedSet(),
		permanent:  newOrderedSet(),
		pending:    map[string]*pendingSig{},
	}
	s.sessionCap = normalizeCapacity(cfg.SessionCapacity)
	return s
}

func normalizeCapacity(n int) int {
	if n <= 0 {
		return DefaultSessionCapacity
	}
	return n
}

// Ready reports whether Reload has completed at least once.
func (s *Store) Ready() bool { return s.ready.Load() }

// IsIgnored reports whether sig is in the session or permanent scope.
func (s *Store) IsIgnored(sig string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.has(sig) || s.permanent.has(sig)
}

// IgnoreForSession suppresses sig until the page context goes away. When the
// session scope is full, the oldest inserted signature is evicted first.
func (s *Store) IgnoreForSession(sig string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.has(sig) {
		return
	}
	for s.session.len() >= s.sessionCap {
		evicted := s.session.popOldest()
		s.log.Debug("session ignore evicted", logx.String("signature", evicted))
	}
	s.session.add(sig)
}

// ClearSession empties the session scope.
func (s *Store) ClearSession() {
	s.mu.Lock()
	s.session = newOrderedSet()
	s.mu.Unlock()
}

// SetSessionCapacity applies a new capacity, evicting oldest entries if the
// scope is now over it. Non-positive values fall back to the default.
func (s *Store) SetSessionCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCap = normalizeCapacity(n)
	for s.session.len() > s.sessionCap {
		s.session.popOldest()
	}
}

// Session returns the session scope, oldest first.
func (s *Store) Session() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.list()
}

// Permanent returns the permanent scope as currently mirrored, oldest first.
func (s *Store) Permanent() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permanent.list()
}

// Reload re-reads the permanent list and atomically replaces the mirror.
// A failed read keeps the previous mirror (empty on first load) and still
// marks the store ready so ingestion can proceed.
func (s *Store) Reload(ctx context.Context) error {
	if s.store == nil {
		s.ready.Store(true)
		return nil
	}
	stored, err := s.store.LoadIgnored(ctx)
	if err != nil {
		s.log.Warn("permanent ignore list unreadable; keeping current list", logx.Err(err))
		s.ready.Store(true)
		return err
	}

	s.mu.Lock()
	next := newOrderedSet()
	for _, sig := range stored {
		if _, ok := s.pending[sig]; ok {
			continue
		}
		next.add(sig)
	}
	for sig, p := range s.pending {
		// what storage holds now is what a failed write falls back to
		p.baseline = contains(stored, sig)
		if s.permanent.has(sig) {
			next.add(sig)
		}
	}
	changed := !next.equal(s.permanent)
	s.permanent = next
	total := next.len()
	s.mu.Unlock()

	s.ready.Store(true)
	if changed {
		s.log.Debug("permanent ignore list reloaded", logx.Int("total", total))
		eventbus.Emit(s.bus, eventbus.IgnoreChanged, time.Now(), ChangeEvent{Op: "reload", Total: total})
	}
	return nil
}

// Watch reloads whenever the shared store reports a change. It blocks until
// ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.store == nil {
		<-ctx.Done()
		return nil
	}
	return s.store.Watch(ctx, func() {
		rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_ = s.Reload(rctx)
	})
}

// IgnoreForever adds sig to the permanent scope. The in-memory mirror is
// updated immediately; the write happens in the background and done (if
// non-nil) receives its result. If no overlapping write on sig commits, the
// optimistic insert is undone before done is called.
func (s *Store) IgnoreForever(ctx context.Context, sig string, done func(error)) {
	s.write(ctx, sig, true, done)
}

// Unignore removes sig from the permanent scope with the same optimistic
// update and rollback rules as IgnoreForever. Errors already dropped stay
// dropped; only new occurrences become visible again.
func (s *Store) Unignore(ctx context.Context, sig string, done func(error)) {
	s.write(ctx, sig, false, done)
}

func (s *Store) write(ctx context.Context, sig string, present bool, done func(error)) {
	s.mu.Lock()
	p := s.pending[sig]
	if p == nil {
		p = &pendingSig{baseline: s.permanent.has(sig)}
		s.pending[sig] = p
	}
	p.ops++
	s.setLocked(sig, present)
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		seq, err := s.commit(ctx, func(list *orderedSet) {
			if present {
				list.add(sig)
			} else {
				list.remove(sig)
			}
		})
		rolledBack, total := s.settle(sig, present, seq, err)

		op := "add"
		if !present {
			op = "remove"
		}
		if err != nil {
			s.log.Warn("permanent ignore write failed", logx.String("signature", sig), logx.String("op", op), logx.Bool("rolled_back", rolledBack), logx.Err(err))
			if rolledBack {
				op = "rollback"
			}
		}
		if err == nil || rolledBack {
			eventbus.Emit(s.bus, eventbus.IgnoreChanged, time.Now(), ChangeEvent{Signature: sig, Op: op, Total: total})
		}
		if done != nil {
			done(err)
		}
	}()
}

// settle records the outcome of one write on sig. When it was the last one
// in flight, the mirror takes the state storage actually holds. It reports
// whether that undid the optimistic change.
func (s *Store) settle(sig string, present bool, seq uint64, err error) (rolledBack bool, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending[sig]
	if err == nil && seq > p.seq {
		p.committed = true
		p.seq = seq
		p.state = present
	}
	p.ops--
	if p.ops == 0 {
		delete(s.pending, sig)
		final := p.baseline
		if p.committed {
			final = p.state
		}
		if s.permanent.has(sig) != final {
			s.setLocked(sig, final)
			rolledBack = !p.committed
		}
	}
	return rolledBack, s.permanent.len()
}

func (s *Store) setLocked(sig string, present bool) {
	if present {
		s.permanent.add(sig)
	} else {
		s.permanent.remove(sig)
	}
}

func contains(list []string, sig string) bool {
	for _, v := range list {
		if v == sig {
			return true
		}
	}
	return false
}

// commit runs one read-modify-write cycle. Reading first keeps additions
// made by other contexts that this mirror has not seen yet.
func (s *Store) commit(ctx context.Context, mutate func(*orderedSet)) (uint64, error) {
	if s.store == nil {
		return 0, ErrNoStore
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	base := newOrderedSet()
	stored, err := s.store.LoadIgnored(wctx)
	if err != nil {
		s.log.Warn("permanent ignore list unreadable; rewriting from memory", logx.Err(err))
		s.mu.RLock()
		for _, sig := range s.permanent.list() {
			base.add(sig)
		}
		s.mu.RUnlock()
	} else {
		for _, sig := range stored {
			base.add(sig)
		}
	}
	mutate(base)
	if err := s.store.SaveIgnored(wctx, base.list()); err != nil {
		return 0, err
	}
	s.seq++
	return s.seq, nil
}

// Wait blocks until all background writes have finished or ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
