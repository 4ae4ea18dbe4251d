// Package notice shows short, self-dismissing messages about the engine
// itself (a failed write, a discarded snapshot). They are kept apart from
// error toasts so a storage problem is never mistaken for a page error.
package notice

import (
	"sync"
	"time"

	"errtoast/internal/clock"
	"errtoast/internal/eventbus"
	logx "errtoast/pkg/logx"

	"golang.org/x/time/rate"
)

const (
	DefaultDuration   = 4 * time.Second
	DefaultRatePerSec = 1
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Config struct {
	Duration   time.Duration
	RatePerSec int
}

type Notice struct {
	ID        int64     `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type entry struct {
	Notice
	timer clock.Timer
}

// Center holds the active notices. It is safe for concurrent use.
type Center struct {
	clock clock.Clock
	log   logx.Logger
	bus   eventbus.Bus

	mu         sync.Mutex
	cfg        Config
	limiter    *rate.Limiter
	active     []*entry
	nextID     int64
	suppressed int
}

func New(cfg Config, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Center {
	if clk == nil {
		clk = clock.NewReal()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Center{clock: clk, log: log, bus: bus}
	c.applyLocked(cfg)
	return c
}

func (c *Center) Apply(cfg Config) {
	c.mu.Lock()
	c.applyLocked(cfg)
	c.mu.Unlock()
}

func (c *Center) applyLocked(cfg Config) {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	c.cfg = cfg
	c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Post shows msg for the configured duration. A message identical to one
// already showing extends that notice instead of stacking a second one.
// Posts over the rate limit are dropped; ok reports whether it was shown.
func (c *Center) Post(level Level, msg string) (n Notice, ok bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.active {
		if e.Level == level && e.Message == msg {
			c.scheduleLocked(e, now)
			return e.Notice, true
		}
	}
	if !c.limiter.AllowN(now, 1) {
		c.suppressed++
		c.log.Debug("notice suppressed by rate limit", logx.String("message", msg), logx.Int("suppressed", c.suppressed))
		return Notice{}, false
	}

	c.nextID++
	e := &entry{Notice: Notice{ID: c.nextID, Level: level, Message: msg, CreatedAt: now}}
	c.active = append(c.active, e)
	c.scheduleLocked(e, now)
	eventbus.Emit(c.bus, eventbus.NoticePosted, now, e.Notice)
	return e.Notice, true
}

func (c *Center) scheduleLocked(e *entry, now time.Time) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.ExpiresAt = now.Add(c.cfg.Duration)
	expiresAt := e.ExpiresAt
	e.timer = c.clock.AfterFunc(c.cfg.Duration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !e.ExpiresAt.Equal(expiresAt) {
			return
		}
		c.removeLocked(e.ID)
	})
}

// Dismiss removes id early. Unknown ids are ignored.
func (c *Center) Dismiss(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

func (c *Center) removeLocked(id int64) bool {
	for i, e := range c.active {
		if e.ID != id {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		c.active = append(c.active[:i], c.active[i+1:]...)
		eventbus.Emit(c.bus, eventbus.NoticeExpired, c.clock.Now(), e.Notice)
		return true
	}
	return false
}

// Active returns the notices currently showing, oldest first.
func (c *Center) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notice, 0, len(c.active))
	for _, e := range c.active {
		out = append(out, e.Notice)
	}
	return out
}

// Suppressed returns how many posts the rate limit has dropped.
func (c *Center) Suppressed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed
}

// Shutdown stops every expiry timer.
func (c *Center) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.active {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	c.active = nil
}
