// Package clock provides the time source used by the notification engine.
//
// Core packages never call time.Now or time.AfterFunc directly. They take a
// Clock so tests can drive auto-dismiss, closing and notice timers
// deterministically with a Fake.
package clock

import "time"

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Real uses the system clock. Timer callbacks run on their own goroutine.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// NewReal returns a Clock backed by the system time.
func NewReal() Clock { return Real{} }

var _ Clock = Real{}
