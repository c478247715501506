// Package clock abstracts wall-clock access so scheduler backoff and
// store timestamps can be tested without sleeping in real time.
package clock

import "time"

// Clock is the seam every time-dependent component reads through instead
// of calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Frozen is a test Clock that always reports the same instant until
// advanced.
type Frozen struct {
	t time.Time
}

// NewFrozen returns a Frozen clock starting at t.
func NewFrozen(t time.Time) *Frozen { return &Frozen{t: t} }

func (f *Frozen) Now() time.Time { return f.t }

// Advance moves the frozen clock forward by d.
func (f *Frozen) Advance(d time.Duration) { f.t = f.t.Add(d) }
