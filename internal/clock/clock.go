package clock

import (
	"sync"
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time reads so award paths can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by the wall clock.
func NewSystemClock() Clock { return systemClock{} }

// Module wires the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)

// FakeClock is a manually advanced Clock for tests. It only moves when
// Advance is called.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock pins the clock at t, normalized to UTC.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
