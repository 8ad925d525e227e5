package coordinator

import "time"

// Clock abstracts time so tests can advance a virtual clock instead of
// sleeping on real timers. The coordinator owns all tickers it creates and
// stops them on session teardown.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// VirtualClock is a manually advanced clock for tests.
type VirtualClock struct {
	now     time.Time
	tickers []*virtualTicker
}

func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time { return c.now }

func (c *VirtualClock) NewTicker(d time.Duration) Ticker {
	t := &virtualTicker{
		interval: d,
		next:     c.now.Add(d),
		ch:       make(chan time.Time, 64),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward, firing every due ticker in order.
func (c *VirtualClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		var soonest *virtualTicker
		for _, t := range c.tickers {
			if t.stopped || t.next.After(target) {
				continue
			}
			if soonest == nil || t.next.Before(soonest.next) {
				soonest = t
			}
		}
		if soonest == nil {
			break
		}
		c.now = soonest.next
		soonest.fire(c.now)
		soonest.next = soonest.next.Add(soonest.interval)
	}
	c.now = target
}

type virtualTicker struct {
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *virtualTicker) C() <-chan time.Time { return t.ch }
func (t *virtualTicker) Stop()               { t.stopped = true }

func (t *virtualTicker) fire(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}
