package network

import (
	"sync"
	"time"
)

// pingWindow bounds the sample history kept per connection.
const pingWindow = 16

// PingTracker samples round-trip latency from the reserved ping
// envelopes. Samples land in a bounded window; there is no retry, a
// lost ping is simply never recorded.
type PingTracker struct {
	mu       sync.Mutex
	samples  [pingWindow]time.Duration
	next     int
	count    int
	lastPing time.Time
}

// NewPingTracker creates an empty tracker.
func NewPingTracker() *PingTracker {
	return &PingTracker{}
}

// Observe records one round-trip sample: elapsed wall time since sentAt
// (unix millis) minus one tick period, the known processing delay on the
// answering side. Clamped at zero.
func (p *PingTracker) Observe(sentAtMillis int64, now time.Time, tick time.Duration) {
	rtt := now.Sub(time.UnixMilli(sentAtMillis)) - tick
	if rtt < 0 {
		rtt = 0
	}

	p.mu.Lock()
	p.samples[p.next] = rtt
	p.next = (p.next + 1) % pingWindow
	if p.count < pingWindow {
		p.count++
	}
	p.mu.Unlock()
}

// Average returns the mean of the sample window, zero before any sample.
func (p *PingTracker) Average() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < p.count; i++ {
		sum += p.samples[i]
	}
	return sum / time.Duration(p.count)
}

// Due reports whether a new ping should be enqueued, and if so marks the
// interval as started.
func (p *PingTracker) Due(now time.Time, interval time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.lastPing.IsZero() && now.Sub(p.lastPing) < interval {
		return false
	}
	p.lastPing = now
	return true
}
