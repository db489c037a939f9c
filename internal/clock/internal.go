package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// InternalClock generates ticks at BPM * DefaultPPQNRaw / 60 Hz. A goroutine
// driving a time.Ticker notifies observers synchronously, standing in for a
// hardware-timer ISR callback. The BPM handoff uses an atomic "pending
// interval" cell so a live change never reaches across to the ticking
// goroutine except through that cell.
type InternalClock struct {
	mu        sync.Mutex
	observers []Observer
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}

	bpm             float64
	pendingInterval atomic.Value // time.Duration, zero value means "no change pending"
	interval        time.Duration

	startTime time.Time
}

// NewInternalClock creates a stopped clock at the given initial BPM.
func NewInternalClock(bpm float64) *InternalClock {
	c := &InternalClock{bpm: bpm}
	c.interval = intervalForBPM(bpm)
	return c
}

func intervalForBPM(bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	hz := bpm * DefaultPPQNRaw / 60
	return time.Duration(float64(time.Second) / hz)
}

// AddObserver registers a sink for generated ticks. Wiring is fixed at boot:
// no dynamic unsubscribe is provided.
func (c *InternalClock) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// SetBPM schedules a new tick interval. If running, the tick already
// scheduled fires at the old interval; only the following interval uses the
// new value. BPM <= 0 is ignored.
func (c *InternalClock) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	c.mu.Lock()
	unchanged := bpm == c.bpm
	c.mu.Unlock()
	if unchanged {
		return
	}
	c.pendingInterval.Store(intervalForBPM(bpm))
	c.mu.Lock()
	c.bpm = bpm
	c.mu.Unlock()
}

// Start is idempotent; it arms the periodic ticking goroutine.
func (c *InternalClock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.startTime = time.Now()
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	interval := c.interval
	go c.run(interval, c.stopCh, c.doneCh)
}

// Stop is idempotent; it cancels the periodic ticking goroutine.
func (c *InternalClock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// run is the ISR-equivalent tick loop: it owns the live interval and applies
// any pending BPM change after firing the currently-scheduled tick.
func (c *InternalClock) run(interval time.Duration, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-t.C:
			c.notify()
			if pending, ok := c.pendingInterval.Swap(time.Duration(0)).(time.Duration); ok && pending > 0 {
				t.Reset(pending)
				c.mu.Lock()
				c.interval = pending
				c.mu.Unlock()
			}
		}
	}
}

func (c *InternalClock) notify() {
	now := uint32(time.Since(c.startTime).Microseconds())
	ev := Event{Source: SourceInternal, TimestampUs: now}
	c.mu.Lock()
	observers := c.observers
	c.mu.Unlock()
	for _, o := range observers {
		o.OnClockEvent(ev)
	}
}
