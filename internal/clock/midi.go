package clock

import (
	"sync"
	"time"
)

// staleAfter is the MIDI clock staleness window (500 ms).
const staleAfter = 500 * time.Millisecond

// MIDIClockProcessor turns received 0xF8 realtime clock bytes into raw
// ClockEvents, detecting stream staleness by comparing wall-clock deltas
// rather than relying on a dedicated watchdog goroutine.
type MIDIClockProcessor struct {
	mu            sync.Mutex
	observers     []Observer
	lastRawTick   time.Time
	hasLastTick   bool
	now           func() time.Time
}

// NewMIDIClockProcessor creates a processor with no ticks received yet.
func NewMIDIClockProcessor() *MIDIClockProcessor {
	return &MIDIClockProcessor{now: time.Now}
}

func (p *MIDIClockProcessor) AddObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// OnMIDIClockTickReceived must be called for every received 0xF8 byte.
func (p *MIDIClockProcessor) OnMIDIClockTickReceived() {
	now := p.now()

	p.mu.Lock()
	stale := p.hasLastTick && now.Sub(p.lastRawTick) > staleAfter
	firstEver := !p.hasLastTick
	p.lastRawTick = now
	p.hasLastTick = true
	observers := p.observers
	p.mu.Unlock()

	ts := uint32(now.UnixMicro())
	if stale || firstEver {
		resyncEv := Event{Source: SourceMIDI, IsResync: true, TimestampUs: ts}
		for _, o := range observers {
			o.OnClockEvent(resyncEv)
		}
	}
	tickEv := Event{Source: SourceMIDI, TimestampUs: ts}
	for _, o := range observers {
		o.OnClockEvent(tickEv)
	}
}

// IsActive reports whether a tick has been received within the staleness window.
func (p *MIDIClockProcessor) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasLastTick && p.now().Sub(p.lastRawTick) <= staleAfter
}

// Reset clears the last-tick timestamp, as if the stream had never started.
func (p *MIDIClockProcessor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasLastTick = false
}
