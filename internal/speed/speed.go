// Package speed implements the Speed Adapter (C3): converts the 24 PPQN raw
// clock stream into a 12 PPQN internal stream, applying HALF/NORMAL/DOUBLE
// scaling.
package speed

import (
	"sync"

	"github.com/datomusic/drum-firmware/internal/clock"
)

// Modifier selects the speed scaling applied to the raw stream.
type Modifier int

const (
	Half Modifier = iota
	Normal
	Double
)

// Adapter observes a raw clock.Source stream and re-emits a scaled stream to
// its own observers. DOUBLE mode additionally schedules one interpolated
// tick between each pair of raw ticks, polled via Update.
type Adapter struct {
	mu sync.Mutex

	observers []clock.Observer

	modifier        Modifier
	pendingModifier *Modifier
	pendingIsInternal bool

	tickCounter int

	haveLastTick   bool
	lastTickAt     uint32
	haveInterval   bool
	rawIntervalUs  uint32

	insertScheduled bool
	insertAtUs      uint32
	insertSource    clock.Source
}

// New creates an Adapter in NORMAL mode.
func New() *Adapter {
	return &Adapter{modifier: Normal}
}

func (a *Adapter) AddObserver(o clock.Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// SetModifier requests a speed change. It is deferred to the next is_beat
// event unless fromInternal is true, in which case it is applied
// immediately: for the internal source, changes may apply without beat
// gating.
func (a *Adapter) SetModifier(m Modifier, fromInternal bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fromInternal {
		a.modifier = m
		a.pendingModifier = nil
		return
	}
	mm := m
	a.pendingModifier = &mm
}

// Modifier returns the currently active modifier.
func (a *Adapter) Modifier() Modifier {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modifier
}

// OnClockEvent implements clock.Observer, consuming the raw 24 PPQN stream.
func (a *Adapter) OnClockEvent(e clock.Event) {
	a.mu.Lock()
	if e.IsResync || e.IsBeat {
		if e.IsBeat && a.pendingModifier != nil {
			a.modifier = *a.pendingModifier
			a.pendingModifier = nil
		}
		a.tickCounter = 0
		a.insertScheduled = false
		observers := a.observers
		a.mu.Unlock()
		for _, o := range observers {
			o.OnClockEvent(e)
		}
		return
	}

	a.tickCounter++
	divisor := a.divisor()
	emit := a.tickCounter%divisor == 0
	modifier := a.modifier

	// Track inter-tick spacing to schedule a DOUBLE-mode interpolated tick.
	if a.haveLastTick {
		a.rawIntervalUs = e.TimestampUs - a.lastTickAt
		a.haveInterval = true
	}
	a.lastTickAt = e.TimestampUs
	a.haveLastTick = true
	if modifier == Double && a.haveInterval {
		a.insertScheduled = true
		a.insertAtUs = e.TimestampUs + a.rawIntervalUs/2
		a.insertSource = e.Source
	}
	observers := a.observers
	a.mu.Unlock()

	if emit {
		for _, o := range observers {
			o.OnClockEvent(e)
		}
	}
}

func (a *Adapter) divisor() int {
	switch a.modifier {
	case Half:
		return 4
	case Double:
		return 1
	default:
		return 2
	}
}

// Update polls for a scheduled DOUBLE-mode interpolated tick. Call from the
// main loop.
func (a *Adapter) Update(nowUs uint32) {
	a.mu.Lock()
	if !a.insertScheduled || int32(nowUs-a.insertAtUs) < 0 {
		a.mu.Unlock()
		return
	}
	a.insertScheduled = false
	ev := clock.Event{Source: a.insertSource, TimestampUs: a.insertAtUs}
	observers := a.observers
	a.mu.Unlock()

	for _, o := range observers {
		o.OnClockEvent(ev)
	}
}
