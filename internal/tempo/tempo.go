// Package tempo implements the Tempo Handler (C4): bridges the scaled
// 12 PPQN stream into musically-annotated TempoEvents, applying source
// arbitration policy, playback state, and speed-change alignment.
package tempo

import (
	"math"
	"sync"

	"github.com/datomusic/drum-firmware/internal/clock"
	"github.com/datomusic/drum-firmware/internal/speed"
)

// PlaybackState is Stopped or Playing.
type PlaybackState int

const (
	Stopped PlaybackState = iota
	Playing
)

// Event is a phase-annotated tempo tick.
type Event struct {
	TickCount uint64
	Phase12   uint8
	IsResync  bool
}

// Observer receives tempo events.
type Observer interface {
	OnTempoEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnTempoEvent(e Event) { f(e) }

// MIDIClockOut is the sink for the outbound MIDI realtime clock byte,
// emitted while Internal is the active source and playback is running.
type MIDIClockOut interface {
	SendClockByte()
}

// Handler implements clock.Observer and is registered on the Speed
// Adapter's output.
type Handler struct {
	mu sync.Mutex

	observers       []Observer
	midiOut         MIDIClockOut
	sendWhenStopped bool

	playback PlaybackState

	activeSource       clock.Source
	waitingForDownbeat bool

	pendingSpeedModifier *speed.Modifier

	tickCount uint64
	phase12   uint8
}

// New creates a Handler. sendWhenStopped mirrors the send-clock-when-stopped
// configuration flag.
func New(midiOut MIDIClockOut, sendWhenStopped bool) *Handler {
	return &Handler{midiOut: midiOut, sendWhenStopped: sendWhenStopped}
}

func (h *Handler) AddObserver(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

// Play transitions to Playing.
func (h *Handler) Play() {
	h.mu.Lock()
	h.playback = Playing
	h.mu.Unlock()
}

// StopPlayback transitions to Stopped.
func (h *Handler) StopPlayback() {
	h.mu.Lock()
	h.playback = Stopped
	h.mu.Unlock()
}

// PlaybackState returns the current playback state.
func (h *Handler) PlaybackState() PlaybackState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playback
}

// Phase returns the current phase_12 value.
func (h *Handler) Phase() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase12
}

// SetActiveSource is called by the composition root whenever the Clock
// Router's active source changes (manual or auto-switched). It clears the
// waiting-for-speed-change state and resets phase, and re-arms
// waiting-for-downbeat when the new source is ExternalSync.
func (h *Handler) SetActiveSource(src clock.Source) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activeSource = src
	h.waitingForDownbeat = src == clock.SourceExternalSync
	h.pendingSpeedModifier = nil
	h.phase12 = 0
}

// RequestSpeedModifier forwards the change to adapter and, unless it
// originates from the internal source (applied immediately, no beat
// gating), stores it so the next is_beat event realigns phase_12.
func (h *Handler) RequestSpeedModifier(adapter *speed.Adapter, m speed.Modifier, fromInternal bool) {
	adapter.SetModifier(m, fromInternal)
	h.mu.Lock()
	defer h.mu.Unlock()
	if fromInternal {
		h.pendingSpeedModifier = nil
		return
	}
	mm := m
	h.pendingSpeedModifier = &mm
}

// TriggerManualSync immediately realigns to phase 0 and emits a resync
// TempoEvent, regardless of playback state or current source (e.g. a user
// PLAY press).
func (h *Handler) TriggerManualSync() {
	h.mu.Lock()
	h.phase12 = 0
	h.waitingForDownbeat = false
	h.tickCount++
	ev := Event{TickCount: h.tickCount, Phase12: 0, IsResync: true}
	observers := h.observers
	h.mu.Unlock()

	for _, o := range observers {
		o.OnTempoEvent(ev)
	}
}

// OnClockEvent implements clock.Observer, consuming the 12 PPQN stream
// produced by the Speed Adapter.
func (h *Handler) OnClockEvent(e clock.Event) {
	h.mu.Lock()

	if e.IsResync {
		h.phase12 = 0
		h.tickCount++
		ev := Event{TickCount: h.tickCount, Phase12: 0, IsResync: true}
		observers := h.observers
		h.mu.Unlock()
		for _, o := range observers {
			o.OnTempoEvent(ev)
		}
		return
	}

	if e.IsBeat {
		if h.pendingSpeedModifier != nil {
			h.phase12 = alignPhase(h.phase12, *h.pendingSpeedModifier)
			h.pendingSpeedModifier = nil
		} else {
			h.phase12 = 0
		}
		h.waitingForDownbeat = false
		h.tickCount++
		ev := Event{TickCount: h.tickCount, Phase12: h.phase12}
		observers := h.observers
		h.mu.Unlock()
		for _, o := range observers {
			o.OnTempoEvent(ev)
		}
		return
	}

	if e.Source == clock.SourceExternalSync && h.waitingForDownbeat {
		h.mu.Unlock()
		return
	}

	h.phase12 = (h.phase12 + 1) % 12
	h.tickCount++
	playback := h.playback
	ev := Event{TickCount: h.tickCount, Phase12: h.phase12}
	observers := h.observers
	source := e.Source
	h.mu.Unlock()

	for _, o := range observers {
		o.OnTempoEvent(ev)
	}

	if source == clock.SourceInternal && h.midiOut != nil {
		if playback == Playing || h.sendWhenStopped {
			h.midiOut.SendClockByte()
		}
	}
}

// alignPhase implements the post-speed-change realignment rules: NORMAL
// rounds to the nearest multiple of 3 (the quarter-of-beat grid at 12 PPQN),
// HALF snaps to the coarser grid's origin, and DOUBLE nudges an odd phase to
// the next even one.
func alignPhase(current uint8, m speed.Modifier) uint8 {
	switch m {
	case speed.Half:
		return 0
	case speed.Double:
		if current%2 != 0 {
			return (current + 1) % 12
		}
		return current
	default: // Normal
		nearest := int(math.Round(float64(current)/3)) * 3
		return uint8(nearest % 12)
	}
}
