// Package router implements the Clock Router (C2): selects exactly one raw
// clock source and forwards its events downstream, applying an
// auto-switching arbitration policy.
package router

import (
	"sync"

	"github.com/datomusic/drum-firmware/internal/clock"
)

// InternalSource is the subset of InternalClock the router needs.
type InternalSource interface {
	Start()
	Stop()
}

// MIDISource is the subset of MIDIClockProcessor the router needs.
type MIDISource interface {
	IsActive() bool
	Reset()
}

// ExternalSyncSource is the subset of ExternalSyncInput the router needs.
type ExternalSyncSource interface {
	IsCableConnected() bool
}

// EchoEnabler toggles MIDI-clock-out echo mirroring of the received MIDI
// clock byte stream.
type EchoEnabler interface {
	SetForwardEcho(enabled bool)
}

// Router selects one of {Internal, Midi, ExternalSync} and forwards its
// ClockEvents unchanged to its own observers.
type Router struct {
	mu sync.Mutex

	internal InternalSource
	midi     MIDISource
	external ExternalSyncSource
	echo     EchoEnabler

	active         clock.Source
	observers      []clock.Observer
	everAttached   bool
}

// New wires the three raw sources. echo may be nil if no MIDI-out exists.
func New(internal InternalSource, midi MIDISource, external ExternalSyncSource, echo EchoEnabler) *Router {
	return &Router{internal: internal, midi: midi, external: external, echo: echo}
}

func (r *Router) AddObserver(o clock.Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// OnClockEvent implements clock.Observer: it is registered with all three raw
// sources, and only forwards events from whichever one is currently active.
func (r *Router) OnClockEvent(e clock.Event) {
	r.mu.Lock()
	active := r.active
	attached := r.everAttached
	observers := r.observers
	r.mu.Unlock()

	if !attached || e.Source != active {
		return
	}
	for _, o := range observers {
		o.OnClockEvent(e)
	}
}

// ActiveSource reports the currently selected source.
func (r *Router) ActiveSource() clock.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SetClockSource detaches the previous source's side effects and attaches
// the new one. Idempotent when src is already active.
func (r *Router) SetClockSource(src clock.Source) {
	r.mu.Lock()
	if r.everAttached && r.active == src {
		r.mu.Unlock()
		return
	}
	prev := r.active
	wasAttached := r.everAttached
	r.active = src
	r.everAttached = true
	r.mu.Unlock()

	if wasAttached {
		r.detach(prev)
	}
	r.attach(src)
}

func (r *Router) detach(src clock.Source) {
	switch src {
	case clock.SourceInternal:
		if r.internal != nil {
			r.internal.Stop()
		}
	case clock.SourceMIDI:
		if r.echo != nil {
			r.echo.SetForwardEcho(false)
		}
	}
}

func (r *Router) attach(src clock.Source) {
	switch src {
	case clock.SourceInternal:
		if r.internal != nil {
			r.internal.Start()
		}
	case clock.SourceMIDI:
		if r.echo != nil {
			r.echo.SetForwardEcho(true)
		}
		if r.midi != nil {
			r.midi.Reset()
		}
	case clock.SourceExternalSync:
		// Observed directly; nothing to arm.
	}
}

// UpdateAutoSourceSwitching implements the arbitration policy: external sync
// wins when its cable is connected, else an active MIDI clock wins, else
// Internal is only chosen when coming from ExternalSync or when no source
// has been selected yet (never a direct Midi->Internal fallback, to avoid
// chattering between the two).
func (r *Router) UpdateAutoSourceSwitching() {
	if r.external != nil && r.external.IsCableConnected() {
		r.SetClockSource(clock.SourceExternalSync)
		return
	}
	if r.midi != nil && r.midi.IsActive() {
		r.SetClockSource(clock.SourceMIDI)
		return
	}
	r.mu.Lock()
	active := r.active
	attached := r.everAttached
	r.mu.Unlock()
	if !attached {
		r.SetClockSource(clock.SourceInternal)
		return
	}
	if active == clock.SourceExternalSync {
		r.SetClockSource(clock.SourceInternal)
	}
	// active == Midi or Internal: stay put (no Midi->Internal auto-fallback).
}
