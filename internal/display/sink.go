// Package display defines the rendering boundary the sequencer, tempo
// handler, and transfer core draw through, plus a no-op hardware default and
// a text-mode sink for the simulator and tests. LED-level rendering itself
// stays out of scope; this package only tracks the state a renderer needs.
package display

import (
	"github.com/datomusic/drum-firmware/internal/clock"
	"github.com/datomusic/drum-firmware/internal/sequencer"
)

// Sink is the minimal set of state changes a display needs to reflect.
// Strategy (color, animation, brightness curve) lives entirely behind it.
type Sink interface {
	ShowStep(track, step uint8, on bool)
	ShowNote(sequencer.NoteEvent)
	ShowTransferProgress(percent uint8)
	ShowClockSource(clock.Source)
}

// NullSink discards every call. Hardware builds drive LEDs from a separate
// firmware path and wire this in as a placeholder.
type NullSink struct{}

func (NullSink) ShowStep(uint8, uint8, bool)          {}
func (NullSink) ShowNote(sequencer.NoteEvent)         {}
func (NullSink) ShowTransferProgress(uint8)           {}
func (NullSink) ShowClockSource(clock.Source)         {}
