package sequencer

import (
	"math/rand"

	"github.com/datomusic/drum-firmware/internal/tempo"
)

// OnTempoEvent implements tempo.Observer. Each accepted TempoEvent is one
// high-resolution tick of the 12 PPQN timebase.
func (e *Engine) OnTempoEvent(_ tempo.Event) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}

	e.highResTickCounter++
	tick := e.highResTickCounter
	tickObservers := e.tickObservers
	e.mu.Unlock()

	for _, o := range tickObservers {
		o.OnSequencerTick(tick)
	}

	e.emitRetriggers()

	e.mu.Lock()
	reached := e.highResTickCounter >= e.nextTriggerTickTarget
	e.mu.Unlock()
	if reached {
		e.advanceStep()
	}
}

// emitRetriggers fires once per tick: a track in Double retrigger mode emits
// one extra mid-step NoteEvent when its progress counter reaches
// ticksPerStep/2. Single mode has no per-tick retrigger; its one extra note
// comes from the step-boundary retrigger in advanceStep.
func (e *Engine) emitRetriggers() {
	e.mu.Lock()
	ticksPerStep := e.ticksPerMusicalStep
	var events []NoteEvent
	for i := 0; i < NumTracks; i++ {
		mode := e.retriggerMode[i]
		if mode == RetriggerOff {
			continue
		}
		e.retriggerProgress[i]++
		progress := e.retriggerProgress[i]
		if e.lastPlayedNote[i] == nil {
			continue
		}
		note := *e.lastPlayedNote[i]

		if mode == RetriggerDouble && progress == ticksPerStep/2 {
			events = append(events, NoteEvent{TrackIndex: uint8(i), Note: note, Velocity: DefaultRetriggerVelocity})
		}
	}
	observers := e.noteObservers
	e.mu.Unlock()

	for _, ev := range events {
		for _, o := range observers {
			o.OnNoteEvent(ev)
		}
	}
}

// advanceStep fires once per musical step: compute each track's played
// step, emit note-off/note-on/retrigger NoteEvents, and schedule the next
// trigger target applying swing.
func (e *Engine) advanceStep() {
	e.mu.Lock()

	baseIndex := e.baseStepIndexLocked()

	type play struct {
		track       int
		off         *uint8
		onNote      *uint8
		onVelocity  uint8
		retrigger   bool
	}
	var plays []play

	for i := 0; i < NumTracks; i++ {
		stepIdx := baseIndex
		if e.randomActive {
			stepIdx = (stepIdx + NumSteps + e.perTrackStepOffset[i]) % NumSteps
		}
		step := e.tracks[i].Steps[stepIdx]

		enabled := step.Enabled
		if e.randomActive && e.randomProbabilityPercent > 0 {
			if rand.Intn(100) < e.randomProbabilityPercent {
				enabled = !enabled
			}
		}

		p := play{track: i}
		if e.lastPlayedNote[i] != nil {
			n := *e.lastPlayedNote[i]
			p.off = &n
		}
		if enabled && step.Note != nil {
			n := *step.Note
			p.onNote = &n
			if step.Velocity != nil {
				p.onVelocity = *step.Velocity
			} else {
				p.onVelocity = e.defaultStepVelocity
			}
			e.lastPlayedNote[i] = &n
		} else {
			e.lastPlayedNote[i] = nil
		}
		p.retrigger = e.retriggerMode[i] != RetriggerOff && p.onNote != nil
		plays = append(plays, p)

		e.retriggerProgress[i] = 0
	}

	if e.randomActive {
		for i := 0; i < NumTracks; i++ {
			e.perTrackStepOffset[i] = rand.Intn(NumSteps+1) - NumSteps/2
		}
	}

	e.currentStepCounter++
	// The gap being scheduled now leads into the step we just advanced to;
	// swing_delays_odd_steps lengthens the wait before an odd-parity step.
	nextParity := int(e.currentStepCounter % 2)
	interval := e.nextStepInterval(nextParity)
	e.nextTriggerTickTarget += uint64(interval)

	observers := e.noteObservers
	e.mu.Unlock()

	for _, p := range plays {
		if p.off != nil {
			for _, o := range observers {
				o.OnNoteEvent(NoteEvent{TrackIndex: uint8(p.track), Note: *p.off, Velocity: 0})
			}
		}
		if p.onNote != nil {
			for _, o := range observers {
				o.OnNoteEvent(NoteEvent{TrackIndex: uint8(p.track), Note: *p.onNote, Velocity: p.onVelocity})
			}
			if p.retrigger {
				for _, o := range observers {
					o.OnNoteEvent(NoteEvent{TrackIndex: uint8(p.track), Note: *p.onNote, Velocity: DefaultRetriggerVelocity})
				}
			}
		}
	}
}

// baseStepIndexLocked computes the base step index (before any per-track
// random offset): the repeat window if active, else natural progression.
// Caller must hold e.mu.
func (e *Engine) baseStepIndexLocked() int {
	if e.repeatActive && e.repeatLength > 0 {
		delta := e.currentStepCounter - e.repeatActivationCtr
		return (int(e.repeatActivationStep) + int(delta%uint64(e.repeatLength))) % NumSteps
	}
	return int(e.currentStepCounter % NumSteps)
}

// nextStepInterval implements the swing algorithm: over two
// consecutive steps the total duration is 2*ticksPerStep, split unevenly per
// swingPercent and swingDelaysOddStep. parity is the step-counter parity of
// the step the computed gap leads into (0 = even, 1 = odd); "delays odd
// steps" means the wait before an odd-parity step is the longer one.
func (e *Engine) nextStepInterval(parity int) int {
	total := 2 * e.ticksPerMusicalStep
	longer := (total*e.swingPercent + 50) / 100 // round half up
	if longer < 1 {
		longer = 1
	}
	if longer > total-1 {
		longer = total - 1
	}
	shorter := total - longer
	if shorter < 1 {
		shorter = 1
		longer = total - shorter
	}

	isOdd := parity == 1
	if isOdd == e.swingDelaysOddStep {
		return longer
	}
	return shorter
}
