package sequencer

import (
	"sync"
)

// DefaultTicksPerMusicalStep is ticks_per_musical_step at the default
// configuration: RAW_PPQN(12) * DIVIDER / (MULTIPLIER * base_rate) = 3,
// i.e. 16th notes at 12 PPQN.
const DefaultTicksPerMusicalStep = 3

// DefaultRetriggerVelocity is used for retrigger-only NoteEvents.
const DefaultRetriggerVelocity = 100

// Engine is the Step Sequencer Engine (C5). It is the exclusive owner of the
// Sequencer data.
type Engine struct {
	mu sync.Mutex

	tracks [NumTracks]Track

	retriggerMode     [NumTracks]RetriggerMode
	retriggerProgress [NumTracks]int
	lastPlayedNote    [NumTracks]*uint8

	ticksPerMusicalStep int

	defaultStepVelocity uint8

	running bool

	highResTickCounter    uint64
	nextTriggerTickTarget uint64
	currentStepCounter    uint64

	repeatActive        bool
	repeatLength         int
	repeatActivationCtr  uint64
	repeatActivationStep uint8

	randomActive             bool
	randomProbabilityPercent int
	perTrackStepOffset       [NumTracks]int

	swingPercent       int
	swingDelaysOddStep bool

	noteObservers []NoteObserver
	tickObservers []TickObserver
}

// New creates an Engine with default tracks (default notes per track as
// given) and the default timebase/velocity configuration.
func New(defaultNotes [NumTracks]uint8, defaultStepVelocity uint8) *Engine {
	e := &Engine{
		ticksPerMusicalStep: DefaultTicksPerMusicalStep,
		defaultStepVelocity: defaultStepVelocity,
		swingPercent:        50,
		swingDelaysOddStep:  true,
	}
	for i := range e.tracks {
		e.tracks[i].DefaultNote = defaultNotes[i]
	}
	return e
}

func (e *Engine) AddNoteObserver(o NoteObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noteObservers = append(e.noteObservers, o)
}

func (e *Engine) AddTickObserver(o TickObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickObservers = append(e.tickObservers, o)
}

// --- Track/Step editing (silently ignores out-of-range indices) ---

func valid(track int) bool { return track >= 0 && track < NumTracks }
func validStep(step int) bool { return step >= 0 && step < NumSteps }

// ToggleStep flips a step's enabled flag.
func (e *Engine) ToggleStep(track, step int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !valid(track) || !validStep(step) {
		return
	}
	e.tracks[track].Steps[step].Enabled = !e.tracks[track].Steps[step].Enabled
}

// SetNote sets the note for a step; nil clears it to "no note".
func (e *Engine) SetNote(track, step int, note *uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !valid(track) || !validStep(step) {
		return
	}
	e.tracks[track].Steps[step].Note = note
}

// SetVelocity sets the velocity for a step; nil reverts to the engine's
// default step velocity (the one passed to New).
func (e *Engine) SetVelocity(track, step int, velocity *uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !valid(track) || !validStep(step) {
		return
	}
	e.tracks[track].Steps[step].Velocity = velocity
}

// ReadStep returns a copy of a step; the zero Step for an invalid index.
func (e *Engine) ReadStep(track, step int) Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !valid(track) || !validStep(step) {
		return Step{}
	}
	return e.tracks[track].Steps[step]
}

// SetRetriggerMode configures a track's retrigger behavior.
func (e *Engine) SetRetriggerMode(track int, mode RetriggerMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !valid(track) {
		return
	}
	e.retriggerMode[track] = mode
}

// SetSwing configures the swing parameters. Out-of-range
// percentages are clamped to the documented [50, 67] range.
func (e *Engine) SetSwing(percent int, delaysOddSteps bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if percent < 50 {
		percent = 50
	}
	if percent > 67 {
		percent = 67
	}
	e.swingPercent = percent
	e.swingDelaysOddStep = delaysOddSteps
}

// ActivateRandom turns on per-step probability and per-track step-offset
// randomization.
func (e *Engine) ActivateRandom(probabilityPercent int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.randomActive = true
	e.randomProbabilityPercent = probabilityPercent
}

// DeactivateRandom turns randomization off.
func (e *Engine) DeactivateRandom() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.randomActive = false
}

// ActivateRepeat captures the current position and begins looping a
// length-step window from it.
func (e *Engine) ActivateRepeat(length int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeatActive = true
	e.repeatLength = length
	e.repeatActivationCtr = e.currentStepCounter
	e.repeatActivationStep = e.currentStepIndexLocked()
}

// DeactivateRepeat resumes natural progression.
func (e *Engine) DeactivateRepeat() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeatActive = false
}

// SetRepeatLength adjusts the active loop length.
func (e *Engine) SetRepeatLength(length int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeatLength = length
}

// IsRunning reports whether the engine is registered and advancing.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start begins observing TempoEvents (called by the composition root after
// registering e as a tempo.Observer).
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = true
}

// Stop halts advancement, emits a note-off for every track with an
// unreleased note, and clears retrigger modes. It does not reset counters
// (pause/resume preserves position); only Reset does that.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	var pending []NoteEvent
	for i := range e.tracks {
		if e.lastPlayedNote[i] != nil {
			pending = append(pending, NoteEvent{TrackIndex: uint8(i), Note: *e.lastPlayedNote[i], Velocity: 0})
			e.lastPlayedNote[i] = nil
		}
		e.retriggerMode[i] = RetriggerOff
	}
	observers := e.noteObservers
	e.mu.Unlock()

	for _, ev := range pending {
		for _, o := range observers {
			o.OnNoteEvent(ev)
		}
	}
}

// Toggle flips running/stopped.
func (e *Engine) Toggle() {
	if e.IsRunning() {
		e.Stop()
	} else {
		e.Start()
	}
}

// Reset zeros counters and clears transient state (repeat, random, retrigger
// progress); it does not alter programmed steps.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.highResTickCounter = 0
	e.nextTriggerTickTarget = 0
	e.currentStepCounter = 0
	e.repeatActive = false
	e.randomActive = false
	for i := range e.retriggerProgress {
		e.retriggerProgress[i] = 0
	}
}

func (e *Engine) currentStepIndexLocked() uint8 {
	return uint8(e.currentStepCounter % NumSteps)
}

// CurrentStep reports the step index currently being played, for display
// wiring that highlights the playhead.
func (e *Engine) CurrentStep() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStepIndexLocked()
}
