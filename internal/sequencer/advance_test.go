package sequencer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestOnTempoEventIgnoredWhileStopped(t *testing.T) {
	e := New(defaultNotes(), 100)
	obs := &recordingNoteObserver{}
	e.AddNoteObserver(obs)

	e.OnTempoEvent(zeroTempoEvent())

	if len(obs.events) != 0 {
		t.Fatal("expected ticks to be ignored while the engine is stopped")
	}
}

type recordingTickObserver struct {
	ticks []uint64
}

func (r *recordingTickObserver) OnSequencerTick(tick uint64) { r.ticks = append(r.ticks, tick) }

func TestOnTempoEventNotifiesTickObservers(t *testing.T) {
	e := New(defaultNotes(), 100)
	tickObs := &recordingTickObserver{}
	e.AddTickObserver(tickObs)
	e.Start()

	e.OnTempoEvent(zeroTempoEvent())
	e.OnTempoEvent(zeroTempoEvent())

	if len(tickObs.ticks) != 2 || tickObs.ticks[0] != 1 || tickObs.ticks[1] != 2 {
		t.Fatalf("expected consecutive high-res tick counts, got %v", tickObs.ticks)
	}
}

func TestRetriggerSingleHasNoPerTickRetrigger(t *testing.T) {
	// Single retrigger mode gets its one extra note from the step-boundary
	// retrigger in advanceStep; emitRetriggers must never fire for it.
	e := New(defaultNotes(), 80)
	obs := &recordingNoteObserver{}
	e.AddNoteObserver(obs)
	e.ToggleStep(0, 0)
	e.SetRetriggerMode(0, RetriggerSingle)
	e.Start()

	e.OnTempoEvent(zeroTempoEvent())
	obs.events = nil

	// Walk through the whole step, including its mid-point, without ever
	// seeing a mid-step retrigger note.
	for i := 0; i < e.ticksPerMusicalStep; i++ {
		e.OnTempoEvent(zeroTempoEvent())
	}

	for _, ev := range obs.events {
		if ev.Velocity == DefaultRetriggerVelocity {
			t.Fatalf("expected no per-tick retrigger in Single mode, got %+v", ev)
		}
	}
}

func TestRetriggerDoubleFiresOnceAtHalfStep(t *testing.T) {
	// A default-step-velocity distinct from DefaultRetriggerVelocity keeps
	// the two kinds of note-on event distinguishable below.
	e := New(defaultNotes(), 80)
	obs := &recordingNoteObserver{}
	e.AddNoteObserver(obs)
	e.ToggleStep(0, 0)
	e.SetNote(0, 0, u8(36))
	e.SetRetriggerMode(0, RetriggerDouble)
	e.Start()

	// The first tick triggers advanceStep immediately (nextTriggerTickTarget
	// starts at 0), which seeds lastPlayedNote and resets retrigger progress.
	e.OnTempoEvent(zeroTempoEvent())
	obs.events = nil

	// The next tick lands at progress == ticksPerMusicalStep/2, the
	// configured mid-step retrigger point, one tick before the following
	// musical step boundary fires its own advanceStep.
	e.OnTempoEvent(zeroTempoEvent())

	retriggerCount := 0
	for _, ev := range obs.events {
		if ev.Velocity == DefaultRetriggerVelocity {
			retriggerCount++
		}
	}
	if retriggerCount != 1 {
		t.Fatalf("expected exactly one mid-step retrigger, got %d (events: %+v)", retriggerCount, obs.events)
	}
}

func TestBaseStepIndexFollowsRepeatWindowWhenActive(t *testing.T) {
	e := New(defaultNotes(), 100)
	// ActivateRepeat captures step 0 as the window origin.
	e.ActivateRepeat(2)

	e.currentStepCounter = 3
	idx := e.baseStepIndexLocked()
	if idx != 1 {
		t.Fatalf("expected the repeat window to wrap within its length (0,1,0,1,...), got %d", idx)
	}
}

func TestNextStepIntervalSwingSplitsTotalAcrossTwoSteps(t *testing.T) {
	e := New(defaultNotes(), 100)
	e.SetSwing(67, true)

	longer := e.nextStepInterval(1) // odd parity, delays-odd-step is true
	shorter := e.nextStepInterval(0)

	total := 2 * e.ticksPerMusicalStep
	if longer+shorter != total {
		t.Fatalf("expected the two swung intervals to sum to %d, got %d", total, longer+shorter)
	}
	if longer <= shorter {
		t.Fatalf("expected the configured delayed parity to receive the longer interval, got longer=%d shorter=%d", longer, shorter)
	}
}

func TestNextStepIntervalAlwaysSumsToTwiceTheStepLengthProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("swung intervals always sum to 2*ticksPerMusicalStep regardless of percent", prop.ForAll(
		func(percent int) bool {
			e := New(defaultNotes(), 100)
			e.SetSwing(percent, true)
			a := e.nextStepInterval(0)
			b := e.nextStepInterval(1)
			return a+b == 2*e.ticksPerMusicalStep && a >= 1 && b >= 1
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
