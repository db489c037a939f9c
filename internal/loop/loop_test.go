package loop

import (
	"testing"
	"time"
)

type fakeClock struct {
	now   time.Time
	nowUs uint32
}

func (f fakeClock) Now() time.Time { return f.now }
func (f fakeClock) NowUs() uint32  { return f.nowUs }

type callCounter struct {
	externalSync int
	autoSwitch   int
	speedUpdate  int
	processInput int
	drainOutput  int
	render       int
}

type fakeExternalSync struct{ c *callCounter }

func (f fakeExternalSync) Update(nowUs uint32) { f.c.externalSync++ }

type fakeAutoSwitcher struct{ c *callCounter }

func (f fakeAutoSwitcher) UpdateAutoSourceSwitching() { f.c.autoSwitch++ }

type fakeSpeedUpdater struct{ c *callCounter }

func (f fakeSpeedUpdater) Update(nowUs uint32) { f.c.speedUpdate++ }

type fakeMIDIProcessor struct{ c *callCounter }

func (f fakeMIDIProcessor) ProcessInputUntilEmpty(maxMessages int) int {
	f.c.processInput++
	return 0
}
func (f fakeMIDIProcessor) DrainOutput(now time.Time) { f.c.drainOutput++ }

type fakeDisplay struct{ c *callCounter }

func (f fakeDisplay) Render() { f.c.render++ }

func TestTickCallsEveryCollaboratorOnce(t *testing.T) {
	c := &callCounter{}
	coord := New(fakeClock{}, fakeExternalSync{c}, fakeAutoSwitcher{c}, fakeSpeedUpdater{c}, fakeMIDIProcessor{c}, fakeDisplay{c})

	coord.Tick()

	if c.externalSync != 1 || c.autoSwitch != 1 || c.speedUpdate != 1 || c.processInput != 1 || c.drainOutput != 1 || c.render != 1 {
		t.Fatalf("expected every collaborator invoked exactly once, got %+v", c)
	}
}

func TestTickSkipsNilCollaboratorsWithoutPanicking(t *testing.T) {
	coord := New(fakeClock{}, nil, nil, nil, nil, nil)
	coord.Tick() // must not panic
}

func TestTickRendersDisplayLastAfterMIDIDrain(t *testing.T) {
	var order []string
	coord := New(fakeClock{}, nil, nil, nil,
		orderedMIDI{func() { order = append(order, "midi") }},
		orderedDisplay{func() { order = append(order, "display") }},
	)

	coord.Tick()

	if len(order) != 2 || order[0] != "midi" || order[1] != "display" {
		t.Fatalf("expected MIDI drain before display render, got %v", order)
	}
}

type orderedMIDI struct{ fn func() }

func (o orderedMIDI) ProcessInputUntilEmpty(maxMessages int) int { o.fn(); return 0 }
func (o orderedMIDI) DrainOutput(now time.Time)                  {}

type orderedDisplay struct{ fn func() }

func (o orderedDisplay) Render() { o.fn() }

func TestRunIsIdempotentAndStopHalts(t *testing.T) {
	c := &callCounter{}
	coord := New(fakeClock{}, nil, nil, nil, nil, fakeDisplay{c})

	coord.Run(time.Millisecond)
	coord.Run(time.Millisecond) // must not spawn a second goroutine

	time.Sleep(20 * time.Millisecond)
	coord.Stop()
	coord.Stop() // must not panic on double-stop

	if c.render == 0 {
		t.Fatal("expected at least one tick to have rendered before Stop")
	}
}
