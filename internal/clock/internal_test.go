package clock

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type recordingObserver struct {
	events []Event
}

func (r *recordingObserver) OnClockEvent(e Event) { r.events = append(r.events, e) }

func TestInternalClockTicksAtConfiguredRate(t *testing.T) {
	c := NewInternalClock(600) // 600 BPM * 24 PPQN / 60 = 240 Hz -> ~4.16ms interval
	obs := &recordingObserver{}
	c.AddObserver(obs)

	c.Start()
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	if len(obs.events) == 0 {
		t.Fatal("expected at least one tick before stop")
	}
	for _, e := range obs.events {
		if e.Source != SourceInternal {
			t.Errorf("tick reported wrong source: %v", e.Source)
		}
	}
}

func TestInternalClockStartStopIdempotent(t *testing.T) {
	c := NewInternalClock(120)
	c.Start()
	c.Start() // must not deadlock or spawn a second goroutine
	c.Stop()
	c.Stop() // must not panic on double-stop
}

func TestIntervalForBPMProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("higher BPM always yields a shorter or equal interval", prop.ForAll(
		func(bpm float64) bool {
			a := intervalForBPM(bpm)
			b := intervalForBPM(bpm * 2)
			return b <= a
		},
		gen.Float64Range(1, 1000),
	))

	properties.TestingRun(t)
}

func TestMIDIClockProcessorStaleness(t *testing.T) {
	now := time.Now()
	p := NewMIDIClockProcessor()
	p.now = func() time.Time { return now }

	obs := &recordingObserver{}
	p.AddObserver(obs)

	p.OnMIDIClockTickReceived()
	if !p.IsActive() {
		t.Fatal("expected active immediately after a tick")
	}
	if len(obs.events) != 2 {
		t.Fatalf("expected a resync + tick event on the first-ever tick, got %d", len(obs.events))
	}
	if !obs.events[0].IsResync {
		t.Error("first event after the first-ever tick must be a resync")
	}

	now = now.Add(staleAfter + time.Millisecond)
	if p.IsActive() {
		t.Fatal("expected stale after exceeding the staleness window")
	}

	obs.events = nil
	p.OnMIDIClockTickReceived()
	if !obs.events[0].IsResync {
		t.Error("a tick arriving after a stale gap must resync")
	}
}

func TestMIDIClockProcessorReset(t *testing.T) {
	p := NewMIDIClockProcessor()
	p.OnMIDIClockTickReceived()
	if !p.IsActive() {
		t.Fatal("expected active after a tick")
	}
	p.Reset()
	if p.IsActive() {
		t.Fatal("expected inactive after Reset")
	}
}
