package display

import (
	"strings"
	"testing"

	"github.com/datomusic/drum-firmware/internal/clock"
	"github.com/datomusic/drum-firmware/internal/sequencer"
)

func TestShowStepIgnoresOutOfRangeIndices(t *testing.T) {
	ts := NewTextSink()
	ts.ShowStep(99, 0, true)
	ts.ShowStep(0, 99, true)
	// must not panic; ASCII should show an entirely blank grid
	for _, line := range strings.Split(ts.ASCII(), "\n")[:sequencer.NumTracks] {
		if strings.Contains(line, "#") {
			t.Fatalf("expected no active steps, got line %q", line)
		}
	}
}

func TestASCIIReflectsActiveSteps(t *testing.T) {
	ts := NewTextSink()
	ts.ShowStep(0, 0, true)
	ts.ShowStep(2, 5, true)

	lines := strings.Split(ts.ASCII(), "\n")
	if lines[0][0] != '#' {
		t.Fatalf("expected track 0 step 0 active, got line %q", lines[0])
	}
	if lines[2][5] != '#' {
		t.Fatalf("expected track 2 step 5 active, got line %q", lines[2])
	}
}

func TestStatusLineReportsSourceProgressAndLastNote(t *testing.T) {
	ts := NewTextSink()
	ts.ShowClockSource(clock.SourceMIDI)
	ts.ShowTransferProgress(42)
	ts.ShowNote(sequencer.NoteEvent{TrackIndex: 1, Note: 60, Velocity: 100})

	status := ts.statusLine()
	if !strings.Contains(status, "SRC:midi") {
		t.Errorf("expected status to report the active source, got %q", status)
	}
	if !strings.Contains(status, "XFER:42%") {
		t.Errorf("expected status to report transfer progress, got %q", status)
	}
	if !strings.Contains(status, "t1n60") {
		t.Errorf("expected status to report the last note, got %q", status)
	}
}

func TestStatusLineShowsPlaceholderBeforeAnyNote(t *testing.T) {
	ts := NewTextSink()
	status := ts.statusLine()
	if !strings.Contains(status, "-") {
		t.Errorf("expected a placeholder for no note yet, got %q", status)
	}
}

func TestRenderProducesNonEmptyCanvasWhenStepsActive(t *testing.T) {
	ts := NewTextSink()
	ts.ShowStep(0, 0, true)
	ts.Render()

	canvas := ts.Canvas()
	lit := false
	for _, px := range canvas.Pix {
		if px != 0 {
			lit = true
			break
		}
	}
	if !lit {
		t.Fatal("expected at least one lit pixel after rendering an active step")
	}
}
