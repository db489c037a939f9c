package display

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/datomusic/drum-firmware/internal/clock"
	"github.com/datomusic/drum-firmware/internal/sequencer"
)

const (
	cellSize     = 8
	statusHeight = 14
)

// TextSink is the simulator/test display: it rasterizes the 8x4 step grid
// and a status line into a small monochrome image.Gray, and also exposes an
// ASCII dump of the same state for test assertions.
type TextSink struct {
	mu sync.Mutex

	grid            [sequencer.NumTracks][sequencer.NumSteps]bool
	lastNote        sequencer.NoteEvent
	hasNote         bool
	transferPercent uint8
	source          clock.Source

	canvas *image.Gray
}

// NewTextSink creates an empty TextSink.
func NewTextSink() *TextSink {
	w := sequencer.NumSteps * cellSize
	h := sequencer.NumTracks*cellSize + statusHeight
	ts := &TextSink{canvas: image.NewGray(image.Rect(0, 0, w, h))}
	return ts
}

func (ts *TextSink) ShowStep(track, step uint8, on bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if int(track) >= sequencer.NumTracks || int(step) >= sequencer.NumSteps {
		return
	}
	ts.grid[track][step] = on
}

func (ts *TextSink) ShowNote(e sequencer.NoteEvent) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.lastNote = e
	ts.hasNote = true
}

func (ts *TextSink) ShowTransferProgress(percent uint8) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.transferPercent = percent
}

func (ts *TextSink) ShowClockSource(src clock.Source) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.source = src
}

// Render rasterizes the current state into the internal image.Gray canvas:
// a lit square per active step and a status line drawn with basicfont.
func (ts *TextSink) Render() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	black := &image.Uniform{C: color.Gray{Y: 0}}
	draw.Draw(ts.canvas, ts.canvas.Bounds(), black, image.Point{}, draw.Src)

	white := &image.Uniform{C: color.Gray{Y: 255}}
	for track := 0; track < sequencer.NumTracks; track++ {
		for step := 0; step < sequencer.NumSteps; step++ {
			if !ts.grid[track][step] {
				continue
			}
			r := image.Rect(step*cellSize, track*cellSize, step*cellSize+cellSize-1, track*cellSize+cellSize-1)
			draw.Draw(ts.canvas, r, white, image.Point{}, draw.Src)
		}
	}

	status := ts.statusLine()
	d := &font.Drawer{
		Dst:  ts.canvas,
		Src:  white,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(1, sequencer.NumTracks*cellSize+11),
	}
	d.DrawString(status)
}

func (ts *TextSink) statusLine() string {
	note := "-"
	if ts.hasNote {
		note = fmt.Sprintf("t%dn%d", ts.lastNote.TrackIndex, ts.lastNote.Note)
	}
	return fmt.Sprintf("SRC:%s XFER:%d%% %s", ts.source, ts.transferPercent, note)
}

// ASCII dumps the current grid and status line as text, one row per track,
// '#' for an active step and '.' for an inactive one, for use in test
// assertions without decoding pixels.
func (ts *TextSink) ASCII() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var b strings.Builder
	for track := 0; track < sequencer.NumTracks; track++ {
		for step := 0; step < sequencer.NumSteps; step++ {
			if ts.grid[track][step] {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString(ts.statusLine())
	return b.String()
}

// Canvas exposes the rasterized image for tests that want to inspect pixels
// directly.
func (ts *TextSink) Canvas() *image.Gray {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.canvas
}
