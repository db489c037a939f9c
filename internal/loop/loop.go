// Package loop implements the Event Loop Coordinator: the single-threaded
// cooperative main loop driving every per-iteration polling path.
package loop

import "time"

// ExternalSync is the update(now) contract of the External Sync Input.
type ExternalSync interface {
	Update(nowUs uint32)
}

// AutoSwitcher is the Clock Router's auto-source-switching update hook.
type AutoSwitcher interface {
	UpdateAutoSourceSwitching()
}

// SpeedUpdater is the Speed Adapter's update(now) hook for firing scheduled
// DOUBLE-mode interpolated ticks.
type SpeedUpdater interface {
	Update(nowUs uint32)
}

// MIDIProcessor processes queued ingress and drains queued egress.
type MIDIProcessor interface {
	ProcessInputUntilEmpty(maxMessages int) int
	DrainOutput(now time.Time)
}

// DisplayRenderer renders the current display state; called once per
// iteration, last, after everything else has had a chance to update.
type DisplayRenderer interface {
	Render()
}

// MaxMIDIMessagesPerIteration bounds ingress drain per loop iteration so a
// MIDI burst cannot starve timing-sensitive work.
const MaxMIDIMessagesPerIteration = 16

// Clock supplies the current time in both wall-clock and microsecond-since-
// start form, matching the two time representations used across C1-C3.
type Clock interface {
	Now() time.Time
	NowUs() uint32
}

// Coordinator runs the per-iteration contract below. Clock is required;
// every other collaborator is optional, and a nil collaborator's step is
// skipped, so the loop can be exercised incrementally in tests.
type Coordinator struct {
	Clock        Clock
	ExternalSync ExternalSync
	AutoSwitch   AutoSwitcher
	Speed        SpeedUpdater
	MIDI         MIDIProcessor
	Display      DisplayRenderer

	running bool
	stopCh  chan struct{}
}

// New creates a Coordinator from its collaborators.
func New(clock Clock, sync ExternalSync, autoSwitch AutoSwitcher, speed SpeedUpdater, midi MIDIProcessor, display DisplayRenderer) *Coordinator {
	return &Coordinator{
		Clock:        clock,
		ExternalSync: sync,
		AutoSwitch:   autoSwitch,
		Speed:        speed,
		MIDI:         midi,
		Display:      display,
	}
}

// Tick runs exactly one iteration: read time, update external sync, run
// auto source switching, update speed, process MIDI in and out, then
// render. It never blocks on I/O.
func (c *Coordinator) Tick() {
	now := c.Clock.Now()
	nowUs := c.Clock.NowUs()

	if c.ExternalSync != nil {
		c.ExternalSync.Update(nowUs)
	}
	if c.AutoSwitch != nil {
		c.AutoSwitch.UpdateAutoSourceSwitching()
	}
	if c.Speed != nil {
		c.Speed.Update(nowUs)
	}
	if c.MIDI != nil {
		c.MIDI.ProcessInputUntilEmpty(MaxMIDIMessagesPerIteration)
		c.MIDI.DrainOutput(now)
	}
	// Sequencer retrigger sub-ticks are driven from the tempo handler's
	// TempoEvent observer path, not from here.
	if c.Display != nil {
		c.Display.Render()
	}
}

// Run drives Tick in a goroutine at the given polling interval until Stop is
// called. interval has no bearing on sequencer timing, which is driven
// entirely by the timer-ISR goroutine and MIDI callbacks; it only bounds how
// promptly the cooperative loop notices their results.
func (c *Coordinator) Run(interval time.Duration) {
	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Tick()
			}
		}
	}()
}

// Stop halts the Run goroutine, if running.
func (c *Coordinator) Stop() {
	if !c.running {
		return
	}
	close(c.stopCh)
	c.running = false
}
