// Package app is the composition root: it wires the clock sources, router,
// speed adapter, tempo handler, sequencer engine, transfer subsystem, MIDI
// I/O coordinator, and event loop coordinator into one running system
// (parse args, init logger, construct collaborators, run).
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datomusic/drum-firmware/internal/applog"
	"github.com/datomusic/drum-firmware/internal/clock"
	"github.com/datomusic/drum-firmware/internal/config"
	"github.com/datomusic/drum-firmware/internal/display"
	"github.com/datomusic/drum-firmware/internal/hostsim"
	"github.com/datomusic/drum-firmware/internal/loop"
	"github.com/datomusic/drum-firmware/internal/midiio"
	"github.com/datomusic/drum-firmware/internal/partition"
	"github.com/datomusic/drum-firmware/internal/router"
	"github.com/datomusic/drum-firmware/internal/sequencer"
	"github.com/datomusic/drum-firmware/internal/soundrouter"
	"github.com/datomusic/drum-firmware/internal/speed"
	"github.com/datomusic/drum-firmware/internal/storage"
	"github.com/datomusic/drum-firmware/internal/tempo"
	"github.com/datomusic/drum-firmware/internal/transfer"
)

// flashSize is the simulated flash image size backing the two firmware
// partitions when no real hardware binding is supplied.
const flashSize = 2 * 1024 * 1024

// ErrHelpRequested is returned by New when -help was passed; usage has
// already been printed by config.ParseArgs, so the caller exits cleanly.
var ErrHelpRequested = errors.New("app: help requested")

// Application owns every long-lived component and the goroutines driving
// them.
type Application struct {
	cfg        *config.Config
	runtimeCfg *config.Store
	log        *slog.Logger

	internalClock *clock.InternalClock
	midiClock     *clock.MIDIClockProcessor
	externalSync  *clock.ExternalSyncInput
	router        *router.Router
	speedAdapter  *speed.Adapter
	tempoHandler  *tempo.Handler
	sequencer     *sequencer.Engine

	transport  *transfer.Transport
	xfer       *transferCoordinator
	midiCoord  *midiio.Coordinator
	loopCoord  *loop.Coordinator
	display    display.Sink
	voice      soundrouter.Voice
	lastSource clock.Source
}

// New constructs an Application from command-line args. SoundFont loading
// (and therefore audio) is optional: pass nil soundFontData for a silent
// voice (used by headless runs and tests).
func New(args []string, soundFontData []byte) (*Application, error) {
	cfg, err := config.ParseArgs(args)
	if err != nil {
		return nil, fmt.Errorf("app: parse args: %w", err)
	}
	if cfg.ShowHelp {
		return nil, ErrHelpRequested
	}
	if err := applog.Init(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("app: init logger: %w", err)
	}
	log := applog.Get()
	log.Info("starting", "headless", cfg.Headless, "bpm", applog.Count(int64(cfg.DefaultBPM)))

	runtimeCfg, err := config.NewStore(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("app: load runtime config: %w", err)
	}
	rc := runtimeCfg.Current()

	a := &Application{cfg: cfg, runtimeCfg: runtimeCfg, log: log}

	a.internalClock = clock.NewInternalClock(cfg.DefaultBPM)
	a.midiClock = clock.NewMIDIClockProcessor()
	a.externalSync = clock.NewExternalSyncInput(hostsim.NullPin{}, hostsim.NullPin{})

	a.router = router.New(a.internalClock, a.midiClock, a.externalSync, nil)
	a.internalClock.AddObserver(a.router)
	a.midiClock.AddObserver(a.router)
	a.externalSync.AddObserver(a.router)

	a.speedAdapter = speed.New()
	a.router.AddObserver(a.speedAdapter)

	clockOutAdapter := &midiClockOutAdapter{}
	a.tempoHandler = tempo.New(clockOutAdapter, false)
	a.speedAdapter.AddObserver(a.tempoHandler)

	defaultNotes := [sequencer.NumTracks]uint8{36, 38, 42, 46}
	a.sequencer = sequencer.New(defaultNotes, rc.DefaultStepVelocity)
	a.sequencer.SetSwing(int(rc.SwingPercent), rc.SwingDelaysOdd)
	a.tempoHandler.AddObserver(a.sequencer)

	if cfg.Headless || soundFontData == nil {
		a.voice = soundrouter.NullVoice{}
	} else {
		v, err := soundrouter.NewMeltysynthVoice(soundFontData)
		if err != nil {
			return nil, fmt.Errorf("app: load voice: %w", err)
		}
		a.voice = v
	}

	if cfg.Headless {
		a.display = display.NullSink{}
	} else {
		a.display = display.NewTextSink()
	}
	a.sequencer.AddNoteObserver(noteObserverFunc(a.dispatchNoteEvent))

	root, err := storage.NewRoot("./data")
	if err != nil {
		return nil, fmt.Errorf("app: init storage root: %w", err)
	}

	flash := hostsim.NewMemFlash(flashSize)
	table := hostsim.NewStaticPartitionTable(flashSize)
	xip := hostsim.FixedXIP{Offset: table.Regions[0].Offset}
	committer := hostsim.LogCommitter{Log: log.Info}
	mgr := partition.New(table, xip, committer)
	flashWriter := partition.NewFlashWriter(flash)

	a.transport = transfer.NewTransport(slogTransferLogger{log})
	a.xfer = newTransferCoordinator(a.transport, root, mgr, flashWriter, rc.SysExDeviceID, runtimeCfg, log)

	midiCfg := midiio.Config{InputChannel: rc.MIDIInputChannel, IgnoreNoteOff: rc.IgnoreMIDINoteOff}
	noteRouter := &voiceNoteRouter{voice: a.voice}
	rtSink := &realtimeAdapter{midiClock: a.midiClock, tempo: a.tempoHandler}
	a.midiCoord = midiio.New(midiCfg, noteRouter, a.xfer, rtSink, a.xfer, hostsim.NullTransport{}, hostsim.NullTransport{})
	clockOutAdapter.coord = a.midiCoord
	a.xfer.egress = a.midiCoord.EnqueueEgress

	a.loopCoord = loop.New(
		wallClock{},
		a.externalSync,
		&autoSwitchAdapter{router: a.router, tempo: a.tempoHandler, app: a},
		a.speedAdapter,
		a.midiCoord,
		renderAdapter{app: a},
	)

	return a, nil
}

// Run starts the internal clock and the cooperative event loop, then blocks
// until stop is signaled.
func (a *Application) Run(stop <-chan struct{}) {
	a.internalClock.Start()
	defer a.internalClock.Stop()

	a.router.SetClockSource(clock.SourceInternal)
	a.tempoHandler.SetActiveSource(clock.SourceInternal)
	a.sequencer.Start()
	a.tempoHandler.Play()

	a.loopCoord.Run(2 * time.Millisecond)
	defer a.loopCoord.Stop()

	<-stop
	a.log.Info("stopping")
}

// dispatchNoteEvent forwards a sequencer NoteEvent to both the voice and the
// display; the composition root, not the sequencer itself, owns
// cross-cutting concerns like this.
func (a *Application) dispatchNoteEvent(e sequencer.NoteEvent) {
	if e.Velocity == 0 {
		a.voice.NoteOff(e.TrackIndex, e.Note)
	} else {
		a.voice.NoteOn(e.TrackIndex, e.Note, e.Velocity)
	}
	a.display.ShowNote(e)
	a.display.ShowStep(e.TrackIndex, a.sequencer.CurrentStep(), e.Velocity != 0)
}

type noteObserverFunc func(sequencer.NoteEvent)

func (f noteObserverFunc) OnNoteEvent(e sequencer.NoteEvent) { f(e) }

// wallClock implements loop.Clock over the real system clock.
type wallClock struct{}

var processStart = realNow()

func realNow() time.Time { return time.Now() }

func (wallClock) Now() time.Time { return time.Now() }
func (wallClock) NowUs() uint32  { return uint32(time.Since(processStart).Microseconds()) }

// autoSwitchAdapter runs the router's auto-switch policy and, when the
// active source changes, propagates the change to the Tempo Handler's
// SetActiveSource and the display.
type autoSwitchAdapter struct {
	router *router.Router
	tempo  *tempo.Handler
	app    *Application
}

func (s *autoSwitchAdapter) UpdateAutoSourceSwitching() {
	s.router.UpdateAutoSourceSwitching()
	active := s.router.ActiveSource()
	if active != s.app.lastSource {
		s.app.lastSource = active
		s.tempo.SetActiveSource(active)
		s.app.display.ShowClockSource(active)
	}
}

// renderAdapter implements loop.DisplayRenderer over whatever Sink the
// composition root attached.
type renderAdapter struct{ app *Application }

func (r renderAdapter) Render() {
	if ts, ok := r.app.display.(*display.TextSink); ok {
		ts.Render()
	}
}

// midiClockOutAdapter implements tempo.MIDIClockOut by enqueueing a realtime
// clock byte onto the MIDI I/O Coordinator's egress queue.
type midiClockOutAdapter struct {
	coord *midiio.Coordinator
}

func (m *midiClockOutAdapter) SendClockByte() {
	if m.coord != nil {
		m.coord.EnqueueEgress(midiio.EncodeRealtime(midiio.RealtimeClock))
	}
}

// realtimeAdapter implements midiio.RealtimeSink, routing the clock byte to
// the MIDI Clock Processor (C1) and Start/Continue/Stop to playback state.
type realtimeAdapter struct {
	midiClock *clock.MIDIClockProcessor
	tempo     *tempo.Handler
}

func (r *realtimeAdapter) HandleRealtime(status byte) {
	switch status {
	case midiio.RealtimeClock:
		r.midiClock.OnMIDIClockTickReceived()
	case midiio.RealtimeStart, midiio.RealtimeContinue:
		r.tempo.Play()
	case midiio.RealtimeStop:
		r.tempo.StopPlayback()
	}
}

// voiceNoteRouter implements midiio.NoteRouter by forwarding live MIDI
// input straight to the voice on track 0, the "Message Router" external
// collaborator simplified to its minimal useful default.
type voiceNoteRouter struct {
	voice soundrouter.Voice
}

func (v *voiceNoteRouter) HandleNoteOn(_, note, velocity uint8) {
	v.voice.NoteOn(0, note, velocity)
}

func (v *voiceNoteRouter) HandleNoteOff(_, note uint8) {
	v.voice.NoteOff(0, note)
}

func (v *voiceNoteRouter) HandleControlChange(_, controller, value uint8) {
	v.voice.SetParameter(0, ccName(controller), float32(value)/127)
}

func ccName(cc uint8) string {
	switch cc {
	case 7:
		return "volume"
	case 10:
		return "pan"
	case 74:
		return "cutoff"
	case 71:
		return "resonance"
	default:
		return fmt.Sprintf("cc%d", cc)
	}
}

// slogTransferLogger adapts *slog.Logger to transfer.Logger.
type slogTransferLogger struct{ log *slog.Logger }

func (l slogTransferLogger) Printf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}
