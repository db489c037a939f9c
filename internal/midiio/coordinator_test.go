package midiio

import (
	"testing"
	"time"
)

type recordingRouter struct {
	noteOns  [][3]uint8
	noteOffs [][2]uint8
	ccs      [][3]uint8
}

func (r *recordingRouter) HandleNoteOn(channel, note, velocity uint8) {
	r.noteOns = append(r.noteOns, [3]uint8{channel, note, velocity})
}
func (r *recordingRouter) HandleNoteOff(channel, note uint8) {
	r.noteOffs = append(r.noteOffs, [2]uint8{channel, note})
}
func (r *recordingRouter) HandleControlChange(channel, controller, value uint8) {
	r.ccs = append(r.ccs, [3]uint8{channel, controller, value})
}

type recordingSysEx struct {
	messages [][]byte
}

func (s *recordingSysEx) HandleSysEx(raw []byte) { s.messages = append(s.messages, raw) }

type recordingRealtime struct {
	statuses []byte
}

func (r *recordingRealtime) HandleRealtime(status byte) { r.statuses = append(r.statuses, status) }

type fixedBusy struct{ busy bool }

func (f fixedBusy) Busy() bool { return f.busy }

type fakeTransport struct {
	writes  [][]byte
	accept  bool
}

func (f *fakeTransport) WriteNonBlocking(data []byte) bool {
	f.writes = append(f.writes, append([]byte(nil), data...))
	return f.accept
}

func newCoordinator(cfg Config, busy TransferBusy) (*Coordinator, *recordingRouter, *recordingSysEx, *recordingRealtime, *fakeTransport, *fakeTransport) {
	router := &recordingRouter{}
	sysex := &recordingSysEx{}
	rt := &recordingRealtime{}
	usb := &fakeTransport{accept: true}
	uart := &fakeTransport{accept: true}
	c := New(cfg, router, sysex, rt, busy, usb, uart)
	return c, router, sysex, rt, usb, uart
}

func TestProcessInputDispatchesNoteOnForMatchingChannel(t *testing.T) {
	c, router, _, _, _, _ := newCoordinator(Config{InputChannel: 2}, nil)
	c.EnqueueIngress([]byte{0x92, 60, 100})

	if !c.ProcessInput() {
		t.Fatal("expected a queued message to be available")
	}
	if len(router.noteOns) != 1 || router.noteOns[0] != [3]uint8{2, 60, 100} {
		t.Fatalf("expected note-on dispatched to the router, got %+v", router.noteOns)
	}
}

func TestProcessInputDropsMessagesOnNonMatchingChannel(t *testing.T) {
	c, router, _, _, _, _ := newCoordinator(Config{InputChannel: 2}, nil)
	c.EnqueueIngress([]byte{0x90, 60, 100}) // channel 0

	c.ProcessInput()
	if len(router.noteOns) != 0 {
		t.Fatal("expected a message on a non-matching channel to be dropped")
	}
}

func TestProcessInputTreatsZeroVelocityNoteOnAsNoteOffUnlessIgnored(t *testing.T) {
	c, router, _, _, _, _ := newCoordinator(Config{InputChannel: 0, IgnoreNoteOff: false}, nil)
	c.EnqueueIngress([]byte{0x90, 60, 0})

	c.ProcessInput()
	if len(router.noteOffs) != 1 || len(router.noteOns) != 0 {
		t.Fatalf("expected zero-velocity note-on to route as note-off, got offs=%v ons=%v", router.noteOffs, router.noteOns)
	}
}

func TestProcessInputRoutesSysExRegardlessOfChannelFilter(t *testing.T) {
	c, _, sysex, _, _, _ := newCoordinator(Config{InputChannel: 5}, nil)
	c.EnqueueIngress([]byte{0xF0, 0x7E, 0x00, 0xF7})

	c.ProcessInput()
	if len(sysex.messages) != 1 {
		t.Fatalf("expected the SysEx message to reach the transfer sink, got %d", len(sysex.messages))
	}
}

func TestProcessInputDropsNonSysExWhileTransferBusy(t *testing.T) {
	c, router, sysex, _, _, _ := newCoordinator(Config{InputChannel: 0}, fixedBusy{busy: true})
	c.EnqueueIngress([]byte{0x90, 60, 100})
	c.EnqueueIngress([]byte{0xF0, 0x7E, 0x00, 0xF7})

	c.ProcessInput()
	c.ProcessInput()

	if len(router.noteOns) != 0 {
		t.Fatal("expected note traffic dropped while a transfer is busy")
	}
	if len(sysex.messages) != 1 {
		t.Fatal("expected SysEx traffic to still reach the transfer sink while busy")
	}
}

func TestProcessInputUntilEmptyRespectsCap(t *testing.T) {
	c, _, _, _, _, _ := newCoordinator(Config{}, nil)
	for i := 0; i < 5; i++ {
		c.EnqueueIngress([]byte{0xF8})
	}

	n := c.ProcessInputUntilEmpty(3)
	if n != 3 {
		t.Fatalf("expected the cap to bound the drained count, got %d", n)
	}
	remaining := c.ProcessInputUntilEmpty(100)
	if remaining != 2 {
		t.Fatalf("expected the remaining 2 messages drained on a later call, got %d", remaining)
	}
}

func TestDrainOutputSendsRealtimeImmediatelyBypassingRateLimit(t *testing.T) {
	c, _, _, _, usb, _ := newCoordinator(Config{}, nil)
	now := time.Now()

	c.EnqueueEgress(EncodeRealtime(RealtimeClock))
	c.EnqueueEgress(EncodeRealtime(RealtimeClock))
	c.DrainOutput(now)

	if len(usb.writes) != 2 {
		t.Fatalf("expected both realtime bytes sent without rate limiting, got %d", len(usb.writes))
	}
}

func TestDrainOutputRateLimitsNonRealtimeMessages(t *testing.T) {
	c, _, _, _, usb, _ := newCoordinator(Config{}, nil)
	now := time.Now()

	c.EnqueueEgress(EncodeNoteOn(0, 60, 100))
	c.EnqueueEgress(EncodeNoteOn(0, 61, 100))
	c.DrainOutput(now)

	if len(usb.writes) != 1 {
		t.Fatalf("expected only the first non-realtime message sent within the rate-limit window, got %d", len(usb.writes))
	}

	c.DrainOutput(now.Add(MinIntervalNonRealtime))
	if len(usb.writes) != 2 {
		t.Fatalf("expected the pending message sent once the rate-limit window elapses, got %d", len(usb.writes))
	}
}

func TestDrainOutputMirrorsToUARTOnlyWhenUSBFailsForNonRealtime(t *testing.T) {
	c, _, _, _, usb, uart := newCoordinator(Config{}, nil)
	usb.accept = false
	now := time.Now()

	c.EnqueueEgress(EncodeNoteOn(0, 60, 100))
	c.DrainOutput(now)

	if len(uart.writes) != 1 {
		t.Fatalf("expected UART fallback write when USB rejects a non-realtime message, got %d", len(uart.writes))
	}
}
