package midiio

import (
	"time"
)

// QueueDepth is the bounded SPSC queue size for both ingress and egress.
const QueueDepth = 64

// MinIntervalNonRealtime is the minimum spacing enforced between
// non-realtime egress messages, sized for a 3-byte message at 31.25 kbps DIN
// MIDI.
const MinIntervalNonRealtime = 960 * time.Microsecond

// NoteRouter receives filtered, channel-matched note/CC traffic (the
// "Message Router" external collaborator).
type NoteRouter interface {
	HandleNoteOn(channel, note, velocity uint8)
	HandleNoteOff(channel, note uint8)
	HandleControlChange(channel, controller, value uint8)
}

// SysExSink receives raw SysEx messages for the transfer core (C6).
type SysExSink interface {
	HandleSysEx(raw []byte)
}

// RealtimeSink receives realtime clock bytes for the MIDI clock processor (C1).
type RealtimeSink interface {
	HandleRealtime(status byte)
}

// TransferBusy reports whether a file-transfer session is in progress, used
// to drop non-SysEx ingress and protect transfer throughput.
type TransferBusy interface {
	Busy() bool
}

// Transport is a non-blocking byte sink for a MIDI output (USB or UART).
// WriteNonBlocking may drop bytes (e.g. a full UART FIFO) rather than stall;
// it reports whether the write was accepted.
type Transport interface {
	WriteNonBlocking(data []byte) bool
}

// Config carries the routing policy read from persisted configuration.
type Config struct {
	InputChannel  uint8
	IgnoreNoteOff bool
}

// Coordinator implements the MIDI I/O Coordinator (C7): bounded ingress and
// egress queues, channel-filtered dispatch, and rate-limited non-realtime
// drain.
type Coordinator struct {
	cfg Config

	ingress chan []byte
	egress  chan Outgoing

	router  NoteRouter
	sysex   SysExSink
	rt      RealtimeSink
	busy    TransferBusy

	lastNonRealtimeSend time.Time
	pending             *Outgoing

	usb  Transport
	uart Transport
}

// New creates a Coordinator dispatching decoded ingress to router/sysex/rt,
// consulting busy before accepting non-SysEx ingress, and draining egress to
// usb and uart.
func New(cfg Config, router NoteRouter, sysex SysExSink, rt RealtimeSink, busy TransferBusy, usb, uart Transport) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		ingress: make(chan []byte, QueueDepth),
		egress:  make(chan Outgoing, QueueDepth),
		router:  router,
		sysex:   sysex,
		rt:      rt,
		busy:    busy,
		usb:     usb,
		uart:    uart,
	}
}

// EnqueueIngress is called from a USB/UART parser callback context. It never
// blocks: a full queue silently drops the message, matching an SPSC queue
// with no backpressure path back to an ISR.
func (c *Coordinator) EnqueueIngress(raw []byte) {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	select {
	case c.ingress <- buf:
	default:
	}
}

// EnqueueEgress queues a message for drain, non-blocking.
func (c *Coordinator) EnqueueEgress(msg Outgoing) {
	select {
	case c.egress <- msg:
	default:
	}
}

// ProcessInput dequeues and dispatches one ingress message. It reports
// whether a message was available (false means the queue was empty).
func (c *Coordinator) ProcessInput() bool {
	var raw []byte
	select {
	case raw = <-c.ingress:
	default:
		return false
	}

	in := classify(raw)

	if c.busy != nil && c.busy.Busy() && in.Tag != TagSysEx {
		return true
	}

	switch in.Tag {
	case TagNoteOn:
		if in.Channel != c.cfg.InputChannel {
			return true
		}
		if in.Data2 == 0 && !c.cfg.IgnoreNoteOff {
			c.router.HandleNoteOff(in.Channel, in.Data1)
			return true
		}
		c.router.HandleNoteOn(in.Channel, in.Data1, in.Data2)
	case TagNoteOff:
		if in.Channel != c.cfg.InputChannel {
			return true
		}
		c.router.HandleNoteOff(in.Channel, in.Data1)
	case TagCC:
		if in.Channel != c.cfg.InputChannel {
			return true
		}
		c.router.HandleControlChange(in.Channel, in.Data1, in.Data2)
	case TagSysEx:
		if c.sysex != nil {
			c.sysex.HandleSysEx([]byte(in.Raw))
		}
	case TagRealtime:
		if c.rt != nil {
			c.rt.HandleRealtime(in.Data1)
		}
	}
	return true
}

// ProcessInputUntilEmpty drains the ingress queue, bounded by a per-call cap
// to avoid starving the rest of the event loop.
func (c *Coordinator) ProcessInputUntilEmpty(maxMessages int) int {
	n := 0
	for n < maxMessages {
		if !c.ProcessInput() {
			break
		}
		n++
	}
	return n
}

// DrainOutput sends realtime messages immediately and enforces the
// non-realtime inter-message interval, leaving a rate-limited message at the
// front of the queue for the next call.
func (c *Coordinator) DrainOutput(now time.Time) {
	if c.pending != nil {
		if !c.trySend(*c.pending, now) {
			return
		}
		c.pending = nil
	}

	for {
		var msg Outgoing
		select {
		case msg = <-c.egress:
		default:
			return
		}
		if !c.trySend(msg, now) {
			c.pending = &msg
			return
		}
	}
}

// trySend sends msg subject to the rate limit, reporting whether it was
// sent (false means it must be retried on a later call).
func (c *Coordinator) trySend(msg Outgoing, now time.Time) bool {
	if !msg.Realtime {
		if !c.lastNonRealtimeSend.IsZero() && now.Sub(c.lastNonRealtimeSend) < MinIntervalNonRealtime {
			return false
		}
		c.lastNonRealtimeSend = now
	}

	sent := c.usb.WriteNonBlocking(msg.Bytes)
	if msg.Realtime {
		c.uart.WriteNonBlocking(msg.Bytes)
	} else if !sent {
		c.uart.WriteNonBlocking(msg.Bytes)
	}
	return true
}
