// Package midiio implements the MIDI I/O Coordinator: bounded ingress/egress
// queues decoupling USB/UART byte transports from the rest of the system,
// built on gitlab.com/gomidi/midi/v2 for wire-level encoding of outgoing
// messages; incoming bytes are classified by hand from the status byte.
package midiio

import "gitlab.com/gomidi/midi/v2"

// Realtime status bytes recognized on the wire.
const (
	RealtimeClock    byte = 0xF8
	RealtimeStart    byte = 0xFA
	RealtimeContinue byte = 0xFB
	RealtimeStop     byte = 0xFC
)

// Tag classifies a decoded message for dispatch.
type Tag int

const (
	TagNoteOn Tag = iota
	TagNoteOff
	TagCC
	TagRealtime
	TagSysEx
	TagOther
)

// Incoming is one decoded, tagged ingress message plus its channel (0 for
// realtime/sysex).
type Incoming struct {
	Tag     Tag
	Channel uint8
	Data1   uint8
	Data2   uint8
	Raw     midi.Message
}

// classify inspects a raw byte slice read off the wire and produces a tagged
// Incoming, using midi.Message only for its Bytes()-compatible framing.
func classify(raw []byte) Incoming {
	msg := midi.Message(raw)
	if len(raw) == 0 {
		return Incoming{Tag: TagOther, Raw: msg}
	}

	status := raw[0]
	switch status {
	case RealtimeClock, RealtimeStart, RealtimeContinue, RealtimeStop:
		return Incoming{Tag: TagRealtime, Data1: status, Raw: msg}
	case 0xF0:
		return Incoming{Tag: TagSysEx, Raw: msg}
	}

	if status < 0x80 || status >= 0xF0 {
		return Incoming{Tag: TagOther, Raw: msg}
	}

	channel := status & 0x0F
	command := status & 0xF0
	var d1, d2 uint8
	if len(raw) > 1 {
		d1 = raw[1]
	}
	if len(raw) > 2 {
		d2 = raw[2]
	}

	switch command {
	case 0x90:
		return Incoming{Tag: TagNoteOn, Channel: channel, Data1: d1, Data2: d2, Raw: msg}
	case 0x80:
		return Incoming{Tag: TagNoteOff, Channel: channel, Data1: d1, Data2: d2, Raw: msg}
	case 0xB0:
		return Incoming{Tag: TagCC, Channel: channel, Data1: d1, Data2: d2, Raw: msg}
	default:
		return Incoming{Tag: TagOther, Channel: channel, Data1: d1, Data2: d2, Raw: msg}
	}
}

// Outgoing is a message queued for egress, tagged so the drain loop knows
// whether it is subject to the non-realtime rate limit.
type Outgoing struct {
	Realtime bool
	Bytes    []byte
}

// EncodeNoteOn builds a NoteOn wire message via gomidi's channel-message
// constructor.
func EncodeNoteOn(channel, note, velocity uint8) Outgoing {
	return Outgoing{Bytes: midi.NoteOn(channel, note, velocity)}
}

// EncodeNoteOff builds a NoteOff wire message.
func EncodeNoteOff(channel, note uint8) Outgoing {
	return Outgoing{Bytes: midi.NoteOff(channel, note)}
}

// EncodeCC builds a Control Change wire message.
func EncodeCC(channel, controller, value uint8) Outgoing {
	return Outgoing{Bytes: midi.ControlChange(channel, controller, value)}
}

// EncodePitchBend builds a Pitch Bend wire message.
func EncodePitchBend(channel uint8, value int16) Outgoing {
	return Outgoing{Bytes: midi.Pitchbend(channel, value)}
}

// EncodeSysEx builds a SysEx wire message from a manufacturer-framed payload
// (caller supplies the bytes between F0 and F7, exclusive).
func EncodeSysEx(payload []byte) Outgoing {
	return Outgoing{Bytes: midi.SysEx(payload)}
}

// EncodeRealtime wraps a single realtime status byte for egress, marked so
// the drain loop bypasses the rate limit.
func EncodeRealtime(status byte) Outgoing {
	return Outgoing{Realtime: true, Bytes: []byte{status}}
}
