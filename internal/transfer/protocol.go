// Package transfer implements the generic reliable packet transport shared
// by sample (SDS) and firmware uploads, parameterized over a PayloadHandler
// so the transport stays blind to which payload kind it is carrying.
package transfer

import (
	"errors"
	"fmt"
)

// State is the transfer session state machine.
type State int

const (
	Idle State = iota
	ReceivingHeader
	ReceivingData
)

// Message type tags recognized on the wire.
const (
	TagDumpHeader byte = 0x01
	TagDataPacket byte = 0x02
	TagCancel     byte = 0x7D
	TagACK        byte = 0x7F
	TagNAK        byte = 0x7E
)

// DataPacketSize is the fixed size of a data packet after the message-type
// byte: 1 packet_num + 120 payload + 1 checksum.
const DataPacketSize = 122

// Error kinds returned by the transfer subsystem. They wrap an underlying
// cause where one exists.
var (
	ErrInvalidMessage = errors.New("transfer: invalid message")
	ErrChecksum       = errors.New("transfer: checksum mismatch")
	ErrState          = errors.New("transfer: no active session")
	ErrPayload        = errors.New("transfer: payload handler failure")
	ErrBusy           = errors.New("transfer: session already active")
)

// PayloadKind distinguishes the two payload handlers.
type PayloadKind int

const (
	KindSample PayloadKind = iota
	KindFirmware
)

// PacketResult is returned by PayloadHandler.ProcessPacket.
type PacketResult int

const (
	PacketOK PacketResult = iota
	PacketComplete
	PacketError
)

// PayloadHandler is the five-operation interface the transport calls: begin,
// process_packet, finalize, cancel, calculate_checksum. Sample and firmware
// handlers both implement it; Transport is blind to which.
type PayloadHandler interface {
	Kind() PayloadKind
	// Begin validates header and opens the destination (file or flash
	// staging region). header is the 16 dump-header bytes that follow
	// the message-type tag (wire offsets 1-16).
	Begin(header []byte) error
	// ProcessPacket handles 120 bytes of payload for packetNum (0..127).
	ProcessPacket(packetNum byte, data [120]byte) (PacketResult, error)
	// Finalize closes out a complete transfer (flush/close/commit).
	Finalize() error
	// Cancel abandons an in-progress transfer.
	Cancel()
	// CalculateChecksum computes the SDS-compatible checksum for a packet.
	CalculateChecksum(packetNum byte, data [120]byte) byte
}

// OutgoingReply is what the transport wants sent back to the host.
type OutgoingReply struct {
	Tag       byte // TagACK or TagNAK
	PacketNum byte
}

// Logger receives non-fatal diagnostic notices (out-of-order packets, etc).
type Logger interface {
	Printf(format string, args ...any)
}

// nullLogger discards everything; used when no logger is supplied.
type nullLogger struct{}

func (nullLogger) Printf(string, ...any) {}

// Transport drives the session state machine. It holds no PayloadHandler of
// its own: the caller selects one from the header's sentinel field (sample
// vs firmware) and passes it to every call of the session.
type Transport struct {
	state    State
	expected byte
	log      Logger
}

// NewTransport creates an idle Transport. log may be nil.
func NewTransport(log Logger) *Transport {
	if log == nil {
		log = nullLogger{}
	}
	return &Transport{state: Idle, log: log}
}

// State returns the current session state.
func (t *Transport) State() State { return t.state }

// HandleDumpHeader: if a session is already active, handler.Cancel is called
// first (the transport cancels only the handler it is given); then
// handler.Begin is called with the header bytes.
func (t *Transport) HandleDumpHeader(handler PayloadHandler, header []byte) OutgoingReply {
	if t.state != Idle {
		handler.Cancel()
		t.state = Idle
	}
	if err := handler.Begin(header); err != nil {
		t.log.Printf("transfer: begin failed: %v", err)
		t.state = Idle
		return OutgoingReply{Tag: TagNAK, PacketNum: 0}
	}
	t.state = ReceivingData
	t.expected = 0
	return OutgoingReply{Tag: TagACK, PacketNum: 0}
}

// HandleDataPacket validates and dispatches one data packet to handler.
func (t *Transport) HandleDataPacket(handler PayloadHandler, packet []byte) (OutgoingReply, error) {
	if t.state != ReceivingData {
		return OutgoingReply{Tag: TagNAK, PacketNum: 0}, fmt.Errorf("%w: data packet with no active session", ErrState)
	}
	if len(packet) != DataPacketSize {
		return OutgoingReply{Tag: TagNAK, PacketNum: 0}, fmt.Errorf("%w: bad packet size %d", ErrInvalidMessage, len(packet))
	}

	packetNum := packet[0]
	var data [120]byte
	copy(data[:], packet[1:121])
	checksum := packet[121]

	want := handler.CalculateChecksum(packetNum, data)
	if want != checksum {
		return OutgoingReply{Tag: TagNAK, PacketNum: packetNum}, fmt.Errorf("%w: packet %d", ErrChecksum, packetNum)
	}

	if packetNum != t.expected {
		t.log.Printf("transfer: out-of-order packet: got %d, expected %d", packetNum, t.expected)
	}

	result, err := handler.ProcessPacket(packetNum, data)
	t.expected = (packetNum + 1) % 128
	if err != nil {
		handler.Cancel()
		t.state = Idle
		return OutgoingReply{Tag: TagNAK, PacketNum: packetNum}, fmt.Errorf("%w: %v", ErrPayload, err)
	}

	switch result {
	case PacketComplete:
		if err := handler.Finalize(); err != nil {
			handler.Cancel()
			t.state = Idle
			return OutgoingReply{Tag: TagNAK, PacketNum: packetNum}, fmt.Errorf("%w: finalize: %v", ErrPayload, err)
		}
		t.state = Idle
		return OutgoingReply{Tag: TagACK, PacketNum: packetNum}, nil
	case PacketError:
		handler.Cancel()
		t.state = Idle
		return OutgoingReply{Tag: TagNAK, PacketNum: packetNum}, ErrPayload
	default:
		return OutgoingReply{Tag: TagACK, PacketNum: packetNum}, nil
	}
}

// HandleCancel aborts any active session; no reply is sent, per Sample Dump
// Standard convention.
func (t *Transport) HandleCancel(handler PayloadHandler) {
	if t.state != Idle {
		handler.Cancel()
		t.state = Idle
	}
}
