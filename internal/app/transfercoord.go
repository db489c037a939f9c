package app

import (
	"log/slog"

	"github.com/datomusic/drum-firmware/internal/config"
	"github.com/datomusic/drum-firmware/internal/midiio"
	"github.com/datomusic/drum-firmware/internal/partition"
	"github.com/datomusic/drum-firmware/internal/storage"
	"github.com/datomusic/drum-firmware/internal/transfer"
	"github.com/datomusic/drum-firmware/internal/transfer/firmware"
	"github.com/datomusic/drum-firmware/internal/transfer/sample"
)

// firmwareSentinel mirrors sample.FirmwareSentinel / firmware.Sentinel; the
// dispatcher needs it before either handler has been selected.
const firmwareSentinel = 0x3FFF

// transferCoordinator implements midiio.SysExSink and midiio.TransferBusy:
// it recognizes the Sample Dump Standard framing, picks the sample or
// firmware PayloadHandler by the header's sentinel field, and drives the
// shared transfer.Transport, replying with wire-framed ACK/NAK SysEx.
type transferCoordinator struct {
	transport *transfer.Transport
	sampleH   *sample.Handler
	firmwareH *firmware.Handler
	active    transfer.PayloadHandler

	runtimeCfg *config.Store
	log        *slog.Logger

	egress func(midiio.Outgoing)
}

func newTransferCoordinator(t *transfer.Transport, root *storage.Root, mgr *partition.Manager, fw *partition.FlashWriter, deviceID byte, runtimeCfg *config.Store, log *slog.Logger) *transferCoordinator {
	return &transferCoordinator{
		transport:  t,
		sampleH:    sample.New(root, deviceID),
		firmwareH:  firmware.New(mgr, fw, deviceID),
		runtimeCfg: runtimeCfg,
		log:        log,
	}
}

// Busy implements midiio.TransferBusy.
func (c *transferCoordinator) Busy() bool {
	return c.transport.State() != transfer.Idle
}

// HandleSysEx implements midiio.SysExSink: raw is a complete F0..F7 frame.
func (c *transferCoordinator) HandleSysEx(raw []byte) {
	if len(raw) < 5 || raw[0] != 0xF0 || raw[len(raw)-1] != 0xF7 {
		return // not SDS framing; out of scope for the transfer core
	}
	if raw[1] != 0x7E {
		return
	}
	tag := raw[3]
	payload := raw[4 : len(raw)-1]

	switch tag {
	case transfer.TagDumpHeader:
		if c.active != nil {
			// The transport cancels only the handler it is given, so a
			// session of the previous handler is cancelled here first.
			c.transport.HandleCancel(c.active)
		}
		c.active = c.selectHandler(payload)
		reply := c.transport.HandleDumpHeader(c.active, payload)
		c.sendReply(reply)
	case transfer.TagDataPacket:
		if c.active == nil {
			return
		}
		reply, err := c.transport.HandleDataPacket(c.active, payload)
		if err != nil {
			c.log.Warn("transfer packet error", "err", err)
		}
		c.sendReply(reply)
		if c.transport.State() == transfer.Idle && err == nil {
			c.onTransferComplete()
		}
	case transfer.TagCancel:
		if c.active != nil {
			c.transport.HandleCancel(c.active)
		}
	}
}

func (c *transferCoordinator) selectHandler(header []byte) transfer.PayloadHandler {
	if len(header) >= 2 && read14(header[0], header[1]) == firmwareSentinel {
		return c.firmwareH
	}
	return c.sampleH
}

func read14(b0, b1 byte) uint16 {
	return uint16(b0&0x7F) | uint16(b1&0x7F)<<7
}

// onTransferComplete reloads persisted configuration after a successful
// sample upload.
func (c *transferCoordinator) onTransferComplete() {
	if c.active == c.sampleH {
		if err := c.runtimeCfg.Reload(); err != nil {
			c.log.Warn("config reload after transfer failed", "err", err)
		}
	}
}

func (c *transferCoordinator) sendReply(reply transfer.OutgoingReply) {
	if c.egress == nil {
		return
	}
	payload := []byte{0x7E, 0x00, reply.Tag, reply.PacketNum}
	c.egress(midiio.EncodeSysEx(payload))
}
