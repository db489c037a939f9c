// Package sample implements the 16-bit PCM sample payload handler, reusing
// the generic transfer.Transport protocol.
package sample

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/datomusic/drum-firmware/internal/storage"
	"github.com/datomusic/drum-firmware/internal/transfer"
)

// FirmwareSentinel is the 14-bit sentinel that distinguishes a firmware
// header from a sample header in the shared SDS dump-header framing.
const FirmwareSentinel = 0x3FFF

// Handler implements transfer.PayloadHandler for SDS 16-bit PCM uploads.
type Handler struct {
	root         *storage.Root
	deviceID     byte
	file         *os.File
	filename     string
	declaredLen  uint32 // bytes
	bytesWritten uint32
}

// New creates a Handler rooted at root, using deviceID for checksum
// verification.
func New(root *storage.Root, deviceID byte) *Handler {
	return &Handler{root: root, deviceID: deviceID}
}

func (h *Handler) Kind() transfer.PayloadKind { return transfer.KindSample }

// read14 decodes a 14-bit value from two 7-bit bytes, low byte first.
func read14(b0, b1 byte) uint16 {
	return uint16(b0&0x7F) | uint16(b1&0x7F)<<7
}

// read21 decodes a 21-bit value from three 7-bit bytes, low byte first.
func read21(b [3]byte) uint32 {
	return uint32(b[0]&0x7F) | uint32(b[1]&0x7F)<<7 | uint32(b[2]&0x7F)<<14
}

// Begin parses the 16 SDS dump-header bytes at offsets 1-16 of the wire
// message (the tag byte has already been stripped by the caller).
func (h *Handler) Begin(header []byte) error {
	if len(header) < 16 {
		return fmt.Errorf("%w: short sample header", transfer.ErrInvalidMessage)
	}

	sampleNumber := read14(header[0], header[1])
	if sampleNumber == FirmwareSentinel {
		return fmt.Errorf("%w: firmware sentinel in sample header", transfer.ErrInvalidMessage)
	}
	bitDepth := header[2]
	if bitDepth != 16 {
		return fmt.Errorf("%w: unsupported bit depth %d", transfer.ErrInvalidMessage, bitDepth)
	}
	var period, lengthWords [3]byte
	copy(period[:], header[3:6])
	copy(lengthWords[:], header[6:9])
	_ = read21(period)
	words := read21(lengthWords)
	if words == 0 {
		return fmt.Errorf("%w: zero-length sample", transfer.ErrInvalidMessage)
	}

	filename := storage.SampleFilename(sampleNumber)
	f, err := h.root.Create(filename)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", transfer.ErrPayload, filename, err)
	}

	h.file = f
	h.filename = filename
	h.declaredLen = words * 2
	h.bytesWritten = 0
	return nil
}

// ProcessPacket unpacks up to 40 16-bit samples from 3-byte SDS groups and
// writes them little-endian to the staged file, stopping once the declared
// byte length is reached.
func (h *Handler) ProcessPacket(_ byte, data [120]byte) (transfer.PacketResult, error) {
	if h.file == nil {
		return transfer.PacketError, fmt.Errorf("%w: no active sample transfer", transfer.ErrState)
	}

	var buf [2]byte
	for g := 0; g < 40; g++ {
		if h.bytesWritten >= h.declaredLen {
			break
		}
		b0, b1, b2 := data[g*3], data[g*3+1], data[g*3+2]
		unsigned16 := uint32(b0&0x7F)<<9 | uint32(b1&0x7F)<<2 | uint32(b2&0x7F)>>5
		signed := int32(unsigned16) - 0x8000
		binary.LittleEndian.PutUint16(buf[:], uint16(int16(signed)))

		if _, err := h.file.Write(buf[:]); err != nil {
			return transfer.PacketError, fmt.Errorf("%w: write: %v", transfer.ErrPayload, err)
		}
		h.bytesWritten += 2
	}

	if h.bytesWritten >= h.declaredLen {
		return transfer.PacketComplete, nil
	}
	return transfer.PacketOK, nil
}

// Finalize closes the staged file.
func (h *Handler) Finalize() error {
	if h.file == nil {
		return fmt.Errorf("%w: finalize with no active transfer", transfer.ErrState)
	}
	err := h.file.Close()
	h.file = nil
	return err
}

// Cancel closes and abandons the staged file.
func (h *Handler) Cancel() {
	if h.file != nil {
		h.file.Close()
		h.root.Remove(h.filename)
		h.file = nil
	}
}

// CalculateChecksum implements the shared SDS checksum.
func (h *Handler) CalculateChecksum(packetNum byte, data [120]byte) byte {
	return transfer.Checksum(h.deviceID, packetNum, data)
}

// BytesReceived reports progress; callers can use it to confirm
// bytes_received never exceeds declared_size.
func (h *Handler) BytesReceived() uint32 { return h.bytesWritten }

// DeclaredSize reports the declared transfer size in bytes.
func (h *Handler) DeclaredSize() uint32 { return h.declaredLen }
