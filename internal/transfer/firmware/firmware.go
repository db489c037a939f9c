// Package firmware implements the firmware-update payload handler, reusing
// the generic transfer.Transport protocol and staging through the partition
// package.
package firmware

import (
	"fmt"

	"github.com/datomusic/drum-firmware/internal/partition"
	"github.com/datomusic/drum-firmware/internal/transfer"
)

// Sentinel is the 14-bit value in the sample-number field that identifies a
// firmware header instead of a sample header.
const Sentinel = 0x3FFF

func read21(b [3]byte) uint32 {
	return uint32(b[0]&0x7F) | uint32(b[1]&0x7F)<<7 | uint32(b[2]&0x7F)<<14
}

// Handler implements transfer.PayloadHandler for firmware image uploads.
type Handler struct {
	deviceID byte
	mgr      *partition.Manager
	writer   *partition.FlashWriter

	meta       partition.Metadata
	checksumSum uint32 // running sum of decoded bytes, for later verification
}

// New creates a Handler backed by mgr/writer, using deviceID for checksum
// verification of incoming packets.
func New(mgr *partition.Manager, writer *partition.FlashWriter, deviceID byte) *Handler {
	return &Handler{mgr: mgr, writer: writer, deviceID: deviceID}
}

func (h *Handler) Kind() transfer.PayloadKind { return transfer.KindFirmware }

// Begin parses the 16 SDS dump-header bytes that follow the message-type tag
// (wire offsets 1-16; the caller has already stripped the tag byte),
// interpreted per the firmware variant of the dump-header layout, and asks
// the Partition Manager to stage the inactive slot.
func (h *Handler) Begin(header []byte) error {
	if len(header) < 16 {
		return fmt.Errorf("%w: short firmware header", transfer.ErrInvalidMessage)
	}
	sentinel := uint16(header[0]&0x7F) | uint16(header[1]&0x7F)<<7
	if sentinel != Sentinel {
		return fmt.Errorf("%w: missing firmware sentinel", transfer.ErrInvalidMessage)
	}

	var declared, checksumHi, checksumLo, versionTag [3]byte
	copy(declared[:], header[3:6])
	copy(checksumHi[:], header[6:9])
	copy(checksumLo[:], header[9:12])
	copy(versionTag[:], header[12:15])

	hi := read21(checksumHi)
	lo := read21(checksumLo)

	meta := partition.Metadata{
		FormatVersion: header[2],
		DeclaredSize:  read21(declared),
		Checksum:      uint32((uint64(hi)<<21 | uint64(lo)) & 0xFFFFFFFF),
		VersionTag:    read21(versionTag),
		PartitionHint: header[15],
	}

	region, err := h.mgr.BeginStaging(meta)
	if err != nil {
		return fmt.Errorf("%w: begin staging: %v", transfer.ErrPayload, err)
	}
	if err := h.writer.Begin(region, meta.DeclaredSize); err != nil {
		h.mgr.AbortStaging()
		return fmt.Errorf("%w: begin flash writer: %v", transfer.ErrPayload, err)
	}

	h.meta = meta
	h.checksumSum = 0
	return nil
}

// decode8to7 unpacks one SDS-safe 8-byte group into 7 raw bytes; the 8th
// byte holds the MSB for each of the preceding 7.
func decode8to7(group [8]byte) [7]byte {
	var out [7]byte
	msbs := group[7]
	for i := 0; i < 7; i++ {
		msb := (msbs >> uint(i)) & 0x01
		out[i] = (group[i] & 0x7F) | (msb << 7)
	}
	return out
}

// ProcessPacket decodes 15 groups of 8 bytes into up to 105 raw bytes,
// writes them to the flash writer in page-aligned chunks via WriteChunk,
// and reports completion once declaredSize bytes have been written.
func (h *Handler) ProcessPacket(_ byte, data [120]byte) (transfer.PacketResult, error) {
	var decoded []byte
	for g := 0; g < 15; g++ {
		var group [8]byte
		copy(group[:], data[g*8:g*8+8])
		out := decode8to7(group)
		decoded = append(decoded, out[:]...)
	}

	remaining := int64(h.meta.DeclaredSize) - int64(h.writer.LogicalBytesWritten())
	if remaining < 0 {
		remaining = 0
	}
	if int64(len(decoded)) > remaining {
		decoded = decoded[:remaining]
	}

	for _, b := range decoded {
		h.checksumSum += uint32(b)
	}

	if len(decoded) > 0 {
		if err := h.writer.WriteChunk(decoded); err != nil {
			return transfer.PacketError, fmt.Errorf("%w: %v", transfer.ErrPayload, err)
		}
	}

	if h.writer.LogicalBytesWritten() >= h.meta.DeclaredSize {
		return transfer.PacketComplete, nil
	}
	return transfer.PacketOK, nil
}

// Finalize flushes the writer (padding the last page with 0xFF) and commits
// the staged slot; success requires both to succeed.
func (h *Handler) Finalize() error {
	if err := h.writer.Finalize(); err != nil {
		h.mgr.AbortStaging()
		return fmt.Errorf("%w: flash finalize: %v", transfer.ErrPayload, err)
	}
	if perr := h.mgr.CommitStaging(h.meta); perr != partition.None {
		return fmt.Errorf("%w: commit: %v", transfer.ErrPayload, perr)
	}
	return nil
}

// Cancel abandons the in-progress flash write and staging session.
func (h *Handler) Cancel() {
	h.writer.Cancel()
	h.mgr.AbortStaging()
}

// CalculateChecksum implements the shared SDS checksum.
func (h *Handler) CalculateChecksum(packetNum byte, data [120]byte) byte {
	return transfer.Checksum(h.deviceID, packetNum, data)
}
