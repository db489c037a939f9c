// Package hostsim provides simple in-memory/no-op stand-ins for the
// hardware-level collaborators the firmware would otherwise drive directly
// (sync jack pins, QSPI flash, USB/UART transports). Section 1 puts real
// hardware drivers out of scope; these let the composition root and tests
// run the full timing/transfer pipeline on a host without them.
package hostsim

import (
	"fmt"

	"github.com/datomusic/drum-firmware/internal/applog"
	"github.com/datomusic/drum-firmware/internal/partition"
)

// NullPin always reads as not-asserted (active-low inputs report false when
// idle), for a sync jack with nothing connected.
type NullPin struct{}

func (NullPin) Level() bool { return false }

// MemFlash backs partition.FlashDevice with a plain byte slice. Every erase
// and program is bounds-checked; ProgramPage does not check that the target
// page was erased first.
type MemFlash struct {
	data []byte
}

// NewMemFlash allocates size bytes, unprogrammed (0xFF, matching erased NOR
// flash).
func NewMemFlash(size uint32) *MemFlash {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &MemFlash{data: data}
}

func (f *MemFlash) EraseSector(offset uint32) error {
	if int(offset)+partition.SectorSize > len(f.data) {
		return fmt.Errorf("hostsim: erase at %d exceeds flash size %d", offset, len(f.data))
	}
	for i := 0; i < partition.SectorSize; i++ {
		f.data[int(offset)+i] = 0xFF
	}
	return nil
}

func (f *MemFlash) ProgramPage(offset uint32, data [partition.PageSize]byte) error {
	if int(offset)+partition.PageSize > len(f.data) {
		return fmt.Errorf("hostsim: program at %d exceeds flash size %d", offset, len(f.data))
	}
	copy(f.data[offset:], data[:])
	return nil
}

// Bytes exposes the underlying image, for tests that verify programmed
// content.
func (f *MemFlash) Bytes() []byte { return f.data }

// StaticPartitionTable reports two fixed, sector-aligned regions, with slot
// 0 always the active one at process start.
type StaticPartitionTable struct {
	Regions [2]partition.Region
}

// NewStaticPartitionTable splits a flash of the given total size into two
// equal halves.
func NewStaticPartitionTable(totalSize uint32) StaticPartitionTable {
	half := (totalSize / 2 / partition.SectorSize) * partition.SectorSize
	return StaticPartitionTable{Regions: [2]partition.Region{
		{Offset: 0, Length: half},
		{Offset: half, Length: half},
	}}
}

func (t StaticPartitionTable) ReadPartitionTable() ([2]partition.Region, error) {
	return t.Regions, nil
}

// FixedXIP reports a constant active-slot offset, simulating the boot ROM
// having mapped one fixed slot at process start.
type FixedXIP struct {
	Offset uint32
}

func (x FixedXIP) CurrentXIPOffset() uint32 { return x.Offset }

// LogCommitter accepts every commit, logging it instead of touching a real
// boot selector. Log follows slog's (msg string, keyvals ...any) signature.
type LogCommitter struct {
	Log func(msg string, args ...any)
}

func (c LogCommitter) Commit(slotID int, meta partition.Metadata) error {
	if c.Log != nil {
		c.Log("hostsim: committing partition slot", "slot", slotID, "declared_size", applog.Count(int64(meta.DeclaredSize)), "version_tag", meta.VersionTag)
	}
	return nil
}

// NullTransport discards egress bytes, standing in for a USB or UART MIDI
// transport not wired to real hardware.
type NullTransport struct{}

func (NullTransport) WriteNonBlocking(data []byte) bool { return true }
