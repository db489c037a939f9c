// Package partition implements the Partition Manager and Flash Writer:
// staging a firmware image into the inactive A/B slot and committing it
// only once the full image has landed.
package partition

import "fmt"

// SectorSize and PageSize are the flash geometry constants.
const (
	SectorSize = 4096
	PageSize   = 256 // FLASH_PAGE_SIZE / BUFFER_SIZE
)

// Region is a sector-aligned span of flash.
type Region struct {
	Offset uint32
	Length uint32
}

// Metadata is the parsed firmware image header.
type Metadata struct {
	FormatVersion uint8
	DeclaredSize  uint32
	Checksum      uint32
	VersionTag    uint32
	PartitionHint uint8
}

// Error is the PartitionError enum.
type Error int

const (
	None Error = iota
	InvalidHint
	OutOfSpace
	BootRomFailure
	Busy
	UnexpectedState
)

func (e Error) Error() string {
	switch e {
	case None:
		return "none"
	case InvalidHint:
		return "invalid partition hint"
	case OutOfSpace:
		return "image does not fit in inactive slot"
	case BootRomFailure:
		return "boot rom commit failed"
	case Busy:
		return "staging already active"
	case UnexpectedState:
		return "unexpected partition manager state"
	default:
		return "unknown partition error"
	}
}

// TableReader reads the device partition table, returning the two A/B
// firmware slot regions indexed by partition id {0, 1}.
type TableReader interface {
	ReadPartitionTable() ([2]Region, error)
}

// XIPLocator reports the storage offset the executable XIP window is
// currently mapped to, used to identify the active slot.
type XIPLocator interface {
	CurrentXIPOffset() uint32
}

// Committer performs the platform-specific "make this slot active on next
// boot" action (boot selector update or equivalent).
type Committer interface {
	Commit(slotID int, meta Metadata) error
}

// Manager is the Partition Manager.
type Manager struct {
	table     TableReader
	xip       XIPLocator
	committer Committer

	stagingActive bool
	stagingSlot   int
	stagingRegion Region
}

// New wires the platform services. None may be nil in production use; tests
// supply fakes.
func New(table TableReader, xip XIPLocator, committer Committer) *Manager {
	return &Manager{table: table, xip: xip, committer: committer}
}

// activeSlot returns which of the two regions is currently mapped into XIP.
func (m *Manager) activeSlot(regions [2]Region) (int, error) {
	base := m.xip.CurrentXIPOffset()
	for i, r := range regions {
		if r.Offset == base {
			return i, nil
		}
	}
	return 0, fmt.Errorf("partition: no slot matches current XIP offset %d", base)
}

// BeginStaging identifies the inactive slot and reserves it for meta,
// failing if a staging session is already active, the layout cannot be
// read, or the image does not fit.
func (m *Manager) BeginStaging(meta Metadata) (Region, error) {
	if m.stagingActive {
		return Region{}, Busy
	}
	regions, err := m.table.ReadPartitionTable()
	if err != nil {
		return Region{}, UnexpectedState
	}
	active, err := m.activeSlot(regions)
	if err != nil {
		return Region{}, UnexpectedState
	}
	inactive := 1 - active
	region := regions[inactive]
	if meta.DeclaredSize > region.Length {
		return Region{}, OutOfSpace
	}

	m.stagingActive = true
	m.stagingSlot = inactive
	m.stagingRegion = region
	return region, nil
}

// AbortStaging clears in-progress staging markers without committing.
func (m *Manager) AbortStaging() {
	m.stagingActive = false
}

// CommitStaging marks the staged slot as active on next boot.
func (m *Manager) CommitStaging(meta Metadata) Error {
	if !m.stagingActive {
		return UnexpectedState
	}
	if meta.PartitionHint != uint8(m.stagingSlot) {
		m.AbortStaging()
		return InvalidHint
	}
	if err := m.committer.Commit(m.stagingSlot, meta); err != nil {
		m.AbortStaging()
		return BootRomFailure
	}
	m.stagingActive = false
	return None
}

// StagingRegion returns the region reserved by the most recent BeginStaging
// call, valid only while a staging session is active.
func (m *Manager) StagingRegion() Region { return m.stagingRegion }

// StagingActive reports whether a staging session is in progress.
func (m *Manager) StagingActive() bool { return m.stagingActive }
