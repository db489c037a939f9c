package hostsim

import (
	"testing"

	"github.com/datomusic/drum-firmware/internal/partition"
)

func TestNullPinAlwaysReportsNotAsserted(t *testing.T) {
	var p NullPin
	if p.Level() {
		t.Fatal("expected NullPin to report false (idle, active-low)")
	}
}

func TestNewMemFlashStartsErased(t *testing.T) {
	f := NewMemFlash(partition.SectorSize)
	for i, b := range f.Bytes() {
		if b != 0xFF {
			t.Fatalf("expected byte %d to start erased (0xFF), got 0x%02X", i, b)
		}
	}
}

func TestMemFlashEraseSectorZerosToFF(t *testing.T) {
	f := NewMemFlash(partition.SectorSize)
	var page [partition.PageSize]byte
	for i := range page {
		page[i] = 0x42
	}
	if err := f.ProgramPage(0, page); err != nil {
		t.Fatalf("unexpected program error: %v", err)
	}
	if f.Bytes()[0] != 0x42 {
		t.Fatal("expected the programmed byte to stick before erase")
	}

	if err := f.EraseSector(0); err != nil {
		t.Fatalf("unexpected erase error: %v", err)
	}
	for i := 0; i < partition.SectorSize; i++ {
		if f.Bytes()[i] != 0xFF {
			t.Fatalf("expected byte %d erased back to 0xFF, got 0x%02X", i, f.Bytes()[i])
		}
	}
}

func TestMemFlashRejectsOutOfBoundsAccess(t *testing.T) {
	f := NewMemFlash(partition.SectorSize)
	if err := f.EraseSector(partition.SectorSize); err == nil {
		t.Fatal("expected an error erasing past the end of flash")
	}

	var page [partition.PageSize]byte
	if err := f.ProgramPage(partition.SectorSize, page); err == nil {
		t.Fatal("expected an error programming past the end of flash")
	}
}

func TestNewStaticPartitionTableSplitsIntoSectorAlignedHalves(t *testing.T) {
	total := uint32(partition.SectorSize * 8)
	table := NewStaticPartitionTable(total)
	regions, err := table.ReadPartitionTable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if regions[0].Offset != 0 || regions[0].Length != total/2 {
		t.Fatalf("unexpected slot 0 region: %+v", regions[0])
	}
	if regions[1].Offset != total/2 || regions[1].Length != total/2 {
		t.Fatalf("unexpected slot 1 region: %+v", regions[1])
	}
	if regions[0].Length%partition.SectorSize != 0 || regions[1].Length%partition.SectorSize != 0 {
		t.Fatal("expected both regions sector-aligned")
	}
}

func TestFixedXIPReportsConstantOffset(t *testing.T) {
	x := FixedXIP{Offset: 0x1000}
	if x.CurrentXIPOffset() != 0x1000 {
		t.Fatalf("expected constant offset 0x1000, got 0x%x", x.CurrentXIPOffset())
	}
}

func TestLogCommitterInvokesLogFunc(t *testing.T) {
	var gotSlot int
	var gotMsg string
	c := LogCommitter{Log: func(msg string, args ...any) {
		gotMsg = msg
		gotSlot = args[1].(int)
	}}

	if err := c.Commit(1, partition.Metadata{DeclaredSize: 512, VersionTag: 7}); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if gotMsg == "" {
		t.Fatal("expected the log function to be invoked with a message")
	}
	if gotSlot != 1 {
		t.Fatalf("expected the committed slot logged, got %d", gotSlot)
	}
}

func TestLogCommitterToleratesNilLogFunc(t *testing.T) {
	c := LogCommitter{}
	if err := c.Commit(0, partition.Metadata{}); err != nil {
		t.Fatalf("unexpected error with nil log func: %v", err)
	}
}

func TestNullTransportAlwaysReportsSuccess(t *testing.T) {
	var tr NullTransport
	if !tr.WriteNonBlocking([]byte{0x90, 0x3C, 0x7F}) {
		t.Fatal("expected NullTransport to report success for every write")
	}
}
