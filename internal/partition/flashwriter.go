package partition

import "fmt"

// FlashDevice is the raw erase/program primitive a FlashWriter drives. A
// real target implements this over QSPI/XIP flash; tests use an in-memory
// fake.
type FlashDevice interface {
	EraseSector(offset uint32) error
	ProgramPage(offset uint32, data [PageSize]byte) error
}

// FlashWriter buffers writes in a 256-byte page buffer and only programs a
// sector after ensuring it has been erased this session.
type FlashWriter struct {
	dev    FlashDevice
	region Region
	declaredSize uint32

	buf    [PageSize]byte
	bufLen int

	written        uint32 // bytes physically programmed (page-rounded)
	logicalWritten uint32 // real payload bytes handed to WriteChunk (unpadded)
	erasedBytes    uint32

	busy bool
}

// NewFlashWriter creates an idle writer over dev.
func NewFlashWriter(dev FlashDevice) *FlashWriter {
	return &FlashWriter{dev: dev}
}

// Begin arms the writer over region for an image of declaredSize bytes.
// Fails if already busy or the image does not fit in region.
func (w *FlashWriter) Begin(region Region, declaredSize uint32) error {
	if w.busy {
		return fmt.Errorf("partition: flash writer already busy")
	}
	if declaredSize > region.Length {
		return fmt.Errorf("partition: image %d exceeds region length %d", declaredSize, region.Length)
	}
	w.region = region
	w.declaredSize = declaredSize
	w.bufLen = 0
	w.written = 0
	w.logicalWritten = 0
	w.erasedBytes = 0
	w.busy = true
	return nil
}

// WriteChunk appends bytes to the page buffer, flushing full pages as they
// fill. It refuses to write past region bounds or the declared size.
func (w *FlashWriter) WriteChunk(data []byte) error {
	if !w.busy {
		return fmt.Errorf("partition: write with no active session")
	}
	if uint32(len(data)) > w.declaredSize-w.logicalWritten {
		return fmt.Errorf("partition: write exceeds declared size %d", w.declaredSize)
	}
	for len(data) > 0 {
		space := PageSize - w.bufLen
		n := space
		if n > len(data) {
			n = len(data)
		}
		copy(w.buf[w.bufLen:], data[:n])
		w.bufLen += n
		w.logicalWritten += uint32(n)
		data = data[n:]
		if w.bufLen == PageSize {
			if err := w.flushPage(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushPage ensures the target sector is erased, then programs the
// buffered page, never writing before its sector is erased and never
// outside [region.Offset, region.Offset+region.Length).
func (w *FlashWriter) flushPage() error {
	pageOffset := w.region.Offset + w.written
	if pageOffset+PageSize > w.region.Offset+w.region.Length {
		return fmt.Errorf("partition: page at %d exceeds region bounds", pageOffset)
	}

	if err := w.ensureErased(pageOffset); err != nil {
		return err
	}
	if err := w.dev.ProgramPage(pageOffset, w.buf); err != nil {
		return fmt.Errorf("partition: program page at %d: %w", pageOffset, err)
	}
	w.written += PageSize
	w.bufLen = 0
	return nil
}

// ensureErased erases sectors forward up to and including the one
// containing pageOffset, tracking erasedBytes so a sector is never erased
// twice in the same session.
func (w *FlashWriter) ensureErased(pageOffset uint32) error {
	neededThrough := pageOffset + PageSize - w.region.Offset
	for w.erasedBytes < neededThrough {
		sectorOffset := w.region.Offset + w.erasedBytes
		if err := w.dev.EraseSector(sectorOffset); err != nil {
			return fmt.Errorf("partition: erase sector at %d: %w", sectorOffset, err)
		}
		w.erasedBytes += SectorSize
	}
	return nil
}

// Finalize pads a partial final page with 0xFF and flushes it, then
// verifies the total byte count matches declaredSize.
func (w *FlashWriter) Finalize() error {
	if !w.busy {
		return fmt.Errorf("partition: finalize with no active session")
	}
	if w.bufLen > 0 {
		for i := w.bufLen; i < PageSize; i++ {
			w.buf[i] = 0xFF
		}
		w.bufLen = PageSize
		if err := w.flushPage(); err != nil {
			w.Cancel()
			return err
		}
	}
	if w.logicalWritten != w.declaredSize {
		w.Cancel()
		return fmt.Errorf("partition: short write: %d of %d bytes", w.logicalWritten, w.declaredSize)
	}
	w.busy = false
	return nil
}

// Cancel resets the writer; partially written sectors remain on flash but
// are never committed because no PartitionManager.CommitStaging follows.
func (w *FlashWriter) Cancel() {
	w.busy = false
	w.bufLen = 0
}

// BytesWritten reports the number of bytes programmed so far (excludes the
// still-buffered partial page).
func (w *FlashWriter) BytesWritten() uint32 { return w.written }

// LogicalBytesWritten reports the true cumulative payload bytes handed to
// WriteChunk so far, including any still-buffered partial page. Unlike
// BytesWritten, this advances immediately rather than only on a page flush,
// so it is the counter completion checks must use.
func (w *FlashWriter) LogicalBytesWritten() uint32 { return w.logicalWritten }
