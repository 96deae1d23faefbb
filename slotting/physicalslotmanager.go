/*
 * SlotStore
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package slotting contains managers which deal with slots on pages.

PhysicalSlotManager

PhysicalSlotManager is a list manager for physical slots. This manager
object is the main interface for inserting, updating, retrieving and
deleting variable sized records on fixed size pages. Records may span
multiple pages. Freed space is tracked by a FreePhysicalSlotManager and
reused by later allocations.

LogicalSlotManager

LogicalSlotManager is a list manager for logical slots. Logical slots are
stable pointers to physical slots which may move when a record is updated.
Freed logical slots are tracked by a FreeLogicalSlotManager.
*/
package slotting

import (
	"io"

	"github.com/maladkau/slotstore/file"
	"github.com/maladkau/slotstore/paging"
	"github.com/maladkau/slotstore/paging/view"
	"github.com/maladkau/slotstore/slotting/pageview"
	"github.com/maladkau/slotstore/util"
)

/*
AllocationRoundUpThreshold is the amount of space which is still acceptable
to lose on a page when an allocation is rounded up to fill the page exactly.
*/
const AllocationRoundUpThreshold = util.SizeInfoSize + 16

/*
PhysicalSlotManager data structure
*/
type PhysicalSlotManager struct {
	blockfile    *file.BlockFile          // BlockFile which is wrapped
	pager        *paging.PagedFile        // Pager for the BlockFile
	freeManager  *FreePhysicalSlotManager // Manager for free slots
	blockSize    uint32                   // Size of blocks
	cursorPage   uint64                   // Allocation cursor: page of the tail
	cursorOffset uint16                   // Allocation cursor: first free byte on the tail page
}

/*
NewPhysicalSlotManager creates a new object to manage physical slots. This
factory function requires two PagedFiles: the first will hold the actual
data, the second is used to manage free physical slots.
*/
func NewPhysicalSlotManager(pf *paging.PagedFile,
	fpf *paging.PagedFile, onlyAppend bool) *PhysicalSlotManager {

	bf := pf.BlockFile()
	freeManager := NewFreePhysicalSlotManager(fpf, onlyAppend)

	return &PhysicalSlotManager{bf, pf, freeManager, bf.BlockSize(), 0, 0}
}

/*
Insert inserts a new record and returns its location.
*/
func (psm *PhysicalSlotManager) Insert(data []byte, start uint32, length uint32) (uint64, error) {

	if length == 0 {
		panic("Cannot insert 0 bytes of data")
	}

	loc, err := psm.allocate(length)
	if err != nil {
		return 0, err
	}

	if err := psm.write(loc, data, start, length); err != nil {

		// Give the allocated space back to the free manager - the free
		// information is written to disk on the next flush

		psm.freeManager.Add(loc, util.NormalizeSlotSize(length))

		return 0, err
	}

	return loc, nil
}

/*
Update updates the record at a given location. Returns the (possibly new)
location of the record.
*/
func (psm *PhysicalSlotManager) Update(loc uint64, data []byte, start uint32,
	length uint32) (uint64, error) {

	pageNumber := util.LocationPage(loc)
	offset := util.LocationOffset(loc)

	block, err := psm.blockfile.Get(pageNumber)
	if err != nil {
		return 0, err
	}

	avail := util.AvailableSize(block, int(offset))

	psm.blockfile.ReleaseID(pageNumber, false)

	relocated := false

	if length > avail || avail-length > util.MaxAvailableSizeDifference {

		// The slot is either too small or would waste too much space -
		// the unused space of a slot must fit in its header

		if err := psm.Free(loc); err != nil {
			return 0, err
		}

		loc, err = psm.allocate(length)
		if err != nil {
			return 0, err
		}

		relocated = true
	}

	if err := psm.write(loc, data, start, length); err != nil {

		// Give newly allocated space back to the free manager - the free
		// information is written to disk on the next flush

		if relocated {
			psm.freeManager.Add(loc, util.NormalizeSlotSize(length))
		}

		return 0, err
	}

	return loc, nil
}

/*
Fetch fetches the record at a given location and writes it to a given
writer. An empty slot produces no output.
*/
func (psm *PhysicalSlotManager) Fetch(loc uint64, writer io.Writer) error {

	pageNumber := util.LocationPage(loc)
	offset := util.LocationOffset(loc)

	block, err := psm.blockfile.Get(pageNumber)
	if err != nil {
		return err
	}

	toRead := util.CurrentSize(block, int(offset))

	if toRead == 0 {
		psm.blockfile.ReleaseID(pageNumber, false)
		return nil
	}

	pos := uint32(offset) + util.SizeInfoSize

	for {
		n := psm.blockSize - pos
		if n > toRead {
			n = toRead
		}

		if _, err := writer.Write(block.Data()[pos : pos+n]); err != nil {
			psm.blockfile.ReleaseID(pageNumber, false)
			return err
		}

		toRead -= n

		if toRead == 0 {
			break
		}

		// The record continues at the beginning of the next page

		nextPage := view.GetPageView(block).NextPage()

		psm.blockfile.ReleaseID(pageNumber, false)

		if nextPage == 0 {
			panic("Record is missing a continuation page")
		}

		pageNumber = nextPage

		block, err = psm.blockfile.Get(pageNumber)
		if err != nil {
			return err
		}

		pos = pageview.OffsetData
	}

	psm.blockfile.ReleaseID(pageNumber, false)

	return nil
}

/*
Free frees the slot at a given location. The freed slot is given to the
free manager for later reuse.
*/
func (psm *PhysicalSlotManager) Free(loc uint64) error {

	pageNumber := util.LocationPage(loc)
	offset := util.LocationOffset(loc)

	block, err := psm.blockfile.Get(pageNumber)
	if err != nil {
		return err
	}

	avail := util.AvailableSize(block, int(offset))

	util.SetCurrentSize(block, int(offset), 0)

	if err := psm.blockfile.ReleaseID(pageNumber, true); err != nil {
		return err
	}

	psm.freeManager.Add(loc, avail)

	return nil
}

/*
Flush writes all pending free slot information.
*/
func (psm *PhysicalSlotManager) Flush() error {
	return psm.freeManager.Flush()
}

/*
Rollback invalidates the allocation cursor and forgets all free slot
information which was not yet flushed. The next allocation has to examine
the tail page again. Page level rollback is handled by the underlying
BlockFile.
*/
func (psm *PhysicalSlotManager) Rollback() {
	psm.cursorPage = 0
	psm.cursorOffset = 0

	psm.freeManager.slots = make([]uint64, 0)
	psm.freeManager.sizes = make([]uint32, 0)
	psm.freeManager.lastMaxSlotSize = 0
}

/*
allocate allocates a slot which can hold the given amount of data. Freed
slots are reused before new space is allocated at the tail.
*/
func (psm *PhysicalSlotManager) allocate(size uint32) (uint64, error) {

	size = util.NormalizeSlotSize(size)

	loc, err := psm.freeManager.Get(size)
	if err != nil {
		return 0, err
	}

	if loc != 0 {
		return loc, nil
	}

	return psm.allocateNew(size, psm.pager.Last(view.TypeDataPage))
}

/*
allocateNew allocates a new slot of a given size at the tail of the data
page list. The allocation may span multiple pages. Returns the location of
the new slot.
*/
func (psm *PhysicalSlotManager) allocateNew(size uint32, startPage uint64) (uint64, error) {

	var block *file.Block
	var page uint64
	var hdr uint16
	var err error

	dataPerPage := psm.blockSize - pageview.OffsetData

	// The restart sites of the allocation algorithm (tail page is full or
	// holds only continuation data) start over with startPage 0

	for block == nil {

		if startPage == 0 || (psm.cursorPage == startPage &&
			uint32(psm.cursorOffset) == psm.blockSize) {

			// There is no tail page or the tail page is known to be full -
			// allocate a fresh page

			page, err = psm.pager.AllocatePage(view.TypeDataPage)
			if err != nil {
				return 0, err
			}

			block, err = psm.blockfile.Get(page)
			if err != nil {
				return 0, err
			}

			dp := pageview.NewDataPage(block)
			dp.SetOffsetFirst(pageview.OffsetData)

			hdr = pageview.OffsetData

			continue
		}

		b, err := psm.blockfile.Get(startPage)
		if err != nil {
			return 0, err
		}

		dp := pageview.NewDataPage(b)
		first := dp.OffsetFirst()

		if first == 0 {

			// The page holds only continuation data - start over with a
			// fresh page

			psm.blockfile.ReleaseID(startPage, false)
			startPage = 0
			continue
		}

		var pos uint32
		restart := false

		if psm.cursorPage == startPage && psm.cursorOffset != 0 {

			// The cursor points at the first free byte of this page

			pos = uint32(psm.cursorOffset)

		} else {

			// Walk the slots from the first header until an empty slot
			// header is found

			pos = uint32(first)

			for pos+util.SizeInfoSize <= psm.blockSize {
				avail := util.AvailableSize(b, int(pos))
				if avail == 0 {
					break
				}
				pos += avail + util.SizeInfoSize
			}
		}

		if pos+util.SizeInfoSize+1 > psm.blockSize {

			// Not even a slot header with one byte of data fits here
			// anymore - the page is full

			restart = true
		}

		if restart {
			psm.blockfile.ReleaseID(startPage, false)
			psm.cursorPage = 0
			psm.cursorOffset = 0
			startPage = 0
			continue
		}

		block = b
		page = startPage
		hdr = uint16(pos)
	}

	freeHere := psm.blockSize - uint32(hdr) - util.SizeInfoSize

	if freeHere >= size {

		// The slot fits into this page

		if freeHere-size <= AllocationRoundUpThreshold {

			// The space left over is too small for another slot - round
			// the allocation up so the slot consumes the page exactly

			size = freeHere
		}

		util.SetAvailableSize(block, int(hdr), size)

		psm.cursorPage = page
		psm.cursorOffset = uint16(uint32(hdr) + util.SizeInfoSize + size)

		psm.blockfile.ReleaseID(page, true)

		return util.PackLocation(page, hdr), nil
	}

	// The slot spans continuation pages

	neededLeft := size - freeHere
	lastFragment := neededLeft % dataPerPage

	if lastFragment > 0 && dataPerPage-lastFragment < AllocationRoundUpThreshold {

		// The final page would be almost full - grow the allocation so it
		// consumes the final page completely

		size += dataPerPage - lastFragment
		size = util.NormalizeSlotSize(size)
		neededLeft = size - freeHere
	}

	util.SetAvailableSize(block, int(hdr), size)

	psm.blockfile.ReleaseID(page, true)

	var contPage uint64

	for neededLeft >= dataPerPage {

		// Allocate full continuation pages

		contPage, err = psm.pager.AllocatePage(view.TypeDataPage)
		if err != nil {
			psm.cursorPage = 0
			psm.cursorOffset = 0
			return 0, err
		}

		cb, err := psm.blockfile.Get(contPage)
		if err != nil {
			psm.cursorPage = 0
			psm.cursorOffset = 0
			return 0, err
		}

		dp := pageview.NewDataPage(cb)
		dp.SetOffsetFirst(0)

		psm.blockfile.ReleaseID(contPage, true)

		neededLeft -= dataPerPage
	}

	if neededLeft > 0 {

		// Allocate the final partially filled continuation page - the
		// offset of the first record points just past the continuation
		// data

		contPage, err = psm.pager.AllocatePage(view.TypeDataPage)
		if err != nil {
			psm.cursorPage = 0
			psm.cursorOffset = 0
			return 0, err
		}

		cb, err := psm.blockfile.Get(contPage)
		if err != nil {
			psm.cursorPage = 0
			psm.cursorOffset = 0
			return 0, err
		}

		dp := pageview.NewDataPage(cb)
		dp.SetOffsetFirst(uint16(pageview.OffsetData + neededLeft))

		psm.blockfile.ReleaseID(contPage, true)

		psm.cursorPage = contPage
		psm.cursorOffset = uint16(pageview.OffsetData + neededLeft)

	} else {

		// The last continuation page was filled exactly

		psm.cursorPage = contPage
		psm.cursorOffset = uint16(psm.blockSize)
	}

	return util.PackLocation(page, hdr), nil
}

/*
write writes a record to a given slot. The record data is spilled over to
continuation pages in the same way Fetch reads it back.
*/
func (psm *PhysicalSlotManager) write(loc uint64, data []byte, start uint32, length uint32) error {

	pageNumber := util.LocationPage(loc)
	offset := util.LocationOffset(loc)

	block, err := psm.blockfile.Get(pageNumber)
	if err != nil {
		return err
	}

	util.SetCurrentSize(block, int(offset), length)

	if length == 0 {
		return psm.blockfile.ReleaseID(pageNumber, true)
	}

	pos := uint32(offset) + util.SizeInfoSize
	index := start
	toWrite := length

	for {
		n := psm.blockSize - pos
		if n > toWrite {
			n = toWrite
		}

		copy(block.Data()[pos:pos+n], data[index:index+n])
		block.SetDirty()

		toWrite -= n
		index += n

		if toWrite == 0 {
			break
		}

		// The record continues at the beginning of the next page

		nextPage := view.GetPageView(block).NextPage()

		psm.blockfile.ReleaseID(pageNumber, true)

		if nextPage == 0 {
			panic("Record is missing a continuation page")
		}

		pageNumber = nextPage

		block, err = psm.blockfile.Get(pageNumber)
		if err != nil {
			return err
		}

		pos = pageview.OffsetData
	}

	return psm.blockfile.ReleaseID(pageNumber, true)
}
