/*
 * SlotStore
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package slotting

import (
	"fmt"

	"github.com/maladkau/slotstore/file"
	"github.com/maladkau/slotstore/paging"
	"github.com/maladkau/slotstore/paging/view"
	"github.com/maladkau/slotstore/slotting/pageview"
	"github.com/maladkau/slotstore/util"
)

/*
FreeLogicalSlotManager data structure
*/
type FreeLogicalSlotManager struct {
	blockfile *file.BlockFile   // BlockFile which is wrapped
	pager     *paging.PagedFile // Pager for the BlockFile
	slots     []uint64          // List of free slots
}

/*
NewFreeLogicalSlotManager creates a new object to manage free logical slots.
*/
func NewFreeLogicalSlotManager(pf *paging.PagedFile) *FreeLogicalSlotManager {
	return &FreeLogicalSlotManager{pf.BlockFile(), pf, make([]uint64, 0)}
}

/*
Get returns a free logical slot or 0 if none is available.
*/
func (flsm *FreeLogicalSlotManager) Get() (uint64, error) {

	// Serve from the in-memory list first

	if len(flsm.slots) > 0 {
		slot := flsm.slots[len(flsm.slots)-1]
		flsm.slots = flsm.slots[:len(flsm.slots)-1]
		return slot, nil
	}

	cursor := paging.NewPageCursor(flsm.pager, view.TypeFreeLogicalSlotPage, 0)

	// No need for error checking on cursor next since all pages will be
	// opened via Get calls in the loop.

	page, _ := cursor.Next()
	for page != 0 {

		block, err := flsm.blockfile.Get(page)
		if err != nil {
			return 0, err
		}

		flsp := pageview.NewFreeLogicalSlotPage(block)

		// Skip pages which list no free slots

		if flsp.FreeSlotCount() == 0 {
			flsm.blockfile.ReleaseID(page, false)

			page, _ = cursor.Next()
			continue
		}

		slot := flsp.FirstAllocatedSlotInfo()

		loc := flsp.SlotInfoLocation(uint16(slot))

		flsp.ReleaseSlotInfo(uint16(slot))

		if flsp.FreeSlotCount() == 0 {

			// Free the page if no free slot is stored

			flsm.blockfile.ReleaseID(page, false)
			flsm.pager.FreePage(page)

		} else {

			flsm.blockfile.ReleaseID(page, true)
		}

		return loc, nil
	}

	return 0, nil
}

/*
Add adds a slot to the free slot set.
*/
func (flsm *FreeLogicalSlotManager) Add(loc uint64) {
	if loc == 0 {
		panic("Cannot add a free slot with location 0")
	}
	flsm.slots = append(flsm.slots, loc)
}

/*
Flush writes all added slots to FreeLogicalSlotPages.
*/
func (flsm *FreeLogicalSlotManager) Flush() error {

	cursor := paging.NewPageCursor(flsm.pager, view.TypeFreeLogicalSlotPage, 0)
	index := 0

	// Go through all existing free logical slot pages

	// No need for error checking on cursor next since all pages will be
	// opened via Get calls in the loop.

	page, _ := cursor.Next()
	for page != 0 {

		var err error

		index, err = flsm.doFlush(page, index)
		if err != nil {
			return err
		}

		if index >= len(flsm.slots) {
			break
		}

		page, _ = cursor.Next()
	}

	// Allocate new free logical slot pages if all present ones are full
	// and we have still slots to process

	for index < len(flsm.slots) {

		allocPage, err := flsm.pager.AllocatePage(view.TypeFreeLogicalSlotPage)
		if err != nil {
			return err
		}

		index, err = flsm.doFlush(allocPage, index)
		if err != nil {

			// Try to free the allocated page if there was an error
			// ignore any error of the FreePage call

			flsm.pager.FreePage(allocPage)

			return err
		}
	}

	// Clear the list after all slots have been written

	flsm.slots = make([]uint64, 0)

	return nil
}

/*
doFlush writes added slots to a given FreeLogicalSlotPage. Stops if the page
is full.
*/
func (flsm *FreeLogicalSlotManager) doFlush(page uint64, index int) (int, error) {
	block, err := flsm.blockfile.Get(page)

	if err != nil {
		return index, err
	}

	flsp := pageview.NewFreeLogicalSlotPage(block)

	// Iterate all page slots (stop if the page has no more available slots
	// or we reached the end of the page)

	slot := flsp.FirstFreeSlotInfo()

	for ; slot != -1 && index < len(flsm.slots); index++ {

		loc := flsm.slots[index]

		offset := flsp.AllocateSlotInfo(uint16(slot))
		flsp.SetSlotInfo(offset, util.LocationPage(loc), util.LocationOffset(loc))

		slot = flsp.FirstFreeSlotInfo()
	}

	flsm.blockfile.ReleaseID(page, true)

	return index, nil
}

/*
String returns a string representation of this FreeLogicalSlotManager.
*/
func (flsm *FreeLogicalSlotManager) String() string {
	return fmt.Sprintf("FreeLogicalSlotManager: %v\nIds  :%v\n",
		flsm.blockfile.Name(), flsm.slots)
}
