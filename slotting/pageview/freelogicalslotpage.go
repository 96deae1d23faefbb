/*
 * SlotStore
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package pageview

import (
	"github.com/maladkau/slotstore/file"
	"github.com/maladkau/slotstore/paging/view"
	"github.com/maladkau/slotstore/util"
)

/*
OffsetFreeLogicalSlotCount is the number of free logical slots which are
stored on this page
*/
const OffsetFreeLogicalSlotCount = view.OffsetData

/*
OffsetFreeLogicalSlotInfo is the offset for slot information
*/
const OffsetFreeLogicalSlotInfo = OffsetFreeLogicalSlotCount + file.SizeShort

/*
FreeLogicalSlotInfoSize is the size of a single free logical slot info
*/
const FreeLogicalSlotInfoSize = util.LocationSize

/*
FreeLogicalSlotPage data structure
*/
type FreeLogicalSlotPage struct {
	*SlotInfoPage
	maxSlots               uint16 // Max number of slots
	prevFoundAllocatedSlot uint16 // Previous found allocated slot
}

/*
NewFreeLogicalSlotPage creates a new page which can manage free logical
slots.
*/
func NewFreeLogicalSlotPage(block *file.Block) *FreeLogicalSlotPage {
	checkFreeLogicalSlotPageMagic(block)

	maxSlots := (len(block.Data()) - OffsetFreeLogicalSlotInfo) / FreeLogicalSlotInfoSize

	return &FreeLogicalSlotPage{NewSlotInfoPage(block), uint16(maxSlots), 0}
}

/*
checkFreeLogicalSlotPageMagic checks if the magic number at the beginning
of the wrapped block is valid.
*/
func checkFreeLogicalSlotPageMagic(block *file.Block) bool {
	magic := block.ReadInt16(0)

	if magic == view.ViewPageHeader+view.TypeFreeLogicalSlotPage {
		return true
	}
	panic("Unexpected header found in FreeLogicalSlotPage")
}

/*
MaxSlots returns the maximum number of slots which can be stored.
*/
func (flsp *FreeLogicalSlotPage) MaxSlots() uint16 {
	return flsp.maxSlots
}

/*
FreeSlotCount returns the number of free slots on this page.
*/
func (flsp *FreeLogicalSlotPage) FreeSlotCount() uint16 {
	return flsp.Block.ReadUInt16(OffsetFreeLogicalSlotCount)
}

/*
SlotInfoLocation returns the contents of a stored slotinfo as a location.
Lookup is via a given slotinfo id.
*/
func (flsp *FreeLogicalSlotPage) SlotInfoLocation(slotinfo uint16) uint64 {
	offset := flsp.slotinfoToOffset(slotinfo)
	return util.PackLocation(flsp.SlotInfoPageNumber(offset), flsp.SlotInfoOffset(offset))
}

/*
AllocateSlotInfo allocates a place for a slotinfo and returns the offset for
it.
*/
func (flsp *FreeLogicalSlotPage) AllocateSlotInfo(slotinfo uint16) uint16 {
	offset := flsp.slotinfoToOffset(slotinfo)

	// Set slotinfo to initial values

	flsp.SetSlotInfo(offset, 1, 1)

	// Increase counter for allocated slotinfos

	flsp.Block.WriteUInt16(OffsetFreeLogicalSlotCount, flsp.FreeSlotCount()+1)

	// Update the scan start point for allocated slots

	if slotinfo < flsp.prevFoundAllocatedSlot {
		flsp.prevFoundAllocatedSlot = slotinfo
	}

	return offset
}

/*
ReleaseSlotInfo releases a place for a slotinfo and returns its offset.
*/
func (flsp *FreeLogicalSlotPage) ReleaseSlotInfo(slotinfo uint16) uint16 {
	offset := flsp.slotinfoToOffset(slotinfo)

	// Set slotinfo to empty values

	flsp.SetSlotInfo(offset, 0, 0)

	// Decrease counter for allocated slotinfos

	flsp.Block.WriteUInt16(OffsetFreeLogicalSlotCount, flsp.FreeSlotCount()-1)

	return offset
}

/*
FirstFreeSlotInfo returns the id of the first available slotinfo for
allocation or -1 if nothing is available.
*/
func (flsp *FreeLogicalSlotPage) FirstFreeSlotInfo() int {
	var i uint16
	for i = 0; i < flsp.maxSlots; i++ {
		if !flsp.isAllocatedSlot(i) {
			return int(i)
		}
	}
	return -1
}

/*
FirstAllocatedSlotInfo returns the id of the first allocated slotinfo or -1
if nothing is allocated. Scans start from the previously found slot since
slotinfos are usually consumed in order.
*/
func (flsp *FreeLogicalSlotPage) FirstAllocatedSlotInfo() int {
	var i uint16
	for i = flsp.prevFoundAllocatedSlot; i < flsp.maxSlots; i++ {
		if flsp.isAllocatedSlot(i) {
			flsp.prevFoundAllocatedSlot = i
			return int(i)
		}
	}
	return -1
}

/*
isAllocatedSlot checks if a given slotinfo is allocated.
*/
func (flsp *FreeLogicalSlotPage) isAllocatedSlot(slotinfo uint16) bool {
	return flsp.SlotInfoLocation(slotinfo) != 0
}

/*
slotinfoToOffset converts a slotinfo number into an offset on the block.
*/
func (flsp *FreeLogicalSlotPage) slotinfoToOffset(slotinfo uint16) uint16 {
	return OffsetFreeLogicalSlotInfo + slotinfo*FreeLogicalSlotInfoSize
}
