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
OffsetCount is the number of free slots which are stored on this page
*/
const OffsetCount = view.OffsetData

/*
OffsetSlotInfo is the offset for slot information
*/
const OffsetSlotInfo = OffsetCount + file.SizeShort

/*
SlotInfoSize is the size of a single free physical slot info
*/
const SlotInfoSize = util.LocationSize + file.SizeUnsignedInt

/*
OptimalWasteMargin is the max amount of allowed allocation waste. When
searching a slot on this page we should strive to find a slot which doesn't
waste more than OptimalWasteMargin bytes.
*/
const OptimalWasteMargin = 128

/*
FreePhysicalSlotPage data structure
*/
type FreePhysicalSlotPage struct {
	*SlotInfoPage
	maxSlots           uint16   // Max number of slots
	maxAcceptableWaste uint32   // Max acceptable waste for a slot allocation
	sizeCache          []uint32 // Cache for slot sizes
}

/*
NewFreePhysicalSlotPage creates a new page which can manage free physical
slots.
*/
func NewFreePhysicalSlotPage(block *file.Block) *FreePhysicalSlotPage {
	checkFreePhysicalSlotPageMagic(block)

	maxSlots := (len(block.Data()) - OffsetSlotInfo) / SlotInfoSize
	maxAcceptableWaste := len(block.Data()) / 4

	return &FreePhysicalSlotPage{NewSlotInfoPage(block), uint16(maxSlots),
		uint32(maxAcceptableWaste), make([]uint32, maxSlots)}
}

/*
checkFreePhysicalSlotPageMagic checks if the magic number at the beginning
of the wrapped block is valid.
*/
func checkFreePhysicalSlotPageMagic(block *file.Block) bool {
	magic := block.ReadInt16(0)

	if magic == view.ViewPageHeader+view.TypeFreePhysicalSlotPage {
		return true
	}
	panic("Unexpected header found in FreePhysicalSlotPage")
}

/*
MaxSlots returns the maximum number of slots which can be stored.
*/
func (fpsp *FreePhysicalSlotPage) MaxSlots() uint16 {
	return fpsp.maxSlots
}

/*
FreeSlotCount returns the number of free slots on this page.
*/
func (fpsp *FreePhysicalSlotPage) FreeSlotCount() uint16 {
	return fpsp.Block.ReadUInt16(OffsetCount)
}

/*
SlotInfoLocation returns the contents of a stored slotinfo as a location.
Lookup is via a given slotinfo id.
*/
func (fpsp *FreePhysicalSlotPage) SlotInfoLocation(slotinfo uint16) uint64 {
	offset := fpsp.slotinfoToOffset(slotinfo)
	return util.PackLocation(fpsp.SlotInfoPageNumber(offset), fpsp.SlotInfoOffset(offset))
}

/*
FreeSlotSize returns the size of a free slot. Lookup is via offset.
*/
func (fpsp *FreePhysicalSlotPage) FreeSlotSize(offset uint16) uint32 {
	slotinfo := fpsp.offsetToSlotinfo(offset)
	if fpsp.sizeCache[slotinfo] == 0 {
		fpsp.sizeCache[slotinfo] = fpsp.Block.ReadUInt32(int(offset + util.LocationSize))
	}
	return fpsp.sizeCache[slotinfo]
}

/*
SetFreeSlotSize sets the size of a free slot. Lookup is via offset.
*/
func (fpsp *FreePhysicalSlotPage) SetFreeSlotSize(offset uint16, size uint32) {
	slotinfo := fpsp.offsetToSlotinfo(offset)
	fpsp.sizeCache[slotinfo] = size
	fpsp.Block.WriteUInt32(int(offset+util.LocationSize), size)
}

/*
AllocateSlotInfo allocates a place for a slotinfo and returns the offset for
it.
*/
func (fpsp *FreePhysicalSlotPage) AllocateSlotInfo(slotinfo uint16) uint16 {
	offset := fpsp.slotinfoToOffset(slotinfo)

	// Set slotinfo to initial values

	fpsp.SetFreeSlotSize(offset, 1)
	fpsp.SetSlotInfo(offset, 1, 1)

	// Increase counter for allocated slotinfos

	fpsp.Block.WriteUInt16(OffsetCount, fpsp.FreeSlotCount()+1)

	return offset
}

/*
ReleaseSlotInfo releases a place for a slotinfo and returns its offset.
*/
func (fpsp *FreePhysicalSlotPage) ReleaseSlotInfo(slotinfo uint16) uint16 {
	offset := fpsp.slotinfoToOffset(slotinfo)

	// Set slotinfo to empty values

	fpsp.SetFreeSlotSize(offset, 0)
	fpsp.SetSlotInfo(offset, 0, 0)

	// Decrease counter for allocated slotinfos

	fpsp.Block.WriteUInt16(OffsetCount, fpsp.FreeSlotCount()-1)

	return offset
}

/*
FirstFreeSlotInfo returns the id of the first available slotinfo for
allocation or -1 if nothing is available.
*/
func (fpsp *FreePhysicalSlotPage) FirstFreeSlotInfo() int {
	var i uint16
	for i = 0; i < fpsp.maxSlots; i++ {
		if !fpsp.isAllocatedSlot(i) {
			return int(i)
		}
	}
	return -1
}

/*
FindSlot finds a slot which is suitable for a given amount of data but which
is also not too big to avoid wasting space. Returns either a slotinfo id or
the negated biggest free slot size on this page if no slot was found.
*/
func (fpsp *FreePhysicalSlotPage) FindSlot(minSize uint32) int {

	var i uint16

	bestSlot := -1
	bestSlotWaste := fpsp.maxAcceptableWaste + 1

	var maxSize uint32

	for i = 0; i < fpsp.maxSlots; i++ {

		slotinfoOffset := fpsp.slotinfoToOffset(i)

		slotinfoSize := fpsp.FreeSlotSize(slotinfoOffset)

		if slotinfoSize > maxSize {
			maxSize = slotinfoSize
		}

		// Test if the slot would fit and calculate the wasted space

		if slotinfoSize >= minSize {

			waste := slotinfoSize - minSize

			if waste < OptimalWasteMargin {

				// In the ideal case we can minimise the produced waste

				return int(i)

			} else if bestSlotWaste > waste {

				// Too much for the optimal waste margin but may still be
				// OK if we don't find anything better

				bestSlot = int(i)
				bestSlotWaste = waste
			}
		}
	}

	if bestSlot != -1 {

		// We found a slot but its waste was above the optimal waste margin
		// check if it is still acceptable

		// Note: It must be below MaxAvailableSizeDifference as a slot
		// stores the current size as the difference to the available size.
		// This difference must fit in an unsigned short.

		if bestSlotWaste < fpsp.maxAcceptableWaste &&
			bestSlotWaste < util.MaxAvailableSizeDifference {

			return bestSlot
		}
	}

	return -int(maxSize)
}

/*
isAllocatedSlot checks if a given slotinfo is allocated.
*/
func (fpsp *FreePhysicalSlotPage) isAllocatedSlot(slotinfo uint16) bool {
	offset := fpsp.slotinfoToOffset(slotinfo)
	return fpsp.FreeSlotSize(offset) != 0
}

/*
slotinfoToOffset converts a slotinfo number into an offset on the block.
*/
func (fpsp *FreePhysicalSlotPage) slotinfoToOffset(slotinfo uint16) uint16 {
	return OffsetSlotInfo + slotinfo*SlotInfoSize
}

/*
offsetToSlotinfo converts an offset into a slotinfo number.
*/
func (fpsp *FreePhysicalSlotPage) offsetToSlotinfo(offset uint16) uint16 {
	return (offset - OffsetSlotInfo) / SlotInfoSize
}
