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
Package pageview contains object wrappers for different page types.

DataPage

DataPage is a page which holds actual data.

FreeLogicalSlotPage

FreeLogicalSlotPage is a page which holds information about free logical
slots. The page stores the slot location in a slotinfo data structure.

FreePhysicalSlotPage

FreePhysicalSlotPage is a page which holds information about free physical
slots. The page stores the slot location and its size in a slotinfo data
structure; the size is a plain 32-bit value following the location.

SlotInfoPage

SlotInfoPage is the super-struct for all page views which manage slotinfos.
Slotinfos are location (see util/location.go) pointers into the data store
containing a page number and an offset.

TransPage

TransPage is a page which holds data to translate between physical and
logical slots.
*/
package pageview

import (
	"github.com/maladkau/slotstore/file"
	"github.com/maladkau/slotstore/paging/view"
	"github.com/maladkau/slotstore/util"
)

/*
SlotInfoPage data structure
*/
type SlotInfoPage struct {
	*view.PageView
}

/*
NewSlotInfoPage creates a new SlotInfoPage object which can manage
slotinfos.
*/
func NewSlotInfoPage(block *file.Block) *SlotInfoPage {
	pv := view.GetPageView(block)
	return &SlotInfoPage{pv}
}

/*
SlotInfoPageNumber gets the page number of a stored slotinfo.
*/
func (sp *SlotInfoPage) SlotInfoPageNumber(offset uint16) uint64 {
	return util.LocationPage(sp.Block.ReadUInt64(int(offset)))
}

/*
SlotInfoOffset gets the page offset of a stored slotinfo.
*/
func (sp *SlotInfoPage) SlotInfoOffset(offset uint16) uint16 {
	return util.LocationOffset(sp.Block.ReadUInt64(int(offset)))
}

/*
SetSlotInfo stores a slotinfo on the page.
*/
func (sp *SlotInfoPage) SetSlotInfo(slotinfoOffset uint16, pageNumber uint64, offset uint16) {
	sp.Block.WriteUInt64(int(slotinfoOffset), util.PackLocation(pageNumber, offset))
}
