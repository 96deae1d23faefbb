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
	"fmt"

	"github.com/maladkau/slotstore/file"
	"github.com/maladkau/slotstore/paging/view"
)

/*
OffsetFirst is a pointer to the first element on the page
*/
const OffsetFirst = view.OffsetData

/*
OffsetData is the offset for actual data on a DataPage
*/
const OffsetData = OffsetFirst + file.SizeShort

/*
DataPage data structure
*/
type DataPage struct {
	*SlotInfoPage
}

/*
NewDataPage creates a new page which holds actual data.
*/
func NewDataPage(block *file.Block) *DataPage {
	checkDataPageMagic(block)
	dp := &DataPage{NewSlotInfoPage(block)}
	return dp
}

/*
checkDataPageMagic checks if the magic number at the beginning of
the wrapped block is valid.
*/
func checkDataPageMagic(block *file.Block) bool {
	magic := block.ReadInt16(0)

	if magic == view.ViewPageHeader+view.TypeDataPage {
		return true
	}
	panic("Unexpected header found in DataPage")
}

/*
DataSpace returns the available data space on this page.
*/
func (dp *DataPage) DataSpace() uint16 {
	return uint16(len(dp.Block.Data()) - OffsetData)
}

/*
OffsetFirst returns the pointer to the first element on the page.
*/
func (dp *DataPage) OffsetFirst() uint16 {
	return dp.Block.ReadUInt16(OffsetFirst)
}

/*
SetOffsetFirst sets the pointer to the first element on the page.
*/
func (dp *DataPage) SetOffsetFirst(first uint16) {
	if first > 0 && first < OffsetData {
		panic(fmt.Sprint("Cannot set offset of first element on DataPage below ", OffsetData))
	}
	dp.Block.WriteUInt16(OffsetFirst, first)
}
