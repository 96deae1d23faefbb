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
Package view contains general page view constants and functions.

PageView is the super-struct for all page views. A page view is special
object attached to a particular block which gives the block a specific
meaning. All page views manage the first 18 bytes of a page: a magic number
which also encodes the page type and pointers to the previous and next page
of the same type.
*/
package view

import (
	"fmt"

	"github.com/maladkau/slotstore/file"
)

/*
ViewPageHeader is the magic number to identify page views
*/
const ViewPageHeader = 0x1990

/*
OffsetNextPage is the offset of the pointer to the next page
*/
const OffsetNextPage = file.SizeShort

/*
OffsetPrevPage is the offset of the pointer to the previous page
*/
const OffsetPrevPage = OffsetNextPage + file.SizeLong

/*
OffsetData is the first offset which can be used for data by page view
implementations
*/
const OffsetData = OffsetPrevPage + file.SizeLong

/*
PageView data structure
*/
type PageView struct {
	Block *file.Block // Block which this page view is attached to
}

/*
NewPageView creates a new page view object for a given block, writing the
magic number for the given page type.
*/
func NewPageView(block *file.Block, ptype int16) *PageView {
	pv := &PageView{block}

	block.WriteInt16(0, ViewPageHeader+ptype)
	block.SetPageView(pv)

	return pv
}

/*
GetPageView returns the page view of a given block. The block must contain
a valid page view magic number.
*/
func GetPageView(block *file.Block) *PageView {

	if pv, ok := block.PageView().(*PageView); ok {
		return pv
	}

	pv := &PageView{block}
	pv.checkMagic()

	block.SetPageView(pv)

	return pv
}

/*
checkMagic checks the magic number of the attached block.
*/
func (pv *PageView) checkMagic() bool {
	magic := pv.Block.ReadInt16(0)

	if magic >= ViewPageHeader &&
		magic <= ViewPageHeader+TypeFreePhysicalSlotPage {
		return true
	}

	panic("Unexpected header found in PageView")
}

/*
Type returns the type of the page this view is attached to.
*/
func (pv *PageView) Type() int16 {
	return pv.Block.ReadInt16(0) - ViewPageHeader
}

/*
NextPage returns the pointer to the next page of the same type.
*/
func (pv *PageView) NextPage() uint64 {
	pv.checkMagic()
	return pv.Block.ReadUInt64(OffsetNextPage)
}

/*
SetNextPage sets the pointer to the next page of the same type.
*/
func (pv *PageView) SetNextPage(val uint64) {
	pv.checkMagic()
	pv.Block.WriteUInt64(OffsetNextPage, val)
}

/*
PrevPage returns the pointer to the previous page of the same type.
*/
func (pv *PageView) PrevPage() uint64 {
	pv.checkMagic()
	return pv.Block.ReadUInt64(OffsetPrevPage)
}

/*
SetPrevPage sets the pointer to the previous page of the same type.
*/
func (pv *PageView) SetPrevPage(val uint64) {
	pv.checkMagic()
	pv.Block.WriteUInt64(OffsetPrevPage, val)
}

/*
String returns a string representation of this page view.
*/
func (pv *PageView) String() string {
	return fmt.Sprintf("PageView: %v (type:%v previous page:%v next page:%v)",
		pv.Block.ID(), pv.Type(), pv.PrevPage(), pv.NextPage())
}
