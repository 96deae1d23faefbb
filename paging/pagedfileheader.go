/*
 * SlotStore
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package paging

import "github.com/maladkau/slotstore/file"

/*
PageHeader is the magic number to identify the header block of a paged file
*/
const PageHeader = 0x1980

/*
TotalLists is the number of page lists which can be stored in this header
*/
const TotalLists = 5

/*
OffsetLists is the offset for list entries in this header
*/
const OffsetLists = 2

/*
OffsetRoots is the offset for root values in this header
*/
const OffsetRoots = OffsetLists + (2 * TotalLists * file.SizeLong)

/*
PagedFileHeader data structure
*/
type PagedFileHeader struct {
	block      *file.Block // Block which is used for the header information
	totalRoots int         // Number of root values which can be stored
}

/*
NewPagedFileHeader creates a new NewPagedFileHeader.
*/
func NewPagedFileHeader(block *file.Block, isnew bool) *PagedFileHeader {
	totalRoots := (len(block.Data()) - OffsetRoots) / file.SizeLong
	if totalRoots < 1 {
		panic("Cannot store any roots - block is too small")
	}

	ret := &PagedFileHeader{block, totalRoots}

	if isnew {
		block.WriteUInt16(0, PageHeader)
	} else {
		ret.CheckMagic()
	}

	return ret
}

/*
CheckMagic checks the header magic value of this header.
*/
func (pfh *PagedFileHeader) CheckMagic() {
	if pfh.block.ReadUInt16(0) != PageHeader {
		panic("Unexpected header found in PagedFileHeader")
	}
}

/*
Roots returns the number of possible root values which can be set.
*/
func (pfh *PagedFileHeader) Roots() int {
	return pfh.totalRoots
}

/*
Root returns a root value.
*/
func (pfh *PagedFileHeader) Root(root int) uint64 {
	return pfh.block.ReadUInt64(offsetRoot(root))
}

/*
SetRoot sets a root value.
*/
func (pfh *PagedFileHeader) SetRoot(root int, val uint64) {
	pfh.block.WriteUInt64(offsetRoot(root), val)
}

/*
offsetRoot calculates the offset of a root in the header block.
*/
func offsetRoot(root int) int {
	return OffsetRoots + root*file.SizeLong
}

/*
FirstListElement returns the first element of a list.
*/
func (pfh *PagedFileHeader) FirstListElement(list int16) uint64 {
	return pfh.block.ReadUInt64(offsetFirstListElement(list))
}

/*
SetFirstListElement sets the first element of a list.
*/
func (pfh *PagedFileHeader) SetFirstListElement(list int16, val uint64) {
	pfh.block.WriteUInt64(offsetFirstListElement(list), val)
}

/*
LastListElement returns the last element of a list.
*/
func (pfh *PagedFileHeader) LastListElement(list int16) uint64 {
	return pfh.block.ReadUInt64(offsetLastListElement(list))
}

/*
SetLastListElement sets the last element of a list.
*/
func (pfh *PagedFileHeader) SetLastListElement(list int16, val uint64) {
	pfh.block.WriteUInt64(offsetLastListElement(list), val)
}

/*
offsetFirstListElement returns the offset of the first element of a list.
*/
func offsetFirstListElement(list int16) int {
	return OffsetLists + 2*file.SizeLong*int(list)
}

/*
offsetLastListElement returns the offset of the last element of a list.
*/
func offsetLastListElement(list int16) int {
	return offsetFirstListElement(list) + file.SizeLong
}
