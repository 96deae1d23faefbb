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
Package paging contains functions and constants necessary for paging of
blocks.

	NOTE: Operations in this code are expected to either fail completely or
	succeed. Errors in the middle of an operation may leave the
	datastructures in an inconsistent state.

PagedFile

PagedFile is a wrapper object for a BlockFile which views the file blocks as
linked lists of pages. Pages of the same type form a doubly-linked list. The
entry points of the lists and the root values are stored in the header block
(see PagedFileHeader).

PageCursor

PageCursor is a pointer into a PagedFile and can be used to traverse a
linked list of pages.

PagedFileHeader

PagedFileHeader is a wrapper object for the header block of a BlockFile.
*/
package paging

import (
	"errors"

	"github.com/maladkau/slotstore/file"
	"github.com/maladkau/slotstore/paging/view"
)

/*
Common PagedFile related errors
*/
var (
	ErrFreePage = errors.New("Cannot allocate or free a free page")
	ErrHeader   = errors.New("Cannot free the header page")
)

/*
PagedFile data structure
*/
type PagedFile struct {
	blockfile *file.BlockFile  // BlockFile which is wrapped
	header    *PagedFileHeader // Header object of the BlockFile
}

/*
NewPagedFile creates a new paged file object for a given BlockFile. The
header block of the BlockFile stays in use until the PagedFile is closed.
*/
func NewPagedFile(bf *file.BlockFile) (*PagedFile, error) {
	ret := &PagedFile{bf, nil}

	if err := ret.acquireHeader(); err != nil {
		return nil, err
	}

	return ret, nil
}

/*
acquireHeader gets the header block and attaches a header object to it.
*/
func (pf *PagedFile) acquireHeader() error {
	block, err := pf.blockfile.Get(0)
	if err != nil {
		return err
	}

	isnew := block.ReadUInt16(0) != PageHeader

	pf.header = NewPagedFileHeader(block, isnew)

	return nil
}

/*
BlockFile returns the wrapped BlockFile.
*/
func (pf *PagedFile) BlockFile() *file.BlockFile {
	return pf.blockfile
}

/*
Header returns the header object of this PagedFile.
*/
func (pf *PagedFile) Header() *PagedFileHeader {
	return pf.header
}

/*
AllocatePage allocates a new page of a given type. Previously freed pages
are reused before the file is extended. The new page is appended at the end
of its type list.
*/
func (pf *PagedFile) AllocatePage(ptype int16) (uint64, error) {

	if ptype == view.TypeFreePage {
		return 0, ErrFreePage
	}

	ptr := pf.header.FirstListElement(view.TypeFreePage)

	if ptr != 0 {

		// Reuse the head of the free page list

		block, err := pf.blockfile.Get(ptr)
		if err != nil {
			return 0, err
		}

		pv := view.GetPageView(block)

		pf.header.SetFirstListElement(view.TypeFreePage, pv.NextPage())

		pv = view.NewPageView(block, ptype)
		pv.SetPrevPage(0)
		pv.SetNextPage(0)

		pf.blockfile.ReleaseID(ptr, true)

	} else {

		// Extend the file - the highest page number which was ever given
		// out is tracked in the (otherwise unused) last pointer slot of
		// the free page list

		ptr = pf.header.LastListElement(view.TypeFreePage) + 1

		block, err := pf.blockfile.Get(ptr)
		if err != nil {
			return 0, err
		}

		pf.header.SetLastListElement(view.TypeFreePage, ptr)

		pv := view.NewPageView(block, ptype)
		pv.SetPrevPage(0)
		pv.SetNextPage(0)

		pf.blockfile.ReleaseID(ptr, true)
	}

	// Insert the new page at the end of its type list

	last := pf.header.LastListElement(ptype)

	if last != 0 {

		lastBlock, err := pf.blockfile.Get(last)
		if err != nil {

			// The page stays allocated but is not linked to any list

			return 0, err
		}

		view.GetPageView(lastBlock).SetNextPage(ptr)
		pf.blockfile.ReleaseID(last, true)

		block, err := pf.blockfile.Get(ptr)
		if err != nil {
			return 0, err
		}

		view.GetPageView(block).SetPrevPage(last)
		pf.blockfile.ReleaseID(ptr, true)
	}

	pf.header.SetLastListElement(ptype, ptr)

	if pf.header.FirstListElement(ptype) == 0 {
		pf.header.SetFirstListElement(ptype, ptr)
	}

	return ptr, nil
}

/*
FreePage removes a page from its type list and pushes it onto the free page
list for later reuse.
*/
func (pf *PagedFile) FreePage(page uint64) error {

	if page == 0 {
		return ErrHeader
	}

	block, err := pf.blockfile.Get(page)
	if err != nil {
		return err
	}

	pv := view.GetPageView(block)
	ptype := pv.Type()

	if ptype == view.TypeFreePage {
		pf.blockfile.ReleaseID(page, false)
		return ErrFreePage
	}

	prev := pv.PrevPage()
	next := pv.NextPage()

	// Rewrite the page as a free page and push it onto the free list -
	// the free list is only threaded through the next pointers

	pv = view.NewPageView(block, view.TypeFreePage)
	pv.SetPrevPage(0)
	pv.SetNextPage(pf.header.FirstListElement(view.TypeFreePage))

	pf.header.SetFirstListElement(view.TypeFreePage, page)

	pf.blockfile.ReleaseID(page, true)

	// Unlink the page from its old list

	if prev != 0 {
		prevBlock, err := pf.blockfile.Get(prev)
		if err != nil {
			return err
		}
		view.GetPageView(prevBlock).SetNextPage(next)
		pf.blockfile.ReleaseID(prev, true)
	} else {
		pf.header.SetFirstListElement(ptype, next)
	}

	if next != 0 {
		nextBlock, err := pf.blockfile.Get(next)
		if err != nil {
			return err
		}
		view.GetPageView(nextBlock).SetPrevPage(prev)
		pf.blockfile.ReleaseID(next, true)
	} else {
		pf.header.SetLastListElement(ptype, prev)
	}

	return nil
}

/*
First returns the first page of a given type list.
*/
func (pf *PagedFile) First(ptype int16) uint64 {
	return pf.header.FirstListElement(ptype)
}

/*
Last returns the last page of a given type list.
*/
func (pf *PagedFile) Last(ptype int16) uint64 {
	return pf.header.LastListElement(ptype)
}

/*
Next returns the page which follows a given page in its type list.
*/
func (pf *PagedFile) Next(page uint64) (uint64, error) {
	block, err := pf.blockfile.Get(page)
	if err != nil {
		return 0, err
	}

	val := view.GetPageView(block).NextPage()

	pf.blockfile.ReleaseID(page, false)

	return val, nil
}

/*
Prev returns the page which precedes a given page in its type list.
*/
func (pf *PagedFile) Prev(page uint64) (uint64, error) {
	block, err := pf.blockfile.Get(page)
	if err != nil {
		return 0, err
	}

	val := view.GetPageView(block).PrevPage()

	pf.blockfile.ReleaseID(page, false)

	return val, nil
}

/*
Flush releases the header and writes all pending changes of the wrapped
BlockFile. The header is reacquired afterwards.
*/
func (pf *PagedFile) Flush() error {

	if pf.header != nil {
		pf.blockfile.Release(pf.header.block)
		pf.header = nil
	}

	res := pf.blockfile.Flush()

	if err := pf.acquireHeader(); err != nil {
		if res == nil {
			res = err
		}
	}

	return res
}

/*
Rollback discards all changes of the wrapped BlockFile which were not yet
flushed. The header is discarded and reacquired from the rolled back state.
*/
func (pf *PagedFile) Rollback() error {

	if pf.header != nil {
		pf.blockfile.Discard(pf.header.block)
		pf.header = nil
	}

	res := pf.blockfile.Rollback()

	if err := pf.acquireHeader(); err != nil {
		if res == nil {
			res = err
		}
	}

	return res
}

/*
Close closes this PagedFile and its wrapped BlockFile.
*/
func (pf *PagedFile) Close() error {

	if pf.header != nil {
		pf.blockfile.Release(pf.header.block)
		pf.header = nil
	}

	if err := pf.blockfile.Close(); err != nil {
		return err
	}

	return nil
}
