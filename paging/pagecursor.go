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

/*
PageCursor data structure
*/
type PageCursor struct {
	pf      *PagedFile // Pager to be used
	ptype   int16      // Page type which will be traversed
	current uint64     // Current page
}

/*
NewPageCursor creates a new cursor object which can be used to traverse a
set of pages.
*/
func NewPageCursor(pf *PagedFile, ptype int16, current uint64) *PageCursor {
	return &PageCursor{pf, ptype, current}
}

/*
Current gets the page this cursor currently points at.
*/
func (pc *PageCursor) Current() uint64 {
	return pc.current
}

/*
Next moves the PageCursor to the next page and returns it.
*/
func (pc *PageCursor) Next() (uint64, error) {
	var page uint64
	var err error

	if pc.current == 0 {
		page = pc.pf.First(pc.ptype)
	} else {
		page, err = pc.pf.Next(pc.current)

		if err != nil {
			return 0, err
		}
	}

	if page != 0 {
		pc.current = page
	}

	return page, nil
}

/*
Prev moves the PageCursor to the previous page and returns it.
*/
func (pc *PageCursor) Prev() (uint64, error) {
	if pc.current == 0 {
		return 0, nil
	}

	page, err := pc.pf.Prev(pc.current)

	if err != nil {
		return 0, err
	}

	if page != 0 {
		pc.current = page
	}

	return page, nil
}
