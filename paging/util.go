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
CountPages counts the number of pages of a given type.
*/
func CountPages(pager *PagedFile, ptype int16) (int, error) {
	var count int

	cursor := NewPageCursor(pager, ptype, 0)

	page, err := cursor.Next()

	for page != 0 && err == nil {
		count++
		page, err = cursor.Next()
	}

	if err != nil {
		return -1, err
	}

	return count, nil
}
