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
)

/*
OffsetTransData is the offset for translation data on a TransPage
*/
const OffsetTransData = view.OffsetData

/*
TransPage data structure
*/
type TransPage struct {
	*SlotInfoPage
}

/*
NewTransPage creates a new page which translates between logical and
physical slots.
*/
func NewTransPage(block *file.Block) *TransPage {
	checkTransPageMagic(block)
	return &TransPage{NewSlotInfoPage(block)}
}

/*
checkTransPageMagic checks if the magic number at the beginning of
the wrapped block is valid.
*/
func checkTransPageMagic(block *file.Block) bool {
	magic := block.ReadInt16(0)

	if magic == view.ViewPageHeader+view.TypeTranslationPage {
		return true
	}
	panic("Unexpected header found in TransPage")
}
