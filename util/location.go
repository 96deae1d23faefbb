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
Package util contains common helper functions for slot headers and slot
locations.

Location

A location is a pointer into the data store. It is a packed 64-bit integer
which addresses a particular byte offset on a particular page. The upper 48
bits hold the page number, the lower 16 bits hold the offset of the slot
header within the page. Offset 0 is never a valid slot location and means
"no location".

Slot sizes

Slot size headers are stored in the first bytes of a slot (see slotsize.go).
*/
package util

import "github.com/maladkau/slotstore/file"

/*
LocationSize is the size of a packed location in bytes
*/
const LocationSize = file.SizeLong

/*
MaxLocationOffset is the maximum offset which can be stored in a location
*/
const MaxLocationOffset = 0xFFFF

/*
PackLocation packs a page number and an offset into a single location value.
*/
func PackLocation(pageNumber uint64, offset uint16) uint64 {
	if pageNumber > 0xFFFFFFFFFFFF {
		panic("Cannot pack location - page number exceeds 48 bits")
	}
	return pageNumber<<16 | uint64(offset)
}

/*
LocationPage returns the page number of a packed location.
*/
func LocationPage(location uint64) uint64 {
	return location >> 16
}

/*
LocationOffset returns the page offset of a packed location.
*/
func LocationOffset(location uint64) uint16 {
	return uint16(location & MaxLocationOffset)
}
