/*
 * SlotStore
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package util

import (
	"fmt"

	"github.com/maladkau/slotstore/file"
)

/*
OffsetCurrentSize is the offset of the current size field in a slot header.
*/
const OffsetCurrentSize = 0

/*
OffsetAvailableSize is the offset of the available size field in a slot header.
*/
const OffsetAvailableSize = file.SizeUnsignedShort

/*
UnsignedShortMax is the maximum value of an unsigned short. A current size
field holding this value marks the slot as free.
*/
const UnsignedShortMax = 0xFFFF

/*
MaxAvailableSizeDifference is the maximum difference between available size
and current size which can be stored in a slot header. A slot whose unused
space would exceed this must be reallocated.
*/
const MaxAvailableSizeDifference = UnsignedShortMax - 1

/*
SizeInfoSize is the size of a slot header in bytes.
*/
const SizeInfoSize = OffsetAvailableSize + file.SizeUnsignedShort

/*
CurrentSize returns the number of payload bytes which are in use by the slot
at the given offset. A return value of 0 means the slot is free.
*/
func CurrentSize(block *file.Block, offset int) uint32 {
	currentSize := block.ReadUInt16(offset + OffsetCurrentSize)

	if currentSize == UnsignedShortMax {
		return 0
	}

	return AvailableSize(block, offset) - uint32(currentSize)
}

/*
SetCurrentSize sets the number of payload bytes which are in use by the slot
at the given offset. Setting 0 marks the slot as free.
*/
func SetCurrentSize(block *file.Block, offset int, value uint32) {
	if value == 0 {
		block.WriteUInt16(offset+OffsetCurrentSize, UnsignedShortMax)
		return
	}

	size := AvailableSize(block, offset)

	if (size > MaxAvailableSizeDifference &&
		value < size-MaxAvailableSizeDifference) ||
		value > size {

		panic(fmt.Sprint("Cannot store current size as difference "+
			"to available size. Value:", value, " Available size:", size))
	}

	block.WriteUInt16(offset+OffsetCurrentSize, uint16(size-value))
}

/*
AvailableSize returns the total payload capacity of the slot at the given
offset.
*/
func AvailableSize(block *file.Block, offset int) uint32 {
	value := block.ReadUInt16(offset + OffsetAvailableSize)
	return decodeSize(value)
}

/*
SetAvailableSize sets the total payload capacity of the slot at the given
offset. The given value must be a normalized slot size.
*/
func SetAvailableSize(block *file.Block, offset int, value uint32) {
	currentSize := CurrentSize(block, offset)

	size := encodeSize(value)

	// Guard against callers which did not normalize the size value

	if decodeSize(size) != value {
		panic("Size value was not normalized")
	}

	block.WriteUInt16(offset+OffsetAvailableSize, size)

	// The current size is stored relative to the available size and needs
	// to be rewritten

	SetCurrentSize(block, offset, currentSize)
}

/*
NormalizeSlotSize rounds a given slot size up to the next representable
slot size. The function is idempotent and never returns less than the
given value.
*/
func NormalizeSlotSize(value uint32) uint32 {
	return decodeSize(encodeSize(value))
}

// Available sizes are stored in 2 bytes: the upper 2 bits select a
// granularity multiplier, the lower 14 bits are a counter. Small slots are
// byte-exact, large slots are rounded up to their granularity.

const sizeMask = 1<<15 | 1<<14

const multi0 = 1
const multi1 = 1 << 4
const multi2 = 1 << 8
const multi3 = 1 << 13

const base0 = 0
const base1 = base0 + multi0*((1<<14)-2)
const base2 = base1 + multi1*((1<<14)-2)
const base3 = base2 + multi2*((1<<14)-2)

/*
decodeSize decodes a packed size value.
*/
func decodeSize(packedSize uint16) uint32 {
	size := packedSize & sizeMask

	multiplier := size >> 14
	counter := uint32(packedSize - size)

	switch multiplier {
	case 0:
		return counter * multi0
	case 1:
		return base1 + counter*multi1
	case 2:
		return base2 + counter*multi2
	default:
		return base3 + counter*multi3
	}
}

/*
encodeSize encodes a size value into its packed form, rounding up to the
granularity of its size class.
*/
func encodeSize(size uint32) uint16 {
	var multiplier, counter, v uint32

	switch {

	case size <= base1:
		multiplier = 0
		counter = size / multi0

	case size < base2:

		multiplier = 1 << 14
		v = size - base1
		counter = v / multi1
		if v%multi1 != 0 {
			counter++
		}

	case size < base3:

		multiplier = 2 << 14
		v = size - base2

		counter = v / multi2
		if v%multi2 != 0 {
			counter++
		}

	default:

		multiplier = 3 << 14
		v = size - base3
		counter = v / multi3
		if v%multi3 != 0 {
			counter++
		}
	}

	if counter >= (1 << 14) {
		panic(fmt.Sprint("Cannot pack slot size:", size))
	}

	return uint16(multiplier + counter)
}
