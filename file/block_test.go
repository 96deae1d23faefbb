/*
 * SlotStore
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package file

import (
	"bytes"
	"testing"
)

func TestBlockReadWrite(t *testing.T) {
	b := NewBlock(1, make([]byte, 100))

	if b.ID() != 1 {
		t.Error("Unexpected block id:", b.ID())
		return
	}

	if b.Dirty() {
		t.Error("A new block should not be dirty")
		return
	}

	b.WriteSingleByte(0, 0x42)
	if b.ReadSingleByte(0) != 0x42 {
		t.Error("Unexpected byte read back")
		return
	}

	if !b.Dirty() {
		t.Error("Block should be dirty after a write")
		return
	}

	b.ClearDirty()

	b.WriteUInt16(1, 0x4268)
	if b.ReadUInt16(1) != 0x4268 {
		t.Error("Unexpected uint16 read back")
		return
	}

	b.WriteInt16(3, -0x1234)
	if b.ReadInt16(3) != -0x1234 {
		t.Error("Unexpected int16 read back")
		return
	}

	b.WriteUInt32(5, 0xDEADBEEF)
	if b.ReadUInt32(5) != 0xDEADBEEF {
		t.Error("Unexpected uint32 read back")
		return
	}

	b.WriteUInt64(9, 0xDEADBEEFDEADBEEF)
	if b.ReadUInt64(9) != 0xDEADBEEFDEADBEEF {
		t.Error("Unexpected uint64 read back")
		return
	}

	if !b.Dirty() {
		t.Error("Block should be dirty after writes")
		return
	}
}

func TestBlockTransactionCount(t *testing.T) {
	b := NewBlock(5, make([]byte, 10))

	if b.InTransaction() {
		t.Error("A new block should not be in a transaction")
		return
	}

	b.IncTransCount()

	if !b.InTransaction() {
		t.Error("Block should be in a transaction")
		return
	}

	// The id of a block cannot be changed while it is in a transaction

	if err := b.SetID(6); err == nil {
		t.Error("Changing the id of a block in a transaction should fail")
		return
	}

	b.DecTransCount()

	if err := b.SetID(6); err != nil {
		t.Error(err)
		return
	}

	if b.ID() != 6 {
		t.Error("Unexpected block id:", b.ID())
		return
	}

	testTransCountPanic(t, b)
}

func testTransCountPanic(t *testing.T, b *Block) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Decrementing the transaction count below zero did not cause a panic.")
		}
	}()

	b.DecTransCount()
}

func TestBlockSerialization(t *testing.T) {
	b := NewBlock(99, make([]byte, 10))

	b.WriteSingleByte(5, 0x42)
	b.IncTransCount()

	data, err := b.MarshalBinary()
	if err != nil {
		t.Error(err)
		return
	}

	b2 := NewBlock(0, nil)

	if err := b2.UnmarshalBinary(data); err != nil {
		t.Error(err)
		return
	}

	if b2.ID() != 99 || !b2.Dirty() || b2.transCount != 1 {
		t.Error("Unexpected deserialized block state:", b2.ID(), b2.Dirty(), b2.transCount)
		return
	}

	if b2.ReadSingleByte(5) != 0x42 {
		t.Error("Unexpected deserialized block data")
		return
	}

	// Reading from a truncated input should produce a controlled error

	if _, err := ReadBlock(bytes.NewBuffer(data[:5])); err == nil {
		t.Error("Reading a truncated block should fail")
		return
	}
}

func TestBlockClearData(t *testing.T) {
	b := NewBlock(1, make([]byte, 10))

	b.WriteSingleByte(2, 0x42)

	b.ClearData()

	if b.ReadSingleByte(2) != 0 {
		t.Error("Block data should be cleared")
		return
	}

	if b.Dirty() {
		t.Error("A cleared block should not be dirty")
		return
	}

	// Clearing a block without data allocates a default sized buffer

	b.data = nil
	b.ClearData()

	if len(b.Data()) != DefaultBlockSize {
		t.Error("Unexpected data size:", len(b.Data()))
		return
	}
}
