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
Package file deals with low level block storage and transaction management.

BlockFile

BlockFile models a logical storage file which stores fixed size blocks on
disk. Each block has a unique block id. On disk this logical storage file
might be split into several smaller files. BlockFiles can be reused after
they were closed if the transaction management has been disabled. This is
not the case otherwise.

Block

A block is a byte slice of a BlockFile. It is a wrapper data structure for
a byte array which provides read and write methods for several data types.

TransactionManager

TransactionManager provides an optional transaction management for BlockFile.

When used each block which is released from use is added to an in memory
transaction log. Once the client calls Flush() on the BlockFile the
in memory transaction is written to a transaction log on disk. The in-memory
log is kept. The in-memory transaction log is written to the actual BlockFile
once maxTrans is reached or the BlockFile is closed.

Should the process crash during a transaction, then the transaction log is
written to the BlockFile on the next startup using the recover() function.
*/
package file

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/krotik/common/bitutil"
	"github.com/krotik/common/stringutil"
)

/*
Size constants for a block
*/
const (
	SizeByte          = 1
	SizeUnsignedShort = 2
	SizeShort         = 2
	SizeUnsignedInt   = 4
	SizeInt           = 4
	SizeLong          = 8
)

/*
Block data structure
*/
type Block struct {
	id         uint64      // 64-bit block id
	data       []byte      // Slice of the whole data byte array
	dirty      bool        // Dirty flag to indicate change
	transCount int         // Transaction counter
	pageView   interface{} // View on this block (this is not persisted)
}

/*
NewBlock creates a new Block and returns a pointer to it.
*/
func NewBlock(id uint64, data []byte) *Block {
	return &Block{id, data, false, 0, nil}
}

/*
ID returns the id of a Block.
*/
func (b *Block) ID() uint64 {
	return b.id
}

/*
SetID changes the id of a Block.
*/
func (b *Block) SetID(id uint64) error {
	if b.InTransaction() {
		return fmt.Errorf("Block id cannot be changed. Block "+
			"is used in %d transaction%s.", b.transCount,
			stringutil.Plural(b.transCount))
	}
	b.id = id
	return nil
}

/*
Data returns the raw data of a Block.
*/
func (b *Block) Data() []byte {
	return b.data
}

/*
Dirty returns the dirty flag of a Block.
*/
func (b *Block) Dirty() bool {
	return b.dirty
}

/*
SetDirty sets the dirty flag of a Block.
*/
func (b *Block) SetDirty() {
	b.dirty = true
}

/*
ClearDirty clears the dirty flag of a Block.
*/
func (b *Block) ClearDirty() {
	b.dirty = false
}

/*
ClearData removes all stored data from a Block.
*/
func (b *Block) ClearData() {
	var ccap, clen int

	if b.data != nil {
		ccap = cap(b.data)
		clen = len(b.data)
	} else {
		clen = DefaultBlockSize
		ccap = DefaultBlockSize
	}

	b.data = make([]byte, clen, ccap)
	b.ClearDirty()
}

/*
InTransaction returns if the Block is used in a transaction.
*/
func (b *Block) InTransaction() bool {
	return b.transCount != 0
}

/*
IncTransCount increments the transaction count which means the block is in
the log but not yet in the data file.
*/
func (b *Block) IncTransCount() {
	b.transCount++
}

/*
DecTransCount decrements the transaction count which means the block has
been written to disk.
*/
func (b *Block) DecTransCount() {
	b.transCount--
	if b.transCount < 0 {
		panic(fmt.Sprintf("Transaction count for block %v is below zero: %v",
			b.id, b.transCount))
	}
}

/*
PageView returns the view on this block. The view determines how the block
is being used.
*/
func (b *Block) PageView() interface{} {
	return b.pageView
}

/*
SetPageView sets the view on this block.
*/
func (b *Block) SetPageView(view interface{}) {
	b.pageView = view
}

/*
String prints a string representation of the Block.
*/
func (b *Block) String() string {
	return fmt.Sprintf("Block: %v (dirty:%v transCount:%v len:%v cap:%v)\n%v",
		b.id, b.dirty, b.transCount, len(b.data), cap(b.data), bitutil.HexDump(b.data))
}

// Read and Write functions
// ========================

/*
ReadSingleByte reads a byte from a Block.
*/
func (b *Block) ReadSingleByte(pos int) byte {
	return b.data[pos]
}

/*
WriteSingleByte writes a byte to a Block.
*/
func (b *Block) WriteSingleByte(pos int, value byte) {
	b.data[pos] = value
	b.SetDirty()
}

/*
ReadUInt16 reads a 16-bit unsigned integer from a Block.
*/
func (b *Block) ReadUInt16(pos int) uint16 {
	return (uint16(b.data[pos+0]) << 8) |
		(uint16(b.data[pos+1]) << 0)
}

/*
WriteUInt16 writes a 16-bit unsigned integer to a Block.
*/
func (b *Block) WriteUInt16(pos int, value uint16) {
	b.data[pos+0] = byte(value >> 8)
	b.data[pos+1] = byte(value >> 0)
	b.SetDirty()
}

/*
ReadInt16 reads a 16-bit signed integer from a Block.
*/
func (b *Block) ReadInt16(pos int) int16 {
	return (int16(b.data[pos+0]) << 8) |
		(int16(b.data[pos+1]) << 0)
}

/*
WriteInt16 writes a 16-bit signed integer to a Block.
*/
func (b *Block) WriteInt16(pos int, value int16) {
	b.data[pos+0] = byte(value >> 8)
	b.data[pos+1] = byte(value >> 0)
	b.SetDirty()
}

/*
ReadUInt32 reads a 32-bit unsigned integer from a Block.
*/
func (b *Block) ReadUInt32(pos int) uint32 {
	return (uint32(b.data[pos+0]) << 24) |
		(uint32(b.data[pos+1]) << 16) |
		(uint32(b.data[pos+2]) << 8) |
		(uint32(b.data[pos+3]) << 0)
}

/*
WriteUInt32 writes a 32-bit unsigned integer to a Block.
*/
func (b *Block) WriteUInt32(pos int, value uint32) {
	b.data[pos+0] = byte(value >> 24)
	b.data[pos+1] = byte(value >> 16)
	b.data[pos+2] = byte(value >> 8)
	b.data[pos+3] = byte(value >> 0)
	b.SetDirty()
}

/*
ReadInt32 reads a 32-bit signed integer from a Block.
*/
func (b *Block) ReadInt32(pos int) int32 {
	return (int32(b.data[pos+0]) << 24) |
		(int32(b.data[pos+1]) << 16) |
		(int32(b.data[pos+2]) << 8) |
		(int32(b.data[pos+3]) << 0)
}

/*
WriteInt32 writes a 32-bit signed integer to a Block.
*/
func (b *Block) WriteInt32(pos int, value int32) {
	b.data[pos+0] = byte(value >> 24)
	b.data[pos+1] = byte(value >> 16)
	b.data[pos+2] = byte(value >> 8)
	b.data[pos+3] = byte(value >> 0)
	b.SetDirty()
}

/*
ReadUInt64 reads a 64-bit unsigned integer from a Block.
*/
func (b *Block) ReadUInt64(pos int) uint64 {
	return (uint64(b.data[pos+0]) << 56) |
		(uint64(b.data[pos+1]) << 48) |
		(uint64(b.data[pos+2]) << 40) |
		(uint64(b.data[pos+3]) << 32) |
		(uint64(b.data[pos+4]) << 24) |
		(uint64(b.data[pos+5]) << 16) |
		(uint64(b.data[pos+6]) << 8) |
		(uint64(b.data[pos+7]) << 0)
}

/*
WriteUInt64 writes a 64-bit unsigned integer to a Block.
*/
func (b *Block) WriteUInt64(pos int, value uint64) {
	b.data[pos+0] = byte(value >> 56)
	b.data[pos+1] = byte(value >> 48)
	b.data[pos+2] = byte(value >> 40)
	b.data[pos+3] = byte(value >> 32)
	b.data[pos+4] = byte(value >> 24)
	b.data[pos+5] = byte(value >> 16)
	b.data[pos+6] = byte(value >> 8)
	b.data[pos+7] = byte(value >> 0)
	b.SetDirty()
}

/*
WriteBlock writes the block to an io.Writer.
*/
func (b *Block) WriteBlock(iow io.Writer) error {
	if err := binary.Write(iow, binary.LittleEndian, b.id); err != nil {
		return err
	}

	var dirtyFlag int8
	if b.dirty {
		dirtyFlag = 1
	}

	if err := binary.Write(iow, binary.LittleEndian, dirtyFlag); err != nil {
		return err
	}

	if err := binary.Write(iow, binary.LittleEndian, int64(b.transCount)); err != nil {
		return err
	}

	if err := binary.Write(iow, binary.LittleEndian, int64(len(b.data))); err != nil {
		return err
	}
	if _, err := iow.Write(b.data); err != nil {
		return err
	}

	// The page view is derived from the block data and is not persisted

	return nil
}

/*
MarshalBinary returns a binary representation of a Block.
*/
func (b *Block) MarshalBinary() (data []byte, err error) {
	buf := new(bytes.Buffer)

	// Writing into a memory buffer always succeeds
	b.WriteBlock(buf)

	return buf.Bytes(), nil
}

/*
ReadBlock decodes a block by reading from an io.Reader.
*/
func (b *Block) ReadBlock(ior io.Reader) error {
	if err := binary.Read(ior, binary.LittleEndian, &b.id); err != nil {
		return err
	}

	b.pageView = nil

	var d int8
	if err := binary.Read(ior, binary.LittleEndian, &d); err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	b.dirty = d == 1

	var t int64
	if err := binary.Read(ior, binary.LittleEndian, &t); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	b.transCount = int(t)

	if err := binary.Read(ior, binary.LittleEndian, &t); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	b.data = make([]byte, t)

	i, err := io.ReadFull(ior, b.data)

	if int64(i) != t {
		return io.ErrUnexpectedEOF
	}
	return err
}

/*
UnmarshalBinary decodes a block from a binary blob.
*/
func (b *Block) UnmarshalBinary(data []byte) error {
	buf := new(bytes.Buffer)
	buf.Write(data)

	return b.ReadBlock(buf)
}

/*
ReadBlock reads a block from an io.Reader.
*/
func ReadBlock(ior io.Reader) (*Block, error) {
	b := NewBlock(0, nil)
	if err := b.ReadBlock(ior); err != nil {
		return nil, err
	}
	return b, nil
}
