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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/krotik/common/sortutil"
)

/*
DefaultBlockSize is the default size of a block in bytes
*/
const DefaultBlockSize = 4096

/*
DefaultFileSize is the default size of a physical file (rounded down to a
multiple of the block size during construction)
*/
const DefaultFileSize = 9999998976

/*
Common BlockFile related errors
*/
var (
	ErrAlreadyInUse = errors.New("Block is already in-use")
	ErrNotInUse     = errors.New("Block was not in-use")
	ErrInUse        = errors.New("Blocks are still in-use")
	ErrNilData      = errors.New("Block has nil data")
)

/*
BlockFileError is a BlockFile related error.
*/
type BlockFileError struct {
	Type     error  // Error type (one of the sentinel errors above)
	Detail   string // Error detail
	Filename string // Name of the BlockFile
}

/*
NewBlockFileError returns a new BlockFile specific error.
*/
func NewBlockFileError(bfeType error, bfeDetail string, bfeFilename string) *BlockFileError {
	return &BlockFileError{bfeType, bfeDetail, bfeFilename}
}

/*
Error returns a string representation of the error.
*/
func (e *BlockFileError) Error() string {
	return fmt.Sprintf("%s (%s - %s)", e.Type.Error(), e.Filename, e.Detail)
}

/*
BlockFile data structure
*/
type BlockFile struct {
	name          string              // Name of the BlockFile
	transDisabled bool                // Flag if transactions are disabled
	blockSize     uint32              // Size of a block
	maxFileSize   uint64              // Max size of a physical file
	free          map[uint64]*Block   // Blocks which are no longer in use
	inUse         map[uint64]*Block   // Blocks which are currently being used
	inTrans       map[uint64]*Block   // Blocks which are in the transaction log
	dirty         map[uint64]*Block   // Blocks which need to be written
	files         []*os.File          // Underlying physical files
	tm            *TransactionManager // Optional transaction manager
}

/*
NewDefaultBlockFile creates a BlockFile with default block size and returns
a reference to it.
*/
func NewDefaultBlockFile(name string, transDisabled bool) (*BlockFile, error) {
	return NewBlockFile(name, DefaultBlockSize, DefaultFileSize, transDisabled)
}

/*
NewBlockFile creates a new BlockFile and returns a reference to it.
*/
func NewBlockFile(name string, blockSize uint32, maxFileSize uint64,
	transDisabled bool) (*BlockFile, error) {

	maxFileSize = maxFileSize - maxFileSize%uint64(blockSize)

	ret := &BlockFile{name, transDisabled, blockSize, maxFileSize,
		make(map[uint64]*Block), make(map[uint64]*Block),
		make(map[uint64]*Block), make(map[uint64]*Block),
		make([]*os.File, 0), nil}

	if !transDisabled {
		tm, err := NewTransactionManager(ret, true)
		if err != nil {
			return nil, err
		}
		ret.tm = tm
	}

	// Make sure the first physical file exists

	if _, err := ret.getFile(0); err != nil {
		return nil, err
	}

	return ret, nil
}

/*
Name returns the name of this BlockFile.
*/
func (bf *BlockFile) Name() string {
	return bf.name
}

/*
BlockSize returns the block size of this BlockFile.
*/
func (bf *BlockFile) BlockSize() uint32 {
	return bf.blockSize
}

/*
Get returns a block from the file. The block is pinned in memory until it is
released. Getting a block which is already in use is an error.
*/
func (bf *BlockFile) Get(id uint64) (*Block, error) {

	if _, ok := bf.inUse[id]; ok {
		return nil, NewBlockFileError(ErrAlreadyInUse,
			fmt.Sprint("Block ", id), bf.name)
	}

	// Try to serve the block from one of the in-memory tables

	if block, ok := bf.dirty[id]; ok {
		delete(bf.dirty, id)
		bf.inUse[id] = block
		return block, nil
	}
	if block, ok := bf.inTrans[id]; ok {
		delete(bf.inTrans, id)
		bf.inUse[id] = block
		return block, nil
	}
	if block, ok := bf.free[id]; ok {
		delete(bf.free, id)
		bf.inUse[id] = block
		return block, nil
	}

	block := bf.createBlock(id)

	if err := bf.readBlock(block); err != nil {
		return nil, err
	}

	bf.inUse[id] = block

	return block, nil
}

/*
createBlock creates a new block object. The block is not registered in any
table until it is used.
*/
func (bf *BlockFile) createBlock(id uint64) *Block {
	return NewBlock(id, make([]byte, bf.blockSize))
}

/*
Release releases a block from use. The dirty state of the block object
determines if it is scheduled for writing. Releasing a block which is not
in use is a programming error and causes a panic.
*/
func (bf *BlockFile) Release(block *Block) {
	if block == nil {
		return
	}
	if err := bf.ReleaseID(block.ID(), block.Dirty()); err != nil {
		panic(fmt.Sprint("Releasing block which is not in use: ", err))
	}
}

/*
ReleaseID releases a block given by its id from use. The block is scheduled
for writing if it was modified or the dirty flag is explicitly set.
*/
func (bf *BlockFile) ReleaseID(id uint64, dirty bool) error {
	block, ok := bf.inUse[id]

	if !ok {
		return NewBlockFileError(ErrNotInUse, fmt.Sprint("Block ", id), bf.name)
	}

	delete(bf.inUse, id)

	if dirty || block.Dirty() {
		if dirty {
			block.SetDirty()
		}
		bf.dirty[id] = block
	} else {
		bf.free[id] = block
	}

	return nil
}

/*
Discard removes a block from use without scheduling any writes. All
modifications of the block are lost.
*/
func (bf *BlockFile) Discard(block *Block) {
	if block == nil {
		return
	}
	delete(bf.inUse, block.ID())
}

/*
Flush writes all dirty blocks. With transactions enabled the blocks are
written to the transaction log, otherwise they go directly into the data
files. Flushing is not possible while blocks are in use.
*/
func (bf *BlockFile) Flush() error {

	if len(bf.inUse) > 0 {
		return NewBlockFileError(ErrInUse,
			fmt.Sprint("Blocks ", idString(bf.inUse)), bf.name)
	}

	if len(bf.dirty) == 0 {
		return nil
	}

	if bf.transDisabled {

		for id, block := range bf.dirty {
			if err := bf.writeBlock(block); err != nil {
				return err
			}
			delete(bf.dirty, id)
			bf.free[id] = block
		}

		bf.Sync()

		return nil
	}

	bf.tm.start()

	for id, block := range bf.dirty {
		bf.tm.add(block)
		delete(bf.dirty, id)
		bf.inTrans[id] = block
	}

	return bf.tm.commit()
}

/*
Rollback discards all changes which were not flushed. Not available if
transactions are disabled.
*/
func (bf *BlockFile) Rollback() error {
	if bf.transDisabled {
		return nil
	}

	if len(bf.inUse) > 0 {
		return NewBlockFileError(ErrInUse,
			fmt.Sprint("Blocks ", idString(bf.inUse)), bf.name)
	}

	// Changes which never made it to the log are discarded

	bf.dirty = make(map[uint64]*Block)

	// Restore the state of the last synced log

	return bf.tm.syncLogFromDisk()
}

/*
releaseInTrans removes a block from the in-transaction table once the
transaction manager has written it to disk. Recycled blocks can be handed
out again, discarded blocks must be read again from disk.
*/
func (bf *BlockFile) releaseInTrans(block *Block, recycle bool) {
	if block == nil {
		return
	}

	if _, ok := bf.inTrans[block.ID()]; ok {
		delete(bf.inTrans, block.ID())
		if recycle {
			bf.free[block.ID()] = block
		}
	}
}

/*
NeedsFlush reports if the in-memory transaction log is about to reach its
sync threshold.
*/
func (bf *BlockFile) NeedsFlush() bool {
	return !bf.transDisabled && bf.tm.almostFull()
}

/*
Sync syncs all physical files with the disk.
*/
func (bf *BlockFile) Sync() {
	for _, f := range bf.files {
		if f != nil {
			f.Sync()
		}
	}
}

/*
Close flushes all pending changes, closes the transaction log and all
physical files. A BlockFile with transactions enabled cannot be used again
after it was closed.
*/
func (bf *BlockFile) Close() error {

	if len(bf.inUse) > 0 {
		return NewBlockFileError(ErrInUse,
			fmt.Sprint("Blocks ", idString(bf.inUse)), bf.name)
	}

	if len(bf.dirty) > 0 {
		if err := bf.Flush(); err != nil {
			return err
		}
	}

	if !bf.transDisabled {
		if err := bf.tm.syncLogFromMemory(); err != nil {
			return err
		}
		bf.tm.close()
	}

	for _, f := range bf.files {
		if f != nil {
			f.Close()
		}
	}

	bf.free = make(map[uint64]*Block)
	bf.inTrans = make(map[uint64]*Block)
	bf.files = make([]*os.File, 0)

	return nil
}

/*
getFile returns the physical file for a given byte offset, opening it if
necessary.
*/
func (bf *BlockFile) getFile(offset uint64) (*os.File, error) {
	idx := int(offset / bf.maxFileSize)

	for len(bf.files) <= idx {
		bf.files = append(bf.files, nil)
	}

	if bf.files[idx] == nil {

		f, err := os.OpenFile(fmt.Sprintf("%s.%d", bf.name, idx),
			os.O_CREATE|os.O_RDWR, 0660)
		if err != nil {
			return nil, err
		}

		bf.files[idx] = f
	}

	return bf.files[idx], nil
}

/*
readBlock fills a given block object with data from disk. Areas which were
never written read as zeros.
*/
func (bf *BlockFile) readBlock(block *Block) error {
	if block.Data() == nil {
		return NewBlockFileError(ErrNilData,
			fmt.Sprint("Block ", block.ID()), bf.name)
	}

	if len(block.Data()) != int(bf.blockSize) {
		panic(fmt.Sprint("Block size does not match the block size of ",
			"the file:", len(block.Data()), " vs ", bf.blockSize))
	}

	offset := block.ID() * uint64(bf.blockSize)

	f, err := bf.getFile(offset)
	if err != nil {
		return err
	}

	n, err := f.ReadAt(block.Data(), int64(offset%bf.maxFileSize))

	if err == io.EOF {

		// Reading over the end of the file means the block was never
		// written - the rest of the data is zeros

		for i := n; i < len(block.Data()); i++ {
			block.Data()[i] = 0
		}

	} else if err != nil {
		return err
	}

	block.ClearDirty()

	return nil
}

/*
writeBlock writes a given block object to disk.
*/
func (bf *BlockFile) writeBlock(block *Block) error {
	if block.Data() == nil {
		return NewBlockFileError(ErrNilData,
			fmt.Sprint("Block ", block.ID()), bf.name)
	}

	offset := block.ID() * uint64(bf.blockSize)

	f, err := bf.getFile(offset)
	if err != nil {
		return err
	}

	if _, err := f.WriteAt(block.Data(), int64(offset%bf.maxFileSize)); err != nil {
		return err
	}

	block.ClearDirty()

	return nil
}

/*
String returns a string representation of a BlockFile.
*/
func (bf *BlockFile) String() string {
	buf := new(bytes.Buffer)

	buf.WriteString(fmt.Sprintf("Block File: %v (transDisabled:%v "+
		"blockSize:%v maxFileSize:%v)\n", bf.name, bf.transDisabled,
		bf.blockSize, bf.maxFileSize))

	buf.WriteString("====\n")

	buf.WriteString(fmt.Sprintf("Free Blocks: %v\n", idString(bf.free)))
	buf.WriteString(fmt.Sprintf("InUse Blocks: %v\n", idString(bf.inUse)))
	buf.WriteString(fmt.Sprintf("InTrans Blocks: %v\n", idString(bf.inTrans)))
	buf.WriteString(fmt.Sprintf("Dirty Blocks: %v\n", idString(bf.dirty)))

	buf.WriteString("Open files: ")
	l := len(buf.Bytes())

	for i, f := range bf.files {
		if f != nil {
			if len(buf.Bytes()) > l {
				buf.WriteString(", ")
			}
			buf.WriteString(fmt.Sprintf("%v (%v)", f.Name(), i))
		}
	}

	buf.WriteString("\n====\n")

	return buf.String()
}

/*
idString returns the sorted ids of a block table as a string.
*/
func idString(blocks map[uint64]*Block) string {
	ids := make([]uint64, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}
	sortutil.UInt64s(ids)

	buf := new(bytes.Buffer)
	for i, id := range ids {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(fmt.Sprint(id))
	}

	return buf.String()
}
