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
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

/*
Common TransactionManager related errors
*/
var (
	ErrBadMagic = fmt.Errorf("Bad magic for transaction log")
)

/*
LogFileSuffix is the file suffix for transaction log files
*/
const LogFileSuffix = "tlg"

/*
DefaultTransInLog is the default number of transactions which should be
kept in memory (affects how often the log is synced from memory)
*/
const DefaultTransInLog = 10

/*
DefaultTransSize is the default number of blocks in a single transaction
(affects how many block pointers are allocated at first per transaction)
*/
const DefaultTransSize = 10

/*
TransactionLogHeader is the magic number to identify transaction log files
*/
var TransactionLogHeader = []byte{0x66, 0x42}

/*
LogFile is the abstract interface for a transaction log file.
*/
type LogFile interface {
	io.Writer
	io.Closer
	Sync() error
}

/*
TransactionManager data structure
*/
type TransactionManager struct {
	name      string      // Name of this transaction manager
	logFile   LogFile     // Log file for transactions
	curTrans  int         // Current transaction pointer
	transList [][]*Block  // List of transactions with their blocks
	maxTrans  int         // Maximal number of transactions before the log is written
	owner     *BlockFile  // Owner of this manager
}

/*
String returns a string representation of a TransactionManager.
*/
func (t *TransactionManager) String() string {
	buf := new(bytes.Buffer)

	hasLog := t.logFile != nil

	buf.WriteString(fmt.Sprintf("Transaction Manager: %v (logFile:%v curTrans:%v "+
		"maxTrans:%v)\n", t.name, hasLog, t.curTrans, t.maxTrans))

	buf.WriteString("====\n")

	buf.WriteString("transList:\n")

	for i := 0; i < len(t.transList); i++ {
		buf.WriteString(fmt.Sprint(i, ": "))
		for _, block := range t.transList[i] {
			buf.WriteString(fmt.Sprint(block.ID(), " "))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("====\n")

	return buf.String()
}

/*
NewTransactionManager creates a new transaction manager and returns a
reference to it.
*/
func NewTransactionManager(owner *BlockFile, doRecover bool) (*TransactionManager, error) {
	name := fmt.Sprintf("%s.%s", owner.Name(), LogFileSuffix)

	ret := &TransactionManager{name, nil, -1, make([][]*Block, DefaultTransInLog),
		DefaultTransInLog, owner}

	if doRecover {
		if err := ret.recover(); err != nil {
			if bfe, ok := err.(*BlockFileError); !ok || bfe.Type != ErrBadMagic {
				return nil, err
			}
		}

		// A bad magic means the transaction file is simply overwritten
	}
	if err := ret.open(); err != nil {
		return nil, err
	}

	return ret, nil
}

/*
recover tries to recover pending transactions from the physical transaction
log.
*/
func (t *TransactionManager) recover() error {
	file, err := os.OpenFile(t.name, os.O_RDONLY, 0660)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	// Read and verify magic

	magic := make([]byte, 2)
	i, _ := file.Read(magic)

	if i != 2 || magic[0] != TransactionLogHeader[0] ||
		magic[1] != TransactionLogHeader[1] {
		return NewBlockFileError(ErrBadMagic, "", t.owner.name)
	}

	for true {
		var numBlocks int64
		if err := binary.Read(file, binary.LittleEndian, &numBlocks); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		blockMap := make(map[uint64]*Block)

		for i := int64(0); i < numBlocks; i++ {
			block, err := ReadBlock(file)
			if err != nil {
				return err
			}

			// Any duplicated blocks will only be synced once
			// using the latest version

			blockMap[block.ID()] = block
		}

		// If something goes wrong here ignore and try to do the rest

		t.syncBlocks(blockMap, false)
	}

	return nil
}

/*
open opens the transaction log for writing.
*/
func (t *TransactionManager) open() error {

	// Always create a new empty transaction log file

	file, err := os.OpenFile(t.name, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0660)
	if err != nil {
		return err
	}
	t.logFile = file

	t.logFile.Write(TransactionLogHeader)
	t.logFile.Sync()
	t.curTrans = -1

	return nil
}

/*
start starts a new transaction.
*/
func (t *TransactionManager) start() {
	t.curTrans++
	if t.curTrans >= t.maxTrans {
		t.syncLogFromMemory()
		t.curTrans = 0
	}
	t.transList[t.curTrans] = make([]*Block, 0, DefaultTransSize)
}

/*
almostFull reports if the next transaction would trigger a log sync.
*/
func (t *TransactionManager) almostFull() bool {
	return t.curTrans >= t.maxTrans-1
}

/*
add adds a block to the current transaction.
*/
func (t *TransactionManager) add(block *Block) {
	block.IncTransCount()
	t.transList[t.curTrans] = append(t.transList[t.curTrans], block)
}

/*
commit commits the memory transaction log to the physical transaction log.
*/
func (t *TransactionManager) commit() error {

	// Write how many blocks will be stored

	if err := binary.Write(t.logFile, binary.LittleEndian,
		int64(len(t.transList[t.curTrans]))); err != nil {

		return err
	}

	// Write blocks to log file

	for _, block := range t.transList[t.curTrans] {
		if err := block.WriteBlock(t.logFile); err != nil {
			return err
		}
	}

	t.syncFile()

	// Clear all dirty flags

	for _, block := range t.transList[t.curTrans] {
		block.ClearDirty()
	}

	return nil
}

/*
syncFile syncs the transaction log file with the disk.
*/
func (t *TransactionManager) syncFile() {
	if t.logFile != nil {
		t.logFile.Sync()
	}
}

/*
close closes the transaction log file.
*/
func (t *TransactionManager) close() {
	if t.logFile == nil {
		return
	}

	t.syncFile()

	// If something went wrong with closing the handle
	// we don't care as we release the reference

	t.logFile.Close()
	t.logFile = nil
}

/*
syncLogFromMemory syncs the transaction log from memory to disk.
*/
func (t *TransactionManager) syncLogFromMemory() error {
	t.close()

	blockMap := make(map[uint64]*Block)

	for i, transList := range t.transList {
		if transList == nil {
			continue
		}

		// Add each block to the block map, decreasing the transaction count
		// if the same block is listed twice.

		for _, block := range transList {
			_, ok := blockMap[block.ID()]
			if ok {
				block.DecTransCount()
			} else {
				blockMap[block.ID()] = block
			}
		}

		t.transList[i] = nil
	}

	// Write the blocks from the block map to disk

	if err := t.syncBlocks(blockMap, true); err != nil {
		return err
	}

	t.owner.Sync()

	return t.open()
}

/*
syncLogFromDisk syncs the log from disk and clears the memory transaction
log. This is used for the rollback operation.
*/
func (t *TransactionManager) syncLogFromDisk() error {
	t.close()

	for i, transList := range t.transList {
		if transList == nil {
			continue
		}

		// Discard all blocks which are held in memory

		for _, block := range transList {
			block.DecTransCount()
			if !block.InTransaction() {
				t.owner.releaseInTrans(block, false)
			}
		}

		t.transList[i] = nil
	}

	if err := t.recover(); err != nil {
		return err
	}

	return t.open()
}

/*
syncBlocks writes a map of blocks to the physical data files.
*/
func (t *TransactionManager) syncBlocks(blocks map[uint64]*Block, clearMemTransLog bool) error {
	for _, block := range blocks {
		if err := t.owner.writeBlock(block); err != nil {
			return err
		}
		if clearMemTransLog {
			block.DecTransCount()
			if !block.InTransaction() {
				t.owner.releaseInTrans(block, true)
			}
		}
	}
	return nil
}
