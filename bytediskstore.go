/*
 * SlotStore
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package slotstore

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/krotik/common/errorutil"
	"github.com/krotik/common/fileutil"
	"github.com/krotik/common/lockutil"
	"github.com/maladkau/slotstore/file"
	"github.com/maladkau/slotstore/paging"
	"github.com/maladkau/slotstore/slotting"
)

/*
File suffixes for the files of a ByteDiskStore
*/
const (
	FileSuffixLockfile          = "lck" // Lockfile suffix
	FileSuffixPhysicalSlots     = "db"  // Physical slots
	FileSuffixPhysicalFreeSlots = "dbf" // Physical free slots
	FileSuffixLogicalSlots      = "ix"  // Logical slots
	FileSuffixLogicalFreeSlots  = "ixf" // Logical free slots
)

/*
DataFileExist checks if the main data file of a disk store exists.
*/
func DataFileExist(filename string) bool {
	ret, err := fileutil.PathExists(fmt.Sprintf("%v.%v.0", filename,
		FileSuffixPhysicalSlots))

	if err != nil {
		return false
	}

	return ret
}

/*
ByteDiskStore is a disk store which stores byte slices in physical slots
and maps them to stable logical locations.
*/
type ByteDiskStore struct {
	filename      string      // Filename prefix of the store files
	readonly      bool        // Flag for read-only mode
	onlyAppend    bool        // Flag for append-only mode
	transDisabled bool        // Flag if transactions are disabled
	mutex         *sync.Mutex // Mutex to protect store operations

	physicalSlotsBf        *file.BlockFile               // BlockFile for physical slots
	physicalSlotsPager     *paging.PagedFile             // Pager for physical slots
	physicalFreeSlotsBf    *file.BlockFile               // BlockFile for free physical slots
	physicalFreeSlotsPager *paging.PagedFile             // Pager for free physical slots
	physicalSlotManager    *slotting.PhysicalSlotManager // Manager for physical slots

	logicalSlotsBf        *file.BlockFile              // BlockFile for logical slots
	logicalSlotsPager     *paging.PagedFile            // Pager for logical slots
	logicalFreeSlotsBf    *file.BlockFile              // BlockFile for free logical slots
	logicalFreeSlotsPager *paging.PagedFile            // Pager for free logical slots
	logicalSlotManager    *slotting.LogicalSlotManager // Manager for logical slots

	lockfile *lockutil.LockFile // Lockfile for exclusive access
}

/*
NewByteDiskStore creates a new disk store for byte slices.
*/
func NewByteDiskStore(filename string, readonly bool, onlyAppend bool,
	transDisabled bool, lockfileDisabled bool) *ByteDiskStore {

	var lf *lockutil.LockFile

	if !lockfileDisabled {
		lf = lockutil.NewLockFile(fmt.Sprintf("%v.%v", filename, FileSuffixLockfile),
			time.Duration(50)*time.Millisecond)
	}

	bds := &ByteDiskStore{filename, readonly, onlyAppend, transDisabled,
		&sync.Mutex{}, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, lf}

	err := initByteDiskStore(bds)
	if err != nil {
		panic(fmt.Sprintf("Could not initialize store %v: %v", filename, err))
	}

	return bds
}

/*
initByteDiskStore initializes the files of a ByteDiskStore.
*/
func initByteDiskStore(bds *ByteDiskStore) error {

	// Try to take ownership of the lockfile - this panics if another
	// process is using the same files

	if bds.lockfile != nil {
		if err := bds.lockfile.Start(); err != nil {
			panic(fmt.Sprintf("Could not take ownership of lockfile %v: %v",
				bds.filename, err))
		}
	}

	var err error

	bds.physicalSlotsBf, bds.physicalSlotsPager, err =
		createPagedFile(bds.filename, FileSuffixPhysicalSlots, bds.transDisabled)
	if err != nil {
		return err
	}

	bds.physicalFreeSlotsBf, bds.physicalFreeSlotsPager, err =
		createPagedFile(bds.filename, FileSuffixPhysicalFreeSlots, bds.transDisabled)
	if err != nil {
		return err
	}

	bds.physicalSlotManager = slotting.NewPhysicalSlotManager(bds.physicalSlotsPager,
		bds.physicalFreeSlotsPager, bds.onlyAppend)

	bds.logicalSlotsBf, bds.logicalSlotsPager, err =
		createPagedFile(bds.filename, FileSuffixLogicalSlots, bds.transDisabled)
	if err != nil {
		return err
	}

	bds.logicalFreeSlotsBf, bds.logicalFreeSlotsPager, err =
		createPagedFile(bds.filename, FileSuffixLogicalFreeSlots, bds.transDisabled)
	if err != nil {
		return err
	}

	bds.logicalSlotManager = slotting.NewLogicalSlotManager(bds.logicalSlotsPager,
		bds.logicalFreeSlotsPager)

	// Make sure the storage file has the expected version

	version := bds.Root(RootIDVersion)

	if version > VERSION {
		panic(fmt.Sprint("Cannot open storage file", bds.filename,
			"as it has a newer version than this implementation:",
			version, "vs", VERSION))
	}

	if version != VERSION && !bds.readonly {
		bds.SetRoot(RootIDVersion, VERSION)
	}

	return nil
}

/*
createPagedFile creates a BlockFile and a PagedFile on top of it.
*/
func createPagedFile(filename string, suffix string, transDisabled bool) (*file.BlockFile,
	*paging.PagedFile, error) {

	bf, err := file.NewDefaultBlockFile(fmt.Sprintf("%v.%v", filename, suffix),
		transDisabled)
	if err != nil {
		return nil, nil, err
	}

	pf, err := paging.NewPagedFile(bf)
	if err != nil {
		return bf, nil, err
	}

	return bf, pf, nil
}

/*
Name returns the name of the ByteDiskStore instance.
*/
func (bds *ByteDiskStore) Name() string {
	return fmt.Sprint("ByteDiskStore:", bds.filename)
}

/*
Root returns a root value.
*/
func (bds *ByteDiskStore) Root(root int) uint64 {
	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	bds.checkFileOpen()

	return bds.physicalSlotsPager.Header().Root(root)
}

/*
SetRoot writes a root value.
*/
func (bds *ByteDiskStore) SetRoot(root int, val uint64) {

	if bds.readonly {
		return
	}

	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	bds.checkFileOpen()

	bds.physicalSlotsPager.Header().SetRoot(root, val)
}

/*
Insert inserts a byte slice and returns its storage location.
*/
func (bds *ByteDiskStore) Insert(data []byte) (uint64, error) {
	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	if bds.readonly {
		return 0, NewStoreError(ErrReadonly, "", bds.Name())
	}

	bds.checkFileOpen()

	// Store the data in a physical slot

	ploc, err := bds.physicalSlotManager.Insert(data, 0, uint32(len(data)))
	if err != nil {
		return 0, err
	}

	// Create a logical slot for the physical slot

	return bds.logicalSlotManager.Insert(ploc)
}

/*
Update updates a storage location with new data.
*/
func (bds *ByteDiskStore) Update(loc uint64, data []byte) error {
	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	if bds.readonly {
		return NewStoreError(ErrReadonly, "", bds.Name())
	}

	bds.checkFileOpen()

	// Resolve the logical slot

	ploc, err := bds.logicalSlotManager.Fetch(loc)
	if err != nil {
		return err
	}

	if ploc == 0 {
		return NewStoreError(ErrSlotNotFound, locationDetail(loc), bds.Name())
	}

	// Update the physical slot - the record may be relocated

	newPloc, err := bds.physicalSlotManager.Update(ploc, data, 0, uint32(len(data)))
	if err != nil {
		return err
	}

	if newPloc != ploc {
		return bds.logicalSlotManager.Update(loc, newPloc)
	}

	return nil
}

/*
Fetch fetches the data from a given storage location and writes it to a
given writer.
*/
func (bds *ByteDiskStore) Fetch(loc uint64, writer io.Writer) error {
	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	bds.checkFileOpen()

	ploc, err := bds.logicalSlotManager.Fetch(loc)
	if err != nil {
		return err
	}

	if ploc == 0 {
		return NewStoreError(ErrSlotNotFound, locationDetail(loc), bds.Name())
	}

	return bds.physicalSlotManager.Fetch(ploc, writer)
}

/*
Free frees a storage location.
*/
func (bds *ByteDiskStore) Free(loc uint64) error {
	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	if bds.readonly {
		return NewStoreError(ErrReadonly, "", bds.Name())
	}

	bds.checkFileOpen()

	ploc, err := bds.logicalSlotManager.Fetch(loc)
	if err != nil {
		return err
	}

	if ploc == 0 {
		return NewStoreError(ErrSlotNotFound, locationDetail(loc), bds.Name())
	}

	if err := bds.physicalSlotManager.Free(ploc); err != nil {
		return err
	}

	return bds.logicalSlotManager.Free(loc)
}

/*
NeedsFlush reports if any of the underlying files has accumulated enough
transaction log pressure that a flush is advisable.
*/
func (bds *ByteDiskStore) NeedsFlush() bool {
	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	if bds.physicalSlotsBf == nil {
		return false
	}

	return bds.physicalSlotsBf.NeedsFlush() ||
		bds.physicalFreeSlotsBf.NeedsFlush() ||
		bds.logicalSlotsBf.NeedsFlush() ||
		bds.logicalFreeSlotsBf.NeedsFlush()
}

/*
Flush writes all pending changes to disk.
*/
func (bds *ByteDiskStore) Flush() error {
	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	bds.checkFileOpen()

	ce := errorutil.NewCompositeError()

	// Write pending free slot information first

	if err := bds.physicalSlotManager.Flush(); err != nil {
		ce.Add(err)
	}
	if err := bds.logicalSlotManager.Flush(); err != nil {
		ce.Add(err)
	}

	// Flush the pagers

	if err := bds.physicalSlotsPager.Flush(); err != nil {
		ce.Add(err)
	}
	if err := bds.physicalFreeSlotsPager.Flush(); err != nil {
		ce.Add(err)
	}
	if err := bds.logicalSlotsPager.Flush(); err != nil {
		ce.Add(err)
	}
	if err := bds.logicalFreeSlotsPager.Flush(); err != nil {
		ce.Add(err)
	}

	if ce.HasErrors() {
		return ce
	}

	return nil
}

/*
Rollback cancels all pending changes which have not yet been written to
disk.
*/
func (bds *ByteDiskStore) Rollback() error {

	// Rollback has no effect if transactions are disabled or the store is
	// read-only

	if bds.transDisabled || bds.readonly {
		return nil
	}

	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	bds.checkFileOpen()

	ce := errorutil.NewCompositeError()

	// Forget all un-flushed free slot information and the allocation
	// cursor of the physical slot manager

	bds.physicalSlotManager.Rollback()
	bds.logicalSlotManager.Rollback()

	if err := bds.physicalSlotsPager.Rollback(); err != nil {
		ce.Add(err)
	}
	if err := bds.physicalFreeSlotsPager.Rollback(); err != nil {
		ce.Add(err)
	}
	if err := bds.logicalSlotsPager.Rollback(); err != nil {
		ce.Add(err)
	}
	if err := bds.logicalFreeSlotsPager.Rollback(); err != nil {
		ce.Add(err)
	}

	if ce.HasErrors() {
		return ce
	}

	return nil
}

/*
Close the ByteDiskStore and write all pending changes to disk. The call can
be repeated if it fails because blocks are still in use.
*/
func (bds *ByteDiskStore) Close() error {
	bds.mutex.Lock()
	defer bds.mutex.Unlock()

	bds.checkFileOpen()

	ce := errorutil.NewCompositeError()

	// Write pending free slot information

	if err := bds.physicalSlotManager.Flush(); err != nil {
		ce.Add(err)
	}
	if err := bds.logicalSlotManager.Flush(); err != nil {
		ce.Add(err)
	}

	if err := bds.physicalSlotsPager.Close(); err != nil {
		ce.Add(err)
	}
	if err := bds.physicalFreeSlotsPager.Close(); err != nil {
		ce.Add(err)
	}
	if err := bds.logicalSlotsPager.Close(); err != nil {
		ce.Add(err)
	}
	if err := bds.logicalFreeSlotsPager.Close(); err != nil {
		ce.Add(err)
	}

	if ce.HasErrors() {
		return ce
	}

	if bds.lockfile != nil {
		bds.lockfile.Finish()
	}

	bds.physicalSlotsBf = nil
	bds.physicalSlotsPager = nil
	bds.physicalFreeSlotsBf = nil
	bds.physicalFreeSlotsPager = nil
	bds.physicalSlotManager = nil
	bds.logicalSlotsBf = nil
	bds.logicalSlotsPager = nil
	bds.logicalFreeSlotsBf = nil
	bds.logicalFreeSlotsPager = nil
	bds.logicalSlotManager = nil

	return nil
}

/*
checkFileOpen ensures the store is usable. Operating on a closed store or
on files whose lockfile watcher has died is a programming error.
*/
func (bds *ByteDiskStore) checkFileOpen() {

	if bds.physicalSlotsBf == nil {
		panic(fmt.Sprint("Trying to access storage after it was closed: ",
			bds.filename))
	}

	if bds.lockfile != nil && !bds.lockfile.WatcherRunning() {
		panic(fmt.Sprint("Lockfile was modified: ", bds.filename))
	}
}

/*
locationDetail formats a location for error messages.
*/
func locationDetail(loc uint64) string {
	return fmt.Sprint("Location:", loc>>16, " ", loc&0xFFFF)
}
