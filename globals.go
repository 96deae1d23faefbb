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
Package slotstore contains the top level API for the record store. Records
are stored in slots and addressed by stable 64-bit locations. The interface
defines methods to store, retrieve, update and delete a given object to and
from the disk. There are 3 main implementations:

DiskStore

A disk store handles the data storage on disk. It controls the actual
PhysicalSlotManager and LogicalSlotManager objects. It holds references to
all involved files and ensures exclusive access to them through a generated
lock file. The lockfile is checked and attempting to open another instance
of the DiskStore on the same files will cause a panic. The DiskStore
is also responsible for marshalling given abstract objects into a binary
form which can be written to physical slots.

CachedDiskStore

The CachedDiskStore is a write-back cache wrapper for a lower store. Its
purpose is to intercept calls and to maintain a cache of stored objects.
The cache is limited in size by the number of total objects it references.
Once the cache is full it will forget the objects which have been requested
least recently. Objects which were modified are written back to the lower store
when they are evicted, flushed or the cache is closed. An optional second
level reference cache keeps unmodified values around after their eviction
until a background drainer reclaims them.

MemoryStore

A store which keeps all its data in memory and provides several error
simulation facilities.
*/
package slotstore

import (
	"errors"
	"fmt"

	"github.com/krotik/common/pools"
)

/*
VERSION of the storage file format
*/
const VERSION = 1

/*
RootIDVersion is the root holding the version of the storage file format
*/
const RootIDVersion = 1

/*
BufferPool is a pool of byte buffers.
*/
var BufferPool = pools.NewByteBufferPool()

/*
Common store related errors.
*/
var (
	ErrSlotNotFound = errors.New("Slot not found")
	ErrNotInCache   = errors.New("No entry in cache")
	ErrReadonly     = errors.New("Store is read-only")
	ErrClosed       = errors.New("Store is closed")
)

/*
StoreError is a store related error.
*/
type StoreError struct {
	Type      error
	Detail    string
	Storename string
}

/*
NewStoreError returns a new store specific error.
*/
func NewStoreError(seType error, seDetail string, seStorename string) *StoreError {
	return &StoreError{seType, seDetail, seStorename}
}

/*
Error returns a string representation of the error.
*/
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s (%s - %s)", e.Type.Error(), e.Storename, e.Detail)
}

/*
Store is the interface for all store implementations.
*/
type Store interface {

	/*
		Name returns the name of the store instance.
	*/
	Name() string

	/*
		Root returns a root value.
	*/
	Root(root int) uint64

	/*
		SetRoot writes a root value.
	*/
	SetRoot(root int, val uint64)

	/*
		Insert inserts an object and returns its storage location.
	*/
	Insert(o interface{}) (uint64, error)

	/*
		Update updates a storage location.
	*/
	Update(loc uint64, o interface{}) error

	/*
		Free frees a storage location.
	*/
	Free(loc uint64) error

	/*
		Fetch fetches an object from a given storage location and writes it
		to a given data container.
	*/
	Fetch(loc uint64, o interface{}) error

	/*
		FetchCached fetches an object from a cache and returns its
		reference. Returns an ErrNotInCache error if the entry is not in
		the cache.
	*/
	FetchCached(loc uint64) (interface{}, error)

	/*
		NeedsFlush reports if the store has accumulated enough pending
		changes that a flush is advisable before further mutations.
	*/
	NeedsFlush() bool

	/*
		Flush writes all pending changes to disk.
	*/
	Flush() error

	/*
		Rollback cancels all pending changes which have not yet been
		written to disk.
	*/
	Rollback() error

	/*
		Close the store and write all pending changes to disk.
	*/
	Close() error
}
