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
	"sync"

	"github.com/krotik/common/datautil"
)

/*
Access codes to simulate errors on specific locations
*/
const (
	AccessNotInCache   = 1 // FetchCached calls fail
	AccessFetchError   = 2 // Fetch calls fail
	AccessUpdateError  = 3 // Update calls fail
	AccessFreeError    = 4 // Free calls fail
	AccessInsertError  = 5 // Insert calls fail (keyed by the next location)
	AccessCacheAndFetchError = 6 // FetchCached and Fetch calls fail
)

/*
MemoryStore data structure
*/
type MemoryStore struct {
	name      string                 // Name of the store
	Roots     map[int]uint64         // Map of roots
	Data      map[uint64]interface{} // Map of stored objects
	AccessMap map[uint64]int         // Access codes to simulate errors
	LocCount  uint64                 // Counter for new locations
	FlushNeeded bool                 // Report value of NeedsFlush
	mutex     *sync.Mutex            // Mutex to protect map operations
}

/*
NewMemoryStore creates a new store which keeps all its data in memory.
*/
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name, make(map[int]uint64), make(map[uint64]interface{}),
		make(map[uint64]int), 1, false, &sync.Mutex{}}
}

/*
Name returns the name of the MemoryStore instance.
*/
func (ms *MemoryStore) Name() string {
	return ms.name
}

/*
Root returns a root value.
*/
func (ms *MemoryStore) Root(root int) uint64 {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	return ms.Roots[root]
}

/*
SetRoot writes a root value.
*/
func (ms *MemoryStore) SetRoot(root int, val uint64) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.Roots[root] = val
}

/*
Insert inserts an object and returns its storage location.
*/
func (ms *MemoryStore) Insert(o interface{}) (uint64, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	loc := ms.LocCount

	if ms.AccessMap[loc] == AccessInsertError {
		return 0, NewStoreError(ErrSlotNotFound, fmt.Sprint("Location:", loc), ms.name)
	}

	ms.LocCount++
	ms.Data[loc] = o

	return loc, nil
}

/*
Update updates a storage location.
*/
func (ms *MemoryStore) Update(loc uint64, o interface{}) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if ms.AccessMap[loc] == AccessUpdateError {
		return NewStoreError(ErrSlotNotFound, fmt.Sprint("Location:", loc), ms.name)
	}

	if _, ok := ms.Data[loc]; !ok {
		return NewStoreError(ErrSlotNotFound, fmt.Sprint("Location:", loc), ms.name)
	}

	ms.Data[loc] = o

	return nil
}

/*
Free frees a storage location.
*/
func (ms *MemoryStore) Free(loc uint64) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if ms.AccessMap[loc] == AccessFreeError {
		return NewStoreError(ErrSlotNotFound, fmt.Sprint("Location:", loc), ms.name)
	}

	if _, ok := ms.Data[loc]; !ok {
		return NewStoreError(ErrSlotNotFound, fmt.Sprint("Location:", loc), ms.name)
	}

	delete(ms.Data, loc)

	return nil
}

/*
Fetch fetches an object from a given storage location and writes it to a
given data container.
*/
func (ms *MemoryStore) Fetch(loc uint64, o interface{}) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	access := ms.AccessMap[loc]

	if access == AccessFetchError || access == AccessCacheAndFetchError {
		return NewStoreError(ErrSlotNotFound, fmt.Sprint("Location:", loc), ms.name)
	}

	obj, ok := ms.Data[loc]
	if !ok {
		return NewStoreError(ErrSlotNotFound, fmt.Sprint("Location:", loc), ms.name)
	}

	return datautil.CopyObject(obj, o)
}

/*
FetchCached fetches an object from a cache and returns its reference.
*/
func (ms *MemoryStore) FetchCached(loc uint64) (interface{}, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	access := ms.AccessMap[loc]

	if access == AccessNotInCache || access == AccessCacheAndFetchError {
		return nil, NewStoreError(ErrNotInCache, "", ms.name)
	}

	obj, ok := ms.Data[loc]
	if !ok {
		return nil, NewStoreError(ErrNotInCache, "", ms.name)
	}

	return obj, nil
}

/*
NeedsFlush reports the configured flush pressure.
*/
func (ms *MemoryStore) NeedsFlush() bool {
	return ms.FlushNeeded
}

/*
Flush writes all pending changes to disk.
*/
func (ms *MemoryStore) Flush() error {
	return nil
}

/*
Rollback cancels all pending changes which have not yet been written to
disk.
*/
func (ms *MemoryStore) Rollback() error {
	return nil
}

/*
Close the store and write all pending changes to disk.
*/
func (ms *MemoryStore) Close() error {
	return nil
}

/*
String returns a string representation of the MemoryStore.
*/
func (ms *MemoryStore) String() string {
	return fmt.Sprintf("MemoryStore: %v (objects:%v)", ms.name, len(ms.Data))
}
