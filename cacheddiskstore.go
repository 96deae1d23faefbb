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
	"sync"

	"github.com/krotik/common/datautil"
)

/*
CachedDiskStore data structure
*/
type CachedDiskStore struct {
	store      Store                  // Wrapped lower store
	mutex      *sync.Mutex            // Mutex to protect list and map operations
	cache      map[uint64]*cacheEntry // Map of stored cacheEntry objects
	maxEntries int                    // Max number of entries which should be held in the cache
	firstentry *cacheEntry            // Pointer to the least recently used entry
	lastentry  *cacheEntry            // Pointer to the most recently used entry
	refcache   *refCache              // Optional second level reference cache
}

/*
cacheEntry data structure
*/
type cacheEntry struct {
	location uint64      // Storage location of the entry
	object   interface{} // Object of the entry
	dirty    bool        // Flag if the object was modified and is not yet in the lower store
	prev     *cacheEntry // Pointer to previous entry in the usage list
	next     *cacheEntry // Pointer to next entry in the usage list
}

/*
Pool for cache entries
*/
var entryPool = &sync.Pool{New: func() interface{} { return &cacheEntry{} }}

/*
NewCachedDiskStore creates a new write-back cache wrapper for a given lower
store.
*/
func NewCachedDiskStore(store Store, maxEntries int) *CachedDiskStore {
	return &CachedDiskStore{store, &sync.Mutex{}, make(map[uint64]*cacheEntry),
		maxEntries, nil, nil, nil}
}

/*
NewCachedDiskStoreRefCache creates a new write-back cache wrapper with a
second level reference cache of the given capacity. Values displaced from
the reference cache are reclaimed by a background drainer.
*/
func NewCachedDiskStoreRefCache(store Store, maxEntries int, refEntries int) *CachedDiskStore {
	cds := NewCachedDiskStore(store, maxEntries)
	cds.refcache = newRefCache(refEntries)
	return cds
}

/*
Name returns the name of the store instance.
*/
func (cds *CachedDiskStore) Name() string {
	if cds.store == nil {
		return "CachedDiskStore: closed"
	}
	return cds.store.Name()
}

/*
Root returns a root value.
*/
func (cds *CachedDiskStore) Root(root int) uint64 {
	return cds.store.Root(root)
}

/*
SetRoot writes a root value.
*/
func (cds *CachedDiskStore) SetRoot(root int, val uint64) {
	cds.store.SetRoot(root, val)
}

/*
NeedsFlush reports if the lower store has accumulated pending changes.
*/
func (cds *CachedDiskStore) NeedsFlush() bool {
	if cds.store == nil {
		return false
	}
	return cds.store.NeedsFlush()
}

/*
Insert inserts an object and returns its storage location.
*/
func (cds *CachedDiskStore) Insert(o interface{}) (uint64, error) {

	if cds.store == nil {
		return 0, NewStoreError(ErrClosed, "", cds.Name())
	}

	// Ask the lower store if pending changes should be flushed before
	// another mutation

	if cds.store.NeedsFlush() {
		if err := cds.Flush(); err != nil {
			return 0, err
		}
	}

	// Cannot delay the insert itself since the calling code needs a
	// location

	loc, err := cds.store.Insert(o)

	if loc != 0 && err == nil {

		cds.mutex.Lock()
		defer cds.mutex.Unlock()

		if cds.refcache != nil {

			// With a reference cache enabled new values start their life
			// there - the primary cache only keeps requested values

			cds.refcache.put(loc, o)

		} else {

			err = cds.addToCache(loc, o, false)
		}
	}

	return loc, err
}

/*
Update updates a storage location. The new object is only stored in the
cache - the lower store is updated when the entry is evicted, flushed or
the cache is closed.
*/
func (cds *CachedDiskStore) Update(loc uint64, o interface{}) error {

	if cds.store == nil {
		return NewStoreError(ErrClosed, "", cds.Name())
	}

	if cds.store.NeedsFlush() {
		if err := cds.Flush(); err != nil {
			return err
		}
	}

	cds.mutex.Lock()
	defer cds.mutex.Unlock()

	var err error

	if entry, ok := cds.cache[loc]; ok {
		entry.object = o
		entry.dirty = true
		cds.llTouchEntry(entry)
	} else {
		err = cds.addToCache(loc, o, true)
	}

	// A modified value must not be reachable through the reference cache

	if cds.refcache != nil {
		cds.refcache.remove(loc)
	}

	return err
}

/*
Free frees a storage location.
*/
func (cds *CachedDiskStore) Free(loc uint64) error {

	if cds.store == nil {
		return NewStoreError(ErrClosed, "", cds.Name())
	}

	if cds.store.NeedsFlush() {
		if err := cds.Flush(); err != nil {
			return err
		}
	}

	if err := cds.store.Free(loc); err != nil {
		return err
	}

	cds.mutex.Lock()
	defer cds.mutex.Unlock()

	// Remove the location entry from the caches

	if entry, ok := cds.cache[loc]; ok {
		delete(cds.cache, entry.location)
		cds.llRemoveEntry(entry)
		entryPool.Put(entry)
	}

	if cds.refcache != nil {
		cds.refcache.remove(loc)
	}

	return nil
}

/*
Fetch fetches an object from a given storage location and writes it to a
given data container.
*/
func (cds *CachedDiskStore) Fetch(loc uint64, o interface{}) error {

	if cds.store == nil {
		return NewStoreError(ErrClosed, "", cds.Name())
	}

	cds.mutex.Lock()

	// Serve the request from the primary cache - the cached version is
	// authoritative since it might not have been written back yet

	if entry, ok := cds.cache[loc]; ok {
		cds.llTouchEntry(entry)
		err := datautil.CopyObject(entry.object, o)
		cds.mutex.Unlock()
		return err
	}

	// Serve the request from the reference cache

	if cds.refcache != nil {
		if obj, ok := cds.refcache.get(loc); ok {
			err := datautil.CopyObject(obj, o)
			cds.mutex.Unlock()
			return err
		}
	}

	cds.mutex.Unlock()

	// A complete miss goes to the lower store

	if err := cds.store.Fetch(loc, o); err != nil {
		return err
	}

	cds.mutex.Lock()
	defer cds.mutex.Unlock()

	if cds.refcache != nil {
		cds.refcache.put(loc, o)
		return nil
	}

	if entry, ok := cds.cache[loc]; !ok {
		return cds.addToCache(loc, o, false)
	} else {
		cds.llTouchEntry(entry)
	}

	return nil
}

/*
FetchCached fetches an object from the cache and returns its reference.
Returns an ErrNotInCache error if the entry is not in the cache.
*/
func (cds *CachedDiskStore) FetchCached(loc uint64) (interface{}, error) {

	if cds.store == nil {
		return nil, NewStoreError(ErrClosed, "", cds.Name())
	}

	cds.mutex.Lock()
	defer cds.mutex.Unlock()

	if entry, ok := cds.cache[loc]; ok {
		return entry.object, nil
	}

	if cds.refcache != nil {
		if obj, ok := cds.refcache.get(loc); ok {
			return obj, nil
		}
	}

	return nil, NewStoreError(ErrNotInCache, "", cds.Name())
}

/*
Flush writes back all modified cache entries and flushes the lower store.
Entries which fail to write back stay dirty so the call can be repeated.
*/
func (cds *CachedDiskStore) Flush() error {

	if cds.store == nil {
		return NewStoreError(ErrClosed, "", cds.Name())
	}

	if err := cds.updateCacheEntries(); err != nil {
		return err
	}

	return cds.store.Flush()
}

/*
updateCacheEntries writes back all modified cache entries to the lower
store.
*/
func (cds *CachedDiskStore) updateCacheEntries() error {
	cds.mutex.Lock()
	defer cds.mutex.Unlock()

	for entry := cds.firstentry; entry != nil; entry = entry.next {

		if entry.dirty {

			if err := cds.store.Update(entry.location, entry.object); err != nil {
				return err
			}

			entry.dirty = false
		}
	}

	return nil
}

/*
Rollback cancels all pending changes which have not yet been written to
disk. The caches are emptied in any case.
*/
func (cds *CachedDiskStore) Rollback() error {

	if cds.store == nil {
		return NewStoreError(ErrClosed, "", cds.Name())
	}

	err := cds.store.Rollback()

	cds.mutex.Lock()
	defer cds.mutex.Unlock()

	cds.cache = make(map[uint64]*cacheEntry)
	cds.firstentry = nil
	cds.lastentry = nil

	if cds.refcache != nil {
		cds.refcache.clear()
	}

	return err
}

/*
ClearCache empties the caches. Modified entries are written back to the
lower store before they are dropped.
*/
func (cds *CachedDiskStore) ClearCache() error {
	cds.mutex.Lock()
	defer cds.mutex.Unlock()

	for cds.firstentry != nil {
		if _, err := cds.purgeEntry(); err != nil {
			return err
		}
	}

	if cds.refcache != nil {
		cds.refcache.clear()
	}

	return nil
}

/*
Close the store and write all pending changes to disk. The drainer of the
reference cache is stopped.
*/
func (cds *CachedDiskStore) Close() error {

	if cds.store == nil {
		return NewStoreError(ErrClosed, "", cds.Name())
	}

	if err := cds.updateCacheEntries(); err != nil {
		return err
	}

	if err := cds.store.Close(); err != nil {
		return err
	}

	cds.mutex.Lock()
	defer cds.mutex.Unlock()

	if cds.refcache != nil {
		cds.refcache.stopDrainer()
		cds.refcache.clear()
	}

	cds.cache = make(map[uint64]*cacheEntry)
	cds.firstentry = nil
	cds.lastentry = nil
	cds.store = nil

	return nil
}

/*
addToCache adds an entry to the primary cache. If the cache is full the
least recently used entry is purged first.
*/
func (cds *CachedDiskStore) addToCache(loc uint64, o interface{}, dirty bool) error {

	var entry *cacheEntry
	var err error

	// Get an entry from the pool or recycle an entry from the usage list
	// if the list is full

	if len(cds.cache) >= cds.maxEntries {
		entry, err = cds.purgeEntry()
		if err != nil {
			return err
		}
	} else {
		entry = entryPool.Get().(*cacheEntry)
	}

	// Fill the entry

	entry.location = loc
	entry.object = o
	entry.dirty = dirty

	// Insert the entry into the usage list (this will set the entry's
	// prev and next pointer)

	cds.llAppendEntry(entry)

	// Insert into the map of stored cacheEntry objects

	cds.cache[loc] = entry

	return nil
}

/*
purgeEntry removes the least recently used entry from the cache and returns
it for reuse. A modified entry is written back to the lower store first. A
clean value stays reachable through the reference cache until the drainer
reclaims it.
*/
func (cds *CachedDiskStore) purgeEntry() (*cacheEntry, error) {
	entry := cds.firstentry

	// If no entries were stored yet just return an entry from the pool

	if entry == nil {
		return entryPool.Get().(*cacheEntry), nil
	}

	if entry.dirty {

		if err := cds.store.Update(entry.location, entry.object); err != nil {
			return nil, err
		}

		entry.dirty = false
	}

	if cds.refcache != nil {
		cds.refcache.put(entry.location, entry.object)
	}

	// Remove the entry from the usage list (this will set the entry's
	// prev and next pointer)

	cds.llRemoveEntry(entry)

	// Remove the entry from the map of stored cacheEntry objects

	delete(cds.cache, entry.location)

	return entry, nil
}

/*
llTouchEntry puts an entry to the most recently used position of the usage
list. Calling llTouchEntry on all requested items ensures that the least
recently used entry is at the beginning of the list.
*/
func (cds *CachedDiskStore) llTouchEntry(entry *cacheEntry) {
	if cds.lastentry == entry {
		return
	}

	cds.llRemoveEntry(entry)
	cds.llAppendEntry(entry)
}

/*
llAppendEntry appends a cacheEntry to the end of the usage list.
*/
func (cds *CachedDiskStore) llAppendEntry(entry *cacheEntry) {
	if cds.firstentry == nil {
		cds.firstentry = entry
		cds.lastentry = entry
		entry.prev = nil
	} else {
		cds.lastentry.next = entry
		entry.prev = cds.lastentry
		cds.lastentry = entry
	}
	entry.next = nil
}

/*
llRemoveEntry removes a cacheEntry from the usage list.
*/
func (cds *CachedDiskStore) llRemoveEntry(entry *cacheEntry) {
	prev := entry.prev
	next := entry.next

	if entry == cds.firstentry {
		cds.firstentry = next
	}
	if cds.lastentry == entry {
		cds.lastentry = prev
	}

	if prev != nil {
		prev.next = next
		entry.prev = nil
	}
	if next != nil {
		next.prev = prev
		entry.next = nil
	}
}
