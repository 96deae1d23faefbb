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
	"testing"
)

type cachetestobj struct {
	Val1 int
	Val2 string
}

func TestCachedDiskStoreWriteBack(t *testing.T) {
	var ret cachetestobj

	ms := NewMemoryStore("test")
	cds := NewCachedDiskStore(ms, 10)

	if cds.Name() != ms.Name() {
		t.Error("Unexpected result asking for the name")
		return
	}

	cds.SetRoot(5, 20)
	if cds.Root(5) != 20 || ms.Root(5) != 20 {
		t.Error("Unexpected result asking for a root")
		return
	}

	// The insert itself cannot be cached since the calling code needs a
	// location

	loc, err := cds.Insert(&cachetestobj{1, "This is a test"})
	if err != nil {
		t.Error(err)
		return
	}

	if _, ok := ms.Data[loc]; !ok {
		t.Error("Insert should have reached the lower store")
		return
	}

	if entry, ok := cds.cache[loc]; !ok || entry.dirty {
		t.Error("Insert should have created a clean cache entry")
		return
	}

	// Test getting a non-existent entry from the cache

	if _, err := cds.FetchCached(loc + 1); err.(*StoreError).Type != ErrNotInCache {
		t.Error("Unexpected FetchCached result:", err)
		return
	}

	// An update is only stored in the cache

	if err := cds.Update(loc, &cachetestobj{2, "Updated"}); err != nil {
		t.Error(err)
		return
	}

	if entry := cds.cache[loc]; !entry.dirty {
		t.Error("Update should have marked the cache entry as dirty")
		return
	}

	if ms.Data[loc].(*cachetestobj).Val2 != "This is a test" {
		t.Error("Update should not have reached the lower store")
		return
	}

	// A fetch is served from the cache and sees the updated value

	if err := cds.Fetch(loc, &ret); err != nil {
		t.Error(err)
		return
	}

	if ret.Val2 != "Updated" {
		t.Error("Unexpected fetch result:", ret)
		return
	}

	// Flush writes the dirty entry back to the lower store

	if err := cds.Flush(); err != nil {
		t.Error(err)
		return
	}

	if entry := cds.cache[loc]; entry.dirty {
		t.Error("Flush should have cleaned the cache entry")
		return
	}

	if ms.Data[loc].(*cachetestobj).Val2 != "Updated" {
		t.Error("Flush should have updated the lower store")
		return
	}

	// An update on an unknown location creates a dirty cache entry

	loc2, _ := ms.Insert("test66")

	if err := cds.Update(loc2, "test77"); err != nil {
		t.Error(err)
		return
	}

	if obj, _ := cds.FetchCached(loc2); obj.(string) != "test77" {
		t.Error("Unexpected FetchCached result:", obj)
		return
	}

	if ms.Data[loc2].(string) != "test66" {
		t.Error("Update should not have reached the lower store")
		return
	}

	// Free removes the entry everywhere

	if err := cds.Free(loc2); err != nil {
		t.Error(err)
		return
	}

	if _, ok := cds.cache[loc2]; ok {
		t.Error("Cache entry should have been removed")
		return
	}

	if _, ok := ms.Data[loc2]; ok {
		t.Error("Free should have reached the lower store")
		return
	}

	if err := cds.Close(); err != nil {
		t.Error(err)
		return
	}

	// All operations fail after a close

	if _, err := cds.Insert("x"); err.(*StoreError).Type != ErrClosed {
		t.Error("Unexpected insert result:", err)
		return
	}

	if err := cds.Update(1, "x"); err.(*StoreError).Type != ErrClosed {
		t.Error("Unexpected update result:", err)
		return
	}

	if err := cds.Fetch(1, &ret); err.(*StoreError).Type != ErrClosed {
		t.Error("Unexpected fetch result:", err)
		return
	}

	if err := cds.Free(1); err.(*StoreError).Type != ErrClosed {
		t.Error("Unexpected free result:", err)
		return
	}

	if err := cds.Flush(); err.(*StoreError).Type != ErrClosed {
		t.Error("Unexpected flush result:", err)
		return
	}

	if err := cds.Rollback(); err.(*StoreError).Type != ErrClosed {
		t.Error("Unexpected rollback result:", err)
		return
	}

	if err := cds.Close(); err.(*StoreError).Type != ErrClosed {
		t.Error("Unexpected close result:", err)
		return
	}
}

func TestCachedDiskStoreEviction(t *testing.T) {
	var ret string

	ms := NewMemoryStore("test")
	cds := NewCachedDiskStore(ms, 3)

	// Even though the cache is empty make sure we can still retrieve
	// empty entries

	entry, err := cds.purgeEntry()
	if entry == nil || err != nil {
		t.Error("Unexpected purgeEntry result:", entry, err)
		return
	}

	// Insert values

	loc1, _ := cds.Insert("test1")
	loc2, _ := cds.Insert("test2")
	loc3, _ := cds.Insert("test3")

	// Make sure all cache entries are there

	for _, loc := range []uint64{loc1, loc2, loc3} {
		if _, ok := cds.cache[loc]; !ok {
			t.Error("Cache entry should be available:", loc)
			return
		}
	}

	// Now insert one more and see that the oldest entry gets removed

	loc4, _ := cds.Insert("test4")

	if _, ok := cds.cache[loc1]; ok {
		t.Error("Cache entry should not be available")
		return
	}

	// Check that the last accessed entry is at the last position in the
	// list

	if cds.lastentry.location != loc4 {
		t.Error("Unexpected last entry:", cds.lastentry.location)
		return
	}

	cds.Fetch(loc2, &ret)

	if cds.lastentry.location != loc2 {
		t.Error("Unexpected last entry:", cds.lastentry.location)
		return
	}

	if cds.firstentry.location != loc3 {
		t.Error("Unexpected first entry:", cds.firstentry.location)
		return
	}

	// A dirty entry is written through to the lower store when it is
	// evicted

	if err := cds.Update(loc3, "test3-updated"); err != nil {
		t.Error(err)
		return
	}

	if ms.Data[loc3].(string) != "test3" {
		t.Error("Update should not have reached the lower store")
		return
	}

	// loc3 was touched by the update - the LRU entry is now loc4

	if cds.firstentry.location != loc4 {
		t.Error("Unexpected first entry:", cds.firstentry.location)
		return
	}

	cds.Update(loc4, "test4-updated")
	cds.Update(loc2, "test2-updated")

	// Inserting a new value now purges the oldest entry (loc3) and
	// writes it back

	loc5, _ := cds.Insert("test5")

	if _, ok := cds.cache[loc3]; ok {
		t.Error("Cache entry should have been evicted")
		return
	}

	if ms.Data[loc3].(string) != "test3-updated" {
		t.Error("Evicted dirty entry should have been written back")
		return
	}

	// The write back of an evicted entry can fail - the insert returns
	// the error

	ms.AccessMap[loc4] = AccessUpdateError

	if _, ok := cds.cache[loc4]; !ok {
		t.Error("Cache entry should be available")
		return
	}

	if err := cds.Update(loc5, "test5-updated"); err != nil {
		t.Error(err)
		return
	}

	_, err = cds.Insert("test6")
	if err == nil {
		t.Error("Insert should fail if the evicted entry cannot be written back")
		return
	}

	delete(ms.AccessMap, loc4)

	// A failed flush leaves the entries dirty so the call can be repeated

	ms.AccessMap[loc5] = AccessUpdateError

	if err := cds.Flush(); err == nil {
		t.Error("Flush should fail if an entry cannot be written back")
		return
	}

	if entry := cds.cache[loc5]; entry == nil || !entry.dirty {
		t.Error("Failed write back should leave the entry dirty")
		return
	}

	delete(ms.AccessMap, loc5)

	if err := cds.Flush(); err != nil {
		t.Error(err)
		return
	}

	if ms.Data[loc5].(string) != "test5-updated" {
		t.Error("Unexpected lower store state")
		return
	}

	// ClearCache writes back dirty entries and empties the cache

	cds.Update(loc2, "test2-final")

	if err := cds.ClearCache(); err != nil {
		t.Error(err)
		return
	}

	if len(cds.cache) != 0 || cds.firstentry != nil || cds.lastentry != nil {
		t.Error("Cache should be empty")
		return
	}

	if ms.Data[loc2].(string) != "test2-final" {
		t.Error("Unexpected lower store state")
		return
	}

	if err := cds.Close(); err != nil {
		t.Error(err)
		return
	}
}

func TestCachedDiskStoreUsageListIntegrity(t *testing.T) {
	var ret string

	ms := NewMemoryStore("test")
	cds := NewCachedDiskStore(ms, 4)

	loc1, _ := cds.Insert("test1")
	loc2, _ := cds.Insert("test2")
	loc3, _ := cds.Insert("test3")
	loc4, _ := cds.Insert("test4")

	checkUsageList(t, cds, []uint64{loc1, loc2, loc3, loc4})

	// Touching a middle entry moves it to the most recently used position
	// and must keep both chain directions intact

	cds.Fetch(loc2, &ret)

	checkUsageList(t, cds, []uint64{loc1, loc3, loc4, loc2})

	cds.Update(loc3, "test3-updated")

	checkUsageList(t, cds, []uint64{loc1, loc4, loc2, loc3})

	// Freeing a middle entry removes it from map and list

	if err := cds.Free(loc4); err != nil {
		t.Error(err)
		return
	}

	checkUsageList(t, cds, []uint64{loc1, loc2, loc3})

	// The remaining entries are still fully linked - further inserts
	// evict from the head of the repaired list

	loc5, _ := cds.Insert("test5")
	loc6, _ := cds.Insert("test6")
	loc7, _ := cds.Insert("test7")

	checkUsageList(t, cds, []uint64{loc3, loc5, loc6, loc7})

	// The dirty middle entry is now the least recently used one - its
	// eviction has to write it back

	loc8, _ := cds.Insert("test8")

	checkUsageList(t, cds, []uint64{loc5, loc6, loc7, loc8})

	if ms.Data[loc3].(string) != "test3-updated" {
		t.Error("Evicted dirty entry should have been written back")
		return
	}

	if err := cds.Close(); err != nil {
		t.Error(err)
		return
	}
}

/*
checkUsageList checks that the usage list of a cache matches an expected
LRU to MRU order in both chain directions and that the list and the cache
map have the same membership.
*/
func checkUsageList(t *testing.T, cds *CachedDiskStore, expected []uint64) {

	forward := make([]uint64, 0, len(expected))
	for entry := cds.firstentry; entry != nil; entry = entry.next {
		forward = append(forward, entry.location)
	}

	backward := make([]uint64, 0, len(expected))
	for entry := cds.lastentry; entry != nil; entry = entry.prev {
		backward = append(backward, entry.location)
	}

	if len(forward) != len(expected) || len(backward) != len(expected) {
		t.Error("Unexpected usage list length:", forward, backward, expected)
		return
	}

	for i, loc := range expected {
		if forward[i] != loc {
			t.Error("Unexpected forward chain:", forward, "expected:", expected)
			return
		}
		if backward[len(backward)-1-i] != loc {
			t.Error("Unexpected backward chain:", backward, "expected:", expected)
			return
		}
	}

	if len(cds.cache) != len(expected) {
		t.Error("Usage list and cache map are out of sync:", len(cds.cache), expected)
		return
	}

	for _, loc := range expected {
		if _, ok := cds.cache[loc]; !ok {
			t.Error("Cache map is missing a listed entry:", loc)
			return
		}
	}
}

func TestCachedDiskStoreRollback(t *testing.T) {
	var ret string

	ms := NewMemoryStore("test")
	cds := NewCachedDiskStore(ms, 10)

	loc, err := cds.Insert("committed")
	if err != nil {
		t.Error(err)
		return
	}

	if err := cds.Update(loc, "uncommitted"); err != nil {
		t.Error(err)
		return
	}

	// The cached value is visible before the rollback

	if err := cds.Fetch(loc, &ret); err != nil || ret != "uncommitted" {
		t.Error("Unexpected fetch result:", ret, err)
		return
	}

	if err := cds.Rollback(); err != nil {
		t.Error(err)
		return
	}

	if len(cds.cache) != 0 {
		t.Error("Cache should be empty after a rollback")
		return
	}

	// After the rollback the lower store value is visible again

	if err := cds.Fetch(loc, &ret); err != nil || ret != "committed" {
		t.Error("Unexpected fetch result:", ret, err)
		return
	}

	if err := cds.Close(); err != nil {
		t.Error(err)
		return
	}
}

func TestCachedDiskStoreAutoFlush(t *testing.T) {

	ms := NewMemoryStore("test")
	cds := NewCachedDiskStore(ms, 10)

	loc, _ := cds.Insert("test1")

	cds.Update(loc, "test1-updated")

	if ms.Data[loc].(string) != "test1" {
		t.Error("Update should not have reached the lower store")
		return
	}

	// Once the lower store reports pressure the next mutation triggers a
	// flush of all dirty entries

	ms.FlushNeeded = true

	loc2, _ := cds.Insert("test2")

	if ms.Data[loc].(string) != "test1-updated" {
		t.Error("Auto flush should have written back the dirty entry")
		return
	}

	if loc2 == 0 {
		t.Error("Insert should have succeeded")
		return
	}

	ms.FlushNeeded = false

	if err := cds.Close(); err != nil {
		t.Error(err)
		return
	}
}

func TestCachedDiskStoreWithDiskStore(t *testing.T) {
	var res string

	ds := NewDiskStore(DBDIR+"/ctest1", false, false, true, true)
	cds := NewCachedDiskStore(ds, 10)

	if cds.Name() != "DiskStore:"+DBDIR+"/ctest1" {
		t.Error("Unexpected name:", cds.Name())
		return
	}

	if cds.Root(RootIDVersion) != VERSION {
		t.Error("Unexpected version root")
		return
	}

	loc, err := cds.Insert("test1")
	if err != nil {
		t.Error(err)
		return
	}

	if err := cds.Update(loc, "test2"); err != nil {
		t.Error(err)
		return
	}

	// The lower store still has the old value until the cache is flushed

	if err := ds.Fetch(loc, &res); err != nil || res != "test1" {
		t.Error("Unexpected fetch result:", res, err)
		return
	}

	if err := cds.Fetch(loc, &res); err != nil || res != "test2" {
		t.Error("Unexpected fetch result:", res, err)
		return
	}

	if err := cds.Flush(); err != nil {
		t.Error(err)
		return
	}

	if err := ds.Fetch(loc, &res); err != nil || res != "test2" {
		t.Error("Unexpected fetch result:", res, err)
		return
	}

	// Close flushes and closes the lower store

	if err := cds.Close(); err != nil {
		t.Error(err)
		return
	}

	if !DataFileExist(DBDIR + "/ctest1") {
		t.Error("Main disk storage file was not detected.")
		return
	}
}
