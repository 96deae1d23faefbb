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
	"time"

	"github.com/krotik/common/testutil"
	"github.com/maladkau/slotstore/util"
)

func TestDiskStore(t *testing.T) {
	var res string

	ds := NewDiskStore(DBDIR+"/test1", false, false, true, true)

	if ds.Name() != "DiskStore:"+DBDIR+"/test1" {
		t.Error("Unexpected name for DiskStore:", ds.Name())
		return
	}

	if ds.Root(RootIDVersion) != VERSION {
		t.Error("Unexpected version root:", ds.Root(RootIDVersion))
		return
	}

	// Test simple insert

	loc, err := ds.Insert("This is a test")
	if err != nil {
		t.Error(err)
		return
	}

	checkLocation(t, loc, 1, 18)

	ds.Fetch(loc, &res)
	if res != "This is a test" {
		t.Error("Unexpected fetch result:", res)
	}

	// Get the physical slot for the stored data

	ploc, err := ds.logicalSlotManager.Fetch(loc)
	if err != nil {
		t.Error(err)
		return
	}

	// A larger update has to allocate a new physical slot

	err = ds.Update(loc, "This is another test")
	if err != nil {
		t.Error(err)
		return
	}

	newPloc, err := ds.logicalSlotManager.Fetch(loc)
	if err != nil {
		t.Error(err)
		return
	}

	if ploc == newPloc {
		t.Error("Physical location should have changed")
		return
	}

	ds.Fetch(loc, &res)
	if res != "This is another test" {
		t.Error("Unexpected fetch result:", res)
	}

	// A smaller update fits into the existing slot

	err = ds.Update(loc, "tree")
	if err != nil {
		t.Error(err)
		return
	}

	ploc, err = ds.logicalSlotManager.Fetch(loc)
	if err != nil {
		t.Error(err)
		return
	}

	if ploc != newPloc {
		t.Error("Physical location should not have changed")
		return
	}

	ds.Fetch(loc, &res)
	if res != "tree" {
		t.Error("Unexpected fetch result:", res)
	}

	// A very large update relocates the record again - the logical
	// location stays stable

	err = ds.Update(loc, "test"+string(make([]byte, 10000))+"test")
	if err != nil {
		t.Error(err)
		return
	}

	ds.Fetch(loc, &res)
	if res != "test"+string(make([]byte, 10000))+"test" {
		t.Error("Unexpected fetch result")
	}

	// Test insert error due to a serialization problem

	_, err = ds.Insert(&testutil.GobTestObject{Name: "test", EncErr: true, DecErr: false})
	if err == nil {
		t.Error("Insert of an unserializable object should fail")
		return
	}

	// Operations on missing slots

	err = ds.Fetch(util.PackLocation(2, 18), &res)
	if sfe, ok := err.(*StoreError); !ok || sfe.Type != ErrSlotNotFound {
		t.Error("Unexpected fetch result:", err)
		return
	}

	err = ds.Update(util.PackLocation(2, 18), "test")
	if sfe, ok := err.(*StoreError); !ok || sfe.Type != ErrSlotNotFound {
		t.Error("Unexpected update result:", err)
		return
	}

	err = ds.Free(util.PackLocation(2, 18))
	if sfe, ok := err.(*StoreError); !ok || sfe.Type != ErrSlotNotFound {
		t.Error("Unexpected free result:", err)
		return
	}

	if _, err := ds.FetchCached(loc); err.(*StoreError).Type != ErrNotInCache {
		t.Error("Unexpected FetchCached result:", err)
		return
	}

	// Free the record

	if err := ds.Free(loc); err != nil {
		t.Error(err)
		return
	}

	err = ds.Fetch(loc, &res)
	if sfe, ok := err.(*StoreError); !ok || sfe.Type != ErrSlotNotFound {
		t.Error("Unexpected fetch result:", err)
		return
	}

	if err := ds.Flush(); err != nil {
		t.Error(err)
		return
	}

	if err := ds.Close(); err != nil {
		t.Error(err)
		return
	}

	if !DataFileExist(DBDIR + "/test1") {
		t.Error("Main disk storage file was not detected.")
		return
	}

	if DataFileExist(DBDIR + "/test99") {
		t.Error("Main disk storage file should not exist.")
		return
	}

	testClosedPanic(t, ds)
}

func testClosedPanic(t *testing.T, ds *DiskStore) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Using a closed DiskStore did not cause a panic.")
		}
	}()

	ds.Close()
}

func TestDiskStoreReadonly(t *testing.T) {

	ds := NewDiskStore(DBDIR+"/test2", false, false, true, true)

	loc, err := ds.Insert("This is a test")
	if err != nil {
		t.Error(err)
		return
	}

	if err := ds.Flush(); err != nil {
		t.Error(err)
		return
	}

	if err := ds.Close(); err != nil {
		t.Error(err)
		return
	}

	// Reopen the datastore readonly

	ds = NewDiskStore(DBDIR+"/test2", true, false, true, true)

	var res string

	if err := ds.Fetch(loc, &res); err != nil || res != "This is a test" {
		t.Error("Unexpected fetch result:", res, err)
		return
	}

	// Write operations must fail

	if _, err := ds.Insert("Test"); err.(*StoreError).Type != ErrReadonly {
		t.Error("Unexpected result:", err)
	}

	if err := ds.Update(loc, "Test"); err.(*StoreError).Type != ErrReadonly {
		t.Error("Unexpected result:", err)
	}

	if err := ds.Free(loc); err.(*StoreError).Type != ErrReadonly {
		t.Error("Unexpected result:", err)
	}

	// NOP operations

	ds.Rollback()
	ds.SetRoot(5, 20)

	if ds.Root(5) != 0 {
		t.Error("Root should not have been written")
		return
	}

	if err := ds.Close(); err != nil {
		t.Error(err)
		return
	}
}

func TestDiskStoreRollback(t *testing.T) {

	ds := NewDiskStore(DBDIR+"/test3", false, false, false, true)

	var res string

	loc, err := ds.Insert("This is a test")
	if err != nil {
		t.Error(err)
	}

	checkLocation(t, loc, 1, 18)

	if err := ds.Rollback(); err != nil {
		t.Error(err)
		return
	}

	// The insert was discarded

	err = ds.Fetch(loc, &res)
	if sfe, ok := err.(*StoreError); !ok || sfe.Type != ErrSlotNotFound {
		t.Error("Unexpected fetch result:", err)
		return
	}

	// The same location is handed out again

	loc, err = ds.Insert("This is a test")
	if err != nil {
		t.Error(err)
	}

	checkLocation(t, loc, 1, 18)

	if err := ds.Flush(); err != nil {
		t.Error(err)
		return
	}

	if err := ds.Rollback(); err != nil {
		t.Error(err)
		return
	}

	// Flushed data survives a rollback

	if err := ds.Fetch(loc, &res); err != nil || res != "This is a test" {
		t.Error("Unexpected fetch result:", res, err)
		return
	}

	if err := ds.Close(); err != nil {
		t.Error(err)
		return
	}
}

func TestDiskStoreLockfile(t *testing.T) {

	ds := NewDiskStore(DBDIR+"/test4", false, false, true, false)

	// Attempting to open the same store a second time must fail

	time.Sleep(100 * time.Millisecond)

	testLockfileStartPanic(t)

	loc, err := ds.Insert("This is a test")
	if err != nil {
		t.Error(err)
		return
	}

	var res string

	if err := ds.Fetch(loc, &res); err != nil || res != "This is a test" {
		t.Error("Unexpected fetch result:", res, err)
		return
	}

	if err := ds.Close(); err != nil {
		t.Error(err)
		return
	}
}

func testLockfileStartPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Attempting to open the same DiskStore twice did not cause a panic.")
		}
	}()

	ds := NewDiskStore(DBDIR+"/test4", false, false, true, false)
	ds.Close()
}

func checkLocation(t *testing.T, loc uint64, page uint64, offset uint16) {
	lp := util.LocationPage(loc)
	lo := util.LocationOffset(loc)
	if lp != page || lo != offset {
		t.Error("Unexpected location. Expected:", page, offset, "Got:", lp, lo)
	}
}
