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
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/krotik/common/fileutil"
)

const DBDIR = "storetest"

// Main function for all tests in this package

func TestMain(m *testing.M) {
	flag.Parse()

	// Setup
	if res, _ := fileutil.PathExists(DBDIR); res {
		os.RemoveAll(DBDIR)
	}

	err := os.Mkdir(DBDIR, 0770)
	if err != nil {
		fmt.Print("Could not create test directory:", err.Error())
		os.Exit(1)
	}

	// Run the tests
	res := m.Run()

	// Teardown
	err = os.RemoveAll(DBDIR)
	if err != nil {
		fmt.Print("Could not remove test directory:", err.Error())
	}

	os.Exit(res)
}

func TestMemoryStore(t *testing.T) {
	var res string

	ms := NewMemoryStore("test")

	if ms.Name() != "test" {
		t.Error("Unexpected name:", ms.Name())
		return
	}

	ms.SetRoot(5, 20)
	if ms.Root(5) != 20 {
		t.Error("Unexpected root value")
		return
	}

	loc, err := ms.Insert("This is a test")
	if err != nil {
		t.Error(err)
		return
	}

	if loc != 1 {
		t.Error("Unexpected location:", loc)
		return
	}

	if err := ms.Fetch(loc, &res); err != nil {
		t.Error(err)
		return
	}

	if res != "This is a test" {
		t.Error("Unexpected fetch result:", res)
		return
	}

	obj, err := ms.FetchCached(loc)
	if err != nil {
		t.Error(err)
		return
	}

	if obj.(string) != "This is a test" {
		t.Error("Unexpected cached result:", obj)
		return
	}

	if err := ms.Update(loc, "Another test"); err != nil {
		t.Error(err)
		return
	}

	ms.Fetch(loc, &res)
	if res != "Another test" {
		t.Error("Unexpected fetch result:", res)
		return
	}

	if err := ms.Free(loc); err != nil {
		t.Error(err)
		return
	}

	err = ms.Fetch(loc, &res)
	if sfe, ok := err.(*StoreError); !ok || sfe.Type != ErrSlotNotFound {
		t.Error("Unexpected fetch result:", err)
		return
	}

	if s := ms.String(); s != "MemoryStore: test (objects:0)" {
		t.Error("Unexpected string representation:", s)
		return
	}

	if ms.NeedsFlush() {
		t.Error("A memory store should not need a flush by default")
		return
	}

	if ms.Flush() != nil || ms.Rollback() != nil || ms.Close() != nil {
		t.Error("Flush, rollback and close should work")
		return
	}
}

func TestMemoryStoreErrorSimulation(t *testing.T) {
	var res string

	ms := NewMemoryStore("test")

	loc, _ := ms.Insert("test1")

	ms.AccessMap[loc] = AccessFetchError

	if err := ms.Fetch(loc, &res); err == nil {
		t.Error("Simulated fetch error expected")
		return
	}

	ms.AccessMap[loc] = AccessUpdateError

	if err := ms.Update(loc, "test2"); err == nil {
		t.Error("Simulated update error expected")
		return
	}

	ms.AccessMap[loc] = AccessFreeError

	if err := ms.Free(loc); err == nil {
		t.Error("Simulated free error expected")
		return
	}

	ms.AccessMap[loc] = AccessNotInCache

	if _, err := ms.FetchCached(loc); err == nil {
		t.Error("Simulated cache miss expected")
		return
	}

	delete(ms.AccessMap, loc)

	ms.AccessMap[ms.LocCount] = AccessInsertError

	if _, err := ms.Insert("test3"); err == nil {
		t.Error("Simulated insert error expected")
		return
	}

	delete(ms.AccessMap, ms.LocCount)

	if err := ms.Fetch(loc, &res); err != nil || res != "test1" {
		t.Error("Unexpected fetch result:", res, err)
		return
	}
}
