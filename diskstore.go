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
	"bytes"
	"encoding/gob"
	"fmt"
)

/*
DiskStore is a disk store for abstract objects. Objects are serialized with
gob and stored through a ByteDiskStore.
*/
type DiskStore struct {
	*ByteDiskStore
}

/*
NewDiskStore creates a new disk store for abstract objects.
*/
func NewDiskStore(filename string, readonly bool, onlyAppend bool,
	transDisabled bool, lockfileDisabled bool) *DiskStore {

	return &DiskStore{NewByteDiskStore(filename, readonly, onlyAppend,
		transDisabled, lockfileDisabled)}
}

/*
Name returns the name of the DiskStore instance.
*/
func (ds *DiskStore) Name() string {
	return fmt.Sprint("DiskStore:", ds.filename)
}

/*
Insert inserts an object and returns its storage location.
*/
func (ds *DiskStore) Insert(o interface{}) (uint64, error) {
	bb := BufferPool.Get().(*bytes.Buffer)

	defer func() {
		bb.Reset()
		BufferPool.Put(bb)
	}()

	if err := gob.NewEncoder(bb).Encode(o); err != nil {
		return 0, err
	}

	return ds.ByteDiskStore.Insert(bb.Bytes())
}

/*
Update updates a storage location.
*/
func (ds *DiskStore) Update(loc uint64, o interface{}) error {
	bb := BufferPool.Get().(*bytes.Buffer)

	defer func() {
		bb.Reset()
		BufferPool.Put(bb)
	}()

	if err := gob.NewEncoder(bb).Encode(o); err != nil {
		return err
	}

	return ds.ByteDiskStore.Update(loc, bb.Bytes())
}

/*
Fetch fetches an object from a given storage location and writes it to a
given data container.
*/
func (ds *DiskStore) Fetch(loc uint64, o interface{}) error {
	bb := BufferPool.Get().(*bytes.Buffer)

	defer func() {
		bb.Reset()
		BufferPool.Put(bb)
	}()

	if err := ds.ByteDiskStore.Fetch(loc, bb); err != nil {
		return err
	}

	return gob.NewDecoder(bb).Decode(o)
}

/*
FetchCached is not implemented for a DiskStore. Only defined to satisfy the
Store interface.
*/
func (ds *DiskStore) FetchCached(loc uint64) (interface{}, error) {
	return nil, NewStoreError(ErrNotInCache, "", ds.Name())
}
