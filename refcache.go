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
	"time"

	"github.com/krotik/common/logutil"
)

/*
DrainerWakeupInterval is the interval in which an idle drainer wakes up to
sweep cleared references and to check if it should terminate.
*/
var DrainerWakeupInterval = 10 * time.Second

/*
Logger for drainer related events
*/
var cacheLog = logutil.GetLogger("slotstore.cache")

/*
refCacheEntry data structure. A cleared entry models a reference whose
value was reclaimed - it stays in the map until the drainer removes it.
*/
type refCacheEntry struct {
	object  interface{} // Referenced object (nil once cleared)
	cleared bool        // Flag if the reference was cleared
}

/*
refCache is a bounded second level cache which holds only unmodified
values. When its capacity is exceeded the oldest reference is cleared and
queued for removal. The map is guarded by its own lock so the drainer never
contends with the primary cache lock.
*/
type refCache struct {
	mutex      sync.Mutex                // Lock for the reference map
	entries    map[uint64]*refCacheEntry // Map of referenced values
	order      []uint64                  // Insertion order for displacement
	maxEntries int                       // Capacity before references are cleared
	queue      chan uint64               // Cleared references waiting for removal
	stop       chan struct{}             // Closed when the drainer should terminate
}

/*
newRefCache creates a new reference cache and starts its drainer.
*/
func newRefCache(maxEntries int) *refCache {
	rc := &refCache{
		entries:    make(map[uint64]*refCacheEntry),
		order:      make([]uint64, 0, maxEntries),
		maxEntries: maxEntries,
		queue:      make(chan uint64, maxEntries+1),
		stop:       make(chan struct{}),
	}

	// The drainer only holds the reference cache itself, not the cache
	// wrapper which created it

	go rc.drain()

	return rc
}

/*
put stores a value in the reference cache. If the capacity is exceeded the
oldest reference is cleared and handed to the drainer.
*/
func (rc *refCache) put(loc uint64, o interface{}) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if entry, ok := rc.entries[loc]; ok {
		entry.object = o
		entry.cleared = false
		return
	}

	rc.entries[loc] = &refCacheEntry{o, false}
	rc.order = append(rc.order, loc)

	for len(rc.order) > rc.maxEntries {

		victim := rc.order[0]
		rc.order = rc.order[1:]

		if entry, ok := rc.entries[victim]; ok && !entry.cleared {

			entry.object = nil
			entry.cleared = true

			// Hand the cleared reference to the drainer - if the queue is
			// full the entry is picked up by the next periodic sweep

			select {
			case rc.queue <- victim:
			default:
			}
		}
	}
}

/*
get returns a value from the reference cache.
*/
func (rc *refCache) get(loc uint64) (interface{}, bool) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if entry, ok := rc.entries[loc]; ok && !entry.cleared {
		return entry.object, true
	}

	return nil, false
}

/*
remove drops a value from the reference cache.
*/
func (rc *refCache) remove(loc uint64) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	delete(rc.entries, loc)
}

/*
clear drops all values from the reference cache.
*/
func (rc *refCache) clear() {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	rc.entries = make(map[uint64]*refCacheEntry)
	rc.order = rc.order[:0]
}

/*
stopDrainer terminates the drainer.
*/
func (rc *refCache) stopDrainer() {
	select {
	case <-rc.stop:
		// Already stopped
	default:
		close(rc.stop)
	}
}

/*
drain is the drainer loop. It blocks on the queue of cleared references and
removes them from the reference map in batches. The loop wakes up in
regular intervals to sweep leftovers and to check for termination.
Unexpected errors are logged and swallowed so that the drainer stays alive.
*/
func (rc *refCache) drain() {
	for {
		if stopped := rc.drainBatch(); stopped {
			return
		}
	}
}

/*
drainBatch processes one batch of cleared references. Returns true if the
drainer should terminate.
*/
func (rc *refCache) drainBatch() (stopped bool) {

	defer func() {
		if r := recover(); r != nil {
			cacheLog.Warning("Reference cache drainer recovered from error: ", r)
		}
	}()

	select {

	case loc := <-rc.queue:

		batch := []uint64{loc}

	collect:
		for {
			select {
			case l := <-rc.queue:
				batch = append(batch, l)
			default:
				break collect
			}
		}

		rc.removeCleared(batch)

	case <-time.After(DrainerWakeupInterval):

		rc.sweep()

	case <-rc.stop:

		return true
	}

	return false
}

/*
removeCleared removes a batch of cleared references from the reference map.
*/
func (rc *refCache) removeCleared(batch []uint64) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	for _, loc := range batch {
		if entry, ok := rc.entries[loc]; ok && entry.cleared {
			delete(rc.entries, loc)
		}
	}
}

/*
sweep removes all cleared references and compacts the displacement order.
*/
func (rc *refCache) sweep() {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	for loc, entry := range rc.entries {
		if entry.cleared {
			delete(rc.entries, loc)
		}
	}

	order := rc.order[:0]
	for _, loc := range rc.order {
		if _, ok := rc.entries[loc]; ok {
			order = append(order, loc)
		}
	}
	rc.order = order
}
