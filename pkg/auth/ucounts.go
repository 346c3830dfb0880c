// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"fmt"
	"sync/atomic"

	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"
)

const (
	ucountsHashBits    = 10
	ucountsHashEntries = 1 << ucountsHashBits

	// goldenRatio64 is the multiplier used by Linux's hash_64.
	goldenRatio64 = 0x61C8864680B583EB
)

// UCounts accounts the resources charged to one user in one user namespace.
//
// A UCounts is created by UserNamespace.AllocUCounts and destroyed when its
// last reference is dropped. All counters may be modified by anyone holding a
// reference.
type UCounts struct {
	ucountsRefs

	// next links the record into its ucountsTable bucket. It is written only
	// with ucountsTable.mu held, and is left intact when the record is
	// unlinked so that concurrent lookups can finish their scan.
	next atomic.Pointer[UCounts]

	// ns and uid form the registry key. Both are immutable.
	ns  *UserNamespace
	uid KUID

	ucount [UCountTypes]atomicbitops.Int64
	rlimit [RlimitTypes]atomicbitops.Int64
}

// UserNamespace returns the namespace uc is accounted in.
func (uc *UCounts) UserNamespace() *UserNamespace {
	return uc.ns
}

// KUID returns the user uc is accounted to.
func (uc *UCounts) KUID() KUID {
	return uc.uid
}

// Parent returns the record charged in the parent namespace for the creation
// of uc's namespace, or nil if uc's namespace is a root namespace.
func (uc *UCounts) Parent() *UCounts {
	return uc.ns.ucounts
}

// Count returns the current value of the t counter. The returned value is
// inherently racy.
func (uc *UCounts) Count(t UCountType) int64 {
	return uc.ucount[t].Load()
}

// String implements fmt.Stringer.String.
func (uc *UCounts) String() string {
	return fmt.Sprintf("ucounts{ns:%d uid:%d}", uc.ns.serial, uc.uid)
}

// DecRef releases a reference on uc. Dropping the last reference removes uc
// from its registry and releases its namespace.
func (uc *UCounts) DecRef() {
	uc.ucountsRefs.DecRef(func() {
		t := uc.ns.table
		t.mu.Lock()
		t.unlinkLocked(uc)
		t.mu.Unlock()
		t.release()
		uc.ns.DecRef()
	})
}

// ucountsTable is the registry of UCounts shared by every namespace in a user
// namespace tree. It is never torn down.
type ucountsTable struct {
	// mu serializes insertion into and removal from buckets. Lookups do not
	// take mu.
	mu ucountsMutex

	buckets [ucountsHashEntries]atomic.Pointer[UCounts]

	// serial is the last serial number handed to a UserNamespace.
	serial atomicbitops.Uint64

	// live is the number of allocated records, including records that lost a
	// creation race and are about to be discarded.
	live atomicbitops.Int64

	// maxLive bounds live. Zero means unbounded. maxLive is immutable.
	maxLive int64

	// initUCounts is the root user's record in the root namespace. It is
	// immutable after NewRootUserNamespace.
	initUCounts *UCounts
}

func newUCountsTable(maxLive int64) *ucountsTable {
	return &ucountsTable{maxLive: maxLive}
}

func (t *ucountsTable) nextSerial() uint64 {
	return t.serial.Add(1)
}

func (t *ucountsTable) bucket(ns *UserNamespace, uid KUID) *atomic.Pointer[UCounts] {
	h := ((uint64(uid) + ns.serial) * goldenRatio64) >> (64 - ucountsHashBits)
	return &t.buckets[h]
}

// reserve accounts for one more record, failing if the table is full.
func (t *ucountsTable) reserve() bool {
	if v := t.live.Add(1); t.maxLive > 0 && v > t.maxLive {
		t.live.Add(-1)
		return false
	}
	return true
}

func (t *ucountsTable) release() {
	t.live.Add(-1)
}

// find returns a referenced record for (ns, uid) in bucket, or nil. Records
// whose reference count already reached zero are being destroyed and are
// skipped.
func (t *ucountsTable) find(bucket *atomic.Pointer[UCounts], ns *UserNamespace, uid KUID) *UCounts {
	for uc := bucket.Load(); uc != nil; uc = uc.next.Load() {
		if uc.uid == uid && uc.ns == ns && uc.TryIncRef() {
			return uc
		}
	}
	return nil
}

// insertLocked links uc at the head of bucket.
//
// Preconditions: t.mu is locked. uc's references are initialized.
func (t *ucountsTable) insertLocked(bucket *atomic.Pointer[UCounts], uc *UCounts) {
	uc.next.Store(bucket.Load())
	bucket.Store(uc)
}

// Preconditions: t.mu is locked. uc is linked into t.
func (t *ucountsTable) unlinkLocked(uc *UCounts) {
	link := t.bucket(uc.ns, uc.uid)
	for {
		cur := link.Load()
		if cur == nil {
			panic(fmt.Sprintf("%v not found in its bucket", uc))
		}
		if cur == uc {
			link.Store(uc.next.Load())
			return
		}
		link = &cur.next
	}
}

// LookupUCounts returns the record for uid in ns with a new reference, or nil
// if no live record exists.
func (ns *UserNamespace) LookupUCounts(uid KUID) *UCounts {
	return ns.table.find(ns.table.bucket(ns, uid), ns, uid)
}

// AllocUCounts returns the record for uid in ns, creating it if necessary.
// The caller owns one reference on the returned record.
//
// The new record is allocated without holding the registry lock; if another
// caller inserted a record for the same key in the meantime, that record is
// returned instead and the allocation is dropped.
//
// NoID cannot be charged and yields EINVAL.
func (ns *UserNamespace) AllocUCounts(uid KUID) (*UCounts, error) {
	if !uid.Ok() {
		return nil, linuxerr.EINVAL
	}
	t := ns.table
	bucket := t.bucket(ns, uid)
	if uc := t.find(bucket, ns, uid); uc != nil {
		return uc, nil
	}

	if !t.reserve() {
		allocFailed.Increment()
		log.Debugf("ucounts registry full, cannot track uid %d in user namespace %d", uid, ns.serial)
		return nil, linuxerr.ENOMEM
	}
	n := &UCounts{
		ns:  ns,
		uid: uid,
	}

	t.mu.Lock()
	if uc := t.find(bucket, ns, uid); uc != nil {
		t.mu.Unlock()
		t.release()
		return uc, nil
	}
	n.InitRefs()
	t.insertLocked(bucket, n)
	ns.IncRef()
	t.mu.Unlock()
	return n, nil
}
