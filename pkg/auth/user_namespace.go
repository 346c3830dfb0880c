// Copyright 2018 The gVisor Authors.
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
	"math"

	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/sentry/limits"
)

// DefaultUCountMax is the default ceiling of every UCountType in a root user
// namespace: half of the default maximum number of threads, 1 << 20.
const DefaultUCountMax = 1 << 19

// A UserNamespace represents a user namespace. See user_namespaces(7) for
// details.
type UserNamespace struct {
	userNamespaceRefs

	// parent is this namespace's parent. If this is the root namespace, parent
	// is nil. The parent pointer is immutable.
	parent *UserNamespace

	// owner is the effective UID of the namespace's creator in the root
	// namespace. owner is immutable.
	owner KUID

	// level is the number of ancestors of this namespace. level is immutable.
	level int

	// table is the ucounts registry of the namespace tree. table is immutable.
	table *ucountsTable

	// serial identifies this namespace in table. serial is immutable.
	serial uint64

	// ucounts is the record charged in parent for the creation of this
	// namespace. It is nil for the root namespace. ucounts is immutable.
	ucounts *UCounts

	// ucountMax and rlimitMax are the ceilings applied to records of this
	// namespace (ucountMax) and to records in parent charged on behalf of
	// this namespace (rlimitMax).
	ucountMax [UCountTypes]atomicbitops.Int64
	rlimitMax [RlimitTypes]atomicbitops.Int64
}

// RootOptions configures NewRootUserNamespace.
type RootOptions struct {
	// MaxUCounts bounds the number of live UCounts in the tree. Zero means
	// unbounded.
	MaxUCounts int64

	// UCountMax is the initial ceiling of every UCountType. Zero means
	// DefaultUCountMax.
	UCountMax int64

	// Limits supplies the initial rlimit maximums, taken from the current
	// (soft) limits. If nil, rlimits are unbounded.
	Limits *limits.LimitSet
}

// NewRootUserNamespace returns a UserNamespace that is appropriate for a
// system's root user namespace, along with a fresh ucounts registry for the
// tree rooted at it.
//
// The root user's record in the new namespace is created with one reference,
// held by the namespace tree for its whole lifetime, and is charged with one
// process, standing for init. See InitUCounts.
func NewRootUserNamespace(opts RootOptions) *UserNamespace {
	t := newUCountsTable(opts.MaxUCounts)
	ns := &UserNamespace{
		table:  t,
		serial: t.nextSerial(),
	}
	ns.InitRefs()

	max := opts.UCountMax
	if max == 0 {
		max = DefaultUCountMax
	}
	for i := range ns.ucountMax {
		ns.ucountMax[i].Store(max)
	}
	ns.setRlimitMaxFrom(opts.Limits)

	// The init record is counted in MaxUCounts but can never fail to be
	// created.
	t.live.Add(1)
	initUCounts := &UCounts{
		ns:  ns,
		uid: RootKUID,
	}
	initUCounts.InitRefs()
	t.mu.Lock()
	t.insertLocked(t.bucket(ns, RootKUID), initUCounts)
	ns.IncRef()
	t.mu.Unlock()
	t.initUCounts = initUCounts

	initUCounts.IncRlimit(RlimitNproc, 1)
	return ns
}

// InitUCounts returns the root user's record in the root namespace of ns's
// tree. The returned record is never destroyed as long as the tree is in use;
// callers that keep it must still take their own reference.
func (ns *UserNamespace) InitUCounts() *UCounts {
	return ns.table.initUCounts
}

// Root returns the root of the user namespace tree containing ns.
func (ns *UserNamespace) Root() *UserNamespace {
	for ns.parent != nil {
		ns = ns.parent
	}
	return ns
}

// Parent returns the parent of ns, or nil if ns is a root namespace.
func (ns *UserNamespace) Parent() *UserNamespace {
	return ns.parent
}

// Owner returns the KUID of the creator of ns.
func (ns *UserNamespace) Owner() KUID {
	return ns.owner
}

// UCounts returns the record charged in ns's parent for the creation of ns,
// or nil for a root namespace.
func (ns *UserNamespace) UCounts() *UCounts {
	return ns.ucounts
}

// "The kernel imposes (since version 3.11) a limit of 32 nested levels of user
// namespaces." - user_namespaces(7)
const maxUserNamespaceDepth = 32

// NewChildUserNamespace returns a new user namespace created by owner in ns.
// The creation is charged to owner in ns as one UCountUserNamespaces; ls
// provides the rlimit maximums of the new namespace and may be nil.
//
// The caller owns one reference on the returned namespace.
func (ns *UserNamespace) NewChildUserNamespace(owner KUID, ls *limits.LimitSet) (*UserNamespace, error) {
	if ns.level >= maxUserNamespaceDepth {
		// "... Calls to unshare(2) or clone(2) that would cause this limit to
		// be exceeded fail with the error EUSERS." - user_namespaces(7)
		return nil, linuxerr.EUSERS
	}
	ucounts, err := ns.IncUserNamespaces(owner)
	if err != nil {
		return nil, err
	}
	child := &UserNamespace{
		parent:  ns,
		owner:   owner,
		level:   ns.level + 1,
		table:   ns.table,
		serial:  ns.table.nextSerial(),
		ucounts: ucounts,
	}
	child.InitRefs()
	ns.IncRef()
	for i := range child.ucountMax {
		child.ucountMax[i].Store(math.MaxInt32)
	}
	child.setRlimitMaxFrom(ls)
	return child, nil
}

// DecRef releases a reference on ns. Dropping the last reference releases
// the creation charge of ns and its reference on the parent.
func (ns *UserNamespace) DecRef() {
	ns.userNamespaceRefs.DecRef(func() {
		if ns.ucounts != nil {
			ns.ucounts.DecUserNamespaces()
		}
		if ns.parent != nil {
			ns.parent.DecRef()
		}
	})
}

// ReleaseRoot tears down a root namespace created by NewRootUserNamespace: it
// uncharges init, drops the tree's reference on the init record and drops the
// creator's reference on ns. Neither ns nor its InitUCounts may be used
// afterwards.
//
// Preconditions: ns is a root namespace. Every child namespace and every
// other record of the tree has been released.
func (ns *UserNamespace) ReleaseRoot() {
	if ns.parent != nil {
		panic(fmt.Sprintf("ReleaseRoot called on non-root user namespace %d", ns.serial))
	}
	initUCounts := ns.table.initUCounts
	initUCounts.DecRlimit(RlimitNproc, 1)
	initUCounts.DecRef()
	ns.DecRef()
}

// UCountMax returns the ceiling of t for records in ns.
func (ns *UserNamespace) UCountMax(t UCountType) int64 {
	return ns.ucountMax[t].Load()
}

// SetUCountMax sets the ceiling of t for records in ns. The new ceiling
// applies to later charges only.
func (ns *UserNamespace) SetUCountMax(t UCountType, max int64) {
	ns.ucountMax[t].Store(max)
}

// RlimitMax returns the maximum of t applied to parent records charged on
// behalf of ns.
func (ns *UserNamespace) RlimitMax(t RlimitType) int64 {
	return ns.rlimitMax[t].Load()
}

// SetRlimitMax sets the maximum of t, clamped to math.MaxInt64.
func (ns *UserNamespace) SetRlimitMax(t RlimitType, max uint64) {
	if max > math.MaxInt64 {
		max = math.MaxInt64
	}
	ns.rlimitMax[t].Store(int64(max))
}

func (ns *UserNamespace) setRlimitMaxFrom(ls *limits.LimitSet) {
	for i := range ns.rlimitMax {
		t := RlimitType(i)
		if ls == nil {
			ns.SetRlimitMax(t, limits.Infinity)
			continue
		}
		ns.SetRlimitMax(t, ls.Get(t.LimitType()).Cur)
	}
}
