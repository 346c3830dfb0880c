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
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"
)

// incBelow increments v unless it is already at or above limit.
func incBelow(v *atomicbitops.Int64, limit int64) bool {
	for {
		c := v.Load()
		if c >= limit {
			return false
		}
		if v.CompareAndSwap(c, c+1) {
			return true
		}
	}
}

// decIfPositive decrements v unless that would make it negative, and returns
// the decremented value either way.
func decIfPositive(v *atomicbitops.Int64) int64 {
	for {
		c := v.Load()
		d := c - 1
		if d < 0 {
			return d
		}
		if v.CompareAndSwap(c, d) {
			return d
		}
	}
}

// IncUCount charges one t to uid in ns and to every record on the chain above
// it. It returns the record for (ns, uid), on which the caller now owns a
// reference that must be released with UCounts.DecUCount.
//
// If any level is at its ceiling, levels that were already charged are
// uncharged and IncUCount returns ENOSPC. ENOMEM is returned if the record
// could not be allocated. Both mean the resource is denied.
func (ns *UserNamespace) IncUCount(uid KUID, t UCountType) (*UCounts, error) {
	ucounts, err := ns.AllocUCounts(uid)
	if err != nil {
		return nil, err
	}
	for iter := ucounts; iter != nil; iter = iter.ns.ucounts {
		if incBelow(&iter.ucount[t], iter.ns.ucountMax[t].Load()) {
			continue
		}
		for u := ucounts; u != iter; u = u.ns.ucounts {
			u.ucount[t].Add(-1)
		}
		ucounts.DecRef()
		limitExceeded.Increment()
		log.Debugf("%v: %v limit reached in user namespace %d", ucounts, t, iter.ns.serial)
		return nil, linuxerr.ENOSPC
	}
	return ucounts, nil
}

// DecUCount uncharges one t from uc and every record above it, then releases
// the caller's reference on uc.
func (uc *UCounts) DecUCount(t UCountType) {
	for iter := uc; iter != nil; iter = iter.ns.ucounts {
		if v := decIfPositive(&iter.ucount[t]); v < 0 {
			warnNegative(iter, t.String(), v)
		}
	}
	uc.DecRef()
}

// IncUserNamespaces charges the creation of a user namespace by uid in ns.
func (ns *UserNamespace) IncUserNamespaces(uid KUID) (*UCounts, error) {
	return ns.IncUCount(uid, UCountUserNamespaces)
}

// DecUserNamespaces releases a charge taken by IncUserNamespaces.
func (uc *UCounts) DecUserNamespaces() {
	uc.DecUCount(UCountUserNamespaces)
}
