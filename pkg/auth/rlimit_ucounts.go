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

import "math"

// RlimitValue returns the current value of the t rlimit counter of uc. The
// returned value is inherently racy.
func (uc *UCounts) RlimitValue(t RlimitType) int64 {
	return uc.rlimit[t].Load()
}

// IncRlimit adds v to the t rlimit counter of uc and of every record above it,
// and returns the new value at uc.
//
// Each parent level is bounded by the rlimit maximum of the namespace below
// it. If any level overflows or exceeds its bound, IncRlimit returns
// math.MaxInt64; the addition is kept at every level and must still be undone
// with DecRlimit.
func (uc *UCounts) IncRlimit(t RlimitType, v int64) int64 {
	max := int64(math.MaxInt64)
	var ret int64
	for iter := uc; iter != nil; iter = iter.ns.ucounts {
		n := iter.rlimit[t].Add(v)
		if n < 0 || n > max {
			ret = math.MaxInt64
		} else if iter == uc {
			ret = n
		}
		max = iter.ns.RlimitMax(t)
	}
	return ret
}

// DecRlimit subtracts v from the t rlimit counter of uc and of every record
// above it. It returns true if the counter of uc dropped to zero.
func (uc *UCounts) DecRlimit(t RlimitType, v int64) bool {
	var ret int64 = -1
	for iter := uc; iter != nil; iter = iter.ns.ucounts {
		n := iter.rlimit[t].Add(-v)
		if n < 0 {
			warnNegative(iter, t.String(), n)
		}
		if iter == uc {
			ret = n
		}
	}
	return ret == 0
}

// IncRlimitGet adds one to the t rlimit counter of uc and of every record
// above it. A record whose counter leaves zero gains a reference, which is
// dropped again by DecRlimitPut when the counter returns to zero.
//
// Unless override is set, each parent level is bounded by the rlimit maximum
// of the namespace below it. On overflow, on an exceeded bound, or if a
// record is already being destroyed, everything done so far is undone and
// IncRlimitGet returns 0. Otherwise it returns the new value at uc.
//
// Preconditions: The caller holds a reference on uc.
func (uc *UCounts) IncRlimitGet(t RlimitType, override bool) int64 {
	max := int64(math.MaxInt64)
	var ret int64
	for iter := uc; iter != nil; iter = iter.ns.ucounts {
		n := iter.rlimit[t].Add(1)
		if n < 0 || n > max {
			return uc.unwindRlimitGet(iter, t)
		}
		if iter == uc {
			ret = n
		}
		if !override {
			max = iter.ns.RlimitMax(t)
		}
		if n != 1 {
			continue
		}
		if !iter.TryIncRef() {
			return uc.unwindRlimitGet(iter, t)
		}
	}
	return ret
}

// unwindRlimitGet undoes a failed IncRlimitGet that stopped at bad. bad was
// incremented but did not take a reference.
func (uc *UCounts) unwindRlimitGet(bad *UCounts, t RlimitType) int64 {
	if n := bad.rlimit[t].Add(-1); n < 0 {
		warnNegative(bad, t.String(), n)
	}
	uc.decRlimitPut(bad, t)
	return 0
}

// DecRlimitPut undoes IncRlimitGet.
func (uc *UCounts) DecRlimitPut(t RlimitType) {
	uc.decRlimitPut(nil, t)
}

// decRlimitPut subtracts one from the t rlimit counter of every record from
// uc up to, but excluding, last, dropping the reference of each record whose
// counter reaches zero.
func (uc *UCounts) decRlimitPut(last *UCounts, t RlimitType) {
	var next *UCounts
	for iter := uc; iter != last; iter = next {
		n := iter.rlimit[t].Add(-1)
		if n < 0 {
			warnNegative(iter, t.String(), n)
		}
		// iter may be destroyed by DecRef below; its namespace stays valid
		// because the caller's reference on uc pins the whole chain.
		next = iter.ns.ucounts
		if n == 0 {
			iter.DecRef()
		}
	}
}

// IsRlimitOverlimit returns true if the t rlimit counter of uc exceeds rlimit,
// or if the counter of any record above uc exceeds the rlimit maximum of the
// namespace below it.
func (uc *UCounts) IsRlimitOverlimit(t RlimitType, rlimit uint64) bool {
	max := int64(math.MaxInt64)
	if rlimit < math.MaxInt64 {
		max = int64(rlimit)
	}
	for iter := uc; iter != nil; iter = iter.ns.ucounts {
		v := iter.RlimitValue(t)
		if v < 0 || v > max {
			return true
		}
		max = iter.ns.RlimitMax(t)
	}
	return false
}
