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
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// newRlimitChild returns the record of uid 5 in a child of a new root
// namespace, created by uid 5.
func newRlimitChild(t *testing.T) (*UserNamespace, *UCounts) {
	t.Helper()
	root := NewRootUserNamespace(RootOptions{})
	child, err := root.NewChildUserNamespace(5, nil)
	if err != nil {
		t.Fatalf("NewChildUserNamespace failed: %v", err)
	}
	uc, err := child.AllocUCounts(5)
	if err != nil {
		t.Fatalf("AllocUCounts failed: %v", err)
	}
	t.Cleanup(func() {
		uc.DecRef()
		child.DecRef()
	})
	return child, uc
}

type levelState struct {
	Value int64
	Refs  int64
}

// rlimitState returns the t rlimit counter and reference count of uc and of
// every record above it.
func rlimitState(uc *UCounts, t RlimitType) []levelState {
	var s []levelState
	for iter := uc; iter != nil; iter = iter.Parent() {
		s = append(s, levelState{Value: iter.RlimitValue(t), Refs: iter.ReadRefs()})
	}
	return s
}

func TestInitUCountsCountsInit(t *testing.T) {
	ns := NewRootUserNamespace(RootOptions{})
	if got := ns.InitUCounts().RlimitValue(RlimitNproc); got != 1 {
		t.Errorf("init nproc = %d, want 1", got)
	}
}

func TestIncRlimit(t *testing.T) {
	child, uc := newRlimitChild(t)
	if got := uc.IncRlimit(RlimitMsgqueue, 100); got != 100 {
		t.Fatalf("IncRlimit(100) = %d, want 100", got)
	}

	// The parent level is bounded by the child namespace's maximum.
	child.SetRlimitMax(RlimitMsgqueue, 150)
	if got := uc.IncRlimit(RlimitMsgqueue, 100); got != math.MaxInt64 {
		t.Fatalf("IncRlimit over the parent bound = %d, want %d", got, int64(math.MaxInt64))
	}
	// The addition is not undone.
	if got, want := uc.RlimitValue(RlimitMsgqueue), int64(200); got != want {
		t.Errorf("value = %d, want %d", got, want)
	}
	if got, want := uc.Parent().RlimitValue(RlimitMsgqueue), int64(200); got != want {
		t.Errorf("parent value = %d, want %d", got, want)
	}

	if !uc.DecRlimit(RlimitMsgqueue, 200) {
		t.Errorf("DecRlimit to zero returned false")
	}
	if got := uc.Parent().RlimitValue(RlimitMsgqueue); got != 0 {
		t.Errorf("parent value after DecRlimit = %d, want 0", got)
	}
}

func TestIncRlimitOverflow(t *testing.T) {
	_, uc := newRlimitChild(t)
	if got := uc.IncRlimit(RlimitMemlock, math.MaxInt64); got != math.MaxInt64 {
		t.Fatalf("IncRlimit(MaxInt64) = %d", got)
	}
	if got := uc.IncRlimit(RlimitMemlock, 1); got != math.MaxInt64 {
		t.Fatalf("overflowing IncRlimit = %d, want %d", got, int64(math.MaxInt64))
	}
	if uc.DecRlimit(RlimitMemlock, 1) {
		t.Errorf("DecRlimit reported zero too early")
	}
	if !uc.DecRlimit(RlimitMemlock, math.MaxInt64) {
		t.Errorf("DecRlimit did not report zero")
	}
}

func TestDecRlimit(t *testing.T) {
	_, uc := newRlimitChild(t)
	uc.IncRlimit(RlimitSigpending, 2)
	if uc.DecRlimit(RlimitSigpending, 1) {
		t.Errorf("DecRlimit(1) from 2 reported zero")
	}
	if !uc.DecRlimit(RlimitSigpending, 1) {
		t.Errorf("DecRlimit(1) from 1 did not report zero")
	}

	before := negativeCount.Value()
	if uc.DecRlimit(RlimitSigpending, 1) {
		t.Errorf("DecRlimit below zero reported zero")
	}
	if got := negativeCount.Value() - before; got != 2 {
		t.Errorf("negative_count increased by %d, want 2", got)
	}
	uc.IncRlimit(RlimitSigpending, 1)
}

func TestIncRlimitGetPins(t *testing.T) {
	_, uc := newRlimitChild(t)
	initial := rlimitState(uc, RlimitNproc)
	if diff := cmp.Diff([]levelState{{0, 1}, {0, 1}}, initial); diff != "" {
		t.Fatalf("initial state mismatch (-want +got):\n%s", diff)
	}

	if got := uc.IncRlimitGet(RlimitNproc, false); got != 1 {
		t.Fatalf("IncRlimitGet = %d, want 1", got)
	}
	if diff := cmp.Diff([]levelState{{1, 2}, {1, 2}}, rlimitState(uc, RlimitNproc)); diff != "" {
		t.Errorf("state after first IncRlimitGet mismatch (-want +got):\n%s", diff)
	}
	if got := uc.IncRlimitGet(RlimitNproc, false); got != 2 {
		t.Fatalf("IncRlimitGet = %d, want 2", got)
	}
	if diff := cmp.Diff([]levelState{{2, 2}, {2, 2}}, rlimitState(uc, RlimitNproc)); diff != "" {
		t.Errorf("state after second IncRlimitGet mismatch (-want +got):\n%s", diff)
	}

	uc.DecRlimitPut(RlimitNproc)
	uc.DecRlimitPut(RlimitNproc)
	if diff := cmp.Diff(initial, rlimitState(uc, RlimitNproc)); diff != "" {
		t.Errorf("state after DecRlimitPut mismatch (-want +got):\n%s", diff)
	}
}

func TestIncRlimitGetDecRlimitPutIsIdentity(t *testing.T) {
	for i := 0; i < RlimitTypes; i++ {
		rt := RlimitType(i)
		t.Run(rt.String(), func(t *testing.T) {
			_, uc := newRlimitChild(t)
			// Start from a nonzero value so both pinning and plain counting
			// are covered.
			uc.IncRlimit(rt, 3)
			before := rlimitState(uc, rt)
			if got := uc.IncRlimitGet(rt, false); got != 4 {
				t.Fatalf("IncRlimitGet = %d, want 4", got)
			}
			uc.DecRlimitPut(rt)
			if diff := cmp.Diff(before, rlimitState(uc, rt)); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}

			uc.DecRlimit(rt, 3)
			before = rlimitState(uc, rt)
			uc.IncRlimitGet(rt, false)
			uc.DecRlimitPut(rt)
			if diff := cmp.Diff(before, rlimitState(uc, rt)); diff != "" {
				t.Errorf("state from zero mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIncRlimitGetUnwind(t *testing.T) {
	child, uc := newRlimitChild(t)
	child.SetRlimitMax(RlimitNproc, 0)
	before := rlimitState(uc, RlimitNproc)

	if got := uc.IncRlimitGet(RlimitNproc, false); got != 0 {
		t.Fatalf("IncRlimitGet over the parent bound = %d, want 0", got)
	}
	if diff := cmp.Diff(before, rlimitState(uc, RlimitNproc)); diff != "" {
		t.Errorf("state after failed IncRlimitGet mismatch (-want +got):\n%s", diff)
	}

	// override skips the namespace maximums.
	if got := uc.IncRlimitGet(RlimitNproc, true); got != 1 {
		t.Fatalf("IncRlimitGet with override = %d, want 1", got)
	}
	uc.DecRlimitPut(RlimitNproc)
	if diff := cmp.Diff(before, rlimitState(uc, RlimitNproc)); diff != "" {
		t.Errorf("state after DecRlimitPut mismatch (-want +got):\n%s", diff)
	}
}

func TestIncRlimitGetUnwindDeepChain(t *testing.T) {
	c := newTestChain(t)
	uc, err := c.b.AllocUCounts(3)
	if err != nil {
		t.Fatalf("AllocUCounts failed: %v", err)
	}
	defer uc.DecRef()

	// a bounds the root-level record.
	c.a.SetRlimitMax(RlimitNproc, 0)
	want := []levelState{{0, 1}, {0, 1}, {0, 1}}
	if got := uc.IncRlimitGet(RlimitNproc, false); got != 0 {
		t.Fatalf("IncRlimitGet = %d, want 0", got)
	}
	if diff := cmp.Diff(want, rlimitState(uc, RlimitNproc)); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	c.a.SetRlimitMax(RlimitNproc, math.MaxUint64)
	if got := uc.IncRlimitGet(RlimitNproc, false); got != 1 {
		t.Fatalf("IncRlimitGet = %d, want 1", got)
	}
	if diff := cmp.Diff([]levelState{{1, 2}, {1, 2}, {1, 2}}, rlimitState(uc, RlimitNproc)); diff != "" {
		t.Errorf("pinned state mismatch (-want +got):\n%s", diff)
	}
	uc.DecRlimitPut(RlimitNproc)
	if diff := cmp.Diff(want, rlimitState(uc, RlimitNproc)); diff != "" {
		t.Errorf("released state mismatch (-want +got):\n%s", diff)
	}
}

func TestIsRlimitOverlimit(t *testing.T) {
	child, uc := newRlimitChild(t)
	uc.IncRlimit(RlimitNproc, 3)
	defer uc.DecRlimit(RlimitNproc, 3)

	for _, test := range []struct {
		name      string
		rlimit    uint64
		parentMax uint64
		want      bool
	}{
		{name: "under", rlimit: 4, parentMax: math.MaxUint64, want: false},
		{name: "at", rlimit: 3, parentMax: math.MaxUint64, want: false},
		{name: "over", rlimit: 2, parentMax: math.MaxUint64, want: true},
		{name: "infinite", rlimit: math.MaxUint64, parentMax: math.MaxUint64, want: false},
		{name: "parent over", rlimit: 10, parentMax: 2, want: true},
		{name: "parent at", rlimit: 10, parentMax: 3, want: false},
	} {
		t.Run(test.name, func(t *testing.T) {
			child.SetRlimitMax(RlimitNproc, test.parentMax)
			if got := uc.IsRlimitOverlimit(RlimitNproc, test.rlimit); got != test.want {
				t.Errorf("IsRlimitOverlimit(%d) = %t, want %t", test.rlimit, got, test.want)
			}
		})
	}
}
