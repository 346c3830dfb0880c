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

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/gvisor/pkg/refs"
	"gvisor.dev/ucounts/pkg/auth"
	"gvisor.dev/ucounts/pkg/config"
)

func TestSettingList(t *testing.T) {
	var s settingList
	for _, v := range []string{"max_net_namespaces=1", "max_pid_namespaces=2"} {
		if err := s.Set(v); err != nil {
			t.Fatalf("Set(%q) failed: %v", v, err)
		}
	}
	if err := s.Set("max_net_namespaces"); err == nil {
		t.Errorf("Set without a value succeeded")
	}
	if got, want := s.String(), "max_net_namespaces=1,max_pid_namespaces=2"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestWriteLimits(t *testing.T) {
	chain, err := newChain(config.Default(), 2, 1000)
	if err != nil {
		t.Fatalf("newChain failed: %v", err)
	}
	defer chain.release()
	inner := chain.namespaces[2]
	if err := inner.WriteSysctl("max_net_namespaces", "7", true); err != nil {
		t.Fatalf("WriteSysctl failed: %v", err)
	}

	var buf bytes.Buffer
	if err := writeLimits(&buf, chain.namespaces); err != nil {
		t.Fatalf("writeLimits failed: %v", err)
	}
	rows := make(map[string][]string)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		rows[fields[0]] = fields[1:]
	}

	if got, want := len(rows), auth.UCountTypes+auth.RlimitTypes; got != want {
		t.Errorf("got %d rows, want %d:\n%s", got, want, buf.String())
	}
	for _, test := range []struct {
		name string
		want []string
	}{
		{"max_user_namespaces", []string{"524288", "2147483647", "2147483647"}},
		{"max_net_namespaces", []string{"524288", "2147483647", "7"}},
	} {
		if diff := cmp.Diff(test.want, rows[test.name]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", test.name, diff)
		}
	}
}

func TestNewChainRelease(t *testing.T) {
	chain, err := newChain(config.Default(), 3, 1000)
	if err != nil {
		t.Fatalf("newChain failed: %v", err)
	}
	root := chain.namespaces[0]
	chain.release()
	if uc := root.LookupUCounts(1000); uc != nil {
		uc.DecRef()
		t.Errorf("creation record %v survived release", uc)
	}
	if uc := root.LookupUCounts(auth.RootKUID); uc != nil {
		uc.DecRef()
		t.Errorf("init record %v survived release", uc)
	}
	if got := root.ReadRefs(); got != 0 {
		t.Errorf("root refs after release = %d, want 0", got)
	}
	// A second release is a no-op.
	chain.release()

	if _, err := newChain(config.Default(), -1, 1000); err == nil {
		t.Errorf("newChain with a negative depth succeeded")
	}
	if _, err := newChain(config.Default(), 1, auth.NoID); err == nil {
		t.Errorf("newChain with owner NoID succeeded")
	}
}

func TestReleaseLeavesNoLiveObjects(t *testing.T) {
	refs.SetLeakMode(refs.LeaksPanic)
	defer refs.SetLeakMode(refs.NoLeakChecking)

	chain, err := newChain(config.Default(), 2, 1000)
	if err != nil {
		t.Fatalf("newChain failed: %v", err)
	}
	chain.release()
	if _, err := runStress(context.Background(), config.Default(), stressOptions{Depth: 2, Workers: 4, Iterations: 50, UIDs: 2, Seed: 5}); err != nil {
		t.Fatalf("runStress failed: %v", err)
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("leak check failed: %v", r)
		}
	}()
	refs.DoRepeatedLeakCheck()
}
