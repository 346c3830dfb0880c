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
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/gvisor/pkg/errors"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

func TestSysctlNames(t *testing.T) {
	want := []string{
		"max_user_namespaces",
		"max_pid_namespaces",
		"max_uts_namespaces",
		"max_ipc_namespaces",
		"max_net_namespaces",
		"max_mnt_namespaces",
		"max_cgroup_namespaces",
		"max_time_namespaces",
		"max_inotify_instances",
		"max_inotify_watches",
		"max_fanotify_groups",
		"max_fanotify_marks",
	}
	if diff := cmp.Diff(want, SysctlNames()); diff != "" {
		t.Errorf("SysctlNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSysctl(t *testing.T) {
	ns := NewRootUserNamespace(RootOptions{})
	for _, name := range SysctlNames() {
		got, err := ns.ReadSysctl(name)
		if err != nil {
			t.Fatalf("ReadSysctl(%q) failed: %v", name, err)
		}
		if want := fmt.Sprintf("%d\n", DefaultUCountMax); got != want {
			t.Errorf("ReadSysctl(%q) = %q, want %q", name, got, want)
		}
	}
	for _, name := range []string{"", "user_namespaces", "max_foo", "max_"} {
		if _, err := ns.ReadSysctl(name); !linuxerr.Equals(linuxerr.ENOENT, err) {
			t.Errorf("ReadSysctl(%q): got %v, want %v", name, err, linuxerr.ENOENT)
		}
	}
}

func TestWriteSysctl(t *testing.T) {
	for _, test := range []struct {
		name       string
		value      string
		privileged bool
		want       *errors.Error
		wantValue  string
	}{
		{name: "max_pid_namespaces", value: "10\n", privileged: true, wantValue: "10\n"},
		{name: "max_pid_namespaces", value: "0", privileged: true, wantValue: "0\n"},
		{name: "max_pid_namespaces", value: "2147483647", privileged: true, wantValue: "2147483647\n"},
		{name: "max_pid_namespaces", value: "10", privileged: false, want: linuxerr.EPERM},
		{name: "max_pid_namespaces", value: "-1", privileged: true, want: linuxerr.EINVAL},
		{name: "max_pid_namespaces", value: "2147483648", privileged: true, want: linuxerr.EINVAL},
		{name: "max_pid_namespaces", value: "ten", privileged: true, want: linuxerr.EINVAL},
		{name: "max_bogus", value: "10", privileged: true, want: linuxerr.ENOENT},
	} {
		t.Run(fmt.Sprintf("%s=%q,privileged=%t", test.name, test.value, test.privileged), func(t *testing.T) {
			ns := NewRootUserNamespace(RootOptions{})
			err := ns.WriteSysctl(test.name, test.value, test.privileged)
			if test.want != nil {
				if !linuxerr.Equals(test.want, err) {
					t.Fatalf("WriteSysctl: got %v, want %v", err, test.want)
				}
				return
			}
			if err != nil {
				t.Fatalf("WriteSysctl failed: %v", err)
			}
			got, err := ns.ReadSysctl(test.name)
			if err != nil {
				t.Fatalf("ReadSysctl failed: %v", err)
			}
			if got != test.wantValue {
				t.Errorf("ReadSysctl after write = %q, want %q", got, test.wantValue)
			}
		})
	}
}

func TestWriteSysctlAppliesToCharges(t *testing.T) {
	ns := NewRootUserNamespace(RootOptions{})
	if err := ns.WriteSysctl("max_net_namespaces", "1", true); err != nil {
		t.Fatalf("WriteSysctl failed: %v", err)
	}
	uc, err := ns.IncUCount(9, UCountNetNamespaces)
	if err != nil {
		t.Fatalf("IncUCount failed: %v", err)
	}
	defer uc.DecUCount(UCountNetNamespaces)
	if _, err := ns.IncUCount(9, UCountNetNamespaces); !linuxerr.Equals(linuxerr.ENOSPC, err) {
		t.Errorf("IncUCount over the written ceiling: got %v, want %v", err, linuxerr.ENOSPC)
	}
}
