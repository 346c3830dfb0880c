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

	"gvisor.dev/gvisor/pkg/sentry/limits"
)

// UCountType identifies a per-namespace object count that is limited by a
// ceiling in every namespace on the chain. See user_namespace.h:ucount_type.
type UCountType int

// UCountType values. The order matches the user.max_* sysctl table.
const (
	UCountUserNamespaces UCountType = iota
	UCountPIDNamespaces
	UCountUTSNamespaces
	UCountIPCNamespaces
	UCountNetNamespaces
	UCountMntNamespaces
	UCountCgroupNamespaces
	UCountTimeNamespaces
	UCountInotifyInstances
	UCountInotifyWatches
	UCountFanotifyGroups
	UCountFanotifyMarks

	// UCountTypes is the number of UCountType values.
	UCountTypes int = iota
)

var ucountTypeNames = [UCountTypes]string{
	UCountUserNamespaces:   "user_namespaces",
	UCountPIDNamespaces:    "pid_namespaces",
	UCountUTSNamespaces:    "uts_namespaces",
	UCountIPCNamespaces:    "ipc_namespaces",
	UCountNetNamespaces:    "net_namespaces",
	UCountMntNamespaces:    "mnt_namespaces",
	UCountCgroupNamespaces: "cgroup_namespaces",
	UCountTimeNamespaces:   "time_namespaces",
	UCountInotifyInstances: "inotify_instances",
	UCountInotifyWatches:   "inotify_watches",
	UCountFanotifyGroups:   "fanotify_groups",
	UCountFanotifyMarks:    "fanotify_marks",
}

// String implements fmt.Stringer.String.
func (t UCountType) String() string {
	if t < 0 || int(t) >= UCountTypes {
		return fmt.Sprintf("UCountType(%d)", int(t))
	}
	return ucountTypeNames[t]
}

// ParseUCountType returns the UCountType named s, as printed by String.
func ParseUCountType(s string) (UCountType, bool) {
	for t, name := range ucountTypeNames {
		if name == s {
			return UCountType(t), true
		}
	}
	return 0, false
}

// RlimitType identifies a classic rlimit resource that is additionally
// accounted per user across the namespace chain.
type RlimitType int

// RlimitType values.
const (
	RlimitNproc RlimitType = iota
	RlimitMsgqueue
	RlimitSigpending
	RlimitMemlock

	// RlimitTypes is the number of RlimitType values.
	RlimitTypes int = iota
)

var rlimitTypeNames = [RlimitTypes]string{
	RlimitNproc:      "nproc",
	RlimitMsgqueue:   "msgqueue",
	RlimitSigpending: "sigpending",
	RlimitMemlock:    "memlock",
}

// String implements fmt.Stringer.String.
func (t RlimitType) String() string {
	if t < 0 || int(t) >= RlimitTypes {
		return fmt.Sprintf("RlimitType(%d)", int(t))
	}
	return rlimitTypeNames[t]
}

// LimitType returns the limits.LimitType that bounds t for a single task.
func (t RlimitType) LimitType() limits.LimitType {
	switch t {
	case RlimitNproc:
		return limits.ProcessCount
	case RlimitMsgqueue:
		return limits.MessageQueueBytes
	case RlimitSigpending:
		return limits.SignalsPending
	case RlimitMemlock:
		return limits.MemoryLocked
	default:
		panic(fmt.Sprintf("unknown rlimit type %d", int(t)))
	}
}
