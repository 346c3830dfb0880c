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

//go:build linux
// +build linux

package config

import (
	"fmt"

	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/sentry/limits"
	"gvisor.dev/ucounts/pkg/auth"
)

// hostResources maps each auth.RlimitType to the host resource it mirrors.
var hostResources = [auth.RlimitTypes]int{
	auth.RlimitNproc:      unix.RLIMIT_NPROC,
	auth.RlimitMsgqueue:   unix.RLIMIT_MSGQUEUE,
	auth.RlimitSigpending: unix.RLIMIT_SIGPENDING,
	auth.RlimitMemlock:    unix.RLIMIT_MEMLOCK,
}

// hostLimitSet returns the Linux distro default LimitSet with the limits tracked by
// ucounts replaced by those of the current process.
func hostLimitSet() (*limits.LimitSet, error) {
	ls, err := limits.NewLinuxDistroLimitSet()
	if err != nil {
		return nil, err
	}
	for i, resource := range hostResources {
		var rl unix.Rlimit
		if err := unix.Getrlimit(resource, &rl); err != nil {
			return nil, fmt.Errorf("getrlimit(%d): %w", resource, err)
		}
		ls.SetUnchecked(auth.RlimitType(i).LimitType(), limits.Limit{
			Cur: limits.FromLinux(rl.Cur),
			Max: limits.FromLinux(rl.Max),
		})
	}
	return ls, nil
}
