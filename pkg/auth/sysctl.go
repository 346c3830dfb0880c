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
	"math"
	"strconv"
	"strings"

	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

// sysctlPrefix prefixes every entry of the /proc/sys/user table.
const sysctlPrefix = "max_"

// SysctlNames returns the names of the per-namespace user.max_* sysctls, in
// UCountType order.
func SysctlNames() []string {
	names := make([]string, UCountTypes)
	for i := range names {
		names[i] = sysctlPrefix + UCountType(i).String()
	}
	return names
}

func sysctlType(name string) (UCountType, error) {
	s, ok := strings.CutPrefix(name, sysctlPrefix)
	if !ok {
		return 0, linuxerr.ENOENT
	}
	t, ok := ParseUCountType(s)
	if !ok {
		return 0, linuxerr.ENOENT
	}
	return t, nil
}

// ReadSysctl returns the contents of /proc/sys/user/name as seen from ns.
func (ns *UserNamespace) ReadSysctl(name string) (string, error) {
	t, err := sysctlType(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d\n", ns.UCountMax(t)), nil
}

// WriteSysctl writes value to /proc/sys/user/name as seen from ns.
//
// Only callers with CAP_SYS_RESOURCE in ns (privileged) may write; everyone
// else has read-only access. Values must lie in [0, math.MaxInt32].
func (ns *UserNamespace) WriteSysctl(name, value string, privileged bool) error {
	t, err := sysctlType(name)
	if err != nil {
		return err
	}
	if !privileged {
		return linuxerr.EPERM
	}
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || v < 0 || v > math.MaxInt32 {
		return linuxerr.EINVAL
	}
	ns.SetUCountMax(t, v)
	return nil
}
