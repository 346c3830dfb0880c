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
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/gvisor/runsc/flag"
	"gvisor.dev/ucounts/pkg/auth"
	"gvisor.dev/ucounts/pkg/config"
)

// settingList is a repeated name=value flag.
type settingList []string

// String implements flag.Value.String.
func (s *settingList) String() string {
	return strings.Join(*s, ",")
}

// Set implements flag.Value.Set.
func (s *settingList) Set(v string) error {
	if _, _, ok := strings.Cut(v, "="); !ok {
		return fmt.Errorf("invalid setting %q, want name=value", v)
	}
	*s = append(*s, v)
	return nil
}

// Limits implements subcommands.Command for the "limits" command.
type Limits struct {
	depth        int
	owner        uint
	set          settingList
	unprivileged bool
}

// Name implements subcommands.Command.Name.
func (*Limits) Name() string {
	return "limits"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Limits) Synopsis() string {
	return "show or set the user.max_* limits of a namespace tree"
}

// Usage implements subcommands.Command.Usage.
func (*Limits) Usage() string {
	return `limits [flags] - builds a chain of nested user namespaces from the
configuration, applies -set to the innermost one and prints the limits of every
level.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Limits) SetFlags(f *flag.FlagSet) {
	f.IntVar(&l.depth, "depth", 1, "number of nested user namespaces below the root.")
	f.UintVar(&l.owner, "owner", 1000, "UID that creates the nested namespaces.")
	f.Var(&l.set, "set", "name=value to write to the innermost namespace, e.g. max_net_namespaces=10. May be repeated.")
	f.BoolVar(&l.unprivileged, "unprivileged", false, "write as a user without CAP_SYS_RESOURCE.")
}

// Execute implements subcommands.Command.Execute.
func (l *Limits) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	chain, err := newChain(conf, l.depth, auth.KUID(l.owner))
	if err != nil {
		Fatalf("%v", err)
	}
	defer chain.release()

	inner := chain.namespaces[len(chain.namespaces)-1]
	for _, s := range l.set {
		name, value, _ := strings.Cut(s, "=")
		if err := inner.WriteSysctl(name, value, !l.unprivileged); err != nil {
			Fatalf("writing %s: %v", name, err)
		}
	}
	if err := writeLimits(os.Stdout, chain.namespaces); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// namespaceChain is a root user namespace and a line of descendants, each
// created by the same owner in the previous one.
type namespaceChain struct {
	namespaces []*auth.UserNamespace
}

func newChain(conf *config.Config, depth int, owner auth.KUID) (*namespaceChain, error) {
	if depth < 0 {
		return nil, fmt.Errorf("invalid depth %d", depth)
	}
	if !owner.Ok() {
		return nil, fmt.Errorf("invalid owner %d", owner)
	}
	ls, err := conf.Limits()
	if err != nil {
		return nil, err
	}
	root, err := conf.NewRootUserNamespace()
	if err != nil {
		return nil, err
	}
	c := &namespaceChain{namespaces: []*auth.UserNamespace{root}}
	for i := 0; i < depth; i++ {
		child, err := c.namespaces[i].NewChildUserNamespace(owner, ls)
		if err != nil {
			c.release()
			return nil, fmt.Errorf("creating namespace at level %d: %w", i+1, err)
		}
		c.namespaces = append(c.namespaces, child)
	}
	return c, nil
}

// release drops the references on every namespace, innermost first, and
// tears down the root.
func (c *namespaceChain) release() {
	for i := len(c.namespaces) - 1; i > 0; i-- {
		c.namespaces[i].DecRef()
	}
	if len(c.namespaces) > 0 {
		c.namespaces[0].ReleaseRoot()
	}
	c.namespaces = nil
}

// writeLimits prints the sysctl and rlimit maximums of each namespace, one
// column per level.
func writeLimits(w io.Writer, namespaces []*auth.UserNamespace) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "NAME")
	for i := range namespaces {
		fmt.Fprintf(tw, "\tLEVEL %d", i)
	}
	fmt.Fprintln(tw)

	for _, name := range auth.SysctlNames() {
		fmt.Fprint(tw, name)
		for _, ns := range namespaces {
			v, err := ns.ReadSysctl(name)
			if err != nil {
				return fmt.Errorf("reading %s: %w", name, err)
			}
			fmt.Fprintf(tw, "\t%s", strings.TrimSpace(v))
		}
		fmt.Fprintln(tw)
	}
	for i := 0; i < auth.RlimitTypes; i++ {
		t := auth.RlimitType(i)
		fmt.Fprintf(tw, "rlimit_%s", t)
		for _, ns := range namespaces {
			fmt.Fprintf(tw, "\t%s", formatRlimit(ns.RlimitMax(t)))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func formatRlimit(v int64) string {
	if v == math.MaxInt64 {
		return "unlimited"
	}
	return fmt.Sprint(v)
}
