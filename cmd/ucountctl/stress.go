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
	"math/rand"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/runsc/flag"
	"gvisor.dev/ucounts/pkg/auth"
	"gvisor.dev/ucounts/pkg/config"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	opts stressOptions
}

// stressOptions configures runStress.
type stressOptions struct {
	// Depth is the number of nested namespaces below the root.
	Depth int
	// Workers is the number of concurrent callers.
	Workers int
	// Iterations is the number of charge/release pairs per worker.
	Iterations int
	// UIDs is the number of distinct users charged, starting at firstStressUID.
	UIDs int
	// Ceiling, if positive, is written to every ucount ceiling of every
	// namespace before the run.
	Ceiling int64
	// Seed seeds the workers' choices.
	Seed int64
}

// stressResult summarizes a runStress run.
type stressResult struct {
	Charged     int64
	Denied      int64
	RlimitPins  int64
	RlimitFails int64
}

// firstStressUID is above the owners of the namespace chain so that stress
// records never alias creation records.
const firstStressUID = 10000

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "charge and release ucounts concurrently and verify the accounting"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - runs concurrent workers that charge and release
ucounts and rlimits at random levels of a namespace chain, then checks that
every counter returned to zero and no record leaked.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.opts.Depth, "depth", 3, "number of nested user namespaces below the root.")
	f.IntVar(&s.opts.Workers, "workers", 64, "number of concurrent workers.")
	f.IntVar(&s.opts.Iterations, "iterations", 1000, "charge/release pairs per worker.")
	f.IntVar(&s.opts.UIDs, "uids", 16, "number of distinct users charged.")
	f.Int64Var(&s.opts.Ceiling, "ceiling", 0, "if positive, ceiling applied to every ucount type in every namespace.")
	f.Int64Var(&s.opts.Seed, "seed", time.Now().UnixNano(), "random seed.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	start := time.Now()
	res, err := runStress(ctx, conf, s.opts)
	if err != nil {
		log.Warningf("Stress run failed (seed %d): %v", s.opts.Seed, err)
		fmt.Printf("FAIL: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("ok: %d charged, %d denied, %d rlimit pins, %d rlimit denials in %v\n",
		res.Charged, res.Denied, res.RlimitPins, res.RlimitFails, time.Since(start))
	return subcommands.ExitSuccess
}

// runStress runs opts.Workers workers against a new namespace chain built
// from conf. It returns an error if any worker observed a counter above its
// ceiling, or if any record or counter is left over once all workers are
// done.
func runStress(ctx context.Context, conf *config.Config, opts stressOptions) (stressResult, error) {
	if opts.Workers <= 0 || opts.UIDs <= 0 || opts.Iterations < 0 {
		return stressResult{}, fmt.Errorf("invalid options %+v", opts)
	}
	chain, err := newChain(conf, opts.Depth, 1)
	if err != nil {
		return stressResult{}, err
	}
	defer chain.release()
	if opts.Ceiling > 0 {
		for _, ns := range chain.namespaces {
			for i := 0; i < auth.UCountTypes; i++ {
				ns.SetUCountMax(auth.UCountType(i), opts.Ceiling)
			}
		}
	}

	var charged, denied, pins, pinFails atomicbitops.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Workers; w++ {
		rng := rand.New(rand.NewSource(opts.Seed + int64(w)))
		g.Go(func() error {
			for i := 0; i < opts.Iterations; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				ns := chain.namespaces[rng.Intn(len(chain.namespaces))]
				uid := auth.KUID(firstStressUID + rng.Intn(opts.UIDs))
				t := auth.UCountType(rng.Intn(auth.UCountTypes))

				uc, err := ns.IncUCount(uid, t)
				if err != nil {
					if !linuxerr.Equals(linuxerr.ENOSPC, err) && !linuxerr.Equals(linuxerr.ENOMEM, err) {
						return fmt.Errorf("IncUCount(%d, %v): %w", uid, t, err)
					}
					denied.Add(1)
					continue
				}
				charged.Add(1)
				if err := checkCeilings(uc, t); err != nil {
					uc.DecUCount(t)
					return err
				}

				rt := auth.RlimitType(rng.Intn(auth.RlimitTypes))
				if uc.IncRlimitGet(rt, false) == 0 {
					pinFails.Add(1)
				} else {
					pins.Add(1)
					uc.DecRlimitPut(rt)
				}
				uc.DecUCount(t)
			}
			return nil
		})
	}
	res := stressResult{}
	err = g.Wait()
	res.Charged = charged.Load()
	res.Denied = denied.Load()
	res.RlimitPins = pins.Load()
	res.RlimitFails = pinFails.Load()
	if err != nil {
		return res, err
	}
	return res, checkDrained(chain, opts.UIDs)
}

// checkCeilings verifies that no level of uc's chain holds more of t than its
// namespace allows.
func checkCeilings(uc *auth.UCounts, t auth.UCountType) error {
	for iter := uc; iter != nil; iter = iter.Parent() {
		if v, max := iter.Count(t), iter.UserNamespace().UCountMax(t); v > max {
			return fmt.Errorf("%v: %v = %d above ceiling %d", iter, t, v, max)
		}
	}
	return nil
}

// checkDrained verifies that no stress record survived the run, and that the
// creation records of the chain carry nothing but their creation charges.
func checkDrained(chain *namespaceChain, uids int) error {
	for level, ns := range chain.namespaces {
		for u := 0; u < uids; u++ {
			if uc := ns.LookupUCounts(auth.KUID(firstStressUID + u)); uc != nil {
				uc.DecRef()
				return fmt.Errorf("record %v leaked", uc)
			}
		}
		uc := ns.UCounts()
		if uc == nil {
			continue
		}
		for i := 0; i < auth.UCountTypes; i++ {
			t := auth.UCountType(i)
			want := int64(0)
			if t == auth.UCountUserNamespaces {
				// Charged once for ns and once for each namespace below it.
				want = int64(len(chain.namespaces) - level)
			}
			if got := uc.Count(t); got != want {
				return fmt.Errorf("%v: %v = %d after the run, want %d", uc, t, got, want)
			}
		}
		for i := 0; i < auth.RlimitTypes; i++ {
			t := auth.RlimitType(i)
			if got := uc.RlimitValue(t); got != 0 {
				return fmt.Errorf("%v: rlimit %v = %d after the run, want 0", uc, t, got)
			}
		}
	}
	return nil
}
