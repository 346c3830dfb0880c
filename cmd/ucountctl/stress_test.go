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
	"testing"

	"gvisor.dev/ucounts/pkg/config"
)

func TestStress(t *testing.T) {
	for _, test := range []struct {
		name       string
		maxRecords int64
		opts       stressOptions
		wantDenied bool
		// allDenied requires every charge to be refused.
		allDenied bool
	}{
		{
			name: "unbounded",
			opts: stressOptions{Depth: 3, Workers: 16, Iterations: 200, UIDs: 4, Seed: 1},
		},
		{
			name:       "ceiling",
			opts:       stressOptions{Depth: 3, Workers: 16, Iterations: 200, UIDs: 4, Ceiling: 1, Seed: 2},
			wantDenied: true,
		},
		{
			// The init record and the three creation records fill the
			// registry, so every stress record is refused.
			name:       "records",
			maxRecords: 4,
			opts:       stressOptions{Depth: 3, Workers: 16, Iterations: 200, UIDs: 8, Seed: 3},
			wantDenied: true,
			allDenied:  true,
		},
		{
			name: "root only",
			opts: stressOptions{Depth: 0, Workers: 8, Iterations: 100, UIDs: 2, Seed: 4},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			conf := config.Default()
			conf.MaxRecords = test.maxRecords
			res, err := runStress(context.Background(), conf, test.opts)
			if err != nil {
				t.Fatalf("runStress failed: %v", err)
			}
			if got, want := res.Charged+res.Denied, int64(test.opts.Workers*test.opts.Iterations); got != want {
				t.Errorf("charged+denied = %d, want %d", got, want)
			}
			if test.wantDenied && res.Denied == 0 {
				t.Errorf("no charge was denied: %+v", res)
			}
			if test.allDenied && res.Charged != 0 {
				t.Errorf("%d charges succeeded in a full registry: %+v", res.Charged, res)
			}
			if !test.wantDenied && res.Denied != 0 {
				t.Errorf("charges denied without a limit: %+v", res)
			}
		})
	}
}

func TestStressInvalidOptions(t *testing.T) {
	if _, err := runStress(context.Background(), config.Default(), stressOptions{Depth: 1}); err == nil {
		t.Errorf("runStress with no workers succeeded")
	}
}
