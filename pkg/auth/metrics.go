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
	"time"

	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/metric"
	"gvisor.dev/gvisor/pkg/sync"
)

var (
	limitExceeded = metric.MustCreateNewUint64Metric("/ucount/limit_exceeded", metric.Uint64Metadata{
		Cumulative:  true,
		Description: "Number of ucount charges denied because a namespace ceiling was reached.",
	})
	allocFailed = metric.MustCreateNewUint64Metric("/ucount/alloc_failed", metric.Uint64Metadata{
		Cumulative:  true,
		Description: "Number of ucounts records that could not be allocated.",
	})
	negativeCount = metric.MustCreateNewUint64Metric("/ucount/negative_count", metric.Uint64Metadata{
		Cumulative:  true,
		Description: "Number of ucount or rlimit counters that were decremented below zero.",
	})
)

var (
	warnOnce   sync.Once
	warnLogger log.Logger
)

// warnNegative reports an unbalanced decrement. The counter is left as is.
func warnNegative(uc *UCounts, counter string, v int64) {
	negativeCount.Increment()
	warnOnce.Do(func() {
		warnLogger = log.BasicRateLimitedLogger(time.Minute)
	})
	warnLogger.Warningf("%v: %s counter decremented to %d", uc, counter, v)
}
