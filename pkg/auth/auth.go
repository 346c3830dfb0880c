// Copyright 2018 The gVisor Authors.
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

// Package auth implements the user namespace side of Linux's per-user resource
// accounting ("ucounts").
//
// Every user namespace tree owns one registry of UCounts records, keyed by
// (user namespace, KUID). A record carries one counter per UCountType and one
// per RlimitType. Charging a resource to a record also charges it to every
// ancestor namespace: each namespace points at the record that was charged in
// its parent when it was created, so walking record -> record.ns.ucounts ->
// ... reaches the root namespace, whose chain ends.
//
// Lock order:
//
//	ucountsTable.mu
//
// Lookups never take ucountsTable.mu. Counters and ceilings are atomics and may
// be changed by anyone holding a reference to the record or namespace.
package auth
