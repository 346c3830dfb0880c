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

// Package config holds the configuration of a ucounts namespace tree: the
// root namespace ceilings, the registry capacity, and the logging and leak
// checking settings of the process that owns it.
//
// A Config is read from a TOML file and may then be overridden from command
// line flags registered with RegisterFlags.
package config

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/BurntSushi/toml"
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/refs"
	"gvisor.dev/gvisor/pkg/sentry/limits"
	"gvisor.dev/gvisor/runsc/flag"
	"gvisor.dev/ucounts/pkg/auth"
)

// Config holds the configuration of a namespace tree.
//
// Fields with a `flag` tag can also be set from the command line.
type Config struct {
	// MaxRecords bounds the number of live ucounts records in the tree. Zero
	// means unbounded.
	MaxRecords int64 `toml:"max_records" flag:"max-records"`

	// DefaultUCountMax is the ceiling of every ucount type in the root
	// namespace, unless overridden by UCountMax.
	DefaultUCountMax int64 `toml:"default_ucount_max" flag:"default-ucount-max"`

	// UCountMax overrides the ceilings of individual ucount types in the root
	// namespace. Keys are sysctl names, e.g. "max_user_namespaces".
	UCountMax map[string]int64 `toml:"ucount_max"`

	// HostRlimits seeds the rlimit maximums of the root namespace from the
	// current process instead of the defaults of a typical Linux distro.
	HostRlimits bool `toml:"host_rlimits" flag:"host-rlimits"`

	// LogLevel is one of "warning", "info" or "debug".
	LogLevel string `toml:"log_level" flag:"log-level"`

	// RefLeakMode is the reference leak checking mode, as accepted by the
	// --ref-leak-mode flag of runsc.
	RefLeakMode string `toml:"ref_leak_mode" flag:"ref-leak-mode"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DefaultUCountMax: auth.DefaultUCountMax,
		LogLevel:         "info",
		RefLeakMode:      "disabled",
	}
}

// Load reads the TOML file at path on top of the default configuration.
// Unknown keys are an error.
func Load(path string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decoding %q: unknown keys %v", path, undecoded)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	return c, nil
}

// RegisterFlags registers flags that override Config fields.
func RegisterFlags(flagSet *flag.FlagSet) {
	def := Default()
	flagSet.Int64("max-records", def.MaxRecords, "maximum number of live ucounts records; 0 means unbounded.")
	flagSet.Int64("default-ucount-max", def.DefaultUCountMax, "ceiling of every ucount type in the root namespace.")
	flagSet.Bool("host-rlimits", def.HostRlimits, "seed root namespace rlimit maximums from this process's rlimits.")
	flagSet.String("log-level", def.LogLevel, "log level: warning, info (default), debug.")
	flagSet.String("ref-leak-mode", def.RefLeakMode, "sets reference leak check mode: disabled (default), log-names, log-traces.")
}

// ApplyFlags overrides the fields of c with the flags that were explicitly
// set in flagSet.
func (c *Config) ApplyFlags(flagSet *flag.FlagSet) error {
	set := make(map[string]bool)
	flagSet.Visit(func(fl *flag.Flag) {
		set[fl.Name] = true
	})

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok || !set[name] {
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		obj.Field(i).Set(reflect.ValueOf(flag.Get(fl.Value)))
	}
	return c.validate()
}

func (c *Config) validate() error {
	if c.MaxRecords < 0 {
		return fmt.Errorf("max_records must not be negative, got %d", c.MaxRecords)
	}
	if c.DefaultUCountMax < 0 || c.DefaultUCountMax > math.MaxInt32 {
		return fmt.Errorf("default_ucount_max must be in [0, %d], got %d", math.MaxInt32, c.DefaultUCountMax)
	}
	known := make(map[string]bool)
	for _, name := range auth.SysctlNames() {
		known[name] = true
	}
	for name, v := range c.UCountMax {
		if !known[name] {
			return fmt.Errorf("ucount_max: unknown ucount %q", name)
		}
		if v < 0 || v > math.MaxInt32 {
			return fmt.Errorf("ucount_max: %s must be in [0, %d], got %d", name, math.MaxInt32, v)
		}
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	if _, err := c.leakMode(); err != nil {
		return err
	}
	return nil
}

func (c *Config) logLevel() (log.Level, error) {
	switch c.LogLevel {
	case "warning":
		return log.Warning, nil
	case "info", "":
		return log.Info, nil
	case "debug":
		return log.Debug, nil
	default:
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
}

func (c *Config) leakMode() (refs.LeakMode, error) {
	var m refs.LeakMode
	if c.RefLeakMode == "" {
		return refs.NoLeakChecking, nil
	}
	if err := m.Set(c.RefLeakMode); err != nil {
		return 0, fmt.Errorf("invalid ref_leak_mode: %w", err)
	}
	return m, nil
}

// Apply installs the process-wide settings of c: the log level and the
// reference leak checking mode.
func (c *Config) Apply() error {
	level, err := c.logLevel()
	if err != nil {
		return err
	}
	mode, err := c.leakMode()
	if err != nil {
		return err
	}
	log.SetLevel(level)
	refs.SetLeakMode(mode)
	return nil
}

// Limits returns the LimitSet that seeds the rlimit maximums of the root
// namespace.
func (c *Config) Limits() (*limits.LimitSet, error) {
	if c.HostRlimits {
		return hostLimitSet()
	}
	ls, err := limits.NewLinuxDistroLimitSet()
	if err != nil {
		return nil, err
	}
	// Linux leaves RLIMIT_SIGPENDING at 0 in its init limits and raises it to
	// the RLIMIT_NPROC default during boot.
	ls.SetUnchecked(limits.SignalsPending, ls.Get(limits.ProcessCount))
	return ls, nil
}

// NewRootUserNamespace creates the root of a namespace tree configured by c.
func (c *Config) NewRootUserNamespace() (*auth.UserNamespace, error) {
	ls, err := c.Limits()
	if err != nil {
		return nil, fmt.Errorf("reading rlimits: %w", err)
	}
	ns := auth.NewRootUserNamespace(auth.RootOptions{
		MaxUCounts: c.MaxRecords,
		Limits:     ls,
	})
	// Zero is a valid ceiling here, so it cannot go through RootOptions.
	for i := 0; i < auth.UCountTypes; i++ {
		ns.SetUCountMax(auth.UCountType(i), c.DefaultUCountMax)
	}

	// Apply overrides in a stable order so that errors are reproducible.
	names := make([]string, 0, len(c.UCountMax))
	for name := range c.UCountMax {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ns.WriteSysctl(name, fmt.Sprint(c.UCountMax[name]), true /* privileged */); err != nil {
			return nil, fmt.Errorf("setting %s: %w", name, err)
		}
	}
	log.Debugf("Root user namespace created: max_records=%d default_ucount_max=%d overrides=%d", c.MaxRecords, c.DefaultUCountMax, len(names))
	return ns, nil
}
