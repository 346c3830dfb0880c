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

// Binary ucountctl inspects and exercises ucounts namespace trees.
package main

import (
	"context"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/refs"
	"gvisor.dev/gvisor/runsc/flag"
	"gvisor.dev/ucounts/pkg/config"
)

var configPath = flag.String("config", "", "path to a TOML configuration file. Flags override values from the file.")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Limits), "")
	subcommands.Register(new(Stress), "")

	config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	log.SetTarget(log.GoogleEmitter{Writer: &log.Writer{Next: os.Stderr}})

	conf := config.Default()
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			Fatalf("loading configuration: %v", err)
		}
	}
	if err := conf.ApplyFlags(flag.CommandLine); err != nil {
		Fatalf("%v", err)
	}
	if err := conf.Apply(); err != nil {
		Fatalf("%v", err)
	}

	status := subcommands.Execute(context.Background(), conf)
	refs.DoLeakCheck()
	os.Exit(int(status))
}
