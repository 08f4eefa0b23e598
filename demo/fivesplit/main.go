// Command fivesplit trains an infinite mixture of VAEs on
// the five class splits of Fashion-MNIST (or MNIST), one
// split after another.
package main

import (
	"flag"
	"log"
	"math/rand"

	"github.com/unixpickle/anyvae/dataset"
	"github.com/unixpickle/anyvae/experiment"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
)

func main() {
	cfg := experiment.DefaultConfig()
	cfg.Runs = 5
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		essentials.Die(err)
	}
	if err := cfg.SelectGPU(); err != nil {
		essentials.Die("Failed to select GPU:", err)
	}
	rand.Seed(cfg.Seed)

	runner := &experiment.FiveSplit{
		Config:  cfg,
		Creator: anyvec32.CurrentCreator(),
		Load: func(name string) (train, test *dataset.Set, err error) {
			return dataset.Load(cfg.DataDir, name)
		},
		Stop: rip.NewRIP().Chan(),
	}

	log.Println("Press ctrl+c once to stop...")
	if _, err := runner.Run(); err != nil {
		essentials.Die(err)
	}
}
