// Command crossdomain trains a VAE on a sequence of data
// sets with generative replay, and records how its risk
// and posterior drift across domains.
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
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		essentials.Die(err)
	}
	if err := cfg.SelectGPU(); err != nil {
		essentials.Die("Failed to select GPU:", err)
	}
	rand.Seed(cfg.Seed)

	runner := &experiment.CrossDomain{
		Config:  cfg,
		Creator: anyvec32.CurrentCreator(),
		Load: func(name string) (train, test *dataset.Set, err error) {
			return dataset.Load(cfg.DataDir, name)
		},
		Stop: rip.NewRIP().Chan(),
	}

	log.Println("Press ctrl+c once to stop...")
	if err := runner.Run(); err != nil {
		essentials.Die(err)
	}
	log.Println("Results written to", cfg.ResultsDir)
}
