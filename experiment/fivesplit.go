package experiment

import (
	"fmt"
	"log"
	"math/rand"
	"path/filepath"

	"github.com/unixpickle/anyvae/dataset"
	"github.com/unixpickle/anyvae/iwae"
	"github.com/unixpickle/anyvae/mixture"
	"github.com/unixpickle/anyvae/results"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// expandSamples is the number of images used to measure
// how well the mixture fits a task when deciding whether
// to add a basic component.
const expandSamples = 100

// FiveSplit trains a mixture on five class splits of a
// data set, one split after another, and estimates the
// held-out log-likelihood of every split at the end.
//
// With two stochastic layers, a single model is trained
// on the whole task sequence instead of a mixture.
type FiveSplit struct {
	Config  *Config
	Creator anyvec.Creator
	Load    LoadFunc
	Stop    <-chan struct{}
}

// Run performs every configured run, logs the summary and
// writes the per-run log-likelihoods.
// It returns the log-likelihood of each completed run.
func (f *FiveSplit) Run() (results.Series, error) {
	cfg := f.Config
	log.Println("Loading", cfg.Dataset, "...")
	train, test, err := f.Load(cfg.Dataset)
	if err != nil {
		return nil, err
	}

	var lls results.Series
	for run := 0; run < cfg.Runs; run++ {
		log.Printf("Starting run %d of %s", run, cfg.Describe())
		rng := rand.New(rand.NewSource(cfg.Seed + int64(run)))
		testBin := &dataset.Set{Images: dataset.Binarize(test.Images, rng), Labels: test.Labels}
		trainSplits := dataset.SplitFive(train)
		testSplits := dataset.SplitFive(testBin)

		var ll float64
		var finished bool
		var model serializer.Serializer
		if cfg.StochasticLayers == 1 {
			ll, finished, model, err = f.runMixture(rng, trainSplits, testSplits)
		} else {
			ll, finished, model, err = f.runSingle(rng, trainSplits, testSplits)
		}
		if err != nil {
			return lls, essentials.AddCtx(fmt.Sprintf("run %d", run), err)
		}
		if !finished {
			log.Println("Interrupted; skipping evaluation of the current run.")
			break
		}
		log.Printf("Run %d: test-set %d sample log likelihood estimate: %.4f", run,
			cfg.EvalSamples, ll)
		lls = append(lls, ll)
		if err := saveCheckpoint(cfg, run, model); err != nil {
			return lls, err
		}
	}

	for i, ll := range lls {
		log.Printf("Test-set %d sample log likelihood estimate (run %d): %.4f",
			cfg.EvalSamples, i, ll)
	}
	if len(lls) > 0 {
		mean, std := results.Summary(lls)
		log.Printf("mean: %f", mean)
		log.Printf("std: %f", std)
	}
	path := filepath.Join(cfg.ResultsDir, "FiveSplit_LogLikelihood.txt")
	if err := lls.WriteFile(path); err != nil {
		return lls, err
	}
	return lls, nil
}

func (f *FiveSplit) runMixture(rng *rand.Rand, train, test []*dataset.Set) (ll float64,
	finished bool, mix *mixture.Mixture, err error) {
	cfg := f.Config
	hidden, latent, _ := iwae.Architecture(1)
	mix = mixture.New(f.Creator, dataset.ImageSize, hidden[0], latent[0])
	mix.Threshold = cfg.Threshold

	for taskIdx, task := range train {
		sample := dataset.Binarize(task.Head(1000), rng)
		basic := taskIdx == 0
		if cfg.Expand == "auto" && taskIdx > 0 {
			basic = mix.NeedsBasic(headImages(sample, expandSamples), cfg.EvalSamples)
		}
		mix.SetTrainable(false)
		comp, err := mix.CreateComponent(sample, basic, cfg.EvalSamples)
		if err != nil {
			return 0, false, nil, err
		}
		log.Printf("Task %d: %d images, basic component: %v", taskIdx, task.Len(), basic)

		loop := &Loop{
			Config:  cfg,
			Creator: f.Creator,
			Rand:    rng,
			Model:   comp.Model,
			Params:  mix.Parameters(),
			Val:     headImages(test[taskIdx].Images, cfg.BatchSize),
		}
		if finished, err := loop.Run(task.Images, f.Stop); err != nil || !finished {
			return 0, false, nil, err
		}
		if cfg.Expand == "auto" {
			comp.TrainNLL = mix.NLLByComponent(len(mix.Components)-1, cfg.EvalSamples,
				headImages(sample, expandSamples))
		}
		if taskIdx == 0 {
			nll := mix.NLLByComponent(0, cfg.EvalSamples, test[0].Images)
			log.Printf("First task NLL: %f", nll)
		}
	}

	var total float64
	for i, t := range test {
		idx, nll := mix.Evaluate(t.Images, cfg.EvalSamples)
		log.Printf("Split %d: component %d, NLL %f", i, idx, nll)
		total += nll
	}
	return -total / float64(len(test)), true, mix, nil
}

func (f *FiveSplit) runSingle(rng *rand.Rand, train, test []*dataset.Set) (ll float64,
	finished bool, model *iwae.Model, err error) {
	cfg := f.Config
	hidden, latent, _ := iwae.Architecture(cfg.StochasticLayers)
	model = iwae.NewModel(f.Creator, dataset.ImageSize, hidden, latent)
	optimizer := newAdam()
	for taskIdx, task := range train {
		log.Printf("Task %d: %d images", taskIdx, task.Len())
		loop := &Loop{
			Config:      cfg,
			Creator:     f.Creator,
			Rand:        rng,
			Model:       model,
			Params:      model.Parameters(),
			Transformer: optimizer,
			Val:         headImages(test[taskIdx].Images, cfg.BatchSize),
		}
		if finished, err := loop.Run(task.Images, f.Stop); err != nil || !finished {
			return 0, false, nil, err
		}
	}
	var total float64
	for i, t := range test {
		splitLL := model.LogLikelihood(t.Images, cfg.EvalSamples)
		log.Printf("Split %d: NLL %f", i, -splitLL)
		total += splitLL
	}
	return total / float64(len(test)), true, model, nil
}
