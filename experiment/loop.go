package experiment

import (
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvae/anysgd"
	"github.com/unixpickle/anyvae/dataset"
	"github.com/unixpickle/anyvae/iwae"
	"github.com/unixpickle/anyvec"
)

// A Loop trains a model on one task, re-binarizing the
// training images at the start of every epoch.
type Loop struct {
	Config  *Config
	Creator anyvec.Creator
	Rand    *rand.Rand

	Model  *iwae.Model
	Params []*anydiff.Var

	// Transformer, if non-nil, is used for every step and
	// keeps its state across calls to Run.
	// Otherwise, each call to Run uses a fresh optimizer.
	Transformer anysgd.Transformer

	// Val, if non-empty, is evaluated for every log line.
	Val [][]float64

	// BeforeEpoch, if non-nil, is called before every
	// epoch.
	BeforeEpoch func(epoch int)

	// AfterStep, if non-nil, is called after every step
	// with the index of the step within the epoch.
	AfterStep func(idx int) error

	// AfterEpoch, if non-nil, is called after every
	// complete epoch with the shuffled training images
	// that the epoch used.
	AfterEpoch func(epoch int, images [][]float64) error

	step int
}

// Run trains on the images until the schedule finishes or
// stop is closed.
// It reports whether training finished.
func (l *Loop) Run(images [][]float64, stop <-chan struct{}) (bool, error) {
	cfg := l.Config
	rater, epochs := cfg.Schedule()
	tr := &iwae.Trainer{
		Model:      l.Model,
		Objective:  cfg.Objective,
		NumSamples: cfg.NumSamples,
		Params:     l.Params,
	}
	transformer := l.Transformer
	if transformer == nil {
		transformer = newAdam()
	}
	sgd := &anysgd.SGD{
		Fetcher:     tr,
		Gradienter:  tr,
		Transformer: transformer,
		Rater:       rater,
		BatchSize:   cfg.BatchSize,
	}
	steps := len(images) / cfg.BatchSize
	start := time.Now()
	for epoch := 0; epoch < epochs; epoch++ {
		if l.BeforeEpoch != nil {
			l.BeforeEpoch(epoch)
		}
		binarized := dataset.Binarize(images, l.Rand)
		sgd.Samples = dataset.NewSamples(l.Creator, binarized)
		sgd.NumProcessed = epoch * len(images)

		var idx int
		var stepErr error
		sgd.StatusFunc = func(b anysgd.Batch) {
			if l.AfterStep != nil && stepErr == nil {
				stepErr = l.AfterStep(idx)
			}
			idx++
			l.step++
			if l.step%cfg.LogInterval == 0 {
				val := math.NaN()
				if len(l.Val) > 0 {
					val = l.Model.Evaluate(l.Val, cfg.NumSamples, cfg.BatchSize)[cfg.Objective]
				}
				log.Printf("epoch %d/%d, step %d/%d, train ELBO: %.2f, val ELBO: %.2f, time: %.2f",
					epoch, epochs, idx, steps, -tr.LastCost, val, time.Since(start).Seconds())
				start = time.Now()
			}
		}
		if err := sgd.RunEpoch(stop); err != nil {
			return false, err
		}
		if stepErr != nil {
			return false, stepErr
		}
		if stopped(stop) {
			return false, nil
		}
		if l.AfterEpoch != nil {
			if err := l.AfterEpoch(epoch, binarized); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func newAdam() *anysgd.Adam {
	return &anysgd.Adam{Damping: 1e-4}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// rehearsal generates n samples from the model, batch by
// batch.
func rehearsal(m *iwae.Model, n, batchSize int) [][]float64 {
	var res [][]float64
	for len(res) < n {
		res = append(res, m.Sample(min(batchSize, n-len(res)))...)
	}
	return res
}

// rehearsalCount is the number of generated samples mixed
// into a task with n training images.
func rehearsalCount(n, batchSize int) int {
	return (n / batchSize) * batchSize
}
