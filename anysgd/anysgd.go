// Package anysgd provides tools for Stochastic Gradient
// Descent.
package anysgd

import (
	"errors"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
)

// SGD performs stochastic gradient descent.
type SGD struct {
	// Fetcher converts mini-batches of samples into
	// Batches for the Gradienter.
	Fetcher Fetcher

	// Gradienter is used to compute initial, untransformed
	// gradients for each mini-batch.
	Gradienter Gradienter

	// Transformer, if non-nil, is used to transform each
	// gradient before the step.
	Transformer Transformer

	// Samples is the list of training samples to use for
	// training.
	// It is shuffled at the start of every epoch.
	// It may be replaced between epochs, for example with
	// a freshly binarized copy of the data.
	Samples SampleList

	// Rater determines the learning rate for each step.
	Rater Rater

	// StatusFunc, if non-nil, is called after every
	// iteration with the mini-batch that was just used.
	StatusFunc func(b Batch)

	// BatchSize is the mini-batch size.
	// If it is 0, then the entire sample list is used at
	// every iteration.
	BatchSize int

	// NumProcessed keeps track of the number of samples that
	// have been passed to Gradienter so far.
	// It is used to compute the epoch for Rater.
	NumProcessed int
}

// RunEpoch performs one pass over a shuffled copy of the
// samples.
//
// Only full mini-batches are used; the remaining samples
// at the end of the shuffled list are skipped.
// If there are fewer samples than BatchSize, no steps are
// taken.
//
// If stop is closed, RunEpoch returns after the current
// step without an error.
func (s *SGD) RunEpoch(stop <-chan struct{}) error {
	if s.Samples.Len() == 0 {
		return errors.New("run epoch: empty sample list")
	}
	Shuffle(s.Samples)
	bs := s.batchSize()
	for i := 0; i+bs <= s.Samples.Len(); i += bs {
		select {
		case <-stop:
			return nil
		default:
		}
		batch, err := s.Fetcher.Fetch(s.Samples.Slice(i, i+bs))
		if err != nil {
			return essentials.AddCtx("run epoch", err)
		}
		s.Step(batch, bs)
		if s.StatusFunc != nil {
			s.StatusFunc(batch)
		}
	}
	return nil
}

// Run runs epochs until stop is closed or an error
// occurs.
func (s *SGD) Run(stop <-chan struct{}) error {
	for {
		if err := s.RunEpoch(stop); err != nil {
			return err
		}
		select {
		case <-stop:
			return nil
		default:
		}
	}
}

// Step computes a gradient for a batch of n samples and
// applies it to the variables.
func (s *SGD) Step(batch Batch, n int) {
	grad := s.Gradienter.Gradient(batch)
	if s.Transformer != nil {
		grad = s.Transformer.Transform(grad)
	}

	var epoch float64
	if s.Samples != nil && s.Samples.Len() > 0 {
		epoch = float64(s.NumProcessed) / float64(s.Samples.Len())
	}
	scaleGrad(grad, -s.Rater.Rate(epoch))
	grad.AddToVars()

	s.NumProcessed += n
}

func (s *SGD) batchSize() int {
	if s.BatchSize == 0 {
		return s.Samples.Len()
	}
	return s.BatchSize
}

// CosterGrad computes the gradient of c's total cost for
// a batch with respect to the given parameters.
// It also returns the total cost.
func CosterGrad(c Coster, b Batch, params []*anydiff.Var) (anydiff.Grad, float64) {
	grad := anydiff.NewGrad(params...)
	cost := c.TotalCost(b)
	cr := cost.Output().Creator()
	upstream := cr.MakeVectorData(cr.MakeNumericList([]float64{1}))
	cost.Propagate(upstream, grad)
	return grad, numericFloat(cost.Output().Data())
}
