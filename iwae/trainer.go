package iwae

import (
	"errors"
	"runtime"
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvae/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A SampleList is an anysgd.SampleList of input vectors.
type SampleList interface {
	anysgd.SampleList
	GetSample(idx int) (anyvec.Vector, error)
}

// A Batch stores a packed batch of inputs.
type Batch struct {
	Inputs *anydiff.Const
	Num    int
}

// A Trainer can construct batches, compute gradients, and
// tally up costs for a Model.
//
// The cost of a batch is the negative objective, averaged
// over the batch.
type Trainer struct {
	Model     *Model
	Objective Objective

	// NumSamples is the number of importance samples per
	// input.
	NumSamples int

	// Beta weights the latent terms of the objective.
	// If it is 0, 1 is used.
	Beta float64

	Params []*anydiff.Var

	// After every gradient computation, LastCost is set to
	// the cost from the batch.
	LastCost float64

	// MaxGos specifies the maximum goroutines to use
	// simultaneously for fetching samples.
	// If it is 0, GOMAXPROCS is used.
	MaxGos int
}

// Fetch produces a *Batch for the subset of samples.
// The s argument must implement SampleList.
// The batch may not be empty.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	if s.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}

	l := s.(SampleList)
	ins := make([]anyvec.Vector, l.Len())

	idxChan := make(chan int, l.Len())
	for i := 0; i < l.Len(); i++ {
		idxChan <- i
	}
	close(idxChan)

	maxGos := t.MaxGos
	if maxGos == 0 {
		maxGos = runtime.GOMAXPROCS(0)
	}

	wg := sync.WaitGroup{}
	errChan := make(chan error, maxGos)
	for i := 0; i < maxGos; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxChan {
				sample, err := l.GetSample(i)
				if err != nil {
					errChan <- essentials.AddCtx("fetch batch", err)
					return
				}
				ins[i] = sample
			}
		}()
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}

	return &Batch{
		Inputs: anydiff.NewConst(ins[0].Creator().Concat(ins...)),
		Num:    l.Len(),
	}, nil
}

// TotalCost computes the cost for the *Batch.
func (t *Trainer) TotalCost(batch anysgd.Batch) anydiff.Res {
	b := batch.(*Batch)
	beta := t.Beta
	if beta == 0 {
		beta = 1
	}
	bound := t.Model.Bound(b.Inputs, b.Num, t.NumSamples, t.Objective, beta)
	total := anydiff.Sum(bound)
	return anydiff.Scale(total, total.Output().Creator().MakeNumeric(-1/float64(b.Num)))
}

// Gradient computes the gradient for the batch's cost.
// It also sets t.LastCost to the numerical value of the
// cost.
//
// The b argument must be a *Batch.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	grad, lc := anysgd.CosterGrad(t, b, t.Params)
	t.LastCost = lc
	return grad
}
