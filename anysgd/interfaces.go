package anysgd

import "github.com/unixpickle/anydiff"

// A Transformer transforms gradients.
// For example, pre-conditioning could be implemented as a
// transformer.
//
// After its first call, a Transformer expects to see
// gradients of the same form (i.e. containing the same
// variables).
// A model that grows new variables needs a new
// Transformer.
//
// A Transformer may modify its own input and return the
// same gradient as an output.
// It should not retain a reference to the input.
type Transformer interface {
	Transform(g anydiff.Grad) anydiff.Grad
}

// A Batch is an immutable list of samples.
//
// In contrast to a SampleList, a Batch is not assumed to
// use lazy evaluation.
// Batches are obtained using a Fetcher and then used as
// arguments to a Gradienter.
type Batch interface{}

// A Fetcher is responsible for fetching Batches for
// SampleLists.
type Fetcher interface {
	Fetch(s SampleList) (Batch, error)
}

// A Gradienter computes a gradient for a Batch.
//
// The same gradient instance may be re-used by successive
// calls to Gradient.
type Gradienter interface {
	Gradient(b Batch) anydiff.Grad
}

// A Rater determines the learning rate given the epoch
// number.
// An "epoch" is a full pass over the training set, so
// fractional epochs are possible.
type Rater interface {
	Rate(epoch float64) float64
}

// A SampleList represents a list of training samples.
type SampleList interface {
	// Len returns the number of samples.
	Len() int

	// Swap swaps two samples.
	Swap(i, j int)

	// Slice generates a shallow copy of a subset of the
	// list.
	Slice(i, j int) SampleList
}

// A Coster computes differentiable costs for a Batch.
// The resulting cost vectors should have one component.
type Coster interface {
	TotalCost(b Batch) anydiff.Res
}
