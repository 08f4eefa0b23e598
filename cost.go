package anyvae

import "github.com/unixpickle/anydiff"

// A Cost measures the error of a batch of outputs.
//
// Just like regular Layers, a Cost function is batched.
// It takes a packed batch of desired outputs and actual
// outputs, and produces a batch of costs.
type Cost interface {
	Cost(desired, actual anydiff.Res, n int) anydiff.Res
}

// SigmoidCE combines a sigmoid output activation with
// cross-entropy loss.
//
// With binary targets, the cost of a sample is the
// negative log-likelihood of the targets under
// independent Bernoulli variables whose logits are the
// actual outputs.
type SigmoidCE struct {
	// Average indicates whether or not the cross-entropy
	// cost should be an average rather than a sum.
	Average bool
}

// Cost is mathematically equivalent to applying the
// sigmoid to each component of actual, then finding the
// cross-entropy loss.
func (s SigmoidCE) Cost(desired, actual anydiff.Res, n int) anydiff.Res {
	minusOne := actual.Output().Creator().MakeNumeric(-1)
	costProducts := anydiff.Pool(desired, func(desired anydiff.Res) anydiff.Res {
		return anydiff.Pool(actual, func(actual anydiff.Res) anydiff.Res {
			logRegular := anydiff.LogSigmoid(actual)
			logComplement := anydiff.LogSigmoid(anydiff.Scale(actual, minusOne))
			return anydiff.Add(
				anydiff.Mul(desired, logRegular),
				anydiff.Mul(anydiff.Complement(desired), logComplement),
			)
		})
	})
	res := anydiff.SumCols(&anydiff.Matrix{
		Data: costProducts,
		Rows: n,
		Cols: actual.Output().Len() / n,
	})
	d := -1.0
	if s.Average {
		d /= float64(actual.Output().Len() / n)
	}
	return anydiff.Scale(res, res.Output().Creator().MakeNumeric(d))
}

// BernoulliLogProb computes, for each of the n packed
// samples, the log-probability of x under independent
// Bernoulli variables with the given logits.
func BernoulliLogProb(x, logits anydiff.Res, n int) anydiff.Res {
	nll := SigmoidCE{}.Cost(x, logits, n)
	return anydiff.Scale(nll, nll.Output().Creator().MakeNumeric(-1))
}
