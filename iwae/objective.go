package iwae

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"gonum.org/v1/gonum/floats"
)

// An Objective is a lower bound on the log-likelihood
// which can be maximized during training.
type Objective int

const (
	// VAEELBO is the standard evidence lower bound,
	// averaged over the importance samples.
	VAEELBO Objective = iota

	// IWAEELBO is the importance weighted bound.
	IWAEELBO

	// IWAEEq14 has the same gradient as IWAEELBO, but is
	// computed as a sum of log weights scaled by their
	// normalized importances.
	IWAEEq14

	// VAEELBOKL is the evidence lower bound with the KL
	// term of the top layer computed analytically.
	VAEELBOKL
)

// Objectives lists every objective.
var Objectives = []Objective{VAEELBO, IWAEELBO, IWAEEq14, VAEELBOKL}

// ParseObjective parses an objective name, like
// "iwae_elbo".
func ParseObjective(name string) (Objective, error) {
	for _, o := range Objectives {
		if o.String() == name {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown objective: %s", name)
}

// String returns the objective's name.
func (o Objective) String() string {
	switch o {
	case VAEELBO:
		return "vae_elbo"
	case IWAEELBO:
		return "iwae_elbo"
	case IWAEEq14:
		return "iwae_eq14"
	case VAEELBOKL:
		return "vae_elbo_kl"
	default:
		return fmt.Sprintf("Objective(%d)", int(o))
	}
}

// Bound computes the objective for each datapoint.
func (o Objective) Bound(t *Terms, beta float64) anydiff.Res {
	switch o {
	case VAEELBO:
		return sampleMean(LogWeights(t, beta), t)
	case IWAEELBO:
		return logMeanExp(LogWeights(t, beta), t)
	case IWAEEq14:
		return weightedSum(LogWeights(t, beta), t)
	case VAEELBOKL:
		latent := scaleRes(t.KLTop, -1)
		if t.LogPLower != nil {
			latent = anydiff.Add(latent, anydiff.Sub(t.LogPLower, t.LogQLower))
		}
		return sampleMean(anydiff.Add(t.LogPx, scaleRes(latent, beta)), t)
	default:
		panic("unknown objective: " + o.String())
	}
}

// LogWeights computes the log importance weight of every
// sample:
//
//	log p(x|z) + beta*(log p(z) - log q(z|x))
func LogWeights(t *Terms, beta float64) anydiff.Res {
	latent := anydiff.Sub(addOptional(t.LogPTop, t.LogPLower), addOptional(t.LogQTop, t.LogQLower))
	return anydiff.Add(t.LogPx, scaleRes(latent, beta))
}

func scaleRes(r anydiff.Res, s float64) anydiff.Res {
	if s == 1 {
		return r
	}
	return anydiff.Scale(r, r.Output().Creator().MakeNumeric(s))
}

func sampleMean(logW anydiff.Res, t *Terms) anydiff.Res {
	return scaleRes(sumRows(logW, t.Batch), 1/float64(t.Samples))
}

// normalizedWeights computes, for each datapoint, the
// softmax of the log weights over the samples.
// It also returns the log-mean-exp of each datapoint's
// log weights.
func normalizedWeights(logW []float64, t *Terms) (weights, logMeans []float64) {
	weights = make([]float64, len(logW))
	logMeans = make([]float64, t.Batch)
	for i := range logMeans {
		row := logW[i*t.Samples : (i+1)*t.Samples]
		lse := floats.LogSumExp(row)
		for j, x := range row {
			weights[i*t.Samples+j] = math.Exp(x - lse)
		}
		logMeans[i] = lse - math.Log(float64(t.Samples))
	}
	return
}

func weightedSum(logW anydiff.Res, t *Terms) anydiff.Res {
	c := logW.Output().Creator()
	weights, _ := normalizedWeights(vectorFloats(logW.Output()), t)
	return sumRows(anydiff.Mul(logW, anydiff.NewConst(makeVector(c, weights))), t.Batch)
}

// logMeanExp computes log((1/k)*sum_i exp(logW_i)) for each
// datapoint.
//
// The gradient of the result is the gradient of the
// weighted sum of log weights, where the weights are the
// softmax of the log weights.
func logMeanExp(logW anydiff.Res, t *Terms) anydiff.Res {
	c := logW.Output().Creator()
	values := vectorFloats(logW.Output())
	weights, logMeans := normalizedWeights(values, t)
	offsets := make([]float64, t.Batch)
	for i := range offsets {
		var weighted float64
		for j := i * t.Samples; j < (i+1)*t.Samples; j++ {
			weighted += weights[j] * values[j]
		}
		offsets[i] = logMeans[i] - weighted
	}
	sum := sumRows(anydiff.Mul(logW, anydiff.NewConst(makeVector(c, weights))), t.Batch)
	return anydiff.Add(sum, anydiff.NewConst(makeVector(c, offsets)))
}
