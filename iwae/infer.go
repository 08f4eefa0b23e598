package iwae

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/floats"
)

// evalRows bounds the number of (datapoint, sample) rows
// evaluated at once.
const evalRows = 5000

// SamplePrior draws n latent vectors from the prior.
func (m *Model) SamplePrior(n int) [][]float64 {
	c := m.creator()
	vec := c.MakeVector(n * m.LatentSize())
	anyvec.Rand(vec, anyvec.Normal, nil)
	return unpackRows(vectorFloats(vec), m.LatentSize())
}

// Generate decodes top-level latent vectors into pixel
// probabilities.
// The intermediate latent layers are sampled.
func (m *Model) Generate(z [][]float64) [][]float64 {
	if len(z) == 0 {
		return nil
	}
	n := len(z)
	var out anydiff.Res = packRows(m.creator(), z)
	for i := len(m.Decoders) - 1; i >= 0; i-- {
		out = m.Decoders[i].Apply(out, n, func(d *Dist) anydiff.Res {
			sample, _ := d.Sample()
			return sample
		})
	}
	probs := anydiff.Sigmoid(m.Output.Apply(out, n))
	return unpackRows(vectorFloats(probs.Output()), probs.Output().Len()/n)
}

// Sample generates pixel probabilities for n samples from
// the model.
func (m *Model) Sample(n int) [][]float64 {
	return m.Generate(m.SamplePrior(n))
}

// Reconstruct encodes each input, decodes k samples of z1,
// and averages the resulting pixel probabilities.
func (m *Model) Reconstruct(x [][]float64, k int) [][]float64 {
	if len(x) == 0 {
		return nil
	}
	n := len(x)
	in := packRows(m.creator(), x)
	probs := m.Encoders[0].Apply(in, n, func(d *Dist) anydiff.Res {
		z, _ := d.Repeat(n, k).Sample()
		return anydiff.Sigmoid(m.Output.Apply(z, n*k))
	})
	data := vectorFloats(probs.Output())
	cols := len(data) / (n * k)
	res := make([][]float64, n)
	for i := range res {
		row := make([]float64, cols)
		for j := 0; j < k; j++ {
			floats.Add(row, data[(i*k+j)*cols:(i*k+j+1)*cols])
		}
		floats.Scale(1/float64(k), row)
		res[i] = row
	}
	return res
}

// A Posterior stores the top-level posterior for a batch
// of rows.
// With more than one stochastic layer, there is one row
// for each sample of the lower latents.
type Posterior struct {
	Mean   [][]float64
	LogStd [][]float64

	// KL stores KL(q||p) for each row, where p is the
	// standard normal prior.
	KL []float64
}

// MeanKL averages the KL divergence over the rows.
// It is NaN if there are no rows.
func (p *Posterior) MeanKL() float64 {
	if len(p.KL) == 0 {
		return math.NaN()
	}
	return floats.Sum(p.KL) / float64(len(p.KL))
}

// Posterior computes the top-level posterior for the
// inputs, sampling k paths through the lower layers.
func (m *Model) Posterior(x [][]float64, k int) *Posterior {
	if len(x) == 0 {
		return &Posterior{}
	}
	if m.Layers() == 1 {
		k = 1
	}
	res := &Posterior{}
	batch := len(x)
	rows := batch * k
	top := m.Layers() - 1
	var encode func(layer int, in anydiff.Res) anydiff.Res
	encode = func(layer int, in anydiff.Res) anydiff.Res {
		n := rows
		if layer == 0 {
			n = batch
		}
		return m.Encoders[layer].Apply(in, n, func(d *Dist) anydiff.Res {
			if layer == 0 {
				d = d.Repeat(batch, k)
			}
			if layer == top {
				size := m.Encoders[layer].OutSize()
				res.Mean = unpackRows(vectorFloats(d.Mean.Output()), size)
				res.LogStd = unpackRows(vectorFloats(d.LogStd.Output()), size)
				kl := d.KLStdNormal(rows)
				res.KL = vectorFloats(kl.Output())
				return kl
			}
			z, _ := d.Sample()
			return encode(layer+1, z)
		})
	}
	encode(0, packRows(m.creator(), x))
	return res
}

// Evaluate averages every objective over the data, using k
// importance samples per datapoint.
func (m *Model) Evaluate(data [][]float64, k, batchSize int) map[Objective]float64 {
	sums := map[Objective]float64{}
	for _, obj := range Objectives {
		sums[obj] = 0
	}
	if len(data) == 0 {
		for _, obj := range Objectives {
			sums[obj] = math.NaN()
		}
		return sums
	}
	for i := 0; i < len(data); i += batchSize {
		batch := data[i:min(len(data), i+batchSize)]
		in := packRows(m.creator(), batch)
		m.ApplyTerms(in, len(batch), k, func(t *Terms) anydiff.Res {
			for _, obj := range Objectives {
				sums[obj] += floats.Sum(vectorFloats(obj.Bound(t, 1).Output()))
			}
			return t.LogPx
		})
	}
	for obj, sum := range sums {
		sums[obj] = sum / float64(len(data))
	}
	return sums
}

// LogLikelihood estimates the average log-likelihood of
// the data with the importance weighted bound, using the
// given number of samples per datapoint.
func (m *Model) LogLikelihood(data [][]float64, samples int) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	return floats.Sum(m.LogLikelihoods(data, samples)) / float64(len(data))
}

// LogLikelihoods estimates the log-likelihood of every
// datapoint separately.
func (m *Model) LogLikelihoods(data [][]float64, samples int) []float64 {
	chunk := min(samples, evalRows)
	batchSize := max(1, evalRows/chunk)
	res := make([]float64, len(data))
	for i := 0; i < len(data); i += batchSize {
		batch := data[i:min(len(data), i+batchSize)]
		in := packRows(m.creator(), batch)
		logWeights := make([][]float64, len(batch))
		for done := 0; done < samples; done += chunk {
			k := min(chunk, samples-done)
			m.ApplyTerms(in, len(batch), k, func(t *Terms) anydiff.Res {
				logW := LogWeights(t, 1)
				values := vectorFloats(logW.Output())
				for j := range batch {
					logWeights[j] = append(logWeights[j], values[j*k:(j+1)*k]...)
				}
				return logW
			})
		}
		for j, logW := range logWeights {
			res[i+j] = floats.LogSumExp(logW) - math.Log(float64(samples))
		}
	}
	return res
}
