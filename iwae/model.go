// Package iwae implements variational autoencoders with
// one or two stochastic layers, trained with either the
// variational lower bound or the importance weighted
// bound.
package iwae

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvae"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
}

// Architecture returns the hidden and latent sizes for a
// model with the given number of stochastic layers.
func Architecture(layers int) (hidden, latent []int, err error) {
	switch layers {
	case 1:
		return []int{200}, []int{100}, nil
	case 2:
		return []int{200, 100}, []int{100, 50}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported number of stochastic layers: %d", layers)
	}
}

// A Model is a deep latent Gaussian model with Bernoulli
// observations.
//
// Encoders[0] maps an input to q(z1|x) and Encoders[i]
// maps z_i to q(z_{i+1}|z_i).
// Decoders[i] maps z_{i+2} to p(z_{i+1}|z_{i+2}), and the
// Output maps z1 to the logits of p(x|z1).
// The top latent has a standard normal prior.
type Model struct {
	Encoders GaussianStack
	Decoders GaussianStack
	Output   anyvae.Layer
}

// NewModel creates a randomly initialized model.
// The hidden and latent slices give the sizes of each
// stochastic layer, from the bottom up.
func NewModel(c anyvec.Creator, inSize int, hidden, latent []int) *Model {
	if len(hidden) != len(latent) || len(latent) == 0 {
		panic("invalid architecture")
	}
	res := &Model{
		Output: anyvae.Net{
			anyvae.NewFC(c, latent[0], hidden[0]),
			anyvae.Tanh,
			anyvae.NewFC(c, hidden[0], hidden[0]),
			anyvae.Tanh,
			anyvae.NewFC(c, hidden[0], inSize),
		},
	}
	for i, size := range latent {
		in := inSize
		if i > 0 {
			in = latent[i-1]
		}
		res.Encoders = append(res.Encoders, NewGaussian(c, in, hidden[i], size))
		if i > 0 {
			res.Decoders = append(res.Decoders, NewGaussian(c, size, hidden[i], latent[i-1]))
		}
	}
	return res
}

// DeserializeModel deserializes a Model.
func DeserializeModel(d []byte) (*Model, error) {
	var res Model
	err := serializer.DeserializeAny(d, &res.Encoders, &res.Decoders, &res.Output)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Model", err)
	}
	if len(res.Encoders) == 0 || len(res.Decoders) != len(res.Encoders)-1 {
		return nil, errors.New("deserialize Model: invalid layer counts")
	}
	return &res, nil
}

// Layers returns the number of stochastic layers.
func (m *Model) Layers() int {
	return len(m.Encoders)
}

// LatentSize returns the size of the top latent layer.
func (m *Model) LatentSize() int {
	return m.Encoders[len(m.Encoders)-1].OutSize()
}

// Parameters returns the learnable parameters.
func (m *Model) Parameters() []*anydiff.Var {
	return anyvae.AllParameters(m.Encoders, m.Decoders, m.Output)
}

// SerializerType returns the unique ID used to serialize
// a Model with the serializer package.
func (m *Model) SerializerType() string {
	return "github.com/unixpickle/anyvae/iwae.Model"
}

// Serialize serializes the model.
func (m *Model) Serialize() ([]byte, error) {
	s, ok := m.Output.(serializer.Serializer)
	if !ok {
		return nil, fmt.Errorf("serialize Model: not a Serializer: %T", m.Output)
	}
	return serializer.SerializeAny(m.Encoders, m.Decoders, s)
}

func (m *Model) creator() anyvec.Creator {
	return m.Encoders[0].Mean.Weights.Vector.Creator()
}

// Terms stores the log-density terms for a batch of
// importance samples.
// Each term has one entry per (datapoint, sample) pair,
// and the samples for a datapoint are contiguous.
type Terms struct {
	Batch   int
	Samples int

	// LogPx is log p(x|z1).
	LogPx anydiff.Res

	// LogPTop is log p(z_L) under the standard normal.
	LogPTop anydiff.Res

	// LogQTop is log q(z_L|z_{L-1}).
	LogQTop anydiff.Res

	// KLTop is the analytic KL divergence between
	// q(z_L|z_{L-1}) and the prior.
	KLTop anydiff.Res

	// LogPLower and LogQLower sum the terms of the lower
	// stochastic layers.
	// They are nil for single-layer models.
	LogPLower anydiff.Res
	LogQLower anydiff.Res
}

// Rows returns the number of entries in each term.
func (t *Terms) Rows() int {
	return t.Batch * t.Samples
}

// ApplyTerms draws k posterior samples for each of the
// batch inputs in x, and passes the resulting terms to f.
// The result of f is returned.
func (m *Model) ApplyTerms(x anydiff.Res, batch, k int, f func(t *Terms) anydiff.Res) anydiff.Res {
	t := &Terms{Batch: batch, Samples: k}
	zs := make([]anydiff.Res, m.Layers())
	var encode func(layer int, in anydiff.Res) anydiff.Res
	encode = func(layer int, in anydiff.Res) anydiff.Res {
		if layer == m.Layers() {
			return m.decodeTerms(x, zs, t, f)
		}
		n := t.Rows()
		if layer == 0 {
			n = batch
		}
		return m.Encoders[layer].Apply(in, n, func(d *Dist) anydiff.Res {
			if layer == 0 {
				d = d.Repeat(batch, k)
			}
			z, noise := d.Sample()
			logQ := d.NoiseLogProb(noise, t.Rows())
			if layer == m.Layers()-1 {
				t.LogQTop = logQ
				t.KLTop = d.KLStdNormal(t.Rows())
			} else {
				t.LogQLower = addOptional(t.LogQLower, logQ)
			}
			return anydiff.Pool(z, func(z anydiff.Res) anydiff.Res {
				zs[layer] = z
				return encode(layer+1, z)
			})
		})
	}
	return encode(0, x)
}

func (m *Model) decodeTerms(x anydiff.Res, zs []anydiff.Res, t *Terms,
	f func(t *Terms) anydiff.Res) anydiff.Res {
	rows := t.Rows()
	t.LogPTop = stdNormalLogProb(zs[len(zs)-1], rows)
	var decode func(layer int) anydiff.Res
	decode = func(layer int) anydiff.Res {
		if layer < 0 {
			logits := m.Output.Apply(zs[0], rows)
			t.LogPx = anyvae.BernoulliLogProb(repeatRows(x, t.Batch, t.Samples), logits, rows)
			return f(t)
		}
		return m.Decoders[layer].Apply(zs[layer+1], rows, func(d *Dist) anydiff.Res {
			t.LogPLower = addOptional(t.LogPLower, d.LogProb(zs[layer], rows))
			return decode(layer - 1)
		})
	}
	return decode(len(zs) - 2)
}

// Bound computes the objective for each input in a
// packed batch, using k importance samples per input.
// The beta factor weights the prior and posterior terms.
func (m *Model) Bound(x anydiff.Res, batch, k int, obj Objective, beta float64) anydiff.Res {
	return m.ApplyTerms(x, batch, k, func(t *Terms) anydiff.Res {
		return obj.Bound(t, beta)
	})
}
