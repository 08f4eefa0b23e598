// Package mixture implements an expanding mixture of
// variational autoencoders for lifelong learning.
//
// Every task gets its own component.
// A basic component is an independent model, while a
// sub-node reuses the frozen layers of the basic
// components and only trains a small set of layers of its
// own.
package mixture

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvae"
	"github.com/unixpickle/anyvae/iwae"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/floats"
)

func init() {
	var m Mixture
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeMixture)
}

const (
	// DefaultThreshold is the default NLL gap beyond which
	// a new basic component is needed.
	DefaultThreshold = 40

	// weightSamples is the number of examples used to
	// weigh the basic components for a new sub-node.
	weightSamples = 1000
)

// A Mixture is a growing list of components.
type Mixture struct {
	InSize int
	Hidden int
	Latent int

	// Threshold is used by NeedsBasic.
	Threshold float64

	Components []*Component

	creator anyvec.Creator
}

// New creates an empty mixture.
func New(c anyvec.Creator, inSize, hidden, latent int) *Mixture {
	return &Mixture{
		InSize:    inSize,
		Hidden:    hidden,
		Latent:    latent,
		Threshold: DefaultThreshold,
		creator:   c,
	}
}

// DeserializeMixture deserializes a Mixture.
func DeserializeMixture(d []byte) (*Mixture, error) {
	var res Mixture
	var comps componentList
	err := serializer.DeserializeAny(d, &res.InSize, &res.Hidden, &res.Latent,
		&res.Threshold, &comps)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Mixture", err)
	}
	res.Components = comps
	res.creator = anyvec32.CurrentCreator()
	if len(comps) > 0 {
		res.creator = comps[0].Model.Encoders[0].Mean.Weights.Vector.Creator()
	}
	return &res, nil
}

// BasicCount returns the number of basic components.
func (m *Mixture) BasicCount() int {
	var count int
	for _, c := range m.Components {
		if c.Basic {
			count++
		}
	}
	return count
}

// CreateComponent adds a trainable component for a new
// task and returns it.
//
// For a sub-node, the sample is used to weigh the basic
// components, and samples gives the number of importance
// samples for the likelihood estimates.
// A sub-node cannot be created before a basic component.
func (m *Mixture) CreateComponent(sample [][]float64, basic bool, samples int) (*Component, error) {
	var model *iwae.Model
	if basic {
		model = iwae.NewModel(m.creator, m.InSize, []int{m.Hidden}, []int{m.Latent})
	} else {
		if m.BasicCount() == 0 {
			return nil, errors.New("create component: no basic components")
		}
		model = m.subNode(m.basicWeights(sample, samples))
	}
	comp := &Component{
		Model:     model,
		Basic:     basic,
		Trainable: true,
		TrainNLL:  math.NaN(),
	}
	m.Components = append(m.Components, comp)
	return comp, nil
}

// basicWeights computes the softmax of the log-likelihood
// of the sample under every basic component.
func (m *Mixture) basicWeights(sample [][]float64, samples int) []float64 {
	if len(sample) > weightSamples {
		sample = sample[:weightSamples]
	}
	var logProbs []float64
	for _, c := range m.Components {
		if c.Basic {
			logProbs = append(logProbs, c.Model.LogLikelihood(sample, samples))
		}
	}
	return softmax(logProbs)
}

func (m *Mixture) subNode(weights []float64) *iwae.Model {
	var trunks, tails anyvae.Net
	for _, c := range m.Components {
		if !c.Basic {
			continue
		}
		trunks = append(trunks, &anyvae.ParamHider{Layer: c.Model.Encoders[0].Trunk})
		output := c.Model.Output.(anyvae.Net)
		tails = append(tails, &anyvae.ParamHider{Layer: append(anyvae.Net{}, output[2:]...)})
	}
	c := m.creator
	return &iwae.Model{
		Encoders: iwae.GaussianStack{
			{
				Trunk: anyvae.Net{
					&anyvae.Blend{Layers: trunks, Weights: weights},
					anyvae.NewFC(c, m.Hidden, m.Hidden),
					anyvae.Tanh,
				},
				Mean:   anyvae.NewFC(c, m.Hidden, m.Latent),
				LogStd: anyvae.NewFCZero(c, m.Hidden, m.Latent),
			},
		},
		Output: anyvae.Net{
			anyvae.NewFC(c, m.Latent, m.Hidden),
			anyvae.Tanh,
			&anyvae.Blend{Layers: tails, Weights: append([]float64{}, weights...)},
		},
	}
}

// SetTrainable freezes or unfreezes every component.
func (m *Mixture) SetTrainable(t bool) {
	for _, c := range m.Components {
		c.Trainable = t
	}
}

// Parameters returns the parameters of the trainable
// components.
func (m *Mixture) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, c := range m.Components {
		if c.Trainable {
			res = append(res, c.Parameters()...)
		}
	}
	return res
}

// NLLByComponent estimates the negative log-likelihood of
// the data under one component.
func (m *Mixture) NLLByComponent(idx, samples int, data [][]float64) float64 {
	return -m.Components[idx].Model.LogLikelihood(data, samples)
}

// Evaluate finds the component which assigns the data the
// lowest negative log-likelihood.
// It returns the component's index and the NLL.
func (m *Mixture) Evaluate(data [][]float64, samples int) (int, float64) {
	if len(m.Components) == 0 {
		panic("cannot evaluate an empty mixture")
	}
	nlls := make([]float64, len(m.Components))
	for i := range nlls {
		nlls[i] = m.NLLByComponent(i, samples, data)
	}
	return argmin(nlls)
}

// NeedsBasic checks if a new task's sample is too far from
// every component to be handled by a sub-node.
//
// It compares the best NLL on the sample to the NLL the
// same component had on its own training data.
func (m *Mixture) NeedsBasic(sample [][]float64, samples int) bool {
	if m.BasicCount() == 0 {
		return true
	}
	idx, nll := m.Evaluate(sample, samples)
	ref := m.Components[idx].TrainNLL
	if math.IsNaN(ref) {
		return false
	}
	return nll-ref > m.Threshold
}

// SerializerType returns the unique ID used to serialize
// a Mixture with the serializer package.
func (m *Mixture) SerializerType() string {
	return "github.com/unixpickle/anyvae/mixture.Mixture"
}

// Serialize serializes the mixture.
//
// Sub-nodes store copies of the layers they share, so a
// deserialized mixture no longer shares memory between
// components.
func (m *Mixture) Serialize() ([]byte, error) {
	return serializer.SerializeAny(m.InSize, m.Hidden, m.Latent, m.Threshold,
		componentList(m.Components))
}

func softmax(logits []float64) []float64 {
	lse := floats.LogSumExp(logits)
	res := make([]float64, len(logits))
	for i, x := range logits {
		res[i] = math.Exp(x - lse)
	}
	return res
}

func argmin(values []float64) (int, float64) {
	best := 0
	for i, x := range values {
		if x < values[best] {
			best = i
		}
	}
	return best, values[best]
}
