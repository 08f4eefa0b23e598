package anyvae

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var b Blend
	serializer.RegisterTypedDeserializer(b.SerializerType(), DeserializeBlend)
}

// A Blend applies several layers to the same input and
// combines their outputs with fixed weights:
//
//	sum_i Weights[i] * Layers[i](in)
//
// All the layers must produce outputs of the same size.
// The weights are constants, not learnable variables.
type Blend struct {
	Layers  Net
	Weights []float64
}

// DeserializeBlend deserializes a Blend.
func DeserializeBlend(d []byte) (*Blend, error) {
	var layers Net
	var weights *anyvecsave.S
	if err := serializer.DeserializeAny(d, &layers, &weights); err != nil {
		return nil, essentials.AddCtx("deserialize Blend", err)
	}
	data, ok := weights.Vector.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("deserialize Blend: unexpected weight type %T",
			weights.Vector.Data())
	}
	if len(data) != len(layers) {
		return nil, errors.New("deserialize Blend: weight count mismatch")
	}
	return &Blend{Layers: layers, Weights: data}, nil
}

// Apply applies every layer and sums the weighted
// outputs.
func (b *Blend) Apply(in anydiff.Res, n int) anydiff.Res {
	if len(b.Layers) == 0 {
		panic("cannot apply an empty Blend")
	} else if len(b.Layers) != len(b.Weights) {
		panic("layer and weight counts differ")
	}
	return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
		c := in.Output().Creator()
		var sum anydiff.Res
		for i, l := range b.Layers {
			out := anydiff.Scale(l.Apply(in, n), c.MakeNumeric(b.Weights[i]))
			if sum == nil {
				sum = out
			} else {
				sum = anydiff.Add(sum, out)
			}
		}
		return sum
	})
}

// Parameters returns the parameters of the blended layers.
// Layers wrapped in a ParamHider contribute nothing.
func (b *Blend) Parameters() []*anydiff.Var {
	return b.Layers.Parameters()
}

// SerializerType returns the unique ID used to serialize
// a Blend with the serializer package.
func (b *Blend) SerializerType() string {
	return "github.com/unixpickle/anyvae.Blend"
}

// Serialize serializes the Blend.
func (b *Blend) Serialize() ([]byte, error) {
	weights := &anyvecsave.S{Vector: anyvec64.MakeVectorData(b.Weights)}
	return serializer.SerializeAny(b.Layers, weights)
}
