package iwae

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvae"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

var halfLog2Pi = 0.5 * math.Log(2*math.Pi)

func init() {
	var g Gaussian
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeGaussian)
	var s GaussianStack
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeGaussianStack)
}

// A Gaussian is a conditional diagonal Gaussian.
// The Trunk computes hidden features from the input, and
// two linear heads turn them into means and log standard
// deviations.
type Gaussian struct {
	Trunk  anyvae.Layer
	Mean   *anyvae.FC
	LogStd *anyvae.FC
}

// NewGaussian creates a Gaussian whose trunk is a pair of
// tanh layers with the given hidden size.
//
// The log-std head starts at zero, so the initial
// standard deviations are all 1.
func NewGaussian(c anyvec.Creator, in, hidden, out int) *Gaussian {
	return &Gaussian{
		Trunk: anyvae.Net{
			anyvae.NewFC(c, in, hidden),
			anyvae.Tanh,
			anyvae.NewFC(c, hidden, hidden),
			anyvae.Tanh,
		},
		Mean:   anyvae.NewFC(c, hidden, out),
		LogStd: anyvae.NewFCZero(c, hidden, out),
	}
}

// DeserializeGaussian deserializes a Gaussian.
func DeserializeGaussian(d []byte) (*Gaussian, error) {
	var res Gaussian
	if err := serializer.DeserializeAny(d, &res.Trunk, &res.Mean, &res.LogStd); err != nil {
		return nil, essentials.AddCtx("deserialize Gaussian", err)
	}
	return &res, nil
}

// Apply computes the distribution for a batch of n inputs
// and passes it to f.
// The result of f is returned.
//
// The hidden features and distribution parameters are
// pooled, so f may use the distribution several times.
func (g *Gaussian) Apply(in anydiff.Res, n int, f func(d *Dist) anydiff.Res) anydiff.Res {
	return anydiff.Pool(g.Trunk.Apply(in, n), func(h anydiff.Res) anydiff.Res {
		return anydiff.Pool(g.Mean.Apply(h, n), func(mean anydiff.Res) anydiff.Res {
			return anydiff.Pool(g.LogStd.Apply(h, n), func(logStd anydiff.Res) anydiff.Res {
				return f(&Dist{Mean: mean, LogStd: logStd})
			})
		})
	})
}

// OutSize returns the dimensionality of the distribution.
func (g *Gaussian) OutSize() int {
	return g.Mean.OutCount
}

// Parameters returns the learnable parameters.
func (g *Gaussian) Parameters() []*anydiff.Var {
	return anyvae.AllParameters(g.Trunk, g.Mean, g.LogStd)
}

// SerializerType returns the unique ID used to serialize
// a Gaussian with the serializer package.
func (g *Gaussian) SerializerType() string {
	return "github.com/unixpickle/anyvae/iwae.Gaussian"
}

// Serialize serializes the Gaussian.
func (g *Gaussian) Serialize() ([]byte, error) {
	return serializer.SerializeAny(g.Trunk, g.Mean, g.LogStd)
}

// A GaussianStack is a serializable list of Gaussians.
type GaussianStack []*Gaussian

// DeserializeGaussianStack deserializes a GaussianStack.
func DeserializeGaussianStack(d []byte) (GaussianStack, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize GaussianStack", err)
	}
	res := make(GaussianStack, len(slice))
	for i, x := range slice {
		g, ok := x.(*Gaussian)
		if !ok {
			return nil, fmt.Errorf("deserialize GaussianStack: not a Gaussian: %T", x)
		}
		res[i] = g
	}
	return res, nil
}

// Parameters returns the parameters of every Gaussian.
func (g GaussianStack) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, x := range g {
		res = append(res, x.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a GaussianStack with the serializer package.
func (g GaussianStack) SerializerType() string {
	return "github.com/unixpickle/anyvae/iwae.GaussianStack"
}

// Serialize serializes the stack.
func (g GaussianStack) Serialize() ([]byte, error) {
	slice := make([]serializer.Serializer, len(g))
	for i, x := range g {
		slice[i] = x
	}
	return serializer.SerializeSlice(slice)
}

// A Dist is a batch of diagonal Gaussian distributions,
// packed row after row.
type Dist struct {
	Mean   anydiff.Res
	LogStd anydiff.Res
}

// Repeat repeats every one of the rows k times in a row.
func (d *Dist) Repeat(rows, k int) *Dist {
	return &Dist{
		Mean:   repeatRows(d.Mean, rows, k),
		LogStd: repeatRows(d.LogStd, rows, k),
	}
}

// Sample draws one reparameterized sample per row.
// It returns the sample and the standard normal noise
// that produced it.
func (d *Dist) Sample() (z anydiff.Res, noise anyvec.Vector) {
	c := d.Mean.Output().Creator()
	noise = c.MakeVector(d.Mean.Output().Len())
	anyvec.Rand(noise, anyvec.Normal, nil)
	z = anydiff.Add(d.Mean, anydiff.Mul(anydiff.Exp(d.LogStd), anydiff.NewConst(noise)))
	return
}

// NoiseLogProb computes the log density of each row's
// sample, given the noise that Sample returned for it.
func (d *Dist) NoiseLogProb(noise anyvec.Vector, rows int) anydiff.Res {
	c := noise.Creator()
	sq := vectorFloats(noise)
	for i, x := range sq {
		sq[i] = -0.5 * x * x
	}
	terms := anydiff.Sub(anydiff.NewConst(makeVector(c, sq)), d.LogStd)
	return addLogNormalizer(sumRows(terms, rows), noise.Len()/rows)
}

// LogProb computes the log density of each row of z.
func (d *Dist) LogProb(z anydiff.Res, rows int) anydiff.Res {
	c := z.Output().Creator()
	invStd := anydiff.Exp(anydiff.Scale(d.LogStd, c.MakeNumeric(-1)))
	scaled := anydiff.Mul(anydiff.Sub(z, d.Mean), invStd)
	terms := anydiff.Sub(anydiff.Scale(anydiff.Square(scaled), c.MakeNumeric(-0.5)), d.LogStd)
	return addLogNormalizer(sumRows(terms, rows), z.Output().Len()/rows)
}

// KLStdNormal computes, for each row, the KL divergence
// from the distribution to a standard normal.
func (d *Dist) KLStdNormal(rows int) anydiff.Res {
	c := d.Mean.Output().Creator()
	half := c.MakeNumeric(0.5)
	variance := anydiff.Exp(anydiff.Scale(d.LogStd, c.MakeNumeric(2)))
	terms := anydiff.Add(
		anydiff.Scale(anydiff.Square(d.Mean), half),
		anydiff.Sub(anydiff.Scale(variance, half), d.LogStd),
	)
	dim := d.Mean.Output().Len() / rows
	return anydiff.AddScalar(sumRows(terms, rows), c.MakeNumeric(-0.5*float64(dim)))
}

// stdNormalLogProb computes the log density of each row
// of z under a standard normal.
func stdNormalLogProb(z anydiff.Res, rows int) anydiff.Res {
	c := z.Output().Creator()
	terms := anydiff.Scale(anydiff.Square(z), c.MakeNumeric(-0.5))
	return addLogNormalizer(sumRows(terms, rows), z.Output().Len()/rows)
}

func addLogNormalizer(logProbs anydiff.Res, dim int) anydiff.Res {
	c := logProbs.Output().Creator()
	return anydiff.AddScalar(logProbs, c.MakeNumeric(-halfLog2Pi*float64(dim)))
}
