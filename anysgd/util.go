package anysgd

import (
	"fmt"
	"math/rand"

	"github.com/unixpickle/anydiff"
)

// Shuffle shuffles a list of samples using the global
// random source.
func Shuffle(s SampleList) {
	for i := 0; i < s.Len(); i++ {
		j := i + rand.Intn(s.Len()-i)
		s.Swap(i, j)
	}
}

// A ConstRater is a Rater which always returns the same
// constant learning rate.
type ConstRater float64

// Rate returns float64(c).
func (c ConstRater) Rate(epoch float64) float64 {
	return float64(c)
}

func copyGrad(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, x := range g {
		res[v] = x.Copy()
	}
	return res
}

func scaleGrad(g anydiff.Grad, s float64) {
	for _, x := range g {
		x.Scale(x.Creator().MakeNumeric(s))
	}
}

func valueOrDefault(value, def float64) float64 {
	if value == 0 {
		return def
	}
	return value
}

func numericFloat(data interface{}) float64 {
	switch data := data.(type) {
	case []float32:
		var sum float32
		for _, x := range data {
			sum += x
		}
		return float64(sum)
	case []float64:
		var sum float64
		for _, x := range data {
			sum += x
		}
		return sum
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", data))
	}
}
