package anyvae

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestSigmoidCE(t *testing.T) {
	t.Run("Unaveraged", func(t *testing.T) {
		testCost(t, SigmoidCE{}, []float32{
			1, 0.6,
			0.2, 0,
		}, []float32{
			1, 0,
			2, -1,
		}, []float32{
			0.3132616875 + 0.6931471806,
			0.02538560221 + 1.7015424088 + 0.3132616875,
		}, 2)
	})
	t.Run("Averaged", func(t *testing.T) {
		testCost(t, SigmoidCE{Average: true}, []float32{
			1, 0.6, 0,
			0.2, 0, 0,
		}, []float32{
			1, 0, -50,
			2, -1, -50,
		}, []float32{
			(1.0 / 3) * (0.3132616875 + 0.6931471806),
			(1.0 / 3) * (0.02538560221 + 1.7015424088 + 0.3132616875),
		}, 2)
	})
}

func TestBernoulliLogProb(t *testing.T) {
	x := anydiff.NewConst(anyvec64.MakeVectorData([]float64{1, 0, 0, 1}))
	logits := anydiff.NewConst(anyvec64.MakeVectorData([]float64{0, 0, 2, -1}))
	actual := BernoulliLogProb(x, logits, 2).Output().Data().([]float64)
	expected := []float64{
		2 * math.Log(0.5),
		math.Log(1-sigmoid(2)) + math.Log(sigmoid(-1)),
	}
	for i, x := range expected {
		if math.Abs(actual[i]-x) > 1e-8 {
			t.Errorf("sample %d: expected %f but got %f", i, x, actual[i])
		}
	}
}

func TestBernoulliLogProbGrad(t *testing.T) {
	x := anydiff.NewConst(anyvec64.MakeVectorData([]float64{1, 0, 1, 1, 0, 0}))
	logits := anydiff.NewVar(anyvec64.MakeVectorData([]float64{0.5, -1, 2, -0.3, 0.1, 1.5}))
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return BernoulliLogProb(x, logits, 3)
		},
		V: []*anydiff.Var{logits},
	}
	checker.FullCheck(t)
}

func testCost(t *testing.T, c Cost, desired, output, expected []float32, n int) {
	desiredRes := anydiff.NewConst(anyvec32.MakeVectorData(desired))
	outputRes := anydiff.NewConst(anyvec32.MakeVectorData(output))

	actual := c.Cost(desiredRes, outputRes, n).Output().Data().([]float32)

	for i, x := range expected {
		a := actual[i]
		if math.IsNaN(float64(a)) || math.Abs(float64(x-a)) > 1e-3 {
			t.Errorf("component %d: expected %f but got %f", i, x, a)
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
