package anysgd

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
)

type testSample struct {
	X2 float64
	Y2 float64
	XY float64
	X  float64
	Y  float64
}

func (t *testSample) Apply(x, y anydiff.Res) anydiff.Res {
	mk := x.Output().Creator().MakeNumeric
	a := anydiff.Scale(anydiff.Mul(x, x), mk(t.X2))
	b := anydiff.Scale(anydiff.Mul(y, y), mk(t.Y2))
	c := anydiff.Scale(anydiff.Mul(x, y), mk(t.XY))
	d := anydiff.Scale(x, mk(t.X))
	e := anydiff.Scale(y, mk(t.Y))
	return anydiff.Add(
		anydiff.Add(a, b),
		anydiff.Add(anydiff.Add(c, d), e),
	)
}

type testSampleList []*testSample

func newTestSampleList() testSampleList {
	// Together, these polynomials add up to 3x^2+3xy-2x+y^2.
	// The global minimum is (x = 4/3, y = -2).
	return testSampleList{
		{X2: 2, X: -1, XY: 0, Y2: 0.5},
		{X2: -1, X: 0, XY: 2, Y2: 0.5},
		{X2: 2, X: -1, XY: 1, Y2: 0},
	}
}

func (t testSampleList) Len() int {
	return len(t)
}

func (t testSampleList) Swap(i, j int) {
	t[i], t[j] = t[j], t[i]
}

func (t testSampleList) Slice(i, j int) SampleList {
	return append(testSampleList{}, t[i:j]...)
}

type testGradienter struct {
	X *anydiff.Var
	Y *anydiff.Var
}

func newTestGradienter(c anyvec.Creator) *testGradienter {
	return &testGradienter{
		X: anydiff.NewVar(c.MakeVector(1)),
		Y: anydiff.NewVar(c.MakeVector(1)),
	}
}

func (t *testGradienter) Fetch(s SampleList) (Batch, error) {
	return s, nil
}

func (t *testGradienter) TotalCost(b Batch) anydiff.Res {
	var cost anydiff.Res
	for _, x := range b.(testSampleList) {
		res := x.Apply(t.X, t.Y)
		if cost == nil {
			cost = res
		} else {
			cost = anydiff.Add(cost, res)
		}
	}
	return cost
}

func (t *testGradienter) Gradient(b Batch) anydiff.Grad {
	grad, _ := CosterGrad(t, b, []*anydiff.Var{t.X, t.Y})
	return grad
}

func (t *testGradienter) current() (x, y float64) {
	x = float64(t.X.Vector.Data().([]float32)[0])
	y = float64(t.Y.Vector.Data().([]float32)[0])
	return
}

func (t *testGradienter) errorMargin() float64 {
	x, y := t.current()
	return math.Max(math.Abs(x-4.0/3), math.Abs(y+2))
}

// stopAfter returns a StatusFunc which closes the stop
// channel after n steps.
func stopAfter(n int) (func(b Batch), <-chan struct{}) {
	stop := make(chan struct{})
	return func(b Batch) {
		n--
		if n == 0 {
			close(stop)
		}
	}, stop
}

func TestSGD(t *testing.T) {
	g := newTestGradienter(anyvec32.DefaultCreator{})
	status, stop := stopAfter(400000)
	s := &SGD{
		Fetcher:    g,
		Gradienter: g,
		Samples:    newTestSampleList(),
		Rater:      ConstRater(0.0002),
		BatchSize:  1,
		StatusFunc: status,
	}

	if err := s.Run(stop); err != nil {
		t.Fatal(err)
	}

	if g.errorMargin() > 1e-2 {
		x, y := g.current()
		t.Errorf("bad solution: %f, %f", x, y)
	}
}

func TestRunEpoch(t *testing.T) {
	g := newTestGradienter(anyvec32.DefaultCreator{})
	var steps int
	s := &SGD{
		Fetcher:    g,
		Gradienter: g,
		Samples:    newTestSampleList(),
		Rater:      ConstRater(0.001),
		BatchSize:  2,
		StatusFunc: func(b Batch) {
			if b.(testSampleList).Len() != 2 {
				t.Errorf("unexpected batch size: %d", b.(testSampleList).Len())
			}
			steps++
		},
	}
	if err := s.RunEpoch(nil); err != nil {
		t.Fatal(err)
	}
	// The trailing partial batch is dropped.
	if steps != 1 {
		t.Errorf("expected 1 step but got %d", steps)
	}
	if s.NumProcessed != 2 {
		t.Errorf("expected 2 processed samples but got %d", s.NumProcessed)
	}
}

func TestRunEpochSmallList(t *testing.T) {
	g := newTestGradienter(anyvec32.DefaultCreator{})
	var steps int
	s := &SGD{
		Fetcher:    g,
		Gradienter: g,
		Samples:    newTestSampleList(),
		Rater:      ConstRater(0.001),
		BatchSize:  4,
		StatusFunc: func(b Batch) {
			steps++
		},
	}
	if err := s.RunEpoch(nil); err != nil {
		t.Fatal(err)
	}
	if steps != 0 {
		t.Errorf("expected no steps but got %d", steps)
	}
	if x, y := g.current(); x != 0 || y != 0 {
		t.Errorf("parameters changed: %f, %f", x, y)
	}
}
