package anysgd

import (
	"testing"

	"github.com/unixpickle/anyvec/anyvec32"
)

func TestAdam(t *testing.T) {
	g := newTestGradienter(anyvec32.DefaultCreator{})
	status, stop := stopAfter(100000)
	s := &SGD{
		Fetcher:     g,
		Gradienter:  g,
		Transformer: &Adam{},
		Samples:     newTestSampleList(),
		Rater:       ConstRater(0.001),
		BatchSize:   1,
		StatusFunc:  status,
	}

	if err := s.Run(stop); err != nil {
		t.Fatal(err)
	}

	if g.errorMargin() > 1e-2 {
		x, y := g.current()
		t.Errorf("bad solution: %f, %f", x, y)
	}
}
