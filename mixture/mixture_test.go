package mixture

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvae"
	"github.com/unixpickle/anyvae/anysgd"
	"github.com/unixpickle/anyvae/iwae"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/serializer"
)

func TestCreateComponent(t *testing.T) {
	m := New(anyvec64.DefaultCreator{}, 6, 4, 2)
	sample := testData(10, 6)
	if _, err := m.CreateComponent(sample, false, 5); err == nil {
		t.Fatal("expected error for sub-node without basic components")
	}
	if _, err := m.CreateComponent(sample, true, 5); err != nil {
		t.Fatal(err)
	}
	m.SetTrainable(false)
	sub, err := m.CreateComponent(sample, false, 5)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Basic || !sub.Trainable {
		t.Error("unexpected flags for sub-node")
	}
	if m.BasicCount() != 1 || len(m.Components) != 2 {
		t.Errorf("unexpected component counts")
	}

	blend := sub.Model.Encoders[0].Trunk.(anyvae.Net)[0].(*anyvae.Blend)
	if len(blend.Weights) != 1 || math.Abs(blend.Weights[0]-1) > 1e-8 {
		t.Errorf("unexpected blend weights: %v", blend.Weights)
	}

	// Only the sub-node's own layers are trainable.
	params := m.Parameters()
	if len(params) != 8 {
		t.Errorf("expected 8 parameters but got %d", len(params))
	}
	basicParams := map[*anydiff.Var]bool{}
	for _, p := range m.Components[0].Parameters() {
		basicParams[p] = true
	}
	for _, p := range params {
		if basicParams[p] {
			t.Error("basic component parameter is trainable")
		}
	}
}

func TestSubNodeTraining(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	m := New(c, 6, 4, 2)
	data := testData(8, 6)
	if _, err := m.CreateComponent(data, true, 5); err != nil {
		t.Fatal(err)
	}
	m.SetTrainable(false)
	sub, err := m.CreateComponent(data, false, 5)
	if err != nil {
		t.Fatal(err)
	}

	var basicBefore [][]float64
	for _, p := range m.Components[0].Parameters() {
		basicBefore = append(basicBefore, append([]float64{}, p.Vector.Data().([]float64)...))
	}
	subBefore := append([]float64{}, sub.Parameters()[0].Vector.Data().([]float64)...)

	tr := &iwae.Trainer{
		Model:      sub.Model,
		Objective:  iwae.IWAEELBO,
		NumSamples: 3,
		Params:     m.Parameters(),
	}
	samples := testSampleList{}
	for _, x := range data {
		samples = append(samples, c.MakeVectorData(c.MakeNumericList(x)))
	}
	s := &anysgd.SGD{
		Fetcher:     tr,
		Gradienter:  tr,
		Transformer: &anysgd.Adam{},
		Samples:     samples,
		Rater:       anysgd.ConstRater(0.01),
		BatchSize:   4,
	}
	for i := 0; i < 3; i++ {
		if err := s.RunEpoch(nil); err != nil {
			t.Fatal(err)
		}
	}

	for i, p := range m.Components[0].Parameters() {
		data := p.Vector.Data().([]float64)
		for j, x := range basicBefore[i] {
			if data[j] != x {
				t.Fatalf("basic parameter %d changed", i)
			}
		}
	}
	changed := false
	for i, x := range sub.Parameters()[0].Vector.Data().([]float64) {
		if x != subBefore[i] {
			changed = true
		}
	}
	if !changed {
		t.Error("sub-node parameters did not change")
	}
}

func TestMixtureSerialize(t *testing.T) {
	m := New(anyvec64.DefaultCreator{}, 6, 4, 2)
	data := testData(10, 6)
	m.CreateComponent(data, true, 5)
	m.Components[0].TrainNLL = 3.5
	m.SetTrainable(false)
	m.CreateComponent(data, false, 5)

	encoded, err := serializer.SerializeAny(m)
	if err != nil {
		t.Fatal(err)
	}
	var decoded *Mixture
	if err := serializer.DeserializeAny(encoded, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.InSize != 6 || decoded.Hidden != 4 || decoded.Latent != 2 ||
		decoded.Threshold != DefaultThreshold {
		t.Errorf("unexpected sizes: %d, %d, %d, %f", decoded.InSize, decoded.Hidden,
			decoded.Latent, decoded.Threshold)
	}
	if len(decoded.Components) != 2 {
		t.Fatalf("expected 2 components but got %d", len(decoded.Components))
	}
	for i, comp := range decoded.Components {
		orig := m.Components[i]
		if comp.Basic != orig.Basic || comp.Trainable != orig.Trainable {
			t.Errorf("component %d: flags mismatch", i)
		}
		origParams := orig.Parameters()
		newParams := comp.Parameters()
		if len(origParams) != len(newParams) {
			t.Errorf("component %d: expected %d params but got %d", i,
				len(origParams), len(newParams))
			continue
		}
		for j, p := range origParams {
			x := p.Vector.Data().([]float64)
			y := newParams[j].Vector.Data().([]float64)
			for k := range x {
				if x[k] != y[k] {
					t.Fatalf("component %d: parameter %d mismatch", i, j)
				}
			}
		}
	}
	if decoded.Components[0].TrainNLL != 3.5 {
		t.Errorf("unexpected train NLL: %f", decoded.Components[0].TrainNLL)
	}
	if !math.IsNaN(decoded.Components[1].TrainNLL) {
		t.Errorf("expected NaN train NLL but got %f", decoded.Components[1].TrainNLL)
	}

	// The deserialized mixture can grow.
	decoded.SetTrainable(false)
	if _, err := decoded.CreateComponent(data, false, 5); err != nil {
		t.Fatal(err)
	}
}

func TestEvaluate(t *testing.T) {
	m := New(anyvec64.DefaultCreator{}, 6, 4, 2)
	data := testData(5, 6)
	m.CreateComponent(data, true, 5)
	m.CreateComponent(data, true, 5)
	idx, nll := m.Evaluate(data, 10)
	if idx < 0 || idx > 1 {
		t.Errorf("invalid index: %d", idx)
	}
	if math.IsNaN(nll) || nll < 0 {
		t.Errorf("invalid NLL: %f", nll)
	}

	idx, min := argmin([]float64{3, 1, 2, 1.5})
	if idx != 1 || min != 1 {
		t.Errorf("expected (1, 1) but got (%d, %f)", idx, min)
	}
}

func TestNeedsBasic(t *testing.T) {
	m := New(anyvec64.DefaultCreator{}, 6, 4, 2)
	data := testData(5, 6)
	if !m.NeedsBasic(data, 5) {
		t.Error("an empty mixture needs a basic component")
	}
	m.CreateComponent(data, true, 5)
	if m.NeedsBasic(data, 5) {
		t.Error("unmeasured components should not trigger expansion")
	}
	m.Components[0].TrainNLL = -1000
	if !m.NeedsBasic(data, 5) {
		t.Error("expected expansion for a large NLL gap")
	}
	m.Components[0].TrainNLL = 1000
	if m.NeedsBasic(data, 5) {
		t.Error("unexpected expansion")
	}
}

func TestSoftmax(t *testing.T) {
	res := softmax([]float64{-100, -101, -1000})
	if math.Abs(res[0]+res[1]+res[2]-1) > 1e-8 {
		t.Errorf("weights do not sum to 1: %v", res)
	}
	if math.Abs(res[0]/res[1]-math.E) > 1e-6 {
		t.Errorf("unexpected ratio: %f", res[0]/res[1])
	}
}

type testSampleList []anyvec.Vector

func (t testSampleList) Len() int {
	return len(t)
}

func (t testSampleList) Swap(i, j int) {
	t[i], t[j] = t[j], t[i]
}

func (t testSampleList) Slice(i, j int) anysgd.SampleList {
	return append(testSampleList{}, t[i:j]...)
}

func (t testSampleList) GetSample(i int) (anyvec.Vector, error) {
	return t[i], nil
}

func testData(n, size int) [][]float64 {
	res := make([][]float64, n)
	for i := range res {
		res[i] = make([]float64, size)
		for j := range res[i] {
			if rand.Intn(2) == 0 {
				res[i][j] = 1
			}
		}
	}
	return res
}
