package anysgd

import (
	"math"
	"testing"
)

func TestPaperSchedule(t *testing.T) {
	sched, epochs := PaperSchedule()
	if epochs != 3280 {
		t.Errorf("expected 3280 epochs but got %d", epochs)
	}
	if len(sched.Boundaries) != 8 || len(sched.Rates) != 8 {
		t.Fatalf("unexpected schedule size: %d, %d", len(sched.Boundaries), len(sched.Rates))
	}
	for i, b := range sched.Boundaries {
		// Sum of 3^j for j < i.
		expected := (pow3(i) - 1) / 2
		if b != expected {
			t.Errorf("boundary %d: expected %d but got %d", i, expected, b)
		}
		if i > 0 && b <= sched.Boundaries[i-1] {
			t.Errorf("boundary %d is not increasing", i)
		}
		rate := 0.001 * math.Pow(10, -float64(i)/7)
		if math.Abs(sched.Rates[i]-rate) > 1e-12 {
			t.Errorf("rate %d: expected %e but got %e", i, rate, sched.Rates[i])
		}
	}
}

func TestScheduleRater(t *testing.T) {
	sched := &ScheduleRater{
		Boundaries: []int{0, 1, 4},
		Rates:      []float64{3, 2, 1},
	}
	cases := map[float64]float64{
		0:    3,
		0.99: 3,
		1:    2,
		3.5:  2,
		4:    1,
		100:  1,
	}
	for epoch, expected := range cases {
		if actual := sched.Rate(epoch); actual != expected {
			t.Errorf("epoch %f: expected %f but got %f", epoch, expected, actual)
		}
	}
}
