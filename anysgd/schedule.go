package anysgd

import (
	"math"
	"sort"
)

// A ScheduleRater is a piecewise-constant Rater.
//
// Rates[i] is used from epoch Boundaries[i] until the
// next boundary.
// Boundaries must be sorted in increasing order and the
// first boundary should be 0.
type ScheduleRater struct {
	Boundaries []int
	Rates      []float64
}

// PaperSchedule produces the learning rate schedule from
// the IWAE paper (Burda et al., 2015, bottom of page 6):
// for i = 0, ..., 7, train 3^i epochs with a learning
// rate of 0.001*10^(-i/7).
//
// It returns the schedule and the total number of
// epochs.
func PaperSchedule() (sched *ScheduleRater, epochs int) {
	sched = &ScheduleRater{}
	for i := 0; i < 8; i++ {
		sched.Boundaries = append(sched.Boundaries, epochs)
		sched.Rates = append(sched.Rates, 0.001*math.Pow(10, -float64(i)/7))
		epochs += pow3(i)
	}
	return sched, epochs
}

// Rate returns the rate of the last boundary that is not
// after the epoch.
func (s *ScheduleRater) Rate(epoch float64) float64 {
	idx := sort.Search(len(s.Boundaries), func(i int) bool {
		return float64(s.Boundaries[i]) > epoch
	})
	if idx == 0 {
		return s.Rates[0]
	}
	return s.Rates[idx-1]
}

func pow3(n int) int {
	res := 1
	for i := 0; i < n; i++ {
		res *= 3
	}
	return res
}
