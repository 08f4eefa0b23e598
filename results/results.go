// Package results records experiment metrics and writes
// them to flat text files.
package results

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/stat"
)

// A Series is an ordered list of metric values.
type Series []float64

// ReadFile reads a series written by WriteFile.
func ReadFile(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read series", err)
	}
	defer f.Close()
	var res Series
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		x, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, essentials.AddCtx("read series", err)
		}
		res = append(res, x)
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("read series", err)
	}
	return res, nil
}

// WriteFile writes one value per line, creating the
// parent directory if necessary.
func (s Series) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return essentials.AddCtx("write series", err)
	}
	var b strings.Builder
	for _, x := range s {
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return essentials.AddCtx("write series", err)
	}
	return nil
}

// A RunningMean averages values, ignoring NaNs.
type RunningMean struct {
	Sum   float64
	Count int
}

// Add adds a value unless it is NaN.
func (r *RunningMean) Add(x float64) {
	if math.IsNaN(x) {
		return
	}
	r.Sum += x
	r.Count++
}

// Mean returns the average, or NaN if no values have been
// added.
func (r *RunningMean) Mean() float64 {
	if r.Count == 0 {
		return math.NaN()
	}
	return r.Sum / float64(r.Count)
}

// BinaryCrossEntropy computes the mean cross-entropy over
// the components of target and pred, with predictions
// clipped away from 0 and 1.
func BinaryCrossEntropy(target, pred []float64) float64 {
	if len(target) != len(pred) {
		panic("length mismatch")
	}
	const eps = 1e-7
	var sum float64
	for i, p := range pred {
		p = math.Min(math.Max(p, eps), 1-eps)
		y := target[i]
		sum -= y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return sum / float64(len(pred))
}

// ShiftedCrossEntropy is like BinaryCrossEntropy, but
// every prediction is increased by 1e-7 before clipping.
// The reconstruction discrepancy is measured this way.
func ShiftedCrossEntropy(target, pred []float64) float64 {
	shifted := make([]float64, len(pred))
	for i, p := range pred {
		shifted[i] = p + 1e-7
	}
	return BinaryCrossEntropy(target, shifted)
}

// Summary computes the mean and population standard
// deviation of the values.
func Summary(values []float64) (mean, std float64) {
	return stat.PopMeanStdDev(values, nil)
}
