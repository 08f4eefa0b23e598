// Package dataset loads, splits and preprocesses the
// image data sets used by the lifelong learning
// experiments.
package dataset

import (
	"math/rand"

	"github.com/unixpickle/anyvae/anysgd"
	"github.com/unixpickle/anyvec"
)

// ImageSize is the number of pixels in every image.
const ImageSize = 28 * 28

// A Set is a list of flattened images with pixel values in
// [0, 1], along with a label for each image.
// Sets without labels use -1 for every label.
type Set struct {
	Images [][]float64
	Labels []int
}

// Len returns the number of images.
func (s *Set) Len() int {
	return len(s.Images)
}

// Slice returns a subset of the images.
// The underlying images are not copied.
func (s *Set) Slice(start, end int) *Set {
	return &Set{
		Images: s.Images[start:end],
		Labels: s.Labels[start:end],
	}
}

// Head returns up to n images from the start of the set.
func (s *Set) Head(n int) [][]float64 {
	if n > len(s.Images) {
		n = len(s.Images)
	}
	return s.Images[:n]
}

// Invert creates a set where every pixel p becomes 1-p.
func (s *Set) Invert() *Set {
	res := &Set{
		Images: make([][]float64, len(s.Images)),
		Labels: append([]int{}, s.Labels...),
	}
	for i, img := range s.Images {
		inv := make([]float64, len(img))
		for j, p := range img {
			inv[j] = 1 - p
		}
		res.Images[i] = inv
	}
	return res
}

// OneHot converts the labels to one-hot vectors.
// Labels outside of [0, classes) produce zero vectors.
func (s *Set) OneHot(classes int) [][]float64 {
	res := make([][]float64, len(s.Labels))
	for i, l := range s.Labels {
		res[i] = make([]float64, classes)
		if l >= 0 && l < classes {
			res[i][l] = 1
		}
	}
	return res
}

// Concat joins sets in order.
func Concat(sets ...*Set) *Set {
	res := &Set{}
	for _, s := range sets {
		res.Images = append(res.Images, s.Images...)
		res.Labels = append(res.Labels, s.Labels...)
	}
	return res
}

// ConcatImages joins image lists in order.
func ConcatImages(lists ...[][]float64) [][]float64 {
	var res [][]float64
	for _, l := range lists {
		res = append(res, l...)
	}
	return res
}

// Binarize samples every pixel: an output pixel is 1 when
// a uniform random number falls below the input pixel,
// and 0 otherwise.
func Binarize(images [][]float64, rng *rand.Rand) [][]float64 {
	res := make([][]float64, len(images))
	for i, img := range images {
		out := make([]float64, len(img))
		for j, p := range img {
			if rng.Float64() < p {
				out[j] = 1
			}
		}
		res[i] = out
	}
	return res
}

// Shuffle returns a shuffled copy of the image list.
func Shuffle(images [][]float64, rng *rand.Rand) [][]float64 {
	res := append([][]float64{}, images...)
	rng.Shuffle(len(res), func(i, j int) {
		res[i], res[j] = res[j], res[i]
	})
	return res
}

// Batches splits images into batches of the given size.
// The trailing partial batch is dropped.
func Batches(images [][]float64, size int) [][][]float64 {
	var res [][][]float64
	for i := 0; i+size <= len(images); i += size {
		res = append(res, images[i:i+size])
	}
	return res
}

// Samples is an anysgd.SampleList of images.
type Samples struct {
	Creator anyvec.Creator
	Images  [][]float64
}

// NewSamples creates a sample list for the images.
func NewSamples(c anyvec.Creator, images [][]float64) *Samples {
	return &Samples{Creator: c, Images: images}
}

// Len returns the number of samples.
func (s *Samples) Len() int {
	return len(s.Images)
}

// Swap swaps two samples.
func (s *Samples) Swap(i, j int) {
	s.Images[i], s.Images[j] = s.Images[j], s.Images[i]
}

// Slice returns a copy of a subset of the list.
func (s *Samples) Slice(i, j int) anysgd.SampleList {
	return &Samples{
		Creator: s.Creator,
		Images:  append([][]float64{}, s.Images[i:j]...),
	}
}

// GetSample creates a vector for the sample.
func (s *Samples) GetSample(idx int) (anyvec.Vector, error) {
	return s.Creator.MakeVectorData(s.Creator.MakeNumericList(s.Images[idx])), nil
}
