package dataset

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/unixpickle/anyvec/anyvec64"
)

func TestSplitFive(t *testing.T) {
	set := &Set{}
	for i := 0; i < 103; i++ {
		set.Images = append(set.Images, []float64{float64(i)})
		set.Labels = append(set.Labels, i%10)
	}
	splits := SplitFive(set)
	if len(splits) != 5 {
		t.Fatalf("expected 5 splits but got %d", len(splits))
	}
	seen := map[float64]bool{}
	var total int
	for i, s := range splits {
		total += s.Len()
		for j, img := range s.Images {
			if seen[img[0]] {
				t.Errorf("image %f appears twice", img[0])
			}
			seen[img[0]] = true
			if l := s.Labels[j]; l != 2*i && l != 2*i+1 {
				t.Errorf("split %d: unexpected label %d", i, l)
			}
		}
	}
	if total != set.Len() {
		t.Errorf("expected %d images in total but got %d", set.Len(), total)
	}
}

func TestSplitByClassDropsOthers(t *testing.T) {
	set := &Set{
		Images: [][]float64{{0}, {1}, {2}, {3}},
		Labels: []int{0, 1, 2, 0},
	}
	splits := SplitByClass(set, [][]int{{0}, {2}})
	if !reflect.DeepEqual(splits[0].Images, [][]float64{{0}, {3}}) {
		t.Errorf("unexpected first split: %v", splits[0].Images)
	}
	if !reflect.DeepEqual(splits[1].Images, [][]float64{{2}}) {
		t.Errorf("unexpected second split: %v", splits[1].Images)
	}
}

func TestBinarize(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	images := make([][]float64, 50)
	for i := range images {
		images[i] = make([]float64, 30)
		for j := range images[i] {
			images[i][j] = rng.Float64()
		}
		images[i][0] = 0
		images[i][1] = 1
	}
	res := Binarize(images, rng)
	var ones int
	for i, img := range res {
		for j, p := range img {
			if p != 0 && p != 1 {
				t.Fatalf("non-binary pixel: %f", p)
			}
			ones += int(p)
			if j == 0 && p != 0 {
				t.Errorf("image %d: zero pixel became one", i)
			} else if j == 1 && p != 1 {
				t.Errorf("image %d: one pixel became zero", i)
			}
		}
	}
	// The mean of the uniform pixels is about 0.5.
	frac := float64(ones) / float64(50*30)
	if frac < 0.4 || frac > 0.6 {
		t.Errorf("unexpected fraction of ones: %f", frac)
	}
}

func TestSetHelpers(t *testing.T) {
	set := &Set{
		Images: [][]float64{{0, 0.25}, {1, 0.5}, {0.75, 0}},
		Labels: []int{2, 0, -1},
	}
	inv := set.Invert()
	if !reflect.DeepEqual(inv.Images, [][]float64{{1, 0.75}, {0, 0.5}, {0.25, 1}}) {
		t.Errorf("unexpected inversion: %v", inv.Images)
	}
	if set.Images[0][0] != 0 {
		t.Error("inversion modified the original")
	}
	oneHot := set.OneHot(3)
	if !reflect.DeepEqual(oneHot, [][]float64{{0, 0, 1}, {1, 0, 0}, {0, 0, 0}}) {
		t.Errorf("unexpected one-hot: %v", oneHot)
	}
	joined := Concat(set, set.Slice(1, 2))
	if joined.Len() != 4 || !reflect.DeepEqual(joined.Labels, []int{2, 0, -1, 0}) {
		t.Errorf("unexpected concatenation: %v", joined.Labels)
	}
	if len(set.Head(10)) != 3 || len(set.Head(2)) != 2 {
		t.Error("unexpected head length")
	}
	batches := Batches(joined.Images, 3)
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Errorf("unexpected batches: %v", batches)
	}
}

func TestSamples(t *testing.T) {
	images := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	s := NewSamples(anyvec64.DefaultCreator{}, images)
	sub := s.Slice(1, 3).(*Samples)
	sub.Swap(0, 1)
	vec, err := sub.GetSample(0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vec.Data(), []float64{5, 6}) {
		t.Errorf("unexpected sample: %v", vec.Data())
	}
	if !reflect.DeepEqual(images[1], []float64{3, 4}) {
		t.Error("slice swap affected the original list")
	}
}

func TestLoadIDX(t *testing.T) {
	dir, err := os.MkdirTemp("", "idx")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	writeImages(t, filepath.Join(dir, "train-images-idx3-ubyte.gz"), 3, true)
	writeLabels(t, filepath.Join(dir, "train-labels-idx1-ubyte"), []byte{7, 1, 4})
	writeImages(t, filepath.Join(dir, "t10k-images-idx3-ubyte"), 2, false)

	train, test, err := LoadIDX(dir)
	if err != nil {
		t.Fatal(err)
	}
	if train.Len() != 3 || test.Len() != 2 {
		t.Fatalf("unexpected sizes: %d, %d", train.Len(), test.Len())
	}
	if !reflect.DeepEqual(train.Labels, []int{7, 1, 4}) {
		t.Errorf("unexpected labels: %v", train.Labels)
	}
	if !reflect.DeepEqual(test.Labels, []int{-1, -1}) {
		t.Errorf("unexpected missing labels: %v", test.Labels)
	}
	for i, img := range train.Images {
		if len(img) != ImageSize {
			t.Fatalf("image %d: unexpected size %d", i, len(img))
		}
		if img[0] != float64(i)/255 || img[1] != 1 {
			t.Errorf("image %d: unexpected pixels %f, %f", i, img[0], img[1])
		}
	}

	if _, _, err := LoadIDX(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestReadIDXTruncated(t *testing.T) {
	var images bytes.Buffer
	binary.Write(&images, binary.BigEndian, []uint32{idxImageMagic, 1 << 30, 28, 28})
	images.Write(make([]byte, ImageSize))
	if _, err := ReadIDXImages(&images); err == nil {
		t.Error("expected error for truncated images")
	}

	var labels bytes.Buffer
	binary.Write(&labels, binary.BigEndian, []uint32{idxLabelMagic, 1 << 30})
	labels.Write([]byte{1, 2})
	if _, err := ReadIDXLabels(&labels); err == nil {
		t.Error("expected error for truncated labels")
	}
}

func TestLoadNames(t *testing.T) {
	if _, _, err := Load("", "cifar"); err == nil {
		t.Error("expected error for unknown data set")
	}
	if _, _, err := Load("", "icifar"); err == nil {
		t.Error("expected error for unknown inverted data set")
	}
}

func writeImages(t *testing.T, path string, count int, compress bool) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, []uint32{idxImageMagic, uint32(count), 28, 28})
	for i := 0; i < count; i++ {
		img := make([]byte, ImageSize)
		img[0] = byte(i)
		img[1] = 255
		buf.Write(img)
	}
	data := buf.Bytes()
	if compress {
		var zipped bytes.Buffer
		w := gzip.NewWriter(&zipped)
		w.Write(data)
		w.Close()
		data = zipped.Bytes()
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func writeLabels(t *testing.T, path string, labels []byte) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, []uint32{idxLabelMagic, uint32(len(labels))})
	buf.Write(labels)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}
