package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/mnist"
)

const (
	idxImageMagic = 0x803
	idxLabelMagic = 0x801

	// idxPrealloc bounds how many images are allocated
	// up front from the count in a file header.
	idxPrealloc = 1 << 14
)

// Names lists the data sets that Load understands.
// Each one may be prefixed with "i" for its inverted
// version.
var Names = []string{"mnist", "fashion", "caltech101", "omniglot"}

// Load loads the training and testing sets for a named
// data set.
//
// The "mnist" set is built in.
// The others are read with LoadIDX from a sub-directory
// of dir with the data set's name.
func Load(dir, name string) (train, test *Set, err error) {
	if strings.HasPrefix(name, "i") && isName(name[1:]) {
		train, test, err = Load(dir, name[1:])
		if err != nil {
			return nil, nil, err
		}
		return train.Invert(), test.Invert(), nil
	}
	if !isName(name) {
		return nil, nil, fmt.Errorf("unknown data set: %s", name)
	}
	if name == "mnist" {
		train, test = LoadMNIST()
		return train, test, nil
	}
	train, test, err = LoadIDX(filepath.Join(dir, name))
	if err != nil {
		return nil, nil, essentials.AddCtx("load "+name, err)
	}
	return train, test, nil
}

func isName(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// LoadMNIST loads the built-in MNIST data set.
func LoadMNIST() (train, test *Set) {
	return mnistSet(mnist.LoadTrainingDataSet()), mnistSet(mnist.LoadTestingDataSet())
}

func mnistSet(d mnist.DataSet) *Set {
	res := &Set{
		Images: make([][]float64, len(d.Samples)),
		Labels: make([]int, len(d.Samples)),
	}
	for i, s := range d.Samples {
		res.Images[i] = s.Intensities
		res.Labels[i] = s.Label
	}
	return res
}

// LoadIDX loads a data set stored in the IDX format used
// by MNIST and Fashion-MNIST.
//
// The directory must contain train-images-idx3-ubyte and
// t10k-images-idx3-ubyte, optionally gzipped with a ".gz"
// extension.
// The matching label files are optional.
func LoadIDX(dir string) (train, test *Set, err error) {
	train, err = loadIDXPair(dir, "train")
	if err != nil {
		return nil, nil, err
	}
	test, err = loadIDXPair(dir, "t10k")
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func loadIDXPair(dir, prefix string) (*Set, error) {
	imgFile, err := findIDXFile(dir, prefix+"-images-idx3-ubyte")
	if err != nil {
		return nil, err
	}
	res := &Set{}
	err = readIDXFile(imgFile, func(r io.Reader) (err error) {
		res.Images, err = ReadIDXImages(r)
		return
	})
	if err != nil {
		return nil, err
	}

	labelFile, err := findIDXFile(dir, prefix+"-labels-idx1-ubyte")
	if os.IsNotExist(err) {
		res.Labels = make([]int, len(res.Images))
		for i := range res.Labels {
			res.Labels[i] = -1
		}
		return res, nil
	} else if err != nil {
		return nil, err
	}
	err = readIDXFile(labelFile, func(r io.Reader) (err error) {
		res.Labels, err = ReadIDXLabels(r)
		return
	})
	if err != nil {
		return nil, err
	}
	if len(res.Labels) != len(res.Images) {
		return nil, fmt.Errorf("load %s: %d labels for %d images", prefix,
			len(res.Labels), len(res.Images))
	}
	return res, nil
}

func findIDXFile(dir, name string) (string, error) {
	for _, p := range []string{name, name + ".gz"} {
		path := filepath.Join(dir, p)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return "", &os.PathError{Op: "open", Path: filepath.Join(dir, name), Err: os.ErrNotExist}
}

// readIDXFile opens a possibly gzipped file and passes a
// reader for its contents to f.
func readIDXFile(path string, f func(r io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	var r io.Reader = bufio.NewReader(file)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return essentials.AddCtx(path, err)
		}
		defer gz.Close()
		r = gz
	}
	if err := f(r); err != nil {
		return essentials.AddCtx(path, err)
	}
	return nil
}

// ReadIDXImages reads an IDX image file.
// Pixels are scaled to [0, 1].
func ReadIDXImages(r io.Reader) ([][]float64, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, err
	}
	if header[0] != idxImageMagic {
		return nil, fmt.Errorf("bad image magic number: 0x%x", header[0])
	}
	count, size := int(header[1]), int(header[2]*header[3])
	if size != ImageSize {
		return nil, fmt.Errorf("unexpected image size: %dx%d", header[2], header[3])
	}
	buf := make([]byte, size)
	images := make([][]float64, 0, min(count, idxPrealloc))
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return nil, fmt.Errorf("truncated image file: %d of %d images", i, count)
			}
			return nil, err
		}
		img := make([]float64, size)
		for j, b := range buf {
			img[j] = float64(b) / 255
		}
		images = append(images, img)
	}
	return images, nil
}

// ReadIDXLabels reads an IDX label file.
func ReadIDXLabels(r io.Reader) ([]int, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, err
	}
	if header[0] != idxLabelMagic {
		return nil, fmt.Errorf("bad label magic number: 0x%x", header[0])
	}
	buf, err := io.ReadAll(io.LimitReader(r, int64(header[1])))
	if err != nil {
		return nil, err
	}
	if len(buf) != int(header[1]) {
		return nil, errors.New("truncated label file")
	}
	labels := make([]int, len(buf))
	for i, b := range buf {
		labels[i] = int(b)
	}
	return labels, nil
}
