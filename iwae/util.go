package iwae

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

func vectorFloats(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return append([]float64{}, data...)
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", data))
	}
}

func makeVector(c anyvec.Creator, data []float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(data))
}

// packRows creates a constant holding the rows one after
// another.
func packRows(c anyvec.Creator, rows [][]float64) *anydiff.Const {
	var size int
	for _, r := range rows {
		size += len(r)
	}
	data := make([]float64, 0, size)
	for _, r := range rows {
		data = append(data, r...)
	}
	return anydiff.NewConst(makeVector(c, data))
}

func unpackRows(data []float64, cols int) [][]float64 {
	res := make([][]float64, len(data)/cols)
	for i := range res {
		res[i] = data[i*cols : (i+1)*cols]
	}
	return res
}

// repeatRows repeats each of the rows of a packed matrix
// k times in a row, producing rows*k rows.
func repeatRows(in anydiff.Res, rows, k int) anydiff.Res {
	if k == 1 {
		return in
	}
	c := in.Output().Creator()
	cols := in.Output().Len() / rows
	selector := make([]float64, rows*k*rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < k; j++ {
			selector[(i*k+j)*rows+i] = 1
		}
	}
	return anydiff.MatMul(false, false,
		&anydiff.Matrix{
			Data: anydiff.NewConst(makeVector(c, selector)),
			Rows: rows * k,
			Cols: rows,
		},
		&anydiff.Matrix{Data: in, Rows: rows, Cols: cols},
	).Data
}

// sumRows sums the columns of each row of a packed matrix.
func sumRows(in anydiff.Res, rows int) anydiff.Res {
	return anydiff.SumCols(&anydiff.Matrix{
		Data: in,
		Rows: rows,
		Cols: in.Output().Len() / rows,
	})
}

func addOptional(a, b anydiff.Res) anydiff.Res {
	if a == nil {
		return b
	} else if b == nil {
		return a
	}
	return anydiff.Add(a, b)
}
