// Package export writes generated datasets to files.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/darray"
)

// WriteCSV writes m as CSV, one row per line and no header. Values are
// formatted with the shortest representation that round-trips at dtype
// precision.
func WriteCSV(w io.Writer, m mat.Matrix, dtype darray.DType) error {
	bitSize := 64
	if dtype == darray.Float32 {
		bitSize = 32
	}

	writer := csv.NewWriter(w)
	r, c := m.Dims()
	record := make([]string, c)
	for i := range r {
		for j := range c {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, bitSize)
		}
		if err := writer.Write(record); err != nil {
			return errors.Wrapf(err, "writing row %d", i)
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveCSV writes m to the named file.
func SaveCSV(filename string, m mat.Matrix, dtype darray.DType) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, m, dtype); err != nil {
		file.Close()
		return errors.WithMessagef(err, "saving %s", filename)
	}
	return file.Close()
}

// ReadCSV loads a CSV matrix (no header, numeric values only).
func ReadCSV(r io.Reader) (*mat.Dense, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("export: empty csv")
	}

	cols := len(records[0])
	data := make([]float64, 0, len(records)*cols)
	for i, record := range records {
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d, column %d", i, j)
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(len(records), cols, data), nil
}
