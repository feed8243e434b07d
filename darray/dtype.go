package darray

import (
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DType is the element type of an array. Values are always held as float64;
// Float32 arrays round every stored value through float32.
type DType int

const (
	// Float32 is single precision. It is the default dtype.
	Float32 DType = iota
	// Float64 is double precision.
	Float64
)

// ItemSize returns the element width in bytes.
func (d DType) ItemSize() int64 {
	if d == Float64 {
		return 8
	}
	return 4
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// ParseDType parses "float32" or "float64".
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(s) {
	case "float32", "f4", "single":
		return Float32, nil
	case "float64", "f8", "double":
		return Float64, nil
	}
	return 0, errors.Errorf("darray: unknown dtype %q", s)
}

// Round returns v as stored under d.
func (d DType) Round(v float64) float64 {
	if d == Float32 {
		return float64(float32(v))
	}
	return v
}

// RoundDense rounds every element of m in place.
func (d DType) RoundDense(m *mat.Dense) {
	if d != Float32 {
		return
	}
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j, v := range row {
			row[j] = float64(float32(v))
		}
	}
}
