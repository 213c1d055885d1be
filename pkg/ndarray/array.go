package ndarray

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidShape is returned for shapes with non-positive or overflowing dimensions.
	ErrInvalidShape = errors.New("ndarray: invalid shape")

	// ErrInvalidOrder is returned for memory orders other than "C" and "F".
	ErrInvalidOrder = errors.New("ndarray: invalid order")

	// ErrDTypeMismatch is returned when typed access does not match the array dtype.
	ErrDTypeMismatch = errors.New("ndarray: dtype mismatch")
)

// Order is the memory layout of a multidimensional array.
type Order string

const (
	RowMajor    Order = "C"
	ColumnMajor Order = "F"
)

// ParseOrder parses an order tag. An empty tag means row-major.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "C":
		return RowMajor, nil
	case "F":
		return ColumnMajor, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOrder, s)
}

// ShapeError reports a byte count that does not match the declared shape and dtype.
type ShapeError struct {
	Shape []int
	DType DType
	Want  int
	Got   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("ndarray: cannot reshape %d bytes into shape %v of %s (want %d bytes)",
		e.Got, e.Shape, e.DType.Name(), e.Want)
}

// Array is a dense multidimensional array held as raw bytes.
type Array struct {
	DType DType
	Shape []int
	Order Order
	Data  []byte
}

// NumElements returns the product of the shape dimensions. An empty shape
// describes a scalar and has one element.
func NumElements(shape []int) (int, error) {
	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			return 0, fmt.Errorf("%w: dimension %d in %v", ErrInvalidShape, dim, shape)
		}
		if n > math.MaxInt/dim {
			return 0, fmt.Errorf("%w: %v overflows", ErrInvalidShape, shape)
		}
		n *= dim
	}
	return n, nil
}

// ByteLen returns the number of bytes an array of the given dtype and shape occupies.
func ByteLen(dt DType, shape []int) (int, error) {
	n, err := NumElements(shape)
	if err != nil {
		return 0, err
	}
	if dt.Size > 0 && n > math.MaxInt/dt.Size {
		return 0, fmt.Errorf("%w: %v overflows", ErrInvalidShape, shape)
	}
	return n * dt.Size, nil
}

// New wraps raw bytes as an array, checking that the byte count matches
// shape and dtype. The data slice is not copied.
func New(dt DType, shape []int, order Order, data []byte) (*Array, error) {
	if !dt.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDType, dt)
	}
	if order == "" {
		order = RowMajor
	}
	if order != RowMajor && order != ColumnMajor {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrder, order)
	}
	want, err := ByteLen(dt, shape)
	if err != nil {
		return nil, err
	}
	if len(data) != want {
		return nil, &ShapeError{Shape: cloneShape(shape), DType: dt, Want: want, Got: len(data)}
	}
	return &Array{DType: dt, Shape: cloneShape(shape), Order: order, Data: data}, nil
}

// Len returns the number of elements.
func (a *Array) Len() int {
	n, _ := NumElements(a.Shape)
	return n
}

// NDim returns the number of dimensions.
func (a *Array) NDim() int {
	return len(a.Shape)
}

// RowMajor returns the array laid out in row-major order. Row-major arrays
// are returned as is; column-major arrays are copied and reordered.
func (a *Array) RowMajor() *Array {
	if a.Order != ColumnMajor || len(a.Shape) < 2 {
		if a.Order == RowMajor {
			return a
		}
		// 0-d and 1-d arrays have identical layouts in both orders.
		return &Array{DType: a.DType, Shape: cloneShape(a.Shape), Order: RowMajor, Data: a.Data}
	}

	ndim := len(a.Shape)
	fstrides := make([]int, ndim)
	stride := 1
	for k := 0; k < ndim; k++ {
		fstrides[k] = stride
		stride *= a.Shape[k]
	}

	size := a.DType.Size
	out := make([]byte, len(a.Data))
	idx := make([]int, ndim)
	for i, n := 0, a.Len(); i < n; i++ {
		src := 0
		for k := 0; k < ndim; k++ {
			src += idx[k] * fstrides[k]
		}
		copy(out[i*size:(i+1)*size], a.Data[src*size:(src+1)*size])

		// advance the C-order index, last axis fastest
		for k := ndim - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < a.Shape[k] {
				break
			}
			idx[k] = 0
		}
	}
	return &Array{DType: a.DType, Shape: cloneShape(a.Shape), Order: RowMajor, Data: out}
}

// Number is the set of Go element types with a fixed-width dtype.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// DTypeOf returns the native-order dtype for a Go element type.
func DTypeOf[T Number]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	// Named types fall back on their underlying width and kind.
	size := binary.Size(zero)
	endian := EndianNative
	if size == 1 {
		endian = EndianNone
	}
	switch {
	case isFloat(zero):
		return DType{Kind: KindFloat, Size: size, Endian: endian}
	case isUnsigned(zero):
		return DType{Kind: KindUint, Size: size, Endian: endian}
	}
	return DType{Kind: KindInt, Size: size, Endian: endian}
}

func isFloat[T Number](v T) bool {
	v = 1
	v /= 2
	return v != 0
}

func isUnsigned[T Number](v T) bool {
	v = 0
	v--
	return v > 0
}

// FromSlice builds a row-major array of the given shape from Go values in
// native byte order.
func FromSlice[T Number](shape []int, values []T) (*Array, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	dt := DTypeOf[T]()
	if len(values) != n {
		return nil, &ShapeError{Shape: cloneShape(shape), DType: dt, Want: n * dt.Size, Got: len(values) * dt.Size}
	}

	var buf bytes.Buffer
	buf.Grow(n * dt.Size)
	if err := binary.Write(&buf, binary.NativeEndian, values); err != nil {
		return nil, err
	}
	return New(dt, shape, RowMajor, buf.Bytes())
}

// Values decodes the array data into a slice of T in storage order. T must
// match the array's kind and width.
func Values[T Number](a *Array) ([]T, error) {
	want := DTypeOf[T]()
	if want.Kind != a.DType.Kind || want.Size != a.DType.Size {
		return nil, fmt.Errorf("%w: array is %s, requested %s", ErrDTypeMismatch, a.DType.Name(), want.Name())
	}
	out := make([]T, a.Len())
	if err := binary.Read(bytes.NewReader(a.Data), a.DType.ByteOrder(), out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromBools builds a row-major bool array.
func FromBools(shape []int, values []bool) (*Array, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, &ShapeError{Shape: cloneShape(shape), DType: Bool, Want: n, Got: len(values)}
	}
	data := make([]byte, n)
	for i, v := range values {
		if v {
			data[i] = 1
		}
	}
	return New(Bool, shape, RowMajor, data)
}

// Bools decodes a bool array.
func Bools(a *Array) ([]bool, error) {
	if a.DType.Kind != KindBool {
		return nil, fmt.Errorf("%w: array is %s, requested bool", ErrDTypeMismatch, a.DType.Name())
	}
	out := make([]bool, len(a.Data))
	for i, b := range a.Data {
		out[i] = b != 0
	}
	return out, nil
}

func cloneShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}
