package ndarray

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownDType is returned when a dtype tag cannot be parsed.
var ErrUnknownDType = errors.New("ndarray: unknown dtype")

// Kind is the element kind of a dtype, using the array-protocol kind characters.
type Kind byte

const (
	KindBool  Kind = 'b'
	KindInt   Kind = 'i'
	KindUint  Kind = 'u'
	KindFloat Kind = 'f'
)

// Endian describes how a dtype tag pins its byte order.
type Endian byte

const (
	// EndianNative means the tag carried no byte-order prefix, so the bytes
	// are in the byte order of the process that produced them.
	EndianNative Endian = '='
	EndianLittle Endian = '<'
	EndianBig    Endian = '>'
	// EndianNone is used for single-byte elements where order is irrelevant.
	EndianNone Endian = '|'
)

// DType describes the element type of an array: kind, width in bytes and byte order.
type DType struct {
	Kind   Kind
	Size   int
	Endian Endian
}

// Common dtypes in native byte order.
var (
	Bool    = DType{Kind: KindBool, Size: 1, Endian: EndianNone}
	Int8    = DType{Kind: KindInt, Size: 1, Endian: EndianNone}
	Int16   = DType{Kind: KindInt, Size: 2, Endian: EndianNative}
	Int32   = DType{Kind: KindInt, Size: 4, Endian: EndianNative}
	Int64   = DType{Kind: KindInt, Size: 8, Endian: EndianNative}
	Uint8   = DType{Kind: KindUint, Size: 1, Endian: EndianNone}
	Uint16  = DType{Kind: KindUint, Size: 2, Endian: EndianNative}
	Uint32  = DType{Kind: KindUint, Size: 4, Endian: EndianNative}
	Uint64  = DType{Kind: KindUint, Size: 8, Endian: EndianNative}
	Float16 = DType{Kind: KindFloat, Size: 2, Endian: EndianNative}
	Float32 = DType{Kind: KindFloat, Size: 4, Endian: EndianNative}
	Float64 = DType{Kind: KindFloat, Size: 8, Endian: EndianNative}
)

var namedDTypes = map[string]DType{
	"bool":    Bool,
	"int8":    Int8,
	"int16":   Int16,
	"int32":   Int32,
	"int64":   Int64,
	"uint8":   Uint8,
	"uint16":  Uint16,
	"uint32":  Uint32,
	"uint64":  Uint64,
	"float16": Float16,
	"float32": Float32,
	"float64": Float64,
	"half":    Float16,
	"single":  Float32,
	"double":  Float64,
	"float":   Float64,
	"int":     Int64,
}

// nativeLittle reports whether this process is little-endian.
var nativeLittle = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// ParseDType parses a dtype tag. Both NumPy names ("float32", "uint8") and
// array-protocol type strings ("<f4", ">i2", "|u1", "f8") are accepted.
func ParseDType(tag string) (DType, error) {
	tag = strings.TrimSpace(tag)
	if dt, ok := namedDTypes[strings.ToLower(tag)]; ok {
		return dt, nil
	}
	if tag == "" {
		return DType{}, fmt.Errorf("%w: empty tag", ErrUnknownDType)
	}

	endian := EndianNative
	switch tag[0] {
	case '<', '>', '=', '|':
		endian = Endian(tag[0])
		tag = tag[1:]
	}
	if len(tag) < 2 {
		return DType{}, fmt.Errorf("%w: %q", ErrUnknownDType, tag)
	}

	kind := Kind(tag[0])
	size, err := strconv.Atoi(tag[1:])
	if err != nil {
		return DType{}, fmt.Errorf("%w: %q", ErrUnknownDType, tag)
	}

	dt := DType{Kind: kind, Size: size, Endian: endian}
	if !dt.valid() {
		return DType{}, fmt.Errorf("%w: %q", ErrUnknownDType, tag)
	}
	if size == 1 {
		dt.Endian = EndianNone
	}
	return dt, nil
}

// MustParseDType is like ParseDType but panics on error.
func MustParseDType(tag string) DType {
	dt, err := ParseDType(tag)
	if err != nil {
		panic(err)
	}
	return dt
}

func (d DType) valid() bool {
	switch d.Kind {
	case KindBool:
		return d.Size == 1
	case KindInt, KindUint:
		return d.Size == 1 || d.Size == 2 || d.Size == 4 || d.Size == 8
	case KindFloat:
		return d.Size == 2 || d.Size == 4 || d.Size == 8
	}
	return false
}

// Name returns the NumPy name of the dtype, ignoring byte order.
func (d DType) Name() string {
	switch d.Kind {
	case KindBool:
		return "bool"
	case KindInt:
		return "int" + strconv.Itoa(d.Size*8)
	case KindUint:
		return "uint" + strconv.Itoa(d.Size*8)
	case KindFloat:
		return "float" + strconv.Itoa(d.Size*8)
	}
	return "invalid"
}

// String returns the tag used on the wire. Native-order dtypes use their
// NumPy name, explicitly ordered ones use the type string form.
func (d DType) String() string {
	if d.Endian == EndianNative || d.Endian == EndianNone {
		return d.Name()
	}
	return string(d.Endian) + string(d.Kind) + strconv.Itoa(d.Size)
}

// Descr returns the array-protocol type string with the byte order resolved,
// as stored in .npy headers (e.g. "<f4", "|u1").
func (d DType) Descr() string {
	return string(d.resolvedEndian()) + string(d.Kind) + strconv.Itoa(d.Size)
}

func (d DType) resolvedEndian() Endian {
	if d.Size == 1 {
		return EndianNone
	}
	switch d.Endian {
	case EndianLittle, EndianBig:
		return d.Endian
	}
	if nativeLittle {
		return EndianLittle
	}
	return EndianBig
}

// ByteOrder returns the byte order of the element data.
func (d DType) ByteOrder() binary.ByteOrder {
	if d.resolvedEndian() == EndianBig {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Equal reports whether two dtypes describe the same bytes: same kind,
// width and effective byte order.
func (d DType) Equal(o DType) bool {
	return d.Kind == o.Kind && d.Size == o.Size && d.resolvedEndian() == o.resolvedEndian()
}
