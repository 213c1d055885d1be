package ndarray

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ErrNotNPY is returned when data does not start with the .npy magic string.
var ErrNotNPY = errors.New("ndarray: not an npy file")

// npyMagic opens every .npy file.
const npyMagic = "\x93NUMPY"

// npyAlign is the alignment of the data section, per format version 1.0.
const npyAlign = 64

// WriteNPY writes the array in NumPy .npy format (version 1.0, or 2.0 when the
// header does not fit a 16-bit length).
func WriteNPY(w io.Writer, a *Array) error {
	fortran := "False"
	if a.Order == ColumnMajor {
		fortran = "True"
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': %s, }",
		a.DType.Descr(), fortran, shapeTuple(a.Shape))

	major, lenSize := byte(1), 2
	if len(dict)+1+len(npyMagic)+2+2 > 0xffff {
		major, lenSize = 2, 4
	}

	prefix := len(npyMagic) + 2 + lenSize
	pad := npyAlign - (prefix+len(dict)+1)%npyAlign
	if pad == npyAlign {
		pad = 0
	}
	header := dict + strings.Repeat(" ", pad) + "\n"

	var buf bytes.Buffer
	buf.Grow(prefix + len(header))
	buf.WriteString(npyMagic)
	buf.WriteByte(major)
	buf.WriteByte(0)
	if lenSize == 2 {
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	} else {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(header)))
	}
	buf.WriteString(header)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(a.Data)
	return err
}

// EncodeNPY returns the .npy encoding of the array.
func EncodeNPY(a *Array) []byte {
	var buf bytes.Buffer
	_ = WriteNPY(&buf, a)
	return buf.Bytes()
}

func shapeTuple(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return "(" + strconv.Itoa(shape[0]) + ",)"
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// ReadNPY reads an array stored in .npy format.
func ReadNPY(r io.Reader) (*Array, error) {
	pre := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotNPY, err)
	}
	if string(pre[:len(npyMagic)]) != npyMagic {
		return nil, ErrNotNPY
	}

	var headerLen int
	switch major := pre[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("ndarray: read npy header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("ndarray: read npy header length: %w", err)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrNotNPY, major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("ndarray: read npy header: %w", err)
	}
	dt, shape, order, err := parseNPYHeader(string(header))
	if err != nil {
		return nil, err
	}

	n, err := ByteLen(dt, shape)
	if err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("ndarray: read npy data: %w", err)
	}
	return New(dt, shape, order, data)
}

// DecodeNPY parses an in-memory .npy file.
func DecodeNPY(b []byte) (*Array, error) {
	return ReadNPY(bytes.NewReader(b))
}

func parseNPYHeader(h string) (DType, []int, Order, error) {
	m := descrRe.FindStringSubmatch(h)
	if m == nil {
		return DType{}, nil, "", fmt.Errorf("%w: header has no descr", ErrNotNPY)
	}
	dt, err := ParseDType(m[1])
	if err != nil {
		return DType{}, nil, "", err
	}

	order := RowMajor
	if m := fortranRe.FindStringSubmatch(h); m != nil && m[1] == "True" {
		order = ColumnMajor
	}

	m = shapeRe.FindStringSubmatch(h)
	if m == nil {
		return DType{}, nil, "", fmt.Errorf("%w: header has no shape", ErrNotNPY)
	}
	shape := []int{}
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "L"))
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return DType{}, nil, "", fmt.Errorf("%w: bad shape entry %q", ErrNotNPY, part)
		}
		shape = append(shape, d)
	}
	return dt, shape, order, nil
}
